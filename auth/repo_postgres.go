package auth

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrations embed.FS

const pgUniqueViolation = "23505"

const accountColumns = `id, username, email, password_hash, public_id, token, created, uploaded, downloaded`

type PostgresAccountRepository struct {
	db *sql.DB
}

// OpenPostgres opens a pgx-backed *sql.DB and checks the connection.
func OpenPostgres(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("db open error: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("db ping error: %w", err)
	}
	return db, nil
}

func NewPostgresAccountRepository(db *sql.DB) *PostgresAccountRepository {
	return &PostgresAccountRepository{db: db}
}

// gooseUpContext is a seam for testing goose.UpContext.
var gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
	return goose.UpContext(ctx, db, dir, opts...)
}

// Migrate applies the embedded schema migrations.
func (r *PostgresAccountRepository) Migrate(ctx context.Context) error {
	goose.SetBaseFS(migrations)
	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}
	if err := gooseUpContext(ctx, r.db, "migrations"); err != nil {
		return fmt.Errorf("migration error: %w", err)
	}
	return nil
}

func (r *PostgresAccountRepository) NextID() ID {
	return NewID()
}

func (r *PostgresAccountRepository) Store(ctx context.Context, acc *Account) error {
	uploaded, err := json.Marshal(copyCounters(acc.Uploaded))
	if err != nil {
		return fmt.Errorf("error encoding uploaded: %w", err)
	}
	downloaded, err := json.Marshal(copyCounters(acc.Downloaded))
	if err != nil {
		return fmt.Errorf("error encoding downloaded: %w", err)
	}

	query :=
		`INSERT INTO accounts (` + accountColumns + `)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err = r.db.ExecContext(ctx, query,
		string(acc.ID), acc.Credentials.Username, acc.Credentials.Email, acc.Credentials.Password,
		acc.PublicID, acc.Token, acc.CreatedAt, uploaded, downloaded)
	if err != nil {
		if dup := pgDuplicateError(err); dup != nil {
			return dup
		}
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresAccountRepository) FindByID(ctx context.Context, id ID) (*Account, error) {
	return r.findAccount(ctx, `WHERE id = $1`, string(id))
}

func (r *PostgresAccountRepository) FindByName(ctx context.Context, username string) (*Account, error) {
	return r.findAccount(ctx, `WHERE username = $1`, username)
}

func (r *PostgresAccountRepository) FindByNameOrEmail(ctx context.Context, username, email string) (*Account, error) {
	return r.findAccount(ctx, `WHERE username = $1 OR email = $2 LIMIT 1`, username, email)
}

func (r *PostgresAccountRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *PostgresAccountRepository) findAccount(ctx context.Context, where string, args ...any) (*Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts ` + where

	var (
		acc                  Account
		id                   string
		uploaded, downloaded []byte
	)
	err := r.db.QueryRowContext(ctx, query, args...).Scan(
		&id, &acc.Credentials.Username, &acc.Credentials.Email, &acc.Credentials.Password,
		&acc.PublicID, &acc.Token, &acc.CreatedAt, &uploaded, &downloaded)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	acc.ID = ID(id)
	if acc.Uploaded, err = decodeCounters(uploaded); err != nil {
		return nil, err
	}
	if acc.Downloaded, err = decodeCounters(downloaded); err != nil {
		return nil, err
	}
	return &acc, nil
}

func decodeCounters(b []byte) (map[string]int64, error) {
	m := map[string]int64{}
	if len(b) == 0 {
		return m, nil
	}
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("error decoding counters: %w", err)
	}
	return m, nil
}

// pgDuplicateError maps a unique_violation to the repository sentinel named by
// the violated constraint. It returns nil for any other error.
func pgDuplicateError(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != pgUniqueViolation {
		return nil
	}

	c := strings.ToLower(pgErr.ConstraintName)
	switch {
	case strings.Contains(c, "public_id"):
		return fmt.Errorf("%w: %s", ErrDuplicatePublicID, c)
	case strings.Contains(c, "email"):
		return fmt.Errorf("%w: email", ErrDuplicateAccount)
	case strings.Contains(c, "username"):
		return fmt.Errorf("%w: username", ErrDuplicateAccount)
	default:
		return fmt.Errorf("%w: %s", ErrDuplicateAccount, c)
	}
}
