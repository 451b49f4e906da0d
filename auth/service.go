package auth

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"
)

// DefaultStoreTimeout bounds every call into the Repository.
const DefaultStoreTimeout = 5 * time.Second

type service struct {
	accounts Repository
	hasher   PasswordHasher
	tokens   *TokenIssuer
	events   Events
	logger   *slog.Logger
	timeout  time.Duration
	now      func() time.Time
}

type Option func(*service)

func WithEvents(e Events) Option {
	return func(s *service) { s.events = e }
}

func WithLogger(l *slog.Logger) Option {
	return func(s *service) { s.logger = l }
}

func WithStoreTimeout(d time.Duration) Option {
	return func(s *service) {
		if d > 0 {
			s.timeout = d
		}
	}
}

func NewService(accounts Repository, hasher PasswordHasher, tokens *TokenIssuer, opts ...Option) Service {
	svc := &service{
		accounts: accounts,
		hasher:   hasher,
		tokens:   tokens,
		logger:   slog.Default(),
		timeout:  DefaultStoreTimeout,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

func (svc *service) Register(ctx context.Context, r RegisterRequest) (g Grant, err error) {
	defer func() { countOutcome("register", err) }()

	created := svc.now().UTC()

	acc, err := NewAccount(r.Username, r.Email)
	if err != nil {
		return Grant{}, err
	}
	if err := validatePassword(r.Password); err != nil {
		return Grant{}, err
	}

	username := acc.Credentials.Username
	email := acc.Credentials.Email
	if err := svc.verifyNotInUse(ctx, username, email); err != nil {
		return Grant{}, err
	}

	hash, err := svc.hasher.Hash(ctx, r.Password)
	if err != nil {
		return Grant{}, svc.internal(ctx, "auth.Register", "hash password", err)
	}
	acc.Credentials.Password = hash

	acc.ID = svc.accounts.NextID()
	acc.PublicID = DerivePublicID(acc.ID)
	acc.CreatedAt = created

	acc.Token, err = svc.tokens.Issue(acc.ID, email, created)
	if err != nil {
		return Grant{}, svc.internal(ctx, "auth.Register", "issue token", err)
	}

	sctx, cancel := context.WithTimeout(ctx, svc.timeout)
	defer cancel()

	if err := svc.accounts.Store(sctx, acc); err != nil {
		switch {
		case errors.Is(err, ErrDuplicatePublicID):
			return Grant{}, svc.internal(ctx, "auth.Register", "public id collision", err)
		case errors.Is(err, ErrDuplicateAccount):
			svc.logger.InfoContext(ctx, "auth.Register: lost uniqueness race", "username", username, "err", err)
			return Grant{}, ErrAccountExists
		default:
			return Grant{}, svc.internal(ctx, "auth.Register", "store account", err)
		}
	}

	if svc.events != nil {
		if err := svc.events.AccountCreated(ctx, acc); err != nil {
			svc.logger.WarnContext(ctx, "auth.Register: account created event not delivered", "id", acc.ID, "err", err)
		}
	}

	return Grant{Token: acc.Token, ID: acc.ID}, nil
}

func (svc *service) Login(ctx context.Context, r LoginRequest) (g Grant, err error) {
	defer func() { countOutcome("login", err) }()

	username := strings.TrimSpace(r.Username)
	if username == "" || r.Password == "" {
		return Grant{}, ErrValidation
	}

	sctx, cancel := context.WithTimeout(ctx, svc.timeout)
	defer cancel()

	acc, err := svc.accounts.FindByName(sctx, username)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Grant{}, ErrNotFound
		}
		return Grant{}, svc.internal(ctx, "auth.Login", "find account", err)
	}

	// bcrypt only compares the first MaxPasswordLength bytes.
	if len(r.Password) > MaxPasswordLength {
		return Grant{}, ErrInvalidCredentials
	}

	ok, err := svc.hasher.Verify(ctx, r.Password, acc.Credentials.Password)
	if err != nil {
		return Grant{}, svc.internal(ctx, "auth.Login", "verify password", err)
	}
	if !ok {
		return Grant{}, ErrInvalidCredentials
	}

	return Grant{Token: acc.Token, ID: acc.ID}, nil
}

func (svc *service) Authenticate(_ context.Context, token string) (*Claims, error) {
	if token == "" {
		return nil, ErrValidation
	}

	claims, err := svc.tokens.Verify(token)
	if err != nil {
		return nil, ErrInvalidCredentials
	}
	return claims, nil
}

func (svc *service) Account(ctx context.Context, id ID) (Profile, error) {
	if id == "" {
		return Profile{}, ErrValidation
	}

	sctx, cancel := context.WithTimeout(ctx, svc.timeout)
	defer cancel()

	acc, err := svc.accounts.FindByID(sctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Profile{}, ErrNotFound
		}
		return Profile{}, svc.internal(ctx, "auth.Account", "find account", err)
	}
	return acc.profile(), nil
}

func (svc *service) verifyNotInUse(ctx context.Context, username string, email string) error {
	sctx, cancel := context.WithTimeout(ctx, svc.timeout)
	defer cancel()

	_, err := svc.accounts.FindByNameOrEmail(sctx, username, email)
	switch {
	case err == nil:
		return ErrAccountExists
	case errors.Is(err, ErrNotFound):
		return nil
	default:
		return svc.internal(ctx, "auth.Register", "check existing account", err)
	}
}

// internal logs err with its context and returns ErrInternal in its place.
func (svc *service) internal(ctx context.Context, op, msg string, err error) error {
	svc.logger.ErrorContext(ctx, op+": "+msg, "err", err)
	return ErrInternal
}
