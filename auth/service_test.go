package auth

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

const testSecret = "test-secret"

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestService(t *testing.T, repo Repository, opts ...Option) Service {
	t.Helper()
	tokens, err := NewTokenIssuer(testSecret)
	require.NoError(t, err)

	opts = append([]Option{WithLogger(discardLogger())}, opts...)
	return NewService(repo, NewBcryptHasher(bcrypt.MinCost, 4), tokens, opts...)
}

func aliceRequest() RegisterRequest {
	return RegisterRequest{Username: "alice", Email: "a@x.io", Password: "s3cret"}
}

func TestService_RegisterValidation(t *testing.T) {
	repo := NewAccountRepository().(*accountRepository)
	svc := newTestService(t, repo)

	tests := []RegisterRequest{
		{},
		{Email: "a@x.io", Password: "s3cret"},
		{Username: "alice", Password: "s3cret"},
		{Username: "alice", Email: "a@x.io"},
		{Username: " ", Email: "a@x.io", Password: "s3cret"},
		{Username: "alice", Email: "a@x.io", Password: strings.Repeat("p", MaxPasswordLength+1)},
	}

	for _, req := range tests {
		g, err := svc.Register(context.Background(), req)
		assert.Equal(t, ErrValidation, err)
		assert.Equal(t, Grant{}, g)
	}
	assert.Equal(t, 0, repo.count())
}

func TestService_RegisterAndLogin(t *testing.T) {
	repo := NewAccountRepository()
	svc := newTestService(t, repo)
	created := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	svc.(*service).now = func() time.Time { return created }

	g, err := svc.Register(context.Background(), aliceRequest())
	require.NoError(t, err)
	assert.True(t, isValidID(string(g.ID)))
	assert.NotEmpty(t, g.Token)

	acc, err := repo.FindByID(context.Background(), g.ID)
	require.NoError(t, err)
	assert.Equal(t, "alice", acc.Credentials.Username)
	assert.Equal(t, "a@x.io", acc.Credentials.Email)
	assert.Equal(t, DerivePublicID(g.ID), acc.PublicID)
	assert.Equal(t, g.Token, acc.Token)
	assert.Equal(t, created, acc.CreatedAt)
	assert.NotEqual(t, "s3cret", acc.Credentials.Password)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(acc.Credentials.Password), []byte("s3cret")))
	assert.Empty(t, acc.Uploaded)
	assert.Empty(t, acc.Downloaded)

	claims, err := svc.Authenticate(context.Background(), g.Token)
	require.NoError(t, err)
	assert.Equal(t, g.ID, claims.ID)
	assert.Equal(t, "a@x.io", claims.Email)
	assert.Equal(t, created.UnixMilli(), claims.Created)

	login, err := svc.Login(context.Background(), LoginRequest{Username: "alice", Password: "s3cret"})
	require.NoError(t, err)
	assert.Equal(t, g, login)
}

func TestService_RegisterDuplicate(t *testing.T) {
	repo := NewAccountRepository().(*accountRepository)
	svc := newTestService(t, repo)

	_, err := svc.Register(context.Background(), aliceRequest())
	require.NoError(t, err)

	tests := []RegisterRequest{
		aliceRequest(),
		{Username: "alice", Email: "other@x.io", Password: "s3cret"},
		{Username: "bob", Email: "a@x.io", Password: "s3cret"},
	}

	for _, req := range tests {
		g, err := svc.Register(context.Background(), req)
		assert.Equal(t, ErrAccountExists, err)
		assert.Equal(t, Grant{}, g)
	}
	assert.Equal(t, 1, repo.count())
}

func TestService_ConcurrentRegister(t *testing.T) {
	repo := NewAccountRepository().(*accountRepository)
	svc := newTestService(t, repo)

	const n = 16
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		conflicts int
	)

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Register(context.Background(), aliceRequest())

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case errors.Is(err, ErrAccountExists):
				conflicts++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, successes)
	assert.Equal(t, n-1, conflicts)
	assert.Equal(t, 1, repo.count())
}

func TestService_Login(t *testing.T) {
	repo := NewAccountRepository()
	svc := newTestService(t, repo)

	_, err := svc.Register(context.Background(), aliceRequest())
	require.NoError(t, err)
	before, err := repo.FindByName(context.Background(), "alice")
	require.NoError(t, err)

	tests := []struct {
		req     LoginRequest
		wantErr error
	}{
		{req: LoginRequest{}, wantErr: ErrValidation},
		{req: LoginRequest{Username: "alice"}, wantErr: ErrValidation},
		{req: LoginRequest{Password: "s3cret"}, wantErr: ErrValidation},
		{req: LoginRequest{Username: "alice", Password: "wrong"}, wantErr: ErrInvalidCredentials},
		{req: LoginRequest{Username: "Alice", Password: "s3cret"}, wantErr: ErrNotFound},
		{req: LoginRequest{Username: "ghost", Password: "s3cret"}, wantErr: ErrNotFound},
		{req: LoginRequest{Username: "   ", Password: "s3cret"}, wantErr: ErrValidation},
		{req: LoginRequest{Username: "alice", Password: "s3cret" + strings.Repeat("x", MaxPasswordLength)}, wantErr: ErrInvalidCredentials},
	}

	for _, tt := range tests {
		g, err := svc.Login(context.Background(), tt.req)
		assert.Equal(t, tt.wantErr, err)
		assert.Equal(t, Grant{}, g)
	}

	after, err := repo.FindByName(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestService_LoginLongestPassword(t *testing.T) {
	svc := newTestService(t, NewAccountRepository())
	password := strings.Repeat("a", MaxPasswordLength)

	registered, err := svc.Register(context.Background(), RegisterRequest{Username: "alice", Email: "a@x.io", Password: password})
	require.NoError(t, err)

	g, err := svc.Login(context.Background(), LoginRequest{Username: "alice", Password: password})
	require.NoError(t, err)
	assert.Equal(t, registered, g)

	g, err = svc.Login(context.Background(), LoginRequest{Username: "alice", Password: password + "WRONG"})
	assert.Equal(t, ErrInvalidCredentials, err)
	assert.Equal(t, Grant{}, g)
}

func TestService_LoginTrimsUsername(t *testing.T) {
	svc := newTestService(t, NewAccountRepository())

	registered, err := svc.Register(context.Background(), RegisterRequest{Username: " alice ", Email: " a@x.io ", Password: "s3cret"})
	require.NoError(t, err)

	for _, username := range []string{"alice", " alice ", "alice\n"} {
		g, err := svc.Login(context.Background(), LoginRequest{Username: username, Password: "s3cret"})
		require.NoError(t, err, "username %q", username)
		assert.Equal(t, registered, g)
	}
}

func TestService_StoreFailuresAreInternal(t *testing.T) {
	leak := errors.New("dial tcp 10.1.2.3:27017: connection refused")

	tests := []struct {
		name     string
		repo     *faultyRepository
		register bool
		wantErr  error
	}{
		{name: "store error", repo: &faultyRepository{storeErr: leak}, register: true, wantErr: ErrInternal},
		{name: "lookup error", repo: &faultyRepository{findErr: leak}, register: true, wantErr: ErrInternal},
		{name: "login lookup error", repo: &faultyRepository{findErr: leak}, wantErr: ErrInternal},
		{name: "public id collision", repo: &faultyRepository{storeErr: ErrDuplicatePublicID}, register: true, wantErr: ErrInternal},
		{name: "lost uniqueness race", repo: &faultyRepository{storeErr: fmt.Errorf("%w: username", ErrDuplicateAccount)}, register: true, wantErr: ErrAccountExists},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.repo.Repository = NewAccountRepository()
			svc := newTestService(t, tt.repo)

			var err error
			if tt.register {
				_, err = svc.Register(context.Background(), aliceRequest())
			} else {
				_, err = svc.Login(context.Background(), LoginRequest{Username: "alice", Password: "s3cret"})
			}

			assert.Equal(t, tt.wantErr, err)
			assert.NotContains(t, err.Error(), "10.1.2.3")
		})
	}
}

func TestService_StoreTimeout(t *testing.T) {
	repo := &faultyRepository{Repository: NewAccountRepository(), block: true}
	svc := newTestService(t, repo, WithStoreTimeout(20*time.Millisecond))

	done := make(chan error, 1)
	go func() {
		_, err := svc.Register(context.Background(), aliceRequest())
		done <- err
	}()

	select {
	case err := <-done:
		assert.Equal(t, ErrInternal, err)
	case <-time.After(2 * time.Second):
		t.Fatal("register did not honour the store timeout")
	}

	_, err := svc.Login(context.Background(), LoginRequest{Username: "alice", Password: "s3cret"})
	assert.Equal(t, ErrInternal, err)
}

func TestService_Events(t *testing.T) {
	spy := &eventsSpy{}
	svc := newTestService(t, NewAccountRepository(), WithEvents(spy))

	g, err := svc.Register(context.Background(), aliceRequest())
	require.NoError(t, err)

	_, err = svc.Register(context.Background(), aliceRequest())
	assert.Equal(t, ErrAccountExists, err)

	require.Len(t, spy.accounts, 1)
	assert.Equal(t, g.ID, spy.accounts[0].ID)
	assert.Equal(t, "alice", spy.accounts[0].Credentials.Username)
}

func TestService_EventFailureDoesNotFailRegister(t *testing.T) {
	spy := &eventsSpy{err: errors.New("broker down")}
	repo := NewAccountRepository().(*accountRepository)
	svc := newTestService(t, repo, WithEvents(spy))

	g, err := svc.Register(context.Background(), aliceRequest())
	require.NoError(t, err)
	assert.NotEmpty(t, g.Token)
	assert.Len(t, spy.accounts, 1)
	assert.Equal(t, 1, repo.count())
}

func TestService_Authenticate(t *testing.T) {
	svc := newTestService(t, NewAccountRepository())
	g, err := svc.Register(context.Background(), aliceRequest())
	require.NoError(t, err)

	claims, err := svc.Authenticate(context.Background(), g.Token)
	require.NoError(t, err)
	assert.Equal(t, g.ID, claims.ID)

	_, err = svc.Authenticate(context.Background(), "")
	assert.Equal(t, ErrValidation, err)

	_, err = svc.Authenticate(context.Background(), "garbage")
	assert.Equal(t, ErrInvalidCredentials, err)
}

func TestService_Account(t *testing.T) {
	svc := newTestService(t, NewAccountRepository())
	g, err := svc.Register(context.Background(), aliceRequest())
	require.NoError(t, err)

	p, err := svc.Account(context.Background(), g.ID)
	require.NoError(t, err)
	assert.Equal(t, g.ID, p.ID)
	assert.Equal(t, DerivePublicID(g.ID), p.PublicID)
	assert.Equal(t, "alice", p.Username)
	assert.Equal(t, "a@x.io", p.Email)

	_, err = svc.Account(context.Background(), NewID())
	assert.Equal(t, ErrNotFound, err)

	_, err = svc.Account(context.Background(), "")
	assert.Equal(t, ErrValidation, err)
}

func TestService_CountsOutcomes(t *testing.T) {
	svc := newTestService(t, NewAccountRepository())
	ok := operations.WithLabelValues("register", "ok")
	conflict := operations.WithLabelValues("register", "conflict")
	notFound := operations.WithLabelValues("login", "not_found")

	okBefore := testutil.ToFloat64(ok)
	conflictBefore := testutil.ToFloat64(conflict)
	notFoundBefore := testutil.ToFloat64(notFound)

	_, _ = svc.Register(context.Background(), aliceRequest())
	_, _ = svc.Register(context.Background(), aliceRequest())
	_, _ = svc.Login(context.Background(), LoginRequest{Username: "ghost", Password: "pw"})

	assert.Equal(t, okBefore+1, testutil.ToFloat64(ok))
	assert.Equal(t, conflictBefore+1, testutil.ToFloat64(conflict))
	assert.Equal(t, notFoundBefore+1, testutil.ToFloat64(notFound))
}

// faultyRepository fails lookups and writes of the wrapped Repository on demand.
type faultyRepository struct {
	Repository
	findErr  error
	storeErr error
	block    bool
}

func (r *faultyRepository) lookup(ctx context.Context) error {
	if r.block {
		<-ctx.Done()
		return ctx.Err()
	}
	return r.findErr
}

func (r *faultyRepository) FindByName(ctx context.Context, username string) (*Account, error) {
	if err := r.lookup(ctx); err != nil {
		return nil, err
	}
	return r.Repository.FindByName(ctx, username)
}

func (r *faultyRepository) FindByNameOrEmail(ctx context.Context, username, email string) (*Account, error) {
	if err := r.lookup(ctx); err != nil {
		return nil, err
	}
	return r.Repository.FindByNameOrEmail(ctx, username, email)
}

func (r *faultyRepository) Store(ctx context.Context, acc *Account) error {
	if r.storeErr != nil {
		return r.storeErr
	}
	return r.Repository.Store(ctx, acc)
}

type eventsSpy struct {
	mu       sync.Mutex
	accounts []*Account
	err      error
}

func (s *eventsSpy) AccountCreated(_ context.Context, acc *Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts = append(s.accounts, acc)
	return s.err
}
