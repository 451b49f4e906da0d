package auth

import "context"

type Service interface {
	Register(ctx context.Context, r RegisterRequest) (Grant, error)
	Login(ctx context.Context, r LoginRequest) (Grant, error)
	Authenticate(ctx context.Context, token string) (*Claims, error)
	Account(ctx context.Context, id ID) (Profile, error)
}

// Events is notified after an account has been persisted. Tracker accounting
// uses it to set up the account's transfer counters.
type Events interface {
	AccountCreated(ctx context.Context, acc *Account) error
}

// Repository is the credential store. Store must reject a duplicate username,
// email or public id atomically, with ErrDuplicateAccount or
// ErrDuplicatePublicID. Lookups return ErrNotFound when nothing matches.
type Repository interface {
	NextID() ID
	FindByID(ctx context.Context, id ID) (*Account, error)
	FindByName(ctx context.Context, username string) (*Account, error)
	FindByNameOrEmail(ctx context.Context, username, email string) (*Account, error)
	Store(ctx context.Context, acc *Account) error
	Ping(ctx context.Context) error
}

type RegisterRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}
