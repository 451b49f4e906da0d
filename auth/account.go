package auth

import (
	"errors"
	"strings"
	"time"

	"github.com/rs/xid"
)

type Account struct {
	ID          ID
	PublicID    string
	Credentials Credentials
	Token       string
	CreatedAt   time.Time
	Uploaded    map[string]int64
	Downloaded  map[string]int64
}

type ID string

//Credentials holds the account's sensitive information
type Credentials struct {
	Username,
	Email,
	Password string
}

// Grant is what a client receives from a successful register or login.
type Grant struct {
	Token string `json:"token"`
	ID    ID     `json:"id"`
}

// Profile is the public view of an account.
type Profile struct {
	ID       ID        `json:"id"`
	PublicID string    `json:"publicId"`
	Username string    `json:"username"`
	Email    string    `json:"email"`
	Created  time.Time `json:"created"`
}

// Errors returned by Service. Their messages are safe to show to clients.
var (
	ErrValidation         = errors.New("missing or invalid fields")
	ErrAccountExists      = errors.New("account already exists")
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrNotFound           = errors.New("account not found")
	ErrInternal           = errors.New("internal error")
)

// Errors returned by Repository implementations when a uniqueness constraint
// rejects a write. They never leave the service.
var (
	ErrDuplicateAccount  = errors.New("duplicate username or email")
	ErrDuplicatePublicID = errors.New("duplicate public id")
)

// MaxPasswordLength is the longest password bcrypt accepts, in bytes.
const MaxPasswordLength = 72

//NewAccount validates username and email and returns a new Account with empty
// transfer counters if arguments are valid
func NewAccount(username string, email string) (*Account, error) {
	username = strings.TrimSpace(username)
	email = strings.TrimSpace(email)
	if username == "" || email == "" {
		return nil, ErrValidation
	}

	c := Credentials{Username: username, Email: email}
	return &Account{
		Credentials: c,
		Uploaded:    map[string]int64{},
		Downloaded:  map[string]int64{},
	}, nil
}

func validatePassword(password string) error {
	if password == "" || len(password) > MaxPasswordLength {
		return ErrValidation
	}
	return nil
}

func NewID() ID {
	return ID(xid.New().String())
}

func isValidID(id string) bool {
	if _, err := xid.FromString(id); err != nil {
		return false
	}
	return true
}

func (acc *Account) profile() Profile {
	return Profile{
		ID:       acc.ID,
		PublicID: acc.PublicID,
		Username: acc.Credentials.Username,
		Email:    acc.Credentials.Email,
		Created:  acc.CreatedAt,
	}
}

func (acc *Account) clone() *Account {
	c := *acc
	c.Uploaded = copyCounters(acc.Uploaded)
	c.Downloaded = copyCounters(acc.Downloaded)
	return &c
}

func copyCounters(m map[string]int64) map[string]int64 {
	out := make(map[string]int64, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
