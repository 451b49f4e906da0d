package auth

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"time"

	"golang.org/x/crypto/bcrypt"
	"golang.org/x/sync/semaphore"
)

// DefaultCost is the bcrypt work factor used when none is configured.
const DefaultCost = 10

// PasswordHasher turns plaintext passwords into salted digests and checks
// candidates against them.
type PasswordHasher interface {
	Hash(ctx context.Context, password string) (string, error)
	Verify(ctx context.Context, password, hash string) (bool, error)
}

type bcryptHasher struct {
	cost int
	pool *semaphore.Weighted
}

// NewBcryptHasher returns a bcrypt PasswordHasher that runs at most workers
// hash operations at once. A zero cost selects DefaultCost and workers <= 0
// selects GOMAXPROCS.
func NewBcryptHasher(cost, workers int) PasswordHasher {
	switch {
	case cost == 0:
		cost = DefaultCost
	case cost < bcrypt.MinCost:
		cost = bcrypt.MinCost
	case cost > bcrypt.MaxCost:
		cost = bcrypt.MaxCost
	}
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	return &bcryptHasher{cost: cost, pool: semaphore.NewWeighted(int64(workers))}
}

func (h *bcryptHasher) Hash(ctx context.Context, password string) (string, error) {
	if err := h.pool.Acquire(ctx, 1); err != nil {
		return "", err
	}
	defer h.pool.Release(1)
	defer observeHash("hash", time.Now())

	hash, err := bcrypt.GenerateFromPassword([]byte(password), h.cost)
	if err != nil {
		return "", fmt.Errorf("error hashing password: %w", err)
	}
	return string(hash), nil
}

// Verify reports a mismatch for passwords bcrypt would truncate, so a longer
// candidate never matches on its first MaxPasswordLength bytes alone.
func (h *bcryptHasher) Verify(ctx context.Context, password, hash string) (bool, error) {
	if len(password) > MaxPasswordLength {
		return false, nil
	}
	if err := h.pool.Acquire(ctx, 1); err != nil {
		return false, err
	}
	defer h.pool.Release(1)
	defer observeHash("verify", time.Now())

	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
		return false, nil
	default:
		return false, fmt.Errorf("error comparing password: %w", err)
	}
}
