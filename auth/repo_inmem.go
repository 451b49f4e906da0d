package auth

import (
	"context"
	"fmt"
	"sync"
)

type accountRepository struct {
	mu       sync.RWMutex
	accounts map[ID]*Account
}

func NewAccountRepository() Repository {
	return &accountRepository{accounts: map[ID]*Account{}}
}

func (repo *accountRepository) NextID() ID {
	return NewID()
}

func (repo *accountRepository) Store(ctx context.Context, acc *Account) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	repo.mu.Lock()
	defer repo.mu.Unlock()

	for _, v := range repo.accounts {
		switch {
		case v.PublicID == acc.PublicID:
			return ErrDuplicatePublicID
		case v.Credentials.Username == acc.Credentials.Username:
			return fmt.Errorf("%w: username", ErrDuplicateAccount)
		case v.Credentials.Email == acc.Credentials.Email:
			return fmt.Errorf("%w: email", ErrDuplicateAccount)
		}
	}
	if _, ok := repo.accounts[acc.ID]; ok {
		return fmt.Errorf("%w: id", ErrDuplicateAccount)
	}

	repo.accounts[acc.ID] = acc.clone()
	return nil
}

func (repo *accountRepository) FindByID(_ context.Context, id ID) (*Account, error) {
	repo.mu.RLock()
	defer repo.mu.RUnlock()

	if u, ok := repo.accounts[id]; ok {
		return u.clone(), nil
	}
	return nil, ErrNotFound
}

func (repo *accountRepository) FindByName(_ context.Context, username string) (*Account, error) {
	return repo.find(func(v *Account) bool {
		return v.Credentials.Username == username
	})
}

func (repo *accountRepository) FindByNameOrEmail(_ context.Context, username, email string) (*Account, error) {
	return repo.find(func(v *Account) bool {
		return v.Credentials.Username == username || v.Credentials.Email == email
	})
}

func (repo *accountRepository) Ping(ctx context.Context) error {
	return ctx.Err()
}

func (repo *accountRepository) count() int {
	repo.mu.RLock()
	defer repo.mu.RUnlock()
	return len(repo.accounts)
}

func (repo *accountRepository) find(match func(*Account) bool) (*Account, error) {
	repo.mu.RLock()
	defer repo.mu.RUnlock()

	for _, v := range repo.accounts {
		if match(v) {
			return v.clone(), nil
		}
	}
	return nil, ErrNotFound
}
