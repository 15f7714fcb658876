package inmemdb

import (
	"context"

	"github.com/google/uuid"

	"github.com/apecharmilles/backend/core/account"
)

type accountRepository struct {
	db *DB
}

var _ account.Repository = (*accountRepository)(nil)

func NewAccountRepository(db *DB) account.Repository {
	return &accountRepository{db: db}
}

func (repo *accountRepository) CheckEmailUniqueness(_ context.Context, email string, excluded ...account.Account) error {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	for _, acct := range repo.db.accounts {
		if acct.Email != email {
			continue
		}
		if !isExcluded(acct.ID, excluded) {
			return account.ErrEmailExists
		}
	}
	return nil
}

func (repo *accountRepository) CreateAccount(_ context.Context, acct account.Account) (account.Account, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	acct.ID = uuid.New().String()
	repo.db.accounts[acct.ID] = &acct
	return acct, nil
}

func (repo *accountRepository) GetAccountByID(_ context.Context, id string) (account.Account, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if acct, ok := repo.db.accounts[id]; ok {
		return *acct, nil
	}
	return account.Account{}, account.ErrNotFound
}

func (repo *accountRepository) GetAccountByEmail(_ context.Context, email string) (account.Account, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	for _, acct := range repo.db.accounts {
		if acct.Email == email {
			return *acct, nil
		}
	}
	return account.Account{}, account.ErrNotFound
}

func (repo *accountRepository) UpdateAccount(_ context.Context, acct account.Account) (account.Account, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.accounts[acct.ID]; !ok {
		return account.Account{}, account.ErrNotFound
	}
	repo.db.accounts[acct.ID] = &acct
	return acct, nil
}

func isExcluded(id string, excluded []account.Account) bool {
	for _, e := range excluded {
		if e.ID == id {
			return true
		}
	}
	return false
}
