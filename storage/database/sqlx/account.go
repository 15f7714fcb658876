package sqlxrepos

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/apecharmilles/backend/core/account"
)

type accountRow struct {
	ID           string    `db:"id"`
	Email        string    `db:"email"`
	IsAdmin      bool      `db:"is_admin"`
	PasswordHash []byte    `db:"password_hash"`
	CreatedAt    null.Time `db:"created_at"`
	UpdatedAt    null.Time `db:"updated_at"`
	LastLogin    null.Time `db:"last_login"`
}

func (r accountRow) unpack() account.Account {
	return account.Account{
		ID:           r.ID,
		Email:        r.Email,
		IsAdmin:      r.IsAdmin,
		PasswordHash: r.PasswordHash,
		CreatedAt:    r.CreatedAt.Time,
		UpdatedAt:    r.UpdatedAt.Time,
		LastLogin:    r.LastLogin.Time,
	}
}

type accountRepository struct {
	db *sqlx.DB
}

var _ account.Repository = (*accountRepository)(nil)

func NewAccountRepository(db *sqlx.DB) account.Repository {
	return &accountRepository{db: db}
}

// trapNoRowsErr maps psql "no rows" err to account.ErrNotFound
func trapNoRowsErr(err error, msg string) error {
	if err == sql.ErrNoRows {
		return account.ErrNotFound
	}
	return errors.Wrap(err, msg)
}

func (repo *accountRepository) CheckEmailUniqueness(ctx context.Context, email string, excluded ...account.Account) error {
	q := `SELECT EXISTS (SELECT 1 FROM account WHERE email = $1`
	args := []interface{}{email}
	if len(excluded) > 0 {
		ids := make([]string, 0, len(excluded))
		for _, a := range excluded {
			ids = append(ids, a.ID)
		}
		q += ` AND NOT (id = ANY($2))`
		args = append(args, pq.Array(ids))
	}
	q += `)`

	var exists bool
	if err := repo.db.GetContext(ctx, &exists, q, args...); err != nil {
		return errors.Wrap(err, "checking account uniqueness")
	}
	if exists {
		return account.ErrEmailExists
	}
	return nil
}

func (repo *accountRepository) CreateAccount(ctx context.Context, acct account.Account) (account.Account, error) {
	acct.ID = uuid.New().String()
	_, err := repo.db.ExecContext(ctx,
		`INSERT INTO account (id, email, is_admin, password_hash, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		acct.ID, acct.Email, acct.IsAdmin, acct.PasswordHash, acct.CreatedAt, acct.UpdatedAt,
	)
	if err != nil {
		return account.Account{}, errors.Wrap(err, "inserting account")
	}
	return acct, nil
}

func (repo *accountRepository) GetAccountByID(ctx context.Context, id string) (account.Account, error) {
	var row accountRow
	if err := repo.db.GetContext(ctx, &row, `SELECT * FROM account WHERE id = $1`, id); err != nil {
		return account.Account{}, trapNoRowsErr(err, "finding account by id")
	}
	return row.unpack(), nil
}

func (repo *accountRepository) GetAccountByEmail(ctx context.Context, email string) (account.Account, error) {
	var row accountRow
	if err := repo.db.GetContext(ctx, &row, `SELECT * FROM account WHERE email = $1`, email); err != nil {
		return account.Account{}, trapNoRowsErr(err, "finding account by email")
	}
	return row.unpack(), nil
}

func (repo *accountRepository) UpdateAccount(ctx context.Context, acct account.Account) (account.Account, error) {
	res, err := repo.db.ExecContext(ctx,
		`UPDATE account
		 SET email = $2, is_admin = $3, password_hash = $4, updated_at = $5, last_login = $6
		 WHERE id = $1`,
		acct.ID, acct.Email, acct.IsAdmin, acct.PasswordHash, acct.UpdatedAt,
		null.NewTime(acct.LastLogin, !acct.LastLogin.IsZero()),
	)
	if err != nil {
		return account.Account{}, errors.Wrap(err, "updating account")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return account.Account{}, account.ErrNotFound
	}
	return acct, nil
}
