package main

import (
	"context"
	"time"

	"github.com/apecharmilles/backend/core"
	"github.com/apecharmilles/backend/core/account"
)

// createAdmin creates an admin account, or promotes an existing one.
func (cli *commandLine) createAdmin(email, pwd string) error {
	ctx := context.Background()
	email = core.CleanString(email, true /* lower */)

	acct, err := cli.acctRepo.GetAccountByEmail(ctx, email)
	if err != nil {
		if err != account.ErrNotFound {
			return err
		}
		now := time.Now().UTC()
		acct = account.Account{
			Email:     email,
			IsAdmin:   true,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := acct.SetPassword(pwd); err != nil {
			return err
		}
		_, err = cli.acctRepo.CreateAccount(ctx, acct)
		return err
	}

	acct.IsAdmin = true
	if err := acct.SetPassword(pwd); err != nil {
		return err
	}
	acct.UpdatedAt = time.Now().UTC()
	_, err = cli.acctRepo.UpdateAccount(ctx, acct)
	return err
}
