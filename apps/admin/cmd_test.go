package main

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"testing"

	"github.com/apecharmilles/backend/core/account"
	inmemdb "github.com/apecharmilles/backend/storage/database/inmem"
	testutil "github.com/apecharmilles/backend/tests"
)

var acctRepo account.Repository

func setup(t *testing.T) *commandLine {
	acctRepo = inmemdb.NewAccountRepository(inmemdb.NewDB())
	return &commandLine{
		acctRepo: acctRepo,
	}
}

type cliTest struct {
	name       string
	args       []string // without program name
	wantErr    error
	wantErrStr string
	extra      interface{}
}

func Test_commandLine_migrate(t *testing.T) {
	cli := setup(t)

	gooseRunFunc = func(command string, db *sql.DB, args ...string) error {
		switch command {
		case "up", "up-by-one", "down", "fix", "redo", "reset", "status", "version": // pass
		case "up-to", "down-to":
			if len(args) == 0 {
				return fmt.Errorf("%s requires a VERSION argument", command)
			}
			if _, err := strconv.ParseInt(args[0], 10, 64); err != nil {
				return fmt.Errorf("version must be a number (got '%s')", args[0])
			}
		case "create":
			if len(args) == 0 {
				return fmt.Errorf("create requires a NAME argument")
			}
		default:
			return fmt.Errorf("%q: no such command", command)
		}
		return nil
	}

	tests := []cliTest{
		{name: "no subcommand", args: []string{"migrate"}, wantErr: errHelp},
		{name: "unknown subcommand", args: []string{"migrate", "lol"}, wantErrStr: "\"lol\": no such command"},
		{name: "up-to: no args", args: []string{"migrate", "up-to"}, wantErrStr: "up-to requires a VERSION argument"},
		{name: "up-to: non-int arg", args: []string{"migrate", "up-to", "lol"}, wantErrStr: "version must be a number (got 'lol')"},
		{name: "create: no args", args: []string{"migrate", "create"}, wantErrStr: "create requires a NAME argument"},
		{name: "down-to: no args", args: []string{"migrate", "down-to"}, wantErrStr: "down-to requires a VERSION argument"},
		{name: "up", args: []string{"migrate", "up"}},
		{name: "up-by-one", args: []string{"migrate", "up-by-one"}},
		{name: "up-to", args: []string{"migrate", "up-to", "2"}},
		{name: "down", args: []string{"migrate", "down"}},
		{name: "down-to", args: []string{"migrate", "down-to", "1"}},
		{name: "redo", args: []string{"migrate", "redo"}},
		{name: "reset", args: []string{"migrate", "reset"}},
		{name: "status", args: []string{"migrate", "status"}},
		{name: "version", args: []string{"migrate", "version"}},
		{name: "create", args: []string{"migrate", "create", "lot", "sql"}},
		{name: "fix", args: []string{"migrate", "fix"}},
	}
	for _, tt := range tests {
		args := append([]string{"admin"}, tt.args...)

		t.Run(tt.name, func(t *testing.T) {
			if err := cli.run(args); err != nil {
				if tt.wantErr != nil {
					if err != tt.wantErr {
						t.Errorf("cli.run() error = %v, wantErr %v", err, tt.wantErr)
					}
				} else if tt.wantErrStr != "" {
					if err.Error() != tt.wantErrStr {
						t.Errorf("cli.run() error.Error() = %s, wantErrStr %s", err.Error(), tt.wantErrStr)
					}
				} else {
					t.Errorf("cli.run() unexpected error = %v", err)
				}
			}
		})
	}
}

func Test_commandLine_resetPassword(t *testing.T) {
	cli := setup(t)

	acct := testutil.CreateAccount(t, acctRepo, "alex@test.fr", "mdr", false)

	type extra struct {
		pwd string
	}
	tests := []cliTest{
		{name: "no command", wantErr: errHelp},
		{name: "unknown command", args: []string{"lol"}, wantErr: errHelp},
		{name: "no args", args: []string{"resetpassword"}, wantErr: errHelp},
		{name: "email but no password", args: []string{"resetpassword", "-email", "lol@test.fr"}, wantErr: errHelp},
		{name: "account not found", args: []string{"resetpassword", "-email", "lol@test.fr"}, extra: extra{pwd: "lol"}, wantErr: account.ErrNotFound},
		{name: "reset", args: []string{"resetpassword", "-email", acct.Email}, extra: extra{pwd: "lol"}},
		{name: "email is case-insensitive", args: []string{"resetpassword", "-email", "Alex@Test.fr"}, extra: extra{pwd: "lmao"}},
	}
	for _, tt := range tests {
		args := append([]string{"admin"}, tt.args...)

		readPasswordFunc = func(fd int) ([]byte, error) {
			if extra, ok := tt.extra.(extra); ok {
				return []byte(extra.pwd), nil
			}
			return nil, nil
		}

		t.Run(tt.name, func(t *testing.T) {
			err := cli.run(args)
			if err == nil {
				refreshed, err := acctRepo.GetAccountByID(context.Background(), acct.ID)
				if err != nil {
					t.Fatalf("GetAccountByID() failed: %v", err)
				}
				if bytes.Equal(refreshed.PasswordHash, acct.PasswordHash) {
					t.Error("failed to update new password")
				}
			} else if err != tt.wantErr {
				t.Errorf("cli.run() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func Test_commandLine_createAdmin(t *testing.T) {
	cli := setup(t)

	existing := testutil.CreateAccount(t, acctRepo, "parent@test.fr", "mdr", false)

	readPasswordFunc = func(fd int) ([]byte, error) { return []byte("Secr3tStuff"), nil }

	t.Run("creates a fresh admin", func(t *testing.T) {
		if err := cli.run([]string{"admin", "createadmin", "-email", "Admin@Test.fr"}); err != nil {
			t.Fatalf("cli.run() unexpected error = %v", err)
		}
		acct, err := acctRepo.GetAccountByEmail(context.Background(), "admin@test.fr")
		if err != nil {
			t.Fatalf("GetAccountByEmail() failed: %v", err)
		}
		if !acct.IsAdmin {
			t.Error("account was not created as admin")
		}
		if err := acct.CheckPassword("Secr3tStuff"); err != nil {
			t.Error("password was not set")
		}
	})

	t.Run("promotes an existing account", func(t *testing.T) {
		if err := cli.run([]string{"admin", "createadmin", "-email", existing.Email}); err != nil {
			t.Fatalf("cli.run() unexpected error = %v", err)
		}
		acct, err := acctRepo.GetAccountByID(context.Background(), existing.ID)
		if err != nil {
			t.Fatalf("GetAccountByID() failed: %v", err)
		}
		if !acct.IsAdmin {
			t.Error("account was not promoted to admin")
		}
	})
}
