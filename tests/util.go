package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/volatiletech/null/v8"

	"github.com/apecharmilles/backend/core/account"
	"github.com/apecharmilles/backend/core/tombola"
)

func CreateAccount(
	t *testing.T,
	repo account.Repository,
	email, pwd string,
	isAdmin bool,
) account.Account {
	t.Helper()

	now := time.Now().UTC()
	acct := account.Account{
		Email:     email,
		IsAdmin:   isAdmin,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if pwd != "" {
		if err := acct.SetPassword(pwd); err != nil {
			t.Fatalf("CreateAccount() failed: %v", err)
		}
	}
	acct, err := repo.CreateAccount(context.Background(), acct)
	if err != nil {
		t.Fatalf("CreateAccount() failed: %v", err)
	}
	return acct
}

func CreateParticipant(
	t *testing.T,
	repo tombola.Repository,
	prenom, email, emoji, accountID string,
	classes ...string,
) tombola.Participant {
	t.Helper()

	p := tombola.Participant{
		Prenom:    prenom,
		Role:      "Parent",
		Classes:   classes,
		Emoji:     emoji,
		Email:     email,
		AccountID: accountID,
		CreatedAt: time.Now().UTC(),
	}
	p, err := repo.CreateParticipant(context.Background(), p)
	if err != nil {
		t.Fatalf("CreateParticipant() failed: %v", err)
	}
	return p
}

func CreateLot(
	t *testing.T,
	repo tombola.Repository,
	nom, parentID string,
) tombola.Lot {
	t.Helper()

	lot := tombola.Lot{
		Nom:       nom,
		Icone:     tombola.DefaultIcon,
		Statut:    tombola.StatusAvailable,
		ParentID:  parentID,
		CreatedAt: time.Now().UTC(),
	}
	lot, err := repo.CreateLot(context.Background(), lot)
	if err != nil {
		t.Fatalf("CreateLot() failed: %v", err)
	}
	return lot
}

// CreateReservedLot seeds a lot already held by reserverID.
func CreateReservedLot(
	t *testing.T,
	repo tombola.Repository,
	nom, parentID, reserverID string,
) tombola.Lot {
	t.Helper()

	lot := CreateLot(t, repo, nom, parentID)
	if err := repo.ReserveLot(context.Background(), lot.ID, reserverID); err != nil {
		t.Fatalf("CreateReservedLot() failed: %v", err)
	}
	lot.Statut = tombola.StatusReserved
	lot.ReservedBy = null.StringFrom(reserverID)
	return lot
}
