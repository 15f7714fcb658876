package account

import (
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/apecharmilles/backend/core"
)

// Account is a family login for the tombola space. A single account may
// register one or more participants (e.g. both parents of a family).
type Account struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	IsAdmin      bool      `json:"is_admin"`
	PasswordHash []byte    `json:"-"`
	CreatedAt    time.Time `json:"created_at"` // UTC
	UpdatedAt    time.Time `json:"updated_at"` // UTC
	LastLogin    time.Time `json:"last_login"` // UTC
}

func (a *Account) SetPassword(pwd string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(pwd), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	a.PasswordHash = hash
	return nil
}

func (a *Account) CheckPassword(pwd string) error {
	return bcrypt.CompareHashAndPassword(a.PasswordHash, []byte(pwd))
}

// NewAccount contains information needed to register a new Account.
type NewAccount struct {
	Email           string `json:"email" validate:"required,email"`
	Password        string `json:"password" validate:"required,min=8"`
	PasswordConfirm string `json:"password_confirm" validate:"required,eqfield=Password"`
}

func (na *NewAccount) Validate(svc Service) error {
	na.Email = core.CleanString(na.Email, true /* lower */)

	if err := core.Validate.Struct(na); err != nil {
		return err
	}
	return svc.CheckUniqueness(na.Email)
}

type ResetAccountPassword struct {
	Token           string `json:"token,omitempty" validate:"required"`
	UID             string `json:"uid,omitempty" validate:"required"`
	Password        string `json:"password,omitempty" validate:"required,min=8"`
	PasswordConfirm string `json:"password_confirm,omitempty" validate:"required,eqfield=Password"`
}

func (rp ResetAccountPassword) Validate() error { return core.Validate.Struct(rp) }
