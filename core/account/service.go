package account

import (
	"context"
	"errors"
	"net/mail"
	"time"

	"github.com/apecharmilles/backend/core"
)

var (
	// errors
	ErrNotFound    = errors.New("account not found")
	ErrEmailExists = errors.New("an account with this email already exists")
)

type (
	Repository interface {
		CheckEmailUniqueness(ctx context.Context, email string, excluded ...Account) error
		CreateAccount(ctx context.Context, acct Account) (Account, error)
		GetAccountByID(ctx context.Context, id string) (Account, error)
		GetAccountByEmail(ctx context.Context, email string) (Account, error)
		UpdateAccount(ctx context.Context, acct Account) (Account, error)
	}

	Service interface {
		Register(ctx context.Context, na NewAccount) (Account, error)
		GetByID(ctx context.Context, id string) (Account, error)
		GetByEmail(ctx context.Context, email string) (Account, error)
		CheckUniqueness(email string, excluded ...Account) error
		SetLastLogin(ctx context.Context, acct Account) (Account, error)
		UpdatePassword(ctx context.Context, acct Account, pwd string) (Account, error)
		RequestPasswordReset(ctx context.Context, email string) error
		ResetPassword(ctx context.Context, rp ResetAccountPassword) error
	}

	service struct {
		repo    Repository
		mailSvc core.EmailService
	}
)

var _ Service = (*service)(nil)

func NewService(repo Repository, mailSvc core.EmailService) Service {
	return &service{repo: repo, mailSvc: mailSvc}
}

func (svc *service) CheckUniqueness(email string, excluded ...Account) error {
	if err := svc.repo.CheckEmailUniqueness(context.Background(), email, excluded...); err != nil {
		if err == ErrEmailExists {
			return core.NewValidationError(err, core.FieldError{Field: "email", Error: err.Error()})
		}
		return err
	}
	return nil
}

func (svc *service) Register(ctx context.Context, na NewAccount) (Account, error) {
	now := time.Now().UTC()
	acct := Account{
		Email:     na.Email,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := acct.SetPassword(na.Password); err != nil {
		return Account{}, err
	}
	return svc.repo.CreateAccount(ctx, acct)
}

func (svc *service) GetByID(ctx context.Context, id string) (Account, error) {
	return svc.repo.GetAccountByID(ctx, id)
}

func (svc *service) GetByEmail(ctx context.Context, email string) (Account, error) {
	return svc.repo.GetAccountByEmail(ctx, core.CleanString(email, true /* lower */))
}

func (svc *service) SetLastLogin(ctx context.Context, acct Account) (Account, error) {
	acct.LastLogin = time.Now().UTC()
	return svc.repo.UpdateAccount(ctx, acct)
}

func (svc *service) UpdatePassword(ctx context.Context, acct Account, pwd string) (Account, error) {
	if err := acct.SetPassword(pwd); err != nil {
		return Account{}, err
	}
	acct.UpdatedAt = time.Now().UTC()
	return svc.repo.UpdateAccount(ctx, acct)
}

func (svc *service) RequestPasswordReset(ctx context.Context, email string) error {
	acct, err := svc.GetByEmail(ctx, email)
	if err != nil {
		return err
	}
	go svc.sendPasswordResetMail(acct)
	return nil
}

func (svc *service) sendPasswordResetMail(acct Account) {
	svc.mailSvc.SendMessages(&core.EmailMessage{
		To:           []mail.Address{{Address: acct.Email}},
		Subject:      "Réinitialisation de votre mot de passe",
		TemplateName: "password-reset",
		TemplateData: struct{ UID, Token string }{
			UID:   EncodeUID(acct),
			Token: makeToken(acct),
		},
	})
}

func (svc *service) ResetPassword(ctx context.Context, rp ResetAccountPassword) error {
	id, err := decodeUID(rp.UID)
	if err != nil {
		return core.NewValidationError(errInvalidToken)
	}
	acct, err := svc.repo.GetAccountByID(ctx, id)
	if err != nil {
		if err == ErrNotFound {
			return core.NewValidationError(errInvalidToken)
		}
		return err
	}
	if err = verifyToken(acct, rp.Token); err != nil {
		return core.NewValidationError(err)
	}
	if err = acct.SetPassword(rp.Password); err != nil {
		return err
	}
	acct.UpdatedAt = time.Now().UTC()
	_, err = svc.repo.UpdateAccount(ctx, acct)
	return err
}
