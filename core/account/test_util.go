package account

import (
	"context"

	"github.com/apecharmilles/backend/core"
)

type serviceMock struct {
	service
}

// NewServiceMock sends the password reset mail synchronously so tests can
// inspect the outbox right away.
func NewServiceMock(repo Repository, mailSvc core.EmailService) Service {
	return &serviceMock{
		service: service{
			repo:    repo,
			mailSvc: mailSvc,
		},
	}
}

func (svc *serviceMock) RequestPasswordReset(ctx context.Context, email string) error {
	acct, err := svc.GetByEmail(ctx, email)
	if err != nil {
		return err
	}
	// run synchronously
	svc.sendPasswordResetMail(acct)
	return nil
}
