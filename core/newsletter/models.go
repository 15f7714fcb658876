package newsletter

import (
	"time"

	"github.com/volatiletech/null/v8"

	"github.com/apecharmilles/backend/core"
)

const (
	StatusDraft = "draft"
	StatusSent  = "sent"
)

type (
	Subscriber struct {
		ID        string      `json:"id"`
		FirstName null.String `json:"first_name"`
		Email     string      `json:"email"`
		Consent   bool        `json:"consent"`
		IsActive  bool        `json:"is_active"`
		CreatedAt time.Time   `json:"created_at"` // UTC
		UpdatedAt time.Time   `json:"updated_at"` // UTC
	}

	Newsletter struct {
		ID              string    `json:"id"`
		Title           string    `json:"title"`
		Subject         string    `json:"subject"`
		Content         string    `json:"content"` // HTML authored in the admin editor
		Status          string    `json:"status"`  // draft | sent
		SentAt          null.Time `json:"sent_at"`
		RecipientsCount int       `json:"recipients_count"`
		CreatedAt       time.Time `json:"created_at"` // UTC
		UpdatedAt       time.Time `json:"updated_at"` // UTC
	}
)

func (n Newsletter) IsSent() bool { return n.Status == StatusSent }

// NewSubscription is the public opt-in form. Consent must be explicitly
// checked; a zero bool fails `required`.
type NewSubscription struct {
	FirstName string `json:"first_name" validate:"omitempty,max=50"`
	Email     string `json:"email" validate:"required,email"`
	Consent   bool   `json:"consent" validate:"required"`
}

func (ns *NewSubscription) Validate() error {
	ns.FirstName = core.CleanString(ns.FirstName)
	ns.Email = core.CleanString(ns.Email, true /* lower */)
	return core.Validate.Struct(ns)
}

// NewNewsletter contains information needed to draft a Newsletter.
type NewNewsletter struct {
	Title   string `json:"title" validate:"required,max=200"`
	Subject string `json:"subject" validate:"required,max=200"`
	Content string `json:"content" validate:"required"`
}

func (nn *NewNewsletter) Validate() error {
	nn.Title = core.CleanString(nn.Title)
	nn.Subject = core.CleanString(nn.Subject)
	return core.Validate.Struct(nn)
}
