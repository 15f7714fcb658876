package newsletter

import (
	"context"
	"errors"
	"html/template"
	"net/mail"
	"time"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/volatiletech/null/v8"

	"github.com/apecharmilles/backend/core"
)

var (
	// errors
	ErrNotFound           = errors.New("newsletter not found")
	ErrSubscriberNotFound = errors.New("subscriber not found")
	ErrAlreadySent        = errors.New("newsletter has already been sent")
)

type (
	Repository interface {
		CreateSubscriber(ctx context.Context, sub Subscriber) (Subscriber, error)
		QueryAllSubscribers(ctx context.Context) ([]Subscriber, error)
		QueryActiveSubscribers(ctx context.Context) ([]Subscriber, error)
		GetSubscriberByID(ctx context.Context, id string) (Subscriber, error)
		GetSubscriberByEmail(ctx context.Context, email string) (Subscriber, error)
		UpdateSubscriber(ctx context.Context, sub Subscriber) (Subscriber, error)
		DeleteSubscriber(ctx context.Context, id string) error

		CreateNewsletter(ctx context.Context, nl Newsletter) (Newsletter, error)
		QueryAllNewsletters(ctx context.Context) ([]Newsletter, error)
		GetNewsletterByID(ctx context.Context, id string) (Newsletter, error)
		UpdateNewsletter(ctx context.Context, nl Newsletter) (Newsletter, error)
		DeleteNewsletter(ctx context.Context, id string) error
	}

	Service interface {
		Subscribe(ctx context.Context, ns NewSubscription) (Subscriber, error)
		Unsubscribe(ctx context.Context, email string) error
		ListSubscribers(ctx context.Context) ([]Subscriber, error)
		SetSubscriberActive(ctx context.Context, id string, active bool) (Subscriber, error)
		DeleteSubscriber(ctx context.Context, id string) error

		ListNewsletters(ctx context.Context) ([]Newsletter, error)
		GetNewsletter(ctx context.Context, id string) (Newsletter, error)
		CreateNewsletter(ctx context.Context, nn NewNewsletter) (Newsletter, error)
		UpdateNewsletter(ctx context.Context, id string, nn NewNewsletter) (Newsletter, error)
		DeleteNewsletter(ctx context.Context, id string) error
		Send(ctx context.Context, id string) (Newsletter, error)
	}

	service struct {
		repo     Repository
		mailSvc  core.EmailService
		htmlConv *md.Converter
	}
)

var _ Service = (*service)(nil)

func NewService(repo Repository, mailSvc core.EmailService) Service {
	return &service{
		repo:     repo,
		mailSvc:  mailSvc,
		htmlConv: md.NewConverter("", true, nil),
	}
}

// Subscribers

func (svc *service) Subscribe(ctx context.Context, ns NewSubscription) (Subscriber, error) {
	// re-subscribing reactivates the existing record instead of duplicating it
	if sub, err := svc.repo.GetSubscriberByEmail(ctx, ns.Email); err == nil {
		sub.IsActive = true
		sub.Consent = true
		if ns.FirstName != "" {
			sub.FirstName = null.StringFrom(ns.FirstName)
		}
		sub.UpdatedAt = time.Now().UTC()
		return svc.repo.UpdateSubscriber(ctx, sub)
	} else if err != ErrSubscriberNotFound {
		return Subscriber{}, err
	}

	now := time.Now().UTC()
	sub := Subscriber{
		FirstName: null.NewString(ns.FirstName, ns.FirstName != ""),
		Email:     ns.Email,
		Consent:   true,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	return svc.repo.CreateSubscriber(ctx, sub)
}

func (svc *service) Unsubscribe(ctx context.Context, email string) error {
	sub, err := svc.repo.GetSubscriberByEmail(ctx, core.CleanString(email, true /* lower */))
	if err != nil {
		return err
	}
	sub.IsActive = false
	sub.UpdatedAt = time.Now().UTC()
	_, err = svc.repo.UpdateSubscriber(ctx, sub)
	return err
}

func (svc *service) ListSubscribers(ctx context.Context) ([]Subscriber, error) {
	return svc.repo.QueryAllSubscribers(ctx)
}

func (svc *service) SetSubscriberActive(ctx context.Context, id string, active bool) (Subscriber, error) {
	sub, err := svc.repo.GetSubscriberByID(ctx, id)
	if err != nil {
		return Subscriber{}, err
	}
	sub.IsActive = active
	sub.UpdatedAt = time.Now().UTC()
	return svc.repo.UpdateSubscriber(ctx, sub)
}

func (svc *service) DeleteSubscriber(ctx context.Context, id string) error {
	return svc.repo.DeleteSubscriber(ctx, id)
}

// Newsletters

func (svc *service) ListNewsletters(ctx context.Context) ([]Newsletter, error) {
	return svc.repo.QueryAllNewsletters(ctx)
}

func (svc *service) GetNewsletter(ctx context.Context, id string) (Newsletter, error) {
	return svc.repo.GetNewsletterByID(ctx, id)
}

func (svc *service) CreateNewsletter(ctx context.Context, nn NewNewsletter) (Newsletter, error) {
	now := time.Now().UTC()
	nl := Newsletter{
		Title:     nn.Title,
		Subject:   nn.Subject,
		Content:   nn.Content,
		Status:    StatusDraft,
		CreatedAt: now,
		UpdatedAt: now,
	}
	return svc.repo.CreateNewsletter(ctx, nl)
}

func (svc *service) UpdateNewsletter(ctx context.Context, id string, nn NewNewsletter) (Newsletter, error) {
	nl, err := svc.repo.GetNewsletterByID(ctx, id)
	if err != nil {
		return Newsletter{}, err
	}
	if nl.IsSent() {
		return Newsletter{}, ErrAlreadySent
	}
	nl.Title = nn.Title
	nl.Subject = nn.Subject
	nl.Content = nn.Content
	nl.UpdatedAt = time.Now().UTC()
	return svc.repo.UpdateNewsletter(ctx, nl)
}

func (svc *service) DeleteNewsletter(ctx context.Context, id string) error {
	return svc.repo.DeleteNewsletter(ctx, id)
}

// Send broadcasts the newsletter to every active subscriber and marks it
// sent. Delivery is fire-and-forget per recipient; the email service fans
// the batch out concurrently.
func (svc *service) Send(ctx context.Context, id string) (Newsletter, error) {
	nl, err := svc.repo.GetNewsletterByID(ctx, id)
	if err != nil {
		return Newsletter{}, err
	}
	if nl.IsSent() {
		return Newsletter{}, ErrAlreadySent
	}

	subs, err := svc.repo.QueryActiveSubscribers(ctx)
	if err != nil {
		return Newsletter{}, err
	}

	svc.mailSvc.SendMessages(svc.buildMessages(nl, subs)...)

	nl.Status = StatusSent
	nl.SentAt = null.TimeFrom(time.Now().UTC())
	nl.RecipientsCount = len(subs)
	nl.UpdatedAt = nl.SentAt.Time
	return svc.repo.UpdateNewsletter(ctx, nl)
}

func (svc *service) buildMessages(nl Newsletter, subs []Subscriber) []*core.EmailMessage {
	// readable text/plain alternative derived from the authored HTML
	textBody, err := svc.htmlConv.ConvertString(nl.Content)
	if err != nil {
		textBody = nl.Content
	}

	msgs := make([]*core.EmailMessage, 0, len(subs))
	for _, sub := range subs {
		msgs = append(msgs, &core.EmailMessage{
			To:           []mail.Address{{Name: sub.FirstName.String, Address: sub.Email}},
			Subject:      nl.Subject,
			BodyStr:      textBody,
			TemplateName: "newsletter",
			TemplateData: NewsletterMailData{
				Title:     nl.Title,
				FirstName: sub.FirstName.String,
				Content:   template.HTML(nl.Content),
			},
		})
	}
	return msgs
}

// NewsletterMailData feeds the newsletter email template. Content passes
// through unescaped: it is admin-authored HTML, not subscriber input.
type NewsletterMailData struct {
	Title     string
	FirstName string
	Content   template.HTML
}
