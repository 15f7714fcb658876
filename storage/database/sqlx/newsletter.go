package sqlxrepos

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/apecharmilles/backend/core/newsletter"
)

type (
	subscriberRow struct {
		ID        string      `db:"id"`
		FirstName null.String `db:"first_name"`
		Email     string      `db:"email"`
		Consent   bool        `db:"consent"`
		IsActive  bool        `db:"is_active"`
		CreatedAt null.Time   `db:"created_at"`
		UpdatedAt null.Time   `db:"updated_at"`
	}

	newsletterRow struct {
		ID              string    `db:"id"`
		Title           string    `db:"title"`
		Subject         string    `db:"subject"`
		Content         string    `db:"content"`
		Status          string    `db:"status"`
		SentAt          null.Time `db:"sent_at"`
		RecipientsCount int       `db:"recipients_count"`
		CreatedAt       null.Time `db:"created_at"`
		UpdatedAt       null.Time `db:"updated_at"`
	}
)

func (r subscriberRow) unpack() newsletter.Subscriber {
	return newsletter.Subscriber{
		ID:        r.ID,
		FirstName: r.FirstName,
		Email:     r.Email,
		Consent:   r.Consent,
		IsActive:  r.IsActive,
		CreatedAt: r.CreatedAt.Time,
		UpdatedAt: r.UpdatedAt.Time,
	}
}

func (r newsletterRow) unpack() newsletter.Newsletter {
	return newsletter.Newsletter{
		ID:              r.ID,
		Title:           r.Title,
		Subject:         r.Subject,
		Content:         r.Content,
		Status:          r.Status,
		SentAt:          r.SentAt,
		RecipientsCount: r.RecipientsCount,
		CreatedAt:       r.CreatedAt.Time,
		UpdatedAt:       r.UpdatedAt.Time,
	}
}

type newsletterRepository struct {
	db *sqlx.DB
}

var _ newsletter.Repository = (*newsletterRepository)(nil)

func NewNewsletterRepository(db *sqlx.DB) newsletter.Repository {
	return &newsletterRepository{db: db}
}

// Subscribers

func (repo *newsletterRepository) CreateSubscriber(ctx context.Context, sub newsletter.Subscriber) (newsletter.Subscriber, error) {
	sub.ID = uuid.New().String()
	_, err := repo.db.ExecContext(ctx,
		`INSERT INTO newsletter_subscriber (id, first_name, email, consent, is_active, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		sub.ID, sub.FirstName, sub.Email, sub.Consent, sub.IsActive, sub.CreatedAt, sub.UpdatedAt,
	)
	if err != nil {
		return newsletter.Subscriber{}, errors.Wrap(err, "inserting subscriber")
	}
	return sub, nil
}

func (repo *newsletterRepository) QueryAllSubscribers(ctx context.Context) ([]newsletter.Subscriber, error) {
	return repo.querySubscribers(ctx, `SELECT * FROM newsletter_subscriber ORDER BY created_at DESC`)
}

func (repo *newsletterRepository) QueryActiveSubscribers(ctx context.Context) ([]newsletter.Subscriber, error) {
	return repo.querySubscribers(ctx,
		`SELECT * FROM newsletter_subscriber WHERE is_active AND consent ORDER BY created_at DESC`)
}

func (repo *newsletterRepository) querySubscribers(ctx context.Context, query string) ([]newsletter.Subscriber, error) {
	var rows []subscriberRow
	if err := repo.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, errors.Wrap(err, "querying subscribers")
	}
	subs := make([]newsletter.Subscriber, 0, len(rows))
	for _, r := range rows {
		subs = append(subs, r.unpack())
	}
	return subs, nil
}

func (repo *newsletterRepository) GetSubscriberByID(ctx context.Context, id string) (newsletter.Subscriber, error) {
	var row subscriberRow
	if err := repo.db.GetContext(ctx, &row, `SELECT * FROM newsletter_subscriber WHERE id = $1`, id); err != nil {
		if err == sql.ErrNoRows {
			return newsletter.Subscriber{}, newsletter.ErrSubscriberNotFound
		}
		return newsletter.Subscriber{}, errors.Wrap(err, "finding subscriber by id")
	}
	return row.unpack(), nil
}

func (repo *newsletterRepository) GetSubscriberByEmail(ctx context.Context, email string) (newsletter.Subscriber, error) {
	var row subscriberRow
	if err := repo.db.GetContext(ctx, &row, `SELECT * FROM newsletter_subscriber WHERE email = $1`, email); err != nil {
		if err == sql.ErrNoRows {
			return newsletter.Subscriber{}, newsletter.ErrSubscriberNotFound
		}
		return newsletter.Subscriber{}, errors.Wrap(err, "finding subscriber by email")
	}
	return row.unpack(), nil
}

func (repo *newsletterRepository) UpdateSubscriber(ctx context.Context, sub newsletter.Subscriber) (newsletter.Subscriber, error) {
	res, err := repo.db.ExecContext(ctx,
		`UPDATE newsletter_subscriber
		 SET first_name = $2, email = $3, consent = $4, is_active = $5, updated_at = $6
		 WHERE id = $1`,
		sub.ID, sub.FirstName, sub.Email, sub.Consent, sub.IsActive, sub.UpdatedAt,
	)
	if err != nil {
		return newsletter.Subscriber{}, errors.Wrap(err, "updating subscriber")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return newsletter.Subscriber{}, newsletter.ErrSubscriberNotFound
	}
	return sub, nil
}

func (repo *newsletterRepository) DeleteSubscriber(ctx context.Context, id string) error {
	res, err := repo.db.ExecContext(ctx, `DELETE FROM newsletter_subscriber WHERE id = $1`, id)
	if err != nil {
		return errors.Wrap(err, "deleting subscriber")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return newsletter.ErrSubscriberNotFound
	}
	return nil
}

// Newsletters

func (repo *newsletterRepository) CreateNewsletter(ctx context.Context, nl newsletter.Newsletter) (newsletter.Newsletter, error) {
	nl.ID = uuid.New().String()
	_, err := repo.db.ExecContext(ctx,
		`INSERT INTO newsletter (id, title, subject, content, status, recipients_count, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		nl.ID, nl.Title, nl.Subject, nl.Content, nl.Status, nl.RecipientsCount, nl.CreatedAt, nl.UpdatedAt,
	)
	if err != nil {
		return newsletter.Newsletter{}, errors.Wrap(err, "inserting newsletter")
	}
	return nl, nil
}

func (repo *newsletterRepository) QueryAllNewsletters(ctx context.Context) ([]newsletter.Newsletter, error) {
	var rows []newsletterRow
	if err := repo.db.SelectContext(ctx, &rows, `SELECT * FROM newsletter ORDER BY created_at DESC`); err != nil {
		return nil, errors.Wrap(err, "querying newsletters")
	}
	nls := make([]newsletter.Newsletter, 0, len(rows))
	for _, r := range rows {
		nls = append(nls, r.unpack())
	}
	return nls, nil
}

func (repo *newsletterRepository) GetNewsletterByID(ctx context.Context, id string) (newsletter.Newsletter, error) {
	var row newsletterRow
	if err := repo.db.GetContext(ctx, &row, `SELECT * FROM newsletter WHERE id = $1`, id); err != nil {
		if err == sql.ErrNoRows {
			return newsletter.Newsletter{}, newsletter.ErrNotFound
		}
		return newsletter.Newsletter{}, errors.Wrap(err, "finding newsletter by id")
	}
	return row.unpack(), nil
}

func (repo *newsletterRepository) UpdateNewsletter(ctx context.Context, nl newsletter.Newsletter) (newsletter.Newsletter, error) {
	res, err := repo.db.ExecContext(ctx,
		`UPDATE newsletter
		 SET title = $2, subject = $3, content = $4, status = $5, sent_at = $6, recipients_count = $7, updated_at = $8
		 WHERE id = $1`,
		nl.ID, nl.Title, nl.Subject, nl.Content, nl.Status, nl.SentAt, nl.RecipientsCount, nl.UpdatedAt,
	)
	if err != nil {
		return newsletter.Newsletter{}, errors.Wrap(err, "updating newsletter")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return newsletter.Newsletter{}, newsletter.ErrNotFound
	}
	return nl, nil
}

func (repo *newsletterRepository) DeleteNewsletter(ctx context.Context, id string) error {
	res, err := repo.db.ExecContext(ctx, `DELETE FROM newsletter WHERE id = $1`, id)
	if err != nil {
		return errors.Wrap(err, "deleting newsletter")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return newsletter.ErrNotFound
	}
	return nil
}
