package newsletter_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/apecharmilles/backend/core/newsletter"
	emailsvc "github.com/apecharmilles/backend/services/email"
	inmemdb "github.com/apecharmilles/backend/storage/database/inmem"
)

var ctx = context.Background()

func setup(t *testing.T) newsletter.Service {
	t.Helper()
	emailsvc.ClearSentMessages()
	repo := inmemdb.NewNewsletterRepository(inmemdb.NewDB())
	return newsletter.NewService(repo, emailsvc.NewConsoleServiceMock())
}

func subscribe(t *testing.T, svc newsletter.Service, firstName, email string) newsletter.Subscriber {
	t.Helper()
	sub, err := svc.Subscribe(ctx, newsletter.NewSubscription{FirstName: firstName, Email: email, Consent: true})
	require.NoError(t, err)
	return sub
}

func Test_newsletter_subscribe(t *testing.T) {
	svc := setup(t)

	sub := subscribe(t, svc, "Alexandra", "alex@test.fr")
	assert.True(t, sub.IsActive)
	assert.True(t, sub.Consent)

	t.Run("unsubscribe deactivates", func(t *testing.T) {
		require.NoError(t, svc.Unsubscribe(ctx, "alex@test.fr"))
		subs, err := svc.ListSubscribers(ctx)
		require.NoError(t, err)
		require.Len(t, subs, 1)
		assert.False(t, subs[0].IsActive)
	})

	t.Run("re-subscribing reactivates, no duplicate", func(t *testing.T) {
		again := subscribe(t, svc, "", "alex@test.fr")
		assert.Equal(t, sub.ID, again.ID)
		assert.True(t, again.IsActive)
		assert.Equal(t, "Alexandra", again.FirstName.String, "first name kept when omitted")

		subs, err := svc.ListSubscribers(ctx)
		require.NoError(t, err)
		assert.Len(t, subs, 1)
	})

	t.Run("unknown email", func(t *testing.T) {
		assert.Equal(t, newsletter.ErrSubscriberNotFound, svc.Unsubscribe(ctx, "nope@test.fr"))
	})
}

func Test_newsletter_send(t *testing.T) {
	svc := setup(t)

	subscribe(t, svc, "Alexandra", "alex@test.fr")
	subscribe(t, svc, "Benoît", "ben@test.fr")
	inactive := subscribe(t, svc, "Chloé", "chloe@test.fr")
	require.NoError(t, svc.Unsubscribe(ctx, inactive.Email))

	nl, err := svc.CreateNewsletter(ctx, newsletter.NewNewsletter{
		Title:   "Rentrée 2026",
		Subject: "Les nouvelles de la rentrée",
		Content: "<h1>Bonjour</h1><p>La <strong>tombola</strong> revient !</p>",
	})
	require.NoError(t, err)
	assert.Equal(t, newsletter.StatusDraft, nl.Status)

	sent, err := svc.Send(ctx, nl.ID)
	require.NoError(t, err)
	assert.Equal(t, newsletter.StatusSent, sent.Status)
	assert.True(t, sent.SentAt.Valid)
	assert.Equal(t, 2, sent.RecipientsCount, "inactive subscribers are skipped")

	require.Len(t, emailsvc.SentMessages, 2)
	msg := emailsvc.SentMessages[0]
	assert.Equal(t, "Les nouvelles de la rentrée", msg.Subject)
	assert.Contains(t, msg.TextContent, "**tombola**", "text alternative is markdown, not raw HTML")

	t.Run("already sent", func(t *testing.T) {
		_, err := svc.Send(ctx, nl.ID)
		assert.Equal(t, newsletter.ErrAlreadySent, err)

		_, err = svc.UpdateNewsletter(ctx, nl.ID, newsletter.NewNewsletter{
			Title: "x", Subject: "x", Content: "x",
		})
		assert.Equal(t, newsletter.ErrAlreadySent, err)
	})

	t.Run("sent newsletters can still be deleted", func(t *testing.T) {
		require.NoError(t, svc.DeleteNewsletter(ctx, nl.ID))
		_, err := svc.GetNewsletter(ctx, nl.ID)
		assert.Equal(t, newsletter.ErrNotFound, err)
	})
}

func Test_newsletter_updateDraft(t *testing.T) {
	svc := setup(t)

	nl, err := svc.CreateNewsletter(ctx, newsletter.NewNewsletter{
		Title: "Brouillon", Subject: "Sujet", Content: "<p>v1</p>",
	})
	require.NoError(t, err)

	upd, err := svc.UpdateNewsletter(ctx, nl.ID, newsletter.NewNewsletter{
		Title: "Brouillon", Subject: "Sujet", Content: "<p>v2</p>",
	})
	require.NoError(t, err)
	assert.Equal(t, "<p>v2</p>", upd.Content)
	assert.Equal(t, newsletter.StatusDraft, upd.Status)
}
