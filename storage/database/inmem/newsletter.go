package inmemdb

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"github.com/apecharmilles/backend/core/newsletter"
)

type newsletterRepository struct {
	db *DB
}

var _ newsletter.Repository = (*newsletterRepository)(nil)

func NewNewsletterRepository(db *DB) newsletter.Repository {
	return &newsletterRepository{db: db}
}

// Subscribers

func (repo *newsletterRepository) CreateSubscriber(_ context.Context, sub newsletter.Subscriber) (newsletter.Subscriber, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	sub.ID = uuid.New().String()
	repo.db.subscribers[sub.ID] = &sub
	return sub, nil
}

func (repo *newsletterRepository) QueryAllSubscribers(_ context.Context) ([]newsletter.Subscriber, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()
	return repo.querySubscribers(func(newsletter.Subscriber) bool { return true }), nil
}

func (repo *newsletterRepository) QueryActiveSubscribers(_ context.Context) ([]newsletter.Subscriber, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()
	return repo.querySubscribers(func(s newsletter.Subscriber) bool { return s.IsActive && s.Consent }), nil
}

func (repo *newsletterRepository) querySubscribers(keep func(newsletter.Subscriber) bool) []newsletter.Subscriber {
	subs := make([]newsletter.Subscriber, 0, len(repo.db.subscribers))
	for _, s := range repo.db.subscribers {
		if keep(*s) {
			subs = append(subs, *s)
		}
	}
	sort.Slice(subs, func(i, j int) bool { return subs[i].CreatedAt.After(subs[j].CreatedAt) })
	return subs
}

func (repo *newsletterRepository) GetSubscriberByID(_ context.Context, id string) (newsletter.Subscriber, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if sub, ok := repo.db.subscribers[id]; ok {
		return *sub, nil
	}
	return newsletter.Subscriber{}, newsletter.ErrSubscriberNotFound
}

func (repo *newsletterRepository) GetSubscriberByEmail(_ context.Context, email string) (newsletter.Subscriber, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	for _, sub := range repo.db.subscribers {
		if sub.Email == email {
			return *sub, nil
		}
	}
	return newsletter.Subscriber{}, newsletter.ErrSubscriberNotFound
}

func (repo *newsletterRepository) UpdateSubscriber(_ context.Context, sub newsletter.Subscriber) (newsletter.Subscriber, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.subscribers[sub.ID]; !ok {
		return newsletter.Subscriber{}, newsletter.ErrSubscriberNotFound
	}
	repo.db.subscribers[sub.ID] = &sub
	return sub, nil
}

func (repo *newsletterRepository) DeleteSubscriber(_ context.Context, id string) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.subscribers[id]; !ok {
		return newsletter.ErrSubscriberNotFound
	}
	delete(repo.db.subscribers, id)
	return nil
}

// Newsletters

func (repo *newsletterRepository) CreateNewsletter(_ context.Context, nl newsletter.Newsletter) (newsletter.Newsletter, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	nl.ID = uuid.New().String()
	repo.db.newsletters[nl.ID] = &nl
	return nl, nil
}

func (repo *newsletterRepository) QueryAllNewsletters(_ context.Context) ([]newsletter.Newsletter, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	nls := make([]newsletter.Newsletter, 0, len(repo.db.newsletters))
	for _, nl := range repo.db.newsletters {
		nls = append(nls, *nl)
	}
	sort.Slice(nls, func(i, j int) bool { return nls[i].CreatedAt.After(nls[j].CreatedAt) })
	return nls, nil
}

func (repo *newsletterRepository) GetNewsletterByID(_ context.Context, id string) (newsletter.Newsletter, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if nl, ok := repo.db.newsletters[id]; ok {
		return *nl, nil
	}
	return newsletter.Newsletter{}, newsletter.ErrNotFound
}

func (repo *newsletterRepository) UpdateNewsletter(_ context.Context, nl newsletter.Newsletter) (newsletter.Newsletter, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.newsletters[nl.ID]; !ok {
		return newsletter.Newsletter{}, newsletter.ErrNotFound
	}
	repo.db.newsletters[nl.ID] = &nl
	return nl, nil
}

func (repo *newsletterRepository) DeleteNewsletter(_ context.Context, id string) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.newsletters[id]; !ok {
		return newsletter.ErrNotFound
	}
	delete(repo.db.newsletters, id)
	return nil
}
