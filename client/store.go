package client

import (
	"context"
	"sync"
	"time"

	"github.com/volatiletech/null/v8"

	"github.com/apecharmilles/backend/core/tombola"
)

// LotStore caches the lot board. Mutations are applied locally first so the
// UI reflects them immediately, then sent to the server; any rejection
// discards the local state and replaces it wholesale from the server, which
// stays the single source of truth.
type LotStore struct {
	client *Client
	bus    *RefreshBus

	mu     sync.RWMutex
	lots   []tombola.Lot
	loaded bool
}

func NewLotStore(c *Client, bus *RefreshBus) *LotStore {
	return &LotStore{client: c, bus: bus}
}

// Load performs the blocking initial fetch.
func (s *LotStore) Load(ctx context.Context) error {
	return s.refetch(ctx)
}

// Watch refetches on every bus signal until ctx is cancelled.
func (s *LotStore) Watch(ctx context.Context) {
	signals := s.bus.Subscribe()
	for {
		select {
		case <-ctx.Done():
			return
		case <-signals:
			_ = s.refetch(ctx)
		}
	}
}

// Lots returns a snapshot; callers may not mutate the slice contents.
func (s *LotStore) Lots() []tombola.Lot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snapshot := make([]tombola.Lot, len(s.lots))
	copy(snapshot, s.lots)
	return snapshot
}

func (s *LotStore) Loaded() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loaded
}

func (s *LotStore) Get(lotID string) (tombola.Lot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, l := range s.lots {
		if l.ID == lotID {
			return l, true
		}
	}
	return tombola.Lot{}, false
}

// Reserve optimistically flips the lot to réservé, then asks the server. A
// rejection rolls the board back by refetching it.
func (s *LotStore) Reserve(ctx context.Context, lotID, reserverID string) error {
	s.patch(lotID, func(l *tombola.Lot) {
		l.Statut = tombola.StatusReserved
		l.ReservedBy = null.StringFrom(reserverID)
	})
	return s.reconcile(ctx, s.client.ReserveLot(ctx, lotID, reserverID))
}

func (s *LotStore) Release(ctx context.Context, lotID string) error {
	s.patch(lotID, func(l *tombola.Lot) {
		l.Statut = tombola.StatusAvailable
		l.ReservedBy = null.String{}
		l.Reserver = nil
	})
	return s.reconcile(ctx, s.client.CancelReservation(ctx, lotID))
}

func (s *LotStore) Deliver(ctx context.Context, lotID string) error {
	s.patch(lotID, func(l *tombola.Lot) { l.Statut = tombola.StatusDelivered })
	return s.reconcile(ctx, s.client.MarkRemis(ctx, lotID))
}

func (s *LotStore) Delete(ctx context.Context, lotID, parentID string) error {
	s.mu.Lock()
	kept := s.lots[:0:0]
	for _, l := range s.lots {
		if l.ID != lotID {
			kept = append(kept, l)
		}
	}
	s.lots = kept
	s.mu.Unlock()

	return s.reconcile(ctx, s.client.DeleteLot(ctx, lotID, parentID))
}

// Create has no meaningful optimistic shape (the server assigns the ID and
// timestamps), so it refetches on success like the other mutations.
func (s *LotStore) Create(ctx context.Context, nl tombola.NewLot) (string, error) {
	id, err := s.client.CreateLot(ctx, nl)
	if rErr := s.reconcile(ctx, err); rErr != nil {
		return "", rErr
	}
	return id, nil
}

func (s *LotStore) patch(lotID string, apply func(*tombola.Lot)) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.lots {
		if s.lots[i].ID == lotID {
			apply(&s.lots[i])
			return
		}
	}
}

// reconcile refetches the board in both outcomes: on failure to discard the
// optimistic patch, on success to pick up server-side fields, then fans the
// change out on the bus. The mutation error is returned as-is.
func (s *LotStore) reconcile(ctx context.Context, mutationErr error) error {
	if err := s.refetch(ctx); err == nil && mutationErr == nil {
		s.bus.Publish()
	}
	return mutationErr
}

func (s *LotStore) refetch(ctx context.Context) error {
	lots, err := s.client.ListLots(ctx)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.lots = lots
	s.loaded = true
	s.mu.Unlock()
	return nil
}

// ParticipantStore caches the public participant list. On top of bus signals
// it refetches on a fixed interval and whenever the app regains focus, since
// other families register from their own devices.
type ParticipantStore struct {
	client   *Client
	bus      *RefreshBus
	interval time.Duration

	mu           sync.RWMutex
	participants []tombola.Participant
}

func NewParticipantStore(c *Client, bus *RefreshBus, refreshInterval time.Duration) *ParticipantStore {
	return &ParticipantStore{client: c, bus: bus, interval: refreshInterval}
}

func (s *ParticipantStore) Load(ctx context.Context) error {
	return s.refetch(ctx)
}

// Watch refetches on bus signals and on the periodic ticker until ctx is
// cancelled.
func (s *ParticipantStore) Watch(ctx context.Context) {
	signals := s.bus.Subscribe()
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-signals:
			_ = s.refetch(ctx)
		case <-ticker.C:
			_ = s.refetch(ctx)
		}
	}
}

// Focus is the hook for the host application's "window regained focus"
// event.
func (s *ParticipantStore) Focus(ctx context.Context) {
	_ = s.refetch(ctx)
}

func (s *ParticipantStore) Participants() []tombola.Participant {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snapshot := make([]tombola.Participant, len(s.participants))
	copy(snapshot, s.participants)
	return snapshot
}

func (s *ParticipantStore) Register(ctx context.Context, np tombola.NewParticipant) (tombola.Participant, error) {
	p, err := s.client.CreateParticipant(ctx, np)
	if err != nil {
		_ = s.refetch(ctx)
		return tombola.Participant{}, err
	}

	s.mu.Lock()
	s.participants = append(s.participants, p)
	s.mu.Unlock()
	s.bus.Publish()
	return p, nil
}

func (s *ParticipantStore) Remove(ctx context.Context, participantID string) error {
	s.mu.Lock()
	kept := s.participants[:0:0]
	for _, p := range s.participants {
		if p.ID != participantID {
			kept = append(kept, p)
		}
	}
	s.participants = kept
	s.mu.Unlock()

	err := s.client.DeleteParticipant(ctx, participantID)
	if rErr := s.refetch(ctx); rErr == nil && err == nil {
		s.bus.Publish()
	}
	return err
}

func (s *ParticipantStore) refetch(ctx context.Context) error {
	participants, err := s.client.ListParticipants(ctx)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.participants = participants
	s.mu.Unlock()
	return nil
}
