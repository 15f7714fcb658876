package inmemdb

import (
	"context"
	"sort"

	"github.com/google/uuid"
	"github.com/volatiletech/null/v8"

	"github.com/apecharmilles/backend/core/tombola"
)

type tombolaRepository struct {
	db *DB
}

var _ tombola.Repository = (*tombolaRepository)(nil)

func NewTombolaRepository(db *DB) tombola.Repository {
	return &tombolaRepository{db: db}
}

// Participants

func (repo *tombolaRepository) CreateParticipant(_ context.Context, p tombola.Participant) (tombola.Participant, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	p.ID = uuid.New().String()
	repo.db.participants[p.ID] = &p
	return p, nil
}

func (repo *tombolaRepository) QueryAllParticipants(_ context.Context) ([]tombola.Participant, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	parts := make([]tombola.Participant, 0, len(repo.db.participants))
	for _, p := range repo.db.participants {
		parts = append(parts, *p)
	}
	sort.Slice(parts, func(i, j int) bool { return parts[i].CreatedAt.After(parts[j].CreatedAt) })
	return parts, nil
}

func (repo *tombolaRepository) GetParticipantByID(_ context.Context, id string) (tombola.Participant, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if p, ok := repo.db.participants[id]; ok {
		return *p, nil
	}
	return tombola.Participant{}, tombola.ErrParticipantNotFound
}

func (repo *tombolaRepository) GetParticipantByEmail(_ context.Context, email string) (tombola.Participant, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	for _, p := range repo.db.participants {
		if p.Email == email {
			return *p, nil
		}
	}
	return tombola.Participant{}, tombola.ErrParticipantNotFound
}

func (repo *tombolaRepository) DeleteParticipant(_ context.Context, id string) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.participants[id]; !ok {
		return tombola.ErrParticipantNotFound
	}
	delete(repo.db.participants, id)

	// cascade: drop their lots, release their active reservations; delivered
	// lots only lose the reserver reference, same as the SQL store's
	// ON DELETE SET NULL
	for lotID, lot := range repo.db.lots {
		switch {
		case lot.ParentID == id:
			delete(repo.db.lots, lotID)
		case lot.ReservedBy.String == id && lot.Statut == tombola.StatusReserved:
			lot.Statut = tombola.StatusAvailable
			lot.ReservedBy = null.String{}
		case lot.ReservedBy.String == id:
			lot.ReservedBy = null.String{}
		}
	}
	return nil
}

// Lots

func (repo *tombolaRepository) CreateLot(_ context.Context, lot tombola.Lot) (tombola.Lot, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	lot.ID = uuid.New().String()
	repo.db.lots[lot.ID] = &lot
	return lot, nil
}

func (repo *tombolaRepository) QueryAllLots(_ context.Context) ([]tombola.Lot, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	lots := make([]tombola.Lot, 0, len(repo.db.lots))
	for _, lot := range repo.db.lots {
		lots = append(lots, repo.denormalize(*lot))
	}
	sort.Slice(lots, func(i, j int) bool { return lots[i].CreatedAt.After(lots[j].CreatedAt) })
	return lots, nil
}

func (repo *tombolaRepository) GetLotByID(_ context.Context, id string) (tombola.Lot, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if lot, ok := repo.db.lots[id]; ok {
		return repo.denormalize(*lot), nil
	}
	return tombola.Lot{}, tombola.ErrLotNotFound
}

func (repo *tombolaRepository) CountLotsByOwner(_ context.Context, ownerID string) (int, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	var n int
	for _, lot := range repo.db.lots {
		if lot.ParentID == ownerID {
			n++
		}
	}
	return n, nil
}

func (repo *tombolaRepository) CountReservationsBy(_ context.Context, participantID string) (int, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	var n int
	for _, lot := range repo.db.lots {
		if lot.Statut == tombola.StatusReserved && lot.ReservedBy.String == participantID {
			n++
		}
	}
	return n, nil
}

// ReserveLot checks and flips the status under the write lock, matching the
// conditional UPDATE of the SQL store: of two racing reservations exactly
// one wins.
func (repo *tombolaRepository) ReserveLot(_ context.Context, lotID, reserverID string) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	lot, ok := repo.db.lots[lotID]
	if !ok {
		return tombola.ErrLotNotFound
	}
	if lot.Statut != tombola.StatusAvailable {
		return tombola.ErrLotNotAvailable
	}
	lot.Statut = tombola.StatusReserved
	lot.ReservedBy = null.StringFrom(reserverID)
	return nil
}

func (repo *tombolaRepository) ReleaseLot(_ context.Context, lotID string) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	lot, ok := repo.db.lots[lotID]
	if !ok {
		return tombola.ErrLotNotFound
	}
	if lot.Statut != tombola.StatusReserved {
		return tombola.ErrLotNotReserved
	}
	lot.Statut = tombola.StatusAvailable
	lot.ReservedBy = null.String{}
	return nil
}

func (repo *tombolaRepository) DeliverLot(_ context.Context, lotID string) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	lot, ok := repo.db.lots[lotID]
	if !ok {
		return tombola.ErrLotNotFound
	}
	if lot.Statut != tombola.StatusReserved {
		return tombola.ErrLotNotReserved
	}
	lot.Statut = tombola.StatusDelivered
	return nil
}

func (repo *tombolaRepository) DeleteLot(_ context.Context, lotID string) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.lots[lotID]; !ok {
		return tombola.ErrLotNotFound
	}
	delete(repo.db.lots, lotID)
	return nil
}

// denormalize attaches the public owner/reserver display info. Caller holds
// at least the read lock.
func (repo *tombolaRepository) denormalize(lot tombola.Lot) tombola.Lot {
	if p, ok := repo.db.participants[lot.ParentID]; ok {
		actor := p.Actor()
		lot.Parent = &actor
	}
	if lot.ReservedBy.Valid {
		if p, ok := repo.db.participants[lot.ReservedBy.String]; ok {
			actor := p.Actor()
			lot.Reserver = &actor
		}
	}
	return lot
}
