package tombola

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/volatiletech/null/v8"

	"github.com/apecharmilles/backend/core"
)

var (
	// errors
	ErrLotNotFound         = errors.New("lot not found")
	ErrParticipantNotFound = errors.New("participant not found")
	ErrNotOwner            = errors.New("only the lot owner may perform this action")
	ErrNotParticipantOwner = errors.New("only the registering account may remove this participant")
	ErrOwnLot              = errors.New("a lot cannot be reserved by its owner")
	ErrLotNotAvailable     = errors.New("lot is no longer available")
	ErrLotNotReserved      = errors.New("lot is not reserved")
	ErrEmailTaken          = errors.New("this email is already registered")
	ErrLotLimitReached     = errors.New("lot limit reached for this participant")
	ErrReservationLimit    = errors.New("reservation limit reached for this participant")
)

type (
	// Repository persists participants and lots.
	//
	// ReserveLot, ReleaseLot and DeliverLot must apply their status guard and
	// the write atomically (conditional update): this is the only concurrency
	// control between racing clients, so a lost race must surface as
	// ErrLotNotAvailable / ErrLotNotReserved rather than clobbering state.
	Repository interface {
		CreateParticipant(ctx context.Context, p Participant) (Participant, error)
		QueryAllParticipants(ctx context.Context) ([]Participant, error)
		GetParticipantByID(ctx context.Context, id string) (Participant, error)
		GetParticipantByEmail(ctx context.Context, email string) (Participant, error)
		// DeleteParticipant removes the participant, their lots, and releases
		// any reservations they hold, atomically.
		DeleteParticipant(ctx context.Context, id string) error

		CreateLot(ctx context.Context, lot Lot) (Lot, error)
		QueryAllLots(ctx context.Context) ([]Lot, error)
		GetLotByID(ctx context.Context, id string) (Lot, error)
		CountLotsByOwner(ctx context.Context, ownerID string) (int, error)
		CountReservationsBy(ctx context.Context, participantID string) (int, error)
		ReserveLot(ctx context.Context, lotID, reserverID string) error
		ReleaseLot(ctx context.Context, lotID string) error
		DeliverLot(ctx context.Context, lotID string) error
		DeleteLot(ctx context.Context, lotID string) error
	}

	Service interface {
		RegisterParticipant(ctx context.Context, np NewParticipant, accountID string) (Participant, error)
		ListParticipants(ctx context.Context) ([]Participant, error)
		GetParticipant(ctx context.Context, id string) (Participant, error)
		RemoveParticipant(ctx context.Context, id, accountID string) error

		ListLots(ctx context.Context) ([]Lot, error)
		CreateLot(ctx context.Context, nl NewLot) (Lot, error)
		ReserveLot(ctx context.Context, lotID, reserverID string) error
		ReleaseLot(ctx context.Context, lotID, accountID string) error
		MarkDelivered(ctx context.Context, lotID, accountID string) error
		DeleteLot(ctx context.Context, lotID, requesterID string) error
		ContactLink(ctx context.Context, lotID, senderName string) (ContactInfo, error)
	}

	service struct {
		repo            Repository
		maxLots         int
		maxReservations int
	}
)

var _ Service = (*service)(nil)

func NewService(repo Repository, conf core.TombolaConfig) Service {
	return &service{
		repo:            repo,
		maxLots:         conf.MaxLotsPerParticipant,
		maxReservations: conf.MaxReservationsPerParticipant,
	}
}

// Participants

func (svc *service) RegisterParticipant(ctx context.Context, np NewParticipant, accountID string) (Participant, error) {
	if _, err := svc.repo.GetParticipantByEmail(ctx, np.Email); err == nil {
		return Participant{}, core.NewValidationError(ErrEmailTaken, core.FieldError{Field: "email", Error: ErrEmailTaken.Error()})
	} else if err != ErrParticipantNotFound {
		return Participant{}, err
	}

	p := Participant{
		Prenom:    np.Prenom,
		Role:      np.Role,
		Classes:   np.Classes,
		Emoji:     np.Emoji,
		Email:     np.Email,
		AccountID: accountID,
		CreatedAt: time.Now().UTC(),
	}
	return svc.repo.CreateParticipant(ctx, p)
}

func (svc *service) ListParticipants(ctx context.Context) ([]Participant, error) {
	return svc.repo.QueryAllParticipants(ctx)
}

func (svc *service) GetParticipant(ctx context.Context, id string) (Participant, error) {
	return svc.repo.GetParticipantByID(ctx, id)
}

func (svc *service) RemoveParticipant(ctx context.Context, id, accountID string) error {
	p, err := svc.repo.GetParticipantByID(ctx, id)
	if err != nil {
		return err
	}
	if p.AccountID != accountID {
		return ErrNotParticipantOwner
	}
	return svc.repo.DeleteParticipant(ctx, id)
}

// Lots

func (svc *service) ListLots(ctx context.Context) ([]Lot, error) {
	return svc.repo.QueryAllLots(ctx)
}

func (svc *service) CreateLot(ctx context.Context, nl NewLot) (Lot, error) {
	if _, err := svc.repo.GetParticipantByID(ctx, nl.ParentID); err != nil {
		return Lot{}, err
	}
	count, err := svc.repo.CountLotsByOwner(ctx, nl.ParentID)
	if err != nil {
		return Lot{}, err
	}
	if count >= svc.maxLots {
		return Lot{}, ErrLotLimitReached
	}

	lot := Lot{
		Nom:         nl.Nom,
		Description: null.NewString(nl.Description, nl.Description != ""),
		Icone:       nl.Icone,
		Statut:      StatusAvailable,
		ParentID:    nl.ParentID,
		CreatedAt:   time.Now().UTC(),
	}
	return svc.repo.CreateLot(ctx, lot)
}

func (svc *service) ReserveLot(ctx context.Context, lotID, reserverID string) error {
	lot, err := svc.repo.GetLotByID(ctx, lotID)
	if err != nil {
		return err
	}
	if lot.ParentID == reserverID {
		return ErrOwnLot
	}
	if _, err = svc.repo.GetParticipantByID(ctx, reserverID); err != nil {
		return err
	}
	count, err := svc.repo.CountReservationsBy(ctx, reserverID)
	if err != nil {
		return err
	}
	if count >= svc.maxReservations {
		return ErrReservationLimit
	}
	// the conditional update below is the actual race arbiter; everything
	// above is best-effort screening
	return svc.repo.ReserveLot(ctx, lotID, reserverID)
}

func (svc *service) ReleaseLot(ctx context.Context, lotID, accountID string) error {
	lot, err := svc.ownedLot(ctx, lotID, accountID)
	if err != nil {
		return err
	}
	if !lot.IsReserved() {
		return ErrLotNotReserved
	}
	return svc.repo.ReleaseLot(ctx, lotID)
}

func (svc *service) MarkDelivered(ctx context.Context, lotID, accountID string) error {
	lot, err := svc.ownedLot(ctx, lotID, accountID)
	if err != nil {
		return err
	}
	if !lot.IsReserved() {
		return ErrLotNotReserved
	}
	return svc.repo.DeliverLot(ctx, lotID)
}

func (svc *service) DeleteLot(ctx context.Context, lotID, requesterID string) error {
	lot, err := svc.repo.GetLotByID(ctx, lotID)
	if err != nil {
		return err
	}
	if lot.ParentID != requesterID {
		return ErrNotOwner
	}
	// deletion is allowed whatever the status
	return svc.repo.DeleteLot(ctx, lotID)
}

// ownedLot fetches the lot and checks the acting account owns the lot's
// proposing participant.
func (svc *service) ownedLot(ctx context.Context, lotID, accountID string) (Lot, error) {
	lot, err := svc.repo.GetLotByID(ctx, lotID)
	if err != nil {
		return Lot{}, err
	}
	owner, err := svc.repo.GetParticipantByID(ctx, lot.ParentID)
	if err != nil {
		return Lot{}, err
	}
	if owner.AccountID != accountID {
		return Lot{}, ErrNotOwner
	}
	return lot, nil
}

// ContactLink resolves the counterpart of a reservation: the owner when the
// viewer reserved the lot, the reserver when the viewer owns it.
func (svc *service) ContactLink(ctx context.Context, lotID, senderName string) (ContactInfo, error) {
	lot, err := svc.repo.GetLotByID(ctx, lotID)
	if err != nil {
		return ContactInfo{}, err
	}
	if !lot.ReservedBy.Valid {
		return ContactInfo{}, ErrLotNotReserved
	}

	owner, err := svc.repo.GetParticipantByID(ctx, lot.ParentID)
	if err != nil {
		return ContactInfo{}, err
	}
	reserver, err := svc.repo.GetParticipantByID(ctx, lot.ReservedBy.String)
	if err != nil {
		return ContactInfo{}, err
	}

	counterpart := owner
	if strings.EqualFold(core.CleanString(senderName), owner.Prenom) {
		counterpart = reserver
	}

	subject := fmt.Sprintf("Tombola : %s", lot.Nom)
	body := fmt.Sprintf(
		"Bonjour %s,\n\nJe te contacte au sujet du lot « %s » de la tombola pour organiser la remise.\n\nÀ bientôt,\n%s",
		counterpart.Prenom, lot.Nom, senderName,
	)
	return ContactInfo{
		Email:      counterpart.Email,
		Subject:    subject,
		Body:       body,
		MailtoLink: fmt.Sprintf("mailto:%s?subject=%s&body=%s", counterpart.Email, mailtoEscape(subject), mailtoEscape(body)),
	}, nil
}

// mailtoEscape percent-encodes for a mailto URL; QueryEscape's "+" for spaces
// is not understood by mail clients.
func mailtoEscape(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}
