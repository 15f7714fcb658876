package tombola

import (
	"time"

	"github.com/volatiletech/null/v8"

	"github.com/apecharmilles/backend/core"
)

// Lot statuses, kept in the French wire vocabulary the site has always used.
const (
	StatusAvailable = "disponible"
	StatusReserved  = "réservé"
	StatusDelivered = "remis"
)

// DefaultIcon decorates lots created without an explicit glyph.
const DefaultIcon = "🎁"

type (
	// Participant is a registered family member eligible to propose and
	// reserve lots. Email and owning account are never serialized: the
	// participant list is public.
	Participant struct {
		ID        string    `json:"id"`
		Prenom    string    `json:"prenom"`
		Role      string    `json:"role"`
		Classes   []string  `json:"classes,omitempty"`
		Emoji     string    `json:"emoji"`
		Email     string    `json:"-"`
		AccountID string    `json:"-"`
		CreatedAt time.Time `json:"created_at"` // UTC
	}

	// LotActor is the denormalized owner/reserver info embedded in lot
	// listings: display data only, never the email.
	LotActor struct {
		ID     string `json:"id"`
		Prenom string `json:"prenom"`
		Emoji  string `json:"emoji"`
	}

	Lot struct {
		ID          string      `json:"id"`
		Nom         string      `json:"nom"`
		Description null.String `json:"description"`
		Icone       string      `json:"icone"`
		Statut      string      `json:"statut"`
		ParentID    string      `json:"parent_id"`
		ReservedBy  null.String `json:"reserved_by"`
		CreatedAt   time.Time   `json:"created_at"` // UTC

		Parent   *LotActor `json:"parent,omitempty"`
		Reserver *LotActor `json:"reserver,omitempty"`
	}

	// ContactInfo links the two sides of a reservation for the physical
	// exchange; the email belongs to the viewer's counterpart.
	ContactInfo struct {
		Email      string `json:"email"`
		Subject    string `json:"subject"`
		Body       string `json:"body"`
		MailtoLink string `json:"mailtoLink"`
	}
)

func (p Participant) Actor() LotActor {
	return LotActor{ID: p.ID, Prenom: p.Prenom, Emoji: p.Emoji}
}

func (l Lot) IsAvailable() bool { return l.Statut == StatusAvailable }
func (l Lot) IsReserved() bool  { return l.Statut == StatusReserved }
func (l Lot) IsDelivered() bool { return l.Statut == StatusDelivered }

// NewParticipant contains information needed to register a new Participant.
type NewParticipant struct {
	Prenom  string   `json:"prenom" validate:"required,min=2,max=50"`
	Email   string   `json:"email" validate:"required,email"`
	Emoji   string   `json:"emoji" validate:"required,emoji"`
	Role    string   `json:"role" validate:"omitempty,max=50"`
	Classes []string `json:"classes" validate:"omitempty,dive,max=20"`
}

func (np *NewParticipant) Validate() error {
	np.Prenom = core.CleanString(np.Prenom)
	np.Email = core.CleanString(np.Email, true /* lower */)
	if np.Role == "" {
		np.Role = "Parent"
	}
	return core.Validate.Struct(np)
}

// NewLot contains information needed to propose a new Lot.
type NewLot struct {
	Nom         string `json:"nom" validate:"required,min=2,max=100"`
	Description string `json:"description" validate:"omitempty,max=500"`
	Icone       string `json:"icone" validate:"omitempty,emoji"`
	ParentID    string `json:"parent_id" validate:"required"`
}

func (nl *NewLot) Validate() error {
	nl.Nom = core.CleanString(nl.Nom)
	nl.Description = core.CleanString(nl.Description)
	if nl.Icone == "" {
		nl.Icone = DefaultIcon
	}
	return core.Validate.Struct(nl)
}
