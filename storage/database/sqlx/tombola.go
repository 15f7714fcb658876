package sqlxrepos

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/apecharmilles/backend/core/tombola"
)

type (
	participantRow struct {
		ID        string         `db:"id"`
		Prenom    string         `db:"prenom"`
		Role      string         `db:"role"`
		Classes   pq.StringArray `db:"classes"`
		Emoji     string         `db:"emoji"`
		Email     string         `db:"email"`
		AccountID string         `db:"account_id"`
		CreatedAt null.Time      `db:"created_at"`
	}

	lotRow struct {
		ID          string      `db:"id"`
		Nom         string      `db:"nom"`
		Description null.String `db:"description"`
		Icone       string      `db:"icone"`
		Statut      string      `db:"statut"`
		ParentID    string      `db:"parent_id"`
		ReservedBy  null.String `db:"reserved_by"`
		CreatedAt   null.Time   `db:"created_at"`

		ParentPrenom   null.String `db:"parent_prenom"`
		ParentEmoji    null.String `db:"parent_emoji"`
		ReserverPrenom null.String `db:"reserver_prenom"`
		ReserverEmoji  null.String `db:"reserver_emoji"`
	}
)

func (r participantRow) unpack() tombola.Participant {
	return tombola.Participant{
		ID:        r.ID,
		Prenom:    r.Prenom,
		Role:      r.Role,
		Classes:   r.Classes,
		Emoji:     r.Emoji,
		Email:     r.Email,
		AccountID: r.AccountID,
		CreatedAt: r.CreatedAt.Time,
	}
}

func (r lotRow) unpack() tombola.Lot {
	lot := tombola.Lot{
		ID:          r.ID,
		Nom:         r.Nom,
		Description: r.Description,
		Icone:       r.Icone,
		Statut:      r.Statut,
		ParentID:    r.ParentID,
		ReservedBy:  r.ReservedBy,
		CreatedAt:   r.CreatedAt.Time,
	}
	if r.ParentPrenom.Valid {
		lot.Parent = &tombola.LotActor{ID: r.ParentID, Prenom: r.ParentPrenom.String, Emoji: r.ParentEmoji.String}
	}
	if r.ReservedBy.Valid && r.ReserverPrenom.Valid {
		lot.Reserver = &tombola.LotActor{ID: r.ReservedBy.String, Prenom: r.ReserverPrenom.String, Emoji: r.ReserverEmoji.String}
	}
	return lot
}

const lotSelect = `
SELECT l.id, l.nom, l.description, l.icone, l.statut, l.parent_id, l.reserved_by, l.created_at,
       p.prenom AS parent_prenom, p.emoji AS parent_emoji,
       r.prenom AS reserver_prenom, r.emoji AS reserver_emoji
FROM lot l
JOIN participant p ON p.id = l.parent_id
LEFT JOIN participant r ON r.id = l.reserved_by`

type tombolaRepository struct {
	db *sqlx.DB
}

var _ tombola.Repository = (*tombolaRepository)(nil)

func NewTombolaRepository(db *sqlx.DB) tombola.Repository {
	return &tombolaRepository{db: db}
}

// Participants

func (repo *tombolaRepository) CreateParticipant(ctx context.Context, p tombola.Participant) (tombola.Participant, error) {
	p.ID = uuid.New().String()
	_, err := repo.db.ExecContext(ctx,
		`INSERT INTO participant (id, prenom, role, classes, emoji, email, account_id, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		p.ID, p.Prenom, p.Role, pq.Array(p.Classes), p.Emoji, p.Email, p.AccountID, p.CreatedAt,
	)
	if err != nil {
		return tombola.Participant{}, errors.Wrap(err, "inserting participant")
	}
	return p, nil
}

func (repo *tombolaRepository) QueryAllParticipants(ctx context.Context) ([]tombola.Participant, error) {
	var rows []participantRow
	err := repo.db.SelectContext(ctx, &rows, `SELECT * FROM participant ORDER BY created_at DESC`)
	if err != nil {
		return nil, errors.Wrap(err, "querying participants")
	}
	parts := make([]tombola.Participant, 0, len(rows))
	for _, r := range rows {
		parts = append(parts, r.unpack())
	}
	return parts, nil
}

func (repo *tombolaRepository) GetParticipantByID(ctx context.Context, id string) (tombola.Participant, error) {
	var row participantRow
	if err := repo.db.GetContext(ctx, &row, `SELECT * FROM participant WHERE id = $1`, id); err != nil {
		if err == sql.ErrNoRows {
			return tombola.Participant{}, tombola.ErrParticipantNotFound
		}
		return tombola.Participant{}, errors.Wrap(err, "finding participant by id")
	}
	return row.unpack(), nil
}

func (repo *tombolaRepository) GetParticipantByEmail(ctx context.Context, email string) (tombola.Participant, error) {
	var row participantRow
	if err := repo.db.GetContext(ctx, &row, `SELECT * FROM participant WHERE email = $1`, email); err != nil {
		if err == sql.ErrNoRows {
			return tombola.Participant{}, tombola.ErrParticipantNotFound
		}
		return tombola.Participant{}, errors.Wrap(err, "finding participant by email")
	}
	return row.unpack(), nil
}

func (repo *tombolaRepository) DeleteParticipant(ctx context.Context, id string) error {
	tx, err := repo.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "starting transaction")
	}
	defer func() { _ = tx.Rollback() }()

	// release reservations they hold; their own lots go with the FK cascade
	_, err = tx.ExecContext(ctx,
		`UPDATE lot SET statut = $2, reserved_by = NULL WHERE reserved_by = $1 AND statut = $3`,
		id, tombola.StatusAvailable, tombola.StatusReserved,
	)
	if err != nil {
		return errors.Wrap(err, "releasing reservations")
	}

	res, err := tx.ExecContext(ctx, `DELETE FROM participant WHERE id = $1`, id)
	if err != nil {
		return errors.Wrap(err, "deleting participant")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return tombola.ErrParticipantNotFound
	}
	return errors.Wrap(tx.Commit(), "committing participant deletion")
}

// Lots

func (repo *tombolaRepository) CreateLot(ctx context.Context, lot tombola.Lot) (tombola.Lot, error) {
	lot.ID = uuid.New().String()
	_, err := repo.db.ExecContext(ctx,
		`INSERT INTO lot (id, nom, description, icone, statut, parent_id, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		lot.ID, lot.Nom, lot.Description, lot.Icone, lot.Statut, lot.ParentID, lot.CreatedAt,
	)
	if err != nil {
		return tombola.Lot{}, errors.Wrap(err, "inserting lot")
	}
	return lot, nil
}

func (repo *tombolaRepository) QueryAllLots(ctx context.Context) ([]tombola.Lot, error) {
	var rows []lotRow
	if err := repo.db.SelectContext(ctx, &rows, lotSelect+` ORDER BY l.created_at DESC`); err != nil {
		return nil, errors.Wrap(err, "querying lots")
	}
	lots := make([]tombola.Lot, 0, len(rows))
	for _, r := range rows {
		lots = append(lots, r.unpack())
	}
	return lots, nil
}

func (repo *tombolaRepository) GetLotByID(ctx context.Context, id string) (tombola.Lot, error) {
	var row lotRow
	if err := repo.db.GetContext(ctx, &row, lotSelect+` WHERE l.id = $1`, id); err != nil {
		if err == sql.ErrNoRows {
			return tombola.Lot{}, tombola.ErrLotNotFound
		}
		return tombola.Lot{}, errors.Wrap(err, "finding lot by id")
	}
	return row.unpack(), nil
}

func (repo *tombolaRepository) CountLotsByOwner(ctx context.Context, ownerID string) (int, error) {
	var n int
	err := repo.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM lot WHERE parent_id = $1`, ownerID)
	return n, errors.Wrap(err, "counting owned lots")
}

func (repo *tombolaRepository) CountReservationsBy(ctx context.Context, participantID string) (int, error) {
	var n int
	err := repo.db.GetContext(ctx, &n,
		`SELECT COUNT(*) FROM lot WHERE reserved_by = $1 AND statut = $2`,
		participantID, tombola.StatusReserved,
	)
	return n, errors.Wrap(err, "counting reservations")
}

// ReserveLot applies the status guard and the write in one conditional
// UPDATE; of two racing reservations exactly one sees a row affected.
func (repo *tombolaRepository) ReserveLot(ctx context.Context, lotID, reserverID string) error {
	res, err := repo.db.ExecContext(ctx,
		`UPDATE lot SET statut = $3, reserved_by = $2 WHERE id = $1 AND statut = $4`,
		lotID, reserverID, tombola.StatusReserved, tombola.StatusAvailable,
	)
	if err != nil {
		return errors.Wrap(err, "reserving lot")
	}
	return repo.trapGuardMiss(ctx, res, lotID, tombola.ErrLotNotAvailable)
}

func (repo *tombolaRepository) ReleaseLot(ctx context.Context, lotID string) error {
	res, err := repo.db.ExecContext(ctx,
		`UPDATE lot SET statut = $2, reserved_by = NULL WHERE id = $1 AND statut = $3`,
		lotID, tombola.StatusAvailable, tombola.StatusReserved,
	)
	if err != nil {
		return errors.Wrap(err, "releasing lot")
	}
	return repo.trapGuardMiss(ctx, res, lotID, tombola.ErrLotNotReserved)
}

func (repo *tombolaRepository) DeliverLot(ctx context.Context, lotID string) error {
	res, err := repo.db.ExecContext(ctx,
		`UPDATE lot SET statut = $2 WHERE id = $1 AND statut = $3`,
		lotID, tombola.StatusDelivered, tombola.StatusReserved,
	)
	if err != nil {
		return errors.Wrap(err, "delivering lot")
	}
	return repo.trapGuardMiss(ctx, res, lotID, tombola.ErrLotNotReserved)
}

func (repo *tombolaRepository) DeleteLot(ctx context.Context, lotID string) error {
	res, err := repo.db.ExecContext(ctx, `DELETE FROM lot WHERE id = $1`, lotID)
	if err != nil {
		return errors.Wrap(err, "deleting lot")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return tombola.ErrLotNotFound
	}
	return nil
}

// trapGuardMiss distinguishes a missing lot from a lost status race when a
// conditional update touched no row.
func (repo *tombolaRepository) trapGuardMiss(ctx context.Context, res sql.Result, lotID string, guardErr error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "reading rows affected")
	}
	if n > 0 {
		return nil
	}
	var exists bool
	if err := repo.db.GetContext(ctx, &exists, `SELECT EXISTS (SELECT 1 FROM lot WHERE id = $1)`, lotID); err != nil {
		return errors.Wrap(err, "checking lot existence")
	}
	if !exists {
		return tombola.ErrLotNotFound
	}
	return guardErr
}
