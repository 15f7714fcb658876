package tombola_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/apecharmilles/backend/core"
	"github.com/apecharmilles/backend/core/tombola"
	inmemdb "github.com/apecharmilles/backend/storage/database/inmem"
	testutil "github.com/apecharmilles/backend/tests"
)

var ctx = context.Background()

func setup(t *testing.T) (tombola.Service, tombola.Repository) {
	t.Helper()
	repo := inmemdb.NewTombolaRepository(inmemdb.NewDB())
	svc := tombola.NewService(repo, core.TombolaConfig{
		MaxLotsPerParticipant:         2,
		MaxReservationsPerParticipant: 2,
	})
	return svc, repo
}

func getLot(t *testing.T, repo tombola.Repository, id string) tombola.Lot {
	t.Helper()
	lot, err := repo.GetLotByID(ctx, id)
	require.NoError(t, err)
	return lot
}

func Test_tombola_createAndList(t *testing.T) {
	svc, repo := setup(t)

	alex := testutil.CreateParticipant(t, repo, "Alexandra", "alex@test.fr", "🐬", "acct-a", "CP", "CE2")

	lot, err := svc.CreateLot(ctx, tombola.NewLot{Nom: "Jeu de société", ParentID: alex.ID, Icone: "🎲"})
	require.NoError(t, err)
	assert.Equal(t, tombola.StatusAvailable, lot.Statut)
	assert.Equal(t, "🎲", lot.Icone)
	assert.False(t, lot.ReservedBy.Valid)

	lots, err := svc.ListLots(ctx)
	require.NoError(t, err)
	require.Len(t, lots, 1)
	assert.Equal(t, lot.ID, lots[0].ID)
	require.NotNil(t, lots[0].Parent)
	assert.Equal(t, "Alexandra", lots[0].Parent.Prenom)
	assert.Equal(t, "🐬", lots[0].Parent.Emoji)
	assert.Nil(t, lots[0].Reserver)
}

func Test_tombola_reserveLot(t *testing.T) {
	svc, repo := setup(t)

	alex := testutil.CreateParticipant(t, repo, "Alexandra", "alex@test.fr", "🐬", "acct-a")
	ben := testutil.CreateParticipant(t, repo, "Benoît", "ben@test.fr", "🦊", "acct-b")
	chloe := testutil.CreateParticipant(t, repo, "Chloé", "chloe@test.fr", "🐸", "acct-c")
	lot := testutil.CreateLot(t, repo, "Jeu de société", alex.ID)

	t.Run("owner may not reserve own lot", func(t *testing.T) {
		assert.Equal(t, tombola.ErrOwnLot, svc.ReserveLot(ctx, lot.ID, alex.ID))
	})

	t.Run("ok", func(t *testing.T) {
		require.NoError(t, svc.ReserveLot(ctx, lot.ID, ben.ID))
		got := getLot(t, repo, lot.ID)
		assert.Equal(t, tombola.StatusReserved, got.Statut)
		assert.Equal(t, ben.ID, got.ReservedBy.String)
	})

	t.Run("already reserved", func(t *testing.T) {
		assert.Equal(t, tombola.ErrLotNotAvailable, svc.ReserveLot(ctx, lot.ID, chloe.ID))
		// the loser's attempt must not clobber the winner
		got := getLot(t, repo, lot.ID)
		assert.Equal(t, ben.ID, got.ReservedBy.String)
	})

	t.Run("unknown lot", func(t *testing.T) {
		assert.Equal(t, tombola.ErrLotNotFound, svc.ReserveLot(ctx, "nope", ben.ID))
	})

	t.Run("unknown reserver", func(t *testing.T) {
		other := testutil.CreateLot(t, repo, "Panier garni", alex.ID)
		assert.Equal(t, tombola.ErrParticipantNotFound, svc.ReserveLot(ctx, other.ID, "nope"))
	})
}

func Test_tombola_reserveLot_concurrent(t *testing.T) {
	svc, repo := setup(t)

	alex := testutil.CreateParticipant(t, repo, "Alexandra", "alex@test.fr", "🐬", "acct-a")
	lot := testutil.CreateLot(t, repo, "Vélo enfant", alex.ID)

	const n = 10
	reservers := make([]tombola.Participant, n)
	for i := 0; i < n; i++ {
		reservers[i] = testutil.CreateParticipant(
			t, repo, "Parent00", string(rune('a'+i))+"@test.fr", "🦊", "acct-x")
	}

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(reserverID string) {
			defer wg.Done()
			if err := svc.ReserveLot(ctx, lot.ID, reserverID); err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}(reservers[i].ID)
	}
	wg.Wait()

	assert.Equal(t, 1, wins, "exactly one racing reserver must win")
	got := getLot(t, repo, lot.ID)
	assert.Equal(t, tombola.StatusReserved, got.Statut)
	assert.True(t, got.ReservedBy.Valid)
}

func Test_tombola_releaseLot(t *testing.T) {
	svc, repo := setup(t)

	alex := testutil.CreateParticipant(t, repo, "Alexandra", "alex@test.fr", "🐬", "acct-a")
	ben := testutil.CreateParticipant(t, repo, "Benoît", "ben@test.fr", "🦊", "acct-b")
	lot := testutil.CreateReservedLot(t, repo, "Jeu de société", alex.ID, ben.ID)

	t.Run("reserver may not release", func(t *testing.T) {
		assert.Equal(t, tombola.ErrNotOwner, svc.ReleaseLot(ctx, lot.ID, "acct-b"))
	})

	t.Run("ok", func(t *testing.T) {
		require.NoError(t, svc.ReleaseLot(ctx, lot.ID, "acct-a"))
		got := getLot(t, repo, lot.ID)
		assert.Equal(t, tombola.StatusAvailable, got.Statut)
		assert.False(t, got.ReservedBy.Valid)
	})

	t.Run("not reserved", func(t *testing.T) {
		assert.Equal(t, tombola.ErrLotNotReserved, svc.ReleaseLot(ctx, lot.ID, "acct-a"))
	})
}

func Test_tombola_markDelivered(t *testing.T) {
	svc, repo := setup(t)

	alex := testutil.CreateParticipant(t, repo, "Alexandra", "alex@test.fr", "🐬", "acct-a")
	ben := testutil.CreateParticipant(t, repo, "Benoît", "ben@test.fr", "🦊", "acct-b")
	chloe := testutil.CreateParticipant(t, repo, "Chloé", "chloe@test.fr", "🐸", "acct-c")
	lot := testutil.CreateReservedLot(t, repo, "Jeu de société", alex.ID, ben.ID)

	t.Run("reserver may not deliver", func(t *testing.T) {
		assert.Equal(t, tombola.ErrNotOwner, svc.MarkDelivered(ctx, lot.ID, "acct-b"))
	})

	t.Run("ok", func(t *testing.T) {
		require.NoError(t, svc.MarkDelivered(ctx, lot.ID, "acct-a"))
		got := getLot(t, repo, lot.ID)
		assert.Equal(t, tombola.StatusDelivered, got.Statut)
		assert.Equal(t, ben.ID, got.ReservedBy.String, "delivered lot keeps its reserver")
	})

	t.Run("delivered is terminal", func(t *testing.T) {
		assert.Equal(t, tombola.ErrLotNotReserved, svc.ReleaseLot(ctx, lot.ID, "acct-a"))
		assert.Equal(t, tombola.ErrLotNotReserved, svc.MarkDelivered(ctx, lot.ID, "acct-a"))
		assert.Equal(t, tombola.ErrLotNotAvailable, svc.ReserveLot(ctx, lot.ID, chloe.ID))
	})
}

func Test_tombola_deleteLot(t *testing.T) {
	svc, repo := setup(t)

	alex := testutil.CreateParticipant(t, repo, "Alexandra", "alex@test.fr", "🐬", "acct-a")
	ben := testutil.CreateParticipant(t, repo, "Benoît", "ben@test.fr", "🦊", "acct-b")
	lot := testutil.CreateReservedLot(t, repo, "Jeu de société", alex.ID, ben.ID)

	t.Run("reserver may not delete", func(t *testing.T) {
		assert.Equal(t, tombola.ErrNotOwner, svc.DeleteLot(ctx, lot.ID, ben.ID))
	})

	t.Run("owner deletes regardless of status", func(t *testing.T) {
		require.NoError(t, svc.DeleteLot(ctx, lot.ID, alex.ID))
		_, err := repo.GetLotByID(ctx, lot.ID)
		assert.Equal(t, tombola.ErrLotNotFound, err)
	})
}

func Test_tombola_limits(t *testing.T) {
	svc, repo := setup(t)

	alex := testutil.CreateParticipant(t, repo, "Alexandra", "alex@test.fr", "🐬", "acct-a")
	ben := testutil.CreateParticipant(t, repo, "Benoît", "ben@test.fr", "🦊", "acct-b")

	t.Run("lot limit", func(t *testing.T) {
		for _, nom := range []string{"Lot un", "Lot deux"} {
			_, err := svc.CreateLot(ctx, tombola.NewLot{Nom: nom, Icone: "🎁", ParentID: alex.ID})
			require.NoError(t, err)
		}
		_, err := svc.CreateLot(ctx, tombola.NewLot{Nom: "Lot trois", Icone: "🎁", ParentID: alex.ID})
		assert.Equal(t, tombola.ErrLotLimitReached, err)
	})

	t.Run("reservation limit", func(t *testing.T) {
		lots, err := svc.ListLots(ctx)
		require.NoError(t, err)
		for _, lot := range lots {
			require.NoError(t, svc.ReserveLot(ctx, lot.ID, ben.ID))
		}
		third := testutil.CreateLot(t, repo, "Lot trois", alex.ID)
		assert.Equal(t, tombola.ErrReservationLimit, svc.ReserveLot(ctx, third.ID, ben.ID))
	})

	t.Run("releasing frees a slot", func(t *testing.T) {
		lots, err := svc.ListLots(ctx)
		require.NoError(t, err)
		var reserved, free tombola.Lot
		for _, lot := range lots {
			if lot.IsReserved() {
				reserved = lot
			} else {
				free = lot
			}
		}
		require.NoError(t, svc.ReleaseLot(ctx, reserved.ID, "acct-a"))
		assert.NoError(t, svc.ReserveLot(ctx, free.ID, ben.ID))
	})
}

func Test_tombola_registerParticipant(t *testing.T) {
	svc, _ := setup(t)

	np := tombola.NewParticipant{Prenom: "Alexandra", Email: "alex@test.fr", Emoji: "🐬"}
	require.NoError(t, np.Validate())
	assert.Equal(t, "Parent", np.Role)

	p, err := svc.RegisterParticipant(ctx, np, "acct-a")
	require.NoError(t, err)
	assert.NotEmpty(t, p.ID)

	_, err = svc.RegisterParticipant(ctx, np, "acct-b")
	var vErr *core.ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "email", vErr.Fields[0].Field)
}

func Test_tombola_removeParticipant_cascade(t *testing.T) {
	svc, repo := setup(t)

	alex := testutil.CreateParticipant(t, repo, "Alexandra", "alex@test.fr", "🐬", "acct-a")
	ben := testutil.CreateParticipant(t, repo, "Benoît", "ben@test.fr", "🦊", "acct-b")

	owned := testutil.CreateLot(t, repo, "Jeu de société", alex.ID)
	held := testutil.CreateReservedLot(t, repo, "Panier garni", ben.ID, alex.ID)
	delivered := testutil.CreateReservedLot(t, repo, "Bon coiffeur", ben.ID, alex.ID)
	require.NoError(t, repo.DeliverLot(ctx, delivered.ID))

	t.Run("only the registering account", func(t *testing.T) {
		assert.Equal(t, tombola.ErrNotParticipantOwner, svc.RemoveParticipant(ctx, alex.ID, "acct-b"))
	})

	t.Run("cascade leaves no orphan", func(t *testing.T) {
		require.NoError(t, svc.RemoveParticipant(ctx, alex.ID, "acct-a"))

		_, err := repo.GetParticipantByID(ctx, alex.ID)
		assert.Equal(t, tombola.ErrParticipantNotFound, err)

		// owned lot is gone with its owner
		_, err = repo.GetLotByID(ctx, owned.ID)
		assert.Equal(t, tombola.ErrLotNotFound, err)

		// held reservation is released, not deleted
		got := getLot(t, repo, held.ID)
		assert.Equal(t, tombola.StatusAvailable, got.Statut)
		assert.False(t, got.ReservedBy.Valid)

		// a delivered lot stays remis, only the reserver reference goes
		got = getLot(t, repo, delivered.ID)
		assert.Equal(t, tombola.StatusDelivered, got.Statut)
		assert.False(t, got.ReservedBy.Valid)
	})
}

func Test_tombola_contactLink(t *testing.T) {
	svc, repo := setup(t)

	alex := testutil.CreateParticipant(t, repo, "Alexandra", "alex@test.fr", "🐬", "acct-a")
	ben := testutil.CreateParticipant(t, repo, "Benoît", "ben@test.fr", "🦊", "acct-b")
	lot := testutil.CreateReservedLot(t, repo, "Jeu de société", alex.ID, ben.ID)

	t.Run("owner reaches the reserver", func(t *testing.T) {
		info, err := svc.ContactLink(ctx, lot.ID, "Alexandra")
		require.NoError(t, err)
		assert.Equal(t, ben.Email, info.Email)
		assert.Contains(t, info.Subject, "Jeu de société")
		assert.Contains(t, info.Body, "Benoît")
		assert.Contains(t, info.MailtoLink, "mailto:ben@test.fr?subject=")
		assert.Contains(t, info.MailtoLink, "%20")
		assert.NotContains(t, info.MailtoLink, "+")
	})

	t.Run("anyone else reaches the owner", func(t *testing.T) {
		info, err := svc.ContactLink(ctx, lot.ID, "Benoît")
		require.NoError(t, err)
		assert.Equal(t, alex.Email, info.Email)
		assert.Contains(t, info.Body, "Alexandra")
	})

	t.Run("available lot has no counterpart", func(t *testing.T) {
		free := testutil.CreateLot(t, repo, "Panier garni", alex.ID)
		_, err := svc.ContactLink(ctx, free.ID, "Alexandra")
		assert.Equal(t, tombola.ErrLotNotReserved, err)
	})
}

// Two families trading a board game end to end: propose, reserve, hand over.
func Test_tombola_exchangeScenario(t *testing.T) {
	svc, repo := setup(t)

	alex := testutil.CreateParticipant(t, repo, "Alexandra", "alex@test.fr", "🐬", "acct-a")
	ben := testutil.CreateParticipant(t, repo, "Benoît", "ben@test.fr", "🦊", "acct-b")

	lot, err := svc.CreateLot(ctx, tombola.NewLot{Nom: "Jeu de société", Icone: "🎲", ParentID: alex.ID})
	require.NoError(t, err)

	require.NoError(t, svc.ReserveLot(ctx, lot.ID, ben.ID))

	info, err := svc.ContactLink(ctx, lot.ID, "Benoît")
	require.NoError(t, err)
	assert.Equal(t, "alex@test.fr", info.Email)

	require.NoError(t, svc.MarkDelivered(ctx, lot.ID, "acct-a"))

	lots, err := svc.ListLots(ctx)
	require.NoError(t, err)
	require.Len(t, lots, 1)
	assert.Equal(t, tombola.StatusDelivered, lots[0].Statut)
	require.NotNil(t, lots[0].Reserver)
	assert.Equal(t, ben.ID, lots[0].Reserver.ID)
}
