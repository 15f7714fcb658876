package client_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/volatiletech/null/v8"

	"github.com/apecharmilles/backend/client"
	"github.com/apecharmilles/backend/core"
	"github.com/apecharmilles/backend/core/tombola"
)

var ctx = context.Background()

// fakeAPI serves a lot board from memory, using the same response envelopes
// as the real server.
type fakeAPI struct {
	mu    sync.Mutex
	lots  []tombola.Lot
	calls map[string]int

	// reserveStatus forces the next reserve to fail with this HTTP status
	reserveStatus int
	reserveError  interface{}
}

func newFakeAPI(lots ...tombola.Lot) *fakeAPI {
	return &fakeAPI{lots: lots, calls: make(map[string]int)}
}

func (f *fakeAPI) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/tombola/lots", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()

		switch r.Method {
		case http.MethodGet:
			f.calls["list"]++
			writeData(w, http.StatusOK, f.lots)
		case http.MethodPost:
			f.calls["create"]++
			var nl tombola.NewLot
			_ = json.NewDecoder(r.Body).Decode(&nl)
			lot := tombola.Lot{ID: "lot-new", Nom: nl.Nom, Statut: tombola.StatusAvailable, ParentID: nl.ParentID}
			f.lots = append(f.lots, lot)
			writeData(w, http.StatusCreated, map[string]string{"id": lot.ID})
		}
	})
	mux.HandleFunc("/api/tombola/lots/lot-1/reserve", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()

		f.calls["reserve"]++
		if f.reserveStatus != 0 {
			writeError(w, f.reserveStatus, f.reserveError)
			return
		}
		var body struct {
			ReserverID string `json:"reserver_id"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		for i := range f.lots {
			if f.lots[i].ID == "lot-1" {
				f.lots[i].Statut = tombola.StatusReserved
				f.lots[i].ReservedBy = null.StringFrom(body.ReserverID)
			}
		}
		writeData(w, http.StatusOK, map[string]string{"statut": tombola.StatusReserved})
	})
	return mux
}

func writeData(w http.ResponseWriter, code int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{"data": data})
}

func writeError(w http.ResponseWriter, code int, errPayload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{"error": errPayload})
}

func board() []tombola.Lot {
	return []tombola.Lot{
		{ID: "lot-1", Nom: "Panier garni", Icone: "🧺", Statut: tombola.StatusAvailable, ParentID: "alex"},
		{ID: "lot-2", Nom: "Bon coiffeur", Icone: "💇", Statut: tombola.StatusAvailable, ParentID: "ben"},
	}
}

func Test_client_envelopes(t *testing.T) {
	api := newFakeAPI(board()...)
	srv := httptest.NewServer(api.handler())
	defer srv.Close()

	c := client.New(srv.URL)

	lots, err := c.ListLots(ctx)
	require.NoError(t, err)
	require.Len(t, lots, 2)
	assert.Equal(t, "Panier garni", lots[0].Nom)

	id, err := c.CreateLot(ctx, tombola.NewLot{Nom: "Gâteau", ParentID: "alex"})
	require.NoError(t, err)
	assert.Equal(t, "lot-new", id)
}

func Test_client_serverRejection(t *testing.T) {
	api := newFakeAPI(board()...)
	api.reserveStatus = http.StatusConflict
	api.reserveError = tombola.ErrLotNotAvailable.Error()
	srv := httptest.NewServer(api.handler())
	defer srv.Close()

	c := client.New(srv.URL)
	err := c.ReserveLot(ctx, "lot-1", "ben")
	require.Error(t, err)
	assert.True(t, client.IsConflict(err))
	assert.False(t, client.IsTimeout(err))
	assert.Contains(t, err.Error(), tombola.ErrLotNotAvailable.Error())
}

func Test_client_fieldErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusBadRequest, map[string]string{"email": "cette adresse email est déjà utilisée"})
	}))
	defer srv.Close()

	c := client.New(srv.URL)
	_, err := c.CreateParticipant(ctx, tombola.NewParticipant{Prenom: "Alex", Email: "alex@test.fr", Emoji: "🐬"})
	require.Error(t, err)
	assert.True(t, client.IsValidation(err))

	apiErr, ok := err.(*client.APIError)
	require.True(t, ok)
	assert.Equal(t, "cette adresse email est déjà utilisée", apiErr.Fields["email"])
}

func Test_client_timeoutIsNotARejection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		writeData(w, http.StatusOK, []tombola.Lot{})
	}))
	defer srv.Close()

	c := client.New(srv.URL, client.WithTimeout(30*time.Millisecond))
	_, err := c.ListLots(ctx)
	require.Error(t, err)
	assert.True(t, client.IsTimeout(err))
	assert.False(t, client.IsConflict(err))
	assert.False(t, client.IsValidation(err))
}

func Test_lotStore_optimisticReserve(t *testing.T) {
	api := newFakeAPI(board()...)
	srv := httptest.NewServer(api.handler())
	defer srv.Close()

	bus := client.NewRefreshBus(time.Millisecond)
	signals := bus.Subscribe()
	store := client.NewLotStore(client.New(srv.URL), bus)
	require.NoError(t, store.Load(ctx))

	require.NoError(t, store.Reserve(ctx, "lot-1", "ben"))

	lot, ok := store.Get("lot-1")
	require.True(t, ok)
	assert.Equal(t, tombola.StatusReserved, lot.Statut)
	assert.Equal(t, "ben", lot.ReservedBy.String)

	select {
	case <-signals:
	case <-time.After(time.Second):
		t.Fatal("expected a refresh signal after a successful mutation")
	}
}

func Test_lotStore_rollbackOnRejection(t *testing.T) {
	api := newFakeAPI(board()...)
	api.reserveStatus = http.StatusConflict
	api.reserveError = tombola.ErrLotNotAvailable.Error()
	srv := httptest.NewServer(api.handler())
	defer srv.Close()

	bus := client.NewRefreshBus(time.Millisecond)
	signals := bus.Subscribe()
	store := client.NewLotStore(client.New(srv.URL), bus)
	require.NoError(t, store.Load(ctx))

	err := store.Reserve(ctx, "lot-1", "ben")
	require.Error(t, err)
	assert.True(t, client.IsConflict(err))

	// the optimistic patch must be gone, replaced by the server's board
	lot, ok := store.Get("lot-1")
	require.True(t, ok)
	assert.Equal(t, tombola.StatusAvailable, lot.Statut)
	assert.False(t, lot.ReservedBy.Valid)

	select {
	case <-signals:
		t.Fatal("a rejected mutation must not publish a refresh")
	case <-time.After(50 * time.Millisecond):
	}
}

func Test_lotStore_watchRefetchesOnSignal(t *testing.T) {
	api := newFakeAPI(board()...)
	srv := httptest.NewServer(api.handler())
	defer srv.Close()

	bus := client.NewRefreshBus(time.Millisecond)
	store := client.NewLotStore(client.New(srv.URL), bus)
	require.NoError(t, store.Load(ctx))

	watchCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go store.Watch(watchCtx)

	// mutate the board behind the store's back, then signal
	api.mu.Lock()
	api.lots[1].Statut = tombola.StatusReserved
	api.lots[1].ReservedBy = null.StringFrom("alex")
	api.mu.Unlock()
	bus.Publish()

	assert.Eventually(t, func() bool {
		lot, ok := store.Get("lot-2")
		return ok && lot.IsReserved()
	}, time.Second, 10*time.Millisecond)
}

func Test_refreshBus_debounce(t *testing.T) {
	bus := client.NewRefreshBus(80 * time.Millisecond)

	var mu sync.Mutex
	received := 0
	signals := bus.Subscribe()
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			select {
			case <-signals:
				mu.Lock()
				received++
				mu.Unlock()
			case <-time.After(300 * time.Millisecond):
				return
			}
		}
	}()

	for i := 0; i < 20; i++ {
		bus.Publish()
		time.Sleep(2 * time.Millisecond)
	}
	<-done

	// one leading signal plus one trailing signal at the end of the window
	mu.Lock()
	defer mu.Unlock()
	assert.GreaterOrEqual(t, received, 1)
	assert.LessOrEqual(t, received, 2)
}

func Test_participantStore_periodicRefresh(t *testing.T) {
	var mu sync.Mutex
	participants := []tombola.Participant{{ID: "p1", Prenom: "Alexandra", Emoji: "🐬"}}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		writeData(w, http.StatusOK, participants)
	}))
	defer srv.Close()

	bus := client.NewRefreshBus(time.Millisecond)
	store := client.NewParticipantStore(client.New(srv.URL), bus, 20*time.Millisecond)
	require.NoError(t, store.Load(ctx))
	require.Len(t, store.Participants(), 1)

	watchCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go store.Watch(watchCtx)

	mu.Lock()
	participants = append(participants, tombola.Participant{ID: "p2", Prenom: "Benoît", Emoji: "🦊"})
	mu.Unlock()

	assert.Eventually(t, func() bool {
		return len(store.Participants()) == 2
	}, time.Second, 10*time.Millisecond)
}

func Test_newStack_wiresConfiguredCadences(t *testing.T) {
	api := newFakeAPI(board()...)
	srv := httptest.NewServer(api.handler())
	defer srv.Close()

	stack := client.NewStack(srv.URL, core.TombolaConfig{
		ClientTimeout:   30 * time.Millisecond,
		RefreshInterval: 20 * time.Millisecond,
		RefreshDebounce: time.Millisecond,
	})
	require.NoError(t, stack.Lots.Load(ctx))
	assert.Len(t, stack.Lots.Lots(), 2)

	// the configured timeout reaches the underlying client
	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		writeData(w, http.StatusOK, []tombola.Lot{})
	}))
	defer slow.Close()

	slowStack := client.NewStack(slow.URL, core.TombolaConfig{ClientTimeout: 30 * time.Millisecond})
	err := slowStack.Lots.Load(ctx)
	require.Error(t, err)
	assert.True(t, client.IsTimeout(err))
}

func Test_participantStore_focusRefetches(t *testing.T) {
	var mu sync.Mutex
	participants := []tombola.Participant{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		writeData(w, http.StatusOK, participants)
	}))
	defer srv.Close()

	bus := client.NewRefreshBus(time.Millisecond)
	store := client.NewParticipantStore(client.New(srv.URL), bus, time.Hour)
	require.NoError(t, store.Load(ctx))

	mu.Lock()
	participants = append(participants, tombola.Participant{ID: "p1", Prenom: "Alexandra", Emoji: "🐬"})
	mu.Unlock()

	store.Focus(ctx)
	assert.Len(t, store.Participants(), 1)
}
