package inmemdb

import (
	"sync"

	"github.com/apecharmilles/backend/core/account"
	"github.com/apecharmilles/backend/core/newsletter"
	"github.com/apecharmilles/backend/core/tombola"
)

// DB is an in-memory stand-in for the postgres store, used in tests and
// local hacking. A single RWMutex guards every table so cross-table
// cascades stay atomic, mirroring the SQL transaction in the real store.
type DB struct {
	mu sync.RWMutex

	accounts     map[string]*account.Account
	participants map[string]*tombola.Participant
	lots         map[string]*tombola.Lot
	subscribers  map[string]*newsletter.Subscriber
	newsletters  map[string]*newsletter.Newsletter
}

func NewDB() *DB {
	db := &DB{}
	db.Reset()
	return db
}

func (db *DB) Reset() {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.accounts = make(map[string]*account.Account)
	db.participants = make(map[string]*tombola.Participant)
	db.lots = make(map[string]*tombola.Lot)
	db.subscribers = make(map[string]*newsletter.Subscriber)
	db.newsletters = make(map[string]*newsletter.Newsletter)
}
