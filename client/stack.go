package client

import (
	"time"

	"github.com/apecharmilles/backend/core"
)

// Stack bundles the client, the refresh bus and both stores, wired from the
// application configuration.
type Stack struct {
	Client       *Client
	Bus          *RefreshBus
	Lots         *LotStore
	Participants *ParticipantStore
}

// NewStack builds the client stack with the cadences from cfg
// (core.Conf.Tombola in the running app). Zero cfg values fall back to the
// package defaults.
func NewStack(baseURL string, cfg core.TombolaConfig, opts ...Option) *Stack {
	timeout := cfg.ClientTimeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	interval := cfg.RefreshInterval
	if interval <= 0 {
		interval = 10 * time.Second
	}

	c := New(baseURL, append([]Option{WithTimeout(timeout)}, opts...)...)
	bus := NewRefreshBus(cfg.RefreshDebounce)
	return &Stack{
		Client:       c,
		Bus:          bus,
		Lots:         NewLotStore(c, bus),
		Participants: NewParticipantStore(c, bus, interval),
	}
}
