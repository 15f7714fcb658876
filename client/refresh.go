package client

import (
	"sync"
	"time"
)

// RefreshBus fans out "something changed, refetch" signals between stores.
// Publishes are coalesced: subscribers see at most one signal per debounce
// window, and a publish landing inside the window is delivered when the
// window closes rather than dropped.
type RefreshBus struct {
	debounce time.Duration

	mu      sync.Mutex
	subs    []chan struct{}
	last    time.Time
	pending *time.Timer
}

func NewRefreshBus(debounce time.Duration) *RefreshBus {
	if debounce <= 0 {
		debounce = time.Second
	}
	return &RefreshBus{debounce: debounce}
}

// Subscribe returns a channel receiving refresh signals. The channel has a
// one-slot buffer; a subscriber that lags simply collapses signals.
func (b *RefreshBus) Subscribe() <-chan struct{} {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan struct{}, 1)
	b.subs = append(b.subs, ch)
	return ch
}

func (b *RefreshBus) Publish() {
	b.mu.Lock()
	defer b.mu.Unlock()

	elapsed := time.Since(b.last)
	if elapsed >= b.debounce {
		b.notifyLocked()
		return
	}
	if b.pending == nil {
		b.pending = time.AfterFunc(b.debounce-elapsed, func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			b.pending = nil
			b.notifyLocked()
		})
	}
}

func (b *RefreshBus) notifyLocked() {
	b.last = time.Now()
	for _, ch := range b.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}
