package faketest

import (
	"sync"

	"github.com/evalgo-org/nexus-store/nexusstore"
)

// syncStatusBroadcast replays the current sync status to every subscriber
// immediately, then on every subsequent change — the same behavior-subject
// pattern used for circuit breaker state and health status.
type syncStatusBroadcast struct {
	mu        sync.Mutex
	current   nexusstore.SyncStatus
	listeners map[chan nexusstore.SyncStatus]struct{}
}

func newSyncStatusBroadcast() *syncStatusBroadcast {
	return &syncStatusBroadcast{
		current:   nexusstore.SyncIdle,
		listeners: make(map[chan nexusstore.SyncStatus]struct{}),
	}
}

func (b *syncStatusBroadcast) subscribe() (<-chan nexusstore.SyncStatus, func()) {
	b.mu.Lock()
	ch := make(chan nexusstore.SyncStatus, 1)
	ch <- b.current
	b.listeners[ch] = struct{}{}
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		if _, ok := b.listeners[ch]; ok {
			delete(b.listeners, ch)
			close(ch)
		}
		b.mu.Unlock()
	}
	return ch, cancel
}

func (b *syncStatusBroadcast) publish(s nexusstore.SyncStatus) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.current = s
	for ch := range b.listeners {
		select {
		case <-ch:
		default:
		}
		ch <- s
	}
}
