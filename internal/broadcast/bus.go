// Package broadcast fans sync signals out to interested listeners: other
// parts of this process and, through the websocket hub, companion
// processes on the same machine. Signals carry no record payloads;
// consumers re-query the store.
package broadcast

import (
	"sync"
	"time"
)

// Kind is the closed set of signal types.
type Kind string

const (
	KindDataChanged   Kind = "data-changed"
	KindSyncCompleted Kind = "sync-completed"
	KindSyncError     Kind = "sync-error"
)

// Signal is one broadcast event.
type Signal struct {
	Kind       Kind      `json:"kind"`
	EntityType string    `json:"entityType,omitempty"`
	EntityID   string    `json:"entityId,omitempty"`
	Message    string    `json:"message,omitempty"`
	At         time.Time `json:"at"`
}

// Bus is an in-process publish/subscribe fan-out. Publish never blocks:
// a subscriber whose buffer is full misses the signal, which is safe
// because every signal means "re-query".
type Bus struct {
	mu     sync.RWMutex
	subs   map[int]chan Signal
	nextID int
}

func NewBus() *Bus {
	return &Bus{subs: make(map[int]chan Signal)}
}

// Subscribe returns a buffered signal channel and a cancel function. The
// channel is closed on cancel.
func (b *Bus) Subscribe() (<-chan Signal, func()) {
	ch := make(chan Signal, 16)

	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}

// Publish delivers the signal to every subscriber that has buffer room.
func (b *Bus) Publish(s Signal) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs {
		select {
		case ch <- s:
		default:
		}
	}
}
