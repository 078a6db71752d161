package store

import "github.com/TheVisher/pawkit-sync/internal/models"

// EventKind says what happened to the entity an Event names.
type EventKind string

const (
	EventPut     EventKind = "put"
	EventUpdate  EventKind = "update"
	EventDelete  EventKind = "delete"
	EventApplied EventKind = "applied"
)

// Event is a committed change notification. Subscribers receive it after
// the transaction that produced it has committed.
type Event struct {
	Type models.EntityType
	ID   string
	Kind EventKind
}

// Subscribe registers a callback for committed changes and returns a
// function that removes it. Callbacks run synchronously on the mutating
// goroutine and must not block.
func (s *Store) Subscribe(fn func(Event)) func() {
	s.subMu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = fn
	s.subMu.Unlock()

	return func() {
		s.subMu.Lock()
		delete(s.subs, id)
		s.subMu.Unlock()
	}
}

func (s *Store) notify(events ...Event) {
	s.subMu.RLock()
	fns := make([]func(Event), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.subMu.RUnlock()

	for _, fn := range fns {
		for _, ev := range events {
			fn(ev)
		}
	}
}
