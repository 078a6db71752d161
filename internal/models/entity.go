// Package models defines the syncable entity shapes shared by the local
// store, the outbound queue, the conflict resolver and the remote client.
package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/TheVisher/pawkit-sync/internal/common"
)

// EntityType classifies a syncable record kind.
type EntityType string

const (
	EntityCard          EntityType = "card"
	EntityCollection    EntityType = "collection"
	EntityWorkspace     EntityType = "workspace"
	EntityCalendarEvent EntityType = "calendar_event"
	EntityTodo          EntityType = "todo"
	EntityReference     EntityType = "reference"
)

// EntityTypes lists every known entity type, in a stable order.
var EntityTypes = []EntityType{
	EntityCard, EntityCollection, EntityWorkspace,
	EntityCalendarEvent, EntityTodo, EntityReference,
}

// Valid reports whether t is a known entity type.
func (t EntityType) Valid() bool {
	switch t {
	case EntityCard, EntityCollection, EntityWorkspace,
		EntityCalendarEvent, EntityTodo, EntityReference:
		return true
	}
	return false
}

// ParseEntityType converts a wire string into an EntityType.
func ParseEntityType(s string) (EntityType, error) {
	t := EntityType(s)
	if !t.Valid() {
		return "", common.ErrUnknownEntity
	}
	return t, nil
}

// Fields holds an entity's domain payload as loosely typed key/value pairs.
// Well-known keys per entity type are declared in fields.go; values are
// whatever encoding/json produces (string, float64, bool, nested maps).
type Fields map[string]any

// Clone returns a shallow copy; nested values are shared.
func (f Fields) Clone() Fields {
	if f == nil {
		return nil
	}
	out := make(Fields, len(f))
	for k, v := range f {
		out[k] = v
	}
	return out
}

// Merge folds other into f, last value wins, and returns f.
func (f Fields) Merge(other Fields) Fields {
	for k, v := range other {
		f[k] = v
	}
	return f
}

// SyncMeta is the sync-state block every syncable record carries.
type SyncMeta struct {
	// Version increases monotonically on every local mutation and is the
	// basis for optimistic-concurrency checks against the server.
	Version int64 `json:"version"`

	// ServerVersion is the last version the server acknowledged for this
	// entity; zero if the server has never seen it. Queued changes use it
	// as their base version.
	ServerVersion int64 `json:"serverVersion"`

	// LastModified is the wall-clock time of the last local mutation (UTC).
	LastModified time.Time `json:"lastModified"`

	// Synced is false while local changes have not been acknowledged by the
	// server.
	Synced bool `json:"synced"`

	// Deleted marks a soft-deleted row. The row stays in place as a
	// tombstone until the retention purge.
	Deleted   bool       `json:"deleted"`
	DeletedAt *time.Time `json:"deletedAt,omitempty"`

	// LastError carries the most recent non-retryable push failure so the
	// UI can surface it without the sync engine throwing.
	LastError string `json:"lastError,omitempty"`
}

// Entity is a single syncable record: a typed id plus domain fields and
// sync metadata.
type Entity struct {
	Type   EntityType `json:"type"`
	ID     string     `json:"id"`
	Fields Fields     `json:"fields"`
	SyncMeta
}

// NewEntity builds a fresh local entity with a client-generated UUID, so
// offline creation never blocks on a server round-trip.
func NewEntity(t EntityType, fields Fields, now time.Time) *Entity {
	return &Entity{
		Type:   t,
		ID:     uuid.NewString(),
		Fields: fields.Clone(),
		SyncMeta: SyncMeta{
			Version:      1,
			LastModified: now.UTC(),
			Synced:       false,
		},
	}
}

// Clone returns a copy safe to mutate independently of the original.
func (e *Entity) Clone() *Entity {
	out := *e
	out.Fields = e.Fields.Clone()
	if e.DeletedAt != nil {
		at := *e.DeletedAt
		out.DeletedAt = &at
	}
	return &out
}

// WorkspaceID returns the owning workspace, if the entity carries one.
func (e *Entity) WorkspaceID() string {
	s, _ := e.Fields[FieldWorkspaceID].(string)
	return s
}

// CollectionID returns the owning collection, if the entity carries one.
func (e *Entity) CollectionID() string {
	s, _ := e.Fields[FieldCollectionID].(string)
	return s
}
