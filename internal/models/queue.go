package models

import "time"

// Operation is the kind of change a queue item pushes to the server.
type Operation string

const (
	OpCreate Operation = "create"
	OpUpdate Operation = "update"
	OpDelete Operation = "delete"
)

// QueueState tracks where an item is in its retry lifecycle. There is no
// persisted in-flight state: a drain snapshot plus the Seq counter detect
// concurrent coalescing instead.
type QueueState string

const (
	// QueuePending items are eligible for the next drain pass once
	// NextAttemptAt has passed.
	QueuePending QueueState = "pending"

	// QueueParked items exhausted their retry budget and wait for manual
	// attention. The underlying entity keeps its local data and stays
	// unsynced.
	QueueParked QueueState = "parked"
)

// QueueItem is one durable pending operation. The queue holds at most one
// item per (EntityType, EntityID): successive local changes coalesce into
// the existing item, and a delete supersedes earlier creates/updates.
type QueueItem struct {
	EntityType EntityType `json:"entityType"`
	EntityID   string     `json:"entityId"`
	Op         Operation  `json:"op"`

	// Payload carries the full field set for a create, the accumulated
	// diff for an update, and nil for a delete.
	Payload Fields `json:"payload,omitempty"`

	// BaseVersion is the server version this change was built on. Zero for
	// entities the server has never seen.
	BaseVersion int64 `json:"baseVersion"`

	// Seq increments on every coalescing write. A drain pass snapshots Seq
	// before pushing and only acknowledges the item if Seq is unchanged,
	// so a mutation racing an in-flight push is never lost.
	Seq int64 `json:"seq"`

	RetryCount    int        `json:"retryCount"`
	NextAttemptAt time.Time  `json:"nextAttemptAt"`
	CreatedAt     time.Time  `json:"createdAt"`
	State         QueueState `json:"state"`
	LastError     string     `json:"lastError,omitempty"`

	// SkipConflictCheck marks additive, non-destructive pushes (enrichment
	// metadata) where conflict detection would be wasted work.
	SkipConflictCheck bool `json:"skipConflictCheck"`
}

// DeviceMetadata is the activity snapshot attached to outbound pushes so
// the resolver can see which device owns recent user intent.
type DeviceMetadata struct {
	DeviceID   string    `json:"deviceId"`
	LastActive time.Time `json:"lastActive"`
	Active     bool      `json:"active"`
}
