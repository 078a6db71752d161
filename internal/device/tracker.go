// Package device identifies the local installation and tracks whether it is
// actively in use. Conflict resolution favours the device that was active
// most recently, so activity is persisted alongside the stable device id.
package device

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/TheVisher/pawkit-sync/internal/dbx"
	"github.com/TheVisher/pawkit-sync/internal/models"
)

const (
	// activeWindow is how long after the last interaction a device still
	// counts as active.
	activeWindow = 5 * time.Minute

	// persistDebounce limits how often MarkActive writes to the database.
	persistDebounce = 10 * time.Second
)

// Tracker owns the stable device id and the last-activity timestamp.
// Safe for concurrent use.
type Tracker struct {
	db    dbx.DBTX
	clock func() time.Time

	mu          sync.Mutex
	deviceID    string
	lastActive  time.Time
	lastPersist time.Time
}

// NewTracker loads the device id from the database, generating and
// persisting a fresh one on first run.
func NewTracker(ctx context.Context, db dbx.DBTX, clock func() time.Time) (*Tracker, error) {
	if clock == nil {
		clock = time.Now
	}
	t := &Tracker{db: db, clock: clock}

	var lastActive string
	err := db.QueryRowContext(ctx,
		`SELECT device_id, last_active FROM device_info WHERE id = 1`).
		Scan(&t.deviceID, &lastActive)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		t.deviceID = uuid.NewString()
		_, err = db.ExecContext(ctx,
			`INSERT INTO device_info (id, device_id, last_active) VALUES (1, ?, ?)`,
			t.deviceID, "")
		if err != nil {
			return nil, fmt.Errorf("failed to persist device id: %w", err)
		}
	case err != nil:
		return nil, fmt.Errorf("failed to load device id: %w", err)
	default:
		if lastActive != "" {
			at, err := time.Parse(time.RFC3339Nano, lastActive)
			if err != nil {
				return nil, fmt.Errorf("failed to parse last_active: %w", err)
			}
			t.lastActive = at
			t.lastPersist = at
		}
	}
	return t, nil
}

// DeviceID returns the stable installation id.
func (t *Tracker) DeviceID() string {
	return t.deviceID
}

// MarkActive records user interaction. The timestamp is kept in memory on
// every call and flushed to the database at most once per debounce window.
func (t *Tracker) MarkActive(ctx context.Context) error {
	now := t.clock().UTC()

	t.mu.Lock()
	t.lastActive = now
	flush := now.Sub(t.lastPersist) >= persistDebounce
	if flush {
		t.lastPersist = now
	}
	t.mu.Unlock()

	if !flush {
		return nil
	}
	_, err := t.db.ExecContext(ctx,
		`UPDATE device_info SET last_active = ? WHERE id = 1`,
		now.Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("failed to persist activity: %w", err)
	}
	return nil
}

// RecentlyActive reports whether the device saw interaction within the
// activity window.
func (t *Tracker) RecentlyActive() bool {
	t.mu.Lock()
	last := t.lastActive
	t.mu.Unlock()
	if last.IsZero() {
		return false
	}
	return t.clock().UTC().Sub(last) <= activeWindow
}

// Metadata snapshots the device state for push requests and conflict
// resolution.
func (t *Tracker) Metadata() models.DeviceMetadata {
	t.mu.Lock()
	defer t.mu.Unlock()
	return models.DeviceMetadata{
		DeviceID:   t.deviceID,
		LastActive: t.lastActive,
		Active:     !t.lastActive.IsZero() && t.clock().UTC().Sub(t.lastActive) <= activeWindow,
	}
}
