// Package entities is the server-side authoritative store: it applies
// pushed changes with optimistic-concurrency checks and serves the pull
// feed.
package entities

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/TheVisher/pawkit-sync/internal/common"
	"github.com/TheVisher/pawkit-sync/internal/models"
)

// ConflictError carries the server's current record back to the client so
// the resolver works without another round trip.
type ConflictError struct {
	Record *Record
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("version conflict on %s/%s: server holds version %d",
		e.Record.Type, e.Record.ID, e.Record.Version)
}

func (e *ConflictError) Unwrap() error { return common.ErrVersionConflict }

type Service struct {
	repo Repository
	now  func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, now: time.Now}
}

// NewServiceWithClock is NewService with an injected clock.
func NewServiceWithClock(repo Repository, clock func() time.Time) *Service {
	return &Service{repo: repo, now: clock}
}

// Apply folds one pushed change into the authoritative store.
//
// The version check: a non-additive change is accepted only when the
// stored version is at or below the pushed base version; a base that lags
// the store means another device has written since and is a conflict.
// Additive changes skip the check and merge over whatever is stored. The
// resulting version is max(stored, base)+1 so no client ever observes its
// own version moving backwards on acknowledgement.
func (s *Service) Apply(ctx context.Context, userID string, ch Change) (*Record, error) {
	if !ch.Type.Valid() {
		return nil, common.ErrUnknownEntity
	}
	if ch.ID == "" {
		return nil, common.ErrValidation
	}

	existing, err := s.repo.Get(ctx, userID, ch.Type, ch.ID)
	if err != nil && !errors.Is(err, common.ErrNotFound) {
		return nil, err
	}

	if existing != nil && !ch.SkipConflictCheck && existing.Version > ch.BaseVersion {
		return nil, &ConflictError{Record: existing}
	}
	if existing == nil && ch.Op != models.OpCreate {
		return nil, common.ErrNotFound
	}

	rec := s.merge(existing, ch)
	rec.UserID = userID
	if err := s.repo.Upsert(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

func (s *Service) merge(existing *Record, ch Change) *Record {
	now := s.now().UTC()

	var stored int64
	rec := &Record{Type: ch.Type, ID: ch.ID}
	if existing != nil {
		stored = existing.Version
		rec = cloneRecord(existing)
	}

	switch ch.Op {
	case models.OpCreate:
		// a create replaces the full field set; it also revives a tombstone
		rec.Fields = ch.Fields.Clone()
		rec.Deleted = false
		rec.DeletedAt = nil
	case models.OpUpdate:
		if rec.Fields == nil {
			rec.Fields = models.Fields{}
		}
		rec.Fields = rec.Fields.Clone().Merge(ch.Fields)
	case models.OpDelete:
		rec.Deleted = true
		rec.DeletedAt = &now
	}

	rec.Version = maxInt64(stored, ch.BaseVersion) + 1
	rec.ModifiedAt = now
	rec.DeviceID = ch.DeviceID
	rec.DeviceActive = ch.DeviceActive
	return rec
}

// Get returns one record. Tombstones are returned as-is.
func (s *Service) Get(ctx context.Context, userID string, typ models.EntityType, id string) (*Record, error) {
	return s.repo.Get(ctx, userID, typ, id)
}

// ListSince returns the pull feed: every record the user owns that moved
// after the watermark, tombstones included.
func (s *Service) ListSince(ctx context.Context, userID string, since time.Time) ([]*Record, error) {
	return s.repo.ListSince(ctx, userID, since)
}

func maxInt64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}
