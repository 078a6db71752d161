package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/TheVisher/pawkit-sync/internal/common"
	"github.com/TheVisher/pawkit-sync/internal/dbx"
	"github.com/TheVisher/pawkit-sync/internal/models"
)

const entityColumns = `entity_type, id, payload, version, server_version, last_modified, synced, deleted, deleted_at, last_error`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntity(row rowScanner) (*models.Entity, error) {
	var (
		e            models.Entity
		payload      string
		lastModified string
		deletedAt    sql.NullString
	)
	err := row.Scan(&e.Type, &e.ID, &payload, &e.Version, &e.ServerVersion,
		&lastModified, &e.Synced, &e.Deleted, &deletedAt, &e.LastError)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(payload), &e.Fields); err != nil {
		return nil, fmt.Errorf("failed to decode entity payload: %w", err)
	}
	if e.LastModified, err = parseTime(lastModified); err != nil {
		return nil, fmt.Errorf("failed to parse last_modified: %w", err)
	}
	if deletedAt.Valid && deletedAt.String != "" {
		at, err := parseTime(deletedAt.String)
		if err != nil {
			return nil, fmt.Errorf("failed to parse deleted_at: %w", err)
		}
		e.DeletedAt = &at
	}
	return &e, nil
}

func upsertEntityTx(ctx context.Context, tx dbx.DBTX, e *models.Entity) error {
	payload, err := json.Marshal(e.Fields)
	if err != nil {
		return fmt.Errorf("failed to encode entity payload: %w", err)
	}
	var deletedAt any
	if e.DeletedAt != nil {
		deletedAt = formatTime(*e.DeletedAt)
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO entities (entity_type, id, workspace_id, collection_id, payload,
			version, server_version, last_modified, synced, deleted, deleted_at, last_error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (entity_type, id) DO UPDATE SET
			workspace_id   = excluded.workspace_id,
			collection_id  = excluded.collection_id,
			payload        = excluded.payload,
			version        = excluded.version,
			server_version = excluded.server_version,
			last_modified  = excluded.last_modified,
			synced         = excluded.synced,
			deleted        = excluded.deleted,
			deleted_at     = excluded.deleted_at,
			last_error     = excluded.last_error`,
		e.Type, e.ID, e.WorkspaceID(), e.CollectionID(), string(payload),
		e.Version, e.ServerVersion, formatTime(e.LastModified),
		e.Synced, e.Deleted, deletedAt, e.LastError)
	if err != nil {
		return fmt.Errorf("failed to upsert entity: %w", err)
	}
	return nil
}

func getEntityTx(ctx context.Context, tx dbx.DBTX, typ models.EntityType, id string) (*models.Entity, error) {
	row := tx.QueryRowContext(ctx,
		`SELECT `+entityColumns+` FROM entities WHERE entity_type = ? AND id = ?`, typ, id)
	e, err := scanEntity(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load entity: %w", err)
	}
	return e, nil
}

// Get loads one entity by type and id, tombstones included.
func (s *Store) Get(ctx context.Context, typ models.EntityType, id string) (*models.Entity, error) {
	return getEntityTx(ctx, s.db, typ, id)
}

// Put inserts a brand-new locally created entity and enqueues its create
// push in the same transaction.
func (s *Store) Put(ctx context.Context, e *models.Entity) error {
	if !e.Type.Valid() {
		return common.ErrUnknownEntity
	}
	now := s.now()
	e.LastModified = now
	e.Synced = false

	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if err := upsertEntityTx(ctx, tx, e); err != nil {
			return err
		}
		return s.enqueueTx(ctx, tx, queueWrite{
			entityType: e.Type,
			entityID:   e.ID,
			op:         models.OpCreate,
			payload:    e.Fields,
			base:       e.ServerVersion,
			now:        now,
		})
	})
	if err != nil {
		return err
	}
	s.notify(Event{Type: e.Type, ID: e.ID, Kind: EventPut})
	return nil
}

// UpdateOptions modify how a mutation is queued.
type UpdateOptions struct {
	// SkipConflictCheck marks the resulting push as additive enrichment:
	// the server may apply it without a version check and the resolver
	// merges it without conflict.
	SkipConflictCheck bool
}

// Update merges changes into the entity's fields, bumps version and
// last-modified, clears the synced flag and coalesces an update into the
// outbound queue, all in one transaction.
func (s *Store) Update(ctx context.Context, typ models.EntityType, id string, changes models.Fields) (*models.Entity, error) {
	return s.UpdateWithOptions(ctx, typ, id, changes, UpdateOptions{})
}

// UpdateWithOptions is Update with queueing options.
func (s *Store) UpdateWithOptions(ctx context.Context, typ models.EntityType, id string, changes models.Fields, opts UpdateOptions) (*models.Entity, error) {
	now := s.now()
	var updated *models.Entity

	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		e, err := getEntityTx(ctx, tx, typ, id)
		if err != nil {
			return err
		}
		e.Fields = e.Fields.Clone().Merge(changes)
		e.Version++
		e.LastModified = now
		e.Synced = false
		if err := upsertEntityTx(ctx, tx, e); err != nil {
			return err
		}
		updated = e
		return s.enqueueTx(ctx, tx, queueWrite{
			entityType:        typ,
			entityID:          id,
			op:                models.OpUpdate,
			payload:           changes,
			base:              e.ServerVersion,
			now:               now,
			skipConflictCheck: opts.SkipConflictCheck,
		})
	})
	if err != nil {
		return nil, err
	}
	s.notify(Event{Type: typ, ID: id, Kind: EventUpdate})
	return updated, nil
}

// SoftDelete marks the entity deleted, leaves the row in place as a
// tombstone and queues the delete push. A pending create for an entity the
// server never saw collapses to a no-op push.
func (s *Store) SoftDelete(ctx context.Context, typ models.EntityType, id string) error {
	now := s.now()
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		e, err := getEntityTx(ctx, tx, typ, id)
		if err != nil {
			return err
		}
		if e.Deleted {
			return nil
		}
		e.Deleted = true
		e.DeletedAt = &now
		e.Version++
		e.LastModified = now
		e.Synced = false
		if err := upsertEntityTx(ctx, tx, e); err != nil {
			return err
		}
		return s.enqueueTx(ctx, tx, queueWrite{
			entityType: typ,
			entityID:   id,
			op:         models.OpDelete,
			base:       e.ServerVersion,
			now:        now,
		})
	})
	if err != nil {
		return err
	}
	s.notify(Event{Type: typ, ID: id, Kind: EventDelete})
	return nil
}

// Restore clears the soft-delete flag within the retention window. The
// restore is pushed as a regular update carrying the full field set.
func (s *Store) Restore(ctx context.Context, typ models.EntityType, id string) error {
	now := s.now()
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		e, err := getEntityTx(ctx, tx, typ, id)
		if err != nil {
			return err
		}
		if !e.Deleted {
			return nil
		}
		e.Deleted = false
		e.DeletedAt = nil
		e.Version++
		e.LastModified = now
		e.Synced = false
		if err := upsertEntityTx(ctx, tx, e); err != nil {
			return err
		}
		return s.enqueueTx(ctx, tx, queueWrite{
			entityType: typ,
			entityID:   id,
			op:         models.OpCreate,
			payload:    e.Fields,
			base:       e.ServerVersion,
			now:        now,
		})
	})
	if err != nil {
		return err
	}
	s.notify(Event{Type: typ, ID: id, Kind: EventUpdate})
	return nil
}

// QueryOptions filter Query results. The zero value returns all live
// entities of a type.
type QueryOptions struct {
	WorkspaceID    string
	CollectionID   string
	IncludeDeleted bool
	OnlyDeleted    bool
	UnsyncedOnly   bool
}

// Query lists entities of one type, newest first. Soft-deleted rows are
// excluded unless IncludeDeleted or OnlyDeleted is set.
func (s *Store) Query(ctx context.Context, typ models.EntityType, opts QueryOptions) ([]*models.Entity, error) {
	var (
		conds = []string{"entity_type = ?"}
		args  = []any{typ}
	)
	switch {
	case opts.OnlyDeleted:
		conds = append(conds, "deleted = 1")
	case !opts.IncludeDeleted:
		conds = append(conds, "deleted = 0")
	}
	if opts.WorkspaceID != "" {
		conds = append(conds, "workspace_id = ?")
		args = append(args, opts.WorkspaceID)
	}
	if opts.CollectionID != "" {
		conds = append(conds, "collection_id = ?")
		args = append(args, opts.CollectionID)
	}
	if opts.UnsyncedOnly {
		conds = append(conds, "synced = 0")
	}

	query := `SELECT ` + entityColumns + ` FROM entities WHERE ` +
		strings.Join(conds, " AND ") + ` ORDER BY last_modified DESC, id`
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query entities: %w", err)
	}
	defer rows.Close()

	var result []*models.Entity
	for rows.Next() {
		e, err := scanEntity(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, e)
	}
	return result, rows.Err()
}

// PurgeDeleted physically removes tombstones older than the retention
// window and returns the number of rows dropped. Pending queue rows for
// purged entities are dropped with them.
func (s *Store) PurgeDeleted(ctx context.Context, retention time.Duration) (int, error) {
	cutoff := formatTime(s.now().Add(-retention))
	var purged int
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		_, err := tx.ExecContext(ctx, `
			DELETE FROM sync_queue WHERE (entity_type, entity_id) IN (
				SELECT entity_type, id FROM entities
				WHERE deleted = 1 AND deleted_at != '' AND deleted_at <= ?)`, cutoff)
		if err != nil {
			return fmt.Errorf("failed to purge queue rows: %w", err)
		}
		res, err := tx.ExecContext(ctx,
			`DELETE FROM entities WHERE deleted = 1 AND deleted_at != '' AND deleted_at <= ?`, cutoff)
		if err != nil {
			return fmt.Errorf("failed to purge entities: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		purged = int(n)
		return nil
	})
	return purged, err
}

// ApplyRemote writes a server-side record into the local replica without
// queueing anything: the row arrives already acknowledged. Used by the
// pull path for clean applies, stale-local overwrites and resolved-merge
// results that originated on the server.
func (s *Store) ApplyRemote(ctx context.Context, e *models.Entity) error {
	e.Synced = true
	e.ServerVersion = e.Version
	e.LastError = ""
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		return upsertEntityTx(ctx, tx, e)
	})
	if err != nil {
		return err
	}
	s.notify(Event{Type: e.Type, ID: e.ID, Kind: EventApplied})
	return nil
}

// SaveResolved writes a conflict-resolution result exactly as decided,
// without touching the queue. The caller replaces or removes the queue row
// separately.
func (s *Store) SaveResolved(ctx context.Context, e *models.Entity) error {
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		return upsertEntityTx(ctx, tx, e)
	})
	if err != nil {
		return err
	}
	s.notify(Event{Type: e.Type, ID: e.ID, Kind: EventUpdate})
	return nil
}

// MarkSynced acknowledges a successful push: the entity adopts the
// server's authoritative version and clears its error state. The ack is
// skipped when the local version moved past the pushed snapshot in the
// meantime.
func (s *Store) MarkSynced(ctx context.Context, typ models.EntityType, id string, pushedVersion, serverVersion int64, serverModified time.Time) error {
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		e, err := getEntityTx(ctx, tx, typ, id)
		if err != nil {
			return err
		}
		e.ServerVersion = serverVersion
		if e.Version == pushedVersion {
			e.Version = serverVersion
			e.Synced = true
			e.LastError = ""
			if !serverModified.IsZero() {
				e.LastModified = serverModified.UTC()
			}
		}
		return upsertEntityTx(ctx, tx, e)
	})
	if err != nil {
		return err
	}
	s.notify(Event{Type: typ, ID: id, Kind: EventApplied})
	return nil
}

// SetLastError records a non-retryable push failure on the entity row so
// the UI can observe it reactively.
func (s *Store) SetLastError(ctx context.Context, typ models.EntityType, id string, msg string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE entities SET last_error = ? WHERE entity_type = ? AND id = ?`, msg, typ, id)
	if err != nil {
		return fmt.Errorf("failed to set last error: %w", err)
	}
	s.notify(Event{Type: typ, ID: id, Kind: EventUpdate})
	return nil
}

// LastPulledAt returns the pull watermark, zero if no pull has completed.
func (s *Store) LastPulledAt(ctx context.Context) (time.Time, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, `SELECT last_pulled_at FROM sync_state WHERE id = 1`).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to load pull watermark: %w", err)
	}
	return parseTime(raw)
}

// SetLastPulledAt persists the pull watermark.
func (s *Store) SetLastPulledAt(ctx context.Context, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sync_state (id, last_pulled_at) VALUES (1, ?)
		ON CONFLICT (id) DO UPDATE SET last_pulled_at = excluded.last_pulled_at`,
		formatTime(at))
	if err != nil {
		return fmt.Errorf("failed to save pull watermark: %w", err)
	}
	return nil
}

// LogConflict appends one resolved conflict to the conflict log.
func (s *Store) LogConflict(ctx context.Context, typ models.EntityType, id string, localVersion, serverVersion int64, winner string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO conflict_log (entity_type, entity_id, local_version, server_version, winner, detected_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		typ, id, localVersion, serverVersion, winner, formatTime(s.now()))
	if err != nil {
		return fmt.Errorf("failed to log conflict: %w", err)
	}
	return nil
}
