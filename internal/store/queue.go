package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/TheVisher/pawkit-sync/internal/common"
	"github.com/TheVisher/pawkit-sync/internal/dbx"
	"github.com/TheVisher/pawkit-sync/internal/models"
)

// queueWrite is one mutation about to be folded into the outbound queue.
type queueWrite struct {
	entityType        models.EntityType
	entityID          string
	op                models.Operation
	payload           models.Fields
	base              int64
	now               time.Time
	skipConflictCheck bool
}

const queueColumns = `entity_type, entity_id, op, payload, base_version, seq,
	retry_count, next_attempt_at, created_at, state, last_error, skip_conflict_check`

func scanQueueItem(row rowScanner) (*models.QueueItem, error) {
	var (
		it            models.QueueItem
		payload       string
		nextAttemptAt string
		createdAt     string
	)
	err := row.Scan(&it.EntityType, &it.EntityID, &it.Op, &payload, &it.BaseVersion, &it.Seq,
		&it.RetryCount, &nextAttemptAt, &createdAt, &it.State, &it.LastError, &it.SkipConflictCheck)
	if err != nil {
		return nil, err
	}
	if payload != "" {
		if err := json.Unmarshal([]byte(payload), &it.Payload); err != nil {
			return nil, fmt.Errorf("failed to decode queue payload: %w", err)
		}
	}
	if it.NextAttemptAt, err = parseTime(nextAttemptAt); err != nil {
		return nil, fmt.Errorf("failed to parse next_attempt_at: %w", err)
	}
	if it.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("failed to parse created_at: %w", err)
	}
	return &it, nil
}

// enqueueTx folds one mutation into the queue so at most one row per
// entity exists. Coalescing rules:
//
//   - delete over a pending create removes the row and settles the
//     tombstone as synced: the server never saw the entity, so nothing
//     needs pushing.
//   - delete over anything else becomes a delete with an empty payload.
//   - update over a pending create stays a create and carries the full
//     merged field set.
//   - update over update merges payloads, later keys win.
//
// Any fresh mutation resets the retry counter, revives a parked row and
// bumps the sequence so an in-flight drain cannot acknowledge the new
// content.
func (s *Store) enqueueTx(ctx context.Context, tx dbx.DBTX, w queueWrite) error {
	row := tx.QueryRowContext(ctx,
		`SELECT `+queueColumns+` FROM sync_queue WHERE entity_type = ? AND entity_id = ?`,
		w.entityType, w.entityID)
	existing, err := scanQueueItem(row)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("failed to load queue row: %w", err)
	}

	if existing == nil {
		return insertQueueItemTx(ctx, tx, w)
	}

	if w.op == models.OpDelete && existing.Op == models.OpCreate {
		_, err := tx.ExecContext(ctx,
			`DELETE FROM sync_queue WHERE entity_type = ? AND entity_id = ?`,
			w.entityType, w.entityID)
		if err != nil {
			return fmt.Errorf("failed to drop queue row: %w", err)
		}
		// the server never saw this entity, so the tombstone has nothing
		// left to push
		_, err = tx.ExecContext(ctx,
			`UPDATE entities SET synced = 1 WHERE entity_type = ? AND id = ?`,
			w.entityType, w.entityID)
		if err != nil {
			return fmt.Errorf("failed to settle cancelled create: %w", err)
		}
		return nil
	}

	op := existing.Op
	payload := existing.Payload
	skip := existing.SkipConflictCheck && w.skipConflictCheck
	switch w.op {
	case models.OpDelete:
		op = models.OpDelete
		payload = nil
		skip = false
	case models.OpUpdate:
		if existing.Op == models.OpDelete {
			// a restore after a queued delete: push the full record again
			op = models.OpCreate
			payload = w.payload.Clone()
		} else {
			payload = payload.Clone().Merge(w.payload)
		}
	case models.OpCreate:
		op = models.OpCreate
		payload = w.payload.Clone()
	}

	encoded, err := encodeQueuePayload(payload)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `
		UPDATE sync_queue SET
			op = ?, payload = ?, base_version = ?, seq = seq + 1,
			retry_count = 0, next_attempt_at = ?, state = ?,
			last_error = '', skip_conflict_check = ?
		WHERE entity_type = ? AND entity_id = ?`,
		op, encoded, w.base, formatTime(w.now), models.QueuePending, skip,
		w.entityType, w.entityID)
	if err != nil {
		return fmt.Errorf("failed to coalesce queue row: %w", err)
	}
	return nil
}

func insertQueueItemTx(ctx context.Context, tx dbx.DBTX, w queueWrite) error {
	encoded, err := encodeQueuePayload(w.payload)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO sync_queue (entity_type, entity_id, op, payload, base_version, seq,
			retry_count, next_attempt_at, created_at, state, last_error, skip_conflict_check)
		VALUES (?, ?, ?, ?, ?, 1, 0, ?, ?, ?, '', ?)`,
		w.entityType, w.entityID, w.op, encoded, w.base,
		formatTime(w.now), formatTime(w.now), models.QueuePending, w.skipConflictCheck)
	if err != nil {
		return fmt.Errorf("failed to insert queue row: %w", err)
	}
	return nil
}

func encodeQueuePayload(f models.Fields) (string, error) {
	if f == nil {
		return "", nil
	}
	b, err := json.Marshal(f)
	if err != nil {
		return "", fmt.Errorf("failed to encode queue payload: %w", err)
	}
	return string(b), nil
}

// GetQueueItem loads the pending row for one entity, common.ErrNotFound
// when nothing is queued.
func (s *Store) GetQueueItem(ctx context.Context, typ models.EntityType, id string) (*models.QueueItem, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+queueColumns+` FROM sync_queue WHERE entity_type = ? AND entity_id = ?`, typ, id)
	it, err := scanQueueItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load queue row: %w", err)
	}
	return it, nil
}

// DueItems returns pending queue rows whose next attempt time has passed,
// oldest first, capped at limit (0 means no cap).
func (s *Store) DueItems(ctx context.Context, limit int) ([]*models.QueueItem, error) {
	query := `SELECT ` + queueColumns + ` FROM sync_queue
		WHERE state = ? AND next_attempt_at <= ?
		ORDER BY created_at, entity_id`
	args := []any{models.QueuePending, formatTime(s.now())}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query due items: %w", err)
	}
	defer rows.Close()

	var items []*models.QueueItem
	for rows.Next() {
		it, err := scanQueueItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

// PendingCount reports how many rows wait in the queue, parked included.
func (s *Store) PendingCount(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sync_queue`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count queue rows: %w", err)
	}
	return n, nil
}

// ParkedItems lists rows parked after exhausting their retries.
func (s *Store) ParkedItems(ctx context.Context) ([]*models.QueueItem, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+queueColumns+` FROM sync_queue WHERE state = ? ORDER BY created_at, entity_id`,
		models.QueueParked)
	if err != nil {
		return nil, fmt.Errorf("failed to query parked items: %w", err)
	}
	defer rows.Close()

	var items []*models.QueueItem
	for rows.Next() {
		it, err := scanQueueItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

// AckItem removes a queue row after a successful push. The delete is
// guarded by the sequence captured at drain time: if a new local mutation
// coalesced in while the push was in flight, the row survives and the new
// content is pushed on the next drain.
func (s *Store) AckItem(ctx context.Context, it *models.QueueItem) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM sync_queue WHERE entity_type = ? AND entity_id = ? AND seq = ?`,
		it.EntityType, it.EntityID, it.Seq)
	if err != nil {
		return fmt.Errorf("failed to ack queue row: %w", err)
	}
	return nil
}

// RescheduleItem records a retryable failure: the attempt counter grows
// and the row sleeps until nextAttempt.
func (s *Store) RescheduleItem(ctx context.Context, it *models.QueueItem, nextAttempt time.Time, cause string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE sync_queue SET retry_count = retry_count + 1, next_attempt_at = ?, last_error = ?
		WHERE entity_type = ? AND entity_id = ? AND seq = ?`,
		formatTime(nextAttempt), cause, it.EntityType, it.EntityID, it.Seq)
	if err != nil {
		return fmt.Errorf("failed to reschedule queue row: %w", err)
	}
	return nil
}

// ParkItem takes a row out of rotation after its retry budget ran out.
// A later local mutation on the same entity revives it.
func (s *Store) ParkItem(ctx context.Context, it *models.QueueItem, cause string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE sync_queue SET state = ?, last_error = ?
		WHERE entity_type = ? AND entity_id = ? AND seq = ?`,
		models.QueueParked, cause, it.EntityType, it.EntityID, it.Seq)
	if err != nil {
		return fmt.Errorf("failed to park queue row: %w", err)
	}
	return nil
}

// RemoveItem drops a queue row unconditionally. Used when conflict
// resolution decides the server copy wins and the local push is obsolete.
func (s *Store) RemoveItem(ctx context.Context, typ models.EntityType, id string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM sync_queue WHERE entity_type = ? AND entity_id = ?`, typ, id)
	if err != nil {
		return fmt.Errorf("failed to remove queue row: %w", err)
	}
	return nil
}

// ReplaceItemPayload swaps a row's payload and base version after conflict
// resolution produced a merged record to push. The row is made due
// immediately with a fresh retry budget.
func (s *Store) ReplaceItemPayload(ctx context.Context, it *models.QueueItem, payload models.Fields, base int64) error {
	encoded, err := encodeQueuePayload(payload)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE sync_queue SET payload = ?, base_version = ?, seq = seq + 1,
			retry_count = 0, next_attempt_at = ?, state = ?, last_error = ''
		WHERE entity_type = ? AND entity_id = ? AND seq = ?`,
		encoded, base, formatTime(s.now()), models.QueuePending,
		it.EntityType, it.EntityID, it.Seq)
	if err != nil {
		return fmt.Errorf("failed to replace queue payload: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return common.ErrNotFound
	}
	return nil
}
