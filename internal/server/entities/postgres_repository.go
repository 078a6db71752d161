package entities

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/TheVisher/pawkit-sync/internal/common"
	"github.com/TheVisher/pawkit-sync/internal/models"
)

type PostgresRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

const recordColumns = `user_id, entity_type, entity_id, fields, version,
	deleted, deleted_at, modified_at, device_id, device_active`

func (r *PostgresRepository) Get(ctx context.Context, userID string, typ models.EntityType, id string) (*Record, error) {
	query := `SELECT ` + recordColumns + ` FROM entities
	          WHERE user_id = $1 AND entity_type = $2 AND entity_id = $3`

	rec, err := scanRecord(r.pool.QueryRow(ctx, query, userID, typ, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("error performing sql request: %w", err)
	}
	return rec, nil
}

func (r *PostgresRepository) Upsert(ctx context.Context, rec *Record) error {
	fields, err := json.Marshal(rec.Fields)
	if err != nil {
		return fmt.Errorf("error encoding fields: %w", err)
	}

	query := `INSERT INTO entities (user_id, entity_type, entity_id, fields, version,
	              deleted, deleted_at, modified_at, device_id, device_active)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	          ON CONFLICT (user_id, entity_type, entity_id) DO UPDATE SET
	              fields = excluded.fields,
	              version = excluded.version,
	              deleted = excluded.deleted,
	              deleted_at = excluded.deleted_at,
	              modified_at = excluded.modified_at,
	              device_id = excluded.device_id,
	              device_active = excluded.device_active`

	_, err = r.pool.Exec(ctx, query,
		rec.UserID, rec.Type, rec.ID, fields, rec.Version,
		rec.Deleted, rec.DeletedAt, rec.ModifiedAt, rec.DeviceID, rec.DeviceActive)
	if err != nil {
		return fmt.Errorf("error performing sql request: %w", err)
	}
	return nil
}

func (r *PostgresRepository) ListSince(ctx context.Context, userID string, since time.Time) ([]*Record, error) {
	query := `SELECT ` + recordColumns + ` FROM entities
	          WHERE user_id = $1 AND modified_at > $2
	          ORDER BY modified_at, entity_id`

	rows, err := r.pool.Query(ctx, query, userID, since)
	if err != nil {
		return nil, fmt.Errorf("error performing sql request: %w", err)
	}
	defer rows.Close()

	var records []*Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("error scanning row: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func scanRecord(row pgx.Row) (*Record, error) {
	var (
		rec    Record
		fields []byte
	)
	err := row.Scan(&rec.UserID, &rec.Type, &rec.ID, &fields, &rec.Version,
		&rec.Deleted, &rec.DeletedAt, &rec.ModifiedAt, &rec.DeviceID, &rec.DeviceActive)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(fields, &rec.Fields); err != nil {
		return nil, fmt.Errorf("error decoding fields: %w", err)
	}
	return &rec, nil
}
