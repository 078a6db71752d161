package entities

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/TheVisher/pawkit-sync/internal/common"
	"github.com/TheVisher/pawkit-sync/internal/models"
)

// MemoryRepository backs tests and single-binary development setups.
type MemoryRepository struct {
	mu      sync.RWMutex
	records map[string]*Record
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{records: make(map[string]*Record)}
}

func key(userID string, typ models.EntityType, id string) string {
	return userID + "/" + string(typ) + "/" + id
}

func (r *MemoryRepository) Get(ctx context.Context, userID string, typ models.EntityType, id string) (*Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.records[key(userID, typ, id)]
	if !ok {
		return nil, common.ErrNotFound
	}
	return cloneRecord(rec), nil
}

func (r *MemoryRepository) Upsert(ctx context.Context, rec *Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records[key(rec.UserID, rec.Type, rec.ID)] = cloneRecord(rec)
	return nil
}

func (r *MemoryRepository) ListSince(ctx context.Context, userID string, since time.Time) ([]*Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var records []*Record
	for _, rec := range r.records {
		if rec.UserID != userID || !rec.ModifiedAt.After(since) {
			continue
		}
		records = append(records, cloneRecord(rec))
	}
	sort.Slice(records, func(i, j int) bool {
		if !records[i].ModifiedAt.Equal(records[j].ModifiedAt) {
			return records[i].ModifiedAt.Before(records[j].ModifiedAt)
		}
		return records[i].ID < records[j].ID
	})
	return records, nil
}

func cloneRecord(rec *Record) *Record {
	out := *rec
	out.Fields = rec.Fields.Clone()
	return &out
}
