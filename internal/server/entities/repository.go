package entities

import (
	"context"
	"time"

	"github.com/TheVisher/pawkit-sync/internal/models"
)

type Repository interface {
	Get(ctx context.Context, userID string, typ models.EntityType, id string) (*Record, error)
	Upsert(ctx context.Context, rec *Record) error
	ListSince(ctx context.Context, userID string, since time.Time) ([]*Record, error)
}
