package entities

import (
	"time"

	"github.com/TheVisher/pawkit-sync/internal/models"
)

// Record is the server's authoritative copy of one entity.
type Record struct {
	UserID       string
	Type         models.EntityType
	ID           string
	Fields       models.Fields
	Version      int64
	Deleted      bool
	DeletedAt    *time.Time
	ModifiedAt   time.Time
	DeviceID     string
	DeviceActive bool
}

// Change is one mutation a client pushed.
type Change struct {
	Op                models.Operation
	Type              models.EntityType
	ID                string
	Fields            models.Fields
	BaseVersion       int64
	SkipConflictCheck bool
	DeviceID          string
	DeviceActive      bool
}
