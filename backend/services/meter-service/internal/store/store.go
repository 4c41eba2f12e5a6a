package store

import (
	"context"
	"errors"
	"time"

	"meterflow/backend/services/meter-service/internal/models"
)

// ErrEmpty is returned when no series has been ingested yet or it was cleared.
var ErrEmpty = errors.New("store: no series loaded")

// Snapshot is the authoritative merged series together with where it came from.
type Snapshot struct {
	IngestionID string                `json:"ingestion_id"`
	Source      string                `json:"source"`
	IngestedAt  time.Time             `json:"ingested_at"`
	Records     []models.MergedRecord `json:"records"`
}

// SeriesStore holds at most one current snapshot.
type SeriesStore interface {
	Load(ctx context.Context) (*Snapshot, error)
	Replace(ctx context.Context, snap Snapshot) error
	Clear(ctx context.Context) error
}
