package store

import (
	"context"

	"github.com/nhle/mail-autoreply/internal/model"
)

// ActivityFilter controls filtering and pagination for archive queries.
type ActivityFilter struct {
	Kind   *model.ActivityKind
	Query  *string // matches subject or sender
	Limit  int
	Offset int
}

// Store defines the persistence interface for the activity archive.
type Store interface {
	RecordActivity(ctx context.Context, a model.Activity) error
	GetActivities(ctx context.Context, filter ActivityFilter) ([]model.Activity, error)
	CountByKind(ctx context.Context) (map[model.ActivityKind]int, error)
	Close() error
}
