// Package store persists jobs behind a small key-value repository
// interface so the state machine never depends on a concrete backend.
package store

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/bobarin/iris/internal/models"
)

// ErrNotFound is returned when a job id has no stored record.
var ErrNotFound = errors.New("job not found")

// JobStore is the persistence contract consumed by the state machine.
// Implementations store and return independent copies: callers may
// mutate what they pass in or get back without affecting the store.
type JobStore interface {
	Create(ctx context.Context, job *models.Job) error
	Get(ctx context.Context, id uuid.UUID) (*models.Job, error)
	Save(ctx context.Context, job *models.Job) error
	List(ctx context.Context) ([]*models.Job, error)
}
