package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fastctx/fastctx/pkg/models"
)

var (
	// ErrNotFound is returned when a run is not found
	ErrNotFound = errors.New("run not found")
	// ErrAlreadyExists is returned when a run with the same ID already exists
	ErrAlreadyExists = errors.New("run already exists")
	// ErrInvalidID is returned when ID is invalid
	ErrInvalidID = errors.New("invalid ID")
)

// Store persists the run ledger
type Store interface {
	// Create assigns the next ID to run and stores it.
	Create(ctx context.Context, run *models.Run) (int, error)
	Get(ctx context.Context, id int) (*models.Run, error)
	Update(ctx context.Context, run *models.Run) error
	// Save stores a run under its existing ID.
	Save(ctx context.Context, run *models.Run) error
	Delete(ctx context.Context, id int) error

	// List returns matching runs, newest first.
	List(ctx context.Context, filter models.RunFilter) ([]*models.Run, error)

	Close() error
}

// StoreInfo provides metadata about the store implementation
type StoreInfo struct {
	Type    string // "jsonfile" or "sqlite"
	Version string
}

// InfoProvider allows stores to provide metadata about themselves
type InfoProvider interface {
	Info() StoreInfo
}

// RecoverInterrupted marks runs left pending or running by a previous
// process as failed and returns how many were touched.
func RecoverInterrupted(ctx context.Context, store Store) (int, error) {
	var stale []*models.Run
	for _, status := range []models.RunStatus{models.RunPending, models.RunRunning} {
		runs, err := store.List(ctx, models.RunFilter{Status: status})
		if err != nil {
			return 0, err
		}
		stale = append(stale, runs...)
	}

	now := time.Now().UTC()
	for _, run := range stale {
		run.Status = models.RunFailed
		run.Error = "interrupted by restart"
		run.FinishedAt = &now
		if err := store.Update(ctx, run); err != nil {
			return 0, fmt.Errorf("failed to recover run %d: %w", run.ID, err)
		}
	}
	return len(stale), nil
}

func applyLimit(runs []*models.Run, limit int) []*models.Run {
	if limit > 0 && len(runs) > limit {
		return runs[:limit]
	}
	return runs
}
