package ingest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/fastctx/fastctx/pkg/metrics"
	"github.com/fastctx/fastctx/pkg/models"
	"github.com/fastctx/fastctx/pkg/storage"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ErrUnknownKind is returned for a run kind the runner cannot execute
var ErrUnknownKind = errors.New("unknown run kind")

// ErrShutdown is returned by Start once Shutdown has been called
var ErrShutdown = errors.New("runner is shut down")

// Ingester is the work a run performs
type Ingester interface {
	IngestDirectory(ctx context.Context, root string, extra map[string]interface{}) (*models.IngestStats, error)
	IngestGitHub(ctx context.Context, url string) (*models.IngestStats, error)
	IndexCodebase(ctx context.Context, root string) (*models.IngestStats, error)
}

// Runner executes ingestions and records them in the run ledger
type Runner struct {
	ingester Ingester
	store    storage.Store
	logger   zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex // guards closed and wg.Add
	closed bool
}

// NewRunner creates a runner. Background runs are cancelled by Shutdown.
func NewRunner(ingester Ingester, store storage.Store, logger zerolog.Logger) *Runner {
	ctx, cancel := context.WithCancel(context.Background())
	return &Runner{
		ingester: ingester,
		store:    store,
		logger:   logger.With().Str("component", "runner").Logger(),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Recover fails runs a previous process left unfinished
func (r *Runner) Recover(ctx context.Context) error {
	n, err := storage.RecoverInterrupted(ctx, r.store)
	if err != nil {
		return err
	}
	if n > 0 {
		r.logger.Warn().Int("runs", n).Msg("Marked interrupted runs as failed")
	}
	return nil
}

func (r *Runner) create(ctx context.Context, kind, target string) (*models.Run, error) {
	switch kind {
	case models.RunKindLocal, models.RunKindGitHub, models.RunKindIndex:
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}

	run := &models.Run{
		Kind:          kind,
		Target:        target,
		Status:        models.RunPending,
		CorrelationID: uuid.New().String(),
		CreatedAt:     time.Now().UTC(),
	}
	if _, err := r.store.Create(ctx, run); err != nil {
		return nil, fmt.Errorf("record run: %w", err)
	}
	return run, nil
}

// Start records a pending run and executes it in the background. The
// returned run is a snapshot; poll Get for progress.
func (r *Runner) Start(ctx context.Context, kind, target string) (*models.Run, error) {
	if r.isClosed() {
		return nil, ErrShutdown
	}
	run, err := r.create(ctx, kind, target)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		// Shutdown won the race after the run was recorded.
		finished := time.Now().UTC()
		run.Status = models.RunFailed
		run.Error = ErrShutdown.Error()
		run.FinishedAt = &finished
		r.save(run, r.logger)
		return nil, ErrShutdown
	}
	r.wg.Add(1)
	r.mu.Unlock()

	snapshot := *run
	go func() {
		defer r.wg.Done()
		r.execute(r.ctx, run)
	}()

	return &snapshot, nil
}

// Run records and executes a run synchronously. A failed ingestion is
// reported both in the returned run and as the error.
func (r *Runner) Run(ctx context.Context, kind, target string) (*models.Run, error) {
	run, err := r.create(ctx, kind, target)
	if err != nil {
		return nil, err
	}
	if err := r.execute(ctx, run); err != nil {
		return run, err
	}
	return run, nil
}

func (r *Runner) dispatch(ctx context.Context, run *models.Run) (*models.IngestStats, error) {
	switch run.Kind {
	case models.RunKindLocal:
		return r.ingester.IngestDirectory(ctx, run.Target, nil)
	case models.RunKindGitHub:
		return r.ingester.IngestGitHub(ctx, run.Target)
	case models.RunKindIndex:
		return r.ingester.IndexCodebase(ctx, run.Target)
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownKind, run.Kind)
}

func (r *Runner) execute(ctx context.Context, run *models.Run) error {
	logger := r.logger.With().
		Int("run_id", run.ID).
		Str("kind", run.Kind).
		Str("target", run.Target).
		Str("correlation_id", run.CorrelationID).
		Logger()

	started := time.Now().UTC()
	run.Status = models.RunRunning
	run.StartedAt = &started
	r.save(run, logger)
	logger.Info().Msg("Run started")

	stats, err := r.dispatch(logger.WithContext(ctx), run)

	finished := time.Now().UTC()
	run.FinishedAt = &finished
	run.Stats = stats
	if err != nil {
		run.Status = models.RunFailed
		run.Error = err.Error()
		logger.Error().Err(err).Msg("Run failed")
	} else {
		run.Status = models.RunCompleted
		logger.Info().Dur("duration", finished.Sub(started)).Msg("Run completed")
	}
	r.save(run, logger)

	metrics.Runs.WithLabelValues(run.Kind, string(run.Status)).Inc()
	metrics.RunDuration.WithLabelValues(run.Kind).Observe(finished.Sub(started).Seconds())
	return err
}

// save persists run state with a context detached from the request.
func (r *Runner) save(run *models.Run, logger zerolog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := r.store.Update(ctx, run); err != nil {
		logger.Error().Err(err).Msg("Failed to update run")
	}
}

// Get returns a run by ID
func (r *Runner) Get(ctx context.Context, id int) (*models.Run, error) {
	return r.store.Get(ctx, id)
}

// List returns runs matching filter, newest first
func (r *Runner) List(ctx context.Context, filter models.RunFilter) ([]*models.Run, error) {
	return r.store.List(ctx, filter)
}

// Wait blocks until every background run has finished
func (r *Runner) Wait() {
	r.wg.Wait()
}

func (r *Runner) isClosed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

// Shutdown stops accepting background runs, cancels the running ones and
// waits for them until ctx expires.
func (r *Runner) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
	r.cancel()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
