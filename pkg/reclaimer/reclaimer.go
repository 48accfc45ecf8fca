// Package reclaimer runs the background worker that releases orphaned
// document artifacts. Pending artifacts whose process ends without approval
// are enqueued for reclamation; this worker drains that queue against the
// configured ArtifactStore, retrying failures with a delay.
package reclaimer

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/mvilaca/triage/internal/reclaim"
	"github.com/mvilaca/triage/pkg/api"
)

// Config tunes the retry behavior of a Reclaimer.
type Config struct {
	// MaxAttempts is the number of times a failing task is tried before it
	// is dropped. Zero means the default of 5.
	MaxAttempts int

	// Backoff is the delay before a failed task becomes eligible again.
	// Zero means the default of 30 seconds.
	Backoff time.Duration

	// Logger receives drop and retry notices. Nil means slog.Default().
	Logger *slog.Logger
}

// Reclaimer pulls reclamation tasks from a Queue and executes them against
// an ArtifactStore.
type Reclaimer struct {
	store api.ArtifactStore
	queue reclaim.Queue
	cfg   Config
}

// New creates a new Reclaimer.
func New(store api.ArtifactStore, queue reclaim.Queue, cfg Config) *Reclaimer {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = 30 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Reclaimer{
		store: store,
		queue: queue,
		cfg:   cfg,
	}
}

// ProcessOne pulls a single task from the queue and processes it.
// Returns (processed, error):
//   - processed == false, err != nil: nothing processed (ctx cancelled or
//     dequeue failed before a task was obtained)
//   - processed == true: a task was handled; err reports a reclaim failure
//     that was re-enqueued or dropped.
func (r *Reclaimer) ProcessOne(ctx context.Context) (bool, error) {
	task, err := r.queue.Dequeue(ctx)
	if err != nil {
		return false, err
	}
	if task == nil {
		return false, nil
	}

	err = r.store.Reclaim(ctx, task.ArtifactRef)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		// Put the task back untouched; the worker is shutting down, not the
		// artifact store failing.
		_ = r.requeue(context.WithoutCancel(ctx), *task, false)
		return true, err
	}

	task.Attempts++
	if task.Attempts >= r.cfg.MaxAttempts {
		r.cfg.Logger.Error("dropping artifact reclaim task after max attempts",
			"process_id", task.ProcessID,
			"document_id", task.DocumentID,
			"artifact_ref", task.ArtifactRef,
			"attempts", task.Attempts,
			"error", err)
		return true, err
	}

	r.cfg.Logger.Warn("artifact reclaim failed, will retry",
		"process_id", task.ProcessID,
		"document_id", task.DocumentID,
		"attempts", task.Attempts,
		"error", err)
	if qerr := r.requeue(ctx, *task, true); qerr != nil {
		return true, qerr
	}
	return true, err
}

func (r *Reclaimer) requeue(ctx context.Context, t reclaim.Task, delay bool) error {
	if delay {
		t.NotBefore = time.Now().Add(r.cfg.Backoff)
	}
	return r.queue.Enqueue(ctx, t)
}

// Run processes tasks until the context is cancelled. Individual task
// failures are retried per Config and do not stop the loop.
func (r *Reclaimer) Run(ctx context.Context) error {
	for {
		_, err := r.ProcessOne(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
	}
}
