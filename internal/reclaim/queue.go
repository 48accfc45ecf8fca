package reclaim

import (
	"context"
	"time"
)

// Task asks for a stored artifact to be reclaimed. Tasks are produced when a
// process ends without the pending artifacts becoming canonical (rejection,
// cancellation, expiry) and when a re-upload replaces a pending artifact.
type Task struct {
	ID          string
	ProcessID   string
	DocumentID  string
	ArtifactRef string

	EnqueuedAt time.Time

	// NotBefore is the earliest time this task should be eligible for
	// processing. Zero value means "immediately".
	NotBefore time.Time

	// Attempts counts prior failed reclaim attempts for this task.
	Attempts int
}

// Queue is a simple async reclamation queue interface.
type Queue interface {
	// Enqueue adds a task to the queue. It should respect ctx for cancellation.
	Enqueue(ctx context.Context, t Task) error

	// Dequeue removes and returns the next eligible task, blocking until one
	// is available or the context is cancelled.
	Dequeue(ctx context.Context) (*Task, error)

	// Len returns the approximate number of tasks queued.
	Len() int
}
