package reclaim

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// SQLiteQueue is a persistent reclamation queue backed by SQLite. It is safe
// for concurrent use for our purposes, using simple FIFO semantics based on
// an auto-incrementing id.
type SQLiteQueue struct {
	db           *sql.DB
	pollInterval time.Duration
}

// NewSQLiteQueue initializes the reclaim_tasks table in the given DB and
// returns a new queue.
func NewSQLiteQueue(db *sql.DB) (*SQLiteQueue, error) {
	q := &SQLiteQueue{
		db:           db,
		pollInterval: 20 * time.Millisecond,
	}
	if err := q.initSchema(); err != nil {
		return nil, err
	}
	return q, nil
}

func (q *SQLiteQueue) initSchema() error {
	_, err := q.db.Exec(`
		CREATE TABLE IF NOT EXISTS reclaim_tasks (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			task_id TEXT,
			process_id TEXT NOT NULL,
			document_id TEXT NOT NULL,
			artifact_ref TEXT NOT NULL,
			enqueued_at INTEGER NOT NULL,
			not_before INTEGER NOT NULL,
			attempts INTEGER NOT NULL
		);
	`)
	return err
}

// Ensure SQLiteQueue implements Queue.
var _ Queue = (*SQLiteQueue)(nil)

func (q *SQLiteQueue) Enqueue(ctx context.Context, t Task) error {
	now := time.Now()
	enqueuedAt := now.UnixNano()

	var notBefore int64
	if t.NotBefore.IsZero() {
		notBefore = enqueuedAt
	} else {
		notBefore = t.NotBefore.UnixNano()
	}

	_, err := q.db.ExecContext(ctx, `
		INSERT INTO reclaim_tasks (task_id, process_id, document_id, artifact_ref, enqueued_at, not_before, attempts)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		t.ID,
		t.ProcessID,
		t.DocumentID,
		t.ArtifactRef,
		enqueuedAt,
		notBefore,
		t.Attempts,
	)
	return err
}

func (q *SQLiteQueue) Dequeue(ctx context.Context) (*Task, error) {
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		now := time.Now().UnixNano()

		tx, err := q.db.BeginTx(ctx, nil)
		if err != nil {
			return nil, err
		}

		var (
			id          int64
			taskID      sql.NullString
			processID   string
			documentID  string
			artifactRef string
			enqueuedInt int64
			notBefore   int64
			attempts    int
		)

		row := tx.QueryRowContext(ctx, `
			SELECT id, task_id, process_id, document_id, artifact_ref, enqueued_at, not_before, attempts
			FROM reclaim_tasks
			WHERE not_before <= ?
			ORDER BY not_before, id
			LIMIT 1`, now)
		err = row.Scan(&id, &taskID, &processID, &documentID, &artifactRef, &enqueuedInt, &notBefore, &attempts)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				_ = tx.Rollback()
				// Nothing available: sleep a bit and retry.
				select {
				case <-ctx.Done():
					return nil, ctx.Err()
				case <-time.After(q.pollInterval):
					continue
				}
			}
			_ = tx.Rollback()
			return nil, err
		}

		// Delete the row we just claimed.
		if _, err := tx.ExecContext(ctx, `DELETE FROM reclaim_tasks WHERE id = ?`, id); err != nil {
			_ = tx.Rollback()
			return nil, err
		}

		if err := tx.Commit(); err != nil {
			return nil, err
		}

		task := &Task{
			ID: func() string {
				if taskID.Valid {
					return taskID.String
				}
				return ""
			}(),
			ProcessID:   processID,
			DocumentID:  documentID,
			ArtifactRef: artifactRef,
			EnqueuedAt:  time.Unix(0, enqueuedInt),
			NotBefore:   time.Unix(0, notBefore),
			Attempts:    attempts,
		}

		return task, nil
	}
}

func (q *SQLiteQueue) Len() int {
	var n int
	err := q.db.QueryRow(`SELECT COUNT(*) FROM reclaim_tasks`).Scan(&n)
	if err != nil {
		return 0
	}
	return n
}
