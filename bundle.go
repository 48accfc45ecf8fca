package triage

import (
	"database/sql"

	"github.com/mvilaca/triage/internal/engine"
	"github.com/mvilaca/triage/internal/persistence"
	"github.com/mvilaca/triage/internal/reclaim"
	reclaimerpkg "github.com/mvilaca/triage/pkg/reclaimer"
)

// Bundle wires together an Engine, a durable reclamation queue, and a
// Reclaimer that drains it against the given ArtifactStore. Processes that
// end in rejection, cancellation, or expiry enqueue their pending artifacts;
// the Reclaimer releases them.
type Bundle struct {
	Engine    Engine
	Reclaimer *reclaimerpkg.Reclaimer

	// queue is kept unexported; it is primarily useful for internal
	// inspection and tests. The public API focuses on Engine and Reclaimer.
	queue reclaim.Queue
}

// NewSQLiteBundle constructs a durable Engine + queue + Reclaimer combo
// sharing the same SQLite database.
//
// Typical usage:
//
//	db, _ := sql.Open("sqlite", "file:triage.db?_journal=WAL")
//	bundle, err := triage.NewSQLiteBundle(db, artifacts, triage.Options{}, reclaimer.Config{})
//	go bundle.Reclaimer.Run(ctx)
func NewSQLiteBundle(db *sql.DB, artifacts ArtifactStore, opts Options, cfg reclaimerpkg.Config) (*Bundle, error) {
	store, err := persistence.NewSQLiteStore(db)
	if err != nil {
		return nil, err
	}
	queue, err := reclaim.NewSQLiteQueue(db)
	if err != nil {
		return nil, err
	}

	eng := engine.New(opts.engineConfig(persistence.Persistence{
		Processes: store,
		Versions:  store,
	}, queue))

	return &Bundle{
		Engine:    eng,
		Reclaimer: reclaimerpkg.New(artifacts, queue, cfg),
		queue:     queue,
	}, nil
}

// NewInMemoryBundle constructs an in-memory Engine + queue + Reclaimer combo.
// Intended for tests and small deployments.
func NewInMemoryBundle(artifacts ArtifactStore, opts Options, cfg reclaimerpkg.Config) *Bundle {
	store := persistence.NewInMemoryStore()
	queue := reclaim.NewInMemoryQueue(0)

	eng := engine.New(opts.engineConfig(persistence.Persistence{
		Processes: store,
		Versions:  store,
	}, queue))

	return &Bundle{
		Engine:    eng,
		Reclaimer: reclaimerpkg.New(artifacts, queue, cfg),
		queue:     queue,
	}
}
