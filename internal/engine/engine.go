package engine

import (
	"errors"
	"fmt"
	"time"

	"github.com/mvilaca/triage/internal/persistence"
	"github.com/mvilaca/triage/internal/reclaim"
	"github.com/mvilaca/triage/pkg/api"
)

// Config carries the collaborators and policies of an engine instance.
type Config struct {
	// Persistence provides the process and version stores. Required.
	Persistence persistence.Persistence

	// Observer receives lifecycle callbacks. Nil means NoopObserver.
	Observer api.Observer

	// Directory is the canonical professional record, consumed by the
	// versioning operations. Required for snapshot/version use.
	Directory api.Directory

	// Reclaim is the artifact reclamation queue. Nil disables reclamation
	// scheduling (artifact references are still tracked).
	Reclaim reclaim.Queue

	// Tokens issues public-access token values. Nil means RandomTokenSource.
	Tokens api.TokenSource

	// Clock returns the current time. Nil means time.Now. Tests inject a
	// fixed clock here.
	Clock func() time.Time

	// TokenTTL is the lifetime of issued public-access tokens. Zero means
	// tokens do not expire.
	TokenTTL time.Duration

	// ProcessTTL is the overall process deadline counted from creation.
	// Zero means processes do not expire.
	ProcessTTL time.Duration

	// Sections is the set of snapshot sections this deployment accepts.
	// Nil means DefaultSections.
	Sections []string
}

// engineImpl is the implementation of api.Engine.
type engineImpl struct {
	processes persistence.ProcessStore
	versions  persistence.VersionStore
	observer  api.Observer
	directory api.Directory
	reclaim   reclaim.Queue
	tokens    api.TokenSource
	clock     func() time.Time

	tokenTTL   time.Duration
	processTTL time.Duration
	sections   map[string]bool
}

// Ensure engineImpl implements api.Engine.
var _ api.Engine = (*engineImpl)(nil)

// New creates an Engine from the given Config.
func New(cfg Config) api.Engine {
	if cfg.Observer == nil {
		cfg.Observer = api.NoopObserver{}
	}
	if cfg.Tokens == nil {
		cfg.Tokens = api.RandomTokenSource{}
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.Sections == nil {
		cfg.Sections = api.DefaultSections()
	}
	sections := make(map[string]bool, len(cfg.Sections))
	for _, s := range cfg.Sections {
		sections[s] = true
	}
	return &engineImpl{
		processes:  cfg.Persistence.Processes,
		versions:   cfg.Persistence.Versions,
		observer:   cfg.Observer,
		directory:  cfg.Directory,
		reclaim:    cfg.Reclaim,
		tokens:     cfg.Tokens,
		clock:      cfg.Clock,
		tokenTTL:   cfg.TokenTTL,
		processTTL: cfg.ProcessTTL,
		sections:   sections,
	}
}

func (e *engineImpl) now() time.Time {
	return e.clock()
}

// storeErr translates persistence sentinels into the public taxonomy.
func storeErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, persistence.ErrProcessNotFound),
		errors.Is(err, persistence.ErrVersionNotFound):
		return fmt.Errorf("%w: %v", api.ErrNotFound, err)
	case errors.Is(err, persistence.ErrConflict),
		errors.Is(err, persistence.ErrDuplicateVersion):
		return fmt.Errorf("%w: %v", api.ErrConcurrentModification, err)
	case errors.Is(err, persistence.ErrDuplicateActiveProcess):
		return fmt.Errorf("%w: %v", api.ErrValidationFailed, err)
	case errors.Is(err, persistence.ErrNotPending):
		return fmt.Errorf("%w: %v", api.ErrVersionNotPending, err)
	default:
		return err
	}
}

// mutable rejects mutations on processes that are terminal or frozen by an
// unresolved alert. Alert operations have their own rules and do not call it.
func mutable(p *api.Process) error {
	if p.Status.Terminal() {
		return fmt.Errorf("process %s is %s: %w", p.ID, p.Status, api.ErrInvalidTransition)
	}
	if p.Blocked() {
		return fmt.Errorf("process %s: %w", p.ID, api.ErrProcessBlockedByAlert)
	}
	return nil
}

// finish stamps a terminal status onto the process and clears the pointer.
func (e *engineImpl) finish(p *api.Process, status api.Status, actor api.Actor) {
	now := e.now()
	p.Status = status
	p.Current = ""
	p.FinishedBy = actor.ID
	p.FinishedAt = &now
	p.UpdatedAt = now
}
