package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/mvilaca/triage/pkg/api"
)

var (
	// ErrProcessNotFound is returned when a process is not found.
	ErrProcessNotFound = errors.New("process not found")

	// ErrVersionNotFound is returned when a version is not found.
	ErrVersionNotFound = errors.New("version not found")

	// ErrConflict is returned when an optimistic revision check fails.
	ErrConflict = errors.New("revision conflict")

	// ErrDuplicateActiveProcess is returned when saving a process would
	// violate the one-non-terminal-process-per-identity rule.
	ErrDuplicateActiveProcess = errors.New("active process already exists for identity")

	// ErrDuplicateVersion is returned when a version number is already taken
	// for the professional. This is how a lost createVersion race surfaces.
	ErrDuplicateVersion = errors.New("version number already exists")

	// ErrNotPending is returned when marking a version that has already been
	// applied or rejected.
	ErrNotPending = errors.New("version not pending")
)

// ProcessStore handles storage of process aggregates (process, steps,
// documents, alerts).
//
// Concurrency contract: UpdateProcess checks the revision of the process row
// and of every step row it rewrites; UpdateStep checks only the step's own
// revision, so actors working on different steps of the same process do not
// contend. Both bump the revisions they verified, in the store and in the
// passed aggregate, on success.
type ProcessStore interface {
	// SaveProcess inserts a new process with its step rows. It fails with
	// ErrDuplicateActiveProcess when a non-terminal process already exists
	// for the same (tenant, identity document).
	SaveProcess(ctx context.Context, p *api.Process) error

	// GetProcess loads the full aggregate.
	GetProcess(ctx context.Context, id string) (*api.Process, error)

	// FindActiveByIdentity returns the non-terminal process for the given
	// identity document within a tenant, or ErrProcessNotFound.
	FindActiveByIdentity(ctx context.Context, tenantID, document string) (*api.Process, error)

	// FindByToken resolves a process through its public-access token value.
	FindByToken(ctx context.Context, token string) (*api.Process, error)

	// ListProcesses returns processes matching the filter.
	ListProcesses(ctx context.Context, filter api.ProcessFilter) ([]*api.Process, error)

	// UpdateProcess rewrites the whole aggregate under revision checks.
	UpdateProcess(ctx context.Context, p *api.Process) error

	// UpdateStep rewrites a single step (and its documents) under the
	// step's revision check.
	UpdateStep(ctx context.Context, processID string, step *api.Step) error
}

// VersionStore handles storage of versions and their diff sets.
type VersionStore interface {
	// SaveVersion inserts a version together with its diffs as one unit.
	// Fails with ErrDuplicateVersion when (professional, number) is taken.
	SaveVersion(ctx context.Context, v *api.Version) error

	// GetVersion loads a version by id.
	GetVersion(ctx context.Context, id string) (*api.Version, error)

	// ListVersions returns a professional's versions ordered by number.
	ListVersions(ctx context.Context, professionalID string) ([]*api.Version, error)

	// CurrentVersion returns the version with Current=true for the
	// professional, or ErrVersionNotFound when none exists yet.
	CurrentVersion(ctx context.Context, professionalID string) (*api.Version, error)

	// MarkApplied stamps the version as applied and flips the current
	// pointer from the previous current version to this one, atomically.
	// Fails with ErrNotPending when the version is no longer pending.
	MarkApplied(ctx context.Context, versionID, actorID string, at time.Time) (*api.Version, error)

	// MarkRejected stamps the version as rejected. Fails with ErrNotPending
	// when the version is no longer pending.
	MarkRejected(ctx context.Context, versionID, reason, actorID string, at time.Time) (*api.Version, error)
}

// Persistence bundles the stores an engine needs.
type Persistence struct {
	Processes ProcessStore
	Versions  VersionStore
}
