package triage

import (
	"context"
	"database/sql"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mvilaca/triage/internal/engine"
	"github.com/mvilaca/triage/internal/persistence"
	"github.com/mvilaca/triage/internal/reclaim"
	"github.com/mvilaca/triage/pkg/api"
)

// Re-export key types so users don't need to dig into pkg/api.

type (
	Engine               = api.Engine
	Process              = api.Process
	ProcessFilter        = api.ProcessFilter
	CreateProcessParams  = api.CreateProcessParams
	CreateVersionParams  = api.CreateVersionParams
	Actor                = api.Actor
	Identification       = api.Identification
	AccessToken          = api.AccessToken
	Status               = api.Status
	Step                 = api.Step
	StepType             = api.StepType
	StepStatus           = api.StepStatus
	Document             = api.Document
	DocumentSpec         = api.DocumentSpec
	DocumentStatus       = api.DocumentStatus
	Alert                = api.Alert
	Version              = api.Version
	Diff                 = api.Diff
	Value                = api.Value
	Directory            = api.Directory
	ArtifactStore        = api.ArtifactStore
	TokenSource          = api.TokenSource
	Observer             = api.Observer
	LoggingObserver      = api.LoggingObserver
	BasicMetrics         = api.BasicMetrics
	BasicMetricsSnapshot = api.BasicMetricsSnapshot
	CompositeObserver    = api.CompositeObserver
	NoopObserver         = api.NoopObserver
)

// Re-export common observer helpers.

var (
	NewLoggingObserver   = api.NewLoggingObserver
	NewCompositeObserver = api.NewCompositeObserver
)

// Re-export process status values for convenience.

const (
	StatusInProgress        = api.StatusInProgress
	StatusPendingSupervisor = api.StatusPendingSupervisor
	StatusApproved          = api.StatusApproved
	StatusRejected          = api.StatusRejected
	StatusExpired           = api.StatusExpired
	StatusCancelled         = api.StatusCancelled
)

// Re-export step types for convenience.

const (
	StepConversation      = api.StepConversation
	StepProfessionalData  = api.StepProfessionalData
	StepDocumentUpload    = api.StepDocumentUpload
	StepDocumentReview    = api.StepDocumentReview
	StepPaymentInfo       = api.StepPaymentInfo
	StepClientValidation  = api.StepClientValidation
	StepContractSignature = api.StepContractSignature
)

// Options carries the optional collaborators and policies of an engine.
// The zero value is usable: no observer, no directory (version operations
// then fail), random tokens, no expiry, every snapshot section enabled.
type Options struct {
	// Observer receives lifecycle callbacks (logging, metrics, outbound
	// notifications).
	Observer Observer

	// Directory is the canonical professional record consumed by the
	// versioning operations.
	Directory Directory

	// Tokens issues public-access token values. Nil means random hex tokens.
	Tokens TokenSource

	// TokenTTL is the lifetime of public-access tokens. Zero means no expiry.
	TokenTTL time.Duration

	// ProcessTTL is the overall process deadline. Zero means no expiry.
	ProcessTTL time.Duration

	// Sections restricts which snapshot sections this deployment accepts.
	// Nil means all of them.
	Sections []string
}

func (o Options) engineConfig(p persistence.Persistence, queue reclaim.Queue) engine.Config {
	return engine.Config{
		Persistence: p,
		Observer:    o.Observer,
		Directory:   o.Directory,
		Reclaim:     queue,
		Tokens:      o.Tokens,
		TokenTTL:    o.TokenTTL,
		ProcessTTL:  o.ProcessTTL,
		Sections:    o.Sections,
	}
}

// Engine constructors
// These wrap the internal packages so external callers never need to import
// them. Artifact reclamation is only wired through the bundles (see
// bundle.go); the plain constructors track artifact references but do not
// schedule reclamation.

// NewInMemoryEngine returns an Engine backed entirely by in-memory stores.
func NewInMemoryEngine() Engine {
	return NewInMemoryEngineWithOptions(Options{})
}

// NewInMemoryEngineWithOptions returns an in-memory Engine with the given
// Options.
func NewInMemoryEngineWithOptions(opts Options) Engine {
	store := persistence.NewInMemoryStore()
	return engine.New(opts.engineConfig(persistence.Persistence{
		Processes: store,
		Versions:  store,
	}, nil))
}

// NewSQLiteEngine returns an Engine that persists processes and versions in
// a SQLite database.
func NewSQLiteEngine(db *sql.DB) (Engine, error) {
	return NewSQLiteEngineWithOptions(db, Options{})
}

// NewSQLiteEngineWithOptions returns a SQLite-backed Engine with the given
// Options.
func NewSQLiteEngineWithOptions(db *sql.DB, opts Options) (Engine, error) {
	store, err := persistence.NewSQLiteStore(db)
	if err != nil {
		return nil, err
	}
	return engine.New(opts.engineConfig(persistence.Persistence{
		Processes: store,
		Versions:  store,
	}, nil)), nil
}

// NewPostgresEngine returns an Engine that persists processes and versions
// in PostgreSQL.
func NewPostgresEngine(db *sql.DB) (Engine, error) {
	return NewPostgresEngineWithOptions(db, Options{})
}

// NewPostgresEngineWithOptions returns a Postgres-backed Engine with the
// given Options.
func NewPostgresEngineWithOptions(db *sql.DB, opts Options) (Engine, error) {
	store, err := persistence.NewPostgresStore(db)
	if err != nil {
		return nil, err
	}
	return engine.New(opts.engineConfig(persistence.Persistence{
		Processes: store,
		Versions:  store,
	}, nil)), nil
}

// NewRedisEngine returns an Engine that persists processes and versions in
// Redis.
func NewRedisEngine(client *redis.Client) Engine {
	return NewRedisEngineWithOptions(client, Options{})
}

// NewRedisEngineWithOptions returns a Redis-backed Engine with the given
// Options.
func NewRedisEngineWithOptions(client *redis.Client, opts Options) Engine {
	store := persistence.NewRedisStore(client, "")
	return engine.New(opts.engineConfig(persistence.Persistence{
		Processes: store,
		Versions:  store,
	}, nil))
}

// Convenience helpers that just forward to the underlying Engine.

// CreateProcess starts a new screening process.
func CreateProcess(ctx context.Context, eng Engine, params CreateProcessParams) (*Process, error) {
	return eng.CreateProcess(ctx, params)
}

// GetProcess fetches a process by ID.
func GetProcess(ctx context.Context, eng Engine, id string) (*Process, error) {
	return eng.GetProcess(ctx, id)
}

// ListProcesses lists processes matching the given filter.
func ListProcesses(ctx context.Context, eng Engine, filter ProcessFilter) ([]*Process, error) {
	return eng.ListProcesses(ctx, filter)
}

// Advance moves the process pointer past a completed step.
func Advance(ctx context.Context, eng Engine, processID string, completed StepType, actor Actor) (*Process, error) {
	return eng.Advance(ctx, processID, completed, actor)
}

// Retryable reports whether the caller may safely retry a failed operation.
func Retryable(err error) bool {
	return api.Retryable(err)
}
