package api

import "context"

// CreateProcessParams describes a new screening process.
type CreateProcessParams struct {
	TenantID string

	// ProfessionalID optionally links the process to an existing
	// professional record.
	ProfessionalID string

	// Identification identifies the candidate before a professional record
	// exists. IdentityDocument also drives the one-active-process-per-
	// candidate rule.
	Identification Identification

	// Plan is the ordered step-type list for this instance. It is immutable
	// after creation.
	Plan []StepType

	OwnerID string
	Actor   Actor
}

// CreateVersionParams describes a new professional-data version.
type CreateVersionParams struct {
	TenantID string

	// ProfessionalID is empty for a brand-new professional; the engine then
	// pre-allocates an id which the directory entity receives on apply.
	ProfessionalID string

	Snapshot  Value
	Source    VersionSource
	SourceRef string
	Actor     Actor
}

// Engine is the operation-style API of the screening engine. All mutating
// operations are single atomic units: on error, no visible state change has
// happened and the caller may retry iff Retryable(err).
type Engine interface {
	// CreateProcess starts a new process in in-progress with the pointer on
	// the first plan entry. At most one non-terminal process may exist per
	// (tenant, identity document).
	CreateProcess(ctx context.Context, params CreateProcessParams) (*Process, error)

	// GetProcess looks up a process by id.
	GetProcess(ctx context.Context, id string) (*Process, error)

	// ListProcesses returns processes matching the given filter.
	ListProcesses(ctx context.Context, filter ProcessFilter) ([]*Process, error)

	// IssueAccessToken issues (or replaces) the public-access token of a
	// process and returns its value.
	IssueAccessToken(ctx context.Context, processID string, actor Actor) (AccessToken, error)

	// AccessByToken resolves a process through its public token, evaluating
	// expiry against the current time.
	AccessByToken(ctx context.Context, token string) (*Process, error)

	// Advance validates that the given step is the current one and in a
	// completable terminal status, then moves the pointer to the next plan
	// entry, or to overall approved when none remain.
	Advance(ctx context.Context, processID string, completed StepType, actor Actor) (*Process, error)

	// Rewind moves the pointer back to the document-upload step after a
	// document review demanded corrections. It is the only legal rewind.
	Rewind(ctx context.Context, processID string, to StepType, actor Actor) (*Process, error)

	// RejectProcess terminates the process as rejected and schedules pending
	// artifacts for reclamation.
	RejectProcess(ctx context.Context, processID, reason string, actor Actor) (*Process, error)

	// CancelProcess terminates the process as cancelled and schedules
	// pending artifacts for reclamation.
	CancelProcess(ctx context.Context, processID, reason string, actor Actor) (*Process, error)

	// CompleteConversation records the conversation outcome. OutcomeReject
	// short-circuits the whole process to rejected.
	CompleteConversation(ctx context.Context, processID string, outcome ConversationOutcome, notes string, actor Actor) (*Process, error)

	// CompleteProfessionalData completes the professional-data step with the
	// version it produced. A version created by this process must already be
	// applied.
	CompleteProfessionalData(ctx context.Context, processID, versionID string, actor Actor) (*Process, error)

	// ConfigureDocuments configures the document set of the document-upload
	// step. It is callable exactly once per step.
	ConfigureDocuments(ctx context.Context, processID string, specs []DocumentSpec, actor Actor) (*Process, error)

	// UploadDocument attaches a freshly stored artifact to a document and
	// moves it to pending-review.
	UploadDocument(ctx context.Context, processID, documentID, artifactRef string, actor Actor) (*Process, error)

	// ReuseArtifact attaches an existing canonical artifact to a document.
	// Reuse is origin metadata only; the document follows the same state
	// machine as an upload.
	ReuseArtifact(ctx context.Context, processID, documentID, artifactRef string, actor Actor) (*Process, error)

	// ReviewDocument approves a document or sends it back for correction.
	ReviewDocument(ctx context.Context, processID, documentID string, approved bool, note string, actor Actor) (*Process, error)

	// CompleteDocumentUpload completes the document-upload step once every
	// required document has been uploaded.
	CompleteDocumentUpload(ctx context.Context, processID string, actor Actor) (*Process, error)

	// CompleteDocumentReview derives the review step outcome from the
	// document statuses: all approved yields an approved step; any
	// correction-needed rewinds the process to the upload step.
	CompleteDocumentReview(ctx context.Context, processID string, actor Actor) (*Process, error)

	// CompleteDirect records the outcome of a direct-outcome step
	// (payment info, client validation, contract signature).
	CompleteDirect(ctx context.Context, processID string, step StepType, outcome DirectOutcome, notes string, actor Actor) (*Process, error)

	// SkipStep skips an optional step that is still pending.
	SkipStep(ctx context.Context, processID string, step StepType, actor Actor) (*Process, error)

	// RaiseAlert suspends the process and routes it to a supervisor.
	RaiseAlert(ctx context.Context, processID, reason, category string, actor Actor) (*Process, error)

	// AddAlertNote appends a note to the unresolved alert.
	AddAlertNote(ctx context.Context, processID, note string, actor Actor) (*Process, error)

	// ResolveAlert resolves the alert and returns the process to
	// in-progress. Requires supervisor authority.
	ResolveAlert(ctx context.Context, processID, note string, actor Actor) (*Process, error)

	// RejectViaAlert resolves the alert and drives the process to terminal
	// rejected. Requires supervisor authority.
	RejectViaAlert(ctx context.Context, processID, reason string, actor Actor) (*Process, error)

	// BuildSnapshot returns the full snapshot of the professional's current
	// directory state. It has no side effects.
	BuildSnapshot(ctx context.Context, professionalID string) (Value, error)

	// CreateVersion validates the proposed snapshot, computes diffs against
	// the prior current version (or an empty baseline), and persists the
	// version together with its diff set atomically. The version is not
	// current until applied.
	CreateVersion(ctx context.Context, params CreateVersionParams) (*Version, error)

	// GetVersion looks up a version by id.
	GetVersion(ctx context.Context, id string) (*Version, error)

	// ListVersions returns a professional's versions ordered by number.
	ListVersions(ctx context.Context, professionalID string) ([]*Version, error)

	// ApplyVersion applies a pending version to the live professional
	// entity, creating it if needed, and makes the version current.
	ApplyVersion(ctx context.Context, versionID string, actor Actor) (*Version, error)

	// RejectVersion rejects a pending version, leaving the professional
	// entity untouched.
	RejectVersion(ctx context.Context, versionID, reason string, actor Actor) (*Version, error)
}
