package api

import "time"

// VersionSource records where a version originated.
type VersionSource string

const (
	SourceDirectEdit  VersionSource = "direct_edit"
	SourceScreening   VersionSource = "screening"
	SourceImport      VersionSource = "import"
	SourceExternalAPI VersionSource = "external_api"
)

// ChangeKind classifies one field-level change between two snapshots.
type ChangeKind string

const (
	ChangeAdded    ChangeKind = "ADDED"
	ChangeModified ChangeKind = "MODIFIED"
	ChangeRemoved  ChangeKind = "REMOVED"
)

// Diff is one field-level change belonging to a version. Path is a
// dotted/indexed path into the snapshot, e.g.
// "personal_info.full_name" or "qualifications[2].course". Diffs are
// generated once, atomically with the version, and never mutated.
type Diff struct {
	Path string
	Old  any
	New  any
	Kind ChangeKind
}

// Version is an immutable, timestamped snapshot of a professional's data
// plus its lineage. Versions are numbered sequentially per professional;
// exactly one version per professional carries Current=true once any version
// has been applied.
//
// A version is pending until it is either applied or rejected; corrections
// to an applied version require a new version.
type Version struct {
	ID             string
	TenantID       string
	ProfessionalID string
	Number         int

	Snapshot Value
	Diffs    []Diff

	Current bool

	Source    VersionSource
	SourceRef string

	CreatedAt time.Time
	CreatedBy string

	AppliedAt *time.Time
	AppliedBy string

	RejectedAt      *time.Time
	RejectedBy      string
	RejectionReason string
}

// Pending reports whether the version has been neither applied nor rejected.
func (v *Version) Pending() bool {
	return v.AppliedAt == nil && v.RejectedAt == nil
}
