package api

import "time"

// DocumentStatus is the lifecycle of one document requirement.
//
// The only reachable edges are:
//
//	pending-upload -> pending-review -> approved
//	pending-review -> correction-needed -> pending-upload
//	pending-upload -> skipped (optional documents, step completion)
type DocumentStatus string

const (
	DocPendingUpload    DocumentStatus = "PENDING_UPLOAD"
	DocPendingReview    DocumentStatus = "PENDING_REVIEW"
	DocApproved         DocumentStatus = "APPROVED"
	DocCorrectionNeeded DocumentStatus = "CORRECTION_NEEDED"
	DocSkipped          DocumentStatus = "SKIPPED"
)

// DocumentSpec describes one document requirement when configuring a
// document-upload step.
type DocumentSpec struct {
	Type         string
	Required     bool
	DisplayOrder int
}

// Review-history actions. Upload and reuse mark the origin of an artifact
// only; both feed the identical downstream state machine.
const (
	HistoryUpload     = "upload"
	HistoryReuse      = "reuse"
	HistoryApprove    = "approve"
	HistoryCorrection = "correction"
	HistoryReupload   = "reupload_requested"
)

// ReviewEntry is one entry in a document's ordered review history.
type ReviewEntry struct {
	ActorID string
	Action  string
	Note    string
	At      time.Time
}

// Document is one required-or-optional file requirement within a
// document-upload step.
type Document struct {
	ID           string
	Type         string
	Required     bool
	DisplayOrder int
	Status       DocumentStatus

	// ArtifactRef points at the uploaded artifact in external storage.
	// Empty until the first upload or reuse.
	ArtifactRef string
	// ArtifactPending is true while an artifact created through this flow is
	// not yet canonical. It is cleared when the process finalizes
	// successfully; on rejection/cancellation pending artifacts are
	// scheduled for reclamation. Reused artifacts are already canonical and
	// never carry the flag.
	ArtifactPending bool

	History []ReviewEntry
}

// Uploaded reports whether the document has left pending-upload with an
// artifact attached.
func (d *Document) Uploaded() bool {
	return d.ArtifactRef != "" && d.Status != DocPendingUpload
}

// AwaitsUpload reports whether upload/reuse is currently a legal transition
// for this document (the owning step's gate permitting).
func (d *Document) AwaitsUpload() bool {
	return d.Status == DocPendingUpload || d.Status == DocCorrectionNeeded
}
