package api

import "time"

// StepType identifies one of the fixed screening phases.
type StepType string

const (
	StepConversation      StepType = "conversation"
	StepProfessionalData  StepType = "professional_data"
	StepDocumentUpload    StepType = "document_upload"
	StepDocumentReview    StepType = "document_review"
	StepPaymentInfo       StepType = "payment_info"
	StepClientValidation  StepType = "client_validation"
	StepContractSignature StepType = "contract_signature"
)

var allStepTypes = []StepType{
	StepConversation,
	StepProfessionalData,
	StepDocumentUpload,
	StepDocumentReview,
	StepPaymentInfo,
	StepClientValidation,
	StepContractSignature,
}

// AllStepTypes returns the known step types.
func AllStepTypes() []StepType {
	cp := make([]StepType, len(allStepTypes))
	copy(cp, allStepTypes)
	return cp
}

// KnownStepType reports whether t is one of the fixed step types.
func KnownStepType(t StepType) bool {
	for _, k := range allStepTypes {
		if k == t {
			return true
		}
	}
	return false
}

// Optional reports whether a step type may be skipped when the tenant does
// not configure it.
func (t StepType) Optional() bool {
	switch t {
	case StepPaymentInfo, StepClientValidation, StepContractSignature:
		return true
	}
	return false
}

// StepStatus is the common lifecycle shared by every step type.
type StepStatus string

const (
	StepPending          StepStatus = "PENDING"
	StepInProgress       StepStatus = "IN_PROGRESS"
	StepCompleted        StepStatus = "COMPLETED"
	StepApproved         StepStatus = "APPROVED"
	StepRejected         StepStatus = "REJECTED"
	StepSkipped          StepStatus = "SKIPPED"
	StepCorrectionNeeded StepStatus = "CORRECTION_NEEDED"
)

// ConversationOutcome is the result of the initial screening conversation.
type ConversationOutcome string

const (
	OutcomeProceed ConversationOutcome = "PROCEED"
	OutcomeReject  ConversationOutcome = "REJECT"
)

// DirectOutcome is the outcome chosen by the responsible actor on steps that
// complete directly (payment info, client validation, contract signature).
type DirectOutcome string

const (
	DirectApproved DirectOutcome = "APPROVED"
	DirectRejected DirectOutcome = "REJECTED"
)

// Step is one phase of a process. The shared lifecycle fields are embedded
// here; each step type that carries extra state does so through the typed
// payload pointers below, of which at most one is non-nil. This is the
// tagged-union representation of the per-type records.
type Step struct {
	ID     string
	Type   StepType
	Order  int
	Status StepStatus

	AssigneeID      string
	ReviewNotes     string
	RejectionReason string

	StartedAt   *time.Time
	StartedBy   string
	CompletedAt *time.Time
	CompletedBy string
	ReviewedAt  *time.Time
	ReviewedBy  string

	// Rev is the optimistic concurrency counter for this step and its
	// documents. Step-scoped operations update under this counter so that
	// different actors can work on different steps without contending on
	// the process row.
	Rev int64

	Conversation     *ConversationState
	ProfessionalData *ProfessionalDataState
	DocumentUpload   *DocumentUploadState
}

// ConversationState is the payload of a conversation step.
type ConversationState struct {
	Outcome ConversationOutcome
}

// ProfessionalDataState is the payload of a professional-data step. It links
// the step to the version it produced.
type ProfessionalDataState struct {
	VersionID string
}

// DocumentUploadState is the payload of a document-upload step.
//
// Configured is the two-phase gate: documents can only be uploaded once the
// required document set has been configured, and configuration happens
// exactly once. The counters are maintained transactionally with each
// document transition.
type DocumentUploadState struct {
	Configured        bool
	RequiredDocuments int
	UploadedDocuments int
	Documents         []*Document
}

// AllRequiredUploaded is the derived predicate gating step completion: every
// required document has left pending-upload at least once.
func (s *DocumentUploadState) AllRequiredUploaded() bool {
	return s.UploadedDocuments >= s.RequiredDocuments
}

// Document returns the document with the given id, or nil.
func (s *DocumentUploadState) Document(id string) *Document {
	for _, d := range s.Documents {
		if d.ID == id {
			return d
		}
	}
	return nil
}

// Completable reports whether a step's terminal status allows the process
// pointer to advance past it. Document review must be approved; the
// direct-outcome steps must be approved or skipped; the remaining types
// advance on completed.
func (s *Step) Completable() bool {
	switch s.Type {
	case StepDocumentReview:
		return s.Status == StepApproved
	case StepPaymentInfo, StepClientValidation, StepContractSignature:
		return s.Status == StepApproved || s.Status == StepSkipped
	default:
		return s.Status == StepCompleted
	}
}
