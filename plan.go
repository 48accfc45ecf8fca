package triage

import (
	"fmt"

	"github.com/mvilaca/triage/pkg/api"
)

// PlanBuilder provides a fluent API for assembling a step plan:
//
//	plan := triage.NewPlan().
//	    Conversation().
//	    ProfessionalData().
//	    Documents().
//	    PaymentInfo().
//	    Build()
//
//	p, err := eng.CreateProcess(ctx, triage.CreateProcessParams{
//	    TenantID: "acme",
//	    Plan:     plan,
//	})
type PlanBuilder struct {
	steps []api.StepType
}

// NewPlan creates an empty plan builder.
func NewPlan() *PlanBuilder {
	return &PlanBuilder{}
}

// Add appends an arbitrary step type.
func (b *PlanBuilder) Add(t StepType) *PlanBuilder {
	if !api.KnownStepType(t) {
		panic(fmt.Sprintf("triage: unknown step type %q", t))
	}
	for _, existing := range b.steps {
		if existing == t {
			panic(fmt.Sprintf("triage: step %q already in plan", t))
		}
	}
	b.steps = append(b.steps, t)
	return b
}

// Conversation appends the screening conversation step.
func (b *PlanBuilder) Conversation() *PlanBuilder {
	return b.Add(StepConversation)
}

// ProfessionalData appends the professional-data step.
func (b *PlanBuilder) ProfessionalData() *PlanBuilder {
	return b.Add(StepProfessionalData)
}

// Documents appends the document-upload step followed by the document-review
// step. The two always travel together.
func (b *PlanBuilder) Documents() *PlanBuilder {
	return b.Add(StepDocumentUpload).Add(StepDocumentReview)
}

// PaymentInfo appends the optional payment-information step.
func (b *PlanBuilder) PaymentInfo() *PlanBuilder {
	return b.Add(StepPaymentInfo)
}

// ClientValidation appends the optional client-validation step.
func (b *PlanBuilder) ClientValidation() *PlanBuilder {
	return b.Add(StepClientValidation)
}

// ContractSignature appends the optional contract-signature step.
func (b *PlanBuilder) ContractSignature() *PlanBuilder {
	return b.Add(StepContractSignature)
}

// Build returns the assembled plan.
func (b *PlanBuilder) Build() []StepType {
	cp := make([]StepType, len(b.steps))
	copy(cp, b.steps)
	return cp
}

// DefaultPlan returns the standard four-step screening plan: conversation,
// professional data, document upload, document review.
func DefaultPlan() []StepType {
	return NewPlan().
		Conversation().
		ProfessionalData().
		Documents().
		Build()
}

// FullPlan returns a plan with every step type in canonical order.
func FullPlan() []StepType {
	return NewPlan().
		Conversation().
		ProfessionalData().
		Documents().
		PaymentInfo().
		ClientValidation().
		ContractSignature().
		Build()
}
