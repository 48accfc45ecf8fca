package engine

import (
	"context"
	"errors"
	"testing"

	"github.com/mvilaca/triage/pkg/api"
)

func TestCompleteConversationProceed(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	p := createProcess(t, env.eng)

	p, err := env.eng.CompleteConversation(ctx, p.ID, api.OutcomeProceed, "strong candidate", recruiter)
	if err != nil {
		t.Fatalf("CompleteConversation failed: %v", err)
	}

	step := p.Step(api.StepConversation)
	if step.Status != api.StepCompleted {
		t.Fatalf("step status = %s, want %s", step.Status, api.StepCompleted)
	}
	if step.Conversation.Outcome != api.OutcomeProceed {
		t.Errorf("outcome = %s", step.Conversation.Outcome)
	}
	if step.ReviewNotes != "strong candidate" {
		t.Errorf("notes = %q", step.ReviewNotes)
	}
	if p.Status != api.StatusInProgress {
		t.Errorf("process status = %s, want still in progress", p.Status)
	}
}

func TestCompleteConversationRejectEndsProcess(t *testing.T) {
	env := newTestEnv(t)
	p := createProcess(t, env.eng)

	p, err := env.eng.CompleteConversation(context.Background(), p.ID, api.OutcomeReject, "not a fit", recruiter)
	if err != nil {
		t.Fatalf("CompleteConversation failed: %v", err)
	}

	if p.Status != api.StatusRejected {
		t.Fatalf("process status = %s, want %s", p.Status, api.StatusRejected)
	}
	if p.RejectionReason != "not a fit" {
		t.Errorf("reason = %q", p.RejectionReason)
	}
	if step := p.Step(api.StepConversation); step.Status != api.StepRejected {
		t.Errorf("step status = %s, want %s", step.Status, api.StepRejected)
	}
}

func TestCompleteConversationUnknownOutcome(t *testing.T) {
	env := newTestEnv(t)
	p := createProcess(t, env.eng)

	_, err := env.eng.CompleteConversation(context.Background(), p.ID, api.ConversationOutcome("MAYBE"), "", recruiter)
	if !errors.Is(err, api.ErrValidationFailed) {
		t.Fatalf("err = %v, want ErrValidationFailed", err)
	}
}

func TestCompleteProfessionalDataRequiresAppliedVersion(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	p := createProcess(t, env.eng, api.StepProfessionalData)

	v, err := env.eng.CreateVersion(ctx, api.CreateVersionParams{
		TenantID: "acme",
		Snapshot: snapshotFor("Maria Souza", "12345678900"),
		Source:   api.SourceScreening,
		Actor:    recruiter,
	})
	if err != nil {
		t.Fatalf("CreateVersion failed: %v", err)
	}

	// Pending version: refused.
	_, err = env.eng.CompleteProfessionalData(ctx, p.ID, v.ID, recruiter)
	if !errors.Is(err, api.ErrInvalidTransition) {
		t.Fatalf("err = %v, want ErrInvalidTransition", err)
	}

	if _, err := env.eng.ApplyVersion(ctx, v.ID, recruiter); err != nil {
		t.Fatalf("ApplyVersion failed: %v", err)
	}
	p, err = env.eng.CompleteProfessionalData(ctx, p.ID, v.ID, recruiter)
	if err != nil {
		t.Fatalf("CompleteProfessionalData failed: %v", err)
	}

	step := p.Step(api.StepProfessionalData)
	if step.Status != api.StepCompleted {
		t.Fatalf("step status = %s, want %s", step.Status, api.StepCompleted)
	}
	if step.ProfessionalData.VersionID != v.ID {
		t.Errorf("step version = %q, want %q", step.ProfessionalData.VersionID, v.ID)
	}
	// The process is now linked to the professional the version created.
	if p.ProfessionalID != v.ProfessionalID {
		t.Errorf("process professional = %q, want %q", p.ProfessionalID, v.ProfessionalID)
	}
}

func TestCompleteDirectApproved(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	p := createProcess(t, env.eng, api.StepPaymentInfo)

	p, err := env.eng.CompleteDirect(ctx, p.ID, api.StepPaymentInfo, api.DirectApproved, "bank data checks out", reviewer)
	if err != nil {
		t.Fatalf("CompleteDirect failed: %v", err)
	}
	step := p.Step(api.StepPaymentInfo)
	if step.Status != api.StepApproved {
		t.Fatalf("step status = %s, want %s", step.Status, api.StepApproved)
	}
	if step.ReviewedBy != reviewer.ID {
		t.Errorf("ReviewedBy = %q", step.ReviewedBy)
	}

	p, err = env.eng.Advance(ctx, p.ID, api.StepPaymentInfo, reviewer)
	if err != nil {
		t.Fatalf("Advance failed: %v", err)
	}
	if p.Status != api.StatusApproved {
		t.Fatalf("process status = %s, want %s", p.Status, api.StatusApproved)
	}
}

func TestCompleteDirectRejectedEndsProcess(t *testing.T) {
	env := newTestEnv(t)
	p := createProcess(t, env.eng, api.StepClientValidation)

	p, err := env.eng.CompleteDirect(context.Background(), p.ID, api.StepClientValidation, api.DirectRejected, "client declined", reviewer)
	if err != nil {
		t.Fatalf("CompleteDirect failed: %v", err)
	}
	if p.Status != api.StatusRejected {
		t.Fatalf("process status = %s, want %s", p.Status, api.StatusRejected)
	}
	if p.RejectionReason != "client declined" {
		t.Errorf("reason = %q", p.RejectionReason)
	}
}

func TestCompleteDirectRefusesMandatorySteps(t *testing.T) {
	env := newTestEnv(t)
	p := createProcess(t, env.eng)

	_, err := env.eng.CompleteDirect(context.Background(), p.ID, api.StepConversation, api.DirectApproved, "", recruiter)
	if !errors.Is(err, api.ErrInvalidTransition) {
		t.Fatalf("err = %v, want ErrInvalidTransition", err)
	}
}

func TestSkipStepPendingOptional(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	p := createProcess(t, env.eng, api.StepConversation, api.StepPaymentInfo)

	// Skip the future optional step ahead of time; the pointer stays put.
	p, err := env.eng.SkipStep(ctx, p.ID, api.StepPaymentInfo, recruiter)
	if err != nil {
		t.Fatalf("SkipStep failed: %v", err)
	}
	if p.Current != api.StepConversation {
		t.Fatalf("pointer moved to %s", p.Current)
	}
	if p.Step(api.StepPaymentInfo).Status != api.StepSkipped {
		t.Fatal("step not skipped")
	}

	// Advancing past the conversation now finishes the process, since the
	// only remaining plan entry is skipped.
	if _, err := env.eng.CompleteConversation(ctx, p.ID, api.OutcomeProceed, "", recruiter); err != nil {
		t.Fatalf("CompleteConversation failed: %v", err)
	}
	p, err = env.eng.Advance(ctx, p.ID, api.StepConversation, recruiter)
	if err != nil {
		t.Fatalf("Advance failed: %v", err)
	}
	if p.Status != api.StatusApproved {
		t.Fatalf("process status = %s, want %s", p.Status, api.StatusApproved)
	}
}

func TestSkipStepCurrentOptionalAdvances(t *testing.T) {
	env := newTestEnv(t)
	p := createProcess(t, env.eng, api.StepPaymentInfo, api.StepClientValidation)

	p, err := env.eng.SkipStep(context.Background(), p.ID, api.StepPaymentInfo, recruiter)
	if err != nil {
		t.Fatalf("SkipStep failed: %v", err)
	}
	if p.Current != api.StepClientValidation {
		t.Fatalf("pointer on %s, want %s", p.Current, api.StepClientValidation)
	}
	if p.Step(api.StepClientValidation).Status != api.StepInProgress {
		t.Fatal("next step not started")
	}
}

func TestSkipStepRefusesMandatory(t *testing.T) {
	env := newTestEnv(t)
	p := createProcess(t, env.eng)

	_, err := env.eng.SkipStep(context.Background(), p.ID, api.StepConversation, recruiter)
	if !errors.Is(err, api.ErrInvalidTransition) {
		t.Fatalf("err = %v, want ErrInvalidTransition", err)
	}
}
