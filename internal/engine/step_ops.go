package engine

import (
	"context"
	"fmt"

	"github.com/mvilaca/triage/pkg/api"
)

// currentStep validates that the given type is the pointer position and
// returns its in-progress step record.
func (e *engineImpl) currentStep(p *api.Process, t api.StepType) (*api.Step, error) {
	if p.Current != t {
		return nil, fmt.Errorf("step %s is not current (pointer on %s): %w", t, p.Current, api.ErrInvalidTransition)
	}
	step := p.Step(t)
	if step == nil {
		return nil, fmt.Errorf("plan has no %s step: %w", t, api.ErrInvalidTransition)
	}
	if step.Status != api.StepInProgress {
		return nil, fmt.Errorf("step %s is %s, not in progress: %w", t, step.Status, api.ErrInvalidTransition)
	}
	return step, nil
}

func (e *engineImpl) CompleteConversation(ctx context.Context, processID string, outcome api.ConversationOutcome, notes string, actor api.Actor) (*api.Process, error) {
	p, err := e.loadProcess(ctx, processID)
	if err != nil {
		return nil, err
	}
	if err := mutable(p); err != nil {
		return nil, err
	}
	step, err := e.currentStep(p, api.StepConversation)
	if err != nil {
		return nil, err
	}

	now := e.now()
	completed := now

	switch outcome {
	case api.OutcomeProceed:
		step.Status = api.StepCompleted
		step.Conversation.Outcome = outcome
		step.ReviewNotes = notes
		step.CompletedAt = &completed
		step.CompletedBy = actor.ID

		if err := e.processes.UpdateStep(ctx, p.ID, step); err != nil {
			return nil, storeErr(err)
		}
		e.observer.OnStepCompleted(ctx, p, step)
		return p, nil

	case api.OutcomeReject:
		// A rejecting conversation ends the whole process.
		step.Status = api.StepRejected
		step.Conversation.Outcome = outcome
		step.ReviewNotes = notes
		step.RejectionReason = notes
		step.CompletedAt = &completed
		step.CompletedBy = actor.ID

		e.finish(p, api.StatusRejected, actor)
		p.RejectionReason = notes
		if err := e.processes.UpdateProcess(ctx, p); err != nil {
			return nil, storeErr(err)
		}
		e.enqueueReclaims(ctx, p)
		e.observer.OnProcessFinished(ctx, p)
		return p, nil

	default:
		return nil, fmt.Errorf("unknown conversation outcome %q: %w", outcome, api.ErrValidationFailed)
	}
}

func (e *engineImpl) CompleteProfessionalData(ctx context.Context, processID, versionID string, actor api.Actor) (*api.Process, error) {
	p, err := e.loadProcess(ctx, processID)
	if err != nil {
		return nil, err
	}
	if err := mutable(p); err != nil {
		return nil, err
	}
	step, err := e.currentStep(p, api.StepProfessionalData)
	if err != nil {
		return nil, err
	}

	v, err := e.versions.GetVersion(ctx, versionID)
	if err != nil {
		return nil, storeErr(err)
	}
	if v.TenantID != p.TenantID {
		return nil, fmt.Errorf("version %s belongs to another tenant: %w", versionID, api.ErrValidationFailed)
	}
	if v.AppliedAt == nil {
		return nil, fmt.Errorf("version %s has not been applied: %w", versionID, api.ErrInvalidTransition)
	}
	if p.ProfessionalID != "" && p.ProfessionalID != v.ProfessionalID {
		return nil, fmt.Errorf("version %s belongs to another professional: %w", versionID, api.ErrValidationFailed)
	}

	now := e.now()
	step.Status = api.StepCompleted
	step.ProfessionalData.VersionID = versionID
	step.CompletedAt = &now
	step.CompletedBy = actor.ID

	// The first applied version links the process to its professional record.
	if p.ProfessionalID == "" {
		p.ProfessionalID = v.ProfessionalID
		p.UpdatedAt = now
		if err := e.processes.UpdateProcess(ctx, p); err != nil {
			return nil, storeErr(err)
		}
	} else {
		if err := e.processes.UpdateStep(ctx, p.ID, step); err != nil {
			return nil, storeErr(err)
		}
	}
	e.observer.OnStepCompleted(ctx, p, step)
	return p, nil
}

func (e *engineImpl) CompleteDirect(ctx context.Context, processID string, stepType api.StepType, outcome api.DirectOutcome, notes string, actor api.Actor) (*api.Process, error) {
	if !stepType.Optional() {
		return nil, fmt.Errorf("step %s does not complete directly: %w", stepType, api.ErrInvalidTransition)
	}

	p, err := e.loadProcess(ctx, processID)
	if err != nil {
		return nil, err
	}
	if err := mutable(p); err != nil {
		return nil, err
	}
	step, err := e.currentStep(p, stepType)
	if err != nil {
		return nil, err
	}

	now := e.now()
	switch outcome {
	case api.DirectApproved:
		step.Status = api.StepApproved
		step.ReviewNotes = notes
		step.ReviewedAt = &now
		step.ReviewedBy = actor.ID
		step.CompletedAt = &now
		step.CompletedBy = actor.ID

		if err := e.processes.UpdateStep(ctx, p.ID, step); err != nil {
			return nil, storeErr(err)
		}
		e.observer.OnStepCompleted(ctx, p, step)
		return p, nil

	case api.DirectRejected:
		step.Status = api.StepRejected
		step.ReviewNotes = notes
		step.RejectionReason = notes
		step.ReviewedAt = &now
		step.ReviewedBy = actor.ID
		step.CompletedAt = &now
		step.CompletedBy = actor.ID

		e.finish(p, api.StatusRejected, actor)
		p.RejectionReason = notes
		if err := e.processes.UpdateProcess(ctx, p); err != nil {
			return nil, storeErr(err)
		}
		e.enqueueReclaims(ctx, p)
		e.observer.OnProcessFinished(ctx, p)
		return p, nil

	default:
		return nil, fmt.Errorf("unknown outcome %q: %w", outcome, api.ErrValidationFailed)
	}
}

func (e *engineImpl) SkipStep(ctx context.Context, processID string, stepType api.StepType, actor api.Actor) (*api.Process, error) {
	if !stepType.Optional() {
		return nil, fmt.Errorf("step %s is not optional: %w", stepType, api.ErrInvalidTransition)
	}

	p, err := e.loadProcess(ctx, processID)
	if err != nil {
		return nil, err
	}
	if err := mutable(p); err != nil {
		return nil, err
	}
	step := p.Step(stepType)
	if step == nil {
		return nil, fmt.Errorf("plan has no %s step: %w", stepType, api.ErrInvalidTransition)
	}
	if step.Status != api.StepPending && !(step.Status == api.StepInProgress && p.Current == stepType) {
		return nil, fmt.Errorf("step %s is %s, cannot skip: %w", stepType, step.Status, api.ErrInvalidTransition)
	}

	now := e.now()
	step.Status = api.StepSkipped
	step.CompletedAt = &now
	step.CompletedBy = actor.ID

	if p.Current != stepType {
		// A future step was skipped ahead of time; the pointer is untouched.
		if err := e.processes.UpdateStep(ctx, p.ID, step); err != nil {
			return nil, storeErr(err)
		}
		e.observer.OnStepCompleted(ctx, p, step)
		return p, nil
	}

	// Skipping the current step moves the pointer like a completion would.
	next, ok := p.NextStepType(stepType)
	if ok {
		p.Current = next
		nextStep := p.Step(next)
		if nextStep.Status == api.StepPending {
			nextStep.Status = api.StepInProgress
			started := now
			nextStep.StartedAt = &started
			nextStep.StartedBy = actor.ID
		}
		p.CurrentActorID = actor.ID
		p.UpdatedAt = now
		if err := e.processes.UpdateProcess(ctx, p); err != nil {
			return nil, storeErr(err)
		}
		e.observer.OnStepCompleted(ctx, p, step)
		e.observer.OnStepStarted(ctx, p, nextStep)
		return p, nil
	}

	e.finish(p, api.StatusApproved, actor)
	for _, s := range p.Steps {
		if s.DocumentUpload == nil {
			continue
		}
		for _, d := range s.DocumentUpload.Documents {
			d.ArtifactPending = false
		}
	}
	if err := e.processes.UpdateProcess(ctx, p); err != nil {
		return nil, storeErr(err)
	}
	e.observer.OnStepCompleted(ctx, p, step)
	e.observer.OnProcessFinished(ctx, p)
	return p, nil
}
