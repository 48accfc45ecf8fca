package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/mvilaca/triage/internal/persistence"
	"github.com/mvilaca/triage/internal/reclaim"
	"github.com/mvilaca/triage/pkg/api"
)

func (e *engineImpl) CreateProcess(ctx context.Context, params api.CreateProcessParams) (*api.Process, error) {
	if params.TenantID == "" {
		return nil, fmt.Errorf("tenant id is required: %w", api.ErrValidationFailed)
	}
	if len(params.Plan) == 0 {
		return nil, fmt.Errorf("plan is empty: %w", api.ErrValidationFailed)
	}
	seen := make(map[api.StepType]bool, len(params.Plan))
	for _, t := range params.Plan {
		if !api.KnownStepType(t) {
			return nil, fmt.Errorf("unknown step type %q: %w", t, api.ErrValidationFailed)
		}
		if seen[t] {
			return nil, fmt.Errorf("duplicate step type %q in plan: %w", t, api.ErrValidationFailed)
		}
		seen[t] = true
	}

	// Surface a duplicate active process before building the aggregate.
	// SaveProcess re-checks atomically, so a racing creator still loses.
	if doc := params.Identification.IdentityDocument; doc != "" {
		existing, err := e.processes.FindActiveByIdentity(ctx, params.TenantID, doc)
		if err == nil {
			return nil, fmt.Errorf("process %s is already active for this identity: %w", existing.ID, api.ErrValidationFailed)
		}
		if !errors.Is(err, persistence.ErrProcessNotFound) {
			return nil, storeErr(err)
		}
	}

	now := e.now()
	p := &api.Process{
		ID:             uuid.NewString(),
		TenantID:       params.TenantID,
		ProfessionalID: params.ProfessionalID,
		Identification: params.Identification,
		Status:         api.StatusInProgress,
		Plan:           append([]api.StepType(nil), params.Plan...),
		Current:        params.Plan[0],
		OwnerID:        params.OwnerID,
		CurrentActorID: params.Actor.ID,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if e.processTTL > 0 {
		deadline := now.Add(e.processTTL)
		p.ExpiresAt = &deadline
	}

	for i, t := range p.Plan {
		step := &api.Step{
			ID:     uuid.NewString(),
			Type:   t,
			Order:  i,
			Status: api.StepPending,
		}
		switch t {
		case api.StepConversation:
			step.Conversation = &api.ConversationState{}
		case api.StepProfessionalData:
			step.ProfessionalData = &api.ProfessionalDataState{}
		case api.StepDocumentUpload:
			step.DocumentUpload = &api.DocumentUploadState{}
		}
		if i == 0 {
			step.Status = api.StepInProgress
			started := now
			step.StartedAt = &started
			step.StartedBy = params.Actor.ID
		}
		p.Steps = append(p.Steps, step)
	}

	if err := e.processes.SaveProcess(ctx, p); err != nil {
		return nil, storeErr(err)
	}

	e.observer.OnProcessCreated(ctx, p)
	e.observer.OnStepStarted(ctx, p, p.Steps[0])
	return p, nil
}

// loadProcess fetches a process and applies lazy expiry: a past deadline on a
// non-terminal process flips it to expired before the caller sees it.
func (e *engineImpl) loadProcess(ctx context.Context, id string) (*api.Process, error) {
	p, err := e.processes.GetProcess(ctx, id)
	if err != nil {
		return nil, storeErr(err)
	}
	return e.applyExpiry(ctx, p)
}

func (e *engineImpl) applyExpiry(ctx context.Context, p *api.Process) (*api.Process, error) {
	if !p.Expired(e.now()) {
		return p, nil
	}

	e.finish(p, api.StatusExpired, api.Actor{})
	if err := e.processes.UpdateProcess(ctx, p); err != nil {
		// A concurrent caller may have expired it first; their result stands.
		if errors.Is(err, persistence.ErrConflict) {
			reloaded, gerr := e.processes.GetProcess(ctx, p.ID)
			if gerr != nil {
				return nil, storeErr(gerr)
			}
			return reloaded, nil
		}
		return nil, storeErr(err)
	}
	e.enqueueReclaims(ctx, p)
	e.observer.OnProcessFinished(ctx, p)
	return p, nil
}

func (e *engineImpl) GetProcess(ctx context.Context, id string) (*api.Process, error) {
	return e.loadProcess(ctx, id)
}

func (e *engineImpl) ListProcesses(ctx context.Context, filter api.ProcessFilter) ([]*api.Process, error) {
	ps, err := e.processes.ListProcesses(ctx, filter)
	if err != nil {
		return nil, storeErr(err)
	}
	return ps, nil
}

func (e *engineImpl) IssueAccessToken(ctx context.Context, processID string, actor api.Actor) (api.AccessToken, error) {
	p, err := e.loadProcess(ctx, processID)
	if err != nil {
		return api.AccessToken{}, err
	}
	if p.Status.Terminal() {
		return api.AccessToken{}, fmt.Errorf("process %s is %s: %w", p.ID, p.Status, api.ErrInvalidTransition)
	}

	value, err := e.tokens.Issue(ctx)
	if err != nil {
		return api.AccessToken{}, fmt.Errorf("issuing token: %w", err)
	}

	now := e.now()
	token := api.AccessToken{Value: value, IssuedAt: now}
	if e.tokenTTL > 0 {
		token.ExpiresAt = now.Add(e.tokenTTL)
	}
	p.Token = &token
	p.UpdatedAt = now

	if err := e.processes.UpdateProcess(ctx, p); err != nil {
		return api.AccessToken{}, storeErr(err)
	}
	e.observer.OnTokenIssued(ctx, p, token)
	return token, nil
}

func (e *engineImpl) AccessByToken(ctx context.Context, token string) (*api.Process, error) {
	p, err := e.processes.FindByToken(ctx, token)
	if err != nil {
		return nil, storeErr(err)
	}
	if p, err = e.applyExpiry(ctx, p); err != nil {
		return nil, err
	}
	if p.Token == nil || p.Token.Expired(e.now()) {
		return nil, fmt.Errorf("process %s: %w", p.ID, api.ErrTokenExpired)
	}
	return p, nil
}

func (e *engineImpl) Advance(ctx context.Context, processID string, completed api.StepType, actor api.Actor) (*api.Process, error) {
	p, err := e.loadProcess(ctx, processID)
	if err != nil {
		return nil, err
	}
	if err := mutable(p); err != nil {
		return nil, err
	}
	if p.Current != completed {
		return nil, fmt.Errorf("step %s is not current (pointer on %s): %w", completed, p.Current, api.ErrInvalidTransition)
	}
	step := p.Step(completed)
	if step == nil || !step.Completable() {
		return nil, fmt.Errorf("step %s is not in a completable status: %w", completed, api.ErrInvalidTransition)
	}

	now := e.now()
	next, ok := p.NextStepType(completed)
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
		e.observer.OnStepStarted(ctx, p, nextStep)
		return p, nil
	}

	// No plan entry remains: the process is approved. Pending artifacts
	// become canonical now.
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
	e.observer.OnProcessFinished(ctx, p)
	return p, nil
}

func (e *engineImpl) Rewind(ctx context.Context, processID string, to api.StepType, actor api.Actor) (*api.Process, error) {
	p, err := e.loadProcess(ctx, processID)
	if err != nil {
		return nil, err
	}
	if err := mutable(p); err != nil {
		return nil, err
	}
	if to != api.StepDocumentUpload || p.Current != api.StepDocumentReview {
		return nil, fmt.Errorf("rewind is only legal from %s to %s: %w",
			api.StepDocumentReview, api.StepDocumentUpload, api.ErrInvalidTransition)
	}
	upload := p.Step(api.StepDocumentUpload)
	if upload == nil || upload.DocumentUpload == nil {
		return nil, fmt.Errorf("plan has no %s step: %w", api.StepDocumentUpload, api.ErrInvalidTransition)
	}
	if !hasCorrectionNeeded(upload.DocumentUpload) {
		return nil, fmt.Errorf("no document needs correction: %w", api.ErrInvalidTransition)
	}

	e.rewindToUpload(p, actor)
	if err := e.processes.UpdateProcess(ctx, p); err != nil {
		return nil, storeErr(err)
	}
	e.observer.OnStepStarted(ctx, p, upload)
	return p, nil
}

func hasCorrectionNeeded(state *api.DocumentUploadState) bool {
	for _, d := range state.Documents {
		if d.Status == api.DocCorrectionNeeded {
			return true
		}
	}
	return false
}

// rewindToUpload moves the pointer back to the upload step and reopens every
// document flagged for correction. Approved documents are untouched.
func (e *engineImpl) rewindToUpload(p *api.Process, actor api.Actor) {
	now := e.now()
	upload := p.Step(api.StepDocumentUpload)
	review := p.Step(api.StepDocumentReview)

	state := upload.DocumentUpload
	for _, d := range state.Documents {
		if d.Status != api.DocCorrectionNeeded {
			continue
		}
		d.Status = api.DocPendingUpload
		if state.UploadedDocuments > 0 {
			state.UploadedDocuments--
		}
		d.History = append(d.History, api.ReviewEntry{
			ActorID: actor.ID,
			Action:  api.HistoryReupload,
			At:      now,
		})
	}

	upload.Status = api.StepInProgress
	upload.CompletedAt = nil
	upload.CompletedBy = ""
	review.Status = api.StepPending
	review.StartedAt = nil
	review.StartedBy = ""

	p.Current = api.StepDocumentUpload
	p.CurrentActorID = actor.ID
	p.UpdatedAt = now
}

func (e *engineImpl) RejectProcess(ctx context.Context, processID, reason string, actor api.Actor) (*api.Process, error) {
	return e.terminate(ctx, processID, api.StatusRejected, reason, actor)
}

func (e *engineImpl) CancelProcess(ctx context.Context, processID, reason string, actor api.Actor) (*api.Process, error) {
	return e.terminate(ctx, processID, api.StatusCancelled, reason, actor)
}

func (e *engineImpl) terminate(ctx context.Context, processID string, status api.Status, reason string, actor api.Actor) (*api.Process, error) {
	p, err := e.loadProcess(ctx, processID)
	if err != nil {
		return nil, err
	}
	// Reject and cancel stay available while an alert has the process
	// suspended; only a terminal status closes the door.
	if p.Status.Terminal() {
		return nil, fmt.Errorf("process %s is %s: %w", p.ID, p.Status, api.ErrInvalidTransition)
	}

	e.finish(p, status, actor)
	p.RejectionReason = reason
	p.ResumeActorID = ""
	if err := e.processes.UpdateProcess(ctx, p); err != nil {
		return nil, storeErr(err)
	}
	e.enqueueReclaims(ctx, p)
	e.observer.OnProcessFinished(ctx, p)
	return p, nil
}

// enqueueReclaims schedules reclamation for every artifact still pending on
// the process. Failures to enqueue are not fatal to the calling operation.
func (e *engineImpl) enqueueReclaims(ctx context.Context, p *api.Process) {
	if e.reclaim == nil {
		return
	}
	now := e.now()
	for _, s := range p.Steps {
		if s.DocumentUpload == nil {
			continue
		}
		for _, d := range s.DocumentUpload.Documents {
			if !d.ArtifactPending || d.ArtifactRef == "" {
				continue
			}
			_ = e.reclaim.Enqueue(ctx, reclaim.Task{
				ID:          uuid.NewString(),
				ProcessID:   p.ID,
				DocumentID:  d.ID,
				ArtifactRef: d.ArtifactRef,
				EnqueuedAt:  now,
			})
		}
	}
}
