package engine

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/mvilaca/triage/internal/reclaim"
	"github.com/mvilaca/triage/pkg/api"
)

func (e *engineImpl) ConfigureDocuments(ctx context.Context, processID string, specs []api.DocumentSpec, actor api.Actor) (*api.Process, error) {
	if len(specs) == 0 {
		return nil, fmt.Errorf("document set is empty: %w", api.ErrValidationFailed)
	}
	for _, spec := range specs {
		if spec.Type == "" {
			return nil, fmt.Errorf("document type is required: %w", api.ErrValidationFailed)
		}
	}

	p, err := e.loadProcess(ctx, processID)
	if err != nil {
		return nil, err
	}
	if err := mutable(p); err != nil {
		return nil, err
	}
	step, err := e.currentStep(p, api.StepDocumentUpload)
	if err != nil {
		return nil, err
	}
	state := step.DocumentUpload
	if state.Configured {
		return nil, fmt.Errorf("step %s: %w", step.ID, api.ErrAlreadyConfigured)
	}

	required := 0
	for _, spec := range specs {
		if spec.Required {
			required++
		}
		state.Documents = append(state.Documents, &api.Document{
			ID:           uuid.NewString(),
			Type:         spec.Type,
			Required:     spec.Required,
			DisplayOrder: spec.DisplayOrder,
			Status:       api.DocPendingUpload,
		})
	}
	state.Configured = true
	state.RequiredDocuments = required
	state.UploadedDocuments = 0

	if err := e.processes.UpdateStep(ctx, p.ID, step); err != nil {
		return nil, storeErr(err)
	}
	return p, nil
}

func (e *engineImpl) UploadDocument(ctx context.Context, processID, documentID, artifactRef string, actor api.Actor) (*api.Process, error) {
	return e.attachArtifact(ctx, processID, documentID, artifactRef, actor, false)
}

func (e *engineImpl) ReuseArtifact(ctx context.Context, processID, documentID, artifactRef string, actor api.Actor) (*api.Process, error) {
	return e.attachArtifact(ctx, processID, documentID, artifactRef, actor, true)
}

// attachArtifact is the shared upload/reuse path. The two differ only in the
// history action recorded and in whether the artifact counts as pending:
// reused artifacts are already canonical elsewhere and are never reclaimed
// through this process.
func (e *engineImpl) attachArtifact(ctx context.Context, processID, documentID, artifactRef string, actor api.Actor, reuse bool) (*api.Process, error) {
	if artifactRef == "" {
		return nil, fmt.Errorf("artifact reference is required: %w", api.ErrValidationFailed)
	}

	p, err := e.loadProcess(ctx, processID)
	if err != nil {
		return nil, err
	}
	if err := mutable(p); err != nil {
		return nil, err
	}
	step, err := e.currentStep(p, api.StepDocumentUpload)
	if err != nil {
		return nil, err
	}
	state := step.DocumentUpload
	if !state.Configured {
		return nil, fmt.Errorf("step %s: %w", step.ID, api.ErrNotConfigured)
	}
	doc := state.Document(documentID)
	if doc == nil {
		return nil, fmt.Errorf("document %s: %w", documentID, api.ErrNotFound)
	}
	if !doc.AwaitsUpload() {
		return nil, fmt.Errorf("document %s is %s, not awaiting upload: %w", documentID, doc.Status, api.ErrInvalidTransition)
	}

	// Replacing a pending artifact orphans the previous one.
	if doc.ArtifactPending && doc.ArtifactRef != "" && doc.ArtifactRef != artifactRef {
		e.enqueueReclaim(ctx, p.ID, doc.ID, doc.ArtifactRef)
	}

	now := e.now()
	if doc.Status == api.DocPendingUpload {
		state.UploadedDocuments++
	}
	doc.ArtifactRef = artifactRef
	doc.ArtifactPending = !reuse
	doc.Status = api.DocPendingReview

	action := api.HistoryUpload
	if reuse {
		action = api.HistoryReuse
	}
	doc.History = append(doc.History, api.ReviewEntry{
		ActorID: actor.ID,
		Action:  action,
		At:      now,
	})

	if err := e.processes.UpdateStep(ctx, p.ID, step); err != nil {
		return nil, storeErr(err)
	}
	return p, nil
}

func (e *engineImpl) enqueueReclaim(ctx context.Context, processID, documentID, ref string) {
	if e.reclaim == nil {
		return
	}
	_ = e.reclaim.Enqueue(ctx, reclaim.Task{
		ID:          uuid.NewString(),
		ProcessID:   processID,
		DocumentID:  documentID,
		ArtifactRef: ref,
		EnqueuedAt:  e.now(),
	})
}

func (e *engineImpl) ReviewDocument(ctx context.Context, processID, documentID string, approved bool, note string, actor api.Actor) (*api.Process, error) {
	p, err := e.loadProcess(ctx, processID)
	if err != nil {
		return nil, err
	}
	if err := mutable(p); err != nil {
		return nil, err
	}
	if _, err := e.currentStep(p, api.StepDocumentReview); err != nil {
		return nil, err
	}
	upload := p.Step(api.StepDocumentUpload)
	if upload == nil || upload.DocumentUpload == nil {
		return nil, fmt.Errorf("plan has no %s step: %w", api.StepDocumentUpload, api.ErrInvalidTransition)
	}
	doc := upload.DocumentUpload.Document(documentID)
	if doc == nil {
		return nil, fmt.Errorf("document %s: %w", documentID, api.ErrNotFound)
	}
	if doc.Status != api.DocPendingReview {
		return nil, fmt.Errorf("document %s is %s, not pending review: %w", documentID, doc.Status, api.ErrInvalidTransition)
	}

	now := e.now()
	if approved {
		// Approval makes the artifact canonical; it survives a later
		// rejection of the process.
		doc.Status = api.DocApproved
		doc.ArtifactPending = false
		doc.History = append(doc.History, api.ReviewEntry{
			ActorID: actor.ID,
			Action:  api.HistoryApprove,
			Note:    note,
			At:      now,
		})
	} else {
		doc.Status = api.DocCorrectionNeeded
		doc.History = append(doc.History, api.ReviewEntry{
			ActorID: actor.ID,
			Action:  api.HistoryCorrection,
			Note:    note,
			At:      now,
		})
	}

	if err := e.processes.UpdateStep(ctx, p.ID, upload); err != nil {
		return nil, storeErr(err)
	}
	if !approved {
		e.observer.OnDocumentCorrectionRequested(ctx, p, doc)
	}
	return p, nil
}

func (e *engineImpl) CompleteDocumentUpload(ctx context.Context, processID string, actor api.Actor) (*api.Process, error) {
	p, err := e.loadProcess(ctx, processID)
	if err != nil {
		return nil, err
	}
	if err := mutable(p); err != nil {
		return nil, err
	}
	step, err := e.currentStep(p, api.StepDocumentUpload)
	if err != nil {
		return nil, err
	}
	state := step.DocumentUpload
	if !state.Configured {
		return nil, fmt.Errorf("step %s: %w", step.ID, api.ErrNotConfigured)
	}
	if !state.AllRequiredUploaded() {
		return nil, fmt.Errorf("uploaded %d of %d required documents: %w",
			state.UploadedDocuments, state.RequiredDocuments, api.ErrInvalidTransition)
	}
	for _, d := range state.Documents {
		if d.Required && d.AwaitsUpload() {
			return nil, fmt.Errorf("required document %s still awaits upload: %w", d.ID, api.ErrInvalidTransition)
		}
	}

	now := e.now()
	// Optional documents never uploaded are skipped at completion.
	for _, d := range state.Documents {
		if !d.Required && d.Status == api.DocPendingUpload {
			d.Status = api.DocSkipped
		}
	}
	step.Status = api.StepCompleted
	step.CompletedAt = &now
	step.CompletedBy = actor.ID

	if err := e.processes.UpdateStep(ctx, p.ID, step); err != nil {
		return nil, storeErr(err)
	}
	e.observer.OnStepCompleted(ctx, p, step)
	return p, nil
}

func (e *engineImpl) CompleteDocumentReview(ctx context.Context, processID string, actor api.Actor) (*api.Process, error) {
	p, err := e.loadProcess(ctx, processID)
	if err != nil {
		return nil, err
	}
	if err := mutable(p); err != nil {
		return nil, err
	}
	step, err := e.currentStep(p, api.StepDocumentReview)
	if err != nil {
		return nil, err
	}
	upload := p.Step(api.StepDocumentUpload)
	if upload == nil || upload.DocumentUpload == nil {
		return nil, fmt.Errorf("plan has no %s step: %w", api.StepDocumentUpload, api.ErrInvalidTransition)
	}
	state := upload.DocumentUpload

	corrections := false
	for _, d := range state.Documents {
		switch d.Status {
		case api.DocPendingReview:
			return nil, fmt.Errorf("document %s is still pending review: %w", d.ID, api.ErrInvalidTransition)
		case api.DocCorrectionNeeded:
			corrections = true
		}
	}

	now := e.now()
	if corrections {
		// The derived outcome is "send back": the pointer returns to the
		// upload step and the flagged documents reopen. Approved documents
		// are untouched.
		e.rewindToUpload(p, actor)
		if err := e.processes.UpdateProcess(ctx, p); err != nil {
			return nil, storeErr(err)
		}
		e.observer.OnStepStarted(ctx, p, upload)
		return p, nil
	}

	step.Status = api.StepApproved
	step.ReviewedAt = &now
	step.ReviewedBy = actor.ID
	step.CompletedAt = &now
	step.CompletedBy = actor.ID

	if err := e.processes.UpdateStep(ctx, p.ID, step); err != nil {
		return nil, storeErr(err)
	}
	e.observer.OnStepCompleted(ctx, p, step)
	return p, nil
}
