package engine

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/mvilaca/triage/pkg/api"
)

func (e *engineImpl) RaiseAlert(ctx context.Context, processID, reason, category string, actor api.Actor) (*api.Process, error) {
	if reason == "" {
		return nil, fmt.Errorf("alert reason is required: %w", api.ErrValidationFailed)
	}

	p, err := e.loadProcess(ctx, processID)
	if err != nil {
		return nil, err
	}
	// An open alert outranks the status check: a blocked process is always
	// PENDING_SUPERVISOR, and the caller should hear about the existing alert.
	if p.Blocked() {
		return nil, fmt.Errorf("process %s: %w", p.ID, api.ErrAlertAlreadyExists)
	}
	if p.Status != api.StatusInProgress {
		return nil, fmt.Errorf("process %s is %s: %w", p.ID, p.Status, api.ErrInvalidTransition)
	}

	now := e.now()
	alert := &api.Alert{
		ID:       uuid.NewString(),
		Reason:   reason,
		Category: category,
		RaisedBy: actor.ID,
		RaisedAt: now,
	}
	p.Alerts = append(p.Alerts, alert)
	p.Status = api.StatusPendingSupervisor
	p.ResumeActorID = p.CurrentActorID
	p.CurrentActorID = ""
	p.UpdatedAt = now

	if err := e.processes.UpdateProcess(ctx, p); err != nil {
		return nil, storeErr(err)
	}
	e.observer.OnAlertRaised(ctx, p, alert)
	return p, nil
}

func (e *engineImpl) AddAlertNote(ctx context.Context, processID, note string, actor api.Actor) (*api.Process, error) {
	if note == "" {
		return nil, fmt.Errorf("note is required: %w", api.ErrValidationFailed)
	}

	p, err := e.loadProcess(ctx, processID)
	if err != nil {
		return nil, err
	}
	alert := p.UnresolvedAlert()
	if alert == nil {
		return nil, fmt.Errorf("process %s has no unresolved alert: %w", p.ID, api.ErrInvalidTransition)
	}

	now := e.now()
	alert.Notes = append(alert.Notes, api.AlertNote{
		ActorID: actor.ID,
		Note:    note,
		At:      now,
	})
	p.UpdatedAt = now

	if err := e.processes.UpdateProcess(ctx, p); err != nil {
		return nil, storeErr(err)
	}
	return p, nil
}

func (e *engineImpl) ResolveAlert(ctx context.Context, processID, note string, actor api.Actor) (*api.Process, error) {
	p, alert, err := e.resolvableAlert(ctx, processID, actor)
	if err != nil {
		return nil, err
	}

	now := e.now()
	e.resolve(alert, note, actor)

	// Resolution hands the process back to whoever held it before the alert.
	p.Status = api.StatusInProgress
	p.CurrentActorID = p.ResumeActorID
	p.ResumeActorID = ""
	p.UpdatedAt = now

	if err := e.processes.UpdateProcess(ctx, p); err != nil {
		return nil, storeErr(err)
	}
	e.observer.OnAlertResolved(ctx, p, alert)
	return p, nil
}

func (e *engineImpl) RejectViaAlert(ctx context.Context, processID, reason string, actor api.Actor) (*api.Process, error) {
	p, alert, err := e.resolvableAlert(ctx, processID, actor)
	if err != nil {
		return nil, err
	}

	e.resolve(alert, reason, actor)
	e.finish(p, api.StatusRejected, actor)
	p.RejectionReason = reason
	p.ResumeActorID = ""

	if err := e.processes.UpdateProcess(ctx, p); err != nil {
		return nil, storeErr(err)
	}
	e.enqueueReclaims(ctx, p)
	e.observer.OnAlertResolved(ctx, p, alert)
	e.observer.OnProcessFinished(ctx, p)
	return p, nil
}

// resolvableAlert loads the process and validates the supervisor-only
// resolution preconditions shared by resolve and reject-via-alert.
func (e *engineImpl) resolvableAlert(ctx context.Context, processID string, actor api.Actor) (*api.Process, *api.Alert, error) {
	if !actor.Supervisor {
		return nil, nil, fmt.Errorf("supervisor authority required: %w", api.ErrValidationFailed)
	}

	p, err := e.loadProcess(ctx, processID)
	if err != nil {
		return nil, nil, err
	}
	if p.Status != api.StatusPendingSupervisor {
		return nil, nil, fmt.Errorf("process %s is %s: %w", p.ID, p.Status, api.ErrInvalidTransition)
	}
	alert := p.UnresolvedAlert()
	if alert == nil {
		return nil, nil, fmt.Errorf("process %s has no unresolved alert: %w", p.ID, api.ErrInvalidTransition)
	}
	return p, alert, nil
}

func (e *engineImpl) resolve(alert *api.Alert, note string, actor api.Actor) {
	now := e.now()
	alert.Resolved = true
	alert.ResolvedBy = actor.ID
	alert.ResolvedAt = &now
	if note != "" {
		alert.Notes = append(alert.Notes, api.AlertNote{
			ActorID: actor.ID,
			Note:    note,
			At:      now,
		})
	}
}
