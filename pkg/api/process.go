package api

import (
	"time"
)

// Status represents the overall lifecycle state of a screening process.
type Status string

const (
	StatusInProgress        Status = "IN_PROGRESS"
	StatusPendingSupervisor Status = "PENDING_SUPERVISOR"
	StatusApproved          Status = "APPROVED"
	StatusRejected          Status = "REJECTED"
	StatusExpired           Status = "EXPIRED"
	StatusCancelled         Status = "CANCELLED"
)

// Terminal reports whether a process status is absorbing. No transition
// leaves a terminal status.
func (s Status) Terminal() bool {
	switch s {
	case StatusApproved, StatusRejected, StatusExpired, StatusCancelled:
		return true
	}
	return false
}

// Actor identifies who is performing an operation. Identity and role
// resolution live outside the engine; the Supervisor flag is consumed as an
// opaque authority bit.
type Actor struct {
	ID         string
	Supervisor bool
}

// Identification carries the fields used to identify a candidate before a
// professional record exists. IdentityDocument is the national identity
// document (CPF); validation of its format is external to the engine.
type Identification struct {
	FullName         string
	IdentityDocument string
	Phone            string
}

// AccessToken grants public (unauthenticated) access to a process, typically
// so the professional can upload documents themselves. Token generation
// policy is external; the engine only stores the opaque value and checks
// expiry lazily on access.
type AccessToken struct {
	Value     string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Expired reports whether the token has expired at the given instant.
func (t AccessToken) Expired(now time.Time) bool {
	return !t.ExpiresAt.IsZero() && now.After(t.ExpiresAt)
}

// Process is one onboarding/screening attempt for a professional.
//
// Plan is the ordered, immutable-after-creation list of step types configured
// for this instance. Current always points at a member of Plan, or is empty
// once the process has reached a terminal status.
type Process struct {
	ID             string
	TenantID       string
	ProfessionalID string // optional link to an existing professional record
	Identification Identification

	Status  Status
	Plan    []StepType
	Current StepType
	Steps   []*Step // one per Plan entry, same order

	Alerts []*Alert // ordered; at most one unresolved

	Token *AccessToken

	OwnerID        string
	CurrentActorID string
	// ResumeActorID remembers who held the process before an alert moved it
	// to the supervisor, so Resolve can hand it back.
	ResumeActorID string

	RejectionReason string
	FinishedBy      string
	FinishedAt      *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
	ExpiresAt *time.Time

	// Rev is the optimistic concurrency counter for process-level fields.
	// Stores reject updates whose Rev does not match the persisted value.
	Rev int64
}

// Step returns the step record for the given type, or nil if the type is not
// part of this process's plan.
func (p *Process) Step(t StepType) *Step {
	for _, s := range p.Steps {
		if s.Type == t {
			return s
		}
	}
	return nil
}

// CurrentStep returns the step the pointer is on, or nil when the process is
// finished.
func (p *Process) CurrentStep() *Step {
	if p.Current == "" {
		return nil
	}
	return p.Step(p.Current)
}

// UnresolvedAlert returns the open alert, if any.
func (p *Process) UnresolvedAlert() *Alert {
	for _, a := range p.Alerts {
		if !a.Resolved {
			return a
		}
	}
	return nil
}

// Blocked reports whether an unresolved alert is freezing the process.
func (p *Process) Blocked() bool {
	return p.UnresolvedAlert() != nil
}

// Expired reports whether the process deadline has passed at the given
// instant. Terminal processes never expire.
func (p *Process) Expired(now time.Time) bool {
	if p.Status.Terminal() || p.ExpiresAt == nil {
		return false
	}
	return now.After(*p.ExpiresAt)
}

// NextStepType returns the plan entry after the given type, skipping steps
// already marked skipped. ok is false when no entry remains.
func (p *Process) NextStepType(after StepType) (next StepType, ok bool) {
	idx := -1
	for i, t := range p.Plan {
		if t == after {
			idx = i
			break
		}
	}
	if idx < 0 {
		return "", false
	}
	for _, t := range p.Plan[idx+1:] {
		if s := p.Step(t); s != nil && s.Status == StepSkipped {
			continue
		}
		return t, true
	}
	return "", false
}

// ProcessFilter selects processes when listing. Zero values mean "no filter".
type ProcessFilter struct {
	TenantID string
	Status   Status
}
