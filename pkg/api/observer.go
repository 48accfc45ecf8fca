package api

import (
	"context"
	"log/slog"
	"sync/atomic"
)

// Observer receives callbacks from the engine for logging, metrics, and
// outbound notifications (token issued, alert raised, correction requested).
// Delivery and rendering of notifications are external; the engine only
// emits the events.
//
// Implementations should be fast and non-blocking; heavy work should be done
// asynchronously so as not to delay the calling operation.
type Observer interface {
	// OnProcessCreated is called once when a process is created.
	OnProcessCreated(ctx context.Context, p *Process)

	// OnProcessFinished is called when a process reaches a terminal status.
	OnProcessFinished(ctx context.Context, p *Process)

	// OnStepStarted is called when a step enters in-progress.
	OnStepStarted(ctx context.Context, p *Process, step *Step)

	// OnStepCompleted is called when a step reaches a completable terminal
	// status (completed, approved, or skipped).
	OnStepCompleted(ctx context.Context, p *Process, step *Step)

	// OnTokenIssued is called when a public-access token is issued.
	OnTokenIssued(ctx context.Context, p *Process, token AccessToken)

	// OnAlertRaised is called when an alert suspends the process.
	OnAlertRaised(ctx context.Context, p *Process, alert *Alert)

	// OnAlertResolved is called for both resolve and reject-via-alert.
	OnAlertResolved(ctx context.Context, p *Process, alert *Alert)

	// OnDocumentCorrectionRequested is called when a reviewer sends a
	// document back for re-upload.
	OnDocumentCorrectionRequested(ctx context.Context, p *Process, doc *Document)

	// OnVersionApplied is called when a version becomes current.
	OnVersionApplied(ctx context.Context, v *Version)
}

// NoopObserver is an Observer that does nothing. It is the default when no
// observer is configured.
type NoopObserver struct{}

func (NoopObserver) OnProcessCreated(ctx context.Context, p *Process)                  {}
func (NoopObserver) OnProcessFinished(ctx context.Context, p *Process)                 {}
func (NoopObserver) OnStepStarted(ctx context.Context, p *Process, step *Step)         {}
func (NoopObserver) OnStepCompleted(ctx context.Context, p *Process, step *Step)       {}
func (NoopObserver) OnTokenIssued(ctx context.Context, p *Process, token AccessToken)  {}
func (NoopObserver) OnAlertRaised(ctx context.Context, p *Process, alert *Alert)       {}
func (NoopObserver) OnAlertResolved(ctx context.Context, p *Process, alert *Alert)     {}
func (NoopObserver) OnDocumentCorrectionRequested(ctx context.Context, p *Process, doc *Document) {
}
func (NoopObserver) OnVersionApplied(ctx context.Context, v *Version) {}

// CompositeObserver fans out events to multiple observers.
type CompositeObserver struct {
	observers []Observer
}

// NewCompositeObserver creates an Observer that forwards events to each
// non-nil observer in obs.
func NewCompositeObserver(obs ...Observer) Observer {
	filtered := make([]Observer, 0, len(obs))
	for _, o := range obs {
		if o != nil {
			filtered = append(filtered, o)
		}
	}
	if len(filtered) == 0 {
		return NoopObserver{}
	}
	if len(filtered) == 1 {
		return filtered[0]
	}
	return &CompositeObserver{observers: filtered}
}

func (c *CompositeObserver) OnProcessCreated(ctx context.Context, p *Process) {
	for _, o := range c.observers {
		o.OnProcessCreated(ctx, p)
	}
}

func (c *CompositeObserver) OnProcessFinished(ctx context.Context, p *Process) {
	for _, o := range c.observers {
		o.OnProcessFinished(ctx, p)
	}
}

func (c *CompositeObserver) OnStepStarted(ctx context.Context, p *Process, step *Step) {
	for _, o := range c.observers {
		o.OnStepStarted(ctx, p, step)
	}
}

func (c *CompositeObserver) OnStepCompleted(ctx context.Context, p *Process, step *Step) {
	for _, o := range c.observers {
		o.OnStepCompleted(ctx, p, step)
	}
}

func (c *CompositeObserver) OnTokenIssued(ctx context.Context, p *Process, token AccessToken) {
	for _, o := range c.observers {
		o.OnTokenIssued(ctx, p, token)
	}
}

func (c *CompositeObserver) OnAlertRaised(ctx context.Context, p *Process, alert *Alert) {
	for _, o := range c.observers {
		o.OnAlertRaised(ctx, p, alert)
	}
}

func (c *CompositeObserver) OnAlertResolved(ctx context.Context, p *Process, alert *Alert) {
	for _, o := range c.observers {
		o.OnAlertResolved(ctx, p, alert)
	}
}

func (c *CompositeObserver) OnDocumentCorrectionRequested(ctx context.Context, p *Process, doc *Document) {
	for _, o := range c.observers {
		o.OnDocumentCorrectionRequested(ctx, p, doc)
	}
}

func (c *CompositeObserver) OnVersionApplied(ctx context.Context, v *Version) {
	for _, o := range c.observers {
		o.OnVersionApplied(ctx, v)
	}
}

// LoggingObserver writes structured logs using log/slog.
type LoggingObserver struct {
	Logger *slog.Logger
}

// NewLoggingObserver creates an Observer that logs engine lifecycle events
// using the provided slog.Logger. If logger is nil, slog.Default() is used.
func NewLoggingObserver(logger *slog.Logger) Observer {
	if logger == nil {
		logger = slog.Default()
	}
	return &LoggingObserver{Logger: logger}
}

func (o *LoggingObserver) processAttrs(p *Process) []any {
	return []any{
		slog.String("process_id", p.ID),
		slog.String("tenant_id", p.TenantID),
		slog.String("status", string(p.Status)),
	}
}

func (o *LoggingObserver) OnProcessCreated(ctx context.Context, p *Process) {
	o.Logger.InfoContext(ctx, "process_created", o.processAttrs(p)...)
}

func (o *LoggingObserver) OnProcessFinished(ctx context.Context, p *Process) {
	o.Logger.InfoContext(ctx, "process_finished", o.processAttrs(p)...)
}

func (o *LoggingObserver) OnStepStarted(ctx context.Context, p *Process, step *Step) {
	o.Logger.DebugContext(ctx, "step_started",
		slog.String("process_id", p.ID),
		slog.String("step", string(step.Type)),
	)
}

func (o *LoggingObserver) OnStepCompleted(ctx context.Context, p *Process, step *Step) {
	o.Logger.InfoContext(ctx, "step_completed",
		slog.String("process_id", p.ID),
		slog.String("step", string(step.Type)),
		slog.String("step_status", string(step.Status)),
	)
}

func (o *LoggingObserver) OnTokenIssued(ctx context.Context, p *Process, token AccessToken) {
	// The token value is a credential; log only its expiry.
	o.Logger.InfoContext(ctx, "token_issued",
		slog.String("process_id", p.ID),
		slog.Time("expires_at", token.ExpiresAt),
	)
}

func (o *LoggingObserver) OnAlertRaised(ctx context.Context, p *Process, alert *Alert) {
	o.Logger.WarnContext(ctx, "alert_raised",
		slog.String("process_id", p.ID),
		slog.String("alert_id", alert.ID),
		slog.String("category", alert.Category),
	)
}

func (o *LoggingObserver) OnAlertResolved(ctx context.Context, p *Process, alert *Alert) {
	o.Logger.InfoContext(ctx, "alert_resolved",
		slog.String("process_id", p.ID),
		slog.String("alert_id", alert.ID),
	)
}

func (o *LoggingObserver) OnDocumentCorrectionRequested(ctx context.Context, p *Process, doc *Document) {
	o.Logger.InfoContext(ctx, "document_correction_requested",
		slog.String("process_id", p.ID),
		slog.String("document_id", doc.ID),
		slog.String("document_type", doc.Type),
	)
}

func (o *LoggingObserver) OnVersionApplied(ctx context.Context, v *Version) {
	o.Logger.InfoContext(ctx, "version_applied",
		slog.String("version_id", v.ID),
		slog.String("professional_id", v.ProfessionalID),
		slog.Int("number", v.Number),
	)
}

// BasicMetrics collects simple counters. It implements Observer and can be
// combined with LoggingObserver via NewCompositeObserver.
type BasicMetrics struct {
	NoopObserver

	processesCreated  atomic.Int64
	processesFinished atomic.Int64
	stepsCompleted    atomic.Int64
	alertsRaised      atomic.Int64
	versionsApplied   atomic.Int64
}

// BasicMetricsSnapshot is an immutable snapshot of BasicMetrics.
type BasicMetricsSnapshot struct {
	ProcessesCreated  int64
	ProcessesFinished int64
	OpenProcesses     int64
	StepsCompleted    int64
	AlertsRaised      int64
	VersionsApplied   int64
}

func (m *BasicMetrics) OnProcessCreated(ctx context.Context, p *Process) {
	m.processesCreated.Add(1)
}

func (m *BasicMetrics) OnProcessFinished(ctx context.Context, p *Process) {
	m.processesFinished.Add(1)
}

func (m *BasicMetrics) OnStepCompleted(ctx context.Context, p *Process, step *Step) {
	m.stepsCompleted.Add(1)
}

func (m *BasicMetrics) OnAlertRaised(ctx context.Context, p *Process, alert *Alert) {
	m.alertsRaised.Add(1)
}

func (m *BasicMetrics) OnVersionApplied(ctx context.Context, v *Version) {
	m.versionsApplied.Add(1)
}

// Snapshot returns a snapshot of the current metrics.
func (m *BasicMetrics) Snapshot() BasicMetricsSnapshot {
	created := m.processesCreated.Load()
	finished := m.processesFinished.Load()
	return BasicMetricsSnapshot{
		ProcessesCreated:  created,
		ProcessesFinished: finished,
		OpenProcesses:     created - finished,
		StepsCompleted:    m.stepsCompleted.Load(),
		AlertsRaised:      m.alertsRaised.Load(),
		VersionsApplied:   m.versionsApplied.Load(),
	}
}
