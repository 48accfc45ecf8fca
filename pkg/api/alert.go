package api

import "time"

// AlertNote is one entry in an alert's ordered note history.
type AlertNote struct {
	ActorID string
	Note    string
	At      time.Time
}

// Alert is an out-of-band interrupt that escalates a process to a
// supervisor. While an alert is unresolved the process sits in
// pending-supervisor and every step/document mutation is refused.
type Alert struct {
	ID       string
	Reason   string
	Category string

	RaisedBy string
	RaisedAt time.Time

	Resolved   bool
	ResolvedBy string
	ResolvedAt *time.Time

	Notes []AlertNote
}
