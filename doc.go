// Package triage provides an embeddable onboarding and screening workflow
// engine for staffing marketplaces.
//
// Triage models the screening of a professional candidate as a process: an
// ordered plan of typed steps with a movable pointer, a document ledger with
// review cycles, an alert channel for supervisor escalation, and an
// event-sourced versioning engine for the professional's data. It runs fully
// in Go, supports multiple persistence backends, and integrates cleanly into
// existing codebases.
//
// # Core Concepts
//
// The programming model is intentionally small:
//
//  1. Engine
//  2. Process and Steps
//  3. Documents
//  4. Alerts
//  5. Versions
//  6. Reclaimer
//
// # Engine
//
// The Engine persists process state and exposes the operations that move a
// screening forward: creating processes, completing steps, advancing the
// pointer, reviewing documents, raising and resolving alerts, and managing
// data versions. Every mutating operation is atomic: it either fully applies
// or leaves no visible change, and optimistic-lock conflicts are reported as
// retryable errors.
//
// Engines can be backed by different storage systems:
//
//   - In-memory (non-durable, best for tests)
//   - SQLite (embedded durability)
//   - Postgres
//   - Redis
//
// # Process and Steps
//
// A Process is one screening attempt. Its Plan fixes the ordered step types
// at creation; the Current pointer always sits on one of them until the
// process reaches a terminal status. Step types include the screening
// conversation, professional-data capture, document upload and review, and
// optional direct-outcome steps (payment info, client validation, contract
// signature). Each step carries its own revision counter, so actors working
// on different steps of the same process do not contend.
//
// # Documents
//
// The document-upload step holds a ledger of required and optional
// documents behind a two-phase gate: the document set is configured exactly
// once, then uploads are accepted. Reviewers approve documents or send them
// back for correction, which rewinds the process to the upload step while
// approved documents stay approved.
//
// # Alerts
//
// An Alert suspends the process and routes it to a supervisor. While an
// alert is unresolved every step and document mutation is refused; the
// supervisor either resolves the alert, returning the process to whoever
// held it, or rejects the process outright.
//
// # Versions
//
// Professional data changes flow through immutable, numbered versions. Each
// version stores a full snapshot plus the field-level diffs against the
// previous current version, stays pending until applied or rejected, and
// exactly one version per professional is current once any has been applied.
//
// # Reclaimer
//
// Uploaded artifacts are pending until the process succeeds. When a process
// is rejected, cancelled, or expires, its pending artifacts are enqueued for
// reclamation; the Reclaimer drains that queue against the configured
// ArtifactStore with bounded retries. See NewSQLiteBundle for a wired combo.
//
// For examples, see the /examples directory.
package triage
