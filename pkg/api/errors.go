package api

import "errors"

// Error taxonomy of the engine. Every operation either succeeds atomically
// or fails with one of these (wrapped with call-site context) and leaves no
// visible state change behind.
var (
	// ErrInvalidTransition is returned when an operation is not legal from
	// the current state. It is never retried automatically.
	ErrInvalidTransition = errors.New("invalid transition")

	// ErrAlreadyConfigured is returned when configuring a document-upload
	// step whose document set has already been configured.
	ErrAlreadyConfigured = errors.New("documents already configured")

	// ErrNotConfigured is returned for upload/reuse/complete on a
	// document-upload step whose document set has not been configured yet.
	ErrNotConfigured = errors.New("documents not configured")

	// ErrProcessBlockedByAlert is returned for step/document mutations while
	// an unresolved alert holds the process in pending-supervisor.
	ErrProcessBlockedByAlert = errors.New("process blocked by alert")

	// ErrAlertAlreadyExists is returned when raising an alert on a process
	// that already has an unresolved one.
	ErrAlertAlreadyExists = errors.New("unresolved alert already exists")

	// ErrVersionNotPending is returned when applying or rejecting a version
	// that has already been applied or rejected.
	ErrVersionNotPending = errors.New("version is not pending")

	// ErrFeatureNotSupported is returned when a version carries a snapshot
	// section the deployment has not enabled.
	ErrFeatureNotSupported = errors.New("feature not supported")

	// ErrConcurrentModification is returned when an optimistic-lock check
	// fails. The whole operation is safe to retry.
	ErrConcurrentModification = errors.New("concurrent modification")

	// ErrNotFound is returned when a referenced entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrValidationFailed is returned on business-rule violations, e.g.
	// identity-document uniqueness within a tenant.
	ErrValidationFailed = errors.New("validation failed")

	// ErrTokenExpired is returned when accessing a process through an
	// expired public token. Expiry is evaluated lazily at call time.
	ErrTokenExpired = errors.New("access token expired")
)

// Retryable reports whether the caller may safely retry the whole operation.
// Only optimistic-lock conflicts are retryable; every other taxonomy error
// is terminal to the caller.
func Retryable(err error) bool {
	return errors.Is(err, ErrConcurrentModification)
}
