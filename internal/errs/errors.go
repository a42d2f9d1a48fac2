package errs

import "errors"

// Common sentinel errors for cross-layer signaling.
// Callers wrap them with context (account numbers, year, source key) and
// match with errors.Is.
var (
	// ErrValidation marks a malformed entry or request; nothing is persisted.
	ErrValidation = errors.New("validation")
	// ErrPeriodLocked is returned for mutations dated inside a locked fiscal year.
	ErrPeriodLocked = errors.New("period_locked")
	// ErrAlreadyExists signals an idempotent re-invocation of a creating step.
	ErrAlreadyExists = errors.New("already_exists")
	// ErrAlreadyLocked signals regeneration of a snapshot that has been locked.
	ErrAlreadyLocked = errors.New("already_locked")
	ErrNotFound      = errors.New("not_found")
	// ErrNotInitialized is returned when prerequisite master data or the
	// closing row for a year is missing.
	ErrNotInitialized = errors.New("not_initialized")
	// ErrAlreadyReversed is returned when a storno already references an entry.
	ErrAlreadyReversed = errors.New("already_reversed")
	// ErrConflict reports a lost unique-key race inside the store.
	ErrConflict  = errors.New("conflict")
	ErrForbidden = errors.New("forbidden")
)
