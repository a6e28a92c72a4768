package oci

import "errors"

// Sentinel errors for the failure classes callers are expected to branch on.
// Operational failures (I/O, permissions) are wrapped with the failing path via
// fmt.Errorf and %w instead; they are never swallowed and never replaced with a
// sentinel digest or a silent skip.
var (
	// ErrInvalidPattern reports a malformed glob in the ignore rule file.
	// Fatal at load time; a bad rule is never skipped.
	ErrInvalidPattern = errors.New("invalid ignore pattern")

	// ErrPendingChanges is returned by prune and purge when the index does
	// not match the filesystem. No mutation has been performed.
	ErrPendingChanges = errors.New("index has pending changes")

	// ErrConflict is returned by restore when a quarantined file's original
	// path is already occupied. The restore performs no moves.
	ErrConflict = errors.New("destination already exists")

	// ErrNotFound reports an operation on a path absent from both the
	// filesystem and the index.
	ErrNotFound = errors.New("path not found")

	// ErrAlreadyInitialized is returned by Init when a control directory
	// already exists at the target root.
	ErrAlreadyInitialized = errors.New("index already initialized")

	// ErrNotInitialized is returned when no control directory is found in
	// the starting directory or any of its parents.
	ErrNotInitialized = errors.New("not inside an oci repository")

	// ErrIndexFormat reports an index file whose header this build cannot
	// read (wrong magic, format version, or hash algorithm).
	ErrIndexFormat = errors.New("unsupported index format")
)
