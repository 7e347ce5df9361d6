package sessionindex

import "errors"

// Sentinel errors for Build/Update failures, checked with errors.Is.
// Outside this package they surface only as text: the watcher logs Update
// failures and reports a Build failure's message in IndexStatus.Error.
var (
	// ErrNotFound is returned when the session/sub-agent file does not
	// exist at the path the index was asked to build or refresh.
	ErrNotFound = errors.New("sessionindex: file not found")

	// ErrMalformedLine is returned when a JSONL line cannot be read as a
	// well-formed line (for example, it exceeds jsonl.ErrLineTooLong).
	// Lines that parse as JSONL but fail sessionevent.ParseLine are not an
	// error: they are silently skipped, per spec.md's "fault-tolerant
	// skip" requirement for unrecognized-shape events.
	ErrMalformedLine = errors.New("sessionindex: malformed jsonl line")

	// ErrIO wraps an underlying filesystem read error that is not a
	// not-exist or malformed-line condition.
	ErrIO = errors.New("sessionindex: i/o error")

	// ErrLockPoisoned names a lock-poisoned condition. Go's sync.RWMutex
	// has no poisoning, and no code path in this package returns it.
	ErrLockPoisoned = errors.New("sessionindex: lock poisoned")

	// ErrBuildFailed wraps any error returned by Build, so callers can use
	// a single errors.Is check regardless of the underlying cause.
	ErrBuildFailed = errors.New("sessionindex: build failed")
)
