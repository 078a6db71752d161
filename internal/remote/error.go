package remote

import "fmt"

// ErrorKind classifies a failed server call for the queue engine: retryable
// failures reschedule with backoff, conflicts go to the resolver, the rest
// park the item.
type ErrorKind int

const (
	// KindRetryable covers network failures, timeouts and 5xx responses.
	KindRetryable ErrorKind = iota

	// KindConflict is a 409: the server holds a newer version and returned
	// its record.
	KindConflict

	// KindValidation is a 400/422: the payload will never be accepted.
	KindValidation

	// KindUnauthorized is a 401/403: credentials are missing or expired.
	KindUnauthorized

	// KindNotFound is a 404 for an update or delete of an entity the
	// server does not hold.
	KindNotFound
)

func (k ErrorKind) String() string {
	switch k {
	case KindRetryable:
		return "retryable"
	case KindConflict:
		return "conflict"
	case KindValidation:
		return "validation"
	case KindUnauthorized:
		return "unauthorized"
	case KindNotFound:
		return "not_found"
	default:
		return "unknown"
	}
}

// Error is a failed server call. ServerRecord is populated on conflicts so
// the resolver can work without an extra round trip.
type Error struct {
	Status       int
	Kind         ErrorKind
	Message      string
	ServerRecord *Record
}

func (e *Error) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("server returned %d (%s): %s", e.Status, e.Kind, e.Message)
	}
	return fmt.Sprintf("server returned %d (%s)", e.Status, e.Kind)
}

// Retryable reports whether the failure is transient.
func (e *Error) Retryable() bool { return e.Kind == KindRetryable }
