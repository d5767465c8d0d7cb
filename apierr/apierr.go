// Package apierr defines the gateway's error taxonomy as tagged Go error
// values, so the orchestration layer can map them to HTTP responses without
// inspecting error strings.
package apierr

import "fmt"

// Category classifies an error for HTTP response mapping and logging.
type Category int

const (
	// TransientUpstream covers upstream timeouts, 5xx, and connect errors.
	// Policy: log, bump last_error, keep serving the cached value.
	TransientUpstream Category = iota
	// BadUpstreamPayload covers schema/type mismatches in an upstream
	// response. Policy: skip the offending record, continue the batch.
	BadUpstreamPayload
	// UpstreamNotFound covers 404/401/403 from an upstream provider.
	UpstreamNotFound
	// ClientBadRequest covers malformed inbound query/body.
	ClientBadRequest
	// ClientUnauthorized covers a missing or invalid auth principal.
	ClientUnauthorized
	// NotFound covers an unknown route/ticket/resource.
	NotFound
	// Internal covers anything else; maps to a generic 500.
	Internal
)

// Error wraps an underlying cause with a Category and short client-facing
// reason.
type Error struct {
	Category Category
	Reason   string
	Cause    error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Reason, e.Cause)
	}
	return e.Reason
}

func (e *Error) Unwrap() error { return e.Cause }

// New constructs an *Error with no underlying cause.
func New(cat Category, reason string) *Error {
	return &Error{Category: cat, Reason: reason}
}

// Wrap constructs an *Error carrying an underlying cause.
func Wrap(cat Category, reason string, cause error) *Error {
	return &Error{Category: cat, Reason: reason, Cause: cause}
}

// StatusCode maps a Category to the HTTP status an API handler should
// respond with.
func (c Category) StatusCode() int {
	switch c {
	case ClientBadRequest:
		return 400
	case ClientUnauthorized:
		return 401
	case NotFound, UpstreamNotFound:
		return 404
	case TransientUpstream, BadUpstreamPayload:
		return 502
	default:
		return 500
	}
}

// As extracts an *Error from err, if it is one (directly or wrapped).
func As(err error) (*Error, bool) {
	var e *Error
	ok := asError(err, &e)
	return e, ok
}

func asError(err error, target **Error) bool {
	for err != nil {
		if e, ok := err.(*Error); ok {
			*target = e
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
