package domain

import "errors"

// Shared error taxonomy. Realtime frame handling surfaces these to the
// originating connection only; the HTTP layer maps them to status codes.
var (
	// ErrNotFound means a referenced user, channel, or message does not exist.
	ErrNotFound = errors.New("not found")

	// ErrForbidden means the actor lacks access (not a member, not admin).
	ErrForbidden = errors.New("forbidden")

	// ErrUnauthorized means a frame's declared sender does not match the
	// connection's authenticated identity, or credentials are missing.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrBadFrame means an inbound payload could not be decoded.
	ErrBadFrame = errors.New("bad frame")

	// ErrDeliveryFailure means a fanout send to one connection failed.
	// Isolated per connection; never aborts delivery to the rest.
	ErrDeliveryFailure = errors.New("delivery failure")

	// ErrConflict means a unique constraint was violated (username or
	// channel name already taken, duplicate membership).
	ErrConflict = errors.New("already exists")
)

// ErrorLabel maps a taxonomy error to the string carried by an
// outbound error frame.
func ErrorLabel(err error) string {
	switch {
	case errors.Is(err, ErrNotFound):
		return "NotFound"
	case errors.Is(err, ErrForbidden):
		return "Forbidden"
	case errors.Is(err, ErrUnauthorized):
		return "Unauthorized"
	case errors.Is(err, ErrBadFrame):
		return "BadFrame"
	case errors.Is(err, ErrConflict):
		return "Conflict"
	default:
		return "Internal"
	}
}
