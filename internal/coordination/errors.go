package coordination

import "errors"

var (
	// ErrMissingBusinessKey is returned when an operation requires a business
	// key and none was given.
	ErrMissingBusinessKey = errors.New("business key must not be empty")

	// ErrResponseNotFound is returned when no in-progress questionnaire
	// response exists for a business key. Callers should treat this as a
	// validation failure, not an outage.
	ErrResponseNotFound = errors.New("no in-progress questionnaire response found for business key")
)

// StartError signals that submitting the coordination request failed. The
// user-facing message is fixed; the original cause is logged at the wrap
// site, not exposed.
type StartError struct {
	cause error
}

// Error returns the fixed user-facing message.
func (*StartError) Error() string {
	return "could not initiate data-sharing coordination process"
}

// NewStartError wraps a failed coordination submit.
func NewStartError(cause error) *StartError {
	return &StartError{cause: cause}
}
