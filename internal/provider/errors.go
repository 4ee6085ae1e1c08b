package provider

import (
	"errors"
	"fmt"
)

// Sentinel errors for the failure modes the completion engine tells apart.
// Check them with errors.Is().
var (
	// ErrContextLength means the prompt plus reserved reply exceeded the
	// model's context window. Retrying the same history cannot succeed.
	ErrContextLength = errors.New("provider: context length exceeded")

	// ErrInvalidRequest means the backend rejected the request as malformed
	// (bad parameters, unknown model, wrong prompt shape).
	ErrInvalidRequest = errors.New("provider: invalid request")
)

// RequestError is a classified error returned by a backend.
type RequestError struct {
	Provider   string // backend name
	StatusCode int    // HTTP status, 0 when the request never left the process
	Message    string // raw description from the service
	Err        error  // ErrContextLength or ErrInvalidRequest
}

// Error returns the service's own description so it can be shown verbatim.
func (e *RequestError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s: status %d: %v", e.Provider, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Provider, e.Err)
}

func (e *RequestError) Unwrap() error {
	return e.Err
}

// IsContextLength reports whether err means the prompt was too long.
func IsContextLength(err error) bool {
	return errors.Is(err, ErrContextLength)
}

// IsInvalidRequest reports whether err is a malformed-request rejection
// (context-length errors included).
func IsInvalidRequest(err error) bool {
	return errors.Is(err, ErrInvalidRequest) || errors.Is(err, ErrContextLength)
}

func invalidPrompt(provider string, got any) error {
	return &RequestError{
		Provider: provider,
		Message:  fmt.Sprintf("%s: unsupported prompt type %T", provider, got),
		Err:      ErrInvalidRequest,
	}
}
