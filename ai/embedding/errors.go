package embedding

import (
	"errors"
	"fmt"
)

// ErrEmptyResult is returned when the provider answers a non-empty request with no vectors.
var ErrEmptyResult = errors.New("embedding provider returned no vectors")

// ProviderError reports a failed call: a transport failure (StatusCode 0)
// or a non-2xx response.
type ProviderError struct {
	StatusCode int
	Body       string
	Err        error
}

func (e *ProviderError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("embedding provider unreachable: %v", e.Err)
	}
	return fmt.Sprintf("embedding provider returned status %d: %s", e.StatusCode, e.Body)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// ProtocolError reports a response that does not match the expected shape.
type ProtocolError struct {
	Reason string
	Err    error
}

func (e *ProtocolError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("embedding protocol error: %s: %v", e.Reason, e.Err)
	}
	return "embedding protocol error: " + e.Reason
}

func (e *ProtocolError) Unwrap() error {
	return e.Err
}
