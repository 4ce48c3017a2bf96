package ai

import (
	"errors"
	"fmt"
)

// ErrStreamClosed is returned by Recv after the consumer abandoned the stream.
var ErrStreamClosed = errors.New("upstream stream closed")

// ConfigError reports an unknown provider or missing credentials.
// It is raised before any network traffic.
type ConfigError struct {
	Provider string
	Reason   string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("provider %q: %s", e.Provider, e.Reason)
}

// RequestError reports a failure before the first fragment: a transport
// error (StatusCode 0) or a non-2xx upstream response.
type RequestError struct {
	Provider   string
	StatusCode int
	Message    string
	Body       string
	Err        error
}

func (e *RequestError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("%s request failed: %v", e.Provider, e.Err)
	}
	if e.Message != "" {
		return fmt.Sprintf("%s returned http %d: %s", e.Provider, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s returned http %d", e.Provider, e.StatusCode)
}

func (e *RequestError) Unwrap() error { return e.Err }

// StreamError reports a failure after the stream started. Fragments
// yielded before it remain valid.
type StreamError struct {
	Provider string
	Err      error
}

func (e *StreamError) Error() string {
	return fmt.Sprintf("%s stream interrupted: %v", e.Provider, e.Err)
}

func (e *StreamError) Unwrap() error { return e.Err }
