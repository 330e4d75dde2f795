package fetch

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
)

// ErrCancelled is returned for a request that was superseded or torn down.
// It is expected and never surfaced to the user.
var ErrCancelled = errors.New("request cancelled")

// ErrClosed is returned by a Slot after Close.
var ErrClosed = errors.New("fetch slot closed")

// NetworkError is a connectivity or transport failure.
type NetworkError struct {
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error: %v", e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// ServerError is a non-2xx response or a payload that could not be decoded.
type ServerError struct {
	StatusCode int    // 0 when the response was 2xx but malformed
	Detail     string // server-provided detail, if any
	Err        error
}

func (e *ServerError) Error() string {
	msg := e.Detail
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.StatusCode == 0 {
		return fmt.Sprintf("server error: %s", msg)
	}
	return fmt.Sprintf("server error: %d %s", e.StatusCode, msg)
}

func (e *ServerError) Unwrap() error { return e.Err }

// IsCancelled reports whether err is an expected cancellation.
func IsCancelled(err error) bool {
	return errors.Is(err, ErrCancelled)
}

// Classify maps an arbitrary source error into the fetch taxonomy:
// ErrCancelled, *NetworkError or *ServerError.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrCancelled) {
		return ErrCancelled
	}

	var ne *NetworkError
	var se *ServerError
	if errors.As(err, &ne) || errors.As(err, &se) {
		return err
	}

	// Context errors. A deadline is a transport failure, not a supersession.
	if errors.Is(err, context.Canceled) {
		return ErrCancelled
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &NetworkError{Err: err}
	}

	var netErr net.Error
	var urlErr *url.Error
	if errors.As(err, &netErr) || errors.As(err, &urlErr) {
		return &NetworkError{Err: err}
	}

	// Connection refused, DNS errors, etc.
	msg := err.Error()
	if strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "no such host") ||
		strings.Contains(msg, "dial tcp") {
		return &NetworkError{Err: err}
	}

	return &ServerError{Err: err}
}
