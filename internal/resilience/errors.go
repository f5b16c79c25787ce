// Package resilience classifies failures at the unit-of-work boundary.
//
// Every failure of a single fetch unit is resolved to "no result" unless the
// run itself was cancelled; there is no retry.
package resilience

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"strings"
	"syscall"
)

// Class is the outcome bucket of a unit failure.
type Class int

const (
	// ClassNone means the unit succeeded.
	ClassNone Class = iota
	// ClassTransient failures are logged and swallowed.
	ClassTransient
	// ClassFatal failures propagate out of the run.
	ClassFatal
)

// String returns the class label used in logs and metrics.
func (c Class) String() string {
	switch c {
	case ClassNone:
		return "ok"
	case ClassTransient:
		return "transient"
	case ClassFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// TransientError wraps an error that degrades a unit to "no result" (non-2xx, short body).
type TransientError struct {
	Err        error
	StatusCode int
}

func (e *TransientError) Error() string {
	return e.Err.Error()
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// NewTransientError wraps an error as transient with an optional HTTP status code.
func NewTransientError(err error, statusCode int) *TransientError {
	return &TransientError{Err: err, StatusCode: statusCode}
}

// Classify decides what a unit failure means for the run. Cancellation of the
// run scope is fatal; everything else, including expiry of a unit's own
// timeout, is transient.
func Classify(runCtx context.Context, err error) Class {
	if err == nil {
		return ClassNone
	}
	if runCtx.Err() != nil {
		return ClassFatal
	}
	return ClassTransient
}

// Kind returns a coarse label for a unit failure: status, timeout, network,
// payload or other.
func Kind(err error) string {
	if err == nil {
		return ""
	}

	var te *TransientError
	if errors.As(err, &te) && te.StatusCode != 0 {
		return "status"
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return "timeout"
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "timeout"
	}

	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) || errors.As(err, &te) {
		return "payload"
	}

	if IsNetwork(err) {
		return "network"
	}
	return "other"
}

// IsNetwork reports connection-level failures (resets, refusals, DNS).
func IsNetwork(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNABORTED) {
		return true
	}

	// String-based heuristics for wrapped errors from HTTP clients.
	msg := strings.ToLower(err.Error())
	patterns := []string{
		"connection reset by peer",
		"connection refused",
		"broken pipe",
		"temporary failure in name resolution",
		"no such host",
		"tls handshake timeout",
		"server closed idle connection",
		"transport connection broken",
	}
	for _, p := range patterns {
		if strings.Contains(msg, p) {
			return true
		}
	}

	return false
}
