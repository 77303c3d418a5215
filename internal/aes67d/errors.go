package aes67d

import (
	"errors"
	"fmt"
)

var (
	// Sentinel errors for errors.Is checks at the boundary.
	ErrUnavailable = errors.New("daemon: host unreachable or transport failure")
	ErrStatus      = errors.New("daemon: unexpected HTTP status")
	ErrBadResponse = errors.New("daemon: invalid response format")
)

// DaemonError wraps the sentinel errors with request context. The IS-05
// activation path surfaces Status and Body to the controller.
type DaemonError struct {
	Sentinel  error
	Operation string
	Status    int
	Body      string
	Err       error // nested lower-level error (e.g. net.Error)
}

func (e *DaemonError) Error() string {
	msg := fmt.Sprintf("aes67d: %s: %v", e.Operation, e.Sentinel)
	if e.Status > 0 {
		msg = fmt.Sprintf("%s (HTTP %d)", msg, e.Status)
	}
	if e.Body != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Body)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *DaemonError) Unwrap() error {
	return e.Sentinel
}
