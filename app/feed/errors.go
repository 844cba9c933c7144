package feed

import (
	"context"
	"errors"
	"fmt"
)

type TransportError struct {
	URL string
	Err error
}

func (e *TransportError) Error() string {
	return e.Err.Error()
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

type UpstreamStatusError struct {
	URL        string
	StatusCode int
}

func (e *UpstreamStatusError) Error() string {
	return fmt.Sprintf("bad status code %d", e.StatusCode)
}

// ParseError is terminal for a stream: no further events follow it.
type ParseError struct {
	Reason string
	Err    error
}

func (e *ParseError) Error() string {
	if e.Err == nil {
		return e.Reason
	}
	if e.Reason == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s: %v", e.Reason, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

func IsTransport(err error) bool {
	var transportErr *TransportError
	return errors.As(err, &transportErr)
}

func IsUpstreamStatus(err error) bool {
	var statusErr *UpstreamStatusError
	return errors.As(err, &statusErr)
}

func IsParse(err error) bool {
	var parseErr *ParseError
	return errors.As(err, &parseErr)
}

// ErrorKind names the failure class of err for logging.
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case IsTransport(err):
		return "transport"
	case IsUpstreamStatus(err):
		return "upstream_status"
	case IsParse(err):
		return "parse"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "internal"
	}
}
