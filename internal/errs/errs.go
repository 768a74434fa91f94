package errs

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// Kind classifies a failure for retry and propagation decisions.
type Kind int

const (
	KindUnknown Kind = iota
	KindConfig
	KindMissingAPIKey
	KindNetwork
	KindHTTP
	KindParse
	KindRateLimited
	KindProxyUnavailable
	KindValidation
	KindPersistence
	KindCanceled
)

func (k Kind) String() string {
	switch k {
	case KindConfig:
		return "config"
	case KindMissingAPIKey:
		return "missing_api_key"
	case KindNetwork:
		return "network"
	case KindHTTP:
		return "http"
	case KindParse:
		return "parse"
	case KindRateLimited:
		return "rate_limited"
	case KindProxyUnavailable:
		return "proxy_unavailable"
	case KindValidation:
		return "validation"
	case KindPersistence:
		return "persistence"
	case KindCanceled:
		return "canceled"
	default:
		return "unknown"
	}
}

// Error is the failure type shared by every component. Status is only set
// for KindHTTP and KindRateLimited.
type Error struct {
	Kind   Kind
	Venue  string
	Status int
	Msg    string
	Err    error
}

func (e *Error) Error() string {
	prefix := e.Kind.String()
	if e.Venue != "" {
		prefix = fmt.Sprintf("%s [%s]", prefix, e.Venue)
	}
	switch {
	case e.Status > 0 && e.Err != nil:
		return fmt.Sprintf("%s: HTTP %d: %s: %v", prefix, e.Status, e.Msg, e.Err)
	case e.Status > 0:
		return fmt.Sprintf("%s: HTTP %d: %s", prefix, e.Status, e.Msg)
	case e.Err != nil && e.Msg != "":
		return fmt.Sprintf("%s: %s: %v", prefix, e.Msg, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", prefix, e.Err)
	default:
		return fmt.Sprintf("%s: %s", prefix, e.Msg)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Retryable reports whether the HTTP engine may retry after this failure.
// 429 and 5xx are retryable; other HTTP statuses are terminal.
func (e *Error) Retryable() bool {
	switch e.Kind {
	case KindNetwork, KindRateLimited:
		return true
	case KindHTTP:
		return e.Status == 429 || e.Status >= 500
	default:
		return false
	}
}

// New builds an Error without a cause.
func New(kind Kind, venue, msg string) *Error {
	return &Error{Kind: kind, Venue: venue, Msg: msg}
}

// Wrap builds an Error around a cause.
func Wrap(kind Kind, venue string, err error) *Error {
	return &Error{Kind: kind, Venue: venue, Err: err}
}

// HTTPStatus builds an HTTP failure for a status code.
func HTTPStatus(venue string, status int, msg string) *Error {
	kind := KindHTTP
	if status == 429 {
		kind = KindRateLimited
	}
	return &Error{Kind: kind, Venue: venue, Status: status, Msg: msg}
}

// MissingAPIKey reports an absent required credential for a venue.
func MissingAPIKey(venue string) *Error {
	return &Error{Kind: KindMissingAPIKey, Venue: venue, Msg: "required API key is not set"}
}

// KindOf extracts the Kind from an error chain. Context cancellations and
// raw net errors are classified even when they were never wrapped.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return KindCanceled
	}
	var nerr net.Error
	if errors.As(err, &nerr) {
		return KindNetwork
	}
	return KindUnknown
}

// IsRetryable reports whether the error chain allows another attempt.
func IsRetryable(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Retryable()
	}
	var nerr net.Error
	if errors.As(err, &nerr) {
		return true
	}
	return false
}
