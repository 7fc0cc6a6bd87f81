package inim

import (
	"errors"
	"fmt"
)

// Kind classifies a cloud error for retry and surfacing decisions.
type Kind int

const (
	// KindNetwork covers transport failures: DNS, TLS, timeouts, resets.
	KindNetwork Kind = iota
	// KindServer covers 5xx responses and non-auth envelope errors.
	KindServer
	// KindRateLimit covers 429 responses.
	KindRateLimit
	// KindAuth covers rejected tokens (HTTP 401 or envelope status 18/19/20).
	// Recoverable via refresh.
	KindAuth
	// KindInvalidCredentials is a terminal login failure. Never retried.
	KindInvalidCredentials
	// KindPrecondition marks a locally detected configuration problem, e.g. a
	// missing user code. No network call was made.
	KindPrecondition
	// KindValidation marks an unknown target id or malformed request.
	KindValidation
)

func (k Kind) String() string {
	switch k {
	case KindNetwork:
		return "network"
	case KindServer:
		return "server"
	case KindRateLimit:
		return "rate_limit"
	case KindAuth:
		return "auth"
	case KindInvalidCredentials:
		return "invalid_credentials"
	case KindPrecondition:
		return "precondition"
	case KindValidation:
		return "validation"
	default:
		return fmt.Sprintf("unknown(%d)", k)
	}
}

// Error is the error type returned by all cloud operations.
type Error struct {
	Kind Kind
	// Status is the cloud envelope status code, 0 when the failure happened
	// below the envelope (transport or HTTP level).
	Status int
	Msg    string
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("inim: %s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	if e.Status != 0 {
		return fmt.Sprintf("inim: %s: %s (status %d)", e.Kind, e.Msg, e.Status)
	}
	return fmt.Sprintf("inim: %s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(kind Kind, status int, msg string) *Error {
	return &Error{Kind: kind, Status: status, Msg: msg}
}

func wrapError(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, Msg: msg, Err: err}
}

// Classify returns the Kind of err. Errors not produced by this package
// classify as network failures, the only way a call can fail outside it.
func Classify(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindNetwork
}

// IsAuth reports whether err is a recoverable token rejection.
func IsAuth(err error) bool {
	return Classify(err) == KindAuth
}

// IsRetryable reports whether err is worth another attempt after a delay.
func IsRetryable(err error) bool {
	switch Classify(err) {
	case KindNetwork, KindServer, KindRateLimit:
		return true
	default:
		return false
	}
}
