// Package failure is the structured error taxonomy used by every layer of
// multiauth.
//
// A failure carries a [Code] set where the failure is detected. Its [Kind]
// is derived from the code and decides how the orchestrator reacts: blocking
// failures always force sign-out, transient failures preserve cached state.
// Nothing in this package inspects error message text.
package failure

import (
	"context"
	"errors"
	"net"
)

// Kind groups codes by the reaction they require.
type Kind uint8

const (
	// KindUnknown is a generic failure with no special handling.
	KindUnknown Kind = iota
	// KindBlocking always forces sign-out and is never retried.
	KindBlocking
	// KindTransient preserves cached state and never forces sign-out.
	KindTransient
	// KindNotFound is a hard failure caused by missing data.
	KindNotFound
	// KindMismatch is a session owner mismatch.
	KindMismatch
)

func (k Kind) String() string {
	switch k {
	case KindBlocking:
		return "blocking"
	case KindTransient:
		return "transient"
	case KindNotFound:
		return "not_found"
	case KindMismatch:
		return "mismatch"
	default:
		return "unknown"
	}
}

// Code identifies a concrete failure.
type Code string

const (
	CodeUserDisabled     Code = "USER_DISABLED"
	CodeTenantInactive   Code = "TENANT_INACTIVE"
	CodeNoRole           Code = "NO_ROLE"
	CodeProfileMissing   Code = "PROFILE_MISSING"
	CodeTransientTimeout Code = "TRANSIENT_TIMEOUT"
	CodeTransientNetwork Code = "TRANSIENT_NETWORK"
	CodeSessionMismatch  Code = "SESSION_MISMATCH"
	CodeResolution       Code = "RESOLUTION"
)

// Kind returns the reaction class of c.
func (c Code) Kind() Kind {
	switch c {
	case CodeUserDisabled, CodeTenantInactive:
		return KindBlocking
	case CodeTransientTimeout, CodeTransientNetwork:
		return KindTransient
	case CodeNoRole, CodeProfileMissing:
		return KindNotFound
	case CodeSessionMismatch:
		return KindMismatch
	default:
		return KindUnknown
	}
}

// Error is a classified failure.
type Error struct {
	Code Code
	Op   string
	Err  error
}

// New returns a failure for code raised by op, optionally wrapping err.
func New(code Code, op string, err error) *Error {
	return &Error{Code: code, Op: op, Err: err}
}

// Kind returns the reaction class of the failure.
func (e *Error) Kind() Kind {
	if e == nil {
		return KindUnknown
	}
	return e.Code.Kind()
}

func (e *Error) Error() string {
	msg := string(e.Code)
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error carrying the same code, so package-level sentinels
// built with [New] work with errors.Is.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code && t.Op == "" && t.Err == nil
}

// As returns the first *Error in err's chain.
func As(err error) (*Error, bool) {
	var fe *Error
	if errors.As(err, &fe) {
		return fe, true
	}
	return nil, false
}

// KindOf returns the kind of err, or KindUnknown for unclassified errors.
func KindOf(err error) Kind {
	if fe, ok := As(err); ok {
		return fe.Kind()
	}
	return KindUnknown
}

// CodeOf returns the code of err, or "" for unclassified errors.
func CodeOf(err error) Code {
	if fe, ok := As(err); ok {
		return fe.Code
	}
	return ""
}

// IsBlocking reports whether err must force sign-out.
func IsBlocking(err error) bool { return KindOf(err) == KindBlocking }

// IsTransient reports whether err must preserve cached state.
func IsTransient(err error) bool { return KindOf(err) == KindTransient }

// Classify turns a raw backend error into a failure using the error's type,
// never its text. Already classified errors pass through unchanged.
// transientSentinels are package errors that the caller knows to be
// network-class (for example a driver's "unavailable" sentinel).
func Classify(op string, err error, transientSentinels ...error) error {
	if err == nil {
		return nil
	}
	if _, ok := As(err); ok {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return New(CodeTransientTimeout, op, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return New(CodeTransientTimeout, op, err)
		}
		return New(CodeTransientNetwork, op, err)
	}
	for _, s := range transientSentinels {
		if s != nil && errors.Is(err, s) {
			return New(CodeTransientNetwork, op, err)
		}
	}
	return New(CodeResolution, op, err)
}
