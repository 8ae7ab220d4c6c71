package apperror

import (
	"errors"
)

// Kind classifies a handler failure for the poller's delete-or-retain decision.
type Kind int

const (
	// KindFatal is the zero value: unclassified errors are retained and reported.
	KindFatal Kind = iota
	KindIgnorable
	KindTransport
)

func (k Kind) String() string {
	switch k {
	case KindIgnorable:
		return "ignorable"
	case KindTransport:
		return "transport"
	default:
		return "fatal"
	}
}

type Error struct {
	Code     string
	Message  string
	Kind     Kind
	Internal error
}

func (e *Error) Error() string {
	if e.Internal != nil {
		return e.Message + ": " + e.Internal.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Internal
}

var (
	ErrRowNotFound = &Error{
		Code:    "row_not_found",
		Message: "no row matches the notification",
		Kind:    KindIgnorable,
	}

	ErrTestModeData = &Error{
		Code:    "test_mode_data",
		Message: "test-mode data received by a production profile",
		Kind:    KindIgnorable,
	}

	ErrMalformedBody = &Error{
		Code:    "malformed_body",
		Message: "message body could not be decoded",
		Kind:    KindFatal,
	}

	ErrBadSignature = &Error{
		Code:    "bad_signature",
		Message: "webhook signature verification failed",
		Kind:    KindFatal,
	}

	ErrJobFailed = &Error{
		Code:    "job_failed",
		Message: "external job did not succeed",
		Kind:    KindFatal,
	}

	ErrJobInFlight = &Error{
		Code:    "job_in_flight",
		Message: "another attempt is starting the same job",
		Kind:    KindTransport,
	}

	ErrTransport = &Error{
		Code:    "transport",
		Message: "collaborator call failed",
		Kind:    KindTransport,
	}
)

func New(code, message string, kind Kind) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Kind:    kind,
	}
}

func Wrap(err error, appErr *Error) *Error {
	return &Error{
		Code:     appErr.Code,
		Message:  appErr.Message,
		Kind:     appErr.Kind,
		Internal: err,
	}
}

// Ignorable marks err as tolerable: swallowed outside production, retained in production.
func Ignorable(err error) *Error {
	return &Error{
		Code:     "ignorable",
		Message:  "ignorable failure",
		Kind:     KindIgnorable,
		Internal: err,
	}
}

func Fatal(err error) *Error {
	return &Error{
		Code:     "fatal",
		Message:  "fatal failure",
		Kind:     KindFatal,
		Internal: err,
	}
}

func Transport(err error) *Error {
	return Wrap(err, ErrTransport)
}

func Is(err error, target *Error) bool {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Code == target.Code
	}
	return false
}

// KindOf returns the kind of the outermost *Error in err's chain, KindFatal otherwise.
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindFatal
}

func IsIgnorable(err error) bool {
	return err != nil && KindOf(err) == KindIgnorable
}

func Code(err error) string {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return "internal_error"
}
