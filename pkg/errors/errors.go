package errors

import (
	stderrors "errors"
	"fmt"
)

// Kind classifies errors raised while resolving targets, walking listings,
// and downloading post content
type Kind string

const (
	KindInvalidTarget Kind = "invalid_target"
	KindPageFetch     Kind = "page_fetch"
	KindPostFetch     Kind = "post_fetch"
	KindPostGone      Kind = "post_gone"
	KindItemDownload  Kind = "item_download"
	KindLedgerIO      Kind = "ledger_io"
	KindAuth          Kind = "auth"
	KindNetwork       Kind = "network"
	KindParsing       Kind = "parsing"
	KindRateLimit     Kind = "rate_limit"
	KindServerError   Kind = "server_error"
	KindUnknown       Kind = "unknown"
)

// Error represents a classified downloader error with an optional HTTP status code
type Error struct {
	Kind    Kind
	Message string
	Code    int
	Err     error
}

func (e *Error) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("%s error (code %d): %s", e.Kind, e.Code, e.Message)
	}
	return fmt.Sprintf("%s error: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates a classified error
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Newf creates a classified error with a formatted message
func Newf(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates a classified error wrapping an underlying cause
func Wrap(kind Kind, err error, message string) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// WithCode attaches an HTTP status code to the error
func (e *Error) WithCode(code int) *Error {
	e.Code = code
	return e
}

// KindOf returns the kind of err, or KindUnknown when err carries no classification
func KindOf(err error) Kind {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// IsKind reports whether err is classified as kind
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// IsRetryable checks if an error kind should be retried
func IsRetryable(kind Kind) bool {
	switch kind {
	case KindNetwork, KindRateLimit, KindServerError:
		return true
	case KindAuth, KindPostGone, KindInvalidTarget, KindParsing, KindLedgerIO:
		return false
	default:
		return false
	}
}

// IsRetryableStatusCode checks if an HTTP status code indicates a retryable error
func IsRetryableStatusCode(statusCode int) bool {
	switch statusCode {
	case 0: // Network error
		return true
	case 429: // Too Many Requests
		return true
	case 500, 502, 503, 504: // Server errors
		return true
	case 401, 403, 404: // Client errors that won't change
		return false
	default:
		return statusCode >= 500 // Retry all 5xx errors
	}
}
