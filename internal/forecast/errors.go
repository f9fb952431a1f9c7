package forecast

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a provider failure. It is the only input the retry policy reads.
type Kind string

const (
	// KindRateLimited means the provider explicitly rejected the call for exceeding its rate (HTTP 429).
	KindRateLimited Kind = "rate_limited"
	// KindOther covers transport, status, parse and validation failures.
	KindOther Kind = "other"
)

// Error is a classified provider failure.
type Error struct {
	Kind       Kind
	StatusCode int
	Message    string
	Cause      error
}

func (e *Error) Error() string {
	msg := e.Message
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s error (status %d): %s", e.Kind, e.StatusCode, msg)
	}
	return fmt.Sprintf("%s error: %s", e.Kind, msg)
}

func (e *Error) Unwrap() error { return e.Cause }

// NewRateLimitError creates a rate limit error.
func NewRateLimitError(statusCode int) *Error {
	return &Error{Kind: KindRateLimited, StatusCode: statusCode, Message: "rate limit exceeded"}
}

// NewOtherError creates a non-retryable error.
func NewOtherError(message string, cause error) *Error {
	return &Error{Kind: KindOther, Message: message, Cause: cause}
}

// ClassifyStatus maps a non-2xx status to an Error.
func ClassifyStatus(statusCode int, body string) *Error {
	if statusCode == http.StatusTooManyRequests {
		return NewRateLimitError(statusCode)
	}
	return &Error{Kind: KindOther, StatusCode: statusCode, Message: truncate(body, 200)}
}

// KindOf returns the classification of err. Unclassified errors are KindOther.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return KindOther
}

// IsRateLimited reports whether err is a rate-limit rejection.
func IsRateLimited(err error) bool {
	return err != nil && KindOf(err) == KindRateLimited
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
