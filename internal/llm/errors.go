package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
)

// ErrorKind classifies an extraction failure so callers can decide whether
// to retry, abort the whole run, or just record the failure.
type ErrorKind string

const (
	KindAuthentication ErrorKind = "authentication"
	KindConnection     ErrorKind = "connection"
	KindRateLimit      ErrorKind = "rate_limit"
	KindModelNotFound  ErrorKind = "model_not_found"
	KindAPIError       ErrorKind = "api_error"
	KindTimeout        ErrorKind = "timeout"
	KindUnknown        ErrorKind = "unknown"
)

// Fatal reports whether the kind should abort an entire batch run rather
// than just fail one document. A bad key or missing model will fail every
// document the same way.
func (k ErrorKind) Fatal() bool {
	switch k {
	case KindAuthentication, KindModelNotFound:
		return true
	}
	return false
}

// APIError is a classified LLM provider failure.
type APIError struct {
	Kind       ErrorKind
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("llm %s error (HTTP %d): %s", e.Kind, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("llm %s error: %s", e.Kind, e.Message)
}

// Classify maps an HTTP status and error message to an ErrorKind.
func Classify(statusCode int, message string) ErrorKind {
	switch statusCode {
	case 401, 403:
		return KindAuthentication
	case 404:
		return KindModelNotFound
	case 429:
		return KindRateLimit
	}
	lower := strings.ToLower(message)
	switch {
	case strings.Contains(lower, "model") && (strings.Contains(lower, "not found") || strings.Contains(lower, "does not exist")):
		return KindModelNotFound
	case strings.Contains(lower, "rate limit"):
		return KindRateLimit
	case strings.Contains(lower, "api key") || strings.Contains(lower, "unauthorized") || strings.Contains(lower, "authentication"):
		return KindAuthentication
	case statusCode >= 400:
		return KindAPIError
	}
	return KindUnknown
}

// ClassifyErr maps a transport-level error to an ErrorKind.
func ClassifyErr(err error) ErrorKind {
	if err == nil {
		return KindUnknown
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return KindTimeout
		}
		return KindConnection
	}
	lower := strings.ToLower(err.Error())
	switch {
	case strings.Contains(lower, "timeout") || strings.Contains(lower, "deadline"):
		return KindTimeout
	case strings.Contains(lower, "connection") || strings.Contains(lower, "no such host") || strings.Contains(lower, "refused"):
		return KindConnection
	}
	return KindUnknown
}
