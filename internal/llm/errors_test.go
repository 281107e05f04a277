package llm

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name       string
		statusCode int
		message    string
		want       ErrorKind
	}{
		{"401 is authentication", 401, "", KindAuthentication},
		{"403 is authentication", 403, "", KindAuthentication},
		{"404 is model not found", 404, "", KindModelNotFound},
		{"429 is rate limit", 429, "", KindRateLimit},
		{"model not found in message", 400, "The model gpt-9 does not exist", KindModelNotFound},
		{"rate limit in message", 400, "Rate limit exceeded, retry later", KindRateLimit},
		{"api key in message", 400, "Invalid API key provided", KindAuthentication},
		{"generic 4xx", 400, "bad request", KindAPIError},
		{"generic 5xx", 500, "internal error", KindAPIError},
		{"no status no hint", 0, "something odd", KindUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.statusCode, tt.message); got != tt.want {
				t.Errorf("Classify(%d, %q) = %v, want %v", tt.statusCode, tt.message, got, tt.want)
			}
		})
	}
}

func TestClassifyErr(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorKind
	}{
		{"nil", nil, KindUnknown},
		{"deadline exceeded", context.DeadlineExceeded, KindTimeout},
		{"wrapped deadline", fmt.Errorf("request failed: %w", context.DeadlineExceeded), KindTimeout},
		{"timeout in message", errors.New("i/o timeout while reading"), KindTimeout},
		{"connection refused", errors.New("dial tcp: connection refused"), KindConnection},
		{"unknown host", errors.New("lookup api.example.com: no such host"), KindConnection},
		{"anything else", errors.New("boom"), KindUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ClassifyErr(tt.err); got != tt.want {
				t.Errorf("ClassifyErr(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestErrorKindFatal(t *testing.T) {
	fatal := []ErrorKind{KindAuthentication, KindModelNotFound}
	for _, k := range fatal {
		if !k.Fatal() {
			t.Errorf("%v should be fatal", k)
		}
	}

	nonFatal := []ErrorKind{KindConnection, KindRateLimit, KindAPIError, KindTimeout, KindUnknown}
	for _, k := range nonFatal {
		if k.Fatal() {
			t.Errorf("%v should not be fatal", k)
		}
	}
}

func TestAPIErrorMessage(t *testing.T) {
	withStatus := &APIError{Kind: KindRateLimit, StatusCode: 429, Message: "slow down"}
	if withStatus.Error() != "llm rate_limit error (HTTP 429): slow down" {
		t.Errorf("unexpected message: %s", withStatus.Error())
	}

	withoutStatus := &APIError{Kind: KindTimeout, Message: "deadline"}
	if withoutStatus.Error() != "llm timeout error: deadline" {
		t.Errorf("unexpected message: %s", withoutStatus.Error())
	}
}
