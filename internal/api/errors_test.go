package api

import (
	"errors"
	"net/http"
	"testing"
	"time"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   ErrorKind
	}{
		{"401 is authentication", http.StatusUnauthorized, "", KindAuthentication},
		{"403 is authorization", http.StatusForbidden, "", KindAuthorization},
		{"429 is rate limit", http.StatusTooManyRequests, "", KindRateLimit},
		{"404 is validation", http.StatusNotFound, `{"detail": "no such job"}`, KindValidation},
		{"422 is validation", http.StatusUnprocessableEntity, "", KindValidation},
		{"500 is server", http.StatusInternalServerError, "", KindServer},
		{"503 is server", http.StatusServiceUnavailable, "", KindServer},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := classify(tc.status, []byte(tc.body), http.Header{})
			if err.Kind != tc.want {
				t.Errorf("expected %s, got %s", tc.want, err.Kind)
			}
			if err.Status != tc.status {
				t.Errorf("expected status %d, got %d", tc.status, err.Status)
			}
		})
	}

	t.Run("retry-after header is parsed", func(t *testing.T) {
		header := http.Header{}
		header.Set("Retry-After", "12")
		err := classify(http.StatusTooManyRequests, nil, header)
		if err.RetryAfter != 12*time.Second {
			t.Errorf("expected 12s, got %v", err.RetryAfter)
		}
	})
}

func TestExtractMessage(t *testing.T) {
	t.Run("detail field", func(t *testing.T) {
		got := extractMessage(http.StatusNotFound, []byte(`{"detail": "no such job"}`))
		if got != "no such job" {
			t.Errorf("expected detail, got %q", got)
		}
	})

	t.Run("message field", func(t *testing.T) {
		got := extractMessage(http.StatusBadRequest, []byte(`{"message": "bad url"}`))
		if got != "bad url" {
			t.Errorf("expected message, got %q", got)
		}
	})

	t.Run("falls back to status text", func(t *testing.T) {
		got := extractMessage(http.StatusBadGateway, []byte("<html>nope</html>"))
		if got != http.StatusText(http.StatusBadGateway) {
			t.Errorf("expected status text, got %q", got)
		}
	})
}

func TestErrorHelpers(t *testing.T) {
	t.Run("kind of wrapped error", func(t *testing.T) {
		inner := &Error{Kind: KindRateLimit, Status: 429, Message: "slow down"}
		wrapped := errors.Join(errors.New("outer"), inner)

		kind, ok := KindOf(wrapped)
		if !ok || kind != KindRateLimit {
			t.Errorf("expected rate limit kind, got %v %v", kind, ok)
		}
	})

	t.Run("kind of plain error", func(t *testing.T) {
		if _, ok := KindOf(errors.New("plain")); ok {
			t.Error("expected no kind for plain errors")
		}
	})

	t.Run("retryable kinds", func(t *testing.T) {
		for kind, want := range map[ErrorKind]bool{
			KindNetwork:        true,
			KindServer:         true,
			KindRateLimit:      false,
			KindAuthentication: false,
			KindValidation:     false,
		} {
			if got := IsRetryable(&Error{Kind: kind}); got != want {
				t.Errorf("%s: expected retryable=%v, got %v", kind, want, got)
			}
		}
	})

	t.Run("unwrap preserves the cause", func(t *testing.T) {
		cause := errors.New("connection reset")
		err := networkError(cause)
		if !errors.Is(err, cause) {
			t.Error("expected cause to survive wrapping")
		}
		if !IsNetwork(err) {
			t.Error("expected network kind")
		}
	})
}
