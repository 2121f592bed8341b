package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"
)

// ErrorKind classifies request failures so callers can apply different
// retry and presentation policies per kind.
type ErrorKind int

const (
	// KindAuthentication is a 401 that survived refresh-and-retry. Terminal
	// for the session: credentials are cleared before it is returned.
	KindAuthentication ErrorKind = iota
	// KindAuthorization is a 403. Never retried.
	KindAuthorization
	// KindRateLimit is a 429, carrying a backoff hint when the server sent one.
	KindRateLimit
	// KindValidation covers the remaining 4xx responses.
	KindValidation
	// KindServer covers 5xx responses, eligible for caller-level retry.
	KindServer
	// KindNetwork means no response was received at all.
	KindNetwork
)

func (k ErrorKind) String() string {
	switch k {
	case KindAuthentication:
		return "authentication"
	case KindAuthorization:
		return "authorization"
	case KindRateLimit:
		return "rate_limit"
	case KindValidation:
		return "validation"
	case KindServer:
		return "server"
	case KindNetwork:
		return "network"
	default:
		return "unknown"
	}
}

// Error is the typed failure returned by the request pipeline.
// Status is zero for network-level failures.
type Error struct {
	Kind       ErrorKind
	Status     int
	Message    string
	RetryAfter time.Duration
	cause      error
}

func (e *Error) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("%s error: %s", e.Kind, e.Message)
	}
	return fmt.Sprintf("%s error (status %d): %s", e.Kind, e.Status, e.Message)
}

func (e *Error) Unwrap() error {
	return e.cause
}

// KindOf extracts the error kind from err's chain.
func KindOf(err error) (ErrorKind, bool) {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Kind, true
	}
	return 0, false
}

// IsAuthentication reports whether err is a terminal authentication failure.
func IsAuthentication(err error) bool {
	kind, ok := KindOf(err)
	return ok && kind == KindAuthentication
}

// IsNetwork reports whether err is a transport-level failure with no response.
func IsNetwork(err error) bool {
	kind, ok := KindOf(err)
	return ok && kind == KindNetwork
}

// IsRetryable reports whether the caller may reasonably retry the request.
// Server and network failures qualify; 4xx responses never do (401 handling
// already happened inside the pipeline).
func IsRetryable(err error) bool {
	kind, ok := KindOf(err)
	return ok && (kind == KindServer || kind == KindNetwork)
}

func networkError(err error) *Error {
	return &Error{Kind: KindNetwork, Message: err.Error(), cause: err}
}

// classify builds a typed error from a non-2xx HTTP response.
func classify(status int, body []byte, header http.Header) *Error {
	e := &Error{Status: status, Message: extractMessage(status, body)}

	switch {
	case status == http.StatusUnauthorized:
		e.Kind = KindAuthentication
	case status == http.StatusForbidden:
		e.Kind = KindAuthorization
	case status == http.StatusTooManyRequests:
		e.Kind = KindRateLimit
		if retry := header.Get("Retry-After"); retry != "" {
			if secs, err := strconv.Atoi(retry); err == nil {
				e.RetryAfter = time.Duration(secs) * time.Second
			}
		}
	case status >= 400 && status < 500:
		e.Kind = KindValidation
	default:
		e.Kind = KindServer
	}

	return e
}

// extractMessage pulls a human-readable message from the response body.
// The server reports errors as {"detail": "..."}; anything else falls back
// to the transport status text.
func extractMessage(status int, body []byte) string {
	var payload struct {
		Detail  string `json:"detail"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		if payload.Detail != "" {
			return payload.Detail
		}
		if payload.Message != "" {
			return payload.Message
		}
	}
	return http.StatusText(status)
}
