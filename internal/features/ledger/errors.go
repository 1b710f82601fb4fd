package ledger

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
)

var (
	// ErrNotConnected means no OAuth session has been established yet.
	ErrNotConnected = errors.New("ledger connection not configured")
	// ErrAuthExpired means a refresh was attempted and the retry was still rejected.
	ErrAuthExpired = errors.New("ledger authorization expired, reconnect required")
)

// FaultError is one entry of the ledger's structured error body.
type FaultError struct {
	Message string `json:"Message"`
	Detail  string `json:"Detail"`
	Code    string `json:"code"`
	Element string `json:"element,omitempty"`
}

// RemoteFault is a non-success ledger response.
type RemoteFault struct {
	StatusCode int
	Type       string
	Errors     []FaultError
	Body       string
}

func (f *RemoteFault) Error() string {
	if len(f.Errors) == 0 {
		body := f.Body
		if len(body) > 300 {
			body = body[:300]
		}
		return fmt.Sprintf("ledger request failed: %d %s", f.StatusCode, body)
	}
	parts := make([]string, 0, len(f.Errors))
	for _, e := range f.Errors {
		if e.Detail != "" {
			parts = append(parts, e.Message+": "+e.Detail)
		} else {
			parts = append(parts, e.Message)
		}
	}
	return fmt.Sprintf("ledger fault (%d): %s", f.StatusCode, strings.Join(parts, "; "))
}

// IsNotFound reports whether the fault says the referenced object does not exist.
func (f *RemoteFault) IsNotFound() bool {
	if f.StatusCode == http.StatusNotFound {
		return true
	}
	for _, e := range f.Errors {
		if e.Code == "610" {
			return true
		}
		msg := strings.ToLower(e.Message + " " + e.Detail)
		if strings.Contains(msg, "object not found") || strings.Contains(msg, "not found") {
			return true
		}
	}
	return false
}

// IsTransient classifies errors worth retrying: timeouts, connection failures,
// throttling and 5xx responses. Faults, mapping problems and auth expiry are not.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrAuthExpired) || errors.Is(err, ErrNotConnected) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var fault *RemoteFault
	if errors.As(err, &fault) {
		return fault.StatusCode == http.StatusTooManyRequests || fault.StatusCode >= 500
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return false
}
