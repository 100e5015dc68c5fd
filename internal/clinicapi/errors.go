package clinicapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

var (
	// ErrNoCredentials is returned for bearer-protected calls made without a token.
	ErrNoCredentials = errors.New("clinicapi: no credentials")
	// ErrCredentialsExpired is returned when the bearer token is past its exp claim.
	ErrCredentialsExpired = errors.New("clinicapi: credentials expired")
	// ErrMissingAppointmentID is returned when a create response carries no usable id.
	ErrMissingAppointmentID = errors.New("clinicapi: response has no appointment id")
)

// APIError is a non-2xx response from the clinic API.
type APIError struct {
	Operation  string
	StatusCode int
	// Message is the server-provided human readable reason, empty when the body
	// was not a JSON object carrying one.
	Message string
	Body    string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("clinicapi: %s returned %d: %s", e.Operation, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("clinicapi: %s returned %d", e.Operation, e.StatusCode)
}

// IsUnauthorized reports authentication failures: missing/expired credentials or 401/403.
func IsUnauthorized(err error) bool {
	if errors.Is(err, ErrNoCredentials) || errors.Is(err, ErrCredentialsExpired) {
		return true
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == http.StatusUnauthorized || apiErr.StatusCode == http.StatusForbidden
	}
	return false
}

// IsConflict reports a 409 from the API, e.g. a slot taken by another patient.
func IsConflict(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusConflict
}

// UserMessage returns the server-provided reason carried by err, or fallback.
func UserMessage(err error, fallback string) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) && strings.TrimSpace(apiErr.Message) != "" {
		return apiErr.Message
	}
	return fallback
}

// parseErrorMessage extracts a message from a JSON error payload. Plain-text and
// malformed bodies yield "".
func parseErrorMessage(body []byte) string {
	var payload map[string]json.RawMessage
	if err := json.Unmarshal(body, &payload); err != nil {
		return ""
	}
	for _, key := range []string{"message", "Message", "error", "title", "detail"} {
		raw, ok := payload[key]
		if !ok {
			continue
		}
		var s string
		if err := json.Unmarshal(raw, &s); err == nil && strings.TrimSpace(s) != "" {
			return strings.TrimSpace(s)
		}
	}
	return ""
}
