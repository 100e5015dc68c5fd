package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/wolfman30/clinic-booking/internal/booking"
	"github.com/wolfman30/clinic-booking/internal/clinicapi"
)

const (
	maxBodyBytes = 64 << 10

	upstreamFailureMessage = "Không thể kết nối hệ thống phòng khám, vui lòng thử lại"
	sessionExpiredMessage  = "Phiên đăng nhập đã hết hạn, vui lòng đăng nhập lại"
	notFoundMessage        = "Không tìm thấy lịch hẹn"
)

type errorResponse struct {
	Error    string            `json:"error"`
	Missing  []string          `json:"missing,omitempty"`
	Snapshot *booking.Snapshot `json:"snapshot,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func jsonError(w http.ResponseWriter, message string, status int) {
	writeJSON(w, status, errorResponse{Error: message})
}

// decodeJSON reads a single JSON object from the request body. An empty body
// leaves dst untouched.
func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

// upstreamError maps a clinic API failure to a status and a message the
// patient can read.
func upstreamError(err error) (int, string) {
	var apiErr *clinicapi.APIError
	switch {
	case clinicapi.IsUnauthorized(err):
		return http.StatusUnauthorized, sessionExpiredMessage
	case errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound:
		return http.StatusNotFound, clinicapi.UserMessage(err, notFoundMessage)
	default:
		return http.StatusBadGateway, clinicapi.UserMessage(err, upstreamFailureMessage)
	}
}
