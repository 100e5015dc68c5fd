package clinicapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/wolfman30/clinic-booking/internal/calendar"
	"github.com/wolfman30/clinic-booking/internal/observability/metrics"
	"github.com/wolfman30/clinic-booking/pkg/logging"
)

const (
	defaultTimeout   = 15 * time.Second
	maxLoggedBodyLen = 300
)

var tracer = otel.Tracer("clinic.internal.clinicapi")

// Client wraps the REST endpoints consumed by the booking workflow.
type Client struct {
	baseURL     string
	httpClient  *http.Client
	credentials CredentialProvider
	logger      *logging.Logger
	metrics     *metrics.BookingMetrics
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithTimeout sets the per-request timeout of the default HTTP client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.httpClient = &http.Client{Timeout: d}
		}
	}
}

// WithCredentials sets the bearer token capability used for patient-scoped calls.
func WithCredentials(p CredentialProvider) Option {
	return func(c *Client) { c.credentials = p }
}

// WithMetrics records request counts and latency.
func WithMetrics(m *metrics.BookingMetrics) Option {
	return func(c *Client) { c.metrics = m }
}

// NewClient constructs a clinic API client.
func NewClient(baseURL string, logger *logging.Logger, opts ...Option) (*Client, error) {
	baseURL = strings.TrimSpace(baseURL)
	if baseURL == "" {
		return nil, fmt.Errorf("clinicapi: base URL is required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: defaultTimeout},
		logger:     logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// WithCredentials returns a client sharing c's transport but bound to p.
func (c *Client) WithCredentials(p CredentialProvider) *Client {
	clone := *c
	clone.credentials = p
	return &clone
}

// ListSpecialties returns every specialty.
func (c *Client) ListSpecialties(ctx context.Context) ([]Specialty, error) {
	var out []Specialty
	if err := c.getList(ctx, "list_specialties", "/booking/specialties", false, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ListDoctors returns doctors of one specialty, or all doctors when specialtyID is 0.
func (c *Client) ListDoctors(ctx context.Context, specialtyID int) ([]Doctor, error) {
	path := "/booking/doctors"
	if specialtyID > 0 {
		path = fmt.Sprintf("/booking/doctors/%d", specialtyID)
	}
	var out []Doctor
	if err := c.getList(ctx, "list_doctors", path, false, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ListServices returns the flat service list.
func (c *Client) ListServices(ctx context.Context) ([]Service, error) {
	var out []Service
	if err := c.getList(ctx, "list_services", "/booking/services", false, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ListWorkShifts returns the doctor's registered work shifts across dates.
func (c *Client) ListWorkShifts(ctx context.Context, doctorID int) ([]WorkShift, error) {
	var out []WorkShift
	path := fmt.Sprintf("/schedule/workshift/%d", doctorID)
	if err := c.getList(ctx, "list_workshifts", path, true, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ListAvailableSlots returns the bookable "HH:MM" slots computed by the API.
func (c *Client) ListAvailableSlots(ctx context.Context, doctorID int, date calendar.Date) ([]calendar.TimeOfDay, error) {
	var out []calendar.TimeOfDay
	path := fmt.Sprintf("/booking/slots/%d/%s", doctorID, date.String())
	if err := c.getList(ctx, "list_slots", path, false, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// CreateAppointment books a slot and returns the new appointment id.
func (c *Client) CreateAppointment(ctx context.Context, req CreateAppointmentRequest) (int, error) {
	var raw json.RawMessage
	if err := c.doJSON(ctx, "create_appointment", http.MethodPost, "/booking/appointments", true, req, &raw); err != nil {
		return 0, err
	}
	id, err := parseAppointmentID(raw)
	if err != nil {
		return 0, fmt.Errorf("create appointment: %w", err)
	}
	return id, nil
}

// GetAppointment fetches one appointment.
func (c *Client) GetAppointment(ctx context.Context, appointmentID int) (*Appointment, error) {
	var out Appointment
	path := fmt.Sprintf("/appointments/%d", appointmentID)
	if err := c.doJSON(ctx, "get_appointment", http.MethodGet, path, true, nil, &out); err != nil {
		return nil, err
	}
	if out.AppointmentID == 0 {
		out.AppointmentID = appointmentID
	}
	return &out, nil
}

// RescheduleAppointment moves an existing appointment.
func (c *Client) RescheduleAppointment(ctx context.Context, appointmentID int, req RescheduleRequest) error {
	path := fmt.Sprintf("/appointments/%d/reschedule", appointmentID)
	return c.doJSON(ctx, "reschedule_appointment", http.MethodPut, path, true, req, nil)
}

// CancelAppointment cancels an existing appointment.
func (c *Client) CancelAppointment(ctx context.Context, appointmentID int, reason string) error {
	path := fmt.Sprintf("/appointments/%d/cancel", appointmentID)
	return c.doJSON(ctx, "cancel_appointment", http.MethodPut, path, true, cancelRequest{Reason: reason}, nil)
}

// getList decodes a bare JSON array or one wrapped as {"data": [...]} / {"items": [...]}.
func (c *Client) getList(ctx context.Context, operation, path string, auth bool, out interface{}) error {
	var raw json.RawMessage
	if err := c.doJSON(ctx, operation, http.MethodGet, path, auth, nil, &raw); err != nil {
		return err
	}
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil
	}
	if trimmed[0] == '{' {
		var wrapped struct {
			Data  json.RawMessage `json:"data"`
			Items json.RawMessage `json:"items"`
		}
		if err := json.Unmarshal(trimmed, &wrapped); err != nil {
			return fmt.Errorf("clinicapi: %s: decode response: %w", operation, err)
		}
		switch {
		case len(wrapped.Data) > 0:
			trimmed = wrapped.Data
		case len(wrapped.Items) > 0:
			trimmed = wrapped.Items
		default:
			return nil
		}
	}
	if err := json.Unmarshal(trimmed, out); err != nil {
		return fmt.Errorf("clinicapi: %s: decode response: %w", operation, err)
	}
	return nil
}

func (c *Client) doJSON(ctx context.Context, operation, method, path string, auth bool, body interface{}, out interface{}) (err error) {
	ctx, span := tracer.Start(ctx, "clinicapi."+operation, trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()
	span.SetAttributes(
		attribute.String("http.method", method),
		attribute.String("clinic.api.path", path),
	)

	start := time.Now()
	status := 0
	defer func() {
		c.metrics.ObserveAPIRequest(operation, status, time.Since(start).Seconds())
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
	}()

	var bodyReader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("clinicapi: %s: marshal request: %w", operation, err)
		}
		bodyReader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("clinicapi: %s: build request: %w", operation, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if auth {
		if c.credentials == nil {
			return fmt.Errorf("clinicapi: %s: %w", operation, ErrNoCredentials)
		}
		token, err := c.credentials.BearerToken(ctx)
		if err != nil {
			return fmt.Errorf("clinicapi: %s: %w", operation, err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("clinicapi: %s: http request: %w", operation, err)
	}
	defer resp.Body.Close()
	status = resp.StatusCode
	span.SetAttributes(attribute.Int("http.status_code", status))

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("clinicapi: %s: read response: %w", operation, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := truncateBody(respBody, maxLoggedBodyLen)
		c.logger.Warn("clinic API non-2xx response", "operation", operation, "status", resp.StatusCode, "path", path, "body", msg)
		return &APIError{
			Operation:  operation,
			StatusCode: resp.StatusCode,
			Message:    parseErrorMessage(respBody),
			Body:       msg,
		}
	}

	if len(respBody) == 0 || out == nil {
		return nil
	}
	if raw, ok := out.(*json.RawMessage); ok {
		*raw = append((*raw)[:0], respBody...)
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("clinicapi: %s: decode response: %w", operation, err)
	}
	return nil
}

// truncateBody cuts body to at most limit bytes without splitting a UTF-8 sequence.
func truncateBody(body []byte, limit int) string {
	if len(body) <= limit {
		return string(body)
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(body[cut]) {
		cut--
	}
	return string(body[:cut])
}

// parseAppointmentID normalises the create response: an object carrying
// appointmentId (any casing) or id, a bare number, or a bare numeric string.
func parseAppointmentID(raw json.RawMessage) (int, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return 0, ErrMissingAppointmentID
	}
	switch trimmed[0] {
	case '{':
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(trimmed, &obj); err != nil {
			return 0, fmt.Errorf("decode appointment id: %w", err)
		}
		for _, want := range []string{"appointmentid", "id"} {
			for key, value := range obj {
				if strings.ToLower(key) == want {
					return parseAppointmentID(value)
				}
			}
		}
		if nested, ok := obj["data"]; ok {
			return parseAppointmentID(nested)
		}
		return 0, ErrMissingAppointmentID
	case '"':
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return 0, fmt.Errorf("decode appointment id: %w", err)
		}
		id, err := strconv.Atoi(strings.TrimSpace(s))
		if err != nil || id <= 0 {
			return 0, ErrMissingAppointmentID
		}
		return id, nil
	default:
		var n json.Number
		if err := json.Unmarshal(trimmed, &n); err != nil {
			return 0, ErrMissingAppointmentID
		}
		id, err := strconv.Atoi(n.String())
		if err != nil || id <= 0 {
			return 0, ErrMissingAppointmentID
		}
		return id, nil
	}
}
