// Package appointments reads appointments and cancels them, refusing to cancel
// anything already completed or cancelled.
package appointments

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"unicode/utf8"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/wolfman30/clinic-booking/internal/clinicapi"
	"github.com/wolfman30/clinic-booking/internal/journal"
	"github.com/wolfman30/clinic-booking/internal/observability/metrics"
	"github.com/wolfman30/clinic-booking/pkg/logging"
)

var tracer = otel.Tracer("clinic.internal.appointments")

var (
	// ErrNotCancellable is returned for completed or cancelled appointments.
	ErrNotCancellable = errors.New("appointments: appointment can no longer be cancelled")
	// ErrCancelInFlight is returned while another cancel of the same appointment runs.
	ErrCancelInFlight = errors.New("appointments: cancellation already in progress")
	// ErrInvalidAppointment is returned for a non-positive id.
	ErrInvalidAppointment = errors.New("appointments: invalid appointment id")
	// ErrReasonTooLong is returned for a cancellation reason over the limit.
	ErrReasonTooLong = errors.New("appointments: reason is too long")
)

const maxReasonLength = 500

// API is the subset of the clinic client used here.
type API interface {
	GetAppointment(ctx context.Context, appointmentID int) (*clinicapi.Appointment, error)
	CancelAppointment(ctx context.Context, appointmentID int, reason string) error
}

// Service exposes appointment reads and cancellation.
type Service struct {
	api      API
	logger   *logging.Logger
	metrics  *metrics.BookingMetrics
	recorder journal.Recorder
	inFlight *inFlight
}

type inFlight struct {
	mu  sync.Mutex
	ids map[int]struct{}
}

type Option func(*Service)

// WithRecorder journals every cancel attempt.
func WithRecorder(rec journal.Recorder) Option {
	return func(s *Service) { s.recorder = rec }
}

func NewService(api API, logger *logging.Logger, m *metrics.BookingMetrics, opts ...Option) *Service {
	if logger == nil {
		logger = logging.Default()
	}
	s := &Service{api: api, logger: logger, metrics: m, inFlight: &inFlight{ids: make(map[int]struct{})}}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// WithAPI returns a service calling api that shares s's cancel guard, so
// concurrent cancels are refused across per-patient clients.
func (s *Service) WithAPI(api API) *Service {
	clone := *s
	clone.api = api
	return &clone
}

// Get fetches one appointment.
func (s *Service) Get(ctx context.Context, appointmentID int) (*clinicapi.Appointment, error) {
	if appointmentID <= 0 {
		return nil, ErrInvalidAppointment
	}
	return s.api.GetAppointment(ctx, appointmentID)
}

// Cancel re-reads the appointment, refuses terminal statuses, and issues exactly
// one cancel call. Concurrent cancels of the same appointment fail fast.
func (s *Service) Cancel(ctx context.Context, appointmentID int, reason string) (*clinicapi.Appointment, error) {
	if appointmentID <= 0 {
		return nil, ErrInvalidAppointment
	}
	reason = strings.TrimSpace(reason)
	if utf8.RuneCountInString(reason) > maxReasonLength {
		return nil, ErrReasonTooLong
	}
	if !s.acquire(appointmentID) {
		return nil, ErrCancelInFlight
	}
	defer s.release(appointmentID)

	ctx, span := tracer.Start(ctx, "appointments.cancel")
	defer span.End()
	span.SetAttributes(attribute.Int("appointment.id", appointmentID))

	appt, err := s.api.GetAppointment(ctx, appointmentID)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("appointments: load %d: %w", appointmentID, err)
	}
	if !cancellable(appt.Status) {
		return appt, fmt.Errorf("%w: status %s", ErrNotCancellable, appt.Status)
	}

	err = s.api.CancelAppointment(ctx, appointmentID, reason)
	s.metrics.ObserveSubmission("cancel", err == nil)
	entry := journal.Entry{
		Kind:          "cancel",
		AppointmentID: appointmentID,
		DoctorID:      appt.DoctorID,
		SlotDate:      appt.Date,
		SlotTime:      appt.Time,
		Succeeded:     err == nil,
	}
	if err != nil {
		entry.FailureReason = err.Error()
	}
	journal.RecordBestEffort(ctx, s.recorder, s.logger, entry)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.logger.Warn("appointment cancel failed", "appointment_id", appointmentID, "error", err)
		return appt, err
	}
	s.logger.Info("appointment cancelled", "appointment_id", appointmentID, "doctor_id", appt.DoctorID)
	appt.Status = clinicapi.StatusCancelled
	return appt, nil
}

func (s *Service) acquire(id int) bool {
	s.inFlight.mu.Lock()
	defer s.inFlight.mu.Unlock()
	if _, busy := s.inFlight.ids[id]; busy {
		return false
	}
	s.inFlight.ids[id] = struct{}{}
	return true
}

func (s *Service) release(id int) {
	s.inFlight.mu.Lock()
	defer s.inFlight.mu.Unlock()
	delete(s.inFlight.ids, id)
}

func cancellable(status clinicapi.AppointmentStatus) bool {
	switch status {
	case clinicapi.StatusPending, clinicapi.StatusScheduled, clinicapi.StatusConfirmed:
		return true
	case clinicapi.StatusCompleted, clinicapi.StatusCancelled:
		return false
	default:
		return false
	}
}
