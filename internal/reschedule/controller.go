// Package reschedule opens a booking wizard pre-filled from an existing
// appointment and submits the move with PUT /appointments/{id}/reschedule.
package reschedule

import (
	"context"
	"errors"
	"fmt"

	"github.com/wolfman30/clinic-booking/internal/booking"
	"github.com/wolfman30/clinic-booking/internal/clinicapi"
	"github.com/wolfman30/clinic-booking/internal/journal"
	"github.com/wolfman30/clinic-booking/internal/observability/metrics"
	"github.com/wolfman30/clinic-booking/pkg/logging"
)

var (
	// ErrNotReschedulable is returned for completed or cancelled appointments.
	ErrNotReschedulable = errors.New("reschedule: appointment can no longer be rescheduled")
	// ErrInvalidAppointment is returned for a non-positive appointment id.
	ErrInvalidAppointment = errors.New("reschedule: invalid appointment id")
)

// API is the subset of the clinic client used for rescheduling.
type API interface {
	GetAppointment(ctx context.Context, appointmentID int) (*clinicapi.Appointment, error)
	RescheduleAppointment(ctx context.Context, appointmentID int, req clinicapi.RescheduleRequest) error
}

// Catalog adds the doctor lookup used to derive the appointment's specialty.
type Catalog interface {
	booking.Catalog
	FindDoctor(ctx context.Context, doctorID int) (clinicapi.Doctor, bool, error)
}

// Controller opens reschedule wizards.
type Controller struct {
	api      API
	catalog  Catalog
	resolver booking.SlotResolver
	logger   *logging.Logger
	metrics  *metrics.BookingMetrics
	recorder journal.Recorder
}

// Option configures a Controller.
type Option func(*Controller)

// WithRecorder journals every reschedule attempt.
func WithRecorder(rec journal.Recorder) Option {
	return func(c *Controller) { c.recorder = rec }
}

func NewController(api API, catalog Catalog, resolver booking.SlotResolver, logger *logging.Logger, m *metrics.BookingMetrics, opts ...Option) *Controller {
	if logger == nil {
		logger = logging.Default()
	}
	c := &Controller{api: api, catalog: catalog, resolver: resolver, logger: logger, metrics: m}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Open fetches the appointment, rejects terminal ones, and returns a wizard
// whose selection already holds the current doctor, date and time. The original
// slot stays selectable even if the availability query lists it as booked.
func (c *Controller) Open(ctx context.Context, appointmentID int, opts ...booking.Option) (*booking.Wizard, *clinicapi.Appointment, error) {
	if appointmentID <= 0 {
		return nil, nil, ErrInvalidAppointment
	}
	appt, err := c.api.GetAppointment(ctx, appointmentID)
	if err != nil {
		return nil, nil, fmt.Errorf("reschedule: load appointment %d: %w", appointmentID, err)
	}
	if !reschedulable(appt.Status) {
		return nil, appt, fmt.Errorf("%w: status %s", ErrNotReschedulable, appt.Status)
	}

	specialtyID := 0
	doctor, ok, err := c.catalog.FindDoctor(ctx, appt.DoctorID)
	switch {
	case err != nil:
		c.logger.Warn("reschedule: doctor lookup failed", "appointment_id", appointmentID, "doctor_id", appt.DoctorID, "error", err)
	case !ok:
		c.logger.Warn("reschedule: doctor not in catalog", "appointment_id", appointmentID, "doctor_id", appt.DoctorID)
	default:
		specialtyID = doctor.SpecialtyID
	}

	base := []booking.Option{
		booking.WithRequirements(booking.Requirements{}),
		booking.WithPinnedSlot(booking.PinnedSlot{DoctorID: appt.DoctorID, Date: appt.Date, Time: appt.Time}),
		booking.WithRetainedDate(),
		booking.WithMetrics(c.metrics),
	}
	submitter := journal.WrapSubmitter(NewSubmitter(c.api, appointmentID), c.recorder, c.logger)
	w := booking.NewWizard(c.catalog, c.resolver, submitter, c.logger, append(base, opts...)...)

	if err := w.Prefill(ctx, booking.Selection{
		SpecialtyID: specialtyID,
		DoctorID:    appt.DoctorID,
		Date:        appt.Date,
		Time:        appt.Time,
	}); err != nil {
		return nil, appt, fmt.Errorf("reschedule: prefill: %w", err)
	}
	if err := w.LoadCatalog(ctx); err != nil {
		c.logger.Warn("reschedule: catalog unavailable", "appointment_id", appointmentID, "error", err)
	}
	return w, appt, nil
}

func reschedulable(status clinicapi.AppointmentStatus) bool {
	switch status {
	case clinicapi.StatusPending, clinicapi.StatusScheduled, clinicapi.StatusConfirmed:
		return true
	case clinicapi.StatusCompleted, clinicapi.StatusCancelled:
		return false
	default:
		return false
	}
}

// Submitter moves one appointment. The selection's notes travel as the reason.
type Submitter struct {
	api           API
	appointmentID int
}

func NewSubmitter(api API, appointmentID int) *Submitter {
	return &Submitter{api: api, appointmentID: appointmentID}
}

func (s *Submitter) Kind() booking.Kind { return booking.KindReschedule }

func (s *Submitter) Submit(ctx context.Context, sel booking.Selection) (booking.Receipt, error) {
	err := s.api.RescheduleAppointment(ctx, s.appointmentID, clinicapi.RescheduleRequest{
		Date:     sel.Date,
		Time:     sel.Time,
		DoctorID: sel.DoctorID,
		Reason:   sel.Notes,
	})
	if err != nil {
		return booking.Receipt{}, err
	}
	return booking.Receipt{AppointmentID: s.appointmentID, RedirectPath: booking.AppointmentPath(s.appointmentID)}, nil
}

// AppointmentID is the appointment this submitter moves.
func (s *Submitter) AppointmentID() int { return s.appointmentID }
