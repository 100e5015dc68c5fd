package journal

import (
	"context"
	"time"

	"github.com/wolfman30/clinic-booking/internal/booking"
	"github.com/wolfman30/clinic-booking/pkg/logging"
)

const recordTimeout = 3 * time.Second

// RecordBestEffort writes entry and logs, never returns, failures. The write
// outlives a cancelled request context.
func RecordBestEffort(ctx context.Context, rec Recorder, logger *logging.Logger, entry Entry) {
	if rec == nil {
		return
	}
	if logger == nil {
		logger = logging.Default()
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), recordTimeout)
	defer cancel()
	if err := rec.Record(ctx, entry); err != nil {
		logger.Warn("journal: record submission failed", "kind", entry.Kind, "appointment_id", entry.AppointmentID, "error", err)
	}
}

type appointmentScoped interface {
	AppointmentID() int
}

type recordingSubmitter struct {
	next   booking.Submitter
	rec    Recorder
	logger *logging.Logger
}

// WrapSubmitter journals every submission made through next.
func WrapSubmitter(next booking.Submitter, rec Recorder, logger *logging.Logger) booking.Submitter {
	if rec == nil {
		return next
	}
	return &recordingSubmitter{next: next, rec: rec, logger: logger}
}

func (s *recordingSubmitter) Kind() booking.Kind { return s.next.Kind() }

// AppointmentID forwards the wrapped submitter's appointment, if any.
func (s *recordingSubmitter) AppointmentID() int {
	if scoped, ok := s.next.(appointmentScoped); ok {
		return scoped.AppointmentID()
	}
	return 0
}

func (s *recordingSubmitter) Submit(ctx context.Context, sel booking.Selection) (booking.Receipt, error) {
	receipt, err := s.next.Submit(ctx, sel)
	entry := Entry{
		Kind:          string(s.next.Kind()),
		AppointmentID: receipt.AppointmentID,
		DoctorID:      sel.DoctorID,
		SlotDate:      sel.Date,
		SlotTime:      sel.Time,
		Succeeded:     err == nil,
	}
	if entry.AppointmentID == 0 {
		entry.AppointmentID = s.AppointmentID()
	}
	if err != nil {
		entry.FailureReason = err.Error()
	}
	RecordBestEffort(ctx, s.rec, s.logger, entry)
	return receipt, err
}
