package booking

import (
	"context"
	"fmt"

	"github.com/wolfman30/clinic-booking/internal/clinicapi"
)

// Receipt is the outcome of a successful submission.
type Receipt struct {
	AppointmentID int    `json:"appointmentId"`
	RedirectPath  string `json:"redirectPath"`
}

// Submitter performs the mutation a wizard confirms. Create and reschedule flows
// differ only in their submitter.
type Submitter interface {
	// Kind identifies the mutation for metrics and the journal.
	Kind() Kind
	// Submit sends the selection to the clinic API exactly once.
	Submit(ctx context.Context, sel Selection) (Receipt, error)
}

// AppointmentPath is where the UI navigates after a successful submission.
func AppointmentPath(appointmentID int) string {
	return fmt.Sprintf("/patient/appointments/%d", appointmentID)
}

// CreateAPI is the subset of the clinic client needed to book.
type CreateAPI interface {
	CreateAppointment(ctx context.Context, req clinicapi.CreateAppointmentRequest) (int, error)
}

// CreateSubmitter books a new appointment.
type CreateSubmitter struct {
	api CreateAPI
}

func NewCreateSubmitter(api CreateAPI) *CreateSubmitter {
	return &CreateSubmitter{api: api}
}

func (s *CreateSubmitter) Kind() Kind { return KindCreate }

func (s *CreateSubmitter) Submit(ctx context.Context, sel Selection) (Receipt, error) {
	id, err := s.api.CreateAppointment(ctx, clinicapi.CreateAppointmentRequest{
		DoctorID:  sel.DoctorID,
		Date:      sel.Date,
		Time:      sel.Time,
		ServiceID: sel.ServiceID,
		Notes:     sel.Notes,
	})
	if err != nil {
		return Receipt{}, err
	}
	return Receipt{AppointmentID: id, RedirectPath: AppointmentPath(id)}, nil
}
