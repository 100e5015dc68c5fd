package reschedule

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/clinic-booking/internal/booking"
	"github.com/wolfman30/clinic-booking/internal/calendar"
	"github.com/wolfman30/clinic-booking/internal/catalog"
	"github.com/wolfman30/clinic-booking/internal/clinicapi"
	"github.com/wolfman30/clinic-booking/internal/journal"
	"github.com/wolfman30/clinic-booking/internal/slots"
	"github.com/wolfman30/clinic-booking/pkg/logging"
)

type fakeClinic struct {
	mu           sync.Mutex
	status       string
	puts         []string
	rescheduleFn http.HandlerFunc
}

func (f *fakeClinic) routes(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/appointments/42", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		status := f.status
		f.mu.Unlock()
		fmt.Fprintf(w, `{"appointmentId":42,"doctorId":7,"date":"2025-03-01T00:00:00","time":"09:00:00","status":%q,"patientId":3}`, status)
	})
	mux.HandleFunc("/appointments/42/reschedule", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		body, _ := io.ReadAll(r.Body)
		f.mu.Lock()
		f.puts = append(f.puts, string(body))
		fn := f.rescheduleFn
		f.mu.Unlock()
		if fn != nil {
			fn(w, r)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("/booking/specialties", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"id":3,"name":"Tim mạch"},{"id":4,"name":"Nhi khoa"}]`))
	})
	mux.HandleFunc("/booking/services", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[]`))
	})
	mux.HandleFunc("/booking/doctors", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"id":7,"name":"BS. Phạm Quốc Dũng","specialtyId":3},{"id":8,"name":"BS. Võ Thị Hoa","specialtyId":4}]`))
	})
	mux.HandleFunc("/booking/doctors/3", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"id":7,"name":"BS. Phạm Quốc Dũng","specialtyId":3}]`))
	})
	mux.HandleFunc("/booking/doctors/4", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"id":8,"name":"BS. Võ Thị Hoa","specialtyId":4}]`))
	})
	mux.HandleFunc("/schedule/workshift/7", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"shiftId":1,"doctorId":7,"date":"2025-03-01","startTime":"08:00","endTime":"12:00"},{"shiftId":2,"doctorId":7,"date":"2025-03-02","startTime":"08:00","endTime":"12:00"}]`))
	})
	// The appointment's own 09:00 slot is reported as booked.
	mux.HandleFunc("/booking/slots/7/2025-03-01", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`["08:00","10:00"]`))
	})
	mux.HandleFunc("/booking/slots/7/2025-03-02", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`["10:00"]`))
	})
	return mux
}

func newTestController(t *testing.T, clinic *fakeClinic) *Controller {
	t.Helper()
	ts := httptest.NewServer(clinic.routes(t))
	t.Cleanup(ts.Close)
	client, err := clinicapi.NewClient(ts.URL, logging.Discard(), clinicapi.WithCredentials(clinicapi.StaticToken("tok")))
	require.NoError(t, err)
	zone := time.FixedZone("ICT", 7*3600)
	resolver := slots.NewResolver(client, slots.Config{
		LeadTime: 2 * time.Hour,
		Location: zone,
		Now:      func() time.Time { return time.Date(2025, 2, 20, 9, 0, 0, 0, zone) },
	}, logging.Discard(), nil)
	return NewController(client, catalog.NewLoader(client, logging.Discard()), resolver, logging.Discard(), nil)
}

func TestOpen_PrefillsCurrentAppointment(t *testing.T) {
	c := newTestController(t, &fakeClinic{status: "Scheduled"})
	w, appt, err := c.Open(context.Background(), 42)
	require.NoError(t, err)
	require.Equal(t, clinicapi.StatusScheduled, appt.Status)

	snap := w.Snapshot()
	assert.Equal(t, booking.KindReschedule, snap.Kind)
	assert.Equal(t, 7, snap.Selection.DoctorID)
	assert.Equal(t, 3, snap.Selection.SpecialtyID)
	assert.Equal(t, "2025-03-01", snap.Selection.Date.String())
	assert.Equal(t, "09:00", snap.Selection.Time.String())
	assert.Equal(t, booking.StepConfirm, snap.Step)
	assert.True(t, snap.CanSubmit)
	require.NotNil(t, snap.PinnedSlot)
	assert.Len(t, snap.Slots, 2)
	assert.Len(t, snap.Doctors, 1)
}

func TestOpen_SubmitUnchanged(t *testing.T) {
	clinic := &fakeClinic{status: "Confirmed"}
	c := newTestController(t, clinic)
	w, _, err := c.Open(context.Background(), 42)
	require.NoError(t, err)

	receipt, err := w.Submit(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "/patient/appointments/42", receipt.RedirectPath)

	clinic.mu.Lock()
	defer clinic.mu.Unlock()
	require.Len(t, clinic.puts, 1)
	assert.JSONEq(t, `{"date":"2025-03-01","time":"09:00","doctorId":7}`, clinic.puts[0])
}

func TestOpen_OriginalSlotStaysSelectable(t *testing.T) {
	c := newTestController(t, &fakeClinic{status: "Pending"})
	w, _, err := c.Open(context.Background(), 42)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, w.SelectDate(ctx, calendar.NewDate(2025, 3, 2)))
	assert.ErrorIs(t, w.SelectTime(calendar.MustTime("09:00")), booking.ErrSlotUnavailable)
	require.NoError(t, w.SelectTime(calendar.MustTime("10:00")))

	require.NoError(t, w.SelectDate(ctx, calendar.NewDate(2025, 3, 1)))
	require.NoError(t, w.SelectTime(calendar.MustTime("09:00")))
	require.NoError(t, w.Next())
	assert.Equal(t, booking.StepConfirm, w.Snapshot().Step)
}

func TestOpen_SpecialtyChangeResetsDoctorKeepsDate(t *testing.T) {
	c := newTestController(t, &fakeClinic{status: "Scheduled"})
	w, _, err := c.Open(context.Background(), 42)
	require.NoError(t, err)

	require.NoError(t, w.SelectSpecialty(context.Background(), 4))
	snap := w.Snapshot()
	assert.Equal(t, 0, snap.Selection.DoctorID)
	assert.Equal(t, "2025-03-01", snap.Selection.Date.String())
	assert.True(t, snap.Selection.Time.IsZero())
	assert.Equal(t, booking.StepSelectDoctor, snap.Step)
	require.Len(t, snap.Doctors, 1)
	assert.Equal(t, 8, snap.Doctors[0].ID)
}

func TestOpen_TerminalAppointmentsAreRejected(t *testing.T) {
	for _, status := range []string{"Completed", "Cancelled"} {
		t.Run(status, func(t *testing.T) {
			c := newTestController(t, &fakeClinic{status: status})
			w, appt, err := c.Open(context.Background(), 42)
			assert.True(t, errors.Is(err, ErrNotReschedulable))
			assert.Nil(t, w)
			require.NotNil(t, appt)
		})
	}
}

func TestOpen_InvalidID(t *testing.T) {
	c := newTestController(t, &fakeClinic{status: "Scheduled"})
	_, _, err := c.Open(context.Background(), 0)
	assert.ErrorIs(t, err, ErrInvalidAppointment)
}

func TestSubmit_FailureKeepsForm(t *testing.T) {
	clinic := &fakeClinic{status: "Scheduled", rescheduleFn: func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"message":"Không thể đổi lịch trong vòng 24 giờ"}`))
	}}
	c := newTestController(t, clinic)
	w, _, err := c.Open(context.Background(), 42)
	require.NoError(t, err)
	require.NoError(t, w.SetNotes("Bận công tác"))

	_, err = w.Submit(context.Background())
	var subErr *booking.SubmissionError
	require.ErrorAs(t, err, &subErr)
	assert.Equal(t, "Không thể đổi lịch trong vòng 24 giờ", subErr.Message)

	snap := w.Snapshot()
	assert.Equal(t, booking.StepConfirm, snap.Step)
	assert.Equal(t, "09:00", snap.Selection.Time.String())

	clinic.mu.Lock()
	defer clinic.mu.Unlock()
	require.Len(t, clinic.puts, 1)
	assert.JSONEq(t, `{"date":"2025-03-01","time":"09:00","doctorId":7,"reason":"Bận công tác"}`, clinic.puts[0])
}

type captureRecorder struct {
	mu      sync.Mutex
	entries []journal.Entry
}

func (c *captureRecorder) Record(_ context.Context, e journal.Entry) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = append(c.entries, e)
	return nil
}

func TestOpen_SubmissionsAreJournaled(t *testing.T) {
	clinic := &fakeClinic{status: "Scheduled"}
	ts := httptest.NewServer(clinic.routes(t))
	t.Cleanup(ts.Close)
	client, err := clinicapi.NewClient(ts.URL, logging.Discard(), clinicapi.WithCredentials(clinicapi.StaticToken("tok")))
	require.NoError(t, err)
	resolver := slots.NewResolver(client, slots.Config{
		LeadTime: 2 * time.Hour,
		Location: time.UTC,
		Now:      func() time.Time { return time.Date(2025, 2, 20, 9, 0, 0, 0, time.UTC) },
	}, logging.Discard(), nil)
	rec := &captureRecorder{}
	c := NewController(client, catalog.NewLoader(client, logging.Discard()), resolver, logging.Discard(), nil, WithRecorder(rec))

	w, _, err := c.Open(context.Background(), 42)
	require.NoError(t, err)
	_, err = w.Submit(context.Background())
	require.NoError(t, err)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	require.Len(t, rec.entries, 1)
	assert.Equal(t, "reschedule", rec.entries[0].Kind)
	assert.Equal(t, 42, rec.entries[0].AppointmentID)
	assert.Equal(t, 7, rec.entries[0].DoctorID)
	assert.True(t, rec.entries[0].Succeeded)
}
