package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/clinic-booking/internal/appointments"
	"github.com/wolfman30/clinic-booking/internal/booking"
	"github.com/wolfman30/clinic-booking/internal/catalog"
	"github.com/wolfman30/clinic-booking/internal/clinicapi"
	httpmiddleware "github.com/wolfman30/clinic-booking/internal/http/middleware"
	"github.com/wolfman30/clinic-booking/internal/journal"
	"github.com/wolfman30/clinic-booking/internal/session"
	"github.com/wolfman30/clinic-booking/internal/slots"
	"github.com/wolfman30/clinic-booking/pkg/logging"
)

const (
	patientToken = "patient-token"
	otherToken   = "other-token"
)

// fakeClinic serves the clinic REST API for one doctor with a 08:00-12:00
// shift on 2025-03-10, new appointment 501 and existing appointment 42.
type fakeClinic struct {
	mu           sync.Mutex
	posts        []string
	cancels      []string
	createStatus int
	createBody   string
	status42     string
	auth         []string
}

func (f *fakeClinic) routes(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/booking/specialties", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"id":3,"name":"Tim mạch"},{"id":4,"name":"Nhi khoa"}]`))
	})
	mux.HandleFunc("/booking/doctors", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"id":1,"name":"BS. Nguyễn Văn An","specialtyId":3},{"id":2,"name":"BS. Trần Thị Bình","specialtyId":4}]`))
	})
	mux.HandleFunc("/booking/doctors/3", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"id":1,"name":"BS. Nguyễn Văn An","specialtyId":3}]`))
	})
	mux.HandleFunc("/booking/services", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"id":9,"name":"Khám tổng quát","price":200000}]`))
	})
	mux.HandleFunc("/schedule/workshift/1", func(w http.ResponseWriter, r *http.Request) {
		f.recordAuth(r)
		_, _ = w.Write([]byte(`[{"shiftId":10,"doctorId":1,"date":"2025-03-10","startTime":"08:00","endTime":"12:00"}]`))
	})
	mux.HandleFunc("/booking/slots/1/2025-03-10", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`["08:00","08:30","09:00","09:30","10:00","10:30","11:00","11:30"]`))
	})
	mux.HandleFunc("/booking/appointments", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		f.recordAuth(r)
		body, _ := io.ReadAll(r.Body)
		f.mu.Lock()
		f.posts = append(f.posts, string(body))
		status, reply := f.createStatus, f.createBody
		f.mu.Unlock()
		if status == 0 {
			status, reply = http.StatusCreated, `{"appointmentId":501}`
		}
		w.WriteHeader(status)
		_, _ = w.Write([]byte(reply))
	})
	mux.HandleFunc("/appointments/42", func(w http.ResponseWriter, r *http.Request) {
		f.recordAuth(r)
		f.mu.Lock()
		status := f.status42
		f.mu.Unlock()
		if status == "" {
			status = "Scheduled"
		}
		fmt.Fprintf(w, `{"appointmentId":42,"doctorId":1,"date":"2025-03-10","time":"09:00","status":%q,"patientId":3}`, status)
	})
	mux.HandleFunc("/appointments/42/cancel", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		body, _ := io.ReadAll(r.Body)
		f.mu.Lock()
		f.cancels = append(f.cancels, string(body))
		f.mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("/appointments/77", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"message":"Appointment not found"}`))
	})
	return mux
}

func (f *fakeClinic) recordAuth(r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.auth = append(f.auth, r.Header.Get("Authorization"))
}

type memoryJournal struct {
	mu      sync.Mutex
	entries []journal.Entry
}

func (m *memoryJournal) Record(_ context.Context, e journal.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, e)
	return nil
}

func (m *memoryJournal) ListForAppointment(_ context.Context, id, _ int) ([]journal.Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []journal.Entry
	for _, e := range m.entries {
		if e.AppointmentID == id {
			out = append(out, e)
		}
	}
	return out, nil
}

type harness struct {
	server   *httptest.Server
	clinic   *fakeClinic
	sessions *session.Store
	journal  *memoryJournal
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	clinic := &fakeClinic{}
	upstream := httptest.NewServer(clinic.routes(t))
	t.Cleanup(upstream.Close)

	client, err := clinicapi.NewClient(upstream.URL, logging.Discard())
	require.NoError(t, err)

	zone := time.FixedZone("ICT", 7*3600)
	sessions := session.NewStore(time.Minute, logging.Discard(), nil)
	jr := &memoryJournal{}
	bookingHandler := NewBookingHandler(BookingConfig{
		Clinic:  client,
		Catalog: catalog.NewLoader(client, logging.Discard(), catalog.WithCache(catalog.NewMemoryCache(), time.Minute)),
		Slots: slots.Config{
			LeadTime: 2 * time.Hour,
			Location: zone,
			Now:      func() time.Time { return time.Date(2025, 3, 5, 9, 0, 0, 0, zone) },
		},
		Requirements: booking.DefaultRequirements(),
		Sessions:     sessions,
		Journal:      jr,
		Logger:       logging.Discard(),
	})
	appointmentsHandler := NewAppointmentsHandler(
		client,
		appointments.NewService(nil, logging.Discard(), nil, appointments.WithRecorder(jr)),
		jr,
		logging.Discard(),
	)

	r := chi.NewRouter()
	r.Route("/api", func(api chi.Router) {
		api.Use(httpmiddleware.PatientBearer())
		bookingHandler.RegisterRoutes(api)
		appointmentsHandler.RegisterRoutes(api)
	})
	server := httptest.NewServer(r)
	t.Cleanup(server.Close)
	return &harness{server: server, clinic: clinic, sessions: sessions, journal: jr}
}

// apiResponse mirrors the JSON the handlers write.
type apiResponse struct {
	SessionID     string           `json:"sessionId"`
	AppointmentID int              `json:"appointmentId"`
	Snapshot      *snapshotView    `json:"snapshot"`
	Receipt       *booking.Receipt `json:"receipt"`
	Error         string           `json:"error"`
	Missing       []string         `json:"missing"`
	Dates         []string         `json:"dates"`
	Status        string           `json:"status"`
	Entries       []journal.Entry  `json:"entries"`
}

type snapshotView struct {
	Kind      string `json:"kind"`
	Step      string `json:"step"`
	Version   uint64 `json:"version"`
	Selection struct {
		SpecialtyID int    `json:"specialtyId"`
		DoctorID    int    `json:"doctorId"`
		Date        string `json:"date"`
		Time        string `json:"time"`
		Notes       string `json:"notes"`
	} `json:"selection"`
	Specialties []clinicapi.Specialty `json:"specialties"`
	Doctors     []clinicapi.Doctor    `json:"doctors"`
	SlotState   string                `json:"slotState"`
	Slots       []string              `json:"slots"`
	CanNext     bool                  `json:"canNext"`
	CanSubmit   bool                  `json:"canSubmit"`
	Failure     *booking.Failure      `json:"failure"`
}

func (h *harness) do(t *testing.T, method, path, token, body string) (int, apiResponse) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, h.server.URL+path, reader)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := h.server.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out apiResponse
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &out), string(raw))
	}
	return resp.StatusCode, out
}

// openBooking creates a booking session and walks it to the confirm step with
// doctor 1 on 2025-03-10 at 09:00.
func (h *harness) openBooking(t *testing.T) string {
	t.Helper()
	code, resp := h.do(t, http.MethodPost, "/api/booking/sessions", patientToken, "")
	require.Equal(t, http.StatusCreated, code)
	id := resp.SessionID
	steps := []struct{ method, path, body string }{
		{http.MethodPut, "/specialty", `{"id":3}`},
		{http.MethodPut, "/doctor", `{"id":1}`},
		{http.MethodPost, "/next", ""},
		{http.MethodPut, "/date", `{"date":"2025-03-10"}`},
		{http.MethodPut, "/time", `{"time":"09:00"}`},
		{http.MethodPost, "/next", ""},
	}
	for _, s := range steps {
		code, resp := h.do(t, s.method, "/api/sessions/"+id+s.path, patientToken, s.body)
		require.Equal(t, http.StatusOK, code, "%s %s: %s", s.method, s.path, resp.Error)
	}
	return id
}
