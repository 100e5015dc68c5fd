package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/clinic-booking/internal/appointments"
	"github.com/wolfman30/clinic-booking/internal/clinicapi"
	httpmiddleware "github.com/wolfman30/clinic-booking/internal/http/middleware"
	"github.com/wolfman30/clinic-booking/internal/journal"
	"github.com/wolfman30/clinic-booking/pkg/logging"
)

// AppointmentsHandler reads, cancels and audits existing appointments.
type AppointmentsHandler struct {
	clinic  *clinicapi.Client
	service *appointments.Service
	history journal.Reader
	logger  *logging.Logger
}

func NewAppointmentsHandler(clinic *clinicapi.Client, service *appointments.Service, history journal.Reader, logger *logging.Logger) *AppointmentsHandler {
	if logger == nil {
		logger = logging.Default()
	}
	if history == nil {
		history = journal.NopRecorder{}
	}
	return &AppointmentsHandler{clinic: clinic, service: service, history: history, logger: logger.Component("appointments-http")}
}

// RegisterRoutes mounts the appointment endpoints on r, which must already
// require a patient bearer token.
func (h *AppointmentsHandler) RegisterRoutes(r chi.Router) {
	r.Route("/appointments/{appointmentID}", func(a chi.Router) {
		a.Get("/", h.GetAppointment)
		a.Put("/cancel", h.CancelAppointment)
		a.Get("/history", h.History)
	})
}

type cancelRequest struct {
	Reason string `json:"reason"`
}

func (h *AppointmentsHandler) GetAppointment(w http.ResponseWriter, r *http.Request) {
	svc, id, ok := h.scoped(w, r)
	if !ok {
		return
	}
	appt, err := svc.Get(r.Context(), id)
	if err != nil {
		h.writeError(w, id, err)
		return
	}
	writeJSON(w, http.StatusOK, appt)
}

func (h *AppointmentsHandler) CancelAppointment(w http.ResponseWriter, r *http.Request) {
	var req cancelRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	svc, id, ok := h.scoped(w, r)
	if !ok {
		return
	}
	appt, err := svc.Cancel(r.Context(), id, req.Reason)
	if err != nil {
		h.writeError(w, id, err)
		return
	}
	writeJSON(w, http.StatusOK, appt)
}

// History lists the recorded mutation attempts of an appointment the caller
// can read.
func (h *AppointmentsHandler) History(w http.ResponseWriter, r *http.Request) {
	svc, id, ok := h.scoped(w, r)
	if !ok {
		return
	}
	if _, err := svc.Get(r.Context(), id); err != nil {
		h.writeError(w, id, err)
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	entries, err := h.history.ListForAppointment(r.Context(), id, limit)
	if err != nil {
		h.logger.Error("history lookup failed", "appointment_id", id, "error", err)
		jsonError(w, "history unavailable", http.StatusInternalServerError)
		return
	}
	if entries == nil {
		entries = []journal.Entry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

func (h *AppointmentsHandler) scoped(w http.ResponseWriter, r *http.Request) (*appointments.Service, int, bool) {
	token, ok := httpmiddleware.BearerTokenFromContext(r.Context())
	if !ok {
		jsonError(w, "missing authorization header", http.StatusUnauthorized)
		return nil, 0, false
	}
	id, err := strconv.Atoi(chi.URLParam(r, "appointmentID"))
	if err != nil || id <= 0 {
		jsonError(w, "invalid appointment id", http.StatusBadRequest)
		return nil, 0, false
	}
	return h.service.WithAPI(h.clinic.WithCredentials(clinicapi.NewJWTBearer(token))), id, true
}

func (h *AppointmentsHandler) writeError(w http.ResponseWriter, id int, err error) {
	switch {
	case errors.Is(err, appointments.ErrInvalidAppointment), errors.Is(err, appointments.ErrReasonTooLong):
		jsonError(w, err.Error(), http.StatusUnprocessableEntity)
	case errors.Is(err, appointments.ErrNotCancellable):
		jsonError(w, "Lịch hẹn này không thể hủy", http.StatusConflict)
	case errors.Is(err, appointments.ErrCancelInFlight):
		jsonError(w, err.Error(), http.StatusConflict)
	default:
		status, msg := upstreamError(err)
		if status >= http.StatusInternalServerError {
			h.logger.Warn("appointment request failed", "appointment_id", id, "error", err)
		}
		jsonError(w, msg, status)
	}
}
