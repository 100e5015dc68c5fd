package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/clinic-booking/internal/booking"
	"github.com/wolfman30/clinic-booking/internal/calendar"
	"github.com/wolfman30/clinic-booking/internal/catalog"
	"github.com/wolfman30/clinic-booking/internal/clinicapi"
	httpmiddleware "github.com/wolfman30/clinic-booking/internal/http/middleware"
	"github.com/wolfman30/clinic-booking/internal/journal"
	"github.com/wolfman30/clinic-booking/internal/observability/metrics"
	"github.com/wolfman30/clinic-booking/internal/reschedule"
	"github.com/wolfman30/clinic-booking/internal/session"
	"github.com/wolfman30/clinic-booking/internal/slots"
	"github.com/wolfman30/clinic-booking/pkg/logging"
)

// submitTimeout bounds a submission that outlives the request that started it.
const submitTimeout = 30 * time.Second

// BookingConfig wires a BookingHandler.
type BookingConfig struct {
	// Clinic carries no credentials; each session binds the caller's token.
	Clinic       *clinicapi.Client
	Catalog      *catalog.Loader
	Slots        slots.Config
	Requirements booking.Requirements
	Sessions     *session.Store
	// Journal may be nil, in which case submissions are not recorded.
	Journal journal.Recorder
	Logger  *logging.Logger
	Metrics *metrics.BookingMetrics
}

// BookingHandler drives booking and reschedule wizards held server-side.
type BookingHandler struct {
	clinic       *clinicapi.Client
	catalog      *catalog.Loader
	slotCfg      slots.Config
	requirements booking.Requirements
	sessions     *session.Store
	recorder     journal.Recorder
	logger       *logging.Logger
	metrics      *metrics.BookingMetrics
}

func NewBookingHandler(cfg BookingConfig) *BookingHandler {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}
	return &BookingHandler{
		clinic:       cfg.Clinic,
		catalog:      cfg.Catalog,
		slotCfg:      cfg.Slots,
		requirements: cfg.Requirements,
		sessions:     cfg.Sessions,
		recorder:     cfg.Journal,
		logger:       logger.Component("booking-http"),
		metrics:      cfg.Metrics,
	}
}

// RegisterRoutes mounts the session endpoints on r, which must already
// require a patient bearer token.
func (h *BookingHandler) RegisterRoutes(r chi.Router) {
	r.Post("/booking/sessions", h.CreateBookingSession)
	r.Post("/reschedule/sessions", h.CreateRescheduleSession)
	r.Route("/sessions/{sessionID}", func(s chi.Router) {
		s.Get("/", h.GetSession)
		s.Delete("/", h.DeleteSession)
		s.Put("/specialty", h.SelectSpecialty)
		s.Put("/doctor", h.SelectDoctor)
		s.Put("/service", h.SelectService)
		s.Put("/date", h.SelectDate)
		s.Put("/time", h.SelectTime)
		s.Put("/notes", h.SetNotes)
		s.Get("/dates", h.AvailableDates)
		s.Post("/next", h.Next)
		s.Post("/back", h.Back)
		s.Post("/submit", h.Submit)
		s.Post("/catalog/reload", h.ReloadCatalog)
		s.Post("/slots/refresh", h.RefreshSlots)
		s.Get("/events", h.Events)
	})
}

type sessionResponse struct {
	SessionID     string           `json:"sessionId"`
	AppointmentID int              `json:"appointmentId,omitempty"`
	Snapshot      booking.Snapshot `json:"snapshot"`
	Receipt       *booking.Receipt `json:"receipt,omitempty"`
}

type idRequest struct {
	ID int `json:"id"`
}

type dateRequest struct {
	Date calendar.Date `json:"date"`
}

type timeRequest struct {
	Time calendar.TimeOfDay `json:"time"`
}

type notesRequest struct {
	Notes string `json:"notes"`
}

type rescheduleRequest struct {
	AppointmentID int `json:"appointmentId"`
}

// CreateBookingSession opens a new-appointment wizard and loads the catalog.
// A catalog failure is reported on the snapshot, not as an error.
func (h *BookingHandler) CreateBookingSession(w http.ResponseWriter, r *http.Request) {
	token, client, ok := h.patientClient(w, r)
	if !ok {
		return
	}
	resolver := slots.NewResolver(client, h.slotCfg, h.logger, h.metrics)
	submitter := journal.WrapSubmitter(booking.NewCreateSubmitter(client), h.recorder, h.logger)
	wiz := booking.NewWizard(h.catalog, resolver, submitter, h.logger,
		booking.WithRequirements(h.requirements),
		booking.WithMetrics(h.metrics),
	)
	if err := wiz.LoadCatalog(r.Context()); err != nil {
		h.logger.Warn("booking session opened without full catalog", "error", err)
	}
	sess := h.sessions.Create(token, wiz, 0)
	writeJSON(w, http.StatusCreated, sessionResponse{SessionID: sess.ID, Snapshot: wiz.Snapshot()})
}

// CreateRescheduleSession opens a wizard pre-filled from an existing appointment.
func (h *BookingHandler) CreateRescheduleSession(w http.ResponseWriter, r *http.Request) {
	var req rescheduleRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	token, client, ok := h.patientClient(w, r)
	if !ok {
		return
	}
	resolver := slots.NewResolver(client, h.slotCfg, h.logger, h.metrics)
	controller := reschedule.NewController(client, h.catalog, resolver, h.logger, h.metrics, reschedule.WithRecorder(h.recorder))
	wiz, _, err := controller.Open(r.Context(), req.AppointmentID)
	switch {
	case err == nil:
	case errors.Is(err, reschedule.ErrInvalidAppointment):
		jsonError(w, err.Error(), http.StatusUnprocessableEntity)
		return
	case errors.Is(err, reschedule.ErrNotReschedulable):
		jsonError(w, "Lịch hẹn này không thể đổi", http.StatusConflict)
		return
	default:
		status, msg := upstreamError(err)
		h.logger.Warn("reschedule session failed to open", "appointment_id", req.AppointmentID, "error", err)
		jsonError(w, msg, status)
		return
	}
	sess := h.sessions.Create(token, wiz, req.AppointmentID)
	writeJSON(w, http.StatusCreated, sessionResponse{
		SessionID:     sess.ID,
		AppointmentID: req.AppointmentID,
		Snapshot:      wiz.Snapshot(),
	})
}

func (h *BookingHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	h.writeSnapshot(w, sess)
}

func (h *BookingHandler) DeleteSession(w http.ResponseWriter, r *http.Request) {
	token, _ := httpmiddleware.BearerTokenFromContext(r.Context())
	if err := h.sessions.Delete(chi.URLParam(r, "sessionID"), token); err != nil {
		jsonError(w, "session not found", http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *BookingHandler) SelectSpecialty(w http.ResponseWriter, r *http.Request) {
	var req idRequest
	h.mutate(w, r, &req, func(ctx context.Context, wiz *booking.Wizard) error {
		return wiz.SelectSpecialty(ctx, req.ID)
	})
}

func (h *BookingHandler) SelectDoctor(w http.ResponseWriter, r *http.Request) {
	var req idRequest
	h.mutate(w, r, &req, func(ctx context.Context, wiz *booking.Wizard) error {
		return wiz.SelectDoctor(ctx, req.ID)
	})
}

func (h *BookingHandler) SelectService(w http.ResponseWriter, r *http.Request) {
	var req idRequest
	h.mutate(w, r, &req, func(_ context.Context, wiz *booking.Wizard) error {
		return wiz.SelectService(req.ID)
	})
}

func (h *BookingHandler) SelectDate(w http.ResponseWriter, r *http.Request) {
	var req dateRequest
	h.mutate(w, r, &req, func(ctx context.Context, wiz *booking.Wizard) error {
		return wiz.SelectDate(ctx, req.Date)
	})
}

func (h *BookingHandler) SelectTime(w http.ResponseWriter, r *http.Request) {
	var req timeRequest
	h.mutate(w, r, &req, func(_ context.Context, wiz *booking.Wizard) error {
		return wiz.SelectTime(req.Time)
	})
}

func (h *BookingHandler) SetNotes(w http.ResponseWriter, r *http.Request) {
	var req notesRequest
	h.mutate(w, r, &req, func(_ context.Context, wiz *booking.Wizard) error {
		return wiz.SetNotes(req.Notes)
	})
}

func (h *BookingHandler) Next(w http.ResponseWriter, r *http.Request) {
	h.mutate(w, r, nil, func(_ context.Context, wiz *booking.Wizard) error {
		return wiz.Next()
	})
}

func (h *BookingHandler) Back(w http.ResponseWriter, r *http.Request) {
	h.mutate(w, r, nil, func(_ context.Context, wiz *booking.Wizard) error {
		return wiz.Back()
	})
}

func (h *BookingHandler) ReloadCatalog(w http.ResponseWriter, r *http.Request) {
	h.mutate(w, r, nil, func(ctx context.Context, wiz *booking.Wizard) error {
		return wiz.LoadCatalog(ctx)
	})
}

func (h *BookingHandler) RefreshSlots(w http.ResponseWriter, r *http.Request) {
	h.mutate(w, r, nil, func(ctx context.Context, wiz *booking.Wizard) error {
		return wiz.RefreshSlots(ctx)
	})
}

// AvailableDates lists the upcoming dates the selected doctor works.
func (h *BookingHandler) AvailableDates(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	dates, err := sess.Wizard.AvailableDates(r.Context())
	if err != nil {
		h.writeWizardError(w, sess, err)
		return
	}
	if dates == nil {
		dates = []calendar.Date{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"dates": dates})
}

// Submit sends the confirmed selection. The submission runs to completion even
// if the caller disconnects.
func (h *BookingHandler) Submit(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), submitTimeout)
	defer cancel()

	receipt, err := sess.Wizard.Submit(ctx)
	if err != nil {
		h.writeWizardError(w, sess, err)
		return
	}
	h.logger.Info("submission succeeded", "session_id", sess.ID, "kind", sess.Kind, "appointment_id", receipt.AppointmentID)
	writeJSON(w, http.StatusOK, sessionResponse{
		SessionID:     sess.ID,
		AppointmentID: receipt.AppointmentID,
		Snapshot:      sess.Wizard.Snapshot(),
		Receipt:       &receipt,
	})
}

// mutate decodes req when non-nil, applies fn to the session's wizard and
// answers with the resulting snapshot.
func (h *BookingHandler) mutate(w http.ResponseWriter, r *http.Request, req any, fn func(context.Context, *booking.Wizard) error) {
	if req != nil {
		if err := decodeJSON(r, req); err != nil {
			jsonError(w, err.Error(), http.StatusBadRequest)
			return
		}
	}
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	if err := fn(r.Context(), sess.Wizard); err != nil {
		h.writeWizardError(w, sess, err)
		return
	}
	h.writeSnapshot(w, sess)
}

func (h *BookingHandler) writeSnapshot(w http.ResponseWriter, sess *session.Session) {
	writeJSON(w, http.StatusOK, sessionResponse{
		SessionID:     sess.ID,
		AppointmentID: sess.AppointmentID,
		Snapshot:      sess.Wizard.Snapshot(),
	})
}

// writeWizardError answers with the status for err and the current snapshot.
func (h *BookingHandler) writeWizardError(w http.ResponseWriter, sess *session.Session, err error) {
	snap := sess.Wizard.Snapshot()
	resp := errorResponse{Error: err.Error(), Snapshot: &snap}
	status := http.StatusUnprocessableEntity

	var subErr *booking.SubmissionError
	var incomplete *booking.IncompleteError
	switch {
	case errors.As(err, &subErr):
		status = http.StatusConflict
		resp.Error = subErr.Message
		if clinicapi.IsUnauthorized(err) {
			status = http.StatusUnauthorized
		}
	case errors.Is(err, booking.ErrSubmissionInFlight), errors.Is(err, booking.ErrAlreadySubmitted):
		status = http.StatusConflict
	case errors.As(err, &incomplete):
		resp.Missing = incomplete.Missing
	case errors.Is(err, booking.ErrInvalidTransition),
		errors.Is(err, booking.ErrInvalidSelection),
		errors.Is(err, booking.ErrSlotsLoading),
		errors.Is(err, booking.ErrSlotUnavailable):
	case errors.Is(err, catalog.ErrUnavailable):
		status = http.StatusBadGateway
		resp.Error = snap.CatalogError
		if resp.Error == "" {
			resp.Error = upstreamFailureMessage
		}
	default:
		status, resp.Error = upstreamError(err)
	}
	if status >= http.StatusInternalServerError {
		h.logger.Warn("session request failed", "session_id", sess.ID, "status", status, "error", err)
	}
	writeJSON(w, status, resp)
}

// session resolves the URL's session for the caller, answering 404 otherwise.
func (h *BookingHandler) session(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	token, ok := httpmiddleware.BearerTokenFromContext(r.Context())
	if !ok {
		jsonError(w, "missing authorization header", http.StatusUnauthorized)
		return nil, false
	}
	sess, err := h.sessions.Get(chi.URLParam(r, "sessionID"), token)
	if err != nil {
		jsonError(w, "session not found", http.StatusNotFound)
		return nil, false
	}
	return sess, true
}

// patientClient binds the caller's bearer token to the clinic client.
func (h *BookingHandler) patientClient(w http.ResponseWriter, r *http.Request) (string, *clinicapi.Client, bool) {
	token, ok := httpmiddleware.BearerTokenFromContext(r.Context())
	if !ok {
		jsonError(w, "missing authorization header", http.StatusUnauthorized)
		return "", nil, false
	}
	return token, h.clinic.WithCredentials(clinicapi.NewJWTBearer(token)), true
}
