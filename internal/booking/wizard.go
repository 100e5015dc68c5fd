// Package booking drives the booking and reschedule wizards: the patient picks a
// doctor, then a date and a bookable time, confirms, and the selection is
// submitted exactly once.
package booking

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

	"github.com/wolfman30/clinic-booking/internal/calendar"
	"github.com/wolfman30/clinic-booking/internal/clinicapi"
	"github.com/wolfman30/clinic-booking/internal/observability/metrics"
	"github.com/wolfman30/clinic-booking/internal/slots"
	"github.com/wolfman30/clinic-booking/pkg/logging"
)

var tracer = otel.Tracer("clinic.internal.booking")

const (
	maxNotesLength         = 500
	catalogFailureMessage  = "Không thể tải danh mục, vui lòng thử lại"
	unknownDoctorMessage   = "booking: doctor is not in the current list"
	unknownServiceMessage  = "booking: service is not in the current list"
	unknownSpecialtyFormat = "booking: specialty %d is not in the current list"
)

// Catalog is the subset of the catalog loader the wizard needs.
type Catalog interface {
	LoadSpecialties(ctx context.Context) ([]clinicapi.Specialty, error)
	LoadDoctors(ctx context.Context, specialtyID int) ([]clinicapi.Doctor, error)
	LoadServices(ctx context.Context) ([]clinicapi.Service, error)
}

// SlotResolver is the subset of the slot resolver the wizard needs.
type SlotResolver interface {
	Resolve(ctx context.Context, doctorID int, date calendar.Date) slots.Result
	UpcomingDates(ctx context.Context, doctorID int) ([]calendar.Date, error)
	Today() calendar.Date
}

// Option configures a Wizard.
type Option func(*Wizard)

// WithRequirements sets which step-1 fields are mandatory.
func WithRequirements(req Requirements) Option {
	return func(w *Wizard) { w.req = req }
}

// WithPinnedSlot keeps slot selectable even when the resolver omits it.
func WithPinnedSlot(slot PinnedSlot) Option {
	return func(w *Wizard) {
		pinned := slot
		w.pinned = &pinned
	}
}

// WithRetainedDate keeps the chosen date when the doctor changes.
func WithRetainedDate() Option {
	return func(w *Wizard) { w.retainDate = true }
}

func WithMetrics(m *metrics.BookingMetrics) Option {
	return func(w *Wizard) { w.metrics = m }
}

// Listener receives a snapshot after every state change.
type Listener func(Snapshot)

// Wizard is one patient's booking (or reschedule) form. It is safe for
// concurrent use; network calls run without holding the lock.
type Wizard struct {
	catalog   Catalog
	resolver  SlotResolver
	submitter Submitter
	logger    *logging.Logger
	metrics   *metrics.BookingMetrics

	req        Requirements
	retainDate bool
	pinned     *PinnedSlot
	tracker    slots.Tracker

	mu           sync.Mutex
	step         Step
	sel          Selection
	specialties  []clinicapi.Specialty
	doctors      []clinicapi.Doctor
	services     []clinicapi.Service
	catalogError string
	doctorsGen   uint64
	slotResult   slots.Result
	receipt      *Receipt
	failure      *Failure
	version      uint64
	listeners    map[int]Listener
	nextListener int
}

// NewWizard creates a wizard positioned on the doctor step.
func NewWizard(catalog Catalog, resolver SlotResolver, submitter Submitter, logger *logging.Logger, opts ...Option) *Wizard {
	if logger == nil {
		logger = logging.Default()
	}
	w := &Wizard{
		catalog:   catalog,
		resolver:  resolver,
		submitter: submitter,
		logger:    logger,
		req:       DefaultRequirements(),
		step:      StepSelectDoctor,
		listeners: make(map[int]Listener),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Kind reports which mutation the wizard submits.
func (w *Wizard) Kind() Kind { return w.submitter.Kind() }

// Subscribe registers l and returns a function that removes it.
func (w *Wizard) Subscribe(l Listener) func() {
	w.mu.Lock()
	id := w.nextListener
	w.nextListener++
	w.listeners[id] = l
	w.mu.Unlock()
	return func() {
		w.mu.Lock()
		delete(w.listeners, id)
		w.mu.Unlock()
	}
}

// LoadCatalog fetches specialties, services and the doctors of the current
// specialty. Failures leave the affected lists empty and are reported on the
// snapshot; the wizard stays usable and the call may be repeated.
func (w *Wizard) LoadCatalog(ctx context.Context) error {
	w.mu.Lock()
	if err := w.editableLocked(); err != nil {
		w.mu.Unlock()
		return err
	}
	specialtyID := w.sel.SpecialtyID
	gen := w.doctorsGen
	w.mu.Unlock()

	specialties, errSpecialties := w.catalog.LoadSpecialties(ctx)
	services, errServices := w.catalog.LoadServices(ctx)
	doctors, errDoctors := w.catalog.LoadDoctors(ctx, specialtyID)
	err := errors.Join(errSpecialties, errServices, errDoctors)

	w.apply(func() {
		w.specialties = specialties
		w.services = services
		if gen == w.doctorsGen {
			w.doctors = doctors
		}
		w.catalogError = ""
		if err != nil {
			w.catalogError = catalogFailureMessage
		}
	})
	return err
}

// Prefill seeds the wizard with an existing selection before any user
// interaction and resolves slots for its doctor and date. A complete selection
// lands on the confirm step; LoadCatalog should follow to fill the lists.
func (w *Wizard) Prefill(ctx context.Context, sel Selection) error {
	if sel.DoctorID <= 0 || sel.Date.IsZero() {
		return &IncompleteError{Missing: missingPair(sel.DoctorID, sel.Date)}
	}
	sel.Notes = strings.TrimSpace(sel.Notes)
	w.mu.Lock()
	if err := w.editableLocked(); err != nil {
		w.mu.Unlock()
		return err
	}
	w.sel = sel
	w.doctorsGen++
	w.step = StepConfirm
	ticket := w.beginResolveLocked()
	w.version++
	snap, listeners := w.snapshotLocked(), w.listenersLocked()
	w.mu.Unlock()
	notify(listeners, snap)

	w.finishResolve(ctx, ticket)
	return nil
}

// SelectSpecialty filters the doctor list by specialty. A doctor that does not
// belong to the new specialty is cleared along with the date and time.
func (w *Wizard) SelectSpecialty(ctx context.Context, specialtyID int) error {
	if specialtyID < 0 {
		return fmt.Errorf("%w: specialty %d", ErrInvalidSelection, specialtyID)
	}
	w.mu.Lock()
	if err := w.editableLocked(); err != nil {
		w.mu.Unlock()
		return err
	}
	if specialtyID > 0 && len(w.specialties) > 0 && !containsSpecialty(w.specialties, specialtyID) {
		w.mu.Unlock()
		return fmt.Errorf("%w: "+unknownSpecialtyFormat, ErrInvalidSelection, specialtyID)
	}
	w.sel.SpecialtyID = specialtyID
	w.doctorsGen++
	gen := w.doctorsGen
	w.doctors = nil
	w.settleLocked()
	w.version++
	snap, listeners := w.snapshotLocked(), w.listenersLocked()
	w.mu.Unlock()
	notify(listeners, snap)

	doctors, err := w.catalog.LoadDoctors(ctx, specialtyID)

	w.apply(func() {
		if gen != w.doctorsGen {
			return
		}
		w.doctors = doctors
		if err != nil {
			w.catalogError = catalogFailureMessage
		} else {
			w.catalogError = ""
		}
		if w.sel.DoctorID > 0 && !containsDoctor(doctors, w.sel.DoctorID) {
			w.clearDoctorLocked()
		}
		w.settleLocked()
	})
	return err
}

// SelectDoctor chooses a doctor from the current list. Changing the doctor
// clears the time and the slot list, and the date unless the flow retains it.
func (w *Wizard) SelectDoctor(ctx context.Context, doctorID int) error {
	w.mu.Lock()
	if err := w.editableLocked(); err != nil {
		w.mu.Unlock()
		return err
	}
	doctor, ok := findDoctor(w.doctors, doctorID)
	if !ok {
		w.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrInvalidSelection, unknownDoctorMessage)
	}
	if doctorID == w.sel.DoctorID {
		w.mu.Unlock()
		return nil
	}
	w.sel.DoctorID = doctorID
	if w.sel.SpecialtyID == 0 {
		w.sel.SpecialtyID = doctor.SpecialtyID
	}
	w.sel.Time = calendar.TimeOfDay{}
	if !w.retainDate {
		w.sel.Date = calendar.Date{}
	}
	w.tracker.Invalidate()
	w.slotResult = slots.Result{}
	var ticket slots.Ticket
	refetch := !w.sel.Date.IsZero()
	if refetch {
		ticket = w.beginResolveLocked()
	}
	w.settleLocked()
	w.version++
	snap, listeners := w.snapshotLocked(), w.listenersLocked()
	w.mu.Unlock()
	notify(listeners, snap)

	if refetch {
		w.finishResolve(ctx, ticket)
	}
	return nil
}

// SelectService chooses a service; 0 clears it.
func (w *Wizard) SelectService(serviceID int) error {
	return w.update(func() error {
		if serviceID < 0 || (serviceID > 0 && !containsService(w.services, serviceID)) {
			return fmt.Errorf("%w: %s", ErrInvalidSelection, unknownServiceMessage)
		}
		w.sel.ServiceID = serviceID
		return nil
	})
}

// SelectDate chooses a date for the current doctor and loads its slots. The
// time and slot list are cleared before the fetch starts. Slot failures are
// reported on the snapshot, not as an error.
func (w *Wizard) SelectDate(ctx context.Context, date calendar.Date) error {
	w.mu.Lock()
	if err := w.editableLocked(); err != nil {
		w.mu.Unlock()
		return err
	}
	if w.sel.DoctorID <= 0 {
		w.mu.Unlock()
		return &IncompleteError{Missing: []string{"doctor"}}
	}
	if date.IsZero() || date.Before(w.resolver.Today()) {
		w.mu.Unlock()
		return fmt.Errorf("%w: date %s", ErrInvalidSelection, date)
	}
	w.sel.Date = date
	w.sel.Time = calendar.TimeOfDay{}
	ticket := w.beginResolveLocked()
	w.settleLocked()
	w.version++
	snap, listeners := w.snapshotLocked(), w.listenersLocked()
	w.mu.Unlock()
	notify(listeners, snap)

	w.finishResolve(ctx, ticket)
	return nil
}

// RefreshSlots re-runs slot resolution for the current doctor and date.
func (w *Wizard) RefreshSlots(ctx context.Context) error {
	w.mu.Lock()
	if err := w.editableLocked(); err != nil {
		w.mu.Unlock()
		return err
	}
	if w.sel.DoctorID <= 0 || w.sel.Date.IsZero() {
		missing := missingPair(w.sel.DoctorID, w.sel.Date)
		w.mu.Unlock()
		return &IncompleteError{Missing: missing}
	}
	// The step settles in finishResolve once the fresh list is in.
	ticket := w.beginResolveLocked()
	w.version++
	snap, listeners := w.snapshotLocked(), w.listenersLocked()
	w.mu.Unlock()
	notify(listeners, snap)

	w.finishResolve(ctx, ticket)
	return nil
}

// AvailableDates lists the upcoming dates on which the current doctor works.
func (w *Wizard) AvailableDates(ctx context.Context) ([]calendar.Date, error) {
	w.mu.Lock()
	doctorID := w.sel.DoctorID
	w.mu.Unlock()
	if doctorID <= 0 {
		return nil, &IncompleteError{Missing: []string{"doctor"}}
	}
	return w.resolver.UpcomingDates(ctx, doctorID)
}

// SelectTime chooses one of the currently offered slots, or the pinned slot.
func (w *Wizard) SelectTime(t calendar.TimeOfDay) error {
	return w.update(func() error {
		if w.sel.DoctorID <= 0 || w.sel.Date.IsZero() {
			return &IncompleteError{Missing: missingPair(w.sel.DoctorID, w.sel.Date)}
		}
		if t.IsZero() {
			w.sel.Time = calendar.TimeOfDay{}
			return nil
		}
		if w.pinned.matches(w.sel.DoctorID, w.sel.Date, t) {
			w.sel.Time = t
			return nil
		}
		if w.slotResult.State == slots.StateLoading {
			return ErrSlotsLoading
		}
		if !w.slotCurrentLocked() || !w.slotResult.Has(t) {
			return fmt.Errorf("%w: %s", ErrSlotUnavailable, t)
		}
		w.sel.Time = t
		return nil
	})
}

// SetNotes stores a free-text note for the clinic.
func (w *Wizard) SetNotes(notes string) error {
	notes = strings.TrimSpace(notes)
	if utf8.RuneCountInString(notes) > maxNotesLength {
		return fmt.Errorf("%w: notes exceed %d characters", ErrInvalidSelection, maxNotesLength)
	}
	return w.update(func() error {
		w.sel.Notes = notes
		return nil
	})
}

// Next advances one step when the current step is complete. An incomplete step
// is left unchanged and ErrStepIncomplete is returned.
func (w *Wizard) Next() error {
	return w.update(func() error {
		switch w.step {
		case StepSelectDoctor:
			if !w.sel.doctorComplete(w.req) {
				return &IncompleteError{Missing: w.sel.Missing(w.req)}
			}
			w.step = StepSelectDateTime
			return nil
		case StepSelectDateTime:
			if !w.dateTimeCompleteLocked() {
				return &IncompleteError{Missing: missingDateTime(w.sel)}
			}
			w.step = StepConfirm
			return nil
		case StepConfirm:
			return fmt.Errorf("%w: confirm is the last editable step", ErrInvalidTransition)
		case StepSubmitting, StepSuccess, StepFailed:
			return fmt.Errorf("%w: %s", ErrInvalidTransition, w.step)
		default:
			return fmt.Errorf("%w: %s", ErrInvalidTransition, w.step)
		}
	})
}

// Back returns to the previous step. Selections are kept.
func (w *Wizard) Back() error {
	return w.update(func() error {
		switch w.step {
		case StepSelectDoctor:
			return nil
		case StepSelectDateTime:
			w.step = StepSelectDoctor
			return nil
		case StepConfirm:
			w.step = StepSelectDateTime
			return nil
		case StepSubmitting, StepSuccess, StepFailed:
			return fmt.Errorf("%w: %s", ErrInvalidTransition, w.step)
		default:
			return fmt.Errorf("%w: %s", ErrInvalidTransition, w.step)
		}
	})
}

// Submit sends the confirmed selection. Concurrent or repeated calls never reach
// the API twice: while a submission runs they fail with ErrSubmissionInFlight,
// after success with ErrAlreadySubmitted. A failed submission returns a
// *SubmissionError, keeps every selection, and refreshes the slot list; when the
// chosen time has gone the wizard moves back to the date/time step.
func (w *Wizard) Submit(ctx context.Context) (Receipt, error) {
	w.mu.Lock()
	if err := w.editableLocked(); err != nil {
		w.mu.Unlock()
		return Receipt{}, err
	}
	if w.step != StepConfirm {
		w.mu.Unlock()
		return Receipt{}, fmt.Errorf("%w: submit from %s", ErrInvalidTransition, w.step)
	}
	if !w.sel.doctorComplete(w.req) || !w.dateTimeCompleteLocked() {
		missing := w.sel.Missing(w.req)
		w.mu.Unlock()
		return Receipt{}, &IncompleteError{Missing: missing}
	}
	sel := w.sel
	w.step = StepSubmitting
	w.failure = nil
	w.version++
	snap, listeners := w.snapshotLocked(), w.listenersLocked()
	w.mu.Unlock()
	notify(listeners, snap)

	kind := w.submitter.Kind()
	ctx, span := tracer.Start(ctx, "booking.submit")
	span.SetAttributes(
		attribute.String("booking.kind", string(kind)),
		attribute.Int("doctor.id", sel.DoctorID),
		attribute.String("slot.date", sel.Date.String()),
		attribute.String("slot.time", sel.Time.String()),
	)
	receipt, err := w.submitter.Submit(ctx, sel)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetAttributes(attribute.Int("appointment.id", receipt.AppointmentID))
	}
	span.End()
	w.metrics.ObserveSubmission(string(kind), err == nil)

	if err == nil {
		w.logger.Info("appointment submitted", "kind", kind, "appointment_id", receipt.AppointmentID, "doctor_id", sel.DoctorID, "date", sel.Date.String(), "time", sel.Time.String())
		w.apply(func() {
			w.step = StepSuccess
			r := receipt
			w.receipt = &r
		})
		return receipt, nil
	}

	subErr := &SubmissionError{Kind: kind, Message: clinicapi.UserMessage(err, GenericFailureMessage), Err: err}
	w.logger.Warn("appointment submission failed", "kind", kind, "doctor_id", sel.DoctorID, "date", sel.Date.String(), "time", sel.Time.String(), "error", err)
	w.mu.Lock()
	w.step = StepConfirm
	w.failure = &Failure{Message: subErr.Message, StatusCode: statusCode(err)}
	// Fresh slots before a retry is possible.
	ticket := w.beginResolveLocked()
	w.version++
	snap, listeners = w.snapshotLocked(), w.listenersLocked()
	w.mu.Unlock()
	notify(listeners, snap)

	res, applied := w.finishResolve(ctx, ticket)
	if applied && res.State != slots.StateFailed && !res.Has(sel.Time) && !w.pinned.matches(sel.DoctorID, sel.Date, sel.Time) {
		subErr.SlotTaken = true
		w.apply(func() {
			if w.failure != nil {
				w.failure.SlotTaken = true
			}
		})
	}
	return Receipt{}, subErr
}

// beginResolveLocked supersedes every earlier slot fetch and marks the slot
// list as loading for the current doctor and date.
func (w *Wizard) beginResolveLocked() slots.Ticket {
	ticket := w.tracker.Begin(w.sel.DoctorID, w.sel.Date)
	w.slotResult = slots.Result{DoctorID: ticket.DoctorID, Date: ticket.Date, State: slots.StateLoading}
	return ticket
}

// finishResolve fetches slots for ticket and applies them only if no newer
// fetch or selection change happened meanwhile.
func (w *Wizard) finishResolve(ctx context.Context, ticket slots.Ticket) (slots.Result, bool) {
	res := w.resolver.Resolve(ctx, ticket.DoctorID, ticket.Date)

	w.mu.Lock()
	if !w.tracker.IsCurrent(ticket) || w.sel.DoctorID != ticket.DoctorID || !w.sel.Date.Equal(ticket.Date) {
		w.mu.Unlock()
		w.metrics.ObserveStaleSlots()
		w.logger.Debug("discarded stale slot result", "doctor_id", ticket.DoctorID, "date", ticket.Date.String())
		return res, false
	}
	w.slotResult = res
	if res.State != slots.StateFailed && !w.sel.Time.IsZero() && !w.timeValidLocked(w.sel.Time) {
		w.sel.Time = calendar.TimeOfDay{}
	}
	w.settleLocked()
	w.version++
	snap, listeners := w.snapshotLocked(), w.listenersLocked()
	w.mu.Unlock()
	notify(listeners, snap)
	return res, true
}

// update runs fn under the lock when the wizard is editable and notifies
// listeners when it succeeds.
func (w *Wizard) update(fn func() error) error {
	w.mu.Lock()
	if err := w.editableLocked(); err != nil {
		w.mu.Unlock()
		return err
	}
	if err := fn(); err != nil {
		w.mu.Unlock()
		return err
	}
	w.settleLocked()
	w.version++
	snap, listeners := w.snapshotLocked(), w.listenersLocked()
	w.mu.Unlock()
	notify(listeners, snap)
	return nil
}

// apply runs fn under the lock unconditionally and notifies listeners.
func (w *Wizard) apply(fn func()) {
	w.mu.Lock()
	fn()
	w.version++
	snap, listeners := w.snapshotLocked(), w.listenersLocked()
	w.mu.Unlock()
	notify(listeners, snap)
}

func (w *Wizard) editableLocked() error {
	switch w.step {
	case StepSubmitting:
		return ErrSubmissionInFlight
	case StepSuccess:
		return ErrAlreadySubmitted
	case StepSelectDoctor, StepSelectDateTime, StepConfirm, StepFailed:
		return nil
	default:
		return nil
	}
}

// settleLocked pulls the step back to the earliest incomplete one. It never
// moves forward.
func (w *Wizard) settleLocked() {
	switch w.step {
	case StepSelectDateTime, StepConfirm:
		if !w.sel.doctorComplete(w.req) {
			w.step = StepSelectDoctor
			return
		}
		if w.step == StepConfirm && !w.dateTimeCompleteLocked() {
			w.step = StepSelectDateTime
		}
	case StepSelectDoctor, StepSubmitting, StepSuccess, StepFailed:
	}
}

func (w *Wizard) dateTimeCompleteLocked() bool {
	if w.sel.Date.IsZero() || w.sel.Time.IsZero() {
		return false
	}
	return w.timeValidLocked(w.sel.Time)
}

func (w *Wizard) timeValidLocked(t calendar.TimeOfDay) bool {
	if w.pinned.matches(w.sel.DoctorID, w.sel.Date, t) {
		return true
	}
	return w.slotCurrentLocked() && w.slotResult.Has(t)
}

// slotCurrentLocked reports whether the loaded slot list belongs to the selection.
func (w *Wizard) slotCurrentLocked() bool {
	return w.slotResult.State == slots.StateReady &&
		w.slotResult.DoctorID == w.sel.DoctorID &&
		w.slotResult.Date.Equal(w.sel.Date)
}

func (w *Wizard) clearDoctorLocked() {
	w.sel.DoctorID = 0
	w.sel.Time = calendar.TimeOfDay{}
	if !w.retainDate {
		w.sel.Date = calendar.Date{}
	}
	w.tracker.Invalidate()
	w.slotResult = slots.Result{}
}

func (w *Wizard) listenersLocked() []Listener {
	if len(w.listeners) == 0 {
		return nil
	}
	out := make([]Listener, 0, len(w.listeners))
	for _, l := range w.listeners {
		out = append(out, l)
	}
	return out
}

func notify(listeners []Listener, snap Snapshot) {
	for _, l := range listeners {
		l(snap)
	}
}

func missingPair(doctorID int, date calendar.Date) []string {
	var out []string
	if doctorID <= 0 {
		out = append(out, "doctor")
	}
	if date.IsZero() {
		out = append(out, "date")
	}
	return out
}

func missingDateTime(sel Selection) []string {
	var out []string
	if sel.Date.IsZero() {
		out = append(out, "date")
	}
	out = append(out, "time")
	return out
}

func statusCode(err error) int {
	var apiErr *clinicapi.APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}

func containsSpecialty(list []clinicapi.Specialty, id int) bool {
	for _, s := range list {
		if s.ID == id {
			return true
		}
	}
	return false
}

func containsService(list []clinicapi.Service, id int) bool {
	for _, s := range list {
		if s.ID == id {
			return true
		}
	}
	return false
}

func containsDoctor(list []clinicapi.Doctor, id int) bool {
	_, ok := findDoctor(list, id)
	return ok
}

func findDoctor(list []clinicapi.Doctor, id int) (clinicapi.Doctor, bool) {
	for _, d := range list {
		if d.ID == id {
			return d, true
		}
	}
	return clinicapi.Doctor{}, false
}
