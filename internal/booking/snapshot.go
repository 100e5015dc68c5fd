package booking

import (
	"github.com/wolfman30/clinic-booking/internal/calendar"
	"github.com/wolfman30/clinic-booking/internal/clinicapi"
	"github.com/wolfman30/clinic-booking/internal/slots"
)

// Failure describes the last failed submission.
type Failure struct {
	Message    string `json:"message"`
	StatusCode int    `json:"statusCode,omitempty"`
	SlotTaken  bool   `json:"slotTaken,omitempty"`
}

// Snapshot is a consistent copy of the wizard state for rendering.
type Snapshot struct {
	Kind         Kind                  `json:"kind"`
	Step         Step                  `json:"step"`
	Version      uint64                `json:"version"`
	Selection    Selection             `json:"selection"`
	Requirements Requirements          `json:"requirements"`
	Missing      []string              `json:"missing,omitempty"`
	Specialties  []clinicapi.Specialty `json:"specialties"`
	Doctors      []clinicapi.Doctor    `json:"doctors"`
	Services     []clinicapi.Service   `json:"services"`
	CatalogError string                `json:"catalogError,omitempty"`
	SlotState    slots.State           `json:"slotState"`
	// Slots is empty while a fetch is in flight or after a failed fetch.
	Slots       []calendar.TimeOfDay `json:"slots"`
	SlotMessage string               `json:"slotMessage,omitempty"`
	PinnedSlot  *PinnedSlot          `json:"pinnedSlot,omitempty"`
	CanNext     bool                 `json:"canNext"`
	CanBack     bool                 `json:"canBack"`
	CanSubmit   bool                 `json:"canSubmit"`
	Receipt     *Receipt             `json:"receipt,omitempty"`
	Failure     *Failure             `json:"failure,omitempty"`
}

// Snapshot returns the current state.
func (w *Wizard) Snapshot() Snapshot {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.snapshotLocked()
}

func (w *Wizard) snapshotLocked() Snapshot {
	snap := Snapshot{
		Kind:         w.submitter.Kind(),
		Step:         w.step,
		Version:      w.version,
		Selection:    w.sel,
		Requirements: w.req,
		Missing:      w.sel.Missing(w.req),
		Specialties:  append([]clinicapi.Specialty{}, w.specialties...),
		Doctors:      append([]clinicapi.Doctor{}, w.doctors...),
		Services:     append([]clinicapi.Service{}, w.services...),
		CatalogError: w.catalogError,
		SlotState:    slots.StateIdle,
		Slots:        []calendar.TimeOfDay{},
	}
	if w.slotResult.DoctorID == w.sel.DoctorID && w.slotResult.Date.Equal(w.sel.Date) {
		snap.SlotState = w.slotResult.State
		snap.SlotMessage = w.slotResult.Message()
		if w.slotResult.State == slots.StateReady {
			snap.Slots = append(snap.Slots, w.slotResult.Slots...)
		}
	}
	if w.pinned != nil {
		p := *w.pinned
		snap.PinnedSlot = &p
	}
	switch w.step {
	case StepSelectDoctor:
		snap.CanNext = w.sel.doctorComplete(w.req)
	case StepSelectDateTime:
		snap.CanNext = w.dateTimeCompleteLocked()
		snap.CanBack = true
	case StepConfirm:
		snap.CanBack = true
		snap.CanSubmit = w.sel.doctorComplete(w.req) && w.dateTimeCompleteLocked()
	case StepSubmitting, StepSuccess, StepFailed:
	}
	if w.receipt != nil {
		r := *w.receipt
		snap.Receipt = &r
	}
	if w.failure != nil {
		f := *w.failure
		snap.Failure = &f
	}
	return snap
}
