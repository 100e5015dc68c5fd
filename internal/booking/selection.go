package booking

import (
	"github.com/wolfman30/clinic-booking/internal/calendar"
)

// Selection is what the patient has picked so far.
type Selection struct {
	SpecialtyID int                `json:"specialtyId,omitempty"`
	DoctorID    int                `json:"doctorId,omitempty"`
	ServiceID   int                `json:"serviceId,omitempty"`
	Date        calendar.Date      `json:"date"`
	Time        calendar.TimeOfDay `json:"time"`
	Notes       string             `json:"notes,omitempty"`
}

// Requirements decide which step-1 fields gate progress. A doctor is always required.
type Requirements struct {
	Specialty bool `json:"specialty"`
	Service   bool `json:"service"`
}

// DefaultRequirements requires a specialty and leaves the service optional.
func DefaultRequirements() Requirements {
	return Requirements{Specialty: true}
}

// PinnedSlot is a slot that stays selectable even when the availability query
// no longer lists it, e.g. the appointment's own slot during a reschedule.
type PinnedSlot struct {
	DoctorID int                `json:"doctorId"`
	Date     calendar.Date      `json:"date"`
	Time     calendar.TimeOfDay `json:"time"`
}

func (p *PinnedSlot) matches(doctorID int, date calendar.Date, t calendar.TimeOfDay) bool {
	return p != nil && p.DoctorID == doctorID && p.Date.Equal(date) && p.Time.Equal(t)
}

func (s Selection) doctorComplete(req Requirements) bool {
	if s.DoctorID <= 0 {
		return false
	}
	if req.Specialty && s.SpecialtyID <= 0 {
		return false
	}
	if req.Service && s.ServiceID <= 0 {
		return false
	}
	return true
}

// Missing lists the fields still needed to submit, in wizard order.
func (s Selection) Missing(req Requirements) []string {
	var out []string
	if req.Specialty && s.SpecialtyID <= 0 {
		out = append(out, "specialty")
	}
	if s.DoctorID <= 0 {
		out = append(out, "doctor")
	}
	if req.Service && s.ServiceID <= 0 {
		out = append(out, "service")
	}
	if s.Date.IsZero() {
		out = append(out, "date")
	}
	if s.Time.IsZero() {
		out = append(out, "time")
	}
	return out
}
