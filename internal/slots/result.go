package slots

import (
	"fmt"

	"github.com/wolfman30/clinic-booking/internal/calendar"
	"github.com/wolfman30/clinic-booking/internal/clinicapi"
)

// State is the outcome of a slot resolution as the UI presents it.
type State int

const (
	StateIdle State = iota
	StateLoading
	StateReady
	StateNoShift
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateLoading:
		return "loading"
	case StateReady:
		return "ready"
	case StateNoShift:
		return "no_shift"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Result is the slot list for one (doctor, date) pair.
type Result struct {
	DoctorID int
	Date     calendar.Date
	State    State
	Slots    []calendar.TimeOfDay
	Shifts   []clinicapi.WorkShift
	Err      error
}

// FullyBooked reports a shift day with no free slot left.
func (r Result) FullyBooked() bool {
	return r.State == StateReady && len(r.Slots) == 0
}

// Has reports whether t is one of the offered slots.
func (r Result) Has(t calendar.TimeOfDay) bool {
	for _, s := range r.Slots {
		if s.Equal(t) {
			return true
		}
	}
	return false
}

// Message is the inline text shown next to the date/time control.
func (r Result) Message() string {
	switch r.State {
	case StateIdle:
		return ""
	case StateLoading:
		return "Đang tải khung giờ..."
	case StateReady:
		if len(r.Slots) == 0 {
			return "Bác sĩ đã kín lịch trong ngày này, vui lòng chọn ngày khác"
		}
		return ""
	case StateNoShift:
		return "Bác sĩ không có ca làm việc trong ngày này"
	case StateFailed:
		return "Không thể tải khung giờ trống, vui lòng thử lại"
	default:
		return ""
	}
}
