package clinicapi

import (
	"encoding/json"
	"fmt"
	"strings"
)

// AppointmentStatus is the closed set of appointment lifecycle states.
type AppointmentStatus int

const (
	StatusPending AppointmentStatus = iota + 1
	StatusScheduled
	StatusConfirmed
	StatusCompleted
	StatusCancelled
)

// AllStatuses lists every status in lifecycle order.
var AllStatuses = []AppointmentStatus{StatusPending, StatusScheduled, StatusConfirmed, StatusCompleted, StatusCancelled}

// ParseAppointmentStatus maps the API's status name (any casing) to a status.
func ParseAppointmentStatus(s string) (AppointmentStatus, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "pending":
		return StatusPending, nil
	case "scheduled":
		return StatusScheduled, nil
	case "confirmed":
		return StatusConfirmed, nil
	case "completed":
		return StatusCompleted, nil
	case "cancelled", "canceled":
		return StatusCancelled, nil
	default:
		return 0, fmt.Errorf("clinicapi: unknown appointment status %q", s)
	}
}

func (s AppointmentStatus) String() string {
	switch s {
	case StatusPending:
		return "Pending"
	case StatusScheduled:
		return "Scheduled"
	case StatusConfirmed:
		return "Confirmed"
	case StatusCompleted:
		return "Completed"
	case StatusCancelled:
		return "Cancelled"
	default:
		return fmt.Sprintf("AppointmentStatus(%d)", int(s))
	}
}

// Label is the patient-facing Vietnamese label.
func (s AppointmentStatus) Label() string {
	switch s {
	case StatusPending:
		return "Chờ xác nhận"
	case StatusScheduled:
		return "Đã đặt lịch"
	case StatusConfirmed:
		return "Đã xác nhận"
	case StatusCompleted:
		return "Đã hoàn thành"
	case StatusCancelled:
		return "Đã hủy"
	default:
		return "Không xác định"
	}
}

// IsTerminal reports whether no further reschedule or cancel is possible.
func (s AppointmentStatus) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusCancelled:
		return true
	case StatusPending, StatusScheduled, StatusConfirmed:
		return false
	default:
		return true
	}
}

// IsActive reports whether the appointment occupies its slot.
func (s AppointmentStatus) IsActive() bool {
	switch s {
	case StatusPending, StatusScheduled, StatusConfirmed:
		return true
	case StatusCompleted, StatusCancelled:
		return false
	default:
		return false
	}
}

func (s AppointmentStatus) MarshalJSON() ([]byte, error) {
	switch s {
	case StatusPending, StatusScheduled, StatusConfirmed, StatusCompleted, StatusCancelled:
		return json.Marshal(s.String())
	default:
		return nil, fmt.Errorf("clinicapi: cannot encode %s", s)
	}
}

// UnmarshalJSON accepts either the status name or the backend's integer ordinal (0..4).
func (s *AppointmentStatus) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err == nil {
		parsed, err := ParseAppointmentStatus(name)
		if err != nil {
			return err
		}
		*s = parsed
		return nil
	}
	var ordinal int
	if err := json.Unmarshal(data, &ordinal); err != nil {
		return fmt.Errorf("clinicapi: status must be a string or integer: %s", string(data))
	}
	if ordinal < 0 || ordinal >= len(AllStatuses) {
		return fmt.Errorf("clinicapi: unknown appointment status ordinal %d", ordinal)
	}
	*s = AllStatuses[ordinal]
	return nil
}
