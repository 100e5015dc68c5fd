// Package clinicapi is the JSON client for the external clinic REST API that owns
// specialties, doctors, work shifts and appointments.
package clinicapi

import "github.com/wolfman30/clinic-booking/internal/calendar"

// Specialty is a medical specialty offered by the clinic.
type Specialty struct {
	ID          int    `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// Doctor is a bookable practitioner. Many doctors share one specialty.
type Doctor struct {
	ID          int    `json:"id"`
	Name        string `json:"name"`
	Phone       string `json:"phone,omitempty"`
	ImageURL    string `json:"imageUrl,omitempty"`
	SpecialtyID int    `json:"specialtyId"`
}

// Service is a billable clinic service.
type Service struct {
	ID              int     `json:"id"`
	Name            string  `json:"name"`
	Description     string  `json:"description,omitempty"`
	Price           float64 `json:"price,omitempty"`
	DurationMinutes int     `json:"durationMinutes,omitempty"`
}

// WorkShift is one contiguous working interval of a doctor on one date.
type WorkShift struct {
	ShiftID   int                `json:"shiftId"`
	DoctorID  int                `json:"doctorId"`
	Date      calendar.Date      `json:"date"`
	StartTime calendar.TimeOfDay `json:"startTime"`
	EndTime   calendar.TimeOfDay `json:"endTime"`
}

// Contains reports whether t falls inside [StartTime, EndTime).
func (s WorkShift) Contains(t calendar.TimeOfDay) bool {
	return !t.Before(s.StartTime) && t.Before(s.EndTime)
}

// Appointment is a patient booking held by the clinic API.
type Appointment struct {
	AppointmentID int                `json:"appointmentId"`
	DoctorID      int                `json:"doctorId"`
	Date          calendar.Date      `json:"date"`
	Time          calendar.TimeOfDay `json:"time"`
	Status        AppointmentStatus  `json:"status"`
	PatientID     int                `json:"patientId"`
	Notes         string             `json:"notes,omitempty"`
}

// CreateAppointmentRequest is the body of POST /booking/appointments.
type CreateAppointmentRequest struct {
	DoctorID  int                `json:"doctorId"`
	Date      calendar.Date      `json:"date"`
	Time      calendar.TimeOfDay `json:"time"`
	ServiceID int                `json:"serviceId,omitempty"`
	Notes     string             `json:"notes,omitempty"`
}

// RescheduleRequest is the body of PUT /appointments/{id}/reschedule.
type RescheduleRequest struct {
	Date     calendar.Date      `json:"date"`
	Time     calendar.TimeOfDay `json:"time"`
	DoctorID int                `json:"doctorId"`
	Reason   string             `json:"reason,omitempty"`
}

type cancelRequest struct {
	Reason string `json:"reason,omitempty"`
}
