package booking

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrStepIncomplete is returned when a transition needs fields that are not set.
	ErrStepIncomplete = errors.New("booking: step is incomplete")
	// ErrInvalidTransition is returned for a transition the current step does not allow.
	ErrInvalidTransition = errors.New("booking: invalid transition")
	// ErrSubmissionInFlight is returned by any mutation while a submission is running.
	ErrSubmissionInFlight = errors.New("booking: submission already in progress")
	// ErrAlreadySubmitted is returned once the wizard has succeeded.
	ErrAlreadySubmitted = errors.New("booking: already submitted")
	// ErrInvalidSelection is returned for ids or dates that cannot be chosen.
	ErrInvalidSelection = errors.New("booking: invalid selection")
	// ErrSlotsLoading is returned when a time is picked before slots have loaded.
	ErrSlotsLoading = errors.New("booking: available times are still loading")
	// ErrSlotUnavailable is returned when a time is not in the current slot list.
	ErrSlotUnavailable = errors.New("booking: time is not available")
)

// GenericFailureMessage is shown when the server gives no usable reason.
const GenericFailureMessage = "Đặt lịch không thành công, vui lòng thử lại"

// IncompleteError names the fields a transition is waiting for.
type IncompleteError struct {
	Missing []string
}

func (e *IncompleteError) Error() string {
	return fmt.Sprintf("booking: step is incomplete: missing %s", strings.Join(e.Missing, ", "))
}

func (e *IncompleteError) Is(target error) bool { return target == ErrStepIncomplete }

// SubmissionError is a failed create/reschedule call. The wizard keeps every
// selection so the patient can retry.
type SubmissionError struct {
	Kind    Kind
	Message string
	// SlotTaken reports that the chosen time disappeared on the post-failure refresh.
	SlotTaken bool
	Err       error
}

func (e *SubmissionError) Error() string {
	return fmt.Sprintf("booking: %s failed: %v", e.Kind, e.Err)
}

func (e *SubmissionError) Unwrap() error { return e.Err }
