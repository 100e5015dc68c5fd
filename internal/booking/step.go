package booking

import "fmt"

// Step is a position in the booking wizard.
type Step int

const (
	StepSelectDoctor Step = iota + 1
	StepSelectDateTime
	StepConfirm
	StepSubmitting
	StepSuccess
	// StepFailed is reported for a failed submission; the wizard itself settles
	// back in an editable step.
	StepFailed
)

func (s Step) String() string {
	switch s {
	case StepSelectDoctor:
		return "select_doctor"
	case StepSelectDateTime:
		return "select_datetime"
	case StepConfirm:
		return "confirm"
	case StepSubmitting:
		return "submitting"
	case StepSuccess:
		return "success"
	case StepFailed:
		return "failed"
	default:
		return fmt.Sprintf("Step(%d)", int(s))
	}
}

func (s Step) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Kind distinguishes the mutation a wizard submits.
type Kind string

const (
	KindCreate     Kind = "create"
	KindReschedule Kind = "reschedule"
	KindCancel     Kind = "cancel"
)
