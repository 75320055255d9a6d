package scheduling

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidInput marks a malformed request: missing fields, no services,
	// non-positive price or duration, a bad rule body or recurrence.
	ErrInvalidInput = errors.New("invalid input")
	ErrNotFound     = errors.New("not found")

	// ErrRulesUnavailable and ErrAppointmentsUnavailable mean a data source
	// could not be read. Validation never proceeds without its inputs.
	ErrRulesUnavailable        = errors.New("configuration rules unavailable")
	ErrAppointmentsUnavailable = errors.New("existing appointments unavailable")

	ErrSlotUnavailable   = errors.New("slot unavailable")
	ErrInvalidTransition = errors.New("invalid status transition")
)

func invalidf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}

// UnavailableError is returned when persisting an appointment whose slot the
// rules reject. It matches ErrSlotUnavailable under errors.Is.
type UnavailableError struct {
	Reason Reason
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("%s: %s", ErrSlotUnavailable, e.Reason.Describe())
}

func (e *UnavailableError) Is(target error) bool {
	return target == ErrSlotUnavailable
}
