package availability

import (
	"errors"
	"fmt"
	"time"
)

var ErrInvalidQuery = errors.New("invalid availability query")

// ConfigurationError marks stored working hours that cannot be turned into a window.
// The day is treated as closed.
type ConfigurationError struct {
	EntityID  string
	DayOfWeek time.Weekday
	Err       error
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("working hours for %s on %s: %v", e.EntityID, e.DayOfWeek, e.Err)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// DataUnavailableError means appointments exist but the caller may not read them.
type DataUnavailableError struct {
	Err error
}

func (e *DataUnavailableError) Error() string {
	if e.Err == nil {
		return "appointment data unavailable"
	}
	return "appointment data unavailable: " + e.Err.Error()
}

func (e *DataUnavailableError) Unwrap() error { return e.Err }

func IsDataUnavailable(err error) bool {
	var target *DataUnavailableError
	return errors.As(err, &target)
}
