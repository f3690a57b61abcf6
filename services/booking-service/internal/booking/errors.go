package booking

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrInvalidRequest = errors.New("invalid booking request")
	ErrInvalidService = errors.New("service cannot be booked")
	ErrInPast         = errors.New("requested start is in the past")
)

// SlotNoLongerAvailableError is retryable: the caller should pick another slot.
type SlotNoLongerAvailableError struct {
	EntityID string
	Start    time.Time
}

func (e *SlotNoLongerAvailableError) Error() string {
	return fmt.Sprintf("slot %s for %s is no longer available", e.Start.Format(time.RFC3339), e.EntityID)
}

func IsSlotNoLongerAvailable(err error) bool {
	var target *SlotNoLongerAvailableError
	return errors.As(err, &target)
}
