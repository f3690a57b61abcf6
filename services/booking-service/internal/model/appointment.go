package model

import (
	"fmt"
	"strings"
	"time"
)

type Status string

const (
	StatusPending   Status = "PENDING"
	StatusConfirmed Status = "CONFIRMED"
	StatusCompleted Status = "COMPLETED"
	StatusCancelled Status = "CANCELLED"
	StatusNoShow    Status = "NO_SHOW"
)

// ParseStatus accepts any casing.
func ParseStatus(s string) (Status, error) {
	st := Status(strings.ToUpper(strings.TrimSpace(s)))
	switch st {
	case StatusPending, StatusConfirmed, StatusCompleted, StatusCancelled, StatusNoShow:
		return st, nil
	}
	return "", fmt.Errorf("unknown appointment status %q", s)
}

// IsActive reports whether an appointment in this status blocks its time range.
func (s Status) IsActive() bool {
	return s == StatusPending || s == StatusConfirmed
}

func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusCancelled || s == StatusNoShow
}

type Appointment struct {
	ID         string
	BusinessID string
	StaffID    string
	ServiceID  string
	ClientID   string
	StartTime  time.Time
	EndTime    time.Time
	Status     Status
	// Snapshotted from the service at booking time.
	DurationMinutes int
	PriceCents      int64
	Notes           string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// EntityID is the calendar the appointment occupies: the staff member when assigned, else the business.
func (a Appointment) EntityID() string {
	if a.StaffID != "" {
		return a.StaffID
	}
	return a.BusinessID
}

// Overlaps uses half-open ranges: [start,end) and [a.StartTime,a.EndTime) overlap iff start < a.End && a.Start < end.
func (a Appointment) Overlaps(start, end time.Time) bool {
	return start.Before(a.EndTime) && a.StartTime.Before(end)
}
