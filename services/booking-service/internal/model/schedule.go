package model

import (
	"errors"
	"time"
)

// ErrForeignEntity means a calendar entity is already owned by a different business.
var ErrForeignEntity = errors.New("entity belongs to another business")

// WorkingHours is one weekly window for an entity. Times are wall-clock "HH:MM" or "HH:MM:SS".
type WorkingHours struct {
	EntityID string
	// BusinessID owns the entity's calendar.
	BusinessID string
	DayOfWeek  time.Weekday
	StartTime  string
	EndTime    string
}

type Service struct {
	ID              string
	BusinessID      string
	Name            string
	DurationMinutes int
	PriceCents      int64
	Active          bool
}

func (s Service) Duration() time.Duration {
	return time.Duration(s.DurationMinutes) * time.Minute
}

// CatalogUpdate replaces an entity's weekly hours and upserts the business's services.
// Days missing from WorkingHours become closed.
type CatalogUpdate struct {
	BusinessID   string
	EntityID     string
	WorkingHours []WorkingHours
	Services     []Service
}
