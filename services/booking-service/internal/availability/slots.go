package availability

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/model"
)

// Clock is a wall-clock time of day with no date and no offset.
type Clock struct {
	Hour, Minute, Second int
}

func (c Clock) sinceMidnight() time.Duration {
	return time.Duration(c.Hour)*time.Hour + time.Duration(c.Minute)*time.Minute + time.Duration(c.Second)*time.Second
}

func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d:%02d", c.Hour, c.Minute, c.Second)
}

// ParseClock accepts "HH:MM" and "HH:MM:SS". "24:00" is allowed as a closing time.
func ParseClock(s string) (Clock, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) == 2 {
		parts = append(parts, "00")
	}
	if len(parts) != 3 {
		return Clock{}, fmt.Errorf("invalid time of day %q", s)
	}
	var v [3]int
	for i, p := range parts {
		if len(p) != 2 {
			return Clock{}, fmt.Errorf("invalid time of day %q", s)
		}
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 {
			return Clock{}, fmt.Errorf("invalid time of day %q", s)
		}
		v[i] = n
	}
	c := Clock{Hour: v[0], Minute: v[1], Second: v[2]}
	if c.Hour == 24 && c.Minute == 0 && c.Second == 0 {
		return c, nil
	}
	if c.Hour > 23 || c.Minute > 59 || c.Second > 59 {
		return Clock{}, fmt.Errorf("time of day out of range %q", s)
	}
	return c, nil
}

// Window is the half-open interval [Start, End) during which an entity works on one day.
type Window struct {
	Start time.Time
	End   time.Time
}

func (w Window) Len() time.Duration { return w.End.Sub(w.Start) }

// DayStart truncates day to local midnight in its own location.
func DayStart(day time.Time) time.Time {
	y, m, d := day.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, day.Location())
}

// DayBounds returns [00:00, next day's 00:00) so appointments spanning midnight are seen from both days.
func DayBounds(day time.Time) (time.Time, time.Time) {
	y, m, d := day.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, day.Location()), time.Date(y, m, d+1, 0, 0, 0, 0, day.Location())
}

// WindowOn combines the calendar day of day with the working-hour strings in day's location.
func WindowOn(day time.Time, wh model.WorkingHours) (Window, error) {
	start, err := ParseClock(wh.StartTime)
	if err != nil {
		return Window{}, &ConfigurationError{EntityID: wh.EntityID, DayOfWeek: wh.DayOfWeek, Err: err}
	}
	end, err := ParseClock(wh.EndTime)
	if err != nil {
		return Window{}, &ConfigurationError{EntityID: wh.EntityID, DayOfWeek: wh.DayOfWeek, Err: err}
	}
	if end.sinceMidnight() <= start.sinceMidnight() {
		return Window{}, &ConfigurationError{
			EntityID:  wh.EntityID,
			DayOfWeek: wh.DayOfWeek,
			Err:       fmt.Errorf("start %s is not before end %s", start, end),
		}
	}
	midnight := DayStart(day)
	return Window{Start: midnight.Add(start.sinceMidnight()), End: midnight.Add(end.sinceMidnight())}, nil
}

// GenerateSlots lays back-to-back slots of length d from the window opening.
// A slot is emitted only when it ends at or before the window close.
func GenerateSlots(w Window, d time.Duration) []time.Time {
	if d <= 0 || !w.End.After(w.Start) {
		return nil
	}
	slots := make([]time.Time, 0, int(w.Len()/d))
	for t := w.Start; !t.Add(d).After(w.End); t = t.Add(d) {
		slots = append(slots, t)
	}
	return slots
}

// FilterOverlapping drops every slot [s, s+d) that intersects an active appointment.
// Appointments in other statuses are ignored. The input slice is not modified.
func FilterOverlapping(slots []time.Time, d time.Duration, appts []model.Appointment) []time.Time {
	out := make([]time.Time, 0, len(slots))
	for _, s := range slots {
		if !blocked(s, s.Add(d), appts) {
			out = append(out, s)
		}
	}
	return out
}

func blocked(start, end time.Time, appts []model.Appointment) bool {
	for _, a := range appts {
		if a.Status.IsActive() && a.Overlaps(start, end) {
			return true
		}
	}
	return false
}
