// Package clockwork resolves "now" and performs all slot and day boundary
// math for Pipkin.
//
// The calendar's timezone is mutable at runtime (it follows the user's
// resolved region), so every computation reads the current location rather
// than caching one.
package clockwork

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/pipkin-app/pipkin/internal/models"
)

// DayKeyLayout is the ISO day format used as the key of every per-day
// record map.
const DayKeyLayout = "2006-01-02"

// Slot hour boundaries. Together they partition the full day: morning
// [06,12), afternoon [12,17), evening [17,22), night [22,06).
const (
	MorningStartHour   = 6
	AfternoonStartHour = 12
	EveningStartHour   = 17
	NightStartHour     = 22
)

// Clock resolves the current instant. Injectable for tests.
type Clock interface {
	Now() time.Time
}

// SystemClock is the production Clock backed by time.Now.
type SystemClock struct{}

// Now returns the current system time.
func (SystemClock) Now() time.Time { return time.Now() }

// Calendar holds the active timezone and derives slots, intervals, and day
// keys from it. Safe for concurrent use.
type Calendar struct {
	mu  sync.RWMutex
	loc *time.Location
}

// NewCalendar creates a Calendar in the given location. A nil location
// falls back to UTC.
func NewCalendar(loc *time.Location) *Calendar {
	if loc == nil {
		loc = time.UTC
	}
	slog.Debug("Calendar created", "location", loc.String())
	return &Calendar{loc: loc}
}

// SetRegion resolves an IANA timezone name and swaps the active location.
// An unresolvable region leaves the calendar unchanged.
func (c *Calendar) SetRegion(region string) error {
	loc, err := time.LoadLocation(region)
	if err != nil {
		slog.Warn("Calendar.SetRegion: unresolvable region, keeping current location", "region", region, "error", err)
		return fmt.Errorf("failed to resolve region %q: %w", region, err)
	}
	c.mu.Lock()
	c.loc = loc
	c.mu.Unlock()
	slog.Info("Calendar.SetRegion: timezone updated", "region", region)
	return nil
}

// Location returns the currently active location.
func (c *Calendar) Location() *time.Location {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.loc
}

// DayKey formats t as an ISO day string in the active timezone.
func (c *Calendar) DayKey(t time.Time) string {
	return t.In(c.Location()).Format(DayKeyLayout)
}

// SlotFor classifies a timestamp into exactly one of the four slots.
// Total: every hour of the day maps to a slot.
func (c *Calendar) SlotFor(t time.Time) models.TimeSlot {
	hour := t.In(c.Location()).Hour()
	switch {
	case hour >= MorningStartHour && hour < AfternoonStartHour:
		return models.SlotMorning
	case hour >= AfternoonStartHour && hour < EveningStartHour:
		return models.SlotAfternoon
	case hour >= EveningStartHour && hour < NightStartHour:
		return models.SlotEvening
	default:
		return models.SlotNight
	}
}

// SlotInterval returns the half-open interval [start, end) of slot on the
// calendar day containing date. The night slot anchored at 22:00 extends
// into the following calendar day.
func (c *Calendar) SlotInterval(slot models.TimeSlot, date time.Time) (time.Time, time.Time) {
	loc := c.Location()
	d := date.In(loc)
	day := time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, loc)

	switch slot {
	case models.SlotMorning:
		return day.Add(MorningStartHour * time.Hour), day.Add(AfternoonStartHour * time.Hour)
	case models.SlotAfternoon:
		return day.Add(AfternoonStartHour * time.Hour), day.Add(EveningStartHour * time.Hour)
	case models.SlotEvening:
		return day.Add(EveningStartHour * time.Hour), day.Add(NightStartHour * time.Hour)
	default:
		// Night wraps midnight. A timestamp before 06:00 belongs to the
		// night slot that started at 22:00 the previous day.
		if d.Hour() < MorningStartHour {
			return day.Add((NightStartHour - 24) * time.Hour), day.Add(MorningStartHour * time.Hour)
		}
		return day.Add(NightStartHour * time.Hour), day.Add((24 + MorningStartHour) * time.Hour)
	}
}

// NextBoundary returns the first slot boundary strictly after now.
func (c *Calendar) NextBoundary(now time.Time) time.Time {
	loc := c.Location()
	n := now.In(loc)
	day := time.Date(n.Year(), n.Month(), n.Day(), 0, 0, 0, 0, loc)

	for _, h := range []int{MorningStartHour, AfternoonStartHour, EveningStartHour, NightStartHour} {
		b := day.Add(time.Duration(h) * time.Hour)
		if b.After(n) {
			return b
		}
	}
	return day.AddDate(0, 0, 1).Add(MorningStartHour * time.Hour)
}

// DaysBetween returns the number of fully elapsed calendar days between
// from and to in the active timezone. Negative spans collapse to 0.
func (c *Calendar) DaysBetween(from, to time.Time) int {
	loc := c.Location()
	f := from.In(loc)
	t := to.In(loc)
	fd := time.Date(f.Year(), f.Month(), f.Day(), 0, 0, 0, 0, loc)
	td := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
	// Count day steps instead of dividing by 24h so DST-shortened and
	// DST-lengthened days are still one day each.
	days := 0
	for d := fd; d.Before(td); d = d.AddDate(0, 0, 1) {
		days++
	}
	return days
}
