package calendar

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

const minutesPerDay = 24 * 60

// TimeOfDay is a minute-precision wall clock time. The zero value means "not chosen";
// midnight is represented explicitly by Clock(0, 0).
type TimeOfDay struct {
	minutes int
	set     bool
}

// Clock builds a TimeOfDay from hours and minutes.
func Clock(hour, minute int) TimeOfDay {
	m := ((hour*60+minute)%minutesPerDay + minutesPerDay) % minutesPerDay
	return TimeOfDay{minutes: m, set: true}
}

// ClockOf returns the wall clock time of t in t's location, truncated to the minute.
func ClockOf(t time.Time) TimeOfDay {
	return Clock(t.Hour(), t.Minute())
}

// ParseTimeOfDay accepts "HH:MM" and "HH:MM:SS"; seconds are dropped.
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	s = strings.TrimSpace(s)
	for _, layout := range []string{"15:04", "15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return Clock(t.Hour(), t.Minute()), nil
		}
	}
	return TimeOfDay{}, fmt.Errorf("calendar: invalid time of day %q", s)
}

// MustTime parses s and panics on malformed input. Intended for constants and tests.
func MustTime(s string) TimeOfDay {
	t, err := ParseTimeOfDay(s)
	if err != nil {
		panic(err)
	}
	return t
}

func (t TimeOfDay) IsZero() bool { return !t.set }
func (t TimeOfDay) Hour() int    { return t.minutes / 60 }
func (t TimeOfDay) Minute() int  { return t.minutes % 60 }

// Minutes returns minutes since midnight.
func (t TimeOfDay) Minutes() int { return t.minutes }

func (t TimeOfDay) String() string {
	if !t.set {
		return ""
	}
	return fmt.Sprintf("%02d:%02d", t.Hour(), t.Minute())
}

// Add returns t shifted by d and whether the result stayed within the same day.
func (t TimeOfDay) Add(d time.Duration) (TimeOfDay, bool) {
	m := t.minutes + int(d/time.Minute)
	if m < 0 || m >= minutesPerDay {
		return TimeOfDay{}, false
	}
	return TimeOfDay{minutes: m, set: true}, true
}

func (t TimeOfDay) Compare(o TimeOfDay) int { return cmpInt(t.minutes, o.minutes) }
func (t TimeOfDay) Before(o TimeOfDay) bool { return t.minutes < o.minutes }
func (t TimeOfDay) Equal(o TimeOfDay) bool  { return t.set == o.set && t.minutes == o.minutes }

func (t TimeOfDay) MarshalJSON() ([]byte, error) {
	if !t.set {
		return []byte("null"), nil
	}
	return json.Marshal(t.String())
}

func (t *TimeOfDay) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*t = TimeOfDay{}
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("calendar: time of day must be a string: %w", err)
	}
	if s == "" {
		*t = TimeOfDay{}
		return nil
	}
	parsed, err := ParseTimeOfDay(s)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}
