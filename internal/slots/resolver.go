// Package slots turns a doctor's work shifts and the clinic's availability query
// into the list of times a patient may book on one date.
package slots

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/clinic-booking/internal/calendar"
	"github.com/wolfman30/clinic-booking/internal/clinicapi"
	"github.com/wolfman30/clinic-booking/internal/observability/metrics"
	"github.com/wolfman30/clinic-booking/pkg/logging"
)

var tracer = otel.Tracer("clinic.internal.slots")

// ErrInvalidRequest is reported when the doctor or date is missing.
var ErrInvalidRequest = errors.New("slots: doctor and date are required")

const (
	DefaultLeadTime    = 2 * time.Hour
	DefaultGranularity = 30 * time.Minute
	DefaultTimezone    = "Asia/Ho_Chi_Minh"
)

// Mode selects where slot times come from.
type Mode int

const (
	// ModeServer asks the availability endpoint, which excludes booked slots.
	ModeServer Mode = iota
	// ModeLocal enumerates slots from shift bounds without conflict exclusion.
	ModeLocal
)

func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "server":
		return ModeServer, nil
	case "local":
		return ModeLocal, nil
	default:
		return ModeServer, fmt.Errorf("slots: unknown mode %q", s)
	}
}

func (m Mode) String() string {
	switch m {
	case ModeServer:
		return "server"
	case ModeLocal:
		return "local"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// API is the subset of the clinic client the resolver needs.
type API interface {
	ListWorkShifts(ctx context.Context, doctorID int) ([]clinicapi.WorkShift, error)
	ListAvailableSlots(ctx context.Context, doctorID int, date calendar.Date) ([]calendar.TimeOfDay, error)
}

// Config tunes slot resolution.
type Config struct {
	LeadTime    time.Duration
	Granularity time.Duration
	Location    *time.Location
	Mode        Mode
	Now         func() time.Time
}

func (c Config) withDefaults() Config {
	if c.LeadTime < 0 {
		c.LeadTime = 0
	}
	if c.Granularity < time.Minute {
		c.Granularity = DefaultGranularity
	}
	if c.Location == nil {
		loc, err := time.LoadLocation(DefaultTimezone)
		if err != nil {
			loc = time.UTC
		}
		c.Location = loc
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	return c
}

// DefaultConfig returns the production defaults: 2h lead, 30 minute slots,
// server mode, clinic time zone.
func DefaultConfig() Config {
	return Config{LeadTime: DefaultLeadTime}.withDefaults()
}

// Resolver computes bookable slots for one (doctor, date) pair.
type Resolver struct {
	api     API
	cfg     Config
	logger  *logging.Logger
	metrics *metrics.BookingMetrics
}

func NewResolver(api API, cfg Config, logger *logging.Logger, m *metrics.BookingMetrics) *Resolver {
	if logger == nil {
		logger = logging.Default()
	}
	return &Resolver{api: api, cfg: cfg.withDefaults(), logger: logger, metrics: m}
}

// Location is the clinic time zone used for lead-time comparisons.
func (r *Resolver) Location() *time.Location { return r.cfg.Location }

// Today is the current civil date in the clinic time zone.
func (r *Resolver) Today() calendar.Date {
	return calendar.Today(r.cfg.Now(), r.cfg.Location)
}

// Resolve fetches shifts and availability for doctorID on date. It never returns
// an error separately: failures are encoded as StateFailed with Err set.
func (r *Resolver) Resolve(ctx context.Context, doctorID int, date calendar.Date) Result {
	ctx, span := tracer.Start(ctx, "slots.resolve")
	defer span.End()
	span.SetAttributes(attribute.Int("doctor.id", doctorID), attribute.String("slot.date", date.String()))

	res := r.resolve(ctx, doctorID, date)
	span.SetAttributes(attribute.String("slot.state", res.State.String()), attribute.Int("slot.count", len(res.Slots)))
	if res.Err != nil {
		span.RecordError(res.Err)
	}
	r.metrics.ObserveSlotResolution(res.State.String())
	return res
}

func (r *Resolver) resolve(ctx context.Context, doctorID int, date calendar.Date) Result {
	res := Result{DoctorID: doctorID, Date: date}
	if doctorID <= 0 || date.IsZero() {
		res.State = StateFailed
		res.Err = ErrInvalidRequest
		return res
	}

	all, err := r.api.ListWorkShifts(ctx, doctorID)
	if err != nil {
		r.logger.Warn("work shift fetch failed", "doctor_id", doctorID, "date", date.String(), "error", err)
		res.State = StateFailed
		res.Err = fmt.Errorf("slots: load work shifts: %w", err)
		return res
	}
	res.Shifts = ShiftsOn(all, date)
	if len(res.Shifts) == 0 {
		res.State = StateNoShift
		return res
	}

	var candidates []calendar.TimeOfDay
	switch r.cfg.Mode {
	case ModeLocal:
		candidates = Enumerate(res.Shifts, r.cfg.Granularity)
	case ModeServer:
		candidates, err = r.api.ListAvailableSlots(ctx, doctorID, date)
		if err != nil {
			r.logger.Warn("availability fetch failed", "doctor_id", doctorID, "date", date.String(), "error", err)
			res.State = StateFailed
			res.Err = fmt.Errorf("slots: load availability: %w", err)
			return res
		}
	default:
		res.State = StateFailed
		res.Err = fmt.Errorf("slots: unsupported mode %s", r.cfg.Mode)
		return res
	}

	res.Slots = r.filter(res.Shifts, date, candidates)
	res.State = StateReady
	return res
}

// Bookable reports whether t on date lies in one of shifts and respects the lead time.
func (r *Resolver) Bookable(shifts []clinicapi.WorkShift, date calendar.Date, t calendar.TimeOfDay) bool {
	if t.IsZero() || !inShift(shifts, t) {
		return false
	}
	earliest := r.cfg.Now().In(r.cfg.Location).Add(r.cfg.LeadTime)
	return !date.At(t, r.cfg.Location).Before(earliest)
}

func (r *Resolver) filter(shifts []clinicapi.WorkShift, date calendar.Date, candidates []calendar.TimeOfDay) []calendar.TimeOfDay {
	out := make([]calendar.TimeOfDay, 0, len(candidates))
	seen := make(map[int]bool, len(candidates))
	for _, t := range candidates {
		if seen[t.Minutes()] || !r.Bookable(shifts, date, t) {
			continue
		}
		seen[t.Minutes()] = true
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}

// UpcomingDates returns the sorted distinct dates, today or later, on which the
// doctor has a registered shift.
func (r *Resolver) UpcomingDates(ctx context.Context, doctorID int) ([]calendar.Date, error) {
	if doctorID <= 0 {
		return nil, ErrInvalidRequest
	}
	shifts, err := r.api.ListWorkShifts(ctx, doctorID)
	if err != nil {
		return nil, fmt.Errorf("slots: load work shifts: %w", err)
	}
	today := r.Today()
	seen := make(map[calendar.Date]bool)
	dates := make([]calendar.Date, 0, len(shifts))
	for _, s := range shifts {
		if s.Date.Before(today) || seen[s.Date] {
			continue
		}
		seen[s.Date] = true
		dates = append(dates, s.Date)
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })
	return dates, nil
}

// ShiftsOn keeps the shifts that fall on date.
func ShiftsOn(shifts []clinicapi.WorkShift, date calendar.Date) []clinicapi.WorkShift {
	var out []clinicapi.WorkShift
	for _, s := range shifts {
		if s.Date.Equal(date) {
			out = append(out, s)
		}
	}
	return out
}

// Enumerate lists every slot start inside the shifts at the given granularity.
func Enumerate(shifts []clinicapi.WorkShift, granularity time.Duration) []calendar.TimeOfDay {
	if granularity < time.Minute {
		granularity = DefaultGranularity
	}
	var out []calendar.TimeOfDay
	for _, s := range shifts {
		if s.StartTime.IsZero() || s.EndTime.IsZero() {
			continue
		}
		for t := s.StartTime; t.Before(s.EndTime); {
			out = append(out, t)
			next, ok := t.Add(granularity)
			if !ok || !t.Before(next) {
				break
			}
			t = next
		}
	}
	return out
}

func inShift(shifts []clinicapi.WorkShift, t calendar.TimeOfDay) bool {
	for _, s := range shifts {
		if s.Contains(t) {
			return true
		}
	}
	return false
}
