// Package catalog loads the reference lists a patient picks from before booking:
// specialties, doctors and services.
package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/wolfman30/clinic-booking/internal/clinicapi"
	"github.com/wolfman30/clinic-booking/internal/observability/metrics"
	"github.com/wolfman30/clinic-booking/pkg/logging"
)

// ErrUnavailable marks a catalog list that could not be fetched. The accompanying
// list is empty, not nil, so selectors render empty with a retry affordance.
var ErrUnavailable = errors.New("catalog: list unavailable")

const (
	cacheVersion    = "v1"
	defaultCacheTTL = 5 * time.Minute
)

// API is the subset of the clinic client the loader needs.
type API interface {
	ListSpecialties(ctx context.Context) ([]clinicapi.Specialty, error)
	ListDoctors(ctx context.Context, specialtyID int) ([]clinicapi.Doctor, error)
	ListServices(ctx context.Context) ([]clinicapi.Service, error)
}

// Loader fetches catalog lists with cache-on-fetch.
type Loader struct {
	api     API
	cache   Cache
	ttl     time.Duration
	logger  *logging.Logger
	metrics *metrics.BookingMetrics
}

type Option func(*Loader)

// WithCache enables caching of successful list responses.
func WithCache(c Cache, ttl time.Duration) Option {
	return func(l *Loader) {
		l.cache = c
		if ttl > 0 {
			l.ttl = ttl
		}
	}
}

func WithMetrics(m *metrics.BookingMetrics) Option {
	return func(l *Loader) { l.metrics = m }
}

func NewLoader(api API, logger *logging.Logger, opts ...Option) *Loader {
	if logger == nil {
		logger = logging.Default()
	}
	l := &Loader{api: api, ttl: defaultCacheTTL, logger: logger}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// LoadSpecialties returns every specialty.
func (l *Loader) LoadSpecialties(ctx context.Context) ([]clinicapi.Specialty, error) {
	return load(ctx, l, "specialties", "specialties", l.api.ListSpecialties)
}

// LoadDoctors returns the doctors of one specialty, or every doctor when
// specialtyID is 0. The result is filtered locally regardless of what the API did.
func (l *Loader) LoadDoctors(ctx context.Context, specialtyID int) ([]clinicapi.Doctor, error) {
	key := "doctors:all"
	if specialtyID > 0 {
		key = fmt.Sprintf("doctors:specialty:%d", specialtyID)
	}
	doctors, err := load(ctx, l, "doctors", key, func(ctx context.Context) ([]clinicapi.Doctor, error) {
		return l.api.ListDoctors(ctx, specialtyID)
	})
	if err != nil {
		return doctors, err
	}
	return FilterDoctorsBySpecialty(doctors, specialtyID), nil
}

// LoadServices returns the flat service list.
func (l *Loader) LoadServices(ctx context.Context) ([]clinicapi.Service, error) {
	return load(ctx, l, "services", "services", l.api.ListServices)
}

// FindDoctor looks up a doctor by id in the full doctor list.
func (l *Loader) FindDoctor(ctx context.Context, doctorID int) (clinicapi.Doctor, bool, error) {
	doctors, err := l.LoadDoctors(ctx, 0)
	if err != nil {
		return clinicapi.Doctor{}, false, err
	}
	for _, d := range doctors {
		if d.ID == doctorID {
			return d, true, nil
		}
	}
	return clinicapi.Doctor{}, false, nil
}

// FilterDoctorsBySpecialty keeps doctors whose SpecialtyID matches. A zero
// specialtyID keeps everyone. The result is never nil.
func FilterDoctorsBySpecialty(doctors []clinicapi.Doctor, specialtyID int) []clinicapi.Doctor {
	out := make([]clinicapi.Doctor, 0, len(doctors))
	for _, d := range doctors {
		if specialtyID == 0 || d.SpecialtyID == specialtyID {
			out = append(out, d)
		}
	}
	return out
}

func load[T any](ctx context.Context, l *Loader, resource, key string, fetch func(context.Context) ([]T, error)) ([]T, error) {
	cacheKey := cacheVersion + ":" + key
	if l.cache != nil {
		data, err := l.cache.Get(ctx, cacheKey)
		switch {
		case err == nil:
			var cached []T
			if jsonErr := json.Unmarshal(data, &cached); jsonErr == nil {
				l.metrics.ObserveCatalogLoad(resource, "cache")
				if cached == nil {
					cached = []T{}
				}
				return cached, nil
			}
			l.logger.Warn("catalog cache entry unreadable", "key", cacheKey)
		case !errors.Is(err, ErrCacheMiss):
			l.logger.Warn("catalog cache read failed", "key", cacheKey, "error", err)
		}
	}

	items, err := fetch(ctx)
	if err != nil {
		l.metrics.ObserveCatalogLoad(resource, "error")
		l.logger.Warn("catalog load failed", "resource", resource, "error", err)
		return []T{}, fmt.Errorf("%w: %s: %w", ErrUnavailable, resource, err)
	}
	if items == nil {
		items = []T{}
	}
	l.metrics.ObserveCatalogLoad(resource, "api")

	if l.cache != nil {
		if data, err := json.Marshal(items); err == nil {
			if err := l.cache.Set(ctx, cacheKey, data, l.ttl); err != nil {
				l.logger.Warn("catalog cache write failed", "key", cacheKey, "error", err)
			}
		}
	}
	return items, nil
}
