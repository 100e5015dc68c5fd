package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// BookingMetrics exposes counters/histograms for the booking workflow and the
// clinic API calls behind it.
type BookingMetrics struct {
	apiRequests     *prometheus.CounterVec
	apiLatency      *prometheus.HistogramVec
	slotResolutions *prometheus.CounterVec
	staleSlots      prometheus.Counter
	submissions     *prometheus.CounterVec
	catalogLoads    *prometheus.CounterVec
	activeSessions  prometheus.Gauge
}

func NewBookingMetrics(reg prometheus.Registerer) *BookingMetrics {
	m := &BookingMetrics{
		apiRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinic",
			Subsystem: "api",
			Name:      "requests_total",
			Help:      "Total clinic API requests by operation and status class",
		}, []string{"operation", "status"}),
		apiLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "clinic",
			Subsystem: "api",
			Name:      "request_duration_seconds",
			Help:      "Latency of clinic API requests",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		slotResolutions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinic",
			Subsystem: "booking",
			Name:      "slot_resolutions_total",
			Help:      "Slot resolutions by outcome (ready, no_shift, failed)",
		}, []string{"outcome"}),
		staleSlots: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "clinic",
			Subsystem: "booking",
			Name:      "stale_slot_results_total",
			Help:      "Slot results discarded because a newer doctor/date was requested",
		}),
		submissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinic",
			Subsystem: "booking",
			Name:      "submissions_total",
			Help:      "Appointment mutations by kind (create, reschedule, cancel) and outcome",
		}, []string{"kind", "outcome"}),
		catalogLoads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinic",
			Subsystem: "catalog",
			Name:      "loads_total",
			Help:      "Catalog list loads by resource and source (cache, api, error)",
		}, []string{"resource", "source"}),
		activeSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "clinic",
			Subsystem: "booking",
			Name:      "active_sessions",
			Help:      "Open booking and reschedule sessions",
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.apiRequests, m.apiLatency, m.slotResolutions, m.staleSlots, m.submissions, m.catalogLoads, m.activeSessions)
	return m
}

// ObserveAPIRequest records one clinic API call. status is the HTTP status code,
// or 0 when the request never produced a response.
func (m *BookingMetrics) ObserveAPIRequest(operation string, status int, seconds float64) {
	if m == nil {
		return
	}
	m.apiRequests.WithLabelValues(operation, statusClass(status)).Inc()
	m.apiLatency.WithLabelValues(operation).Observe(seconds)
}

func (m *BookingMetrics) ObserveSlotResolution(outcome string) {
	if m == nil {
		return
	}
	m.slotResolutions.WithLabelValues(outcome).Inc()
}

func (m *BookingMetrics) ObserveStaleSlots() {
	if m == nil {
		return
	}
	m.staleSlots.Inc()
}

func (m *BookingMetrics) ObserveSubmission(kind string, succeeded bool) {
	if m == nil {
		return
	}
	outcome := "failed"
	if succeeded {
		outcome = "succeeded"
	}
	m.submissions.WithLabelValues(kind, outcome).Inc()
}

func (m *BookingMetrics) ObserveCatalogLoad(resource, source string) {
	if m == nil {
		return
	}
	m.catalogLoads.WithLabelValues(resource, source).Inc()
}

func (m *BookingMetrics) SetActiveSessions(n int) {
	if m == nil {
		return
	}
	m.activeSessions.Set(float64(n))
}

func statusClass(status int) string {
	if status <= 0 {
		return "error"
	}
	return strconv.Itoa(status/100) + "xx"
}
