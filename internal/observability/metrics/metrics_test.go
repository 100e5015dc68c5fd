package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBookingMetricsObserve(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewBookingMetrics(reg)
	m.ObserveAPIRequest("create_appointment", 201, 0.12)
	m.ObserveAPIRequest("list_slots", 0, 0.5)
	m.ObserveSubmission("create", true)
	m.ObserveSubmission("create", false)
	m.ObserveSubmission("create", false)
	m.ObserveStaleSlots()
	m.SetActiveSessions(3)

	families, err := reg.Gather()
	require.NoError(t, err)

	submissions := findFamily(families, "clinic_booking_submissions_total")
	require.NotNil(t, submissions)
	assert.Equal(t, 1.0, counterWithLabel(submissions, "outcome", "succeeded"))
	assert.Equal(t, 2.0, counterWithLabel(submissions, "outcome", "failed"))

	requests := findFamily(families, "clinic_api_requests_total")
	require.NotNil(t, requests)
	assert.Equal(t, 1.0, counterWithLabel(requests, "status", "2xx"))
	assert.Equal(t, 1.0, counterWithLabel(requests, "status", "error"))
}

func TestBookingMetricsDefaultRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	prev := prometheus.DefaultRegisterer
	prometheus.DefaultRegisterer = reg
	defer func() { prometheus.DefaultRegisterer = prev }()

	m := NewBookingMetrics(nil)
	m.ObserveSlotResolution("ready")
	families, err := reg.Gather()
	require.NoError(t, err)
	assert.NotNil(t, findFamily(families, "clinic_booking_slot_resolutions_total"))
}

func TestBookingMetricsNilSafe(t *testing.T) {
	var m *BookingMetrics
	m.ObserveAPIRequest("op", 500, 0.1)
	m.ObserveSlotResolution("failed")
	m.ObserveStaleSlots()
	m.ObserveSubmission("cancel", true)
	m.ObserveCatalogLoad("doctors", "api")
	m.SetActiveSessions(1)
}

func findFamily(families []*dto.MetricFamily, name string) *dto.MetricFamily {
	for _, f := range families {
		if f.GetName() == name {
			return f
		}
	}
	return nil
}

func counterWithLabel(family *dto.MetricFamily, label, value string) float64 {
	var total float64
	for _, metric := range family.GetMetric() {
		for _, pair := range metric.GetLabel() {
			if pair.GetName() == label && pair.GetValue() == value {
				total += metric.GetCounter().GetValue()
			}
		}
	}
	return total
}
