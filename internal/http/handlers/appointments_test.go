package handlers

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppointments_GetAndCancel(t *testing.T) {
	h := newHarness(t)

	code, resp := h.do(t, http.MethodGet, "/api/appointments/42", patientToken, "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "Scheduled", resp.Status)

	code, resp = h.do(t, http.MethodPut, "/api/appointments/42/cancel", patientToken, `{"reason":"Bận việc đột xuất"}`)
	require.Equal(t, http.StatusOK, code, resp.Error)
	assert.Equal(t, "Cancelled", resp.Status)

	h.clinic.mu.Lock()
	require.Len(t, h.clinic.cancels, 1)
	assert.JSONEq(t, `{"reason":"Bận việc đột xuất"}`, h.clinic.cancels[0])
	h.clinic.mu.Unlock()

	code, resp = h.do(t, http.MethodGet, "/api/appointments/42/history", patientToken, "")
	require.Equal(t, http.StatusOK, code)
	require.Len(t, resp.Entries, 1)
	assert.Equal(t, "cancel", resp.Entries[0].Kind)
	assert.True(t, resp.Entries[0].Succeeded)
}

func TestAppointments_CancelRefusedForTerminal(t *testing.T) {
	h := newHarness(t)
	h.clinic.status42 = "Cancelled"

	code, _ := h.do(t, http.MethodPut, "/api/appointments/42/cancel", patientToken, `{}`)
	assert.Equal(t, http.StatusConflict, code)
	h.clinic.mu.Lock()
	assert.Empty(t, h.clinic.cancels)
	h.clinic.mu.Unlock()
}

func TestAppointments_Errors(t *testing.T) {
	h := newHarness(t)

	code, _ := h.do(t, http.MethodGet, "/api/appointments/abc", patientToken, "")
	assert.Equal(t, http.StatusBadRequest, code)

	code, resp := h.do(t, http.MethodGet, "/api/appointments/77", patientToken, "")
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "Appointment not found", resp.Error)

	code, _ = h.do(t, http.MethodGet, "/api/appointments/77/history", patientToken, "")
	assert.Equal(t, http.StatusNotFound, code, "history requires a readable appointment")
}
