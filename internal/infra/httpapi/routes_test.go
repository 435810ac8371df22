package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"appointment_reminder/internal/app"
	"appointment_reminder/internal/domain/appointment"
	"appointment_reminder/internal/domain/datetime"
	"appointment_reminder/internal/infra/memory"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubScheduler bool

func (s stubScheduler) IsRunning() bool { return bool(s) }

var fixedNow = time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)

func quietLogger() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}

func newTestServer(t *testing.T, svc ReminderService) *echo.Echo {
	t.Helper()
	route := NewReminderRoute(svc, stubScheduler(true), quietLogger())
	metrics := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, "reminder_scan_cycles_total 0\n")
	})
	return NewServer(route, metrics)
}

func newMemoryService() (*app.ReminderService, *memory.AppointmentRepository) {
	repo := memory.NewAppointmentRepository()
	svc := app.NewReminderService(repo, datetime.NewResolver(), app.NewReminderDispatcher(nil, 0, quietLogger()), quietLogger(),
		app.WithClock(func() time.Time { return fixedNow }))
	return svc, repo
}

func do(e *echo.Echo, method, target, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestScheduleAppointment_Success(t *testing.T) {
	svc, repo := newMemoryService()
	e := newTestServer(t, svc)

	rec := do(e, http.MethodPost, "/api/schedule-appointment",
		`{"phone_number":"+15550001","appointment_datetime":"tomorrow 3pm","appointment_type":"dentist"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp ScheduleAppointmentResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.NotEmpty(t, resp.AppointmentID)
	assert.Equal(t, "2024-01-02T15:00:00Z", resp.AppointmentTime)
	assert.Equal(t, "2024-01-02T14:00:00Z", resp.ReminderTime)
	assert.Equal(t, "Appointment reminder scheduled for 2024-01-02 14:00 (1 hour before your dentist appointment)", resp.Message)

	stored, err := repo.GetByID(context.Background(), resp.AppointmentID)
	require.NoError(t, err)
	assert.Equal(t, appointment.StatusScheduled, stored.Status)
}

func TestScheduleAppointment_BadRequests(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr string
	}{
		{"malformed body", `{"phone_number":`, "JSON object"},
		{"missing phone", `{"appointment_datetime":"tomorrow"}`, "phone_number is required"},
		{"missing datetime", `{"phone_number":"+1"}`, "appointment_datetime is required"},
		{"past reminder", `{"phone_number":"+1","appointment_datetime":"2023-12-31 10:00"}`, "in the past"},
		{"bad clock", `{"phone_number":"+1","appointment_datetime":"tomorrow 25:00"}`, "unparseable"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, _ := newMemoryService()
			rec := do(newTestServer(t, svc), http.MethodPost, "/api/schedule-appointment", tt.body)
			require.Equal(t, http.StatusBadRequest, rec.Code)

			var resp ErrorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.False(t, resp.Success)
			assert.Contains(t, resp.Error, tt.wantErr)
		})
	}
}

type failingService struct{}

func (failingService) ScheduleReminder(context.Context, app.ScheduleRequest) (*app.ScheduleResult, error) {
	return nil, errors.Join(appointment.ErrStore, errors.New("disk full"))
}

func (failingService) ListAppointments(context.Context, appointment.ListFilter) ([]*appointment.Appointment, error) {
	return nil, appointment.ErrStore
}

func TestStoreFailuresAre500(t *testing.T) {
	e := newTestServer(t, failingService{})

	rec := do(e, http.MethodPost, "/api/schedule-appointment", `{"phone_number":"+1","appointment_datetime":"tomorrow"}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "disk full")

	rec = do(e, http.MethodGet, "/api/appointments", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestGetAppointments_Filters(t *testing.T) {
	svc, repo := newMemoryService()
	e := newTestServer(t, svc)

	for _, phone := range []string{"+1", "+1", "+2"} {
		rec := do(e, http.MethodPost, "/api/schedule-appointment", `{"phone_number":"`+phone+`","appointment_datetime":"tomorrow"}`)
		require.Equal(t, http.StatusOK, rec.Code)
	}
	all, err := repo.List(context.Background(), appointment.ListFilter{PhoneNumber: "+2"})
	require.NoError(t, err)
	_, err = repo.UpdateStatus(context.Background(), all[0].ID, appointment.StatusUpdate{Status: appointment.StatusReminderSent, Receipt: "rcpt-1"})
	require.NoError(t, err)

	var body struct {
		Appointments []AppointmentResponse `json:"appointments"`
	}

	rec := do(e, http.MethodGet, "/api/appointments?phone_number=%2B1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Len(t, body.Appointments, 2)

	rec = do(e, http.MethodGet, "/api/appointments?status=reminder_sent", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Appointments, 1)
	assert.Equal(t, "+2", body.Appointments[0].PhoneNumber)
	require.NotNil(t, body.Appointments[0].DeliveryReceipt)
	assert.Equal(t, "rcpt-1", *body.Appointments[0].DeliveryReceipt)
	assert.Nil(t, body.Appointments[0].LastError)

	rec = do(e, http.MethodGet, "/api/appointments?status=bogus", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(e, http.MethodGet, "/api/appointments", "")
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Len(t, body.Appointments, 3)
}

func TestHealthAndMetrics(t *testing.T) {
	svc, _ := newMemoryService()
	e := newTestServer(t, svc)

	rec := do(e, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"healthy","scheduler_running":true}`, rec.Body.String())

	rec = do(e, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "reminder_scan_cycles_total")
}
