// Package httpapi exposes the scheduling request path over HTTP with echo.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"reflect"
	"strings"
	"time"

	"appointment_reminder/internal/app"
	"appointment_reminder/internal/domain/appointment"
	"appointment_reminder/internal/domain/datetime"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/sirupsen/logrus"
)

type ReminderService interface {
	ScheduleReminder(ctx context.Context, req app.ScheduleRequest) (*app.ScheduleResult, error)
	ListAppointments(ctx context.Context, filter appointment.ListFilter) ([]*appointment.Appointment, error)
}

type SchedulerStatus interface {
	IsRunning() bool
}

type ScheduleAppointmentRequest struct {
	PhoneNumber         string `json:"phone_number" validate:"required,max=32"`
	AppointmentDatetime string `json:"appointment_datetime" validate:"required,max=128"`
	AppointmentType     string `json:"appointment_type" validate:"max=64"`
}

type ScheduleAppointmentResponse struct {
	Success         bool   `json:"success"`
	AppointmentID   string `json:"appointment_id"`
	AppointmentTime string `json:"appointment_time"`
	ReminderTime    string `json:"reminder_time"`
	Message         string `json:"message"`
}

type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

type AppointmentResponse struct {
	ID              string  `json:"id"`
	PhoneNumber     string  `json:"phone_number"`
	AppointmentTime string  `json:"appointment_time"`
	ReminderTime    string  `json:"reminder_time"`
	AppointmentType string  `json:"appointment_type"`
	Status          string  `json:"status"`
	ClaimedAt       *string `json:"claimed_at,omitempty"`
	DeliveryReceipt *string `json:"delivery_receipt,omitempty"`
	LastError       *string `json:"last_error,omitempty"`
	CreatedAt       string  `json:"created_at"`
	UpdatedAt       string  `json:"updated_at"`
}

func formatTime(t time.Time) string { return t.Format(time.RFC3339) }

func toAppointmentResponse(a *appointment.Appointment) AppointmentResponse {
	resp := AppointmentResponse{
		ID:              a.ID,
		PhoneNumber:     a.PhoneNumber,
		AppointmentTime: formatTime(a.AppointmentTime),
		ReminderTime:    formatTime(a.ReminderTime),
		AppointmentType: a.AppointmentType,
		Status:          string(a.Status),
		CreatedAt:       formatTime(a.CreatedAt),
		UpdatedAt:       formatTime(a.UpdatedAt),
	}
	if a.ClaimedAt.Valid {
		s := formatTime(a.ClaimedAt.Time)
		resp.ClaimedAt = &s
	}
	if a.DeliveryReceipt.Valid {
		resp.DeliveryReceipt = &a.DeliveryReceipt.String
	}
	if a.LastError.Valid {
		resp.LastError = &a.LastError.String
	}
	return resp
}

type DefaultReminderRoute struct {
	Reminders ReminderService
	Scheduler SchedulerStatus
	Validate  *validator.Validate
	logger    *logrus.Entry
}

func NewReminderRoute(reminders ReminderService, scheduler SchedulerStatus, logger *logrus.Entry) *DefaultReminderRoute {
	validate := validator.New()
	// Report JSON field names in validation errors.
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return &DefaultReminderRoute{
		Reminders: reminders,
		Scheduler: scheduler,
		Validate:  validate,
		logger:    logger,
	}
}

// NewServer builds the echo instance with every route. metricsHandler may be nil.
func NewServer(route *DefaultReminderRoute, metricsHandler http.Handler) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogURI:      true,
		LogStatus:   true,
		LogMethod:   true,
		LogLatency:  true,
		LogError:    true,
		HandleError: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			entry := route.logger.WithFields(logrus.Fields{
				"method":  v.Method,
				"uri":     v.URI,
				"status":  v.Status,
				"latency": v.Latency.String(),
			})
			if v.Error != nil {
				entry.WithError(v.Error).Warn("Request failed")
				return nil
			}
			entry.Debug("Request handled")
			return nil
		},
	}))

	e.POST("/api/schedule-appointment", route.ScheduleAppointment)
	e.GET("/api/appointments", route.GetAppointments)
	e.GET("/health", route.Health)
	if metricsHandler != nil {
		e.GET("/metrics", echo.WrapHandler(metricsHandler))
	}
	return e
}

func badRequest(c echo.Context, msg string) error {
	return c.JSON(http.StatusBadRequest, ErrorResponse{Success: false, Error: msg})
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		switch fe.Tag() {
		case "required":
			msgs = append(msgs, fe.Field()+" is required")
		case "max":
			msgs = append(msgs, fe.Field()+" must be at most "+fe.Param()+" characters")
		default:
			msgs = append(msgs, fe.Field()+" is invalid")
		}
	}
	return strings.Join(msgs, "; ")
}

func (r *DefaultReminderRoute) ScheduleAppointment(c echo.Context) error {
	var req ScheduleAppointmentRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "request body must be a JSON object")
	}
	if err := r.Validate.Struct(&req); err != nil {
		return badRequest(c, validationMessage(err))
	}

	res, err := r.Reminders.ScheduleReminder(c.Request().Context(), app.ScheduleRequest{
		PhoneNumber:         req.PhoneNumber,
		AppointmentDatetime: req.AppointmentDatetime,
		AppointmentType:     req.AppointmentType,
	})
	switch {
	case err == nil:
	case errors.Is(err, app.ErrInvalidRequest),
		errors.Is(err, app.ErrPastReminder),
		errors.Is(err, datetime.ErrUnparseableDatetime):
		return badRequest(c, err.Error())
	default:
		r.logger.WithError(err).Error("Failed to schedule appointment")
		return c.JSON(http.StatusInternalServerError, ErrorResponse{Success: false, Error: "failed to schedule appointment"})
	}

	return c.JSON(http.StatusOK, ScheduleAppointmentResponse{
		Success:         true,
		AppointmentID:   res.AppointmentID,
		AppointmentTime: formatTime(res.AppointmentTime),
		ReminderTime:    formatTime(res.ReminderTime),
		Message:         res.Message,
	})
}

func (r *DefaultReminderRoute) GetAppointments(c echo.Context) error {
	filter := appointment.ListFilter{
		PhoneNumber: strings.TrimSpace(c.QueryParam("phone_number")),
		Status:      appointment.Status(strings.TrimSpace(c.QueryParam("status"))),
	}

	list, err := r.Reminders.ListAppointments(c.Request().Context(), filter)
	if err != nil {
		if errors.Is(err, app.ErrInvalidRequest) {
			return badRequest(c, err.Error())
		}
		r.logger.WithError(err).Error("Failed to list appointments")
		return c.JSON(http.StatusInternalServerError, ErrorResponse{Success: false, Error: "failed to list appointments"})
	}

	out := make([]AppointmentResponse, 0, len(list))
	for _, a := range list {
		out = append(out, toAppointmentResponse(a))
	}
	return c.JSON(http.StatusOK, echo.Map{"appointments": out})
}

func (r *DefaultReminderRoute) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, echo.Map{
		"status":            "healthy",
		"scheduler_running": r.Scheduler.IsRunning(),
	})
}
