// internal/infra/telegram/bot_commands_handler.go
package telegram

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"appointment_reminder/internal/app"
	"appointment_reminder/internal/domain/appointment"
	"appointment_reminder/internal/domain/datetime"

	"github.com/sirupsen/logrus"
	"gopkg.in/telebot.v3"
)

// maxListed caps /appointments replies to keep them under Telegram's message size limit.
const maxListed = 20

// Handlers groups the bot's command handlers and the services behind them.
type Handlers struct {
	ctx       context.Context
	reminders *app.ReminderService
	admin     *app.AdminService
	logger    *logrus.Entry
}

func NewHandlers(ctx context.Context, reminders *app.ReminderService, admin *app.AdminService, baseLogger *logrus.Entry) *Handlers {
	return &Handlers{
		ctx:       ctx,
		reminders: reminders,
		admin:     admin,
		logger:    baseLogger,
	}
}

// Register wires every command and callback on b.
func (h *Handlers) Register(b *telebot.Bot) {
	b.Handle("/start", h.handleStart)
	b.Handle("/help", h.handleHelp)
	b.Handle("/schedule", h.handleSchedule)
	b.Handle("/appointments", h.handleAppointments)
	b.Handle("/stuck", h.handleStuck)
	b.Handle("/fail", h.handleFail)
	b.Handle(telebot.OnCallback, h.handleCallback)
}

func senderID(c telebot.Context) int64 {
	if c.Sender() == nil {
		return 0
	}
	return c.Sender().ID
}

func (h *Handlers) commandLogger(command string, c telebot.Context) *logrus.Entry {
	return h.logger.WithFields(logrus.Fields{
		"handler":   command,
		"sender_id": senderID(c),
	})
}

func (h *Handlers) handleStart(c telebot.Context) error {
	logCtx := h.commandLogger("/start", c)
	logCtx.Info("Processing /start command")

	name := "there"
	if c.Sender() != nil && c.Sender().FirstName != "" {
		name = c.Sender().FirstName
	}
	if h.admin.IsAdmin(senderID(c)) {
		logCtx.Info("User identified as Admin")
		return c.Send(fmt.Sprintf("Hello, %s! Reminder service is up. Use /help for the admin commands.", name))
	}
	return c.Send(fmt.Sprintf("Hello, %s! I schedule appointment reminders that go out one hour before the appointment. Use /help to see how.", name))
}

func (h *Handlers) handleHelp(c telebot.Context) error {
	h.commandLogger("/help", c).Info("Processing /help command")

	var helpText strings.Builder
	helpText.WriteString("Available commands:\n\n")
	helpText.WriteString("`/schedule <phone> <type> <when>`\n - Schedule a reminder, e.g. `/schedule +15550001 dentist tomorrow 3pm`.\n\n")
	helpText.WriteString("`/appointments <phone>`\n - Show appointments for a phone number.\n\n")
	helpText.WriteString("`/help`\n - Show this message.")
	if h.admin.IsAdmin(senderID(c)) {
		helpText.WriteString("\n\nAdmin commands:\n\n")
		helpText.WriteString("`/appointments`\n - Show the most recent appointments.\n\n")
		helpText.WriteString("`/stuck`\n - List reminders claimed for dispatch that never recorded an outcome.\n\n")
		helpText.WriteString("`/fail <id>`\n - Mark a stuck reminder as failed.")
	}
	return c.Send(helpText.String(), &telebot.SendOptions{ParseMode: telebot.ModeMarkdown})
}

func (h *Handlers) handleSchedule(c telebot.Context) error {
	logCtx := h.commandLogger("/schedule", c)

	args := c.Args()
	// Expected format: /schedule <phone> <type> <datetime...>
	if len(args) < 3 {
		logCtx.WithField("args_count", len(args)).Warn("Invalid command format")
		return c.Send("Invalid format. Use: /schedule <phone> <type> <when>, e.g. /schedule +15550001 dentist tomorrow 3pm")
	}

	req := app.ScheduleRequest{
		PhoneNumber:         args[0],
		AppointmentType:     args[1],
		AppointmentDatetime: strings.Join(args[2:], " "),
	}
	logCtx = logCtx.WithFields(logrus.Fields{
		"phone_number":     req.PhoneNumber,
		"appointment_type": req.AppointmentType,
	})

	res, err := h.reminders.ScheduleReminder(h.ctx, req)
	if err != nil {
		logWithError := logCtx.WithError(err)
		switch {
		case errors.Is(err, app.ErrInvalidRequest),
			errors.Is(err, app.ErrPastReminder),
			errors.Is(err, datetime.ErrUnparseableDatetime):
			logWithError.Warn("Schedule request rejected")
			return c.Send(fmt.Sprintf("Could not schedule the reminder: %s", err.Error()))
		default:
			logWithError.Error("Failed to schedule reminder")
			return c.Send("Something went wrong while scheduling. Please try again later.")
		}
	}

	logCtx.WithField("appointment_id", res.AppointmentID).Info("Reminder scheduled via bot")
	return c.Send(fmt.Sprintf("%s\nAppointment ID: %s", res.Message, res.AppointmentID))
}

func (h *Handlers) handleAppointments(c telebot.Context) error {
	logCtx := h.commandLogger("/appointments", c)

	var filter appointment.ListFilter
	args := c.Args()
	if len(args) > 0 {
		filter.PhoneNumber = args[0]
	} else if !h.admin.IsAdmin(senderID(c)) {
		return c.Send("Usage: /appointments <phone>")
	}

	list, err := h.reminders.ListAppointments(h.ctx, filter)
	if err != nil {
		logCtx.WithError(err).Error("Failed to list appointments")
		return c.Send("Something went wrong while loading appointments. Please try again later.")
	}
	if len(list) == 0 {
		return c.Send("No appointments found.")
	}
	if len(list) > maxListed {
		list = list[len(list)-maxListed:]
	}
	logCtx.WithField("count", len(list)).Info("Listing appointments")

	var response strings.Builder
	response.WriteString("Appointments:\n")
	for _, a := range list {
		response.WriteString(formatAppointment(a))
		response.WriteString("\n")
	}
	return c.Send(response.String())
}

func formatAppointment(a *appointment.Appointment) string {
	return fmt.Sprintf("%s | %s | %s at %s | %s",
		a.ID,
		a.PhoneNumber,
		a.AppointmentType,
		a.AppointmentTime.Format("2006-01-02 15:04"),
		a.Status)
}
