package telegram

import (
	"errors"
	"fmt"
	"strings"

	"appointment_reminder/internal/app"
	"appointment_reminder/internal/domain/appointment"

	"github.com/sirupsen/logrus"
	"gopkg.in/telebot.v3"
)

const failCallbackPrefix = "fail_"

const unauthorizedReply = "Error: you are not allowed to run this command."

func (h *Handlers) handleStuck(c telebot.Context) error {
	handlerLogger := h.commandLogger("/stuck", c)
	handlerLogger.Info("Command received")

	if !h.admin.IsAdmin(senderID(c)) {
		handlerLogger.Warn("Unauthorized access attempt")
		return c.Send(unauthorizedReply)
	}

	stuck, err := h.admin.ListStuckClaims(h.ctx, senderID(c))
	if err != nil {
		handlerLogger.WithError(err).Error("Failed to list stuck claims")
		return c.Send(fmt.Sprintf("Failed to list stuck reminders: %s", err.Error()))
	}
	if len(stuck) == 0 {
		return c.Send("No stuck reminders.")
	}
	handlerLogger.WithField("stuck_count", len(stuck)).Info("Stuck claims found")

	for _, a := range stuck {
		markup := &telebot.ReplyMarkup{}
		markup.Inline(markup.Row(markup.Data("Mark failed", failCallbackPrefix+a.ID)))
		text := fmt.Sprintf("%s\nClaimed at %s", formatAppointment(a), a.ClaimedAt.Time.Format("2006-01-02 15:04:05"))
		if err := c.Send(text, markup); err != nil {
			return err
		}
	}
	return nil
}

func (h *Handlers) handleFail(c telebot.Context) error {
	handlerLogger := h.commandLogger("/fail", c)
	handlerLogger.Info("Command received")

	if !h.admin.IsAdmin(senderID(c)) {
		handlerLogger.Warn("Unauthorized access attempt")
		return c.Send(unauthorizedReply)
	}

	args := c.Args()
	// Expected format: /fail <appointmentID>
	if len(args) != 1 {
		return c.Send("Invalid format. Use: /fail <appointment id>")
	}
	return c.Send(h.markFailed(handlerLogger, senderID(c), args[0]))
}

// handleCallback answers inline buttons. Buttons built with ReplyMarkup.Data and no
// dedicated handler reach OnCallback with the raw "\f<unique>" data.
func (h *Handlers) handleCallback(c telebot.Context) error {
	data := strings.TrimPrefix(c.Callback().Data, "\f")
	handlerLogger := h.commandLogger("callback", c).WithField("data", data)

	if strings.HasPrefix(data, failCallbackPrefix) {
		if !h.admin.IsAdmin(senderID(c)) {
			handlerLogger.Warn("Unauthorized callback")
			return c.Respond(&telebot.CallbackResponse{Text: unauthorizedReply})
		}
		id := strings.TrimPrefix(data, failCallbackPrefix)
		return c.Respond(&telebot.CallbackResponse{Text: h.markFailed(handlerLogger, senderID(c), id)})
	}

	handlerLogger.Warn("Unhandled callback data")
	return c.Respond(&telebot.CallbackResponse{Text: "Unknown action."})
}

// markFailed runs the admin action and renders the reply for chat or callback.
func (h *Handlers) markFailed(handlerLogger *logrus.Entry, performingAdminID int64, id string) string {
	handlerLogger = handlerLogger.WithField("appointment_id", id)

	_, err := h.admin.MarkClaimFailed(h.ctx, performingAdminID, id)
	if err != nil {
		logWithError := handlerLogger.WithError(err)
		switch {
		case errors.Is(err, app.ErrAdminNotAuthorized):
			logWithError.Warn("Admin not authorized (service level)")
			return unauthorizedReply
		case errors.Is(err, appointment.ErrNotFound):
			logWithError.Warn("Appointment not found")
			return fmt.Sprintf("Appointment %s not found.", id)
		case errors.Is(err, app.ErrNotInProgress):
			logWithError.Warn("Appointment is not in progress")
			return fmt.Sprintf("Appointment %s is not waiting on a dispatch outcome.", id)
		case errors.Is(err, app.ErrClaimNotStale):
			logWithError.Warn("Claim is still fresh")
			return fmt.Sprintf("Appointment %s was claimed recently; its dispatch may still finish.", id)
		default:
			logWithError.Error("Failed to mark appointment as failed")
			return fmt.Sprintf("Failed to update appointment %s: %s", id, err.Error())
		}
	}

	handlerLogger.Info("Stuck reminder marked as failed")
	return fmt.Sprintf("Appointment %s marked as failed.", id)
}
