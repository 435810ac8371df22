// internal/infra/telegram/client.go
package telegram

import (
	"gopkg.in/telebot.v3"
)

// messageSender is the part of *telebot.Bot the adapter needs.
type messageSender interface {
	Send(to telebot.Recipient, what interface{}, opts ...interface{}) (*telebot.Message, error)
}

// TelebotAdapter sends plain chat messages through gopkg.in/telebot.v3.
type TelebotAdapter struct {
	bot messageSender
}

func NewTelebotAdapter(b *telebot.Bot) *TelebotAdapter {
	return &TelebotAdapter{bot: b}
}

// SendMessage sends a text message to the chat and returns the Telegram message ID.
func (tba *TelebotAdapter) SendMessage(chatID int64, text string, options *telebot.SendOptions) (int, error) {
	if options == nil {
		options = &telebot.SendOptions{}
	}

	msg, err := tba.bot.Send(telebot.ChatID(chatID), text, options)
	if err != nil {
		return 0, err
	}
	return msg.ID, nil
}
