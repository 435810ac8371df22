package telegram

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Notifier delivers reminders as Telegram messages. The destination is a chat ID,
// so phone_number holds the recipient's chat ID when this provider is selected.
type Notifier struct {
	client  *TelebotAdapter
	timeout time.Duration
}

func NewNotifier(client *TelebotAdapter, timeout time.Duration) *Notifier {
	return &Notifier{client: client, timeout: timeout}
}

type sendResult struct {
	id  int
	err error
}

func (n *Notifier) Send(ctx context.Context, destination, message string) (string, error) {
	chatID, err := strconv.ParseInt(strings.TrimSpace(destination), 10, 64)
	if err != nil {
		return "", fmt.Errorf("telegram destination %q is not a chat ID: %w", destination, err)
	}

	cctx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()

	// telebot has no context support; the buffered channel lets a late reply finish without blocking.
	done := make(chan sendResult, 1)
	go func() {
		id, err := n.client.SendMessage(chatID, message, nil)
		done <- sendResult{id: id, err: err}
	}()

	select {
	case res := <-done:
		if res.err != nil {
			return "", fmt.Errorf("telegram send to chat %d failed: %w", chatID, res.err)
		}
		return strconv.Itoa(res.id), nil
	case <-cctx.Done():
		return "", fmt.Errorf("telegram send to chat %d: %w", chatID, cctx.Err())
	}
}
