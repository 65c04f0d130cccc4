package helpers

import (
	"errors"
	"log/slog"
	"sync/atomic"

	"github.com/m3rciful/sessionkeeper/core/logger"
	"github.com/m3rciful/sessionkeeper/core/telegram/sender"

	tele "gopkg.in/telebot.v4"
)

var globalDispatcher atomic.Pointer[sender.Dispatcher]

// SetDispatcher wires the asynchronous sender used by helper functions.
func SetDispatcher(d *sender.Dispatcher) {
	globalDispatcher.Store(d)
}

// Dispatcher returns the sender wired by SetDispatcher, or nil.
func Dispatcher() *sender.Dispatcher {
	return globalDispatcher.Load()
}

func sendAsync(c tele.Context, action, endpoint string, run func() error) error {
	disp := Dispatcher()
	if disp == nil {
		return run()
	}

	ctx := BuildContext(c)
	if err := disp.Enqueue(ctx, action, endpoint, run); err != nil {
		if errors.Is(err, sender.ErrQueueFull) || errors.Is(err, sender.ErrQueueClosed) {
			logger.Warn(ctx, "tg.sender", "queue.fallback",
				slog.String("action", action),
				slog.String("endpoint", endpoint),
				slog.String("err", err.Error()),
			)
			return run()
		}
		return err
	}
	return nil
}

// SendMD sends a Markdown reply to the current chat without waiting for delivery.
func SendMD(c tele.Context, text string, markup ...*tele.ReplyMarkup) error {
	opts := &tele.SendOptions{ParseMode: tele.ModeMarkdown}
	if len(markup) > 0 {
		opts.ReplyMarkup = markup[0]
	}
	return sendAsync(c, "send.text", "sendMessage", func() error {
		return c.Send(text, opts)
	})
}

// DeleteTrigger removes the message that triggered the update.
func DeleteTrigger(c tele.Context) error {
	if c.Message() == nil {
		return nil
	}
	return sendAsync(c, "delete.trigger", "deleteMessage", func() error {
		return c.Delete()
	})
}
