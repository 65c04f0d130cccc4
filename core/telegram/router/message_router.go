package router

import (
	"strings"
	"time"

	tg "github.com/m3rciful/sessionkeeper/core/telegram"
	tghelpers "github.com/m3rciful/sessionkeeper/core/telegram/helpers"

	tele "gopkg.in/telebot.v4"
)

// FSM is a conversation that consumes free-form text while in progress.
type FSM interface {
	InProgress(userID int64) bool
	HandleInput(c tele.Context) error
}

// TextOptions controls fallback behaviour for text updates.
type TextOptions struct {
	UnknownText tele.HandlerFunc
	// UnknownCommand replies to slash-prefixed text matching no command.
	UnknownCommand tele.HandlerFunc
}

// TextRoutes builds the handler for plain text. Commands always win over
// conversation input; conversation input is only read in private chats.
func TextRoutes(fsm FSM, reg *tg.Registry, opts TextOptions) []tg.Route {
	handler := func(c tele.Context) error {
		start := time.Now()
		text := c.Text()

		if reg != nil {
			if key, cmd, ok := reg.LookupCommand(text); ok && strings.HasPrefix(text, "/") && cmd.Handler != nil {
				return handleWithSummary(c, normalizeHandlerName(key), start, func() error {
					return cmd.Handler(c)
				})
			}
		}

		if strings.HasPrefix(text, "/") {
			if opts.UnknownCommand != nil {
				return handleWithSummary(c, "unknown_command", start, func() error {
					return opts.UnknownCommand(c)
				})
			}
			logHandlerSummary(c, "unknown_command", start, "skip", nil)
			return nil
		}

		if _, userID := tghelpers.IDs(c); fsm != nil && tghelpers.IsPrivate(c) && fsm.InProgress(userID) {
			return handleWithSummary(c, "fsm", start, func() error {
				return fsm.HandleInput(c)
			})
		}

		if reg != nil {
			if fb := reg.TextFallback(); fb != nil {
				return handleWithSummary(c, "fallback", start, func() error {
					return fb(c)
				})
			}
		}

		if opts.UnknownText != nil {
			return handleWithSummary(c, "unknown_text", start, func() error {
				return opts.UnknownText(c)
			})
		}

		logHandlerSummary(c, "unknown_text", start, "skip", nil)
		return nil
	}

	return []tg.Route{{Endpoint: tele.OnText, Handler: handler}}
}
