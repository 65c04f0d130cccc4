package router

import (
	"log/slog"
	"time"

	tg "github.com/m3rciful/sessionkeeper/core/telegram"
	"github.com/m3rciful/sessionkeeper/core/telegram/callbacks"

	tele "gopkg.in/telebot.v4"
)

// CallbackOptions customises fallback behaviour for callbacks.
type CallbackOptions struct {
	NotFound tele.HandlerFunc
}

// CallbackRoute returns a handler that routes inline button presses through the registry.
func CallbackRoute(reg *tg.Registry, opts CallbackOptions) tg.Route {
	handler := func(c tele.Context) error {
		start := time.Now()
		if c.Callback() == nil {
			return nil
		}

		key := callbacks.Key(c)
		name := "callback." + normalizeHandlerName(key)
		extras := []slog.Attr{slog.String("cb_key", key)}

		cbHandler, ok := reg.GetCallback(key)
		if !ok || cbHandler == nil {
			fallback := opts.NotFound
			if fallback == nil {
				fallback = reg.CallbackNotFound()
			}
			extras = append(extras, slog.String("cause", "not_found"))
			return handleWithSummary(c, name, start, func() error {
				if fallback != nil {
					return fallback(c)
				}
				return c.Respond()
			}, extras...)
		}

		return handleWithSummary(c, name, start, func() error {
			_ = c.Respond()
			return cbHandler(c)
		}, extras...)
	}
	return tg.Route{Endpoint: tele.OnCallback, Handler: handler}
}
