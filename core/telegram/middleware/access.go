package middleware

import (
	"log/slog"

	"github.com/m3rciful/sessionkeeper/core/logger"
	tghelpers "github.com/m3rciful/sessionkeeper/core/telegram/helpers"

	tele "gopkg.in/telebot.v4"
)

// AdminOptions defines how admin-only checks should behave.
type AdminOptions struct {
	AdminID  int64
	OnReject tele.HandlerFunc
}

// AdminOnlyMiddleware ensures that only the admin user can invoke downstream handlers.
// With no admin configured every caller is rejected.
func AdminOnlyMiddleware(opts AdminOptions) tele.MiddlewareFunc {
	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) error {
			if _, userID := tghelpers.IDs(c); opts.AdminID != 0 && userID == opts.AdminID {
				return next(c)
			}
			logger.Warn(tghelpers.BuildContext(c), "tg", "access.denied",
				slog.String("status", "skip"),
				slog.String("cause", "not_admin"),
			)
			if opts.OnReject != nil {
				return opts.OnReject(c)
			}
			return nil
		}
	}
}
