package middleware

import (
	"log/slog"
	"sync"
	"time"

	"github.com/m3rciful/sessionkeeper/core/logger"
	tghelpers "github.com/m3rciful/sessionkeeper/core/telegram/helpers"

	tele "gopkg.in/telebot.v4"
)

// RateLimitOptions configures behaviour of the rate limit middleware.
type RateLimitOptions struct {
	Interval  time.Duration
	Exclude   map[string]struct{}
	OnLimited tele.HandlerFunc
	Now       func() time.Time
}

// RateLimitMiddleware returns a middleware that enforces a minimum interval
// between updates from the same user.
func RateLimitMiddleware(opts RateLimitOptions) tele.MiddlewareFunc {
	var (
		lastSeen   = make(map[int64]time.Time)
		lastSeenMu sync.Mutex
	)
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) error {
			_, userID := tghelpers.IDs(c)
			if userID == 0 || opts.Interval <= 0 {
				return next(c)
			}
			if _, skip := opts.Exclude[updateKind(c.Update())]; skip {
				return next(c)
			}

			ts := now()
			lastSeenMu.Lock()
			last, seen := lastSeen[userID]
			limited := seen && ts.Sub(last) < opts.Interval
			if !limited {
				lastSeen[userID] = ts
			}
			for id, at := range lastSeen {
				if ts.Sub(at) > opts.Interval*10 {
					delete(lastSeen, id)
				}
			}
			lastSeenMu.Unlock()

			if !limited {
				return next(c)
			}
			logger.Warn(tghelpers.BuildContext(c), "tg", "rate_limit",
				slog.String("status", "skip"),
				slog.String("cause", "rate_limited"),
			)
			if opts.OnLimited != nil {
				_ = opts.OnLimited(c)
			}
			return nil
		}
	}
}

func updateKind(upd tele.Update) string {
	switch {
	case upd.Callback != nil:
		return "callback"
	case upd.Message != nil:
		return "message"
	}
	return "other"
}
