package middleware

import (
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/m3rciful/sessionkeeper/core/logger"
	"github.com/m3rciful/sessionkeeper/core/telegram/callbacks"
	tghelpers "github.com/m3rciful/sessionkeeper/core/telegram/helpers"

	tele "gopkg.in/telebot.v4"
)

// recentUpdates keeps a short-lived set of processed update IDs to avoid double logging.
var (
	recentMu     sync.Mutex
	recentUpdate = make(map[int]time.Time)
	keepFor      = 10 * time.Second
)

func alreadyLogged(updateID int) bool {
	now := time.Now()
	recentMu.Lock()
	defer recentMu.Unlock()
	for id, ts := range recentUpdate {
		if now.Sub(ts) > keepFor {
			delete(recentUpdate, id)
		}
	}
	if _, ok := recentUpdate[updateID]; ok {
		return true
	}
	recentUpdate[updateID] = now
	return false
}

// LoggerMiddleware logs a single receipt line per update and sets rid.
// Message text is never logged, only the command name or the text length.
func LoggerMiddleware(next tele.HandlerFunc) tele.HandlerFunc {
	return func(c tele.Context) error {
		upd := c.Update()
		chatID, userID := tghelpers.IDs(c)

		rid := logger.BuildRID(upd.ID, chatID, userID)
		c.Set("rid", rid)
		c.Set("update_start", time.Now())

		ctx := logger.WithRID(logger.Background(), rid)
		ctx = logger.WithUpdateMeta(ctx, upd.ID, userID, chatID)
		ctx = logger.WithLogger(ctx, logger.Component("tg"))
		tghelpers.StoreContext(c, ctx)

		if logger.ShouldSampleDebug() && !alreadyLogged(upd.ID) {
			attrs := []slog.Attr{slog.String("status", "ok")}
			if chat := c.Chat(); chat != nil {
				attrs = append(attrs, slog.String("chat_type", string(chat.Type)))
			}
			if user := c.Sender(); user != nil && user.LanguageCode != "" {
				attrs = append(attrs, slog.String("lang", user.LanguageCode))
			}
			switch {
			case upd.Callback != nil:
				attrs = append(attrs, slog.String("kind", "callback"))
				if key, _ := callbacks.Parse(upd.Callback); key != "" {
					attrs = append(attrs, slog.String("cb_key", logger.SanitizeLimit(key, 128)))
				}
			case upd.Message != nil:
				attrs = append(attrs, slog.String("kind", "message"))
				text := c.Text()
				if strings.HasPrefix(text, "/") {
					cmd, _, _ := strings.Cut(text, " ")
					attrs = append(attrs, slog.String("command", logger.SanitizeLimit(cmd, 64)))
				} else if text != "" {
					attrs = append(attrs, slog.Int("text_len", len([]rune(text))))
				}
			}
			logger.LogEvent(ctx, logger.TG, slog.LevelDebug, "update.received", attrs...)
		}

		return next(c)
	}
}
