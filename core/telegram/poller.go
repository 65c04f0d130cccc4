package telegram

import (
	"fmt"
	"strings"
	"time"

	coreconfig "github.com/m3rciful/sessionkeeper/core/config"

	tele "gopkg.in/telebot.v4"
)

const defaultLongPollTimeout = 10 * time.Second

// allowedUpdates limits delivery to the update kinds the bot routes.
var allowedUpdates = []string{"message", "callback_query"}

// BuildPoller returns a Telebot poller for the configured run mode.
func BuildPoller(tg coreconfig.TelegramConfig, wh coreconfig.WebhookConfig) tele.Poller {
	if strings.EqualFold(strings.TrimSpace(tg.RunMode), coreconfig.RunModeWebhook) {
		return &tele.Webhook{
			Listen:         fmt.Sprintf("%s:%d", wh.Listen, wh.Port),
			AllowedUpdates: allowedUpdates,
			Endpoint:       &tele.WebhookEndpoint{PublicURL: wh.URL},
		}
	}

	timeout := defaultLongPollTimeout
	if tg.LongPollTimeoutSeconds > 0 {
		timeout = time.Duration(tg.LongPollTimeoutSeconds) * time.Second
	}
	return &tele.LongPoller{Timeout: timeout, AllowedUpdates: allowedUpdates}
}
