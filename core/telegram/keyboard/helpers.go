// Package keyboard builds inline keyboards shared by bot handlers.
package keyboard

import tele "gopkg.in/telebot.v4"

const (
	cancelLabel   = "❌ Cancel"
	cancelPayload = "cancel"
)

// SingleCancelMarkup returns an inline keyboard holding one cancel button routed
// to the callback unique. An optional label replaces the default caption.
func SingleCancelMarkup(unique string, label ...string) *tele.ReplyMarkup {
	text := cancelLabel
	if len(label) > 0 && label[0] != "" {
		text = label[0]
	}
	markup := &tele.ReplyMarkup{}
	markup.Inline(markup.Row(markup.Data(text, unique, cancelPayload)))
	return markup
}
