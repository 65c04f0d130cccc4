// Package callbacks decodes inline button payloads.
package callbacks

import (
	"strings"

	tele "gopkg.in/telebot.v4"
)

// Parse splits Telebot's \f<unique>|<payload> encoding. Callbacks already
// decoded by telebot carry Unique and the bare payload in Data.
func Parse(cb *tele.Callback) (unique, payload string) {
	if cb == nil {
		return "", ""
	}
	if cb.Unique != "" {
		return cb.Unique, cb.Data
	}
	raw := strings.TrimPrefix(cb.Data, "\f")
	unique, payload, _ = strings.Cut(raw, "|")
	return strings.TrimSpace(unique), payload
}

// Key returns the unique key of the context's callback.
func Key(c tele.Context) string {
	k, _ := Parse(c.Callback())
	return k
}
