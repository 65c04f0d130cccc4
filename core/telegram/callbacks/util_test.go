package callbacks

import (
	"testing"

	tele "gopkg.in/telebot.v4"
)

func TestParse(t *testing.T) {
	cases := []struct {
		cb           *tele.Callback
		key, payload string
	}{
		{nil, "", ""},
		{&tele.Callback{Data: "\flogin_cancel|cancel"}, "login_cancel", "cancel"},
		{&tele.Callback{Data: "\fonly"}, "only", ""},
		{&tele.Callback{Unique: "u", Data: "p|q"}, "u", "p|q"},
	}
	for _, tc := range cases {
		key, payload := Parse(tc.cb)
		if key != tc.key || payload != tc.payload {
			t.Fatalf("Parse = (%q, %q), want (%q, %q)", key, payload, tc.key, tc.payload)
		}
	}
}
