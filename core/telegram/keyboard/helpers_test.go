package keyboard

import "testing"

func TestSingleCancelMarkup(t *testing.T) {
	m := SingleCancelMarkup("login_cancel")
	if len(m.InlineKeyboard) != 1 || len(m.InlineKeyboard[0]) != 1 {
		t.Fatalf("unexpected keyboard shape: %+v", m.InlineKeyboard)
	}
	btn := m.InlineKeyboard[0][0]
	if btn.Text != cancelLabel || btn.Unique != "login_cancel" || btn.Data != cancelPayload {
		t.Fatalf("unexpected button: %+v", btn)
	}

	if b := SingleCancelMarkup("x", "Stop").InlineKeyboard[0][0]; b.Text != "Stop" {
		t.Fatalf("label ignored: %+v", b)
	}
}
