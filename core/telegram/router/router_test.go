package router

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	tg "github.com/m3rciful/sessionkeeper/core/telegram"

	tele "gopkg.in/telebot.v4"
)

type fakeFSM struct {
	active map[int64]bool
	inputs []string
}

func (f *fakeFSM) InProgress(userID int64) bool { return f.active[userID] }

func (f *fakeFSM) HandleInput(c tele.Context) error {
	f.inputs = append(f.inputs, c.Text())
	return nil
}

func newBot(t *testing.T) *tele.Bot {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":true,"result":true}`))
	}))
	t.Cleanup(srv.Close)
	bot, err := tele.NewBot(tele.Settings{Offline: true, URL: srv.URL})
	if err != nil {
		t.Fatalf("offline bot: %v", err)
	}
	return bot
}

func textContext(bot *tele.Bot, userID int64, chatType tele.ChatType, text string) tele.Context {
	return bot.NewContext(tele.Update{Message: &tele.Message{
		Text:   text,
		Sender: &tele.User{ID: userID},
		Chat:   &tele.Chat{ID: userID, Type: chatType},
	}})
}

func TestTextRoutesCommandsBeforeInput(t *testing.T) {
	bot := newBot(t)
	reg := tg.NewRegistry()
	cancels := 0
	_ = reg.RegisterCommand("/cancel", tg.Command{Description: "Cancel", Handler: func(tele.Context) error { cancels++; return nil }})
	fsm := &fakeFSM{active: map[int64]bool{1: true}}
	unknown := 0
	h := TextRoutes(fsm, reg, TextOptions{UnknownCommand: func(tele.Context) error { unknown++; return nil }})[0].Handler

	if err := h(textContext(bot, 1, tele.ChatPrivate, "/cancel")); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if cancels != 1 || len(fsm.inputs) != 0 {
		t.Fatalf("command must not reach the conversation: cancels=%d inputs=%v", cancels, fsm.inputs)
	}

	_ = h(textContext(bot, 1, tele.ChatPrivate, "/nope"))
	if unknown != 1 || len(fsm.inputs) != 0 {
		t.Fatalf("unknown command must not reach the conversation")
	}

	_ = h(textContext(bot, 1, tele.ChatPrivate, "+15551234567"))
	if len(fsm.inputs) != 1 || fsm.inputs[0] != "+15551234567" {
		t.Fatalf("inputs = %v", fsm.inputs)
	}
}

func TestTextRoutesInputOnlyInPrivateChats(t *testing.T) {
	bot := newBot(t)
	fsm := &fakeFSM{active: map[int64]bool{1: true}}
	fallback := 0
	h := TextRoutes(fsm, nil, TextOptions{UnknownText: func(tele.Context) error { fallback++; return nil }})[0].Handler

	_ = h(textContext(bot, 1, tele.ChatGroup, "12345"))
	if len(fsm.inputs) != 0 || fallback != 1 {
		t.Fatalf("group text must not be consumed: inputs=%v fallback=%d", fsm.inputs, fallback)
	}
	_ = h(textContext(bot, 2, tele.ChatPrivate, "12345"))
	if len(fsm.inputs) != 0 || fallback != 2 {
		t.Fatalf("idle user text must fall through")
	}
}

func TestTextRoutesPropagatesErrors(t *testing.T) {
	bot := newBot(t)
	reg := tg.NewRegistry()
	want := errors.New("boom")
	_ = reg.RegisterCommand("/login", tg.Command{Description: "Login", Handler: func(tele.Context) error { return want }})
	h := TextRoutes(nil, reg, TextOptions{})[0].Handler
	if err := h(textContext(bot, 1, tele.ChatPrivate, "/login")); !errors.Is(err, want) {
		t.Fatalf("err = %v, want %v", err, want)
	}
}

func TestCallbackRoute(t *testing.T) {
	bot := newBot(t)
	reg := tg.NewRegistry()
	pressed := 0
	_ = reg.RegisterCallback("login_cancel", func(tele.Context) error { pressed++; return nil })
	missing := 0
	route := CallbackRoute(reg, CallbackOptions{NotFound: func(tele.Context) error { missing++; return nil }})
	if route.Endpoint != tele.OnCallback {
		t.Fatalf("endpoint = %v", route.Endpoint)
	}

	cb := func(data string) tele.Context {
		return bot.NewContext(tele.Update{Callback: &tele.Callback{
			ID:      "1",
			Data:    data,
			Sender:  &tele.User{ID: 1},
			Message: &tele.Message{ID: 10, Chat: &tele.Chat{ID: 1, Type: tele.ChatPrivate}},
		}})
	}
	if err := route.Handler(cb("\flogin_cancel|cancel")); err != nil {
		t.Fatalf("callback: %v", err)
	}
	_ = route.Handler(cb("\funknown"))
	if pressed != 1 || missing != 1 {
		t.Fatalf("pressed=%d missing=%d", pressed, missing)
	}
}

func TestCommandRoutesAdminOnly(t *testing.T) {
	bot := newBot(t)
	reg := tg.NewRegistry()
	calls := 0
	_ = reg.RegisterCommand("/stats", tg.Command{Description: "Stats", AdminOnly: true, Aliases: []string{"st"}, Handler: func(tele.Context) error { calls++; return nil }})
	rejected := 0
	routes := CommandRoutes(reg, CommandRouteOptions{AdminID: 9, OnAdminReject: func(tele.Context) error { rejected++; return nil }})
	if len(routes) != 2 {
		t.Fatalf("routes = %d, want command plus alias", len(routes))
	}
	for _, r := range routes {
		if r.Endpoint != "/stats" && r.Endpoint != "/st" {
			t.Fatalf("unexpected endpoint %v", r.Endpoint)
		}
	}
	_ = routes[0].Handler(textContext(bot, 9, tele.ChatPrivate, "/stats"))
	_ = routes[0].Handler(textContext(bot, 3, tele.ChatPrivate, "/stats"))
	if calls != 1 || rejected != 1 {
		t.Fatalf("calls=%d rejected=%d", calls, rejected)
	}
}

func TestDeriveErrorCode(t *testing.T) {
	if got := deriveErrorCode(errors.New("x")); got != "ERRORSTRING" {
		t.Fatalf("code = %q", got)
	}
	if got := normalizeHandlerName("/Set Bot"); got != "set_bot" {
		t.Fatalf("name = %q", got)
	}
}
