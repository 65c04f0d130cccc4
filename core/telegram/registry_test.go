package telegram

import (
	"errors"
	"testing"

	tele "gopkg.in/telebot.v4"
)

func noop(tele.Context) error { return nil }

func TestRegistryCommands(t *testing.T) {
	reg := NewRegistry()
	if err := reg.RegisterCommand("/login", Command{Handler: noop, Description: "Log in", Aliases: []string{"signin"}}); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := reg.RegisterCommand("/stats", Command{Handler: noop, Description: "Stats", AdminOnly: true}); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := reg.RegisterCommand("/login", Command{Handler: noop, Description: "dup"}); err == nil {
		t.Fatalf("duplicate must be rejected")
	}
	if err := reg.RegisterCommand("logout", Command{Handler: noop, Description: "x"}); err == nil {
		t.Fatalf("missing slash must be rejected")
	}
	if err := reg.RegisterCommand("/x", Command{Description: "x"}); err == nil {
		t.Fatalf("nil handler must be rejected")
	}

	for _, text := range []string{"/login", "/login@sessionkeeper_bot", "/signin", "signin extra args"} {
		if key, _, ok := reg.LookupCommand(text); !ok || key != "/login" {
			t.Fatalf("lookup %q = %q, %v", text, key, ok)
		}
	}
	if _, _, ok := reg.LookupCommand("+15551234567"); ok {
		t.Fatalf("plain text must not resolve to a command")
	}

	visible := reg.ListCommands(true)
	if len(visible) != 1 || visible[0].Text != "login" {
		t.Fatalf("visible commands = %+v", visible)
	}
	if all := reg.ListCommands(false); len(all) != 2 || all[0].Text != "login" || all[1].Text != "stats" {
		t.Fatalf("all commands = %+v", all)
	}
}

func TestRegistryCallbacks(t *testing.T) {
	reg := NewRegistry()
	if err := reg.RegisterCallback("login_cancel", noop); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := reg.RegisterCallback("login_cancel", noop); err == nil {
		t.Fatalf("duplicate callback must be rejected")
	}
	if err := reg.RegisterCallback("", noop); err == nil {
		t.Fatalf("empty key must be rejected")
	}
	if _, ok := reg.GetCallback("login_cancel"); !ok {
		t.Fatalf("callback not found")
	}
	if keys := reg.ListCallbacks(); len(keys) != 1 || keys[0] != "login_cancel" {
		t.Fatalf("keys = %v", keys)
	}
	if reg.CallbackNotFound() == nil {
		t.Fatalf("default not-found handler missing")
	}
}

type commandSetter struct {
	got []tele.Command
	err error
}

func (s *commandSetter) SetCommands(opts ...interface{}) error {
	if len(opts) > 0 {
		s.got, _ = opts[0].([]tele.Command)
	}
	return s.err
}

func TestInitBotCommands(t *testing.T) {
	reg := NewRegistry()
	_ = reg.RegisterCommand("/login", Command{Handler: noop, Description: "Log in"})
	_ = reg.RegisterCommand("/secret", Command{Handler: noop, Description: "x", Hidden: true})

	s := &commandSetter{}
	if err := InitBotCommands(s, reg); err != nil {
		t.Fatalf("init: %v", err)
	}
	if len(s.got) != 1 || s.got[0].Text != "login" {
		t.Fatalf("published = %+v", s.got)
	}

	s.err = errors.New("flood")
	if err := InitBotCommands(s, reg); err == nil {
		t.Fatalf("expected error")
	}
}
