package app

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/m3rciful/sessionkeeper/core/logger"
	"github.com/m3rciful/sessionkeeper/core/login"
	"github.com/m3rciful/sessionkeeper/core/telegram/keyboard"
	"github.com/m3rciful/sessionkeeper/core/telegram/sender"

	tele "gopkg.in/telebot.v4"
)

// CancelKey is the callback unique of the inline cancel button.
const CancelKey = "login_cancel"

var errNotBound = errors.New("app: messenger is not bound to a bot")

// botAPI is the part of tele.Bot the messenger drives.
type botAPI interface {
	Send(to tele.Recipient, what interface{}, opts ...interface{}) (*tele.Message, error)
	Edit(msg tele.Editable, what interface{}, opts ...interface{}) (*tele.Message, error)
	Delete(msg tele.Editable) error
}

// Messenger delivers login status messages through the Bot API. Messages
// sent or edited while the chat has a login in progress carry the cancel button.
type Messenger struct {
	mu     sync.RWMutex
	api    botAPI
	disp   *sender.Dispatcher
	active func(chatID int64) bool
}

// Bind attaches the bot and the async dispatcher used by DeleteLater.
func (m *Messenger) Bind(api botAPI, disp *sender.Dispatcher) {
	m.mu.Lock()
	m.api, m.disp = api, disp
	m.mu.Unlock()
}

// ShowCancelWhen sets the predicate deciding whether a chat gets the cancel button.
func (m *Messenger) ShowCancelWhen(active func(chatID int64) bool) {
	m.mu.Lock()
	m.active = active
	m.mu.Unlock()
}

func (m *Messenger) bound() (botAPI, *sender.Dispatcher, func(int64) bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.api, m.disp, m.active
}

func (m *Messenger) options(active func(int64) bool, chatID int64) *tele.SendOptions {
	opts := &tele.SendOptions{ParseMode: tele.ModeMarkdown}
	if active != nil && active(chatID) {
		opts.ReplyMarkup = keyboard.SingleCancelMarkup(CancelKey)
	}
	return opts
}

// Send posts text to chatID.
func (m *Messenger) Send(_ context.Context, chatID int64, text string) (login.MessageRef, error) {
	api, _, active := m.bound()
	if api == nil {
		return login.MessageRef{}, errNotBound
	}
	msg, err := api.Send(tele.ChatID(chatID), text, m.options(active, chatID))
	if err != nil {
		return login.MessageRef{}, err
	}
	ref := login.MessageRef{ChatID: chatID, MessageID: msg.ID}
	if msg.Chat != nil {
		ref.ChatID = msg.Chat.ID
	}
	return ref, nil
}

// Edit replaces the text of ref. Editing to identical content is not an error.
func (m *Messenger) Edit(_ context.Context, ref login.MessageRef, text string) error {
	api, _, active := m.bound()
	if api == nil {
		return errNotBound
	}
	_, err := api.Edit(stored(ref), text, m.options(active, ref.ChatID))
	if err != nil && strings.Contains(err.Error(), "message is not modified") {
		return nil
	}
	return err
}

// Delete removes ref.
func (m *Messenger) Delete(_ context.Context, ref login.MessageRef) error {
	api, _, _ := m.bound()
	if api == nil {
		return errNotBound
	}
	return api.Delete(stored(ref))
}

// DeleteLater removes ref after delay through the dispatcher, or a timer when none is bound.
func (m *Messenger) DeleteLater(ref login.MessageRef, delay time.Duration) {
	if !ref.Valid() {
		return
	}
	ctx := logger.Background()
	run := func() error { return m.Delete(ctx, ref) }

	if _, disp, _ := m.bound(); disp != nil {
		if err := disp.EnqueueAfter(ctx, delay, "delete.message", "deleteMessage", run); err == nil {
			return
		}
	}
	time.AfterFunc(delay, func() {
		if err := run(); err != nil {
			logger.Debug(ctx, "tg.sender", "delete.fail",
				slog.String("status", "fail"),
				slog.String("err", err.Error()),
			)
		}
	})
}

func stored(ref login.MessageRef) tele.StoredMessage {
	return tele.StoredMessage{MessageID: strconv.Itoa(ref.MessageID), ChatID: ref.ChatID}
}
