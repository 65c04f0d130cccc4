package login

import (
	"context"
	"time"

	"github.com/m3rciful/sessionkeeper/core/mtproto"
	"github.com/m3rciful/sessionkeeper/core/telegram/state"
)

// Login steps. The idle step is state.StateIdle.
const (
	StepAwaitingPhone    state.State = "awaiting_phone"
	StepAwaitingCode     state.State = "awaiting_code"
	StepAwaitingPassword state.State = "awaiting_password"
)

// MessageRef points at a chat message the bot can edit or delete.
type MessageRef struct {
	ChatID    int64
	MessageID int
}

// Valid reports whether r points at a message.
func (r MessageRef) Valid() bool { return r.MessageID != 0 }

// Messenger delivers the flow's chat messages.
type Messenger interface {
	Send(ctx context.Context, chatID int64, text string) (MessageRef, error)
	Edit(ctx context.Context, ref MessageRef, text string) error
	Delete(ctx context.Context, ref MessageRef) error
	// DeleteLater removes ref after delay without blocking the caller.
	DeleteLater(ref MessageRef, delay time.Duration)
}

// Request identifies who triggered an operation and with which message.
type Request struct {
	UserID  int64
	ChatID  int64
	Trigger MessageRef
}

// Session is the per-user login context. It is copied in and out of the table;
// Client is exclusively owned by the session that holds it.
type Session struct {
	UserID        int64
	ChatID        int64
	Step          state.State
	Phone         string
	PhoneCodeHash string
	Client        mtproto.Client
	Status        MessageRef
	AttemptID     string
	StartedAt     time.Time

	busy bool
}

// Busy reports an auth call in flight.
func (s Session) Busy() bool { return s.busy }
