// Package mtproto is the auth transport used by the login flow and the session
// registry. The interfaces keep the core independent of the gotd client.
package mtproto

import "context"

// Outcome classifies the result of an authentication call.
type Outcome int

const (
	OutcomeSuccess Outcome = iota
	OutcomeNeedsPassword
	OutcomeInvalidCode
	OutcomeExpiredCode
	OutcomeWrongPassword
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "ok"
	case OutcomeNeedsPassword:
		return "needs_password"
	case OutcomeInvalidCode:
		return "invalid_code"
	case OutcomeExpiredCode:
		return "expired_code"
	case OutcomeWrongPassword:
		return "wrong_password"
	default:
		return "fail"
	}
}

// AuthResult is returned by SignIn and CheckPassword. Err carries the remote
// error for every outcome except OutcomeSuccess.
type AuthResult struct {
	Outcome Outcome
	Err     error
}

// OK reports a completed authorization.
func (r AuthResult) OK() bool { return r.Outcome == OutcomeSuccess }

// Identity describes the account behind a connected client.
type Identity struct {
	ID        int64
	Username  string
	FirstName string
	Bot       bool
}

// Client is one MTProto connection. Connect must succeed before any other call;
// Disconnect is safe to call more than once.
type Client interface {
	Connect(ctx context.Context) error
	Disconnect() error
	SendCode(ctx context.Context, phone string) (string, error)
	SignIn(ctx context.Context, phone, phoneCodeHash, code string) AuthResult
	CheckPassword(ctx context.Context, password string) AuthResult
	ExportSession(ctx context.Context) (string, error)
	LogOut(ctx context.Context) error
	LoginBot(ctx context.Context, token string) error
	Self(ctx context.Context) (Identity, error)
}

// Dialer creates clients without connecting them.
type Dialer interface {
	// Transient returns an in-memory client for an interactive login.
	Transient(userID int64) (Client, error)
	// FromSession restores an in-memory client from an exported session string.
	FromSession(userID int64, session string) (Client, error)
	// Bot returns a client whose session lives in the artifact file.
	Bot(userID int64, artifact string) (Client, error)
}
