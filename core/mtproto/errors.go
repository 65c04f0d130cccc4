package mtproto

import (
	"errors"

	"github.com/gotd/td/telegram/auth"
	"github.com/gotd/td/tgerr"
)

// Classify maps an error of a sign-in or password call to a result.
func Classify(err error) AuthResult {
	switch {
	case err == nil:
		return AuthResult{Outcome: OutcomeSuccess}
	case errors.Is(err, auth.ErrPasswordAuthNeeded), tgerr.Is(err, "SESSION_PASSWORD_NEEDED"):
		return AuthResult{Outcome: OutcomeNeedsPassword, Err: err}
	case errors.Is(err, auth.ErrPasswordInvalid), tgerr.Is(err, "PASSWORD_HASH_INVALID"):
		return AuthResult{Outcome: OutcomeWrongPassword, Err: err}
	case tgerr.Is(err, "PHONE_CODE_INVALID", "PHONE_CODE_EMPTY"):
		return AuthResult{Outcome: OutcomeInvalidCode, Err: err}
	case tgerr.Is(err, "PHONE_CODE_EXPIRED"):
		return AuthResult{Outcome: OutcomeExpiredCode, Err: err}
	default:
		return AuthResult{Outcome: OutcomeFailed, Err: err}
	}
}

// Describe returns the user-facing text of err: the RPC error type when the
// server rejected the call, the plain error text otherwise.
func Describe(err error) string {
	if err == nil {
		return ""
	}
	if rpcErr, ok := tgerr.As(err); ok {
		return rpcErr.Message
	}
	if errors.Is(err, auth.ErrPasswordInvalid) {
		return "PASSWORD_HASH_INVALID"
	}
	return err.Error()
}
