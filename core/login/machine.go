// Package login drives the interactive phone → code → password authorization
// of a user account and persists the resulting session string sealed.
package login

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/m3rciful/sessionkeeper/core/logger"
	"github.com/m3rciful/sessionkeeper/core/mtproto"
	"github.com/m3rciful/sessionkeeper/core/telegram/format"
	"github.com/m3rciful/sessionkeeper/core/telegram/state"
)

var (
	// ErrNoLogin is returned when the user has no login in progress.
	ErrNoLogin = errors.New("login: no login in progress")
	// ErrWrongStep is returned when input arrives for a step the login is not at.
	ErrWrongStep = errors.New("login: input does not match the current step")
	// ErrBusy is returned while an auth call of the same login is in flight.
	ErrBusy = errors.New("login: previous input is still being processed")
)

// SessionStore is the part of the persistence contract the flow needs.
type SessionStore interface {
	GetSession(ctx context.Context, userID int64) (string, bool, error)
	SaveSession(ctx context.Context, userID int64, blob string) error
	RemoveSession(ctx context.Context, userID int64) error
}

// Sealer encrypts session strings at rest.
type Sealer interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(blob string) (string, error)
}

// ClientRemover deregisters a user's long-lived client on logout.
type ClientRemover interface {
	RemoveUserClient(ctx context.Context, userID int64) error
}

// Options wires the machine's collaborators. Clients may be nil.
type Options struct {
	Store     SessionStore
	Sealer    Sealer
	Dialer    mtproto.Dialer
	Messenger Messenger
	Clients   ClientRemover
	// OnLogin runs after a session was persisted and the user told so.
	OnLogin func(ctx context.Context, userID int64)

	CallTimeout time.Duration
	NoticeTTL   time.Duration
	Now         func() time.Time
}

// Machine owns every user's login session.
type Machine struct {
	store     SessionStore
	sealer    Sealer
	dialer    mtproto.Dialer
	msg       Messenger
	clients   ClientRemover
	onLogin   func(ctx context.Context, userID int64)
	timeout   time.Duration
	noticeTTL time.Duration
	now       func() time.Time

	sessions *state.Table[Session]
}

// New builds a Machine.
func New(opts Options) *Machine {
	m := &Machine{
		store:     opts.Store,
		sealer:    opts.Sealer,
		dialer:    opts.Dialer,
		msg:       opts.Messenger,
		clients:   opts.Clients,
		onLogin:   opts.OnLogin,
		timeout:   opts.CallTimeout,
		noticeTTL: opts.NoticeTTL,
		now:       opts.Now,
		sessions:  state.NewTable[Session](),
	}
	if m.timeout <= 0 {
		m.timeout = 30 * time.Second
	}
	if m.noticeTTL <= 0 {
		m.noticeTTL = 5 * time.Second
	}
	if m.now == nil {
		m.now = time.Now
	}
	return m
}

// InProgress reports whether userID is somewhere between /login and a terminal step.
func (m *Machine) InProgress(userID int64) bool {
	return m.Step(userID).Active()
}

// Step returns the current step of userID.
func (m *Machine) Step(userID int64) state.State {
	s, ok := m.sessions.Get(userID)
	if !ok {
		return state.StateIdle
	}
	return s.Step
}

// Session returns a copy of the user's current login session.
func (m *Machine) Session(userID int64) (Session, bool) {
	return m.sessions.Get(userID)
}

// Active counts logins in progress.
func (m *Machine) Active() int {
	n := 0
	m.sessions.Range(func(_ int64, s Session) bool {
		if s.Step.Active() {
			n++
		}
		return true
	})
	return n
}

// Begin starts a login for req.UserID, discarding any stale attempt.
func (m *Machine) Begin(ctx context.Context, req Request) error {
	m.deleteTrigger(req)

	if _, ok, err := m.store.GetSession(ctx, req.UserID); err != nil {
		logger.LogEvent(ctx, logger.AUTH, slog.LevelWarn, "login.begin",
			slog.String("status", "fail"),
			slog.String("cause", "store"),
			slog.String("err", err.Error()),
		)
	} else if ok {
		_, sendErr := m.msg.Send(ctx, req.ChatID, TextAlreadyLoggedIn)
		logger.LogEvent(ctx, logger.AUTH, slog.LevelInfo, "login.begin",
			slog.String("status", "skip"),
			slog.String("cause", "already_logged_in"),
		)
		return sendErr
	}

	fresh := Session{
		UserID:    req.UserID,
		ChatID:    req.ChatID,
		Step:      StepAwaitingPhone,
		AttemptID: uuid.NewString(),
		StartedAt: m.now(),
		busy:      true, // until the prompt is the status message
	}
	prev, replaced := m.sessions.Put(req.UserID, fresh)
	ctx = logger.WithAttempt(ctx, fresh.AttemptID)
	if replaced && prev.Client != nil {
		m.disconnect(ctx, prev.Client, "superseded")
	}
	logger.LogEvent(ctx, logger.AUTH, slog.LevelInfo, "login.begin",
		slog.String("status", "ok"),
		slog.String("from_step", prev.Step.String()),
		slog.String("to_step", fresh.Step.String()),
	)

	ref, err := m.msg.Send(ctx, req.ChatID, TextPhonePrompt)
	if err != nil {
		m.update(fresh, func(s *Session) { s.busy = false })
		return fmt.Errorf("send phone prompt: %w", err)
	}
	if !m.update(fresh, func(s *Session) { s.Status = ref; s.busy = false }) {
		m.msg.DeleteLater(ref, 0)
	}
	return nil
}

// Submit routes free-form text to the operation matching the user's current step.
func (m *Machine) Submit(ctx context.Context, req Request, text string) error {
	cur, ok := m.sessions.Get(req.UserID)
	if !ok || !cur.Step.Active() {
		return ErrNoLogin
	}
	m.deleteTrigger(req)
	if cur.busy {
		return m.rejected(ctx, ErrBusy)
	}

	if !cur.Status.Valid() {
		ref, err := m.msg.Send(ctx, req.ChatID, TextProcessing)
		if err != nil {
			return fmt.Errorf("send status: %w", err)
		}
		stored := false
		m.update(cur, func(s *Session) {
			if !s.Status.Valid() {
				s.Status, stored = ref, true
			}
		})
		if !stored {
			m.msg.DeleteLater(ref, 0)
		}
	}

	switch cur.Step {
	case StepAwaitingPhone:
		return m.submitPhone(ctx, req, text)
	case StepAwaitingCode:
		return m.submitCode(ctx, req, text)
	case StepAwaitingPassword:
		return m.submitPassword(ctx, req, text)
	}
	return ErrWrongStep
}

// SubmitPhone handles the phone number of a login at StepAwaitingPhone.
func (m *Machine) SubmitPhone(ctx context.Context, req Request, text string) error {
	m.deleteTrigger(req)
	return m.submitPhone(ctx, req, text)
}

// SubmitCode handles the verification code of a login at StepAwaitingCode.
func (m *Machine) SubmitCode(ctx context.Context, req Request, text string) error {
	m.deleteTrigger(req)
	return m.submitCode(ctx, req, text)
}

// SubmitPassword handles the 2FA password of a login at StepAwaitingPassword.
func (m *Machine) SubmitPassword(ctx context.Context, req Request, text string) error {
	m.deleteTrigger(req)
	return m.submitPassword(ctx, req, text)
}

func (m *Machine) submitPhone(ctx context.Context, req Request, text string) error {
	snap, err := m.claim(req.UserID, StepAwaitingPhone)
	if err != nil {
		return m.rejected(ctx, err)
	}
	ctx = logger.WithAttempt(ctx, snap.AttemptID)
	phone := strings.TrimSpace(text)
	if !strings.HasPrefix(phone, "+") {
		if m.update(snap, func(s *Session) { s.busy = false }) {
			m.notify(ctx, snap, TextInvalidPhone)
		}
		return nil
	}
	m.notify(ctx, snap, TextProcessingPhone)

	client, err := m.dialer.Transient(req.UserID)
	if err != nil {
		m.fail(ctx, snap, nil, mtproto.OutcomeFailed, err, fmt.Sprintf(TextPhoneError, format.Plain(err.Error())))
		return nil
	}
	if !m.update(snap, func(s *Session) { s.Client = client; s.busy = true }) {
		m.disconnect(ctx, client, "superseded")
		return nil
	}

	start := time.Now()
	callCtx, cancel := context.WithTimeout(ctx, m.timeout)
	hash, err := m.sendCode(callCtx, client, phone)
	cancel()

	if err != nil {
		m.fail(ctx, snap, client, mtproto.OutcomeFailed, err, fmt.Sprintf(TextPhoneError, format.Plain(mtproto.Describe(err))))
		return nil
	}
	advanced := m.update(snap, func(s *Session) {
		s.Phone = phone
		s.PhoneCodeHash = hash
		s.Step = StepAwaitingCode
		s.busy = false
	})
	if !advanced {
		m.superseded(ctx, client)
		return nil
	}
	m.logStep(ctx, StepAwaitingPhone, StepAwaitingCode, mtproto.OutcomeSuccess, time.Since(start),
		slog.String("phone", logger.MaskPhone(phone)))
	m.notify(ctx, snap, TextCodeSent)
	return nil
}

func (m *Machine) sendCode(ctx context.Context, client mtproto.Client, phone string) (string, error) {
	if err := client.Connect(ctx); err != nil {
		return "", err
	}
	return client.SendCode(ctx, phone)
}

func (m *Machine) submitCode(ctx context.Context, req Request, text string) error {
	snap, err := m.claim(req.UserID, StepAwaitingCode)
	if err != nil {
		return m.rejected(ctx, err)
	}
	ctx = logger.WithAttempt(ctx, snap.AttemptID)
	if snap.Phone == "" || snap.PhoneCodeHash == "" || snap.Client == nil {
		m.fail(ctx, snap, snap.Client, mtproto.OutcomeFailed, errors.New("phone, hash or client missing"), TextDataMissing)
		return nil
	}

	code := strings.Join(strings.Fields(text), "")
	m.notify(ctx, snap, TextVerifyingCode)

	start := time.Now()
	callCtx, cancel := context.WithTimeout(ctx, m.timeout)
	res := snap.Client.SignIn(callCtx, snap.Phone, snap.PhoneCodeHash, code)
	cancel()

	switch res.Outcome {
	case mtproto.OutcomeSuccess:
		m.complete(ctx, snap, StepAwaitingCode, start)
	case mtproto.OutcomeNeedsPassword:
		if !m.update(snap, func(s *Session) { s.Step = StepAwaitingPassword; s.busy = false }) {
			m.superseded(ctx, snap.Client)
			return nil
		}
		m.logStep(ctx, StepAwaitingCode, StepAwaitingPassword, res.Outcome, time.Since(start))
		m.notify(ctx, snap, TextPasswordPrompt)
	case mtproto.OutcomeInvalidCode, mtproto.OutcomeExpiredCode:
		m.fail(ctx, snap, snap.Client, res.Outcome, res.Err, fmt.Sprintf(TextCodeRejected, format.Plain(mtproto.Describe(res.Err))))
	default:
		m.fail(ctx, snap, snap.Client, res.Outcome, res.Err, fmt.Sprintf(TextSignInError, format.Plain(mtproto.Describe(res.Err))))
	}
	return nil
}

func (m *Machine) submitPassword(ctx context.Context, req Request, text string) error {
	snap, err := m.claim(req.UserID, StepAwaitingPassword)
	if err != nil {
		return m.rejected(ctx, err)
	}
	ctx = logger.WithAttempt(ctx, snap.AttemptID)
	if snap.Client == nil {
		m.fail(ctx, snap, nil, mtproto.OutcomeFailed, errors.New("client missing"), TextSessionExpired)
		return nil
	}
	m.notify(ctx, snap, TextVerifyingPass)

	start := time.Now()
	callCtx, cancel := context.WithTimeout(ctx, m.timeout)
	res := snap.Client.CheckPassword(callCtx, text)
	cancel()

	switch res.Outcome {
	case mtproto.OutcomeSuccess:
		m.complete(ctx, snap, StepAwaitingPassword, start)
	case mtproto.OutcomeWrongPassword:
		if !m.update(snap, func(s *Session) { s.busy = false }) {
			return nil
		}
		m.logStep(ctx, StepAwaitingPassword, StepAwaitingPassword, res.Outcome, time.Since(start))
		m.notify(ctx, snap, fmt.Sprintf(TextWrongPassword, format.Plain(mtproto.Describe(res.Err))))
	default:
		m.fail(ctx, snap, snap.Client, res.Outcome, res.Err, fmt.Sprintf(TextGenericError, format.Plain(mtproto.Describe(res.Err))))
	}
	return nil
}

// complete persists the authorized session and resets the login to idle,
// keeping only the status message. The attempt is re-checked after every
// call that can outlive a cancel or a fresh /login.
func (m *Machine) complete(ctx context.Context, snap Session, from state.State, start time.Time) {
	if !m.current(snap) {
		m.superseded(ctx, snap.Client)
		return
	}

	callCtx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()
	sealed, err := m.seal(callCtx, snap.Client)
	if err != nil {
		m.fail(ctx, snap, snap.Client, mtproto.OutcomeFailed, err, fmt.Sprintf(TextGenericError, format.Plain(err.Error())))
		return
	}
	if !m.current(snap) {
		m.superseded(ctx, snap.Client)
		return
	}
	if err := m.store.SaveSession(callCtx, snap.UserID, sealed); err != nil {
		err = fmt.Errorf("save session: %w", err)
		m.fail(ctx, snap, snap.Client, mtproto.OutcomeFailed, err, fmt.Sprintf(TextGenericError, format.Plain(err.Error())))
		return
	}
	m.disconnect(ctx, snap.Client, "completed")

	finished := false
	m.sessions.Update(snap.UserID, func(cur Session, ok bool) (Session, bool) {
		if !ok || cur.AttemptID != snap.AttemptID {
			return cur, ok
		}
		finished = true
		return Session{UserID: snap.UserID, ChatID: snap.ChatID, Step: state.StateIdle, Status: cur.Status}, true
	})
	if !finished {
		m.revoke(ctx, snap.UserID)
		return
	}
	m.logStep(ctx, from, state.StateIdle, mtproto.OutcomeSuccess, time.Since(start))
	m.notify(ctx, snap, TextLoggedIn)
	if m.onLogin != nil {
		m.onLogin(ctx, snap.UserID)
	}
}

// current reports whether snap is still the user's attempt.
func (m *Machine) current(snap Session) bool {
	cur, ok := m.sessions.Get(snap.UserID)
	return ok && cur.AttemptID == snap.AttemptID
}

func (m *Machine) seal(ctx context.Context, client mtproto.Client) (string, error) {
	sessionString, err := client.ExportSession(ctx)
	if err != nil {
		return "", fmt.Errorf("export session: %w", err)
	}
	sealed, err := m.sealer.Encrypt(sessionString)
	if err != nil {
		return "", fmt.Errorf("encrypt session: %w", err)
	}
	return sealed, nil
}

// revoke removes a session saved by an attempt that ended while it was saving.
func (m *Machine) revoke(ctx context.Context, userID int64) {
	err := m.store.RemoveSession(ctx, userID)
	logger.LogEvent(ctx, logger.AUTH, levelFor(err), "login.discard",
		slog.String("status", logger.Status(err)),
		slog.String("outcome", "superseded"),
		slog.String("cause", "ended_during_save"),
		errAttr(err),
	)
}

// Cancel aborts the user's login. An in-flight call is not interrupted; its
// result is discarded when it returns.
func (m *Machine) Cancel(ctx context.Context, req Request) error {
	m.deleteTrigger(req)

	prev, ok := m.sessions.Delete(req.UserID)
	if !ok || !prev.Step.Active() {
		m.notice(ctx, req.ChatID, TextNothingToCancel)
		return nil
	}
	ctx = logger.WithAttempt(ctx, prev.AttemptID)
	if prev.Client != nil {
		m.disconnect(ctx, prev.Client, "cancelled")
	}
	logger.LogEvent(ctx, logger.AUTH, slog.LevelInfo, "login.cancel",
		slog.String("status", "ok"),
		slog.String("from_step", prev.Step.String()),
		slog.String("outcome", "cancelled"),
	)
	if prev.Status.Valid() {
		if err := m.msg.Edit(ctx, prev.Status, TextCancelled); err == nil {
			return nil
		}
	}
	m.notice(ctx, req.ChatID, TextCancelled)
	return nil
}

// Logout terminates the user's persisted session remotely (best effort) and
// always removes it locally.
func (m *Machine) Logout(ctx context.Context, req Request) error {
	m.deleteTrigger(req)

	status, err := m.msg.Send(ctx, req.ChatID, TextLogoutProcessing)
	if err != nil {
		logger.LogEvent(ctx, logger.AUTH, slog.LevelWarn, "logout.status",
			slog.String("status", "fail"),
			slog.String("err", err.Error()),
		)
	}
	view := Session{UserID: req.UserID, ChatID: req.ChatID, Status: status}

	blob, ok, err := m.store.GetSession(ctx, req.UserID)
	if err != nil {
		m.notify(ctx, view, fmt.Sprintf(TextLogoutError, format.Plain(err.Error())))
		return fmt.Errorf("load session: %w", err)
	}
	if !ok {
		m.notify(ctx, view, TextNoSession)
		logger.LogEvent(ctx, logger.AUTH, slog.LevelInfo, "logout",
			slog.String("status", "skip"),
			slog.String("cause", "no_session"),
		)
		return nil
	}

	if remoteErr := m.terminateRemote(ctx, req.UserID, blob); remoteErr != nil {
		m.notify(ctx, view, fmt.Sprintf(TextRemoteFailed, format.Plain(mtproto.Describe(remoteErr))))
	} else {
		m.notify(ctx, view, TextRemoteTerminated)
	}

	var errs []error
	if err := m.store.RemoveSession(ctx, req.UserID); err != nil {
		errs = append(errs, fmt.Errorf("remove session: %w", err))
	}
	if m.clients != nil {
		if err := m.clients.RemoveUserClient(ctx, req.UserID); err != nil {
			errs = append(errs, fmt.Errorf("remove client: %w", err))
		}
	}
	cleanupErr := errors.Join(errs...)
	logger.LogEvent(ctx, logger.AUTH, levelFor(cleanupErr), "logout",
		slog.String("status", logger.Status(cleanupErr)),
		errAttr(cleanupErr),
	)
	if cleanupErr != nil {
		m.notify(ctx, view, fmt.Sprintf(TextLogoutError, format.Plain(cleanupErr.Error())))
		return cleanupErr
	}
	m.notify(ctx, view, TextLoggedOut)
	return nil
}

func (m *Machine) terminateRemote(ctx context.Context, userID int64, blob string) error {
	sessionString, err := m.sealer.Decrypt(blob)
	if err != nil {
		return fmt.Errorf("decrypt session: %w", err)
	}
	client, err := m.dialer.FromSession(userID, sessionString)
	if err != nil {
		return err
	}
	defer m.disconnect(ctx, client, "logout")

	callCtx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()
	if err := client.Connect(callCtx); err != nil {
		return err
	}
	err = client.LogOut(callCtx)
	logger.LogEvent(ctx, logger.AUTH, levelFor(err), "logout.remote",
		slog.String("status", logger.Status(err)),
		errAttr(err),
	)
	return err
}

// claim marks the login busy when it is at step want and returns a snapshot.
func (m *Machine) claim(userID int64, want state.State) (Session, error) {
	var (
		snap Session
		err  error
	)
	m.sessions.Update(userID, func(cur Session, ok bool) (Session, bool) {
		switch {
		case !ok || !cur.Step.Active():
			err = ErrNoLogin
		case cur.Step != want:
			err = ErrWrongStep
		case cur.busy:
			err = ErrBusy
		default:
			cur.busy = true
			snap = cur
		}
		return cur, ok
	})
	return snap, err
}

// update applies fn to the stored session if it is still the attempt of snap.
func (m *Machine) update(snap Session, fn func(*Session)) bool {
	applied := false
	m.sessions.Update(snap.UserID, func(cur Session, ok bool) (Session, bool) {
		if !ok || cur.AttemptID != snap.AttemptID {
			return cur, ok
		}
		fn(&cur)
		applied = true
		return cur, true
	})
	return applied
}

// fail reports text, drops the attempt of snap and disconnects client.
func (m *Machine) fail(ctx context.Context, snap Session, client mtproto.Client, outcome mtproto.Outcome, cause error, text string) {
	dropped := false
	m.sessions.Update(snap.UserID, func(cur Session, ok bool) (Session, bool) {
		if !ok || cur.AttemptID != snap.AttemptID {
			return cur, ok
		}
		dropped = true
		return Session{}, false
	})
	if client != nil {
		m.disconnect(ctx, client, outcome.String())
	}
	if !dropped {
		return
	}
	attrs := []slog.Attr{
		slog.String("status", "fail"),
		slog.String("from_step", snap.Step.String()),
		slog.String("to_step", state.StateIdle.String()),
		slog.String("outcome", outcome.String()),
	}
	if cause != nil {
		attrs = append(attrs, slog.String("err", cause.Error()))
	}
	logger.LogEvent(ctx, logger.AUTH, slog.LevelWarn, "login.step", attrs...)
	m.notify(ctx, snap, text)
}

func (m *Machine) superseded(ctx context.Context, client mtproto.Client) {
	if client != nil {
		m.disconnect(ctx, client, "superseded")
	}
	logger.LogEvent(ctx, logger.AUTH, slog.LevelInfo, "login.discard",
		slog.String("status", "skip"),
		slog.String("outcome", "superseded"),
	)
}

func (m *Machine) rejected(ctx context.Context, err error) error {
	if errors.Is(err, ErrBusy) {
		logger.LogEvent(ctx, logger.AUTH, slog.LevelDebug, "login.input",
			slog.String("status", "skip"),
			slog.String("cause", "busy"),
		)
	}
	return err
}

func (m *Machine) disconnect(ctx context.Context, client mtproto.Client, reason string) {
	if err := client.Disconnect(); err != nil {
		logger.LogEvent(ctx, logger.AUTH, slog.LevelWarn, "login.disconnect",
			slog.String("status", "fail"),
			slog.String("cause", reason),
			slog.String("err", err.Error()),
		)
	}
}

// notify edits the status message of s, or sends a self-deleting notice when there is none.
func (m *Machine) notify(ctx context.Context, s Session, text string) {
	ref := s.Status
	if s.AttemptID != "" {
		if cur, ok := m.sessions.Get(s.UserID); ok && cur.AttemptID == s.AttemptID && cur.Status.Valid() {
			ref = cur.Status
		}
	}
	if ref.Valid() {
		err := m.msg.Edit(ctx, ref, text)
		if err == nil {
			return
		}
		logger.LogEvent(ctx, logger.AUTH, slog.LevelWarn, "status.edit",
			slog.String("status", "fail"),
			slog.String("err", err.Error()),
		)
	}
	m.notice(ctx, s.ChatID, text)
}

func (m *Machine) notice(ctx context.Context, chatID int64, text string) {
	ref, err := m.msg.Send(ctx, chatID, text)
	if err != nil {
		logger.LogEvent(ctx, logger.AUTH, slog.LevelWarn, "notice.send",
			slog.String("status", "fail"),
			slog.String("err", err.Error()),
		)
		return
	}
	m.msg.DeleteLater(ref, m.noticeTTL)
}

func (m *Machine) deleteTrigger(req Request) {
	if !req.Trigger.Valid() {
		return
	}
	m.msg.DeleteLater(req.Trigger, 0)
}

func (m *Machine) logStep(ctx context.Context, from, to state.State, outcome mtproto.Outcome, took time.Duration, extra ...slog.Attr) {
	attrs := append([]slog.Attr{
		slog.String("status", "ok"),
		slog.String("from_step", from.String()),
		slog.String("to_step", to.String()),
		slog.String("outcome", outcome.String()),
		slog.Duration("duration", took),
	}, extra...)
	logger.LogEvent(ctx, logger.AUTH, slog.LevelInfo, "login.step", attrs...)
}

func levelFor(err error) slog.Level {
	if err != nil {
		return slog.LevelWarn
	}
	return slog.LevelInfo
}

func errAttr(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.String("err", err.Error())
}
