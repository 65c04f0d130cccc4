package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/m3rciful/sessionkeeper/core/logger"
	"github.com/m3rciful/sessionkeeper/core/login"
	"github.com/m3rciful/sessionkeeper/core/mtproto"
	tg "github.com/m3rciful/sessionkeeper/core/telegram"
	"github.com/m3rciful/sessionkeeper/core/telegram/format"
	tghelpers "github.com/m3rciful/sessionkeeper/core/telegram/helpers"
	"github.com/m3rciful/sessionkeeper/core/telegram/router"

	tele "gopkg.in/telebot.v4"
)

func (a *App) registerCommands() error {
	cmds := []struct {
		name string
		cmd  tg.Command
	}{
		{"/login", tg.Command{Handler: a.handleLogin, Description: "Log in to your Telegram account"}},
		{"/cancel", tg.Command{Handler: a.handleCancel, Description: "Cancel the login in progress"}},
		{"/logout", tg.Command{Handler: a.handleLogout, Description: "Log out and delete your stored session"}},
		{"/setbot", tg.Command{Handler: a.handleSetBot, Description: "Save your bot token: /setbot <token>"}},
		{"/rembot", tg.Command{Handler: a.handleRemBot, Description: "Remove your stored bot token"}},
		{"/status", tg.Command{Handler: a.handleStatus, Description: "Show your session status"}},
		{"/stats", tg.Command{Handler: a.handleStats, Description: "Show bot statistics", AdminOnly: true}},
	}
	var errs []error
	for _, c := range cmds {
		errs = append(errs, a.commands.RegisterCommand(c.name, c.cmd))
	}
	errs = append(errs, a.commands.RegisterCallback(CancelKey, a.handleCancel))
	return errors.Join(errs...)
}

// request describes the update for the login machine; the triggering
// message is only set for messages, never for button presses.
func request(c tele.Context) login.Request {
	chatID, userID := tghelpers.IDs(c)
	req := login.Request{UserID: userID, ChatID: chatID}
	if c.Callback() == nil {
		if msg := c.Message(); msg != nil {
			req.Trigger = login.MessageRef{ChatID: chatID, MessageID: msg.ID}
		}
	}
	return req
}

func (a *App) handleLogin(c tele.Context) error {
	return a.login.Begin(tghelpers.BuildContext(c), request(c))
}

func (a *App) handleCancel(c tele.Context) error {
	return a.login.Cancel(tghelpers.BuildContext(c), request(c))
}

func (a *App) handleLogout(c tele.Context) error {
	return a.login.Logout(tghelpers.BuildContext(c), request(c))
}

func (a *App) handleSetBot(c tele.Context) error {
	ctx := tghelpers.BuildContext(c)
	_, userID := tghelpers.IDs(c)
	_ = tghelpers.DeleteTrigger(c)

	var token string
	if msg := c.Message(); msg != nil {
		token = strings.TrimSpace(msg.Payload)
	}
	if token == "" {
		a.sessions.StopUserBot(ctx, userID)
		return tghelpers.SendMD(c, textSetBotUsage)
	}
	if err := a.sessions.SetBotToken(ctx, userID, token); err != nil {
		_ = tghelpers.SendMD(c, fmt.Sprintf(textCommandFailed, format.Plain(err.Error())))
		return err
	}
	if _, err := a.sessions.UserBot(ctx, userID); err != nil {
		if rmErr := a.sessions.RemoveBotToken(ctx, userID); rmErr != nil {
			err = errors.Join(err, rmErr)
		}
		_ = tghelpers.SendMD(c, fmt.Sprintf(textBotFailed, format.Plain(mtproto.Describe(err))))
		return fmt.Errorf("start bot: %w", err)
	}
	return tghelpers.SendMD(c, textBotSaved)
}

func (a *App) handleRemBot(c tele.Context) error {
	ctx := tghelpers.BuildContext(c)
	_, userID := tghelpers.IDs(c)
	if err := a.sessions.RemoveBotToken(ctx, userID); err != nil {
		_ = tghelpers.SendMD(c, fmt.Sprintf(textCommandFailed, format.Plain(err.Error())))
		return err
	}
	return tghelpers.SendMD(c, textBotRemoved)
}

func (a *App) handleStatus(c tele.Context) error {
	ctx := tghelpers.BuildContext(c)
	_, userID := tghelpers.IDs(c)

	_, hasSession, err := a.store.GetSession(ctx, userID)
	if err != nil {
		return fmt.Errorf("load session: %w", err)
	}
	_, hasToken, err := a.store.GetBotToken(ctx, userID)
	if err != nil {
		return fmt.Errorf("load bot token: %w", err)
	}
	bot, client := a.sessions.Registered(userID)
	return tghelpers.SendMD(c, fmt.Sprintf(textStatus,
		a.login.Step(userID), yesNo(hasSession), yesNo(hasToken), yesNo(bot), yesNo(client)))
}

func (a *App) handleStats(c tele.Context) error {
	st := a.sessions.Stats()
	userbot := "not running"
	if _, self, ok := a.sessions.Userbot(); ok {
		userbot = "running"
		if self.Username != "" {
			userbot += " as @" + format.Plain(self.Username)
		}
	}
	var failed uint64
	if a.disp != nil {
		failed = a.disp.ErrorCount()
	}
	return tghelpers.SendMD(c, fmt.Sprintf(textStats, a.login.Active(), st.Bots, st.Clients, userbot, failed))
}

// restoreClient registers the user's client from the session a login just saved.
func (a *App) restoreClient(ctx context.Context, userID int64) {
	if _, err := a.sessions.UserClient(ctx, userID); err != nil {
		logger.LogEvent(ctx, logger.REG, slog.LevelWarn, "client.restore",
			slog.String("status", "fail"),
			slog.Int64("user_id", userID),
			slog.String("err", err.Error()),
		)
	}
}

func (a *App) handleAdminReject(c tele.Context) error {
	return tghelpers.SendMD(c, textAdminOnly)
}

func (a *App) handleUnknownCommand(c tele.Context) error {
	return tghelpers.SendMD(c, textUnknownCmd)
}

// loginInput feeds private free-form text to the login machine.
type loginInput struct{ a *App }

func (l loginInput) InProgress(userID int64) bool { return l.a.login.InProgress(userID) }

func (l loginInput) HandleInput(c tele.Context) error {
	err := l.a.login.Submit(tghelpers.BuildContext(c), request(c), c.Text())
	switch {
	case errors.Is(err, login.ErrBusy), errors.Is(err, login.ErrNoLogin), errors.Is(err, login.ErrWrongStep):
		return nil
	}
	return err
}

var _ router.FSM = loginInput{}
