// Package app wires the session keeper bot: login commands, per-user bot
// tokens and the long-lived client registry on top of the core runtime.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	coreconfig "github.com/m3rciful/sessionkeeper/core/config"
	"github.com/m3rciful/sessionkeeper/core/login"
	"github.com/m3rciful/sessionkeeper/core/mtproto"
	"github.com/m3rciful/sessionkeeper/core/sessions"
	"github.com/m3rciful/sessionkeeper/core/store"
	tg "github.com/m3rciful/sessionkeeper/core/telegram"
	"github.com/m3rciful/sessionkeeper/core/telegram/router"
	"github.com/m3rciful/sessionkeeper/core/telegram/sender"
)

// Sealer encrypts and decrypts session strings at rest.
type Sealer interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(blob string) (string, error)
}

// Deps are the collaborators built by bootstrap.
type Deps struct {
	Config *coreconfig.Config
	Store  store.Store
	Sealer Sealer
	// Dialer defaults to the gotd dialer built from Config.MTProto.
	Dialer mtproto.Dialer
}

// App is the Telegram application. It satisfies cmd.TelegramApp.
type App struct {
	cfg      *coreconfig.Config
	store    store.Store
	sessions *sessions.Registry
	login    *login.Machine
	msg      *Messenger
	commands *tg.Registry
	disp     *sender.Dispatcher
}

// New wires the login machine and the client registry.
func New(d Deps) (*App, error) {
	if d.Config == nil || d.Store == nil || d.Sealer == nil {
		return nil, errors.New("app: config, store and sealer are required")
	}
	dialer := d.Dialer
	if dialer == nil {
		dialer = mtproto.NewDialer(d.Config.MTProto)
	}
	timeout := time.Duration(d.Config.Auth.CallTimeoutSeconds) * time.Second

	a := &App{
		cfg:      d.Config,
		store:    d.Store,
		msg:      &Messenger{},
		commands: tg.NewRegistry(),
	}
	a.sessions = sessions.New(sessions.Options{
		Store:       d.Store,
		Sealer:      d.Sealer,
		Dialer:      dialer,
		SessionsDir: d.Config.MTProto.SessionsDir,
		CallTimeout: timeout,
	})
	a.login = login.New(login.Options{
		Store:       d.Store,
		Sealer:      d.Sealer,
		Dialer:      dialer,
		Messenger:   a.msg,
		Clients:     a.sessions,
		OnLogin:     a.restoreClient,
		CallTimeout: timeout,
		NoticeTTL:   time.Duration(d.Config.Auth.NoticeTTLSeconds) * time.Second,
	})
	// Private chats share the user's id, so the chat shows the button while its user logs in.
	a.msg.ShowCancelWhen(a.login.InProgress)

	if err := a.registerCommands(); err != nil {
		return nil, err
	}
	return a, nil
}

// TelegramRunOptions builds the runtime options of the bot.
func (a *App) TelegramRunOptions() (tg.RunOptions, error) {
	routes := router.CommandRoutes(a.commands, router.CommandRouteOptions{
		AdminID:       a.cfg.Telegram.AdminID,
		OnAdminReject: a.handleAdminReject,
	})
	routes = append(routes, router.TextRoutes(loginInput{a}, a.commands, router.TextOptions{
		UnknownCommand: a.handleUnknownCommand,
	})...)
	routes = append(routes, router.CallbackRoute(a.commands, router.CallbackOptions{}))

	return tg.RunOptions{
		Config:      a.cfg,
		Registry:    a.commands,
		Middlewares: tg.DefaultMiddlewares(a.cfg, nil),
		Routes:      routes,
		OnStart:     a.onStart,
		OnStop:      a.onStop,
	}, nil
}

func (a *App) onStart(ctx context.Context, rt tg.Runtime) error {
	if rt.Bot != nil {
		a.msg.Bind(rt.Bot, rt.Dispatcher)
	}
	a.disp = rt.Dispatcher
	if err := a.sessions.StartUserbot(ctx, a.cfg.MTProto.UserbotSession); err != nil {
		return fmt.Errorf("app: %w", err)
	}
	return nil
}

func (a *App) onStop(ctx context.Context, _ tg.Runtime) error {
	return errors.Join(a.sessions.Close(ctx), a.store.Close())
}
