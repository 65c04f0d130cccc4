// Package sessions owns every long-lived MTProto client of the process: the
// privileged userbot, per-user bots and restored user clients.
package sessions

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/m3rciful/sessionkeeper/core/logger"
	"github.com/m3rciful/sessionkeeper/core/mtproto"
	"github.com/m3rciful/sessionkeeper/core/telegram/state"
)

// ErrNoBotToken is returned by UserBot when the user never set a token.
var ErrNoBotToken = errors.New("sessions: no bot token stored")

// ErrNoSession is returned by UserClient when the user is not logged in.
var ErrNoSession = errors.New("sessions: no session stored")

// Kind tells registered clients apart.
type Kind string

const (
	KindBot    Kind = "bot"
	KindClient Kind = "client"
)

// RegisteredClient is a running client owned by the registry.
type RegisteredClient struct {
	UserID    int64
	Kind      Kind
	Client    mtproto.Client
	Artifact  string
	StartedAt time.Time
}

// Store is the part of the persistence contract the registry needs.
type Store interface {
	GetSession(ctx context.Context, userID int64) (string, bool, error)
	GetBotToken(ctx context.Context, userID int64) (string, bool, error)
	SaveBotToken(ctx context.Context, userID int64, token string) error
	RemoveBotToken(ctx context.Context, userID int64) error
}

// Decrypter opens sealed session strings.
type Decrypter interface {
	Decrypt(blob string) (string, error)
}

// Options wires the registry.
type Options struct {
	Store       Store
	Sealer      Decrypter
	Dialer      mtproto.Dialer
	SessionsDir string
	CallTimeout time.Duration
}

// Stats summarizes the registry for /stats.
type Stats struct {
	Bots    int
	Clients int
	Userbot bool
}

// Registry is safe for concurrent use.
type Registry struct {
	store   Store
	sealer  Decrypter
	dialer  mtproto.Dialer
	dir     string
	timeout time.Duration

	bots    *state.Table[RegisteredClient]
	clients *state.Table[RegisteredClient]

	mu      sync.Mutex
	userbot *RegisteredClient
	self    mtproto.Identity
}

// New builds an empty Registry.
func New(opts Options) *Registry {
	r := &Registry{
		store:   opts.Store,
		sealer:  opts.Sealer,
		dialer:  opts.Dialer,
		dir:     opts.SessionsDir,
		timeout: opts.CallTimeout,
		bots:    state.NewTable[RegisteredClient](),
		clients: state.NewTable[RegisteredClient](),
	}
	if r.timeout <= 0 {
		r.timeout = 30 * time.Second
	}
	return r
}

// ArtifactPath returns the session file of the user's bot.
func (r *Registry) ArtifactPath(userID int64) string {
	return filepath.Join(r.dir, "user_"+strconv.FormatInt(userID, 10)+".session")
}

// SetBotToken replaces the user's bot: the running bot is stopped and its
// artifact removed before the new token is saved.
func (r *Registry) SetBotToken(ctx context.Context, userID int64, token string) error {
	r.dropBot(ctx, userID)
	if err := r.store.SaveBotToken(ctx, userID, token); err != nil {
		return fmt.Errorf("save bot token: %w", err)
	}
	logger.LogEvent(ctx, logger.REG, slog.LevelInfo, "bot.token.set",
		slog.String("status", "ok"),
		slog.Int64("user_id", userID),
	)
	return nil
}

// RemoveBotToken stops the user's bot if present and deletes the token record.
func (r *Registry) RemoveBotToken(ctx context.Context, userID int64) error {
	r.dropBot(ctx, userID)
	if err := r.store.RemoveBotToken(ctx, userID); err != nil {
		return fmt.Errorf("remove bot token: %w", err)
	}
	logger.LogEvent(ctx, logger.REG, slog.LevelInfo, "bot.token.remove",
		slog.String("status", "ok"),
		slog.Int64("user_id", userID),
	)
	return nil
}

// StopUserBot stops the user's running bot and removes its artifact, keeping the token.
func (r *Registry) StopUserBot(ctx context.Context, userID int64) {
	r.dropBot(ctx, userID)
}

// Registered reports which long-lived clients of userID are running.
func (r *Registry) Registered(userID int64) (bot, client bool) {
	_, bot = r.bots.Get(userID)
	_, client = r.clients.Get(userID)
	return bot, client
}

// dropBot deregisters and stops the bot of userID, then removes its artifact.
// Failures are logged only.
func (r *Registry) dropBot(ctx context.Context, userID int64) {
	prev, ok := r.bots.Delete(userID)
	if ok {
		r.stop(ctx, prev)
	}
	r.removeArtifact(ctx, r.ArtifactPath(userID))
}

// UserBot returns the user's running bot, starting it from the stored token if needed.
func (r *Registry) UserBot(ctx context.Context, userID int64) (mtproto.Client, error) {
	if reg, ok := r.bots.Get(userID); ok {
		return reg.Client, nil
	}
	token, ok, err := r.store.GetBotToken(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load bot token: %w", err)
	}
	if !ok {
		return nil, ErrNoBotToken
	}
	if err := os.MkdirAll(r.dir, 0o700); err != nil {
		return nil, fmt.Errorf("sessions dir: %w", err)
	}

	artifact := r.ArtifactPath(userID)
	client, err := r.dialer.Bot(userID, artifact)
	if err != nil {
		return nil, err
	}
	callCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	if err := client.Connect(callCtx); err != nil {
		_ = client.Disconnect()
		return nil, err
	}
	if err := client.LoginBot(callCtx, token); err != nil {
		_ = client.Disconnect()
		return nil, err
	}
	reg := RegisteredClient{UserID: userID, Kind: KindBot, Client: client, Artifact: artifact, StartedAt: time.Now()}
	return r.register(ctx, r.bots, reg), nil
}

// UserClient returns the user's client, restoring it from the persisted session if needed.
func (r *Registry) UserClient(ctx context.Context, userID int64) (mtproto.Client, error) {
	if reg, ok := r.clients.Get(userID); ok {
		return reg.Client, nil
	}
	blob, ok, err := r.store.GetSession(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	if !ok {
		return nil, ErrNoSession
	}
	sessionString, err := r.sealer.Decrypt(blob)
	if err != nil {
		return nil, fmt.Errorf("decrypt session: %w", err)
	}
	client, err := r.dialer.FromSession(userID, sessionString)
	if err != nil {
		return nil, err
	}
	callCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	if err := client.Connect(callCtx); err != nil {
		_ = client.Disconnect()
		return nil, err
	}
	reg := RegisteredClient{UserID: userID, Kind: KindClient, Client: client, StartedAt: time.Now()}
	return r.register(ctx, r.clients, reg), nil
}

// register stores reg unless another caller won the race, in which case
// reg is stopped and the winner returned.
func (r *Registry) register(ctx context.Context, tbl *state.Table[RegisteredClient], reg RegisteredClient) mtproto.Client {
	var lost bool
	winner := tbl.Update(reg.UserID, func(cur RegisteredClient, ok bool) (RegisteredClient, bool) {
		if ok {
			lost = true
			return cur, true
		}
		return reg, true
	})
	if lost {
		_ = reg.Client.Disconnect()
		return winner.Client
	}
	logger.LogEvent(ctx, logger.REG, slog.LevelInfo, "client.start",
		slog.String("status", "ok"),
		slog.String("kind", string(reg.Kind)),
		slog.Int64("user_id", reg.UserID),
	)
	return reg.Client
}

// RemoveUserClient stops and deregisters the user's restored client.
func (r *Registry) RemoveUserClient(ctx context.Context, userID int64) error {
	prev, ok := r.clients.Delete(userID)
	if !ok {
		return nil
	}
	r.stop(ctx, prev)
	return nil
}

// StartUserbot connects the privileged userbot. An empty session disables it.
func (r *Registry) StartUserbot(ctx context.Context, sessionString string) error {
	if sessionString == "" {
		logger.LogEvent(ctx, logger.REG, slog.LevelInfo, "userbot.start",
			slog.String("status", "skip"),
			slog.String("cause", "not_configured"),
		)
		return nil
	}
	client, err := r.dialer.FromSession(0, sessionString)
	if err != nil {
		return fmt.Errorf("userbot: %w", err)
	}
	callCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	if err := client.Connect(callCtx); err != nil {
		_ = client.Disconnect()
		return fmt.Errorf("userbot connect: %w", err)
	}
	self, err := client.Self(callCtx)
	if err != nil {
		_ = client.Disconnect()
		return fmt.Errorf("userbot self: %w", err)
	}

	r.mu.Lock()
	prev := r.userbot
	r.userbot = &RegisteredClient{UserID: self.ID, Kind: KindClient, Client: client, StartedAt: time.Now()}
	r.self = self
	r.mu.Unlock()
	if prev != nil {
		r.stop(ctx, *prev)
	}

	logger.LogEvent(ctx, logger.REG, slog.LevelInfo, "userbot.start",
		slog.String("status", "ok"),
		slog.Int64("user_id", self.ID),
	)
	return nil
}

// Userbot returns the running userbot client and its identity.
func (r *Registry) Userbot() (mtproto.Client, mtproto.Identity, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.userbot == nil {
		return nil, mtproto.Identity{}, false
	}
	return r.userbot.Client, r.self, true
}

// Stats counts registered clients.
func (r *Registry) Stats() Stats {
	r.mu.Lock()
	userbot := r.userbot != nil
	r.mu.Unlock()
	return Stats{Bots: r.bots.Len(), Clients: r.clients.Len(), Userbot: userbot}
}

// Close stops every registered client concurrently. Artifacts are kept so
// bots resume from their session files on the next start.
func (r *Registry) Close(ctx context.Context) error {
	var all []RegisteredClient
	for _, reg := range r.bots.Drain() {
		all = append(all, reg)
	}
	for _, reg := range r.clients.Drain() {
		all = append(all, reg)
	}
	r.mu.Lock()
	if r.userbot != nil {
		all = append(all, *r.userbot)
		r.userbot = nil
	}
	r.mu.Unlock()

	var g errgroup.Group
	for _, reg := range all {
		g.Go(func() error {
			if err := reg.Client.Disconnect(); err != nil {
				return fmt.Errorf("stop %s %d: %w", reg.Kind, reg.UserID, err)
			}
			return nil
		})
	}
	err := g.Wait()
	logger.LogEvent(ctx, logger.REG, levelFor(err), "registry.close",
		slog.String("status", logger.Status(err)),
		slog.Int("clients", len(all)),
		errAttr(err),
	)
	return err
}

// stop disconnects reg and removes its artifact; errors are logged and swallowed.
func (r *Registry) stop(ctx context.Context, reg RegisteredClient) {
	err := reg.Client.Disconnect()
	logger.LogEvent(ctx, logger.REG, levelFor(err), "client.stop",
		slog.String("status", logger.Status(err)),
		slog.String("kind", string(reg.Kind)),
		slog.Int64("user_id", reg.UserID),
		errAttr(err),
	)
	if reg.Artifact != "" {
		r.removeArtifact(ctx, reg.Artifact)
	}
}

func (r *Registry) removeArtifact(ctx context.Context, path string) {
	err := os.Remove(path)
	if err == nil || errors.Is(err, os.ErrNotExist) {
		return
	}
	logger.LogEvent(ctx, logger.REG, slog.LevelWarn, "artifact.remove",
		slog.String("status", "fail"),
		slog.String("artifact", path),
		slog.String("err", err.Error()),
	)
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
