package mtproto

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gotd/td/session"
	"github.com/gotd/td/telegram"
	"github.com/gotd/td/telegram/auth"
	"github.com/gotd/td/tg"

	coreconfig "github.com/m3rciful/sessionkeeper/core/config"
	"github.com/m3rciful/sessionkeeper/core/logger"
)

const disconnectTimeout = 10 * time.Second

// GotdDialer creates gotd clients that share the application credentials.
type GotdDialer struct {
	appID   int
	appHash string
	device  telegram.DeviceConfig
}

// NewDialer returns a Dialer configured from the mtproto section.
func NewDialer(cfg coreconfig.MTProtoConfig) *GotdDialer {
	return &GotdDialer{
		appID:   cfg.APIID,
		appHash: cfg.APIHash,
		device:  telegram.DeviceConfig{DeviceModel: cfg.DeviceModel},
	}
}

func (d *GotdDialer) Transient(userID int64) (Client, error) {
	mem := &session.StorageMemory{}
	return d.newClient(userID, "transient", mem), nil
}

func (d *GotdDialer) FromSession(userID int64, sessionString string) (Client, error) {
	data, err := decodeSession(sessionString)
	if err != nil {
		return nil, err
	}
	mem := &session.StorageMemory{}
	if err := mem.StoreSession(context.Background(), data); err != nil {
		return nil, fmt.Errorf("mtproto: restore session: %w", err)
	}
	return d.newClient(userID, "session", mem), nil
}

func (d *GotdDialer) Bot(userID int64, artifact string) (Client, error) {
	if artifact == "" {
		return nil, errors.New("mtproto: bot artifact path is required")
	}
	fs := &session.FileStorage{Path: artifact}
	return d.newClient(userID, "bot", fs), nil
}

func (d *GotdDialer) newClient(userID int64, kind string, storage telegram.SessionStorage) *gotdClient {
	return &gotdClient{
		userID: userID,
		kind:   kind,
		store:  storage,
		client: telegram.NewClient(d.appID, d.appHash, telegram.Options{
			SessionStorage: storage,
			Device:         d.device,
			NoUpdates:      true,
		}),
	}
}

// gotdClient keeps client.Run alive in a goroutine between Connect and Disconnect.
type gotdClient struct {
	userID int64
	kind   string
	client *telegram.Client
	store  telegram.SessionStorage

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan error
	once   sync.Once
}

func (c *gotdClient) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.cancel != nil {
		c.mu.Unlock()
		return errors.New("mtproto: already connected")
	}
	runCtx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	ready := make(chan struct{})
	c.cancel, c.done = cancel, done
	c.mu.Unlock()

	start := time.Now()
	go func() {
		done <- c.client.Run(runCtx, func(ctx context.Context) error {
			close(ready)
			<-ctx.Done()
			return nil
		})
	}()

	var err error
	select {
	case <-ready:
	case err = <-done:
		if err == nil {
			err = errors.New("mtproto: connection closed")
		}
		done <- err
	case <-ctx.Done():
		err = ctx.Err()
		cancel()
	}
	level := slog.LevelDebug
	if err != nil {
		level = slog.LevelWarn
	}
	logger.LogEvent(ctx, logger.MT, level, "mt.connect",
		slog.String("status", logger.Status(err)),
		slog.String("kind", c.kind),
		slog.Int64("user_id", c.userID),
		slog.Duration("duration", time.Since(start)),
		errString(err),
	)
	if err != nil {
		return fmt.Errorf("mtproto connect: %w", err)
	}
	return nil
}

func (c *gotdClient) Disconnect() error {
	c.mu.Lock()
	cancel, done := c.cancel, c.done
	c.mu.Unlock()
	if cancel == nil {
		return nil
	}
	var err error
	c.once.Do(func() {
		cancel()
		select {
		case runErr := <-done:
			if runErr != nil && !errors.Is(runErr, context.Canceled) {
				err = runErr
			}
		case <-time.After(disconnectTimeout):
			err = errors.New("mtproto: disconnect timed out")
		}
		logger.LogEvent(logger.Background(), logger.MT, slog.LevelDebug, "mt.disconnect",
			slog.String("status", logger.Status(err)),
			slog.String("kind", c.kind),
			slog.Int64("user_id", c.userID),
			errString(err),
		)
	})
	return err
}

func (c *gotdClient) SendCode(ctx context.Context, phone string) (string, error) {
	sent, err := c.client.Auth().SendCode(ctx, phone, auth.SendCodeOptions{})
	if err != nil {
		return "", err
	}
	switch s := sent.(type) {
	case *tg.AuthSentCode:
		return s.PhoneCodeHash, nil
	default:
		return "", fmt.Errorf("mtproto: unexpected sent code type %T", sent)
	}
}

func (c *gotdClient) SignIn(ctx context.Context, phone, phoneCodeHash, code string) AuthResult {
	_, err := c.client.Auth().SignIn(ctx, phone, code, phoneCodeHash)
	return Classify(err)
}

func (c *gotdClient) CheckPassword(ctx context.Context, password string) AuthResult {
	_, err := c.client.Auth().Password(ctx, password)
	return Classify(err)
}

func (c *gotdClient) ExportSession(ctx context.Context) (string, error) {
	data, err := c.store.LoadSession(ctx)
	if err != nil {
		return "", fmt.Errorf("mtproto: export session: %w", err)
	}
	return encodeSession(data), nil
}

func (c *gotdClient) LogOut(ctx context.Context) error {
	_, err := c.client.API().AuthLogOut(ctx)
	return err
}

func (c *gotdClient) LoginBot(ctx context.Context, token string) error {
	status, err := c.client.Auth().Status(ctx)
	if err == nil && status.Authorized {
		return nil
	}
	if _, err := c.client.Auth().Bot(ctx, token); err != nil {
		return fmt.Errorf("mtproto: bot login: %w", err)
	}
	return nil
}

func (c *gotdClient) Self(ctx context.Context) (Identity, error) {
	u, err := c.client.Self(ctx)
	if err != nil {
		return Identity{}, err
	}
	return Identity{ID: u.ID, Username: u.Username, FirstName: u.FirstName, Bot: u.Bot}, nil
}

func errString(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.String("err", err.Error())
}
