// Package store persists encrypted session strings and per-user bot tokens
// keyed by Telegram user id. Missing keys are reported as absent, never as errors.
package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	coreconfig "github.com/m3rciful/sessionkeeper/core/config"
	"github.com/m3rciful/sessionkeeper/core/database"
	"github.com/m3rciful/sessionkeeper/core/logger"
)

// ErrUnknownDriver is returned by Open for an unsupported storage driver.
var ErrUnknownDriver = errors.New("store: unknown driver")

// Store is the single-key, last-write-wins persistence contract.
type Store interface {
	GetSession(ctx context.Context, userID int64) (string, bool, error)
	SaveSession(ctx context.Context, userID int64, blob string) error
	RemoveSession(ctx context.Context, userID int64) error
	GetBotToken(ctx context.Context, userID int64) (string, bool, error)
	SaveBotToken(ctx context.Context, userID int64, token string) error
	RemoveBotToken(ctx context.Context, userID int64) error
	Close() error
}

// Open builds the store selected by cfg.Driver. The postgres driver connects
// and applies the embedded migrations before returning.
func Open(ctx context.Context, cfg coreconfig.StorageConfig) (Store, error) {
	var (
		s   Store
		err error
	)
	switch cfg.Driver {
	case coreconfig.DriverPostgres:
		db, cerr := database.Connect(ctx, cfg.Database)
		if cerr != nil {
			return nil, cerr
		}
		if merr := database.RunMigrations(ctx, cfg.Database); merr != nil {
			_ = db.Close()
			return nil, merr
		}
		s = NewPostgres(db)
	case coreconfig.DriverRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Username: cfg.Redis.Username,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if perr := client.Ping(ctx).Err(); perr != nil {
			_ = client.Close()
			err = fmt.Errorf("redis ping: %w", perr)
			break
		}
		s = NewRedis(client, cfg.Redis.Prefix)
	case coreconfig.DriverMemory:
		s = NewMemory()
	default:
		err = fmt.Errorf("%w: %q", ErrUnknownDriver, cfg.Driver)
	}

	logger.LogEvent(ctx, logger.STORE, levelFor(err), "store.open",
		slog.String("status", logger.Status(err)),
		slog.String("driver", cfg.Driver),
		errAttr(err),
	)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func levelFor(err error) slog.Level {
	if err != nil {
		return slog.LevelError
	}
	return slog.LevelInfo
}

func errAttr(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.String("err", err.Error())
}
