package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"
)

const (
	fieldSession  = "session_string"
	fieldBotToken = "bot_token"
)

// Redis keeps one hash per user under prefix+user_id.
type Redis struct {
	client *redis.Client
	prefix string
}

// NewRedis wraps a connected client.
func NewRedis(client *redis.Client, prefix string) *Redis {
	return &Redis{client: client, prefix: prefix}
}

func (r *Redis) key(userID int64) string {
	return r.prefix + strconv.FormatInt(userID, 10)
}

func (r *Redis) GetSession(ctx context.Context, userID int64) (string, bool, error) {
	return r.get(ctx, userID, fieldSession)
}

func (r *Redis) SaveSession(ctx context.Context, userID int64, blob string) error {
	return r.client.HSet(ctx, r.key(userID), fieldSession, blob).Err()
}

func (r *Redis) RemoveSession(ctx context.Context, userID int64) error {
	return r.client.HDel(ctx, r.key(userID), fieldSession).Err()
}

func (r *Redis) GetBotToken(ctx context.Context, userID int64) (string, bool, error) {
	return r.get(ctx, userID, fieldBotToken)
}

func (r *Redis) SaveBotToken(ctx context.Context, userID int64, token string) error {
	return r.client.HSet(ctx, r.key(userID), fieldBotToken, token).Err()
}

func (r *Redis) RemoveBotToken(ctx context.Context, userID int64) error {
	return r.client.HDel(ctx, r.key(userID), fieldBotToken).Err()
}

func (r *Redis) Close() error { return r.client.Close() }

func (r *Redis) get(ctx context.Context, userID int64, field string) (string, bool, error) {
	v, err := r.client.HGet(ctx, r.key(userID), field).Result()
	switch {
	case errors.Is(err, redis.Nil):
		return "", false, nil
	case err != nil:
		return "", false, fmt.Errorf("load %s for user %d: %w", field, userID, err)
	}
	return v, v != "", nil
}
