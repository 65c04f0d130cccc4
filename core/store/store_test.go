package store

import (
	"context"
	"errors"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	coreconfig "github.com/m3rciful/sessionkeeper/core/config"
)

func exerciseContract(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	if _, ok, err := s.GetSession(ctx, 1); err != nil || ok {
		t.Fatalf("missing session: ok=%v err=%v", ok, err)
	}
	if err := s.RemoveSession(ctx, 1); err != nil {
		t.Fatalf("remove missing session: %v", err)
	}
	if err := s.RemoveBotToken(ctx, 1); err != nil {
		t.Fatalf("remove missing token: %v", err)
	}

	if err := s.SaveSession(ctx, 1, "blob-1"); err != nil {
		t.Fatalf("save session: %v", err)
	}
	if err := s.SaveSession(ctx, 1, "blob-2"); err != nil {
		t.Fatalf("overwrite session: %v", err)
	}
	if err := s.SaveBotToken(ctx, 1, "123:abc"); err != nil {
		t.Fatalf("save token: %v", err)
	}

	if v, ok, err := s.GetSession(ctx, 1); err != nil || !ok || v != "blob-2" {
		t.Fatalf("get session = %q %v %v", v, ok, err)
	}
	if v, ok, err := s.GetBotToken(ctx, 1); err != nil || !ok || v != "123:abc" {
		t.Fatalf("get token = %q %v %v", v, ok, err)
	}

	if err := s.RemoveSession(ctx, 1); err != nil {
		t.Fatalf("remove session: %v", err)
	}
	if _, ok, _ := s.GetSession(ctx, 1); ok {
		t.Fatalf("session still present")
	}
	if _, ok, _ := s.GetBotToken(ctx, 1); !ok {
		t.Fatalf("token removed together with session")
	}
	if _, ok, _ := s.GetSession(ctx, 2); ok {
		t.Fatalf("other user affected")
	}
}

func TestMemoryStore(t *testing.T) {
	exerciseContract(t, NewMemory())
}

func TestRedisStore(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	s := NewRedis(client, "test:user:")
	defer s.Close()

	exerciseContract(t, s)

	if !mr.Exists("test:user:1") {
		t.Fatalf("expected hash key test:user:1")
	}
	if got := mr.HGet("test:user:1", fieldBotToken); got != "123:abc" {
		t.Fatalf("hash field = %q", got)
	}
}

func TestOpenMemoryAndUnknown(t *testing.T) {
	ctx := context.Background()
	s, err := Open(ctx, coreconfig.StorageConfig{Driver: coreconfig.DriverMemory})
	if err != nil {
		t.Fatalf("open memory: %v", err)
	}
	if _, ok := s.(*Memory); !ok {
		t.Fatalf("unexpected store type %T", s)
	}
	if _, err := Open(ctx, coreconfig.StorageConfig{Driver: "sqlite"}); !errors.Is(err, ErrUnknownDriver) {
		t.Fatalf("err = %v, want ErrUnknownDriver", err)
	}
}

func TestOpenRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	s, err := Open(context.Background(), coreconfig.StorageConfig{
		Driver: coreconfig.DriverRedis,
		Redis:  coreconfig.RedisConfig{Addr: mr.Addr(), Prefix: "p:"},
	})
	if err != nil {
		t.Fatalf("open redis: %v", err)
	}
	defer s.Close()
	if err := s.SaveSession(context.Background(), 5, "x"); err != nil {
		t.Fatalf("save: %v", err)
	}
	if mr.HGet("p:5", fieldSession) != "x" {
		t.Fatalf("session not written under prefix")
	}
}
