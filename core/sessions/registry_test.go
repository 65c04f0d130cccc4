package sessions

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/m3rciful/sessionkeeper/core/crypto"
	"github.com/m3rciful/sessionkeeper/core/mtproto"
	"github.com/m3rciful/sessionkeeper/core/mtproto/fake"
	"github.com/m3rciful/sessionkeeper/core/store"
)

type hookStore struct {
	*store.Memory
	beforeSaveToken func()
}

func (h *hookStore) SaveBotToken(ctx context.Context, userID int64, token string) error {
	if h.beforeSaveToken != nil {
		h.beforeSaveToken()
	}
	return h.Memory.SaveBotToken(ctx, userID, token)
}

func newRegistry(t *testing.T) (*Registry, *hookStore, *fake.Dialer, *crypto.Sealer) {
	t.Helper()
	sealer, err := crypto.NewSealer("registry-test-key-0123")
	if err != nil {
		t.Fatalf("sealer: %v", err)
	}
	st := &hookStore{Memory: store.NewMemory()}
	dialer := &fake.Dialer{}
	reg := New(Options{Store: st, Sealer: sealer, Dialer: dialer, SessionsDir: t.TempDir()})
	return reg, st, dialer, sealer
}

func startBot(t *testing.T, r *Registry, userID int64, token string) *fake.Client {
	t.Helper()
	if err := r.SetBotToken(context.Background(), userID, token); err != nil {
		t.Fatalf("set token: %v", err)
	}
	client, err := r.UserBot(context.Background(), userID)
	if err != nil {
		t.Fatalf("user bot: %v", err)
	}
	fc := client.(*fake.Client)
	if err := os.WriteFile(fc.Artifact, []byte("session"), 0o600); err != nil {
		t.Fatalf("write artifact: %v", err)
	}
	return fc
}

func TestUserBotStartsFromStoredToken(t *testing.T) {
	r, _, dialer, _ := newRegistry(t)
	fc := startBot(t, r, 7, "123:abc")

	if !fc.Connected() || len(fc.Tokens()) != 1 || fc.Tokens()[0] != "123:abc" {
		t.Fatalf("bot should be connected and logged in with the token")
	}
	if filepath.Base(fc.Artifact) != "user_7.session" {
		t.Fatalf("artifact = %s", fc.Artifact)
	}
	again, err := r.UserBot(context.Background(), 7)
	if err != nil || again != mtproto.Client(fc) {
		t.Fatalf("second call should reuse the running bot")
	}
	if len(dialer.Clients()) != 1 {
		t.Fatalf("dialed %d clients", len(dialer.Clients()))
	}
	if s := r.Stats(); s.Bots != 1 || s.Clients != 0 || s.Userbot {
		t.Fatalf("stats = %+v", s)
	}
}

func TestUserBotWithoutToken(t *testing.T) {
	r, _, _, _ := newRegistry(t)
	if _, err := r.UserBot(context.Background(), 7); !errors.Is(err, ErrNoBotToken) {
		t.Fatalf("err = %v, want ErrNoBotToken", err)
	}
}

func TestUserBotLoginFailureDisconnects(t *testing.T) {
	r, _, dialer, _ := newRegistry(t)
	dialer.NewBot = func(int64, string) *fake.Client {
		return &fake.Client{LoginBotErr: errors.New("ACCESS_TOKEN_INVALID")}
	}
	_ = r.SetBotToken(context.Background(), 7, "bad")
	if _, err := r.UserBot(context.Background(), 7); err == nil {
		t.Fatalf("expected login error")
	}
	if dialer.Last().Connected() || r.Stats().Bots != 0 {
		t.Fatalf("failed bot must not stay registered or connected")
	}
}

func TestSetBotTokenReplacesRunningBot(t *testing.T) {
	r, st, _, _ := newRegistry(t)
	old := startBot(t, r, 7, "old-token")

	var checked bool
	st.beforeSaveToken = func() {
		checked = true
		if old.Connected() {
			t.Fatalf("old bot must be stopped before the new token is saved")
		}
		if _, err := os.Stat(old.Artifact); !errors.Is(err, os.ErrNotExist) {
			t.Fatalf("old artifact must be removed before the new token is saved: %v", err)
		}
	}
	if err := r.SetBotToken(context.Background(), 7, "token123"); err != nil {
		t.Fatalf("set token: %v", err)
	}
	if !checked {
		t.Fatalf("token was not saved")
	}
	if tok, _, _ := st.GetBotToken(context.Background(), 7); tok != "token123" {
		t.Fatalf("token = %q", tok)
	}
	if r.Stats().Bots != 0 {
		t.Fatalf("old bot should be deregistered")
	}
}

func TestStopErrorsDoNotBlockCleanup(t *testing.T) {
	r, st, dialer, _ := newRegistry(t)
	dialer.NewBot = func(int64, string) *fake.Client {
		return &fake.Client{DisconnectErr: errors.New("already stopped")}
	}
	fc := startBot(t, r, 7, "tok")

	if err := r.RemoveBotToken(context.Background(), 7); err != nil {
		t.Fatalf("remove token: %v", err)
	}
	if _, ok, _ := st.GetBotToken(context.Background(), 7); ok {
		t.Fatalf("token should be deleted")
	}
	if r.Stats().Bots != 0 {
		t.Fatalf("bot should be deregistered")
	}
	if _, err := os.Stat(fc.Artifact); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("artifact should be removed")
	}
}

func TestRemoveBotTokenWithoutBot(t *testing.T) {
	r, st, _, _ := newRegistry(t)
	_ = st.Memory.SaveBotToken(context.Background(), 7, "tok")
	if err := r.RemoveBotToken(context.Background(), 7); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if _, ok, _ := st.GetBotToken(context.Background(), 7); ok {
		t.Fatalf("token should be deleted")
	}
}

func TestUserClientRestoreAndRemove(t *testing.T) {
	r, st, _, sealer := newRegistry(t)
	if _, err := r.UserClient(context.Background(), 7); !errors.Is(err, ErrNoSession) {
		t.Fatalf("err = %v, want ErrNoSession", err)
	}
	sealed, _ := sealer.Encrypt("session-7")
	_ = st.SaveSession(context.Background(), 7, sealed)

	client, err := r.UserClient(context.Background(), 7)
	if err != nil {
		t.Fatalf("user client: %v", err)
	}
	fc := client.(*fake.Client)
	if fc.Session != "session-7" || !fc.Connected() {
		t.Fatalf("client not restored from decrypted session: %+v", fc)
	}
	if err := r.RemoveUserClient(context.Background(), 7); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if fc.Connected() || r.Stats().Clients != 0 {
		t.Fatalf("client should be stopped and deregistered")
	}
	if err := r.RemoveUserClient(context.Background(), 7); err != nil {
		t.Fatalf("second remove: %v", err)
	}
}

func TestStartUserbot(t *testing.T) {
	r, _, dialer, _ := newRegistry(t)
	if err := r.StartUserbot(context.Background(), ""); err != nil {
		t.Fatalf("disabled userbot: %v", err)
	}
	if _, _, ok := r.Userbot(); ok {
		t.Fatalf("userbot should be disabled")
	}

	dialer.NewFromSession = func(int64, string) *fake.Client {
		return &fake.Client{Identity: mtproto.Identity{ID: 555, Username: "keeper"}}
	}
	if err := r.StartUserbot(context.Background(), "preshared"); err != nil {
		t.Fatalf("start: %v", err)
	}
	_, self, ok := r.Userbot()
	if !ok || self.ID != 555 {
		t.Fatalf("userbot = %+v %v", self, ok)
	}
	if !r.Stats().Userbot {
		t.Fatalf("stats should report the userbot")
	}
}

func TestStartUserbotFailure(t *testing.T) {
	r, _, dialer, _ := newRegistry(t)
	dialer.NewFromSession = func(int64, string) *fake.Client {
		return &fake.Client{ConnectErr: errors.New("AUTH_KEY_UNREGISTERED")}
	}
	if err := r.StartUserbot(context.Background(), "preshared"); err == nil {
		t.Fatalf("expected fatal error")
	}
}

func TestCloseStopsEverything(t *testing.T) {
	r, st, dialer, sealer := newRegistry(t)
	bot := startBot(t, r, 7, "tok")
	sealed, _ := sealer.Encrypt("s")
	_ = st.SaveSession(context.Background(), 8, sealed)
	if _, err := r.UserClient(context.Background(), 8); err != nil {
		t.Fatalf("user client: %v", err)
	}
	if err := r.StartUserbot(context.Background(), "preshared"); err != nil {
		t.Fatalf("userbot: %v", err)
	}

	if err := r.Close(context.Background()); err != nil {
		t.Fatalf("close: %v", err)
	}
	for _, c := range dialer.Clients() {
		if c.Connected() {
			t.Fatalf("client %s/%d still connected", c.Kind, c.UserID)
		}
	}
	if _, err := os.Stat(bot.Artifact); err != nil {
		t.Fatalf("artifact should survive shutdown: %v", err)
	}
	if s := r.Stats(); s.Bots != 0 || s.Clients != 0 || s.Userbot {
		t.Fatalf("stats after close = %+v", s)
	}
}

func TestStopUserBotKeepsToken(t *testing.T) {
	r, st, _, _ := newRegistry(t)
	fc := startBot(t, r, 7, "tok")
	if bot, client := r.Registered(7); !bot || client {
		t.Fatalf("registered = %v/%v, want bot only", bot, client)
	}

	r.StopUserBot(context.Background(), 7)
	if fc.Connected() {
		t.Fatalf("bot should be disconnected")
	}
	if bot, _ := r.Registered(7); bot {
		t.Fatalf("bot should be deregistered")
	}
	if _, err := os.Stat(fc.Artifact); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("artifact should be removed")
	}
	if tok, ok, _ := st.GetBotToken(context.Background(), 7); !ok || tok != "tok" {
		t.Fatalf("token must be kept, got %q %v", tok, ok)
	}
}
