// Package fake provides scriptable in-memory mtproto clients for tests.
package fake

import (
	"context"
	"errors"
	"sync"

	"github.com/m3rciful/sessionkeeper/core/mtproto"
)

// Client records every call and answers from its exported fields.
type Client struct {
	UserID   int64
	Kind     string
	Session  string
	Artifact string

	ConnectErr    error
	SendCodeHash  string
	SendCodeErr   error
	SignInResult  mtproto.AuthResult
	PasswordFn    func(password string) mtproto.AuthResult
	ExportValue   string
	ExportErr     error
	LogOutErr     error
	LoginBotErr   error
	DisconnectErr error
	Identity      mtproto.Identity

	// Gate, when set, blocks SendCode, SignIn and CheckPassword until it is closed.
	Gate chan struct{}
	// ExportGate, when set, blocks ExportSession until it is closed.
	ExportGate chan struct{}

	mu          sync.Mutex
	connected   bool
	disconnects int
	codes       []string
	passwords   []string
	phones      []string
	tokens      []string
	logouts     int
	exports     int
}

func (c *Client) wait(ctx context.Context) error {
	if c.Gate == nil {
		return nil
	}
	select {
	case <-c.Gate:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Client) Connect(context.Context) error {
	if c.ConnectErr != nil {
		return c.ConnectErr
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connected = true
	return nil
}

func (c *Client) Disconnect() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connected = false
	c.disconnects++
	return c.DisconnectErr
}

func (c *Client) SendCode(ctx context.Context, phone string) (string, error) {
	if err := c.wait(ctx); err != nil {
		return "", err
	}
	c.mu.Lock()
	c.phones = append(c.phones, phone)
	c.mu.Unlock()
	if c.SendCodeErr != nil {
		return "", c.SendCodeErr
	}
	return c.SendCodeHash, nil
}

func (c *Client) SignIn(ctx context.Context, _, _, code string) mtproto.AuthResult {
	if err := c.wait(ctx); err != nil {
		return mtproto.AuthResult{Outcome: mtproto.OutcomeFailed, Err: err}
	}
	c.mu.Lock()
	c.codes = append(c.codes, code)
	c.mu.Unlock()
	return c.SignInResult
}

func (c *Client) CheckPassword(ctx context.Context, password string) mtproto.AuthResult {
	if err := c.wait(ctx); err != nil {
		return mtproto.AuthResult{Outcome: mtproto.OutcomeFailed, Err: err}
	}
	c.mu.Lock()
	c.passwords = append(c.passwords, password)
	c.mu.Unlock()
	if c.PasswordFn == nil {
		return mtproto.AuthResult{Outcome: mtproto.OutcomeSuccess}
	}
	return c.PasswordFn(password)
}

func (c *Client) ExportSession(ctx context.Context) (string, error) {
	c.mu.Lock()
	c.exports++
	c.mu.Unlock()
	if c.ExportGate != nil {
		select {
		case <-c.ExportGate:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return c.ExportValue, c.ExportErr
}

func (c *Client) LogOut(context.Context) error {
	c.mu.Lock()
	c.logouts++
	c.mu.Unlock()
	return c.LogOutErr
}

func (c *Client) LoginBot(_ context.Context, token string) error {
	c.mu.Lock()
	c.tokens = append(c.tokens, token)
	c.mu.Unlock()
	return c.LoginBotErr
}

func (c *Client) Self(context.Context) (mtproto.Identity, error) {
	return c.Identity, nil
}

// Exports counts ExportSession calls, including blocked ones.
func (c *Client) Exports() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.exports
}

// Connected reports whether Connect succeeded and Disconnect was not called since.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// Disconnects counts Disconnect calls.
func (c *Client) Disconnects() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.disconnects
}

// Codes returns the codes passed to SignIn.
func (c *Client) Codes() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.codes...)
}

// Passwords returns the passwords passed to CheckPassword.
func (c *Client) Passwords() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.passwords...)
}

// Phones returns the phones passed to SendCode.
func (c *Client) Phones() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.phones...)
}

// Tokens returns the tokens passed to LoginBot.
func (c *Client) Tokens() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.tokens...)
}

// LogOuts counts LogOut calls.
func (c *Client) LogOuts() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.logouts
}

// Dialer hands out clients built by the New* hooks and remembers them in order.
type Dialer struct {
	NewTransient   func(userID int64) *Client
	NewFromSession func(userID int64, session string) *Client
	NewBot         func(userID int64, artifact string) *Client
	Err            error

	mu      sync.Mutex
	clients []*Client
}

func (d *Dialer) keep(c *Client) (mtproto.Client, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.clients = append(d.clients, c)
	return c, nil
}

func (d *Dialer) Transient(userID int64) (mtproto.Client, error) {
	if d.Err != nil {
		return nil, d.Err
	}
	c := &Client{SendCodeHash: "hash"}
	if d.NewTransient != nil {
		c = d.NewTransient(userID)
	}
	c.UserID, c.Kind = userID, "transient"
	return d.keep(c)
}

func (d *Dialer) FromSession(userID int64, session string) (mtproto.Client, error) {
	if d.Err != nil {
		return nil, d.Err
	}
	if session == "" {
		return nil, errors.New("fake: empty session")
	}
	c := &Client{}
	if d.NewFromSession != nil {
		c = d.NewFromSession(userID, session)
	}
	c.UserID, c.Kind, c.Session = userID, "session", session
	return d.keep(c)
}

func (d *Dialer) Bot(userID int64, artifact string) (mtproto.Client, error) {
	if d.Err != nil {
		return nil, d.Err
	}
	c := &Client{}
	if d.NewBot != nil {
		c = d.NewBot(userID, artifact)
	}
	c.UserID, c.Kind, c.Artifact = userID, "bot", artifact
	return d.keep(c)
}

// Clients returns every client created so far.
func (d *Dialer) Clients() []*Client {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*Client(nil), d.clients...)
}

// Last returns the most recently created client or nil.
func (d *Dialer) Last() *Client {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.clients) == 0 {
		return nil
	}
	return d.clients[len(d.clients)-1]
}
