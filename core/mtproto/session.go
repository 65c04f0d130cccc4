package mtproto

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strings"

	gotdcrypto "github.com/gotd/td/crypto"
	"github.com/gotd/td/session"
)

// ErrMalformedSession is returned for session strings in none of the accepted formats.
var ErrMalformedSession = errors.New("mtproto: malformed session string; expected a gotd, Telethon or Pyrogram string session")

// Pyrogram string sessions carry the DC id only; addresses are its built-in tables.
var (
	pyrogramProdDCs = map[int]string{
		1: "149.154.175.53",
		2: "149.154.167.51",
		3: "149.154.175.100",
		4: "149.154.167.91",
		5: "91.108.56.130",
	}
	pyrogramTestDCs = map[int]string{
		1: "149.154.175.10",
		2: "149.154.167.40",
		3: "149.154.175.117",
	}
)

const (
	pyrogramLen      = 271 // >BI?256sQ? dc, api id, test mode, key, user id, bot
	pyrogramLegacy64 = 267 // >B?256sQ?
	pyrogramLegacy32 = 263 // >B?256sI?
	dcPort           = "443"
)

func encodeSession(data []byte) string {
	return base64.RawURLEncoding.EncodeToString(data)
}

// decodeSession returns gotd session storage bytes for s. Strings produced by
// ExportSession are taken as is; Telethon ("1" prefixed) and Pyrogram string
// sessions are converted.
func decodeSession(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, ErrMalformedSession
	}
	if raw, err := base64.RawURLEncoding.DecodeString(s); err == nil && len(raw) > 0 && json.Valid(raw) {
		return raw, nil
	}

	var (
		data *session.Data
		err  error
	)
	if s[0] == '1' {
		data, err = session.TelethonSession(s)
	} else {
		data, err = pyrogramSession(s)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedSession, err)
	}

	mem := &session.StorageMemory{}
	if err := (&session.Loader{Storage: mem}).Save(context.Background(), data); err != nil {
		return nil, fmt.Errorf("mtproto: convert session: %w", err)
	}
	return mem.LoadSession(context.Background())
}

func pyrogramSession(s string) (*session.Data, error) {
	raw, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(s, "="))
	if err != nil {
		return nil, fmt.Errorf("decode pyrogram session: %w", err)
	}

	var (
		dc   int
		test bool
		key  gotdcrypto.Key
	)
	switch len(raw) {
	case pyrogramLen:
		dc, test = int(raw[0]), raw[5] != 0
		copy(key[:], raw[6:6+len(key)])
	case pyrogramLegacy64, pyrogramLegacy32:
		dc, test = int(raw[0]), raw[1] != 0
		copy(key[:], raw[2:2+len(key)])
	default:
		return nil, fmt.Errorf("pyrogram session has invalid length %d", len(raw))
	}

	dcs := pyrogramProdDCs
	if test {
		dcs = pyrogramTestDCs
	}
	addr, ok := dcs[dc]
	if !ok {
		return nil, fmt.Errorf("pyrogram session has unknown dc %d", dc)
	}
	id := key.WithID().ID
	return &session.Data{
		DC:        dc,
		Addr:      net.JoinHostPort(addr, dcPort),
		AuthKey:   key[:],
		AuthKeyID: id[:],
	}, nil
}
