package logger

import (
	"bytes"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"
)

func newTestHandler(t *testing.T, format logFormat) (*slog.Logger, func() string) {
	t.Helper()
	buf := &bytes.Buffer{}
	aw := newAsyncWriter([]io.Writer{buf}, 1024)
	handler := newStructuredHandler(handlerConfig{
		level:    slog.LevelDebug,
		writer:   aw,
		format:   format,
		keyOrder: append([]string(nil), defaultKeyOrder...),
	})
	read := func() string {
		if err := aw.Close(); err != nil {
			t.Fatalf("close: %v", err)
		}
		return strings.TrimSpace(buf.String())
	}
	return slog.New(handler), read
}

func TestStructuredHandlerKVOrder(t *testing.T) {
	log, read := newTestHandler(t, formatKV)
	ctx := WithRID(Background(), "rid-123")
	ctx = WithUpdateMeta(ctx, 42, 7, 9)

	LogEvent(ctx, log.With("component", "auth"), slog.LevelInfo, "login.step",
		slog.String("status", "OK"),
		slog.String("step", "awaiting_code"),
	)

	tokens := strings.Split(read(), " ")
	expected := []string{"ts=", "level=INFO", "component=auth", "event=login.step", "status=ok", "rid=rid-123", "update_id=42", "user_id=7", "chat_id=9"}
	if len(tokens) < len(expected) {
		t.Fatalf("unexpected token count: %d (%v)", len(tokens), tokens)
	}
	for i, prefix := range expected {
		if !strings.HasPrefix(tokens[i], prefix) {
			t.Fatalf("token %d = %s, expected prefix %s", i, tokens[i], prefix)
		}
	}
}

func TestStructuredHandlerJSONCompactRID(t *testing.T) {
	log, read := newTestHandler(t, formatJSON)
	rawRID := "12:34:56"
	ctx := WithAttempt(WithRID(Background(), rawRID), "a-1")

	LogEvent(ctx, log, slog.LevelError, "login.fail",
		slog.String("outcome", "wrong_password"),
		slog.Duration("duration", 1500*time.Microsecond),
	)

	line := read()
	for _, want := range []string{
		`"rid":"` + CompactRID(rawRID) + `"`,
		`"rid_full":"` + rawRID + `"`,
		`"attempt_id":"a-1"`,
		`"outcome":"wrong_password"`,
		`"duration_ms":2`,
		`"component":"app"`,
		`"ts_unix_nano"`,
	} {
		if !strings.Contains(line, want) {
			t.Fatalf("expected %s in %s", want, line)
		}
	}
}

func TestStructuredHandlerDropsUnknownOutcome(t *testing.T) {
	log, read := newTestHandler(t, formatKV)
	LogEvent(Background(), log, slog.LevelInfo, "x", slog.String("outcome", "weird"), slog.String("empty", ""))
	line := read()
	if strings.Contains(line, "outcome=") || strings.Contains(line, "empty=") {
		t.Fatalf("unexpected fields in %s", line)
	}
}

func TestMaskPhone(t *testing.T) {
	if got := MaskPhone("+15551234567"); got != "+15*******67" {
		t.Fatalf("MaskPhone = %s", got)
	}
	if got := MaskPhone("+12"); got != "***" {
		t.Fatalf("MaskPhone short = %s", got)
	}
	if got := MaskSecret("abcdef"); got != "<redacted:6>" {
		t.Fatalf("MaskSecret = %s", got)
	}
}

func TestRatioSampler(t *testing.T) {
	s := newRatioSampler(1, 3)
	var allowed int
	for i := 0; i < 9; i++ {
		if s.Allow() {
			allowed++
		}
	}
	if allowed != 3 {
		t.Fatalf("allowed = %d, want 3", allowed)
	}
	if n, d := parseRatioSpec("2/5"); n != 2 || d != 5 {
		t.Fatalf("parseRatioSpec = %d/%d", n, d)
	}
	if n, d := parseRatioSpec("10"); n != 1 || d != 10 {
		t.Fatalf("parseRatioSpec = %d/%d", n, d)
	}
}
