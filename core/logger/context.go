package logger

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
)

type contextKey string

const (
	ctxRID      contextKey = "rid"
	ctxUpdateID contextKey = "update_id"
	ctxUserID   contextKey = "user_id"
	ctxChatID   contextKey = "chat_id"
	ctxLogger   contextKey = "logger"
	ctxHandler  contextKey = "handler"
	ctxAttempt  contextKey = "attempt_id"
)

func ensure(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}

func stringFrom(ctx context.Context, key contextKey) string {
	if ctx == nil {
		return ""
	}
	s, _ := ctx.Value(key).(string)
	return s
}

func int64From(ctx context.Context, key contextKey) int64 {
	if ctx == nil {
		return 0
	}
	switch id := ctx.Value(key).(type) {
	case int64:
		return id
	case int:
		return int64(id)
	}
	return 0
}

// WithLogger stores the provided slog.Logger in context for propagation across layers.
func WithLogger(ctx context.Context, log *slog.Logger) context.Context {
	ctx = ensure(ctx)
	if log == nil {
		return ctx
	}
	return context.WithValue(ctx, ctxLogger, log)
}

// FromContext extracts slog.Logger from context or returns global default.
func FromContext(ctx context.Context) *slog.Logger {
	if ctx != nil {
		if l, ok := ctx.Value(ctxLogger).(*slog.Logger); ok && l != nil {
			return l
		}
	}
	return L
}

// WithRID attaches request correlation id into context.
func WithRID(ctx context.Context, rid string) context.Context {
	return context.WithValue(ensure(ctx), ctxRID, rid)
}

// RIDFrom extracts rid from context if present.
func RIDFrom(ctx context.Context) string { return stringFrom(ctx, ctxRID) }

// WithUpdateMeta attaches common update identifiers to context.
func WithUpdateMeta(ctx context.Context, updateID int, userID, chatID int64) context.Context {
	ctx = context.WithValue(ensure(ctx), ctxUpdateID, updateID)
	ctx = context.WithValue(ctx, ctxUserID, userID)
	return context.WithValue(ctx, ctxChatID, chatID)
}

// WithUser attaches only the user id; used outside of update handling.
func WithUser(ctx context.Context, userID int64) context.Context {
	return context.WithValue(ensure(ctx), ctxUserID, userID)
}

// WithHandler stores handler identifier in context for downstream logs.
func WithHandler(ctx context.Context, handler string) context.Context {
	ctx = ensure(ctx)
	if handler == "" {
		return ctx
	}
	return context.WithValue(ctx, ctxHandler, handler)
}

// HandlerFrom returns handler identifier from context if present.
func HandlerFrom(ctx context.Context) string { return stringFrom(ctx, ctxHandler) }

// WithAttempt tags the context with a login attempt id.
func WithAttempt(ctx context.Context, attemptID string) context.Context {
	ctx = ensure(ctx)
	if attemptID == "" {
		return ctx
	}
	return context.WithValue(ctx, ctxAttempt, attemptID)
}

// AttemptFrom returns the login attempt id, if any.
func AttemptFrom(ctx context.Context) string { return stringFrom(ctx, ctxAttempt) }

// UserIDFrom extracts Telegram user ID from context.
func UserIDFrom(ctx context.Context) int64 { return int64From(ctx, ctxUserID) }

// ChatIDFrom extracts chat id from context.
func ChatIDFrom(ctx context.Context) int64 { return int64From(ctx, ctxChatID) }

// UpdateIDFrom extracts update identifier from context.
func UpdateIDFrom(ctx context.Context) int { return int(int64From(ctx, ctxUpdateID)) }

// BuildRID returns a correlation identifier in the format updateID:chatID:userID.
func BuildRID(updateID int, chatID, userID int64) string {
	return fmt.Sprintf("%d:%d:%d", updateID, chatID, userID)
}

// CompactRID shortens colon-separated RID into base36 segments for readability.
// When the input does not match the expected format it is returned unchanged.
func CompactRID(rid string) string {
	rid = strings.TrimSpace(rid)
	parts := strings.Split(rid, ":")
	if len(parts) != 3 {
		return rid
	}
	compact := make([]string, 0, len(parts))
	for _, part := range parts {
		n, err := strconv.ParseInt(strings.TrimSpace(part), 10, 64)
		if err != nil {
			return rid
		}
		compact = append(compact, strconv.FormatInt(n, 36))
	}
	return strings.Join(compact, ".")
}
