package logger

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"unicode"
)

type contextKey int

const (
	ctxLogger contextKey = iota
	ctxRID
	ctxUpdateID
	ctxUserID
	ctxChatID
	ctxHandler
)

func withValue(ctx context.Context, key contextKey, val any) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, key, val)
}

func valueFrom[T any](ctx context.Context, key contextKey) (T, bool) {
	var zero T
	if ctx == nil {
		return zero, false
	}
	v, ok := ctx.Value(key).(T)
	return v, ok
}

// WithLogger stores log in ctx. A nil log leaves ctx unchanged.
func WithLogger(ctx context.Context, log *slog.Logger) context.Context {
	if log == nil {
		if ctx == nil {
			return context.Background()
		}
		return ctx
	}
	return withValue(ctx, ctxLogger, log)
}

// FromContext returns the logger stored in ctx, or L.
func FromContext(ctx context.Context) *slog.Logger {
	if l, ok := valueFrom[*slog.Logger](ctx, ctxLogger); ok && l != nil {
		return l
	}
	return L
}

// WithRID attaches a request correlation id.
func WithRID(ctx context.Context, rid string) context.Context {
	return withValue(ctx, ctxRID, rid)
}

// RIDFrom returns the correlation id, if any.
func RIDFrom(ctx context.Context) string {
	rid, _ := valueFrom[string](ctx, ctxRID)
	return rid
}

// WithUpdateMeta attaches the identifiers of a Telegram update.
func WithUpdateMeta(ctx context.Context, updateID int, userID, chatID int64) context.Context {
	ctx = withValue(ctx, ctxUpdateID, updateID)
	ctx = withValue(ctx, ctxUserID, userID)
	return withValue(ctx, ctxChatID, chatID)
}

// WithChatID attaches the chat a dialogue cycle runs for.
func WithChatID(ctx context.Context, chatID int64) context.Context {
	if ctx != nil && ChatIDFrom(ctx) == chatID {
		return ctx
	}
	return withValue(ctx, ctxChatID, chatID)
}

// WithHandler names the handler serving the request. Empty names are ignored.
func WithHandler(ctx context.Context, handler string) context.Context {
	if handler == "" {
		if ctx == nil {
			return context.Background()
		}
		return ctx
	}
	return withValue(ctx, ctxHandler, handler)
}

// HandlerFrom returns the handler name, if any.
func HandlerFrom(ctx context.Context) string {
	h, _ := valueFrom[string](ctx, ctxHandler)
	return h
}

// UserIDFrom returns the Telegram user id, or 0.
func UserIDFrom(ctx context.Context) int64 {
	id, _ := valueFrom[int64](ctx, ctxUserID)
	return id
}

// ChatIDFrom returns the chat id, or 0.
func ChatIDFrom(ctx context.Context) int64 {
	id, _ := valueFrom[int64](ctx, ctxChatID)
	return id
}

// UpdateIDFrom returns the Telegram update id, or 0.
func UpdateIDFrom(ctx context.Context) int {
	id, _ := valueFrom[int](ctx, ctxUpdateID)
	return id
}

// Sanitize drops control and format runes from s, keeping tabs and newlines.
func Sanitize(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r == '\n' || r == '\t':
			return r
		case unicode.IsControl(r) || unicode.Is(unicode.Cf, r):
			return -1
		}
		return r
	}, s)
}

// SanitizeLimit applies Sanitize and keeps at most max runes.
func SanitizeLimit(s string, max int) string {
	if max <= 0 {
		return ""
	}
	r := []rune(Sanitize(s))
	if len(r) <= max {
		return string(r)
	}
	return string(r[:max])
}

// BuildRID formats a correlation id as updateID:chatID:userID.
func BuildRID(updateID int, chatID, userID int64) string {
	return fmt.Sprintf("%d:%d:%d", updateID, chatID, userID)
}

// CompactRID rewrites a BuildRID value as dot-separated base36 segments.
// Other inputs are returned unchanged.
func CompactRID(rid string) string {
	rid = strings.TrimSpace(rid)
	parts := strings.Split(rid, ":")
	if len(parts) != 3 {
		return rid
	}
	for i, part := range parts {
		n, err := strconv.ParseInt(strings.TrimSpace(part), 10, 64)
		if err != nil {
			return rid
		}
		parts[i] = strconv.FormatInt(n, 36)
	}
	return strings.Join(parts, ".")
}
