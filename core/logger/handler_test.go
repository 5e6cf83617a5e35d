package logger

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"log/slog"
)

// render writes one event through a fresh handler and returns the line.
func render(t *testing.T, format logFormat, ctx context.Context, component string, level slog.Level, event string, attrs ...slog.Attr) string {
	t.Helper()
	buf := &bytes.Buffer{}
	aw := newLineWriter([]io.Writer{buf}, 1024)
	handler := newStructuredHandler(handlerConfig{
		level:    slog.LevelDebug,
		writer:   aw,
		format:   format,
		keyOrder: append([]string(nil), defaultKeyOrder...),
	})
	LogEvent(ctx, slog.New(handler).With("component", component), level, event, attrs...)
	if err := aw.Flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}
	if err := aw.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	line := strings.TrimSpace(buf.String())
	if line == "" {
		t.Fatal("expected log line")
	}
	return line
}

func TestStructuredHandlerKVOrder(t *testing.T) {
	ctx := WithRID(Background(), "rid-123")
	ctx = WithUpdateMeta(ctx, 42, 7, 9)

	line := render(t, formatKV, ctx, "app", slog.LevelInfo, "test.event",
		slog.String("status", "ok"),
		slog.String("cause", "unit"),
	)
	tokens := strings.Split(line, " ")
	expected := []string{"ts=", "level=INFO", "component=app", "event=test.event", "status=ok", "rid=rid-123"}
	if len(tokens) < len(expected) {
		t.Fatalf("unexpected token count: %d (%s)", len(tokens), line)
	}
	for i, prefix := range expected {
		if !strings.HasPrefix(tokens[i], prefix) {
			t.Fatalf("token %d = %s, expected prefix %s", i, tokens[i], prefix)
		}
	}
}

func TestStructuredHandlerJSONOrder(t *testing.T) {
	ctx := WithRID(Background(), "rid-json")
	ctx = WithUpdateMeta(ctx, 11, 22, 33)

	line := render(t, formatJSON, ctx, "dialogue", slog.LevelError, "dialogue.failed",
		slog.String("status", "fail"),
		slog.String("err", "boom"),
		slog.String("err_code", "DESERIALIZATION"),
		slog.String("state", "awaiting_age"),
	)
	if !strings.HasPrefix(line, "{") {
		t.Fatalf("expected JSON, got %s", line)
	}
	prefixes := []string{`{"ts":`, `"level":"ERROR"`, `"component":"dialogue"`, `"event":"dialogue.failed"`, `"status":"fail"`, `"rid":"rid-json"`, `"chat_id":33`, `"state":"awaiting_age"`, `"err":"boom"`}
	pos := -1
	for _, pref := range prefixes {
		idx := strings.Index(line, pref)
		if idx == -1 || idx < pos {
			t.Fatalf("prefix %s not found in order within %s", pref, line)
		}
		pos = idx
	}
}

func TestStructuredHandlerCompactRID(t *testing.T) {
	rawRID := "123:456:789"
	line := render(t, formatKV, WithRID(Background(), rawRID), "app", slog.LevelInfo, "rid.test",
		slog.String("status", "ok"),
	)
	if !strings.Contains(line, "rid="+CompactRID(rawRID)) {
		t.Fatalf("expected compact rid, got %s", line)
	}
	if strings.Contains(line, "rid_full=") {
		t.Fatalf("rid_full should be omitted in KV output, got %s", line)
	}
}

func TestStructuredHandlerCompactRIDJSON(t *testing.T) {
	rawRID := "12:34:56"
	line := render(t, formatJSON, WithRID(Background(), rawRID), "app", slog.LevelInfo, "rid.test",
		slog.String("status", "ok"),
	)
	if !strings.Contains(line, `"rid":"`+CompactRID(rawRID)+`"`) {
		t.Fatalf("expected compact rid in JSON, got %s", line)
	}
	if !strings.Contains(line, `"rid_full":"`+rawRID+`"`) {
		t.Fatalf("expected rid_full in JSON output, got %s", line)
	}
	if !strings.Contains(line, `"ts_unix_nano"`) {
		t.Fatalf("expected ts_unix_nano to be present in JSON output, got %s", line)
	}
}

func TestStructuredHandlerChatIDFromContext(t *testing.T) {
	ctx := WithChatID(Background(), 1001)
	line := render(t, formatKV, ctx, "dialogue", slog.LevelDebug, "dialogue.cycle",
		slog.String("transition", "next"),
		slog.Duration("duration", 1500*time.Microsecond),
	)
	for _, want := range []string{"chat_id=1001", "transition=next", "duration_ms=2"} {
		if !strings.Contains(line, want) {
			t.Fatalf("expected %s in %s", want, line)
		}
	}
	if strings.Index(line, "chat_id=") > strings.Index(line, "transition=") {
		t.Fatalf("chat_id must precede transition: %s", line)
	}
}

func TestStructuredHandlerDropsUnknownTransition(t *testing.T) {
	line := render(t, formatKV, Background(), "dialogue", slog.LevelInfo, "dialogue.cycle",
		slog.String("transition", "teleport"),
		slog.String("outcome", "OK"),
	)
	if strings.Contains(line, "transition=") {
		t.Fatalf("unknown transition must be dropped: %s", line)
	}
	if !strings.Contains(line, "outcome=ok") {
		t.Fatalf("outcome must be normalized: %s", line)
	}
}

func TestWithChatIDOverridesUpdateMeta(t *testing.T) {
	ctx := WithUpdateMeta(context.Background(), 1, 2, 3)
	if got := ChatIDFrom(WithChatID(ctx, 3)); got != 3 {
		t.Fatalf("chat id = %d, want 3", got)
	}
	if got := ChatIDFrom(WithChatID(ctx, 4)); got != 4 {
		t.Fatalf("chat id = %d, want 4", got)
	}
}

func TestHelpersAreNoopsBeforeInit(t *testing.T) {
	if L != nil {
		t.Skip("logger initialized by another test")
	}
	Info(Background(), ComponentDialogue, "noop", slog.String("status", "ok"))
	if Component(ComponentStorage) != nil {
		t.Fatal("component logger must be nil before init")
	}
}
