package middleware

import (
	"log/slog"
	"sync"
	"time"

	"github.com/m3rciful/godialogue/core/logger"
	tghelpers "github.com/m3rciful/godialogue/core/telegram/helpers"

	tele "gopkg.in/telebot.v4"
)

// seenUpdates remembers recently logged update ids so a receipt is written
// once even when the middleware wraps several branches.
type seenUpdates struct {
	mu      sync.Mutex
	at      map[int]time.Time
	keepFor time.Duration
}

var recent = &seenUpdates{at: make(map[int]time.Time), keepFor: 10 * time.Second}

func (s *seenUpdates) first(updateID int, now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, ts := range s.at {
		if now.Sub(ts) > s.keepFor {
			delete(s.at, id)
		}
	}
	if _, ok := s.at[updateID]; ok {
		return false
	}
	s.at[updateID] = now
	return true
}

// LoggerMiddleware sets rid, stores the request context and logs one receipt
// line per update.
func LoggerMiddleware(next tele.HandlerFunc) tele.HandlerFunc {
	return func(c tele.Context) error {
		upd := c.Update()
		chatID := tghelpers.ChatID(c)
		var userID int64
		user := c.Sender()
		if user != nil {
			userID = user.ID
		}

		rid := logger.BuildRID(upd.ID, chatID, userID)
		c.Set("rid", rid)
		ctx := logger.WithRID(logger.Background(), rid)
		ctx = logger.WithUpdateMeta(ctx, upd.ID, userID, chatID)
		ctx = logger.WithLogger(ctx, logger.Component(logger.ComponentTelegram))
		tghelpers.StoreContext(c, ctx)

		if logger.ShouldSampleDebug() && recent.first(upd.ID, time.Now()) {
			attrs := []slog.Attr{slog.String("status", "ok")}
			if chat := c.Chat(); chat != nil {
				attrs = append(attrs, slog.String("chat_type", string(chat.Type)))
			}
			if user != nil {
				attrs = append(attrs,
					slog.String("username", logger.SanitizeLimit(user.Username, 64)),
					slog.String("lang", user.LanguageCode),
				)
			}
			if t := c.Text(); t != "" {
				attrs = append(attrs, slog.String("payload", logger.SanitizeLimit(t, 256)))
			}
			logger.Debug(ctx, logger.ComponentTelegram, "update.received", attrs...)
		}

		return next(c)
	}
}
