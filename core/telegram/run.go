package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	coreconfig "github.com/m3rciful/godialogue/core/config"
	"github.com/m3rciful/godialogue/core/logger"
	tghelpers "github.com/m3rciful/godialogue/core/telegram/helpers"

	tele "gopkg.in/telebot.v4"
)

// Middleware describes a global bot middleware to be registered via bot.Use.
type Middleware struct {
	Name string
	Use  func(next tele.HandlerFunc) tele.HandlerFunc
}

// Route declares a single bot handler bound to an arbitrary endpoint.
// Endpoint values are passed directly to tele.Bot.Handle.
type Route struct {
	Endpoint any
	Handler  tele.HandlerFunc
}

// RunOptions controls the behaviour of RunTelegram.
type RunOptions struct {
	Config   *coreconfig.Config
	Registry *Registry

	Middlewares []Middleware
	Routes      []Route

	DisableWebhookCleanup bool

	// OnError receives handler errors; nil logs them.
	OnError func(error, tele.Context)
	OnStart func(ctx context.Context, rt Runtime) error
	OnStop  func(ctx context.Context, rt Runtime) error
}

// Runtime exposes runtime components to lifecycle hooks.
type Runtime struct {
	Bot      *tele.Bot
	Registry *Registry
}

// RunTelegram composes and runs a Telegram bot until the provided context is done.
func RunTelegram(ctx context.Context, opts RunOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if opts.Config == nil {
		return fmt.Errorf("telegram: nil config provided")
	}

	cfg := opts.Config
	reg := opts.Registry
	if reg == nil {
		reg = NewRegistry()
	}

	poller := BuildPoller(PollerOptions{
		RunMode:                cfg.Telegram.RunMode,
		LongPollTimeoutSeconds: cfg.Telegram.LongPollTimeoutSeconds,
		Webhook: WebhookOptions{
			Listen: cfg.Webhook.Listen,
			Port:   cfg.Webhook.Port,
			URL:    cfg.Webhook.URL,
		},
	})

	onError := opts.OnError
	if onError == nil {
		onError = logHandlerError
	}

	buildStart := time.Now()
	bot, err := tele.NewBot(tele.Settings{
		Token:   cfg.Telegram.Token,
		Poller:  poller,
		OnError: onError,
	})
	if err != nil {
		return fmt.Errorf("telegram: bot initialization failed: %w", err)
	}
	logMode(ctx, bot, poller, logger.Took(buildStart), !opts.DisableWebhookCleanup)

	rt := Runtime{Bot: bot, Registry: reg}

	for _, mw := range opts.Middlewares {
		if mw.Use != nil {
			bot.Use(mw.Use)
		}
	}
	for _, route := range opts.Routes {
		if route.Endpoint != nil && route.Handler != nil {
			bot.Handle(route.Endpoint, route.Handler)
		}
	}
	InitBotCommands(ctx, bot, reg)

	if opts.OnStart != nil {
		if err := opts.OnStart(ctx, rt); err != nil {
			return err
		}
	}

	runDone := make(chan struct{})
	go func() {
		bot.Start()
		close(runDone)
	}()

	var runErr error
	select {
	case <-ctx.Done():
		bot.Stop()
		<-runDone
		runErr = ctx.Err()
	case <-runDone:
	}

	if opts.OnStop != nil {
		if err := opts.OnStop(context.WithoutCancel(ctx), rt); err != nil {
			return err
		}
	}
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return runErr
	}
	return nil
}

func logMode(ctx context.Context, bot *tele.Bot, poller tele.Poller, took time.Duration, cleanup bool) {
	if p, ok := poller.(*tele.Webhook); ok {
		logger.Info(ctx, logger.ComponentTelegram, "mode",
			slog.String("status", "ok"),
			slog.String("mode", "webhook"),
			slog.String("listen", p.Listen),
			slog.String("public_url", p.Endpoint.PublicURL),
			slog.Duration("duration", took),
		)
		return
	}

	attrs := []slog.Attr{
		slog.String("status", "ok"),
		slog.String("mode", "polling"),
		slog.Duration("duration", took),
	}
	if lp, ok := poller.(*tele.LongPoller); ok {
		attrs = append(attrs, slog.Duration("timeout", lp.Timeout))
	}
	logger.Info(ctx, logger.ComponentTelegram, "mode", attrs...)

	if !cleanup {
		return
	}
	if err := bot.RemoveWebhook(false); err != nil {
		logger.Warn(ctx, logger.ComponentTelegram, "delete_webhook",
			slog.String("status", "fail"),
			slog.String("mode", "polling"),
			slog.String("err", err.Error()),
		)
	}
}

func logHandlerError(err error, c tele.Context) {
	ctx, ok := tghelpers.ContextFrom(c)
	if !ok {
		ctx = logger.Background()
	}
	logger.Error(ctx, logger.ComponentTelegram, "handler.error",
		slog.String("status", "fail"),
		slog.String("err", logger.SanitizeLimit(err.Error(), 256)),
	)
}
