// Command dialogue-bot asks for a full name, an age and a favourite genre,
// then sends a summary. Dialogue state survives restarts when a persistent
// storage backend is configured.
package main

import (
	"context"
	"fmt"
	"log"

	"github.com/m3rciful/godialogue/core/bootstrap"
	"github.com/m3rciful/godialogue/core/buildinfo"
	"github.com/m3rciful/godialogue/core/cmd"
	coreconfig "github.com/m3rciful/godialogue/core/config"
	coredatabase "github.com/m3rciful/godialogue/core/database"
	"github.com/m3rciful/godialogue/core/dialogue"
	"github.com/m3rciful/godialogue/core/telegram"
	"github.com/m3rciful/godialogue/core/telegram/commands"
	"github.com/m3rciful/godialogue/core/telegram/router"
	"github.com/m3rciful/godialogue/core/telegram/state"

	tele "gopkg.in/telebot.v4"
)

// Config is the bot configuration file layout.
type Config struct {
	coreconfig.Config `yaml:",inline"`
	Database          coredatabase.Config `yaml:"database"`
}

// CoreConfig implements cmd.ConfigCarrier.
func (c *Config) CoreConfig() *coreconfig.Config { return &c.Config }

type app struct {
	cfg   *Config
	infra *bootstrap.Result
	conv  *state.Conversation[dialogue.State]
	reg   *telegram.Registry
}

func main() {
	err := cmd.Run(cmd.Options{
		ConfigEnvVar:      "CONFIG_PATH",
		DefaultConfigPath: "config.yaml",
		LoadConfig:        loadConfig,
		Bootstrap:         newApp,
	})
	if err != nil {
		log.Fatal(err)
	}
}

func loadConfig(path string) (cmd.ConfigCarrier, error) {
	var cfg Config
	if err := coreconfig.Decode(path, &cfg); err != nil {
		return nil, err
	}
	if err := coreconfig.Normalize(&cfg.Config); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func newApp(ctx context.Context, carrier cmd.ConfigCarrier) (cmd.TelegramApp, error) {
	cfg, ok := carrier.(*Config)
	if !ok {
		return nil, fmt.Errorf("unexpected config type %T", carrier)
	}
	infra, err := bootstrap.Run(ctx, bootstrap.Options{
		Config:   &cfg.Config,
		Database: cfg.Database,
	})
	if err != nil {
		return nil, err
	}
	a, err := wire(cfg, infra)
	if err != nil {
		_ = infra.Close()
		return nil, err
	}
	return a, nil
}

func wire(cfg *Config, infra *bootstrap.Result) (*app, error) {
	d, err := dialogue.New(newMachine(), infra.Storage, infra.Serializer)
	if err != nil {
		return nil, err
	}
	conv := state.New(d, state.Options{
		OnError: replyError,
		OnCancel: func(c tele.Context) error {
			return c.Send("Cancelled. Send me anything to start again.", &tele.ReplyMarkup{RemoveKeyboard: true})
		},
	})

	reg := telegram.NewRegistry()
	if name := cfg.Dialogue.CancelCommand; name != "" {
		if err := reg.RegisterCommand(name, commands.Command{
			Handler:     conv.Cancel,
			Description: "Abort the current dialogue",
		}); err != nil {
			return nil, err
		}
	}
	if err := reg.RegisterCommand("/version", commands.Command{
		Handler:     func(c tele.Context) error { return c.Send(buildinfo.String()) },
		Description: "Show the bot version",
		Hidden:      true,
	}); err != nil {
		return nil, err
	}

	return &app{cfg: cfg, infra: infra, conv: conv, reg: reg}, nil
}

// replyError tells the user the message was not processed. The dialogue
// stays where it was, so repeating the message is always safe.
func replyError(c tele.Context, err *dialogue.Error) error {
	if err.Retryable() {
		return c.Send("I can't reach my memory right now. Please repeat your message in a moment.")
	}
	return c.Send("Something went wrong, please try again.")
}

func (a *app) TelegramRunOptions() (telegram.RunOptions, error) {
	return telegram.RunOptions{
		Config:      &a.cfg.Config,
		Registry:    a.reg,
		Middlewares: telegram.DefaultMiddlewares(),
		Routes:      router.TextRoutes(a.conv, a.reg, router.TextOptions{}),
	}, nil
}

func (a *app) Close() error { return a.infra.Close() }
