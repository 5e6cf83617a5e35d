package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/m3rciful/godialogue/core/logger"
	"github.com/m3rciful/godialogue/core/telegram/commands"

	tele "gopkg.in/telebot.v4"
)

// Registry holds bot commands.
type Registry struct {
	mu       sync.RWMutex
	commands map[string]commands.Command
	aliases  map[string]string
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		commands: make(map[string]commands.Command),
		aliases:  make(map[string]string),
	}
}

// RegisterCommand adds a new command named like "/start".
func (r *Registry) RegisterCommand(name string, cmd commands.Command) error {
	key := commands.Normalize(name)
	if key == "" || cmd.Handler == nil || cmd.Description == "" {
		logger.Warn(context.Background(), logger.ComponentTelegram, "register.command.skip",
			slog.String("status", "skip"),
			slog.String("handler", name),
			slog.String("cause", "invalid"),
		)
		return fmt.Errorf("invalid command registration %q", name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.commands[key]; exists {
		return fmt.Errorf("command already registered: %s", key)
	}
	if owner, exists := r.aliases[key]; exists {
		return fmt.Errorf("command %s already registered as alias of %s", key, owner)
	}
	r.commands[key] = cmd
	for _, alias := range cmd.Aliases {
		if a := commands.Normalize(alias); a != "" && a != key {
			r.aliases[a] = key
		}
	}
	return nil
}

// LookupCommand resolves the command in text, by name or alias, and returns
// the canonical key with its metadata.
func (r *Registry) LookupCommand(text string) (string, commands.Command, bool) {
	key := commands.Normalize(text)
	if key == "" {
		return "", commands.Command{}, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	if owner, ok := r.aliases[key]; ok {
		key = owner
	}
	cmd, ok := r.commands[key]
	return key, cmd, ok
}

// ListCommands returns the commands sorted by name, optionally without hidden ones.
func (r *Registry) ListCommands(visibleOnly bool) []tele.Command {
	r.mu.RLock()
	defer r.mu.RUnlock()
	list := make([]tele.Command, 0, len(r.commands))
	for name, meta := range r.commands {
		if visibleOnly && meta.Hidden {
			continue
		}
		list = append(list, tele.Command{Text: name[1:], Description: meta.Description})
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Text < list[j].Text })
	return list
}

// InitBotCommands sets the Telegram bot commands shown in the command menu.
func InitBotCommands(ctx context.Context, bot API, reg *Registry) {
	list := reg.ListCommands(true)
	if len(list) == 0 {
		return
	}
	if err := bot.SetCommands(list); err != nil {
		logger.Error(ctx, logger.ComponentTelegram, "register.commands.set_failed",
			slog.String("status", "fail"),
			slog.Int("count", len(list)),
			slog.String("err", err.Error()),
		)
	}
}

// API is the part of *tele.Bot used during startup.
type API interface {
	SetCommands(opts ...interface{}) error
}
