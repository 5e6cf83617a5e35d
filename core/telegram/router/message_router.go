package router

import (
	tg "github.com/m3rciful/godialogue/core/telegram"

	tele "gopkg.in/telebot.v4"
)

// Conversation is the dialogue side of the router.
type Conversation interface {
	Handle(c tele.Context) error
}

// TextOptions controls which updates reach the conversation.
type TextOptions struct {
	// Endpoints defaults to text and media messages.
	Endpoints []any
}

// TextRoutes sends registered commands to their handlers and everything
// else to conv.
func TextRoutes(conv Conversation, reg *tg.Registry, opts TextOptions) []tg.Route {
	handler := func(c tele.Context) error {
		if reg != nil {
			if key, cmd, ok := reg.LookupCommand(c.Text()); ok && isCommand(c.Text()) {
				return handleWithSummary(c, normalizeHandlerName(key), func() error {
					return cmd.Handler(c)
				})
			}
		}
		if conv == nil {
			return nil
		}
		return handleWithSummary(c, "dialogue", func() error {
			return conv.Handle(c)
		})
	}

	endpoints := opts.Endpoints
	if len(endpoints) == 0 {
		endpoints = []any{tele.OnText, tele.OnMedia}
	}
	routes := make([]tg.Route, 0, len(endpoints))
	for _, ep := range endpoints {
		routes = append(routes, tg.Route{Endpoint: ep, Handler: handler})
	}
	return routes
}

func isCommand(text string) bool {
	return len(text) > 1 && text[0] == '/'
}
