package telegram

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/m3rciful/godialogue/core/telegram/commands"

	tele "gopkg.in/telebot.v4"
)

type fakeAPI struct {
	set []tele.Command
	err error
}

func (f *fakeAPI) SetCommands(opts ...interface{}) error {
	for _, o := range opts {
		if cmds, ok := o.([]tele.Command); ok {
			f.set = cmds
		}
	}
	return f.err
}

func noop(tele.Context) error { return nil }

func TestRegistry(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.RegisterCommand("/start", commands.Command{Handler: noop, Description: "Start over"}))
	require.NoError(t, reg.RegisterCommand("cancel", commands.Command{Handler: noop, Description: "Abort", Aliases: []string{"/stop"}}))
	require.NoError(t, reg.RegisterCommand("/debug", commands.Command{Handler: noop, Description: "State dump", Hidden: true}))

	assert.Error(t, reg.RegisterCommand("/start", commands.Command{Handler: noop, Description: "again"}))
	assert.Error(t, reg.RegisterCommand("/stop", commands.Command{Handler: noop, Description: "alias clash"}))
	assert.Error(t, reg.RegisterCommand("/nodesc", commands.Command{Handler: noop}))
	assert.Error(t, reg.RegisterCommand("", commands.Command{Handler: noop, Description: "x"}))

	key, _, ok := reg.LookupCommand("/STOP@some_bot extra")
	require.True(t, ok)
	assert.Equal(t, "/cancel", key)
	_, _, ok = reg.LookupCommand("/missing")
	assert.False(t, ok)

	assert.Equal(t, []tele.Command{
		{Text: "cancel", Description: "Abort"},
		{Text: "start", Description: "Start over"},
	}, reg.ListCommands(true))
	assert.Len(t, reg.ListCommands(false), 3)

	api := &fakeAPI{err: errors.New("rate limited")}
	InitBotCommands(context.Background(), api, reg)
	assert.Len(t, api.set, 2)
}

func TestBuildPoller(t *testing.T) {
	p := BuildPoller(PollerOptions{RunMode: "WEBHOOK", Webhook: WebhookOptions{Listen: "0.0.0.0", Port: 8443, URL: "https://bot.example.org/hook"}})
	wh, ok := p.(*tele.Webhook)
	require.True(t, ok)
	assert.Equal(t, "0.0.0.0:8443", wh.Listen)
	assert.Equal(t, "https://bot.example.org/hook", wh.Endpoint.PublicURL)

	lp, ok := BuildPoller(PollerOptions{RunMode: "longpoll", LongPollTimeoutSeconds: 25}).(*tele.LongPoller)
	require.True(t, ok)
	assert.Equal(t, 25.0, lp.Timeout.Seconds())

	lp, ok = BuildPoller(PollerOptions{}).(*tele.LongPoller)
	require.True(t, ok)
	assert.Equal(t, defaultLongPollTimeout, lp.Timeout)
}

func TestChainOrder(t *testing.T) {
	var order []string
	mw := func(name string) Middleware {
		return Middleware{Name: name, Use: func(next tele.HandlerFunc) tele.HandlerFunc {
			return func(c tele.Context) error {
				order = append(order, name)
				return next(c)
			}
		}}
	}
	h := Chain(func(tele.Context) error {
		order = append(order, "handler")
		return nil
	}, mw("recover"), Middleware{Name: "nil"}, mw("logger"))
	require.NoError(t, h(nil))
	assert.Equal(t, []string{"recover", "logger", "handler"}, order)
}
