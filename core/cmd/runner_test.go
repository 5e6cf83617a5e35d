package cmd

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	coreconfig "github.com/m3rciful/godialogue/core/config"
	coretelegram "github.com/m3rciful/godialogue/core/telegram"
)

type carrier struct{ cfg *coreconfig.Config }

func (c carrier) CoreConfig() *coreconfig.Config { return c.cfg }

type app struct {
	closed bool
}

func (a *app) TelegramRunOptions() (coretelegram.RunOptions, error) {
	return coretelegram.RunOptions{}, nil
}

func (a *app) Close() error {
	a.closed = true
	return nil
}

func TestRunLifecycle(t *testing.T) {
	t.Setenv("TEST_DIALOGUE_CONFIG", "from-env.yaml")
	a := &app{}
	var loaded string
	var started, stopped, loggerClosed bool

	err := Run(Options{
		ConfigEnvVar: "TEST_DIALOGUE_CONFIG",
		LoadConfig: func(path string) (ConfigCarrier, error) {
			loaded = path
			return carrier{cfg: &coreconfig.Config{}}, nil
		},
		Bootstrap: func(context.Context, ConfigCarrier) (TelegramApp, error) { return a, nil },
		RunTelegram: func(ctx context.Context, opts coretelegram.RunOptions) error {
			started = opts.OnStart(ctx, coretelegram.Runtime{}) == nil
			stopped = opts.OnStop(ctx, coretelegram.Runtime{}) == nil
			return nil
		},
		ShutdownLogger: func() error {
			loggerClosed = true
			return nil
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "from-env.yaml", loaded)
	assert.True(t, started)
	assert.True(t, stopped)
	assert.True(t, a.closed)
	assert.True(t, loggerClosed)
}

func TestRunValidation(t *testing.T) {
	assert.Error(t, Run(Options{}))

	load := func(string) (ConfigCarrier, error) { return carrier{}, nil }
	boot := func(context.Context, ConfigCarrier) (TelegramApp, error) { return &app{}, nil }
	assert.ErrorContains(t, Run(Options{LoadConfig: load, Bootstrap: boot, ConfigEnvVar: "TEST_DIALOGUE_UNSET"}), "config path")
	assert.ErrorContains(t, Run(Options{LoadConfig: load, Bootstrap: boot, DefaultConfigPath: "x.yaml"}), "missing core configuration")

	failing := func(string) (ConfigCarrier, error) { return nil, errors.New("no such file") }
	assert.ErrorContains(t, Run(Options{LoadConfig: failing, Bootstrap: boot, DefaultConfigPath: "x.yaml"}), "no such file")
}
