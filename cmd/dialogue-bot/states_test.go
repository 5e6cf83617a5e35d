package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/m3rciful/godialogue/core/bootstrap"
	coreconfig "github.com/m3rciful/godialogue/core/config"
	"github.com/m3rciful/godialogue/core/dialogue"
	"github.com/m3rciful/godialogue/core/dialogue/serializer"
	"github.com/m3rciful/godialogue/core/dialogue/storage"

	tele "gopkg.in/telebot.v4"
)

type sent struct {
	text string
	opts []interface{}
}

// fakeContext answers Text and records Send; every other method panics.
type fakeContext struct {
	tele.Context
	text string
	sent []sent
}

func (c *fakeContext) Text() string { return c.text }

func (c *fakeContext) Send(what interface{}, opts ...interface{}) error {
	s, _ := what.(string)
	c.sent = append(c.sent, sent{text: s, opts: opts})
	return nil
}

func (c *fakeContext) last(t *testing.T) sent {
	t.Helper()
	require.NotEmpty(t, c.sent)
	return c.sent[len(c.sent)-1]
}

func newBot(t *testing.T, ser serializer.Serializer) (*dialogue.Dialogue[dialogue.State, tele.Context], *storage.Memory) {
	t.Helper()
	store := storage.NewMemory()
	d, err := dialogue.New(newMachine(), store, ser)
	require.NoError(t, err)
	return d, store
}

func say(t *testing.T, d *dialogue.Dialogue[dialogue.State, tele.Context], id storage.ChatID, text string) *fakeContext {
	t.Helper()
	c := &fakeContext{text: text}
	require.NoError(t, d.Handle(context.Background(), id, c))
	return c
}

func TestFullDialogue(t *testing.T) {
	for _, ser := range []serializer.Serializer{serializer.JSON(), serializer.YAML(), serializer.CBOR(), serializer.Msgpack()} {
		t.Run(ser.Name(), func(t *testing.T) {
			ctx := context.Background()
			d, store := newBot(t, ser)
			const chat = storage.ChatID(7)

			assert.Equal(t, "Let's start! What's your full name?", say(t, d, chat, "hi").last(t).text)

			say(t, d, chat, "  Jane Doe ")
			cur, err := d.Current(ctx, chat)
			require.NoError(t, err)
			assert.Equal(t, receiveAge{FullName: "Jane Doe"}, cur)

			assert.Equal(t, "Send me a number.", say(t, d, chat, "old").last(t).text)
			assert.Equal(t, "Send me a number.", say(t, d, chat, "300").last(t).text)

			c := say(t, d, chat, "42")
			require.Len(t, c.sent[0].opts, 1)
			assert.IsType(t, &tele.ReplyMarkup{}, c.sent[0].opts[0])
			cur, err = d.Current(ctx, chat)
			require.NoError(t, err)
			assert.Equal(t, receiveFavouriteMusic{FullName: "Jane Doe", Age: 42}, cur)

			assert.Equal(t, "Please, choose from the keyboard.", say(t, d, chat, "Jazz").last(t).text)

			c = say(t, d, chat, "metal")
			assert.Equal(t, "Your full name: *Jane Doe*, your age: *42*, your favourite music: *Metal*", c.last(t).text)

			assert.Equal(t, 0, store.Len())
			cur, err = d.Current(ctx, chat)
			require.NoError(t, err)
			assert.Equal(t, start{}, cur)
		})
	}
}

func TestEmptyNameIsAskedAgain(t *testing.T) {
	d, _ := newBot(t, serializer.JSON())
	say(t, d, 1, "/start")
	assert.Equal(t, "Send me your full name as text, please.", say(t, d, 1, "   ").last(t).text)

	cur, err := d.Current(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, receiveFullName{}, cur)
}

func TestSummaryEscapesMarkdown(t *testing.T) {
	got := summary(receiveFavouriteMusic{FullName: "J. Doe-Smith", Age: 7}, "Rock")
	assert.Equal(t, `Your full name: *J\. Doe\-Smith*, your age: *7*, your favourite music: *Rock*`, got)
}

func TestParseMusic(t *testing.T) {
	m, ok := parseMusic(" pop ")
	assert.True(t, ok)
	assert.Equal(t, "Pop", m)

	_, ok = parseMusic("jazz")
	assert.False(t, ok)
}

func TestMachineKnowsEveryState(t *testing.T) {
	m := newMachine()
	require.NoError(t, m.Validate())
	assert.ElementsMatch(t,
		[]string{"start", "receive_full_name", "receive_age", "receive_favourite_music"},
		m.States(),
	)
}

func TestLoadConfigWithDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
telegram:
  token: "123:abc"
dialogue:
  storage: postgres
  serializer: cbor
database:
  host: db.internal
  name: dialogue
`), 0o600))

	carrier, err := loadConfig(path)
	require.NoError(t, err)
	cfg := carrier.(*Config)
	assert.Equal(t, coreconfig.StoragePostgres, cfg.CoreConfig().Dialogue.Storage)
	assert.Equal(t, "cbor", cfg.Dialogue.Serializer)
	assert.Equal(t, "db.internal", cfg.Database.Host)
	assert.Equal(t, "dialogue", cfg.Database.Name)
}

func TestWireRegistersCommands(t *testing.T) {
	cfg := &Config{}
	cfg.Dialogue.CancelCommand = "/cancel"
	infra := &bootstrap.Result{Storage: storage.NewMemory(), Serializer: serializer.JSON()}

	a, err := wire(cfg, infra)
	require.NoError(t, err)

	_, _, ok := a.reg.LookupCommand("/cancel")
	assert.True(t, ok)
	_, cmd, ok := a.reg.LookupCommand("/version")
	require.True(t, ok)
	assert.True(t, cmd.Hidden)

	opts, err := a.TelegramRunOptions()
	require.NoError(t, err)
	assert.NotEmpty(t, opts.Routes)
	assert.Len(t, opts.Middlewares, 2)
	assert.NoError(t, a.Close())
}

func TestWireWithoutCancel(t *testing.T) {
	a, err := wire(&Config{}, &bootstrap.Result{Storage: storage.NewMemory(), Serializer: serializer.JSON()})
	require.NoError(t, err)
	_, _, ok := a.reg.LookupCommand("/cancel")
	assert.False(t, ok)
}
