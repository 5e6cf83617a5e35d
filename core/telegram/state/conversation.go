package state

import (
	"errors"

	"github.com/m3rciful/godialogue/core/dialogue"
	"github.com/m3rciful/godialogue/core/dialogue/storage"
	tghelpers "github.com/m3rciful/godialogue/core/telegram/helpers"

	tele "gopkg.in/telebot.v4"
)

// HandlerName tags logs written while a conversation handles an update.
const HandlerName = "dialogue"

// Options tune a Conversation.
type Options struct {
	// OnError answers the user after a failed cycle; its result replaces the
	// error. Without it the error is returned to telebot.
	OnError func(c tele.Context, err *dialogue.Error) error
	// OnCancel confirms a reset to the user.
	OnCancel tele.HandlerFunc
}

// Conversation feeds Telegram updates into a dialogue keyed by chat id.
type Conversation[S dialogue.State] struct {
	d    *dialogue.Dialogue[S, tele.Context]
	opts Options
}

// New wraps d.
func New[S dialogue.State](d *dialogue.Dialogue[S, tele.Context], opts Options) *Conversation[S] {
	return &Conversation[S]{d: d, opts: opts}
}

// Dialogue returns the wrapped dialogue.
func (cv *Conversation[S]) Dialogue() *dialogue.Dialogue[S, tele.Context] { return cv.d }

// Handle runs one dialogue cycle for the update's chat. Updates without a
// chat are ignored.
func (cv *Conversation[S]) Handle(c tele.Context) error {
	id, ok := chatID(c)
	if !ok {
		return nil
	}
	ctx := tghelpers.WithHandler(c, HandlerName)
	return cv.failed(c, cv.d.Handle(ctx, id, c))
}

// Cancel drops the chat's dialogue so its next message starts over.
func (cv *Conversation[S]) Cancel(c tele.Context) error {
	id, ok := chatID(c)
	if !ok {
		return nil
	}
	ctx := tghelpers.WithHandler(c, HandlerName)
	if err := cv.d.Reset(ctx, id); err != nil {
		return cv.failed(c, err)
	}
	if cv.opts.OnCancel != nil {
		return cv.opts.OnCancel(c)
	}
	return nil
}

// Current reports the chat's dialogue state; the initial one when none is stored.
func (cv *Conversation[S]) Current(c tele.Context) (S, error) {
	id, ok := chatID(c)
	if !ok {
		return cv.d.Machine().Initial(), nil
	}
	return cv.d.Current(tghelpers.BuildContext(c), id)
}

func (cv *Conversation[S]) failed(c tele.Context, err error) error {
	if err == nil {
		return nil
	}
	var de *dialogue.Error
	if cv.opts.OnError != nil && errors.As(err, &de) {
		return cv.opts.OnError(c, de)
	}
	return err
}

func chatID(c tele.Context) (storage.ChatID, bool) {
	id := tghelpers.ChatID(c)
	return storage.ChatID(id), id != 0
}
