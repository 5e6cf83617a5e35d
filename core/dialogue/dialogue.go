package dialogue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"time"

	"github.com/m3rciful/godialogue/core/dialogue/serializer"
	"github.com/m3rciful/godialogue/core/dialogue/storage"
	"github.com/m3rciful/godialogue/core/logger"
)

// Dialogue runs message cycles for many chats against one storage backend.
// It is safe for concurrent use.
type Dialogue[S State, M any] struct {
	machine    *Machine[S, M]
	store      storage.Storage
	serializer serializer.Serializer
	locks      *chatLocks
}

// New validates the machine and binds it to store and ser.
func New[S State, M any](m *Machine[S, M], store storage.Storage, ser serializer.Serializer) (*Dialogue[S, M], error) {
	if m == nil {
		return nil, errors.New("dialogue: nil machine")
	}
	if store == nil {
		return nil, errors.New("dialogue: nil storage")
	}
	if ser == nil {
		return nil, errors.New("dialogue: nil serializer")
	}
	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("dialogue: %w", err)
	}
	return &Dialogue[S, M]{
		machine:    m,
		store:      store,
		serializer: ser,
		locks:      newChatLocks(),
	}, nil
}

// Machine returns the transition engine.
func (d *Dialogue[S, M]) Machine() *Machine[S, M] { return d.machine }

// Handle processes msg for chat id: load the current state, dispatch it and
// store the successor, or remove the record when the dialogue ends. Cycles
// for the same id never overlap. Every returned error is an *Error and
// leaves the stored record untouched.
func (d *Dialogue[S, M]) Handle(ctx context.Context, id storage.ChatID, msg M) error {
	start := time.Now()
	ctx = logger.WithChatID(ctx, int64(id))

	unlock, err := d.lock(ctx, id)
	if err != nil {
		return d.fail(ctx, start, &Error{Op: "lock", Chat: id, Err: err})
	}
	defer unlock()

	current, found, err := d.load(ctx, id)
	if err != nil {
		return d.fail(ctx, start, &Error{Op: "load", Chat: id, Err: err})
	}
	name := current.StateName()
	if err := ctx.Err(); err != nil {
		return d.fail(ctx, start, &Error{Op: "dispatch", Chat: id, State: name, Err: err})
	}

	tr, err := d.machine.Dispatch(ctx, current, msg)
	if err != nil {
		return d.fail(ctx, start, &Error{Op: "dispatch", Chat: id, State: name, Err: err})
	}

	// Once the handler has returned, the write is not abandoned on cancellation.
	wctx := context.WithoutCancel(ctx)

	if tr.Ended() {
		if found {
			if err := d.store.RemoveState(wctx, id); err != nil {
				return d.fail(ctx, start, &Error{Op: "remove", Chat: id, State: name, Err: err})
			}
		}
		d.done(ctx, start, name, "", "end")
		return nil
	}

	next := tr.State()
	nextName := next.StateName()
	if !found && reflect.DeepEqual(any(next), any(d.machine.Initial())) {
		d.done(ctx, start, name, nextName, "unchanged")
		return nil
	}
	data, err := d.machine.Encode(d.serializer, next)
	if err != nil {
		return d.fail(ctx, start, &Error{Op: "encode", Chat: id, State: nextName, Err: err})
	}
	if err := d.store.UpdateState(wctx, id, data); err != nil {
		return d.fail(ctx, start, &Error{Op: "update", Chat: id, State: nextName, Err: err})
	}
	d.done(ctx, start, name, nextName, "next")
	return nil
}

// Current returns the state chat id is in, the initial state when nothing is stored.
func (d *Dialogue[S, M]) Current(ctx context.Context, id storage.ChatID) (S, error) {
	s, _, err := d.load(ctx, id)
	if err != nil {
		var none S
		return none, &Error{Op: "load", Chat: id, Err: err}
	}
	return s, nil
}

// Set forces chat id into state s, e.g. when a command restarts a dialogue midway.
func (d *Dialogue[S, M]) Set(ctx context.Context, id storage.ChatID, s S) error {
	start := time.Now()
	ctx = logger.WithChatID(ctx, int64(id))

	data, err := d.machine.Encode(d.serializer, s)
	if err != nil {
		return d.fail(ctx, start, &Error{Op: "encode", Chat: id, Err: err})
	}
	unlock, err := d.lock(ctx, id)
	if err != nil {
		return d.fail(ctx, start, &Error{Op: "lock", Chat: id, Err: err})
	}
	defer unlock()

	if err := d.store.UpdateState(context.WithoutCancel(ctx), id, data); err != nil {
		return d.fail(ctx, start, &Error{Op: "update", Chat: id, State: s.StateName(), Err: err})
	}
	d.done(ctx, start, "", s.StateName(), "set")
	return nil
}

// Reset drops whatever is stored for chat id; its next message starts over.
func (d *Dialogue[S, M]) Reset(ctx context.Context, id storage.ChatID) error {
	start := time.Now()
	ctx = logger.WithChatID(ctx, int64(id))

	unlock, err := d.lock(ctx, id)
	if err != nil {
		return d.fail(ctx, start, &Error{Op: "lock", Chat: id, Err: err})
	}
	defer unlock()

	if err := d.store.RemoveState(context.WithoutCancel(ctx), id); err != nil {
		return d.fail(ctx, start, &Error{Op: "remove", Chat: id, Err: err})
	}
	d.done(ctx, start, "", "", "reset")
	return nil
}

func (d *Dialogue[S, M]) load(ctx context.Context, id storage.ChatID) (S, bool, error) {
	data, found, err := d.store.GetState(ctx, id)
	if err != nil {
		var none S
		return none, false, err
	}
	if !found {
		return d.machine.Initial(), false, nil
	}
	s, err := d.machine.Decode(d.serializer, data)
	if err != nil {
		var none S
		return none, true, err
	}
	return s, true, nil
}

// lock serializes cycles for id inside this process and, when the backend
// supports it, across processes sharing the backend.
func (d *Dialogue[S, M]) lock(ctx context.Context, id storage.ChatID) (func(), error) {
	local, err := d.locks.acquire(ctx, id)
	if err != nil {
		return nil, err
	}
	locker, ok := d.store.(storage.Locker)
	if !ok {
		return local, nil
	}
	remote, err := locker.Lock(ctx, id)
	if err != nil {
		local()
		return nil, err
	}
	return func() {
		remote()
		local()
	}, nil
}

func (d *Dialogue[S, M]) done(ctx context.Context, start time.Time, from, to, outcome string) {
	if !logger.ShouldSampleDebug() {
		return
	}
	attrs := []slog.Attr{
		slog.String("status", "ok"),
		slog.String("outcome", "ok"),
		slog.String("transition", outcome),
		slog.String("serializer", d.serializer.Name()),
		slog.Duration("duration", logger.Took(start)),
	}
	if from != "" {
		attrs = append(attrs, slog.String("state", from))
	}
	if to != "" {
		attrs = append(attrs, slog.String("next_state", to))
	}
	logger.Debug(ctx, logger.ComponentDialogue, "dialogue.cycle", attrs...)
}

func (d *Dialogue[S, M]) fail(ctx context.Context, start time.Time, e *Error) error {
	level := slog.LevelWarn
	if errors.Is(e.Err, ErrUnknownState) || errors.Is(e.Err, ErrDeserialization) {
		level = slog.LevelError
	}
	status := "fail"
	if e.Code() == "CANCELLED" {
		status = "cancelled"
	}
	attrs := []slog.Attr{
		slog.String("status", status),
		slog.String("operation", e.Op),
		slog.String("err", logger.SanitizeLimit(e.Err.Error(), 256)),
		slog.String("err_code", e.Code()),
		slog.Bool("retryable", e.Retryable()),
		slog.Duration("duration", logger.Took(start)),
	}
	if e.State != "" {
		attrs = append(attrs, slog.String("state", e.State))
	}
	logger.Event(ctx, logger.ComponentDialogue, level, "dialogue.failed", attrs...)
	return e
}
