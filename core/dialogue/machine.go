package dialogue

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"runtime/debug"
	"sort"
	"sync"

	"github.com/m3rciful/godialogue/core/dialogue/serializer"
	"github.com/m3rciful/godialogue/core/logger"
)

// envelope is the persisted form of one variant: its tag plus its data.
type envelope[V any] struct {
	State string `json:"state" yaml:"state" codec:"state"`
	Data  V      `json:"data" yaml:"data" codec:"data"`
}

// header decodes only the tag of an envelope.
type header struct {
	State string `json:"state" yaml:"state" codec:"state"`
}

type variant[S State, M any] struct {
	name   string
	typ    reflect.Type
	handle func(ctx context.Context, s S, msg M) (Transition[S], error)
	encode func(ser serializer.Serializer, s S) ([]byte, error)
	decode func(ser serializer.Serializer, data []byte) (S, error)
}

// Machine maps every variant of union S to the handler that consumes messages
// of type M in that variant. Register all variants before the first Dispatch.
type Machine[S State, M any] struct {
	mu       sync.RWMutex
	initial  S
	variants map[string]*variant[S, M]
}

// NewMachine creates a machine whose absent chats start in initial.
func NewMachine[S State, M any](initial S) *Machine[S, M] {
	return &Machine[S, M]{
		initial:  initial,
		variants: make(map[string]*variant[S, M]),
	}
}

// On registers h as the handler of variant V. V must be a non-pointer type
// that implements S and returns a non-empty, unique tag from StateName.
func On[V State, S State, M any](m *Machine[S, M], h Handler[V, S, M]) error {
	typ := reflect.TypeFor[V]()
	switch typ.Kind() {
	case reflect.Pointer, reflect.Interface:
		return fmt.Errorf("%w: %s must be a value type", ErrInvalidVariant, typ)
	}
	if h == nil {
		return fmt.Errorf("%w: nil handler for %s", ErrInvalidVariant, typ)
	}
	var zero V
	if _, ok := any(zero).(S); !ok {
		return fmt.Errorf("%w: %s is not a member of %s", ErrInvalidVariant, typ, reflect.TypeFor[S]())
	}
	name := zero.StateName()
	if name == "" {
		return fmt.Errorf("%w: %s has an empty state name", ErrInvalidVariant, typ)
	}

	v := &variant[S, M]{
		name: name,
		typ:  typ,
		handle: func(ctx context.Context, s S, msg M) (Transition[S], error) {
			return h(ctx, any(s).(V), msg)
		},
		encode: func(ser serializer.Serializer, s S) ([]byte, error) {
			return ser.Serialize(envelope[V]{State: name, Data: any(s).(V)})
		},
		decode: func(ser serializer.Serializer, data []byte) (S, error) {
			var env envelope[V]
			if err := ser.Deserialize(data, &env); err != nil {
				var none S
				return none, err
			}
			return any(env.Data).(S), nil
		},
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if prev, exists := m.variants[name]; exists {
		return fmt.Errorf("%w: %q already bound to %s", ErrDuplicateState, name, prev.typ)
	}
	m.variants[name] = v
	return nil
}

// MustOn is like On but panics on registration errors. It suits package-level wiring.
func MustOn[V State, S State, M any](m *Machine[S, M], h Handler[V, S, M]) {
	if err := On(m, h); err != nil {
		panic(err)
	}
}

// Initial returns the state of chats without a stored record.
func (m *Machine[S, M]) Initial() S {
	return m.initial
}

// States lists registered tags in sorted order.
func (m *Machine[S, M]) States() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.variants))
	for name := range m.variants {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Validate reports configuration defects detectable before any message
// arrives: currently an initial state without a handler.
func (m *Machine[S, M]) Validate() error {
	if isNil(m.initial) {
		return fmt.Errorf("%w: initial state is nil", ErrUnknownState)
	}
	if _, err := m.lookup(m.initial); err != nil {
		return fmt.Errorf("initial state: %w", err)
	}
	return nil
}

// lookup finds the variant registered for s and checks that s has its type.
func (m *Machine[S, M]) lookup(s S) (*variant[S, M], error) {
	if isNil(s) {
		return nil, fmt.Errorf("%w: nil state", ErrUnknownState)
	}
	name := s.StateName()
	m.mu.RLock()
	v, ok := m.variants[name]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownState, name)
	}
	if got := reflect.TypeOf(s); got != v.typ {
		return nil, fmt.Errorf("%w: %q is bound to %s, got %s", ErrUnknownState, name, v.typ, got)
	}
	return v, nil
}

// Dispatch runs the handler of s's variant. Handler errors and panics are
// returned wrapped in ErrHandler; a returned state without a handler yields
// ErrUnknownState.
func (m *Machine[S, M]) Dispatch(ctx context.Context, s S, msg M) (tr Transition[S], err error) {
	v, err := m.lookup(s)
	if err != nil {
		return tr, err
	}

	defer func() {
		if r := recover(); r != nil {
			logger.Error(ctx, logger.ComponentDialogue, "handler.panic",
				slog.String("status", "fail"),
				slog.String("state", v.name),
				slog.Any("err", r),
				slog.String("stack", string(debug.Stack())),
			)
			tr, err = Transition[S]{}, fmt.Errorf("%w: %s: panic: %v", ErrHandler, v.name, r)
		}
	}()

	tr, err = v.handle(ctx, s, msg)
	if err != nil {
		return Transition[S]{}, fmt.Errorf("%w: %s: %w", ErrHandler, v.name, err)
	}
	if !tr.end {
		if _, err := m.lookup(tr.next); err != nil {
			return Transition[S]{}, fmt.Errorf("%s returned %w", v.name, err)
		}
	}
	return tr, nil
}

// Encode serializes s together with its tag.
func (m *Machine[S, M]) Encode(ser serializer.Serializer, s S) ([]byte, error) {
	v, err := m.lookup(s)
	if err != nil {
		return nil, err
	}
	return v.encode(ser, s)
}

// Decode restores a state written by Encode. Unknown or missing tags are
// reported as ErrDeserialization, unknown tags additionally as ErrUnknownState.
func (m *Machine[S, M]) Decode(ser serializer.Serializer, data []byte) (S, error) {
	var none S
	var h header
	if err := ser.Deserialize(data, &h); err != nil {
		return none, err
	}
	if h.State == "" {
		return none, fmt.Errorf("%s: %w: missing state tag", ser.Name(), ErrDeserialization)
	}
	m.mu.RLock()
	v, ok := m.variants[h.State]
	m.mu.RUnlock()
	if !ok {
		return none, fmt.Errorf("%s: %w: %w: %q", ser.Name(), ErrDeserialization, ErrUnknownState, h.State)
	}
	return v.decode(ser, data)
}

func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan:
		return rv.IsNil()
	}
	return false
}
