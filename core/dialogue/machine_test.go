package dialogue

import (
	"context"
	"errors"
	"strconv"
	"testing"

	"github.com/m3rciful/godialogue/core/dialogue/serializer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type awaitingName struct{}

func (awaitingName) StateName() string { return "awaiting_name" }

type awaitingAge struct {
	Name string `json:"name" yaml:"name"`
}

func (awaitingAge) StateName() string { return "awaiting_age" }

type awaitingMusic struct {
	Name string `json:"name" yaml:"name"`
	Age  int    `json:"age" yaml:"age"`
}

func (awaitingMusic) StateName() string { return "awaiting_music" }

type orphan struct{}

func (orphan) StateName() string { return "orphan" }

type impostor struct{ Name string }

func (impostor) StateName() string { return "awaiting_age" }

// newFormMachine wires the name -> age -> end scenario.
func newFormMachine(t *testing.T) *Machine[State, string] {
	t.Helper()
	m := NewMachine[State, string](awaitingName{})
	require.NoError(t, On(m, func(_ context.Context, _ awaitingName, text string) (Transition[State], error) {
		return Next[State](awaitingAge{Name: text}), nil
	}))
	require.NoError(t, On(m, func(_ context.Context, s awaitingAge, text string) (Transition[State], error) {
		age, err := strconv.Atoi(text)
		if err != nil {
			return Transition[State]{}, err
		}
		if age < 18 {
			return Next[State](awaitingMusic{Name: s.Name, Age: age}), nil
		}
		return End[State](), nil
	}))
	require.NoError(t, On(m, func(_ context.Context, s awaitingMusic, text string) (Transition[State], error) {
		switch text {
		case "panic":
			panic("boom")
		case "orphan":
			return Next[State](orphan{}), nil
		case "impostor":
			return Next[State](impostor{Name: s.Name}), nil
		}
		return End[State](), nil
	}))
	return m
}

func TestMachineDispatch(t *testing.T) {
	m := newFormMachine(t)
	ctx := context.Background()

	tr, err := m.Dispatch(ctx, awaitingName{}, "Alice")
	require.NoError(t, err)
	assert.False(t, tr.Ended())
	assert.Equal(t, awaitingAge{Name: "Alice"}, tr.State())

	tr, err = m.Dispatch(ctx, awaitingAge{Name: "Alice"}, "30")
	require.NoError(t, err)
	assert.True(t, tr.Ended())
	assert.Nil(t, tr.State())
}

func TestMachineHandlerFailures(t *testing.T) {
	m := newFormMachine(t)
	ctx := context.Background()

	_, err := m.Dispatch(ctx, awaitingAge{Name: "Alice"}, "thirty")
	assert.ErrorIs(t, err, ErrHandler)
	var numErr *strconv.NumError
	assert.True(t, errors.As(err, &numErr), "handler cause is preserved")

	_, err = m.Dispatch(ctx, awaitingMusic{Name: "Bob", Age: 12}, "panic")
	assert.ErrorIs(t, err, ErrHandler)
	assert.Contains(t, err.Error(), "boom")

	_, err = m.Dispatch(ctx, awaitingMusic{}, "orphan")
	assert.ErrorIs(t, err, ErrUnknownState)

	_, err = m.Dispatch(ctx, awaitingMusic{}, "impostor")
	assert.ErrorIs(t, err, ErrUnknownState, "same tag, different type")

	_, err = m.Dispatch(ctx, orphan{}, "x")
	assert.ErrorIs(t, err, ErrUnknownState)

	_, err = m.Dispatch(ctx, nil, "x")
	assert.ErrorIs(t, err, ErrUnknownState)
}

func TestMachineRegistrationErrors(t *testing.T) {
	m := NewMachine[State, string](awaitingName{})
	nop := func(context.Context, awaitingName, string) (Transition[State], error) { return End[State](), nil }

	require.NoError(t, On(m, nop))
	assert.ErrorIs(t, On(m, nop), ErrDuplicateState)
	assert.NoError(t, On(m, func(context.Context, impostor, string) (Transition[State], error) {
		return End[State](), nil
	}), "first awaiting_age binding is fine")
	assert.ErrorIs(t, On(m, func(context.Context, awaitingAge, string) (Transition[State], error) {
		return End[State](), nil
	}), ErrDuplicateState)

	assert.ErrorIs(t, On(m, func(context.Context, *awaitingMusic, string) (Transition[State], error) {
		return End[State](), nil
	}), ErrInvalidVariant)
	assert.ErrorIs(t, On[awaitingMusic](m, nil), ErrInvalidVariant)

	assert.Panics(t, func() { MustOn(m, nop) })
	assert.Equal(t, []string{"awaiting_age", "awaiting_name"}, m.States())
}

type unnamed struct{}

func (unnamed) StateName() string { return "" }

func TestMachineRejectsEmptyName(t *testing.T) {
	m := NewMachine[State, string](awaitingName{})
	err := On(m, func(context.Context, unnamed, string) (Transition[State], error) { return End[State](), nil })
	assert.ErrorIs(t, err, ErrInvalidVariant)
}

func TestMachineValidate(t *testing.T) {
	m := NewMachine[State, string](awaitingName{})
	assert.ErrorIs(t, m.Validate(), ErrUnknownState)

	MustOn(m, func(context.Context, awaitingName, string) (Transition[State], error) { return End[State](), nil })
	assert.NoError(t, m.Validate())

	assert.ErrorIs(t, NewMachine[State, string](nil).Validate(), ErrUnknownState)
}

func TestMachineRoundTrip(t *testing.T) {
	m := newFormMachine(t)
	states := []State{
		awaitingName{},
		awaitingAge{Name: "Alice"},
		awaitingMusic{Name: "Zoë «Ω»", Age: 17},
		awaitingAge{},
	}
	for _, name := range serializer.Formats() {
		ser, err := serializer.ByName(name)
		require.NoError(t, err)
		t.Run(name, func(t *testing.T) {
			for _, want := range states {
				data, err := m.Encode(ser, want)
				require.NoError(t, err)
				got, err := m.Decode(ser, data)
				require.NoError(t, err)
				assert.Equal(t, want, got)
			}
		})
	}
}

func TestMachineDecodeFailures(t *testing.T) {
	m := newFormMachine(t)
	ser := serializer.JSON()

	_, err := m.Decode(ser, []byte(`{"state":"awaiting_height","data":{}}`))
	assert.ErrorIs(t, err, ErrDeserialization)
	assert.ErrorIs(t, err, ErrUnknownState)

	_, err = m.Decode(ser, []byte(`{"data":{"name":"x"}}`))
	assert.ErrorIs(t, err, ErrDeserialization)

	_, err = m.Decode(ser, []byte(`{"state":"awaiting_age","data":{"name":42}}`))
	assert.ErrorIs(t, err, ErrDeserialization)

	_, err = m.Decode(ser, []byte(`garbage`))
	assert.ErrorIs(t, err, ErrDeserialization)

	_, err = m.Encode(ser, orphan{})
	assert.ErrorIs(t, err, ErrUnknownState)
}

func TestEnvelopeLayout(t *testing.T) {
	m := newFormMachine(t)
	data, err := m.Encode(serializer.JSON(), awaitingAge{Name: "Alice"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"state":"awaiting_age","data":{"name":"Alice"}}`, string(data))
}
