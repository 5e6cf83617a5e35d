package dialogue

import "context"

// State is implemented by every variant of an application's state union.
// StateName returns the variant tag; it must be constant per type and work
// on the zero value.
type State interface {
	StateName() string
}

// Transition is the outcome of handling one message: either the next state
// or the end of the dialogue.
type Transition[S State] struct {
	next S
	end  bool
}

// Next continues the dialogue in state s.
func Next[S State](s S) Transition[S] {
	return Transition[S]{next: s}
}

// End finishes the dialogue; its stored record is removed.
func End[S State]() Transition[S] {
	return Transition[S]{end: true}
}

// Ended reports whether the dialogue finished.
func (t Transition[S]) Ended() bool { return t.end }

// State returns the next state. It is the zero value when Ended is true.
func (t Transition[S]) State() S { return t.next }

// Handler handles msg while the chat is in variant V of union S.
type Handler[V State, S State, M any] func(ctx context.Context, state V, msg M) (Transition[S], error)
