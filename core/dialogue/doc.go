// Package dialogue drives per-chat finite state machines.
//
// An application declares its states as value types implementing State, one
// type per variant, and registers a handler per variant on a Machine. A
// Dialogue pairs the machine with a storage backend and a serializer, and
// runs one read-dispatch-write cycle per inbound message:
//
//	m := dialogue.NewMachine[FormState, string](Start{})
//	dialogue.MustOn(m, func(ctx context.Context, _ Start, text string) (dialogue.Transition[FormState], error) {
//		return dialogue.Next[FormState](ReceiveAge{Name: text}), nil
//	})
//	d, err := dialogue.New(m, storage.NewMemory(), serializer.JSON())
//	err = d.Handle(ctx, chatID, "Alice")
//
// Cycles for the same chat are serialized; cycles for different chats run in
// parallel. A failed cycle never changes what is stored for the chat.
package dialogue
