// Package state connects Telegram updates to a dialogue: every message is
// handled in the context of its chat's current dialogue state, which lives
// in the dialogue's storage backend rather than in process memory.
package state
