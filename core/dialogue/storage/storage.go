// Package storage keeps the serialized current state of every conversation.
// Records are opaque byte slices keyed by chat id; an absent record means the
// conversation is in its initial state.
package storage

import (
	"context"
	"errors"
	"fmt"
	"strconv"
)

// ErrUnavailable reports that the backing medium could not be reached.
// Callers may retry the whole message cycle.
var ErrUnavailable = errors.New("storage unavailable")

// ChatID addresses one conversation.
type ChatID int64

// String renders the id in decimal form, as used in storage keys.
func (id ChatID) String() string {
	return strconv.FormatInt(int64(id), 10)
}

// Storage is a keyed mapping from chat id to serialized state.
// Implementations must be safe for concurrent use; a single UpdateState or
// RemoveState call is atomic with respect to other calls for the same id.
type Storage interface {
	// GetState returns the stored record and whether it exists.
	GetState(ctx context.Context, id ChatID) ([]byte, bool, error)
	// UpdateState upserts the record for id.
	UpdateState(ctx context.Context, id ChatID, data []byte) error
	// RemoveState deletes the record for id. Removing an absent id is a no-op.
	RemoveState(ctx context.Context, id ChatID) error
}

// Locker is implemented by backends shared between processes. Lock blocks
// until the caller holds exclusive access to id or ctx is done, and returns
// the function that releases it.
type Locker interface {
	Lock(ctx context.Context, id ChatID) (unlock func(), err error)
}

// Closer is implemented by backends holding connections or file handles.
type Closer interface {
	Close() error
}

func unavailable(backend, op string, id ChatID, err error) error {
	return fmt.Errorf("%s %s chat %s: %w: %w", backend, op, id, ErrUnavailable, err)
}

// failure wraps err as ErrUnavailable unless the caller's ctx ended first, in
// which case the ctx error is returned as is.
func failure(ctx context.Context, backend, op string, id ChatID, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return unavailable(backend, op, id, err)
}
