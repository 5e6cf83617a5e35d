package dialogue

import (
	"context"
	"errors"
	"fmt"

	"github.com/m3rciful/godialogue/core/dialogue/serializer"
	"github.com/m3rciful/godialogue/core/dialogue/storage"
)

var (
	// ErrHandler wraps failures, including panics, raised by state handlers.
	ErrHandler = errors.New("state handler failed")
	// ErrUnknownState reports a variant with no registered handler.
	ErrUnknownState = errors.New("unknown state")
	// ErrInvalidVariant reports a variant type that cannot be registered.
	ErrInvalidVariant = errors.New("invalid state variant")
	// ErrDuplicateState reports a second registration for the same tag.
	ErrDuplicateState = errors.New("duplicate state")

	// ErrSerialization is re-exported from the serializer package.
	ErrSerialization = serializer.ErrSerialization
	// ErrDeserialization is re-exported from the serializer package.
	ErrDeserialization = serializer.ErrDeserialization
	// ErrStorageUnavailable is re-exported from the storage package.
	ErrStorageUnavailable = storage.ErrUnavailable
)

// Error describes a failed message cycle. Storage holds the same record for
// Chat as before the cycle started.
type Error struct {
	Op    string
	Chat  storage.ChatID
	State string
	Err   error
}

func (e *Error) Error() string {
	if e.State != "" {
		return fmt.Sprintf("dialogue: chat %s: %s (state %s): %v", e.Chat, e.Op, e.State, e.Err)
	}
	return fmt.Sprintf("dialogue: chat %s: %s: %v", e.Chat, e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Code classifies the failure for logs and metrics.
func (e *Error) Code() string {
	switch {
	case errors.Is(e.Err, ErrUnknownState):
		return "UNKNOWN_STATE"
	case errors.Is(e.Err, ErrDeserialization):
		return "DESERIALIZATION"
	case errors.Is(e.Err, ErrSerialization):
		return "SERIALIZATION"
	case errors.Is(e.Err, ErrStorageUnavailable):
		return "STORAGE_UNAVAILABLE"
	case errors.Is(e.Err, ErrHandler):
		return "HANDLER"
	case errors.Is(e.Err, context.Canceled), errors.Is(e.Err, context.DeadlineExceeded):
		return "CANCELLED"
	}
	return "UNKNOWN_ERROR"
}

// Retryable reports whether running the same cycle again may succeed.
func (e *Error) Retryable() bool {
	return errors.Is(e.Err, ErrStorageUnavailable)
}
