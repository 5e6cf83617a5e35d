// Package serializer turns dialogue state values into opaque bytes and back.
// Strategies are interchangeable so storage backends never depend on the wire format.
package serializer

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	// ErrSerialization reports a value the format cannot represent.
	ErrSerialization = errors.New("serialization failed")
	// ErrDeserialization reports malformed, truncated or unrecognised bytes.
	ErrDeserialization = errors.New("deserialization failed")
	// ErrUnknownFormat is returned by ByName for unregistered strategy names.
	ErrUnknownFormat = errors.New("unknown serializer format")
)

// Serializer converts a value to bytes and back. Implementations must be pure
// and safe for concurrent use.
type Serializer interface {
	// Name identifies the strategy in configuration and logs.
	Name() string
	// Serialize encodes v. Failures wrap ErrSerialization.
	Serialize(v any) ([]byte, error)
	// Deserialize decodes data into the value pointed to by v. Failures wrap ErrDeserialization.
	Deserialize(data []byte, v any) error
}

const (
	// FormatJSON selects the JSON strategy.
	FormatJSON = "json"
	// FormatYAML selects the YAML strategy.
	FormatYAML = "yaml"
	// FormatCBOR selects the CBOR strategy.
	FormatCBOR = "cbor"
	// FormatMsgpack selects the MessagePack strategy.
	FormatMsgpack = "msgpack"
)

var builtin = map[string]func() Serializer{
	FormatJSON:    func() Serializer { return JSON() },
	FormatYAML:    func() Serializer { return YAML() },
	FormatCBOR:    func() Serializer { return CBOR() },
	FormatMsgpack: func() Serializer { return Msgpack() },
}

// ByName returns the built-in strategy registered under name.
// An empty name selects JSON.
func ByName(name string) (Serializer, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	switch key {
	case "":
		key = FormatJSON
	case "yml":
		key = FormatYAML
	case "messagepack":
		key = FormatMsgpack
	}
	build, ok := builtin[key]
	if !ok {
		return nil, fmt.Errorf("%w %q; allowed: %s", ErrUnknownFormat, name, strings.Join(Formats(), ", "))
	}
	return build(), nil
}

// Formats lists built-in strategy names in sorted order.
func Formats() []string {
	names := make([]string, 0, len(builtin))
	for name := range builtin {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func serializeErr(format string, err error) error {
	return fmt.Errorf("%s: %w: %w", format, ErrSerialization, err)
}

func deserializeErr(format string, err error) error {
	return fmt.Errorf("%s: %w: %w", format, ErrDeserialization, err)
}

var errEmpty = errors.New("empty input")
