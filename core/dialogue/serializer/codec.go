package serializer

import (
	"fmt"

	"github.com/ugorji/go/codec"
)

// binarySerializer adapts a ugorji codec handle. Handles are safe for
// concurrent use once configured, so one is shared per strategy.
type binarySerializer struct {
	name   string
	handle codec.Handle
}

// CBOR returns the compact binary CBOR strategy (RFC 8949).
func CBOR() Serializer {
	h := &codec.CborHandle{}
	h.Canonical = true
	// Tag 1 epoch times lose the nanoseconds; RFC 3339 text keeps them.
	h.TimeRFC3339 = true
	return &binarySerializer{name: FormatCBOR, handle: h}
}

// Msgpack returns the compact binary MessagePack strategy.
func Msgpack() Serializer {
	h := &codec.MsgpackHandle{}
	h.WriteExt = true
	h.RawToString = true
	h.Canonical = true
	return &binarySerializer{name: FormatMsgpack, handle: h}
}

func (s *binarySerializer) Name() string { return s.name }

func (s *binarySerializer) Serialize(v any) (data []byte, err error) {
	defer func() {
		if r := recover(); r != nil {
			data, err = nil, serializeErr(s.name, fmt.Errorf("%v", r))
		}
	}()
	var out []byte
	if err := codec.NewEncoderBytes(&out, s.handle).Encode(v); err != nil {
		return nil, serializeErr(s.name, err)
	}
	return out, nil
}

func (s *binarySerializer) Deserialize(data []byte, v any) (err error) {
	if len(data) == 0 {
		return deserializeErr(s.name, errEmpty)
	}
	defer func() {
		if r := recover(); r != nil {
			err = deserializeErr(s.name, fmt.Errorf("%v", r))
		}
	}()
	dec := codec.NewDecoderBytes(data, s.handle)
	if err := dec.Decode(v); err != nil {
		return deserializeErr(s.name, err)
	}
	if n := dec.NumBytesRead(); n != len(data) {
		return deserializeErr(s.name, fmt.Errorf("%d trailing bytes", len(data)-n))
	}
	return nil
}
