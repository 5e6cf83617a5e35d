package serializer

import (
	"github.com/goccy/go-json"
)

type jsonSerializer struct{}

// JSON returns the textual JSON strategy.
func JSON() Serializer { return jsonSerializer{} }

func (jsonSerializer) Name() string { return FormatJSON }

func (jsonSerializer) Serialize(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, serializeErr(FormatJSON, err)
	}
	return data, nil
}

func (jsonSerializer) Deserialize(data []byte, v any) error {
	if len(data) == 0 {
		return deserializeErr(FormatJSON, errEmpty)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return deserializeErr(FormatJSON, err)
	}
	return nil
}
