package serializer

import (
	"bytes"
	"errors"
	"fmt"

	"gopkg.in/yaml.v3"
)

// docEnd closes every record. YAML has no length framing, so a record cut
// short would otherwise still parse.
const docEnd = "..."

var errNoDocEnd = errors.New("missing document end marker")

type yamlSerializer struct{}

// YAML returns the textual YAML strategy. It is the most readable format for
// file or database inspection.
func YAML() Serializer { return yamlSerializer{} }

func (yamlSerializer) Name() string { return FormatYAML }

func (yamlSerializer) Serialize(v any) (data []byte, err error) {
	// yaml.v3 panics on some unsupported kinds (funcs, channels).
	defer func() {
		if r := recover(); r != nil {
			data, err = nil, serializeErr(FormatYAML, fmt.Errorf("%v", r))
		}
	}()
	data, err = yaml.Marshal(v)
	if err != nil {
		return nil, serializeErr(FormatYAML, err)
	}
	// Marshal output always ends with a newline.
	return append(data, docEnd+"\n"...), nil
}

func (yamlSerializer) Deserialize(data []byte, v any) error {
	if len(bytes.TrimSpace(data)) == 0 {
		return deserializeErr(FormatYAML, errEmpty)
	}
	if !bytes.HasSuffix(bytes.TrimRight(data, " \r\n"), []byte("\n"+docEnd)) {
		return deserializeErr(FormatYAML, errNoDocEnd)
	}
	if err := yaml.Unmarshal(data, v); err != nil {
		return deserializeErr(FormatYAML, err)
	}
	return nil
}
