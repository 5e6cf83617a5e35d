package serializer

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type address struct {
	City string `json:"city" yaml:"city"`
	Zip  string `json:"zip" yaml:"zip"`
}

type profile struct {
	Name    string          `json:"name" yaml:"name"`
	Age     int             `json:"age" yaml:"age"`
	Balance int64           `json:"balance" yaml:"balance"`
	Ratio   float64         `json:"ratio" yaml:"ratio"`
	Tags    []string        `json:"tags" yaml:"tags"`
	Flags   map[string]bool `json:"flags" yaml:"flags"`
	Home    *address        `json:"home" yaml:"home"`
	Active  bool            `json:"active" yaml:"active"`
	Seen    time.Time       `json:"seen" yaml:"seen"`
}

func sampleProfile() profile {
	return profile{
		Name:    "Alice Liddell",
		Age:     30,
		Balance: 1 << 60,
		Ratio:   0.625,
		Tags:    []string{"rock", "метал"},
		Flags:   map[string]bool{"subscribed": true, "muted": false},
		Home:    &address{City: "Oxford", Zip: "OX1"},
		Active:  true,
		Seen:    time.Date(2024, 1, 2, 3, 4, 5, 6, time.UTC),
	}
}

func allStrategies() []Serializer {
	return []Serializer{JSON(), YAML(), CBOR(), Msgpack()}
}

func TestRoundTrip(t *testing.T) {
	for _, s := range allStrategies() {
		t.Run(s.Name(), func(t *testing.T) {
			in := sampleProfile()
			data, err := s.Serialize(in)
			require.NoError(t, err)
			require.NotEmpty(t, data)

			var out profile
			require.NoError(t, s.Deserialize(data, &out))
			require.True(t, in.Seen.Equal(out.Seen), "seen: got %s", out.Seen.Format(time.RFC3339Nano))
			in.Seen, out.Seen = time.Time{}, time.Time{}
			require.Equal(t, in, out)
		})
	}
}

func TestDeserializeEmpty(t *testing.T) {
	for _, s := range allStrategies() {
		t.Run(s.Name(), func(t *testing.T) {
			var out profile
			err := s.Deserialize(nil, &out)
			require.ErrorIs(t, err, ErrDeserialization)
		})
	}
}

func TestDeserializeTruncated(t *testing.T) {
	for _, s := range allStrategies() {
		t.Run(s.Name(), func(t *testing.T) {
			data, err := s.Serialize(sampleProfile())
			require.NoError(t, err)

			var out profile
			for _, cut := range []int{len(data) / 2, len(data) - 3} {
				err = s.Deserialize(data[:cut], &out)
				require.ErrorIs(t, err, ErrDeserialization, "cut at %d of %d", cut, len(data))
			}
		})
	}
}

func TestDeserializeTrailingBytes(t *testing.T) {
	for _, s := range allStrategies() {
		t.Run(s.Name(), func(t *testing.T) {
			data, err := s.Serialize(sampleProfile())
			require.NoError(t, err)

			var out profile
			err = s.Deserialize(append(data, 0xff, 0x00, 0x13), &out)
			require.ErrorIs(t, err, ErrDeserialization)
		})
	}
}

func TestYAMLRecordsAreTerminated(t *testing.T) {
	data, err := YAML().Serialize(address{City: "Oxford", Zip: "OX1"})
	require.NoError(t, err)
	require.Equal(t, "city: Oxford\nzip: OX1\n...\n", string(data))

	var out address
	err = YAML().Deserialize([]byte("city: Oxford\nzip: OX"), &out)
	require.ErrorIs(t, err, ErrDeserialization)
	require.Zero(t, out)
}

func TestDeserializeMalformedText(t *testing.T) {
	var out profile
	require.ErrorIs(t, JSON().Deserialize([]byte(`{"name": `), &out), ErrDeserialization)
	require.ErrorIs(t, YAML().Deserialize([]byte("name: [unclosed"), &out), ErrDeserialization)
}

func TestSerializeUnrepresentable(t *testing.T) {
	_, err := JSON().Serialize(map[string]float64{"x": math.NaN()})
	require.ErrorIs(t, err, ErrSerialization)

	_, err = YAML().Serialize(map[string]any{"fn": func() {}})
	require.ErrorIs(t, err, ErrSerialization)
}

func TestErrorsKeepCause(t *testing.T) {
	var out profile
	err := JSON().Deserialize([]byte(`{"age":"thirty"}`), &out)
	require.ErrorIs(t, err, ErrDeserialization)
	joined, ok := err.(interface{ Unwrap() []error })
	require.True(t, ok)
	causes := joined.Unwrap()
	require.Len(t, causes, 2)
	require.NotErrorIs(t, causes[1], ErrDeserialization)
	require.Contains(t, err.Error(), "json")
}

func TestByName(t *testing.T) {
	cases := map[string]string{
		"":            FormatJSON,
		"JSON":        FormatJSON,
		" yaml ":      FormatYAML,
		"yml":         FormatYAML,
		"cbor":        FormatCBOR,
		"msgpack":     FormatMsgpack,
		"messagepack": FormatMsgpack,
	}
	for in, want := range cases {
		s, err := ByName(in)
		require.NoError(t, err, in)
		require.Equal(t, want, s.Name(), in)
	}

	_, err := ByName("bincode")
	require.ErrorIs(t, err, ErrUnknownFormat)
	require.Equal(t, []string{"cbor", "json", "msgpack", "yaml"}, Formats())
}

func TestBinaryIsCompact(t *testing.T) {
	in := sampleProfile()
	text, err := JSON().Serialize(in)
	require.NoError(t, err)
	for _, s := range []Serializer{CBOR(), Msgpack()} {
		bin, err := s.Serialize(in)
		require.NoError(t, err)
		require.Less(t, len(bin), len(text), s.Name())
	}
}
