package codec

import "encoding/json"

// String is the default locator codec: the locator's bytes as-is, no
// validation. Frames stay readable with redis-cli.
type String struct{}

var _ Codec[string] = String{}

func (String) Encode(s string) ([]byte, error) { return []byte(s), nil }
func (String) Decode(b []byte) (string, error) { return string(b), nil }

// JSON stores values as JSON documents. A locator becomes a quoted string.
type JSON[V any] struct{}

var _ Codec[string] = JSON[string]{}

func (JSON[V]) Encode(v V) ([]byte, error) { return json.Marshal(v) }
func (JSON[V]) Decode(b []byte) (V, error) {
	var v V
	err := json.Unmarshal(b, &v)
	return v, err
}
