// Package codec turns locators into bytes for a provider and back.
package codec

import (
	"fmt"
	"sort"
)

// Codec encodes/decodes values V to []byte for storage.
type Codec[V any] interface {
	Encode(V) ([]byte, error)
	Decode([]byte) (V, error)
}

var locatorCodecs = map[string]func() (Codec[string], error){
	"string":  func() (Codec[string], error) { return String{}, nil },
	"json":    func() (Codec[string], error) { return JSON[string]{}, nil },
	"msgpack": func() (Codec[string], error) { return Msgpack[string]{}, nil },
	"cbor": func() (Codec[string], error) {
		// canonical so peers sharing a store write identical frames
		return NewCBOR[string](true)
	},
	"proto": func() (Codec[string], error) { return ProtoString{}, nil },
}

// Names lists the locator codecs ByName accepts, sorted.
func Names() []string {
	out := make([]string, 0, len(locatorCodecs))
	for n := range locatorCodecs {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// ByName returns the locator codec registered under name.
func ByName(name string) (Codec[string], error) {
	mk, ok := locatorCodecs[name]
	if !ok {
		return nil, fmt.Errorf("codec: unknown codec %q", name)
	}
	return mk()
}
