package codec

import (
	"github.com/fxamacker/cbor/v2"
	"github.com/vmihailenco/msgpack/v5"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// Msgpack serializes values with vmihailenco/msgpack. The zero value is ready to use.
type Msgpack[V any] struct{}

var _ Codec[string] = Msgpack[string]{}

func (Msgpack[V]) Encode(v V) ([]byte, error) { return msgpack.Marshal(v) }
func (Msgpack[V]) Decode(b []byte) (V, error) {
	var v V
	err := msgpack.Unmarshal(b, &v)
	return v, err
}

// CBOR serializes values with fxamacker/cbor. Construct with NewCBOR.
type CBOR[V any] struct {
	enc cbor.EncMode
	dec cbor.DecMode
}

var _ Codec[string] = CBOR[string]{}

// NewCBOR builds a CBOR codec. With canonical set, encoding follows RFC 8949
// core deterministic rules; otherwise preferred unsorted options are used.
func NewCBOR[V any](canonical bool) (CBOR[V], error) {
	eo := cbor.PreferredUnsortedEncOptions()
	if canonical {
		eo = cbor.CoreDetEncOptions()
	}
	em, err := eo.EncMode()
	if err != nil {
		return CBOR[V]{}, err
	}
	dm, err := cbor.DecOptions{}.DecMode()
	if err != nil {
		return CBOR[V]{}, err
	}
	return CBOR[V]{enc: em, dec: dm}, nil
}

func (c CBOR[V]) Encode(v V) ([]byte, error) { return c.enc.Marshal(v) }
func (c CBOR[V]) Decode(b []byte) (V, error) {
	var v V
	err := c.dec.Unmarshal(b, &v)
	return v, err
}

// ProtoString stores a locator as a google.protobuf.StringValue, for stores
// shared with services that read the cache through protobuf.
type ProtoString struct{}

var _ Codec[string] = ProtoString{}

func (ProtoString) Encode(s string) ([]byte, error) { return proto.Marshal(wrapperspb.String(s)) }
func (ProtoString) Decode(b []byte) (string, error) {
	var m wrapperspb.StringValue
	if err := proto.Unmarshal(b, &m); err != nil {
		return "", err
	}
	return m.GetValue(), nil
}
