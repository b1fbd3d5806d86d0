package codec

import (
	"errors"
	"fmt"
)

var ErrTooLarge = errors.New("codec: payload too large")

// LimitCodec wraps another codec and bounds the encoded payload size in both
// directions. Encode refuses a value whose encoding exceeds MaxDecode, so a
// value that could never be read back is never stored. Decode rejects
// oversized bytes (e.g. from a shared provider/redis) without invoking Inner.
// If MaxDecode <= 0, size limiting is disabled.
type LimitCodec[V any] struct {
	// Inner is the underlying codec being wrapped. It must be set.
	Inner Codec[V]
	// MaxDecode is the maximum permitted payload length in bytes.
	MaxDecode int
}

func (c LimitCodec[V]) Encode(v V) ([]byte, error) {
	b, err := c.Inner.Encode(v)
	if err != nil {
		return nil, err
	}
	if err := c.check(len(b)); err != nil {
		return nil, err
	}
	return b, nil
}

func (c LimitCodec[V]) Decode(b []byte) (V, error) {
	if err := c.check(len(b)); err != nil {
		var zero V
		return zero, err
	}
	return c.Inner.Decode(b)
}

func (c LimitCodec[V]) check(n int) error {
	if c.MaxDecode > 0 && n > c.MaxDecode {
		return fmt.Errorf("%w: %d > %d", ErrTooLarge, n, c.MaxDecode)
	}
	return nil
}
