package wire

import (
	"bytes"
	"encoding/binary"
	"errors"
)

const (
	version  byte = 1
	kindNone byte = 0

	hdrLen = 4 + 1 + 1 + 4 + 8 + 4
)

var (
	ErrCorrupt = errors.New("assetcache: corrupt entry")
	magic4     = [...]byte{'A', 'S', 'S', 'T'}
)

func hasMagic(b []byte) bool {
	return len(b) >= 4 && bytes.Equal(b[:4], magic4[:])
}

// Entry is the decoded view of a stored frame. Payload aliases the input buffer.
type Entry struct {
	Kind    byte
	ID      uint32
	Gen     uint64
	Payload []byte
}

// Entry: magic(4) | ver(1) | kind(1) | id(u32 be) | gen(u64 be) | vlen(u32 be) | payload(vlen)
//
// The key is repeated inside the frame so a reader can reject bytes that were
// written under its storage key by someone else.
func EncodeEntry(kind byte, id uint32, gen uint64, payload []byte) []byte {
	if kind == kindNone {
		panic("assetcache: invalid kind in entry")
	}
	var buf bytes.Buffer
	buf.Grow(hdrLen + len(payload))

	buf.Write(magic4[:])
	buf.WriteByte(version)
	buf.WriteByte(kind)

	var u8 [8]byte
	var u4 [4]byte

	binary.BigEndian.PutUint32(u4[:], id)
	buf.Write(u4[:])

	binary.BigEndian.PutUint64(u8[:], gen)
	buf.Write(u8[:])

	binary.BigEndian.PutUint32(u4[:], uint32(len(payload)))
	buf.Write(u4[:])

	buf.Write(payload)
	return buf.Bytes()
}

func DecodeEntry(b []byte) (Entry, error) {
	if len(b) < hdrLen || !hasMagic(b) || b[4] != version || b[5] == kindNone {
		return Entry{}, ErrCorrupt
	}

	e := Entry{Kind: b[5]}
	off := 6

	e.ID = binary.BigEndian.Uint32(b[off : off+4])
	off += 4

	e.Gen = binary.BigEndian.Uint64(b[off : off+8])
	off += 8

	vlen := int(binary.BigEndian.Uint32(b[off : off+4]))
	off += 4
	// exact length: trailing bytes are corruption too
	if vlen < 0 || vlen != len(b)-off {
		return Entry{}, ErrCorrupt
	}

	e.Payload = b[off : off+vlen]
	return e, nil
}
