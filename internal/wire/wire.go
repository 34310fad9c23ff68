// Package wire frames every blob cachemodel writes to a provider so that
// foreign or truncated bytes are detected on read and self-healed.
package wire

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
)

const (
	version    byte = 1
	kindValue  byte = 1
	kindKeySet byte = 2
	kindMarker byte = 3
	kindGen    byte = 4
	kindStamp  byte = 5

	hdrLen = 4 + 1 + 1
)

var (
	ErrCorrupt = errors.New("cachemodel: corrupt entry")
	magic4     = [...]byte{'C', 'M', 'D', 'L'}
)

func header(b *bytes.Buffer, kind byte) {
	b.Write(magic4[:])
	b.WriteByte(version)
	b.WriteByte(kind)
}

func checkHeader(b []byte, kind byte, min int) bool {
	return len(b) >= hdrLen+min &&
		bytes.Equal(b[:4], magic4[:]) &&
		b[4] == version &&
		b[5] == kind
}

// Value: magic(4) | ver(1) | kind(1=value) | vlen(u32 be) | payload(vlen)
func EncodeValue(payload []byte) []byte {
	var buf bytes.Buffer
	buf.Grow(hdrLen + 4 + len(payload))
	header(&buf, kindValue)

	var u4 [4]byte
	binary.BigEndian.PutUint32(u4[:], uint32(len(payload)))
	buf.Write(u4[:])
	buf.Write(payload)
	return buf.Bytes()
}

// DecodeValue returns a slice into b (no copy).
func DecodeValue(b []byte) ([]byte, error) {
	if !checkHeader(b, kindValue, 4) {
		return nil, ErrCorrupt
	}
	off := hdrLen
	vlen := int(binary.BigEndian.Uint32(b[off : off+4]))
	off += 4
	if vlen != len(b)-off {
		return nil, ErrCorrupt
	}
	return b[off : off+vlen], nil
}

// KeySet:
//
//	magic(4) | ver(1) | kind(2=keyset) | n(u32 be)
//	keyLen(u16 be) | key(keyLen) * n
func EncodeKeySet(members []string) ([]byte, error) {
	total := hdrLen + 4
	for _, k := range members {
		if l := len(k); l == 0 || l > 0xFFFF {
			return nil, fmt.Errorf("cachemodel: invalid key length %d in key set", l)
		}
		total += 2 + len(k)
	}

	var buf bytes.Buffer
	buf.Grow(total)
	header(&buf, kindKeySet)

	var u4 [4]byte
	var u2 [2]byte
	binary.BigEndian.PutUint32(u4[:], uint32(len(members)))
	buf.Write(u4[:])
	for _, k := range members {
		binary.BigEndian.PutUint16(u2[:], uint16(len(k)))
		buf.Write(u2[:])
		buf.WriteString(k)
	}
	return buf.Bytes(), nil
}

func DecodeKeySet(b []byte) ([]string, error) {
	if !checkHeader(b, kindKeySet, 4) {
		return nil, ErrCorrupt
	}
	off := hdrLen
	n := int(binary.BigEndian.Uint32(b[off : off+4]))
	off += 4
	// each member needs at least 3 bytes; reject absurd counts before allocating
	if n < 0 || n > (len(b)-off)/3 {
		return nil, ErrCorrupt
	}

	out := make([]string, 0, n)
	for i := 0; i < n; i++ {
		if off+2 > len(b) {
			return nil, ErrCorrupt
		}
		klen := int(binary.BigEndian.Uint16(b[off : off+2]))
		off += 2
		if klen == 0 || klen > len(b)-off {
			return nil, ErrCorrupt
		}
		out = append(out, string(b[off:off+klen]))
		off += klen
	}
	if off != len(b) {
		return nil, ErrCorrupt
	}
	return out, nil
}

// Marker: magic(4) | ver(1) | kind(3=marker) | state(1)
func EncodeMarker(state byte) []byte {
	var buf bytes.Buffer
	buf.Grow(hdrLen + 1)
	header(&buf, kindMarker)
	buf.WriteByte(state)
	return buf.Bytes()
}

func DecodeMarker(b []byte) (byte, error) {
	if !checkHeader(b, kindMarker, 1) || len(b) != hdrLen+1 {
		return 0, ErrCorrupt
	}
	return b[hdrLen], nil
}

// Gen: magic(4) | ver(1) | kind(4=gen) | gen(u64 be)
func EncodeGen(gen uint64) []byte {
	var buf bytes.Buffer
	buf.Grow(hdrLen + 8)
	header(&buf, kindGen)

	var u8 [8]byte
	binary.BigEndian.PutUint64(u8[:], gen)
	buf.Write(u8[:])
	return buf.Bytes()
}

func DecodeGen(b []byte) (uint64, error) {
	if !checkHeader(b, kindGen, 8) || len(b) != hdrLen+8 {
		return 0, ErrCorrupt
	}
	return binary.BigEndian.Uint64(b[hdrLen:]), nil
}

// Stamped value: magic(4) | ver(1) | kind(5=stamped) | gen(u64 be) | vlen(u32 be) | payload(vlen)
//
// gen is the generation of the namespace the value was read under; readers
// compare it with the current one.
func EncodeStamped(gen uint64, payload []byte) []byte {
	var buf bytes.Buffer
	buf.Grow(hdrLen + 8 + 4 + len(payload))
	header(&buf, kindStamp)

	var u8 [8]byte
	binary.BigEndian.PutUint64(u8[:], gen)
	buf.Write(u8[:])
	var u4 [4]byte
	binary.BigEndian.PutUint32(u4[:], uint32(len(payload)))
	buf.Write(u4[:])
	buf.Write(payload)
	return buf.Bytes()
}

// DecodeStamped returns the stamp and a slice into b (no copy).
func DecodeStamped(b []byte) (uint64, []byte, error) {
	if !checkHeader(b, kindStamp, 12) {
		return 0, nil, ErrCorrupt
	}
	off := hdrLen
	gen := binary.BigEndian.Uint64(b[off : off+8])
	off += 8
	vlen := int(binary.BigEndian.Uint32(b[off : off+4]))
	off += 4
	if vlen != len(b)-off {
		return 0, nil, ErrCorrupt
	}
	return gen, b[off:], nil
}
