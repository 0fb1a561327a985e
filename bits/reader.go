// Package bits provides bounds-checked byte and bit cursors for decoding
// big-endian binary structures.
package bits

import (
	"encoding/binary"
	"errors"
)

var be = binary.BigEndian

// ErrOutOfBounds is returned when a read would go past the end of the region.
var ErrOutOfBounds = errors.New("bits: read out of bounds")

// Reader is a sequential big-endian byte cursor over a fixed region.
//
// Errors are sticky: after the first read that would overrun the region,
// every read returns the zero value and Err reports ErrOutOfBounds.
type Reader struct {
	buf []byte
	off int
	err error
}

// NewReader returns a Reader over buf.
func NewReader(buf []byte) *Reader {
	return &Reader{buf: buf}
}

// Err returns the first error encountered.
func (r *Reader) Err() error { return r.err }

// Offset returns the number of bytes consumed.
func (r *Reader) Offset() int { return r.off }

// Len returns the length of the whole region.
func (r *Reader) Len() int { return len(r.buf) }

// Remaining returns the number of unread bytes.
func (r *Reader) Remaining() int { return len(r.buf) - r.off }

// take advances the cursor by n bytes and returns them, or nil on overrun.
func (r *Reader) take(n int) []byte {
	if r.err != nil {
		return nil
	}
	if n < 0 || n > len(r.buf)-r.off {
		r.err = ErrOutOfBounds
		return nil
	}
	b := r.buf[r.off : r.off+n]
	r.off += n
	return b
}

// Skip advances the cursor by n bytes.
func (r *Reader) Skip(n int) {
	r.take(n)
}

func (r *Reader) Uint8() uint8 {
	b := r.take(1)
	if b == nil {
		return 0
	}
	return b[0]
}

func (r *Reader) Uint16() uint16 {
	b := r.take(2)
	if b == nil {
		return 0
	}
	return be.Uint16(b)
}

// Uint24 reads an 8-bit and a 16-bit value and combines them.
func (r *Reader) Uint24() uint32 {
	hi := r.Uint8()
	lo := r.Uint16()
	if r.err != nil {
		return 0
	}
	return uint32(hi)<<16 | uint32(lo)
}

func (r *Reader) Uint32() uint32 {
	b := r.take(4)
	if b == nil {
		return 0
	}
	return be.Uint32(b)
}

func (r *Reader) Uint64() uint64 {
	b := r.take(8)
	if b == nil {
		return 0
	}
	return be.Uint64(b)
}

func (r *Reader) Int16() int16 { return int16(r.Uint16()) }

func (r *Reader) Int32() int32 { return int32(r.Uint32()) }

func (r *Reader) Int64() int64 { return int64(r.Uint64()) }

// Fixed16 reads a 16.16 fixed-point value.
func (r *Reader) Fixed16() float64 {
	return float64(r.Int32()) / (1 << 16)
}

// Fixed8 reads an 8.8 fixed-point value.
func (r *Reader) Fixed8() float64 {
	return float64(r.Int16()) / (1 << 8)
}

// Fixed30 reads a 2.30 fixed-point value.
func (r *Reader) Fixed30() float64 {
	return float64(r.Int32()) / (1 << 30)
}

// Bytes returns the next n bytes. The slice aliases the underlying region.
func (r *Reader) Bytes(n int) []byte {
	return r.take(n)
}

// Rest returns every unread byte and moves the cursor to the end.
func (r *Reader) Rest() []byte {
	return r.take(r.Remaining())
}

// Array16 reads a 16-byte value such as a key ID or system ID.
func (r *Reader) Array16() [16]byte {
	var a [16]byte
	copy(a[:], r.take(16))
	return a
}

// String reads a fixed-length ASCII string.
func (r *Reader) String(n int) string {
	return string(r.take(n))
}

// CString reads the rest of the region as a string, cut at the first NUL.
func (r *Reader) CString() string {
	b := r.Rest()
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}
