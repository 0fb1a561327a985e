package bits

import "math"

// BitReader is a sequential MSB-first bit cursor over a fixed region.
// Like Reader, it keeps the first error and returns zero afterwards.
type BitReader struct {
	buf []byte
	pos int // bit position
	err error
}

// NewBitReader returns a BitReader positioned at the first bit of buf.
func NewBitReader(buf []byte) *BitReader {
	return &BitReader{buf: buf}
}

// Err returns the first error encountered.
func (r *BitReader) Err() error { return r.err }

// BitPos returns the number of bits consumed.
func (r *BitReader) BitPos() int { return r.pos }

// BytePos returns the number of whole bytes consumed, rounding partial bytes up.
func (r *BitReader) BytePos() int { return (r.pos + 7) / 8 }

// AtEnd reports whether the cursor has reached the last byte boundary.
func (r *BitReader) AtEnd() bool { return r.pos/8 >= len(r.buf) }

// ReadBit reads a single bit.
func (r *BitReader) ReadBit() uint8 {
	if r.err != nil {
		return 0
	}
	if r.pos >= len(r.buf)*8 {
		r.err = ErrOutOfBounds
		return 0
	}
	b := r.buf[r.pos/8] >> (7 - uint(r.pos%8)) & 1
	r.pos++
	return b
}

// ReadFlag reads a single bit as a bool.
func (r *BitReader) ReadFlag() bool {
	return r.ReadBit() == 1
}

// ReadBits reads n bits (n <= 64) as an unsigned integer, most significant bit first.
func (r *BitReader) ReadBits(n int) uint64 {
	if r.err != nil {
		return 0
	}
	if n < 0 || n > 64 || r.pos+n > len(r.buf)*8 {
		r.err = ErrOutOfBounds
		return 0
	}
	var v uint64
	for i := 0; i < n; i++ {
		v = v<<1 | uint64(r.buf[r.pos/8]>>(7-uint(r.pos%8))&1)
		r.pos++
	}
	return v
}

// Skip advances the cursor by n bits.
func (r *BitReader) Skip(n int) {
	if r.err != nil {
		return
	}
	if n < 0 || r.pos+n > len(r.buf)*8 {
		r.err = ErrOutOfBounds
		return
	}
	r.pos += n
}

// ReadLeb128 reads an unsigned LEB128 value of at most 8 groups.
// Groups are 7 bits each, least significant group first, and a set high
// bit means another byte follows.
func (r *BitReader) ReadLeb128() uint64 {
	var v uint64
	for i := 0; i < 8; i++ {
		b := r.ReadBits(8)
		v |= (b & 0x7f) << (uint(i) * 7)
		if b&0x80 == 0 {
			break
		}
	}
	return v
}

// ReadUvlc reads a variable length code: a run of leading zero bits, a one
// bit, then as many payload bits as there were zeros. A run of 32 or more
// zeros yields math.MaxUint32.
func (r *BitReader) ReadUvlc() uint32 {
	leadingZeros := 0
	for {
		if r.err != nil {
			return 0
		}
		if r.ReadBit() == 1 {
			break
		}
		leadingZeros++
	}
	if leadingZeros >= 32 {
		return math.MaxUint32
	}
	v := r.ReadBits(leadingZeros)
	return uint32(v + (1 << uint(leadingZeros)) - 1)
}
