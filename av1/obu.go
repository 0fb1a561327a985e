// Package av1 decodes AV1 Open Bitstream Unit headers and sequence headers
// as carried in the configOBUs field of an av1C box.
package av1

import (
	"errors"
	"fmt"

	"github.com/tetsuo/bmff/bits"
)

// ErrOBUSize is returned when an OBU declares more bytes than are available.
var ErrOBUSize = errors.New("av1: obu size exceeds buffer")

// OBUType is the 4-bit obu_type field.
type OBUType uint8

const (
	OBUSequenceHeader       OBUType = 1
	OBUTemporalDelimiter    OBUType = 2
	OBUFrameHeader          OBUType = 3
	OBUTileGroup            OBUType = 4
	OBUMetadata             OBUType = 5
	OBUFrame                OBUType = 6
	OBURedundantFrameHeader OBUType = 7
	OBUTileList             OBUType = 8
	OBUPadding              OBUType = 15
)

var obuTypeNames = map[OBUType]string{
	OBUSequenceHeader:       "Sequence Header",
	OBUTemporalDelimiter:    "Temporal Delimiter",
	OBUFrameHeader:          "Frame Header",
	OBUTileGroup:            "Tile Group",
	OBUMetadata:             "Metadata",
	OBUFrame:                "Frame",
	OBURedundantFrameHeader: "Redundant Frame Header",
	OBUTileList:             "Tile List",
	OBUPadding:              "Padding",
}

func (t OBUType) String() string {
	if n, ok := obuTypeNames[t]; ok {
		return n
	}
	return fmt.Sprintf("Reserved (%d)", uint8(t))
}

// OBU is a decoded OBU header. Only sequence header payloads are decoded;
// for every other type the payload is left as is.
type OBU struct {
	Type            OBUType
	ForbiddenBitSet bool
	HasExtension    bool
	HasSizeField    bool
	TemporalID      uint8 // valid when HasExtension
	SpatialID       uint8 // valid when HasExtension
	HeaderSize      int
	Size            int // header plus payload

	// Payload aliases the decoded buffer.
	Payload []byte

	SequenceHeader *SequenceHeader
}

// DecodeOBU decodes the OBU at the start of buf. Without a size field the
// OBU takes the rest of buf.
func DecodeOBU(buf []byte) (*OBU, error) {
	br := bits.NewBitReader(buf)
	o := &OBU{
		ForbiddenBitSet: br.ReadFlag(),
		Type:            OBUType(br.ReadBits(4)),
		HasExtension:    br.ReadFlag(),
		HasSizeField:    br.ReadFlag(),
	}
	br.Skip(1)
	if o.HasExtension {
		o.TemporalID = uint8(br.ReadBits(3))
		o.SpatialID = uint8(br.ReadBits(2))
		br.Skip(3)
	}
	if o.HasSizeField {
		n := br.ReadLeb128()
		o.HeaderSize = br.BytePos()
		if n > uint64(len(buf)-o.HeaderSize) {
			return nil, fmt.Errorf("%w: %d bytes declared, %d available", ErrOBUSize, n, len(buf)-o.HeaderSize)
		}
		o.Size = o.HeaderSize + int(n)
	} else {
		o.HeaderSize = br.BytePos()
		o.Size = len(buf)
	}
	if err := br.Err(); err != nil {
		return nil, fmt.Errorf("av1: obu header: %w", err)
	}
	o.Payload = buf[o.HeaderSize:o.Size]

	if o.Type == OBUSequenceHeader {
		sh, err := DecodeSequenceHeader(o.Payload)
		if err != nil {
			return nil, err
		}
		o.SequenceHeader = sh
	}
	return o, nil
}

// DecodeOBUs decodes consecutive OBUs until buf is consumed. It returns the
// OBUs decoded before the first error along with that error.
func DecodeOBUs(buf []byte) ([]*OBU, error) {
	var obus []*OBU
	for len(buf) > 0 {
		o, err := DecodeOBU(buf)
		if err != nil {
			return obus, err
		}
		obus = append(obus, o)
		if o.Size == 0 {
			break
		}
		buf = buf[o.Size:]
	}
	return obus, nil
}
