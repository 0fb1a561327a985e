package bmff

import (
	"fmt"

	"github.com/tetsuo/bmff/av1"
	"github.com/tetsuo/bmff/bits"
)

// AV1Config is the payload of an av1C box.
type AV1Config struct {
	Marker               bool
	Version              uint8
	SeqProfile           uint8
	SeqLevelIdx0         uint8
	SeqTier0             bool
	HighBitdepth         bool
	TwelveBit            bool
	Monochrome           bool
	ChromaSubsamplingX   bool
	ChromaSubsamplingY   bool
	ChromaSamplePosition uint8

	InitialPresentationDelayPresent bool
	InitialPresentationDelayMinus1  uint8

	ConfigOBUs []*av1.OBU
}

func (*AV1Config) payload() {}

// BitDepth returns 8, 10 or 12.
func (c *AV1Config) BitDepth() int {
	switch {
	case c.TwelveBit:
		return 12
	case c.HighBitdepth:
		return 10
	}
	return 8
}

// SequenceHeader returns the first decoded sequence header OBU, or nil.
func (c *AV1Config) SequenceHeader() *av1.SequenceHeader {
	for _, o := range c.ConfigOBUs {
		if o.SequenceHeader != nil {
			return o.SequenceHeader
		}
	}
	return nil
}

// Codec returns the codec string, e.g. "av01.0.08M.08".
func (c *AV1Config) Codec() string {
	tier := 'M'
	if c.SeqTier0 {
		tier = 'H'
	}
	return fmt.Sprintf("av01.%d.%02d%c.%02d", c.SeqProfile, c.SeqLevelIdx0, tier, c.BitDepth())
}

func decodeAv1C(s *decodeState, b *Box, r *bits.Reader) error {
	c := &AV1Config{}
	v := r.Uint8()
	c.Marker = v&0x80 != 0
	c.Version = v & 0x7f
	v = r.Uint8()
	c.SeqProfile = v >> 5
	c.SeqLevelIdx0 = v & 0x1f
	v = r.Uint8()
	c.SeqTier0 = v&0x80 != 0
	c.HighBitdepth = v&0x40 != 0
	c.TwelveBit = v&0x20 != 0
	c.Monochrome = v&0x10 != 0
	c.ChromaSubsamplingX = v&0x08 != 0
	c.ChromaSubsamplingY = v&0x04 != 0
	c.ChromaSamplePosition = v & 0x03
	v = r.Uint8()
	c.InitialPresentationDelayPresent = v&0x10 != 0
	if c.InitialPresentationDelayPresent {
		c.InitialPresentationDelayMinus1 = v & 0x0f
	}
	if err := r.Err(); err != nil {
		return err
	}

	obus, err := av1.DecodeOBUs(r.Rest())
	if err != nil {
		s.log.Debug("truncated config OBUs", "offset", b.Offset, "err", err)
	}
	for _, o := range obus {
		if o.ForbiddenBitSet {
			s.log.Warn("OBU forbidden bit set", "offset", b.Offset, "type", o.Type.String())
		}
	}
	c.ConfigOBUs = obus
	b.Payload = c
	return nil
}
