package bmff

import (
	"fmt"
	mathbits "math/bits"
	"slices"

	"github.com/bluenviron/mediacommon/pkg/codecs/h264"
	"github.com/bluenviron/mediacommon/pkg/codecs/h265"

	"github.com/tetsuo/bmff/bits"
)

// Profiles whose avcC carries the chroma format and bit depth extension.
var avcExtendedProfiles = []uint8{100, 110, 122, 144}

// AVCConfig is the payload of an avcC box. The extension fields are set only
// when HasExtension is true.
type AVCConfig struct {
	ConfigurationVersion uint8
	ProfileIndication    uint8
	ProfileCompatibility uint8
	LevelIndication      uint8
	LengthSizeMinusOne   uint8

	SequenceParameterSets [][]byte
	PictureParameterSets  [][]byte

	HasExtension             bool
	ChromaFormat             uint8
	BitDepthLumaMinus8       uint8
	BitDepthChromaMinus8     uint8
	SequenceParameterSetExts [][]byte
}

func (*AVCConfig) payload() {}

// Codec returns the RFC 6381 codec string, e.g. "avc1.64001f".
func (c *AVCConfig) Codec() string {
	return fmt.Sprintf("avc1.%02x%02x%02x", c.ProfileIndication, c.ProfileCompatibility, c.LevelIndication)
}

// SPS parses the i-th sequence parameter set.
func (c *AVCConfig) SPS(i int) (*h264.SPS, error) {
	if i < 0 || i >= len(c.SequenceParameterSets) {
		return nil, fmt.Errorf("avcC: no sequence parameter set %d", i)
	}
	var sps h264.SPS
	if err := sps.Unmarshal(c.SequenceParameterSets[i]); err != nil {
		return nil, fmt.Errorf("avcC: sps %d: %w", i, err)
	}
	return &sps, nil
}

// readParameterSets reads count 16-bit length-prefixed NAL units. The
// returned slices are copies.
func readParameterSets(r *bits.Reader, count int) [][]byte {
	sets := make([][]byte, 0, count)
	for i := 0; i < count && r.Err() == nil; i++ {
		n := int(r.Uint16())
		if b := r.Bytes(n); b != nil {
			sets = append(sets, slices.Clone(b))
		}
	}
	return sets
}

func decodeAvcC(_ *decodeState, b *Box, r *bits.Reader) error {
	c := &AVCConfig{
		ConfigurationVersion: r.Uint8(),
		ProfileIndication:    r.Uint8(),
		ProfileCompatibility: r.Uint8(),
		LevelIndication:      r.Uint8(),
		LengthSizeMinusOne:   r.Uint8() & 0x3,
	}
	c.SequenceParameterSets = readParameterSets(r, int(r.Uint8()&0x1f))
	c.PictureParameterSets = readParameterSets(r, int(r.Uint8()))
	if err := r.Err(); err != nil {
		return err
	}

	// Some encoders omit the extension even for high profiles, so it is read
	// only while bytes remain.
	if slices.Contains(avcExtendedProfiles, c.ProfileIndication) && r.Remaining() >= 3 {
		c.HasExtension = true
		c.ChromaFormat = r.Uint8() & 0x3
		c.BitDepthLumaMinus8 = r.Uint8() & 0x7
		c.BitDepthChromaMinus8 = r.Uint8() & 0x7
		if r.Remaining() > 0 {
			c.SequenceParameterSetExts = readParameterSets(r, int(r.Uint8()))
		}
		if err := r.Err(); err != nil {
			return err
		}
	}
	b.Payload = c
	return nil
}

// HEVCNALArray is one array of NAL units in an hvcC box.
type HEVCNALArray struct {
	ArrayCompleteness bool
	NALUnitType       uint8
	NALUnits          [][]byte
}

// HEVCConfig is the payload of an hvcC box.
type HEVCConfig struct {
	ConfigurationVersion             uint8
	GeneralProfileSpace              uint8
	GeneralTierFlag                  bool
	GeneralProfileIDC                uint8
	GeneralProfileCompatibilityFlags uint32
	GeneralConstraintIndicatorFlags  uint64 // 48 bits
	GeneralLevelIDC                  uint8
	MinSpatialSegmentationIDC        uint16
	ParallelismType                  uint8
	ChromaFormat                     uint8
	BitDepthLumaMinus8               uint8
	BitDepthChromaMinus8             uint8
	AvgFrameRate                     uint16
	ConstantFrameRate                uint8
	NumTemporalLayers                uint8
	TemporalIDNested                 bool
	LengthSizeMinusOne               uint8
	Arrays                           []HEVCNALArray
}

func (*HEVCConfig) payload() {}

// HEVC NAL unit types carried in hvcC arrays.
const (
	HEVCNALVPS = 32
	HEVCNALSPS = 33
	HEVCNALPPS = 34
)

// NALUnits returns every NAL unit of the given type.
func (c *HEVCConfig) NALUnits(typ uint8) [][]byte {
	var out [][]byte
	for _, a := range c.Arrays {
		if a.NALUnitType == typ {
			out = append(out, a.NALUnits...)
		}
	}
	return out
}

// SPS parses the first sequence parameter set.
func (c *HEVCConfig) SPS() (*h265.SPS, error) {
	sets := c.NALUnits(HEVCNALSPS)
	if len(sets) == 0 {
		return nil, fmt.Errorf("hvcC: no sequence parameter set")
	}
	var sps h265.SPS
	if err := sps.Unmarshal(sets[0]); err != nil {
		return nil, fmt.Errorf("hvcC: sps: %w", err)
	}
	return &sps, nil
}

// Codec returns the RFC 6381 / ISO 14496-15 codec string, e.g.
// "hvc1.1.6.L93.B0".
func (c *HEVCConfig) Codec() string {
	space := ""
	if c.GeneralProfileSpace > 0 {
		space = string(rune('A' + c.GeneralProfileSpace - 1))
	}
	tier := 'L'
	if c.GeneralTierFlag {
		tier = 'H'
	}
	s := fmt.Sprintf("hvc1.%s%d.%X.%c%d", space, c.GeneralProfileIDC,
		mathbits.Reverse32(c.GeneralProfileCompatibilityFlags), tier, c.GeneralLevelIDC)

	// constraint bytes, trailing zero bytes dropped
	var cons [6]byte
	for i := range cons {
		cons[i] = byte(c.GeneralConstraintIndicatorFlags >> uint(40-8*i))
	}
	n := len(cons)
	for n > 0 && cons[n-1] == 0 {
		n--
	}
	for _, v := range cons[:n] {
		s += fmt.Sprintf(".%X", v)
	}
	return s
}

func decodeHvcC(_ *decodeState, b *Box, r *bits.Reader) error {
	c := &HEVCConfig{ConfigurationVersion: r.Uint8()}
	v := r.Uint8()
	c.GeneralProfileSpace = v >> 6
	c.GeneralTierFlag = v&0x20 != 0
	c.GeneralProfileIDC = v & 0x1f
	c.GeneralProfileCompatibilityFlags = r.Uint32()
	c.GeneralConstraintIndicatorFlags = uint64(r.Uint32())<<16 | uint64(r.Uint16())
	c.GeneralLevelIDC = r.Uint8()
	c.MinSpatialSegmentationIDC = r.Uint16() & 0x0fff
	c.ParallelismType = r.Uint8() & 0x3
	c.ChromaFormat = r.Uint8() & 0x3
	c.BitDepthLumaMinus8 = r.Uint8() & 0x7
	c.BitDepthChromaMinus8 = r.Uint8() & 0x7
	c.AvgFrameRate = r.Uint16()
	v = r.Uint8()
	c.ConstantFrameRate = v >> 6
	c.NumTemporalLayers = (v >> 3) & 0x7
	c.TemporalIDNested = v&0x4 != 0
	c.LengthSizeMinusOne = v & 0x3
	if err := r.Err(); err != nil {
		return err
	}

	// NAL arrays are optional; a truncated tail keeps what was read.
	if r.Remaining() > 0 {
		num := int(r.Uint8())
		for i := 0; i < num && r.Err() == nil; i++ {
			v := r.Uint8()
			a := HEVCNALArray{
				ArrayCompleteness: v&0x80 != 0,
				NALUnitType:       v & 0x3f,
			}
			a.NALUnits = readParameterSets(r, int(r.Uint16()))
			if r.Err() == nil {
				c.Arrays = append(c.Arrays, a)
			}
		}
	}
	b.Payload = c
	return nil
}
