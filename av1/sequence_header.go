package av1

import (
	"fmt"

	"github.com/tetsuo/bmff/bits"
)

const (
	// SelectScreenContentTools and SelectIntegerMV mark a field the encoder
	// decides per frame.
	SelectScreenContentTools = 2
	SelectIntegerMV          = 2

	CPBT709       = 1
	CPUnspecified = 2
	TCUnspecified = 2
	TCSRGB        = 13
	MCIdentity    = 0
	MCUnspecified = 2
	CSPUnknown    = 0
	CSPVertical   = 1
	CSPColocated  = 2
)

// TimingInfo is the timing_info() record.
type TimingInfo struct {
	NumUnitsInDisplayTick    uint32
	TimeScale                uint32
	EqualPictureInterval     bool
	NumTicksPerPictureMinus1 uint32
}

// DecoderModelInfo is the decoder_model_info() record.
type DecoderModelInfo struct {
	BufferDelayLengthMinus1           uint8
	NumUnitsInDecodingTick            uint32
	BufferRemovalTimeLengthMinus1     uint8
	FramePresentationTimeLengthMinus1 uint8
}

// OperatingParameters is the operating_parameters_info() record.
type OperatingParameters struct {
	DecoderBufferDelay uint64
	EncoderBufferDelay uint64
	LowDelayMode       bool
}

// OperatingPoint is one entry of the operating point loop.
type OperatingPoint struct {
	IDC                        uint16
	SeqLevelIdx                uint8
	SeqTier                    uint8
	DecoderModelPresent        bool
	Parameters                 *OperatingParameters
	InitialDisplayDelayPresent bool
	InitialDisplayDelayMinus1  uint8
}

// ColorConfig is the color_config() record with its derived values.
type ColorConfig struct {
	BitDepth                uint8
	MonoChrome              bool
	NumPlanes               uint8
	ColorDescriptionPresent bool
	ColorPrimaries          uint8
	TransferCharacteristics uint8
	MatrixCoefficients      uint8
	ColorRange              bool
	SubsamplingX            bool
	SubsamplingY            bool
	ChromaSamplePosition    uint8
	SeparateUVDeltaQ        bool
}

// SequenceHeader is a decoded sequence_header_obu().
type SequenceHeader struct {
	SeqProfile                uint8
	StillPicture              bool
	ReducedStillPictureHeader bool

	TimingInfoPresent          bool
	TimingInfo                 *TimingInfo
	DecoderModelInfoPresent    bool
	DecoderModelInfo           *DecoderModelInfo
	InitialDisplayDelayPresent bool
	OperatingPoints            []OperatingPoint
	OperatingPointIndex        int
	OperatingPointIDC          uint16

	FrameWidthBitsMinus1  uint8
	FrameHeightBitsMinus1 uint8
	MaxFrameWidthMinus1   uint32
	MaxFrameHeightMinus1  uint32

	FrameIDNumbersPresent         bool
	DeltaFrameIDLengthMinus2      uint8
	AdditionalFrameIDLengthMinus1 uint8

	Use128x128Superblock        bool
	EnableFilterIntra           bool
	EnableIntraEdgeFilter       bool
	EnableInterintraCompound    bool
	EnableMaskedCompound        bool
	EnableWarpedMotion          bool
	EnableDualFilter            bool
	EnableOrderHint             bool
	EnableJntComp               bool
	EnableRefFrameMvs           bool
	SeqChooseScreenContentTools bool
	SeqForceScreenContentTools  uint8
	SeqChooseIntegerMV          bool
	SeqForceIntegerMV           uint8
	OrderHintBits               uint8

	EnableSuperres    bool
	EnableCdef        bool
	EnableRestoration bool

	ColorConfig            ColorConfig
	FilmGrainParamsPresent bool
}

// Width returns the maximum frame width in pixels.
func (h *SequenceHeader) Width() int { return int(h.MaxFrameWidthMinus1) + 1 }

// Height returns the maximum frame height in pixels.
func (h *SequenceHeader) Height() int { return int(h.MaxFrameHeightMinus1) + 1 }

// DecodeSequenceHeader decodes a sequence header OBU payload.
func DecodeSequenceHeader(payload []byte) (*SequenceHeader, error) {
	br := bits.NewBitReader(payload)
	h := &SequenceHeader{
		SeqProfile:                uint8(br.ReadBits(3)),
		StillPicture:              br.ReadFlag(),
		ReducedStillPictureHeader: br.ReadFlag(),
	}

	if h.ReducedStillPictureHeader {
		h.OperatingPoints = []OperatingPoint{{SeqLevelIdx: uint8(br.ReadBits(5))}}
	} else {
		h.readOperatingPoints(br)
	}

	h.OperatingPointIndex = chooseOperatingPoint()
	if h.OperatingPointIndex < len(h.OperatingPoints) {
		h.OperatingPointIDC = h.OperatingPoints[h.OperatingPointIndex].IDC
	}

	h.FrameWidthBitsMinus1 = uint8(br.ReadBits(4))
	h.FrameHeightBitsMinus1 = uint8(br.ReadBits(4))
	h.MaxFrameWidthMinus1 = uint32(br.ReadBits(int(h.FrameWidthBitsMinus1) + 1))
	h.MaxFrameHeightMinus1 = uint32(br.ReadBits(int(h.FrameHeightBitsMinus1) + 1))
	if !h.ReducedStillPictureHeader {
		h.FrameIDNumbersPresent = br.ReadFlag()
	}
	if h.FrameIDNumbersPresent {
		h.DeltaFrameIDLengthMinus2 = uint8(br.ReadBits(4))
		h.AdditionalFrameIDLengthMinus1 = uint8(br.ReadBits(3))
	}
	h.Use128x128Superblock = br.ReadFlag()
	h.EnableFilterIntra = br.ReadFlag()
	h.EnableIntraEdgeFilter = br.ReadFlag()

	if h.ReducedStillPictureHeader {
		h.SeqForceScreenContentTools = SelectScreenContentTools
		h.SeqForceIntegerMV = SelectIntegerMV
	} else {
		h.readToolFlags(br)
	}

	h.EnableSuperres = br.ReadFlag()
	h.EnableCdef = br.ReadFlag()
	h.EnableRestoration = br.ReadFlag()
	h.ColorConfig = readColorConfig(br, h.SeqProfile)
	h.FilmGrainParamsPresent = br.ReadFlag()

	if err := br.Err(); err != nil {
		return nil, fmt.Errorf("av1: sequence header: %w", err)
	}
	return h, nil
}

func (h *SequenceHeader) readOperatingPoints(br *bits.BitReader) {
	h.TimingInfoPresent = br.ReadFlag()
	if h.TimingInfoPresent {
		ti := &TimingInfo{
			NumUnitsInDisplayTick: uint32(br.ReadBits(32)),
			TimeScale:             uint32(br.ReadBits(32)),
			EqualPictureInterval:  br.ReadFlag(),
		}
		if ti.EqualPictureInterval {
			ti.NumTicksPerPictureMinus1 = br.ReadUvlc()
		}
		h.TimingInfo = ti

		h.DecoderModelInfoPresent = br.ReadFlag()
		if h.DecoderModelInfoPresent {
			h.DecoderModelInfo = &DecoderModelInfo{
				BufferDelayLengthMinus1:           uint8(br.ReadBits(5)),
				NumUnitsInDecodingTick:            uint32(br.ReadBits(32)),
				BufferRemovalTimeLengthMinus1:     uint8(br.ReadBits(5)),
				FramePresentationTimeLengthMinus1: uint8(br.ReadBits(5)),
			}
		}
	}
	h.InitialDisplayDelayPresent = br.ReadFlag()

	count := int(br.ReadBits(5)) + 1
	h.OperatingPoints = make([]OperatingPoint, 0, count)
	for i := 0; i < count && br.Err() == nil; i++ {
		op := OperatingPoint{
			IDC:         uint16(br.ReadBits(12)),
			SeqLevelIdx: uint8(br.ReadBits(5)),
		}
		if op.SeqLevelIdx > 7 {
			op.SeqTier = uint8(br.ReadBits(1))
		}
		if h.DecoderModelInfoPresent {
			op.DecoderModelPresent = br.ReadFlag()
			if op.DecoderModelPresent {
				n := int(h.DecoderModelInfo.BufferDelayLengthMinus1) + 1
				op.Parameters = &OperatingParameters{
					DecoderBufferDelay: br.ReadBits(n),
					EncoderBufferDelay: br.ReadBits(n),
					LowDelayMode:       br.ReadFlag(),
				}
			}
		}
		if h.InitialDisplayDelayPresent {
			op.InitialDisplayDelayPresent = br.ReadFlag()
			if op.InitialDisplayDelayPresent {
				op.InitialDisplayDelayMinus1 = uint8(br.ReadBits(4))
			}
		}
		h.OperatingPoints = append(h.OperatingPoints, op)
	}
}

func (h *SequenceHeader) readToolFlags(br *bits.BitReader) {
	h.EnableInterintraCompound = br.ReadFlag()
	h.EnableMaskedCompound = br.ReadFlag()
	h.EnableWarpedMotion = br.ReadFlag()
	h.EnableDualFilter = br.ReadFlag()
	h.EnableOrderHint = br.ReadFlag()
	if h.EnableOrderHint {
		h.EnableJntComp = br.ReadFlag()
		h.EnableRefFrameMvs = br.ReadFlag()
	}

	h.SeqChooseScreenContentTools = br.ReadFlag()
	if h.SeqChooseScreenContentTools {
		h.SeqForceScreenContentTools = SelectScreenContentTools
	} else {
		h.SeqForceScreenContentTools = uint8(br.ReadBits(1))
	}
	if h.SeqForceScreenContentTools > 0 {
		h.SeqChooseIntegerMV = br.ReadFlag()
		if h.SeqChooseIntegerMV {
			h.SeqForceIntegerMV = SelectIntegerMV
		} else {
			h.SeqForceIntegerMV = uint8(br.ReadBits(1))
		}
	} else {
		h.SeqForceIntegerMV = SelectIntegerMV
	}
	if h.EnableOrderHint {
		h.OrderHintBits = uint8(br.ReadBits(3)) + 1
	}
}

// chooseOperatingPoint picks the operating point to decode. Decoders are
// free to choose; the first one is always used.
func chooseOperatingPoint() int { return 0 }

func readColorConfig(br *bits.BitReader, profile uint8) ColorConfig {
	var c ColorConfig
	highBitdepth := br.ReadFlag()
	switch {
	case profile == 2 && highBitdepth:
		if br.ReadFlag() {
			c.BitDepth = 12
		} else {
			c.BitDepth = 10
		}
	case highBitdepth:
		c.BitDepth = 10
	default:
		c.BitDepth = 8
	}

	if profile != 1 {
		c.MonoChrome = br.ReadFlag()
	}
	c.NumPlanes = 3
	if c.MonoChrome {
		c.NumPlanes = 1
	}

	c.ColorDescriptionPresent = br.ReadFlag()
	if c.ColorDescriptionPresent {
		c.ColorPrimaries = uint8(br.ReadBits(8))
		c.TransferCharacteristics = uint8(br.ReadBits(8))
		c.MatrixCoefficients = uint8(br.ReadBits(8))
	} else {
		c.ColorPrimaries = CPUnspecified
		c.TransferCharacteristics = TCUnspecified
		c.MatrixCoefficients = MCUnspecified
	}

	switch {
	case c.MonoChrome:
		c.ColorRange = br.ReadFlag()
		c.SubsamplingX, c.SubsamplingY = true, true
		c.ChromaSamplePosition = CSPUnknown
		return c
	case c.ColorPrimaries == CPBT709 && c.TransferCharacteristics == TCSRGB &&
		c.MatrixCoefficients == MCIdentity:
		c.ColorRange = true
	default:
		c.ColorRange = br.ReadFlag()
		switch profile {
		case 0:
			c.SubsamplingX, c.SubsamplingY = true, true
		case 1:
		default:
			if c.BitDepth == 12 {
				c.SubsamplingX = br.ReadFlag()
				if c.SubsamplingX {
					c.SubsamplingY = br.ReadFlag()
				}
			} else {
				c.SubsamplingX = true
			}
		}
		if c.SubsamplingX && c.SubsamplingY {
			c.ChromaSamplePosition = uint8(br.ReadBits(2))
		}
	}
	c.SeparateUVDeltaQ = br.ReadFlag()
	return c
}
