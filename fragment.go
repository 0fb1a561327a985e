package bmff

import (
	"github.com/samber/lo"

	"github.com/tetsuo/bmff/bits"
)

// SampleFlags is the packed 32-bit sample flags record used by trex, tfhd
// and trun.
type SampleFlags uint32

func (f SampleFlags) IsLeading() uint8 { return uint8(f>>26) & 0x3 }
func (f SampleFlags) SampleDependsOn() uint8 { return uint8(f>>24) & 0x3 }
func (f SampleFlags) SampleIsDependedOn() uint8 { return uint8(f>>22) & 0x3 }
func (f SampleFlags) SampleHasRedundancy() uint8 { return uint8(f>>20) & 0x3 }
func (f SampleFlags) PaddingValue() uint8 { return uint8(f>>17) & 0x7 }
func (f SampleFlags) IsNonSyncSample() bool { return f&0x10000 != 0 }
func (f SampleFlags) DegradationPriority() uint16 { return uint16(f) }

// MovieFragmentHeader is the payload of an mfhd box.
type MovieFragmentHeader struct {
	SequenceNumber uint32
}

func (*MovieFragmentHeader) payload() {}

func decodeMfhd(_ *decodeState, b *Box, r *bits.Reader) error {
	m := &MovieFragmentHeader{SequenceNumber: r.Uint32()}
	if err := r.Err(); err != nil {
		return err
	}
	b.Payload = m
	return nil
}

// tfhd flags.
const (
	TfhdBaseDataOffsetPresent         = 0x000001
	TfhdSampleDescriptionIndexPresent = 0x000002
	TfhdDefaultSampleDurationPresent  = 0x000008
	TfhdDefaultSampleSizePresent      = 0x000010
	TfhdDefaultSampleFlagsPresent     = 0x000020
	TfhdDurationIsEmpty               = 0x010000
	TfhdDefaultBaseIsMoof             = 0x020000
)

// TrackFragmentHeader is the payload of a tfhd box. Optional fields are
// valid only when the matching flag is set on the box.
type TrackFragmentHeader struct {
	TrackID                uint32
	BaseDataOffset         uint64
	SampleDescriptionIndex uint32
	DefaultSampleDuration  uint32
	DefaultSampleSize      uint32
	DefaultSampleFlags     SampleFlags

	DurationIsEmpty   bool
	DefaultBaseIsMoof bool
}

func (*TrackFragmentHeader) payload() {}

func decodeTfhd(_ *decodeState, b *Box, r *bits.Reader) error {
	t := &TrackFragmentHeader{
		TrackID:           r.Uint32(),
		DurationIsEmpty:   b.Flags&TfhdDurationIsEmpty != 0,
		DefaultBaseIsMoof: b.Flags&TfhdDefaultBaseIsMoof != 0,
	}
	if b.Flags&TfhdBaseDataOffsetPresent != 0 {
		t.BaseDataOffset = r.Uint64()
	}
	if b.Flags&TfhdSampleDescriptionIndexPresent != 0 {
		t.SampleDescriptionIndex = r.Uint32()
	}
	if b.Flags&TfhdDefaultSampleDurationPresent != 0 {
		t.DefaultSampleDuration = r.Uint32()
	}
	if b.Flags&TfhdDefaultSampleSizePresent != 0 {
		t.DefaultSampleSize = r.Uint32()
	}
	if b.Flags&TfhdDefaultSampleFlagsPresent != 0 {
		t.DefaultSampleFlags = SampleFlags(r.Uint32())
	}
	if err := r.Err(); err != nil {
		return err
	}
	b.Payload = t
	return nil
}

// trun flags.
const (
	TrunDataOffsetPresent                  = 0x000001
	TrunFirstSampleFlagsPresent            = 0x000004
	TrunSampleDurationPresent              = 0x000100
	TrunSampleSizePresent                  = 0x000200
	TrunSampleFlagsPresent                 = 0x000400
	TrunSampleCompositionTimeOffsetPresent = 0x000800
)

// TrunSample holds the per-sample fields of a trun box. A field is zero when
// its flag is not set.
type TrunSample struct {
	Duration              uint32
	Size                  uint32
	Flags                 SampleFlags
	CompositionTimeOffset int64
}

// TrackRun is the payload of a trun box.
type TrackRun struct {
	SampleCount      uint32
	DataOffset       int32
	FirstSampleFlags SampleFlags
	Samples          []TrunSample
}

func (*TrackRun) payload() {}

// Duration returns the sum of the per-sample durations.
func (t *TrackRun) Duration() uint64 {
	return lo.SumBy(t.Samples, func(s TrunSample) uint64 { return uint64(s.Duration) })
}

func decodeTrun(_ *decodeState, b *Box, r *bits.Reader) error {
	t := &TrackRun{SampleCount: r.Uint32()}
	if b.Flags&TrunDataOffsetPresent != 0 {
		t.DataOffset = r.Int32()
	}
	if b.Flags&TrunFirstSampleFlagsPresent != 0 {
		t.FirstSampleFlags = SampleFlags(r.Uint32())
	}

	entrySize := 0
	for _, f := range []uint32{
		TrunSampleDurationPresent, TrunSampleSizePresent,
		TrunSampleFlagsPresent, TrunSampleCompositionTimeOffsetPresent,
	} {
		if b.Flags&f != 0 {
			entrySize += 4
		}
	}
	// without per-sample fields there is nothing to record per sample
	if entrySize == 0 {
		if err := r.Err(); err != nil {
			return err
		}
		b.Payload = t
		return nil
	}

	t.Samples = make([]TrunSample, 0, capHint(t.SampleCount, r, entrySize))
	for i := uint32(0); i < t.SampleCount && r.Err() == nil; i++ {
		var s TrunSample
		if b.Flags&TrunSampleDurationPresent != 0 {
			s.Duration = r.Uint32()
		}
		if b.Flags&TrunSampleSizePresent != 0 {
			s.Size = r.Uint32()
		}
		if b.Flags&TrunSampleFlagsPresent != 0 {
			s.Flags = SampleFlags(r.Uint32())
		}
		if b.Flags&TrunSampleCompositionTimeOffsetPresent != 0 {
			if b.Version == 0 {
				s.CompositionTimeOffset = int64(r.Uint32())
			} else {
				s.CompositionTimeOffset = int64(r.Int32())
			}
		}
		t.Samples = append(t.Samples, s)
	}
	if err := r.Err(); err != nil {
		return err
	}
	b.Payload = t
	return nil
}

// TrackFragmentDecodeTime is the payload of a tfdt box. Version 1 stores a
// signed 64-bit value.
type TrackFragmentDecodeTime struct {
	BaseMediaDecodeTime int64
}

func (*TrackFragmentDecodeTime) payload() {}

func decodeTfdt(_ *decodeState, b *Box, r *bits.Reader) error {
	t := &TrackFragmentDecodeTime{}
	if b.Version == 1 {
		t.BaseMediaDecodeTime = r.Int64()
	} else {
		t.BaseMediaDecodeTime = int64(r.Uint32())
	}
	if err := r.Err(); err != nil {
		return err
	}
	b.Payload = t
	return nil
}

// SegmentReference is one reference of a sidx box.
type SegmentReference struct {
	ReferenceType      bool // true when the reference points to another sidx
	ReferencedSize     uint32
	SubsegmentDuration uint32
	StartsWithSAP      bool
	SAPType            uint8
	SAPDeltaTime       uint32
}

// SegmentIndex is the payload of a sidx box.
type SegmentIndex struct {
	ReferenceID              uint32
	TimeScale                uint32
	EarliestPresentationTime uint64
	FirstOffset              uint64
	References               []SegmentReference
}

func (*SegmentIndex) payload() {}

// TotalDuration returns the sum of the subsegment durations.
func (s *SegmentIndex) TotalDuration() uint64 {
	return lo.SumBy(s.References, func(ref SegmentReference) uint64 {
		return uint64(ref.SubsegmentDuration)
	})
}

func decodeSidx(_ *decodeState, b *Box, r *bits.Reader) error {
	s := &SegmentIndex{
		ReferenceID: r.Uint32(),
		TimeScale:   r.Uint32(),
	}
	if b.Version == 0 {
		s.EarliestPresentationTime = uint64(r.Uint32())
		s.FirstOffset = uint64(r.Uint32())
	} else {
		s.EarliestPresentationTime = r.Uint64()
		s.FirstOffset = r.Uint64()
	}
	r.Skip(2)
	count := r.Uint16()
	s.References = make([]SegmentReference, 0, capHint(uint32(count), r, 12))
	for i := uint16(0); i < count && r.Err() == nil; i++ {
		v := r.Uint32()
		ref := SegmentReference{
			ReferenceType:      v&0x80000000 != 0,
			ReferencedSize:     v & 0x7fffffff,
			SubsegmentDuration: r.Uint32(),
		}
		v = r.Uint32()
		ref.StartsWithSAP = v&0x80000000 != 0
		ref.SAPType = uint8(v>>28) & 0x7
		ref.SAPDeltaTime = v & 0x0fffffff
		s.References = append(s.References, ref)
	}
	if err := r.Err(); err != nil {
		return err
	}
	b.Payload = s
	return nil
}
