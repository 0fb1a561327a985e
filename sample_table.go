package bmff

import (
	"sort"

	"github.com/tetsuo/bmff/bits"
)

// TimeToSampleEntry is a run of SampleCount samples that share SampleDelta.
type TimeToSampleEntry struct {
	SampleCount uint32
	SampleDelta uint32
}

// TimeToSample is the payload of an stts box.
type TimeToSample struct {
	Entries []TimeToSampleEntry
}

func (*TimeToSample) payload() {}

// TimeForIndex returns the decode time of the sample at the zero-based
// index, which is the sum of the durations of all preceding samples. A run
// that straddles index only contributes the samples before it.
func (t *TimeToSample) TimeForIndex(index uint64) uint64 {
	var samples, total uint64
	for _, e := range t.Entries {
		if samples >= index {
			break
		}
		n := min(index-samples, uint64(e.SampleCount))
		samples += n
		total += n * uint64(e.SampleDelta)
	}
	return total
}

// SampleCount returns the number of samples described by all runs.
func (t *TimeToSample) SampleCount() uint64 {
	var n uint64
	for _, e := range t.Entries {
		n += uint64(e.SampleCount)
	}
	return n
}

func decodeStts(_ *decodeState, b *Box, r *bits.Reader) error {
	count := r.Uint32()
	t := &TimeToSample{Entries: make([]TimeToSampleEntry, 0, capHint(count, r, 8))}
	for i := uint32(0); i < count && r.Err() == nil; i++ {
		t.Entries = append(t.Entries, TimeToSampleEntry{
			SampleCount: r.Uint32(),
			SampleDelta: r.Uint32(),
		})
	}
	if err := r.Err(); err != nil {
		return err
	}
	b.Payload = t
	return nil
}

// CompositionOffsetEntry is a run of samples sharing a composition offset.
type CompositionOffsetEntry struct {
	SampleCount  uint32
	SampleOffset int64
}

// CompositionOffset is the payload of a ctts box. Offsets are unsigned in
// version 0 and signed in version 1.
type CompositionOffset struct {
	Entries []CompositionOffsetEntry
}

func (*CompositionOffset) payload() {}

func decodeCtts(_ *decodeState, b *Box, r *bits.Reader) error {
	count := r.Uint32()
	c := &CompositionOffset{Entries: make([]CompositionOffsetEntry, 0, capHint(count, r, 8))}
	for i := uint32(0); i < count && r.Err() == nil; i++ {
		e := CompositionOffsetEntry{SampleCount: r.Uint32()}
		if b.Version == 0 {
			e.SampleOffset = int64(r.Uint32())
		} else {
			e.SampleOffset = int64(r.Int32())
		}
		c.Entries = append(c.Entries, e)
	}
	if err := r.Err(); err != nil {
		return err
	}
	b.Payload = c
	return nil
}

// SampleSize is the payload of an stsz box. When Size is non-zero every
// sample has that size and Entries is empty.
type SampleSize struct {
	Size        uint32
	SampleCount uint32
	Entries     []uint32
}

func (*SampleSize) payload() {}

// SizeOf returns the size of the zero-based sample i.
func (s *SampleSize) SizeOf(i int) uint32 {
	if s.Size != 0 {
		return s.Size
	}
	if i < 0 || i >= len(s.Entries) {
		return 0
	}
	return s.Entries[i]
}

func decodeStsz(_ *decodeState, b *Box, r *bits.Reader) error {
	s := &SampleSize{
		Size:        r.Uint32(),
		SampleCount: r.Uint32(),
	}
	if s.Size == 0 {
		s.Entries = make([]uint32, 0, capHint(s.SampleCount, r, 4))
		for i := uint32(0); i < s.SampleCount && r.Err() == nil; i++ {
			s.Entries = append(s.Entries, r.Uint32())
		}
	}
	if err := r.Err(); err != nil {
		return err
	}
	b.Payload = s
	return nil
}

// SampleToChunkEntry starts a run of chunks that share a layout.
type SampleToChunkEntry struct {
	FirstChunk             uint32
	SamplesPerChunk        uint32
	SampleDescriptionIndex uint32
}

// SampleToChunk is the payload of an stsc box.
type SampleToChunk struct {
	Entries []SampleToChunkEntry
}

func (*SampleToChunk) payload() {}

func decodeStsc(_ *decodeState, b *Box, r *bits.Reader) error {
	count := r.Uint32()
	s := &SampleToChunk{Entries: make([]SampleToChunkEntry, 0, capHint(count, r, 12))}
	for i := uint32(0); i < count && r.Err() == nil; i++ {
		s.Entries = append(s.Entries, SampleToChunkEntry{
			FirstChunk:             r.Uint32(),
			SamplesPerChunk:        r.Uint32(),
			SampleDescriptionIndex: r.Uint32(),
		})
	}
	if err := r.Err(); err != nil {
		return err
	}
	b.Payload = s
	return nil
}

// ChunkOffset is the payload of stco and co64 boxes.
type ChunkOffset struct {
	Offsets []uint64
}

func (*ChunkOffset) payload() {}

func decodeStco(_ *decodeState, b *Box, r *bits.Reader) error {
	count := r.Uint32()
	c := &ChunkOffset{Offsets: make([]uint64, 0, capHint(count, r, 4))}
	for i := uint32(0); i < count && r.Err() == nil; i++ {
		c.Offsets = append(c.Offsets, uint64(r.Uint32()))
	}
	if err := r.Err(); err != nil {
		return err
	}
	b.Payload = c
	return nil
}

func decodeCo64(_ *decodeState, b *Box, r *bits.Reader) error {
	count := r.Uint32()
	c := &ChunkOffset{Offsets: make([]uint64, 0, capHint(count, r, 8))}
	for i := uint32(0); i < count && r.Err() == nil; i++ {
		c.Offsets = append(c.Offsets, r.Uint64())
	}
	if err := r.Err(); err != nil {
		return err
	}
	b.Payload = c
	return nil
}

// SyncSample is the payload of stss and stps boxes: one-based sample
// numbers of random access points, in increasing order.
type SyncSample struct {
	Samples []uint32
}

func (*SyncSample) payload() {}

// IsSync reports whether the one-based sample number n is listed.
func (s *SyncSample) IsSync(n uint32) bool {
	i := sort.Search(len(s.Samples), func(i int) bool { return s.Samples[i] >= n })
	return i < len(s.Samples) && s.Samples[i] == n
}

func decodeSyncSample(_ *decodeState, b *Box, r *bits.Reader) error {
	count := r.Uint32()
	s := &SyncSample{Samples: make([]uint32, 0, capHint(count, r, 4))}
	for i := uint32(0); i < count && r.Err() == nil; i++ {
		s.Samples = append(s.Samples, r.Uint32())
	}
	if err := r.Err(); err != nil {
		return err
	}
	b.Payload = s
	return nil
}

// SampleDependencyEntry holds the four 2-bit dependency fields of one sample.
type SampleDependencyEntry struct {
	IsLeading           uint8
	SampleDependsOn     uint8
	SampleIsDependedOn  uint8
	SampleHasRedundancy uint8
}

// SampleDependency is the payload of an sdtp box, one entry per payload byte.
type SampleDependency struct {
	Entries []SampleDependencyEntry
}

func (*SampleDependency) payload() {}

func decodeSdtp(_ *decodeState, b *Box, r *bits.Reader) error {
	br := bits.NewBitReader(r.Rest())
	s := &SampleDependency{Entries: make([]SampleDependencyEntry, 0, len(b.Data))}
	for !br.AtEnd() {
		s.Entries = append(s.Entries, SampleDependencyEntry{
			IsLeading:           uint8(br.ReadBits(2)),
			SampleDependsOn:     uint8(br.ReadBits(2)),
			SampleIsDependedOn:  uint8(br.ReadBits(2)),
			SampleHasRedundancy: uint8(br.ReadBits(2)),
		})
	}
	if err := br.Err(); err != nil {
		return err
	}
	b.Payload = s
	return nil
}
