package track

import (
	"errors"
	"fmt"
	"strings"

	"github.com/samber/lo"

	"github.com/tetsuo/bmff"
)

// TrackKind distinguishes video and audio tracks.
type TrackKind int

const (
	TrackOther TrackKind = iota
	TrackVideo
	TrackAudio
)

func (k TrackKind) String() string {
	switch k {
	case TrackVideo:
		return "video"
	case TrackAudio:
		return "audio"
	}
	return "other"
}

// Track holds metadata for one trak box of a decoded tree.
type Track struct {
	ID        uint32
	Kind      TrackKind
	Handler   string
	TimeScale uint32
	Duration  uint64
	Language  string

	Width        uint16
	Height       uint16
	ChannelCount uint16
	SampleRate   uint32

	// Encrypted is set for encv/enca entries. Scheme is the schm scheme type.
	Encrypted bool
	Scheme    string

	Samples       []Sample
	SampleDescIdx uint32

	codec string
	trak  *bmff.Box
	entry *bmff.Box
}

// Codec returns the MIME codec string (e.g. "avc1.64001e", "mp4a.40.2").
func (t *Track) Codec() string { return t.codec }

// Box returns the trak box the track was read from.
func (t *Track) Box() *bmff.Box { return t.trak }

// SampleEntry returns the first sample entry of the track's stsd.
func (t *Track) SampleEntry() *bmff.Box { return t.entry }

// TimeForIndex returns the decode time of sample i from the track's stts,
// or 0 when the track has none.
func (t *Track) TimeForIndex(i uint64) uint64 {
	if t.trak == nil {
		return 0
	}
	stts, ok := bmff.PayloadAs[*bmff.TimeToSample](t.trak.FindFirst(bmff.TypeStts))
	if !ok {
		return 0
	}
	return stts.TimeForIndex(i)
}

// FindTrack returns the track with the given ID, or nil.
func FindTrack(tracks []*Track, id uint32) *Track {
	for _, t := range tracks {
		if t.ID == id {
			return t
		}
	}
	return nil
}

// Sample represents a single media sample.
type Sample struct {
	TrackID            uint32
	Offset             int64
	Size               uint32
	Duration           uint32
	DTS                int64
	PresentationOffset int64
	IsSync             bool
}

// PTS returns the presentation timestamp.
func (s Sample) PTS() int64 {
	return s.DTS + s.PresentationOffset
}

// TrackSampleStats holds aggregated stats for samples belonging to one track.
type TrackSampleStats struct {
	TrackID     uint32
	TimeScale   uint32
	Duration    uint64
	EarliestPTS int64
	SampleCount int
}

// CollectTrackSampleStats aggregates sample count, duration, and earliest PTS
// per track. The returned slice contains only tracks that have at least one sample.
func CollectTrackSampleStats(dst []TrackSampleStats, tracks []*Track, samples []Sample) []TrackSampleStats {
	if cap(dst) < len(tracks) {
		dst = make([]TrackSampleStats, len(tracks))
	} else {
		dst = dst[:len(tracks)]
	}

	for i, t := range tracks {
		dst[i] = TrackSampleStats{
			TrackID:     t.ID,
			TimeScale:   t.TimeScale,
			EarliestPTS: -1,
		}
	}

	for i := range samples {
		s := &samples[i]
		for j := range dst {
			if dst[j].TrackID != s.TrackID {
				continue
			}
			st := &dst[j]
			st.SampleCount++
			st.Duration += uint64(s.Duration)
			pts := s.PTS()
			if st.EarliestPTS < 0 || pts < st.EarliestPTS {
				st.EarliestPTS = pts
			}
			break
		}
	}

	out := dst[:0]
	for i := range dst {
		if dst[i].SampleCount > 0 {
			out = append(out, dst[i])
		}
	}
	return out
}

var (
	ErrMoovNotFound = errors.New("moov box not found in tree")
	ErrInvalidTrack = errors.New("invalid track data")
	ErrCorruptData  = errors.New("corrupt data")
)

// FromTree returns the tracks of the tree's moov box with their sample
// tables resolved. The movie duration (from mvhd) is also returned.
//
// Tracks without a track ID or a sample entry are skipped, as are tracks
// whose sample tables are missing or inconsistent.
func FromTree(tree *bmff.Tree) ([]*Track, uint64, error) {
	moov := lo.FindOrElse(tree.Boxes, nil, func(b *bmff.Box) bool { return b.Type == bmff.TypeMoov })
	if moov == nil {
		return nil, 0, ErrMoovNotFound
	}

	var duration uint64
	if mvhd, ok := bmff.PayloadAs[*bmff.MovieHeader](moov.Child(bmff.TypeMvhd)); ok {
		duration = mvhd.Duration
	}

	var valid []*Track
	for _, trak := range moov.Children {
		if trak.Type != bmff.TypeTrak {
			continue
		}
		t := parseTrak(trak)
		if t == nil {
			continue
		}
		if err := t.parseSamples(); err != nil {
			continue
		}
		valid = append(valid, t)
	}
	return valid, duration, nil
}

func parseTrak(trak *bmff.Box) *Track {
	t := &Track{trak: trak}
	if tkhd, ok := bmff.PayloadAs[*bmff.TrackHeader](trak.Child(bmff.TypeTkhd)); ok {
		t.ID = tkhd.TrackID
		t.Width = uint16(tkhd.Width)
		t.Height = uint16(tkhd.Height)
	}

	mdia := trak.Child(bmff.TypeMdia)
	if mdia == nil {
		return nil
	}
	if mdhd, ok := bmff.PayloadAs[*bmff.MediaHeader](mdia.Child(bmff.TypeMdhd)); ok {
		t.TimeScale = mdhd.TimeScale
		t.Duration = mdhd.Duration
		t.Language = mdhd.Language
	}
	if hdlr, ok := bmff.PayloadAs[*bmff.HandlerReference](mdia.Child(bmff.TypeHdlr)); ok {
		t.Handler = hdlr.HandlerType
		switch hdlr.HandlerType {
		case bmff.HandlerVideo:
			t.Kind = TrackVideo
		case bmff.HandlerSound:
			t.Kind = TrackAudio
		}
	}

	stsd := mdia.FindFirst(bmff.TypeStsd)
	if stsd == nil || len(stsd.Children) == 0 {
		return nil
	}
	t.entry = stsd.Children[0]
	t.parseSampleEntry(t.entry)

	if t.ID == 0 || t.codec == "" {
		return nil
	}
	return t
}

func (t *Track) parseSampleEntry(entry *bmff.Box) {
	format := entry.Type.String()
	if sinf := entry.Child(bmff.TypeSinf); sinf != nil {
		if frma, ok := bmff.PayloadAs[*bmff.OriginalFormat](sinf.Child(bmff.TypeFrma)); ok {
			format = frma.DataFormat.String()
		}
		if schm, ok := bmff.PayloadAs[*bmff.SchemeType](sinf.Child(bmff.TypeSchm)); ok {
			t.Scheme = schm.SchemeType
		}
	}
	t.Encrypted = entry.Type == bmff.TypeEncv || entry.Type == bmff.TypeEnca

	switch p := entry.Payload.(type) {
	case *bmff.VisualSampleEntry:
		t.Width = p.Width
		t.Height = p.Height
	case *bmff.AudioSampleEntry:
		t.ChannelCount = p.ChannelCount
		t.SampleRate = p.SampleRate
	}

	t.codec = format
	for _, c := range entry.Children {
		switch p := c.Payload.(type) {
		case *bmff.AVCConfig:
			t.codec = format + strings.TrimPrefix(p.Codec(), "avc1")
			return
		case *bmff.HEVCConfig:
			t.codec = format + strings.TrimPrefix(p.Codec(), "hvc1")
			return
		case *bmff.AV1Config:
			t.codec = p.Codec()
			return
		case *bmff.ESDescriptorBox:
			if s := p.Codec(); s != "" {
				t.codec = format + strings.TrimPrefix(s, "mp4a")
			}
			return
		}
	}
}

// parseSamples resolves the sample tables of the track's stbl into
// t.Samples.
func (t *Track) parseSamples() error {
	if t.Samples != nil {
		return nil
	}
	stbl := t.trak.FindFirst(bmff.TypeStbl)
	if stbl == nil {
		return fmt.Errorf("track %d: %w: missing stbl", t.ID, ErrInvalidTrack)
	}

	stsz, okStsz := bmff.PayloadAs[*bmff.SampleSize](stbl.Child(bmff.TypeStsz))
	stts, okStts := bmff.PayloadAs[*bmff.TimeToSample](stbl.Child(bmff.TypeStts))
	stsc, okStsc := bmff.PayloadAs[*bmff.SampleToChunk](stbl.Child(bmff.TypeStsc))
	if !okStsz || !okStts || !okStsc {
		return fmt.Errorf("track %d: %w: missing required sample table data (stsz/stts/stsc)", t.ID, ErrInvalidTrack)
	}
	co, ok := bmff.PayloadAs[*bmff.ChunkOffset](stbl.Child(bmff.TypeStco))
	if !ok {
		co, ok = bmff.PayloadAs[*bmff.ChunkOffset](stbl.Child(bmff.TypeCo64))
	}
	if !ok {
		return fmt.Errorf("track %d: %w: missing chunk offset data (stco/co64)", t.ID, ErrInvalidTrack)
	}
	ctts, hasCtts := bmff.PayloadAs[*bmff.CompositionOffset](stbl.Child(bmff.TypeCtts))
	stss, hasSync := bmff.PayloadAs[*bmff.SyncSample](stbl.Child(bmff.TypeStss))

	// a fixed-size stsz carries no entries, so its count is bounded by stts
	numSamples := int(min(uint64(stsz.SampleCount), stts.SampleCount()))
	if numSamples == 0 {
		t.Samples = []Sample{}
		return nil
	}
	if len(stsc.Entries) == 0 {
		return fmt.Errorf("track %d: %w: empty stsc table", t.ID, ErrInvalidTrack)
	}

	samples := make([]Sample, 0, numSamples)

	sttsIdx, sttsLeft := 0, stts.Entries[0].SampleCount
	cttsIdx, cttsLeft := 0, uint32(0)
	if hasCtts && len(ctts.Entries) > 0 {
		cttsLeft = ctts.Entries[0].SampleCount
	}

	stscIdx := 0
	chunk := 1
	var sampleInChunk uint32
	var offsetInChunk, dts int64

	for i := range numSamples {
		for sttsLeft == 0 && sttsIdx+1 < len(stts.Entries) {
			sttsIdx++
			sttsLeft = stts.Entries[sttsIdx].SampleCount
		}
		if hasCtts {
			for cttsLeft == 0 && cttsIdx+1 < len(ctts.Entries) {
				cttsIdx++
				cttsLeft = ctts.Entries[cttsIdx].SampleCount
			}
		}
		if chunk > len(co.Offsets) {
			return fmt.Errorf("track %d: %w: chunk %d of sample %d/%d has no offset",
				t.ID, ErrCorruptData, chunk, i, numSamples)
		}

		size := stsz.SizeOf(i)
		s := Sample{
			TrackID:  t.ID,
			Offset:   int64(co.Offsets[chunk-1]) + offsetInChunk,
			Size:     size,
			Duration: stts.Entries[sttsIdx].SampleDelta,
			DTS:      dts,
			IsSync:   !hasSync || stss.IsSync(uint32(i+1)),
		}
		if cttsLeft > 0 {
			s.PresentationOffset = ctts.Entries[cttsIdx].SampleOffset
			cttsLeft--
		}
		samples = append(samples, s)

		dts += int64(s.Duration)
		if sttsLeft > 0 {
			sttsLeft--
		}

		sampleInChunk++
		offsetInChunk += int64(size)
		if sampleInChunk >= stsc.Entries[stscIdx].SamplesPerChunk {
			sampleInChunk = 0
			offsetInChunk = 0
			chunk++
			if stscIdx+1 < len(stsc.Entries) && uint32(chunk) >= stsc.Entries[stscIdx+1].FirstChunk {
				stscIdx++
			}
		}
	}

	t.Samples = samples
	t.SampleDescIdx = stsc.Entries[0].SampleDescriptionIndex
	return nil
}
