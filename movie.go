package bmff

import (
	"strings"
	"time"

	"github.com/tetsuo/bmff/bits"
)

// macEpochOffset is the number of seconds between 1904-01-01 and 1970-01-01.
const macEpochOffset = 2082844800

// macTime converts seconds since 1904-01-01 UTC to a time.Time.
func macTime(secs uint64) time.Time {
	return time.Unix(int64(secs)-macEpochOffset, 0).UTC()
}

// Matrix is a 3x3 transformation matrix stored row by row as a, b, u, c, d,
// v, x, y, w. The u, v and w columns are 2.30 fixed point, the rest 16.16.
type Matrix [9]float64

func readMatrix(r *bits.Reader) Matrix {
	var m Matrix
	for i := range m {
		if i%3 == 2 {
			m[i] = r.Fixed30()
		} else {
			m[i] = r.Fixed16()
		}
	}
	return m
}

// capHint bounds a declared entry count by what the remaining bytes could hold.
func capHint(count uint32, r *bits.Reader, entrySize int) int {
	n := r.Remaining() / entrySize
	if int64(count) < int64(n) {
		return int(count)
	}
	return n
}

// FileType is the payload of ftyp and styp boxes.
type FileType struct {
	MajorBrand       string
	MinorVersion     uint32
	CompatibleBrands []string
}

func (*FileType) payload() {}

func decodeFtyp(_ *decodeState, b *Box, r *bits.Reader) error {
	f := &FileType{
		MajorBrand:   r.String(4),
		MinorVersion: r.Uint32(),
	}
	for r.Remaining() >= 4 {
		f.CompatibleBrands = append(f.CompatibleBrands, r.String(4))
	}
	if err := r.Err(); err != nil {
		return err
	}
	b.Payload = f
	return nil
}

// MovieHeader is the payload of an mvhd box.
type MovieHeader struct {
	CreationTime      time.Time
	ModificationTime  time.Time
	TimeScale         uint32
	Duration          uint64
	PreferredRate     float64
	PreferredVolume   float64
	Matrix            Matrix
	PreviewTime       uint32
	PreviewDuration   uint32
	PosterTime        uint32
	SelectionTime     uint32
	SelectionDuration uint32
	CurrentTime       uint32
	NextTrackID       uint32
}

func (*MovieHeader) payload() {}

func decodeMvhd(_ *decodeState, b *Box, r *bits.Reader) error {
	m := &MovieHeader{}
	if b.Version == 1 {
		m.CreationTime = macTime(r.Uint64())
		m.ModificationTime = macTime(r.Uint64())
		m.TimeScale = r.Uint32()
		m.Duration = r.Uint64()
	} else {
		m.CreationTime = macTime(uint64(r.Uint32()))
		m.ModificationTime = macTime(uint64(r.Uint32()))
		m.TimeScale = r.Uint32()
		m.Duration = uint64(r.Uint32())
	}
	m.PreferredRate = r.Fixed16()
	m.PreferredVolume = r.Fixed8()
	r.Skip(10)
	m.Matrix = readMatrix(r)
	m.PreviewTime = r.Uint32()
	m.PreviewDuration = r.Uint32()
	m.PosterTime = r.Uint32()
	m.SelectionTime = r.Uint32()
	m.SelectionDuration = r.Uint32()
	m.CurrentTime = r.Uint32()
	m.NextTrackID = r.Uint32()
	if err := r.Err(); err != nil {
		return err
	}
	b.Payload = m
	return nil
}

// TrackHeader is the payload of a tkhd box.
type TrackHeader struct {
	CreationTime     time.Time
	ModificationTime time.Time
	TrackID          uint32
	Duration         uint64
	Layer            int16
	AlternateGroup   int16
	Volume           float64
	Matrix           Matrix
	Width            float64
	Height           float64
}

func (*TrackHeader) payload() {}

func decodeTkhd(_ *decodeState, b *Box, r *bits.Reader) error {
	t := &TrackHeader{}
	if b.Version == 1 {
		t.CreationTime = macTime(r.Uint64())
		t.ModificationTime = macTime(r.Uint64())
		t.TrackID = r.Uint32()
		r.Skip(4)
		t.Duration = r.Uint64()
	} else {
		t.CreationTime = macTime(uint64(r.Uint32()))
		t.ModificationTime = macTime(uint64(r.Uint32()))
		t.TrackID = r.Uint32()
		r.Skip(4)
		t.Duration = uint64(r.Uint32())
	}
	r.Skip(8)
	t.Layer = r.Int16()
	t.AlternateGroup = r.Int16()
	t.Volume = r.Fixed8()
	r.Skip(2)
	t.Matrix = readMatrix(r)
	t.Width = r.Fixed16()
	t.Height = r.Fixed16()
	if err := r.Err(); err != nil {
		return err
	}
	b.Payload = t
	return nil
}

// MediaHeader is the payload of an mdhd box.
type MediaHeader struct {
	CreationTime     time.Time
	ModificationTime time.Time
	TimeScale        uint32
	Duration         uint64
	Language         string // ISO-639-2/T code
	Quality          uint16
}

func (*MediaHeader) payload() {}

func decodeMdhd(_ *decodeState, b *Box, r *bits.Reader) error {
	m := &MediaHeader{}
	if b.Version == 1 {
		m.CreationTime = macTime(r.Uint64())
		m.ModificationTime = macTime(r.Uint64())
		m.TimeScale = r.Uint32()
		m.Duration = r.Uint64()
	} else {
		m.CreationTime = macTime(uint64(r.Uint32()))
		m.ModificationTime = macTime(uint64(r.Uint32()))
		m.TimeScale = r.Uint32()
		m.Duration = uint64(r.Uint32())
	}
	m.Language = decodeLanguage(r.Uint16())
	m.Quality = r.Uint16()
	if err := r.Err(); err != nil {
		return err
	}
	b.Payload = m
	return nil
}

// decodeLanguage unpacks three 5-bit letters offset by 0x60.
func decodeLanguage(v uint16) string {
	if v == 0 {
		return ""
	}
	var sb strings.Builder
	for shift := 10; shift >= 0; shift -= 5 {
		sb.WriteByte(byte((v>>uint(shift))&0x1f) + 0x60)
	}
	return sb.String()
}

// EditListEntry is one edit of an elst box.
type EditListEntry struct {
	SegmentDuration   uint64
	MediaTime         int64
	MediaRateInteger  int16
	MediaRateFraction int16
}

// EditList is the payload of an elst box.
type EditList struct {
	Entries []EditListEntry
}

func (*EditList) payload() {}

func decodeElst(_ *decodeState, b *Box, r *bits.Reader) error {
	count := r.Uint32()
	entrySize := 12
	if b.Version == 1 {
		entrySize = 20
	}
	e := &EditList{Entries: make([]EditListEntry, 0, capHint(count, r, entrySize))}
	for i := uint32(0); i < count && r.Err() == nil; i++ {
		var ent EditListEntry
		if b.Version == 1 {
			ent.SegmentDuration = r.Uint64()
			ent.MediaTime = r.Int64()
		} else {
			ent.SegmentDuration = uint64(r.Uint32())
			ent.MediaTime = int64(r.Int32())
		}
		ent.MediaRateInteger = r.Int16()
		ent.MediaRateFraction = r.Int16()
		e.Entries = append(e.Entries, ent)
	}
	if err := r.Err(); err != nil {
		return err
	}
	b.Payload = e
	return nil
}

// VideoMediaHeader is the payload of a vmhd box.
type VideoMediaHeader struct {
	GraphicsMode int16
	OpColor      [3]int16
}

func (*VideoMediaHeader) payload() {}

func decodeVmhd(_ *decodeState, b *Box, r *bits.Reader) error {
	v := &VideoMediaHeader{GraphicsMode: r.Int16()}
	for i := range v.OpColor {
		v.OpColor[i] = r.Int16()
	}
	if err := r.Err(); err != nil {
		return err
	}
	b.Payload = v
	return nil
}

// SoundMediaHeader is the payload of an smhd box.
type SoundMediaHeader struct {
	Balance float64
}

func (*SoundMediaHeader) payload() {}

func decodeSmhd(_ *decodeState, b *Box, r *bits.Reader) error {
	s := &SoundMediaHeader{Balance: r.Fixed8()}
	r.Skip(2)
	if err := r.Err(); err != nil {
		return err
	}
	b.Payload = s
	return nil
}

// Handler types found in hdlr boxes.
const (
	HandlerVideo    = "vide"
	HandlerSound    = "soun"
	HandlerHint     = "hint"
	HandlerMetadata = "meta"
)

// HandlerReference is the payload of an hdlr box.
type HandlerReference struct {
	HandlerType string
	Name        string
}

func (*HandlerReference) payload() {}

func decodeHdlr(_ *decodeState, b *Box, r *bits.Reader) error {
	h := &HandlerReference{}
	r.Skip(4)
	h.HandlerType = r.String(4)
	r.Skip(12)
	if err := r.Err(); err != nil {
		return err
	}
	h.Name = r.CString()
	b.Payload = h
	return nil
}

// DataReference is the payload of a dref box. The entries are its children.
type DataReference struct {
	EntryCount uint32
}

func (*DataReference) payload() {}

func decodeDref(s *decodeState, b *Box, r *bits.Reader) error {
	d := &DataReference{EntryCount: r.Uint32()}
	if err := r.Err(); err != nil {
		return err
	}
	b.Payload = d
	limit := int(min(d.EntryCount, uint32(len(b.Data)/8)))
	s.decodeChildrenN(b, payloadOffset(b, r), b.End(), limit)
	return nil
}

// DataEntry is the payload of url and urn boxes. Flag 0x1 means the media
// data is in the same file and no location follows.
type DataEntry struct {
	Name     string // urn only
	Location string
}

func (*DataEntry) payload() {}

func decodeDataEntry(_ *decodeState, b *Box, r *bits.Reader) error {
	d := &DataEntry{}
	rest := r.Rest()
	if b.Type == TypeURN {
		name, loc, _ := strings.Cut(string(rest), "\x00")
		d.Name = name
		d.Location = strings.TrimRight(loc, "\x00")
	} else {
		d.Location = strings.TrimRight(string(rest), "\x00")
	}
	b.Payload = d
	return nil
}

// WindowLocation is the payload of a QuickTime WLOC box.
type WindowLocation struct {
	X, Y int16
}

func (*WindowLocation) payload() {}

func decodeWloc(_ *decodeState, b *Box, r *bits.Reader) error {
	w := &WindowLocation{X: r.Int16(), Y: r.Int16()}
	if err := r.Err(); err != nil {
		return err
	}
	b.Payload = w
	return nil
}

// MovieExtendsHeader is the payload of an mehd box.
type MovieExtendsHeader struct {
	FragmentDuration uint64
}

func (*MovieExtendsHeader) payload() {}

func decodeMehd(_ *decodeState, b *Box, r *bits.Reader) error {
	m := &MovieExtendsHeader{}
	if b.Version == 1 {
		m.FragmentDuration = r.Uint64()
	} else {
		m.FragmentDuration = uint64(r.Uint32())
	}
	if err := r.Err(); err != nil {
		return err
	}
	b.Payload = m
	return nil
}

// TrackExtends is the payload of a trex box.
type TrackExtends struct {
	TrackID                       uint32
	DefaultSampleDescriptionIndex uint32
	DefaultSampleDuration         uint32
	DefaultSampleSize             uint32
	DefaultSampleFlags            SampleFlags
}

func (*TrackExtends) payload() {}

func decodeTrex(_ *decodeState, b *Box, r *bits.Reader) error {
	t := &TrackExtends{
		TrackID:                       r.Uint32(),
		DefaultSampleDescriptionIndex: r.Uint32(),
		DefaultSampleDuration:         r.Uint32(),
		DefaultSampleSize:             r.Uint32(),
		DefaultSampleFlags:            SampleFlags(r.Uint32()),
	}
	if err := r.Err(); err != nil {
		return err
	}
	b.Payload = t
	return nil
}

// CleanAperture is the payload of a clap box. Each value is a
// numerator/denominator pair.
type CleanAperture struct {
	WidthN, WidthD       uint32
	HeightN, HeightD     uint32
	HorizOffN, HorizOffD uint32
	VertOffN, VertOffD   uint32
}

func (*CleanAperture) payload() {}

func decodeClap(_ *decodeState, b *Box, r *bits.Reader) error {
	c := &CleanAperture{
		WidthN: r.Uint32(), WidthD: r.Uint32(),
		HeightN: r.Uint32(), HeightD: r.Uint32(),
		HorizOffN: r.Uint32(), HorizOffD: r.Uint32(),
		VertOffN: r.Uint32(), VertOffD: r.Uint32(),
	}
	if err := r.Err(); err != nil {
		return err
	}
	b.Payload = c
	return nil
}

// Color is the payload of a colr box. The nclx fields are set only for
// colour type "nclx"; other types keep the raw profile in Profile.
type Color struct {
	ColorType               string
	ColorPrimaries          uint16
	TransferCharacteristics uint16
	MatrixCoefficients      uint16
	FullRange               bool
	Profile                 []byte
}

func (*Color) payload() {}

func decodeColr(_ *decodeState, b *Box, r *bits.Reader) error {
	c := &Color{ColorType: r.String(4)}
	if c.ColorType == "nclx" {
		c.ColorPrimaries = r.Uint16()
		c.TransferCharacteristics = r.Uint16()
		c.MatrixCoefficients = r.Uint16()
		c.FullRange = r.Uint8()&0x80 != 0
	} else {
		c.Profile = r.Rest()
	}
	if err := r.Err(); err != nil {
		return err
	}
	b.Payload = c
	return nil
}

// OriginalFormat is the payload of a frma box.
type OriginalFormat struct {
	DataFormat BoxType
}

func (*OriginalFormat) payload() {}

func decodeFrma(_ *decodeState, b *Box, r *bits.Reader) error {
	f := &OriginalFormat{}
	copy(f.DataFormat[:], r.Bytes(4))
	if err := r.Err(); err != nil {
		return err
	}
	b.Payload = f
	return nil
}
