package bmff

import (
	"fmt"

	"github.com/tetsuo/bmff/bits"
)

// SampleDescription is the payload of an stsd box. The entries are its
// children.
type SampleDescription struct {
	EntryCount  uint32
	HandlerType string
}

func (*SampleDescription) payload() {}

// decodeStsd decodes the sample entries. It needs the stbl, minf, mdia
// ancestor chain and an hdlr box inside that mdia, which picks the generic
// entry layout for unregistered entry types.
func decodeStsd(s *decodeState, b *Box, r *bits.Reader) error {
	stbl := s.tree.Parent(b)
	minf := s.tree.Parent(stbl)
	mdia := s.tree.Parent(minf)
	if stbl == nil || stbl.Type != TypeStbl ||
		minf == nil || minf.Type != TypeMinf ||
		mdia == nil || mdia.Type != TypeMdia {
		return fmt.Errorf("stsd not inside stbl/minf/mdia: %w", ErrContextMismatch)
	}
	hdlr, ok := PayloadAs[*HandlerReference](mdia.FindFirst(TypeHdlr))
	if !ok {
		return fmt.Errorf("stsd without handler reference: %w", ErrContextMismatch)
	}

	d := &SampleDescription{EntryCount: r.Uint32(), HandlerType: hdlr.HandlerType}
	if err := r.Err(); err != nil {
		return err
	}
	b.Payload = d

	ptr := payloadOffset(b, r)
	end := b.End()
	for i := uint32(0); i < d.EntryCount; i++ {
		h, err := readHeader(s.buf, ptr, end)
		if err != nil {
			s.log.Debug("truncated sample entries", "offset", ptr, "err", err)
			break
		}
		var def *boxDef
		if _, ok := registry[h.typ]; !ok {
			if def = sampleEntryDef(hdlr.HandlerType); def == nil {
				s.log.Debug("no sample entry layout for handler", "handler", hdlr.HandlerType)
				break
			}
		}
		entry, err := s.decodeBox(ptr, end, b.Index, def)
		if err != nil {
			s.log.Debug("truncated sample entries", "offset", ptr, "err", err)
			break
		}
		b.Children = append(b.Children, entry)
		ptr = entry.End()
	}
	return nil
}

// sampleEntryDef returns the generic sample entry layout for a handler type.
func sampleEntryDef(handler string) *boxDef {
	switch handler {
	case HandlerSound:
		return &boxDef{name: "Audio Sample Entry", decode: decodeAudioEntry}
	case HandlerVideo:
		return &boxDef{name: "Visual Sample Entry", decode: decodeVisualEntry}
	case HandlerHint:
		return &boxDef{name: "Hint Sample Entry", decode: decodeOtherEntry}
	case HandlerMetadata:
		return &boxDef{name: "Metadata Sample Entry", decode: decodeOtherEntry}
	}
	return nil
}

// readSampleEntry reads the 6 reserved bytes and data_reference_index that
// start every sample entry.
func readSampleEntry(r *bits.Reader) uint16 {
	r.Skip(6)
	return r.Uint16()
}

// VisualSampleEntry is the payload of a video sample entry. Codec
// configuration boxes (avcC, hvcC, av1C, colr, clap, sinf...) are children.
type VisualSampleEntry struct {
	DataReferenceIndex uint16
	Width              uint16
	Height             uint16
	HorizResolution    float64
	VertResolution     float64
	FrameCount         uint16
	CompressorName     string
	Depth              uint16
}

func (*VisualSampleEntry) payload() {}

func decodeVisualEntry(s *decodeState, b *Box, r *bits.Reader) error {
	v := &VisualSampleEntry{DataReferenceIndex: readSampleEntry(r)}
	r.Skip(16)
	v.Width = r.Uint16()
	v.Height = r.Uint16()
	v.HorizResolution = r.Fixed16()
	v.VertResolution = r.Fixed16()
	r.Skip(4)
	v.FrameCount = r.Uint16()
	name := r.Bytes(32)
	v.Depth = r.Uint16()
	r.Skip(2)
	if err := r.Err(); err != nil {
		return err
	}
	n := min(int(name[0]), 31)
	v.CompressorName = string(name[1 : 1+n])
	b.Payload = v
	s.decodeChildren(b, payloadOffset(b, r), b.End())
	return nil
}

// AudioSampleEntry is the payload of an audio sample entry such as mp4a or
// enca. The esds, sinf and other boxes that follow are children.
type AudioSampleEntry struct {
	DataReferenceIndex uint16
	SoundVersion       uint16 // QuickTime sound description version
	ChannelCount       uint16
	SampleSize         uint16
	SampleRate         uint32 // integer part of the 16.16 rate
}

func (*AudioSampleEntry) payload() {}

func decodeAudioEntry(s *decodeState, b *Box, r *bits.Reader) error {
	a := &AudioSampleEntry{DataReferenceIndex: readSampleEntry(r)}
	a.SoundVersion = r.Uint16()
	r.Skip(6)
	a.ChannelCount = r.Uint16()
	a.SampleSize = r.Uint16()
	r.Skip(4)
	a.SampleRate = r.Uint32() >> 16
	switch a.SoundVersion {
	case 1:
		r.Skip(16)
	case 2:
		r.Skip(36)
	}
	if err := r.Err(); err != nil {
		return err
	}
	b.Payload = a
	s.decodeChildren(b, payloadOffset(b, r), b.End())
	return nil
}

// GenericSampleEntry is the payload of hint and metadata sample entries.
type GenericSampleEntry struct {
	DataReferenceIndex uint16
	Data               []byte
}

func (*GenericSampleEntry) payload() {}

func decodeOtherEntry(_ *decodeState, b *Box, r *bits.Reader) error {
	g := &GenericSampleEntry{DataReferenceIndex: readSampleEntry(r)}
	g.Data = r.Rest()
	if err := r.Err(); err != nil {
		return err
	}
	b.Payload = g
	return nil
}
