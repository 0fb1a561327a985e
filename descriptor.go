package bmff

import (
	"fmt"

	"github.com/tetsuo/bmff/bits"
)

// MPEG-4 descriptor tags found in esds boxes.
const (
	ESDescrTag            = 0x03
	DecoderConfigDescrTag = 0x04
	DecSpecificInfoTag    = 0x05
	SLConfigDescrTag      = 0x06
)

var tagToName = map[uint8]string{
	ESDescrTag:            "ES Descriptor",
	DecoderConfigDescrTag: "Decoder Config Descriptor",
	DecSpecificInfoTag:    "Decoder Specific Info",
	SLConfigDescrTag:      "SL Config Descriptor",
}

// DescriptorPayload is the decoded body of a descriptor.
type DescriptorPayload interface {
	descriptorPayload()
}

// Descriptor is a node of the MPEG-4 descriptor tree carried by an esds box.
type Descriptor struct {
	Tag        uint8
	Size       int // header plus payload
	HeaderSize int
	Payload    DescriptorPayload
	Children   []*Descriptor

	// Data is the payload region. It aliases the decoded buffer.
	Data []byte
}

// Name returns the descriptor's display name.
func (d *Descriptor) Name() string {
	if n, ok := tagToName[d.Tag]; ok {
		return n
	}
	return fmt.Sprintf("Descriptor 0x%02x", d.Tag)
}

// Find returns the first descriptor with the given tag in d's subtree,
// including d itself.
func (d *Descriptor) Find(tag uint8) *Descriptor {
	if d == nil {
		return nil
	}
	if d.Tag == tag {
		return d
	}
	for _, c := range d.Children {
		if r := c.Find(tag); r != nil {
			return r
		}
	}
	return nil
}

// ESDescriptor is the payload of an ES_Descriptor. The optional fields are
// valid only when their flag is set.
type ESDescriptor struct {
	ESID                 uint16
	StreamDependenceFlag bool
	URLFlag              bool
	OCRStreamFlag        bool
	StreamPriority       uint8
	DependsOnESID        uint16
	URL                  string
	OCRESID              uint16
}

func (*ESDescriptor) descriptorPayload() {}

// DecoderConfigDescriptor is the payload of a DecoderConfigDescriptor.
// Trailing descriptors (the decoder specific info) are only decoded when
// SpecificInfoFlag, the last bit of the stream type byte, is set.
type DecoderConfigDescriptor struct {
	ObjectTypeIndication uint8
	StreamType           uint8
	UpStream             bool
	SpecificInfoFlag     bool
	BufferSizeDB         uint32
	MaxBitrate           uint32
	AvgBitrate           uint32
}

func (*DecoderConfigDescriptor) descriptorPayload() {}

// IsMPEG4Audio reports whether the object type and stream type identify
// MPEG-4 audio (ISO/IEC 14496-3).
func (c *DecoderConfigDescriptor) IsMPEG4Audio() bool {
	return c.ObjectTypeIndication == 0x40 && c.StreamType == 0x05
}

// DecoderSpecificInfo is the payload of a DecoderSpecificInfo that is not
// decoded further.
type DecoderSpecificInfo struct {
	Data []byte
}

func (*DecoderSpecificInfo) descriptorPayload() {}

// AudioSpecificConfig is the decoded DecoderSpecificInfo of MPEG-4 audio.
type AudioSpecificConfig struct {
	AudioObjectType        uint8
	SamplingFrequencyIndex uint8
	SamplingFrequency      uint32
	ChannelConfiguration   uint8
}

func (*AudioSpecificConfig) descriptorPayload() {}

var samplingFrequencies = [...]uint32{
	96000, 88200, 64000, 48000, 44100, 32000, 24000,
	22050, 16000, 12000, 11025, 8000, 7350,
}

// decodeAudioSpecificConfig reads the leading fields of an
// AudioSpecificConfig.
func decodeAudioSpecificConfig(buf []byte) (*AudioSpecificConfig, error) {
	br := bits.NewBitReader(buf)
	a := &AudioSpecificConfig{AudioObjectType: uint8(br.ReadBits(5))}
	if a.AudioObjectType == 0x1f {
		a.AudioObjectType = 32 + uint8(br.ReadBits(6))
	}
	a.SamplingFrequencyIndex = uint8(br.ReadBits(4))
	if a.SamplingFrequencyIndex == 0xf {
		a.SamplingFrequency = uint32(br.ReadBits(24))
	} else if int(a.SamplingFrequencyIndex) < len(samplingFrequencies) {
		a.SamplingFrequency = samplingFrequencies[a.SamplingFrequencyIndex]
	}
	a.ChannelConfiguration = uint8(br.ReadBits(4))
	if err := br.Err(); err != nil {
		return nil, fmt.Errorf("audio specific config: %w", err)
	}
	return a, nil
}

// decodeDescriptor decodes the descriptor at the start of buf. cfg is the
// enclosing decoder config, used to pick the DecoderSpecificInfo layout.
func decodeDescriptor(buf []byte, cfg *DecoderConfigDescriptor) (*Descriptor, error) {
	r := bits.NewReader(buf)
	d := &Descriptor{Tag: r.Uint8()}
	length := 0
	for i := 0; i < 4; i++ {
		v := r.Uint8()
		length = length<<7 | int(v&0x7f)
		if v&0x80 == 0 {
			break
		}
	}
	if err := r.Err(); err != nil {
		return nil, fmt.Errorf("descriptor header: %w", err)
	}
	d.HeaderSize = r.Offset()
	d.Size = d.HeaderSize + length
	if length > r.Remaining() {
		return nil, fmt.Errorf("descriptor 0x%02x: length %d exceeds %d available bytes: %w",
			d.Tag, length, r.Remaining(), ErrMalformedSize)
	}
	d.Data = r.Bytes(length)

	var err error
	switch d.Tag {
	case ESDescrTag:
		err = d.decodeES()
	case DecoderConfigDescrTag:
		err = d.decodeDecoderConfig()
	case DecSpecificInfoTag:
		if cfg != nil && cfg.IsMPEG4Audio() {
			d.Payload, err = decodeAudioSpecificConfig(d.Data)
		} else {
			d.Payload = &DecoderSpecificInfo{Data: d.Data}
		}
	}
	if err != nil {
		return nil, err
	}
	return d, nil
}

// decodeChildren decodes consecutive descriptors from buf, stopping at the
// first one that does not fit.
func (d *Descriptor) decodeChildren(buf []byte, cfg *DecoderConfigDescriptor) {
	for len(buf) >= 2 {
		c, err := decodeDescriptor(buf, cfg)
		if err != nil {
			return
		}
		d.Children = append(d.Children, c)
		buf = buf[c.Size:]
	}
}

func (d *Descriptor) decodeES() error {
	r := bits.NewReader(d.Data)
	es := &ESDescriptor{ESID: r.Uint16()}
	v := r.Uint8()
	es.StreamDependenceFlag = v&0x80 != 0
	es.URLFlag = v&0x40 != 0
	es.OCRStreamFlag = v&0x20 != 0
	es.StreamPriority = v & 0x1f
	if es.StreamDependenceFlag {
		es.DependsOnESID = r.Uint16()
	}
	if es.URLFlag {
		es.URL = r.String(int(r.Uint8()))
	}
	if es.OCRStreamFlag {
		es.OCRESID = r.Uint16()
	}
	if err := r.Err(); err != nil {
		return fmt.Errorf("es descriptor: %w", err)
	}
	d.Payload = es
	d.decodeChildren(r.Rest(), nil)
	return nil
}

func (d *Descriptor) decodeDecoderConfig() error {
	r := bits.NewReader(d.Data)
	c := &DecoderConfigDescriptor{ObjectTypeIndication: r.Uint8()}
	v := r.Uint8()
	c.StreamType = (v >> 2) & 0x3f
	c.UpStream = v&0x2 != 0
	c.SpecificInfoFlag = v&0x1 != 0
	c.BufferSizeDB = r.Uint24()
	c.MaxBitrate = r.Uint32()
	c.AvgBitrate = r.Uint32()
	if err := r.Err(); err != nil {
		return fmt.Errorf("decoder config descriptor: %w", err)
	}
	d.Payload = c
	if c.SpecificInfoFlag {
		d.decodeChildren(r.Rest(), c)
	}
	return nil
}

// ESDescriptorBox is the payload of an esds box.
type ESDescriptorBox struct {
	Descriptor *Descriptor
}

func (*ESDescriptorBox) payload() {}

// DecoderConfig returns the decoder config descriptor, or nil.
func (e *ESDescriptorBox) DecoderConfig() *DecoderConfigDescriptor {
	if d := e.Descriptor.Find(DecoderConfigDescrTag); d != nil {
		c, _ := d.Payload.(*DecoderConfigDescriptor)
		return c
	}
	return nil
}

// AudioConfig returns the decoded AudioSpecificConfig, or nil.
func (e *ESDescriptorBox) AudioConfig() *AudioSpecificConfig {
	if d := e.Descriptor.Find(DecSpecificInfoTag); d != nil {
		a, _ := d.Payload.(*AudioSpecificConfig)
		return a
	}
	return nil
}

// Codec returns the RFC 6381 codec string, e.g. "mp4a.40.2", or "" when the
// box has no decoder config.
func (e *ESDescriptorBox) Codec() string {
	c := e.DecoderConfig()
	if c == nil || c.ObjectTypeIndication == 0 {
		return ""
	}
	s := fmt.Sprintf("mp4a.%x", c.ObjectTypeIndication)
	if a := e.AudioConfig(); a != nil && a.AudioObjectType != 0 {
		s += fmt.Sprintf(".%d", a.AudioObjectType)
	}
	return s
}

func decodeEsds(_ *decodeState, b *Box, r *bits.Reader) error {
	d, err := decodeDescriptor(r.Rest(), nil)
	if err != nil {
		return err
	}
	b.Payload = &ESDescriptorBox{Descriptor: d}
	return nil
}
