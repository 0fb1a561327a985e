package bmff

import (
	"testing"

	"github.com/bluenviron/mediacommon/pkg/codecs/mpeg4audio"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// desc builds a descriptor with a one byte length.
func desc(tag uint8, payload ...[]byte) []byte {
	p := cat(payload...)
	return cat(u8(tag), u8(uint8(len(p))), p)
}

func decoderConfig(oti, streamType uint8, children ...[]byte) []byte {
	return desc(DecoderConfigDescrTag,
		u8(oti), u8(streamType<<2|1), []byte{0, 0x18, 0}, u32(128000), u32(96000),
		cat(children...))
}

func decodeEsdsBox(t *testing.T, descriptors ...[]byte) *ESDescriptorBox {
	t.Helper()
	b, err := Decode(mkfull("esds", 0, 0, descriptors...), 0)
	require.NoError(t, err)
	return mustPayload[*ESDescriptorBox](t, b)
}

func TestEsdsAAC(t *testing.T) {
	asc, err := mpeg4audio.Config{
		Type:         mpeg4audio.ObjectTypeAACLC,
		SampleRate:   44100,
		ChannelCount: 2,
	}.Marshal()
	require.NoError(t, err)

	e := decodeEsdsBox(t, desc(ESDescrTag,
		u16(1), u8(0),
		decoderConfig(0x40, 0x05, desc(DecSpecificInfoTag, asc)),
		desc(SLConfigDescrTag, u8(2))))

	root := e.Descriptor
	assert.Equal(t, "ES Descriptor", root.Name())
	assert.Equal(t, 2, root.HeaderSize)
	assert.Equal(t, uint16(1), root.Payload.(*ESDescriptor).ESID)
	require.Len(t, root.Children, 2)

	cfg := e.DecoderConfig()
	require.NotNil(t, cfg)
	assert.True(t, cfg.IsMPEG4Audio())
	assert.True(t, cfg.SpecificInfoFlag)
	assert.False(t, cfg.UpStream)
	assert.Equal(t, uint32(0x1800), cfg.BufferSizeDB)
	assert.Equal(t, uint32(128000), cfg.MaxBitrate)
	assert.Equal(t, uint32(96000), cfg.AvgBitrate)

	a := e.AudioConfig()
	require.NotNil(t, a)
	assert.Equal(t, uint8(2), a.AudioObjectType)
	assert.Equal(t, uint8(4), a.SamplingFrequencyIndex)
	assert.Equal(t, uint32(44100), a.SamplingFrequency)
	assert.Equal(t, uint8(2), a.ChannelConfiguration)
	assert.Equal(t, "mp4a.40.2", e.Codec())

	sl := root.Find(SLConfigDescrTag)
	require.NotNil(t, sl)
	assert.Equal(t, "SL Config Descriptor", sl.Name())
	assert.Nil(t, sl.Payload)
	assert.Equal(t, []byte{2}, sl.Data)
}

func TestAudioSpecificConfigEscapes(t *testing.T) {
	for name, tc := range map[string]struct {
		asc       []byte
		aot       uint8
		index     uint8
		frequency uint32
		channels  uint8
		codec     string
	}{
		"object type": {
			asc: []byte{0xf9, 0x46, 0x20}, aot: 42, index: 3, frequency: 48000, channels: 1,
			codec: "mp4a.40.42",
		},
		"explicit frequency": {
			asc: []byte{0x17, 0x80, 0x56, 0x22, 0x10}, aot: 2, index: 15, frequency: 44100, channels: 2,
			codec: "mp4a.40.2",
		},
	} {
		t.Run(name, func(t *testing.T) {
			e := decodeEsdsBox(t, desc(ESDescrTag, u16(1), u8(0),
				decoderConfig(0x40, 0x05, desc(DecSpecificInfoTag, tc.asc))))
			a := e.AudioConfig()
			require.NotNil(t, a)
			assert.Equal(t, tc.aot, a.AudioObjectType)
			assert.Equal(t, tc.index, a.SamplingFrequencyIndex)
			assert.Equal(t, tc.frequency, a.SamplingFrequency)
			assert.Equal(t, tc.channels, a.ChannelConfiguration)
			assert.Equal(t, tc.codec, e.Codec())
		})
	}
}

func TestESDescriptorOptionalFields(t *testing.T) {
	e := decodeEsdsBox(t, desc(ESDescrTag,
		u16(2), u8(0x80|0x40|0x20|3), u16(7), u8(3), []byte("abc"), u16(9)))
	es := e.Descriptor.Payload.(*ESDescriptor)
	assert.True(t, es.StreamDependenceFlag)
	assert.Equal(t, uint16(7), es.DependsOnESID)
	assert.True(t, es.URLFlag)
	assert.Equal(t, "abc", es.URL)
	assert.True(t, es.OCRStreamFlag)
	assert.Equal(t, uint16(9), es.OCRESID)
	assert.Equal(t, uint8(3), es.StreamPriority)
	assert.Empty(t, e.Descriptor.Children)
	assert.Nil(t, e.DecoderConfig())
	assert.Empty(t, e.Codec())
}

func TestDescriptorLongLength(t *testing.T) {
	body := cat(u16(1), u8(0), decoderConfig(0x40, 0x05))
	e := decodeEsdsBox(t, cat(u8(ESDescrTag), []byte{0x80, 0x80, 0x80, uint8(len(body))}, body))
	assert.Equal(t, 5, e.Descriptor.HeaderSize)
	assert.Equal(t, 5+len(body), e.Descriptor.Size)
	require.NotNil(t, e.DecoderConfig())
	assert.Nil(t, e.AudioConfig())
	assert.Equal(t, "mp4a.40", e.Codec())
}

func TestNonAudioDecoderSpecificInfo(t *testing.T) {
	e := decodeEsdsBox(t, desc(ESDescrTag, u16(1), u8(0),
		decoderConfig(0x20, 0x04, desc(DecSpecificInfoTag, []byte{0, 0, 1, 0xb0}))))
	dsi := e.Descriptor.Find(DecSpecificInfoTag)
	require.NotNil(t, dsi)
	info, ok := dsi.Payload.(*DecoderSpecificInfo)
	require.True(t, ok)
	assert.Equal(t, []byte{0, 0, 1, 0xb0}, info.Data)
	assert.Nil(t, e.AudioConfig())
}

func TestDecoderSpecificInfoRequiresFlag(t *testing.T) {
	dsi := desc(DecSpecificInfoTag, []byte{0x12, 0x10})
	e := decodeEsdsBox(t, desc(ESDescrTag, u16(1), u8(0),
		desc(DecoderConfigDescrTag,
			u8(0x40), u8(0x05<<2), []byte{0, 0x18, 0}, u32(128000), u32(96000), dsi)))

	cfg := e.DecoderConfig()
	require.NotNil(t, cfg)
	assert.False(t, cfg.SpecificInfoFlag)
	assert.Equal(t, uint8(0x05), cfg.StreamType)

	dcd := e.Descriptor.Find(DecoderConfigDescrTag)
	require.NotNil(t, dcd)
	assert.Empty(t, dcd.Children)
	assert.Nil(t, e.Descriptor.Find(DecSpecificInfoTag))
	assert.Nil(t, e.AudioConfig())
	assert.Equal(t, "mp4a.40", e.Codec())
}

func TestTruncatedChildDescriptor(t *testing.T) {
	// the decoder config claims 40 bytes but only 13 follow
	e := decodeEsdsBox(t, desc(ESDescrTag, u16(1), u8(0),
		u8(DecoderConfigDescrTag), u8(40), zeros(13)))
	assert.Empty(t, e.Descriptor.Children)
	assert.Nil(t, e.DecoderConfig())
}

func TestEsdsDescriptorOverrun(t *testing.T) {
	_, err := Decode(mkfull("esds", 0, 0, u8(ESDescrTag), u8(30), zeros(4)), 0)
	assert.ErrorIs(t, err, ErrMalformedSize)
}

func TestUnknownDescriptorName(t *testing.T) {
	e := decodeEsdsBox(t, desc(0x0e, u8(1)))
	assert.Equal(t, "Descriptor 0x0e", e.Descriptor.Name())
	assert.Nil(t, e.Descriptor.Payload)
}
