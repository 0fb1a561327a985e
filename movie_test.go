package bmff

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var identityMatrix = cat(
	u32(0x00010000), u32(0), u32(0),
	u32(0), u32(0x00010000), u32(0),
	u32(0), u32(0), u32(0x40000000),
)

// 1970-01-02 00:00:00 UTC in seconds since 1904.
const macDay2 = 2082844800 + 86400

func mustPayload[T Payload](t *testing.T, b *Box) T {
	t.Helper()
	require.NotNil(t, b)
	p, ok := PayloadAs[T](b)
	require.True(t, ok, "payload of %s is %T", b.Type, b.Payload)
	return p
}

func TestFtyp(t *testing.T) {
	tree := Parse(mkbox("ftyp", []byte("isom"), u32(512), []byte("isomavc1")))
	require.NoError(t, tree.Err)
	f := mustPayload[*FileType](t, tree.Boxes[0])
	assert.Equal(t, "isom", f.MajorBrand)
	assert.Equal(t, uint32(512), f.MinorVersion)
	assert.Equal(t, []string{"isom", "avc1"}, f.CompatibleBrands)
	assert.Equal(t, "File Type Atom", tree.Boxes[0].Name())
}

func TestMvhdVersion0(t *testing.T) {
	buf := mkfull("mvhd", 0, 0,
		u32(macDay2), u32(macDay2), u32(1000), u32(30000),
		u32(0x00010000), u16(0x0100), zeros(10),
		identityMatrix,
		zeros(24), u32(3))
	b, err := Decode(buf, 0)
	require.NoError(t, err)
	m := mustPayload[*MovieHeader](t, b)
	assert.Equal(t, time.Date(1970, 1, 2, 0, 0, 0, 0, time.UTC), m.CreationTime)
	assert.Equal(t, uint32(1000), m.TimeScale)
	assert.Equal(t, uint64(30000), m.Duration)
	assert.Equal(t, 1.0, m.PreferredRate)
	assert.Equal(t, 1.0, m.PreferredVolume)
	assert.Equal(t, Matrix{1, 0, 0, 0, 1, 0, 0, 0, 1}, m.Matrix)
	assert.Equal(t, uint32(3), m.NextTrackID)
}

func TestMvhdVersion1(t *testing.T) {
	const long = 1<<40 + 7
	buf := mkfull("mvhd", 1, 0,
		u64(macDay2), u64(macDay2), u32(90000), u64(long),
		u32(0x00010000), u16(0x0100), zeros(10),
		identityMatrix,
		zeros(24), u32(2))
	b, err := Decode(buf, 0)
	require.NoError(t, err)
	m := mustPayload[*MovieHeader](t, b)
	assert.Equal(t, uint8(1), b.Version)
	assert.Equal(t, uint64(long), m.Duration)
	assert.Equal(t, uint32(90000), m.TimeScale)
	assert.Equal(t, uint32(2), m.NextTrackID)
}

func TestTkhd(t *testing.T) {
	buf := mkfull("tkhd", 0, 3,
		u32(macDay2), u32(macDay2), u32(1), zeros(4), u32(5000),
		zeros(8), u16(0), u16(1), u16(0x0100), zeros(2),
		identityMatrix,
		u32(320<<16), u32(240<<16))
	b, err := Decode(buf, 0)
	require.NoError(t, err)
	th := mustPayload[*TrackHeader](t, b)
	assert.Equal(t, uint32(3), b.Flags)
	assert.Equal(t, uint32(1), th.TrackID)
	assert.Equal(t, uint64(5000), th.Duration)
	assert.Equal(t, int16(1), th.AlternateGroup)
	assert.Equal(t, 1.0, th.Volume)
	assert.Equal(t, 320.0, th.Width)
	assert.Equal(t, 240.0, th.Height)
}

func TestMdhd(t *testing.T) {
	buf := mkfull("mdhd", 0, 0, u32(0), u32(0), u32(48000), u32(96000), u16(0x55c4), u16(0))
	b, err := Decode(buf, 0)
	require.NoError(t, err)
	m := mustPayload[*MediaHeader](t, b)
	assert.Equal(t, uint32(48000), m.TimeScale)
	assert.Equal(t, uint64(96000), m.Duration)
	assert.Equal(t, "und", m.Language)
}

func TestElst(t *testing.T) {
	buf := mkbox("edts",
		mkfull("elst", 1, 0, u32(2),
			u64(1<<33), u64(0xffffffffffffffff), u16(1), u16(0),
			u64(100), u64(512), u16(1), u16(0)))
	tree := Parse(buf)
	require.NoError(t, tree.Err)
	e := mustPayload[*EditList](t, tree.FindFirst(TypeElst))
	require.Len(t, e.Entries, 2)
	assert.Equal(t, uint64(1<<33), e.Entries[0].SegmentDuration)
	assert.Equal(t, int64(-1), e.Entries[0].MediaTime)
	assert.Equal(t, int16(1), e.Entries[0].MediaRateInteger)
	assert.Equal(t, int64(512), e.Entries[1].MediaTime)
}

func TestHdlr(t *testing.T) {
	b, err := Decode(hdlrBox(HandlerSound), 0)
	require.NoError(t, err)
	h := mustPayload[*HandlerReference](t, b)
	assert.Equal(t, HandlerSound, h.HandlerType)
	assert.Equal(t, "Handler", h.Name)
}

func TestMediaHeaders(t *testing.T) {
	tree := Parse(cat(
		mkfull("vmhd", 0, 1, u16(0), u16(1), u16(2), u16(3)),
		mkfull("smhd", 0, 0, u16(0xff80), zeros(2)),
	))
	require.NoError(t, tree.Err)
	v := mustPayload[*VideoMediaHeader](t, tree.Boxes[0])
	assert.Equal(t, [3]int16{1, 2, 3}, v.OpColor)
	s := mustPayload[*SoundMediaHeader](t, tree.Boxes[1])
	assert.Equal(t, -0.5, s.Balance)
}

func TestDref(t *testing.T) {
	buf := mkbox("dinf",
		mkfull("dref", 0, 0, u32(2),
			mkfull("url ", 0, 1),
			mkfull("urn ", 0, 0, []byte("name\x00http://example.com/a.mp4\x00"))))
	tree := Parse(buf)
	require.NoError(t, tree.Err)
	dref := tree.FindFirst(TypeDref)
	d := mustPayload[*DataReference](t, dref)
	assert.Equal(t, uint32(2), d.EntryCount)
	require.Len(t, dref.Children, 2)

	url := mustPayload[*DataEntry](t, dref.Children[0])
	assert.Equal(t, uint32(1), dref.Children[0].Flags)
	assert.Empty(t, url.Location)
	urn := mustPayload[*DataEntry](t, dref.Children[1])
	assert.Equal(t, "name", urn.Name)
	assert.Equal(t, "http://example.com/a.mp4", urn.Location)
}

func TestDrefStopsAtEntryCount(t *testing.T) {
	buf := mkfull("dref", 0, 0, u32(1), mkfull("url ", 0, 1), mkbox("free"))
	b, err := Decode(buf, 0)
	require.NoError(t, err)
	assert.Len(t, b.Children, 1)
}

func TestMvexBoxes(t *testing.T) {
	buf := mkbox("mvex",
		mkfull("mehd", 1, 0, u64(1<<35)),
		mkfull("trex", 0, 0, u32(1), u32(1), u32(1024), u32(0), u32(0x01010000)))
	tree := Parse(buf)
	require.NoError(t, tree.Err)
	mehd := mustPayload[*MovieExtendsHeader](t, tree.FindFirst(TypeMehd))
	assert.Equal(t, uint64(1<<35), mehd.FragmentDuration)
	trex := mustPayload[*TrackExtends](t, tree.FindFirst(TypeTrex))
	assert.Equal(t, uint32(1024), trex.DefaultSampleDuration)
	assert.True(t, trex.DefaultSampleFlags.IsNonSyncSample())
	assert.Equal(t, uint8(1), trex.DefaultSampleFlags.SampleDependsOn())
}

func TestVisualExtensionBoxes(t *testing.T) {
	tree := Parse(cat(
		mkbox("colr", []byte("nclx"), u16(1), u16(13), u16(0), u8(0x80)),
		mkbox("colr", []byte("prof"), []byte{1, 2, 3}),
		mkbox("clap", u32(1920), u32(1), u32(1080), u32(1), u32(0), u32(1), u32(0), u32(1)),
		mkbox("frma", []byte("avc1")),
		mkbox("WLOC", u16(10), u16(0xfff6)),
	))
	require.NoError(t, tree.Err)
	require.Len(t, tree.Boxes, 5)

	nclx := mustPayload[*Color](t, tree.Boxes[0])
	assert.Equal(t, "nclx", nclx.ColorType)
	assert.Equal(t, uint16(13), nclx.TransferCharacteristics)
	assert.True(t, nclx.FullRange)
	prof := mustPayload[*Color](t, tree.Boxes[1])
	assert.Equal(t, []byte{1, 2, 3}, prof.Profile)

	clap := mustPayload[*CleanAperture](t, tree.Boxes[2])
	assert.Equal(t, uint32(1920), clap.WidthN)
	assert.Equal(t, uint32(1080), clap.HeightN)

	frma := mustPayload[*OriginalFormat](t, tree.Boxes[3])
	assert.Equal(t, TypeAvc1, frma.DataFormat)

	wloc := mustPayload[*WindowLocation](t, tree.Boxes[4])
	assert.Equal(t, int16(10), wloc.X)
	assert.Equal(t, int16(-10), wloc.Y)
}
