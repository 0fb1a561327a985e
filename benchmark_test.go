package bmff_test

import (
	"bytes"
	"os"
	"testing"

	"github.com/Eyevinn/mp4ff/mp4"

	"github.com/tetsuo/bmff"
	"github.com/tetsuo/bmff/track"
)

func loadTestFile(b *testing.B) []byte {
	b.Helper()
	data, err := os.ReadFile("video-media-samples/big-buck-bunny-480p-30sec.mp4")
	if err != nil {
		b.Skipf("test file not available: %v", err)
	}
	return data
}

// syntheticFragmented builds an AAC init segment and n fragments of 64
// samples each.
func syntheticFragmented(b *testing.B, n int) []byte {
	b.Helper()
	seg := mp4.CreateEmptyInit()
	seg.Moov.Mvhd.NextTrackID = 2
	trak := mp4.CreateEmptyTrak(1, 48000, "audio", "und")
	seg.Moov.AddChild(trak)
	seg.Moov.Mvex.AddChild(mp4.CreateTrex(1))
	if err := trak.SetAACDescriptor(2, 48000); err != nil {
		b.Fatal(err)
	}

	var buf bytes.Buffer
	if err := mp4.NewFtyp("iso6", 0, []string{"iso6", "dash"}).Encode(&buf); err != nil {
		b.Fatal(err)
	}
	if err := seg.Moov.Encode(&buf); err != nil {
		b.Fatal(err)
	}
	payload := make([]byte, 256)
	for seq := range n {
		frag, err := mp4.CreateFragment(uint32(seq+1), 1)
		if err != nil {
			b.Fatal(err)
		}
		for i := range 64 {
			frag.AddFullSample(mp4.FullSample{
				Data:       payload,
				DecodeTime: uint64((seq*64 + i) * 1024),
				Sample:     mp4.Sample{Flags: mp4.SyncSampleFlags, Dur: 1024, Size: uint32(len(payload))},
			})
		}
		if err := frag.Encode(&buf); err != nil {
			b.Fatal(err)
		}
	}
	return buf.Bytes()
}

func BenchmarkParse(b *testing.B) {
	data := loadTestFile(b)

	b.SetBytes(int64(len(data)))

	for b.Loop() {
		tree := bmff.Parse(data)
		if tree.Err != nil {
			b.Fatal(tree.Err)
		}
	}
}

func BenchmarkParseFragmented(b *testing.B) {
	data := syntheticFragmented(b, 32)

	b.SetBytes(int64(len(data)))

	for b.Loop() {
		tree := bmff.Parse(data)
		if tree.Err != nil {
			b.Fatal(tree.Err)
		}
	}
}

func BenchmarkFindAll(b *testing.B) {
	tree := bmff.Parse(syntheticFragmented(b, 32))

	for b.Loop() {
		if len(tree.FindAll(bmff.TypeTrun)) != 32 {
			b.Fatal("missing trun boxes")
		}
	}
}

func BenchmarkTrackSamples(b *testing.B) {
	tree := bmff.Parse(loadTestFile(b))

	for b.Loop() {
		tracks, _, err := track.FromTree(tree)
		if err != nil {
			b.Fatal(err)
		}
		if _, err := track.FragmentSamples(tree, tracks); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkFragmentSamples(b *testing.B) {
	tree := bmff.Parse(syntheticFragmented(b, 32))
	tracks, _, err := track.FromTree(tree)
	if err != nil {
		b.Fatal(err)
	}

	for b.Loop() {
		samples, err := track.FragmentSamples(tree, tracks)
		if err != nil {
			b.Fatal(err)
		}
		if len(samples) != 32*64 {
			b.Fatalf("got %d samples", len(samples))
		}
	}
}
