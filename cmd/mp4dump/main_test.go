package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"os"
	"path/filepath"
	"testing"

	"github.com/Eyevinn/mp4ff/mp4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

// writeFragmentedFile writes an AAC init segment followed by one fragment.
func writeFragmentedFile(t *testing.T) string {
	t.Helper()
	seg := mp4.CreateEmptyInit()
	seg.Moov.Mvhd.NextTrackID = 2
	trak := mp4.CreateEmptyTrak(1, 48000, "audio", "eng")
	seg.Moov.AddChild(trak)
	seg.Moov.Mvex.AddChild(mp4.CreateTrex(1))
	require.NoError(t, trak.SetAACDescriptor(2, 48000))

	var buf bytes.Buffer
	require.NoError(t, mp4.NewFtyp("iso6", 0, []string{"iso6", "dash"}).Encode(&buf))
	require.NoError(t, seg.Moov.Encode(&buf))

	frag, err := mp4.CreateFragment(1, 1)
	require.NoError(t, err)
	for i := range 4 {
		frag.AddFullSample(mp4.FullSample{
			Data:       []byte{1, 2, 3},
			DecodeTime: uint64(i * 1024),
			Sample:     mp4.Sample{Flags: mp4.SyncSampleFlags, Dur: 1024, Size: 3},
		})
	}
	require.NoError(t, frag.Encode(&buf))

	path := filepath.Join(t.TempDir(), "audio.mp4")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
	return path
}

func TestRunText(t *testing.T) {
	path := writeFragmentedFile(t)
	var stdout, stderr bytes.Buffer
	require.NoError(t, run([]string{path}, &stdout, &stderr))

	out := stdout.String()
	assert.Contains(t, out, "[ftyp] size=")
	assert.Contains(t, out, "brand=iso6")
	assert.Contains(t, out, "compatible=[iso6,dash]")
	assert.Contains(t, out, "    [mdhd]")
	assert.Contains(t, out, "language=eng")
	assert.Contains(t, out, "codec=mp4a.40.2")
	assert.Contains(t, out, "<ES Descriptor> tag=0x03")
	assert.Contains(t, out, "[mdat] size=20 dataLen=12")
	assert.Empty(t, stderr.String())
}

func TestRunJSON(t *testing.T) {
	path := writeFragmentedFile(t)
	var stdout, stderr bytes.Buffer
	require.NoError(t, run([]string{"-format", "json", "-max-depth", "1", path}, &stdout, &stderr))

	var nodes []BoxNode
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &nodes))
	require.Len(t, nodes, 4)
	assert.Equal(t, "ftyp", nodes[0].Type)
	assert.Equal(t, "moov", nodes[1].Type)
	assert.Empty(t, nodes[1].Children)
	assert.Equal(t, "moof", nodes[2].Type)
	require.NotNil(t, nodes[3].DataLength)
	assert.Equal(t, 12, *nodes[3].DataLength)
}

func TestRunConfigFile(t *testing.T) {
	path := writeFragmentedFile(t)
	cfgPath := filepath.Join(t.TempDir(), "mp4dump.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("format: yaml\ntracks: true\nlogLevel: debug\n"), 0o644))

	var stdout, stderr bytes.Buffer
	require.NoError(t, run([]string{"-config", cfgPath, path}, &stdout, &stderr))

	var tracks []TrackInfo
	require.NoError(t, yaml.Unmarshal(stdout.Bytes(), &tracks))
	require.Len(t, tracks, 1)
	assert.Equal(t, TrackInfo{
		ID:          1,
		Kind:        "audio",
		Codec:       "mp4a.40.2",
		TimeScale:   48000,
		Duration:    4096,
		Language:    "eng",
		Channels:    2,
		SampleRate:  48000,
		SampleCount: 4,
	}, tracks[0])

	// flags override the config file
	stdout.Reset()
	require.NoError(t, run([]string{"-config", cfgPath, "-format", "text", path}, &stdout, &stderr))
	assert.Contains(t, stdout.String(), "track 1: audio mp4a.40.2 timescale=48000 duration=4096 samples=4 48000Hz ch=2")
}

func TestRunLogsTruncatedFile(t *testing.T) {
	path := writeFragmentedFile(t)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data[:len(data)-5], 0o644))

	var stdout, stderr bytes.Buffer
	require.NoError(t, run([]string{"-log-level", "warn", path}, &stdout, &stderr))
	assert.Contains(t, stderr.String(), "decoding stopped early")
	assert.Contains(t, stdout.String(), "[moof]")
	assert.NotContains(t, stdout.String(), "[mdat]")
}

func TestRunErrors(t *testing.T) {
	path := writeFragmentedFile(t)
	var stdout, stderr bytes.Buffer

	assert.ErrorIs(t, run(nil, &stdout, &stderr), flag.ErrHelp)
	assert.ErrorContains(t, run([]string{"-format", "xml", path}, &stdout, &stderr), "unknown format: xml")
	assert.ErrorContains(t, run([]string{"-log-level", "loud", path}, &stdout, &stderr), "log level")
	assert.ErrorContains(t, run([]string{filepath.Join(t.TempDir(), "missing.mp4")}, &stdout, &stderr), "error opening file")
}

func TestParseFormat(t *testing.T) {
	for in, want := range map[string]Format{"": FormatText, "TEXT": FormatText, "json": FormatJSON, "yml": FormatYAML} {
		got, err := parseFormat(in)
		require.NoError(t, err)
		assert.Equal(t, want, got, in)
	}
}
