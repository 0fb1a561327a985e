// Command mp4dump reads an MP4 file and prints its box structure.
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/phsym/console-slog"
	"gopkg.in/yaml.v3"

	"github.com/tetsuo/bmff"
	"github.com/tetsuo/bmff/track"
)

// Format specifies the output format.
type Format int

const (
	FormatText Format = iota
	FormatJSON
	FormatYAML
)

func parseFormat(s string) (Format, error) {
	switch strings.ToLower(s) {
	case "", "text":
		return FormatText, nil
	case "json":
		return FormatJSON, nil
	case "yaml", "yml":
		return FormatYAML, nil
	}
	return 0, fmt.Errorf("unknown format: %s", s)
}

// Config holds the dump options. It can be loaded from a YAML file with
// -config; flags given on the command line take precedence.
type Config struct {
	Format   string `yaml:"format"`
	LogLevel string `yaml:"logLevel"`
	MaxDepth int    `yaml:"maxDepth"` // 0 means unlimited
	ShowRaw  bool   `yaml:"showRaw"`
	Tracks   bool   `yaml:"tracks"`
}

func loadConfig(path string, cfg *Config) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := yaml.NewDecoder(f).Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("config %s: %w", path, err)
	}
	return nil
}

func newLogger(w io.Writer, level string) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}
	return slog.New(console.NewHandler(w, &console.HandlerOptions{
		Level:      lvl,
		TimeFormat: "15:04:05.000",
	})), nil
}

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		if !errors.Is(err, flag.ErrHelp) {
			fmt.Fprintf(os.Stderr, "mp4dump: %v\n", err)
		}
		os.Exit(1)
	}
}

func run(args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("mp4dump", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "", "YAML config file")
	formatFlag := fs.String("format", "", "output format: text (default), json, yaml")
	levelFlag := fs.String("log-level", "", "log level: debug, info, warn (default), error")
	depthFlag := fs.Int("max-depth", -1, "maximum tree depth to print, 0 for unlimited")
	rawFlag := fs.Bool("raw", false, "include payload lengths of boxes without a decoder")
	tracksFlag := fs.Bool("tracks", false, "print a track summary instead of the box tree")
	fs.Usage = func() {
		fmt.Fprintf(stderr, "usage: mp4dump [flags] <file.mp4>\n")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() < 1 {
		fs.Usage()
		return flag.ErrHelp
	}

	cfg := Config{Format: "text", LogLevel: "warn"}
	if *configPath != "" {
		if err := loadConfig(*configPath, &cfg); err != nil {
			return err
		}
	}
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "format":
			cfg.Format = *formatFlag
		case "log-level":
			cfg.LogLevel = *levelFlag
		case "max-depth":
			cfg.MaxDepth = *depthFlag
		case "raw":
			cfg.ShowRaw = *rawFlag
		case "tracks":
			cfg.Tracks = *tracksFlag
		}
	})

	format, err := parseFormat(cfg.Format)
	if err != nil {
		return err
	}
	log, err := newLogger(stderr, cfg.LogLevel)
	if err != nil {
		return err
	}

	path := fs.Arg(0)
	buf, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("error opening file: %w", err)
	}

	tree := bmff.NewDecoder(bmff.WithLogger(log)).Parse(buf)
	if tree.Err != nil {
		log.Warn("decoding stopped early", "file", path, "err", tree.Err)
	}

	if cfg.Tracks {
		return printTracks(stdout, tree, format)
	}
	nodes := buildTree(tree.Boxes, 1, cfg)
	return printTree(stdout, nodes, format)
}

// TrackInfo is the summary printed by -tracks.
type TrackInfo struct {
	ID          uint32 `json:"id" yaml:"id"`
	Kind        string `json:"kind" yaml:"kind"`
	Codec       string `json:"codec" yaml:"codec"`
	TimeScale   uint32 `json:"timescale" yaml:"timescale"`
	Duration    uint64 `json:"duration" yaml:"duration"`
	Language    string `json:"language,omitempty" yaml:"language,omitempty"`
	Width       uint16 `json:"width,omitempty" yaml:"width,omitempty"`
	Height      uint16 `json:"height,omitempty" yaml:"height,omitempty"`
	Channels    uint16 `json:"channels,omitempty" yaml:"channels,omitempty"`
	SampleRate  uint32 `json:"sampleRate,omitempty" yaml:"sampleRate,omitempty"`
	Encrypted   bool   `json:"encrypted,omitempty" yaml:"encrypted,omitempty"`
	SampleCount int    `json:"samples" yaml:"samples"`
}

func collectTracks(tree *bmff.Tree) ([]TrackInfo, error) {
	tracks, _, err := track.FromTree(tree)
	if err != nil {
		return nil, err
	}
	samples, err := track.FragmentSamples(tree, tracks)
	if err != nil {
		return nil, err
	}
	for _, t := range tracks {
		samples = append(samples, t.Samples...)
	}
	stats := track.CollectTrackSampleStats(nil, tracks, samples)

	out := make([]TrackInfo, 0, len(tracks))
	for _, t := range tracks {
		info := TrackInfo{
			ID:         t.ID,
			Kind:       t.Kind.String(),
			Codec:      t.Codec(),
			TimeScale:  t.TimeScale,
			Duration:   t.Duration,
			Language:   t.Language,
			Width:      t.Width,
			Height:     t.Height,
			Channels:   t.ChannelCount,
			SampleRate: t.SampleRate,
			Encrypted:  t.Encrypted,
		}
		for _, st := range stats {
			if st.TrackID == t.ID {
				info.SampleCount = st.SampleCount
				if info.Duration == 0 {
					info.Duration = st.Duration
				}
			}
		}
		out = append(out, info)
	}
	return out, nil
}
