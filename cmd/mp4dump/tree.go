package main

import (
	"encoding/json"
	"fmt"
	"io"
	"maps"
	"slices"
	"strings"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"gopkg.in/yaml.v3"

	"github.com/tetsuo/bmff"
)

// BoxNode is a box in the tree structure.
type BoxNode struct {
	Type        string           `json:"type" yaml:"type"`
	Name        string           `json:"name" yaml:"name"`
	Offset      int              `json:"offset" yaml:"offset"`
	Size        uint64           `json:"size" yaml:"size"`
	Version     *uint8           `json:"version,omitempty" yaml:"version,omitempty"`
	Flags       *uint32          `json:"flags,omitempty" yaml:"flags,omitempty"`
	Info        map[string]any   `json:"info,omitempty" yaml:"info,omitempty"`
	DataLength  *int             `json:"dataLength,omitempty" yaml:"dataLength,omitempty"`
	Descriptors []DescriptorNode `json:"descriptors,omitempty" yaml:"descriptors,omitempty"`
	Children    []BoxNode        `json:"children,omitempty" yaml:"children,omitempty"`
}

// DescriptorNode is an MPEG-4 descriptor of an esds box.
type DescriptorNode struct {
	Tag      uint8            `json:"tag" yaml:"tag"`
	Name     string           `json:"name" yaml:"name"`
	Size     int              `json:"size" yaml:"size"`
	Info     map[string]any   `json:"info,omitempty" yaml:"info,omitempty"`
	Children []DescriptorNode `json:"children,omitempty" yaml:"children,omitempty"`
}

func buildTree(boxes []*bmff.Box, depth int, cfg Config) []BoxNode {
	nodes := make([]BoxNode, 0, len(boxes))
	for _, b := range boxes {
		node := BoxNode{
			Type:   b.Type.String(),
			Name:   b.Name(),
			Offset: b.Offset,
			Size:   b.Size,
			Info:   boxInfo(b),
		}
		if b.FullBox {
			v, f := b.Version, b.Flags
			node.Version = &v
			node.Flags = &f
		}
		if b.Type == bmff.TypeMdat || (cfg.ShowRaw && b.Payload == nil && len(b.Children) == 0) {
			n := len(b.Data)
			node.DataLength = &n
		}
		if esds, ok := bmff.PayloadAs[*bmff.ESDescriptorBox](b); ok && esds.Descriptor != nil {
			node.Descriptors = []DescriptorNode{buildDescriptor(esds.Descriptor)}
		}
		if cfg.MaxDepth <= 0 || depth < cfg.MaxDepth {
			node.Children = buildTree(b.Children, depth+1, cfg)
		}
		nodes = append(nodes, node)
	}
	return nodes
}

func buildDescriptor(d *bmff.Descriptor) DescriptorNode {
	n := DescriptorNode{Tag: d.Tag, Name: d.Name(), Size: d.Size}
	switch p := d.Payload.(type) {
	case *bmff.ESDescriptor:
		n.Info = map[string]any{"esId": p.ESID, "priority": p.StreamPriority}
		if p.StreamDependenceFlag {
			n.Info["dependsOn"] = p.DependsOnESID
		}
		if p.URLFlag {
			n.Info["url"] = p.URL
		}
	case *bmff.DecoderConfigDescriptor:
		n.Info = map[string]any{
			"objectType": fmt.Sprintf("0x%02x", p.ObjectTypeIndication),
			"streamType": p.StreamType,
			"maxBitrate": p.MaxBitrate,
			"avgBitrate": p.AvgBitrate,
		}
	case *bmff.AudioSpecificConfig:
		n.Info = map[string]any{
			"audioObjectType": p.AudioObjectType,
			"sampleRate":      p.SamplingFrequency,
			"channels":        p.ChannelConfiguration,
		}
	case *bmff.DecoderSpecificInfo:
		n.Info = map[string]any{"dataLength": len(p.Data)}
	}
	for _, c := range d.Children {
		n.Children = append(n.Children, buildDescriptor(c))
	}
	return n
}

// boxInfo collects the printable fields of a decoded payload.
func boxInfo(b *bmff.Box) map[string]any {
	info := make(map[string]any)

	switch p := b.Payload.(type) {
	case *bmff.FileType:
		info["brand"] = p.MajorBrand
		info["version"] = p.MinorVersion
		if len(p.CompatibleBrands) > 0 {
			info["compatible"] = p.CompatibleBrands
		}
	case *bmff.MovieHeader:
		info["timescale"] = p.TimeScale
		info["duration"] = p.Duration
		info["nextTrackId"] = p.NextTrackID
	case *bmff.TrackHeader:
		info["trackId"] = p.TrackID
		info["duration"] = p.Duration
		info["width"] = p.Width
		info["height"] = p.Height
	case *bmff.MediaHeader:
		info["timescale"] = p.TimeScale
		info["duration"] = p.Duration
		info["language"] = p.Language
	case *bmff.HandlerReference:
		info["handlerType"] = p.HandlerType
		info["name"] = p.Name
	case *bmff.SampleDescription:
		info["entries"] = p.EntryCount
	case *bmff.VisualSampleEntry:
		info["width"] = p.Width
		info["height"] = p.Height
		info["compressor"] = p.CompressorName
	case *bmff.AudioSampleEntry:
		info["channelCount"] = p.ChannelCount
		info["sampleSize"] = p.SampleSize
		info["sampleRate"] = p.SampleRate
	case *bmff.AVCConfig:
		info["codec"] = p.Codec()
	case *bmff.HEVCConfig:
		info["codec"] = p.Codec()
	case *bmff.AV1Config:
		info["codec"] = p.Codec()
		if sh := p.SequenceHeader(); sh != nil {
			info["width"] = sh.Width()
			info["height"] = sh.Height()
		}
	case *bmff.ESDescriptorBox:
		if c := p.Codec(); c != "" {
			info["codec"] = c
		}
	case *bmff.SampleSize:
		info["entries"] = p.SampleCount
	case *bmff.ChunkOffset:
		info["entries"] = len(p.Offsets)
	case *bmff.SyncSample:
		info["entries"] = len(p.Samples)
	case *bmff.TimeToSample:
		info["entries"] = len(p.Entries)
	case *bmff.CompositionOffset:
		info["entries"] = len(p.Entries)
	case *bmff.SampleToChunk:
		info["entries"] = len(p.Entries)
	case *bmff.EditList:
		info["entries"] = len(p.Entries)
	case *bmff.DataReference:
		info["entries"] = p.EntryCount
	case *bmff.MovieExtendsHeader:
		info["fragmentDuration"] = p.FragmentDuration
	case *bmff.TrackExtends:
		info["trackId"] = p.TrackID
	case *bmff.MovieFragmentHeader:
		info["sequence"] = p.SequenceNumber
	case *bmff.TrackFragmentHeader:
		info["trackId"] = p.TrackID
	case *bmff.TrackFragmentDecodeTime:
		info["baseMediaDecodeTime"] = p.BaseMediaDecodeTime
	case *bmff.TrackRun:
		info["entries"] = p.SampleCount
		if b.Flags&bmff.TrunDataOffsetPresent != 0 {
			info["dataOffset"] = p.DataOffset
		}
	case *bmff.SegmentIndex:
		info["timescale"] = p.TimeScale
		info["references"] = len(p.References)
		info["duration"] = p.TotalDuration()
	case *bmff.SchemeType:
		info["scheme"] = p.SchemeType
	case *bmff.TrackEncryption:
		info["kid"] = p.DefaultKID.String()
		info["ivSize"] = p.DefaultPerSampleIVSize
	case *bmff.ProtectionSystem:
		info["systemId"] = p.SystemID.String()
		if name := p.SystemName(); name != "" {
			info["system"] = name
		}
		if len(p.KIDs) > 0 {
			info["kids"] = lo.Map(p.KIDs, func(id uuid.UUID, _ int) string { return id.String() })
		}
	case *bmff.OriginalFormat:
		info["format"] = p.DataFormat.String()
	}

	if len(info) == 0 {
		return nil
	}
	return info
}

// printTree prints the tree in the specified format.
func printTree(w io.Writer, nodes []BoxNode, format Format) error {
	switch format {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(nodes)
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		defer enc.Close()
		return enc.Encode(nodes)
	}
	for _, node := range nodes {
		printNodeText(w, node, 0)
	}
	return nil
}

func printTracks(w io.Writer, tree *bmff.Tree, format Format) error {
	tracks, err := collectTracks(tree)
	if err != nil {
		return err
	}
	switch format {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(tracks)
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		defer enc.Close()
		return enc.Encode(tracks)
	}
	for _, t := range tracks {
		fmt.Fprintf(w, "track %d: %s %s timescale=%d duration=%d samples=%d",
			t.ID, t.Kind, t.Codec, t.TimeScale, t.Duration, t.SampleCount)
		if t.Width > 0 {
			fmt.Fprintf(w, " %dx%d", t.Width, t.Height)
		}
		if t.SampleRate > 0 {
			fmt.Fprintf(w, " %dHz ch=%d", t.SampleRate, t.Channels)
		}
		if t.Encrypted {
			fmt.Fprint(w, " encrypted")
		}
		fmt.Fprintln(w)
	}
	return nil
}

// printNodeText prints a single node in text format.
func printNodeText(w io.Writer, node BoxNode, depth int) {
	indent := strings.Repeat("  ", depth)

	fmt.Fprintf(w, "%s[%s] size=%d", indent, node.Type, node.Size)
	if node.Version != nil {
		fmt.Fprintf(w, " v=%d", *node.Version)
	}
	if node.Flags != nil {
		fmt.Fprintf(w, " flags=0x%06x", *node.Flags)
	}
	for _, key := range slices.Sorted(maps.Keys(node.Info)) {
		switch val := node.Info[key].(type) {
		case []string:
			fmt.Fprintf(w, " %s=[%s]", key, strings.Join(val, ","))
		case string:
			if key == "name" || key == "compressor" {
				fmt.Fprintf(w, " %s=%q", key, val)
			} else {
				fmt.Fprintf(w, " %s=%s", key, val)
			}
		default:
			fmt.Fprintf(w, " %s=%v", key, val)
		}
	}
	if node.DataLength != nil {
		fmt.Fprintf(w, " dataLen=%d", *node.DataLength)
	}
	fmt.Fprintln(w)

	for _, d := range node.Descriptors {
		printDescriptorText(w, d, depth+1)
	}
	for _, child := range node.Children {
		printNodeText(w, child, depth+1)
	}
}

func printDescriptorText(w io.Writer, d DescriptorNode, depth int) {
	fmt.Fprintf(w, "%s<%s> tag=0x%02x size=%d", strings.Repeat("  ", depth), d.Name, d.Tag, d.Size)
	for _, key := range slices.Sorted(maps.Keys(d.Info)) {
		fmt.Fprintf(w, " %s=%v", key, d.Info[key])
	}
	fmt.Fprintln(w)
	for _, c := range d.Children {
		printDescriptorText(w, c, depth+1)
	}
}
