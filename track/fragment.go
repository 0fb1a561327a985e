package track

import (
	"fmt"

	"github.com/samber/lo"

	"github.com/tetsuo/bmff"
)

// FragmentSamples resolves the samples of every moof in the tree, in file
// order. Defaults come from the tfhd, then from the moov's trex for the
// track. Fragments of tracks not in tracks are skipped.
func FragmentSamples(tree *bmff.Tree, tracks []*Track) ([]Sample, error) {
	trex := make(map[uint32]*bmff.TrackExtends)
	for _, b := range tree.FindAll(bmff.TypeTrex) {
		if t, ok := bmff.PayloadAs[*bmff.TrackExtends](b); ok {
			trex[t.TrackID] = t
		}
	}

	// end of the data, bounds runs that carry only a sample count
	var limit int
	if n := len(tree.Boxes); n > 0 {
		limit = tree.Boxes[n-1].End()
	}

	var samples []Sample
	for _, moof := range tree.Boxes {
		if moof.Type != bmff.TypeMoof {
			continue
		}
		for _, traf := range moof.Children {
			if traf.Type != bmff.TypeTraf {
				continue
			}
			var err error
			samples, err = appendTrafSamples(samples, moof, traf, tracks, trex, limit)
			if err != nil {
				return samples, err
			}
		}
	}
	return samples, nil
}

// maxSizelessRunSamples caps runs whose samples all have the default size 0.
const maxSizelessRunSamples = 1 << 16

// maxDefaultRunSamples returns how many samples of the default size fit
// between offset and limit.
func maxDefaultRunSamples(offset int64, limit int, size uint32) int64 {
	if size == 0 {
		return maxSizelessRunSamples
	}
	avail := int64(limit) - offset
	if avail <= 0 {
		return 0
	}
	return avail / int64(size)
}

type sampleDefaults struct {
	duration uint32
	size     uint32
	flags    bmff.SampleFlags
}

func trafDefaults(tfhdBox *bmff.Box, tfhd *bmff.TrackFragmentHeader, trex *bmff.TrackExtends) sampleDefaults {
	var d sampleDefaults
	if trex != nil {
		d = sampleDefaults{trex.DefaultSampleDuration, trex.DefaultSampleSize, trex.DefaultSampleFlags}
	}
	if tfhdBox.Flags&bmff.TfhdDefaultSampleDurationPresent != 0 {
		d.duration = tfhd.DefaultSampleDuration
	}
	if tfhdBox.Flags&bmff.TfhdDefaultSampleSizePresent != 0 {
		d.size = tfhd.DefaultSampleSize
	}
	if tfhdBox.Flags&bmff.TfhdDefaultSampleFlagsPresent != 0 {
		d.flags = tfhd.DefaultSampleFlags
	}
	return d
}

func appendTrafSamples(samples []Sample, moof, traf *bmff.Box, tracks []*Track,
	trex map[uint32]*bmff.TrackExtends, limit int,
) ([]Sample, error) {
	tfhdBox := traf.Child(bmff.TypeTfhd)
	tfhd, ok := bmff.PayloadAs[*bmff.TrackFragmentHeader](tfhdBox)
	if !ok {
		return samples, fmt.Errorf("traf at %d: %w: missing tfhd", traf.Offset, ErrCorruptData)
	}
	if FindTrack(tracks, tfhd.TrackID) == nil {
		return samples, nil
	}
	def := trafDefaults(tfhdBox, tfhd, trex[tfhd.TrackID])

	base := int64(moof.Offset)
	if tfhdBox.Flags&bmff.TfhdBaseDataOffsetPresent != 0 {
		base = int64(tfhd.BaseDataOffset)
	}
	var dts int64
	if tfdt, ok := bmff.PayloadAs[*bmff.TrackFragmentDecodeTime](traf.Child(bmff.TypeTfdt)); ok {
		dts = tfdt.BaseMediaDecodeTime
	}

	offset := base
	runs := lo.Filter(traf.Children, func(b *bmff.Box, _ int) bool { return b.Type == bmff.TypeTrun })
	for _, runBox := range runs {
		run, ok := bmff.PayloadAs[*bmff.TrackRun](runBox)
		if !ok {
			continue
		}
		if runBox.Flags&bmff.TrunDataOffsetPresent != 0 {
			offset = base + int64(run.DataOffset)
		}
		if run.Samples == nil && int64(run.SampleCount) > maxDefaultRunSamples(offset, limit, def.size) {
			return samples, fmt.Errorf("trun at %d: %w: %d samples without per-sample fields",
				runBox.Offset, ErrCorruptData, run.SampleCount)
		}

		for i := range int(run.SampleCount) {
			var rs bmff.TrunSample
			if run.Samples != nil {
				rs = run.Samples[i]
			}
			s := Sample{
				TrackID:            tfhd.TrackID,
				Offset:             offset,
				Duration:           def.duration,
				Size:               def.size,
				DTS:                dts,
				PresentationOffset: rs.CompositionTimeOffset,
			}
			if runBox.Flags&bmff.TrunSampleDurationPresent != 0 {
				s.Duration = rs.Duration
			}
			if runBox.Flags&bmff.TrunSampleSizePresent != 0 {
				s.Size = rs.Size
			}
			flags := def.flags
			switch {
			case runBox.Flags&bmff.TrunSampleFlagsPresent != 0:
				flags = rs.Flags
			case i == 0 && runBox.Flags&bmff.TrunFirstSampleFlagsPresent != 0:
				flags = run.FirstSampleFlags
			}
			s.IsSync = !flags.IsNonSyncSample()

			samples = append(samples, s)
			offset += int64(s.Size)
			dts += int64(s.Duration)
		}
	}
	return samples, nil
}
