package selection

// SegmentType labels a run of frames
type SegmentType string

const (
	SegmentSpeech  SegmentType = "speech"
	SegmentSilence SegmentType = "silence"
)

// Segment is a half-open frame range [StartFrame, EndFrame)
type Segment struct {
	StartFrame int         `json:"start_frame"`
	EndFrame   int         `json:"end_frame"`
	Type       SegmentType `json:"type"`
}

// SegmenterConfig is handed through to the Segmenter untouched
type SegmenterConfig struct {
	SilenceRMSRatio  float64 `mapstructure:"silence_rms_ratio" json:"silence_rms_ratio" yaml:"silence_rms_ratio"`
	MinSilenceFrames int     `mapstructure:"min_silence_frames" json:"min_silence_frames" yaml:"min_silence_frames"`
	MinSpeechFrames  int     `mapstructure:"min_speech_frames" json:"min_speech_frames" yaml:"min_speech_frames"`
}

// Segmenter splits a recording into speech and silence given its per-frame
// RMS. Implementations live outside the core; the selector only consumes them.
type Segmenter interface {
	Segment(rms []float64, maxRMS float64, cfg SegmenterConfig) []Segment
}

// SegmenterFunc adapts a plain function to Segmenter
type SegmenterFunc func(rms []float64, maxRMS float64, cfg SegmenterConfig) []Segment

func (f SegmenterFunc) Segment(rms []float64, maxRMS float64, cfg SegmenterConfig) []Segment {
	return f(rms, maxRMS, cfg)
}

// EnergySegmenter is a minimal hysteresis segmenter on frame RMS. It exists so
// the CLI works without an external VAD.
type EnergySegmenter struct{}

// Segment labels frames below SilenceRMSRatio*maxRMS as silence, then folds
// silence runs shorter than MinSilenceFrames into speech and speech runs
// shorter than MinSpeechFrames into silence.
func (EnergySegmenter) Segment(rms []float64, maxRMS float64, cfg SegmenterConfig) []Segment {
	if len(rms) == 0 {
		return nil
	}
	thr := cfg.SilenceRMSRatio * maxRMS
	labels := make([]SegmentType, len(rms))
	for i, r := range rms {
		if r >= thr && r > 0 {
			labels[i] = SegmentSpeech
		} else {
			labels[i] = SegmentSilence
		}
	}

	segs := runs(labels)
	segs = absorbShort(segs, SegmentSilence, cfg.MinSilenceFrames)
	segs = absorbShort(segs, SegmentSpeech, cfg.MinSpeechFrames)
	return segs
}

func runs(labels []SegmentType) []Segment {
	var segs []Segment
	start := 0
	for i := 1; i <= len(labels); i++ {
		if i == len(labels) || labels[i] != labels[start] {
			segs = append(segs, Segment{StartFrame: start, EndFrame: i, Type: labels[start]})
			start = i
		}
	}
	return segs
}

// absorbShort flips runs of typ shorter than minLen and merges neighbours
func absorbShort(segs []Segment, typ SegmentType, minLen int) []Segment {
	if minLen <= 1 || len(segs) <= 1 {
		return segs
	}
	other := SegmentSpeech
	if typ == SegmentSpeech {
		other = SegmentSilence
	}
	for i := range segs {
		if segs[i].Type == typ && segs[i].EndFrame-segs[i].StartFrame < minLen {
			segs[i].Type = other
		}
	}
	merged := segs[:1]
	for _, s := range segs[1:] {
		last := &merged[len(merged)-1]
		if s.Type == last.Type {
			last.EndFrame = s.EndFrame
			continue
		}
		merged = append(merged, s)
	}
	return merged
}

// speechMask expands segments into a per-frame speech flag. Frames no segment
// covers count as silence; a nil segment list means everything is speech.
func speechMask(segs []Segment, frames int, segmented bool) []bool {
	mask := make([]bool, frames)
	if !segmented {
		for i := range mask {
			mask[i] = true
		}
		return mask
	}
	for _, s := range segs {
		if s.Type != SegmentSpeech {
			continue
		}
		start, end := max(s.StartFrame, 0), min(s.EndFrame, frames)
		for i := start; i < end; i++ {
			mask[i] = true
		}
	}
	return mask
}
