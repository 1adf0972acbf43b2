// Package selection builds training matrices from feature matrices: it drops
// silent and low-energy frames, compresses and normalizes the survivors,
// optionally stacks temporal context and z-scores the result.
package selection

import (
	"context"
	"math"

	"github.com/RyanBlaney/latency-benchmark-common/logging"

	"github.com/RyanBlaney/spectral-cluster/pkg/analysis/progress"
	"github.com/RyanBlaney/spectral-cluster/pkg/audio/features"
	"github.com/RyanBlaney/spectral-cluster/pkg/common"
)

// silentRMS is the max RMS under which a recording counts as silent
const silentRMS = 1e-9

// ZScoreMode selects which columns are standardized
type ZScoreMode string

const (
	ZScoreNone    ZScoreMode = "none"
	ZScoreAll     ZScoreMode = "all"
	ZScoreMelOnly ZScoreMode = "mel"
)

// Config contains frame selection thresholds
type Config struct {
	Segmenter             SegmenterConfig `mapstructure:"segmenter" json:"segmenter" yaml:"segmenter"`
	RMSRatio              float64         `mapstructure:"rms_ratio" json:"rms_ratio" yaml:"rms_ratio"`
	MinRMSAbsolute        float64         `mapstructure:"min_rms_absolute" json:"min_rms_absolute" yaml:"min_rms_absolute"`
	MinMelSumRatio        float64         `mapstructure:"min_mel_sum_ratio" json:"min_mel_sum_ratio" yaml:"min_mel_sum_ratio"`
	KeepSilenceFraction   float64         `mapstructure:"keep_silence_fraction" json:"keep_silence_fraction" yaml:"keep_silence_fraction"`
	MaxFramesPerRecording int             `mapstructure:"max_frames_per_recording" json:"max_frames_per_recording" yaml:"max_frames_per_recording"`
	MaxTotalFrames        int             `mapstructure:"max_total_frames" json:"max_total_frames" yaml:"max_total_frames"`
	ContextWindow         int             `mapstructure:"context_window" json:"context_window" yaml:"context_window"`
	LogMel                bool            `mapstructure:"log_mel" json:"log_mel" yaml:"log_mel"`
	ClampAbs              float64         `mapstructure:"clamp_abs" json:"clamp_abs" yaml:"clamp_abs"`
	ZScore                ZScoreMode      `mapstructure:"zscore" json:"zscore" yaml:"zscore"`
}

// DefaultConfig returns the default selection thresholds
func DefaultConfig() Config {
	return Config{
		Segmenter: SegmenterConfig{
			SilenceRMSRatio:  0.1,
			MinSilenceFrames: 5,
			MinSpeechFrames:  3,
		},
		RMSRatio:              0.05,
		MinRMSAbsolute:        1e-4,
		MinMelSumRatio:        0.01,
		KeepSilenceFraction:   0,
		MaxFramesPerRecording: 2000,
		MaxTotalFrames:        50000,
		ContextWindow:         0,
		LogMel:                true,
		ClampAbs:              1e6,
		ZScore:                ZScoreNone,
	}
}

// Validate rejects impossible thresholds
func (c Config) Validate() error {
	fields := logging.Fields{
		"keep_silence_fraction": c.KeepSilenceFraction,
		"context_window":        c.ContextWindow,
		"clamp_abs":             c.ClampAbs,
		"zscore":                string(c.ZScore),
	}
	switch {
	case c.KeepSilenceFraction < 0 || c.KeepSilenceFraction > 1:
		return common.InvalidConfig(common.StageSelection, "keep_silence_fraction must be in [0,1]", fields)
	case c.ContextWindow < 0:
		return common.InvalidConfig(common.StageSelection, "context_window cannot be negative", fields)
	case c.ClampAbs <= 0:
		return common.InvalidConfig(common.StageSelection, "clamp_abs must be positive", fields)
	}
	switch c.ZScore {
	case "", ZScoreNone, ZScoreAll, ZScoreMelOnly:
	default:
		return common.InvalidConfig(common.StageSelection, "unknown zscore mode", fields)
	}
	return nil
}

// Recording is one source feature matrix keyed by its id
type Recording struct {
	ID       string
	Features *features.FeatureMatrix
}

// Selector builds TrainingMatrices
type Selector struct {
	config    Config
	segmenter Segmenter
	logger    logging.Logger
	progress  *progress.Sink
}

// NewSelector creates a selector. A nil segmenter treats every frame as speech.
func NewSelector(config Config, segmenter Segmenter, sink *progress.Sink) *Selector {
	return &Selector{
		config:    config,
		segmenter: segmenter,
		progress:  sink,
		logger: logging.WithFields(logging.Fields{
			"component": "frame_selector",
		}),
	}
}

// Select filters and transforms recs into a training matrix
func (s *Selector) Select(ctx context.Context, recs []Recording) (*TrainingMatrix, error) {
	if err := s.config.Validate(); err != nil {
		return nil, err
	}
	base, nMels, err := commonShape(recs)
	if err != nil {
		return nil, err
	}

	logger := s.logger.WithFields(logging.Fields{
		"function":   "Select",
		"recordings": len(recs),
	})
	logger.Debug("Selecting training frames")

	globalMaxRMS := 0.0
	for _, r := range recs {
		globalMaxRMS = max(globalMaxRMS, maxOf(r.Features.RMS()))
	}
	thrRMS := math.Max(s.config.RMSRatio*globalMaxRMS, s.config.MinRMSAbsolute)

	tm := newTrainingMatrix(base, nMels, s.config.ContextWindow)
	limitReached := false

	for i, rec := range recs {
		stats := RecordingStats{ID: rec.ID, TotalFrames: rec.Features.Frames, ThresholdRMS: thrRMS}
		if limitReached {
			stats.Skipped = true
			tm.Stats = append(tm.Stats, stats)
			continue
		}

		frames := s.candidates(rec, thrRMS, &stats)
		if s.config.MaxTotalFrames > 0 {
			if remaining := s.config.MaxTotalFrames - tm.Rows; len(frames) >= remaining {
				frames = frames[:remaining]
				limitReached = true
			}
		}

		localMaxRMS := maxOf(rec.Features.RMS())
		for _, f := range frames {
			vec := buildVector(rec.Features, f, s.config.ContextWindow, localMaxRMS, s.config.LogMel, s.config.ClampAbs)
			if vec == nil {
				stats.Discarded++
				continue
			}
			tm.append(vec, RowRef{SourceID: rec.ID, FrameIndex: f, Timestamp: rec.Features.Timestamps[f]})
			stats.Selected++
		}
		if stats.TotalFrames > 0 {
			stats.SelectedPercent = 100 * float64(stats.Selected) / float64(stats.TotalFrames)
		}
		tm.Stats = append(tm.Stats, stats)

		logger.Debug("Recording selected", logging.Fields{
			"id":             rec.ID,
			"total_frames":   stats.TotalFrames,
			"speech_frames":  stats.SpeechFrames,
			"selected":       stats.Selected,
			"selected_pct":   stats.SelectedPercent,
			"silent":         stats.Silent,
			"threshold_rms":  stats.ThresholdRMS,
			"threshold_mel":  stats.ThresholdMelSum,
			"discarded_rows": stats.Discarded,
		})

		if err := progress.Checkpoint(ctx, s.progress, "select", float64(i+1)/float64(len(recs)), rec.ID); err != nil {
			return nil, err
		}
	}

	if tm.Rows == 0 {
		err := common.NewAnalysisErrorWithFields(common.StageSelection, common.ErrCodeEmptyTrainingSet,
			"no frames survived filtering", nil, logging.Fields{
				"recordings":        len(recs),
				"threshold_rms":     thrRMS,
				"min_mel_sum_ratio": s.config.MinMelSumRatio,
				"rms_ratio":         s.config.RMSRatio,
				"min_rms_absolute":  s.config.MinRMSAbsolute,
			})
		logger.Error(err, "Frame selection produced an empty training set")
		return nil, err
	}

	features.Sanitize(tm.Data)
	if mode := s.config.ZScore; mode == ZScoreAll || mode == ZScoreMelOnly {
		tm.standardize(mode)
	}

	logger.Info("Frame selection completed", logging.Fields{
		"rows":          tm.Rows,
		"dim":           tm.Dim,
		"limit_reached": limitReached,
	})
	return tm, nil
}

// candidates applies steps 1-6 to a single recording and returns sorted frame
// indices
func (s *Selector) candidates(rec Recording, thrRMS float64, stats *RecordingStats) []int {
	fm := rec.Features
	rms := fm.RMS()
	melSums := fm.MelSums()

	maxRMS := maxOf(rms)
	if maxRMS <= silentRMS {
		stats.Silent = true
		return nil
	}

	var segs []Segment
	if s.segmenter != nil {
		segs = s.segmenter.Segment(rms, maxRMS, s.config.Segmenter)
	}
	speech := speechMask(segs, fm.Frames, len(segs) > 0)

	thrMel := s.config.MinMelSumRatio * maxOf(melSums)
	stats.ThresholdMelSum = thrMel

	var speechFrames, silenceFrames []int
	for f, isSpeech := range speech {
		if isSpeech {
			speechFrames = append(speechFrames, f)
		} else {
			silenceFrames = append(silenceFrames, f)
		}
	}
	stats.SpeechFrames = len(speechFrames)
	stats.SilenceFrames = len(silenceFrames)

	keepSilence := int(math.Round(s.config.KeepSilenceFraction * float64(len(silenceFrames))))
	pool := mergeSorted(speechFrames, uniformSubsample(silenceFrames, keepSilence))

	out := pool[:0]
	for _, f := range pool {
		if rms[f] >= thrRMS && melSums[f] >= thrMel {
			out = append(out, f)
		}
	}
	stats.Candidates = len(out)

	if s.config.MaxFramesPerRecording > 0 && len(out) > s.config.MaxFramesPerRecording {
		out = uniformSubsample(out, s.config.MaxFramesPerRecording)
	}
	return out
}

// buildVector produces the transformed, possibly context-stacked vector of
// frame f, or nil when it still holds non-finite values after clamping
func buildVector(fm *features.FeatureMatrix, f, window int, localMaxRMS float64, logMel bool, clamp float64) []float64 {
	d := fm.Dim
	nyquist := float64(fm.SampleRate) / 2
	vec := make([]float64, 0, d*(2*window+1))
	for o := -window; o <= window; o++ {
		idx := f + o
		if idx < 0 || idx >= fm.Frames {
			vec = append(vec, make([]float64, d)...)
			continue
		}
		frame := fm.Frame(idx)
		for _, m := range frame.Mel {
			if logMel {
				m = math.Log1p(math.Max(m, 0))
			}
			vec = append(vec, m)
		}
		vec = append(vec, safeDiv(frame.RMS, localMaxRMS), safeDiv(frame.CentroidHz, nyquist), frame.ZCR)
	}
	for i, v := range vec {
		if v > clamp {
			vec[i] = clamp
		} else if v < -clamp {
			vec[i] = -clamp
		}
	}
	if !features.IsFinite(vec) {
		return nil
	}
	return vec
}

func commonShape(recs []Recording) (dim, nMels int, err error) {
	for _, r := range recs {
		if r.Features == nil {
			return 0, 0, common.InvalidConfig(common.StageSelection, "recording has no features", logging.Fields{"id": r.ID})
		}
		if dim == 0 {
			dim, nMels = r.Features.Dim, r.Features.NMels
			continue
		}
		if r.Features.Dim != dim || r.Features.NMels != nMels {
			return 0, 0, common.InvalidConfig(common.StageSelection, "recordings disagree on feature dimension", logging.Fields{
				"id":       r.ID,
				"dim":      r.Features.Dim,
				"expected": dim,
			})
		}
	}
	if dim == 0 {
		return 0, 0, common.NewAnalysisError(common.StageSelection, common.ErrCodeEmptyTrainingSet, "no recordings to select from", nil)
	}
	return dim, nMels, nil
}

// uniformSubsample keeps n evenly spaced elements of idx
func uniformSubsample(idx []int, n int) []int {
	if n <= 0 {
		return nil
	}
	if n >= len(idx) {
		return idx
	}
	out := make([]int, n)
	step := float64(len(idx)) / float64(n)
	for i := range out {
		out[i] = idx[int(float64(i)*step)]
	}
	return out
}

func mergeSorted(a, b []int) []int {
	out := make([]int, 0, len(a)+len(b))
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		if a[i] < b[j] {
			out = append(out, a[i])
			i++
		} else {
			out = append(out, b[j])
			j++
		}
	}
	out = append(out, a[i:]...)
	return append(out, b[j:]...)
}

func maxOf(v []float64) float64 {
	m := 0.0
	for _, x := range v {
		if x > m {
			m = x
		}
	}
	return m
}

func safeDiv(a, b float64) float64 {
	if b <= 0 {
		return 0
	}
	return a / b
}
