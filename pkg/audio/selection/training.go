package selection

import (
	"context"
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/RyanBlaney/spectral-cluster/pkg/audio/features"
	"github.com/RyanBlaney/spectral-cluster/pkg/common"
)

// varianceFloor keeps zero-variance columns from dividing by zero
const varianceFloor = 1e-12

// RowRef maps a training row back to its source frame
type RowRef struct {
	SourceID   string  `json:"source_id" yaml:"source_id"`
	FrameIndex int     `json:"frame_index" yaml:"frame_index"`
	Timestamp  float64 `json:"timestamp" yaml:"timestamp"`
}

// RecordingStats holds per-recording selection diagnostics
type RecordingStats struct {
	ID              string  `json:"id" yaml:"id"`
	TotalFrames     int     `json:"total_frames" yaml:"total_frames"`
	SpeechFrames    int     `json:"speech_frames" yaml:"speech_frames"`
	SilenceFrames   int     `json:"silence_frames" yaml:"silence_frames"`
	Candidates      int     `json:"candidates" yaml:"candidates"`
	Selected        int     `json:"selected" yaml:"selected"`
	Discarded       int     `json:"discarded" yaml:"discarded"`
	SelectedPercent float64 `json:"selected_percent" yaml:"selected_percent"`
	ThresholdRMS    float64 `json:"threshold_rms" yaml:"threshold_rms"`
	ThresholdMelSum float64 `json:"threshold_mel_sum" yaml:"threshold_mel_sum"`
	Silent          bool    `json:"silent" yaml:"silent"`
	Skipped         bool    `json:"skipped,omitempty" yaml:"skipped,omitempty"` // global frame limit reached first
}

// Normalization carries the column statistics of a z-scored matrix so new
// data can be prepared identically
type Normalization struct {
	Mode ZScoreMode `json:"mode" yaml:"mode"`
	Mean []float64  `json:"mean,omitempty" yaml:"mean,omitempty"`
	Std  []float64  `json:"std,omitempty" yaml:"std,omitempty"`
}

// Apply standardizes vec in place
func (n Normalization) Apply(vec []float64) {
	if len(n.Mean) != len(vec) {
		return
	}
	for j := range vec {
		vec[j] = (vec[j] - n.Mean[j]) / n.Std[j]
	}
}

// TrainingMatrix is the filtered, transformed matrix fed to PCA and K-means
type TrainingMatrix struct {
	Data          []float64        `json:"data"`
	Rows          int              `json:"rows"`
	Dim           int              `json:"dim"`
	BaseDim       int              `json:"base_dim"` // per-frame dimension before context stacking
	NMels         int              `json:"n_mels"`
	ContextWindow int              `json:"context_window"`
	Index         []RowRef         `json:"index"`
	Stats         []RecordingStats `json:"stats"`
	Normalization Normalization    `json:"normalization"`
}

func newTrainingMatrix(baseDim, nMels, window int) *TrainingMatrix {
	return &TrainingMatrix{
		Dim:           baseDim * (2*window + 1),
		BaseDim:       baseDim,
		NMels:         nMels,
		ContextWindow: window,
		Normalization: Normalization{Mode: ZScoreNone},
	}
}

func (t *TrainingMatrix) append(vec []float64, ref RowRef) {
	t.Data = append(t.Data, vec...)
	t.Index = append(t.Index, ref)
	t.Rows++
}

// Row returns a view of row i
func (t *TrainingMatrix) Row(i int) []float64 {
	return t.Data[i*t.Dim : (i+1)*t.Dim]
}

// isMelColumn reports whether column j derives from a mel band
func (t *TrainingMatrix) isMelColumn(j int) bool {
	return j%t.BaseDim < t.NMels
}

// standardize z-scores columns in place; columns excluded by mode keep mean
// 0 and std 1 so Normalization.Apply leaves them untouched
func (t *TrainingMatrix) standardize(mode ZScoreMode) {
	mean := make([]float64, t.Dim)
	std := make([]float64, t.Dim)
	col := make([]float64, t.Rows)
	for j := range t.Dim {
		std[j] = 1
		if mode == ZScoreMelOnly && !t.isMelColumn(j) {
			continue
		}
		for i := range t.Rows {
			col[i] = t.Data[i*t.Dim+j]
		}
		m, v := stat.PopMeanVariance(col, nil)
		mean[j] = m
		std[j] = math.Sqrt(math.Max(v, varianceFloor))
	}
	t.Normalization = Normalization{Mode: mode, Mean: mean, Std: std}
	for i := range t.Rows {
		t.Normalization.Apply(t.Row(i))
	}
	features.Sanitize(t.Data)
}

// Prepare transforms every frame of rec the same way Select does, without
// any filtering, and applies norm when it carries statistics. It is used to
// project new recordings through an already trained pipeline.
func (s *Selector) Prepare(ctx context.Context, rec Recording, norm *Normalization) (*TrainingMatrix, error) {
	if err := s.config.Validate(); err != nil {
		return nil, err
	}
	if rec.Features == nil {
		return nil, common.InvalidConfig(common.StageSelection, "recording has no features", nil)
	}
	fm := rec.Features
	tm := newTrainingMatrix(fm.Dim, fm.NMels, s.config.ContextWindow)
	localMaxRMS := maxOf(fm.RMS())
	for f := range fm.Frames {
		vec := buildVector(fm, f, s.config.ContextWindow, localMaxRMS, s.config.LogMel, s.config.ClampAbs)
		if vec == nil {
			vec = make([]float64, tm.Dim)
		}
		if norm != nil {
			norm.Apply(vec)
		}
		tm.append(vec, RowRef{SourceID: rec.ID, FrameIndex: f, Timestamp: fm.Timestamps[f]})
		if (f+1)%256 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
	}
	if norm != nil {
		tm.Normalization = *norm
	}
	features.Sanitize(tm.Data)
	return tm, nil
}
