package selection

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/RyanBlaney/spectral-cluster/pkg/audio/features"
	"github.com/RyanBlaney/spectral-cluster/pkg/common"
)

const (
	testSampleRate = 16000
	testHop        = 512
	testMels       = 4
)

// makeMatrix builds a recording whose frame i has RMS rms[i] and mel
// energies proportional to it
func makeMatrix(rms []float64) *features.FeatureMatrix {
	frames := make([]features.FeatureFrame, len(rms))
	for i, r := range rms {
		mel := make([]float64, testMels)
		for m := range mel {
			mel[m] = r * float64(m+1) * 10
		}
		frames[i] = features.FeatureFrame{Mel: mel, RMS: r, CentroidHz: 1000 + float64(i), ZCR: 0.1}
	}
	return features.NewFeatureMatrix(frames, testSampleRate, 1024, testHop, testMels)
}

func noLimits() Config {
	cfg := DefaultConfig()
	cfg.MaxFramesPerRecording = 0
	cfg.MaxTotalFrames = 0
	cfg.MinMelSumRatio = 0
	return cfg
}

type SelectorTestSuite struct {
	suite.Suite
	loud   *features.FeatureMatrix
	quiet  *features.FeatureMatrix
	silent *features.FeatureMatrix
}

func (s *SelectorTestSuite) SetupSuite() {
	loud := make([]float64, 40)
	for i := range loud {
		loud[i] = 0.5
		if i >= 10 && i < 20 {
			loud[i] = 0.001 // a pause
		}
	}
	s.loud = makeMatrix(loud)

	quiet := make([]float64, 20)
	for i := range quiet {
		quiet[i] = 0.2
	}
	s.quiet = makeMatrix(quiet)
	s.silent = makeMatrix(make([]float64, 15))
}

func (s *SelectorTestSuite) TestNoSegmenterKeepsLoudFrames() {
	sel := NewSelector(noLimits(), nil, nil)
	tm, err := sel.Select(context.Background(), []Recording{{ID: "a", Features: s.loud}})
	s.Require().NoError(err)

	// thrRMS = max(0.05*0.5, 1e-4) = 0.025, so the pause drops out
	s.Equal(30, tm.Rows)
	s.Equal(s.loud.Dim, tm.Dim)
	s.Len(tm.Data, tm.Rows*tm.Dim)
	s.Len(tm.Index, tm.Rows)
	s.Equal(9, tm.Index[9].FrameIndex)
	s.Equal(20, tm.Index[10].FrameIndex)
	s.InDelta(20*float64(testHop)/testSampleRate, tm.Index[10].Timestamp, 1e-12)

	stats := tm.Stats[0]
	s.Equal(40, stats.TotalFrames)
	s.Equal(30, stats.Selected)
	s.InDelta(75.0, stats.SelectedPercent, 1e-9)
}

func (s *SelectorTestSuite) TestSilentRecordingIsNotAnError() {
	sel := NewSelector(noLimits(), nil, nil)
	tm, err := sel.Select(context.Background(), []Recording{
		{ID: "silent", Features: s.silent},
		{ID: "quiet", Features: s.quiet},
	})
	s.Require().NoError(err)
	s.True(tm.Stats[0].Silent)
	s.Zero(tm.Stats[0].Selected)
	s.Equal(20, tm.Stats[1].Selected)
}

func (s *SelectorTestSuite) TestOnlySilentRecordingsFail() {
	sel := NewSelector(noLimits(), nil, nil)
	_, err := sel.Select(context.Background(), []Recording{{ID: "silent", Features: s.silent}})
	s.Require().ErrorIs(err, common.ErrEmptyTrainingSet)

	var ae *common.AnalysisError
	s.Require().ErrorAs(err, &ae)
	s.Contains(ae.Fields, "threshold_rms")
}

func (s *SelectorTestSuite) TestGlobalMaxRMSSharedAcrossRecordings() {
	cfg := noLimits()
	cfg.RMSRatio = 0.5 // 0.25 of the loud recording's 0.5 peak
	sel := NewSelector(cfg, nil, nil)
	tm, err := sel.Select(context.Background(), []Recording{
		{ID: "loud", Features: s.loud},
		{ID: "quiet", Features: s.quiet},
	})
	s.Require().NoError(err)
	s.Equal(30, tm.Stats[0].Selected)
	s.Zero(tm.Stats[1].Selected)
}

func (s *SelectorTestSuite) TestSegmenterAndSilenceFraction() {
	// everything after frame 30 is "silence" per the collaborator
	seg := SegmenterFunc(func(rms []float64, maxRMS float64, cfg SegmenterConfig) []Segment {
		return []Segment{
			{StartFrame: 0, EndFrame: 30, Type: SegmentSpeech},
			{StartFrame: 30, EndFrame: len(rms), Type: SegmentSilence},
		}
	})

	cfg := noLimits()
	sel := NewSelector(cfg, seg, nil)
	tm, err := sel.Select(context.Background(), []Recording{{ID: "a", Features: s.loud}})
	s.Require().NoError(err)
	s.Equal(20, tm.Rows)
	s.Equal(30, tm.Stats[0].SpeechFrames)
	s.Equal(10, tm.Stats[0].SilenceFrames)

	cfg.KeepSilenceFraction = 0.5
	sel = NewSelector(cfg, seg, nil)
	tm, err = sel.Select(context.Background(), []Recording{{ID: "a", Features: s.loud}})
	s.Require().NoError(err)
	s.Equal(25, tm.Rows)
	for i := 1; i < tm.Rows; i++ {
		s.Less(tm.Index[i-1].FrameIndex, tm.Index[i].FrameIndex)
	}
}

func (s *SelectorTestSuite) TestCaps() {
	cfg := noLimits()
	cfg.MaxFramesPerRecording = 10
	cfg.MaxTotalFrames = 15
	sel := NewSelector(cfg, nil, nil)
	tm, err := sel.Select(context.Background(), []Recording{
		{ID: "a", Features: s.loud},
		{ID: "b", Features: s.quiet},
		{ID: "c", Features: s.quiet},
	})
	s.Require().NoError(err)
	s.Equal(15, tm.Rows)
	s.Equal(10, tm.Stats[0].Selected)
	s.Equal(5, tm.Stats[1].Selected)
	s.True(tm.Stats[2].Skipped)
}

func (s *SelectorTestSuite) TestVectorTransform() {
	cfg := noLimits()
	cfg.LogMel = true
	sel := NewSelector(cfg, nil, nil)
	tm, err := sel.Select(context.Background(), []Recording{{ID: "q", Features: s.quiet}})
	s.Require().NoError(err)

	row := tm.Row(0)
	s.InDelta(math.Log1p(0.2*10), row[0], 1e-12)
	s.InDelta(1.0, row[testMels], 1e-12) // rms / local max
	s.InDelta(1000.0/8000, row[testMels+1], 1e-12)
	s.InDelta(0.1, row[testMels+2], 1e-12)
}

func (s *SelectorTestSuite) TestContextWindowZeroFillsBoundaries() {
	cfg := noLimits()
	cfg.ContextWindow = 2
	cfg.LogMel = false
	sel := NewSelector(cfg, nil, nil)
	tm, err := sel.Select(context.Background(), []Recording{{ID: "q", Features: s.quiet}})
	s.Require().NoError(err)

	base := s.quiet.Dim
	s.Equal(base*5, tm.Dim)
	first := tm.Row(0)
	for j := 0; j < 2*base; j++ {
		s.Zero(first[j], "column %d should be zero padding", j)
	}
	s.InDelta(2.0, first[2*base], 1e-12) // centre frame mel_0 = 0.2*10
	last := tm.Row(tm.Rows - 1)
	for j := 3 * base; j < 5*base; j++ {
		s.Zero(last[j])
	}
}

func (s *SelectorTestSuite) TestZScore() {
	rms := make([]float64, 30)
	for i := range rms {
		rms[i] = 0.1 + 0.01*float64(i)
	}
	fm := makeMatrix(rms)

	for _, mode := range []ZScoreMode{ZScoreAll, ZScoreMelOnly} {
		cfg := noLimits()
		cfg.ZScore = mode
		tm, err := NewSelector(cfg, nil, nil).Select(context.Background(), []Recording{{ID: "z", Features: fm}})
		s.Require().NoError(err)

		for j := range tm.Dim {
			sum, sq := 0.0, 0.0
			for i := range tm.Rows {
				v := tm.Data[i*tm.Dim+j]
				sum += v
				sq += v * v
			}
			mean := sum / float64(tm.Rows)
			variance := sq/float64(tm.Rows) - mean*mean
			isMel := j < testMels
			zero := j == testMels+2 // constant ZCR column
			switch {
			case mode == ZScoreAll && zero:
				s.InDelta(0, mean, 1e-9)
				s.InDelta(0, variance, 1e-9)
			case mode == ZScoreAll || isMel:
				s.InDelta(0, mean, 1e-9, "mode %s column %d", mode, j)
				s.InDelta(1, variance, 1e-6, "mode %s column %d", mode, j)
			default:
				s.Equal(1.0, tm.Normalization.Std[j])
			}
		}
	}
}

func TestSelectorTestSuite(t *testing.T) {
	suite.Run(t, new(SelectorTestSuite))
}

func TestSelectRejectsMismatchedDims(t *testing.T) {
	a := makeMatrix([]float64{0.5, 0.5})
	b := features.NewFeatureMatrix([]features.FeatureFrame{{Mel: []float64{1, 2}, RMS: 0.5}}, testSampleRate, 1024, testHop, 2)
	_, err := NewSelector(DefaultConfig(), nil, nil).Select(context.Background(), []Recording{{ID: "a", Features: a}, {ID: "b", Features: b}})
	assert.ErrorIs(t, err, common.ErrInvalidConfig)
}

func TestSelectValidatesConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.KeepSilenceFraction = 2
	_, err := NewSelector(cfg, nil, nil).Select(context.Background(), nil)
	assert.ErrorIs(t, err, common.ErrInvalidConfig)
}

func TestEnergySegmenter(t *testing.T) {
	rms := []float64{1, 1, 1, 0, 1, 1, 1, 0, 0, 0, 0, 0, 0, 1, 0, 0, 0, 0, 0}
	segs := EnergySegmenter{}.Segment(rms, 1, SegmenterConfig{SilenceRMSRatio: 0.5, MinSilenceFrames: 3, MinSpeechFrames: 2})

	require.Len(t, segs, 2)
	assert.Equal(t, Segment{StartFrame: 0, EndFrame: 7, Type: SegmentSpeech}, segs[0])
	assert.Equal(t, Segment{StartFrame: 7, EndFrame: 19, Type: SegmentSilence}, segs[1])
}

func TestUniformSubsample(t *testing.T) {
	idx := []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}
	assert.Equal(t, []int{0, 2, 4, 6, 8}, uniformSubsample(idx, 5))
	assert.Equal(t, idx, uniformSubsample(idx, 20))
	assert.Nil(t, uniformSubsample(idx, 0))
}

func TestPrepareAppliesNormalization(t *testing.T) {
	fm := makeMatrix([]float64{0.1, 0.2, 0.3, 0.4})
	cfg := noLimits()
	cfg.ZScore = ZScoreAll
	sel := NewSelector(cfg, nil, nil)
	tm, err := sel.Select(context.Background(), []Recording{{ID: "a", Features: fm}})
	require.NoError(t, err)

	norm := tm.Normalization
	prepared, err := sel.Prepare(context.Background(), Recording{ID: "a", Features: fm}, &norm)
	require.NoError(t, err)
	assert.Equal(t, fm.Frames, prepared.Rows)
	assert.InDeltaSlice(t, tm.Row(1), prepared.Row(1), 1e-12)
}
