// Package features turns a mono sample buffer into per-frame spectral
// feature vectors: mel-band energies followed by RMS, spectral centroid and
// zero-crossing rate.
package features

import (
	"context"
	"fmt"

	"github.com/RyanBlaney/latency-benchmark-common/logging"

	"github.com/RyanBlaney/spectral-cluster/pkg/analysis/progress"
	"github.com/RyanBlaney/spectral-cluster/pkg/common"
)

// frames processed between cancellation checkpoints
const frameBatch = 64

// Config contains spectral feature extraction settings
type Config struct {
	FFTSize int     `mapstructure:"fft_size" json:"fft_size" yaml:"fft_size"`
	HopSize int     `mapstructure:"hop_size" json:"hop_size" yaml:"hop_size"`
	NMels   int     `mapstructure:"n_mels" json:"n_mels" yaml:"n_mels"`
	Window  string  `mapstructure:"window" json:"window" yaml:"window"`
	FMin    float64 `mapstructure:"fmin" json:"fmin" yaml:"fmin"`
	FMax    float64 `mapstructure:"fmax" json:"fmax" yaml:"fmax"` // 0 means sampleRate/2
}

// DefaultConfig returns the default extraction settings
func DefaultConfig() Config {
	return Config{
		FFTSize: 2048,
		HopSize: 512,
		NMels:   40,
		Window:  string(WindowHann),
	}
}

// Validate rejects non-positive dimensions. A non power-of-two FFT size is
// not an error; the extractor rounds it up.
func (c Config) Validate() error {
	if c.FFTSize <= 0 || c.HopSize <= 0 || c.NMels <= 0 {
		return common.InvalidConfig(common.StageExtraction, "fft_size, hop_size and n_mels must be positive", logging.Fields{
			"fft_size": c.FFTSize,
			"hop_size": c.HopSize,
			"n_mels":   c.NMels,
		})
	}
	if _, err := ParseWindowType(c.Window); err != nil {
		return common.NewAnalysisError(common.StageExtraction, common.ErrCodeInvalidConfig, "invalid window", err)
	}
	return nil
}

// Extractor computes FeatureMatrices
type Extractor struct {
	config   Config
	logger   logging.Logger
	progress *progress.Sink
	warnings []common.Warning
}

// NewExtractor creates an extractor. sink may be nil.
func NewExtractor(config Config, sink *progress.Sink) *Extractor {
	return &Extractor{
		config:   config,
		progress: sink,
		logger: logging.WithFields(logging.Fields{
			"component": "spectral_feature_extractor",
		}),
	}
}

// Warnings returns the non-fatal conditions met during the last Extract call
func (e *Extractor) Warnings() []common.Warning {
	return e.warnings
}

// FrameCount is max(0, floor((nSamples-fftSize)/hopSize)+1)
func FrameCount(nSamples, fftSize, hopSize int) int {
	if hopSize <= 0 || nSamples < fftSize {
		return 0
	}
	return (nSamples-fftSize)/hopSize + 1
}

// Extract computes the FeatureMatrix of buf
func (e *Extractor) Extract(ctx context.Context, buf SampleBuffer) (*FeatureMatrix, error) {
	e.warnings = nil
	if err := e.config.Validate(); err != nil {
		return nil, err
	}
	if buf.SampleRate <= 0 {
		return nil, common.InvalidConfig(common.StageExtraction, "sample rate must be positive", logging.Fields{
			"sample_rate": buf.SampleRate,
		})
	}
	if buf.Samples == nil {
		return nil, common.NewAnalysisError(common.StageExtraction, common.ErrCodeNoAudioChannel,
			"sample buffer has no audio channel", nil)
	}

	fftSize := e.config.FFTSize
	if !IsPowerOfTwo(fftSize) {
		rounded := NextPowerOfTwo(fftSize)
		e.logger.Warn("FFT size is not a power of two, rounding up", logging.Fields{
			"requested": fftSize,
			"rounded":   rounded,
		})
		e.warnings = append(e.warnings, common.Warning{
			Stage:   common.StageExtraction,
			Code:    common.WarnCodeFFTSizeRounded,
			Message: fmt.Sprintf("fft size %d rounded up to %d", fftSize, rounded),
		})
		fftSize = rounded
	}
	hop := e.config.HopSize
	nMels := e.config.NMels

	logger := e.logger.WithFields(logging.Fields{
		"function":    "Extract",
		"samples":     len(buf.Samples),
		"sample_rate": buf.SampleRate,
		"fft_size":    fftSize,
		"hop_size":    hop,
		"n_mels":      nMels,
	})
	logger.Debug("Extracting spectral features")

	nFrames := FrameCount(len(buf.Samples), fftSize, hop)
	window := HannWindow(fftSize)
	bank := MelFilterBank(nMels, fftSize, buf.SampleRate, e.config.FMin, e.config.FMax)

	frames := make([]FeatureFrame, nFrames)
	windowed := make([]float64, fftSize)
	re := make([]float64, fftSize)
	im := make([]float64, fftSize)
	magnitude := make([]float64, fftSize/2+1)

	for f := range nFrames {
		start := f * hop
		for i := range fftSize {
			s := 0.0
			if idx := start + i; idx < len(buf.Samples) {
				s = finiteOrZero(float64(buf.Samples[idx]))
			}
			windowed[i] = s * window[i]
			re[i] = windowed[i]
			im[i] = 0
		}

		if err := FFT(re, im); err != nil {
			return nil, fmt.Errorf("frame %d: %w", f, err)
		}
		MagnitudeSpectrum(re, im, magnitude)

		mel := make([]float64, nMels)
		for m, filter := range bank {
			mel[m] = filter.Apply(magnitude)
		}

		frames[f] = FeatureFrame{
			Mel:        mel,
			RMS:        FrameRMS(windowed),
			CentroidHz: SpectralCentroid(magnitude, buf.SampleRate, fftSize),
			ZCR:        ZeroCrossingRate(windowed),
		}

		if (f+1)%frameBatch == 0 {
			if err := progress.Checkpoint(ctx, e.progress, "extract", float64(f+1)/float64(nFrames), ""); err != nil {
				return nil, err
			}
		}
	}

	matrix := NewFeatureMatrix(frames, buf.SampleRate, fftSize, hop, nMels)
	e.progress.Report("extract", 1, "")

	logger.Info("Spectral feature extraction completed", logging.Fields{
		"frames": matrix.Frames,
		"dim":    matrix.Dim,
	})
	return matrix, nil
}
