package features

import (
	"context"
	"math"
	"math/cmplx"
	"testing"

	"github.com/RyanBlaney/sonido-sonar/algorithms/spectral"
	"github.com/mjibson/go-dsp/fft"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RyanBlaney/spectral-cluster/pkg/common"
)

func sineBuffer(n, sampleRate int, freq, amp float64) SampleBuffer {
	samples := make([]float32, n)
	for i := range samples {
		samples[i] = float32(amp * math.Sin(2*math.Pi*freq*float64(i)/float64(sampleRate)))
	}
	return SampleBuffer{Samples: samples, SampleRate: sampleRate}
}

func TestFFTZeroVector(t *testing.T) {
	for _, n := range []int{1, 2, 4, 64, 1024} {
		re := make([]float64, n)
		im := make([]float64, n)
		require.NoError(t, FFT(re, im))
		for i := range re {
			assert.Zero(t, re[i])
			assert.Zero(t, im[i])
		}
	}
}

func TestFFTRejectsNonPowerOfTwo(t *testing.T) {
	err := FFT(make([]float64, 12), make([]float64, 12))
	assert.ErrorIs(t, err, ErrNotPowerOfTwo)
}

func TestFFTInverseRoundTrip(t *testing.T) {
	for _, n := range []int{2, 8, 256, 2048} {
		re := make([]float64, n)
		im := make([]float64, n)
		orig := make([]float64, n)
		for i := range re {
			re[i] = math.Sin(float64(i)*0.37) + 0.25*math.Cos(float64(i)*1.91)
			orig[i] = re[i]
		}
		require.NoError(t, FFT(re, im))
		require.NoError(t, IFFT(re, im))
		for i := range re {
			assert.InDelta(t, orig[i], re[i], 1e-9, "n=%d i=%d", n, i)
			assert.InDelta(t, 0, im[i], 1e-9, "n=%d i=%d", n, i)
		}
	}
}

func TestFFTMatchesGoDSP(t *testing.T) {
	n := 512
	signal := make([]float64, n)
	for i := range signal {
		signal[i] = math.Sin(2*math.Pi*13*float64(i)/float64(n)) + 0.1*float64(i%7)
	}
	re := append([]float64(nil), signal...)
	im := make([]float64, n)
	require.NoError(t, FFT(re, im))

	want := fft.FFTReal(signal)
	for i := range want {
		assert.InDelta(t, real(want[i]), re[i], 1e-7)
		assert.InDelta(t, imag(want[i]), im[i], 1e-7)
		assert.InDelta(t, cmplx.Abs(want[i]), math.Hypot(re[i], im[i]), 1e-7)
	}
}

func TestMagnitudeSpectrumCoercesNonFinite(t *testing.T) {
	re := []float64{3, math.NaN(), math.Inf(1)}
	im := []float64{4, 1, 0}
	dst := make([]float64, 3)
	MagnitudeSpectrum(re, im, dst)
	assert.Equal(t, []float64{5, 1, 0}, dst)
}

func TestHannWindow(t *testing.T) {
	assert.Equal(t, []float64{1}, HannWindow(1))

	w := HannWindow(9)
	require.Len(t, w, 9)
	assert.InDelta(t, 0, w[0], 1e-12)
	assert.InDelta(t, 1, w[4], 1e-12)
	assert.InDelta(t, 0, w[8], 1e-12)
	assert.InDelta(t, w[2], w[6], 1e-12)
}

func TestMelFilterBankTriangles(t *testing.T) {
	sampleRate, fftSize := 16000, 1024
	bank := MelFilterBank(10, fftSize, sampleRate, 0, 0)
	require.Len(t, bank, 10)

	binHz := float64(sampleRate) / float64(fftSize)
	for i, f := range bank {
		require.Len(t, f.Weights, fftSize/2+1)
		assert.Equal(t, 1.0, f.TriangleWeight(f.CenterHz), "filter %d peak", i)

		peaks := 0
		for k, w := range f.Weights {
			freq := float64(k) * binHz
			if freq < f.LowerHz || freq > f.UpperHz {
				assert.Zero(t, w, "filter %d bin %d outside its band", i, k)
			}
			assert.LessOrEqual(t, w, 1.0)
			if k > 0 && k < len(f.Weights)-1 && w > f.Weights[k-1] && w >= f.Weights[k+1] {
				peaks++
			}
		}
		assert.LessOrEqual(t, peaks, 1, "filter %d has more than one peak", i)
		assert.Zero(t, f.TriangleWeight(f.LowerHz-1))
		assert.Zero(t, f.TriangleWeight(f.UpperHz+1))
	}

	assert.InDelta(t, 0, bank[0].LowerHz, 1e-9)
	assert.InDelta(t, 8000, bank[9].UpperHz, 1e-6)
}

func TestMelConversionRoundTrip(t *testing.T) {
	assert.InDelta(t, 1000.0, HzToMel(1000), 1.0)
	assert.InDelta(t, 440.0, MelToHz(HzToMel(440)), 1e-9)
}

func TestFrameScalars(t *testing.T) {
	assert.Zero(t, FrameRMS(make([]float64, 32)))
	assert.Zero(t, ZeroCrossingRate([]float64{0.1, 0.4, 0.2, 0.9}))
	assert.Zero(t, ZeroCrossingRate([]float64{-0.1, -0.4, -0.2}))
	assert.InDelta(t, 1.0, ZeroCrossingRate([]float64{1, -1, 1, -1}), 1e-12)
	assert.InDelta(t, 1.0, FrameRMS([]float64{1, -1, 1, -1}), 1e-12)
}

func TestSpectralCentroidMatchesSonido(t *testing.T) {
	sampleRate, fftSize := 22050, 1024
	magnitude := make([]float64, fftSize/2+1)
	for i := range magnitude {
		magnitude[i] = 1 / (1 + math.Abs(float64(i)-80))
	}
	want := spectral.NewSpectralCentroid(sampleRate).Compute(magnitude)
	assert.InDelta(t, want, SpectralCentroid(magnitude, sampleRate, fftSize), 1e-6)
	assert.Zero(t, SpectralCentroid(make([]float64, 10), sampleRate, 18))
}

func TestExtractSineScenario(t *testing.T) {
	buf := sineBuffer(4096, 16000, 1000, 0.5)
	ex := NewExtractor(Config{FFTSize: 1024, HopSize: 512, NMels: 8, Window: "hann"}, nil)

	m, err := ex.Extract(context.Background(), buf)
	require.NoError(t, err)

	assert.Equal(t, 7, m.Frames)
	assert.Equal(t, 11, m.Dim)
	assert.Len(t, m.Data, m.Frames*m.Dim)
	require.Len(t, m.Timestamps, 7)
	assert.InDelta(t, 512.0/16000, m.Timestamps[1], 1e-12)

	rms := m.RMS()
	for i, r := range rms {
		assert.Greater(t, r, 0.0, "frame %d", i)
		assert.InDelta(t, rms[0], r, rms[0]*0.05, "frame %d", i)
	}
	for i, c := range m.Centroids() {
		assert.InDelta(t, 1000, c, 100, "frame %d centroid", i)
	}

	frame := m.Frame(3)
	assert.Len(t, frame.Mel, 8)
	assert.Equal(t, m.Row(3), frame.Vector())
	assert.Greater(t, frame.ZCR, 0.0)
	assert.LessOrEqual(t, frame.ZCR, 1.0)
}

func TestExtractRoundsFFTSize(t *testing.T) {
	buf := sineBuffer(8000, 8000, 440, 0.3)
	ex := NewExtractor(Config{FFTSize: 1000, HopSize: 250, NMels: 16}, nil)

	m, err := ex.Extract(context.Background(), buf)
	require.NoError(t, err)
	assert.Equal(t, 1024, m.FFTSize)
	assert.Equal(t, FrameCount(8000, 1024, 250), m.Frames)
	assert.True(t, common.HasWarning(ex.Warnings(), common.WarnCodeFFTSizeRounded))
}

func TestExtractShortBufferYieldsNoFrames(t *testing.T) {
	ex := NewExtractor(DefaultConfig(), nil)
	m, err := ex.Extract(context.Background(), SampleBuffer{Samples: make([]float32, 100), SampleRate: 44100})
	require.NoError(t, err)
	assert.Zero(t, m.Frames)
	assert.Empty(t, m.Data)
}

func TestExtractSanitizesNonFiniteSamples(t *testing.T) {
	buf := sineBuffer(2048, 8000, 300, 0.5)
	buf.Samples[100] = float32(math.NaN())
	buf.Samples[700] = float32(math.Inf(1))

	m, err := NewExtractor(Config{FFTSize: 512, HopSize: 256, NMels: 12}, nil).Extract(context.Background(), buf)
	require.NoError(t, err)
	assert.True(t, IsFinite(m.Data))
}

func TestExtractErrors(t *testing.T) {
	ex := NewExtractor(Config{FFTSize: 0, HopSize: 512, NMels: 8}, nil)
	_, err := ex.Extract(context.Background(), sineBuffer(4096, 16000, 100, 1))
	assert.ErrorIs(t, err, common.ErrInvalidConfig)

	ex = NewExtractor(DefaultConfig(), nil)
	_, err = ex.Extract(context.Background(), SampleBuffer{SampleRate: 16000})
	assert.ErrorIs(t, err, common.ErrNoAudioChannel)

	_, err = ex.Extract(context.Background(), SampleBuffer{Samples: make([]float32, 10)})
	assert.ErrorIs(t, err, common.ErrInvalidConfig)
}

func TestExtractHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	ex := NewExtractor(Config{FFTSize: 256, HopSize: 64, NMels: 8}, nil)
	_, err := ex.Extract(ctx, sineBuffer(64*256, 16000, 500, 0.5))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSanitize(t *testing.T) {
	v := []float64{1, math.NaN(), math.Inf(-1), 2}
	assert.Equal(t, 2, Sanitize(v))
	assert.Equal(t, []float64{1, 0, 0, 2}, v)
	assert.True(t, IsFinite(v))
}
