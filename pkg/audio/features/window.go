package features

import (
	"fmt"
	"math"
	"strings"
)

// WindowType names a supported analysis window
type WindowType string

const (
	WindowHann WindowType = "hann"
)

// ParseWindowType normalizes a configured window name
func ParseWindowType(s string) (WindowType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "hann", "hanning":
		return WindowHann, nil
	default:
		return "", fmt.Errorf("unsupported window type: %s", s)
	}
}

// HannWindow returns w[i] = 0.5*(1-cos(2πi/(N-1))); a single-point window is 1
func HannWindow(n int) []float64 {
	if n <= 0 {
		return nil
	}
	w := make([]float64, n)
	if n == 1 {
		w[0] = 1
		return w
	}
	denom := float64(n - 1)
	for i := range w {
		w[i] = 0.5 * (1 - math.Cos(2*math.Pi*float64(i)/denom))
	}
	return w
}

// FrameRMS is the root-mean-square amplitude of a frame
func FrameRMS(frame []float64) float64 {
	if len(frame) == 0 {
		return 0
	}
	sum := 0.0
	for _, s := range frame {
		s = finiteOrZero(s)
		sum += s * s
	}
	return math.Sqrt(sum / float64(len(frame)))
}

// ZeroCrossingRate is the fraction of consecutive sample pairs that change sign
func ZeroCrossingRate(frame []float64) float64 {
	if len(frame) <= 1 {
		return 0
	}
	crossings := 0
	for i := 1; i < len(frame); i++ {
		if (frame[i-1] >= 0) != (frame[i] >= 0) {
			crossings++
		}
	}
	return float64(crossings) / float64(len(frame)-1)
}

// SpectralCentroid is the magnitude-weighted mean frequency in Hz of a
// spectrum of fftSize/2+1 bins; 0 when the spectrum carries no energy
func SpectralCentroid(magnitude []float64, sampleRate, fftSize int) float64 {
	if len(magnitude) == 0 || fftSize <= 0 {
		return 0
	}
	binHz := float64(sampleRate) / float64(fftSize)
	weighted, total := 0.0, 0.0
	for i, m := range magnitude {
		weighted += float64(i) * binHz * m
		total += m
	}
	if total <= 0 {
		return 0
	}
	return weighted / total
}
