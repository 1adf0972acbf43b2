package features

import "math"

// HzToMel uses the HTK mel scale: 2595 * log10(1 + f/700)
func HzToMel(hz float64) float64 {
	return 2595 * math.Log10(1+hz/700)
}

// MelToHz inverts HzToMel
func MelToHz(mel float64) float64 {
	return 700 * (math.Pow(10, mel/2595) - 1)
}

// MelFilter is one triangular filter over the magnitude bins
type MelFilter struct {
	LowerHz  float64
	CenterHz float64
	UpperHz  float64
	Weights  []float64 // one weight per magnitude bin
}

// Apply returns the weighted sum of a magnitude spectrum
func (f MelFilter) Apply(magnitude []float64) float64 {
	sum := 0.0
	for i, w := range f.Weights {
		if w != 0 && i < len(magnitude) {
			sum += w * magnitude[i]
		}
	}
	return sum
}

// MelFilterBank builds nMels overlapping triangular filters on fftSize/2+1
// bins. The filter edges sit on nMels+2 points equally spaced in mel between
// fmin and fmax.
func MelFilterBank(nMels, fftSize, sampleRate int, fmin, fmax float64) []MelFilter {
	nBins := fftSize/2 + 1
	nyquist := float64(sampleRate) / 2
	if fmax <= 0 || fmax > nyquist {
		fmax = nyquist
	}
	if fmin < 0 || fmin >= fmax {
		fmin = 0
	}

	melMin, melMax := HzToMel(fmin), HzToMel(fmax)
	edges := make([]float64, nMels+2)
	for i := range edges {
		edges[i] = MelToHz(melMin + (melMax-melMin)*float64(i)/float64(nMels+1))
	}

	binHz := float64(sampleRate) / float64(fftSize)
	bank := make([]MelFilter, nMels)
	for m := range nMels {
		f := MelFilter{LowerHz: edges[m], CenterHz: edges[m+1], UpperHz: edges[m+2]}
		f.Weights = make([]float64, nBins)
		for k := range nBins {
			f.Weights[k] = f.TriangleWeight(float64(k) * binHz)
		}
		bank[m] = f
	}
	return bank
}

// TriangleWeight evaluates the continuous triangle of f at freq; it peaks at
// exactly 1 on the center frequency and is 0 outside [lower, upper]
func (f MelFilter) TriangleWeight(freq float64) float64 {
	switch {
	case freq < f.LowerHz || freq > f.UpperHz:
		return 0
	case freq <= f.CenterHz:
		if f.CenterHz == f.LowerHz {
			return 1
		}
		return (freq - f.LowerHz) / (f.CenterHz - f.LowerHz)
	default:
		if f.UpperHz == f.CenterHz {
			return 1
		}
		return (f.UpperHz - freq) / (f.UpperHz - f.CenterHz)
	}
}
