package features

import "math"

// ScalarCount is the number of scalar descriptors after the mel block
const ScalarCount = 3

// SampleBuffer is a decoded mono signal. The extractor only reads it.
type SampleBuffer struct {
	Samples    []float32 `json:"-"`
	SampleRate int       `json:"sample_rate"`
}

// Duration returns the buffer length in seconds
func (b SampleBuffer) Duration() float64 {
	if b.SampleRate <= 0 {
		return 0
	}
	return float64(len(b.Samples)) / float64(b.SampleRate)
}

// FeatureFrame is one analysis frame: raw mel energies plus scalar descriptors
type FeatureFrame struct {
	Mel        []float64 `json:"mel"`
	RMS        float64   `json:"rms"`
	CentroidHz float64   `json:"centroid_hz"`
	ZCR        float64   `json:"zcr"`
}

// Dim is the flattened vector length nMels+3
func (f FeatureFrame) Dim() int {
	return len(f.Mel) + ScalarCount
}

// MelSum is the total mel-band energy of the frame
func (f FeatureFrame) MelSum() float64 {
	sum := 0.0
	for _, v := range f.Mel {
		sum += v
	}
	return sum
}

// AppendVector appends the fixed layout [mel..., rms, centroidHz, zcr] to dst
func (f FeatureFrame) AppendVector(dst []float64) []float64 {
	dst = append(dst, f.Mel...)
	return append(dst, f.RMS, f.CentroidHz, f.ZCR)
}

// Vector returns the fixed layout as a new slice
func (f FeatureFrame) Vector() []float64 {
	return f.AppendVector(make([]float64, 0, f.Dim()))
}

// FeatureMatrix is the immutable per-frame feature output of one recording
type FeatureMatrix struct {
	Data       []float64 `json:"data"` // row-major, Frames x Dim
	Frames     int       `json:"frames"`
	Dim        int       `json:"dim"`
	SampleRate int       `json:"sample_rate"`
	FFTSize    int       `json:"fft_size"`
	HopSize    int       `json:"hop_size"`
	NMels      int       `json:"n_mels"`
	Timestamps []float64 `json:"timestamps"` // seconds, one per frame
}

// NewFeatureMatrix assembles a matrix from frames; values are sanitized on the way in
func NewFeatureMatrix(frames []FeatureFrame, sampleRate, fftSize, hopSize, nMels int) *FeatureMatrix {
	dim := nMels + ScalarCount
	m := &FeatureMatrix{
		Data:       make([]float64, 0, len(frames)*dim),
		Frames:     len(frames),
		Dim:        dim,
		SampleRate: sampleRate,
		FFTSize:    fftSize,
		HopSize:    hopSize,
		NMels:      nMels,
		Timestamps: make([]float64, len(frames)),
	}
	for i, f := range frames {
		m.Data = f.AppendVector(m.Data)
		if sampleRate > 0 {
			m.Timestamps[i] = float64(i*hopSize) / float64(sampleRate)
		}
	}
	Sanitize(m.Data)
	return m
}

// Row returns a view of frame i's flattened vector
func (m *FeatureMatrix) Row(i int) []float64 {
	return m.Data[i*m.Dim : (i+1)*m.Dim]
}

// Frame returns frame i as a typed FeatureFrame
func (m *FeatureMatrix) Frame(i int) FeatureFrame {
	row := m.Row(i)
	mel := make([]float64, m.NMels)
	copy(mel, row[:m.NMels])
	return FeatureFrame{
		Mel:        mel,
		RMS:        row[m.NMels],
		CentroidHz: row[m.NMels+1],
		ZCR:        row[m.NMels+2],
	}
}

// RMS returns the per-frame RMS column
func (m *FeatureMatrix) RMS() []float64 {
	return m.column(m.NMels)
}

// Centroids returns the per-frame spectral centroid column
func (m *FeatureMatrix) Centroids() []float64 {
	return m.column(m.NMels + 1)
}

// MelSums returns the per-frame total mel energy
func (m *FeatureMatrix) MelSums() []float64 {
	out := make([]float64, m.Frames)
	for i := range out {
		row := m.Row(i)
		for _, v := range row[:m.NMels] {
			out[i] += v
		}
	}
	return out
}

func (m *FeatureMatrix) column(c int) []float64 {
	out := make([]float64, m.Frames)
	for i := range out {
		out[i] = m.Data[i*m.Dim+c]
	}
	return out
}

// Sanitize replaces every NaN or ±Inf in v with 0 in place. It is the only
// place non-finite values are coerced: FeatureMatrix and TrainingMatrix
// construction both run it, so nothing non-finite leaves either.
func Sanitize(v []float64) int {
	replaced := 0
	for i, x := range v {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			v[i] = 0
			replaced++
		}
	}
	return replaced
}

// IsFinite reports whether every element of v is finite
func IsFinite(v []float64) bool {
	for _, x := range v {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return false
		}
	}
	return true
}

func finiteOrZero(x float64) float64 {
	if math.IsNaN(x) || math.IsInf(x, 0) {
		return 0
	}
	return x
}
