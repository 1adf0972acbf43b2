// Package pca estimates principal components of a training matrix, either by
// power iteration on the sample covariance (batch) or by Oja's rule over a
// stream of observations (incremental). Both produce the same Model.
package pca

import (
	"fmt"

	"gonum.org/v1/gonum/floats"

	"github.com/RyanBlaney/spectral-cluster/pkg/audio/features"
	"github.com/RyanBlaney/spectral-cluster/pkg/common"
)

// Method names the estimator that produced a model
type Method string

const (
	MethodBatch       Method = "batch"
	MethodIncremental Method = "incremental"
)

// Model is a trained projection. It is not modified after training.
type Model struct {
	K                  int              `json:"k"`
	D                  int              `json:"d"`
	Mean               []float64        `json:"mean"`
	Components         []float64        `json:"components"` // K x D, row-major, unit rows
	Eigenvalues        []float64        `json:"eigenvalues,omitempty"`
	ExplainedVariance  []float64        `json:"explained_variance"`
	CumulativeVariance []float64        `json:"cumulative_variance"`
	NObs               int              `json:"n_obs"`
	Method             Method           `json:"method"`
	Warnings           []common.Warning `json:"warnings,omitempty"`
}

// Component returns a view of component c
func (m *Model) Component(c int) []float64 {
	return m.Components[c*m.D : (c+1)*m.D]
}

// Project maps a D-length vector to its K coordinates. Non-finite inputs are
// read as 0.
func (m *Model) Project(vec []float64) ([]float64, error) {
	if len(vec) != m.D {
		return nil, common.NewAnalysisError(common.StagePCA, common.ErrCodeInvalidInput,
			fmt.Sprintf("vector length %d does not match model dimension %d", len(vec), m.D), nil)
	}
	return m.project(vec, make([]float64, m.K), make([]float64, m.D)), nil
}

func (m *Model) project(vec, dst, scratch []float64) []float64 {
	copy(scratch, vec)
	features.Sanitize(scratch)
	floats.Sub(scratch, m.Mean)
	for c := range m.K {
		dst[c] = floats.Dot(m.Component(c), scratch)
	}
	return dst
}

// Transform projects every row of a rows x D matrix and returns rows x K
func (m *Model) Transform(data []float64, rows int) ([]float64, error) {
	if rows < 0 || len(data) != rows*m.D {
		return nil, common.NewAnalysisError(common.StagePCA, common.ErrCodeInvalidInput,
			fmt.Sprintf("matrix of %d values is not %d rows of %d", len(data), rows, m.D), nil)
	}
	out := make([]float64, rows*m.K)
	scratch := make([]float64, m.D)
	for i := range rows {
		m.project(data[i*m.D:(i+1)*m.D], out[i*m.K:(i+1)*m.K], scratch)
	}
	return out, nil
}

// TotalExplained is the cumulative variance of all K components
func (m *Model) TotalExplained() float64 {
	if len(m.CumulativeVariance) == 0 {
		return 0
	}
	return m.CumulativeVariance[len(m.CumulativeVariance)-1]
}

func (m *Model) setExplained(variances []float64, total float64) {
	m.ExplainedVariance = make([]float64, len(variances))
	m.CumulativeVariance = make([]float64, len(variances))
	running := 0.0
	for i, v := range variances {
		if total > 0 {
			m.ExplainedVariance[i] = v / total
		}
		running += m.ExplainedVariance[i]
		m.CumulativeVariance[i] = running
	}
}

// finite reports whether every numeric field of the model is finite
func (m *Model) finite() bool {
	return features.IsFinite(m.Mean) && features.IsFinite(m.Components) &&
		features.IsFinite(m.ExplainedVariance) && features.IsFinite(m.CumulativeVariance)
}
