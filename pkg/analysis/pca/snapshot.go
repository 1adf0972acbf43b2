package pca

import (
	"fmt"

	"github.com/RyanBlaney/spectral-cluster/pkg/common"
)

// Snapshot is the persistence shape of a Model: plain arrays and scalars
type Snapshot struct {
	K                  int              `json:"k" yaml:"k" msgpack:"k"`
	D                  int              `json:"d" yaml:"d" msgpack:"d"`
	Mean               []float64        `json:"mean" yaml:"mean" msgpack:"mean"`
	Components         [][]float64      `json:"components" yaml:"components" msgpack:"components"`
	Eigenvalues        []float64        `json:"eigenvalues,omitempty" yaml:"eigenvalues,omitempty" msgpack:"eigenvalues,omitempty"`
	ExplainedVariance  []float64        `json:"explained_variance" yaml:"explained_variance" msgpack:"explained_variance"`
	CumulativeVariance []float64        `json:"cumulative_variance" yaml:"cumulative_variance" msgpack:"cumulative_variance"`
	NObs               int              `json:"n_obs" yaml:"n_obs" msgpack:"n_obs"`
	Method             string           `json:"method" yaml:"method" msgpack:"method"`
	Warnings           []common.Warning `json:"warnings,omitempty" yaml:"warnings,omitempty" msgpack:"warnings,omitempty"`
}

// Snapshot copies the model into its persistence shape
func (m *Model) Snapshot() Snapshot {
	comps := make([][]float64, m.K)
	for c := range comps {
		comps[c] = append([]float64(nil), m.Component(c)...)
	}
	return Snapshot{
		K:                  m.K,
		D:                  m.D,
		Mean:               append([]float64(nil), m.Mean...),
		Components:         comps,
		Eigenvalues:        append([]float64(nil), m.Eigenvalues...),
		ExplainedVariance:  append([]float64(nil), m.ExplainedVariance...),
		CumulativeVariance: append([]float64(nil), m.CumulativeVariance...),
		NObs:               m.NObs,
		Method:             string(m.Method),
		Warnings:           append([]common.Warning(nil), m.Warnings...),
	}
}

// FromSnapshot rebuilds a Model, rejecting inconsistent shapes
func FromSnapshot(s Snapshot) (*Model, error) {
	bad := func(msg string, args ...any) error {
		return common.NewAnalysisError(common.StagePCA, common.ErrCodeInvalidInput, fmt.Sprintf(msg, args...), nil)
	}
	if s.K <= 0 || s.D <= 0 || s.K > s.D {
		return nil, bad("snapshot has invalid shape k=%d d=%d", s.K, s.D)
	}
	if len(s.Mean) != s.D {
		return nil, bad("snapshot mean has %d values, want %d", len(s.Mean), s.D)
	}
	if len(s.Components) != s.K {
		return nil, bad("snapshot has %d components, want %d", len(s.Components), s.K)
	}
	m := &Model{
		K:                  s.K,
		D:                  s.D,
		Mean:               append([]float64(nil), s.Mean...),
		Components:         make([]float64, 0, s.K*s.D),
		Eigenvalues:        append([]float64(nil), s.Eigenvalues...),
		ExplainedVariance:  append([]float64(nil), s.ExplainedVariance...),
		CumulativeVariance: append([]float64(nil), s.CumulativeVariance...),
		NObs:               s.NObs,
		Method:             Method(s.Method),
		Warnings:           append([]common.Warning(nil), s.Warnings...),
	}
	for c, row := range s.Components {
		if len(row) != s.D {
			return nil, bad("snapshot component %d has %d values, want %d", c, len(row), s.D)
		}
		m.Components = append(m.Components, row...)
	}
	if !m.finite() {
		return nil, bad("snapshot contains non-finite values")
	}
	return m, nil
}
