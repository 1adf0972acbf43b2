package kmeans

import (
	"fmt"

	"github.com/RyanBlaney/latency-benchmark-common/logging"

	"github.com/RyanBlaney/spectral-cluster/pkg/common"
)

// Method names the estimator that produced a model
type Method string

const (
	MethodLloyd  Method = "lloyd"
	MethodOnline Method = "online"
)

// Model is a trained clustering. It is not modified after training.
type Model struct {
	K         int              `json:"k"`
	Dim       int              `json:"dim"`
	Centroids []float64        `json:"centroids"` // K x Dim, row-major
	Counts    []int            `json:"counts"`
	Inertia   float64          `json:"inertia"`
	Metrics   *QualityMetrics  `json:"metrics,omitempty"`
	Method    Method           `json:"method"`
	Warnings  []common.Warning `json:"warnings,omitempty"`
}

// Centroid returns a view of centroid c
func (m *Model) Centroid(c int) []float64 {
	return row(m.Centroids, c, m.Dim)
}

// Predict returns the index of the centroid nearest to vec
func (m *Model) Predict(vec []float64) (int, error) {
	if len(vec) != m.Dim {
		return 0, common.NewAnalysisError(common.StageKMeans, common.ErrCodeInvalidInput,
			fmt.Sprintf("vector length %d does not match model dimension %d", len(vec), m.Dim), nil)
	}
	c, _ := nearest(vec, m.Centroids, m.K, m.Dim)
	return c, nil
}

// Assign labels every row of a rows x Dim matrix
func (m *Model) Assign(data []float64, rows int) ([]int, error) {
	if rows < 0 || len(data) != rows*m.Dim {
		return nil, common.NewAnalysisError(common.StageKMeans, common.ErrCodeInvalidInput,
			fmt.Sprintf("matrix of %d values is not %d rows of %d", len(data), rows, m.Dim), nil)
	}
	labels := make([]int, rows)
	for i := range rows {
		labels[i], _ = nearest(row(data, i, m.Dim), m.Centroids, m.K, m.Dim)
	}
	return labels, nil
}

// Snapshot is the persistence shape of a Model
type Snapshot struct {
	K         int              `json:"k" yaml:"k" msgpack:"k"`
	Dim       int              `json:"dim" yaml:"dim" msgpack:"dim"`
	Centroids [][]float64      `json:"centroids" yaml:"centroids" msgpack:"centroids"`
	Counts    []int            `json:"counts" yaml:"counts" msgpack:"counts"`
	Inertia   float64          `json:"inertia" yaml:"inertia" msgpack:"inertia"`
	Metrics   *QualityMetrics  `json:"metrics,omitempty" yaml:"metrics,omitempty" msgpack:"metrics,omitempty"`
	Method    string           `json:"method" yaml:"method" msgpack:"method"`
	Warnings  []common.Warning `json:"warnings,omitempty" yaml:"warnings,omitempty" msgpack:"warnings,omitempty"`
}

// Snapshot copies the model into its persistence shape
func (m *Model) Snapshot() Snapshot {
	cents := make([][]float64, m.K)
	for c := range cents {
		cents[c] = append([]float64(nil), m.Centroid(c)...)
	}
	s := Snapshot{
		K:         m.K,
		Dim:       m.Dim,
		Centroids: cents,
		Counts:    append([]int(nil), m.Counts...),
		Inertia:   m.Inertia,
		Method:    string(m.Method),
		Warnings:  append([]common.Warning(nil), m.Warnings...),
	}
	if m.Metrics != nil {
		q := *m.Metrics
		s.Metrics = &q
	}
	return s
}

// FromSnapshot rebuilds a Model, rejecting inconsistent shapes
func FromSnapshot(s Snapshot) (*Model, error) {
	bad := func(msg string, args ...any) error {
		return common.NewAnalysisError(common.StageKMeans, common.ErrCodeInvalidInput, fmt.Sprintf(msg, args...), nil)
	}
	if s.K <= 0 || s.Dim <= 0 || len(s.Centroids) != s.K {
		return nil, bad("snapshot has invalid shape k=%d dim=%d centroids=%d", s.K, s.Dim, len(s.Centroids))
	}
	m := &Model{
		K:         s.K,
		Dim:       s.Dim,
		Centroids: make([]float64, 0, s.K*s.Dim),
		Counts:    append([]int(nil), s.Counts...),
		Inertia:   s.Inertia,
		Method:    Method(s.Method),
		Warnings:  append([]common.Warning(nil), s.Warnings...),
	}
	for c, cent := range s.Centroids {
		if len(cent) != s.Dim {
			return nil, bad("snapshot centroid %d has %d values, want %d", c, len(cent), s.Dim)
		}
		for _, v := range cent {
			if finite(v) != v {
				return nil, bad("snapshot centroid %d contains non-finite values", c)
			}
		}
		m.Centroids = append(m.Centroids, cent...)
	}
	if s.Metrics != nil {
		q := *s.Metrics
		m.Metrics = &q
	}
	return m, nil
}

func insufficientData(rows, k int) error {
	return common.NewAnalysisErrorWithFields(common.StageKMeans, common.ErrCodeInsufficientData,
		fmt.Sprintf("%d rows cannot form %d clusters", rows, k), nil, logging.Fields{"rows": rows, "k": k})
}

func checkInput(data []float64, rows, dim int) error {
	if rows <= 0 || dim <= 0 || len(data) != rows*dim {
		return common.InvalidInput(common.StageKMeans, "data is not a rows x dim matrix", logging.Fields{
			"rows": rows,
			"dim":  dim,
			"len":  len(data),
		})
	}
	return nil
}
