package pca

import (
	"math"

	"github.com/RyanBlaney/latency-benchmark-common/logging"
	"gonum.org/v1/gonum/floats"

	"github.com/RyanBlaney/spectral-cluster/pkg/analysis/progress"
	"github.com/RyanBlaney/spectral-cluster/pkg/common"
)

// BatchConfig contains power iteration settings
type BatchConfig struct {
	Components int     `mapstructure:"components" json:"components" yaml:"components"`
	MaxIter    int     `mapstructure:"max_iter" json:"max_iter" yaml:"max_iter"`
	Tol        float64 `mapstructure:"tol" json:"tol" yaml:"tol"`
}

// DefaultBatchConfig returns the default batch settings
func DefaultBatchConfig() BatchConfig {
	return BatchConfig{
		Components: 8,
		MaxIter:    200,
		Tol:        1e-9,
	}
}

// FitBatch computes the leading principal components of a rows x dim
// row-major matrix by power iteration with deflation on the sample
// covariance. Components is clamped to [1, dim].
func FitBatch(data []float64, rows, dim int, cfg BatchConfig) (*Model, error) {
	if err := checkInput(data, rows, dim); err != nil {
		return nil, err
	}
	k := clampComponents(cfg.Components, dim)
	maxIter := cfg.MaxIter
	if maxIter <= 0 {
		maxIter = DefaultBatchConfig().MaxIter
	}

	logger := logging.WithFields(logging.Fields{
		"component": "pca_engine",
		"function":  "FitBatch",
		"rows":      rows,
		"dim":       dim,
		"k":         k,
	})
	logger.Debug("Starting batch PCA")

	mean := columnMean(data, rows, dim)
	cov := covariance(data, mean, rows, dim)
	trace := 0.0
	for j := range dim {
		trace += cov[j*dim+j]
	}

	components := make([]float64, 0, k*dim)
	eigenvalues := make([]float64, 0, k)
	cv := make([]float64, dim)
	notConverged := 0

	for c := range k {
		v := initialVector(components, c, dim)
		converged := false
		for range maxIter {
			matVec(cov, v, cv, dim)
			orthogonalize(cv, components, dim)
			norm := floats.Norm(cv, 2)
			if norm < tinyNorm || math.IsNaN(norm) || math.IsInf(norm, 0) {
				// remaining spectrum is zero in the complement
				converged = true
				break
			}
			floats.Scale(1/norm, cv)
			delta := floats.Distance(cv, v, 2)
			copy(v, cv)
			if delta*delta < cfg.Tol*cfg.Tol {
				converged = true
				break
			}
		}
		if !converged {
			notConverged++
		}

		matVec(cov, v, cv, dim)
		lambda := math.Max(floats.Dot(v, cv), 0)
		for a := range dim {
			for b := range dim {
				cov[a*dim+b] -= lambda * v[a] * v[b]
			}
		}
		components = append(components, v...)
		eigenvalues = append(eigenvalues, lambda)
	}

	m := &Model{
		K:           k,
		D:           dim,
		Mean:        mean,
		Components:  components,
		Eigenvalues: eigenvalues,
		NObs:        rows,
		Method:      MethodBatch,
	}
	m.setExplained(eigenvalues, trace)
	if !m.finite() {
		err := common.NewAnalysisErrorWithFields(common.StagePCA, common.ErrCodeNumerical,
			"batch PCA produced non-finite values", nil, logging.Fields{"rows": rows, "dim": dim, "k": k})
		logger.Error(err, "Batch PCA failed")
		return nil, err
	}

	logger.Info("Batch PCA completed", logging.Fields{
		"explained":     m.TotalExplained(),
		"not_converged": notConverged,
	})
	return m, nil
}

// tinyNorm is the norm under which a vector is treated as zero
const tinyNorm = 1e-12

func checkInput(data []float64, rows, dim int) error {
	fields := logging.Fields{"rows": rows, "dim": dim, "len": len(data)}
	if rows <= 0 || dim <= 0 {
		return common.InvalidInput(common.StagePCA, "rows and dim must be positive", fields)
	}
	if len(data) != rows*dim {
		return common.InvalidInput(common.StagePCA, "data length does not match rows*dim", fields)
	}
	return nil
}

func clampComponents(k, dim int) int {
	return min(max(k, 1), dim)
}

// finiteAt reads data[i] with non-finite values taken as 0
func finiteAt(data []float64, i int) float64 {
	x := data[i]
	if math.IsNaN(x) || math.IsInf(x, 0) {
		return 0
	}
	return x
}

func columnMean(data []float64, rows, dim int) []float64 {
	mean := make([]float64, dim)
	for i := range rows {
		for j := range dim {
			mean[j] += finiteAt(data, i*dim+j)
		}
	}
	floats.Scale(1/float64(rows), mean)
	return mean
}

// covariance is the d x d sample covariance, divided by n-1 (or 1 when n=1)
func covariance(data, mean []float64, rows, dim int) []float64 {
	cov := make([]float64, dim*dim)
	x := make([]float64, dim)
	for i := range rows {
		for j := range dim {
			x[j] = finiteAt(data, i*dim+j) - mean[j]
		}
		for a := range dim {
			xa := x[a]
			if xa == 0 {
				continue
			}
			row := cov[a*dim : (a+1)*dim]
			for b := a; b < dim; b++ {
				row[b] += xa * x[b]
			}
		}
	}
	denom := float64(max(rows-1, 1))
	for a := range dim {
		for b := a; b < dim; b++ {
			cov[a*dim+b] /= denom
			cov[b*dim+a] = cov[a*dim+b]
		}
	}
	return cov
}

func matVec(m, v, dst []float64, dim int) {
	for a := range dim {
		dst[a] = floats.Dot(m[a*dim:(a+1)*dim], v)
	}
}

// orthogonalize removes from v its projection on every row of basis
func orthogonalize(v, basis []float64, dim int) {
	for off := 0; off < len(basis); off += dim {
		b := basis[off : off+dim]
		floats.AddScaled(v, -floats.Dot(v, b), b)
	}
}

// initialVector is a fixed pseudo-random unit vector orthogonal to basis, so
// batch results are reproducible run to run
func initialVector(basis []float64, c, dim int) []float64 {
	rng := progress.NewRand(progress.Seed(uint64(c) + 1))
	v := make([]float64, dim)
	for attempt := 0; attempt < 8; attempt++ {
		for j := range v {
			v[j] = rng.NormFloat64()
		}
		orthogonalize(v, basis, dim)
		orthogonalize(v, basis, dim)
		if norm := floats.Norm(v, 2); norm > tinyNorm {
			floats.Scale(1/norm, v)
			return v
		}
	}
	// basis already spans almost everything; take the least covered axis
	for j := range v {
		clear(v)
		v[j] = 1
		orthogonalize(v, basis, dim)
		if norm := floats.Norm(v, 2); norm > 1e-6 {
			floats.Scale(1/norm, v)
			return v
		}
	}
	return v
}
