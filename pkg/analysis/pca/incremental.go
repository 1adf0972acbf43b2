package pca

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"sort"

	"github.com/RyanBlaney/latency-benchmark-common/logging"
	"gonum.org/v1/gonum/floats"

	"github.com/RyanBlaney/spectral-cluster/pkg/analysis/progress"
	"github.com/RyanBlaney/spectral-cluster/pkg/audio/features"
	"github.com/RyanBlaney/spectral-cluster/pkg/common"
)

// rows processed between cancellation checkpoints
const rowBatch = 512

// IncrementalConfig contains Oja's rule settings
type IncrementalConfig struct {
	Components            int     `mapstructure:"components" json:"components" yaml:"components"`
	Epochs                int     `mapstructure:"epochs" json:"epochs" yaml:"epochs"`
	BaseLR                float64 `mapstructure:"base_lr" json:"base_lr" yaml:"base_lr"`
	Decay                 float64 `mapstructure:"decay" json:"decay" yaml:"decay"`
	LRPower               float64 `mapstructure:"lr_power" json:"lr_power" yaml:"lr_power"`
	ReorthEvery           int     `mapstructure:"reorth_every" json:"reorth_every" yaml:"reorth_every"`
	MinRowsForIncremental int     `mapstructure:"min_rows_for_incremental" json:"min_rows_for_incremental" yaml:"min_rows_for_incremental"`
	DegenerateNorm        float64 `mapstructure:"degenerate_norm" json:"degenerate_norm" yaml:"degenerate_norm"`
	RepairDegenerate      bool    `mapstructure:"repair_degenerate" json:"repair_degenerate" yaml:"repair_degenerate"`
	Seed                  *uint64 `mapstructure:"seed" json:"seed,omitempty" yaml:"seed,omitempty"`
}

// DefaultIncrementalConfig returns the default incremental settings
func DefaultIncrementalConfig() IncrementalConfig {
	return IncrementalConfig{
		Components:       8,
		Epochs:           1,
		BaseLR:           0.01,
		Decay:            1,
		LRPower:          0.5,
		ReorthEvery:      100,
		DegenerateNorm:   1e-6,
		RepairDegenerate: true,
	}
}

// Validate rejects schedules that cannot make progress
func (c IncrementalConfig) Validate() error {
	fields := logging.Fields{
		"epochs":       c.Epochs,
		"base_lr":      c.BaseLR,
		"decay":        c.Decay,
		"lr_power":     c.LRPower,
		"reorth_every": c.ReorthEvery,
	}
	if c.Epochs <= 0 || c.ReorthEvery <= 0 {
		return common.InvalidConfig(common.StagePCA, "epochs and reorth_every must be positive", fields)
	}
	if c.BaseLR <= 0 || c.Decay <= 0 || c.LRPower < 0 {
		return common.InvalidConfig(common.StagePCA, "learning rate schedule must be positive", fields)
	}
	return nil
}

// FitIncremental estimates the leading components with Oja's rule, streaming
// over the rows of data for cfg.Epochs passes. The learning rate at the n-th
// observation is BaseLR*Decay/n^LRPower.
//
// Matrices with fewer than MinRowsForIncremental rows go straight to
// FitBatch. Components that end up non-finite or shorter than DegenerateNorm
// are reported with a DEGENERATE_MODEL warning and, when RepairDegenerate is
// set, the whole model is replaced by the batch result.
func FitIncremental(ctx context.Context, data []float64, rows, dim int, cfg IncrementalConfig, sink *progress.Sink) (*Model, error) {
	if err := checkInput(data, rows, dim); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	k := clampComponents(cfg.Components, dim)
	batchCfg := BatchConfig{Components: k, MaxIter: DefaultBatchConfig().MaxIter, Tol: DefaultBatchConfig().Tol}

	logger := logging.WithFields(logging.Fields{
		"component": "pca_engine",
		"function":  "FitIncremental",
		"rows":      rows,
		"dim":       dim,
		"k":         k,
	})

	if rows < cfg.MinRowsForIncremental {
		logger.Debug("Too few rows for incremental PCA, using batch", logging.Fields{
			"min_rows": cfg.MinRowsForIncremental,
		})
		m, err := FitBatch(data, rows, dim, batchCfg)
		if err != nil {
			return nil, err
		}
		m.Warnings = append(m.Warnings, common.Warning{
			Stage:   common.StagePCA,
			Code:    common.WarnCodeBatchFallback,
			Message: "training matrix below incremental minimum, batch estimator used",
			Fields:  map[string]any{"rows": rows, "min_rows": cfg.MinRowsForIncremental},
		})
		return m, nil
	}

	logger.Debug("Starting incremental PCA", logging.Fields{"epochs": cfg.Epochs})

	rng := progress.NewRand(cfg.Seed)
	w := make([]float64, k*dim)
	for i := range w {
		w[i] = rng.NormFloat64()
	}
	orthonormalize(w, k, dim, rng)
	orthonormalize(w, k, dim, rng)

	mean := make([]float64, dim)
	x := make([]float64, dim)
	delta := make([]float64, dim)
	n := 0
	total := cfg.Epochs * rows

	for epoch := range cfg.Epochs {
		for i := range rows {
			for j := range dim {
				x[j] = finiteAt(data, i*dim+j)
			}
			n++
			// mean += (x-mean)/n
			floats.SubTo(delta, x, mean)
			floats.AddScaled(mean, 1/float64(n), delta)
			floats.Sub(x, mean)

			lr := cfg.BaseLR * cfg.Decay / math.Pow(float64(n), cfg.LRPower)
			for c := range k {
				wc := w[c*dim : (c+1)*dim]
				y := floats.Dot(wc, x)
				// wc += lr*y*(x - y*wc)
				floats.Scale(1-lr*y*y, wc)
				floats.AddScaled(wc, lr*y, x)
			}

			if n%cfg.ReorthEvery == 0 {
				normalizeInPlace(w, k, dim)
			}
			if n%rowBatch == 0 {
				detail := fmt.Sprintf("epoch %d/%d", epoch+1, cfg.Epochs)
				if err := progress.Checkpoint(ctx, sink, "pca", float64(n)/float64(total), detail); err != nil {
					return nil, err
				}
			}
		}
		if err := progress.Checkpoint(ctx, sink, "pca", float64(n)/float64(total), fmt.Sprintf("epoch %d/%d", epoch+1, cfg.Epochs)); err != nil {
			return nil, err
		}
	}

	degenerate := degenerateComponents(w, k, dim, cfg.DegenerateNorm)
	if len(degenerate) > 0 {
		logger.Warn("Incremental PCA produced degenerate components", logging.Fields{
			"indices": degenerate,
			"repair":  cfg.RepairDegenerate,
		})
		if cfg.RepairDegenerate {
			m, err := FitBatch(data, rows, dim, batchCfg)
			if err != nil {
				return nil, err
			}
			m.Warnings = append(m.Warnings, common.DegenerateModelWarning(common.StagePCA,
				"incremental components degenerate, replaced by batch estimate", degenerate, true))
			return m, nil
		}
		if !features.IsFinite(w) || !features.IsFinite(mean) {
			err := common.NewAnalysisErrorWithFields(common.StagePCA, common.ErrCodeNumerical,
				"incremental PCA diverged", nil, logging.Fields{"indices": degenerate, "base_lr": cfg.BaseLR})
			logger.Error(err, "Incremental PCA failed")
			return nil, err
		}
	}

	// final sweep; collapsed components are reseeded into the complement
	orthonormalize(w, k, dim, rng)
	orthonormalize(w, k, dim, rng)

	m := &Model{
		K:      k,
		D:      dim,
		Mean:   mean,
		NObs:   rows,
		Method: MethodIncremental,
	}
	variances, totalVar := projectedVariance(data, rows, dim, mean, w, k)
	order := make([]int, k)
	for c := range order {
		order[c] = c
	}
	sort.SliceStable(order, func(a, b int) bool { return variances[order[a]] > variances[order[b]] })
	m.Components = make([]float64, 0, k*dim)
	m.Eigenvalues = make([]float64, 0, k)
	for _, c := range order {
		m.Components = append(m.Components, w[c*dim:(c+1)*dim]...)
		m.Eigenvalues = append(m.Eigenvalues, variances[c])
	}
	m.setExplained(m.Eigenvalues, totalVar)
	if len(degenerate) > 0 {
		m.Warnings = append(m.Warnings, common.DegenerateModelWarning(common.StagePCA,
			"incremental components collapsed and were reseeded", degenerate, false))
	}

	logger.Info("Incremental PCA completed", logging.Fields{
		"observations": n,
		"explained":    m.TotalExplained(),
	})
	return m, nil
}

// degenerateComponents lists components that are non-finite or shorter than
// minNorm
func degenerateComponents(w []float64, k, dim int, minNorm float64) []int {
	var out []int
	for c := range k {
		wc := w[c*dim : (c+1)*dim]
		norm := floats.Norm(wc, 2)
		if math.IsNaN(norm) || math.IsInf(norm, 0) || norm < minNorm {
			out = append(out, c)
		}
	}
	return out
}

// normalizeInPlace is the periodic re-orthonormalization during training. It
// leaves zero or non-finite components alone so they still show up in the
// degeneracy check.
func normalizeInPlace(w []float64, k, dim int) {
	for pass := 0; pass < 2; pass++ {
		for c := range k {
			wc := w[c*dim : (c+1)*dim]
			orthogonalize(wc, w[:c*dim], dim)
			norm := floats.Norm(wc, 2)
			if norm > tinyNorm && !math.IsInf(norm, 0) && !math.IsNaN(norm) {
				floats.Scale(1/norm, wc)
			}
		}
	}
}

// orthonormalize is a Gram-Schmidt sweep over the k rows of w; a row that
// collapses is replaced by a fresh random direction
func orthonormalize(w []float64, k, dim int, rng *rand.Rand) {
	for c := range k {
		wc := w[c*dim : (c+1)*dim]
		for attempt := 0; ; attempt++ {
			orthogonalize(wc, w[:c*dim], dim)
			norm := floats.Norm(wc, 2)
			if norm > tinyNorm && !math.IsInf(norm, 0) && !math.IsNaN(norm) {
				floats.Scale(1/norm, wc)
				break
			}
			if attempt >= 8 {
				copy(wc, initialVector(w[:c*dim], c, dim))
				break
			}
			for j := range wc {
				wc[j] = rng.NormFloat64()
			}
		}
	}
}

// projectedVariance returns the sample variance of the data along each row
// of w and the total variance of the data
func projectedVariance(data []float64, rows, dim int, mean, w []float64, k int) ([]float64, float64) {
	variances := make([]float64, k)
	total := 0.0
	x := make([]float64, dim)
	for i := range rows {
		for j := range dim {
			x[j] = finiteAt(data, i*dim+j) - mean[j]
		}
		total += floats.Dot(x, x)
		for c := range k {
			y := floats.Dot(w[c*dim:(c+1)*dim], x)
			variances[c] += y * y
		}
	}
	denom := float64(max(rows-1, 1))
	floats.Scale(1/denom, variances)
	return variances, total / denom
}
