package kmeans

import (
	"context"
	"fmt"
	"math"

	"github.com/RyanBlaney/latency-benchmark-common/logging"

	"github.com/RyanBlaney/spectral-cluster/pkg/analysis/progress"
	"github.com/RyanBlaney/spectral-cluster/pkg/common"
)

// RangeConfig contains multi-K evaluation settings
type RangeConfig struct {
	KMin             int     `mapstructure:"k_min" json:"k_min" yaml:"k_min"`
	KMax             int     `mapstructure:"k_max" json:"k_max" yaml:"k_max"`
	NInit            int     `mapstructure:"n_init" json:"n_init" yaml:"n_init"`
	MaxIter          int     `mapstructure:"max_iter" json:"max_iter" yaml:"max_iter"`
	Tol              float64 `mapstructure:"tol" json:"tol" yaml:"tol"`
	SilhouetteSample int     `mapstructure:"silhouette_sample" json:"silhouette_sample" yaml:"silhouette_sample"`
	DBSample         int     `mapstructure:"db_sample" json:"db_sample" yaml:"db_sample"`
	Seed             *uint64 `mapstructure:"seed" json:"seed,omitempty" yaml:"seed,omitempty"`
}

// DefaultRangeConfig returns the default evaluation settings
func DefaultRangeConfig() RangeConfig {
	return RangeConfig{
		KMin:             2,
		KMax:             8,
		NInit:            5,
		MaxIter:          100,
		Tol:              1e-4,
		SilhouetteSample: 1000,
		DBSample:         2000,
	}
}

// Validate rejects empty or inverted K ranges
func (c RangeConfig) Validate() error {
	fields := logging.Fields{
		"k_min":    c.KMin,
		"k_max":    c.KMax,
		"n_init":   c.NInit,
		"max_iter": c.MaxIter,
	}
	if c.KMin < 1 || c.KMax < c.KMin {
		return common.InvalidConfig(common.StageKMeans, "k range must satisfy 1 <= k_min <= k_max", fields)
	}
	if c.NInit < 1 || c.MaxIter < 1 || c.Tol < 0 {
		return common.InvalidConfig(common.StageKMeans, "n_init and max_iter must be positive", fields)
	}
	return nil
}

// RangeResult is the best of NInit Lloyd runs for one K
type RangeResult struct {
	K          int            `json:"k" yaml:"k"`
	Inertia    float64        `json:"inertia" yaml:"inertia"`
	Metrics    QualityMetrics `json:"metrics" yaml:"metrics"`
	Iterations int            `json:"iterations" yaml:"iterations"`
	Model      *Model         `json:"-" yaml:"-"`
}

// EvaluateRange clusters the rows of data for every K in [KMin, KMax] and
// returns one result per K, ordered by K. Each K keeps the lowest-inertia
// run out of NInit independently seeded ones. Ks above the row count are
// not evaluated and every model carries a RANGE_TRUNCATED warning; fewer
// rows than KMin is an InsufficientData error.
func EvaluateRange(ctx context.Context, data []float64, rows, dim int, cfg RangeConfig, sink *progress.Sink) ([]RangeResult, error) {
	if err := checkInput(data, rows, dim); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if rows < cfg.KMin {
		return nil, insufficientData(rows, cfg.KMin)
	}

	logger := logging.WithFields(logging.Fields{
		"component": "kmeans_engine",
		"function":  "EvaluateRange",
		"rows":      rows,
		"dim":       dim,
	})
	kMax := min(cfg.KMax, rows)
	var truncated *common.Warning
	if kMax < cfg.KMax {
		logger.Warn("K range truncated to the number of rows", logging.Fields{
			"k_max":     cfg.KMax,
			"effective": kMax,
		})
		truncated = &common.Warning{
			Stage:   common.StageKMeans,
			Code:    common.WarnCodeRangeTruncated,
			Message: "K range truncated to the number of rows",
			Fields:  map[string]any{"k_max": cfg.KMax, "effective": kMax},
		}
	}
	logger.Debug("Evaluating K range", logging.Fields{"k_min": cfg.KMin, "k_max": kMax, "n_init": cfg.NInit})

	rng := progress.NewRand(cfg.Seed)
	results := make([]RangeResult, 0, kMax-cfg.KMin+1)
	for k := cfg.KMin; k <= kMax; k++ {
		var best LloydResult
		bestInertia := math.Inf(1)
		for range cfg.NInit {
			init, _, err := SeedPlusPlus(data, rows, dim, k, rng)
			if err != nil {
				return nil, err
			}
			run := Lloyd(data, rows, dim, init, k, cfg.MaxIter, cfg.Tol, rng)
			if run.Inertia < bestInertia {
				best, bestInertia = run, run.Inertia
			}
		}

		sil, sampled := Silhouette(data, rows, dim, best.Labels, k, cfg.SilhouetteSample, rng)
		metrics := &QualityMetrics{
			Silhouette:        sil,
			CalinskiHarabasz:  CalinskiHarabasz(data, rows, dim, best.Labels, best.Centroids, k),
			DaviesBouldin:     DaviesBouldin(data, rows, dim, best.Labels, best.Centroids, k, cfg.DBSample, rng),
			SilhouetteSampled: sampled,
		}
		model := &Model{
			K:         k,
			Dim:       dim,
			Centroids: best.Centroids,
			Counts:    best.Counts,
			Inertia:   best.Inertia,
			Metrics:   metrics,
			Method:    MethodLloyd,
		}
		if best.Reseeded > 0 {
			model.Warnings = append(model.Warnings, common.Warning{
				Stage:   common.StageKMeans,
				Code:    common.WarnCodeEmptyCluster,
				Message: "empty clusters were reseeded to random rows",
				Fields:  map[string]any{"k": k, "reseeded": best.Reseeded},
			})
		}
		if truncated != nil {
			model.Warnings = append(model.Warnings, *truncated)
		}
		results = append(results, RangeResult{
			K:          k,
			Inertia:    best.Inertia,
			Metrics:    *metrics,
			Iterations: best.Iterations,
			Model:      model,
		})

		logger.Debug("K evaluated", logging.Fields{
			"k":                 k,
			"inertia":           best.Inertia,
			"silhouette":        metrics.Silhouette,
			"calinski_harabasz": metrics.CalinskiHarabasz,
			"davies_bouldin":    metrics.DaviesBouldin,
			"iterations":        best.Iterations,
		})

		frac := float64(k-cfg.KMin+1) / float64(kMax-cfg.KMin+1)
		if err := progress.Checkpoint(ctx, sink, "kmeans", frac, fmt.Sprintf("k=%d", k)); err != nil {
			return nil, err
		}
	}

	logger.Info("K range evaluation completed", logging.Fields{"evaluated": len(results)})
	return results, nil
}
