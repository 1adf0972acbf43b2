package kmeans

import (
	"context"
	"fmt"

	"github.com/RyanBlaney/latency-benchmark-common/logging"

	"github.com/RyanBlaney/spectral-cluster/pkg/analysis/progress"
	"github.com/RyanBlaney/spectral-cluster/pkg/common"
)

// OnlineConfig contains streaming k-means settings
type OnlineConfig struct {
	K         int     `mapstructure:"k" json:"k" yaml:"k"`
	Epochs    int     `mapstructure:"epochs" json:"epochs" yaml:"epochs"`
	BatchSize int     `mapstructure:"batch_size" json:"batch_size" yaml:"batch_size"`
	Seed      *uint64 `mapstructure:"seed" json:"seed,omitempty" yaml:"seed,omitempty"`
}

// DefaultOnlineConfig returns the default online settings
func DefaultOnlineConfig() OnlineConfig {
	return OnlineConfig{
		K:         4,
		Epochs:    5,
		BatchSize: 256,
	}
}

// Validate rejects non-positive settings
func (c OnlineConfig) Validate() error {
	if c.K < 1 || c.Epochs < 1 || c.BatchSize < 1 {
		return common.InvalidConfig(common.StageKMeans, "k, epochs and batch_size must be positive", logging.Fields{
			"k":          c.K,
			"epochs":     c.Epochs,
			"batch_size": c.BatchSize,
		})
	}
	return nil
}

// FitOnline seeds K centroids with k-means++ and then streams the rows in
// BatchSize chunks for Epochs shuffled passes. Each row pulls only its
// nearest centroid, by 1/n where n counts the updates that centroid has
// received, so every centroid is the running mean of what it absorbed.
// Sizes and inertia come from a final full assignment.
func FitOnline(ctx context.Context, data []float64, rows, dim int, cfg OnlineConfig, sink *progress.Sink) (*Model, error) {
	if err := checkInput(data, rows, dim); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if rows < cfg.K {
		return nil, insufficientData(rows, cfg.K)
	}

	logger := logging.WithFields(logging.Fields{
		"component": "kmeans_engine",
		"function":  "FitOnline",
		"rows":      rows,
		"dim":       dim,
		"k":         cfg.K,
	})
	logger.Debug("Starting online k-means", logging.Fields{"epochs": cfg.Epochs, "batch_size": cfg.BatchSize})

	rng := progress.NewRand(cfg.Seed)
	centroids, _, err := SeedPlusPlus(data, rows, dim, cfg.K, rng)
	if err != nil {
		return nil, err
	}
	updates := make([]int, cfg.K)
	batches := (rows + cfg.BatchSize - 1) / cfg.BatchSize
	totalBatches := batches * cfg.Epochs
	done := 0

	for epoch := range cfg.Epochs {
		order := rng.Perm(rows)
		for start := 0; start < rows; start += cfg.BatchSize {
			for _, i := range order[start:min(start+cfg.BatchSize, rows)] {
				x := row(data, i, dim)
				c, _ := nearest(x, centroids, cfg.K, dim)
				updates[c]++
				step := 1 / float64(updates[c])
				centroid := row(centroids, c, dim)
				for j := range centroid {
					centroid[j] += step * (finite(x[j]) - centroid[j])
				}
			}
			done++
			detail := fmt.Sprintf("epoch %d/%d", epoch+1, cfg.Epochs)
			if err := progress.Checkpoint(ctx, sink, "kmeans", float64(done)/float64(totalBatches), detail); err != nil {
				return nil, err
			}
		}
	}

	labels := make([]int, rows)
	counts := make([]int, cfg.K)
	inertia := assign(data, rows, dim, centroids, cfg.K, labels, counts)

	m := &Model{
		K:         cfg.K,
		Dim:       dim,
		Centroids: centroids,
		Counts:    counts,
		Inertia:   inertia,
		Method:    MethodOnline,
	}
	var empty []int
	for c, n := range counts {
		if n == 0 {
			empty = append(empty, c)
		}
	}
	if len(empty) > 0 {
		m.Warnings = append(m.Warnings, common.DegenerateModelWarning(common.StageKMeans,
			"clusters left empty after online training", empty, false))
		logger.Warn("Online k-means left empty clusters", logging.Fields{"clusters": empty})
	}

	logger.Info("Online k-means completed", logging.Fields{"inertia": inertia})
	return m, nil
}
