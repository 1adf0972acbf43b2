package configs

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RyanBlaney/spectral-cluster/pkg/analysis/kmeans"
	"github.com/RyanBlaney/spectral-cluster/pkg/analysis/pca"
	"github.com/RyanBlaney/spectral-cluster/pkg/audio/features"
	"github.com/RyanBlaney/spectral-cluster/pkg/audio/selection"
)

func TestDefaultConfigMatchesComponentDefaults(t *testing.T) {
	cfg := GetDefaultConfig()
	require.NoError(t, ValidateConfig(cfg))

	assert.Equal(t, features.DefaultConfig(), cfg.Features)
	assert.Equal(t, selection.DefaultConfig(), cfg.Selection)
	assert.Equal(t, pca.DefaultBatchConfig(), cfg.PCA.Batch())
	assert.Equal(t, pca.DefaultIncrementalConfig(), cfg.PCA.Incremental())
	assert.Equal(t, kmeans.DefaultRangeConfig(), cfg.KMeans.Range())
	assert.Equal(t, kmeans.DefaultOnlineConfig(), cfg.KMeans.Online())

	assert.Equal(t, "energy", cfg.Segmenter)
	assert.Equal(t, "msgpack", cfg.Output.ModelFormat)
	assert.Equal(t, "spectralcluster", cfg.Metrics.Prefix)
}

func TestValidateConfig(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"unknown segmenter", func(c *Config) { c.Segmenter = "webrtc" }},
		{"bad fft", func(c *Config) { c.Features.FFTSize = 0 }},
		{"bad silence fraction", func(c *Config) { c.Selection.KeepSilenceFraction = 2 }},
		{"unknown pca method", func(c *Config) { c.PCA.Method = "svd" }},
		{"zero components", func(c *Config) { c.PCA.Components = 0 }},
		{"bad learning rate", func(c *Config) { c.PCA.Method = "incremental"; c.PCA.BaseLR = 0 }},
		{"inverted k range", func(c *Config) { c.KMeans.KMin = 5; c.KMeans.KMax = 2 }},
		{"unknown kmeans method", func(c *Config) { c.KMeans.Method = "dbscan" }},
		{"bad online batch", func(c *Config) { c.KMeans.Method = "online"; c.KMeans.BatchSize = 0 }},
		{"unknown model format", func(c *Config) { c.Output.ModelFormat = "pickle" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := GetDefaultConfig()
			tt.mutate(cfg)
			assert.Error(t, ValidateConfig(cfg))
		})
	}
}
