package configs

import (
	"fmt"

	"github.com/spf13/viper"

	"github.com/RyanBlaney/spectral-cluster/pkg/analysis/kmeans"
	"github.com/RyanBlaney/spectral-cluster/pkg/analysis/pca"
	"github.com/RyanBlaney/spectral-cluster/pkg/audio/features"
	"github.com/RyanBlaney/spectral-cluster/pkg/audio/selection"
)

// K-means estimators selectable with kmeans.method
const (
	KMeansRange  = "range"
	KMeansOnline = "online"
)

// Config represents the application configuration
type Config struct {
	// Application settings
	Verbose      bool   `mapstructure:"verbose" json:"verbose" yaml:"verbose"`
	LogLevel     string `mapstructure:"log_level" json:"log_level" yaml:"log_level"`
	OutputFormat string `mapstructure:"output_format" json:"output_format" yaml:"output_format"`
	ConfigDir    string `mapstructure:"config_dir" json:"config_dir" yaml:"config_dir"`
	DataDir      string `mapstructure:"data_dir" json:"data_dir" yaml:"data_dir"`
	Segmenter    string `mapstructure:"segmenter" json:"segmenter" yaml:"segmenter"` // energy or none

	// Spectral feature extraction
	Features features.Config `mapstructure:"features" json:"features" yaml:"features"`

	// Frame selection
	Selection selection.Config `mapstructure:"selection" json:"selection" yaml:"selection"`

	// Dimensionality reduction
	PCA PCAConfig `mapstructure:"pca" json:"pca" yaml:"pca"`

	// Clustering
	KMeans KMeansConfig `mapstructure:"kmeans" json:"kmeans" yaml:"kmeans"`

	// Output configuration
	Output OutputConfig `mapstructure:"output" json:"output" yaml:"output"`

	// Metrics collector configuration
	Metrics MetricsConfig `mapstructure:"metrics" json:"metrics" yaml:"metrics"`
}

// PCAConfig holds the settings of both PCA estimators
type PCAConfig struct {
	Method                string  `mapstructure:"method" json:"method" yaml:"method"` // batch or incremental
	Components            int     `mapstructure:"components" json:"components" yaml:"components"`
	MaxIter               int     `mapstructure:"max_iter" json:"max_iter" yaml:"max_iter"`
	Tol                   float64 `mapstructure:"tol" json:"tol" yaml:"tol"`
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

// Batch returns the batch estimator settings
func (c PCAConfig) Batch() pca.BatchConfig {
	return pca.BatchConfig{
		Components: c.Components,
		MaxIter:    c.MaxIter,
		Tol:        c.Tol,
	}
}

// Incremental returns the incremental estimator settings
func (c PCAConfig) Incremental() pca.IncrementalConfig {
	return pca.IncrementalConfig{
		Components:            c.Components,
		Epochs:                c.Epochs,
		BaseLR:                c.BaseLR,
		Decay:                 c.Decay,
		LRPower:               c.LRPower,
		ReorthEvery:           c.ReorthEvery,
		MinRowsForIncremental: c.MinRowsForIncremental,
		DegenerateNorm:        c.DegenerateNorm,
		RepairDegenerate:      c.RepairDegenerate,
		Seed:                  c.Seed,
	}
}

// KMeansConfig holds the settings of the range evaluator and the online
// estimator
type KMeansConfig struct {
	Method           string  `mapstructure:"method" json:"method" yaml:"method"` // range or online
	KMin             int     `mapstructure:"k_min" json:"k_min" yaml:"k_min"`
	KMax             int     `mapstructure:"k_max" json:"k_max" yaml:"k_max"`
	NInit            int     `mapstructure:"n_init" json:"n_init" yaml:"n_init"`
	MaxIter          int     `mapstructure:"max_iter" json:"max_iter" yaml:"max_iter"`
	Tol              float64 `mapstructure:"tol" json:"tol" yaml:"tol"`
	SilhouetteSample int     `mapstructure:"silhouette_sample" json:"silhouette_sample" yaml:"silhouette_sample"`
	DBSample         int     `mapstructure:"db_sample" json:"db_sample" yaml:"db_sample"`
	K                int     `mapstructure:"k" json:"k" yaml:"k"` // online only
	Epochs           int     `mapstructure:"epochs" json:"epochs" yaml:"epochs"`
	BatchSize        int     `mapstructure:"batch_size" json:"batch_size" yaml:"batch_size"`
	Seed             *uint64 `mapstructure:"seed" json:"seed,omitempty" yaml:"seed,omitempty"`
}

// Range returns the multi-K evaluator settings
func (c KMeansConfig) Range() kmeans.RangeConfig {
	return kmeans.RangeConfig{
		KMin:             c.KMin,
		KMax:             c.KMax,
		NInit:            c.NInit,
		MaxIter:          c.MaxIter,
		Tol:              c.Tol,
		SilhouetteSample: c.SilhouetteSample,
		DBSample:         c.DBSample,
		Seed:             c.Seed,
	}
}

// Online returns the online estimator settings
func (c KMeansConfig) Online() kmeans.OnlineConfig {
	return kmeans.OnlineConfig{
		K:         c.K,
		Epochs:    c.Epochs,
		BatchSize: c.BatchSize,
		Seed:      c.Seed,
	}
}

// OutputConfig contains output formatting settings
type OutputConfig struct {
	Precision   int    `mapstructure:"precision" json:"precision" yaml:"precision"`
	Pretty      bool   `mapstructure:"pretty" json:"pretty" yaml:"pretty"`
	ModelFormat string `mapstructure:"model_format" json:"model_format" yaml:"model_format"` // json, yaml or msgpack
	Progress    bool   `mapstructure:"progress" json:"progress" yaml:"progress"`
}

// MetricsConfig contains metrics collector settings
type MetricsConfig struct {
	Enabled bool     `mapstructure:"enabled" json:"enabled" yaml:"enabled"`
	LogFile string   `mapstructure:"log_file" json:"log_file" yaml:"log_file"`
	Prefix  string   `mapstructure:"prefix" json:"prefix" yaml:"prefix"`
	Tags    []string `mapstructure:"tags" json:"tags" yaml:"tags"`
}

// LoadConfig loads configuration from viper
func LoadConfig() (*Config, error) {
	v := viper.GetViper()
	setDefaults(v)

	config := &Config{}
	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("unable to decode configuration: %w", err)
	}

	return config, nil
}

// GetDefaultConfig returns the configuration with every default applied and
// nothing read from files, flags or the environment
func GetDefaultConfig() *Config {
	v := viper.New()
	setDefaults(v)

	config := &Config{}
	if err := v.Unmarshal(config); err != nil {
		// defaults are static; a failure here is a programming error
		panic(fmt.Sprintf("default configuration does not decode: %v", err))
	}
	return config
}

// ValidateConfig validates the configuration
func ValidateConfig(config *Config) error {
	if err := config.Features.Validate(); err != nil {
		return fmt.Errorf("features: %w", err)
	}

	if err := config.Selection.Validate(); err != nil {
		return fmt.Errorf("selection: %w", err)
	}

	switch config.Segmenter {
	case "energy", "none":
	default:
		return fmt.Errorf("unknown segmenter %q (want energy or none)", config.Segmenter)
	}

	switch config.PCA.Method {
	case "batch":
		if config.PCA.Components <= 0 {
			return fmt.Errorf("pca: components must be positive")
		}
	case "incremental":
		if err := config.PCA.Incremental().Validate(); err != nil {
			return fmt.Errorf("pca: %w", err)
		}
	default:
		return fmt.Errorf("pca: unknown method %q (want batch or incremental)", config.PCA.Method)
	}

	switch config.KMeans.Method {
	case KMeansRange:
		if err := config.KMeans.Range().Validate(); err != nil {
			return fmt.Errorf("kmeans: %w", err)
		}
	case KMeansOnline:
		if err := config.KMeans.Online().Validate(); err != nil {
			return fmt.Errorf("kmeans: %w", err)
		}
	default:
		return fmt.Errorf("kmeans: unknown method %q (want range or online)", config.KMeans.Method)
	}

	switch config.Output.ModelFormat {
	case "json", "yaml", "msgpack":
	default:
		return fmt.Errorf("output: unknown model format %q", config.Output.ModelFormat)
	}

	return nil
}
