package configs

import (
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// setDefaults sets default configuration values for all components
func setDefaults(v *viper.Viper) {
	// Application defaults
	if !v.IsSet("verbose") {
		v.Set("verbose", false)
	}
	if !v.IsSet("log_level") {
		v.Set("log_level", "info")
	}
	if !v.IsSet("output_format") {
		v.Set("output_format", "table")
	}
	home, _ := os.UserHomeDir()
	if !v.IsSet("config_dir") {
		v.Set("config_dir", filepath.Join(home, ".config", "spectral-cluster"))
	}
	if !v.IsSet("data_dir") {
		v.Set("data_dir", filepath.Join(home, ".local", "share", "spectral-cluster"))
	}
	if !v.IsSet("segmenter") {
		v.Set("segmenter", "energy")
	}

	setFeatureDefaults(v)
	setSelectionDefaults(v)
	setPCADefaults(v)
	setKMeansDefaults(v)

	// Output defaults
	if !v.IsSet("output.precision") {
		v.Set("output.precision", 4)
	}
	if !v.IsSet("output.pretty") {
		v.Set("output.pretty", true)
	}
	if !v.IsSet("output.model_format") {
		v.Set("output.model_format", "msgpack")
	}
	if !v.IsSet("output.progress") {
		v.Set("output.progress", true)
	}

	// Metrics defaults
	if !v.IsSet("metrics.enabled") {
		v.Set("metrics.enabled", false)
	}
	if !v.IsSet("metrics.log_file") {
		v.Set("metrics.log_file", filepath.Join(os.TempDir(), "spectral-cluster.log"))
	}
	if !v.IsSet("metrics.prefix") {
		v.Set("metrics.prefix", "spectralcluster")
	}
	if !v.IsSet("metrics.tags") {
		v.Set("metrics.tags", []string{})
	}
}

// setFeatureDefaults sets spectral extraction defaults
func setFeatureDefaults(v *viper.Viper) {
	if !v.IsSet("features.fft_size") {
		v.Set("features.fft_size", 2048)
	}
	if !v.IsSet("features.hop_size") {
		v.Set("features.hop_size", 512)
	}
	if !v.IsSet("features.n_mels") {
		v.Set("features.n_mels", 40)
	}
	if !v.IsSet("features.window") {
		v.Set("features.window", "hann")
	}
	if !v.IsSet("features.fmin") {
		v.Set("features.fmin", 0.0)
	}
	// 0 means half the sample rate
	if !v.IsSet("features.fmax") {
		v.Set("features.fmax", 0.0)
	}
}

// setSelectionDefaults sets frame selection defaults
func setSelectionDefaults(v *viper.Viper) {
	if !v.IsSet("selection.segmenter.silence_rms_ratio") {
		v.Set("selection.segmenter.silence_rms_ratio", 0.1)
	}
	if !v.IsSet("selection.segmenter.min_silence_frames") {
		v.Set("selection.segmenter.min_silence_frames", 5)
	}
	if !v.IsSet("selection.segmenter.min_speech_frames") {
		v.Set("selection.segmenter.min_speech_frames", 3)
	}
	if !v.IsSet("selection.rms_ratio") {
		v.Set("selection.rms_ratio", 0.05)
	}
	if !v.IsSet("selection.min_rms_absolute") {
		v.Set("selection.min_rms_absolute", 1e-4)
	}
	if !v.IsSet("selection.min_mel_sum_ratio") {
		v.Set("selection.min_mel_sum_ratio", 0.01)
	}
	if !v.IsSet("selection.keep_silence_fraction") {
		v.Set("selection.keep_silence_fraction", 0.0)
	}
	if !v.IsSet("selection.max_frames_per_recording") {
		v.Set("selection.max_frames_per_recording", 2000)
	}
	if !v.IsSet("selection.max_total_frames") {
		v.Set("selection.max_total_frames", 50000)
	}
	if !v.IsSet("selection.context_window") {
		v.Set("selection.context_window", 0)
	}
	if !v.IsSet("selection.log_mel") {
		v.Set("selection.log_mel", true)
	}
	if !v.IsSet("selection.clamp_abs") {
		v.Set("selection.clamp_abs", 1e6)
	}
	if !v.IsSet("selection.zscore") {
		v.Set("selection.zscore", "none")
	}
}

// setPCADefaults sets defaults shared by both PCA estimators
func setPCADefaults(v *viper.Viper) {
	if !v.IsSet("pca.method") {
		v.Set("pca.method", "batch")
	}
	if !v.IsSet("pca.components") {
		v.Set("pca.components", 8)
	}
	if !v.IsSet("pca.max_iter") {
		v.Set("pca.max_iter", 200)
	}
	if !v.IsSet("pca.tol") {
		v.Set("pca.tol", 1e-9)
	}
	if !v.IsSet("pca.epochs") {
		v.Set("pca.epochs", 1)
	}
	if !v.IsSet("pca.base_lr") {
		v.Set("pca.base_lr", 0.01)
	}
	if !v.IsSet("pca.decay") {
		v.Set("pca.decay", 1.0)
	}
	if !v.IsSet("pca.lr_power") {
		v.Set("pca.lr_power", 0.5)
	}
	if !v.IsSet("pca.reorth_every") {
		v.Set("pca.reorth_every", 100)
	}
	if !v.IsSet("pca.min_rows_for_incremental") {
		v.Set("pca.min_rows_for_incremental", 0)
	}
	if !v.IsSet("pca.degenerate_norm") {
		v.Set("pca.degenerate_norm", 1e-6)
	}
	if !v.IsSet("pca.repair_degenerate") {
		v.Set("pca.repair_degenerate", true)
	}
}

// setKMeansDefaults sets clustering defaults
func setKMeansDefaults(v *viper.Viper) {
	if !v.IsSet("kmeans.method") {
		v.Set("kmeans.method", KMeansRange)
	}
	if !v.IsSet("kmeans.k_min") {
		v.Set("kmeans.k_min", 2)
	}
	if !v.IsSet("kmeans.k_max") {
		v.Set("kmeans.k_max", 8)
	}
	if !v.IsSet("kmeans.n_init") {
		v.Set("kmeans.n_init", 5)
	}
	if !v.IsSet("kmeans.max_iter") {
		v.Set("kmeans.max_iter", 100)
	}
	if !v.IsSet("kmeans.tol") {
		v.Set("kmeans.tol", 1e-4)
	}
	if !v.IsSet("kmeans.silhouette_sample") {
		v.Set("kmeans.silhouette_sample", 1000)
	}
	if !v.IsSet("kmeans.db_sample") {
		v.Set("kmeans.db_sample", 2000)
	}
	if !v.IsSet("kmeans.k") {
		v.Set("kmeans.k", 4)
	}
	if !v.IsSet("kmeans.epochs") {
		v.Set("kmeans.epochs", 5)
	}
	if !v.IsSet("kmeans.batch_size") {
		v.Set("kmeans.batch_size", 256)
	}
}
