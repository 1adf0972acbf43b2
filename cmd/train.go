package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// trainCmd represents the train command
var trainCmd = &cobra.Command{
	Use:   "train [flags] <wav-files...>",
	Short: "Fit PCA and k-means on a set of recordings",
	Long: `Extract spectral features from every recording, select informative frames,
fit PCA and cluster the projected frames. The fitted pipeline is written as a
model bundle for the predict command.

Examples:
  # Train with defaults, sweeping K from 2 to 8 and keeping the best silhouette
  spectral-cluster train data/*.wav

  # Incremental PCA and online k-means with a fixed K for large corpora
  spectral-cluster train --pca-method incremental --kmeans-method online --k 6 corpus/*.wav

  # Reproducible run written as JSON
  spectral-cluster train --seed 42 --model model.json -o json -f report.json data/*.wav`,
	Args: cobra.MinimumNArgs(1),
	RunE: runTrain,
}

func init() {
	rootCmd.AddCommand(trainCmd)
	addPipelineFlags(trainCmd)

	trainCmd.Flags().StringVar(&modelFile, "model", "",
		"model bundle to write (.json, .yaml or .msgpack; default is <data-dir>/models/<run-id>)")
	trainCmd.Flags().String("kmeans-method", "range", "k-means estimator (range, online)")
	trainCmd.Flags().Int("k", 4, "number of clusters for online k-means")

	viper.BindPFlag("kmeans.method", trainCmd.Flags().Lookup("kmeans-method"))
	viper.BindPFlag("kmeans.k", trainCmd.Flags().Lookup("k"))
}

// addPipelineFlags registers the flags shared by train and evaluate
func addPipelineFlags(cmd *cobra.Command) {
	cmd.Flags().Uint64Var(&seed, "seed", 0, "seed for every random draw (default is time based)")
	cmd.Flags().String("pca-method", "batch", "PCA estimator (batch, incremental)")
	cmd.Flags().Int("components", 8, "number of principal components")
	cmd.Flags().Int("k-min", 2, "smallest K evaluated")
	cmd.Flags().Int("k-max", 8, "largest K evaluated")
	cmd.Flags().String("segmenter", "energy", "speech/silence segmenter (energy, none)")
}

// bindPipelineFlags binds the shared flags of the running command
func bindPipelineFlags(cmd *cobra.Command) {
	viper.BindPFlag("pca.method", cmd.Flags().Lookup("pca-method"))
	viper.BindPFlag("pca.components", cmd.Flags().Lookup("components"))
	viper.BindPFlag("kmeans.k_min", cmd.Flags().Lookup("k-min"))
	viper.BindPFlag("kmeans.k_max", cmd.Flags().Lookup("k-max"))
	viper.BindPFlag("segmenter", cmd.Flags().Lookup("segmenter"))
	seedSet = cmd.Flags().Changed("seed")
}

func runTrain(cmd *cobra.Command, args []string) error {
	bindPipelineFlags(cmd)

	a, stop, err := newApp(true)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	rep, err := a.Train(ctx, args)
	stop()
	if err != nil {
		return fmt.Errorf("training failed: %w", err)
	}

	if !quiet {
		fmt.Fprintf(cmd.ErrOrStderr(), "Model written to %s (K=%d, %d frames)\n",
			rep.ModelFile, rep.KMeans.K, rep.Selection.SelectedFrames)
	}
	return nil
}
