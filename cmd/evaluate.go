package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// evaluateCmd represents the evaluate command
var evaluateCmd = &cobra.Command{
	Use:   "evaluate [flags] <wav-files...>",
	Short: "Score every K in a range without saving a model",
	Long: `Run extraction, frame selection and PCA, then cluster the projection once
per K in [k-min, k-max] and report inertia, silhouette, Calinski-Harabasz and
Davies-Bouldin scores. The K with the best silhouette is marked.

Examples:
  spectral-cluster evaluate --k-min 2 --k-max 12 data/*.wav
  spectral-cluster evaluate -o csv -f scores.csv data/*.wav`,
	Args: cobra.MinimumNArgs(1),
	RunE: runEvaluate,
}

func init() {
	rootCmd.AddCommand(evaluateCmd)
	addPipelineFlags(evaluateCmd)
}

func runEvaluate(cmd *cobra.Command, args []string) error {
	bindPipelineFlags(cmd)

	a, stop, err := newApp(true)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	_, err = a.Evaluate(ctx, args)
	stop()
	if err != nil {
		return fmt.Errorf("evaluation failed: %w", err)
	}
	return nil
}
