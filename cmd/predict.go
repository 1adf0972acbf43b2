package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// predictCmd represents the predict command
var predictCmd = &cobra.Command{
	Use:   "predict --model <bundle> [flags] <wav-files...>",
	Short: "Assign the frames of new recordings to trained clusters",
	Long: `Load a model bundle written by train and pass every frame of each recording
through the same extraction, transform, projection and clustering. Prints the
cluster distribution per file; with --verbose the label of every frame is
included as well.

Examples:
  spectral-cluster predict --model model.msgpack new.wav
  spectral-cluster predict --model model.json -v -o json other/*.wav`,
	Args: cobra.MinimumNArgs(1),
	RunE: runPredict,
}

func init() {
	rootCmd.AddCommand(predictCmd)

	predictCmd.Flags().StringVar(&modelFile, "model", "", "model bundle written by train")
	predictCmd.MarkFlagRequired("model")
}

func runPredict(cmd *cobra.Command, args []string) error {
	a, stop, err := newApp(true)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	_, err = a.Predict(ctx, modelFile, args)
	stop()
	if err != nil {
		return fmt.Errorf("prediction failed: %w", err)
	}
	return nil
}
