package cmd

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/RyanBlaney/spectral-cluster/configs"
	"github.com/RyanBlaney/spectral-cluster/internal/app"
)

// configCmd groups the configuration helpers
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect, generate and validate configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Display every resolved configuration value",
	Long: `Load the configuration from defaults, the config file, environment
variables and flags and display the resolved values.

Examples:
  spectral-cluster config show
  spectral-cluster --config ./my.yaml config show`,
	RunE: runConfigShow,
}

var configInitCmd = &cobra.Command{
	Use:   "init [path]",
	Short: "Write the default configuration as YAML",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := filepath.Join(configs.GetDefaultConfig().ConfigDir, "spectral-cluster.yaml")
		if len(args) == 1 {
			path = args[0]
		}
		if err := app.GenerateExampleConfig(path); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Example configuration written to %s\n", path)
		return nil
	},
}

var configValidateCmd = &cobra.Command{
	Use:   "validate <path>",
	Short: "Check a configuration file against every component's constraints",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := app.ValidateConfig(args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s is valid\n", args[0])
		return nil
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd, configInitCmd, configValidateCmd)
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	fmt.Println("SPECTRAL CLUSTER CONFIGURATION")
	fmt.Println(strings.Repeat("=", 80))

	// Load configuration
	config, err := configs.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	printSection("APPLICATION SETTINGS")
	printKeyValue("Verbose", fmt.Sprintf("%t", config.Verbose))
	printKeyValue("Log Level", config.LogLevel)
	printKeyValue("Output Format", config.OutputFormat)
	printKeyValue("Config Directory", config.ConfigDir)
	printKeyValue("Data Directory", config.DataDir)
	printKeyValue("Segmenter", config.Segmenter)

	f := config.Features
	printSection("FEATURE EXTRACTION")
	printKeyValue("FFT Size", fmt.Sprintf("%d", f.FFTSize))
	printKeyValue("Hop Size", fmt.Sprintf("%d", f.HopSize))
	printKeyValue("Mel Bands", fmt.Sprintf("%d", f.NMels))
	printKeyValue("Window", f.Window)
	printKeyValue("Frequency Range", fmt.Sprintf("%.1f - %.1f Hz (0 = Nyquist)", f.FMin, f.FMax))

	s := config.Selection
	printSection("FRAME SELECTION")
	printSubsection("Segmenter")
	printKeyValue("  Silence RMS Ratio", fmt.Sprintf("%g", s.Segmenter.SilenceRMSRatio))
	printKeyValue("  Min Silence Frames", fmt.Sprintf("%d", s.Segmenter.MinSilenceFrames))
	printKeyValue("  Min Speech Frames", fmt.Sprintf("%d", s.Segmenter.MinSpeechFrames))
	printSubsection("Thresholds")
	printKeyValue("  RMS Ratio", fmt.Sprintf("%g", s.RMSRatio))
	printKeyValue("  Min RMS Absolute", fmt.Sprintf("%g", s.MinRMSAbsolute))
	printKeyValue("  Min Mel Sum Ratio", fmt.Sprintf("%g", s.MinMelSumRatio))
	printKeyValue("  Keep Silence Fraction", fmt.Sprintf("%g", s.KeepSilenceFraction))
	printSubsection("Limits and Transform")
	printKeyValue("  Max Frames Per Recording", fmt.Sprintf("%d", s.MaxFramesPerRecording))
	printKeyValue("  Max Total Frames", fmt.Sprintf("%d", s.MaxTotalFrames))
	printKeyValue("  Context Window", fmt.Sprintf("%d", s.ContextWindow))
	printKeyValue("  Log Mel", fmt.Sprintf("%t", s.LogMel))
	printKeyValue("  Clamp Abs", fmt.Sprintf("%g", s.ClampAbs))
	printKeyValue("  Z-Score", string(s.ZScore))

	p := config.PCA
	printSection("PCA")
	printKeyValue("Method", p.Method)
	printKeyValue("Components", fmt.Sprintf("%d", p.Components))
	printKeyValue("Max Iterations", fmt.Sprintf("%d", p.MaxIter))
	printKeyValue("Tolerance", fmt.Sprintf("%g", p.Tol))
	printKeyValue("Epochs", fmt.Sprintf("%d", p.Epochs))
	printKeyValue("Learning Rate", fmt.Sprintf("%g * %g / n^%g", p.BaseLR, p.Decay, p.LRPower))
	printKeyValue("Reorthonormalize Every", fmt.Sprintf("%d", p.ReorthEvery))
	printKeyValue("Min Rows For Incremental", fmt.Sprintf("%d", p.MinRowsForIncremental))
	printKeyValue("Degenerate Norm", fmt.Sprintf("%g", p.DegenerateNorm))
	printKeyValue("Repair Degenerate", fmt.Sprintf("%t", p.RepairDegenerate))
	printKeyValue("Seed", formatSeed(p.Seed))

	k := config.KMeans
	printSection("K-MEANS")
	printKeyValue("Method", k.Method)
	printKeyValue("K Range", fmt.Sprintf("%d - %d", k.KMin, k.KMax))
	printKeyValue("Initializations", fmt.Sprintf("%d", k.NInit))
	printKeyValue("Max Iterations", fmt.Sprintf("%d", k.MaxIter))
	printKeyValue("Tolerance", fmt.Sprintf("%g", k.Tol))
	printKeyValue("Silhouette Sample", fmt.Sprintf("%d", k.SilhouetteSample))
	printKeyValue("Davies-Bouldin Sample", fmt.Sprintf("%d", k.DBSample))
	printKeyValue("Online K", fmt.Sprintf("%d", k.K))
	printKeyValue("Online Epochs", fmt.Sprintf("%d", k.Epochs))
	printKeyValue("Online Batch Size", fmt.Sprintf("%d", k.BatchSize))
	printKeyValue("Seed", formatSeed(k.Seed))

	printSection("OUTPUT")
	printKeyValue("Precision", fmt.Sprintf("%d", config.Output.Precision))
	printKeyValue("Pretty", fmt.Sprintf("%t", config.Output.Pretty))
	printKeyValue("Model Format", config.Output.ModelFormat)
	printKeyValue("Progress Bars", fmt.Sprintf("%t", config.Output.Progress))

	printSection("METRICS")
	printKeyValue("Enabled", fmt.Sprintf("%t", config.Metrics.Enabled))
	printKeyValue("Log File", config.Metrics.LogFile)
	printKeyValue("Prefix", config.Metrics.Prefix)
	printKeyValue("Tags", strings.Join(config.Metrics.Tags, ", "))

	fmt.Println()
	if err := configs.ValidateConfig(config); err != nil {
		printKeyValue("Validation", "FAILED: "+err.Error())
		return err
	}
	printKeyValue("Validation", "OK")
	return nil
}

func formatSeed(seed *uint64) string {
	if seed == nil {
		return "time based"
	}
	return fmt.Sprintf("%d", *seed)
}

func printSection(title string) {
	fmt.Printf("\n%s\n", title)
	fmt.Println(strings.Repeat("-", len(title)))
}

func printSubsection(title string) {
	fmt.Printf("\n  %s\n", title)
}

func printKeyValue(key, value string) {
	if value == "" {
		fmt.Printf("%-35s\n", key)
	} else {
		fmt.Printf("%-35s %s\n", key+":", value)
	}
}
