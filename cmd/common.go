package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/viper"

	"github.com/RyanBlaney/spectral-cluster/internal/app"
	"github.com/RyanBlaney/spectral-cluster/pkg/analysis/progress"
)

var (
	// Pipeline flags shared by train, evaluate and predict
	seed      uint64
	seedSet   bool
	modelFile string
)

// newApp builds the application for one subcommand from the global flags
func newApp(withProgress bool) (*app.App, func(), error) {
	ctx := &app.Context{
		ConfigFile:   configFile,
		OutputFile:   outputFile,
		OutputFormat: viper.GetString("output_format"),
		ModelFile:    modelFile,
		Workers:      workers,
		Verbose:      verbose || logLevel == "debug",
		Quiet:        quiet || logLevel == "warn" || logLevel == "error",
	}
	if seedSet {
		ctx.Seed = progress.Seed(seed)
	}

	a, err := app.NewApp(ctx)
	if err != nil {
		return nil, nil, err
	}

	sink, stop := startProgress(withProgress && a.Config().Output.Progress)
	ctx.Progress = sink
	return a, stop, nil
}

// signalContext is cancelled on SIGINT or SIGTERM so long fits stop at the
// next checkpoint
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
