package app

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/RyanBlaney/latency-benchmark-common/logging"
	"github.com/RyanBlaney/latency-benchmark-common/output"
	"github.com/google/uuid"

	"github.com/RyanBlaney/spectral-cluster/configs"
	"github.com/RyanBlaney/spectral-cluster/internal/report"
	"github.com/RyanBlaney/spectral-cluster/pkg/analysis/progress"
)

// Context holds the application context and configuration
type Context struct {
	// CLI arguments
	ConfigFile   string // Application configuration file (optional)
	OutputFile   string
	OutputFormat string
	ModelFile    string // bundle written by train, read by predict
	Seed         *uint64
	Workers      int
	Verbose      bool
	Quiet        bool

	// Runtime context
	Logger   logging.Logger
	Config   *configs.Config
	Progress *progress.Sink
}

// App runs the analysis pipeline for one command invocation
type App struct {
	ctx    *Context
	config *configs.Config
	logger logging.Logger
	calc   *report.Calculator
	runID  string
}

// NewApp creates a new application from ctx
func NewApp(ctx *Context) (*App, error) {
	// Set up logging
	logger := setupLogging(ctx)
	ctx.Logger = logger

	// Load configuration
	config, err := loadAndMergeConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	ctx.Config = config

	runID := uuid.New().String()
	logger = logger.WithFields(logging.Fields{"run_id": runID})

	logger.Debug("Application initialized", logging.Fields{
		"config_file":   ctx.ConfigFile,
		"output_format": config.OutputFormat,
		"pca_method":    config.PCA.Method,
		"kmeans_method": config.KMeans.Method,
		"workers":       ctx.Workers,
	})

	return &App{
		ctx:    ctx,
		config: config,
		logger: logger,
		calc:   report.NewCalculator(logger),
		runID:  runID,
	}, nil
}

// RunID identifies this invocation in logs, reports and metrics
func (app *App) RunID() string {
	return app.runID
}

// Config returns the merged configuration
func (app *App) Config() *configs.Config {
	return app.config
}

// setupLogging configures logging based on context
func setupLogging(ctx *Context) logging.Logger {
	switch {
	case ctx.Verbose:
		logging.SetLevel(logging.DebugLevel)
	case ctx.Quiet:
		logging.SetLevel(logging.WarnLevel)
	}
	return logging.NewDefaultLogger()
}

// loadAndMergeConfig loads configuration from files and merges with CLI flags
func loadAndMergeConfig(ctx *Context) (*configs.Config, error) {
	// Load base configuration
	cfg, err := configs.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load base configuration: %w", err)
	}

	if ctx.ConfigFile != "" {
		cfg, err = loadConfigFromFile(ctx.ConfigFile, cfg)
		if err != nil {
			return nil, err
		}
	}

	cfg = mergeConfig(cfg, ctx)

	if err := configs.ValidateConfig(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// stageTimer accumulates wall time per pipeline stage
type stageTimer struct {
	start     time.Time
	durations map[string]int64
}

func newStageTimer() *stageTimer {
	return &stageTimer{start: time.Now(), durations: make(map[string]int64)}
}

// lap records the time since the previous lap under stage
func (t *stageTimer) lap(stage string) {
	now := time.Now()
	t.durations[stage] += now.Sub(t.start).Milliseconds()
	t.start = now
}

// outputResults formats data and writes it to the output file or stdout.
// The table and csv formats render tables; json and yaml encode data.
func (app *App) outputResults(data any, tables []report.Table) error {
	var formatted []byte
	switch format := app.config.OutputFormat; {
	case (format == "table" || format == "csv") && len(tables) > 0:
		var buf bytes.Buffer
		if err := renderTables(&buf, format, tables); err != nil {
			return fmt.Errorf("failed to render %s output: %w", format, err)
		}
		formatted = buf.Bytes()
	default:
		var formatter output.Formatter = &output.JSONFormatter{}
		if format == "yaml" {
			formatter = &output.YAMLFormatter{}
		}
		var err error
		formatted, err = formatter.Format(data, app.config.Output.Pretty)
		if err != nil {
			return fmt.Errorf("failed to format output data: %w", err)
		}
	}

	// Write to file or stdout
	if app.ctx.OutputFile != "" {
		return app.writeToFile(app.ctx.OutputFile, formatted)
	}

	_, err := os.Stdout.Write(formatted)
	return err
}

// renderTables writes every table in format, separated by a blank line
func renderTables(w io.Writer, format string, tables []report.Table) error {
	for i, t := range tables {
		if i > 0 {
			if _, err := io.WriteString(w, "\n"); err != nil {
				return err
			}
		}
		var err error
		if format == "csv" {
			err = t.WriteCSV(w)
		} else {
			err = t.WriteText(w)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// writeToFile writes data to the specified output file
func (app *App) writeToFile(path string, data []byte) error {
	// Ensure directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	// Write file
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write output file: %w", err)
	}

	app.logger.Debug("Results written to file", logging.Fields{
		"output_file": path,
		"size_bytes":  len(data),
	})

	return nil
}
