package app

import (
	"slices"
	"syscall"

	"github.com/RyanBlaney/latency-benchmark-common/logging"
	"github.com/tunein/go-logging/v7/pkg/logger"
	"github.com/tunein/go-logging/v7/pkg/logger/logtypes"
	"github.com/tunein/go-logging/v7/pkg/rootcollector"
	"github.com/tunein/go-logging/v7/pkg/rootlogger"

	"github.com/RyanBlaney/spectral-cluster/internal/report"
)

// metricTags are attached to every metric of a run
func (app *App) metricTags(command string) []string {
	tags := []string{
		"command:" + command,
		"pca_method:" + app.config.PCA.Method,
		"kmeans_method:" + app.config.KMeans.Method,
	}
	return append(tags, app.config.Metrics.Tags...)
}

// configureCollector points the root collector at the configured log file
func (app *App) configureCollector() bool {
	if !app.config.Metrics.Enabled {
		return false
	}

	err := rootlogger.Configure(logger.LogOptions{
		Out:          app.config.Metrics.LogFile,
		ReopenSignal: syscall.SIGHUP,
		Level:        logtypes.InfoLevel,
	})
	if err != nil {
		logging.Error(err, "Failed configuring log writer")
		return false
	}
	return true
}

// collectStageMetrics sends per-stage durations to rootcollector
func (app *App) collectStageMetrics(command string, durations map[string]int64) {
	if !app.configureCollector() {
		return
	}

	prefix := app.config.Metrics.Prefix
	tags := app.metricTags(command)
	for stage, ms := range durations {
		rootcollector.Metric(prefix+"."+stage+".duration.ms", ms, append(slices.Clip(tags), "stage:"+stage))
	}
}

// collectTrainingMetrics sends model quality gauges to rootcollector. Scores
// are scaled by 1000 since the collector takes integers.
func (app *App) collectTrainingMetrics(rep *report.TrainingReport) {
	if !app.configureCollector() {
		return
	}

	prefix := app.config.Metrics.Prefix
	tags := app.metricTags("train")

	rootcollector.Metric(prefix+".selection.frames", int64(rep.Selection.SelectedFrames), tags)
	rootcollector.Metric(prefix+".pca.components", int64(rep.PCA.Components), tags)
	rootcollector.Metric(prefix+".pca.explained.milli", int64(rep.PCA.TotalExplained*1000), tags)
	rootcollector.Metric(prefix+".kmeans.k", int64(rep.KMeans.K), tags)
	rootcollector.Metric(prefix+".warnings", int64(len(rep.Warnings)), tags)

	if m := rep.KMeans.Metrics; m != nil {
		rootcollector.Metric(prefix+".kmeans.silhouette.milli", int64(m.Silhouette*1000), tags)
		rootcollector.Metric(prefix+".kmeans.calinski_harabasz", int64(m.CalinskiHarabasz), tags)
		if db := m.DaviesBouldin; db >= 0 && db < 1e12 {
			rootcollector.Metric(prefix+".kmeans.davies_bouldin.milli", int64(db*1000), tags)
		}
	}
}

// collectFailure records a failed run by error category
func (app *App) collectFailure(command string, err error) {
	if err == nil || !app.configureCollector() {
		return
	}
	tags := append(app.metricTags(command), "error:"+report.CategorizeError(err))
	rootcollector.Metric(app.config.Metrics.Prefix+".failures", 1, tags)
}
