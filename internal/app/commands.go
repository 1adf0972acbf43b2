package app

import (
	"context"
	"fmt"
	"path/filepath"
	"slices"
	"time"

	"github.com/RyanBlaney/latency-benchmark-common/logging"

	"github.com/RyanBlaney/spectral-cluster/configs"
	"github.com/RyanBlaney/spectral-cluster/internal/report"
	"github.com/RyanBlaney/spectral-cluster/pkg/analysis/pca"
	"github.com/RyanBlaney/spectral-cluster/pkg/audio/selection"
	"github.com/RyanBlaney/spectral-cluster/pkg/common"
)

// FileFeatures summarizes the extraction of one file
type FileFeatures struct {
	File       string           `json:"file" yaml:"file"`
	SampleRate int              `json:"sample_rate" yaml:"sample_rate"`
	DurationS  float64          `json:"duration_s" yaml:"duration_s"`
	Frames     int              `json:"frames" yaml:"frames"`
	Dim        int              `json:"dim" yaml:"dim"`
	RMS        *report.Stats    `json:"rms" yaml:"rms"`
	CentroidHz *report.Stats    `json:"centroid_hz" yaml:"centroid_hz"`
	MelSum     *report.Stats    `json:"mel_sum" yaml:"mel_sum"`
	Warnings   []common.Warning `json:"warnings,omitempty" yaml:"warnings,omitempty"`
}

// FilePrediction holds the cluster assignments of one file
type FilePrediction struct {
	File     string                `json:"file" yaml:"file"`
	Frames   int                   `json:"frames" yaml:"frames"`
	Clusters []report.ClusterShare `json:"clusters" yaml:"clusters"`
	Labels   []FrameLabel          `json:"labels,omitempty" yaml:"labels,omitempty"`
}

// FrameLabel is the cluster of one frame
type FrameLabel struct {
	Frame     int     `json:"frame" yaml:"frame"`
	Timestamp float64 `json:"timestamp" yaml:"timestamp"`
	Cluster   int     `json:"cluster" yaml:"cluster"`
}

// Extract analyses every file and reports per-file feature statistics
func (app *App) Extract(ctx context.Context, paths []string) ([]FileFeatures, error) {
	timer := newStageTimer()
	exts, err := app.extractAll(ctx, paths, app.config.Features)
	if err != nil {
		app.collectFailure("extract", err)
		return nil, err
	}
	timer.lap("extract")

	out := make([]FileFeatures, 0, len(exts))
	for _, e := range exts {
		out = append(out, FileFeatures{
			File:       e.Path,
			SampleRate: e.Buffer.SampleRate,
			DurationS:  e.Buffer.Duration(),
			Frames:     e.Features.Frames,
			Dim:        e.Features.Dim,
			RMS:        app.calc.CalculateStats(e.Features.RMS()),
			CentroidHz: app.calc.CalculateStats(e.Features.Centroids()),
			MelSum:     app.calc.CalculateStats(e.Features.MelSums()),
			Warnings:   e.Warnings,
		})
	}

	app.collectStageMetrics("extract", timer.durations)
	return out, app.outputResults(out, []report.Table{extractTable(out, app.config.Output.Precision)})
}

// prepareTraining runs extraction and frame selection
func (app *App) prepareTraining(ctx context.Context, paths []string, timer *stageTimer) ([]*extraction, *selection.TrainingMatrix, error) {
	exts, err := app.extractAll(ctx, paths, app.config.Features)
	if err != nil {
		return nil, nil, err
	}
	timer.lap("extract")

	selector := selection.NewSelector(app.config.Selection, segmenterFor(app.config.Segmenter), app.ctx.Progress)
	tm, err := selector.Select(ctx, recordings(exts))
	if err != nil {
		return nil, nil, err
	}
	timer.lap("select")
	return exts, tm, nil
}

// Train runs extraction, selection, PCA and k-means, saves the model bundle
// and reports on every stage
func (app *App) Train(ctx context.Context, paths []string) (*report.TrainingReport, error) {
	rep, err := app.train(ctx, paths)
	if err != nil {
		app.collectFailure("train", err)
		return nil, err
	}

	app.collectStageMetrics("train", rep.DurationMS)
	app.collectTrainingMetrics(rep)

	p := app.config.Output.Precision
	tables := []report.Table{
		report.SelectionTable(rep.Recordings, p),
		report.ClusterTable(rep.KMeans.Clusters, p),
	}
	if len(rep.KMeans.Range) > 0 {
		tables = append(tables, report.RangeTable(rep.KMeans.Range, rep.KMeans.K, p))
	}
	return rep, app.outputResults(rep, tables)
}

func (app *App) train(ctx context.Context, paths []string) (*report.TrainingReport, error) {
	timer := newStageTimer()
	exts, tm, err := app.prepareTraining(ctx, paths, timer)
	if err != nil {
		return nil, err
	}

	pcaModel, err := app.fitPCA(ctx, tm)
	if err != nil {
		return nil, err
	}
	projected, err := pcaModel.Transform(tm.Data, tm.Rows)
	if err != nil {
		return nil, err
	}
	timer.lap("pca")

	kmModel, results, recommended, err := app.fitKMeans(ctx, app.config.KMeans.Method, projected, tm.Rows, pcaModel.K)
	if err != nil {
		return nil, err
	}
	timer.lap("kmeans")

	rep := &report.TrainingReport{
		RunID:      app.runID,
		CreatedAt:  time.Now().UTC(),
		Selection:  app.calc.SummarizeSelection(tm.Stats),
		Recordings: tm.Stats,
		PCA:        app.calc.SummarizePCA(pcaModel),
		KMeans: report.KMeansSummary{
			Method:       app.config.KMeans.Method,
			K:            kmModel.K,
			RecommendedK: recommended,
			Inertia:      kmModel.Inertia,
			Metrics:      kmModel.Metrics,
			Range:        results,
			Clusters:     app.calc.ClusterDistribution(kmModel),
		},
		DurationMS: timer.durations,
	}
	for _, e := range exts {
		rep.Warnings = append(rep.Warnings, e.Warnings...)
	}
	rep.Warnings = append(rep.Warnings, pcaModel.Warnings...)
	rep.Warnings = append(rep.Warnings, kmModel.Warnings...)
	for _, w := range rep.Warnings {
		app.logger.Warn("Training warning", logging.Fields{
			"stage":   w.Stage,
			"code":    w.Code,
			"message": w.Message,
		})
	}

	bundle := &ModelBundle{
		Version:       bundleVersion,
		RunID:         app.runID,
		CreatedAt:     rep.CreatedAt,
		Features:      app.config.Features,
		Selection:     app.config.Selection,
		Segmenter:     app.config.Segmenter,
		Normalization: tm.Normalization,
		PCA:           pcaModel.Snapshot(),
		KMeans:        kmModel.Snapshot(),
	}
	modelFile := app.ctx.ModelFile
	if modelFile == "" {
		modelFile = filepath.Join(app.config.DataDir, "models", app.runID+bundleExtension(app.config.Output.ModelFormat))
	}
	if err := SaveBundle(modelFile, app.config.Output.ModelFormat, bundle); err != nil {
		return nil, err
	}
	rep.ModelFile = modelFile
	timer.lap("save")

	app.logger.Info("Training completed", logging.Fields{
		"rows":       tm.Rows,
		"dim":        tm.Dim,
		"components": pcaModel.K,
		"explained":  pcaModel.TotalExplained(),
		"k":          kmModel.K,
		"inertia":    kmModel.Inertia,
		"model_file": modelFile,
	})
	return rep, nil
}

// Evaluate runs the K range evaluation on the projected training matrix
// without saving a model
func (app *App) Evaluate(ctx context.Context, paths []string) (*report.EvaluationReport, error) {
	timer := newStageTimer()
	rep, err := app.evaluate(ctx, paths, timer)
	if err != nil {
		app.collectFailure("evaluate", err)
		return nil, err
	}
	app.collectStageMetrics("evaluate", timer.durations)

	table := report.RangeTable(rep.Results, rep.RecommendedK, app.config.Output.Precision)
	return rep, app.outputResults(rep, []report.Table{table})
}

func (app *App) evaluate(ctx context.Context, paths []string, timer *stageTimer) (*report.EvaluationReport, error) {
	_, tm, err := app.prepareTraining(ctx, paths, timer)
	if err != nil {
		return nil, err
	}

	pcaModel, err := app.fitPCA(ctx, tm)
	if err != nil {
		return nil, err
	}
	projected, err := pcaModel.Transform(tm.Data, tm.Rows)
	if err != nil {
		return nil, err
	}
	timer.lap("pca")

	// evaluation always sweeps the range, whatever method train uses
	_, results, recommended, err := app.fitKMeans(ctx, configs.KMeansRange, projected, tm.Rows, pcaModel.K)
	if err != nil {
		return nil, err
	}
	timer.lap("kmeans")

	rep := &report.EvaluationReport{
		RunID:        app.runID,
		Rows:         tm.Rows,
		Dim:          pcaModel.K,
		RecommendedK: recommended,
		Results:      results,
		Warnings:     pcaModel.Warnings,
	}
	for _, r := range results {
		rep.Warnings = appendUnique(rep.Warnings, r.Model.Warnings...)
	}
	return rep, nil
}

// Predict assigns every frame of every file to a cluster of a saved model
func (app *App) Predict(ctx context.Context, modelFile string, paths []string) ([]FilePrediction, error) {
	timer := newStageTimer()
	preds, err := app.predict(ctx, modelFile, paths, timer)
	if err != nil {
		app.collectFailure("predict", err)
		return nil, err
	}
	app.collectStageMetrics("predict", timer.durations)

	var tables []report.Table
	for _, p := range preds {
		t := report.ClusterTable(p.Clusters, app.config.Output.Precision)
		t.Title = "Clusters: " + p.File
		tables = append(tables, t)
	}
	return preds, app.outputResults(preds, tables)
}

func (app *App) predict(ctx context.Context, modelFile string, paths []string, timer *stageTimer) ([]FilePrediction, error) {
	bundle, err := LoadBundle(modelFile)
	if err != nil {
		return nil, err
	}
	pcaModel, kmModel, err := bundle.Models()
	if err != nil {
		return nil, err
	}
	timer.lap("load")

	exts, err := app.extractAll(ctx, paths, bundle.Features)
	if err != nil {
		return nil, err
	}
	timer.lap("extract")

	selector := selection.NewSelector(bundle.Selection, segmenterFor(bundle.Segmenter), nil)
	preds := make([]FilePrediction, 0, len(exts))
	for _, e := range exts {
		labels, tm, err := app.labelRecording(ctx, selector, &bundle.Normalization, pcaModel, kmModel.Assign, e)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", e.Path, err)
		}

		pred := FilePrediction{
			File:     e.Path,
			Frames:   tm.Rows,
			Clusters: app.calc.LabelDistribution(labels, kmModel.K),
		}
		if app.config.Verbose {
			for i, l := range labels {
				pred.Labels = append(pred.Labels, FrameLabel{
					Frame:     tm.Index[i].FrameIndex,
					Timestamp: tm.Index[i].Timestamp,
					Cluster:   l,
				})
			}
		}
		preds = append(preds, pred)
	}
	timer.lap("predict")

	app.logger.Info("Prediction completed", logging.Fields{
		"model_run_id": bundle.RunID,
		"files":        len(preds),
		"k":            kmModel.K,
	})
	return preds, nil
}

// labelRecording prepares every frame of one recording, projects it and
// assigns clusters
func (app *App) labelRecording(ctx context.Context, selector *selection.Selector, norm *selection.Normalization,
	pcaModel *pca.Model, assign func([]float64, int) ([]int, error), e *extraction) ([]int, *selection.TrainingMatrix, error) {
	if norm.Mode == "" || norm.Mode == selection.ZScoreNone {
		norm = nil
	}
	tm, err := selector.Prepare(ctx, selection.Recording{ID: recordingID(e.Path), Features: e.Features}, norm)
	if err != nil {
		return nil, nil, err
	}
	if tm.Dim != pcaModel.D {
		return nil, nil, common.InvalidInput(common.StagePCA, "prepared frames do not match the model input dimension", logging.Fields{
			"frame_dim": tm.Dim,
			"model_dim": pcaModel.D,
		})
	}
	if tm.Rows == 0 {
		return nil, tm, nil
	}
	projected, err := pcaModel.Transform(tm.Data, tm.Rows)
	if err != nil {
		return nil, nil, err
	}
	labels, err := assign(projected, tm.Rows)
	return labels, tm, err
}

// extractTable lays out one row per analysed file
func extractTable(files []FileFeatures, precision int) report.Table {
	t := report.Table{
		Title:   "Features",
		Headers: []string{"File", "Sample Rate", "Duration S", "Frames", "Mean RMS", "Mean Centroid Hz"},
	}
	for _, f := range files {
		t.Rows = append(t.Rows, []string{
			f.File,
			fmt.Sprint(f.SampleRate),
			fmt.Sprintf("%.2f", f.DurationS),
			fmt.Sprint(f.Frames),
			fmt.Sprintf("%.*f", precision, f.RMS.Mean),
			fmt.Sprintf("%.1f", f.CentroidHz.Mean),
		})
	}
	return t
}

// appendUnique adds the warnings of add that ws does not hold yet. Every
// model of a truncated K range carries the same truncation warning.
func appendUnique(ws []common.Warning, add ...common.Warning) []common.Warning {
	for _, w := range add {
		if !slices.ContainsFunc(ws, func(have common.Warning) bool {
			return have.String() == w.String() && fmt.Sprint(have.Fields) == fmt.Sprint(w.Fields)
		}) {
			ws = append(ws, w)
		}
	}
	return ws
}
