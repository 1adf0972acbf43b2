package app

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/RyanBlaney/latency-benchmark-common/logging"

	"github.com/RyanBlaney/spectral-cluster/configs"
	"github.com/RyanBlaney/spectral-cluster/pkg/analysis/kmeans"
	"github.com/RyanBlaney/spectral-cluster/pkg/analysis/pca"
	"github.com/RyanBlaney/spectral-cluster/pkg/analysis/progress"
	"github.com/RyanBlaney/spectral-cluster/pkg/audio/decoder"
	"github.com/RyanBlaney/spectral-cluster/pkg/audio/features"
	"github.com/RyanBlaney/spectral-cluster/pkg/audio/selection"
	"github.com/RyanBlaney/spectral-cluster/pkg/common"
)

// extraction is the outcome of decoding and analysing one input file
type extraction struct {
	Path     string
	Buffer   features.SampleBuffer
	Features *features.FeatureMatrix
	Warnings []common.Warning
	Elapsed  time.Duration
	Err      error
}

// recordingID names a recording after its file, without the extension
func recordingID(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// extractAll decodes and analyses every path on a bounded worker pool.
// Results keep the order of paths; the first failure in that order is returned.
func (app *App) extractAll(ctx context.Context, paths []string, cfg features.Config) ([]*extraction, error) {
	if len(paths) == 0 {
		return nil, common.InvalidInput(common.StageDecode, "no input files", nil)
	}

	workers := app.ctx.Workers
	if workers <= 0 {
		workers = 1
	}

	results := make([]*extraction, len(paths))
	var mu sync.Mutex
	var wg sync.WaitGroup
	sem := make(chan struct{}, workers)
	done := 0

	app.logger.Debug("Starting feature extraction", logging.Fields{
		"files":   len(paths),
		"workers": workers,
	})

	for i, path := range paths {
		wg.Add(1)
		go func(i int, path string) {
			defer wg.Done()

			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				results[i] = &extraction{Path: path, Err: ctx.Err()}
				return
			}
			defer func() { <-sem }()

			res := app.extractOne(ctx, path, cfg)
			results[i] = res

			mu.Lock()
			done++
			frac := float64(done) / float64(len(paths))
			mu.Unlock()
			app.ctx.Progress.Report("extract", frac, res.Path)
		}(i, path)
	}

	wg.Wait()

	for _, res := range results {
		if res.Err != nil {
			return results, fmt.Errorf("%s: %w", res.Path, res.Err)
		}
	}
	return results, nil
}

// extractOne runs decode and feature extraction for a single file. Each call
// gets its own extractor since extractors collect per-run warnings.
func (app *App) extractOne(ctx context.Context, path string, cfg features.Config) *extraction {
	start := time.Now()
	res := &extraction{Path: path}

	buf, err := decoder.ReadWAVFile(path)
	if err != nil {
		res.Err = err
		return res
	}
	res.Buffer = buf

	extractor := features.NewExtractor(cfg, nil)
	fm, err := extractor.Extract(ctx, buf)
	if err != nil {
		res.Err = err
		return res
	}
	res.Features = fm
	res.Warnings = extractor.Warnings()
	res.Elapsed = time.Since(start)

	app.logger.Debug("File analysed", logging.Fields{
		"file":        path,
		"sample_rate": buf.SampleRate,
		"duration_s":  buf.Duration(),
		"frames":      fm.Frames,
		"elapsed_ms":  res.Elapsed.Milliseconds(),
	})
	return res
}

// recordings converts successful extractions into selector input
func recordings(exts []*extraction) []selection.Recording {
	recs := make([]selection.Recording, 0, len(exts))
	for _, e := range exts {
		recs = append(recs, selection.Recording{ID: recordingID(e.Path), Features: e.Features})
	}
	return recs
}

// segmenterFor maps the configured segmenter name to an implementation
func segmenterFor(name string) selection.Segmenter {
	if name == "none" {
		return nil
	}
	return selection.EnergySegmenter{}
}

// fitPCA runs the configured estimator over the training matrix
func (app *App) fitPCA(ctx context.Context, tm *selection.TrainingMatrix) (*pca.Model, error) {
	cfg := app.config.PCA
	if cfg.Method == string(pca.MethodIncremental) {
		return pca.FitIncremental(ctx, tm.Data, tm.Rows, tm.Dim, cfg.Incremental(), app.ctx.Progress)
	}
	m, err := pca.FitBatch(tm.Data, tm.Rows, tm.Dim, cfg.Batch())
	if err != nil {
		return nil, err
	}
	if err := progress.Checkpoint(ctx, app.ctx.Progress, "pca", 1, string(m.Method)); err != nil {
		return nil, err
	}
	return m, nil
}

// fitKMeans clusters the projected rows with method. The range method keeps
// the model of the recommended K; results is nil for the online method.
func (app *App) fitKMeans(ctx context.Context, method string, data []float64, rows, dim int) (*kmeans.Model, []kmeans.RangeResult, int, error) {
	cfg := app.config.KMeans
	if method == configs.KMeansOnline {
		m, err := kmeans.FitOnline(ctx, data, rows, dim, cfg.Online(), app.ctx.Progress)
		return m, nil, 0, err
	}

	results, err := kmeans.EvaluateRange(ctx, data, rows, dim, cfg.Range(), app.ctx.Progress)
	if err != nil {
		return nil, nil, 0, err
	}
	k := app.calc.RecommendK(results)
	for _, r := range results {
		if r.K == k {
			return r.Model, results, k, nil
		}
	}
	// every silhouette was non-finite; fall back to the smallest K
	return results[0].Model, results, results[0].K, nil
}
