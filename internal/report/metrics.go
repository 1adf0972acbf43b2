package report

import (
	"context"
	"errors"
	"math"
	"slices"

	"github.com/RyanBlaney/latency-benchmark-common/logging"
	"gonum.org/v1/gonum/stat"

	"github.com/RyanBlaney/spectral-cluster/pkg/analysis/kmeans"
	"github.com/RyanBlaney/spectral-cluster/pkg/analysis/pca"
	"github.com/RyanBlaney/spectral-cluster/pkg/audio/selection"
	"github.com/RyanBlaney/spectral-cluster/pkg/common"
)

// Calculator turns raw training outputs into report sections
type Calculator struct {
	logger logging.Logger
}

// NewCalculator creates a new report calculator
func NewCalculator(logger logging.Logger) *Calculator {
	if logger == nil {
		logger = logging.NewDefaultLogger()
	}

	return &Calculator{
		logger: logger,
	}
}

// Stats represents statistical measures of a sample
type Stats struct {
	Mean   float64 `json:"mean" yaml:"mean"`
	Median float64 `json:"median" yaml:"median"`
	P95    float64 `json:"p95" yaml:"p95"`
	P99    float64 `json:"p99" yaml:"p99"`
	Min    float64 `json:"min" yaml:"min"`
	Max    float64 `json:"max" yaml:"max"`
	StdDev float64 `json:"std_dev" yaml:"std_dev"`
	Count  int     `json:"count" yaml:"count"`
}

// SelectionSummary aggregates per-recording frame selection diagnostics
type SelectionSummary struct {
	Recordings       int    `json:"recordings" yaml:"recordings"`
	SilentRecordings int    `json:"silent_recordings" yaml:"silent_recordings"`
	SkippedRecords   int    `json:"skipped_recordings" yaml:"skipped_recordings"`
	TotalFrames      int    `json:"total_frames" yaml:"total_frames"`
	SpeechFrames     int    `json:"speech_frames" yaml:"speech_frames"`
	SelectedFrames   int    `json:"selected_frames" yaml:"selected_frames"`
	DiscardedFrames  int    `json:"discarded_frames" yaml:"discarded_frames"`
	SelectedPercent  *Stats `json:"selected_percent" yaml:"selected_percent"`
	ThresholdRMS     *Stats `json:"threshold_rms" yaml:"threshold_rms"`
}

// PCASummary describes a fitted projection
type PCASummary struct {
	Method             string    `json:"method" yaml:"method"`
	Components         int       `json:"components" yaml:"components"`
	InputDim           int       `json:"input_dim" yaml:"input_dim"`
	Observations       int       `json:"observations" yaml:"observations"`
	ExplainedVariance  []float64 `json:"explained_variance" yaml:"explained_variance"`
	CumulativeVariance []float64 `json:"cumulative_variance" yaml:"cumulative_variance"`
	TotalExplained     float64   `json:"total_explained" yaml:"total_explained"`
}

// ClusterShare is the population of one cluster
type ClusterShare struct {
	Cluster  int     `json:"cluster" yaml:"cluster"`
	Count    int     `json:"count" yaml:"count"`
	Fraction float64 `json:"fraction" yaml:"fraction"`
}

// CalculateStats calculates statistical measures for a dataset. Non-finite
// values are ignored.
func (c *Calculator) CalculateStats(data []float64) *Stats {
	clean := make([]float64, 0, len(data))
	for _, v := range data {
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			clean = append(clean, v)
		}
	}
	if len(clean) == 0 {
		return &Stats{Count: 0}
	}

	slices.Sort(clean)
	mean, std := stat.PopMeanStdDev(clean, nil)

	stats := &Stats{
		Count:  len(clean),
		Mean:   mean,
		StdDev: std,
		Min:    clean[0],
		Max:    clean[len(clean)-1],
		Median: percentile(clean, 50),
		P95:    percentile(clean, 95),
		P99:    percentile(clean, 99),
	}

	return sanitizeStats(stats)
}

// SummarizeSelection folds the selector's per-recording stats into totals
func (c *Calculator) SummarizeSelection(recs []selection.RecordingStats) SelectionSummary {
	summary := SelectionSummary{Recordings: len(recs)}
	percents := make([]float64, 0, len(recs))
	thresholds := make([]float64, 0, len(recs))

	for _, r := range recs {
		summary.TotalFrames += r.TotalFrames
		summary.SpeechFrames += r.SpeechFrames
		summary.SelectedFrames += r.Selected
		summary.DiscardedFrames += r.Discarded
		if r.Silent {
			summary.SilentRecordings++
			continue
		}
		if r.Skipped {
			summary.SkippedRecords++
		}
		percents = append(percents, r.SelectedPercent)
		thresholds = append(thresholds, r.ThresholdRMS)
	}

	summary.SelectedPercent = c.CalculateStats(percents)
	summary.ThresholdRMS = c.CalculateStats(thresholds)

	c.logger.Debug("Selection summarized", logging.Fields{
		"recordings": summary.Recordings,
		"selected":   summary.SelectedFrames,
		"discarded":  summary.DiscardedFrames,
		"silent":     summary.SilentRecordings,
	})
	return summary
}

// SummarizePCA describes m for the report
func (c *Calculator) SummarizePCA(m *pca.Model) PCASummary {
	return PCASummary{
		Method:             string(m.Method),
		Components:         m.K,
		InputDim:           m.D,
		Observations:       m.NObs,
		ExplainedVariance:  m.ExplainedVariance,
		CumulativeVariance: m.CumulativeVariance,
		TotalExplained:     m.TotalExplained(),
	}
}

// RecommendK picks the K with the highest silhouette score. Ties go to the
// smaller K; results with a non-finite silhouette are skipped. Returns 0
// when nothing qualifies.
func (c *Calculator) RecommendK(results []kmeans.RangeResult) int {
	bestK := 0
	bestScore := math.Inf(-1)
	for _, r := range results {
		s := r.Metrics.Silhouette
		if math.IsNaN(s) || math.IsInf(s, 0) {
			continue
		}
		if s > bestScore || (s == bestScore && r.K < bestK) {
			bestK, bestScore = r.K, s
		}
	}

	c.logger.Debug("Recommended K", logging.Fields{
		"k":          bestK,
		"silhouette": bestScore,
		"candidates": len(results),
	})
	return bestK
}

// ClusterDistribution returns the share of rows in every cluster of m
func (c *Calculator) ClusterDistribution(m *kmeans.Model) []ClusterShare {
	total := 0
	for _, n := range m.Counts {
		total += n
	}
	shares := make([]ClusterShare, len(m.Counts))
	for i, n := range m.Counts {
		shares[i] = ClusterShare{Cluster: i, Count: n}
		if total > 0 {
			shares[i].Fraction = float64(n) / float64(total)
		}
	}
	return shares
}

// LabelDistribution counts labels from a predict run over k clusters
func (c *Calculator) LabelDistribution(labels []int, k int) []ClusterShare {
	counts := make([]int, k)
	for _, l := range labels {
		if l >= 0 && l < k {
			counts[l]++
		}
	}
	return c.ClusterDistribution(&kmeans.Model{K: k, Counts: counts})
}

// CategorizeError maps an error to a short category used in metric tags
func CategorizeError(err error) string {
	if err == nil {
		return "none"
	}

	var aerr *common.AnalysisError
	if !errors.As(err, &aerr) {
		if errors.Is(err, context.Canceled) {
			return "canceled"
		}
		return "other"
	}

	switch aerr.Code {
	case common.ErrCodeDecode, common.ErrCodeNoAudioChannel:
		return "format"
	case common.ErrCodeInvalidConfig:
		return "configuration"
	case common.ErrCodeInvalidInput:
		return "input"
	case common.ErrCodeEmptyTrainingSet, common.ErrCodeInsufficientData:
		return "data"
	case common.ErrCodeNumerical:
		return "numerical"
	}
	return "other"
}

// sanitizeStats removes infinite and NaN values to prevent JSON serialization errors
func sanitizeStats(stats *Stats) *Stats {
	for _, v := range []*float64{
		&stats.Mean, &stats.Median, &stats.P95, &stats.P99,
		&stats.Min, &stats.Max, &stats.StdDev,
	} {
		if math.IsInf(*v, 0) || math.IsNaN(*v) {
			*v = 0
		}
	}
	return stats
}

// percentile calculates the specified percentile of sorted data
func percentile(sortedData []float64, p float64) float64 {
	if len(sortedData) == 0 {
		return 0
	}

	if len(sortedData) == 1 {
		return sortedData[0]
	}

	// Calculate index for percentile
	index := (p / 100.0) * float64(len(sortedData)-1)

	// If index is not an integer, interpolate
	if index != float64(int(index)) {
		lower := int(math.Floor(index))
		upper := int(math.Ceil(index))

		if upper >= len(sortedData) {
			return sortedData[len(sortedData)-1]
		}

		weight := index - float64(lower)
		return sortedData[lower]*(1-weight) + sortedData[upper]*weight
	}

	return sortedData[int(index)]
}
