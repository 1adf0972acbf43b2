package report

import (
	"bytes"
	"context"
	"fmt"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RyanBlaney/spectral-cluster/pkg/analysis/kmeans"
	"github.com/RyanBlaney/spectral-cluster/pkg/audio/selection"
	"github.com/RyanBlaney/spectral-cluster/pkg/common"
)

func TestCalculateStats(t *testing.T) {
	c := NewCalculator(nil)

	stats := c.CalculateStats([]float64{5, 1, 3, 2, 4, math.NaN(), math.Inf(1)})
	assert.Equal(t, 5, stats.Count)
	assert.Equal(t, 1.0, stats.Min)
	assert.Equal(t, 5.0, stats.Max)
	assert.Equal(t, 3.0, stats.Mean)
	assert.Equal(t, 3.0, stats.Median)
	assert.InDelta(t, math.Sqrt(2), stats.StdDev, 1e-12)
	assert.InDelta(t, 4.8, stats.P95, 1e-12)

	assert.Equal(t, &Stats{}, c.CalculateStats(nil))
}

func TestPercentile(t *testing.T) {
	assert.Zero(t, percentile(nil, 50))
	assert.Equal(t, 7.0, percentile([]float64{7}, 99))
	assert.Equal(t, 2.5, percentile([]float64{1, 2, 3, 4}, 50))
}

func TestSummarizeSelection(t *testing.T) {
	c := NewCalculator(nil)
	summary := c.SummarizeSelection([]selection.RecordingStats{
		{ID: "a", TotalFrames: 100, SpeechFrames: 80, Selected: 60, Discarded: 40, SelectedPercent: 60, ThresholdRMS: 0.01},
		{ID: "b", TotalFrames: 50, SpeechFrames: 50, Selected: 20, Discarded: 30, SelectedPercent: 40, ThresholdRMS: 0.03},
		{ID: "c", TotalFrames: 10, Discarded: 10, Silent: true},
	})

	assert.Equal(t, 3, summary.Recordings)
	assert.Equal(t, 1, summary.SilentRecordings)
	assert.Equal(t, 160, summary.TotalFrames)
	assert.Equal(t, 80, summary.SelectedFrames)
	assert.Equal(t, 80, summary.DiscardedFrames)
	assert.Equal(t, 2, summary.SelectedPercent.Count)
	assert.Equal(t, 50.0, summary.SelectedPercent.Mean)
	assert.InDelta(t, 0.02, summary.ThresholdRMS.Mean, 1e-12)
}

func TestRecommendK(t *testing.T) {
	c := NewCalculator(nil)
	results := []kmeans.RangeResult{
		{K: 2, Metrics: kmeans.QualityMetrics{Silhouette: 0.4}},
		{K: 3, Metrics: kmeans.QualityMetrics{Silhouette: 0.7}},
		{K: 4, Metrics: kmeans.QualityMetrics{Silhouette: 0.7}},
		{K: 5, Metrics: kmeans.QualityMetrics{Silhouette: math.NaN()}},
	}
	assert.Equal(t, 3, c.RecommendK(results))
	assert.Zero(t, c.RecommendK(nil))
}

func TestClusterDistribution(t *testing.T) {
	c := NewCalculator(nil)
	shares := c.ClusterDistribution(&kmeans.Model{K: 3, Counts: []int{1, 3, 0}})
	require.Len(t, shares, 3)
	assert.Equal(t, 0.25, shares[0].Fraction)
	assert.Equal(t, 0.75, shares[1].Fraction)
	assert.Zero(t, shares[2].Fraction)

	labels := c.LabelDistribution([]int{0, 1, 1, 7}, 2)
	assert.Equal(t, []ClusterShare{{0, 1, 1.0 / 3}, {1, 2, 2.0 / 3}}, labels)
}

func TestCategorizeError(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, "none"},
		{common.NewAnalysisError(common.StageDecode, common.ErrCodeDecode, "bad header", nil), "format"},
		{common.InvalidConfig(common.StagePCA, "bad", nil), "configuration"},
		{common.InvalidInput(common.StageKMeans, "bad", nil), "input"},
		{fmt.Errorf("train: %w", common.ErrEmptyTrainingSet), "data"},
		{common.ErrNumerical, "numerical"},
		{fmt.Errorf("stopped: %w", context.Canceled), "canceled"},
		{fmt.Errorf("disk full"), "other"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, CategorizeError(tt.err), "%v", tt.err)
	}
}

func TestRangeTable(t *testing.T) {
	results := []kmeans.RangeResult{
		{K: 2, Inertia: 10, Iterations: 4, Metrics: kmeans.QualityMetrics{Silhouette: 0.5, DaviesBouldin: math.Inf(1)}},
		{K: 3, Inertia: 5, Iterations: 6, Metrics: kmeans.QualityMetrics{Silhouette: 0.8, DaviesBouldin: 0.3}},
	}
	table := RangeTable(results, 3, 2)

	assert.Equal(t, []string{"K", "Inertia", "Silhouette", "Calinski Harabasz", "Davies Bouldin", "Iterations", "Recommended"}, table.Headers)
	require.Len(t, table.Rows, 2)
	assert.Equal(t, "n/a", table.Rows[0][4])
	assert.Equal(t, "", table.Rows[0][6])
	assert.Equal(t, "*", table.Rows[1][6])
	assert.Equal(t, "0.80", table.Rows[1][2])

	var text bytes.Buffer
	require.NoError(t, table.WriteText(&text))
	lines := strings.Split(strings.TrimRight(text.String(), "\n"), "\n")
	require.Len(t, lines, 6)
	assert.Equal(t, "K Range", lines[0])
	assert.True(t, strings.HasPrefix(lines[2], "K  Inertia"), lines[2])
	assert.True(t, strings.HasPrefix(lines[5], "3  5.00"), lines[5])
	assert.True(t, strings.HasSuffix(lines[5], "*"), lines[5])
	// columns line up
	assert.Equal(t, strings.Index(lines[2], "Silhouette"), strings.Index(lines[5], "0.80"))

	var csvOut bytes.Buffer
	require.NoError(t, table.WriteCSV(&csvOut))
	assert.Equal(t, "K,Inertia,Silhouette,Calinski Harabasz,Davies Bouldin,Iterations,Recommended\n"+
		"2,10.00,0.50,0.00,n/a,4,\n"+
		"3,5.00,0.80,0.00,0.30,6,*\n", csvOut.String())
}

func TestSelectionTableMarksSilentAndSkipped(t *testing.T) {
	table := SelectionTable([]selection.RecordingStats{
		{ID: "quiet", Silent: true},
		{ID: "late", Skipped: true},
		{ID: "ok", SelectedPercent: 42.25},
	}, 3)
	assert.Equal(t, "quiet (silent)", table.Rows[0][0])
	assert.Equal(t, "late (skipped)", table.Rows[1][0])
	assert.Equal(t, "42.2", table.Rows[2][5])
}
