// Package report assembles the human and machine readable summaries printed
// after extract, train, evaluate and predict runs.
package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/RyanBlaney/spectral-cluster/pkg/analysis/kmeans"
	"github.com/RyanBlaney/spectral-cluster/pkg/audio/selection"
	"github.com/RyanBlaney/spectral-cluster/pkg/common"
)

// KMeansSummary describes the clustering stage of a training run
type KMeansSummary struct {
	Method       string                 `json:"method" yaml:"method"`
	K            int                    `json:"k" yaml:"k"`
	RecommendedK int                    `json:"recommended_k,omitempty" yaml:"recommended_k,omitempty"`
	Inertia      float64                `json:"inertia" yaml:"inertia"`
	Metrics      *kmeans.QualityMetrics `json:"metrics,omitempty" yaml:"metrics,omitempty"`
	Range        []kmeans.RangeResult   `json:"range,omitempty" yaml:"range,omitempty"`
	Clusters     []ClusterShare         `json:"clusters" yaml:"clusters"`
}

// TrainingReport is the result document of a train run
type TrainingReport struct {
	RunID      string                     `json:"run_id" yaml:"run_id"`
	CreatedAt  time.Time                  `json:"created_at" yaml:"created_at"`
	ModelFile  string                     `json:"model_file,omitempty" yaml:"model_file,omitempty"`
	Selection  SelectionSummary           `json:"selection" yaml:"selection"`
	Recordings []selection.RecordingStats `json:"recordings" yaml:"recordings"`
	PCA        PCASummary                 `json:"pca" yaml:"pca"`
	KMeans     KMeansSummary              `json:"kmeans" yaml:"kmeans"`
	Warnings   []common.Warning           `json:"warnings,omitempty" yaml:"warnings,omitempty"`
	DurationMS map[string]int64           `json:"duration_ms" yaml:"duration_ms"`
}

// EvaluationReport is the result document of an evaluate run
type EvaluationReport struct {
	RunID        string               `json:"run_id" yaml:"run_id"`
	Rows         int                  `json:"rows" yaml:"rows"`
	Dim          int                  `json:"dim" yaml:"dim"`
	RecommendedK int                  `json:"recommended_k" yaml:"recommended_k"`
	Results      []kmeans.RangeResult `json:"results" yaml:"results"`
	Warnings     []common.Warning     `json:"warnings,omitempty" yaml:"warnings,omitempty"`
}

// Table is a header row plus string cells, rendered for the table and csv
// output formats
type Table struct {
	Title   string     `json:"title,omitempty"`
	Headers []string   `json:"headers"`
	Rows    [][]string `json:"rows"`
}

// WriteText writes the table with aligned columns under its title
func (t Table) WriteText(w io.Writer) error {
	if t.Title != "" {
		if _, err := fmt.Fprintf(w, "%s\n%s\n", t.Title, strings.Repeat("=", len(t.Title))); err != nil {
			return err
		}
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, strings.Join(t.Headers, "\t"))
	rule := make([]string, len(t.Headers))
	for i, h := range t.Headers {
		rule[i] = strings.Repeat("-", len(h))
	}
	fmt.Fprintln(tw, strings.Join(rule, "\t"))
	for _, row := range t.Rows {
		fmt.Fprintln(tw, strings.Join(row, "\t"))
	}
	return tw.Flush()
}

// WriteCSV writes the header and rows as CSV records
func (t Table) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(t.Headers); err != nil {
		return err
	}
	return cw.WriteAll(t.Rows)
}

// heading turns a snake_case key into a title-cased column heading
func heading(key string) string {
	return cases.Title(language.English).String(strings.ReplaceAll(key, "_", " "))
}

func formatFloat(v float64, precision int) string {
	if math.IsInf(v, 0) || math.IsNaN(v) {
		return "n/a"
	}
	return strconv.FormatFloat(v, 'f', precision, 64)
}

// RangeTable lays out one row per evaluated K, marking the recommended one
func RangeTable(results []kmeans.RangeResult, recommended, precision int) Table {
	t := Table{Title: "K Range"}
	for _, key := range []string{"k", "inertia", "silhouette", "calinski_harabasz", "davies_bouldin", "iterations", "recommended"} {
		t.Headers = append(t.Headers, heading(key))
	}
	for _, r := range results {
		mark := ""
		if r.K == recommended {
			mark = "*"
		}
		t.Rows = append(t.Rows, []string{
			strconv.Itoa(r.K),
			formatFloat(r.Inertia, precision),
			formatFloat(r.Metrics.Silhouette, precision),
			formatFloat(r.Metrics.CalinskiHarabasz, precision),
			formatFloat(r.Metrics.DaviesBouldin, precision),
			strconv.Itoa(r.Iterations),
			mark,
		})
	}
	return t
}

// SelectionTable lays out one row per recording
func SelectionTable(stats []selection.RecordingStats, precision int) Table {
	t := Table{Title: "Frame Selection"}
	for _, key := range []string{"recording", "total_frames", "speech_frames", "selected", "discarded", "selected_percent", "threshold_rms"} {
		t.Headers = append(t.Headers, heading(key))
	}
	for _, s := range stats {
		id := s.ID
		switch {
		case s.Silent:
			id += " (silent)"
		case s.Skipped:
			id += " (skipped)"
		}
		t.Rows = append(t.Rows, []string{
			id,
			strconv.Itoa(s.TotalFrames),
			strconv.Itoa(s.SpeechFrames),
			strconv.Itoa(s.Selected),
			strconv.Itoa(s.Discarded),
			formatFloat(s.SelectedPercent, 1),
			formatFloat(s.ThresholdRMS, precision),
		})
	}
	return t
}

// ClusterTable lays out cluster populations
func ClusterTable(shares []ClusterShare, precision int) Table {
	t := Table{Title: "Clusters", Headers: []string{heading("cluster"), heading("count"), heading("fraction")}}
	for _, s := range shares {
		t.Rows = append(t.Rows, []string{
			strconv.Itoa(s.Cluster),
			strconv.Itoa(s.Count),
			formatFloat(s.Fraction, precision),
		})
	}
	return t
}

