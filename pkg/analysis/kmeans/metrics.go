package kmeans

import (
	"encoding/json"
	"math"
	"math/rand/v2"
)

// silhouetteEps keeps the silhouette ratio finite when a == b == 0
const silhouetteEps = 1e-12

// QualityMetrics are internal cluster-quality scores; none needs labels
type QualityMetrics struct {
	Silhouette        float64 `json:"silhouette" yaml:"silhouette" msgpack:"silhouette"`
	CalinskiHarabasz  float64 `json:"calinski_harabasz" yaml:"calinski_harabasz" msgpack:"calinski_harabasz"`
	DaviesBouldin     float64 `json:"davies_bouldin" yaml:"davies_bouldin" msgpack:"davies_bouldin"` // +Inf when undefined
	SilhouetteSampled int     `json:"silhouette_sampled" yaml:"silhouette_sampled" msgpack:"silhouette_sampled"`
}

type qualityMetricsJSON struct {
	Silhouette        float64  `json:"silhouette"`
	CalinskiHarabasz  float64  `json:"calinski_harabasz"`
	DaviesBouldin     *float64 `json:"davies_bouldin"`
	SilhouetteSampled int      `json:"silhouette_sampled"`
}

// MarshalJSON writes an undefined Davies-Bouldin score as null since JSON
// has no infinity
func (q QualityMetrics) MarshalJSON() ([]byte, error) {
	out := qualityMetricsJSON{
		Silhouette:        q.Silhouette,
		CalinskiHarabasz:  q.CalinskiHarabasz,
		SilhouetteSampled: q.SilhouetteSampled,
	}
	if !math.IsInf(q.DaviesBouldin, 0) && !math.IsNaN(q.DaviesBouldin) {
		db := q.DaviesBouldin
		out.DaviesBouldin = &db
	}
	return json.Marshal(out)
}

// UnmarshalJSON reads a null Davies-Bouldin score back as +Inf
func (q *QualityMetrics) UnmarshalJSON(b []byte) error {
	var in qualityMetricsJSON
	if err := json.Unmarshal(b, &in); err != nil {
		return err
	}
	q.Silhouette = in.Silhouette
	q.CalinskiHarabasz = in.CalinskiHarabasz
	q.SilhouetteSampled = in.SilhouetteSampled
	q.DaviesBouldin = math.Inf(1)
	if in.DaviesBouldin != nil {
		q.DaviesBouldin = *in.DaviesBouldin
	}
	return nil
}

// sampleRows returns every row index when rows <= n, else n distinct indices
func sampleRows(rows, n int, rng *rand.Rand) []int {
	if n <= 0 || rows <= n {
		idx := make([]int, rows)
		for i := range idx {
			idx[i] = i
		}
		return idx
	}
	return rng.Perm(rows)[:n]
}

// Silhouette is the mean silhouette of up to sample rows, measured against
// the whole matrix. Rows alone in their cluster score 0, as does any
// labelling with fewer than two non-empty clusters.
func Silhouette(data []float64, rows, dim int, labels []int, k, sample int, rng *rand.Rand) (float64, int) {
	sizes := make([]int, k)
	for _, l := range labels {
		sizes[l]++
	}
	nonEmpty := 0
	for _, s := range sizes {
		if s > 0 {
			nonEmpty++
		}
	}
	idx := sampleRows(rows, sample, rng)
	if nonEmpty < 2 {
		return 0, len(idx)
	}

	sumDist := make([]float64, k)
	total := 0.0
	for _, i := range idx {
		clear(sumDist)
		x := row(data, i, dim)
		for j := range rows {
			if j != i {
				sumDist[labels[j]] += Distance(x, row(data, j, dim))
			}
		}
		own := labels[i]
		if sizes[own] <= 1 {
			continue
		}
		a := sumDist[own] / float64(sizes[own]-1)
		b := math.Inf(1)
		for c := range k {
			if c == own || sizes[c] == 0 {
				continue
			}
			b = math.Min(b, sumDist[c]/float64(sizes[c]))
		}
		total += (b - a) / math.Max(math.Max(a, b), silhouetteEps)
	}
	return total / float64(len(idx)), len(idx)
}

// CalinskiHarabasz is between/within dispersion scaled by (n-k)/(k-1). It is
// 0 when k == 1, n == k or the within dispersion is 0.
func CalinskiHarabasz(data []float64, rows, dim int, labels []int, centroids []float64, k int) float64 {
	if k <= 1 || rows <= k {
		return 0
	}
	mean := make([]float64, dim)
	for i := range rows {
		for j, v := range row(data, i, dim) {
			mean[j] += finite(v)
		}
	}
	for j := range mean {
		mean[j] /= float64(rows)
	}

	sizes := make([]int, k)
	within := 0.0
	for i := range rows {
		sizes[labels[i]]++
		within += SquaredDistance(row(data, i, dim), row(centroids, labels[i], dim))
	}
	between := 0.0
	for c := range k {
		between += float64(sizes[c]) * SquaredDistance(row(centroids, c, dim), mean)
	}
	if within <= 0 {
		return 0
	}
	return between / within * float64(rows-k) / float64(k-1)
}

// DaviesBouldin averages, over non-empty clusters, the worst ratio
// (S_i+S_j)/d(c_i,c_j) where S is the mean distance of a cluster's sampled
// rows to its centroid. It is +Inf with fewer than two non-empty clusters or
// when two centroids coincide.
func DaviesBouldin(data []float64, rows, dim int, labels []int, centroids []float64, k, sample int, rng *rand.Rand) float64 {
	scatter := make([]float64, k)
	sizes := make([]int, k)
	for _, i := range sampleRows(rows, sample, rng) {
		c := labels[i]
		scatter[c] += Distance(row(data, i, dim), row(centroids, c, dim))
		sizes[c]++
	}
	var live []int
	for c := range k {
		if sizes[c] > 0 {
			scatter[c] /= float64(sizes[c])
			live = append(live, c)
		}
	}
	if len(live) < 2 {
		return math.Inf(1)
	}

	sum := 0.0
	for _, a := range live {
		worst := 0.0
		for _, b := range live {
			if a == b {
				continue
			}
			d := Distance(row(centroids, a, dim), row(centroids, b, dim))
			if d <= 0 {
				return math.Inf(1)
			}
			worst = math.Max(worst, (scatter[a]+scatter[b])/d)
		}
		sum += worst
	}
	return sum / float64(len(live))
}
