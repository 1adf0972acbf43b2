// Package kmeans clusters the rows of a flat row-major matrix: k-means++
// seeding, Lloyd iterations, a multi-K evaluator reporting internal quality
// metrics per K, and an online estimator for matrices that are processed as
// a stream.
package kmeans

import (
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/floats"
)

// SquaredDistance is the squared Euclidean distance between a and b.
// Non-finite components are read as 0.
func SquaredDistance(a, b []float64) float64 {
	sum := 0.0
	for i := range a {
		d := finite(a[i]) - finite(b[i])
		sum += d * d
	}
	return sum
}

// Distance is the Euclidean distance between a and b
func Distance(a, b []float64) float64 {
	return math.Sqrt(SquaredDistance(a, b))
}

func finite(x float64) float64 {
	if math.IsNaN(x) || math.IsInf(x, 0) {
		return 0
	}
	return x
}

func row(data []float64, i, dim int) []float64 {
	return data[i*dim : (i+1)*dim]
}

// nearest returns the index of the closest centroid and its squared distance
func nearest(x, centroids []float64, k, dim int) (int, float64) {
	best, bestDist := 0, math.Inf(1)
	for c := range k {
		if d := SquaredDistance(x, row(centroids, c, dim)); d < bestDist {
			best, bestDist = c, d
		}
	}
	return best, bestDist
}

// SeedPlusPlus picks k initial centroids with k-means++: the first uniformly,
// each next one with probability proportional to its squared distance to the
// closest centroid chosen so far. The same row is never picked twice. It
// returns the k x dim centroids and the chosen row indices, or an
// InsufficientData error when there are fewer rows than k.
func SeedPlusPlus(data []float64, rows, dim, k int, rng *rand.Rand) ([]float64, []int, error) {
	if err := checkInput(data, rows, dim); err != nil {
		return nil, nil, err
	}
	if k <= 0 || rows < k {
		return nil, nil, insufficientData(rows, k)
	}

	centroids := make([]float64, 0, k*dim)
	chosen := make([]int, 0, k)
	picked := make([]bool, rows)
	minDist := make([]float64, rows)
	for i := range minDist {
		minDist[i] = math.Inf(1)
	}

	pick := func(i int) {
		chosen = append(chosen, i)
		picked[i] = true
		c := row(data, i, dim)
		centroids = append(centroids, c...)
		for j := range rows {
			if d := SquaredDistance(row(data, j, dim), c); d < minDist[j] {
				minDist[j] = d
			}
		}
	}

	pick(rng.IntN(rows))
	for len(chosen) < k {
		total := 0.0
		for j := range rows {
			if !picked[j] {
				total += minDist[j]
			}
		}
		if total <= 0 {
			// every remaining row coincides with a centroid
			pick(uniformUnpicked(picked, rng))
			continue
		}
		target := rng.Float64() * total
		next := -1
		for j := range rows {
			if picked[j] || minDist[j] <= 0 {
				continue
			}
			next = j
			target -= minDist[j]
			if target < 0 {
				break
			}
		}
		pick(next)
	}
	return centroids, chosen, nil
}

func uniformUnpicked(picked []bool, rng *rand.Rand) int {
	free := 0
	for _, p := range picked {
		if !p {
			free++
		}
	}
	n := rng.IntN(free)
	for i, p := range picked {
		if p {
			continue
		}
		if n == 0 {
			return i
		}
		n--
	}
	return -1
}

// LloydResult is the outcome of one Lloyd run
type LloydResult struct {
	Centroids  []float64
	Labels     []int
	Counts     []int
	Inertia    float64
	Iterations int
	Trace      []float64 // inertia after each assignment step
	Reseeded   int       // empty clusters moved to a random row
}

// Lloyd refines init (k x dim) until the total centroid shift drops below
// tol or maxIter iterations ran. Clusters that lose every point are moved to
// a random row.
func Lloyd(data []float64, rows, dim int, init []float64, k, maxIter int, tol float64, rng *rand.Rand) LloydResult {
	res := LloydResult{
		Centroids: append([]float64(nil), init...),
		Labels:    make([]int, rows),
		Counts:    make([]int, k),
	}
	sums := make([]float64, k*dim)

	for iter := 0; iter < maxIter; iter++ {
		res.Inertia = assign(data, rows, dim, res.Centroids, k, res.Labels, res.Counts)
		res.Trace = append(res.Trace, res.Inertia)
		res.Iterations = iter + 1

		clear(sums)
		for i := range rows {
			c := res.Labels[i]
			s := row(sums, c, dim)
			for j, v := range row(data, i, dim) {
				s[j] += finite(v)
			}
		}
		shift := 0.0
		for c := range k {
			centroid := row(res.Centroids, c, dim)
			var next []float64
			if res.Counts[c] == 0 {
				next = row(data, rng.IntN(rows), dim)
				res.Reseeded++
			} else {
				next = row(sums, c, dim)
				floats.Scale(1/float64(res.Counts[c]), next)
			}
			shift += Distance(centroid, next)
			for j := range centroid {
				centroid[j] = finite(next[j])
			}
		}
		if shift < tol {
			break
		}
	}

	res.Inertia = assign(data, rows, dim, res.Centroids, k, res.Labels, res.Counts)
	if n := len(res.Trace); n == 0 || res.Inertia != res.Trace[n-1] {
		res.Trace = append(res.Trace, res.Inertia)
	}
	return res
}

// assign labels every row with its nearest centroid and returns the inertia
func assign(data []float64, rows, dim int, centroids []float64, k int, labels, counts []int) float64 {
	clear(counts)
	inertia := 0.0
	for i := range rows {
		c, d := nearest(row(data, i, dim), centroids, k, dim)
		labels[i] = c
		counts[c]++
		inertia += d
	}
	return inertia
}
