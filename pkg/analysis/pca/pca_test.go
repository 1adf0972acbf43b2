package pca

import (
	"context"
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/RyanBlaney/spectral-cluster/pkg/analysis/progress"
	"github.com/RyanBlaney/spectral-cluster/pkg/common"
)

// correlatedData draws rows from a fixed linear mix of independent normals
// with decreasing scales, so the spectrum is well separated
func correlatedData(rows, dim int, seed uint64) []float64 {
	rng := progress.NewRand(progress.Seed(seed))
	mix := make([]float64, dim*dim)
	for i := range mix {
		mix[i] = rng.NormFloat64()
	}
	data := make([]float64, rows*dim)
	z := make([]float64, dim)
	for i := range rows {
		for j := range z {
			z[j] = rng.NormFloat64() * float64(dim-j)
		}
		row := data[i*dim : (i+1)*dim]
		for a := range dim {
			row[a] = 5 + floats.Dot(mix[a*dim:(a+1)*dim], z)
		}
	}
	return data
}

// dominantAxis2D is a 2D cloud stretched along (cos30°, sin30°)
func dominantAxis2D(rows int, seed uint64) ([]float64, []float64) {
	rng := progress.NewRand(progress.Seed(seed))
	axis := []float64{math.Cos(math.Pi / 6), math.Sin(math.Pi / 6)}
	data := make([]float64, rows*2)
	for i := range rows {
		t := rng.NormFloat64() * 3
		e := rng.NormFloat64() * 0.3
		data[2*i] = t*axis[0] - e*axis[1]
		data[2*i+1] = t*axis[1] + e*axis[0]
	}
	return data, axis
}

func assertOrthonormal(t *testing.T, m *Model, tol float64) {
	t.Helper()
	for a := range m.K {
		assert.InDelta(t, 1.0, floats.Norm(m.Component(a), 2), tol, "component %d norm", a)
		for b := a + 1; b < m.K; b++ {
			assert.InDelta(t, 0.0, floats.Dot(m.Component(a), m.Component(b)), tol, "components %d,%d", a, b)
		}
	}
}

func TestFitBatchOrthonormal(t *testing.T) {
	const rows, dim = 400, 6
	m, err := FitBatch(correlatedData(rows, dim, 7), rows, dim, BatchConfig{Components: 4, MaxIter: 500, Tol: 1e-10})
	require.NoError(t, err)

	assert.Equal(t, 4, m.K)
	assert.Equal(t, dim, m.D)
	assert.Equal(t, MethodBatch, m.Method)
	assert.Equal(t, rows, m.NObs)
	assertOrthonormal(t, m, 1e-4)

	for i := 1; i < m.K; i++ {
		assert.GreaterOrEqual(t, m.ExplainedVariance[i-1], m.ExplainedVariance[i])
		assert.InDelta(t, m.CumulativeVariance[i-1]+m.ExplainedVariance[i], m.CumulativeVariance[i], 1e-12)
	}
	assert.LessOrEqual(t, m.TotalExplained(), 1.0+1e-9)
}

func TestFitBatchMatchesEigenDecomposition(t *testing.T) {
	const rows, dim = 300, 5
	data := correlatedData(rows, dim, 11)
	m, err := FitBatch(data, rows, dim, BatchConfig{Components: dim, MaxIter: 2000, Tol: 1e-12})
	require.NoError(t, err)

	mean := columnMean(data, rows, dim)
	sym := mat.NewSymDense(dim, covariance(data, mean, rows, dim))
	var eig mat.EigenSym
	require.True(t, eig.Factorize(sym, true))
	values := eig.Values(nil)
	var vecs mat.Dense
	eig.VectorsTo(&vecs)

	trace := floats.Sum(values)
	for c := 0; c < 3; c++ {
		// gonum orders eigenvalues ascending
		idx := dim - 1 - c
		assert.InEpsilon(t, values[idx], m.Eigenvalues[c], 1e-4, "eigenvalue %d", c)
		assert.InDelta(t, values[idx]/trace, m.ExplainedVariance[c], 1e-4)

		want := mat.Col(nil, idx, &vecs)
		cos := math.Abs(floats.Dot(want, m.Component(c)))
		assert.InDelta(t, 1.0, cos, 1e-4, "component %d direction", c)
	}
	assert.InDelta(t, 1.0, m.TotalExplained(), 1e-6)
}

func TestFitBatchClampsComponentsAndHandlesConstantData(t *testing.T) {
	data := []float64{1, 2, 1, 2, 1, 2}
	m, err := FitBatch(data, 3, 2, BatchConfig{Components: 10})
	require.NoError(t, err)
	assert.Equal(t, 2, m.K)
	assert.InDeltaSlice(t, []float64{1, 2}, m.Mean, 1e-12)
	assert.Equal(t, []float64{0, 0}, m.ExplainedVariance)
	assertOrthonormal(t, m, 1e-9)
}

func TestFitBatchSingleRowAndNonFinite(t *testing.T) {
	m, err := FitBatch([]float64{math.NaN(), 3, math.Inf(1)}, 1, 3, BatchConfig{Components: 1})
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 3, 0}, m.Mean)
	assert.True(t, m.finite())
}

func TestInvalidInput(t *testing.T) {
	_, err := FitBatch(nil, 0, 3, DefaultBatchConfig())
	assert.ErrorIs(t, err, common.ErrInvalidInput)

	_, err = FitBatch([]float64{1, 2, 3}, 2, 2, DefaultBatchConfig())
	assert.ErrorIs(t, err, common.ErrInvalidInput)

	_, err = FitIncremental(context.Background(), []float64{1}, 1, 0, DefaultIncrementalConfig(), nil)
	assert.ErrorIs(t, err, common.ErrInvalidInput)
}

func TestFitIncrementalConvergesToBatch(t *testing.T) {
	const rows = 2000
	data, axis := dominantAxis2D(rows, 3)

	batch, err := FitBatch(data, rows, 2, BatchConfig{Components: 1, MaxIter: 500, Tol: 1e-12})
	require.NoError(t, err)
	assert.Greater(t, math.Abs(floats.Dot(batch.Component(0), axis)), 0.99)

	cfg := DefaultIncrementalConfig()
	cfg.Components = 1
	cfg.Epochs = 10
	cfg.Seed = progress.Seed(42)
	inc, err := FitIncremental(context.Background(), data, rows, 2, cfg, nil)
	require.NoError(t, err)

	assert.Equal(t, MethodIncremental, inc.Method)
	assert.Empty(t, inc.Warnings)
	cos := math.Abs(floats.Dot(inc.Component(0), batch.Component(0)))
	assert.Greater(t, cos, 0.95)
	assert.InDelta(t, batch.ExplainedVariance[0], inc.ExplainedVariance[0], 0.02)
}

func TestFitIncrementalOrdersComponents(t *testing.T) {
	const rows, dim = 1000, 4
	cfg := DefaultIncrementalConfig()
	cfg.Components = 3
	cfg.Epochs = 3
	cfg.Seed = progress.Seed(1)
	m, err := FitIncremental(context.Background(), correlatedData(rows, dim, 5), rows, dim, cfg, nil)
	require.NoError(t, err)

	assertOrthonormal(t, m, 1e-6)
	for i := 1; i < m.K; i++ {
		assert.GreaterOrEqual(t, m.ExplainedVariance[i-1], m.ExplainedVariance[i])
	}
}

func TestFitIncrementalBatchFallback(t *testing.T) {
	data, _ := dominantAxis2D(50, 9)
	cfg := DefaultIncrementalConfig()
	cfg.MinRowsForIncremental = 100
	m, err := FitIncremental(context.Background(), data, 50, 2, cfg, nil)
	require.NoError(t, err)
	assert.Equal(t, MethodBatch, m.Method)
	assert.True(t, common.HasWarning(m.Warnings, common.WarnCodeBatchFallback))
}

func TestFitIncrementalRepairsDivergence(t *testing.T) {
	data, _ := dominantAxis2D(500, 4)
	cfg := DefaultIncrementalConfig()
	cfg.Components = 2
	cfg.BaseLR = 1e6
	cfg.Seed = progress.Seed(8)

	m, err := FitIncremental(context.Background(), data, 500, 2, cfg, nil)
	require.NoError(t, err)
	assert.Equal(t, MethodBatch, m.Method)
	require.True(t, common.HasWarning(m.Warnings, common.WarnCodeDegenerateModel))
	assert.Equal(t, true, m.Warnings[0].Fields["repaired"])
	assert.True(t, m.finite())

	cfg.RepairDegenerate = false
	_, err = FitIncremental(context.Background(), data, 500, 2, cfg, nil)
	assert.ErrorIs(t, err, common.ErrNumerical)
}

func TestFitIncrementalFlagsShortComponents(t *testing.T) {
	data, _ := dominantAxis2D(200, 6)
	cfg := DefaultIncrementalConfig()
	cfg.Components = 1
	cfg.DegenerateNorm = 10 // every unit-length component is "short"
	cfg.Seed = progress.Seed(2)

	m, err := FitIncremental(context.Background(), data, 200, 2, cfg, nil)
	require.NoError(t, err)
	assert.Equal(t, MethodBatch, m.Method)
	assert.True(t, common.HasWarning(m.Warnings, common.WarnCodeDegenerateModel))
}

func TestFitIncrementalCancellation(t *testing.T) {
	data, _ := dominantAxis2D(2000, 1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	events := make(chan progress.Event, 16)
	_, err := FitIncremental(ctx, data, 2000, 2, DefaultIncrementalConfig(), progress.NewSink(events))
	assert.ErrorIs(t, err, context.Canceled)
	require.NotEmpty(t, events)
	assert.Equal(t, "pca", (<-events).Stage)
}

func TestProjectAndTransform(t *testing.T) {
	m := &Model{
		K:          2,
		D:          3,
		Mean:       []float64{1, 1, 1},
		Components: []float64{1, 0, 0, 0, 0, 1},
	}
	p, err := m.Project([]float64{3, 5, math.NaN()})
	require.NoError(t, err)
	assert.Equal(t, []float64{2, -1}, p)

	out, err := m.Transform([]float64{1, 1, 1, 2, 0, 4}, 2)
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 0, 1, 3}, out)

	_, err = m.Project([]float64{1})
	assert.ErrorIs(t, err, common.ErrInvalidInput)
	_, err = m.Transform([]float64{1, 2}, 1)
	assert.ErrorIs(t, err, common.ErrInvalidInput)
}

func TestSnapshotRoundTrip(t *testing.T) {
	const rows, dim = 100, 4
	m, err := FitBatch(correlatedData(rows, dim, 2), rows, dim, BatchConfig{Components: 2})
	require.NoError(t, err)

	raw, err := json.Marshal(m.Snapshot())
	require.NoError(t, err)
	var snap Snapshot
	require.NoError(t, json.Unmarshal(raw, &snap))
	require.Len(t, snap.Components, 2)

	back, err := FromSnapshot(snap)
	require.NoError(t, err)
	assert.Equal(t, m.Components, back.Components)
	assert.Equal(t, m.Mean, back.Mean)
	assert.Equal(t, m.Method, back.Method)

	snap.Components[1] = snap.Components[1][:2]
	_, err = FromSnapshot(snap)
	assert.ErrorIs(t, err, common.ErrInvalidInput)
}
