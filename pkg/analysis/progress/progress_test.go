package progress

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSinkReportClampsAndDoesNotBlock(t *testing.T) {
	ch := make(chan Event, 1)
	s := NewSink(ch)

	s.Report("pca", 1.7, "")
	s.Report("pca", 0.2, "dropped") // buffer full

	require.Len(t, ch, 1)
	ev := <-ch
	assert.Equal(t, "pca", ev.Stage)
	assert.Equal(t, 1.0, ev.Fraction)
}

func TestNilSinkIsSafe(t *testing.T) {
	var s *Sink
	assert.NotPanics(t, func() { s.Report("x", 0.5, "") })
	assert.NoError(t, Checkpoint(context.Background(), s, "x", 0.5, ""))
}

func TestCheckpointReturnsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := Checkpoint(ctx, nil, "kmeans", 0.1, "")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewRandIsReproducible(t *testing.T) {
	a := NewRand(Seed(7))
	b := NewRand(Seed(7))
	for range 10 {
		assert.Equal(t, a.Uint64(), b.Uint64())
	}
}
