// Package progress carries fractional-completion events out of long-running
// training loops and gives those loops a single cancellation checkpoint.
//
// Loops call Checkpoint after every unit of work (one K, one batch, one
// epoch). The checkpoint reports progress, yields the processor and returns
// ctx.Err() so callers can stop a run between units.
package progress

import (
	"context"
	"math/rand/v2"
	"runtime"
	"time"
)

// Event is a single progress report
type Event struct {
	Stage    string  `json:"stage"`
	Fraction float64 `json:"fraction"` // in [0,1]
	Detail   string  `json:"detail,omitempty"`
}

// Sink receives progress events. A nil Sink discards everything.
type Sink struct {
	ch chan<- Event
}

// NewSink wraps ch. Sends never block: if the reader falls behind, events
// are dropped because only the most recent fraction matters.
func NewSink(ch chan<- Event) *Sink {
	return &Sink{ch: ch}
}

// Report publishes an event without blocking
func (s *Sink) Report(stage string, fraction float64, detail string) {
	if s == nil || s.ch == nil {
		return
	}
	if fraction < 0 {
		fraction = 0
	} else if fraction > 1 {
		fraction = 1
	}
	select {
	case s.ch <- Event{Stage: stage, Fraction: fraction, Detail: detail}:
	default:
	}
}

// Checkpoint is the suspension point of every long loop
func Checkpoint(ctx context.Context, s *Sink, stage string, fraction float64, detail string) error {
	s.Report(stage, fraction, detail)
	runtime.Gosched()
	if ctx == nil {
		return nil
	}
	return ctx.Err()
}

// NewRand returns a PCG source seeded by seed, or by the clock when seed is nil
func NewRand(seed *uint64) *rand.Rand {
	if seed != nil {
		return rand.New(rand.NewPCG(*seed, 0x9e3779b97f4a7c15))
	}
	now := uint64(time.Now().UnixNano())
	return rand.New(rand.NewPCG(now, now>>17))
}

// Seed is a helper for literal seeds in configs and tests
func Seed(v uint64) *uint64 {
	return &v
}
