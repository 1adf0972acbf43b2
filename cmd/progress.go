package cmd

import (
	"os"

	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"

	"github.com/RyanBlaney/spectral-cluster/pkg/analysis/progress"
)

// barScale maps a [0,1] fraction onto bar units
const barScale = 1000

// progressBars draws one bar per pipeline stage from a progress.Event stream
type progressBars struct {
	p      *mpb.Progress
	events chan progress.Event
	bars   map[string]*mpb.Bar
	order  []string
	done   chan struct{}
}

// startProgress returns the sink to hand to the pipeline and a stop function
// that must be called once the pipeline has returned. With enabled false the
// sink is nil and stop does nothing.
func startProgress(enabled bool) (*progress.Sink, func()) {
	if !enabled {
		return nil, func() {}
	}

	pb := &progressBars{
		p:      mpb.New(mpb.WithWidth(64), mpb.WithOutput(os.Stderr)),
		events: make(chan progress.Event, 64),
		bars:   make(map[string]*mpb.Bar),
		done:   make(chan struct{}),
	}
	go pb.run()

	return progress.NewSink(pb.events), pb.stop
}

func (pb *progressBars) run() {
	defer close(pb.done)
	for ev := range pb.events {
		bar, ok := pb.bars[ev.Stage]
		if !ok {
			bar = pb.p.AddBar(barScale,
				mpb.PrependDecorators(
					decor.Name(ev.Stage+": ", decor.WC{W: 10}),
					decor.Percentage(decor.WC{W: 5}),
				),
				mpb.AppendDecorators(
					decor.Elapsed(decor.ET_STYLE_GO),
				),
			)
			pb.bars[ev.Stage] = bar
			pb.order = append(pb.order, ev.Stage)
		}
		bar.SetCurrent(int64(ev.Fraction * barScale))
	}
}

// stop completes every bar at its current position and waits for rendering
func (pb *progressBars) stop() {
	close(pb.events)
	<-pb.done
	for _, stage := range pb.order {
		pb.bars[stage].SetTotal(-1, true)
	}
	pb.p.Wait()
}
