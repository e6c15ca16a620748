package scenario

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/signalsfoundry/hew-outdoor/internal/config"
	"github.com/signalsfoundry/hew-outdoor/internal/logging"
)

// SweepResult is the outcome of building and running one sweep point.
type SweepResult struct {
	Config   config.Scenario
	Scenario *Scenario
	Results  []FlowResult
	Err      error
}

// Sweep builds and plays back every point concurrently, one goroutine and
// one RecordingEngine per point. Each point owns its random source and
// allocator through Build, so results match sequential runs. Errors are
// reported per point; results keep the order of points. Every point gets
// its own run ID, even when ctx already carries one.
func (b *Builder) Sweep(ctx context.Context, points []config.Scenario, opts ...RecordingOption) []SweepResult {
	out := make([]SweepResult, len(points))
	var wg sync.WaitGroup
	for i, cfg := range points {
		wg.Add(1)
		go func(i int, cfg config.Scenario) {
			defer wg.Done()
			out[i] = b.runPoint(ctx, cfg, opts)
		}(i, cfg)
	}
	wg.Wait()
	return out
}

func (b *Builder) runPoint(ctx context.Context, cfg config.Scenario, opts []RecordingOption) SweepResult {
	res := SweepResult{Config: cfg}
	ctx = logging.ContextWithRunID(ctx, uuid.NewString())
	eng := NewRecordingEngine(append([]RecordingOption{WithBurstSeed(cfg.Seed)}, opts...)...)
	sc, err := b.Build(ctx, cfg, eng)
	if err != nil {
		res.Err = err
		return res
	}
	res.Scenario = sc
	res.Results, res.Err = eng.Run(ctx, cfg.SimulationTime)
	return res
}
