package scenario

import (
	"context"
	"fmt"
	"time"

	"github.com/signalsfoundry/hew-outdoor/internal/flowstats"
)

// Report hands one flow-stat record per result to eng. Records are stamped
// with at, the scenario's run ID and the offered load of the run.
func Report(ctx context.Context, eng Engine, sc *Scenario, at time.Time, results []FlowResult) ([]flowstats.Record, error) {
	recs := make([]flowstats.Record, 0, len(results))
	for _, r := range results {
		rec := flowstats.Record{
			Timestamp:       at,
			OfferedLoadMbps: sc.Config.OfferedLoadMbps,
			RunID:           sc.RunID,
			Source:          r.Flow.Source,
			Destination:     r.Flow.Destination,
			ThroughputMbps:  r.ThroughputMbps,
			DelaySeconds:    r.DelaySeconds,
		}
		if err := eng.RecordFlowStat(ctx, rec); err != nil {
			return recs, fmt.Errorf("record flow %s: %w", r.Flow.Key(), err)
		}
		recs = append(recs, rec)
	}
	return recs, nil
}
