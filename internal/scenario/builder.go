package scenario

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/signalsfoundry/hew-outdoor/core"
	"github.com/signalsfoundry/hew-outdoor/internal/config"
	"github.com/signalsfoundry/hew-outdoor/internal/logging"
	"github.com/signalsfoundry/hew-outdoor/internal/observability"
	"github.com/signalsfoundry/hew-outdoor/model"
)

// MetricsRecorder receives build outcomes and the size of the built scenario.
type MetricsRecorder interface {
	ObserveBuild(d time.Duration, err error)
	SetScenarioCounts(cells, stations int, flows map[model.TrafficClass]int)
}

// Option customises Builder construction.
type Option func(*Builder)

// WithLogger sets the base logger. Each build derives a child carrying its
// run ID.
func WithLogger(log logging.Logger) Option {
	return func(b *Builder) {
		if log != nil {
			b.log = log
		}
	}
}

// WithMetricsRecorder attaches an optional metrics recorder.
func WithMetricsRecorder(m MetricsRecorder) Option {
	return func(b *Builder) {
		b.metrics = m
	}
}

// Builder generates scenarios. It holds no per-build state and may be shared
// by concurrent builds.
type Builder struct {
	log     logging.Logger
	metrics MetricsRecorder
}

// NewBuilder constructs a Builder.
func NewBuilder(opts ...Option) *Builder {
	b := &Builder{log: logging.Noop()}
	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}
	return b
}

// Scenario is one generated deployment. Stations[i] and the flows with
// Cell == i belong to Cells[i].
type Scenario struct {
	RunID  string
	Config config.Scenario
	Radio  core.RadioProfile

	Cells    []model.Cell
	Stations [][]model.Station
	Blocks   []model.AddressBlock
	Flows    []model.Flow

	// Engine handles, filled by Build.
	AccessPoints []NodeHandle
	StationNodes [][]NodeHandle
}

// StationCount returns the number of stations over all cells.
func (s *Scenario) StationCount() int {
	n := 0
	for _, st := range s.Stations {
		n += len(st)
	}
	return n
}

// FlowCounts tallies flows by traffic class.
func (s *Scenario) FlowCounts() map[model.TrafficClass]int {
	counts := make(map[model.TrafficClass]int, 2)
	for _, f := range s.Flows {
		counts[f.Class]++
	}
	return counts
}

// Nodes lists every device of the scenario, access points first, in cell
// order.
func (s *Scenario) Nodes() []model.Node {
	nodes := make([]model.Node, 0, len(s.Cells)+s.StationCount())
	for i, c := range s.Cells {
		nodes = append(nodes, model.Node{
			ID:       fmt.Sprintf("ap-%d", c.Index),
			Role:     model.RoleAccessPoint,
			Cell:     c.Index,
			Position: c.APPosition(),
			Address:  s.Blocks[i].Gateway,
		})
	}
	for i, stations := range s.Stations {
		for _, st := range stations {
			nodes = append(nodes, model.Node{
				ID:       fmt.Sprintf("sta-%d-%d", st.Cell, st.Index),
				Role:     model.RoleStation,
				Cell:     st.Cell,
				Station:  st.Index,
				Position: st.Position.At(model.StationHeight),
				Address:  s.Blocks[i].StationAddr(st.Index),
			})
		}
	}
	return nodes
}

// Plan generates the scenario described by cfg without touching an engine.
// Each call owns a fresh random source seeded from cfg.Seed and a fresh
// address allocator, so equal configs yield equal scenarios.
func (b *Builder) Plan(ctx context.Context, cfg config.Scenario) (*Scenario, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	radio, err := cfg.Radio()
	if err != nil {
		return nil, err
	}
	base, err := cfg.Prefix()
	if err != nil {
		return nil, err
	}
	strategy, err := cfg.ScatterStrategy()
	if err != nil {
		return nil, err
	}

	cells, err := core.Cells(cfg.Radius, cfg.Layers)
	if err != nil {
		return nil, err
	}
	if len(cells) > core.MaxCells {
		return nil, fmt.Errorf("%w: %d layers need %d cells, at most %d are addressable",
			core.ErrCapacityExceeded, cfg.Layers, len(cells), core.MaxCells)
	}

	rng := core.NewRand(cfg.Seed)
	alloc, err := core.NewAddressAllocator(base)
	if err != nil {
		return nil, err
	}
	sched, err := core.NewTrafficScheduler(cfg.Traffic(), alloc, rng)
	if err != nil {
		return nil, err
	}
	scatter := core.Scatterer{Strategy: strategy}

	log := b.log
	if id := logging.RunIDFromContext(ctx); id != "" {
		log = log.With(logging.String("run_id", id))
	}

	sc := &Scenario{
		RunID:    logging.RunIDFromContext(ctx),
		Config:   cfg,
		Radio:    radio,
		Cells:    cells,
		Stations: make([][]model.Station, len(cells)),
		Blocks:   make([]model.AddressBlock, len(cells)),
	}
	for i, cell := range cells {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := b.planCell(ctx, log, sc, i, cell, rng, scatter, sched, alloc); err != nil {
			return nil, err
		}
	}
	return sc, nil
}

func (b *Builder) planCell(
	ctx context.Context,
	log logging.Logger,
	sc *Scenario,
	i int,
	cell model.Cell,
	rng *rand.Rand,
	scatter core.Scatterer,
	sched *core.TrafficScheduler,
	alloc *core.AddressAllocator,
) error {
	_, span := observability.StartSpan(ctx, "scenario.PlanCell",
		attribute.Int("cell.index", cell.Index),
		attribute.Int("cell.ring", cell.Ring),
	)
	defer span.End()

	stations, err := scatter.Stations(rng, cell, sc.Config.Radius, sc.Config.Stations)
	if err != nil {
		span.RecordError(err)
		return err
	}
	flows, err := sched.ScheduleCell(cell, stations, sc.Config.Bulk)
	if err != nil {
		span.RecordError(err)
		return err
	}
	block, err := alloc.Allocate(cell.Index)
	if err != nil {
		span.RecordError(err)
		return err
	}

	sc.Stations[i] = stations
	sc.Blocks[i] = block
	sc.Flows = append(sc.Flows, flows...)
	span.SetAttributes(attribute.Int("cell.stations", len(stations)), attribute.Int("cell.flows", len(flows)))

	if sc.Config.Debug {
		ap := cell.APPosition()
		log.Debug(ctx, "placed access point",
			logging.Int("cell", cell.Index),
			logging.Float("x", ap.X),
			logging.Float("y", ap.Y),
			logging.Float("z", ap.Z),
			logging.String("addr", block.Gateway.String()),
		)
		for _, st := range stations {
			log.Debug(ctx, "placed station",
				logging.Int("cell", st.Cell),
				logging.Int("station", st.Index),
				logging.Float("x", st.Position.X),
				logging.Float("y", st.Position.Y),
				logging.Float("r", st.Offset.Radius),
				logging.String("addr", block.StationAddr(st.Index).String()),
			)
		}
	}
	return nil
}

// Build plans the scenario for cfg and installs it on eng. Configuration
// errors surface before eng is called, so a failed build leaves eng
// untouched.
func (b *Builder) Build(ctx context.Context, cfg config.Scenario, eng Engine) (sc *Scenario, err error) {
	ctx, log := logging.WithRunLogger(ctx, b.log)
	ctx, span := observability.StartSpan(ctx, "scenario.Build",
		attribute.Int("scenario.layers", cfg.Layers),
		attribute.Int("scenario.stations_per_cell", cfg.Stations),
		attribute.Int("scenario.bulk_per_cell", cfg.Bulk),
		attribute.String("scenario.phy", cfg.PHY),
	)
	start := time.Now()
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			log.Warn(ctx, "scenario build failed", logging.Err(err))
		}
		span.End()
		if b.metrics != nil {
			b.metrics.ObserveBuild(time.Since(start), err)
		}
	}()

	log.Info(ctx, "building scenario",
		logging.Int("layers", cfg.Layers),
		logging.Int("stations", cfg.Stations),
		logging.Int("bulk", cfg.Bulk),
		logging.String("phy", cfg.PHY),
		logging.Any("seed", cfg.Seed),
	)

	sc, err = b.Plan(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if eng == nil {
		return nil, fmt.Errorf("%w: no engine to install the scenario on", core.ErrInvalidArgument)
	}
	if err := install(ctx, sc, eng); err != nil {
		return nil, err
	}

	counts := sc.FlowCounts()
	if b.metrics != nil {
		b.metrics.SetScenarioCounts(len(sc.Cells), sc.StationCount(), counts)
	}
	span.SetAttributes(
		attribute.Int("scenario.cells", len(sc.Cells)),
		attribute.Int("scenario.flows", len(sc.Flows)),
	)
	log.Info(ctx, "scenario built",
		logging.Int("cells", len(sc.Cells)),
		logging.Int("stations", sc.StationCount()),
		logging.Int("bulk_flows", counts[model.TrafficBulk]),
		logging.Int("constant_rate_flows", counts[model.TrafficConstantRate]),
		logging.Duration("elapsed", time.Since(start)),
	)
	return sc, nil
}

func install(ctx context.Context, sc *Scenario, eng Engine) error {
	if err := eng.ConfigureRadio(ctx, sc.Radio); err != nil {
		return fmt.Errorf("configure radio: %w", err)
	}

	aps, err := eng.CreateNodes(ctx, len(sc.Cells))
	if err != nil {
		return fmt.Errorf("create access points: %w", err)
	}
	if len(aps) != len(sc.Cells) {
		return fmt.Errorf("engine created %d access points, want %d", len(aps), len(sc.Cells))
	}
	stas, err := eng.CreateNodes(ctx, sc.StationCount())
	if err != nil {
		return fmt.Errorf("create stations: %w", err)
	}
	if len(stas) != sc.StationCount() {
		return fmt.Errorf("engine created %d stations, want %d", len(stas), sc.StationCount())
	}

	sc.AccessPoints = aps
	sc.StationNodes = make([][]NodeHandle, len(sc.Cells))
	next := 0
	for i, cell := range sc.Cells {
		if err := eng.PlaceNode(ctx, aps[i], cell.APPosition()); err != nil {
			return fmt.Errorf("place access point %d: %w", cell.Index, err)
		}
		if _, err := eng.InstallInterface(ctx, aps[i], sc.Blocks[i].Gateway); err != nil {
			return fmt.Errorf("install access point %d interface: %w", cell.Index, err)
		}

		handles := stas[next : next+len(sc.Stations[i])]
		next += len(sc.Stations[i])
		sc.StationNodes[i] = handles
		for j, st := range sc.Stations[i] {
			if err := eng.PlaceNode(ctx, handles[j], st.Position.At(model.StationHeight)); err != nil {
				return fmt.Errorf("place station %d/%d: %w", st.Cell, st.Index, err)
			}
			if _, err := eng.InstallInterface(ctx, handles[j], sc.Blocks[i].StationAddr(st.Index)); err != nil {
				return fmt.Errorf("install station %d/%d interface: %w", st.Cell, st.Index, err)
			}
		}
	}

	if sc.Radio.CaptureEnabled {
		captured := append([]NodeHandle{}, aps...)
		if len(sc.StationNodes) > 0 {
			captured = append(captured, sc.StationNodes[0]...)
		}
		if err := eng.EnableCapture(ctx, captured); err != nil {
			return fmt.Errorf("enable capture: %w", err)
		}
	}

	for _, f := range sc.Flows {
		if err := eng.StartSink(ctx, aps[f.Cell], f.Port, f.SinkWindow); err != nil {
			return fmt.Errorf("start sink for flow %s: %w", f.Key(), err)
		}
		if err := eng.StartSource(ctx, sc.StationNodes[f.Cell][f.Station], f); err != nil {
			return fmt.Errorf("start source for flow %s: %w", f.Key(), err)
		}
	}
	return nil
}
