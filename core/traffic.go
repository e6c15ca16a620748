package core

import (
	"fmt"
	"math"
	"math/rand/v2"
	"net/netip"
	"time"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/signalsfoundry/hew-outdoor/model"
)

// MaxStartFuzz bounds the start jitter of constant-rate sources. When the
// active window (Duration - Warmup) is shorter, the jitter is drawn from
// [0, Duration - Warmup) instead so every source starts before it stops.
const MaxStartFuzz = time.Second

// BulkConfig parameterises on/off bulk sources.
type BulkConfig struct {
	OnTime          time.Duration
	OffMean         time.Duration
	OffBound        time.Duration
	PacketSizeBytes int
	DataRateMbps    float64
}

// DefaultBulkConfig mirrors the FTP-like sessions of the outdoor scenario.
func DefaultBulkConfig() BulkConfig {
	return BulkConfig{
		OnTime:          time.Second,
		OffMean:         time.Second,
		OffBound:        10 * time.Second,
		PacketSizeBytes: 500,
		DataRateMbps:    1,
	}
}

// TrafficConfig holds the run-wide traffic parameters.
type TrafficConfig struct {
	Warmup          time.Duration
	Duration        time.Duration
	OfferedLoadMbps float64
	PacketSizeBytes int
	Bulk            BulkConfig
}

// Validate checks that every flow would get a non-empty window and that the
// traffic models are well formed.
func (c TrafficConfig) Validate() error {
	if c.Warmup < 0 {
		return fmt.Errorf("%w: warm-up must be >= 0, got %s", ErrInvalidArgument, c.Warmup)
	}
	if c.Warmup >= c.Duration {
		return fmt.Errorf("%w: warm-up %s must be shorter than duration %s", ErrInvalidArgument, c.Warmup, c.Duration)
	}
	if !(c.OfferedLoadMbps > 0) {
		return fmt.Errorf("%w: offered load must be positive, got %v Mbps", ErrInvalidArgument, c.OfferedLoadMbps)
	}
	if c.PacketSizeBytes <= 0 {
		return fmt.Errorf("%w: packet size must be positive, got %d", ErrInvalidArgument, c.PacketSizeBytes)
	}
	b := c.Bulk
	if b.OnTime <= 0 || b.OffMean <= 0 || b.OffBound <= 0 {
		return fmt.Errorf("%w: bulk on/off times must be positive", ErrInvalidArgument)
	}
	if b.PacketSizeBytes <= 0 || !(b.DataRateMbps > 0) {
		return fmt.Errorf("%w: bulk packet size and data rate must be positive", ErrInvalidArgument)
	}
	return nil
}

// PacketInterval returns the send interval that carries load Mbps in packets
// of size bytes.
func PacketInterval(size int, loadMbps float64) time.Duration {
	seconds := float64(size*8) / (loadMbps * 1e6)
	return time.Duration(math.Round(seconds * float64(time.Second)))
}

// TrafficScheduler assigns traffic classes and activity windows to the
// stations of each cell.
type TrafficScheduler struct {
	cfg   TrafficConfig
	alloc *AddressAllocator
	rng   *rand.Rand

	nextID int
}

// NewTrafficScheduler validates cfg. alloc and rng must belong to the same
// scenario build as the scheduler.
func NewTrafficScheduler(cfg TrafficConfig, alloc *AddressAllocator, rng *rand.Rand) (*TrafficScheduler, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if alloc == nil || rng == nil {
		return nil, fmt.Errorf("%w: scheduler needs an address allocator and a random source", ErrInvalidArgument)
	}
	return &TrafficScheduler{cfg: cfg, alloc: alloc, rng: rng}, nil
}

// ScheduleCell creates one upstream flow per station of cell. The first
// bulkCount stations run bulk traffic, the rest constant-rate traffic.
// Every station must belong to cell and have an address in its block;
// otherwise nothing is allocated or drawn.
func (s *TrafficScheduler) ScheduleCell(cell model.Cell, stations []model.Station, bulkCount int) ([]model.Flow, error) {
	if bulkCount < 0 || bulkCount > len(stations) {
		return nil, fmt.Errorf("%w: bulk count %d outside [0, %d] for cell %d", ErrInvalidArgument, bulkCount, len(stations), cell.Index)
	}
	block, err := s.alloc.Allocate(cell.Index)
	if err != nil {
		return nil, err
	}

	// Resolve every source first so a rejected station leaves the port
	// counters and the random stream untouched.
	sources := make([]netip.Addr, len(stations))
	for i, sta := range stations {
		if sta.Cell != cell.Index {
			return nil, fmt.Errorf("%w: station %d belongs to cell %d, not cell %d", ErrInvalidArgument, sta.Index, sta.Cell, cell.Index)
		}
		if sources[i], err = s.alloc.StationAddr(cell.Index, sta.Index); err != nil {
			return nil, err
		}
	}

	flows := make([]model.Flow, 0, len(stations))
	for i, sta := range stations {
		port, err := s.alloc.NextPort(cell.Index)
		if err != nil {
			return nil, err
		}

		f := model.Flow{
			ID:          s.nextID,
			Cell:        cell.Index,
			Station:     sta.Index,
			Source:      sources[i],
			Destination: block.Gateway,
			Port:        port,
		}
		if i < bulkCount {
			s.bulk(&f)
		} else {
			s.constantRate(&f)
		}
		s.nextID++
		flows = append(flows, f)
	}
	return flows, nil
}

func (s *TrafficScheduler) bulk(f *model.Flow) {
	b := s.cfg.Bulk
	window := model.Window{Start: s.cfg.Warmup, Stop: s.cfg.Duration}
	f.Class = model.TrafficBulk
	f.Priority = model.AccessCategoryBackground
	f.SourceWindow = window
	f.SinkWindow = window
	f.Bulk = &model.BulkParams{
		OnTime:          b.OnTime,
		OffMean:         b.OffMean,
		OffBound:        b.OffBound,
		PacketSizeBytes: b.PacketSizeBytes,
		DataRateMbps:    b.DataRateMbps,
	}
}

func (s *TrafficScheduler) constantRate(f *model.Flow) {
	// The fuzz range shrinks to the active window on runs shorter than
	// MaxStartFuzz so the source still starts before it stops.
	span := min(MaxStartFuzz, s.cfg.Duration-s.cfg.Warmup)
	fuzz := time.Duration(s.rng.Float64() * float64(span))
	f.Class = model.TrafficConstantRate
	f.Priority = model.AccessCategoryBestEffort
	f.SinkWindow = model.Window{Start: s.cfg.Warmup, Stop: s.cfg.Duration}
	f.SourceWindow = model.Window{Start: s.cfg.Warmup + fuzz, Stop: s.cfg.Duration}
	f.ConstantRate = &model.ConstantRateParams{
		PacketSizeBytes: s.cfg.PacketSizeBytes,
		Interval:        PacketInterval(s.cfg.PacketSizeBytes, s.cfg.OfferedLoadMbps),
		OfferedLoadMbps: s.cfg.OfferedLoadMbps,
	}
}

// OffTime draws one bounded exponential off period for p.
func OffTime(rng *rand.Rand, p model.BulkParams) time.Duration {
	exp := distuv.Exponential{Rate: 1 / p.OffMean.Seconds(), Src: rng}
	off := time.Duration(exp.Rand() * float64(time.Second))
	if off > p.OffBound {
		off = p.OffBound
	}
	return off
}

// Bursts expands a bulk on/off plan over window into concrete on-periods,
// for engines that cannot sample the off distribution themselves. The
// source starts in the on state.
func Bursts(rng *rand.Rand, p model.BulkParams, window model.Window) []model.Window {
	var bursts []model.Window
	if p.OnTime <= 0 || window.Len() <= 0 {
		return bursts
	}
	t := window.Start
	for t < window.Stop {
		on := model.Window{Start: t, Stop: min(t+p.OnTime, window.Stop)}
		bursts = append(bursts, on)
		t = on.Stop + OffTime(rng, p)
	}
	return bursts
}
