package core

import (
	"fmt"
	"math"
	"math/rand/v2"
	"strings"

	"github.com/signalsfoundry/hew-outdoor/model"
)

// NewRand returns the random source for one scenario build. Every build owns
// exactly one source; it is threaded through scattering and scheduling and
// never re-seeded behind the caller's back.
func NewRand(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

// ScatterStrategy selects how station radii are sampled.
type ScatterStrategy int

const (
	// ScatterPolar draws radius and angle independently and uniformly, which
	// concentrates stations towards the access point. This is the placement
	// used by the outdoor reference scenario.
	ScatterPolar ScatterStrategy = iota
	// ScatterUniformArea draws r = h*sqrt(U) so stations are uniform over the
	// disk's area.
	ScatterUniformArea
)

func (s ScatterStrategy) String() string {
	switch s {
	case ScatterPolar:
		return "polar"
	case ScatterUniformArea:
		return "uniform-area"
	default:
		return fmt.Sprintf("ScatterStrategy(%d)", int(s))
	}
}

// ParseScatterStrategy maps a config string onto a strategy. The empty
// string selects ScatterPolar.
func ParseScatterStrategy(s string) (ScatterStrategy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "polar":
		return ScatterPolar, nil
	case "uniform-area", "uniform_area", "area":
		return ScatterUniformArea, nil
	default:
		return 0, fmt.Errorf("%w: unknown scatter strategy %q", ErrInvalidArgument, s)
	}
}

// Scatterer samples station positions around access points.
type Scatterer struct {
	Strategy ScatterStrategy
}

// Offsets draws n polar offsets with radius in [0, h) and angle in [0, 2π).
func (s Scatterer) Offsets(rng *rand.Rand, h float64, n int) ([]model.Offset, error) {
	if rng == nil {
		return nil, fmt.Errorf("%w: nil random source", ErrInvalidArgument)
	}
	if !(h > 0) || math.IsInf(h, 0) {
		return nil, fmt.Errorf("%w: cell radius must be positive and finite, got %v", ErrInvalidArgument, h)
	}
	if n < 0 {
		return nil, fmt.Errorf("%w: station count must be >= 0, got %d", ErrInvalidArgument, n)
	}

	offsets := make([]model.Offset, n)
	for i := range offsets {
		u := rng.Float64()
		var r float64
		switch s.Strategy {
		case ScatterUniformArea:
			r = h * math.Sqrt(u)
		default:
			r = h * u
		}
		offsets[i] = model.Offset{
			Radius: r,
			Angle:  2 * math.Pi * rng.Float64(),
		}
	}
	return offsets, nil
}

// Scatter returns n station coordinates around center.
func (s Scatterer) Scatter(rng *rand.Rand, center model.Coordinate, h float64, n int) ([]model.Coordinate, error) {
	offsets, err := s.Offsets(rng, h, n)
	if err != nil {
		return nil, err
	}
	points := make([]model.Coordinate, len(offsets))
	for i, o := range offsets {
		points[i] = center.Add(polar(o))
	}
	return points, nil
}

// Stations scatters n stations around cell and returns them with their
// offsets and absolute positions.
func (s Scatterer) Stations(rng *rand.Rand, cell model.Cell, h float64, n int) ([]model.Station, error) {
	offsets, err := s.Offsets(rng, h, n)
	if err != nil {
		return nil, err
	}
	stations := make([]model.Station, len(offsets))
	for i, o := range offsets {
		stations[i] = model.Station{
			Cell:     cell.Index,
			Index:    i,
			Offset:   o,
			Position: cell.Center.Add(polar(o)),
		}
	}
	return stations, nil
}

// Scatter samples with the reference polar strategy.
func Scatter(rng *rand.Rand, center model.Coordinate, h float64, n int) ([]model.Coordinate, error) {
	return Scatterer{Strategy: ScatterPolar}.Scatter(rng, center, h, n)
}

func polar(o model.Offset) model.Coordinate {
	sin, cos := math.Sincos(o.Angle)
	return model.Coordinate{X: o.Radius * cos, Y: o.Radius * sin}
}
