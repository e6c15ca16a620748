package model

import "math"

// Mast and antenna heights in metres.
const (
	// OriginMastHeight is used only by the access point at exactly (0,0).
	OriginMastHeight = 10.0
	// StandardMastHeight is used by every other access point.
	StandardMastHeight = 1.5
	// StationHeight is the antenna height of client stations.
	StationHeight = 1.5
)

// Coordinate is a planar point in metres.
type Coordinate struct {
	X, Y float64
}

// Add returns c + other.
func (c Coordinate) Add(other Coordinate) Coordinate {
	return Coordinate{X: c.X + other.X, Y: c.Y + other.Y}
}

// DistanceTo returns the Euclidean distance between two points.
func (c Coordinate) DistanceTo(other Coordinate) float64 {
	return math.Hypot(c.X-other.X, c.Y-other.Y)
}

// IsOrigin reports whether c is exactly (0,0).
func (c Coordinate) IsOrigin() bool {
	return c.X == 0 && c.Y == 0
}

// At lifts c to three dimensions.
func (c Coordinate) At(z float64) Position {
	return Position{X: c.X, Y: c.Y, Z: z}
}

// Position is a 3-D placement in metres handed to the simulation engine.
type Position struct {
	X float64
	Y float64
	Z float64
}

// MastHeight returns the access point height for a cell centred at c.
func MastHeight(c Coordinate) float64 {
	if c.IsOrigin() {
		return OriginMastHeight
	}
	return StandardMastHeight
}
