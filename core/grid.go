package core

import (
	"fmt"
	"math"

	"github.com/signalsfoundry/hew-outdoor/model"
)

// sqrt3 is the horizontal stride factor between neighbouring hex cells.
var sqrt3 = math.Sqrt(3)

// ringStep is a unit displacement of the ring walk, scaled by h.
type ringStep struct {
	dx, dy float64
}

// outward moves the walker from the last ring onto the first cell of the
// next one.
var outward = ringStep{dx: sqrt3, dy: 1}

// arms are the six 60°-apart directions walked around a ring. The last arm
// closes the ring and emits one point fewer than the others, because its
// final step lands on the ring's first cell.
var arms = [6]ringStep{
	{dx: -sqrt3, dy: 1},
	{dx: -sqrt3, dy: -1},
	{dx: 0, dy: -2},
	{dx: sqrt3, dy: -1},
	{dx: sqrt3, dy: 1},
	{dx: 0, dy: 2},
}

// CellCount returns the number of access points in a hex grid with the given
// number of layers: 1, 7, 19, 37, 61, ... A layer count of 0 is treated as a
// single cell, the same as 1.
func CellCount(layers int) (int, error) {
	if layers < 0 {
		return 0, fmt.Errorf("%w: layers must be >= 0, got %d", ErrInvalidArgument, layers)
	}
	if layers <= 1 {
		return 1, nil
	}
	// 1 + 6*(1+2+...+(layers-1))
	n := layers - 1
	return 1 + 3*n*(n+1), nil
}

// RingSize returns the number of cells on ring lay (0 = origin).
func RingSize(lay int) int {
	if lay <= 0 {
		return 1
	}
	return 6 * lay
}

// CellCenters walks concentric rings outward from the origin and returns the
// access point centres in walk order. h is the cell radius (half the AP
// spacing) in metres. The order is stable for fixed (h, layers) and is the
// cell index used by every later stage.
func CellCenters(h float64, layers int) ([]model.Coordinate, error) {
	count, err := CellCount(layers)
	if err != nil {
		return nil, err
	}
	if !(h > 0) || math.IsInf(h, 0) {
		return nil, fmt.Errorf("%w: cell radius must be positive and finite, got %v", ErrInvalidArgument, h)
	}

	centers := make([]model.Coordinate, 0, count)
	centers = append(centers, model.Coordinate{})

	var x, y float64
	for lay := 1; lay < layers; lay++ {
		x += outward.dx * h
		y += outward.dy * h
		centers = append(centers, model.Coordinate{X: x, Y: y})

		for a, arm := range arms {
			steps := lay
			if a == len(arms)-1 {
				steps = lay - 1
			}
			for range steps {
				x += arm.dx * h
				y += arm.dy * h
				centers = append(centers, model.Coordinate{X: x, Y: y})
			}
		}
		// Close the ring so the next outward step starts from its first cell.
		x += arms[len(arms)-1].dx * h
		y += arms[len(arms)-1].dy * h
	}

	return centers, nil
}

// Cells returns CellCenters annotated with ring numbers and mast heights.
func Cells(h float64, layers int) ([]model.Cell, error) {
	centers, err := CellCenters(h, layers)
	if err != nil {
		return nil, err
	}

	cells := make([]model.Cell, len(centers))
	ring, left := 0, 1
	for i, c := range centers {
		if left == 0 {
			ring++
			left = RingSize(ring)
		}
		left--
		cells[i] = model.Cell{
			Index:      i,
			Ring:       ring,
			Center:     c,
			MastHeight: model.MastHeight(c),
		}
	}
	return cells, nil
}
