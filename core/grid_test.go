package core

import (
	"errors"
	"math"
	"testing"

	"github.com/signalsfoundry/hew-outdoor/model"
)

func TestCellCountCenteredHexagonal(t *testing.T) {
	want := []int{1, 1, 7, 19, 37, 61, 91}
	for layers, w := range want {
		got, err := CellCount(layers)
		if err != nil {
			t.Fatalf("CellCount(%d) error: %v", layers, err)
		}
		if got != w {
			t.Fatalf("CellCount(%d) = %d, want %d", layers, got, w)
		}
	}
}

func TestCellCountRejectsNegativeLayers(t *testing.T) {
	if _, err := CellCount(-1); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("CellCount(-1) error = %v, want ErrInvalidArgument", err)
	}
	if _, err := CellCenters(65, -2); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("CellCenters(65, -2) error = %v, want ErrInvalidArgument", err)
	}
}

func TestCellCentersRejectsBadRadius(t *testing.T) {
	for _, h := range []float64{0, -65, math.NaN(), math.Inf(1)} {
		if _, err := CellCenters(h, 2); !errors.Is(err, ErrInvalidArgument) {
			t.Fatalf("CellCenters(%v, 2) error = %v, want ErrInvalidArgument", h, err)
		}
	}
}

func TestCellCentersSingleCell(t *testing.T) {
	for _, layers := range []int{0, 1} {
		got, err := CellCenters(65, layers)
		if err != nil {
			t.Fatalf("CellCenters(65, %d) error: %v", layers, err)
		}
		if len(got) != 1 || got[0] != (model.Coordinate{}) {
			t.Fatalf("CellCenters(65, %d) = %v, want [(0,0)]", layers, got)
		}
	}
}

func TestCellCentersLengthAndOrigin(t *testing.T) {
	for layers := 1; layers <= 8; layers++ {
		centers, err := CellCenters(65, layers)
		if err != nil {
			t.Fatalf("CellCenters(65, %d) error: %v", layers, err)
		}
		want, _ := CellCount(layers)
		if len(centers) != want {
			t.Fatalf("len(CellCenters(65, %d)) = %d, want %d", layers, len(centers), want)
		}
		if centers[0] != (model.Coordinate{}) {
			t.Fatalf("CellCenters(65, %d)[0] = %v, want (0,0)", layers, centers[0])
		}
	}
}

func TestCellCentersFirstRing(t *testing.T) {
	const h = 65.0
	s := math.Sqrt(3) * h
	want := []model.Coordinate{
		{X: 0, Y: 0},
		{X: s, Y: h},
		{X: 0, Y: 2 * h},
		{X: -s, Y: h},
		{X: -s, Y: -h},
		{X: 0, Y: -2 * h},
		{X: s, Y: -h},
	}
	got, err := CellCenters(h, 2)
	if err != nil {
		t.Fatalf("CellCenters error: %v", err)
	}
	if len(got) != len(want) {
		t.Fatalf("len = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i].DistanceTo(want[i]) > 1e-9 {
			t.Fatalf("center[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestCellCentersRingsAreHexagonal(t *testing.T) {
	const h = 65.0
	cells, err := Cells(h, 5)
	if err != nil {
		t.Fatalf("Cells error: %v", err)
	}

	perRing := map[int]int{}
	for _, c := range cells {
		perRing[c.Ring]++
	}
	for lay := 0; lay < 5; lay++ {
		if perRing[lay] != RingSize(lay) {
			t.Fatalf("ring %d has %d cells, want %d", lay, perRing[lay], RingSize(lay))
		}
	}

	// Every pair of access points is at least one AP spacing (2h) apart,
	// i.e. the walk never revisits a cell.
	for i := range cells {
		for j := i + 1; j < len(cells); j++ {
			if d := cells[i].Center.DistanceTo(cells[j].Center); d < 2*h-1e-6 {
				t.Fatalf("cells %d and %d are %.3f m apart, want >= %.3f", i, j, d, 2*h)
			}
		}
	}

	// The first cell of ring lay sits lay spacings out along 30°.
	for i, c := range cells {
		if i == 0 || cells[i-1].Ring == c.Ring {
			continue
		}
		want := float64(c.Ring) * 2 * h
		if d := c.Center.DistanceTo(model.Coordinate{}); math.Abs(d-want) > 1e-6 {
			t.Fatalf("ring %d starts %.3f m from origin, want %.3f", c.Ring, d, want)
		}
	}
}

func TestCellCentersDeterministic(t *testing.T) {
	a, _ := CellCenters(65, 4)
	b, _ := CellCenters(65, 4)
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("center[%d] differs between calls: %v vs %v", i, a[i], b[i])
		}
	}
}

func TestCellsMastHeights(t *testing.T) {
	cells, err := Cells(65, 3)
	if err != nil {
		t.Fatalf("Cells error: %v", err)
	}
	if len(cells) != 19 {
		t.Fatalf("len(Cells(65, 3)) = %d, want 19", len(cells))
	}
	for _, c := range cells {
		want := model.StandardMastHeight
		if c.Index == 0 {
			want = model.OriginMastHeight
		}
		if c.MastHeight != want {
			t.Fatalf("cell %d mast height = %v, want %v", c.Index, c.MastHeight, want)
		}
		if c.APPosition().Z != want {
			t.Fatalf("cell %d AP z = %v, want %v", c.Index, c.APPosition().Z, want)
		}
	}
}
