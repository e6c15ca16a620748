package model

import "net/netip"

// Cell is the coverage region of one access point. Cells are created once
// per scenario build and are not mutated afterwards.
type Cell struct {
	// Index is the zero-based position of the cell in the grid walk order.
	Index int
	// Ring is the number of hex steps from the origin cell (0 = origin).
	Ring       int
	Center     Coordinate
	MastHeight float64
}

// APPosition returns the 3-D placement of the cell's access point.
func (c Cell) APPosition() Position {
	return c.Center.At(c.MastHeight)
}

// Offset is the polar displacement of a station from its cell centre.
type Offset struct {
	Radius float64
	Angle  float64 // radians
}

// Station is a client placed around the access point of its cell.
type Station struct {
	Cell  int
	Index int // index within the cell

	Offset   Offset
	Position Coordinate
}

// AddressBlock is the disjoint subnet owned by one cell. The access point
// holds Gateway; station i holds StationAddr(i).
type AddressBlock struct {
	Cell    int
	Prefix  netip.Prefix
	Gateway netip.Addr
}

// StationAddr returns the address of the i-th station in the block, or the
// zero Addr when i falls outside the prefix or onto its broadcast address.
func (b AddressBlock) StationAddr(i int) netip.Addr {
	if i < 0 || !b.Gateway.IsValid() {
		return netip.Addr{}
	}
	addr := b.Gateway
	for range i + 1 {
		addr = addr.Next()
		if !addr.IsValid() {
			return netip.Addr{}
		}
	}
	if !b.Prefix.Contains(addr) || !b.Prefix.Contains(addr.Next()) {
		return netip.Addr{}
	}
	return addr
}

// Overlaps reports whether two blocks share any address.
func (b AddressBlock) Overlaps(other AddressBlock) bool {
	return b.Prefix.Overlaps(other.Prefix)
}
