package core

import (
	"fmt"
	"net/netip"

	"github.com/signalsfoundry/hew-outdoor/model"
)

const (
	// BasePort is the first port handed out in every cell.
	BasePort = 9
	// MaxCells is the number of /24 cell blocks that fit in the /16 base.
	MaxCells = 256
	// MaxStationsPerCell leaves .0 (network), .1 (AP) and .255 (broadcast).
	MaxStationsPerCell = 253
)

// DefaultAddressBase is the /16 that cell blocks are carved from.
var DefaultAddressBase = netip.MustParsePrefix("10.1.0.0/16")

// AddressAllocator derives one /24 per cell by embedding the cell index in
// the third octet of an IPv4 /16, and hands out per-cell port numbers.
//
// An allocator belongs to a single scenario build; its port counters are
// not safe for concurrent use.
type AddressAllocator struct {
	base  [4]byte
	ports map[int]int
}

// NewAddressAllocator validates base and returns an allocator. base must be
// an IPv4 /16.
func NewAddressAllocator(base netip.Prefix) (*AddressAllocator, error) {
	if !base.IsValid() || !base.Addr().Is4() || base.Bits() != 16 {
		return nil, fmt.Errorf("%w: address base must be an IPv4 /16, got %s", ErrInvalidArgument, base)
	}
	return &AddressAllocator{
		base:  base.Masked().Addr().As4(),
		ports: make(map[int]int),
	}, nil
}

func (a *AddressAllocator) checkCell(cellIndex int) error {
	if cellIndex < 0 {
		return fmt.Errorf("%w: cell index must be >= 0, got %d", ErrInvalidArgument, cellIndex)
	}
	if cellIndex >= MaxCells {
		return fmt.Errorf("%w: cell index %d exceeds addressing range of %d cells", ErrCapacityExceeded, cellIndex, MaxCells)
	}
	return nil
}

// Allocate returns the address block of cell cellIndex. Blocks are a pure
// function of the index, so repeated calls return the same block.
func (a *AddressAllocator) Allocate(cellIndex int) (model.AddressBlock, error) {
	if err := a.checkCell(cellIndex); err != nil {
		return model.AddressBlock{}, err
	}
	network := netip.AddrFrom4([4]byte{a.base[0], a.base[1], byte(cellIndex), 0})
	return model.AddressBlock{
		Cell:    cellIndex,
		Prefix:  netip.PrefixFrom(network, 24),
		Gateway: network.Next(),
	}, nil
}

// StationAddr returns the address of station stationIndex in cell cellIndex.
func (a *AddressAllocator) StationAddr(cellIndex, stationIndex int) (netip.Addr, error) {
	block, err := a.Allocate(cellIndex)
	if err != nil {
		return netip.Addr{}, err
	}
	if stationIndex < 0 {
		return netip.Addr{}, fmt.Errorf("%w: station index must be >= 0, got %d", ErrInvalidArgument, stationIndex)
	}
	if stationIndex >= MaxStationsPerCell {
		return netip.Addr{}, fmt.Errorf("%w: station index %d exceeds %d stations per cell", ErrCapacityExceeded, stationIndex, MaxStationsPerCell)
	}
	return block.StationAddr(stationIndex), nil
}

// NextPort returns the next unused port in cell cellIndex, starting at
// BasePort and increasing by one per call.
func (a *AddressAllocator) NextPort(cellIndex int) (int, error) {
	if err := a.checkCell(cellIndex); err != nil {
		return 0, err
	}
	next, ok := a.ports[cellIndex]
	if !ok {
		next = BasePort
	}
	a.ports[cellIndex] = next + 1
	return next, nil
}
