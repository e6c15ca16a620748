package core

import (
	"errors"
	"net/netip"
	"testing"
)

func newTestAllocator(t *testing.T) *AddressAllocator {
	t.Helper()
	a, err := NewAddressAllocator(DefaultAddressBase)
	if err != nil {
		t.Fatalf("NewAddressAllocator error: %v", err)
	}
	return a
}

func TestNewAddressAllocatorRejectsBadBase(t *testing.T) {
	for _, p := range []string{"10.1.0.0/24", "10.0.0.0/8", "fd00::/16"} {
		if _, err := NewAddressAllocator(netip.MustParsePrefix(p)); !errors.Is(err, ErrInvalidArgument) {
			t.Fatalf("NewAddressAllocator(%s) error = %v, want ErrInvalidArgument", p, err)
		}
	}
}

func TestAllocateEmbedsCellIndex(t *testing.T) {
	a := newTestAllocator(t)
	b, err := a.Allocate(18)
	if err != nil {
		t.Fatalf("Allocate(18) error: %v", err)
	}
	if b.Prefix != netip.MustParsePrefix("10.1.18.0/24") {
		t.Fatalf("prefix = %v, want 10.1.18.0/24", b.Prefix)
	}
	if b.Gateway != netip.MustParseAddr("10.1.18.1") {
		t.Fatalf("gateway = %v, want 10.1.18.1", b.Gateway)
	}
	sta, err := a.StationAddr(18, 2)
	if err != nil || sta != netip.MustParseAddr("10.1.18.4") {
		t.Fatalf("StationAddr(18, 2) = %v, %v; want 10.1.18.4", sta, err)
	}
}

func TestAllocateBlocksNeverOverlap(t *testing.T) {
	a := newTestAllocator(t)
	var blocks []netip.Prefix
	for i := range MaxCells {
		b, err := a.Allocate(i)
		if err != nil {
			t.Fatalf("Allocate(%d) error: %v", i, err)
		}
		for j, other := range blocks {
			if b.Prefix.Overlaps(other) {
				t.Fatalf("block %d (%v) overlaps block %d (%v)", i, b.Prefix, j, other)
			}
		}
		blocks = append(blocks, b.Prefix)
	}
}

func TestAllocateCapacity(t *testing.T) {
	a := newTestAllocator(t)
	if _, err := a.Allocate(MaxCells); !errors.Is(err, ErrCapacityExceeded) {
		t.Fatalf("Allocate(%d) error = %v, want ErrCapacityExceeded", MaxCells, err)
	}
	if _, err := a.NextPort(MaxCells + 3); !errors.Is(err, ErrCapacityExceeded) {
		t.Fatalf("NextPort out of range error = %v, want ErrCapacityExceeded", err)
	}
	if _, err := a.Allocate(-1); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("Allocate(-1) error = %v, want ErrInvalidArgument", err)
	}
	if _, err := a.StationAddr(0, MaxStationsPerCell); !errors.Is(err, ErrCapacityExceeded) {
		t.Fatalf("StationAddr beyond capacity error = %v, want ErrCapacityExceeded", err)
	}
	last, err := a.StationAddr(0, MaxStationsPerCell-1)
	if err != nil || last != netip.MustParseAddr("10.1.0.254") {
		t.Fatalf("last station addr = %v, %v; want 10.1.0.254", last, err)
	}
}

func TestNextPortStrictlyIncreasingPerCell(t *testing.T) {
	a := newTestAllocator(t)
	prev := 0
	for i := range 50 {
		p, err := a.NextPort(3)
		if err != nil {
			t.Fatalf("NextPort error: %v", err)
		}
		if i == 0 && p != BasePort {
			t.Fatalf("first port = %d, want %d", p, BasePort)
		}
		if i > 0 && p <= prev {
			t.Fatalf("port %d not greater than previous %d", p, prev)
		}
		prev = p
	}

	// Other cells have independent counters.
	if p, _ := a.NextPort(4); p != BasePort {
		t.Fatalf("first port of cell 4 = %d, want %d", p, BasePort)
	}
}
