package model

import (
	"net/netip"
	"testing"
	"time"
)

func TestMastHeightOnlyOriginIsTall(t *testing.T) {
	if got := MastHeight(Coordinate{}); got != OriginMastHeight {
		t.Fatalf("MastHeight(origin) = %v, want %v", got, OriginMastHeight)
	}
	for _, c := range []Coordinate{{X: 1e-9}, {Y: -130}, {X: 112.58, Y: 65}} {
		if got := MastHeight(c); got != StandardMastHeight {
			t.Fatalf("MastHeight(%v) = %v, want %v", c, got, StandardMastHeight)
		}
	}
}

func TestAddressBlockStationAddr(t *testing.T) {
	b := AddressBlock{
		Cell:    3,
		Prefix:  netip.MustParsePrefix("10.1.3.0/24"),
		Gateway: netip.MustParseAddr("10.1.3.1"),
	}
	if got, want := b.StationAddr(0), netip.MustParseAddr("10.1.3.2"); got != want {
		t.Fatalf("StationAddr(0) = %v, want %v", got, want)
	}
	if got, want := b.StationAddr(252), netip.MustParseAddr("10.1.3.254"); got != want {
		t.Fatalf("StationAddr(252) = %v, want %v", got, want)
	}
	if got := b.StationAddr(253); got.IsValid() {
		t.Fatalf("StationAddr(253) = %v, want invalid (broadcast)", got)
	}
	if got := b.StationAddr(-1); got.IsValid() {
		t.Fatalf("StationAddr(-1) = %v, want invalid", got)
	}
}

func TestWindowContains(t *testing.T) {
	w := Window{Start: time.Second, Stop: 3 * time.Second}
	if w.Len() != 2*time.Second {
		t.Fatalf("Len() = %v, want 2s", w.Len())
	}
	if !w.Contains(time.Second) || w.Contains(3*time.Second) || w.Contains(0) {
		t.Fatalf("Contains is not half-open on %v", w)
	}
}

func TestTrafficClassStrings(t *testing.T) {
	if TrafficBulk.String() != "bulk" || TrafficConstantRate.String() != "constant_rate" {
		t.Fatalf("unexpected class names %q %q", TrafficBulk, TrafficConstantRate)
	}
	if AccessCategoryBackground.TOS() != 0x20 || AccessCategoryBestEffort.TOS() != 0 {
		t.Fatalf("unexpected TOS mapping")
	}
}
