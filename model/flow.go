package model

import (
	"fmt"
	"net/netip"
	"time"
)

// TrafficClass selects the application model attached to a station.
type TrafficClass int

const (
	TrafficBulk         TrafficClass = iota // on/off FTP-like sessions
	TrafficConstantRate                     // fixed-size packets at a fixed interval
)

func (c TrafficClass) String() string {
	switch c {
	case TrafficBulk:
		return "bulk"
	case TrafficConstantRate:
		return "constant_rate"
	default:
		return fmt.Sprintf("TrafficClass(%d)", int(c))
	}
}

// AccessCategory is the 802.11e priority a flow is marked with.
type AccessCategory int

const (
	AccessCategoryBestEffort AccessCategory = iota
	AccessCategoryBackground
)

func (a AccessCategory) String() string {
	switch a {
	case AccessCategoryBackground:
		return "AC_BK"
	case AccessCategoryBestEffort:
		return "AC_BE"
	default:
		return fmt.Sprintf("AccessCategory(%d)", int(a))
	}
}

// TOS returns the IP type-of-service byte that maps onto the category.
func (a AccessCategory) TOS() uint8 {
	if a == AccessCategoryBackground {
		return 0x20
	}
	return 0x00
}

// Window is a half-open activity interval in simulated time, measured from
// the start of the run.
type Window struct {
	Start time.Duration
	Stop  time.Duration
}

// Len returns Stop - Start.
func (w Window) Len() time.Duration {
	return w.Stop - w.Start
}

// Contains reports whether t lies inside [Start, Stop).
func (w Window) Contains(t time.Duration) bool {
	return t >= w.Start && t < w.Stop
}

// BulkParams describes an on/off source. Off periods are exponential with
// mean OffMean, capped at OffBound.
type BulkParams struct {
	OnTime          time.Duration
	OffMean         time.Duration
	OffBound        time.Duration
	PacketSizeBytes int
	DataRateMbps    float64
}

// ConstantRateParams describes a fixed-interval source.
type ConstantRateParams struct {
	PacketSizeBytes int
	Interval        time.Duration
	OfferedLoadMbps float64
}

// Flow is one upstream station-to-AP traffic source with its sink.
type Flow struct {
	ID      int
	Cell    int
	Station int
	Class   TrafficClass

	Source      netip.Addr
	Destination netip.Addr
	Port        int
	Priority    AccessCategory

	SourceWindow Window
	SinkWindow   Window

	// Exactly one of these is set, matching Class.
	Bulk         *BulkParams
	ConstantRate *ConstantRateParams
}

// Key identifies a flow's sink within the scenario.
func (f Flow) Key() string {
	return fmt.Sprintf("%d/%d", f.Cell, f.Port)
}
