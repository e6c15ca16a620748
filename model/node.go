package model

import "net/netip"

// NodeRole distinguishes access points from client stations.
type NodeRole int

const (
	RoleUnspecified NodeRole = iota
	RoleAccessPoint
	RoleStation
)

func (r NodeRole) String() string {
	switch r {
	case RoleAccessPoint:
		return "AP"
	case RoleStation:
		return "STA"
	default:
		return "unspecified"
	}
}

// Node is a simulated device as seen by the engine: identity, placement and
// the address of its single wireless interface.
type Node struct {
	ID   string
	Role NodeRole

	// Cell is the index of the cell the node belongs to.
	Cell int
	// Station is the index within the cell; unused for access points.
	Station int

	Position Position
	Address  netip.Addr
}
