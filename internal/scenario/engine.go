// Package scenario turns a configuration into a concrete outdoor deployment
// (access points, stations, addresses and flows) and installs it on a
// simulation engine.
package scenario

import (
	"context"
	"net/netip"

	"github.com/signalsfoundry/hew-outdoor/core"
	"github.com/signalsfoundry/hew-outdoor/internal/flowstats"
	"github.com/signalsfoundry/hew-outdoor/model"
)

// NodeHandle identifies a node created by an Engine.
type NodeHandle string

// InterfaceHandle identifies the wireless interface installed on a node.
type InterfaceHandle struct {
	Node    NodeHandle
	Address netip.Addr
}

// Engine is the network simulator the scenario is installed on. Calls are
// made from a single goroutine per build, in this order: ConfigureRadio,
// CreateNodes, PlaceNode, InstallInterface, EnableCapture, then StartSink
// before StartSource for every flow. RecordFlowStat follows the run.
type Engine interface {
	ConfigureRadio(ctx context.Context, radio core.RadioProfile) error
	CreateNodes(ctx context.Context, count int) ([]NodeHandle, error)
	PlaceNode(ctx context.Context, h NodeHandle, pos model.Position) error
	InstallInterface(ctx context.Context, h NodeHandle, addr netip.Addr) (InterfaceHandle, error)
	EnableCapture(ctx context.Context, nodes []NodeHandle) error

	// StartSink opens a UDP sink on port of node h for window.
	StartSink(ctx context.Context, h NodeHandle, port int, window model.Window) error
	// StartSource attaches the traffic source described by flow to node h.
	StartSource(ctx context.Context, h NodeHandle, flow model.Flow) error

	RecordFlowStat(ctx context.Context, rec flowstats.Record) error
}
