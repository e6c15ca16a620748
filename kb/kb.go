package kb

import (
	"errors"
	"fmt"
	"net/netip"
	"sync"

	"github.com/signalsfoundry/hew-outdoor/model"
)

var (
	// ErrNodeExists is returned when adding a node whose ID is taken.
	ErrNodeExists = errors.New("node already exists")
	// ErrNodeNotFound is returned for operations on unknown node IDs.
	ErrNodeNotFound = errors.New("node not found")
	// ErrAddressInUse is returned when an address is already bound to
	// another node.
	ErrAddressInUse = errors.New("address already in use")
)

// EventType indicates what kind of change happened in the KB.
type EventType int

const (
	EventNodeAdded EventType = iota
	EventNodePlaced
	EventAddressAssigned
)

// Event is emitted to subscribers when something interesting happens.
type Event struct {
	Type EventType
	Node model.Node
}

// KnowledgeBase is an in-memory, thread-safe store of the nodes an engine
// has created, where they were placed and which address they carry.
type KnowledgeBase struct {
	mu sync.RWMutex

	nodes  map[string]*model.Node
	order  []string
	byAddr map[netip.Addr]string

	subs   map[int]func(Event)
	nextID int
}

// NewKnowledgeBase constructs an empty KB.
func NewKnowledgeBase() *KnowledgeBase {
	return &KnowledgeBase{
		nodes:  make(map[string]*model.Node),
		byAddr: make(map[netip.Addr]string),
		subs:   make(map[int]func(Event)),
	}
}

// AddNode stores n. It returns ErrNodeExists if the ID is taken, or
// ErrAddressInUse if n carries an address another node already holds.
func (kb *KnowledgeBase) AddNode(n model.Node) error {
	kb.mu.Lock()
	if _, exists := kb.nodes[n.ID]; exists {
		kb.mu.Unlock()
		return fmt.Errorf("%w: %q", ErrNodeExists, n.ID)
	}
	if n.Address.IsValid() {
		if owner, taken := kb.byAddr[n.Address]; taken {
			kb.mu.Unlock()
			return fmt.Errorf("%w: %s held by %q", ErrAddressInUse, n.Address, owner)
		}
		kb.byAddr[n.Address] = n.ID
	}
	stored := n
	kb.nodes[n.ID] = &stored
	kb.order = append(kb.order, n.ID)
	kb.notifyLocked(Event{Type: EventNodeAdded, Node: stored})
	return nil
}

// GetNode returns a copy of the node with the given ID.
func (kb *KnowledgeBase) GetNode(id string) (model.Node, bool) {
	kb.mu.RLock()
	defer kb.mu.RUnlock()
	n, ok := kb.nodes[id]
	if !ok {
		return model.Node{}, false
	}
	return *n, true
}

// NodeByAddress returns the node whose interface carries addr.
func (kb *KnowledgeBase) NodeByAddress(addr netip.Addr) (model.Node, bool) {
	kb.mu.RLock()
	defer kb.mu.RUnlock()
	id, ok := kb.byAddr[addr]
	if !ok {
		return model.Node{}, false
	}
	return *kb.nodes[id], true
}

// ListNodes returns a snapshot of all nodes in insertion order.
func (kb *KnowledgeBase) ListNodes() []model.Node {
	kb.mu.RLock()
	defer kb.mu.RUnlock()

	res := make([]model.Node, 0, len(kb.order))
	for _, id := range kb.order {
		res = append(res, *kb.nodes[id])
	}
	return res
}

// Len returns the number of stored nodes.
func (kb *KnowledgeBase) Len() int {
	kb.mu.RLock()
	defer kb.mu.RUnlock()
	return len(kb.nodes)
}

// UpdateNodePosition moves a node and notifies subscribers.
func (kb *KnowledgeBase) UpdateNodePosition(id string, pos model.Position) error {
	kb.mu.Lock()
	n, ok := kb.nodes[id]
	if !ok {
		kb.mu.Unlock()
		return fmt.Errorf("%w: %q", ErrNodeNotFound, id)
	}
	n.Position = pos
	kb.notifyLocked(Event{Type: EventNodePlaced, Node: *n})
	return nil
}

// AssignAddress binds addr to the node's interface. A node holds at most one
// address; assigning a new one releases the old.
func (kb *KnowledgeBase) AssignAddress(id string, addr netip.Addr) error {
	kb.mu.Lock()
	n, ok := kb.nodes[id]
	if !ok {
		kb.mu.Unlock()
		return fmt.Errorf("%w: %q", ErrNodeNotFound, id)
	}
	if owner, taken := kb.byAddr[addr]; taken && owner != id {
		kb.mu.Unlock()
		return fmt.Errorf("%w: %s held by %q", ErrAddressInUse, addr, owner)
	}
	if n.Address.IsValid() {
		delete(kb.byAddr, n.Address)
	}
	n.Address = addr
	kb.byAddr[addr] = id
	kb.notifyLocked(Event{Type: EventAddressAssigned, Node: *n})
	return nil
}

// Subscribe registers a callback for KB events. It returns an unsubscribe function.
func (kb *KnowledgeBase) Subscribe(fn func(Event)) (unsubscribe func()) {
	kb.mu.Lock()
	defer kb.mu.Unlock()
	id := kb.nextID
	kb.nextID++
	kb.subs[id] = fn

	return func() {
		kb.mu.Lock()
		defer kb.mu.Unlock()
		delete(kb.subs, id)
	}
}

// notifyLocked releases kb.mu and then delivers ev, so subscribers may call
// back into the KB.
func (kb *KnowledgeBase) notifyLocked(ev Event) {
	subs := make([]func(Event), 0, len(kb.subs))
	for id := 0; id < kb.nextID; id++ {
		if fn, ok := kb.subs[id]; ok {
			subs = append(subs, fn)
		}
	}
	kb.mu.Unlock()

	for _, sub := range subs {
		sub(ev)
	}
}
