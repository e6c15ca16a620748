package scenario

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"net/netip"
	"sort"
	"sync"
	"time"

	"github.com/signalsfoundry/hew-outdoor/core"
	"github.com/signalsfoundry/hew-outdoor/internal/flowstats"
	"github.com/signalsfoundry/hew-outdoor/internal/logging"
	"github.com/signalsfoundry/hew-outdoor/kb"
	"github.com/signalsfoundry/hew-outdoor/model"
	"github.com/signalsfoundry/hew-outdoor/timectrl"
)

// speedOfLight in metres per second, for propagation delay.
const speedOfLight = 299792458.0

var (
	// ErrNoInterface is returned when a sink or source is attached to a node
	// without an installed interface.
	ErrNoInterface = errors.New("node has no interface")
	// ErrNoSink is returned when a source is started before the sink it
	// sends to.
	ErrNoSink = errors.New("no sink installed for flow")
	// ErrPortInUse is returned when two sinks share a node and port.
	ErrPortInUse = errors.New("port already bound")
)

// ActivityKind labels an entry of the playback log.
type ActivityKind int

const (
	SinkOpened ActivityKind = iota
	SinkClosed
	SourceStarted
	SourceStopped
)

func (k ActivityKind) String() string {
	switch k {
	case SinkOpened:
		return "sink-opened"
	case SinkClosed:
		return "sink-closed"
	case SourceStarted:
		return "source-started"
	case SourceStopped:
		return "source-stopped"
	default:
		return fmt.Sprintf("ActivityKind(%d)", int(k))
	}
}

// Activity is one state change observed during playback, at an offset from
// the start of the run.
type Activity struct {
	At   time.Duration
	Kind ActivityKind
	Flow string // model.Flow.Key
}

// FlowResult is what a run measured for one flow.
type FlowResult struct {
	Flow            model.Flow
	PacketsSent     int
	PacketsReceived int
	ThroughputMbps  float64
	DelaySeconds    float64
}

type sinkKey struct {
	node NodeHandle
	port int
}

type sinkState struct {
	label  string
	window model.Window
	open   bool
	rxPkts int
	rxByte int
}

type sourceState struct {
	flow model.Flow
	sink sinkKey

	delay  time.Duration
	txPkts int
}

// RecordingOption customises a RecordingEngine.
type RecordingOption func(*RecordingEngine)

// WithTick sets the playback step. Callbacks always fire at their exact
// scheduled time; the tick only bounds how far time advances per step.
func WithTick(d time.Duration) RecordingOption {
	return func(e *RecordingEngine) {
		if d > 0 {
			e.tick = d
		}
	}
}

// WithBurstSeed seeds the source that draws bulk off periods during
// playback.
func WithBurstSeed(seed uint64) RecordingOption {
	return func(e *RecordingEngine) {
		e.rng = core.NewRand(seed)
	}
}

// WithResultsWriter appends every recorded flow stat to w.
func WithResultsWriter(w *flowstats.Writer) RecordingOption {
	return func(e *RecordingEngine) {
		e.results = w
	}
}

// WithEngineLogger sets the engine's logger.
func WithEngineLogger(log logging.Logger) RecordingOption {
	return func(e *RecordingEngine) {
		if log != nil {
			e.log = log
		}
	}
}

// RecordingEngine is an in-memory Engine. It records the deployment in a
// knowledge base and plays the flows back over an ideal channel: every
// packet sent while its sink is open is received after the line-of-sight
// propagation delay.
type RecordingEngine struct {
	mu sync.Mutex

	store *kb.KnowledgeBase
	radio *core.RadioProfile

	nextNode int
	capture  []NodeHandle
	sinks    map[sinkKey]*sinkState
	sources  []*sourceState

	tick     time.Duration
	rng      *rand.Rand
	activity []Activity

	results *flowstats.Writer
	records []flowstats.Record
	log     logging.Logger
}

// NewRecordingEngine constructs an empty engine.
func NewRecordingEngine(opts ...RecordingOption) *RecordingEngine {
	e := &RecordingEngine{
		store: kb.NewKnowledgeBase(),
		sinks: make(map[sinkKey]*sinkState),
		tick:  100 * time.Millisecond,
		rng:   core.NewRand(1),
		log:   logging.Noop(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e
}

// KnowledgeBase exposes the recorded nodes.
func (e *RecordingEngine) KnowledgeBase() *kb.KnowledgeBase {
	return e.store
}

// Radio returns the configured radio profile.
func (e *RecordingEngine) Radio() (core.RadioProfile, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.radio == nil {
		return core.RadioProfile{}, false
	}
	return *e.radio, true
}

// Captured returns the nodes packet capture was enabled on.
func (e *RecordingEngine) Captured() []NodeHandle {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]NodeHandle(nil), e.capture...)
}

// Activity returns the playback log in time order.
func (e *RecordingEngine) Activity() []Activity {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]Activity(nil), e.activity...)
}

// Records returns every flow stat recorded so far.
func (e *RecordingEngine) Records() []flowstats.Record {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]flowstats.Record(nil), e.records...)
}

func (e *RecordingEngine) ConfigureRadio(_ context.Context, radio core.RadioProfile) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.radio = &radio
	return nil
}

func (e *RecordingEngine) CreateNodes(_ context.Context, count int) ([]NodeHandle, error) {
	if count < 0 {
		return nil, fmt.Errorf("%w: node count must be >= 0, got %d", core.ErrInvalidArgument, count)
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	handles := make([]NodeHandle, 0, count)
	for range count {
		h := NodeHandle(fmt.Sprintf("node-%d", e.nextNode))
		e.nextNode++
		if err := e.store.AddNode(model.Node{ID: string(h)}); err != nil {
			return nil, err
		}
		handles = append(handles, h)
	}
	return handles, nil
}

func (e *RecordingEngine) PlaceNode(_ context.Context, h NodeHandle, pos model.Position) error {
	return e.store.UpdateNodePosition(string(h), pos)
}

func (e *RecordingEngine) InstallInterface(_ context.Context, h NodeHandle, addr netip.Addr) (InterfaceHandle, error) {
	if !addr.IsValid() {
		return InterfaceHandle{}, fmt.Errorf("%w: invalid interface address for %s", core.ErrInvalidArgument, h)
	}
	if err := e.store.AssignAddress(string(h), addr); err != nil {
		return InterfaceHandle{}, err
	}
	return InterfaceHandle{Node: h, Address: addr}, nil
}

func (e *RecordingEngine) EnableCapture(_ context.Context, nodes []NodeHandle) error {
	for _, h := range nodes {
		if _, ok := e.store.GetNode(string(h)); !ok {
			return fmt.Errorf("%w: %q", kb.ErrNodeNotFound, h)
		}
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.capture = append(e.capture, nodes...)
	return nil
}

func (e *RecordingEngine) StartSink(_ context.Context, h NodeHandle, port int, window model.Window) error {
	node, ok := e.store.GetNode(string(h))
	if !ok {
		return fmt.Errorf("%w: %q", kb.ErrNodeNotFound, h)
	}
	if !node.Address.IsValid() {
		return fmt.Errorf("%w: %q", ErrNoInterface, h)
	}
	if window.Len() <= 0 {
		return fmt.Errorf("%w: empty sink window %v", core.ErrInvalidArgument, window)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	key := sinkKey{node: h, port: port}
	if _, taken := e.sinks[key]; taken {
		return fmt.Errorf("%w: %s:%d", ErrPortInUse, h, port)
	}
	e.sinks[key] = &sinkState{label: fmt.Sprintf("%s:%d", h, port), window: window}
	return nil
}

func (e *RecordingEngine) StartSource(_ context.Context, h NodeHandle, flow model.Flow) error {
	src, ok := e.store.GetNode(string(h))
	if !ok {
		return fmt.Errorf("%w: %q", kb.ErrNodeNotFound, h)
	}
	if !src.Address.IsValid() {
		return fmt.Errorf("%w: %q", ErrNoInterface, h)
	}
	if src.Address != flow.Source {
		return fmt.Errorf("%w: flow %s sources from %s but node %s holds %s",
			core.ErrInvalidArgument, flow.Key(), flow.Source, h, src.Address)
	}
	dst, ok := e.store.NodeByAddress(flow.Destination)
	if !ok {
		return fmt.Errorf("%w: flow %s destination %s", ErrNoSink, flow.Key(), flow.Destination)
	}
	if (flow.Bulk == nil) == (flow.ConstantRate == nil) {
		return fmt.Errorf("%w: flow %s must carry exactly one traffic model", core.ErrInvalidArgument, flow.Key())
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	key := sinkKey{node: NodeHandle(dst.ID), port: flow.Port}
	if _, ok := e.sinks[key]; !ok {
		return fmt.Errorf("%w: %s", ErrNoSink, flow.Key())
	}
	e.sinks[key].label = flow.Key()
	e.sources = append(e.sources, &sourceState{
		flow:  flow,
		sink:  key,
		delay: propagationDelay(src.Position, dst.Position),
	})
	return nil
}

func (e *RecordingEngine) RecordFlowStat(_ context.Context, rec flowstats.Record) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.records = append(e.records, rec)
	if e.results != nil {
		return e.results.Write(rec)
	}
	return nil
}

// Run plays the installed flows back for duration of simulated time and
// returns one result per source, in installation order.
func (e *RecordingEngine) Run(ctx context.Context, duration time.Duration) ([]FlowResult, error) {
	epoch := time.Unix(0, 0).UTC()
	clock := timectrl.NewTimeController(epoch, e.tick, timectrl.Accelerated)

	e.mu.Lock()
	e.activity = nil
	keys := make([]sinkKey, 0, len(e.sinks))
	for k, s := range e.sinks {
		s.open, s.rxPkts, s.rxByte = false, 0, 0
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].node != keys[j].node {
			return keys[i].node < keys[j].node
		}
		return keys[i].port < keys[j].port
	})
	sources := append([]*sourceState(nil), e.sources...)
	e.mu.Unlock()

	// Sinks are scheduled first so that a source starting at the same
	// instant finds its sink open.
	for _, k := range keys {
		e.scheduleSink(clock, epoch, k)
	}
	for _, src := range sources {
		src.txPkts = 0
		e.scheduleSource(clock, epoch, src)
	}

	e.log.Debug(ctx, "playing back flows",
		logging.Int("sinks", len(keys)),
		logging.Int("sources", len(sources)),
		logging.Duration("duration", duration),
	)

	done := clock.Start(duration)
	select {
	case <-done:
	case <-ctx.Done():
		clock.Stop()
		<-done
		return nil, ctx.Err()
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	results := make([]FlowResult, 0, len(sources))
	for _, src := range sources {
		sink := e.sinks[src.sink]
		res := FlowResult{
			Flow:            src.flow,
			PacketsSent:     src.txPkts,
			PacketsReceived: sink.rxPkts,
		}
		if secs := sink.window.Len().Seconds(); secs > 0 {
			res.ThroughputMbps = float64(sink.rxByte*8) / secs / 1e6
		}
		if sink.rxPkts > 0 {
			res.DelaySeconds = src.delay.Seconds()
		}
		results = append(results, res)
	}
	return results, nil
}

func (e *RecordingEngine) scheduleSink(clock *timectrl.TimeController, epoch time.Time, k sinkKey) {
	e.mu.Lock()
	sink := e.sinks[k]
	label := sink.label
	e.mu.Unlock()

	clock.ScheduleAt(epoch.Add(sink.window.Start), func(at time.Time) {
		e.mu.Lock()
		defer e.mu.Unlock()
		sink.open = true
		e.activity = append(e.activity, Activity{At: at.Sub(epoch), Kind: SinkOpened, Flow: label})
	})
	clock.ScheduleAt(epoch.Add(sink.window.Stop), func(at time.Time) {
		e.mu.Lock()
		defer e.mu.Unlock()
		sink.open = false
		e.activity = append(e.activity, Activity{At: at.Sub(epoch), Kind: SinkClosed, Flow: label})
	})
}

func (e *RecordingEngine) scheduleSource(clock *timectrl.TimeController, epoch time.Time, src *sourceState) {
	f := src.flow
	size, interval, bursts := 0, time.Duration(0), []model.Window{f.SourceWindow}
	switch {
	case f.ConstantRate != nil:
		size = f.ConstantRate.PacketSizeBytes
		interval = f.ConstantRate.Interval
	case f.Bulk != nil:
		size = f.Bulk.PacketSizeBytes
		interval = core.PacketInterval(size, f.Bulk.DataRateMbps)
		e.mu.Lock()
		bursts = core.Bursts(e.rng, *f.Bulk, f.SourceWindow)
		e.mu.Unlock()
	}
	if interval <= 0 || len(bursts) == 0 {
		return
	}

	send := func(time.Time) {
		e.mu.Lock()
		defer e.mu.Unlock()
		src.txPkts++
		if sink := e.sinks[src.sink]; sink.open {
			sink.rxPkts++
			sink.rxByte += size
		}
	}

	for _, b := range bursts {
		var next func(time.Time)
		next = func(at time.Time) {
			send(at)
			if t := at.Add(interval); t.Before(epoch.Add(b.Stop)) {
				clock.ScheduleAt(t, next)
			}
		}
		clock.ScheduleAt(epoch.Add(b.Start), next)
	}

	key := f.Key()
	clock.ScheduleAt(epoch.Add(f.SourceWindow.Start), func(at time.Time) {
		e.mu.Lock()
		defer e.mu.Unlock()
		e.activity = append(e.activity, Activity{At: at.Sub(epoch), Kind: SourceStarted, Flow: key})
	})
	clock.ScheduleAt(epoch.Add(f.SourceWindow.Stop), func(at time.Time) {
		e.mu.Lock()
		defer e.mu.Unlock()
		e.activity = append(e.activity, Activity{At: at.Sub(epoch), Kind: SourceStopped, Flow: key})
	})
}

func propagationDelay(a, b model.Position) time.Duration {
	horizontal := model.Coordinate{X: a.X, Y: a.Y}.DistanceTo(model.Coordinate{X: b.X, Y: b.Y})
	dz := a.Z - b.Z
	metres := math.Sqrt(horizontal*horizontal + dz*dz)
	return time.Duration(metres / speedOfLight * float64(time.Second))
}
