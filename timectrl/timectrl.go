package timectrl

import (
	"sync"
	"time"

	"github.com/iti/evt/evtm"
	"github.com/iti/evt/vrtime"
)

// SimClock is an interface for accessing simulation time. Engines depend on
// it rather than on the concrete controller so tests can drive time directly.
type SimClock interface {
	// Now returns the current simulation time.
	Now() time.Time
	// After returns a channel that receives the simulation time once d has
	// elapsed in simulation time.
	After(d time.Duration) <-chan time.Time
}

// Mode describes how the TimeController advances simulation time.
type Mode int

const (
	// RealTime advances according to wall-clock time.
	RealTime Mode = iota
	// Accelerated advances as quickly as the loop can run while still stepping by Tick.
	Accelerated
)

// TimeController drives simulation time, fires scheduled callbacks in
// timestamp order and notifies registered listeners once per tick.
type TimeController struct {
	mu        sync.RWMutex
	StartTime time.Time
	Tick      time.Duration
	Mode      Mode

	currentTime time.Time

	// events orders callback buckets in simulation time. It is only touched
	// from the goroutine that advances the clock.
	events      *evtm.EventManager
	buckets     map[int64]*bucket
	unscheduled []*bucket
	pending     int
	barrier     int64

	listeners []func(time.Time)

	stopOnce sync.Once
	stop     chan struct{}
}

// NewTimeController constructs a controller.
func NewTimeController(start time.Time, tick time.Duration, mode Mode) *TimeController {
	return &TimeController{
		StartTime:   start,
		Tick:        tick,
		Mode:        mode,
		currentTime: start,
		events:      evtm.New(),
		buckets:     make(map[int64]*bucket),
		stop:        make(chan struct{}),
	}
}

// Now returns the current simulation time. Implements SimClock.
func (tc *TimeController) Now() time.Time {
	tc.mu.RLock()
	defer tc.mu.RUnlock()
	return tc.currentTime
}

// SetTime jumps simulation time to t, firing every callback scheduled at or
// before t.
func (tc *TimeController) SetTime(t time.Time) {
	tc.advance(t)
}

// ScheduleAt registers fn to run once simulation time reaches at. Callbacks
// due in the same step run in timestamp order, ties in registration order,
// and receive their scheduled time rather than the tick time. fn may
// schedule further callbacks.
func (tc *TimeController) ScheduleAt(at time.Time, fn func(time.Time)) {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	key := at.UnixNano()
	b, ok := tc.buckets[key]
	if !ok {
		b = &bucket{at: at}
		tc.buckets[key] = b
		tc.unscheduled = append(tc.unscheduled, b)
	}
	b.fns = append(b.fns, fn)
	tc.pending++
}

// After returns a channel that receives the scheduled simulation time after
// d has elapsed. Implements SimClock.
func (tc *TimeController) After(d time.Duration) <-chan time.Time {
	ch := make(chan time.Time, 1)
	tc.ScheduleAt(tc.Now().Add(d), func(t time.Time) { ch <- t })
	return ch
}

// Pending reports how many scheduled callbacks have not fired yet.
func (tc *TimeController) Pending() int {
	tc.mu.RLock()
	defer tc.mu.RUnlock()
	return tc.pending
}

// AddListener registers a callback invoked on every tick.
func (tc *TimeController) AddListener(fn func(time.Time)) {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	tc.listeners = append(tc.listeners, fn)
}

// Stop ends a running Start loop after the current step.
func (tc *TimeController) Stop() {
	tc.stopOnce.Do(func() { close(tc.stop) })
}

// Start runs the controller for the specified duration in a separate goroutine.
// It returns a channel that is closed when the controller finishes. In
// Accelerated mode steps follow each other without waiting.
func (tc *TimeController) Start(duration time.Duration) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)

		tc.mu.Lock()
		simTime := tc.StartTime
		tc.currentTime = simTime
		tc.mu.Unlock()

		var tick <-chan time.Time
		if tc.Mode == RealTime {
			ticker := time.NewTicker(tc.Tick)
			defer ticker.Stop()
			tick = ticker.C
		}

		elapsed := time.Duration(0)
		for {
			if duration > 0 && elapsed >= duration {
				return
			}

			if tick != nil {
				select {
				case <-tick:
				case <-tc.stop:
					return
				}
			} else {
				select {
				case <-tc.stop:
					return
				default:
				}
			}

			step := tc.Tick
			if duration > 0 && elapsed+step > duration {
				step = duration - elapsed
			}
			simTime = simTime.Add(step)
			elapsed += step
			tc.advance(simTime)
		}
	}()
	return done
}

// advance moves the clock to to. The bucket at to acts as a barrier: the
// event manager stops once it has drained, leaving later buckets queued.
func (tc *TimeController) advance(to time.Time) {
	tc.mu.Lock()
	tc.currentTime = to
	key := to.UnixNano()
	if _, ok := tc.buckets[key]; !ok {
		b := &bucket{at: to}
		tc.buckets[key] = b
		tc.unscheduled = append(tc.unscheduled, b)
	}
	tc.barrier = key
	tc.mu.Unlock()

	tc.flush()
	tc.events.Run(tc.seconds(to) + 1)

	tc.mu.RLock()
	listeners := append([]func(time.Time){}, tc.listeners...)
	tc.mu.RUnlock()
	for _, fn := range listeners {
		fn(to)
	}
}

// flush hands buckets created since the last flush to the event manager.
func (tc *TimeController) flush() {
	tc.mu.Lock()
	batch := tc.unscheduled
	tc.unscheduled = nil
	tc.mu.Unlock()

	now := tc.events.CurrentSeconds()
	for _, b := range batch {
		offset := max(tc.seconds(b.at)-now, 0)
		tc.events.Schedule(tc, b, fireBucket, vrtime.SecondsToTime(offset))
	}
}

func (tc *TimeController) seconds(t time.Time) float64 {
	return t.Sub(tc.StartTime).Seconds()
}

// fireBucket drains one bucket, including callbacks added to it while it
// runs, then stops the event manager if the bucket is the barrier.
func fireBucket(events *evtm.EventManager, context any, data any) any {
	tc := context.(*TimeController)
	b := data.(*bucket)
	key := b.at.UnixNano()
	for {
		tc.mu.Lock()
		if len(b.fns) == 0 {
			delete(tc.buckets, key)
			barrier := tc.barrier == key
			tc.mu.Unlock()
			tc.flush()
			if barrier {
				events.Stop()
			}
			return nil
		}
		fn := b.fns[0]
		b.fns = b.fns[1:]
		tc.pending--
		tc.mu.Unlock()
		fn(b.at)
	}
}

// bucket holds the callbacks due at one instant in registration order.
type bucket struct {
	at  time.Time
	fns []func(time.Time)
}
