package timectrl

import (
	"testing"
	"time"
)

var epoch = time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC)

func TestTimeControllerSetTime(t *testing.T) {
	tc := NewTimeController(epoch, time.Second, RealTime)

	newNow := epoch.Add(42 * time.Second)
	tc.SetTime(newNow)

	if got := tc.Now(); !got.Equal(newNow) {
		t.Fatalf("Now() = %v, want %v", got, newNow)
	}
}

func TestTimeControllerStartUpdatesNow(t *testing.T) {
	tc := NewTimeController(epoch, 5*time.Millisecond, Accelerated)

	done := tc.Start(15 * time.Millisecond)
	<-done

	expected := epoch.Add(15 * time.Millisecond)
	if got := tc.Now(); !got.Equal(expected) {
		t.Fatalf("Now() = %v, want %v", got, expected)
	}
}

func TestStartClampsLastStep(t *testing.T) {
	tc := NewTimeController(epoch, 4*time.Second, Accelerated)
	<-tc.Start(10 * time.Second)

	if got, want := tc.Now(), epoch.Add(10*time.Second); !got.Equal(want) {
		t.Fatalf("Now() = %v, want %v", got, want)
	}
}

func TestScheduleAtFiresInTimestampOrder(t *testing.T) {
	tc := NewTimeController(epoch, time.Second, Accelerated)

	var fired []time.Duration
	record := func(at time.Time) { fired = append(fired, at.Sub(epoch)) }
	tc.ScheduleAt(epoch.Add(700*time.Millisecond), record)
	tc.ScheduleAt(epoch.Add(200*time.Millisecond), record)
	tc.ScheduleAt(epoch.Add(1500*time.Millisecond), record)
	tc.ScheduleAt(epoch.Add(5*time.Second), record)

	<-tc.Start(2 * time.Second)

	want := []time.Duration{200 * time.Millisecond, 700 * time.Millisecond, 1500 * time.Millisecond}
	if len(fired) != len(want) {
		t.Fatalf("fired %v, want %v", fired, want)
	}
	for i := range want {
		if fired[i] != want[i] {
			t.Fatalf("fired[%d] = %v, want %v", i, fired[i], want[i])
		}
	}
	if got := tc.Pending(); got != 1 {
		t.Fatalf("Pending() = %d, want 1", got)
	}
}

func TestScheduleAtTiesKeepRegistrationOrder(t *testing.T) {
	tc := NewTimeController(epoch, time.Second, Accelerated)
	at := epoch.Add(time.Second)

	var order []string
	tc.ScheduleAt(at, func(time.Time) { order = append(order, "sink") })
	tc.ScheduleAt(at, func(time.Time) { order = append(order, "source") })
	tc.SetTime(at)

	if len(order) != 2 || order[0] != "sink" || order[1] != "source" {
		t.Fatalf("order = %v, want [sink source]", order)
	}
}

func TestCallbacksCanReschedule(t *testing.T) {
	tc := NewTimeController(epoch, time.Second, Accelerated)

	count := 0
	var tickFn func(time.Time)
	tickFn = func(at time.Time) {
		count++
		tc.ScheduleAt(at.Add(100*time.Millisecond), tickFn)
	}
	tc.ScheduleAt(epoch, tickFn)

	<-tc.Start(time.Second)

	// 0, 100ms, ..., 1s inclusive.
	if count != 11 {
		t.Fatalf("callback ran %d times, want 11", count)
	}
}

func TestAfterFiresOnSimulatedTime(t *testing.T) {
	tc := NewTimeController(epoch, time.Second, Accelerated)
	ch := tc.After(3 * time.Second)

	tc.SetTime(epoch.Add(2 * time.Second))
	select {
	case got := <-ch:
		t.Fatalf("After fired early at %v", got)
	default:
	}

	tc.SetTime(epoch.Add(3 * time.Second))
	select {
	case got := <-ch:
		if want := epoch.Add(3 * time.Second); !got.Equal(want) {
			t.Fatalf("After delivered %v, want %v", got, want)
		}
	default:
		t.Fatalf("After did not fire")
	}
}

func TestListenersSeeEveryTick(t *testing.T) {
	tc := NewTimeController(epoch, 250*time.Millisecond, Accelerated)
	ticks := 0
	tc.AddListener(func(time.Time) { ticks++ })
	<-tc.Start(time.Second)
	if ticks != 4 {
		t.Fatalf("listener saw %d ticks, want 4", ticks)
	}
}

func TestStopEndsRun(t *testing.T) {
	tc := NewTimeController(epoch, time.Millisecond, RealTime)
	done := tc.Start(0)
	tc.Stop()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("controller did not stop")
	}
}

func TestLaterCallbacksSurviveEarlierSteps(t *testing.T) {
	tc := NewTimeController(epoch, time.Second, Accelerated)

	var fired []time.Duration
	record := func(at time.Time) { fired = append(fired, at.Sub(epoch)) }
	tc.ScheduleAt(epoch.Add(2500*time.Millisecond), record)
	tc.ScheduleAt(epoch.Add(1250*time.Millisecond), record)

	tc.SetTime(epoch.Add(time.Second))
	if len(fired) != 0 || tc.Pending() != 2 {
		t.Fatalf("after 1s: fired %v, pending %d; want none fired, 2 pending", fired, tc.Pending())
	}
	tc.SetTime(epoch.Add(2 * time.Second))
	if len(fired) != 1 || fired[0] != 1250*time.Millisecond {
		t.Fatalf("after 2s: fired %v, want [1.25s]", fired)
	}

	// A callback registered in the past runs on the next step.
	tc.ScheduleAt(epoch.Add(500*time.Millisecond), record)
	tc.SetTime(epoch.Add(3 * time.Second))
	want := []time.Duration{1250 * time.Millisecond, 500 * time.Millisecond, 2500 * time.Millisecond}
	if len(fired) != len(want) {
		t.Fatalf("after 3s: fired %v, want %v", fired, want)
	}
	for i := range want {
		if fired[i] != want[i] {
			t.Fatalf("fired[%d] = %v, want %v", i, fired[i], want[i])
		}
	}
	if got := tc.Pending(); got != 0 {
		t.Fatalf("Pending() = %d, want 0", got)
	}
}
