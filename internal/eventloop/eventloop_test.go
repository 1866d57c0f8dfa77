package eventloop

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

type fakeRunner struct {
	fired      []int
	settled    map[int]Completion
	microtasks int
	onFire     func(id int)
}

func (f *fakeRunner) FireTimer(id int) {
	f.fired = append(f.fired, id)
	if f.onFire != nil {
		f.onFire(id)
	}
}

func (f *fakeRunner) Settle(id int, c Completion) {
	if f.settled == nil {
		f.settled = make(map[int]Completion)
	}
	f.settled[id] = c
}

func (f *fakeRunner) RunMicrotasks() { f.microtasks++ }

func TestEventLoop_TimersFireInDeadlineOrder(t *testing.T) {
	el := New()
	late := el.RegisterTimer(20*time.Millisecond, false)
	early := el.RegisterTimer(1*time.Millisecond, false)

	rt := &fakeRunner{}
	if err := el.Drain(context.Background(), rt); err != nil {
		t.Fatalf("Drain: %v", err)
	}
	if diff := cmp.Diff([]int{early, late}, rt.fired); diff != "" {
		t.Errorf("fired (-want +got):\n%s", diff)
	}
	if rt.microtasks != 2 {
		t.Errorf("microtask checkpoints = %d, want 2", rt.microtasks)
	}
	if el.HasPending() {
		t.Error("loop still has pending work")
	}
}

func TestEventLoop_ClearedTimerDoesNotFire(t *testing.T) {
	el := New()
	id := el.RegisterTimer(time.Millisecond, false)
	if !el.ClearTimer(id) {
		t.Fatal("ClearTimer reported the timer as not live")
	}
	if el.ClearTimer(id) {
		t.Error("second ClearTimer reported a live timer")
	}
	rt := &fakeRunner{}
	el.Drain(context.Background(), rt)
	if len(rt.fired) != 0 {
		t.Errorf("fired = %v, want none", rt.fired)
	}
}

func TestEventLoop_IntervalRepeatsUntilCleared(t *testing.T) {
	el := New()
	var id int
	rt := &fakeRunner{}
	rt.onFire = func(fired int) {
		if len(rt.fired) == 3 {
			el.ClearTimer(fired)
		}
	}
	id = el.RegisterTimer(0, true)
	el.Drain(context.Background(), rt)
	if diff := cmp.Diff([]int{id, id, id}, rt.fired); diff != "" {
		t.Errorf("fired (-want +got):\n%s", diff)
	}
}

func TestEventLoop_SettlesPendingTasks(t *testing.T) {
	el := New()
	ch := make(chan Completion, 1)
	el.AddPending(&PendingTask{ResultCh: ch, ID: 7})
	go func() {
		time.Sleep(5 * time.Millisecond)
		ch <- Completion{Value: "ok"}
	}()

	rt := &fakeRunner{}
	if err := el.Drain(context.Background(), rt); err != nil {
		t.Fatalf("Drain: %v", err)
	}
	if got := rt.settled[7]; got.Value != "ok" || got.Err != nil {
		t.Errorf("settled = %+v, want ok", got)
	}
}

func TestEventLoop_DrainStopsAtContextDeadline(t *testing.T) {
	el := New()
	el.RegisterTimer(time.Hour, false)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := el.Drain(ctx, &fakeRunner{})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("err = %v, want DeadlineExceeded", err)
	}
	if time.Since(start) > time.Second {
		t.Error("Drain did not return at the deadline")
	}
	if !el.HasPending() {
		t.Error("timer dropped although it never fired")
	}
}

func TestEventLoop_Reset(t *testing.T) {
	el := New()
	el.RegisterTimer(time.Hour, true)
	el.AddPending(&PendingTask{ResultCh: make(chan Completion), ID: 1})
	el.Reset()
	if el.HasPending() {
		t.Error("pending work survived Reset")
	}
	if id := el.RegisterTimer(0, false); id != 1 {
		t.Errorf("id after Reset = %d, want 1", id)
	}
}
