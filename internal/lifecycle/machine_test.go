package lifecycle

import (
	"errors"
	"sync"
	"testing"

	"github.com/danmuck/linfa/internal/protocol"
	"github.com/danmuck/linfa/internal/testutil/testlog"
)

func TestNextCoversEveryStatusRequestPair(t *testing.T) {
	testlog.Start(t)
	const (
		I = protocol.StatusIdle
		S = protocol.StatusStarting
		R = protocol.StatusRunning
		P = protocol.StatusPaused
		X = protocol.StatusStopping
	)
	requests := []protocol.RequestType{protocol.Start, protocol.Stop, protocol.Pause, protocol.Resume, protocol.GetStatus}
	want := map[protocol.Status][]protocol.Status{
		//    START STOP PAUSE RESUME GET_STATUS
		I: {S, I, I, I, I},
		S: {S, S, S, S, S},
		R: {S, X, P, R, R},
		P: {S, X, P, R, P},
		X: {S, X, X, X, X},
	}

	pairs := 0
	for _, cur := range protocol.Statuses() {
		for i, req := range requests {
			got, changed := Next(cur, req)
			if got != want[cur][i] {
				t.Fatalf("Next(%s, %s) = %s, want %s", cur, req, got, want[cur][i])
			}
			if changed != (got != cur) {
				t.Fatalf("Next(%s, %s) changed=%v with result %s", cur, req, changed, got)
			}
			pairs++
		}
	}
	if pairs != 25 {
		t.Fatalf("expected 25 pairs, got %d", pairs)
	}
}

func TestNextIgnoresNonLifecycleRequests(t *testing.T) {
	testlog.Start(t)
	for _, req := range []protocol.RequestType{
		protocol.SetDefinition,
		protocol.GetDefinition,
		protocol.GetServiceVersion,
		protocol.GetExecutorVersion,
		protocol.Undefined,
	} {
		if got, changed := Next(protocol.StatusRunning, req); changed || got != protocol.StatusRunning {
			t.Fatalf("Next(RUNNING, %s) = %s changed=%v", req, got, changed)
		}
	}
}

func TestMachineStartsIdle(t *testing.T) {
	testlog.Start(t)
	if got := NewMachine().Load(); got != protocol.StatusIdle {
		t.Fatalf("expected IDLE, got %s", got)
	}
}

func TestMachineApplyAndHostHandshake(t *testing.T) {
	testlog.Start(t)
	m := NewMachine()
	var seen []Transition
	m.OnTransition(func(tr Transition) { seen = append(seen, tr) })

	if tr := m.Apply(protocol.Pause); tr.Changed {
		t.Fatalf("PAUSE while IDLE must be a no-op, got %+v", tr)
	}
	if tr := m.Apply(protocol.Start); !tr.Changed || tr.To != protocol.StatusStarting {
		t.Fatalf("unexpected START transition %+v", tr)
	}
	if _, err := m.Set(protocol.StatusRunning); err != nil {
		t.Fatalf("Set RUNNING: %v", err)
	}
	m.Apply(protocol.Pause)
	m.Apply(protocol.Resume)
	m.Apply(protocol.Stop)
	if _, err := m.Set(protocol.StatusIdle); err != nil {
		t.Fatalf("Set IDLE: %v", err)
	}

	want := []string{
		"IDLE->STARTING",
		"STARTING->RUNNING",
		"RUNNING->PAUSED",
		"PAUSED->RUNNING",
		"RUNNING->STOPPING",
		"STOPPING->IDLE",
	}
	if len(seen) != len(want) {
		t.Fatalf("expected %d transitions, got %d: %v", len(want), len(seen), seen)
	}
	for i := range want {
		if seen[i].String() != want[i] {
			t.Fatalf("transition %d = %s, want %s", i, seen[i], want[i])
		}
	}
	if seen[0].Origin != OriginController || seen[1].Origin != OriginHost {
		t.Fatalf("unexpected origins %s %s", seen[0].Origin, seen[1].Origin)
	}
}

func TestMachineSetRejectsUnknownStatus(t *testing.T) {
	testlog.Start(t)
	m := NewMachine()
	if _, err := m.Set(protocol.Status('Z')); !errors.Is(err, ErrInvalidStatus) {
		t.Fatalf("expected ErrInvalidStatus, got %v", err)
	}
	if got := m.Load(); got != protocol.StatusIdle {
		t.Fatalf("status changed to %s", got)
	}
}

func TestMachineSetSameStatusDoesNotNotify(t *testing.T) {
	testlog.Start(t)
	m := NewMachine()
	calls := 0
	m.OnTransition(func(Transition) { calls++ })
	tr, err := m.Set(protocol.StatusIdle)
	if err != nil {
		t.Fatalf("Set: %v", err)
	}
	if tr.Changed || calls != 0 {
		t.Fatalf("expected silent no-op, changed=%v calls=%d", tr.Changed, calls)
	}
}

func TestMachineConcurrentApplyAndSet(t *testing.T) {
	testlog.Start(t)
	m := NewMachine()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				m.Apply(protocol.Start)
				m.Apply(protocol.Pause)
				m.Apply(protocol.Stop)
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				_, _ = m.Set(protocol.StatusRunning)
				_, _ = m.Set(protocol.StatusIdle)
			}
		}()
	}
	wg.Wait()
	if !m.Load().Valid() {
		t.Fatalf("status torn: %d", uint8(m.Load()))
	}
}

func TestMachineConfirmKeepsControllerRequest(t *testing.T) {
	testlog.Start(t)
	m := NewMachine()
	var seen []Transition
	m.OnTransition(func(tr Transition) { seen = append(seen, tr) })

	m.Apply(protocol.Start)
	if _, ok, err := m.Confirm(protocol.StatusStarting, protocol.StatusRunning); err != nil || !ok {
		t.Fatalf("confirm running: ok=%v err=%v", ok, err)
	}
	m.Apply(protocol.Stop)

	// A START lands while the host is still flushing.
	if tr := m.Apply(protocol.Start); !tr.Changed || tr.To != protocol.StatusStarting {
		t.Fatalf("unexpected start transition %+v", tr)
	}
	tr, ok, err := m.Confirm(protocol.StatusStopping, protocol.StatusIdle)
	if err != nil {
		t.Fatalf("confirm idle: %v", err)
	}
	if ok || tr.Changed || tr.To != protocol.StatusStarting {
		t.Fatalf("stale confirm applied: ok=%v tr=%+v", ok, tr)
	}
	if m.Load() != protocol.StatusStarting {
		t.Fatalf("START lost: status=%s", m.Load())
	}
	if last := seen[len(seen)-1]; last.String() != "STOPPING->STARTING" {
		t.Fatalf("stale confirm notified: %s", last)
	}
}

func TestMachineConfirmRejectsUnknownStatus(t *testing.T) {
	testlog.Start(t)
	m := NewMachine()
	if _, _, err := m.Confirm(protocol.StatusIdle, protocol.Status(99)); !errors.Is(err, ErrInvalidStatus) {
		t.Fatalf("expected ErrInvalidStatus, got %v", err)
	}
	if m.Load() != protocol.StatusIdle {
		t.Fatalf("status changed on rejected confirm: %s", m.Load())
	}
}
