package relay

import (
	"errors"
	"sync"
	"testing"
	"time"
)

func TestMachine_InitialState(t *testing.T) {
	m := NewMachine()

	if got := m.Current(); got != StateDisconnected {
		t.Errorf("Current = %s, want %s", got, StateDisconnected)
	}

	hist := m.History()
	if len(hist) != 1 {
		t.Fatalf("len(History) = %d, want 1", len(hist))
	}
	if hist[0].To != StateDisconnected {
		t.Errorf("seed entry To = %s, want %s", hist[0].To, StateDisconnected)
	}
}

func TestMachine_LegalSequence(t *testing.T) {
	m := NewMachine()

	steps := []State{
		StateConnecting,
		StateConnected,
		StateError,
		StateReconnecting,
		StateConnected,
		StateDisconnected,
		StateClosed,
		StateDisconnected,
	}

	for _, s := range steps {
		if err := m.TransitionTo(s, ""); err != nil {
			t.Fatalf("TransitionTo(%s) failed: %v", s, err)
		}
	}

	hist := m.History()
	if hist[0].To != StateDisconnected {
		t.Errorf("history must begin with %s, got %s", StateDisconnected, hist[0].To)
	}
	for i := 1; i < len(hist); i++ {
		if hist[i].From != hist[i-1].To {
			t.Errorf("history entry %d: From = %s, previous To = %s", i, hist[i].From, hist[i-1].To)
		}
		if !legalEdges[hist[i].From][hist[i].To] {
			t.Errorf("history entry %d: %s -> %s is not a legal edge", i, hist[i].From, hist[i].To)
		}
	}
}

func TestMachine_IllegalTransition(t *testing.T) {
	m := NewMachine()

	// disconnected -> connected skips connecting and must be rejected.
	err := m.TransitionTo(StateConnected, "")
	if err == nil {
		t.Fatal("expected error for illegal transition")
	}

	var invalid *InvalidTransitionError
	if !errors.As(err, &invalid) {
		t.Fatalf("expected *InvalidTransitionError, got %T", err)
	}
	if invalid.From != StateDisconnected || invalid.To != StateConnected {
		t.Errorf("error = %s -> %s, want %s -> %s", invalid.From, invalid.To, StateDisconnected, StateConnected)
	}

	// State and history are untouched.
	if got := m.Current(); got != StateDisconnected {
		t.Errorf("Current = %s, want %s after rejected transition", got, StateDisconnected)
	}
	if got := len(m.History()); got != 1 {
		t.Errorf("len(History) = %d, want 1 after rejected transition", got)
	}
}

func TestMachine_ClosedIsTerminalExceptReset(t *testing.T) {
	m := NewMachine()
	if err := m.TransitionTo(StateClosed, "shutdown"); err != nil {
		t.Fatalf("TransitionTo(closed) failed: %v", err)
	}

	for _, s := range []State{StateConnecting, StateConnected, StateError, StateReconnecting, StateClosed} {
		if m.CanTransition(s) {
			t.Errorf("CanTransition(%s) = true from closed, want false", s)
		}
	}
	if !m.CanTransition(StateDisconnected) {
		t.Error("CanTransition(disconnected) = false from closed, want true")
	}
}

func TestMachine_CanTransitionHasNoSideEffects(t *testing.T) {
	m := NewMachine()

	m.CanTransition(StateConnecting)
	m.CanTransition(StateConnected)

	if got := m.Current(); got != StateDisconnected {
		t.Errorf("Current = %s, want %s", got, StateDisconnected)
	}
	if got := len(m.History()); got != 1 {
		t.Errorf("len(History) = %d, want 1", got)
	}
}

func TestMachine_Reset(t *testing.T) {
	m := NewMachine()
	m.TransitionTo(StateConnecting, "")
	m.TransitionTo(StateError, "boom")

	m.Reset()

	if got := m.Current(); got != StateDisconnected {
		t.Errorf("Current = %s, want %s after reset", got, StateDisconnected)
	}
	if got := len(m.History()); got != 1 {
		t.Errorf("len(History) = %d, want 1 after reset", got)
	}
	if got := m.LastReason(); got != "" {
		t.Errorf("LastReason = %q, want empty after reset", got)
	}
}

func TestMachine_Dispose(t *testing.T) {
	m := NewMachine()
	m.TransitionTo(StateConnecting, "")
	m.Dispose()

	// Reads stay available.
	if got := m.Current(); got != StateConnecting {
		t.Errorf("Current = %s, want %s after dispose", got, StateConnecting)
	}
	if got := len(m.History()); got != 2 {
		t.Errorf("len(History) = %d, want 2 after dispose", got)
	}

	// Writes are usage errors.
	if err := m.TransitionTo(StateConnected, ""); !errors.Is(err, ErrMachineDisposed) {
		t.Errorf("TransitionTo after dispose = %v, want ErrMachineDisposed", err)
	}
}

func TestMachine_TransitionStream(t *testing.T) {
	m := NewMachine()

	ch, cancel := m.Transitions()
	defer cancel()

	m.TransitionTo(StateConnecting, "dialing")
	m.TransitionTo(StateConnected, "")

	want := []State{StateConnecting, StateConnected}
	for i, w := range want {
		select {
		case tr := <-ch:
			if tr.To != w {
				t.Errorf("transition %d: To = %s, want %s", i, tr.To, w)
			}
		case <-time.After(time.Second):
			t.Fatalf("timeout waiting for transition %d", i)
		}
	}

	// No extra events.
	select {
	case tr := <-ch:
		t.Errorf("unexpected extra transition to %s", tr.To)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestMachine_TimeInState(t *testing.T) {
	m := NewMachine()
	m.TransitionTo(StateConnecting, "")

	time.Sleep(20 * time.Millisecond)

	if got := m.TimeInState(); got < 20*time.Millisecond {
		t.Errorf("TimeInState = %v, want >= 20ms", got)
	}
}

func TestMachine_ConcurrentTransitionsSerialize(t *testing.T) {
	m := NewMachine()

	// Many goroutines race disconnected -> connecting. Exactly one can win;
	// the rest must fail with an invalid-transition error and no corruption.
	const n = 32
	var wg sync.WaitGroup
	wins := make(chan struct{}, n)

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := m.TransitionTo(StateConnecting, ""); err == nil {
				wins <- struct{}{}
			}
		}()
	}
	wg.Wait()
	close(wins)

	won := 0
	for range wins {
		won++
	}
	if won != 1 {
		t.Errorf("winning transitions = %d, want exactly 1", won)
	}
	if got := m.Current(); got != StateConnecting {
		t.Errorf("Current = %s, want %s", got, StateConnecting)
	}
	if got := len(m.History()); got != 2 {
		t.Errorf("len(History) = %d, want 2", got)
	}
}
