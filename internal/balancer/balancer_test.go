package balancer

import (
	"testing"
	"time"

	"github.com/nostrvine/relaypool/internal/relay"
)

func testRelays(urls ...string) []*relay.Relay {
	out := make([]*relay.Relay, len(urls))
	for i, u := range urls {
		out[i] = relay.New(u, relay.Config{})
	}
	return out
}

func TestNew_UnknownStrategy(t *testing.T) {
	if _, err := New("weighted"); err == nil {
		t.Error("expected error for unknown strategy")
	}
}

func TestRoundRobin_TwoFullPasses(t *testing.T) {
	b, err := New(RoundRobin)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	candidates := testRelays("wss://a", "wss://b", "wss://c")

	want := []string{"wss://a", "wss://b", "wss://c", "wss://a", "wss://b", "wss://c"}
	for i, w := range want {
		got, err := b.Select(candidates)
		if err != nil {
			t.Fatalf("Select %d failed: %v", i, err)
		}
		if got.URL() != w {
			t.Errorf("Select %d = %s, want %s", i, got.URL(), w)
		}
	}
}

func TestRoundRobin_CursorPerInstance(t *testing.T) {
	b1, _ := New(RoundRobin)
	b2, _ := New(RoundRobin)

	candidates := testRelays("wss://a", "wss://b")

	b1.Select(candidates)

	// A fresh balancer starts from the beginning regardless of b1's cursor.
	got, _ := b2.Select(candidates)
	if got.URL() != "wss://a" {
		t.Errorf("fresh balancer selected %s, want wss://a", got.URL())
	}
}

func TestRoundRobin_EmptyCandidates(t *testing.T) {
	b, _ := New(RoundRobin)
	if _, err := b.Select(nil); err != ErrNoCandidates {
		t.Errorf("Select(nil) = %v, want ErrNoCandidates", err)
	}
}

func TestLeastConnections(t *testing.T) {
	b, _ := New(LeastConnections)

	candidates := testRelays("wss://a", "wss://b", "wss://c")
	candidates[0].BeginSend()
	candidates[0].BeginSend()
	candidates[2].BeginSend()

	got, err := b.Select(candidates)
	if err != nil {
		t.Fatalf("Select failed: %v", err)
	}
	if got.URL() != "wss://b" {
		t.Errorf("Select = %s, want wss://b (zero in-flight)", got.URL())
	}
}

func TestLeastConnections_TieBreaksByOrder(t *testing.T) {
	b, _ := New(LeastConnections)

	candidates := testRelays("wss://a", "wss://b")

	got, _ := b.Select(candidates)
	if got.URL() != "wss://a" {
		t.Errorf("Select = %s, want wss://a on tie", got.URL())
	}
}

func TestLowestLatency(t *testing.T) {
	b, _ := New(LowestLatency)

	candidates := testRelays("wss://a", "wss://b", "wss://c")
	candidates[0].ObserveLatency(300 * time.Millisecond)
	candidates[1].ObserveLatency(100 * time.Millisecond)
	candidates[2].ObserveLatency(200 * time.Millisecond)

	got, err := b.Select(candidates)
	if err != nil {
		t.Fatalf("Select failed: %v", err)
	}
	if got.URL() != "wss://b" {
		t.Errorf("Select = %s, want wss://b", got.URL())
	}
}

func TestLowestLatency_NoSampleRanksBest(t *testing.T) {
	b, _ := New(LowestLatency)

	candidates := testRelays("wss://a", "wss://b")
	candidates[0].ObserveLatency(10 * time.Millisecond)
	// wss://b has no samples and reports zero latency.

	got, _ := b.Select(candidates)
	if got.URL() != "wss://b" {
		t.Errorf("Select = %s, want wss://b (unsampled ranks best)", got.URL())
	}
}

func TestStrategies_DoNotMutateCandidates(t *testing.T) {
	for _, s := range []Strategy{RoundRobin, LeastConnections, LowestLatency} {
		b, err := New(s)
		if err != nil {
			t.Fatalf("New(%s) failed: %v", s, err)
		}
		candidates := testRelays("wss://a", "wss://b")
		b.Select(candidates)

		if candidates[0].URL() != "wss://a" || candidates[1].URL() != "wss://b" {
			t.Errorf("strategy %s reordered candidates", s)
		}
	}
}
