package ensemble

import (
	"context"
	"testing"
	"time"

	"github.com/emberworks/ensemble-sdk-go/persona"
)

// ══════════════════════════════════════════════
// Ambient scan over a simulated multi-day clock
// ══════════════════════════════════════════════

func TestScan_MinIntervalAcrossLulls(t *testing.T) {
	d := &stubDecider{decide: true}
	e := newTestEngine(d, alwaysRoll())
	t0 := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	now := t0
	e.now = func() time.Time { return now }

	p := enginePersona("Ash", persona.KnowledgeMeta{}, "", 0)
	e.OnMessage(context.Background(), p, humanMsg("c1", "u1", "last words before the lull", t0), true)

	var fires []time.Time
	tk := NewAmbientTicker(e, func(Directive) { fires = append(fires, now) })

	// Two days of scans on a 30-minute grid, with one fresh message a
	// day in. The paired lulls each allow exactly two ambient messages.
	for step := 1; step <= 96; step++ {
		now = t0.Add(time.Duration(step) * 30 * time.Minute)
		if now.Equal(t0.Add(24 * time.Hour)) {
			e.OnMessage(context.Background(), p, humanMsg("c1", "u1", "back for a moment", now), true)
		}
		tk.Scan(context.Background())
	}

	want := []time.Duration{1 * time.Hour, 7 * time.Hour, 25 * time.Hour, 31 * time.Hour}
	if len(fires) != len(want) {
		t.Fatalf("expected %d ambient fires, got %d at %v", len(want), len(fires), fires)
	}
	for i, offset := range want {
		if !fires[i].Equal(t0.Add(offset)) {
			t.Fatalf("fire %d at %v, want %v", i, fires[i], t0.Add(offset))
		}
	}
	minInterval := e.cfg.Ambient.MinInterval
	for i := 1; i < len(fires); i++ {
		if gap := fires[i].Sub(fires[i-1]); gap < minInterval {
			t.Fatalf("fires %d and %d only %v apart", i-1, i, gap)
		}
	}
}

func TestScan_PersonaFloorRaisesMinInterval(t *testing.T) {
	d := &stubDecider{decide: true}
	e := newTestEngine(d, alwaysRoll())
	t0 := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	now := t0
	e.now = func() time.Time { return now }

	p := enginePersona("Ash", persona.KnowledgeMeta{}, "", 0)
	e.OnMessage(context.Background(), p, humanMsg("c1", "u1", "hello", t0), true)

	// The same grid fires at +1h and +7h under the engine default; a
	// 12-hour persona floor leaves only the first.
	var fires []time.Time
	tk := NewAmbientTicker(e, func(Directive) { fires = append(fires, now) })
	tk.Floor = func(string) time.Duration { return 12 * time.Hour }

	for step := 1; step <= 48; step++ {
		now = t0.Add(time.Duration(step) * 30 * time.Minute)
		tk.Scan(context.Background())
	}
	if len(fires) != 1 || !fires[0].Equal(t0.Add(time.Hour)) {
		t.Fatalf("expected a single fire at +1h, got %v", fires)
	}
}

func TestScan_SilentChannelNeverFires(t *testing.T) {
	d := &stubDecider{decide: true}
	e := newTestEngine(d, alwaysRoll())
	t0 := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	now := t0
	e.now = func() time.Time { return now }

	// Channel exists but has never seen a message.
	_ = e.StateView("c-empty")

	fired := false
	tk := NewAmbientTicker(e, func(Directive) { fired = true })
	for step := 1; step <= 48; step++ {
		now = t0.Add(time.Duration(step) * time.Hour)
		tk.Scan(context.Background())
	}
	if fired {
		t.Fatal("a channel with no message history must never fire")
	}
}

func TestScan_VetoSuppressesWithoutConsumingInterval(t *testing.T) {
	d := &stubDecider{decide: false}
	e := newTestEngine(d, alwaysRoll())
	t0 := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	now := t0
	e.now = func() time.Time { return now }

	p := enginePersona("Ash", persona.KnowledgeMeta{}, "", 0)
	e.OnMessage(context.Background(), p, humanMsg("c1", "u1", "hello", t0), true)

	fired := false
	tk := NewAmbientTicker(e, func(Directive) { fired = true })
	for step := 1; step <= 16; step++ {
		now = t0.Add(time.Duration(step) * 30 * time.Minute)
		tk.Scan(context.Background())
	}
	if fired {
		t.Fatal("vetoed scans must never fire")
	}
	if !e.StateView("c1").LastAmbientAt.IsZero() {
		t.Fatal("a vetoed scan must not stamp the ambient time")
	}
}

func TestTicker_StartStopIdempotent(t *testing.T) {
	e := newTestEngine(nil, neverRoll())
	tk := NewAmbientTicker(e, nil)

	tk.Start()
	tk.Start() // second start is a no-op
	tk.Stop()
	tk.Stop() // second stop is a no-op
}
