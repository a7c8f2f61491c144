package ensemble

import (
	"fmt"
	"testing"
	"time"
)

// ══════════════════════════════════════════════
// RelationshipStore
// ══════════════════════════════════════════════

func TestRecordInteraction_AffinityAlwaysInRange(t *testing.T) {
	s := NewRelationshipStore(DefaultBanterConfig())

	for _, delta := range []float64{500, -800, 3, -3, 99, -0.5} {
		r := s.RecordInteraction("a", "b", delta, "memory")
		if r.Affinity < 0 || r.Affinity > 100 {
			t.Fatalf("affinity out of range after delta %.1f: %.1f", delta, r.Affinity)
		}
	}
}

func TestRaiseTension_AlwaysInRange(t *testing.T) {
	s := NewRelationshipStore(DefaultBanterConfig())
	for i := 0; i < 10; i++ {
		if v := s.RaiseTension("a", "b", 0.4); v < 0 || v > 1 {
			t.Fatalf("tension out of range: %.2f", v)
		}
	}
	if got := s.GetTension("a", "b"); got != 1.0 {
		t.Fatalf("repeated triggers should saturate at 1.0, got %.2f", got)
	}
}

func TestTension_LinearDecay(t *testing.T) {
	s := NewRelationshipStore(DefaultBanterConfig())
	now := time.Now()
	s.now = func() time.Time { return now }

	s.RaiseTension("a", "b", 0.8)
	now = now.Add(4 * time.Hour) // 4h * 0.10/h = 0.4 decay

	got := s.GetTension("a", "b")
	if got < 0.35 || got > 0.45 {
		t.Fatalf("expected ~0.4 after decay, got %.2f", got)
	}

	now = now.Add(24 * time.Hour)
	if got := s.GetTension("a", "b"); got != 0 {
		t.Fatalf("tension should fully decay, got %.2f", got)
	}
}

func TestGetBanterChance_Bounds(t *testing.T) {
	cfg := DefaultBanterConfig()
	s := NewRelationshipStore(cfg)

	// Max affinity, no tension: bounded by Max.
	for i := 0; i < 200; i++ {
		s.RecordInteraction("a", "b", 1, "")
	}
	if got := s.GetBanterChance("a", "b"); got > cfg.Max {
		t.Fatalf("banter chance %.2f above ceiling %.2f", got, cfg.Max)
	}

	// Maximum tension: never below zero.
	s.RaiseTension("c", "d", 1)
	if got := s.GetBanterChance("c", "d"); got < 0 {
		t.Fatalf("banter chance below zero: %.2f", got)
	}
}

func TestGetBanterChance_Formula(t *testing.T) {
	cfg := BanterConfig{Base: 0.05, AffinityRange: 0.30, TensionPenalty: 0.25, Max: 1, TensionDecayPerHour: 0}
	s := NewRelationshipStore(cfg)
	for i := 0; i < 40; i++ {
		s.RecordInteraction("a", "b", 1, "") // affinity 10 -> 50
	}
	want := 0.05 + 0.5*0.30
	if got := s.GetBanterChance("a", "b"); got < want-0.01 || got > want+0.01 {
		t.Fatalf("banter chance = %.3f, want %.3f", got, want)
	}
}

func TestStages_Thresholds(t *testing.T) {
	cases := []struct {
		affinity float64
		stage    RelationshipStage
	}{
		{0, StageStrangers},
		{25, StageAcquaintances},
		{45, StageFrenemies},
		{60, StageFriends},
		{90, StageBesties},
	}
	for _, tc := range cases {
		if got := stageFor(tc.affinity); got != tc.stage {
			t.Fatalf("affinity %.0f → %s, want %s", tc.affinity, got, tc.stage)
		}
	}
}

func TestSharedMemories_Bounded(t *testing.T) {
	s := NewRelationshipStore(DefaultBanterConfig())
	var last *Relationship
	for i := 0; i < 25; i++ {
		last = s.RecordInteraction("a", "b", 0, fmt.Sprintf("memory %d", i))
	}
	if len(last.SharedMemories) != sharedMemoryCap {
		t.Fatalf("expected %d memories, got %d", sharedMemoryCap, len(last.SharedMemories))
	}
	if last.SharedMemories[0] != "memory 15" {
		t.Fatalf("oldest memories should be evicted, got %q first", last.SharedMemories[0])
	}
}

func TestPairKey_Unordered(t *testing.T) {
	if pairKey("a", "b") != pairKey("b", "a") {
		t.Fatal("pair key must be order independent")
	}
}

func TestRestore_ClampsCorruptValues(t *testing.T) {
	s := NewRelationshipStore(DefaultBanterConfig())
	s.Restore(map[string]Relationship{
		"a|b": {Affinity: 900, Tension: -3},
	})
	if got := s.GetAffinity("a", "b"); got != 100 {
		t.Fatalf("restored affinity not clamped: %.1f", got)
	}
	if got := s.GetTension("a", "b"); got != 0 {
		t.Fatalf("restored tension not clamped: %.1f", got)
	}
	if got := s.GetStage("a", "b"); got != StageBesties {
		t.Fatalf("stage not recomputed on restore: %s", got)
	}
}
