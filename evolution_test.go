package ensemble

import (
	"testing"
)

// ══════════════════════════════════════════════
// Evolution milestones
// ══════════════════════════════════════════════

func TestAddXP_MilestonesUnlockOnceAscending(t *testing.T) {
	milestones := DefaultMilestones()
	progress := &EvolutionProgress{}

	// Monotonically increasing XP, one point at a time.
	var unlockedOrder []int64
	for i := 0; i < 6000; i++ {
		for _, m := range AddXP(progress, 1, milestones) {
			unlockedOrder = append(unlockedOrder, m.Threshold)
		}
	}

	want := []int64{50, 100, 500, 1000, 5000}
	if len(unlockedOrder) != len(want) {
		t.Fatalf("expected %d unlocks, got %v", len(want), unlockedOrder)
	}
	for i, th := range want {
		if unlockedOrder[i] != th {
			t.Fatalf("unlock %d = %d, want %d (ascending order)", i, unlockedOrder[i], th)
		}
	}
	if len(progress.UnlockedMilestones) != len(want) {
		t.Fatalf("progress recorded %v", progress.UnlockedMilestones)
	}
}

func TestAddXP_BigJumpUnlocksAllCrossed(t *testing.T) {
	progress := &EvolutionProgress{}
	unlocked := AddXP(progress, 600, DefaultMilestones())
	if len(unlocked) != 3 {
		t.Fatalf("expected 50/100/500 to unlock, got %v", unlocked)
	}
}

func TestAddXP_NeverTwice(t *testing.T) {
	milestones := DefaultMilestones()
	progress := &EvolutionProgress{}
	AddXP(progress, 60, milestones)
	if again := AddXP(progress, 1, milestones); len(again) != 0 {
		t.Fatalf("milestone unlocked twice: %v", again)
	}
}

func TestAddXP_IgnoresNonPositive(t *testing.T) {
	progress := &EvolutionProgress{XP: 10}
	if got := AddXP(progress, 0, DefaultMilestones()); got != nil {
		t.Fatal("zero XP should be a no-op")
	}
	if progress.XP != 10 {
		t.Fatalf("XP changed: %d", progress.XP)
	}
}

func TestEvolutionText(t *testing.T) {
	milestones := DefaultMilestones()
	if EvolutionText(EvolutionProgress{}, milestones) != "" {
		t.Fatal("no unlocks should render no modifier")
	}
	p := EvolutionProgress{}
	AddXP(&p, 120, milestones)
	text := EvolutionText(p, milestones)
	if text == "" {
		t.Fatal("unlocked milestones should render a modifier")
	}
}
