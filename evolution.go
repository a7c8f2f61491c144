package ensemble

import (
	"fmt"
	"strings"
)

// ──────────────────────────────────────────────
// Evolution — cumulative-XP milestone unlocks
// ──────────────────────────────────────────────

// Milestone pairs an XP threshold with the traits it unlocks.
type Milestone struct {
	Threshold int64    `json:"threshold"`
	Traits    []string `json:"traits"`
}

// DefaultMilestones returns the standard ascending milestone ladder.
func DefaultMilestones() []Milestone {
	return []Milestone{
		{Threshold: 50, Traits: []string{"familiar with the channel's regulars"}},
		{Threshold: 100, Traits: []string{"references shared running jokes"}},
		{Threshold: 500, Traits: []string{"anticipates recurring topics"}},
		{Threshold: 1000, Traits: []string{"comfortable enough to gently tease"}},
		{Threshold: 5000, Traits: []string{"treats the channel as an old haunt"}},
	}
}

// AddXP adds experience and unlocks any newly crossed milestones, each
// exactly once and only in ascending threshold order. Returns the
// milestones unlocked by this call.
func AddXP(progress *EvolutionProgress, amount int64, milestones []Milestone) []Milestone {
	if amount <= 0 {
		return nil
	}
	progress.XP += amount

	var unlocked []Milestone
	for _, m := range milestones {
		if progress.XP < m.Threshold {
			break // milestones are ascending; nothing further can unlock
		}
		if hasMilestone(progress, m.Threshold) {
			continue
		}
		progress.UnlockedMilestones = append(progress.UnlockedMilestones, m.Threshold)
		unlocked = append(unlocked, m)
	}
	return unlocked
}

func hasMilestone(progress *EvolutionProgress, threshold int64) bool {
	for _, t := range progress.UnlockedMilestones {
		if t == threshold {
			return true
		}
	}
	return false
}

// EvolutionText renders the unlocked traits as a prompt modifier.
// Empty when nothing is unlocked.
func EvolutionText(progress EvolutionProgress, milestones []Milestone) string {
	var traits []string
	for _, m := range milestones {
		if hasMilestone(&progress, m.Threshold) {
			traits = append(traits, m.Traits...)
		}
	}
	if len(traits) == 0 {
		return ""
	}
	return fmt.Sprintf("Evolved traits: %s.", strings.Join(traits, "; "))
}
