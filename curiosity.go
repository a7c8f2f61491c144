package ensemble

import (
	"context"
	"fmt"
	"time"
)

// ──────────────────────────────────────────────
// Curiosity — cooldown-gated follow-up questions
// ──────────────────────────────────────────────

// Curiosity levels map to fixed base probabilities.
const (
	CuriosityLow     = "low"
	CuriosityMedium  = "medium"
	CuriosityHigh    = "high"
	CuriosityMaximum = "maximum"
)

// curiosityBaseChance returns the trigger probability for a level.
// Unknown or empty levels behave as medium.
func curiosityBaseChance(level string) float64 {
	switch level {
	case CuriosityLow:
		return 0.1
	case CuriosityHigh:
		return 0.6
	case CuriosityMaximum:
		return 0.8
	default:
		return 0.3
	}
}

// CuriosityConfig gates follow-up questions.
type CuriosityConfig struct {
	// TopicCooldown is the minimum gap before asking about the same topic.
	TopicCooldown time.Duration
	// WindowCooldown caps how often any follow-up fires in a channel.
	WindowCooldown time.Duration
	// MaxQuestionTokens bounds the generated question.
	MaxQuestionTokens int
}

// DefaultCuriosityConfig returns production defaults.
func DefaultCuriosityConfig() CuriosityConfig {
	return CuriosityConfig{
		TopicCooldown:     5 * time.Minute,
		WindowCooldown:    15 * time.Minute,
		MaxQuestionTokens: 60,
	}
}

// maybeFollowUp runs the curiosity decision for one message under the
// channel lock. It emits at most one follow-up question: the level
// probability must trigger, both cooldowns must have expired, and the
// topic must not sit in the channel's recent-topic memory. A successful
// emission records the topic and resets both cooldowns.
func (e *BehaviorEngine) maybeFollowUp(ctx context.Context, st *BehaviorState, level, topic string) string {
	if topic == "" {
		return ""
	}
	now := e.now()

	if !e.roll(curiosityBaseChance(level)) {
		return ""
	}
	if now.Sub(st.LastCuriosityAt) < e.cfg.Curiosity.WindowCooldown {
		return ""
	}
	if last, ok := st.CuriosityByTopic[topic]; ok && now.Sub(last) < e.cfg.Curiosity.TopicCooldown {
		return ""
	}
	if st.SeenTopicRecently(topic) {
		return ""
	}

	prompt := fmt.Sprintf(
		"Write one short, natural follow-up question about %q. "+
			"One sentence, no preamble.", topic)
	question := e.decider.QuickGenerate(ctx, prompt, e.cfg.Curiosity.MaxQuestionTokens)
	if question == "" {
		return "" // collaborator unavailable: no-op, cooldowns untouched
	}

	st.RecordTopic(topic)
	st.CuriosityByTopic[topic] = now
	st.LastCuriosityAt = now
	return question
}
