package ensemble

import (
	"time"
)

// ──────────────────────────────────────────────
// BehaviorState — per-channel autonomous state
// ──────────────────────────────────────────────

const (
	recentTopicCap     = 20
	recentSentimentCap = 10
)

// ConflictEntry tracks tension with one speaker in a channel.
type ConflictEntry struct {
	Tension       float64   `json:"tension"` // 0.0 .. 1.0
	LastTriggerAt time.Time `json:"last_trigger_at"`
}

// EvolutionProgress accumulates experience and unlocked milestones.
type EvolutionProgress struct {
	XP                 int64   `json:"xp"`
	UnlockedMilestones []int64 `json:"unlocked_milestones,omitempty"`
}

// BehaviorState is the full autonomous state of one channel. It is
// created lazily on the first message and mutated only under the
// channel's lock; eviction under memory pressure is the caller's call.
type BehaviorState struct {
	ChannelID string `json:"channel_id"`

	LastMessageAt    time.Time `json:"last_message_at"`
	LastBotMessageAt time.Time `json:"last_bot_message_at"`
	MessageCount     int64     `json:"message_count"`

	RecentTopics     []string  `json:"recent_topics,omitempty"`     // bounded to 20
	RecentSentiments []float64 `json:"recent_sentiments,omitempty"` // bounded to 10

	Mood      Mood   `json:"mood"`
	Contagion string `json:"contagion,omitempty"` // "" / "empathetic" / "enthusiastic"

	LastAmbientAt   time.Time `json:"last_ambient_at"`
	LastProactiveAt time.Time `json:"last_proactive_at"`

	LastCuriosityAt  time.Time            `json:"last_curiosity_at"`
	CuriosityByTopic map[string]time.Time `json:"curiosity_by_topic,omitempty"`

	Conflicts map[string]*ConflictEntry `json:"conflicts,omitempty"`

	Evolution EvolutionProgress `json:"evolution"`

	Activity *ActivityProfile `json:"activity,omitempty"`
}

// NewBehaviorState initializes state for a channel.
func NewBehaviorState(channelID string) *BehaviorState {
	return &BehaviorState{
		ChannelID:        channelID,
		Mood:             Mood{Type: MoodNeutral},
		CuriosityByTopic: map[string]time.Time{},
		Conflicts:        map[string]*ConflictEntry{},
		Activity:         NewActivityProfile(),
	}
}

// normalize repairs nil maps after a JSON round-trip so a restored
// snapshot behaves like a fresh state.
func (s *BehaviorState) normalize() {
	if s.CuriosityByTopic == nil {
		s.CuriosityByTopic = map[string]time.Time{}
	}
	if s.Conflicts == nil {
		s.Conflicts = map[string]*ConflictEntry{}
	}
	if s.Activity == nil {
		s.Activity = NewActivityProfile()
	}
	if s.Mood.Type == "" {
		s.Mood.Type = MoodNeutral
	}
}

// clone returns a deep copy. Maps, slices, and the activity profile are
// duplicated so the copy can be read or marshaled while the original
// keeps mutating under its channel lock.
func (s *BehaviorState) clone() BehaviorState {
	cp := *s
	cp.RecentTopics = append([]string(nil), s.RecentTopics...)
	cp.RecentSentiments = append([]float64(nil), s.RecentSentiments...)
	cp.Evolution.UnlockedMilestones = append([]int64(nil), s.Evolution.UnlockedMilestones...)
	if s.CuriosityByTopic != nil {
		cp.CuriosityByTopic = make(map[string]time.Time, len(s.CuriosityByTopic))
		for k, v := range s.CuriosityByTopic {
			cp.CuriosityByTopic[k] = v
		}
	}
	if s.Conflicts != nil {
		cp.Conflicts = make(map[string]*ConflictEntry, len(s.Conflicts))
		for k, v := range s.Conflicts {
			entry := *v
			cp.Conflicts[k] = &entry
		}
	}
	if s.Activity != nil {
		act := *s.Activity
		cp.Activity = &act
	}
	return cp
}

// RecordTopic pushes a topic into the bounded recent-topic buffer.
func (s *BehaviorState) RecordTopic(topic string) {
	s.RecentTopics = pushBounded(s.RecentTopics, topic, recentTopicCap)
}

// SeenTopicRecently reports whether the topic is in the recent buffer.
func (s *BehaviorState) SeenTopicRecently(topic string) bool {
	for _, t := range s.RecentTopics {
		if t == topic {
			return true
		}
	}
	return false
}

// RecordSentiment pushes a valence into the bounded sentiment buffer.
func (s *BehaviorState) RecordSentiment(valence float64) {
	s.RecentSentiments = pushBounded(s.RecentSentiments, valence, recentSentimentCap)
}

// SentimentMean returns the mean of the sentiment buffer and whether
// enough samples exist to act on it.
func (s *BehaviorState) SentimentMean(minSamples int) (float64, bool) {
	if len(s.RecentSentiments) < minSamples {
		return 0, false
	}
	var sum float64
	for _, v := range s.RecentSentiments {
		sum += v
	}
	return sum / float64(len(s.RecentSentiments)), true
}

func pushBounded[T any](buf []T, v T, max int) []T {
	buf = append(buf, v)
	if len(buf) > max {
		buf = buf[len(buf)-max:]
	}
	return buf
}
