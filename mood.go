package ensemble

import (
	"fmt"
	"time"
)

// ──────────────────────────────────────────────
// Mood — bounded per-channel emotional state machine
// ──────────────────────────────────────────────

// MoodType enumerates the mood states.
type MoodType string

const (
	MoodNeutral    MoodType = "neutral"
	MoodExcited    MoodType = "excited"
	MoodFrustrated MoodType = "frustrated"
	MoodSad        MoodType = "sad"
	MoodBored      MoodType = "bored"
	MoodCurious    MoodType = "curious"
)

// Mood is the current emotional state of a persona in one channel.
type Mood struct {
	Type      MoodType  `json:"type"`
	Intensity float64   `json:"intensity"` // 0.0 .. 1.0
	StartedAt time.Time `json:"started_at"`
	Cause     string    `json:"cause,omitempty"`
}

// MoodConfig bounds how fast mood can move and how long it lasts.
type MoodConfig struct {
	// MaxDelta is the largest intensity change a single update may apply.
	MaxDelta float64
	// Durations give how long each mood holds before decaying to neutral.
	Durations map[MoodType]time.Duration
	// DecayStep is the intensity reduction applied once a mood expires.
	DecayStep float64
}

// DefaultMoodConfig returns production defaults.
func DefaultMoodConfig() MoodConfig {
	return MoodConfig{
		MaxDelta:  0.25,
		DecayStep: 0.2,
		Durations: map[MoodType]time.Duration{
			MoodExcited:    30 * time.Minute,
			MoodFrustrated: 45 * time.Minute,
			MoodSad:        60 * time.Minute,
			MoodBored:      20 * time.Minute,
			MoodCurious:    25 * time.Minute,
		},
	}
}

// sentiment tone → mood target. Neutral sentiment has no target.
var toneToMood = map[string]MoodType{
	"excited":    MoodExcited,
	"frustrated": MoodFrustrated,
	"sad":        MoodSad,
	"bored":      MoodBored,
	"curious":    MoodCurious,
}

// UpdateMood advances the mood toward the sentiment-implied target,
// moving intensity by at most MaxDelta, then applies the time-driven
// decay transition to neutral. Decay is always enabled regardless of
// sentiment. Returns the updated mood.
func UpdateMood(m Mood, s Sentiment, cfg MoodConfig, now time.Time) Mood {
	target, hasTarget := toneToMood[s.Tone]

	if hasTarget && s.Confidence > 0 {
		desired := s.Confidence
		if desired > 1 {
			desired = 1
		}
		if m.Type == target {
			m.Intensity = stepToward(m.Intensity, desired, cfg.MaxDelta)
		} else {
			// Switching moods: ramp the old mood down first; once it is
			// low enough, flip to the new mood at a bounded intensity.
			if m.Type == MoodNeutral || m.Intensity <= cfg.MaxDelta {
				m.Type = target
				m.Intensity = stepToward(0, desired, cfg.MaxDelta)
				m.StartedAt = now
				m.Cause = "sentiment:" + s.Tone
			} else {
				m.Intensity = stepToward(m.Intensity, 0, cfg.MaxDelta)
			}
		}
	}

	// Time-driven decay toward neutral.
	if m.Type != MoodNeutral {
		dur, ok := cfg.Durations[m.Type]
		if ok && now.Sub(m.StartedAt) >= dur {
			m.Intensity = stepToward(m.Intensity, 0, cfg.DecayStep)
			if m.Intensity <= 0.01 {
				m = Mood{Type: MoodNeutral, StartedAt: now}
			}
		}
	}

	m.Intensity = clamp01(m.Intensity)
	return m
}

// stepToward moves cur toward target by at most maxStep.
func stepToward(cur, target, maxStep float64) float64 {
	d := target - cur
	if d > maxStep {
		d = maxStep
	}
	if d < -maxStep {
		d = -maxStep
	}
	return clamp01(cur + d)
}

// EngagementMultiplier scales proactive engagement probability by mood.
// Energetic moods speak up; low moods hold back.
func (m Mood) EngagementMultiplier() float64 {
	switch m.Type {
	case MoodExcited:
		return 1.0 + 0.5*m.Intensity
	case MoodCurious:
		return 1.0 + 0.3*m.Intensity
	case MoodBored:
		return 1.0 - 0.3*m.Intensity
	case MoodSad:
		return 1.0 - 0.4*m.Intensity
	case MoodFrustrated:
		return 1.0 - 0.2*m.Intensity
	default:
		return 1.0
	}
}

// PromptText renders the mood as a short prompt modifier.
// Empty for neutral or faint moods.
func (m Mood) PromptText() string {
	if m.Type == MoodNeutral || m.Intensity < 0.15 {
		return ""
	}
	level := "slightly"
	switch {
	case m.Intensity >= 0.7:
		level = "very"
	case m.Intensity >= 0.4:
		level = "noticeably"
	}
	return fmt.Sprintf("Current mood: %s %s.", level, m.Type)
}

func clamp01(x float64) float64 {
	if x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}
