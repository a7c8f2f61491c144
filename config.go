package ensemble

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// ──────────────────────────────────────────────
// Configuration
// ──────────────────────────────────────────────

// AmbientConfig gates the unprompted lull messages sent on tick.
type AmbientConfig struct {
	// Silence window: ambient fires only when the channel has been quiet
	// for at least SilenceMin and at most SilenceMax.
	SilenceMin time.Duration `env:"ENSEMBLE_AMBIENT_SILENCE_MIN" envDefault:"1h"`
	SilenceMax time.Duration `env:"ENSEMBLE_AMBIENT_SILENCE_MAX" envDefault:"8h"`
	// MinInterval is the hard floor between ambient messages per channel.
	MinInterval time.Duration `env:"ENSEMBLE_AMBIENT_MIN_INTERVAL" envDefault:"6h"`
	// Chance is the per-evaluation probability before activity scaling.
	Chance float64 `env:"ENSEMBLE_AMBIENT_CHANCE" envDefault:"0.1667"`
}

// EngineConfig tunes the behavior engine. Zero values are filled by
// DefaultEngineConfig; library callers never need environment variables.
type EngineConfig struct {
	StickyWindow time.Duration `env:"ENSEMBLE_STICKY_WINDOW" envDefault:"5m"`
	TickInterval time.Duration `env:"ENSEMBLE_TICK_INTERVAL" envDefault:"60s"`

	// ContagionMinSamples is how many sentiment samples must exist
	// before the contagion modifier can flip.
	ContagionMinSamples   int     `env:"ENSEMBLE_CONTAGION_MIN_SAMPLES" envDefault:"5"`
	ContagionPosThreshold float64 `env:"ENSEMBLE_CONTAGION_POS" envDefault:"0.3"`
	ContagionNegThreshold float64 `env:"ENSEMBLE_CONTAGION_NEG" envDefault:"-0.3"`

	// ProactiveBase is the baseline unprompted-engagement probability
	// before interest, mood, and conflict modifiers.
	ProactiveBase      float64 `env:"ENSEMBLE_PROACTIVE_BASE" envDefault:"0.1"`
	InterestMultiplier float64 `env:"ENSEMBLE_INTEREST_MULTIPLIER" envDefault:"1.5"`
	ConflictPenalty    float64 `env:"ENSEMBLE_CONFLICT_PENALTY" envDefault:"0.3"`

	// ConflictStep is the tension increase applied per trigger hit.
	ConflictStep float64 `env:"ENSEMBLE_CONFLICT_STEP" envDefault:"0.25"`

	// ExternalSentiment routes tone classification through the decision
	// collaborator. The local keyword classifier remains the fallback.
	ExternalSentiment bool `env:"ENSEMBLE_EXTERNAL_SENTIMENT" envDefault:"false"`

	// DeciderTimeout bounds every decision-collaborator call.
	DeciderTimeout time.Duration `env:"ENSEMBLE_DECIDER_TIMEOUT" envDefault:"3s"`
	// VetoHistory is how many recent messages the unwelcome-veto sees.
	VetoHistory int `env:"ENSEMBLE_VETO_HISTORY" envDefault:"5"`

	Ambient   AmbientConfig
	Curiosity CuriosityConfig
	Mood      MoodConfig
	Banter    BanterConfig
}

// DefaultEngineConfig returns production defaults without touching
// the environment.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		StickyWindow:          5 * time.Minute,
		TickInterval:          60 * time.Second,
		ContagionMinSamples:   5,
		ContagionPosThreshold: 0.3,
		ContagionNegThreshold: -0.3,
		ProactiveBase:         0.1,
		InterestMultiplier:    1.5,
		ConflictPenalty:       0.3,
		ConflictStep:          0.25,
		DeciderTimeout:        3 * time.Second,
		VetoHistory:           5,
		Ambient: AmbientConfig{
			SilenceMin:  1 * time.Hour,
			SilenceMax:  8 * time.Hour,
			MinInterval: 6 * time.Hour,
			Chance:      1.0 / 6.0,
		},
		Curiosity: DefaultCuriosityConfig(),
		Mood:      DefaultMoodConfig(),
		Banter:    DefaultBanterConfig(),
	}
}

// LoadEngineConfig reads configuration from the environment, loading a
// .env file first when one exists.
func LoadEngineConfig() (EngineConfig, error) {
	_ = godotenv.Load() // no .env file is fine

	cfg := DefaultEngineConfig()
	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("parse engine config: %w", err)
	}
	cfg.fillZeros()
	return cfg, nil
}

// fillZeros repairs fields env parsing cannot default (nested structs
// without tags and maps).
func (c *EngineConfig) fillZeros() {
	def := DefaultEngineConfig()
	if c.Curiosity.TopicCooldown <= 0 {
		c.Curiosity = def.Curiosity
	}
	if c.Mood.MaxDelta <= 0 {
		c.Mood = def.Mood
	}
	if c.Banter.Max <= 0 {
		c.Banter = def.Banter
	}
	if c.Ambient.MinInterval <= 0 {
		c.Ambient = def.Ambient
	}
}
