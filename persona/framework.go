package persona

import (
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ──────────────────────────────────────────────
// Framework — reusable behavioral template
// ──────────────────────────────────────────────

// Framework is a behavioral template shared by multiple characters.
// Loaded once, read-only after.
type Framework struct {
	ID      string `yaml:"id" json:"id"`
	Purpose string `yaml:"purpose" json:"purpose"`

	// PromptTemplate is appended after the character sections when
	// compiling the system prompt.
	PromptTemplate string `yaml:"prompt_template" json:"prompt_template"`

	Decision DecisionParams `yaml:"decision" json:"decision"`

	// RequiredTools become the compiled persona's required capabilities.
	RequiredTools []string `yaml:"required_tools" json:"required_tools"`
}

// DecisionParams tune the behavior engine for personas compiled
// against this framework.
type DecisionParams struct {
	// ReactionChance is the per-message emoji reaction probability.
	ReactionChance float64 `yaml:"reaction_chance" json:"reaction_chance"`

	// AmbientInterval is the minimum gap between ambient messages
	// in one channel.
	AmbientInterval time.Duration `yaml:"ambient_interval" json:"ambient_interval"`

	// ProactiveCooldown is the minimum gap between unprompted
	// engagements in one channel.
	ProactiveCooldown time.Duration `yaml:"proactive_cooldown" json:"proactive_cooldown"`
}

// NeutralFrameworkID identifies the built-in fallback framework.
const NeutralFrameworkID = "neutral"

// NeutralFramework is the fallback used when a character declares no
// framework and the caller supplies none.
func NeutralFramework() *Framework {
	return &Framework{
		ID:      NeutralFrameworkID,
		Purpose: "conversational",
		PromptTemplate: "Stay in character. Keep replies conversational " +
			"and grounded in what you actually know.",
		Decision: DecisionParams{
			ReactionChance:    0.15,
			AmbientInterval:   6 * time.Hour,
			ProactiveCooldown: 5 * time.Minute,
		},
	}
}

// Validate checks the required fields of a framework definition.
func (f *Framework) Validate() error {
	if strings.TrimSpace(f.ID) == "" {
		return fmt.Errorf("%w: missing id", ErrMissingFramework)
	}
	return nil
}

// Defaults fills zero decision parameters from the neutral framework.
func (f *Framework) Defaults() {
	n := NeutralFramework()
	if f.Decision.ReactionChance <= 0 {
		f.Decision.ReactionChance = n.Decision.ReactionChance
	}
	if f.Decision.AmbientInterval <= 0 {
		f.Decision.AmbientInterval = n.Decision.AmbientInterval
	}
	if f.Decision.ProactiveCooldown <= 0 {
		f.Decision.ProactiveCooldown = n.Decision.ProactiveCooldown
	}
}

// DecodeFramework parses and validates a YAML framework definition.
func DecodeFramework(raw []byte) (*Framework, error) {
	var f Framework
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("decode framework: %w", err)
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	f.Defaults()
	return &f, nil
}
