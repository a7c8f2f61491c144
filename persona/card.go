package persona

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ──────────────────────────────────────────────
// Character — typed identity card
// ──────────────────────────────────────────────

// Load-time errors. Each is fatal for the persona being compiled only;
// callers skip the persona and continue with the rest of the roster.
var (
	ErrMissingCharacter = errors.New("character not found")
	ErrMissingFramework = errors.New("framework not found")
	ErrInvalidCard      = errors.New("invalid character card")
)

// Character is a validated identity card. Loaded once, read-only after.
// All dynamic behavior lives in channel state, never here.
type Character struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	Description     string `json:"description"`
	Personality     string `json:"personality,omitempty"`
	Scenario        string `json:"scenario,omitempty"`
	ExampleDialogue string `json:"example_dialogue,omitempty"`

	// SystemPromptOverride, when set, replaces the generated character
	// sections of the compiled system prompt. The framework template is
	// still appended.
	SystemPromptOverride string `json:"system_prompt_override,omitempty"`
	// FrameworkID names the framework this character wants instead of
	// the caller-supplied one.
	FrameworkID string `json:"framework_id,omitempty"`

	Knowledge KnowledgeMeta `json:"knowledge,omitempty"`

	// CuriosityLevel: low|medium|high|maximum. Empty means medium.
	CuriosityLevel string `json:"curiosity_level,omitempty"`
}

// KnowledgeMeta declares what the character knows and cares about.
type KnowledgeMeta struct {
	TopicInterests   []string `json:"topic_interests,omitempty"`
	TopicAvoidances  []string `json:"topic_avoidances,omitempty"`
	ConflictTriggers []string `json:"conflict_triggers,omitempty"`
	ActivityPrefs    []string `json:"activity_prefs,omitempty"`
	// RetrievalCategories scope knowledge retrieval for this character.
	// Empty means unrestricted.
	RetrievalCategories []string `json:"retrieval_categories,omitempty"`
}

// Validate checks the required fields of an identity card.
func (c *Character) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return fmt.Errorf("%w: missing name", ErrInvalidCard)
	}
	if strings.TrimSpace(c.Description) == "" {
		return fmt.Errorf("%w: missing description", ErrInvalidCard)
	}
	return nil
}

// FirstName returns the first whitespace-separated token of the display name.
func (c *Character) FirstName() string {
	fields := strings.Fields(c.Name)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

// ──────────────────────────────────────────────
// CardDecoder — single decode boundary
// ──────────────────────────────────────────────

// CardDecoder turns a raw identity-card payload into a Character.
// Implementations exist per source format (plain JSON, embedded-metadata
// variants); the engine never branches on format beyond this boundary.
type CardDecoder interface {
	DecodeCard(raw []byte) (*Character, error)
}

// JSONCardDecoder decodes plain JSON identity cards.
type JSONCardDecoder struct{}

// DecodeCard parses and validates a JSON identity card.
func (JSONCardDecoder) DecodeCard(raw []byte) (*Character, error) {
	var c Character
	if err := json.Unmarshal(raw, &c); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCard, err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}
