package persona

import (
	"crypto/sha256"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

// ──────────────────────────────────────────────
// Compiler — Character + Framework → CompiledPersona
// ──────────────────────────────────────────────

// CompiledPersona is the immutable merge of one Character and one
// Framework. It is never mutated after compilation; all dynamic
// behavior lives in channel state.
type CompiledPersona struct {
	PersonaID            string
	Character            *Character
	Framework            *Framework
	SystemPrompt         string
	RequiredCapabilities []string
}

// Name returns the persona's display name.
func (p *CompiledPersona) Name() string { return p.Character.Name }

// Compiler builds and caches CompiledPersonas from loaded characters
// and frameworks. Reads are lock-free on a copy-on-write cache map;
// recompilation is single-writer.
type Compiler struct {
	characters map[string]*Character
	frameworks map[string]*Framework

	mu    sync.Mutex // guards cache replacement
	cache map[string]*CompiledPersona

	log zerolog.Logger
}

// NewCompiler creates a compiler over the given definition sets.
func NewCompiler(characters map[string]*Character, frameworks map[string]*Framework, log zerolog.Logger) *Compiler {
	if characters == nil {
		characters = map[string]*Character{}
	}
	if frameworks == nil {
		frameworks = map[string]*Framework{}
	}
	return &Compiler{
		characters: characters,
		frameworks: frameworks,
		cache:      map[string]*CompiledPersona{},
		log:        log,
	}
}

// PersonaID derives the stable id for a character/framework pair.
func PersonaID(characterID, frameworkID string) string {
	sum := sha256.Sum256([]byte(characterID + "\x00" + frameworkID))
	return fmt.Sprintf("p_%x", sum[:8])
}

// Compile compiles the identified character against the identified
// framework. frameworkID may be empty: the character's own declared
// framework wins, then the neutral fallback. Repeated calls with
// identical inputs return the cached result.
func (c *Compiler) Compile(characterID, frameworkID string) (*CompiledPersona, error) {
	char, ok := c.characters[characterID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrMissingCharacter, characterID)
	}
	if err := char.Validate(); err != nil {
		return nil, err
	}

	fw, err := c.resolveFramework(char, frameworkID)
	if err != nil {
		return nil, err
	}

	id := PersonaID(char.ID, fw.ID)

	c.mu.Lock()
	defer c.mu.Unlock()
	if cached, ok := c.cache[id]; ok {
		return cached, nil
	}

	compiled := &CompiledPersona{
		PersonaID:            id,
		Character:            char,
		Framework:            fw,
		SystemPrompt:         assembleSystemPrompt(char, fw),
		RequiredCapabilities: append([]string(nil), fw.RequiredTools...),
	}

	// Copy-on-write: readers holding the old map never observe a
	// partially updated entry.
	next := make(map[string]*CompiledPersona, len(c.cache)+1)
	for k, v := range c.cache {
		next[k] = v
	}
	next[id] = compiled
	c.cache = next

	return compiled, nil
}

func (c *Compiler) resolveFramework(char *Character, frameworkID string) (*Framework, error) {
	id := frameworkID
	if char.FrameworkID != "" {
		id = char.FrameworkID
	}
	if id == "" || id == NeutralFrameworkID {
		return NeutralFramework(), nil
	}
	fw, ok := c.frameworks[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrMissingFramework, id)
	}
	if err := fw.Validate(); err != nil {
		return nil, err
	}
	return fw, nil
}

// Invalidate drops a compiled persona so the next Compile rebuilds it.
// Call after a source Character or Framework changes.
func (c *Compiler) Invalidate(personaID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	next := make(map[string]*CompiledPersona, len(c.cache))
	for k, v := range c.cache {
		if k != personaID {
			next[k] = v
		}
	}
	c.cache = next
}

// CompileRoster compiles every known character. Characters that fail
// to compile are logged once and excluded; the survivors form the
// active roster.
func (c *Compiler) CompileRoster(frameworkID string) []*CompiledPersona {
	roster := make([]*CompiledPersona, 0, len(c.characters))
	for id := range c.characters {
		p, err := c.Compile(id, frameworkID)
		if err != nil {
			c.log.Warn().Str("character_id", id).Err(err).
				Msg("persona excluded from roster")
			continue
		}
		roster = append(roster, p)
	}
	return roster
}

// assembleSystemPrompt concatenates the character sections and the
// framework template in fixed order: description → personality →
// scenario/example dialogue → framework prompt.
func assembleSystemPrompt(char *Character, fw *Framework) string {
	var sections []string

	if char.SystemPromptOverride != "" {
		sections = append(sections, char.SystemPromptOverride)
		if fw.PromptTemplate != "" {
			sections = append(sections, fw.PromptTemplate)
		}
		return strings.Join(sections, "\n\n")
	}

	sections = append(sections, fmt.Sprintf("You are %s. %s", char.Name, char.Description))

	if char.Personality != "" {
		sections = append(sections, "Personality: "+char.Personality)
	}
	if char.Scenario != "" {
		sections = append(sections, "Scenario: "+char.Scenario)
	}
	if char.ExampleDialogue != "" {
		sections = append(sections, "Example dialogue:\n"+char.ExampleDialogue)
	}
	if fw.PromptTemplate != "" {
		sections = append(sections, fw.PromptTemplate)
	}

	return strings.Join(sections, "\n\n")
}
