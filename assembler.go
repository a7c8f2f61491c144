package ensemble

import (
	"errors"
	"strings"
	"unicode/utf8"

	"github.com/emberworks/ensemble-sdk-go/persona"
)

// ──────────────────────────────────────────────
// ContextAssembler — strict-priority budget packing
// ──────────────────────────────────────────────

// ErrBudgetConfig reports that the system prompt alone exceeds the
// usable budget. This is a configuration error, not a runtime failure.
var ErrBudgetConfig = errors.New("system prompt exceeds usable token budget")

// TokenEstimator estimates the token count of a text.
type TokenEstimator func(text string) int

// defaultEstimateTokens estimates tokens as runeCount / 2.7.
func defaultEstimateTokens(text string) int {
	return int(float64(utf8.RuneCountInString(text)) / 2.7)
}

// HistoryMessage is one prior conversation message for the prompt.
type HistoryMessage struct {
	Author  string
	Content string
}

// BuildInput carries everything the assembler packs.
type BuildInput struct {
	Persona          *persona.CompiledPersona
	State            BehaviorState
	Milestones       []Milestone
	RelationshipText string
	ConflictText     string
	RAG              []ScoredChunk
	Lore             []LoreEntry
	// History is ordered oldest → newest; packing walks it backwards.
	History     []HistoryMessage
	TokenBudget int
}

// Prompt is the assembled, bounded prompt.
type Prompt struct {
	Text       string
	TokensUsed int
	Dropped    int // history messages that did not fit
}

// ContextAssembler packs the final prompt in strict priority order:
// system prompt, retrieved knowledge and lore, behavior modifiers,
// then history newest-first. A fixed fraction of the budget is reserved
// for the generation collaborator's own output and never allocated.
type ContextAssembler struct {
	// ReservedFraction of the total budget left for generation output.
	ReservedFraction float64
	// Estimate is the cached token estimator; nil uses the default.
	Estimate TokenEstimator
}

// NewContextAssembler creates an assembler with default reservation.
func NewContextAssembler() *ContextAssembler {
	return &ContextAssembler{ReservedFraction: 0.10}
}

func (a *ContextAssembler) estimate(text string) int {
	if a.Estimate != nil {
		return a.Estimate(text)
	}
	return defaultEstimateTokens(text)
}

// promptDraft holds the sections admitted so far while packing.
type promptDraft struct {
	beforeLore []string
	system     string
	knowledge  []string
	modifiers  string
	history    []string // newest-first while packing
}

// render joins the admitted sections in final order, with history
// restored to chronological order.
func (d *promptDraft) render() string {
	var sections []string
	if len(d.beforeLore) > 0 {
		sections = append(sections, strings.Join(d.beforeLore, "\n"))
	}
	sections = append(sections, d.system)
	if len(d.knowledge) > 0 {
		sections = append(sections, "Relevant knowledge:\n"+strings.Join(d.knowledge, "\n"))
	}
	if d.modifiers != "" {
		sections = append(sections, d.modifiers)
	}
	if len(d.history) > 0 {
		lines := make([]string, len(d.history))
		for i, l := range d.history {
			lines[len(lines)-1-i] = l
		}
		sections = append(sections, "Conversation:\n"+strings.Join(lines, "\n"))
	}
	return strings.Join(sections, "\n\n")
}

// Build assembles the prompt. Pure given its inputs except for token
// counting. Every admission re-estimates the rendered draft, so section
// headers and joiners are charged along with the item and the returned
// prompt never exceeds budget × (1 − ReservedFraction) estimated tokens.
func (a *ContextAssembler) Build(in BuildInput) (Prompt, error) {
	usable := int(float64(in.TokenBudget) * (1 - a.ReservedFraction))

	// Tier 1: system prompt. Never dropped.
	d := promptDraft{system: in.Persona.SystemPrompt}
	used := a.estimate(d.render())
	if used > usable {
		return Prompt{}, ErrBudgetConfig
	}

	// Tier 2: lore and retrieved knowledge, item by item while the
	// budget holds. Constant entries go ahead of triggered ones (Match
	// already orders them); position hints place text around the system
	// prompt.
	for _, e := range in.Lore {
		slot := &d.knowledge
		if e.Position == LoreBeforePersona {
			slot = &d.beforeLore
		}
		*slot = append(*slot, e.Text)
		if n := a.estimate(d.render()); n <= usable {
			used = n
		} else {
			*slot = (*slot)[:len(*slot)-1]
		}
	}
	for _, c := range in.RAG {
		d.knowledge = append(d.knowledge, c.Chunk.Text)
		if n := a.estimate(d.render()); n <= usable {
			used = n
		} else {
			d.knowledge = d.knowledge[:len(d.knowledge)-1]
		}
	}

	// Tier 3: behavior modifiers in fixed order — mood, evolution,
	// conflict, contagion. The whole tier is skipped if it cannot fit.
	if m := a.renderModifiers(in); m != "" {
		d.modifiers = m
		if n := a.estimate(d.render()); n <= usable {
			used = n
		} else {
			d.modifiers = ""
		}
	}

	// Tier 4: history newest-first; the first overflowing message stops
	// the fill, older messages are dropped whole.
	dropped := 0
	for i := len(in.History) - 1; i >= 0; i-- {
		d.history = append(d.history, in.History[i].Author+": "+in.History[i].Content)
		n := a.estimate(d.render())
		if n > usable {
			d.history = d.history[:len(d.history)-1]
			dropped = i + 1
			break
		}
		used = n
	}

	return Prompt{
		Text:       d.render(),
		TokensUsed: used,
		Dropped:    dropped,
	}, nil
}

// renderModifiers concatenates mood, evolution, conflict, and contagion
// text in that fixed order.
func (a *ContextAssembler) renderModifiers(in BuildInput) string {
	var parts []string
	if t := in.State.Mood.PromptText(); t != "" {
		parts = append(parts, t)
	}
	if t := EvolutionText(in.State.Evolution, in.Milestones); t != "" {
		parts = append(parts, t)
	}
	if in.ConflictText != "" {
		parts = append(parts, in.ConflictText)
	}
	if t := contagionText(in.State.Contagion); t != "" {
		parts = append(parts, t)
	}
	if in.RelationshipText != "" {
		parts = append(parts, in.RelationshipText)
	}
	return strings.Join(parts, "\n")
}

func contagionText(contagion string) string {
	switch contagion {
	case "empathetic":
		return "The room's mood has been low; respond with extra empathy."
	case "enthusiastic":
		return "The room's mood is high; match the enthusiasm."
	default:
		return ""
	}
}
