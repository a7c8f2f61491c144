package ensemble

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ──────────────────────────────────────────────
// LorebookMatcher — trigger-keyed world-knowledge snippets
// ──────────────────────────────────────────────

// LorePosition hints where an entry is injected relative to the
// persona prompt.
type LorePosition string

const (
	LoreBeforePersona LorePosition = "before"
	LoreAfterPersona  LorePosition = "after"
)

// LoreEntry is one world-knowledge snippet.
type LoreEntry struct {
	ID        string       `json:"id"`
	Keys      []string     `json:"keys,omitempty"` // literal trigger keys
	Embedding []float32    `json:"embedding,omitempty"`
	Text      string       `json:"text"`
	Priority  int          `json:"priority"` // lower sorts first
	Enabled   bool         `json:"enabled"`
	Constant  bool         `json:"constant"` // always included, ahead of triggered
	Position  LorePosition `json:"position,omitempty"`
}

// LorebookMatcher matches lore entries against message text. Keyword
// triggering is always available; semantic triggering is an optional
// enhancement that degrades to keyword-only without error when
// embeddings are unavailable.
type LorebookMatcher struct {
	// SemanticThreshold is the minimum embedding similarity for a
	// semantic trigger.
	SemanticThreshold float64

	embedFn EmbedFunc
	log     zerolog.Logger

	mu      sync.RWMutex
	entries []LoreEntry
}

// NewLorebookMatcher creates a matcher. embedFn may be nil.
func NewLorebookMatcher(embedFn EmbedFunc, log zerolog.Logger) *LorebookMatcher {
	return &LorebookMatcher{
		SemanticThreshold: 0.65,
		embedFn:           embedFn,
		log:               log,
	}
}

// Add registers a lore entry, assigning an id if empty.
func (l *LorebookMatcher) Add(e LoreEntry) string {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	l.mu.Lock()
	l.entries = append(l.entries, e)
	l.mu.Unlock()
	return e.ID
}

// Match returns the enabled entries triggered by the text: every
// constant entry first, then keyword hits, then semantic hits, ordered
// by priority within each group. Entries are returned at most once.
func (l *LorebookMatcher) Match(ctx context.Context, text string) []LoreEntry {
	l.mu.RLock()
	entries := append([]LoreEntry(nil), l.entries...)
	l.mu.RUnlock()

	lower := strings.ToLower(text)
	seen := map[string]bool{}
	var constant, triggered []LoreEntry

	for _, e := range entries {
		if !e.Enabled || seen[e.ID] {
			continue
		}
		if e.Constant {
			constant = append(constant, e)
			seen[e.ID] = true
			continue
		}
		if keywordHit(lower, e.Keys) {
			triggered = append(triggered, e)
			seen[e.ID] = true
		}
	}

	// Semantic enhancement: only when an embedder is wired.
	if l.embedFn != nil {
		if qv, err := l.embedFn(ctx, text); err == nil {
			for _, e := range entries {
				if !e.Enabled || seen[e.ID] || len(e.Embedding) == 0 {
					continue
				}
				if float64(CosineSimilarity(qv, e.Embedding)) >= l.SemanticThreshold {
					triggered = append(triggered, e)
					seen[e.ID] = true
				}
			}
		} else {
			l.log.Debug().Err(err).Msg("lorebook semantic match unavailable")
		}
	}

	byPriority(constant)
	byPriority(triggered)
	return append(constant, triggered...)
}

func byPriority(entries []LoreEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Priority < entries[j].Priority
	})
}

func keywordHit(lowerText string, keys []string) bool {
	for _, k := range keys {
		k = strings.ToLower(strings.TrimSpace(k))
		if k != "" && strings.Contains(lowerText, k) {
			return true
		}
	}
	return false
}
