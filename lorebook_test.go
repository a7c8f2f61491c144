package ensemble

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
)

// ══════════════════════════════════════════════
// Keyword triggering
// ══════════════════════════════════════════════

func TestLorebook_KeywordTrigger(t *testing.T) {
	l := NewLorebookMatcher(nil, zerolog.Nop())
	l.Add(LoreEntry{ID: "nerevar", Keys: []string{"Nerevar", "moon-and-star"}, Text: "Nerevar was the Hortator.", Enabled: true})
	l.Add(LoreEntry{ID: "ash", Keys: []string{"ashlands"}, Text: "The Ashlands are hostile.", Enabled: true})

	got := l.Match(context.Background(), "tell me about NEREVAR again")
	if len(got) != 1 || got[0].ID != "nerevar" {
		t.Fatalf("expected keyword hit on nerevar, got %+v", got)
	}
}

func TestLorebook_DisabledEntriesSkipped(t *testing.T) {
	l := NewLorebookMatcher(nil, zerolog.Nop())
	l.Add(LoreEntry{ID: "off", Keys: []string{"secret"}, Text: "hidden", Enabled: false})
	l.Add(LoreEntry{ID: "con", Text: "always", Enabled: false, Constant: true})

	if got := l.Match(context.Background(), "a secret thing"); len(got) != 0 {
		t.Fatalf("disabled entries must never match, got %+v", got)
	}
}

// ══════════════════════════════════════════════
// Ordering: constants first, then priority
// ══════════════════════════════════════════════

func TestLorebook_ConstantFirstThenPriority(t *testing.T) {
	l := NewLorebookMatcher(nil, zerolog.Nop())
	l.Add(LoreEntry{ID: "t2", Keys: []string{"mountain"}, Text: "b", Priority: 2, Enabled: true})
	l.Add(LoreEntry{ID: "c5", Text: "c", Priority: 5, Enabled: true, Constant: true})
	l.Add(LoreEntry{ID: "t1", Keys: []string{"mountain"}, Text: "a", Priority: 1, Enabled: true})
	l.Add(LoreEntry{ID: "c1", Text: "d", Priority: 1, Enabled: true, Constant: true})

	got := l.Match(context.Background(), "the mountain")
	want := []string{"c1", "c5", "t1", "t2"}
	if len(got) != len(want) {
		t.Fatalf("expected %d entries, got %d", len(want), len(got))
	}
	for i, id := range want {
		if got[i].ID != id {
			t.Fatalf("position %d: want %s, got %s", i, id, got[i].ID)
		}
	}
}

// ══════════════════════════════════════════════
// Semantic triggering and degradation
// ══════════════════════════════════════════════

func TestLorebook_SemanticTrigger(t *testing.T) {
	l := NewLorebookMatcher(fakeEmbed, zerolog.Nop())
	l.Add(LoreEntry{ID: "vol", Embedding: []float32{1, 0, 0}, Text: "eruption lore", Enabled: true})
	l.Add(LoreEntry{ID: "mkt", Embedding: []float32{0, 1, 0}, Text: "trade lore", Enabled: true})

	got := l.Match(context.Background(), "the volcano is stirring")
	if len(got) != 1 || got[0].ID != "vol" {
		t.Fatalf("expected semantic hit on vol only, got %+v", got)
	}
}

func TestLorebook_SemanticNotDoubleCounted(t *testing.T) {
	l := NewLorebookMatcher(fakeEmbed, zerolog.Nop())
	l.Add(LoreEntry{ID: "vol", Keys: []string{"volcano"}, Embedding: []float32{1, 0, 0}, Text: "eruption lore", Enabled: true})

	got := l.Match(context.Background(), "volcano watch")
	if len(got) != 1 {
		t.Fatalf("entry hit by both keyword and embedding must appear once, got %d", len(got))
	}
}

func TestLorebook_EmbedFailureDegradesToKeyword(t *testing.T) {
	failing := func(context.Context, string) ([]float32, error) {
		return nil, errors.New("embedding service down")
	}
	l := NewLorebookMatcher(failing, zerolog.Nop())
	l.Add(LoreEntry{ID: "kw", Keys: []string{"volcano"}, Text: "eruption lore", Enabled: true})
	l.Add(LoreEntry{ID: "sem", Embedding: []float32{1, 0, 0}, Text: "semantic-only lore", Enabled: true})

	got := l.Match(context.Background(), "volcano watch")
	if len(got) != 1 || got[0].ID != "kw" {
		t.Fatalf("keyword matching must survive embed failure, got %+v", got)
	}
}
