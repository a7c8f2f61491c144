package ensemble

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

// ══════════════════════════════════════════════
// Test helpers
// ══════════════════════════════════════════════

// fakeEmbed maps known words onto axis-aligned vectors so similarity
// is predictable in tests.
func fakeEmbed(_ context.Context, text string) ([]float32, error) {
	lower := strings.ToLower(text)
	v := make([]float32, 3)
	if strings.Contains(lower, "volcano") {
		v[0] = 1
	}
	if strings.Contains(lower, "market") {
		v[1] = 1
	}
	if strings.Contains(lower, "rumor") {
		v[2] = 1
	}
	return v, nil
}

func loadedRetriever(embed EmbedFunc) *RAGRetriever {
	r := NewRAGRetriever(DefaultRAGConfig(), embed, zerolog.Nop())
	r.AddChunk(RAGChunk{Text: "The volcano rumbles beneath Red Mountain.", Category: "lore", Embedding: []float32{1, 0, 0}})
	r.AddChunk(RAGChunk{Text: "Market prices for scrap metal rose again.", Category: "trade", Embedding: []float32{0, 1, 0}})
	r.AddChunk(RAGChunk{Text: "A rumor says the god-king has a gossip problem.", Category: "gossip", Embedding: []float32{0, 0, 1}})
	return r
}

// ══════════════════════════════════════════════
// Category restriction — identical on both paths
// ══════════════════════════════════════════════

func TestSearch_CategoryRestriction_VectorPath(t *testing.T) {
	r := loadedRetriever(fakeEmbed)
	results := r.Search(context.Background(), "any rumor about the volcano market", []string{"lore"}, 10)
	if len(results) != 1 {
		t.Fatalf("expected only the lore chunk, got %d results", len(results))
	}
	if !strings.EqualFold(results[0].Chunk.Category, "lore") {
		t.Fatalf("unexpected category %q", results[0].Chunk.Category)
	}
}

func TestSearch_CategoryRestriction_KeywordPath(t *testing.T) {
	r := loadedRetriever(nil) // no embedder: keyword fallback
	results := r.Search(context.Background(), "any rumor about the volcano market", []string{"lore"}, 10)
	if len(results) == 0 {
		t.Fatal("keyword path returned nothing")
	}
	for _, res := range results {
		if res.Chunk.Category == "gossip" {
			t.Fatalf("keyword path leaked category %q", res.Chunk.Category)
		}
	}
}

func TestSearch_CategoryCaseInsensitive(t *testing.T) {
	r := loadedRetriever(nil)
	results := r.Search(context.Background(), "volcano", []string{"LORE"}, 10)
	if len(results) != 1 {
		t.Fatalf("case-insensitive category match failed: %d results", len(results))
	}
}

// ══════════════════════════════════════════════
// Vector path behavior
// ══════════════════════════════════════════════

func TestSearch_VectorMinRelevance(t *testing.T) {
	r := loadedRetriever(fakeEmbed)
	// "volcano" query is orthogonal to the market and gossip chunks.
	results := r.Search(context.Background(), "volcano", nil, 10)
	if len(results) != 1 {
		t.Fatalf("weak matches must be excluded, got %d results", len(results))
	}
	if !strings.Contains(results[0].Chunk.Text, "volcano") {
		t.Fatalf("wrong chunk: %q", results[0].Chunk.Text)
	}
}

func TestSearch_EmbedFailureFallsBackToKeyword(t *testing.T) {
	failing := func(context.Context, string) ([]float32, error) {
		return nil, errors.New("embedding service down")
	}
	r := loadedRetriever(failing)
	results := r.Search(context.Background(), "volcano", nil, 10)
	if len(results) == 0 {
		t.Fatal("keyword fallback should still find the volcano chunk")
	}
}

func TestEmbed_Cached(t *testing.T) {
	calls := 0
	counting := func(ctx context.Context, text string) ([]float32, error) {
		calls++
		return fakeEmbed(ctx, text)
	}
	r := NewRAGRetriever(DefaultRAGConfig(), counting, zerolog.Nop())
	for i := 0; i < 5; i++ {
		if _, err := r.Embed(context.Background(), "volcano"); err != nil {
			t.Fatalf("embed: %v", err)
		}
	}
	if calls != 1 {
		t.Fatalf("expected 1 upstream embed call, got %d", calls)
	}
}

// ══════════════════════════════════════════════
// Keyword path behavior
// ══════════════════════════════════════════════

func TestKeywordSearch_FuzzyPlural(t *testing.T) {
	r := NewRAGRetriever(DefaultRAGConfig(), nil, zerolog.Nop())
	r.AddChunk(RAGChunk{Text: "Dragons nest in the northern peaks.", Category: "lore"})
	results := r.Search(context.Background(), "dragon", nil, 10)
	if len(results) != 1 {
		t.Fatal("singular query should match plural text")
	}
}

func TestKeywordSearch_PhraseBoost(t *testing.T) {
	r := NewRAGRetriever(DefaultRAGConfig(), nil, zerolog.Nop())
	r.AddChunk(RAGChunk{ID: "exact", Text: "red mountain looms", Category: "lore"})
	r.AddChunk(RAGChunk{ID: "partial", Text: "the mountain is red in autumn light", Category: "lore"})

	results := r.Search(context.Background(), "red mountain", nil, 10)
	if len(results) != 2 {
		t.Fatalf("expected both chunks, got %d", len(results))
	}
	if results[0].Chunk.ID != "exact" {
		t.Fatal("exact phrase match should rank first")
	}
}

func TestKeywordSearch_StopWordsIgnored(t *testing.T) {
	r := NewRAGRetriever(DefaultRAGConfig(), nil, zerolog.Nop())
	r.AddChunk(RAGChunk{Text: "the and of in on", Category: "lore"})
	if results := r.Search(context.Background(), "what is the and of", nil, 10); len(results) != 0 {
		t.Fatalf("stop-word-only overlap should not match, got %d", len(results))
	}
}

func TestAddDocument_SplitsParagraphs(t *testing.T) {
	r := NewRAGRetriever(DefaultRAGConfig(), nil, zerolog.Nop())
	ids := r.AddDocument("First paragraph here.\n\nSecond paragraph here.", "lore", "test.md")
	if len(ids) != 2 {
		t.Fatalf("expected 2 chunks, got %d", len(ids))
	}
	for _, id := range ids {
		if id == "" {
			t.Fatal("chunk ids must be assigned")
		}
	}
}

func TestCosineSimilarity(t *testing.T) {
	if got := CosineSimilarity([]float32{1, 0}, []float32{1, 0}); got < 0.999 {
		t.Fatalf("identical vectors: %f", got)
	}
	if got := CosineSimilarity([]float32{1, 0}, []float32{0, 1}); got != 0 {
		t.Fatalf("orthogonal vectors: %f", got)
	}
	if got := CosineSimilarity(nil, []float32{1}); got != 0 {
		t.Fatalf("mismatched vectors: %f", got)
	}
}
