package ensemble

import (
	"context"
	"math"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

// ──────────────────────────────────────────────
// RAGRetriever — hybrid vector/keyword retrieval
// ──────────────────────────────────────────────

// RAGChunk is one retrievable knowledge unit.
type RAGChunk struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	Category  string    `json:"category"`
	Embedding []float32 `json:"embedding,omitempty"`
	Source    string    `json:"source,omitempty"`
}

// ScoredChunk is a retrieval result.
type ScoredChunk struct {
	Chunk RAGChunk
	Score float64
}

// RAGConfig tunes retrieval scoring.
type RAGConfig struct {
	// MinRelevance excludes weak vector matches.
	MinRelevance float64
	// CategoryBoost multiplies the score of chunks whose category is in
	// the requested set.
	CategoryBoost float64
	// PhraseBoost multiplies keyword scores on an exact-phrase hit.
	PhraseBoost float64
}

// DefaultRAGConfig returns production defaults.
func DefaultRAGConfig() RAGConfig {
	return RAGConfig{
		MinRelevance:  0.5,
		CategoryBoost: 5.0,
		PhraseBoost:   2.0,
	}
}

// RAGRetriever performs hybrid search over an in-memory corpus.
// The vector path needs an EmbedFunc; when it is nil or failing, search
// silently falls back to stop-word-filtered keyword overlap. Both paths
// apply the identical category restriction.
type RAGRetriever struct {
	cfg     RAGConfig
	embedFn EmbedFunc
	log     zerolog.Logger

	mu     sync.RWMutex
	chunks []RAGChunk

	// Query embeddings are cached; concurrent identical embeds collapse
	// into one upstream call.
	embedMu    sync.RWMutex
	embedCache map[string][]float32
	flight     singleflight.Group
}

// NewRAGRetriever creates a retriever. embedFn may be nil.
func NewRAGRetriever(cfg RAGConfig, embedFn EmbedFunc, log zerolog.Logger) *RAGRetriever {
	if cfg.CategoryBoost <= 0 {
		cfg = DefaultRAGConfig()
	}
	return &RAGRetriever{
		cfg:        cfg,
		embedFn:    embedFn,
		log:        log,
		embedCache: map[string][]float32{},
	}
}

// AddChunk indexes one chunk, assigning an id if empty.
func (r *RAGRetriever) AddChunk(c RAGChunk) string {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	r.mu.Lock()
	r.chunks = append(r.chunks, c)
	r.mu.Unlock()
	return c.ID
}

// AddDocument splits text into paragraph chunks and indexes them.
func (r *RAGRetriever) AddDocument(text, category, source string) []string {
	var ids []string
	for _, para := range strings.Split(text, "\n\n") {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		ids = append(ids, r.AddChunk(RAGChunk{
			Text:     para,
			Category: category,
			Source:   source,
		}))
	}
	return ids
}

// Search returns the top-k chunks ranked by relevance. A non-empty
// categories set restricts results to chunks whose category is a
// case-insensitive member (OR semantics) on both the vector and the
// keyword path.
func (r *RAGRetriever) Search(ctx context.Context, query string, categories []string, topK int) []ScoredChunk {
	if topK <= 0 {
		topK = 5
	}
	catSet := lowerSet(categories)

	if r.embedFn != nil {
		if results, err := r.vectorSearch(ctx, query, catSet, topK); err == nil {
			return results
		} else {
			r.log.Debug().Err(err).Msg("vector search unavailable, keyword fallback")
		}
	}
	return r.keywordSearch(query, catSet, topK)
}

// Embed returns the (cached) embedding for a text.
func (r *RAGRetriever) Embed(ctx context.Context, text string) ([]float32, error) {
	r.embedMu.RLock()
	cached, ok := r.embedCache[text]
	r.embedMu.RUnlock()
	if ok {
		return cached, nil
	}

	v, err, _ := r.flight.Do(text, func() (interface{}, error) {
		vec, err := r.embedFn(ctx, text)
		if err != nil {
			return nil, err
		}
		r.embedMu.Lock()
		r.embedCache[text] = vec
		r.embedMu.Unlock()
		return vec, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]float32), nil
}

func (r *RAGRetriever) vectorSearch(ctx context.Context, query string, catSet map[string]bool, topK int) ([]ScoredChunk, error) {
	qv, err := r.Embed(ctx, query)
	if err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	var results []ScoredChunk
	for _, c := range r.chunks {
		if !inCategorySet(c.Category, catSet) {
			continue
		}
		if len(c.Embedding) == 0 {
			continue
		}
		score := float64(CosineSimilarity(qv, c.Embedding))
		if score < r.cfg.MinRelevance {
			continue
		}
		if len(catSet) > 0 {
			score *= r.cfg.CategoryBoost
		}
		results = append(results, ScoredChunk{Chunk: c, Score: score})
	}
	sortAndTrim(&results, topK)
	return results, nil
}

func (r *RAGRetriever) keywordSearch(query string, catSet map[string]bool, topK int) []ScoredChunk {
	terms := contentTerms(query)
	if len(terms) == 0 {
		return nil
	}
	phrase := strings.ToLower(strings.TrimSpace(query))

	r.mu.RLock()
	defer r.mu.RUnlock()

	var results []ScoredChunk
	for _, c := range r.chunks {
		if !inCategorySet(c.Category, catSet) {
			continue
		}
		lower := strings.ToLower(c.Text)
		chunkTerms := termSet(lower)

		matches := 0
		for _, t := range terms {
			if chunkTerms[t] || chunkTerms[pluralVariant(t)] || chunkTerms[singularVariant(t)] {
				matches++
			}
		}
		if matches == 0 {
			continue
		}
		score := float64(matches) / float64(len(terms))
		if phrase != "" && strings.Contains(lower, phrase) {
			score *= r.cfg.PhraseBoost
		}
		if len(catSet) > 0 {
			score *= r.cfg.CategoryBoost
		}
		results = append(results, ScoredChunk{Chunk: c, Score: score})
	}
	sortAndTrim(&results, topK)
	return results
}

func sortAndTrim(results *[]ScoredChunk, topK int) {
	sort.SliceStable(*results, func(i, j int) bool {
		return (*results)[i].Score > (*results)[j].Score
	})
	if len(*results) > topK {
		*results = (*results)[:topK]
	}
}

// CosineSimilarity computes the cosine similarity of two vectors.
// Returns 0 for mismatched or zero-length vectors.
func CosineSimilarity(a, b []float32) float32 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(na) * math.Sqrt(nb)))
}

// ─── keyword helpers ───

var stopWords = map[string]bool{
	"a": true, "an": true, "the": true, "and": true, "or": true,
	"but": true, "is": true, "are": true, "was": true, "were": true,
	"in": true, "on": true, "at": true, "to": true, "of": true,
	"for": true, "with": true, "it": true, "this": true, "that": true,
	"i": true, "you": true, "he": true, "she": true, "we": true,
	"they": true, "be": true, "do": true, "does": true, "what": true,
	"how": true, "about": true,
}

func contentTerms(text string) []string {
	var terms []string
	for t := range termSet(strings.ToLower(text)) {
		terms = append(terms, t)
	}
	sort.Strings(terms)
	return terms
}

func termSet(lower string) map[string]bool {
	set := map[string]bool{}
	for _, f := range strings.FieldsFunc(lower, func(r rune) bool {
		return !('a' <= r && r <= 'z') && !('0' <= r && r <= '9')
	}) {
		if len(f) < 2 || stopWords[f] {
			continue
		}
		set[f] = true
	}
	return set
}

// pluralVariant / singularVariant give fuzzy plural handling for term
// overlap ("dragon" matches "dragons" and vice versa).
func pluralVariant(t string) string { return t + "s" }

func singularVariant(t string) string {
	if strings.HasSuffix(t, "s") && len(t) > 3 {
		return strings.TrimSuffix(t, "s")
	}
	return t
}

func lowerSet(items []string) map[string]bool {
	if len(items) == 0 {
		return nil
	}
	set := make(map[string]bool, len(items))
	for _, s := range items {
		s = strings.ToLower(strings.TrimSpace(s))
		if s != "" {
			set[s] = true
		}
	}
	return set
}

func inCategorySet(category string, set map[string]bool) bool {
	if len(set) == 0 {
		return true
	}
	return set[strings.ToLower(category)]
}
