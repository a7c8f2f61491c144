package ensemble

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// ──────────────────────────────────────────────
// External collaborators — generation, decisions, embeddings
// ──────────────────────────────────────────────

// Generator is the black-box text-generation collaborator.
type Generator interface {
	Generate(ctx context.Context, prompt string, maxTokens int) (string, error)
}

// Decider is the lightweight decision collaborator used for spam vetoes,
// topic classification, and curiosity-question generation. Every call
// must tolerate a short deadline; callers fall back to a safe default
// on error.
type Decider interface {
	Decide(ctx context.Context, prompt string) (bool, error)
	Classify(ctx context.Context, prompt string, options []string) (string, error)
	QuickGenerate(ctx context.Context, prompt string, maxTokens int) (string, error)
}

// EmbedFunc generates a dense embedding vector for a text string.
// Callers wire this to their embedding provider; a nil EmbedFunc means
// retrieval degrades to keyword mode.
type EmbedFunc func(ctx context.Context, text string) ([]float32, error)

// ──────────────────────────────────────────────
// guardedDecider — timeout + rate limit + conservative defaults
// ──────────────────────────────────────────────

// guardedDecider wraps a Decider with a bounded per-call timeout and a
// global rate limit. On timeout, error, or limiter rejection it returns
// the conservative default instead of retrying: false for Decide, the
// first option for Classify, empty for QuickGenerate. It never blocks a
// channel's update sequence beyond the timeout.
type guardedDecider struct {
	inner   Decider
	timeout time.Duration
	limiter *rate.Limiter
	log     zerolog.Logger
}

func newGuardedDecider(inner Decider, timeout time.Duration, limiter *rate.Limiter, log zerolog.Logger) *guardedDecider {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	if limiter == nil {
		limiter = rate.NewLimiter(rate.Every(time.Second), 5)
	}
	return &guardedDecider{inner: inner, timeout: timeout, limiter: limiter, log: log}
}

func (g *guardedDecider) allowed() bool {
	return g.inner != nil && g.limiter.Allow()
}

// Decide returns the collaborator's verdict, defaulting to deny.
func (g *guardedDecider) Decide(ctx context.Context, prompt string) bool {
	if !g.allowed() {
		return false
	}
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()
	ok, err := g.inner.Decide(ctx, prompt)
	if err != nil {
		g.log.Debug().Err(err).Msg("decide failed, taking conservative default")
		return false
	}
	return ok
}

// Classify returns the chosen option, defaulting to the first.
func (g *guardedDecider) Classify(ctx context.Context, prompt string, options []string) string {
	fallback := ""
	if len(options) > 0 {
		fallback = options[0]
	}
	if !g.allowed() {
		return fallback
	}
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()
	out, err := g.inner.Classify(ctx, prompt, options)
	if err != nil {
		g.log.Debug().Err(err).Msg("classify failed, taking first option")
		return fallback
	}
	for _, opt := range options {
		if out == opt {
			return out
		}
	}
	return fallback
}

// QuickGenerate returns generated text, or empty on any failure.
func (g *guardedDecider) QuickGenerate(ctx context.Context, prompt string, maxTokens int) string {
	if !g.allowed() {
		return ""
	}
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()
	out, err := g.inner.QuickGenerate(ctx, prompt, maxTokens)
	if err != nil {
		g.log.Debug().Err(err).Msg("quick generate failed")
		return ""
	}
	return out
}
