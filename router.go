package ensemble

import (
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/emberworks/ensemble-sdk-go/persona"
)

// ──────────────────────────────────────────────
// PersonaRouter — 4-layer persona selection
// ──────────────────────────────────────────────

// RouteReason documents why a persona was selected.
type RouteReason string

const (
	ReasonFullName  RouteReason = "full_name"
	ReasonFirstName RouteReason = "first_name"
	ReasonSticky    RouteReason = "sticky"
	ReasonRandom    RouteReason = "random"
)

// minFirstNameLen rejects short common words matching as first names.
const minFirstNameLen = 3

type stickyEntry struct {
	personaID string
	at        time.Time
}

// PersonaRouter selects which active persona answers a message.
// Layers: full display-name match (longest wins) → first-name match →
// sticky continuation → uniform random. Only the random fallback is
// non-deterministic.
type PersonaRouter struct {
	StickyWindow time.Duration

	mu     sync.Mutex
	sticky map[string]stickyEntry

	rng   *rand.Rand
	rngMu sync.Mutex
	now   func() time.Time
}

// NewPersonaRouter creates a router. rng may be nil (time-seeded); pass
// a seeded source for reproducible routing in tests.
func NewPersonaRouter(stickyWindow time.Duration, rng *rand.Rand) *PersonaRouter {
	if stickyWindow <= 0 {
		stickyWindow = 5 * time.Minute
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &PersonaRouter{
		StickyWindow: stickyWindow,
		sticky:       map[string]stickyEntry{},
		rng:          rng,
		now:          time.Now,
	}
}

// Select picks the responding persona for the message.
// Returns nil only when the roster is empty.
func (r *PersonaRouter) Select(msg Message, roster []*persona.CompiledPersona) (*persona.CompiledPersona, RouteReason) {
	if len(roster) == 0 {
		return nil, ""
	}
	lower := strings.ToLower(msg.Content)

	// Layer 1: full display-name match, longest match wins so "Dagoth"
	// never preempts "Dagoth Ur" when the longer phrase is present.
	var best *persona.CompiledPersona
	bestLen := 0
	for _, p := range roster {
		name := strings.ToLower(p.Name())
		if name != "" && strings.Contains(lower, name) && len(name) > bestLen {
			best, bestLen = p, len(name)
		}
	}
	if best != nil {
		return best, ReasonFullName
	}

	// Layer 2: first-name match, minimum length guards false positives.
	for _, p := range roster {
		first := strings.ToLower(p.Character.FirstName())
		if len([]rune(first)) >= minFirstNameLen && strings.Contains(lower, first) {
			return p, ReasonFirstName
		}
	}

	// Layer 3: sticky continuation within the window.
	r.mu.Lock()
	entry, ok := r.sticky[msg.ChannelID]
	r.mu.Unlock()
	if ok && r.now().Sub(entry.at) <= r.StickyWindow {
		for _, p := range roster {
			if p.PersonaID == entry.personaID {
				return p, ReasonSticky
			}
		}
	}

	// Layer 4: uniform random fallback.
	r.rngMu.Lock()
	idx := r.rng.Intn(len(roster))
	r.rngMu.Unlock()
	return roster[idx], ReasonRandom
}

// RecordResponse updates the sticky map after a persona responds.
// Safe for concurrent calls; updates to one channel never lose writes.
func (r *PersonaRouter) RecordResponse(channelID string, p *persona.CompiledPersona) {
	if p == nil {
		return
	}
	r.mu.Lock()
	r.sticky[channelID] = stickyEntry{personaID: p.PersonaID, at: r.now()}
	r.mu.Unlock()
}

// LastResponder returns the sticky responder for a channel, if any is
// still within the window.
func (r *PersonaRouter) LastResponder(channelID string) (string, bool) {
	r.mu.Lock()
	entry, ok := r.sticky[channelID]
	r.mu.Unlock()
	if !ok || r.now().Sub(entry.at) > r.StickyWindow {
		return "", false
	}
	return entry.personaID, true
}
