package ensemble

import (
	"strings"
	"sync"
	"time"
)

// ──────────────────────────────────────────────
// RelationshipStore — pairwise affinity and tension between personas
// ──────────────────────────────────────────────

const sharedMemoryCap = 10

// RelationshipStage is derived from affinity thresholds.
type RelationshipStage string

const (
	StageStrangers     RelationshipStage = "strangers"
	StageAcquaintances RelationshipStage = "acquaintances"
	StageFrenemies     RelationshipStage = "frenemies"
	StageFriends       RelationshipStage = "friends"
	StageBesties       RelationshipStage = "besties"
)

// Relationship tracks one unordered persona pair.
type Relationship struct {
	Affinity         float64           `json:"affinity"` // 0 .. 100
	InteractionCount int               `json:"interaction_count"`
	SharedMemories   []string          `json:"shared_memories,omitempty"` // bounded to 10
	Stage            RelationshipStage `json:"stage"`

	Tension       float64   `json:"tension"` // 0 .. 1
	TriggerTopics []string  `json:"trigger_topics,omitempty"`
	LastTriggerAt time.Time `json:"last_trigger_at"`
}

// BanterConfig tunes the banter probability formula.
type BanterConfig struct {
	Base           float64 // floor probability
	AffinityRange  float64 // how much max affinity adds
	TensionPenalty float64 // how much max tension subtracts
	Max            float64 // ceiling probability
	// TensionDecayPerHour is the linear decay applied when the trigger
	// topic has not come up again.
	TensionDecayPerHour float64
}

// DefaultBanterConfig returns production defaults.
func DefaultBanterConfig() BanterConfig {
	return BanterConfig{
		Base:                0.05,
		AffinityRange:       0.30,
		TensionPenalty:      0.25,
		Max:                 0.40,
		TensionDecayPerHour: 0.10,
	}
}

// RelationshipStore holds all pairwise relationships. Reads take the
// read lock; updates are serialized by the write lock.
type RelationshipStore struct {
	mu    sync.RWMutex
	pairs map[string]*Relationship
	cfg   BanterConfig
	now   func() time.Time
}

// NewRelationshipStore creates an empty store.
func NewRelationshipStore(cfg BanterConfig) *RelationshipStore {
	return &RelationshipStore{
		pairs: map[string]*Relationship{},
		cfg:   cfg,
		now:   time.Now,
	}
}

// pairKey builds the unordered key for two persona ids.
func pairKey(a, b string) string {
	if strings.Compare(a, b) > 0 {
		a, b = b, a
	}
	return a + "|" + b
}

func (s *RelationshipStore) getOrCreateLocked(a, b string) *Relationship {
	key := pairKey(a, b)
	r, ok := s.pairs[key]
	if !ok {
		r = &Relationship{Affinity: 10, Stage: StageStrangers}
		s.pairs[key] = r
	}
	return r
}

// GetAffinity returns the pair's affinity, 10 for unknown pairs.
func (s *RelationshipStore) GetAffinity(a, b string) float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if r, ok := s.pairs[pairKey(a, b)]; ok {
		return r.Affinity
	}
	return 10
}

// GetStage returns the pair's derived relationship stage.
func (s *RelationshipStore) GetStage(a, b string) RelationshipStage {
	return stageFor(s.GetAffinity(a, b))
}

// GetTension returns the pair's current tension with linear decay
// applied since the last trigger.
func (s *RelationshipStore) GetTension(a, b string) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.pairs[pairKey(a, b)]
	if !ok {
		return 0
	}
	s.decayTensionLocked(r)
	return r.Tension
}

func (s *RelationshipStore) decayTensionLocked(r *Relationship) {
	if r.Tension <= 0 || r.LastTriggerAt.IsZero() {
		return
	}
	hours := s.now().Sub(r.LastTriggerAt).Hours()
	if hours <= 0 {
		return
	}
	r.Tension = clamp01(r.Tension - hours*s.cfg.TensionDecayPerHour)
}

// RaiseTension moves the pair's tension toward 1.0 by amount and
// stamps the trigger time.
func (s *RelationshipStore) RaiseTension(a, b string, amount float64) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := s.getOrCreateLocked(a, b)
	s.decayTensionLocked(r)
	r.Tension = clamp01(r.Tension + amount)
	r.LastTriggerAt = s.now()
	return r.Tension
}

// GetBanterChance computes base + (affinity/100)*range - tensionPenalty,
// bounded to [0, max].
func (s *RelationshipStore) GetBanterChance(a, b string) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.pairs[pairKey(a, b)]
	affinity, tension := 10.0, 0.0
	if ok {
		s.decayTensionLocked(r)
		affinity, tension = r.Affinity, r.Tension
	}
	chance := s.cfg.Base + (affinity/100)*s.cfg.AffinityRange - tension*s.cfg.TensionPenalty
	if chance < 0 {
		chance = 0
	}
	if chance > s.cfg.Max {
		chance = s.cfg.Max
	}
	return chance
}

// RecordInteraction applies an affinity delta (clamped to [0,100]),
// increments the interaction count, appends the shared memory (evicting
// the oldest beyond the bound), and recomputes the stage.
func (s *RelationshipStore) RecordInteraction(speaker, responder string, delta float64, memory string) *Relationship {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := s.getOrCreateLocked(speaker, responder)

	r.Affinity += delta
	if r.Affinity < 0 {
		r.Affinity = 0
	}
	if r.Affinity > 100 {
		r.Affinity = 100
	}
	r.InteractionCount++
	if memory != "" {
		r.SharedMemories = pushBounded(r.SharedMemories, memory, sharedMemoryCap)
	}
	r.Stage = stageFor(r.Affinity)
	return r
}

// Snapshot returns a deep copy of all pairs for persistence.
func (s *RelationshipStore) Snapshot() map[string]Relationship {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]Relationship, len(s.pairs))
	for k, r := range s.pairs {
		cp := *r
		cp.SharedMemories = append([]string(nil), r.SharedMemories...)
		cp.TriggerTopics = append([]string(nil), r.TriggerTopics...)
		out[k] = cp
	}
	return out
}

// Restore replaces the store contents from a persisted snapshot.
// Out-of-range values are clamped rather than rejected.
func (s *RelationshipStore) Restore(pairs map[string]Relationship) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pairs = make(map[string]*Relationship, len(pairs))
	for k, r := range pairs {
		cp := r
		if cp.Affinity < 0 {
			cp.Affinity = 0
		}
		if cp.Affinity > 100 {
			cp.Affinity = 100
		}
		cp.Tension = clamp01(cp.Tension)
		cp.Stage = stageFor(cp.Affinity)
		s.pairs[k] = &cp
	}
}

func stageFor(affinity float64) RelationshipStage {
	switch {
	case affinity >= 75:
		return StageBesties
	case affinity >= 55:
		return StageFriends
	case affinity >= 40:
		return StageFrenemies
	case affinity >= 20:
		return StageAcquaintances
	default:
		return StageStrangers
	}
}
