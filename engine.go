package ensemble

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.uber.org/atomic"
	"golang.org/x/time/rate"

	"github.com/emberworks/ensemble-sdk-go/persona"
)

// ──────────────────────────────────────────────
// BehaviorEngine — per-channel adaptive state machine
// ──────────────────────────────────────────────

const recentMessageCap = 10

// channelState pairs a channel's behavior state with its lock.
// Message updates and tick updates for the same channel serialize on
// mu; different channels never contend.
type channelState struct {
	mu     sync.Mutex
	state  *BehaviorState
	recent []Message // bounded raw-message window for veto prompts
}

// BehaviorEngine advances one state machine per channel on incoming
// messages and periodic ticks, emitting directives (reactions,
// follow-up questions, engagement requests).
type BehaviorEngine struct {
	cfg           EngineConfig
	relationships *RelationshipStore
	decider       *guardedDecider
	classifier    *SentimentClassifier
	milestones    []Milestone
	log           zerolog.Logger

	mu       sync.RWMutex
	channels map[string]*channelState

	rng   *rand.Rand
	rngMu sync.Mutex
	now   func() time.Time

	messagesSeen      atomic.Int64
	directivesEmitted atomic.Int64
}

// EngineOptions groups the engine's collaborators. Relationships is
// required; everything else has a safe default.
type EngineOptions struct {
	Config        EngineConfig
	Relationships *RelationshipStore
	Decider       Decider
	DeciderLimit  *rate.Limiter
	Milestones    []Milestone
	Rand          *rand.Rand
	Logger        zerolog.Logger
}

// NewBehaviorEngine creates an engine.
func NewBehaviorEngine(opts EngineOptions) *BehaviorEngine {
	cfg := opts.Config
	if cfg.TickInterval <= 0 {
		cfg = DefaultEngineConfig()
	}
	rels := opts.Relationships
	if rels == nil {
		rels = NewRelationshipStore(cfg.Banter)
	}
	rng := opts.Rand
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	milestones := opts.Milestones
	if milestones == nil {
		milestones = DefaultMilestones()
	}
	return &BehaviorEngine{
		cfg:           cfg,
		relationships: rels,
		decider:       newGuardedDecider(opts.Decider, cfg.DeciderTimeout, opts.DeciderLimit, opts.Logger),
		classifier:    NewSentimentClassifier(),
		milestones:    milestones,
		log:           opts.Logger,
		channels:      map[string]*channelState{},
		rng:           rng,
		now:           time.Now,
	}
}

// Relationships exposes the store for the assembler and orchestrator.
func (e *BehaviorEngine) Relationships() *RelationshipStore { return e.relationships }

// channel returns the channel entry, creating it lazily.
func (e *BehaviorEngine) channel(channelID string) *channelState {
	e.mu.RLock()
	ch, ok := e.channels[channelID]
	e.mu.RUnlock()
	if ok {
		return ch
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if ch, ok = e.channels[channelID]; ok {
		return ch
	}
	ch = &channelState{state: NewBehaviorState(channelID)}
	e.channels[channelID] = ch
	return ch
}

// roll returns true with probability p.
func (e *BehaviorEngine) roll(p float64) bool {
	if p <= 0 {
		return false
	}
	if p >= 1 {
		return true
	}
	e.rngMu.Lock()
	v := e.rng.Float64()
	e.rngMu.Unlock()
	return v < p
}

// OnMessage advances the channel state machine for one incoming message
// and returns zero or more directives. addressed reports whether the
// persona was explicitly named (router layers 1-2); unaddressed messages
// are eligible for proactive engagement.
func (e *BehaviorEngine) OnMessage(ctx context.Context, p *persona.CompiledPersona, msg Message, addressed bool) []Directive {
	e.messagesSeen.Inc()
	ch := e.channel(msg.ChannelID)
	ch.mu.Lock()
	defer ch.mu.Unlock()

	st := ch.state
	st.normalize()
	now := e.now()
	at := msg.Timestamp
	if at.IsZero() {
		at = now
	}
	st.LastMessageAt = at
	st.MessageCount++
	st.Activity.Record(at)
	ch.recent = pushBounded(ch.recent, msg, recentMessageCap)

	var directives []Directive

	// Reaction decision: independent of every other trigger.
	interest, avoided, topic := matchTopics(msg.Content, p.Character.Knowledge)
	reactionChance := p.Framework.Decision.ReactionChance
	if interest {
		reactionChance *= e.cfg.InterestMultiplier
	}
	if e.roll(reactionChance) {
		directives = append(directives, Directive{
			Kind:      DirectiveReaction,
			ChannelID: msg.ChannelID,
			MessageID: msg.ID,
			Emoji:     reactionEmoji(st.Mood),
			Reason:    "reaction_roll",
		})
	}

	// Mood update from sentiment.
	sent := e.classifySentiment(ctx, msg.Content)
	st.RecordSentiment(sent.Valence)
	st.Mood = UpdateMood(st.Mood, sent, e.cfg.Mood, now)

	// Emotional contagion: separate from mood, additive in the prompt.
	if mean, ok := st.SentimentMean(e.cfg.ContagionMinSamples); ok {
		switch {
		case mean <= e.cfg.ContagionNegThreshold:
			st.Contagion = "empathetic"
		case mean >= e.cfg.ContagionPosThreshold:
			st.Contagion = "enthusiastic"
		default:
			st.Contagion = ""
		}
	}

	// Remote topic classification when nothing matched locally.
	if topic == "" {
		topic = e.classifyTopic(ctx, msg.Content, p.Character.Knowledge)
		if topic != "" {
			interest = true
		}
	}

	// Curiosity follow-up.
	if q := e.maybeFollowUp(ctx, st, p.Character.CuriosityLevel, topic); q != "" {
		directives = append(directives, Directive{
			Kind:      DirectiveFollowUp,
			ChannelID: msg.ChannelID,
			Text:      q,
			Reason:    "curiosity",
		})
	}

	// Conflict: trigger topics raise tension toward 1.0 for the
	// persona/speaker pair; decay elsewhere is time-driven.
	if hitsConflictTrigger(msg.Content, p.Character.Knowledge.ConflictTriggers) {
		tension := e.relationships.RaiseTension(p.PersonaID, msg.AuthorID, e.cfg.ConflictStep)
		entry := st.Conflicts[msg.AuthorID]
		if entry == nil {
			entry = &ConflictEntry{}
			st.Conflicts[msg.AuthorID] = entry
		}
		entry.Tension = tension
		entry.LastTriggerAt = now
	}

	// Evolution XP for every observed message.
	if unlocked := AddXP(&st.Evolution, 1, e.milestones); len(unlocked) > 0 {
		for _, m := range unlocked {
			e.log.Info().Str("channel_id", msg.ChannelID).
				Str("persona_id", p.PersonaID).
				Int64("threshold", m.Threshold).
				Msg("evolution milestone unlocked")
		}
	}

	// Proactive engagement applies only when not explicitly addressed.
	if !addressed && !msg.FromBot {
		if d, ok := e.maybeEngage(ctx, ch, p, msg, interest, avoided); ok {
			directives = append(directives, d)
		}
	}

	e.directivesEmitted.Add(int64(len(directives)))
	return directives
}

// classifySentiment runs the local keyword classifier and, when enabled,
// lets the decision collaborator override the tone. The local tone leads
// the option list so a timed-out or unavailable collaborator falls back
// to the local verdict.
func (e *BehaviorEngine) classifySentiment(ctx context.Context, content string) Sentiment {
	local := e.classifier.Classify(content)
	if !e.cfg.ExternalSentiment {
		return local
	}
	options := []string{local.Tone}
	for _, tone := range []string{"neutral", "excited", "frustrated", "sad", "bored", "curious"} {
		if tone != local.Tone {
			options = append(options, tone)
		}
	}
	prompt := fmt.Sprintf("Classify the emotional tone of this message. Message: %q", content)
	tone := e.decider.Classify(ctx, prompt, options)
	if tone == local.Tone {
		return local
	}
	return Sentiment{
		Tone:       tone,
		Valence:    toneValence[tone] * 0.6,
		Confidence: 0.6,
	}
}

// classifyTopic asks the decision collaborator to place the message on
// one of the persona's declared topics. Falls back to no topic.
func (e *BehaviorEngine) classifyTopic(ctx context.Context, content string, k persona.KnowledgeMeta) string {
	options := make([]string, 0, len(k.TopicInterests)+1)
	options = append(options, "none")
	options = append(options, k.TopicInterests...)
	if len(options) == 1 {
		return ""
	}
	prompt := fmt.Sprintf("Which topic best matches this message? Message: %q", content)
	out := e.decider.Classify(ctx, prompt, options)
	if out == "none" {
		return ""
	}
	return out
}

// matchTopics scans the message against declared interests and
// avoidances. Returns whether an interest matched, whether an avoidance
// matched, and the first matched interest topic.
func matchTopics(content string, k persona.KnowledgeMeta) (interest, avoided bool, topic string) {
	lower := strings.ToLower(content)
	for _, t := range k.TopicAvoidances {
		if t != "" && strings.Contains(lower, strings.ToLower(t)) {
			avoided = true
			break
		}
	}
	for _, t := range k.TopicInterests {
		if t != "" && strings.Contains(lower, strings.ToLower(t)) {
			interest = true
			topic = t
			break
		}
	}
	return interest, avoided, topic
}

func hitsConflictTrigger(content string, triggers []string) bool {
	lower := strings.ToLower(content)
	for _, t := range triggers {
		if t != "" && strings.Contains(lower, strings.ToLower(t)) {
			return true
		}
	}
	return false
}

// reactionEmoji picks an emoji fitting the current mood.
func reactionEmoji(m Mood) string {
	switch m.Type {
	case MoodExcited:
		return "🔥"
	case MoodCurious:
		return "👀"
	case MoodSad:
		return "😢"
	case MoodFrustrated:
		return "😤"
	case MoodBored:
		return "😴"
	default:
		return "👍"
	}
}

// PostProcess runs after the generation collaborator returned a
// response: records the interaction, applies relationship-weighted
// bonus XP, and stamps the bot-message time.
func (e *BehaviorEngine) PostProcess(p *persona.CompiledPersona, msg Message, response string) {
	ch := e.channel(msg.ChannelID)
	ch.mu.Lock()
	defer ch.mu.Unlock()

	st := ch.state
	st.normalize()
	st.LastBotMessageAt = e.now()

	sent := e.classifier.Classify(msg.Content)
	delta := 1.0
	if sent.Valence < -0.3 {
		delta = -1.0
	}
	memory := summarizeExchange(msg.Content, response)
	rel := e.relationships.RecordInteraction(p.PersonaID, msg.AuthorID, delta, memory)

	// Deeper relationships earn bonus XP.
	var bonus int64
	switch rel.Stage {
	case StageBesties:
		bonus = 3
	case StageFriends:
		bonus = 2
	case StageAcquaintances, StageFrenemies:
		bonus = 1
	}
	if bonus > 0 {
		AddXP(&st.Evolution, bonus, e.milestones)
	}
}

func summarizeExchange(in, out string) string {
	const maxLen = 120
	s := strings.TrimSpace(in)
	if len([]rune(s)) > maxLen {
		s = string([]rune(s)[:maxLen])
	}
	if s == "" {
		return ""
	}
	return "discussed: " + s
}

// StateView returns a deep copy of a channel's behavior state for the
// assembler. The copy shares nothing with the live state, so it can be
// read or marshaled without the channel lock.
func (e *BehaviorEngine) StateView(channelID string) BehaviorState {
	ch := e.channel(channelID)
	ch.mu.Lock()
	defer ch.mu.Unlock()
	ch.state.normalize()
	return ch.state.clone()
}

// Milestones returns the engine's milestone ladder.
func (e *BehaviorEngine) Milestones() []Milestone { return e.milestones }

// Snapshot returns persistable copies of every channel state.
func (e *BehaviorEngine) Snapshot() map[string]BehaviorState {
	e.mu.RLock()
	ids := make([]string, 0, len(e.channels))
	for id := range e.channels {
		ids = append(ids, id)
	}
	e.mu.RUnlock()

	out := make(map[string]BehaviorState, len(ids))
	for _, id := range ids {
		out[id] = e.StateView(id)
	}
	return out
}

// Restore loads persisted channel states. Each state is deep-copied so
// the live engine never aliases the caller's maps. Invalid snapshots
// were already discarded by the store layer.
func (e *BehaviorEngine) Restore(states map[string]BehaviorState) {
	for id := range states {
		st := states[id]
		cp := st.clone()
		cp.normalize()
		ch := e.channel(id)
		ch.mu.Lock()
		ch.state = &cp
		ch.mu.Unlock()
	}
}
