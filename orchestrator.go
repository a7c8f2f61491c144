package ensemble

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/emberworks/ensemble-sdk-go/persona"
)

// ──────────────────────────────────────────────
// Orchestrator — message → persona → prompt → response
// ──────────────────────────────────────────────

const historyCap = 50

// StatePersister is what the orchestrator needs from a state store.
// Satisfied by store.MemoryStore and store.RedisStore.
type StatePersister interface {
	SaveBehavior(ctx context.Context, channelID string, st BehaviorState) error
	LoadBehavior(ctx context.Context) (map[string]BehaviorState, error)
	SaveRelationships(ctx context.Context, pairs map[string]Relationship) error
	LoadRelationships(ctx context.Context) (map[string]Relationship, error)
}

// Response is the outcome of handling one message.
type Response struct {
	Persona    *persona.CompiledPersona
	Reason     RouteReason
	Text       string
	Directives []Directive
}

// OrchestratorOptions wires the orchestrator's collaborators.
// Roster, Engine, Router, Assembler, and Generator are required for
// response generation; Retriever, Lorebook, Gateway, and Store are
// optional.
type OrchestratorOptions struct {
	Roster    []*persona.CompiledPersona
	Router    *PersonaRouter
	Engine    *BehaviorEngine
	Retriever *RAGRetriever
	Lorebook  *LorebookMatcher
	Assembler *ContextAssembler
	Generator Generator
	Gateway   Gateway
	Store     StatePersister
	Logger    zerolog.Logger

	// TokenBudget for assembled prompts.
	TokenBudget int
	// TopK retrieved chunks per message.
	TopK int
	// MaxResponseTokens passed to the generator.
	MaxResponseTokens int
}

// Orchestrator routes incoming messages to personas, advances their
// behavior, assembles bounded prompts, and hands off to the generation
// collaborator.
type Orchestrator struct {
	roster    []*persona.CompiledPersona
	router    *PersonaRouter
	engine    *BehaviorEngine
	retriever *RAGRetriever
	lorebook  *LorebookMatcher
	assembler *ContextAssembler
	generator Generator
	gateway   Gateway
	store     StatePersister
	log       zerolog.Logger

	tokenBudget       int
	topK              int
	maxResponseTokens int

	histMu  sync.Mutex
	history map[string][]HistoryMessage

	flushMu   sync.Mutex
	flushStop chan struct{}
}

// NewOrchestrator creates the top-level orchestrator.
func NewOrchestrator(opts OrchestratorOptions) *Orchestrator {
	if opts.TokenBudget <= 0 {
		opts.TokenBudget = 8000
	}
	if opts.TopK <= 0 {
		opts.TopK = 5
	}
	if opts.MaxResponseTokens <= 0 {
		opts.MaxResponseTokens = 400
	}
	if opts.Assembler == nil {
		opts.Assembler = NewContextAssembler()
	}
	return &Orchestrator{
		roster:            opts.Roster,
		router:            opts.Router,
		engine:            opts.Engine,
		retriever:         opts.Retriever,
		lorebook:          opts.Lorebook,
		assembler:         opts.Assembler,
		generator:         opts.Generator,
		gateway:           opts.Gateway,
		store:             opts.Store,
		log:               opts.Logger,
		tokenBudget:       opts.TokenBudget,
		topK:              opts.TopK,
		maxResponseTokens: opts.MaxResponseTokens,
		history:           map[string][]HistoryMessage{},
	}
}

// HandleMessage runs the full pipeline for one inbound message.
// Returns a nil-text Response when no persona chose to respond.
func (o *Orchestrator) HandleMessage(ctx context.Context, msg Message) (*Response, error) {
	o.appendHistory(msg.ChannelID, HistoryMessage{Author: msg.AuthorID, Content: msg.Content})

	p, reason := o.router.Select(msg, o.roster)
	if p == nil {
		return nil, nil // empty roster
	}
	addressed := reason == ReasonFullName || reason == ReasonFirstName

	directives := o.engine.OnMessage(ctx, p, msg, addressed)
	o.executeDirectives(ctx, p, directives)

	respond := addressed || reason == ReasonSticky || msg.IsReply
	if !respond {
		for _, d := range directives {
			if d.Kind == DirectiveEngage {
				respond = true
				break
			}
		}
	}
	if !respond {
		return &Response{Persona: p, Reason: reason, Directives: directives}, nil
	}

	text, err := o.respond(ctx, p, msg)
	if err != nil {
		return &Response{Persona: p, Reason: reason, Directives: directives}, err
	}

	o.engine.PostProcess(p, msg, text)
	o.router.RecordResponse(msg.ChannelID, p)
	o.appendHistory(msg.ChannelID, HistoryMessage{Author: p.Name(), Content: text})

	return &Response{Persona: p, Reason: reason, Text: text, Directives: directives}, nil
}

// respond assembles the bounded prompt and calls the generator.
func (o *Orchestrator) respond(ctx context.Context, p *persona.CompiledPersona, msg Message) (string, error) {
	var rag []ScoredChunk
	if o.retriever != nil {
		rag = o.retriever.Search(ctx, msg.Content, p.Character.Knowledge.RetrievalCategories, o.topK)
	}
	var lore []LoreEntry
	if o.lorebook != nil {
		lore = o.lorebook.Match(ctx, msg.Content)
	}

	st := o.engine.StateView(msg.ChannelID)
	prompt, err := o.assembler.Build(BuildInput{
		Persona:          p,
		State:            st,
		Milestones:       o.engine.Milestones(),
		RelationshipText: o.relationshipText(p, msg.AuthorID),
		ConflictText:     conflictText(st, msg.AuthorID),
		RAG:              rag,
		Lore:             lore,
		History:          o.historyView(msg.ChannelID),
		TokenBudget:      o.tokenBudget,
	})
	if err != nil {
		return "", fmt.Errorf("assemble prompt: %w", err)
	}

	text, err := o.generator.Generate(ctx, prompt.Text, o.maxResponseTokens)
	if err != nil {
		// Never fabricate content: surface the flagged failure.
		return "", fmt.Errorf("%w: %v", ErrGenerationFailed, err)
	}

	if o.gateway != nil {
		if err := o.gateway.SendText(ctx, msg.ChannelID, text); err != nil {
			o.log.Warn().Err(err).Str("channel_id", msg.ChannelID).Msg("send failed")
		}
	}
	return text, nil
}

func (o *Orchestrator) relationshipText(p *persona.CompiledPersona, authorID string) string {
	rels := o.engine.Relationships()
	stage := rels.GetStage(p.PersonaID, authorID)
	if stage == StageStrangers {
		return ""
	}
	return fmt.Sprintf("Relationship with %s: %s.", authorID, stage)
}

func conflictText(st BehaviorState, authorID string) string {
	entry, ok := st.Conflicts[authorID]
	if !ok || entry.Tension < 0.3 {
		return ""
	}
	return fmt.Sprintf("There is unresolved tension with %s; keep an edge in the reply.", authorID)
}

// executeDirectives delivers reactions and follow-up questions through
// the gateway. Engage directives are handled by the response path.
func (o *Orchestrator) executeDirectives(ctx context.Context, p *persona.CompiledPersona, directives []Directive) {
	if o.gateway == nil {
		return
	}
	for _, d := range directives {
		switch d.Kind {
		case DirectiveReaction:
			if err := o.gateway.AddReaction(ctx, d.MessageID, d.Emoji); err != nil {
				o.log.Debug().Err(err).Msg("reaction failed")
			}
		case DirectiveFollowUp:
			if err := o.gateway.SendText(ctx, d.ChannelID, d.Text); err != nil {
				o.log.Debug().Err(err).Msg("follow-up send failed")
			}
			o.appendHistory(d.ChannelID, HistoryMessage{Author: p.Name(), Content: d.Text})
		}
	}
}

// HandleAmbient is the AmbientTicker callback: it attributes the lull
// message to the channel's sticky responder (or a random persona),
// generates it, and sends it.
func (o *Orchestrator) HandleAmbient(d Directive) {
	ctx := context.Background()
	p := o.personaForChannel(d.ChannelID)
	if p == nil {
		return
	}

	st := o.engine.StateView(d.ChannelID)
	prompt, err := o.assembler.Build(BuildInput{
		Persona:     p,
		State:       st,
		Milestones:  o.engine.Milestones(),
		History:     o.historyView(d.ChannelID),
		TokenBudget: o.tokenBudget,
	})
	if err != nil {
		o.log.Warn().Err(err).Msg("ambient prompt assembly failed")
		return
	}
	full := prompt.Text + "\n\nThe channel has been quiet for a while. " +
		"Send one short, casual message to restart the conversation."
	if prefs := p.Character.Knowledge.ActivityPrefs; len(prefs) > 0 {
		full += " If it fits, bring up one of: " + strings.Join(prefs, ", ") + "."
	}

	text, err := o.generator.Generate(ctx, full, o.maxResponseTokens)
	if err != nil {
		o.log.Warn().Err(err).Str("channel_id", d.ChannelID).Msg("ambient generation failed")
		return
	}
	if o.gateway != nil {
		if err := o.gateway.SendText(ctx, d.ChannelID, text); err != nil {
			o.log.Warn().Err(err).Msg("ambient send failed")
			return
		}
	}
	o.router.RecordResponse(d.ChannelID, p)
	o.appendHistory(d.ChannelID, HistoryMessage{Author: p.Name(), Content: text})
}

// AmbientFloor reports the ambient interval of the persona that
// HandleAmbient would attribute to the channel. Wire it into the
// ticker's Floor so per-framework intervals hold.
func (o *Orchestrator) AmbientFloor(channelID string) time.Duration {
	if p := o.personaForChannel(channelID); p != nil {
		return p.Framework.Decision.AmbientInterval
	}
	return 0
}

func (o *Orchestrator) personaForChannel(channelID string) *persona.CompiledPersona {
	if id, ok := o.router.LastResponder(channelID); ok {
		for _, p := range o.roster {
			if p.PersonaID == id {
				return p
			}
		}
	}
	if len(o.roster) == 0 {
		return nil
	}
	return o.roster[0]
}

// ─── history ───

func (o *Orchestrator) appendHistory(channelID string, m HistoryMessage) {
	o.histMu.Lock()
	o.history[channelID] = pushBounded(o.history[channelID], m, historyCap)
	o.histMu.Unlock()
}

func (o *Orchestrator) historyView(channelID string) []HistoryMessage {
	o.histMu.Lock()
	defer o.histMu.Unlock()
	return append([]HistoryMessage(nil), o.history[channelID]...)
}

// ─── persistence ───

// Flush writes every channel state and relationship snapshot to the
// store, retrying failed writes with backoff. In-memory state remains
// authoritative either way.
func (o *Orchestrator) Flush(ctx context.Context) error {
	if o.store == nil {
		return nil
	}
	var lastErr error
	for id, st := range o.engine.Snapshot() {
		if err := retryWrite(ctx, func() error { return o.store.SaveBehavior(ctx, id, st) }); err != nil {
			o.log.Warn().Err(err).Str("channel_id", id).Msg("behavior flush failed")
			lastErr = err
		}
	}
	pairs := o.engine.Relationships().Snapshot()
	if err := retryWrite(ctx, func() error { return o.store.SaveRelationships(ctx, pairs) }); err != nil {
		o.log.Warn().Err(err).Msg("relationship flush failed")
		lastErr = err
	}
	return lastErr
}

// StartAutoFlush launches a background loop that flushes state every
// interval until StopAutoFlush. Non-blocking; a second start is a no-op.
func (o *Orchestrator) StartAutoFlush(interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	o.flushMu.Lock()
	if o.flushStop != nil {
		o.flushMu.Unlock()
		return
	}
	stop := make(chan struct{})
	o.flushStop = stop
	o.flushMu.Unlock()

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				if err := o.Flush(context.Background()); err != nil {
					o.log.Warn().Err(err).Msg("periodic flush failed")
				}
			}
		}
	}()
}

// StopAutoFlush halts the background flush loop.
func (o *Orchestrator) StopAutoFlush() {
	o.flushMu.Lock()
	defer o.flushMu.Unlock()
	if o.flushStop != nil {
		close(o.flushStop)
		o.flushStop = nil
	}
}

// RestoreState reloads persisted state at startup. Corrupt records were
// already discarded by the store; load errors leave fresh state.
func (o *Orchestrator) RestoreState(ctx context.Context) {
	if o.store == nil {
		return
	}
	if states, err := o.store.LoadBehavior(ctx); err == nil {
		o.engine.Restore(states)
	} else {
		o.log.Warn().Err(err).Msg("behavior state load failed, starting fresh")
	}
	if pairs, err := o.store.LoadRelationships(ctx); err == nil {
		o.engine.Relationships().Restore(pairs)
	} else {
		o.log.Warn().Err(err).Msg("relationship load failed, starting fresh")
	}
}

func retryWrite(ctx context.Context, fn func() error) error {
	wait := 200 * time.Millisecond
	var err error
	for i := 0; i < 3; i++ {
		if err = fn(); err == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
		wait *= 2
	}
	return err
}
