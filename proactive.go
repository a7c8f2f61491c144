package ensemble

import (
	"context"
	"fmt"
	"strings"

	"github.com/emberworks/ensemble-sdk-go/persona"
)

// ──────────────────────────────────────────────
// Proactive engagement — speaking up without being addressed
// ──────────────────────────────────────────────

// maybeEngage decides whether the persona joins the conversation
// unprompted. Called under the channel lock.
//
// Probability = base, zeroed by an avoidance match, multiplied up by an
// interest match and the mood multiplier, reduced by the conflict
// penalty; then gated by the proactive cooldown. A successful trial is
// still subject to the unwelcome-engagement veto; timeout or a negative
// answer suppresses the engagement.
func (e *BehaviorEngine) maybeEngage(ctx context.Context, ch *channelState, p *persona.CompiledPersona, msg Message, interest, avoided bool) (Directive, bool) {
	st := ch.state
	now := e.now()

	if avoided {
		return Directive{}, false
	}
	cooldown := p.Framework.Decision.ProactiveCooldown
	if !st.LastProactiveAt.IsZero() && now.Sub(st.LastProactiveAt) < cooldown {
		return Directive{}, false
	}

	prob := e.cfg.ProactiveBase
	if interest {
		prob *= e.cfg.InterestMultiplier
	}
	prob *= st.Mood.EngagementMultiplier()
	prob -= e.relationships.GetTension(p.PersonaID, msg.AuthorID) * e.cfg.ConflictPenalty
	if !e.roll(prob) {
		return Directive{}, false
	}

	if !e.engagementWelcome(ctx, p.Name(), ch.recent) {
		e.log.Debug().Str("channel_id", msg.ChannelID).
			Str("persona_id", p.PersonaID).
			Msg("proactive engagement vetoed")
		return Directive{}, false
	}

	st.LastProactiveAt = now
	return Directive{
		Kind:      DirectiveEngage,
		ChannelID: msg.ChannelID,
		Reason:    "interest",
	}, true
}

// engagementWelcome asks the decision collaborator whether an
// unprompted message would be welcome right now. The guarded decider
// already fails safe: no collaborator, timeout, or error all read as
// "not welcome".
func (e *BehaviorEngine) engagementWelcome(ctx context.Context, personaName string, recent []Message) bool {
	// Local guard first: a trail of unanswered bot messages means the
	// channel is already drifting into bot monologue.
	if trailingBotMessages(recent) >= 2 {
		return false
	}
	return e.decider.Decide(ctx, vetoPrompt(personaName, recent, e.cfg.VetoHistory))
}

// trailingBotMessages counts consecutive bot messages at the tail of
// the recent window.
func trailingBotMessages(recent []Message) int {
	n := 0
	for i := len(recent) - 1; i >= 0; i-- {
		if !recent[i].FromBot {
			break
		}
		n++
	}
	return n
}

// vetoPrompt renders the last few messages for the welcome check.
func vetoPrompt(personaName string, recent []Message, limit int) string {
	if limit <= 0 {
		limit = 5
	}
	start := len(recent) - limit
	if start < 0 {
		start = 0
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s is considering sending an unprompted message to this channel.\n", personaName)
	b.WriteString("Recent messages:\n")
	if len(recent) == 0 {
		b.WriteString("(none)\n")
	}
	for _, m := range recent[start:] {
		who := m.AuthorID
		if m.FromBot {
			who += " (bot)"
		}
		fmt.Fprintf(&b, "- %s: %s\n", who, m.Content)
	}
	b.WriteString("Would another message from the character be welcome right now? Answer yes or no.")
	return b.String()
}
