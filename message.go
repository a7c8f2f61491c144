package ensemble

import (
	"context"
	"errors"
	"time"
)

// ──────────────────────────────────────────────
// Gateway boundary — inbound messages, outbound directives
// ──────────────────────────────────────────────

// Message is an inbound chat message as delivered by the platform gateway.
type Message struct {
	ID        string    `json:"id"`
	ChannelID string    `json:"channel_id"`
	AuthorID  string    `json:"author_id"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
	IsReply   bool      `json:"is_reply"`
	Mentions  []string  `json:"mentions,omitempty"`
	FromBot   bool      `json:"from_bot,omitempty"`
}

// Gateway is the outbound half of the chat-platform boundary.
type Gateway interface {
	SendText(ctx context.Context, channelID, text string) error
	AddReaction(ctx context.Context, messageID, emoji string) error
}

// DirectiveKind classifies what the behavior engine wants done.
type DirectiveKind string

const (
	// DirectiveReaction asks the gateway to add an emoji reaction.
	DirectiveReaction DirectiveKind = "reaction"
	// DirectiveEngage asks for an unprompted text contribution.
	DirectiveEngage DirectiveKind = "engage"
	// DirectiveFollowUp carries a generated curiosity follow-up question.
	DirectiveFollowUp DirectiveKind = "followup"
)

// Directive is one action the engine decided to take for a message or tick.
type Directive struct {
	Kind      DirectiveKind
	ChannelID string
	MessageID string // set for reactions
	Emoji     string // set for reactions
	Text      string // set for follow-ups
	Reason    string // "interest" / "curiosity" / "ambient" / ...
}

// ErrGenerationFailed flags that the text-generation collaborator failed.
// The orchestrator returns it to the caller instead of fabricating content.
var ErrGenerationFailed = errors.New("text generation failed")
