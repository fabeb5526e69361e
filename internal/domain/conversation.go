package domain

import "time"

// Role distinguishes who produced a turn.
type Role string

const (
	RoleUser   Role = "USER"
	RoleSystem Role = "SYSTEM"
)

// ConversationSummary is the lightweight listing entry for a conversation,
// distinct from its full message history.
type ConversationSummary struct {
	ConversationID string    `json:"conversationId"`
	Title          string    `json:"title"`
	StartTime      time.Time `json:"startTime"`
}

// TextSpan marks a region of a system turn's body that a citation covers.
// Only the end offset participates in annotation; it is used as a cut point.
type TextSpan struct {
	BeginOffset int `json:"beginOffset"`
	EndOffset   int `json:"endOffset"`
}

// SourceAttribution is a reference justifying part of a system turn's text.
// CitationNumber is assigned during dedupe and is zero until then.
type SourceAttribution struct {
	Title          string     `json:"title"`
	URL            string     `json:"url"`
	Snippet        string     `json:"snippet,omitempty"`
	TextSpans      []TextSpan `json:"textMessageSegments,omitempty"`
	CitationNumber int        `json:"-"`
}

// Turn is one message within a conversation. Citations are only ever present
// on system turns.
type Turn struct {
	MessageID    string              `json:"messageId"`
	Body         string              `json:"body"`
	Time         time.Time           `json:"time"`
	Role         Role                `json:"type"`
	Citations    []SourceAttribution `json:"sourceAttribution,omitempty"`
	HasCitations bool                `json:"-"`
}
