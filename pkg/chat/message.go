// Package chat turns decoded protocol events into an ordered, duplicate-free
// conversation: the assembler owns in-flight message state, the session owns
// the message list and the dispatch lifecycle.
package chat

import "time"

// Role of a conversation message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Variant distinguishes the three message shapes of the stream. It is
// immutable after creation.
type Variant string

const (
	VariantAssistant Variant = "assistant"
	VariantReasoning Variant = "reasoning"
	VariantTool      Variant = "tool"
)

// ReasoningStatus is the lifecycle of one reasoning episode.
type ReasoningStatus string

const (
	ReasoningPending   ReasoningStatus = "pending"
	ReasoningStreaming ReasoningStatus = "streaming"
	ReasoningComplete  ReasoningStatus = "complete"
)

// ToolStatus is the lifecycle of one tool invocation.
type ToolStatus string

const (
	ToolPending  ToolStatus = "pending"
	ToolRunning  ToolStatus = "running"
	ToolComplete ToolStatus = "complete"
)

// Reasoning is one logical "thinking" episode tracked across multiple
// events. Chunks are append-only while the status is streaming.
type Reasoning struct {
	ID          string          `json:"id"`
	Status      ReasoningStatus `json:"status"`
	Chunks      []string        `json:"chunks,omitempty"`
	StartedAt   time.Time       `json:"startedAt,omitzero"`
	CompletedAt time.Time       `json:"completedAt,omitzero"`
	DurationMs  int64           `json:"durationMs,omitempty"`
}

// ToolCall mirrors Reasoning's lifecycle with structured args and result.
type ToolCall struct {
	ID          string         `json:"id"`
	Name        string         `json:"name,omitempty"`
	Status      ToolStatus     `json:"status"`
	Args        map[string]any `json:"args,omitempty"`
	Chunks      []string       `json:"chunks,omitempty"`
	Result      string         `json:"result,omitempty"`
	DurationMs  int64          `json:"durationMs,omitempty"`
	StartedAt   time.Time      `json:"startedAt,omitzero"`
	CompletedAt time.Time      `json:"completedAt,omitzero"`
}

// Message is one entry of a session's ordered list. Content is the
// displayable text; RawContent is the accumulated structured payload (empty
// once a message resolves to plain text). The assembler mutates a message
// only while Streaming is true; snapshots handed to consumers are deep
// clones and a completed message never changes again.
type Message struct {
	ID         string     `json:"id"`
	Role       Role       `json:"role"`
	Content    string     `json:"content"`
	CreatedAt  time.Time  `json:"createdAt"`
	Streaming  bool       `json:"streaming"`
	Variant    Variant    `json:"variant"`
	Sequence   int64      `json:"sequence"`
	RawContent string     `json:"rawContent,omitempty"`
	Reasoning  *Reasoning `json:"reasoning,omitempty"`
	ToolCall   *ToolCall  `json:"toolCall,omitempty"`
}

// Clone returns a deep copy so consumer-held snapshots never alias the
// assembler's mutable state.
func (m Message) Clone() Message {
	out := m
	if m.Reasoning != nil {
		r := *m.Reasoning
		r.Chunks = append([]string(nil), m.Reasoning.Chunks...)
		out.Reasoning = &r
	}
	if m.ToolCall != nil {
		tc := *m.ToolCall
		tc.Chunks = append([]string(nil), m.ToolCall.Chunks...)
		if m.ToolCall.Args != nil {
			tc.Args = make(map[string]any, len(m.ToolCall.Args))
			for k, v := range m.ToolCall.Args {
				tc.Args[k] = v
			}
		}
		out.ToolCall = &tc
	}
	return out
}

// lessMessages is the canonical list ordering: createdAt ascending, then
// sequence, then id. Zero timestamps (hydrated records whose createdAt did
// not parse) fall through to the sequence tiebreak.
func lessMessages(a, b Message) bool {
	if !a.CreatedAt.IsZero() && !b.CreatedAt.IsZero() && !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	if a.Sequence != b.Sequence {
		return a.Sequence < b.Sequence
	}
	return a.ID < b.ID
}
