package protocol

import (
	"encoding/json"
	"strconv"
	"strings"
)

// Kind identifies one of the protocol event kinds consumed downstream.
type Kind string

const (
	KindReasonStart    Kind = "reason_start"
	KindReasonChunk    Kind = "reason_chunk"
	KindReasonComplete Kind = "reason_complete"
	KindToolStart      Kind = "tool_start"
	KindToolChunk      Kind = "tool_chunk"
	KindToolComplete   Kind = "tool_complete"
	KindStepChunk      Kind = "step_chunk"
	KindStepComplete   Kind = "step_complete"
	KindFlowComplete   Kind = "flow_complete"
	KindError          Kind = "error"

	// KindIgnored is the explicit branch for event types we do not consume.
	KindIgnored Kind = "ignored"
)

func classifyKind(s string) Kind {
	switch Kind(s) {
	case KindReasonStart, KindReasonChunk, KindReasonComplete,
		KindToolStart, KindToolChunk, KindToolComplete,
		KindStepChunk, KindStepComplete, KindFlowComplete, KindError:
		return Kind(s)
	default:
		return KindIgnored
	}
}

// Result carries the structured completion payload of a step, flow or tool
// call. Raw retains the original JSON since tool results are free-form.
type Result struct {
	Response string
	Raw      json.RawMessage
}

func (r *Result) UnmarshalJSON(b []byte) error {
	r.Raw = append(r.Raw[:0], b...)
	var obj struct {
		Response string `json:"response"`
	}
	if err := json.Unmarshal(b, &obj); err == nil {
		r.Response = obj.Response
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		r.Response = s
	}
	return nil
}

func (r Result) MarshalJSON() ([]byte, error) {
	if len(r.Raw) > 0 {
		return r.Raw, nil
	}
	return json.Marshal(map[string]string{"response": r.Response})
}

// Payload is the decoded JSON body of one protocol event block. Identifier
// fields appear in both camelCase and snake_case on the wire; use the
// accessor methods instead of reading the raw fields.
type Payload struct {
	Type        string `json:"type,omitempty"`
	ID          string `json:"id,omitempty"`
	ReasoningID string `json:"reasoningId,omitempty"`
	ToolID      string `json:"toolId,omitempty"`

	StepID      any `json:"stepId,omitempty"`
	StepIDSnake any `json:"step_id,omitempty"`
	CallID      any `json:"callId,omitempty"`
	CallIDSnake any `json:"call_id,omitempty"`
	RequestID   any `json:"requestId,omitempty"`

	Text       string `json:"text,omitempty"`
	Delta      string `json:"delta,omitempty"`
	Content    string `json:"content,omitempty"`
	IsComplete bool   `json:"isComplete,omitempty"`
	Hidden     bool   `json:"hidden,omitempty"`

	ToolName   string         `json:"toolName,omitempty"`
	Args       map[string]any `json:"args,omitempty"`
	Result     *Result        `json:"result,omitempty"`
	Duration   float64        `json:"duration,omitempty"`
	DurationMs float64        `json:"durationMs,omitempty"`

	ExecutionType string `json:"executionType,omitempty"`
	Error         string `json:"error,omitempty"`
}

// Event is one framed, classified protocol event. Synthetic marks events
// the decoder fabricated for a malformed block, as opposed to error events
// the server actually sent.
type Event struct {
	Kind      Kind
	Payload   Payload
	Raw       []byte
	Synthetic bool
}

// TextChunk returns the display-text fragment of the payload, preferring
// text over delta over content.
func (p *Payload) TextChunk() string {
	if p.Text != "" {
		return p.Text
	}
	if p.Delta != "" {
		return p.Delta
	}
	return p.Content
}

// CorrelationKey derives a normalized correlation key from the candidate id
// fields; first non-null wins. An empty string means no key.
func (p *Payload) CorrelationKey() string {
	for _, v := range []any{p.StepID, p.StepIDSnake, p.CallID, p.CallIDSnake, p.RequestID} {
		if s := coerceString(v); s != "" {
			return s
		}
	}
	return ""
}

// ReasoningEventID returns the explicit reasoning id carried by the event,
// if any.
func (p *Payload) ReasoningEventID() string {
	if p.ReasoningID != "" {
		return p.ReasoningID
	}
	return p.ID
}

// ToolEventID returns the explicit tool id carried by the event, if any.
func (p *Payload) ToolEventID() string {
	if p.ToolID != "" {
		return p.ToolID
	}
	return p.ID
}

// ResultResponse returns result.response when present.
func (p *Payload) ResultResponse() string {
	if p.Result == nil {
		return ""
	}
	return p.Result.Response
}

// ToolResultText returns the best display form of a tool result: the
// response field when present, else the raw JSON payload.
func (p *Payload) ToolResultText() string {
	if p.Result == nil {
		return ""
	}
	if p.Result.Response != "" {
		return p.Result.Response
	}
	return strings.TrimSpace(string(p.Result.Raw))
}

// DurationMillis returns the explicit duration of the payload in
// milliseconds, preferring durationMs over duration. ok is false when the
// payload carries no duration.
func (p *Payload) DurationMillis() (int64, bool) {
	if p.DurationMs > 0 {
		return int64(p.DurationMs), true
	}
	if p.Duration > 0 {
		return int64(p.Duration), true
	}
	return 0, false
}

// IsToolExecution reports whether a step event actually belongs to a tool or
// context execution. Those are carried exclusively by the tool_* kinds and
// must be skipped when seen as steps to avoid double-counting.
func (p *Payload) IsToolExecution() bool {
	switch strings.ToLower(strings.TrimSpace(p.ExecutionType)) {
	case "tool", "context":
		return true
	default:
		return false
	}
}

// coerceString normalizes an identifier candidate via string coercion.
// Unsupported shapes yield "" (no key).
func coerceString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	case float64:
		if t == float64(int64(t)) {
			return strconv.FormatInt(int64(t), 10)
		}
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case json.Number:
		return t.String()
	default:
		return ""
	}
}
