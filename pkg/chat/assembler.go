package chat

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/becomevocal/vanilla-agent-go/pkg/contentparser"
	"github.com/becomevocal/vanilla-agent-go/pkg/protocol"
)

// Emit receives an immutable message snapshot after every state transition.
type Emit func(Message)

// AssemblerOptions configures a per-dispatch Assembler.
type AssemblerOptions struct {
	NewParser contentparser.Factory
	Emit      Emit
	NextSeq   func() int64
	Now       func() time.Time
	Logger    *zerolog.Logger
}

// Assembler owns the mutable state of every in-flight message of one
// dispatch: the current assistant message with its parser state, plus one
// message per reasoning episode and tool invocation. It lives for exactly
// one dispatch call, like its correlation resolver.
type Assembler struct {
	newParser contentparser.Factory
	emit      Emit
	nextSeq   func() int64
	now       func() time.Time
	log       zerolog.Logger

	res      *resolver
	messages map[string]*Message
	parsers  map[string]*parserState

	currentAssistantID string
}

// parserState is the per-assistant-message extraction state. Entries are
// deleted explicitly on completion; on fallback to plain mode the parser
// and buffer are discarded and raw chunks append to content directly.
type parserState struct {
	parser        contentparser.Parser
	buffer        string
	plain         bool
	everExtracted bool
}

func NewAssembler(opts AssemblerOptions) *Assembler {
	a := &Assembler{
		newParser: opts.NewParser,
		emit:      opts.Emit,
		nextSeq:   opts.NextSeq,
		now:       opts.Now,
		res:       newResolver(),
		messages:  map[string]*Message{},
		parsers:   map[string]*parserState{},
	}
	if a.newParser == nil {
		a.newParser = func() contentparser.Parser { return contentparser.NewIncrementalJSON() }
	}
	if a.nextSeq == nil {
		var seq int64
		a.nextSeq = func() int64 { seq++; return seq }
	}
	if a.now == nil {
		a.now = time.Now
	}
	if opts.Logger != nil {
		a.log = *opts.Logger
	} else {
		a.log = log.With().Str("component", "assembler").Logger()
	}
	return a
}

// Apply advances the message state machine by one protocol event.
func (a *Assembler) Apply(ev protocol.Event) {
	p := &ev.Payload
	switch ev.Kind {
	case protocol.KindStepChunk:
		a.applyStep(p, false)
	case protocol.KindStepComplete:
		a.applyStep(p, true)
	case protocol.KindFlowComplete:
		a.applyFlowComplete(p)
	case protocol.KindReasonStart:
		a.applyReasonStart(p)
	case protocol.KindReasonChunk:
		a.applyReasonChunk(p)
	case protocol.KindReasonComplete:
		a.applyReasonComplete(p)
	case protocol.KindToolStart:
		a.applyToolStart(p)
	case protocol.KindToolChunk:
		a.applyToolChunk(p)
	case protocol.KindToolComplete:
		a.applyToolComplete(p)
	case protocol.KindError, protocol.KindIgnored:
		// Error events are surfaced by the session; ignored kinds are
		// dropped here deliberately.
	}
}

// --- assistant ---

func (a *Assembler) applyStep(p *protocol.Payload, complete bool) {
	msg, st := a.currentAssistant()
	if chunk := p.TextChunk(); chunk != "" {
		if st.plain {
			msg.Content += chunk
		} else {
			st.buffer += chunk
			a.processBuffer(msg, st)
		}
	}
	if complete || p.IsComplete {
		a.finalizeAssistant(msg, st, p.ResultResponse())
		return
	}
	a.emitSnapshot(msg)
}

func (a *Assembler) applyFlowComplete(p *protocol.Payload) {
	if a.currentAssistantID != "" {
		if msg := a.messages[a.currentAssistantID]; msg != nil && msg.Streaming {
			a.finalizeAssistant(msg, a.parsers[msg.ID], p.ResultResponse())
			return
		}
	}
	// Some backends deliver the whole response in the flow completion.
	if p.ResultResponse() != "" {
		msg, st := a.currentAssistant()
		a.finalizeAssistant(msg, st, p.ResultResponse())
	}
}

// currentAssistant returns the streaming assistant message, creating one
// lazily on the first step event.
func (a *Assembler) currentAssistant() (*Message, *parserState) {
	if a.currentAssistantID != "" {
		if m := a.messages[a.currentAssistantID]; m != nil && m.Streaming {
			return m, a.parsers[m.ID]
		}
	}
	m := &Message{
		ID:        "assistant-" + uuid.NewString(),
		Role:      RoleAssistant,
		Variant:   VariantAssistant,
		CreatedAt: a.now(),
		Streaming: true,
		Sequence:  a.nextSeq(),
	}
	st := &parserState{parser: a.newParser()}
	a.messages[m.ID] = m
	a.parsers[m.ID] = st
	a.currentAssistantID = m.ID
	a.log.Debug().Str("message_id", m.ID).Msg("created assistant message")
	return m, st
}

// processBuffer hands the accumulated raw buffer to the parser. Resolved
// text replaces the whole content since structured values are reconstructed
// wholesale as more characters complete the string. A buffer that does not
// look structured flips the message into plain mode permanently.
func (a *Assembler) processBuffer(msg *Message, st *parserState) {
	if st.parser != nil {
		if res, ok := st.parser.ProcessChunk(st.buffer); ok {
			st.everExtracted = true
			msg.RawContent = st.buffer
			if res.Text != "" {
				msg.Content = res.Text
			}
			return
		}
	}
	if st.parser == nil || contentparser.IsPlain(st.parser) || !looksStructured(st.buffer) {
		a.log.Debug().Str("message_id", msg.ID).Msg("falling back to plain text mode")
		st.plain = true
		msg.Content += st.buffer
		msg.RawContent = ""
		if st.parser != nil {
			st.parser.Close()
			st.parser = nil
		}
		st.buffer = ""
		return
	}
	msg.RawContent = st.buffer
}

// finalizeAssistant applies the canonical final-content precedence — cached
// extracted text, then a fresh single-shot decode of the final payload,
// then the raw payload as literal content — and disposes the parser state.
func (a *Assembler) finalizeAssistant(msg *Message, st *parserState, resultResponse string) {
	if msg == nil || !msg.Streaming {
		return
	}
	finalRaw := resultResponse
	if finalRaw == "" && st != nil {
		finalRaw = st.buffer
	}
	switch {
	case st == nil || st.plain || st.parser == nil:
		if msg.Content == "" && finalRaw != "" {
			msg.Content = finalRaw
		}
	default:
		if text, ok := st.parser.ExtractedText(); ok {
			msg.Content = text
			msg.RawContent = finalRaw
		} else if res, ok := st.parser.ProcessChunk(finalRaw); ok {
			msg.Content = res.Text
			msg.RawContent = finalRaw
		} else if !st.everExtracted {
			msg.Content = finalRaw
			msg.RawContent = ""
		}
	}
	msg.Streaming = false
	if st != nil && st.parser != nil {
		st.parser.Close()
	}
	delete(a.parsers, msg.ID)
	if a.currentAssistantID == msg.ID {
		a.currentAssistantID = ""
	}
	a.emitSnapshot(msg)
}

// ApplyExtractedText applies an asynchronously resolved extraction to the
// assistant message it was captured for. It is the completion half of the
// seam used by contentparser.Factory implementations whose parsers resolve
// off the event path (an LLM-backed or network-backed extractor): the parser
// captures CurrentAssistantID when it suspends and calls this once its result
// arrives. The built-in synchronous parsers never need it. The result is
// dropped when that message is no longer the current streaming assistant
// message, so a late resolution cannot cross-talk into a newer message.
func (a *Assembler) ApplyExtractedText(msgID, text string) bool {
	if msgID == "" || msgID != a.currentAssistantID {
		return false
	}
	m := a.messages[msgID]
	if m == nil || !m.Streaming {
		return false
	}
	if text != "" {
		m.Content = text
	}
	a.emitSnapshot(m)
	return true
}

// CurrentAssistantID exposes the identity an asynchronously resolving parser
// must capture before suspending; ApplyExtractedText checks it on completion.
func (a *Assembler) CurrentAssistantID() string { return a.currentAssistantID }

// --- reasoning ---

func (a *Assembler) applyReasonStart(p *protocol.Payload) {
	id := a.res.resolveReasoning(p, true)
	m := a.reasoningMessage(id)
	r := m.Reasoning
	if r.StartedAt.IsZero() {
		r.StartedAt = a.now()
	}
	// An episode may restart; stale completion data is cleared.
	r.CompletedAt = time.Time{}
	r.DurationMs = 0
	r.Status = ReasoningStreaming
	m.Streaming = true
	a.emitSnapshot(m)
}

func (a *Assembler) applyReasonChunk(p *protocol.Payload) {
	id := a.res.resolveReasoning(p, false)
	if id == "" {
		a.log.Debug().Msg("dropping reasoning chunk without an episode to attach to")
		return
	}
	m := a.reasoningMessage(id)
	r := m.Reasoning
	if r.Status == ReasoningPending {
		r.Status = ReasoningStreaming
		if r.StartedAt.IsZero() {
			r.StartedAt = a.now()
		}
	}
	if !p.Hidden {
		if chunk := p.TextChunk(); chunk != "" {
			r.Chunks = append(r.Chunks, chunk)
			m.Content = strings.Join(r.Chunks, "")
		}
	}
	if p.IsComplete {
		a.completeReasoning(m)
		return
	}
	a.emitSnapshot(m)
}

func (a *Assembler) applyReasonComplete(p *protocol.Payload) {
	if id := a.res.resolveReasoning(p, false); id != "" {
		if m := a.messages[id]; m != nil {
			a.completeReasoning(m)
		}
	}
	a.res.completeReasoning(p)
}

func (a *Assembler) completeReasoning(m *Message) {
	r := m.Reasoning
	if r.Status == ReasoningComplete {
		return
	}
	now := a.now()
	if r.StartedAt.IsZero() {
		r.StartedAt = now
	}
	if r.CompletedAt.IsZero() {
		r.CompletedAt = now
	}
	d := r.CompletedAt.Sub(r.StartedAt).Milliseconds()
	if d < 0 {
		d = 0
	}
	r.DurationMs = d
	r.Status = ReasoningComplete
	m.Streaming = false
	a.emitSnapshot(m)
}

func (a *Assembler) reasoningMessage(id string) *Message {
	if m := a.messages[id]; m != nil {
		return m
	}
	m := &Message{
		ID:        id,
		Role:      RoleAssistant,
		Variant:   VariantReasoning,
		CreatedAt: a.now(),
		Streaming: true,
		Sequence:  a.nextSeq(),
		Reasoning: &Reasoning{ID: id, Status: ReasoningPending},
	}
	a.messages[id] = m
	return m
}

// --- tools ---

func (a *Assembler) applyToolStart(p *protocol.Payload) {
	id := a.res.resolveTool(p, true)
	m := a.toolMessage(id)
	tc := m.ToolCall
	if p.ToolName != "" {
		tc.Name = p.ToolName
	}
	if p.Args != nil {
		tc.Args = p.Args
	}
	if tc.StartedAt.IsZero() {
		tc.StartedAt = a.now()
	}
	tc.Status = ToolRunning
	m.Streaming = true
	a.emitSnapshot(m)
}

func (a *Assembler) applyToolChunk(p *protocol.Payload) {
	id := a.res.resolveTool(p, false)
	if id == "" {
		a.log.Debug().Msg("dropping tool chunk without an invocation to attach to")
		return
	}
	m := a.toolMessage(id)
	tc := m.ToolCall
	if tc.Status == ToolPending {
		tc.Status = ToolRunning
	}
	if chunk := p.TextChunk(); chunk != "" {
		tc.Chunks = append(tc.Chunks, chunk)
		m.Content = strings.Join(tc.Chunks, "")
	}
	a.emitSnapshot(m)
}

func (a *Assembler) applyToolComplete(p *protocol.Payload) {
	if id := a.res.resolveTool(p, false); id != "" {
		if m := a.messages[id]; m != nil {
			tc := m.ToolCall
			if res := p.ToolResultText(); res != "" {
				tc.Result = res
			}
			if tc.CompletedAt.IsZero() {
				tc.CompletedAt = a.now()
			}
			if ms, ok := p.DurationMillis(); ok {
				tc.DurationMs = ms
			} else if !tc.StartedAt.IsZero() {
				d := tc.CompletedAt.Sub(tc.StartedAt).Milliseconds()
				if d < 0 {
					d = 0
				}
				tc.DurationMs = d
			}
			tc.Status = ToolComplete
			m.Streaming = false
			a.emitSnapshot(m)
		}
	}
	a.res.completeTool(p)
}

func (a *Assembler) toolMessage(id string) *Message {
	if m := a.messages[id]; m != nil {
		return m
	}
	m := &Message{
		ID:        id,
		Role:      RoleAssistant,
		Variant:   VariantTool,
		CreatedAt: a.now(),
		Streaming: true,
		Sequence:  a.nextSeq(),
		ToolCall:  &ToolCall{ID: id, Status: ToolPending},
	}
	a.messages[id] = m
	return m
}

func (a *Assembler) emitSnapshot(m *Message) {
	if a.emit == nil {
		return
	}
	a.emit(m.Clone())
}

func looksStructured(s string) bool {
	t := strings.TrimSpace(s)
	if t == "" {
		return false
	}
	switch t[0] {
	case '{', '[', '<':
		return true
	}
	return false
}
