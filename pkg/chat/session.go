package chat

import (
	"context"
	"encoding/json"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/becomevocal/vanilla-agent-go/pkg/contentparser"
	"github.com/becomevocal/vanilla-agent-go/pkg/protocol"
)

// Status is the session-level connection state.
type Status string

const (
	StatusIdle       Status = "idle"
	StatusConnecting Status = "connecting"
	StatusConnected  Status = "connected"
	StatusError      Status = "error"
)

// Attachment is a file sent along with a user message.
type Attachment struct {
	Name        string `json:"name"`
	ContentType string `json:"contentType,omitempty"`
	URL         string `json:"url,omitempty"`
	Data        []byte `json:"data,omitempty"`
}

// Request is the outbound dispatch request. Hooks may mutate it before the
// transport opens the stream.
type Request struct {
	ConversationID string         `json:"conversationId"`
	Message        string         `json:"message"`
	Attachments    []Attachment   `json:"attachments,omitempty"`
	History        []Message      `json:"history,omitempty"`
	Metadata       map[string]any `json:"metadata,omitempty"`
}

// SendOption adjusts one dispatch.
type SendOption func(*Request)

// WithAttachments sends files with the message. A dispatch with attachments
// proceeds even when the text is blank.
func WithAttachments(atts ...Attachment) SendOption {
	return func(r *Request) { r.Attachments = append(r.Attachments, atts...) }
}

// SendHook runs before each dispatch. A hook error skips that hook only;
// the dispatch proceeds.
type SendHook func(ctx context.Context, req *Request) error

// Finalizer post-processes a completed assistant message and may replace
// its displayed content. Implemented by the action manager so the session
// never needs to know about action semantics.
type Finalizer interface {
	FinalizeMessage(m Message) (string, bool)
}

// Session owns one conversation: the ordered message list, the dispatch
// lifecycle and the connection status. All exported methods are safe for
// concurrent use.
type Session struct {
	id        string
	transport Transport
	newParser contentparser.Factory
	hooks     []SendHook
	finalizer Finalizer
	publisher message.Publisher
	metadata  map[string]any
	log       zerolog.Logger
	now       func() time.Time

	mu           sync.Mutex
	messages     []Message
	index        map[string]int
	status       Status
	lastError    string
	seq          int64
	cancel       context.CancelFunc
	gen          uint64
	listeners    []func([]Message)
	errListeners []func(string)
}

// Option configures a Session.
type Option func(*Session)

func WithTransport(t Transport) Option {
	return func(s *Session) { s.transport = t }
}

func WithParserFactory(f contentparser.Factory) Option {
	return func(s *Session) { s.newParser = f }
}

func WithParserMode(mode contentparser.Mode) Option {
	return func(s *Session) {
		s.newParser = func() contentparser.Parser { return contentparser.New(mode) }
	}
}

func WithSendHook(h SendHook) Option {
	return func(s *Session) { s.hooks = append(s.hooks, h) }
}

func WithFinalizer(f Finalizer) Option {
	return func(s *Session) { s.finalizer = f }
}

// WithPublisher mirrors every message snapshot onto the conversation topic
// so transports like websockets can fan out updates.
func WithPublisher(pub message.Publisher) Option {
	return func(s *Session) { s.publisher = pub }
}

func WithMetadata(md map[string]any) Option {
	return func(s *Session) { s.metadata = md }
}

func WithLogger(l zerolog.Logger) Option {
	return func(s *Session) { s.log = l }
}

func WithClock(now func() time.Time) Option {
	return func(s *Session) { s.now = now }
}

func WithID(id string) Option {
	return func(s *Session) { s.id = id }
}

func NewSession(opts ...Option) *Session {
	s := &Session{
		status: StatusIdle,
		index:  map[string]int{},
		now:    time.Now,
		log:    log.With().Str("component", "session").Logger(),
	}
	for _, o := range opts {
		o(s)
	}
	if s.id == "" {
		s.id = uuid.NewString()
	}
	if s.newParser == nil {
		s.newParser = func() contentparser.Parser { return contentparser.NewIncrementalJSON() }
	}
	// Sequences survive hydration boundaries because they are seeded from
	// the wall clock rather than starting at zero.
	s.seq = s.now().UnixMilli()
	s.log = s.log.With().Str("conversation_id", s.id).Logger()
	return s
}

func (s *Session) ID() string { return s.id }

// Topic is the per-conversation publish topic for snapshot fan-out.
func (s *Session) Topic() string { return "chat:" + s.id }

func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

func (s *Session) LastError() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastError
}

// Messages returns a deep-cloned snapshot of the ordered list.
func (s *Session) Messages() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cloneMessagesLocked()
}

// OnMessages registers a listener invoked with a cloned full list after
// every change.
func (s *Session) OnMessages(fn func([]Message)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

// OnError registers a listener for stream error events. Both server-sent
// errors and per-block decode errors arrive here; only the former affect
// the session status.
func (s *Session) OnError(fn func(message string)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errListeners = append(s.errListeners, fn)
}

// SendMessage appends the user message, opens the transport stream and
// pumps protocol events into the assembler until the stream ends. It blocks
// for the duration of the exchange; Cancel from another goroutine aborts
// it. A blank message is a no-op.
func (s *Session) SendMessage(ctx context.Context, text string, opts ...SendOption) error {
	req := Request{Message: text}
	for _, o := range opts {
		o(&req)
	}
	if strings.TrimSpace(text) == "" && len(req.Attachments) == 0 {
		return nil
	}
	if s.transport == nil {
		return errors.New("chat session: no transport configured")
	}

	s.Cancel()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.mu.Lock()
	// Each dispatch owns a generation; teardown from a superseded dispatch
	// must never touch the controller or status the newer one installed.
	s.gen++
	gen := s.gen
	s.cancel = cancel
	s.lastError = ""
	s.finishStreamingLocked()
	user := Message{
		ID:        "user-" + uuid.NewString(),
		Role:      RoleUser,
		Content:   text,
		CreatedAt: s.now(),
		Sequence:  s.nextSeqLocked(),
	}
	s.upsertLocked(user)
	s.setStatusLocked(StatusConnecting, "")
	req.ConversationID = s.id
	req.History = s.cloneMessagesLocked()
	if req.Metadata == nil {
		req.Metadata = s.metadata
	}
	s.mu.Unlock()
	s.notify()

	for _, h := range s.hooks {
		if err := h(ctx, &req); err != nil {
			s.log.Warn().Err(err).Msg("send hook failed, skipping")
		}
	}

	body, err := s.transport.Open(ctx, req)
	if err != nil {
		s.log.Error().Err(err).Msg("transport open failed")
		s.mu.Lock()
		if gen != s.gen {
			s.mu.Unlock()
			return errors.Wrap(err, "chat session: open stream")
		}
		s.cancel = nil
		s.upsertLocked(Message{
			ID:        "assistant-" + uuid.NewString(),
			Role:      RoleAssistant,
			Variant:   VariantAssistant,
			Content:   "Sorry, something went wrong while sending your message.",
			CreatedAt: s.now(),
			Sequence:  s.nextSeqLocked(),
		})
		// Transport failure returns the session to idle; the error itself
		// travels through the return value and lastError.
		s.setStatusLocked(StatusIdle, "")
		s.lastError = err.Error()
		s.mu.Unlock()
		s.notify()
		return errors.Wrap(err, "chat session: open stream")
	}
	defer func() { _ = body.Close() }()
	// Unblock a pending Read on cancellation even when the body is not
	// context-aware.
	go func() {
		<-ctx.Done()
		_ = body.Close()
	}()
	s.setStatus(StatusConnected, "")

	asm := NewAssembler(AssemblerOptions{
		NewParser: s.newParser,
		Emit:      s.acceptSnapshot,
		NextSeq:   s.nextSeq,
		Now:       s.now,
		Logger:    &s.log,
	})
	err = s.pump(ctx, body, asm)

	s.mu.Lock()
	if gen != s.gen {
		// A newer dispatch took over; its teardown owns the status, the
		// streaming flags and the controller.
		s.mu.Unlock()
		return nil
	}
	s.finishStreamingLocked()
	s.cancel = nil
	switch {
	case errors.Is(err, context.Canceled) || ctx.Err() != nil:
		s.setStatusLocked(StatusIdle, "")
		err = nil
	case err != nil:
		s.setStatusLocked(StatusError, err.Error())
	case s.lastError != "":
		s.setStatusLocked(StatusError, s.lastError)
	default:
		s.setStatusLocked(StatusIdle, "")
	}
	s.mu.Unlock()
	s.notify()
	return err
}

func (s *Session) pump(ctx context.Context, body io.Reader, asm *Assembler) error {
	dec := protocol.NewDecoder()
	buf := make([]byte, 4096)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, err := body.Read(buf)
		if n > 0 {
			for _, ev := range dec.Feed(buf[:n]) {
				s.applyEvent(asm, ev)
			}
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return errors.Wrap(err, "chat session: read stream")
		}
	}
	for _, ev := range dec.Flush() {
		s.applyEvent(asm, ev)
	}
	return nil
}

func (s *Session) applyEvent(asm *Assembler, ev protocol.Event) {
	if ev.Kind == protocol.KindError {
		msg := ev.Payload.Error
		if msg == "" {
			msg = "stream error"
		}
		s.log.Warn().Bool("synthetic", ev.Synthetic).Str("error", msg).Msg("stream reported an error event")
		s.mu.Lock()
		// A decode error on one block is non-fatal: it reaches error
		// listeners, but only server-sent error events end the stream in
		// the error status.
		if !ev.Synthetic {
			s.lastError = msg
		}
		errListeners := append([]func(string){}, s.errListeners...)
		s.mu.Unlock()
		for _, fn := range errListeners {
			fn(msg)
		}
		return
	}
	asm.Apply(ev)
}

// acceptSnapshot folds an assembler snapshot into the ordered list. A
// completed assistant message passes through the finalizer exactly once,
// before any consumer observes it.
func (s *Session) acceptSnapshot(m Message) {
	if !m.Streaming && m.Variant == VariantAssistant && s.finalizer != nil {
		if text, ok := s.finalizer.FinalizeMessage(m); ok {
			m.Content = text
		}
	}
	s.mu.Lock()
	s.upsertLocked(m)
	s.mu.Unlock()
	s.notify()
}

// Streaming reports whether a dispatch is in flight.
func (s *Session) Streaming() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status == StatusConnecting || s.status == StatusConnected
}

// Cancel aborts the in-flight dispatch, leaving partial messages in place
// and returning the session to idle.
func (s *Session) Cancel() {
	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	if cancel != nil {
		s.setStatusLocked(StatusIdle, "")
	}
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Hydrate replaces the list with persisted records. Streaming flags are
// stripped since a hydrated message can no longer receive chunks.
func (s *Session) Hydrate(msgs []Message) {
	s.Cancel()
	s.mu.Lock()
	s.messages = s.messages[:0]
	s.index = map[string]int{}
	for _, m := range msgs {
		m.Streaming = false
		s.upsertLocked(m.Clone())
	}
	s.setStatusLocked(StatusIdle, "")
	s.mu.Unlock()
	s.notify()
}

// Clear empties the conversation.
func (s *Session) Clear() {
	s.Cancel()
	s.mu.Lock()
	s.messages = s.messages[:0]
	s.index = map[string]int{}
	s.setStatusLocked(StatusIdle, "")
	s.mu.Unlock()
	s.notify()
}

// --- internals; callers hold s.mu unless noted ---

func (s *Session) nextSeqLocked() int64 {
	s.seq++
	return s.seq
}

func (s *Session) nextSeq() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nextSeqLocked()
}

func (s *Session) setStatusLocked(st Status, lastError string) {
	s.status = st
	if st == StatusError {
		if lastError != "" {
			s.lastError = lastError
		}
	} else if st != StatusIdle {
		s.lastError = ""
	}
}

func (s *Session) setStatus(st Status, lastError string) {
	s.mu.Lock()
	s.setStatusLocked(st, lastError)
	s.mu.Unlock()
}

// upsertLocked inserts or replaces by id and restores the canonical order.
// Re-sorting an already ordered list is a no-op, so the operation is
// idempotent.
func (s *Session) upsertLocked(m Message) {
	if i, ok := s.index[m.ID]; ok {
		s.messages[i] = m
	} else {
		s.messages = append(s.messages, m)
	}
	sort.SliceStable(s.messages, func(i, j int) bool {
		return lessMessages(s.messages[i], s.messages[j])
	})
	for i := range s.messages {
		s.index[s.messages[i].ID] = i
	}
}

func (s *Session) finishStreamingLocked() {
	for i := range s.messages {
		s.messages[i].Streaming = false
	}
}

func (s *Session) cloneMessagesLocked() []Message {
	out := make([]Message, len(s.messages))
	for i, m := range s.messages {
		out[i] = m.Clone()
	}
	return out
}

// notify runs listeners and the publisher outside the lock.
func (s *Session) notify() {
	s.mu.Lock()
	snapshot := s.cloneMessagesLocked()
	listeners := append([]func([]Message){}, s.listeners...)
	pub := s.publisher
	s.mu.Unlock()

	for _, fn := range listeners {
		fn(snapshot)
	}
	if pub != nil {
		payload, err := json.Marshal(snapshot)
		if err != nil {
			s.log.Error().Err(err).Msg("marshal snapshot for publish")
			return
		}
		if err := pub.Publish(s.Topic(), message.NewMessage(watermill.NewUUID(), payload)); err != nil {
			s.log.Warn().Err(err).Msg("publish snapshot")
		}
	}
}
