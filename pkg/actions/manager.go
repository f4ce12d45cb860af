// Package actions recognizes structured UI actions inside completed
// assistant messages and runs the registered side effects exactly once per
// message.
package actions

import (
	"context"
	"encoding/json"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/becomevocal/vanilla-agent-go/pkg/chat"
)

// Action is one recognized directive extracted from a message payload.
type Action struct {
	Name    string
	Payload map[string]any
}

// Text returns the display text the action carries, if any.
func (a Action) Text() string {
	for _, key := range []string{"text", "display_text", "message"} {
		if s, ok := a.Payload[key].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

func (a Action) payloadString(key string) string {
	s, _ := a.Payload[key].(string)
	return s
}

// Parser extracts an action from a decoded payload object. Parsers form an
// OR-chain: the first one that recognizes the object wins.
type Parser func(obj map[string]any) (Action, bool)

// Handler reacts to one recognized action. The returned text, when ok,
// replaces the message's displayed content. A handler error is logged and
// never interrupts the remaining chain.
type Handler func(ctx context.Context, act Action, m chat.Message) (string, bool, error)

// Manager gates action processing per message id, extracts actions via the
// parser chain and dispatches them to the handler chain. It implements
// chat.Finalizer so sessions can plug it in directly.
type Manager struct {
	store      MetadataStore
	log        zerolog.Logger
	clicker    Clicker
	nav        Navigator
	onDetected func(act Action, messageID string)

	mu       sync.Mutex
	parsers  []Parser
	handlers map[string][]Handler
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

func WithClicker(c Clicker) ManagerOption {
	return func(m *Manager) { m.clicker = c }
}

func WithNavigator(n Navigator) ManagerOption {
	return func(m *Manager) { m.nav = n }
}

func WithParser(p Parser) ManagerOption {
	return func(m *Manager) { m.parsers = append(m.parsers, p) }
}

func WithManagerLogger(l zerolog.Logger) ManagerOption {
	return func(m *Manager) { m.log = l }
}

// WithDetectedCallback is notified once per recognized action, before the
// handler chain runs.
func WithDetectedCallback(fn func(act Action, messageID string)) ManagerOption {
	return func(m *Manager) { m.onDetected = fn }
}

func NewManager(store MetadataStore, opts ...ManagerOption) *Manager {
	m := &Manager{
		store:    store,
		log:      log.With().Str("component", "actions").Logger(),
		handlers: map[string][]Handler{},
	}
	for _, o := range opts {
		o(m)
	}
	if m.store == nil {
		m.store = NewMemoryStore()
	}
	// The default parser recognizes any object carrying an action name.
	m.parsers = append(m.parsers, func(obj map[string]any) (Action, bool) {
		name, ok := obj["action"].(string)
		if !ok || name == "" {
			return Action{}, false
		}
		return Action{Name: name, Payload: obj}, true
	})
	m.Handle(ActionMessage, m.handleMessage)
	m.Handle(ActionMessageAndClick, m.handleMessageAndClick)
	m.Handle(ActionNavThenClick, m.handleNavThenClick)
	return m
}

// Handle registers an additional handler for the named action. Handlers run
// in registration order.
func (m *Manager) Handle(name string, h Handler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[name] = append(m.handlers[name], h)
}

// FinalizeMessage implements chat.Finalizer.
func (m *Manager) FinalizeMessage(msg chat.Message) (string, bool) {
	return m.Process(context.Background(), msg)
}

// Process runs the action pipeline for one completed assistant message.
// The returned text, when ok, is the display content chosen by a handler.
// Processing is idempotent per message id: the second call is a no-op.
func (m *Manager) Process(ctx context.Context, msg chat.Message) (string, bool) {
	if msg.Variant != chat.VariantAssistant || msg.Streaming || msg.ID == "" {
		return "", false
	}
	processed, err := m.store.IsActionProcessed(ctx, msg.ID)
	if err != nil {
		m.log.Error().Err(err).Str("message_id", msg.ID).Msg("dedup lookup failed")
		return "", false
	}
	if processed {
		return "", false
	}

	obj, ok := m.decodePayload(msg)
	if !ok {
		return "", false
	}
	act, ok := m.parse(obj)
	if !ok {
		return "", false
	}

	// Mark before the handlers run so a handler failure can never cause a
	// replayed side effect.
	if err := m.store.MarkActionProcessed(ctx, msg.ID); err != nil {
		m.log.Error().Err(err).Str("message_id", msg.ID).Msg("mark processed failed")
		return "", false
	}
	m.log.Debug().Str("message_id", msg.ID).Str("action", act.Name).Msg("dispatching action")
	if m.onDetected != nil {
		m.onDetected(act, msg.ID)
	}

	m.mu.Lock()
	chain := append([]Handler(nil), m.handlers[act.Name]...)
	m.mu.Unlock()

	display := ""
	handled := false
	for _, h := range chain {
		text, ok, err := m.invoke(ctx, h, act, msg)
		if err != nil {
			m.log.Warn().Err(err).Str("action", act.Name).Msg("action handler failed")
			continue
		}
		if ok {
			// The first handler that handles the action decides the
			// display text; later handlers still run for side effects.
			if !handled {
				display = text
			}
			handled = true
		}
	}
	return display, handled
}

// invoke shields the chain from a panicking handler.
func (m *Manager) invoke(ctx context.Context, h Handler, act Action, msg chat.Message) (text string, ok bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			text, ok = "", false
			err = errors.Errorf("handler panic: %v", r)
		}
	}()
	return h(ctx, act, msg)
}

// decodePayload picks the parse source: the structured raw payload when
// present, else the displayed content.
func (m *Manager) decodePayload(msg chat.Message) (map[string]any, bool) {
	src := msg.RawContent
	if src == "" {
		src = msg.Content
		if trimmed := strings.TrimSpace(src); strings.HasPrefix(trimmed, "{") {
			// The parser normally caches the raw block alongside the
			// extracted text; a JSON-looking display content without it means
			// the structured response lost its raw payload upstream.
			m.log.Warn().Str("message_id", msg.ID).Msg("structured response lost its raw payload")
		}
	}
	src = strings.TrimSpace(src)
	if src == "" || !strings.HasPrefix(src, "{") {
		return nil, false
	}
	var obj map[string]any
	if err := json.Unmarshal([]byte(src), &obj); err != nil {
		m.log.Debug().Err(err).Str("message_id", msg.ID).Msg("payload does not parse as json")
		return nil, false
	}
	return obj, true
}

func (m *Manager) parse(obj map[string]any) (Action, bool) {
	m.mu.Lock()
	parsers := append([]Parser(nil), m.parsers...)
	m.mu.Unlock()
	for _, p := range parsers {
		if act, ok := p(obj); ok {
			return act, true
		}
	}
	return Action{}, false
}
