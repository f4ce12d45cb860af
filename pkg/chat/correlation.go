package chat

import (
	"strconv"

	"github.com/becomevocal/vanilla-agent-go/pkg/protocol"
)

// correlationContext tracks the mapping from derived correlation keys to
// logical message ids for one event family, plus the most recently resolved
// id as a best-effort fallback for events that omit identifiers.
type correlationContext struct {
	lastID string
	byKey  map[string]string
}

func newCorrelationContext() correlationContext {
	return correlationContext{byKey: map[string]string{}}
}

// resolve maps an event onto a stable logical id.
//
// Precedence: explicit id (also recorded against the key), then an existing
// key mapping, then a synthesized id when creation is allowed, then the
// last resolved id. Start events always allow creation; chunk events never
// do.
func (c *correlationContext) resolve(explicitID, key, prefix string, allowCreate bool, nextSeq func() int) string {
	if explicitID != "" {
		if key != "" {
			c.byKey[key] = explicitID
		}
		c.lastID = explicitID
		return explicitID
	}
	if key != "" {
		if id, ok := c.byKey[key]; ok {
			c.lastID = id
			return id
		}
	}
	if allowCreate {
		id := prefix + "-" + strconv.Itoa(nextSeq())
		if key != "" {
			c.byKey[key] = id
		}
		c.lastID = id
		return id
	}
	return c.lastID
}

// complete drops the key mapping once an episode finishes. The logical
// message itself stays in the session list.
func (c *correlationContext) complete(key string) {
	if key != "" {
		delete(c.byKey, key)
	}
}

// resolver holds the two independent correlation contexts for one dispatch
// call; it is discarded when the stream completes.
type resolver struct {
	reasoning correlationContext
	tool      correlationContext
	seq       int
}

func newResolver() *resolver {
	return &resolver{
		reasoning: newCorrelationContext(),
		tool:      newCorrelationContext(),
	}
}

func (r *resolver) nextSeq() int {
	r.seq++
	return r.seq
}

func (r *resolver) resolveReasoning(p *protocol.Payload, allowCreate bool) string {
	return r.reasoning.resolve(p.ReasoningEventID(), p.CorrelationKey(), "reason", allowCreate, r.nextSeq)
}

func (r *resolver) resolveTool(p *protocol.Payload, allowCreate bool) string {
	return r.tool.resolve(p.ToolEventID(), p.CorrelationKey(), "tool", allowCreate, r.nextSeq)
}

func (r *resolver) completeReasoning(p *protocol.Payload) {
	r.reasoning.complete(p.CorrelationKey())
}

func (r *resolver) completeTool(p *protocol.Payload) {
	r.tool.complete(p.CorrelationKey())
}
