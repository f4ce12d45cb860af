package chat

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/becomevocal/vanilla-agent-go/pkg/protocol"
)

func TestResolverExplicitIDWinsAndBindsKey(t *testing.T) {
	r := newResolver()

	id := r.resolveReasoning(&protocol.Payload{ReasoningID: "r1", StepID: "s1"}, true)
	require.Equal(t, "r1", id)

	// A later event with only the key routes to the explicit id.
	id = r.resolveReasoning(&protocol.Payload{StepID: "s1"}, false)
	require.Equal(t, "r1", id)
}

func TestResolverSynthesizesOnStartOnly(t *testing.T) {
	r := newResolver()

	// Start events may create; the synthesized id is stable for the key.
	first := r.resolveReasoning(&protocol.Payload{StepID: "s1"}, true)
	require.NotEmpty(t, first)
	require.Equal(t, first, r.resolveReasoning(&protocol.Payload{StepID: "s1"}, false))

	// A chunk with an unknown key and nothing resolved yet for tools gets
	// no id at all.
	require.Empty(t, r.resolveTool(&protocol.Payload{CallID: "c9"}, false))
}

func TestResolverLastIDFallback(t *testing.T) {
	r := newResolver()

	id := r.resolveTool(&protocol.Payload{ToolID: "t1"}, true)
	require.Equal(t, "t1", id)

	// An id-less, key-less chunk attaches to the most recent invocation.
	require.Equal(t, "t1", r.resolveTool(&protocol.Payload{}, false))
}

func TestResolverCompleteClearsKeyMappingOnly(t *testing.T) {
	r := newResolver()

	id := r.resolveTool(&protocol.Payload{CallID: "c1"}, true)
	r.completeTool(&protocol.Payload{CallID: "c1"})

	// The key can start a fresh invocation, but the last id still serves
	// as fallback for stragglers.
	fresh := r.resolveTool(&protocol.Payload{CallID: "c1"}, true)
	require.NotEqual(t, id, fresh)
	require.Equal(t, fresh, r.resolveTool(&protocol.Payload{}, false))
}

func TestResolverContextsAreIndependent(t *testing.T) {
	r := newResolver()

	reason := r.resolveReasoning(&protocol.Payload{StepID: "shared"}, true)
	tool := r.resolveTool(&protocol.Payload{StepID: "shared"}, true)
	require.NotEqual(t, reason, tool)
}

func TestResolverCoercesNumericKeys(t *testing.T) {
	r := newResolver()

	id := r.resolveTool(&protocol.Payload{CallID: float64(7)}, true)
	require.Equal(t, id, r.resolveTool(&protocol.Payload{CallIDSnake: "7"}, false))
}
