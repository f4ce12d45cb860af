package protocol

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDecoder_FramesEventAndDataBlocks(t *testing.T) {
	d := NewDecoder()

	evs := d.Feed([]byte("event: reason_start\ndata: {\"stepId\":\"s1\"}\n\n"))
	require.Len(t, evs, 1)
	require.Equal(t, KindReasonStart, evs[0].Kind)
	require.Equal(t, "s1", evs[0].Payload.CorrelationKey())
}

func TestDecoder_CarriesIncompleteBlockAcrossFeeds(t *testing.T) {
	d := NewDecoder()

	evs := d.Feed([]byte("data: {\"type\":\"step_chunk\",\"te"))
	require.Empty(t, evs)

	evs = d.Feed([]byte("xt\":\"Hel\"}\n\ndata: {\"type\":\"step_chunk\",\"text\":\"lo\"}\n\n"))
	require.Len(t, evs, 2)
	require.Equal(t, KindStepChunk, evs[0].Kind)
	require.Equal(t, "Hel", evs[0].Payload.TextChunk())
	require.Equal(t, "lo", evs[1].Payload.TextChunk())
}

func TestDecoder_EffectiveTypeFallsBackToPayloadType(t *testing.T) {
	d := NewDecoder()

	// generic "message" event name defers to the payload type field
	evs := d.Feed([]byte("event: message\ndata: {\"type\":\"flow_complete\"}\n\n"))
	require.Len(t, evs, 1)
	require.Equal(t, KindFlowComplete, evs[0].Kind)

	// no event name at all
	evs = d.Feed([]byte("data: {\"type\":\"tool_start\",\"toolName\":\"search\"}\n\n"))
	require.Len(t, evs, 1)
	require.Equal(t, KindToolStart, evs[0].Kind)
	require.Equal(t, "search", evs[0].Payload.ToolName)
}

func TestDecoder_ConcatenatesMultipleDataLines(t *testing.T) {
	d := NewDecoder()

	evs := d.Feed([]byte("data: {\"type\":\"step_chunk\",\ndata: \"text\":\"Hi\"}\n\n"))
	require.Len(t, evs, 1)
	require.Equal(t, "Hi", evs[0].Payload.TextChunk())
}

func TestDecoder_BadJSONSurfacesErrorEventAndContinues(t *testing.T) {
	d := NewDecoder()

	evs := d.Feed([]byte("data: {not json}\n\ndata: {\"type\":\"step_chunk\",\"text\":\"ok\"}\n\n"))
	require.Len(t, evs, 2)
	require.Equal(t, KindError, evs[0].Kind)
	require.True(t, evs[0].Synthetic)
	require.NotEmpty(t, evs[0].Payload.Error)
	require.Equal(t, KindStepChunk, evs[1].Kind)
	require.False(t, evs[1].Synthetic)
	require.Equal(t, "ok", evs[1].Payload.TextChunk())
}

func TestDecoder_SkipsToolExecutionSteps(t *testing.T) {
	d := NewDecoder()

	evs := d.Feed([]byte("data: {\"type\":\"step_chunk\",\"executionType\":\"tool\",\"text\":\"x\"}\n\n" +
		"data: {\"type\":\"step_complete\",\"executionType\":\"context\"}\n\n" +
		"data: {\"type\":\"step_chunk\",\"text\":\"kept\"}\n\n"))
	require.Len(t, evs, 1)
	require.Equal(t, "kept", evs[0].Payload.TextChunk())
}

func TestDecoder_UnknownTypeClassifiesAsIgnored(t *testing.T) {
	d := NewDecoder()

	evs := d.Feed([]byte("event: heartbeat\ndata: {}\n\n"))
	require.Len(t, evs, 1)
	require.Equal(t, KindIgnored, evs[0].Kind)
}

func TestDecoder_CRLFFraming(t *testing.T) {
	d := NewDecoder()

	evs := d.Feed([]byte("event: reason_chunk\r\ndata: {\"text\":\"a\"}\r"))
	require.Empty(t, evs)
	evs = d.Feed([]byte("\n\r\n"))
	require.Len(t, evs, 1)
	require.Equal(t, KindReasonChunk, evs[0].Kind)
	require.Equal(t, "a", evs[0].Payload.TextChunk())
}

func TestDecoder_FlushDrainsFinalBlock(t *testing.T) {
	d := NewDecoder()

	evs := d.Feed([]byte("data: {\"type\":\"flow_complete\",\"result\":{\"response\":\"done\"}}"))
	require.Empty(t, evs)
	evs = d.Flush()
	require.Len(t, evs, 1)
	require.Equal(t, KindFlowComplete, evs[0].Kind)
	require.Equal(t, "done", evs[0].Payload.ResultResponse())
	require.Empty(t, d.Flush())
}

func TestPayload_CorrelationKeyCoercion(t *testing.T) {
	cases := []struct {
		name string
		p    Payload
		want string
	}{
		{"string step id", Payload{StepID: "abc"}, "abc"},
		{"numeric step id", Payload{StepID: float64(42)}, "42"},
		{"snake case wins when camel absent", Payload{StepIDSnake: "s_2"}, "s_2"},
		{"call id fallback", Payload{CallID: "c1"}, "c1"},
		{"request id fallback", Payload{RequestID: float64(7)}, "7"},
		{"first non-null wins", Payload{StepID: "a", CallID: "b"}, "a"},
		{"unsupported shape yields no key", Payload{StepID: map[string]any{"x": 1}}, ""},
		{"no candidates", Payload{}, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, tc.p.CorrelationKey())
		})
	}
}

func TestPayload_DurationMillisPrefersExplicitMs(t *testing.T) {
	p := Payload{Duration: 1500, DurationMs: 90}
	ms, ok := p.DurationMillis()
	require.True(t, ok)
	require.Equal(t, int64(90), ms)

	_, ok = (&Payload{}).DurationMillis()
	require.False(t, ok)
}
