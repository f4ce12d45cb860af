package actions

import (
	"bytes"
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/becomevocal/vanilla-agent-go/pkg/chat"
)

type fakePage struct {
	clicks []string
	navs   []string
}

func (f *fakePage) Click(ctx context.Context, selector string) error {
	f.clicks = append(f.clicks, selector)
	return nil
}

func (f *fakePage) Navigate(ctx context.Context, url string) error {
	f.navs = append(f.navs, url)
	return nil
}

func completedMessage(id, raw string) chat.Message {
	return chat.Message{
		ID:         id,
		Role:       chat.RoleAssistant,
		Variant:    chat.VariantAssistant,
		RawContent: raw,
	}
}

func TestManagerMessageAction(t *testing.T) {
	m := NewManager(nil)

	text, ok := m.Process(context.Background(),
		completedMessage("m1", `{"action":"message","text":"hello there"}`))
	require.True(t, ok)
	require.Equal(t, "hello there", text)
}

func TestManagerProcessingIsIdempotent(t *testing.T) {
	m := NewManager(nil)
	msg := completedMessage("m1", `{"action":"message","text":"once"}`)

	_, ok := m.Process(context.Background(), msg)
	require.True(t, ok)

	text, ok := m.Process(context.Background(), msg)
	require.False(t, ok)
	require.Empty(t, text)
}

func TestManagerSkipsStreamingAndNonAssistant(t *testing.T) {
	m := NewManager(nil)

	streaming := completedMessage("m1", `{"action":"message","text":"x"}`)
	streaming.Streaming = true
	_, ok := m.Process(context.Background(), streaming)
	require.False(t, ok)

	tool := completedMessage("m2", `{"action":"message","text":"x"}`)
	tool.Variant = chat.VariantTool
	_, ok = m.Process(context.Background(), tool)
	require.False(t, ok)

	// The streaming message was never marked, so its completion still
	// processes.
	done := completedMessage("m1", `{"action":"message","text":"x"}`)
	_, ok = m.Process(context.Background(), done)
	require.True(t, ok)
}

func TestManagerParseSourcePrecedence(t *testing.T) {
	m := NewManager(nil)

	// RawContent wins over Content.
	msg := completedMessage("m1", `{"action":"message","text":"from raw"}`)
	msg.Content = `{"action":"message","text":"from content"}`
	text, ok := m.Process(context.Background(), msg)
	require.True(t, ok)
	require.Equal(t, "from raw", text)

	// Without RawContent the displayed content is parsed.
	msg2 := completedMessage("m2", "")
	msg2.Content = `{"action":"message","text":"from content"}`
	text, ok = m.Process(context.Background(), msg2)
	require.True(t, ok)
	require.Equal(t, "from content", text)

	// Plain text is not an action.
	msg3 := completedMessage("m3", "")
	msg3.Content = "just words"
	_, ok = m.Process(context.Background(), msg3)
	require.False(t, ok)
}

func TestManagerWarnsWhenRawPayloadIsMissing(t *testing.T) {
	var buf bytes.Buffer
	m := NewManager(nil, WithManagerLogger(zerolog.New(&buf)))

	msg := completedMessage("m1", "")
	msg.Content = `{"action":"message","text":"still works"}`
	text, ok := m.Process(context.Background(), msg)
	require.True(t, ok)
	require.Equal(t, "still works", text)
	require.Contains(t, buf.String(), "structured response lost its raw payload")

	// A message whose raw payload survived does not warn.
	buf.Reset()
	_, ok = m.Process(context.Background(),
		completedMessage("m2", `{"action":"message","text":"ok"}`))
	require.True(t, ok)
	require.NotContains(t, buf.String(), "lost its raw payload")
}

func TestManagerHandlerErrorsAreIsolated(t *testing.T) {
	m := NewManager(nil)
	ran := false
	m.Handle(ActionMessage, func(ctx context.Context, act Action, msg chat.Message) (string, bool, error) {
		return "", false, errors.New("boom")
	})
	m.Handle(ActionMessage, func(ctx context.Context, act Action, msg chat.Message) (string, bool, error) {
		ran = true
		return "late", true, nil
	})

	// The failing handler is skipped; the built-in message handler is the
	// first to handle and its display text wins, but the chain still runs
	// to the end.
	text, ok := m.Process(context.Background(),
		completedMessage("m1", `{"action":"message","text":"base"}`))
	require.True(t, ok)
	require.True(t, ran)
	require.Equal(t, "base", text)
}

func TestManagerHandlerPanicIsContained(t *testing.T) {
	m := NewManager(nil)
	ran := false
	m.Handle("custom", func(ctx context.Context, act Action, msg chat.Message) (string, bool, error) {
		panic("handler exploded")
	})
	m.Handle("custom", func(ctx context.Context, act Action, msg chat.Message) (string, bool, error) {
		ran = true
		return "survived", true, nil
	})

	text, ok := m.Process(context.Background(), completedMessage("m1", `{"action":"custom"}`))
	require.True(t, ok)
	require.True(t, ran)
	require.Equal(t, "survived", text)
}

func TestManagerDetectedCallback(t *testing.T) {
	var detected []string
	m := NewManager(nil, WithDetectedCallback(func(act Action, messageID string) {
		detected = append(detected, act.Name+":"+messageID)
	}))

	m.Process(context.Background(), completedMessage("m1", `{"action":"message","text":"x"}`))
	m.Process(context.Background(), completedMessage("m1", `{"action":"message","text":"x"}`))
	require.Equal(t, []string{"message:m1"}, detected)
}

func TestManagerHandlerFailureDoesNotReplay(t *testing.T) {
	m := NewManager(nil)
	calls := 0
	m.Handle("custom", func(ctx context.Context, act Action, msg chat.Message) (string, bool, error) {
		calls++
		return "", false, errors.New("side effect failed")
	})

	msg := completedMessage("m1", `{"action":"custom"}`)
	m.Process(context.Background(), msg)
	m.Process(context.Background(), msg)
	require.Equal(t, 1, calls)
}

func TestManagerMessageAndClick(t *testing.T) {
	page := &fakePage{}
	m := NewManager(nil, WithClicker(page))

	text, ok := m.Process(context.Background(),
		completedMessage("m1", `{"action":"message_and_click","text":"clicking","selector":"#buy"}`))
	require.True(t, ok)
	require.Equal(t, "clicking", text)
	require.Equal(t, []string{"#buy"}, page.clicks)
}

func TestManagerNavThenClickRoundTrip(t *testing.T) {
	page := &fakePage{}
	store := NewMemoryStore()
	m := NewManager(store, WithClicker(page), WithNavigator(page))

	text, ok := m.Process(context.Background(),
		completedMessage("m1", `{"action":"nav_then_click","url":"/pricing","selector":"#cta","on_load_text":"Here we are!"}`))
	require.True(t, ok)
	require.Empty(t, text)
	require.Equal(t, []string{"/pricing"}, page.navs)
	require.Empty(t, page.clicks)

	// Simulates the widget booting on the new page.
	onLoad, err := m.ResumePendingNavigation(context.Background())
	require.NoError(t, err)
	require.Equal(t, "Here we are!", onLoad)
	require.Equal(t, []string{"#cta"}, page.clicks)

	// The slot is single-shot.
	onLoad, err = m.ResumePendingNavigation(context.Background())
	require.NoError(t, err)
	require.Empty(t, onLoad)
	require.Equal(t, []string{"#cta"}, page.clicks)
}

func TestManagerCustomParserWins(t *testing.T) {
	m := NewManager(nil, WithParser(func(obj map[string]any) (Action, bool) {
		if _, ok := obj["component"]; ok {
			return Action{Name: "component", Payload: obj}, true
		}
		return Action{}, false
	}))
	seen := false
	m.Handle("component", func(ctx context.Context, act Action, msg chat.Message) (string, bool, error) {
		seen = true
		return "", true, nil
	})

	_, ok := m.Process(context.Background(),
		completedMessage("m1", `{"component":"form","action":"message"}`))
	require.True(t, ok)
	require.True(t, seen)
}
