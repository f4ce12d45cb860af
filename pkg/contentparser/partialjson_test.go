package contentparser

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestComplete_RepairsEveryPrefix(t *testing.T) {
	const doc = `{"action":"message","text":"Hello \"world\"!","count":12,"done":true,"tags":["a","b"],"extra":null}`

	for i := 1; i <= len(doc); i++ {
		prefix := doc[:i]
		candidate, ok := Complete(prefix)
		require.True(t, ok, "prefix %q", prefix)
		var v any
		require.NoError(t, json.Unmarshal([]byte(candidate), &v), "prefix %q -> %q", prefix, candidate)
	}
}

func TestComplete_Cases(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{`{`, `{}`},
		{`[`, `[]`},
		{`{"text"`, `{"text":null}`},
		{`{"text":`, `{"text":null}`},
		{`{"text":"Hel`, `{"text":"Hel"}`},
		{`{"a":"b",`, `{"a":"b"}`},
		{`{"a":tr`, `{"a":true}`},
		{`{"a":12.`, `{"a":12}`},
		{`{"a":[1,2`, `{"a":[1,2]}`},
		{`{"a":{"b":"c`, `{"a":{"b":"c"}}`},
		{`{"a":"b\`, `{"a":"b"}`},
	}
	for _, tc := range cases {
		got, ok := Complete(tc.in)
		require.True(t, ok, tc.in)
		require.Equal(t, tc.want, got, tc.in)
	}
}

func TestComplete_RejectsNonJSONStart(t *testing.T) {
	for _, in := range []string{"", "  ", "hello", "<text>x</text>"} {
		_, ok := Complete(in)
		require.False(t, ok, in)
	}
}

func TestDecodeObject(t *testing.T) {
	obj, ok := DecodeObject(`{"text":"hi","n":3`)
	require.True(t, ok)
	require.Equal(t, "hi", obj["text"])
	require.Equal(t, float64(3), obj["n"])

	_, ok = DecodeObject(`[1,2,3]`)
	require.False(t, ok)
}
