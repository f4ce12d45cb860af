package protocol

import (
	"encoding/json"
	"strings"

	"github.com/rs/zerolog/log"
)

// Decoder splits a chunked SSE-style byte stream into framed protocol
// events. It is stateful: incomplete trailing blocks are carried over
// between Feed calls. One bad data block yields an error event but never
// terminates the stream.
type Decoder struct {
	buf []byte
}

func NewDecoder() *Decoder {
	return &Decoder{}
}

// Feed appends a raw chunk to the internal buffer and returns all events
// whose blocks completed with this chunk.
func (d *Decoder) Feed(p []byte) []Event {
	d.buf = append(d.buf, p...)

	text := string(d.buf)
	// Keep a trailing CR in the carry-over so a CRLF pair split across
	// chunks is not lost by normalization.
	pendingCR := strings.HasSuffix(text, "\r")
	if pendingCR {
		text = text[:len(text)-1]
	}
	text = strings.ReplaceAll(text, "\r\n", "\n")

	blocks := strings.Split(text, "\n\n")
	carry := blocks[len(blocks)-1]
	if pendingCR {
		carry += "\r"
	}
	d.buf = []byte(carry)

	var out []Event
	for _, block := range blocks[:len(blocks)-1] {
		if ev, ok := d.decodeBlock(block); ok {
			out = append(out, ev)
		}
	}
	return out
}

// Flush decodes a final unterminated block, for streams that end without a
// trailing blank line.
func (d *Decoder) Flush() []Event {
	if len(d.buf) == 0 {
		return nil
	}
	block := strings.ReplaceAll(string(d.buf), "\r\n", "\n")
	d.buf = nil
	if ev, ok := d.decodeBlock(block); ok {
		return []Event{ev}
	}
	return nil
}

func (d *Decoder) decodeBlock(block string) (Event, bool) {
	eventField := ""
	var data strings.Builder
	for _, line := range strings.Split(block, "\n") {
		switch {
		case strings.HasPrefix(line, "event:"):
			eventField = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			body := strings.TrimPrefix(line, "data:")
			body = strings.TrimPrefix(body, " ")
			data.WriteString(body)
		}
	}
	if data.Len() == 0 {
		return Event{}, false
	}

	raw := []byte(data.String())
	var payload Payload
	if err := json.Unmarshal(raw, &payload); err != nil {
		log.Warn().Err(err).Str("component", "protocol_decoder").Int("bytes", len(raw)).Msg("failed to decode event data block")
		return Event{
			Kind:      KindError,
			Payload:   Payload{Type: string(KindError), Error: "malformed event data: " + err.Error()},
			Raw:       raw,
			Synthetic: true,
		}, true
	}

	effective := eventField
	if effective == "" || effective == "message" {
		effective = payload.Type
	}
	if effective == "" {
		effective = "message"
	}
	kind := classifyKind(effective)

	// Tool and context executions are carried exclusively via tool_* events;
	// drop the duplicate step framing.
	if (kind == KindStepChunk || kind == KindStepComplete) && payload.IsToolExecution() {
		log.Debug().Str("component", "protocol_decoder").Str("kind", string(kind)).Str("execution_type", payload.ExecutionType).Msg("skipping tool-execution step event")
		return Event{}, false
	}
	if kind == KindIgnored {
		log.Debug().Str("component", "protocol_decoder").Str("event_type", effective).Msg("ignoring unknown event type")
	}

	return Event{Kind: kind, Payload: payload, Raw: raw}, true
}
