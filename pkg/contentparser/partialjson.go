package contentparser

import (
	"encoding/json"
	"strings"
)

// Complete closes an in-flight JSON document so the standard decoder can
// parse it: unterminated strings get their closing quote, dangling keys and
// colons get a null value, trailing commas are dropped, partial literals are
// finished, and open objects/arrays are closed. ok is false when the input
// does not look like the start of a JSON document.
func Complete(s string) (string, bool) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return "", false
	}
	if trimmed[0] != '{' && trimmed[0] != '[' {
		return "", false
	}

	type frame struct {
		isObject   bool
		afterColon bool
	}
	var stack []frame
	inString := false
	escaped := false

	for _, r := range trimmed {
		if inString {
			if escaped {
				escaped = false
				continue
			}
			switch r {
			case '\\':
				escaped = true
			case '"':
				inString = false
			}
			continue
		}
		switch r {
		case '"':
			inString = true
		case '{':
			stack = append(stack, frame{isObject: true})
		case '[':
			stack = append(stack, frame{})
		case '}', ']':
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
		case ':':
			if len(stack) > 0 {
				stack[len(stack)-1].afterColon = true
			}
		case ',':
			if len(stack) > 0 {
				stack[len(stack)-1].afterColon = false
			}
		}
	}

	var b strings.Builder
	b.Grow(len(trimmed) + len(stack) + 8)
	body := trimmed
	if inString {
		if escaped {
			// A lone trailing backslash cannot be completed; drop it.
			body = body[:len(body)-1]
		}
		b.WriteString(body)
		b.WriteByte('"')
		if n := len(stack); n > 0 && stack[n-1].isObject && !stack[n-1].afterColon {
			// The unterminated string was a key.
			b.WriteString(":null")
		}
	} else {
		body = strings.TrimRight(body, " \t\n\r")
		switch last := lastByte(body); last {
		case ':':
			b.WriteString(body)
			b.WriteString("null")
		case ',':
			b.WriteString(strings.TrimRight(body[:len(body)-1], " \t\n\r"))
		case '"':
			b.WriteString(body)
			if n := len(stack); n > 0 && stack[n-1].isObject && !stack[n-1].afterColon {
				b.WriteString(":null")
			}
		default:
			b.WriteString(completeTailToken(body))
		}
	}
	for i := len(stack) - 1; i >= 0; i-- {
		if stack[i].isObject {
			b.WriteByte('}')
		} else {
			b.WriteByte(']')
		}
	}
	return b.String(), true
}

// DecodeObject decodes a possibly partial JSON object into a map. It
// returns ok=false for non-object documents and for text the completer
// could not repair.
func DecodeObject(s string) (map[string]any, bool) {
	trimmed := strings.TrimSpace(s)
	if !strings.HasPrefix(trimmed, "{") {
		return nil, false
	}
	candidate, ok := Complete(trimmed)
	if !ok {
		return nil, false
	}
	var obj map[string]any
	if err := json.Unmarshal([]byte(candidate), &obj); err != nil {
		return nil, false
	}
	return obj, true
}

func lastByte(s string) byte {
	if s == "" {
		return 0
	}
	return s[len(s)-1]
}

// completeTailToken finishes a partial bare literal or number at the end of
// the body (`tr` -> `true`, `12.` -> `12`).
func completeTailToken(body string) string {
	i := len(body)
	for i > 0 {
		c := body[i-1]
		if strings.IndexByte(`{}[],:" `, c) >= 0 || c == '\n' || c == '\t' || c == '\r' {
			break
		}
		i--
	}
	token := body[i:]
	if token == "" {
		return body
	}
	for _, lit := range []string{"true", "false", "null"} {
		if strings.HasPrefix(lit, token) {
			return body[:i] + lit
		}
	}
	trimmedToken := strings.TrimRight(token, ".eE+-")
	if trimmedToken == "" {
		return body[:i] + "null"
	}
	return body[:i] + trimmedToken
}
