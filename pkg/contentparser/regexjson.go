package contentparser

import (
	"regexp"
	"strings"
)

var (
	reTextClosed = regexp.MustCompile(`"text"\s*:\s*"((?:[^"\\]|\\.)*)"`)
	reTextOpen   = regexp.MustCompile(`"text"\s*:\s*"((?:[^"\\]|\\.)*)$`)
)

// RegexJSON is a dependency-free fallback that captures the text field with
// two regexes: one for a fully closed value, one for an unterminated tail.
// It trades full partial-JSON tolerance for predictability.
type RegexJSON struct {
	last     string
	resolved bool
}

func NewRegexJSON() *RegexJSON { return &RegexJSON{} }

var _ Parser = &RegexJSON{}

func (p *RegexJSON) ProcessChunk(accumulated string) (Result, bool) {
	trimmed := strings.TrimSpace(accumulated)
	if !strings.HasPrefix(trimmed, "{") && !strings.HasPrefix(trimmed, "[") {
		return Result{}, false
	}
	var capture string
	if m := reTextClosed.FindStringSubmatch(trimmed); m != nil {
		capture = m[1]
	} else if m := reTextOpen.FindStringSubmatch(trimmed); m != nil {
		capture = m[1]
	} else {
		return Result{}, false
	}
	p.last = unescapeJSON(capture)
	p.resolved = true
	return Result{Text: p.last, Raw: accumulated}, true
}

func (p *RegexJSON) ExtractedText() (string, bool) {
	return p.last, p.resolved
}

func (p *RegexJSON) Close() {
	p.last = ""
	p.resolved = false
}

// unescapeJSON resolves the backslash escapes the widget protocol uses in
// text values. Unknown escapes pass through verbatim.
func unescapeJSON(s string) string {
	if !strings.ContainsRune(s, '\\') {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c != '\\' || i+1 >= len(s) {
			b.WriteByte(c)
			continue
		}
		i++
		switch s[i] {
		case 'n':
			b.WriteByte('\n')
		case 'r':
			b.WriteByte('\r')
		case 't':
			b.WriteByte('\t')
		case '"':
			b.WriteByte('"')
		case '\\':
			b.WriteByte('\\')
		default:
			b.WriteByte('\\')
			b.WriteByte(s[i])
		}
	}
	return b.String()
}
