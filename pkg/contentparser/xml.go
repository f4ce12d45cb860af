package contentparser

import "strings"

const (
	xmlTextOpen  = "<text>"
	xmlTextClose = "</text>"
)

// XML extracts the contents of a <text> tag. It stays unresolved until the
// closing tag has been received.
type XML struct {
	last     string
	resolved bool
}

func NewXML() *XML { return &XML{} }

var _ Parser = &XML{}

func (p *XML) ProcessChunk(accumulated string) (Result, bool) {
	trimmed := strings.TrimSpace(accumulated)
	if !strings.HasPrefix(trimmed, "<") {
		return Result{}, false
	}
	start := strings.Index(trimmed, xmlTextOpen)
	if start < 0 {
		return Result{}, false
	}
	rest := trimmed[start+len(xmlTextOpen):]
	end := strings.Index(rest, xmlTextClose)
	if end < 0 {
		return Result{}, false
	}
	p.last = rest[:end]
	p.resolved = true
	return Result{Text: p.last, Raw: accumulated}, true
}

func (p *XML) ExtractedText() (string, bool) {
	return p.last, p.resolved
}

func (p *XML) Close() {
	p.last = ""
	p.resolved = false
}
