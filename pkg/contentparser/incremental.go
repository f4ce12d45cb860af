package contentparser

import "strings"

// IncrementalJSON parses the accumulated text as partial JSON, tolerating
// an unterminated string or object at the tail. Objects carrying a UI
// directive (a component field or a form-init marker) resolve to the empty
// string since their content is rendered elsewhere; otherwise the text
// field is extracted. Parse failures keep the last good value.
type IncrementalJSON struct {
	last     string
	resolved bool
}

func NewIncrementalJSON() *IncrementalJSON { return &IncrementalJSON{} }

var _ Parser = &IncrementalJSON{}

func (p *IncrementalJSON) ProcessChunk(accumulated string) (Result, bool) {
	trimmed := strings.TrimSpace(accumulated)
	if !strings.HasPrefix(trimmed, "{") && !strings.HasPrefix(trimmed, "[") {
		return Result{}, false
	}
	obj, ok := DecodeObject(trimmed)
	if !ok {
		return Result{}, false
	}
	if isDirective(obj) {
		p.last = ""
		p.resolved = true
		return Result{Text: "", Raw: accumulated}, true
	}
	text, ok := obj["text"].(string)
	if !ok {
		return Result{}, false
	}
	p.last = text
	p.resolved = true
	return Result{Text: text, Raw: accumulated}, true
}

func (p *IncrementalJSON) ExtractedText() (string, bool) {
	return p.last, p.resolved
}

func (p *IncrementalJSON) Close() {
	p.last = ""
	p.resolved = false
}

// isDirective reports whether the partial object is a UI directive whose
// display content lives outside the text field.
func isDirective(obj map[string]any) bool {
	if _, ok := obj["component"]; ok {
		return true
	}
	if action, ok := obj["action"].(string); ok && action == "form_init" {
		return true
	}
	if v, ok := obj["form_init"].(bool); ok && v {
		return true
	}
	return false
}
