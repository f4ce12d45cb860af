package contentparser

import "strings"

// flexibleFieldPriority is the fallback field order when no extractor
// matches and no action-specific rule applies.
var flexibleFieldPriority = []string{"text", "display_text", "message", "content"}

// Extractor lets callers pull display text out of a decoded payload object
// themselves; returning ok=false falls back to the built-in rules.
type Extractor func(obj map[string]any) (string, bool)

// FlexibleJSON extends the strict incremental parser with a caller-supplied
// extractor, action-type-specific rules, and a wider list of accepted field
// names.
type FlexibleJSON struct {
	extractor Extractor
	last      string
	resolved  bool
}

func NewFlexibleJSON(extractor Extractor) *FlexibleJSON {
	return &FlexibleJSON{extractor: extractor}
}

var _ Parser = &FlexibleJSON{}

func (p *FlexibleJSON) ProcessChunk(accumulated string) (Result, bool) {
	trimmed := strings.TrimSpace(accumulated)
	if !strings.HasPrefix(trimmed, "{") && !strings.HasPrefix(trimmed, "[") {
		return Result{}, false
	}
	obj, ok := DecodeObject(trimmed)
	if !ok {
		return Result{}, false
	}

	text, ok := p.extract(obj)
	if !ok {
		return Result{}, false
	}
	p.last = text
	p.resolved = true
	return Result{Text: text, Raw: accumulated}, true
}

func (p *FlexibleJSON) extract(obj map[string]any) (string, bool) {
	if p.extractor != nil {
		if text, ok := p.extractor(obj); ok {
			return text, true
		}
	}
	if action, _ := obj["action"].(string); action == "nav_then_click" {
		if text, ok := obj["on_load_text"].(string); ok {
			return text, true
		}
	}
	for _, field := range flexibleFieldPriority {
		if text, ok := obj[field].(string); ok {
			return text, true
		}
	}
	if isDirective(obj) {
		return "", true
	}
	return "", false
}

func (p *FlexibleJSON) ExtractedText() (string, bool) {
	return p.last, p.resolved
}

func (p *FlexibleJSON) Close() {
	p.last = ""
	p.resolved = false
}
