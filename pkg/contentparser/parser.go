// Package contentparser extracts human-displayable text from structured
// response payloads that may be only partially received. Parsers are
// stateful per message: they see the full accumulated raw text on every
// chunk and cache the last successfully extracted value.
package contentparser

// Result is a resolved extraction: the displayable text plus the raw
// payload it was extracted from.
type Result struct {
	Text string
	Raw  string
}

// Parser is a pluggable extraction strategy for one in-flight message.
//
// ProcessChunk receives the full accumulated raw text and reports whether a
// value could be resolved; returning ok=false means "not yet resolvable or
// not this format", never an error. ExtractedText reflects the last
// resolved value without side effects.
type Parser interface {
	ProcessChunk(accumulated string) (Result, bool)
	ExtractedText() (string, bool)
	Close()
}

// Passthrough marks parsers that never resolve structured content; callers
// switch to literal append mode when they detect it.
type Passthrough interface {
	Passthrough() bool
}

// IsPlain reports whether p is a passthrough parser.
func IsPlain(p Parser) bool {
	pp, ok := p.(Passthrough)
	return ok && pp.Passthrough()
}

// Mode selects one of the built-in parser strategies.
type Mode string

const (
	ModePlain        Mode = "plain"
	ModeJSON         Mode = "json"
	ModeRegexJSON    Mode = "regex-json"
	ModeFlexibleJSON Mode = "flexible-json"
	ModeXML          Mode = "xml"
)

// New builds a fresh parser for the given mode. Unknown modes get the
// strict incremental JSON parser.
func New(mode Mode) Parser {
	switch mode {
	case ModePlain:
		return NewPlain()
	case ModeRegexJSON:
		return NewRegexJSON()
	case ModeFlexibleJSON:
		return NewFlexibleJSON(nil)
	case ModeXML:
		return NewXML()
	default:
		return NewIncrementalJSON()
	}
}

// Factory builds one parser per message; used when a caller supplies a
// custom strategy instead of a Mode.
type Factory func() Parser
