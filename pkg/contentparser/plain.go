package contentparser

// Plain is the passthrough strategy: it never resolves anything. Callers
// detect it via the Passthrough marker and append raw chunks to the display
// text directly, skipping structured-format attempts for the rest of the
// message.
type Plain struct{}

func NewPlain() *Plain { return &Plain{} }

func (p *Plain) ProcessChunk(string) (Result, bool) { return Result{}, false }
func (p *Plain) ExtractedText() (string, bool)      { return "", false }
func (p *Plain) Close()                             {}
func (p *Plain) Passthrough() bool                  { return true }

var _ Parser = &Plain{}
var _ Passthrough = &Plain{}
