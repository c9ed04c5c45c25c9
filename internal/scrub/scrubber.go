package scrub

import (
	"github.com/af-corp/quieter-gateway/internal/config"
)

// Result is the outcome of a scrub pass.
type Result struct {
	Text       string
	Redactions int
	Counts     map[Category]int
}

// Scrubber applies the redaction phases, in order, to a single text buffer.
// It holds no mutable state and is safe for concurrent use.
type Scrubber struct {
	phases []Phase
	cfg    func() config.ScrubConfig
}

// NewScrubber creates a scrubber with the default phases. Layers disabled in
// cfg are skipped on each call, so toggles apply without a restart.
func NewScrubber(cfg func() config.ScrubConfig) *Scrubber {
	return &Scrubber{phases: DefaultPhases(), cfg: cfg}
}

// Scrub redacts text. Every rule of a phase counts its matches against the
// buffer as it stood when the phase began; the replacements then run in rule
// order. A placeholder inserted by an earlier phase can be matched (and
// counted) again by a later one.
func (s *Scrubber) Scrub(text string) Result {
	layers := s.cfg().Layers
	buf := text
	total := 0
	counts := make(map[Category]int, len(s.phases))

	for _, phase := range s.phases {
		if !layers.Enabled(string(phase.Category)) {
			continue
		}
		start := buf
		for _, rule := range phase.Rules {
			n := len(rule.Regex.FindAllStringIndex(start, -1))
			if n == 0 {
				continue
			}
			total += n
			counts[phase.Category] += n
			buf = rule.Regex.ReplaceAllString(buf, rule.Replacement)
		}
	}

	return Result{Text: buf, Redactions: total, Counts: counts}
}

// Categories returns the phase order with each layer's enabled state.
func (s *Scrubber) Categories() map[string]bool {
	layers := s.cfg().Layers
	out := make(map[string]bool, len(s.phases))
	for _, p := range s.phases {
		out[string(p.Category)] = layers.Enabled(string(p.Category))
	}
	return out
}
