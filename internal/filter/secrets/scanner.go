package secrets

import (
	"context"
	"slices"
	"strings"

	"github.com/af-corp/quieter-gateway/internal/config"
	"github.com/af-corp/quieter-gateway/internal/filter"
)

const filterName = "secrets"

// Detection is one credential found in text. Offsets are bytes.
type Detection struct {
	Pattern string
	Start   int
	End     int
}

// Scanner looks for structured credentials the redaction layers leave alone:
// provider keys, cloud keys, tokens, private keys and connection strings.
type Scanner struct {
	patterns []Pattern
	cfg      func() config.SecretsFilterConfig
}

func NewScanner(cfg func() config.SecretsFilterConfig) *Scanner {
	return &Scanner{patterns: DefaultPatterns(), cfg: cfg}
}

func (s *Scanner) Name() string  { return filterName }
func (s *Scanner) Enabled() bool { return s.cfg().Enabled }

// Scan returns every credential in text, in pattern order.
func (s *Scanner) Scan(text string) []Detection {
	var out []Detection
	for _, p := range s.patterns {
		for _, loc := range p.Regex.FindAllStringIndex(text, -1) {
			out = append(out, Detection{Pattern: p.Name, Start: loc[0], End: loc[1]})
		}
	}
	return out
}

func (s *Scanner) ScanTexts(texts []string) []Detection {
	var out []Detection
	for _, t := range texts {
		out = append(out, s.Scan(t)...)
	}
	return out
}

// Inspect implements filter.Filter. Any detection triggers the configured
// action, flag unless set to block.
func (s *Scanner) Inspect(_ context.Context, texts []string) filter.Result {
	detections := s.ScanTexts(texts)
	if len(detections) == 0 {
		return filter.Result{Action: filter.ActionPass, Filter: filterName}
	}

	res := filter.Result{
		Action:     filter.ParseAction(s.cfg().Action),
		Filter:     filterName,
		Detections: len(detections),
		Score:      1,
	}
	if res.Action == filter.ActionBlock {
		res.Message = "Request blocked: credential detected in prompt (" + patternNames(detections) + ")"
	} else {
		res.Message = "credential detected: " + patternNames(detections)
	}
	return res
}

func patternNames(detections []Detection) string {
	names := make([]string, 0, len(detections))
	for _, d := range detections {
		names = append(names, d.Pattern)
	}
	slices.Sort(names)
	return strings.Join(slices.Compact(names), ", ")
}
