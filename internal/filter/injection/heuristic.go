package injection

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/af-corp/quieter-gateway/internal/config"
	"github.com/af-corp/quieter-gateway/internal/filter"
)

const filterName = "injection"

// Detection is one rule match. Offsets are bytes into the scanned text.
type Detection struct {
	Rule     string
	Category string
	Severity float64
	Start    int
	End      int
}

// Scanner scores text against the injection rules. The score of a request is
// the highest severity of any match, compared against the configured flag and
// block thresholds.
type Scanner struct {
	rules []Rule
	cfg   func() config.InjectionFilterConfig
}

func NewScanner(cfg func() config.InjectionFilterConfig) *Scanner {
	return &Scanner{rules: DefaultRules(), cfg: cfg}
}

func (s *Scanner) Name() string  { return filterName }
func (s *Scanner) Enabled() bool { return s.cfg().Enabled }

// Scan returns every rule match in text, in rule order.
func (s *Scanner) Scan(text string) []Detection {
	if text == "" {
		return nil
	}
	var out []Detection
	for _, r := range s.rules {
		for _, loc := range r.Regex.FindAllStringIndex(text, -1) {
			out = append(out, Detection{
				Rule:     r.Name,
				Category: r.Category,
				Severity: r.Severity,
				Start:    loc[0],
				End:      loc[1],
			})
		}
	}
	return out
}

// ScanTexts scans each text and returns all matches with the highest severity.
func (s *Scanner) ScanTexts(texts []string) (detections []Detection, score float64) {
	for _, t := range texts {
		for _, d := range s.Scan(t) {
			detections = append(detections, d)
			score = max(score, d.Severity)
		}
	}
	return detections, score
}

// Inspect implements filter.Filter.
func (s *Scanner) Inspect(_ context.Context, texts []string) filter.Result {
	detections, score := s.ScanTexts(texts)
	res := filter.Result{Action: filter.ActionPass, Filter: filterName, Score: score, Detections: len(detections)}

	cfg := s.cfg()
	switch {
	case len(detections) == 0:
	case score >= cfg.BlockThreshold:
		res.Action = filter.ActionBlock
		res.Message = fmt.Sprintf("Request blocked: prompt injection detected (%s, score %.2f)", categories(detections), score)
	case score >= cfg.FlagThreshold:
		res.Action = filter.ActionFlag
		res.Message = "prompt injection suspected: " + categories(detections)
	}
	return res
}

// categories lists the distinct categories in detections, sorted.
func categories(detections []Detection) string {
	out := make([]string, 0, len(detections))
	for _, d := range detections {
		out = append(out, d.Category)
	}
	slices.Sort(out)
	return strings.Join(slices.Compact(out), ", ")
}
