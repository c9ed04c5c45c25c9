package filter

import "context"

// Action is a filter's decision about a request.
type Action string

const (
	ActionPass  Action = "pass"
	ActionFlag  Action = "flag"
	ActionBlock Action = "block"
)

// ParseAction maps a configured action name. Anything but "block" flags.
func ParseAction(s string) Action {
	if Action(s) == ActionBlock {
		return ActionBlock
	}
	return ActionFlag
}

// Result is one filter's verdict.
type Result struct {
	Action     Action
	Filter     string
	Message    string
	Detections int
	Score      float64
}

// Filter inspects the outbound texts of a request (system text first, then
// the prompt) before they are scrubbed.
type Filter interface {
	Name() string
	Enabled() bool
	Inspect(ctx context.Context, texts []string) Result
}

// Outcome collects the verdicts of one chain run.
type Outcome struct {
	Results []Result
	// Blocked is the verdict that stopped the chain, if any.
	Blocked *Result
}

// Flagged returns the verdicts that flagged without blocking.
func (o Outcome) Flagged() []Result {
	var out []Result
	for _, r := range o.Results {
		if r.Action == ActionFlag {
			out = append(out, r)
		}
	}
	return out
}

// Chain runs filters in order and stops at the first block. A nil Chain
// passes everything.
type Chain struct {
	filters []Filter
}

func NewChain(filters ...Filter) *Chain {
	return &Chain{filters: filters}
}

// Run inspects texts with every enabled filter. Enablement is read on each
// call, so config reloads take effect immediately.
func (c *Chain) Run(ctx context.Context, texts ...string) Outcome {
	var out Outcome
	if c == nil {
		return out
	}
	for _, f := range c.filters {
		if !f.Enabled() {
			continue
		}
		r := f.Inspect(ctx, texts)
		if r.Filter == "" {
			r.Filter = f.Name()
		}
		out.Results = append(out.Results, r)
		if r.Action == ActionBlock {
			out.Blocked = &out.Results[len(out.Results)-1]
			return out
		}
	}
	return out
}
