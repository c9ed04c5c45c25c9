package types

import "time"

const (
	DefaultMaxTokens   = 512
	MaxMaxTokens       = 4096
	DefaultTemperature = 0.7
)

// QueryRequest is the internal representation of a tenant query.
type QueryRequest struct {
	// Identity (set from the auth context)
	RequestID string `json:"request_id"`
	TenantID  string `json:"tenant_id"`
	Plan      string `json:"plan"`

	// Request content
	Prompt      string         `json:"prompt"`
	System      string         `json:"system,omitempty"`
	Model       string         `json:"model"`
	MaxTokens   int            `json:"max_tokens"`
	Temperature float64        `json:"temperature"`
	Metadata    map[string]any `json:"metadata,omitempty"`

	ReceivedAt time.Time `json:"-"`
}

// Texts returns the free-text fields that leave the gateway, system first.
func (r *QueryRequest) Texts() []string {
	if r.System == "" {
		return []string{r.Prompt}
	}
	return []string{r.System, r.Prompt}
}

// ClampMaxTokens applies the default for nil and bounds the value to [1, 4096].
func ClampMaxTokens(v *int) int {
	if v == nil {
		return DefaultMaxTokens
	}
	switch {
	case *v < 1:
		return 1
	case *v > MaxMaxTokens:
		return MaxMaxTokens
	}
	return *v
}

// ClampTemperature applies the default for nil and bounds the value to [0, 1].
func ClampTemperature(v *float64) float64 {
	if v == nil {
		return DefaultTemperature
	}
	switch {
	case *v < 0:
		return 0
	case *v > 1:
		return 1
	}
	return *v
}
