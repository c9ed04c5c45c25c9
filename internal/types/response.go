package types

// QueryResponse is returned by the query endpoint. Prompt is the scrubbed text
// that was sent upstream.
type QueryResponse struct {
	OK                bool           `json:"ok"`
	RequestID         string         `json:"requestId"`
	Prompt            string         `json:"prompt"`
	Redactions        int            `json:"redactions"`
	Model             string         `json:"model"`
	Provider          string         `json:"provider"`
	LatencyMs         int64          `json:"latencyMs"`
	Response          string         `json:"response"`
	Usage             Usage          `json:"usage"`
	ProviderCostCents int64          `json:"providerCostCents"`
	BilledCents       int64          `json:"billedCents"`
	Filters           *FilterSummary `json:"filters,omitempty"`
}

type Usage struct {
	InputTokens  int64 `json:"inputTokens"`
	OutputTokens int64 `json:"outputTokens"`
	TotalTokens  int64 `json:"totalTokens"`
}

// ProxyResponse is returned by the scrub-only endpoint.
type ProxyResponse struct {
	OK         bool           `json:"ok"`
	RequestID  string         `json:"requestId"`
	Prompt     string         `json:"prompt"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Redactions int            `json:"redactions"`
	Categories map[string]int `json:"categories"`
}

type FilterSummary struct {
	Secrets   *FilterAction `json:"secrets,omitempty"`
	Injection *FilterAction `json:"injection,omitempty"`
}

type FilterAction struct {
	Action     string  `json:"action"`
	Detections int     `json:"detections,omitempty"`
	Score      float64 `json:"score,omitempty"`
}
