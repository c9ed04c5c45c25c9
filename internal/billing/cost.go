// Package billing converts token usage into provider and billed cost.
package billing

import (
	"math"

	"github.com/af-corp/quieter-gateway/internal/catalog"
)

// Cost is expressed in minor currency units (cents).
type Cost struct {
	ProviderCents int64 `json:"provider_cost_cents"`
	BilledCents   int64 `json:"billed_cents"`
}

// ComputeCost prices usage against the model's per-1K rates. Input and output
// terms are rounded separately, half away from zero. Negative token counts are
// treated as zero. Billed cost passes the provider cost through unchanged.
func ComputeCost(model catalog.ModelConfig, inputTokens, outputTokens int64) Cost {
	provider := term(inputTokens, model.PriceInputPer1K) + term(outputTokens, model.PriceOutputPer1K)
	return Cost{ProviderCents: provider, BilledCents: provider}
}

func term(tokens int64, pricePer1K float64) int64 {
	if tokens <= 0 || pricePer1K <= 0 {
		return 0
	}
	return int64(math.Round(float64(tokens) / 1000 * pricePer1K))
}
