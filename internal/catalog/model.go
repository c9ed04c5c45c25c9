// Package catalog resolves requested model identifiers against the enabled
// model catalog.
package catalog

import (
	"errors"
	"fmt"

	"github.com/af-corp/quieter-gateway/internal/config"
)

// AutoModel asks the resolver to pick a model.
const AutoModel = "auto"

var (
	// ErrModelUnavailable is matched by every resolution failure.
	ErrModelUnavailable = errors.New("model unavailable")

	ErrModelNotFound      = fmt.Errorf("%w: model not found or disabled", ErrModelUnavailable)
	ErrNoModelsConfigured = fmt.Errorf("%w: no enabled models configured", ErrModelUnavailable)
)

// ModelConfig is one catalog row. Prices are minor currency units (cents)
// per 1000 tokens.
type ModelConfig struct {
	ID               string   `json:"id"`
	Provider         string   `json:"provider"`
	UpstreamModel    string   `json:"upstream_model"`
	Enabled          bool     `json:"enabled"`
	PriceInputPer1K  float64  `json:"price_input_per_1k"`
	PriceOutputPer1K float64  `json:"price_output_per_1k"`
	QualityScore     *float64 `json:"quality_score,omitempty"`
	Tier             string   `json:"tier"`
}

// FromEntry converts a models.yaml entry.
func FromEntry(e config.ModelEntry) ModelConfig {
	upstream := e.UpstreamModel
	if upstream == "" {
		upstream = e.ID
	}
	tier := e.Tier
	if tier == "" {
		tier = "standard"
	}
	return ModelConfig{
		ID:               e.ID,
		Provider:         e.Provider,
		UpstreamModel:    upstream,
		Enabled:          e.Enabled,
		PriceInputPer1K:  e.PriceInputPer1K,
		PriceOutputPer1K: e.PriceOutputPer1K,
		QualityScore:     e.QualityScore,
		Tier:             tier,
	}
}
