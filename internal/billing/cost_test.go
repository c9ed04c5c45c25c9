package billing

import (
	"testing"

	"github.com/af-corp/quieter-gateway/internal/catalog"
)

func TestComputeCost(t *testing.T) {
	tests := []struct {
		name         string
		in, out      int64
		priceIn      float64
		priceOut     float64
		wantProvider int64
	}{
		{"basic", 1000, 500, 10, 20, 20},
		{"zero usage", 0, 0, 10, 20, 0},
		{"negative treated as zero", -1000, 500, 10, 20, 10},
		{"both negative", -5, -5, 10, 20, 0},
		{"tiny input rounds down", 1, 0, 10, 0, 0},
		{"half rounds up", 500, 0, 1, 0, 1},
		{"one and a half rounds up", 1500, 0, 1, 0, 2},
		{"terms rounded independently", 500, 500, 1, 1, 2},
		{"free model", 100000, 100000, 0, 0, 0},
		{"fractional price", 2000, 1000, 0.15, 0.6, 1},
		{"large usage", 1000000, 250000, 15, 60, 30000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			model := catalog.ModelConfig{ID: "m", PriceInputPer1K: tt.priceIn, PriceOutputPer1K: tt.priceOut}
			got := ComputeCost(model, tt.in, tt.out)
			if got.ProviderCents != tt.wantProvider {
				t.Errorf("ProviderCents = %d, want %d", got.ProviderCents, tt.wantProvider)
			}
			if got.BilledCents != got.ProviderCents {
				t.Errorf("BilledCents = %d, want passthrough %d", got.BilledCents, got.ProviderCents)
			}
			if got.ProviderCents < 0 {
				t.Errorf("negative cost %d", got.ProviderCents)
			}
		})
	}
}
