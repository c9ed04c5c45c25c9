package catalog

import (
	"context"
	"fmt"
	"sort"

	"github.com/af-corp/quieter-gateway/internal/config"
)

// Resolver maps a requested model id, or "auto", to a catalog row.
type Resolver struct {
	catalog Catalog
	cfg     func() config.RoutingConfig
}

func NewResolver(catalog Catalog, cfg func() config.RoutingConfig) *Resolver {
	return &Resolver{catalog: catalog, cfg: cfg}
}

// Resolve returns the enabled model named by requested. An empty id is
// treated as "auto". Errors wrap ErrModelNotFound or ErrNoModelsConfigured;
// catalog read failures are returned as is.
func (r *Resolver) Resolve(ctx context.Context, requested string) (ModelConfig, error) {
	models, err := r.catalog.EnabledModels(ctx)
	if err != nil {
		return ModelConfig{}, fmt.Errorf("load catalog: %w", err)
	}

	if requested != "" && requested != AutoModel {
		for _, m := range models {
			if m.ID == requested && m.Enabled {
				return m, nil
			}
		}
		return ModelConfig{}, fmt.Errorf("%w: %q", ErrModelNotFound, requested)
	}

	enabled := models[:0:0]
	for _, m := range models {
		if m.Enabled {
			enabled = append(enabled, m)
		}
	}
	if len(enabled) == 0 {
		return ModelConfig{}, ErrNoModelsConfigured
	}

	if def := r.defaultModel(); def != "" {
		for _, m := range enabled {
			if m.ID == def {
				return m, nil
			}
		}
	}

	return SelectAuto(enabled), nil
}

func (r *Resolver) defaultModel() string {
	if r.cfg == nil {
		return ""
	}
	return r.cfg().DefaultModel
}

// SelectAuto picks the cheapest model by input price. Ties go to the higher
// quality score (a missing score ranks below any value), then to the lower
// id. models must be non-empty.
func SelectAuto(models []ModelConfig) ModelConfig {
	ranked := make([]ModelConfig, len(models))
	copy(ranked, models)
	sort.SliceStable(ranked, func(i, j int) bool {
		return better(ranked[i], ranked[j])
	})
	return ranked[0]
}

func better(a, b ModelConfig) bool {
	if a.PriceInputPer1K != b.PriceInputPer1K {
		return a.PriceInputPer1K < b.PriceInputPer1K
	}
	switch {
	case a.QualityScore != nil && b.QualityScore == nil:
		return true
	case a.QualityScore == nil && b.QualityScore != nil:
		return false
	case a.QualityScore != nil && b.QualityScore != nil && *a.QualityScore != *b.QualityScore:
		return *a.QualityScore > *b.QualityScore
	}
	return a.ID < b.ID
}
