package config

// ModelsConfig is the file-backed model catalog (models.yaml), used when
// catalog.source is "config" and to seed the models table.
type ModelsConfig struct {
	Models []ModelEntry `yaml:"models"`
}

// ModelEntry prices are minor currency units (cents) per 1000 tokens.
type ModelEntry struct {
	ID               string   `yaml:"id"`
	Provider         string   `yaml:"provider"`
	UpstreamModel    string   `yaml:"upstream_model"`
	Enabled          bool     `yaml:"enabled"`
	PriceInputPer1K  float64  `yaml:"price_input_per_1k"`
	PriceOutputPer1K float64  `yaml:"price_output_per_1k"`
	QualityScore     *float64 `yaml:"quality_score,omitempty"`
	Tier             string   `yaml:"tier"`
}
