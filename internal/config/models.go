package config

// ModelsConfig maps public model names to upstream models and pricing.
type ModelsConfig struct {
	Models map[string]ModelMapping `yaml:"models"`
}

type ModelMapping struct {
	DisplayName   string     `yaml:"display_name"`
	UpstreamModel string     `yaml:"upstream_model"`
	Pricing       PriceEntry `yaml:"pricing"`
}

// PriceEntry is USD per 1M tokens.
type PriceEntry struct {
	Input  float64 `yaml:"input"`
	Output float64 `yaml:"output"`
}

// Cost returns the estimated USD cost for a token count pair.
func (p PriceEntry) Cost(promptTokens, completionTokens int) float64 {
	return float64(promptTokens)/1e6*p.Input + float64(completionTokens)/1e6*p.Output
}
