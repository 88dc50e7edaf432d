package feed

import (
	"fmt"
	"os"

	"github.com/pulsefeed/pulse/internal/models"
	"gopkg.in/yaml.v3"
)

// ModelPrice holds per-million-token prices for one model.
type ModelPrice struct {
	InputPerMTok       float64 `yaml:"input_per_mtok"`
	CachedInputPerMTok float64 `yaml:"cached_input_per_mtok"`
	OutputPerMTok      float64 `yaml:"output_per_mtok"`
}

// PriceTable maps model names to prices, with a default for unknown models.
type PriceTable struct {
	Models  map[string]ModelPrice `yaml:"models"`
	Default ModelPrice            `yaml:"default"`
}

// DefaultPriceTable returns a conservative built-in table used when no
// price file is configured. Exact vendor parity is a non-goal; these only
// feed the observational cost estimate.
func DefaultPriceTable() *PriceTable {
	return &PriceTable{
		Models: map[string]ModelPrice{
			"gpt-4o-mini": {InputPerMTok: 0.15, CachedInputPerMTok: 0.075, OutputPerMTok: 0.60},
			"gpt-4o":      {InputPerMTok: 2.50, CachedInputPerMTok: 1.25, OutputPerMTok: 10.00},
		},
		Default: ModelPrice{InputPerMTok: 1.00, CachedInputPerMTok: 0.50, OutputPerMTok: 4.00},
	}
}

// LoadPriceTable reads a YAML price table from disk.
func LoadPriceTable(path string) (*PriceTable, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read price table: %w", err)
	}

	table := &PriceTable{}
	if err := yaml.Unmarshal(data, table); err != nil {
		return nil, fmt.Errorf("failed to parse price table: %w", err)
	}
	if table.Default == (ModelPrice{}) {
		table.Default = DefaultPriceTable().Default
	}
	return table, nil
}

// PriceFor resolves the price entry for a model, falling back to Default.
func (t *PriceTable) PriceFor(model string) ModelPrice {
	if p, ok := t.Models[model]; ok {
		return p
	}
	return t.Default
}

// ComputeCacheMetrics derives cache-hit and cost accounting from the
// provider's usage response. Pure and deterministic; purely observational.
func ComputeCacheMetrics(prefixTokens, suffixTokens int, usage models.Usage, price ModelPrice) models.CacheMetrics {
	m := models.CacheMetrics{
		PrefixTokens:        prefixTokens,
		SuffixTokens:        suffixTokens,
		InputTokens:         usage.InputTokens,
		OutputTokens:        usage.OutputTokens,
		CacheReadTokens:     usage.CacheReadTokens,
		CacheCreationTokens: usage.CacheCreationTokens,
	}

	if usage.InputTokens > 0 {
		m.CacheHitRate = float64(usage.CacheReadTokens) / float64(usage.InputTokens)
	}

	freshInput := usage.InputTokens - usage.CacheReadTokens
	if freshInput < 0 {
		freshInput = 0
	}
	const mtok = 1_000_000.0
	m.EstimatedCostUSD = float64(freshInput)/mtok*price.InputPerMTok +
		float64(usage.CacheReadTokens)/mtok*price.CachedInputPerMTok +
		float64(usage.OutputTokens)/mtok*price.OutputPerMTok

	return m
}
