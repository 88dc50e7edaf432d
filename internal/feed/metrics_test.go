package feed

import (
	"math"
	"testing"

	"github.com/pulsefeed/pulse/internal/models"
)

func TestComputeCacheMetricsHitRate(t *testing.T) {
	t.Parallel()

	usage := models.Usage{InputTokens: 1000, OutputTokens: 200, CacheReadTokens: 800}
	m := ComputeCacheMetrics(900, 100, usage, DefaultPriceTable().Default)

	if m.CacheHitRate != 0.8 {
		t.Errorf("CacheHitRate = %v, want 0.8", m.CacheHitRate)
	}
	if m.PrefixTokens != 900 || m.SuffixTokens != 100 {
		t.Errorf("prefix/suffix tokens = %d/%d, want 900/100", m.PrefixTokens, m.SuffixTokens)
	}
}

func TestComputeCacheMetricsZeroInput(t *testing.T) {
	t.Parallel()

	m := ComputeCacheMetrics(0, 0, models.Usage{}, DefaultPriceTable().Default)

	if m.CacheHitRate != 0 {
		t.Errorf("CacheHitRate = %v, want 0 for zero input", m.CacheHitRate)
	}
	if m.EstimatedCostUSD != 0 {
		t.Errorf("EstimatedCostUSD = %v, want 0", m.EstimatedCostUSD)
	}
}

func TestComputeCacheMetricsCost(t *testing.T) {
	t.Parallel()

	price := ModelPrice{InputPerMTok: 1.0, CachedInputPerMTok: 0.5, OutputPerMTok: 4.0}
	usage := models.Usage{InputTokens: 1_000_000, OutputTokens: 500_000, CacheReadTokens: 400_000}

	m := ComputeCacheMetrics(0, 0, usage, price)

	// 600k fresh at $1 + 400k cached at $0.5 + 500k output at $4
	want := 0.6 + 0.2 + 2.0
	if math.Abs(m.EstimatedCostUSD-want) > 1e-9 {
		t.Errorf("EstimatedCostUSD = %v, want %v", m.EstimatedCostUSD, want)
	}
}

func TestComputeCacheMetricsClampsNegativeFreshInput(t *testing.T) {
	t.Parallel()

	// Providers occasionally report cache reads above input; cost must not
	// go negative.
	price := ModelPrice{InputPerMTok: 1.0, CachedInputPerMTok: 0.5, OutputPerMTok: 4.0}
	usage := models.Usage{InputTokens: 100, CacheReadTokens: 150}

	m := ComputeCacheMetrics(0, 0, usage, price)

	if m.EstimatedCostUSD < 0 {
		t.Errorf("EstimatedCostUSD = %v, want non-negative", m.EstimatedCostUSD)
	}
}

func TestPriceForFallsBackToDefault(t *testing.T) {
	t.Parallel()

	table := DefaultPriceTable()

	if p := table.PriceFor("gpt-4o-mini"); p.InputPerMTok != 0.15 {
		t.Errorf("known model input price = %v, want 0.15", p.InputPerMTok)
	}
	if p := table.PriceFor("some-unknown-model"); p != table.Default {
		t.Errorf("unknown model price = %+v, want default", p)
	}
}
