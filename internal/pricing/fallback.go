package pricing

import (
	"fmt"
	"math"

	"github.com/sells-group/pricing-cli/internal/model"
)

// FallbackConfig holds the margin targets for the rule-based path.
type FallbackConfig struct {
	DesiredMargin float64 // fraction, e.g. 0.18
	MinMargin     float64 // fraction, e.g. 0.10
}

// DefaultFallbackConfig returns the standard 18% target and 10% minimum.
func DefaultFallbackConfig() FallbackConfig {
	return FallbackConfig{DesiredMargin: 0.18, MinMargin: 0.10}
}

// CompetitorPrices returns the parsed USD price of every entry that has one.
func CompetitorPrices(snapshot model.CompetitorSnapshot) []float64 {
	prices := make([]float64, 0, len(snapshot.Competitors))
	for _, c := range snapshot.Competitors {
		if p, ok := c.Price(); ok {
			prices = append(prices, p)
		}
	}
	return prices
}

// Fallback computes a deterministic recommendation from product cost and
// competitor prices. It never fails.
//
// The price is the competitor median capped at q3 and floored at cost plus
// the desired margin. When the median is 0 but q3 is not, the ceiling is
// used unchanged.
func Fallback(product model.Product, snapshot model.CompetitorSnapshot, cfg FallbackConfig) Recommendation {
	totalCost := product.TotalCost()
	floorPrice := totalCost * (1 + cfg.DesiredMargin)
	q := Quantiles(CompetitorPrices(snapshot))

	ceiling := q.Q3
	if ceiling == 0 {
		ceiling = q.Median
	}
	if ceiling == 0 {
		ceiling = floorPrice
	}

	anchor := q.Median
	if anchor == 0 {
		anchor = ceiling
	}
	price := math.Max(floorPrice, math.Min(ceiling, anchor))

	var margin float64
	if totalCost > 0 {
		margin = (price - totalCost) / totalCost * 100
	}
	margin = math.Max(margin, cfg.MinMargin*100)

	sources := make([]string, 0, len(snapshot.Competitors))
	for _, c := range snapshot.Competitors {
		sources = append(sources, c.URL)
	}

	return Recommendation{
		Source:           model.StrategySourceRuleBased,
		Strategy:         model.StrategyStayCompetitive,
		RecommendedPrice: round2(price),
		PriceBand:        band(price),
		ExpectedMargin:   round2(margin),
		Rationale:        fallbackRationale(q, cfg.DesiredMargin),
		DataSources:      sources,
	}
}

func fallbackRationale(q QuantileSummary, desiredMargin float64) string {
	return fmt.Sprintf("Fallback strategy using competitor median $%.2f; IQR=%.2f; floor ensures >= %.1f%% margin",
		q.Median, q.IQR(), desiredMargin*100)
}
