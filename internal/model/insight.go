package model

import "time"

// StrategySource discriminates how a pricing insight was produced.
type StrategySource string

const (
	StrategySourceAI        StrategySource = "ai"
	StrategySourceRuleBased StrategySource = "rule_based"
)

// Valid reports whether s is a known strategy source.
func (s StrategySource) Valid() bool {
	return s == StrategySourceAI || s == StrategySourceRuleBased
}

// Strategy is the pricing posture behind a recommendation.
type Strategy string

const (
	StrategyMaximizeProfit  Strategy = "maximize_profit"
	StrategyStayCompetitive Strategy = "stay_competitive"
	StrategyClearInventory  Strategy = "clear_inventory"
)

// Valid reports whether s is one of the known strategies.
func (s Strategy) Valid() bool {
	switch s {
	case StrategyMaximizeProfit, StrategyStayCompetitive, StrategyClearInventory:
		return true
	default:
		return false
	}
}

// PricingInsight is a stored pricing recommendation derived from a snapshot.
// Insights are immutable once written; newer insights supersede older ones.
type PricingInsight struct {
	ID               string         `json:"insightId" yaml:"insightId"`
	ProductID        string         `json:"productId" yaml:"productId"`
	SnapshotID       string         `json:"snapshotId" yaml:"snapshotId"`
	StrategySource   StrategySource `json:"strategySource" yaml:"strategySource"`
	RecommendedPrice float64        `json:"recommendedPrice" yaml:"recommendedPrice"`
	PriceBand        [2]float64     `json:"priceBand" yaml:"priceBand"`
	ExpectedMargin   float64        `json:"expectedMargin" yaml:"expectedMargin"`
	Rationale        string         `json:"rationale" yaml:"rationale"`
	DataSources      []string       `json:"dataSources" yaml:"dataSources"`
	FallbackReason   *string        `json:"fallbackReason,omitempty" yaml:"fallbackReason,omitempty"`
	Metadata         map[string]any `json:"metadata,omitempty" yaml:"metadata,omitempty"`
	CreatedAt        time.Time      `json:"createdAt" yaml:"createdAt"`
	UpdatedAt        time.Time      `json:"updatedAt" yaml:"updatedAt"`
}
