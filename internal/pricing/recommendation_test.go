package pricing

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/pricing-cli/internal/model"
)

func parsedAI(t *testing.T, mutate func(map[string]any)) *AIResponse {
	t.Helper()
	v := validAIResponse()
	if mutate != nil {
		mutate(v)
	}
	resp, err := ParseAIResponse(encode(t, v))
	require.NoError(t, err)
	return resp
}

func TestRecommendation_AIInsight(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	snap := snapshotWithPrices(ptr(20.0), nil)
	rec := FromAI(parsedAI(t, nil), false)
	rec.InputTokens, rec.OutputTokens = 900, 250

	ins, err := rec.Insight(snap, "claude-haiku-4-5-20251001", now)
	require.NoError(t, err)

	assert.NotEmpty(t, ins.ID)
	assert.Equal(t, "prod-1", ins.ProductID)
	assert.Equal(t, "snap-1", ins.SnapshotID)
	assert.Equal(t, model.StrategySourceAI, ins.StrategySource)
	assert.Equal(t, 24.99, ins.RecommendedPrice)
	assert.Equal(t, [2]float64{23.99, 25.99}, ins.PriceBand)
	assert.Nil(t, ins.FallbackReason)
	assert.Equal(t, 0.5, ins.Metadata["confidence"])
	assert.Equal(t, "claude-haiku-4-5-20251001", ins.Metadata["aiModel"])
	assert.Equal(t, 2, ins.Metadata["competitorCount"])
	assert.Equal(t, "stay_competitive", ins.Metadata["strategy"])
	assert.Equal(t, true, ins.Metadata["bandConsistent"])
	assert.Equal(t, int64(900), ins.Metadata["inputTokens"])
	assert.Equal(t, now, ins.CreatedAt)
}

func TestRecommendation_FallbackInsight(t *testing.T) {
	t.Parallel()

	product := model.Product{CostStructure: map[string]float64{"manufacturing": 12}}
	snap := snapshotWithPrices(ptr(20.0), ptr(22.0), ptr(25.0), ptr(30.0))
	rec := Fallback(product, snap, DefaultFallbackConfig())
	rec.FallbackReason = "context deadline exceeded"

	ins, err := rec.Insight(snap, "claude-haiku-4-5-20251001", time.Now())
	require.NoError(t, err)

	assert.Equal(t, model.StrategySourceRuleBased, ins.StrategySource)
	require.NotNil(t, ins.FallbackReason)
	assert.Equal(t, "context deadline exceeded", *ins.FallbackReason)
	assert.Equal(t, "stay_competitive", ins.Metadata["strategy"])
	assert.Equal(t, 4, ins.Metadata["competitorCount"])
	assert.NotContains(t, ins.Metadata, "confidence")
}

func TestRecommendation_UnknownSource(t *testing.T) {
	t.Parallel()

	_, err := Recommendation{Source: "manual"}.Insight(model.CompetitorSnapshot{}, "m", time.Now())
	assert.Error(t, err)

	_, err = Recommendation{Source: model.StrategySourceAI}.Insight(model.CompetitorSnapshot{}, "m", time.Now())
	assert.Error(t, err)
}

func TestFromAI_BandClamp(t *testing.T) {
	t.Parallel()

	resp := parsedAI(t, func(v map[string]any) { v["priceBand"] = []any{26.0, 28.0} })

	trusted := FromAI(resp, false)
	assert.Equal(t, [2]float64{26, 28}, trusted.PriceBand)
	assert.False(t, trusted.BandConsistent())

	clamped := FromAI(resp, true)
	assert.Equal(t, [2]float64{24.99, 28}, clamped.PriceBand)
	assert.True(t, clamped.BandConsistent())
}
