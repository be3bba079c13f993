package pricing

import (
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/sells-group/pricing-cli/internal/model"
)

// Recommendation is the output of either pricing path. Source discriminates
// which of the path-specific fields are populated.
type Recommendation struct {
	Source           model.StrategySource
	Strategy         model.Strategy
	RecommendedPrice float64
	PriceBand        [2]float64
	ExpectedMargin   float64
	Rationale        string
	DataSources      []string

	// Set when Source is ai.
	AI           *AIResponse
	InputTokens  int64
	OutputTokens int64

	// Set when Source is rule_based and the AI step was attempted.
	FallbackReason string
}

// FromAI converts a validated AI response into a recommendation. When clamp
// is set, a recommended price outside the returned band widens the band to
// include it.
func FromAI(resp *AIResponse, clamp bool) Recommendation {
	bandLo, bandHi := resp.PriceBand[0], resp.PriceBand[1]
	price := *resp.RecommendedPrice
	if clamp {
		bandLo = min(bandLo, price)
		bandHi = max(bandHi, price)
	}
	return Recommendation{
		Source:           model.StrategySourceAI,
		Strategy:         resp.Strategy,
		RecommendedPrice: price,
		PriceBand:        [2]float64{bandLo, bandHi},
		ExpectedMargin:   *resp.ExpectedMargin,
		Rationale:        resp.Rationale,
		DataSources:      resp.DataSources,
		AI:               resp,
	}
}

// BandConsistent reports whether the band brackets the recommended price.
func (r Recommendation) BandConsistent() bool {
	return r.PriceBand[0] <= r.RecommendedPrice && r.RecommendedPrice <= r.PriceBand[1]
}

// Insight builds the stored insight for a snapshot. aiModel is recorded on
// both paths so a fallback still shows which model was tried.
func (r Recommendation) Insight(snapshot model.CompetitorSnapshot, aiModel string, now time.Time) (model.PricingInsight, error) {
	meta := map[string]any{
		"aiModel":         aiModel,
		"competitorCount": len(snapshot.Competitors),
		"strategy":        string(r.Strategy),
	}

	var fallbackReason *string
	switch r.Source {
	case model.StrategySourceAI:
		if r.AI == nil {
			return model.PricingInsight{}, eris.New("pricing: ai recommendation without response")
		}
		meta["confidence"] = *r.AI.Confidence
		meta["optimalPrice"] = *r.AI.OptimalPrice
		meta["nextCheckHours"] = *r.AI.NextCheckHours
		meta["inputTokens"] = r.InputTokens
		meta["outputTokens"] = r.OutputTokens
		meta["bandConsistent"] = r.BandConsistent()
	case model.StrategySourceRuleBased:
		if r.FallbackReason != "" {
			reason := r.FallbackReason
			fallbackReason = &reason
		}
	default:
		return model.PricingInsight{}, eris.Errorf("pricing: unknown strategy source %q", r.Source)
	}

	return model.PricingInsight{
		ID:               uuid.NewString(),
		ProductID:        snapshot.ProductID,
		SnapshotID:       snapshot.ID,
		StrategySource:   r.Source,
		RecommendedPrice: r.RecommendedPrice,
		PriceBand:        r.PriceBand,
		ExpectedMargin:   r.ExpectedMargin,
		Rationale:        r.Rationale,
		DataSources:      r.DataSources,
		FallbackReason:   fallbackReason,
		Metadata:         meta,
		CreatedAt:        now,
		UpdatedAt:        now,
	}, nil
}
