package pricing

import (
	"encoding/json"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/pricing-cli/internal/model"
)

// ErrInvalidAIResponse is returned when the model output cannot be trusted.
var ErrInvalidAIResponse = eris.New("invalid ai response")

// CompetitorPrice is one competitor price the model reports having verified.
type CompetitorPrice struct {
	Name         *string  `json:"name"`
	Price        *float64 `json:"price"`
	Currency     string   `json:"currency,omitempty"`
	URL          string   `json:"url,omitempty"`
	Source       string   `json:"source,omitempty"`
	LastVerified string   `json:"lastVerified,omitempty"`
}

// AIResponse is the JSON object the model must return. Required numbers are
// pointers so a missing key is distinguishable from zero.
type AIResponse struct {
	RecommendedPrice   *float64          `json:"recommendedPrice"`
	OptimalPrice       *float64          `json:"optimalPrice"`
	ExpectedMargin     *float64          `json:"expectedMargin"`
	Strategy           model.Strategy    `json:"strategy"`
	PriceBand          []float64         `json:"priceBand"`
	Confidence         *float64          `json:"confidence"`
	CompetitorPrices   []CompetitorPrice `json:"competitorPrices"`
	MarketValueSummary string            `json:"marketValueSummary"`
	Methodology        string            `json:"methodology"`
	DataSources        []string          `json:"dataSources"`
	Rationale          string            `json:"rationale"`
	NextCheckHours     *float64          `json:"nextCheckHours"`
}

// ParseAIResponse decodes and validates raw model output. Markdown code
// fences and text around the JSON object are ignored.
func ParseAIResponse(text string) (*AIResponse, error) {
	cleaned := cleanJSON(text)
	if cleaned == "" {
		return nil, eris.Wrap(ErrInvalidAIResponse, "pricing: empty response")
	}

	var resp AIResponse
	if err := json.Unmarshal([]byte(cleaned), &resp); err != nil {
		return nil, eris.Wrapf(ErrInvalidAIResponse, "pricing: decode response: %v", err)
	}
	if err := resp.Validate(); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Validate checks every required field, enum and range.
func (r *AIResponse) Validate() error {
	var problems []string
	require := func(ok bool, msg string) {
		if !ok {
			problems = append(problems, msg)
		}
	}

	require(r.RecommendedPrice != nil, "recommendedPrice is required")
	require(r.OptimalPrice != nil, "optimalPrice is required")
	require(r.ExpectedMargin != nil, "expectedMargin is required")
	require(r.NextCheckHours != nil, "nextCheckHours is required")
	require(r.Strategy.Valid(), "strategy must be one of maximize_profit, stay_competitive, clear_inventory")
	require(len(r.PriceBand) == 2, "priceBand must have exactly two numbers")
	require(r.Confidence != nil, "confidence is required")
	if r.Confidence != nil {
		require(*r.Confidence >= 0 && *r.Confidence <= 1, "confidence must be within [0,1]")
	}
	require(len(r.CompetitorPrices) > 0, "competitorPrices must not be empty")
	for _, cp := range r.CompetitorPrices {
		if cp.Name == nil || cp.Price == nil {
			problems = append(problems, "competitorPrices entries require name and price")
			break
		}
	}
	require(strings.TrimSpace(r.MarketValueSummary) != "", "marketValueSummary is required")
	require(strings.TrimSpace(r.Methodology) != "", "methodology is required")
	require(strings.TrimSpace(r.Rationale) != "", "rationale is required")
	require(len(r.DataSources) > 0, "dataSources must not be empty")

	if len(problems) > 0 {
		return eris.Wrapf(ErrInvalidAIResponse, "pricing: %s", strings.Join(problems, "; "))
	}
	return nil
}

// cleanJSON strips markdown fences and surrounding prose, returning the
// outermost JSON object.
func cleanJSON(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		if idx := strings.Index(s, "\n"); idx >= 0 {
			s = s[idx+1:]
		}
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	}
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return strings.TrimSpace(s)
	}
	return s[start : end+1]
}
