package pricing

import "github.com/sells-group/pricing-cli/internal/model"

// Payload is the normalized view of a product and its competitor snapshot
// that the AI prompt is built from. Every optional field has a safe default.
type Payload struct {
	ProductName         string         `json:"productName"`
	ProductDescription  string         `json:"productDescription"`
	SKU                 string         `json:"sku"`
	Brand               string         `json:"brand"`
	Category            string         `json:"category"`
	Attributes          map[string]any `json:"attributes"`
	TotalCost           float64        `json:"totalCost"`
	MSRP                *float64       `json:"msrp"`
	CurrentPrice        float64        `json:"currentPrice"`
	CurrentMargin       float64        `json:"currentMargin"`
	HistoricalPrices    []any          `json:"historicalPrices"`
	CurrentInventory    *float64       `json:"currentInventory"`
	DemandForecast      any            `json:"demandForecast"`
	CompetitorUSDPrices []float64      `json:"competitorUsdPrices"`
	CompetitorNames     []string       `json:"competitorNames"`
	CompetitorURLs      []string       `json:"competitorUrls"`
}

// BuildPayload normalizes product and snapshot into a Payload.
func BuildPayload(product model.Product, snapshot model.CompetitorSnapshot) Payload {
	info := product.BasicInfo
	totalCost := product.TotalCost()

	var currentPrice float64
	if product.Pricing.SellingPrice != nil {
		currentPrice = *product.Pricing.SellingPrice
	}
	var currentMargin float64
	if currentPrice > 0 {
		currentMargin = round2((currentPrice - totalCost) / currentPrice * 100)
	}

	var msrp *float64
	if product.Pricing.MSRP != nil && *product.Pricing.MSRP != 0 {
		v := *product.Pricing.MSRP
		msrp = &v
	}

	p := Payload{
		ProductName:         orDefault(info.Name, "Unnamed"),
		ProductDescription:  info.Description,
		SKU:                 info.SKU,
		Brand:               info.Brand,
		Category:            orDefault(info.Category, "Uncategorized"),
		Attributes:          info.Attributes,
		TotalCost:           totalCost,
		MSRP:                msrp,
		CurrentPrice:        currentPrice,
		CurrentMargin:       currentMargin,
		HistoricalPrices:    product.Pricing.History,
		CurrentInventory:    product.Inventory.OnHand,
		DemandForecast:      product.Analytics.Forecast,
		CompetitorUSDPrices: []float64{},
		CompetitorNames:     []string{},
		CompetitorURLs:      []string{},
	}
	if p.Attributes == nil {
		p.Attributes = map[string]any{}
	}
	if p.HistoricalPrices == nil {
		p.HistoricalPrices = []any{}
	}

	for _, c := range snapshot.Competitors {
		price, ok := c.Price()
		if !ok {
			continue
		}
		p.CompetitorUSDPrices = append(p.CompetitorUSDPrices, price)
		p.CompetitorNames = append(p.CompetitorNames, c.Hostname)
		p.CompetitorURLs = append(p.CompetitorURLs, c.URL)
	}
	return p
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
