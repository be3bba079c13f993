package model

import (
	"sort"
	"time"
)

// Product is the pricing and cost master record. It is owned by the product
// management side of the system and read-only to the pricing worker.
type Product struct {
	ID            string             `json:"productId" yaml:"productId"`
	BasicInfo     BasicInfo          `json:"basicInfo" yaml:"basicInfo"`
	CostStructure map[string]float64 `json:"costStructure,omitempty" yaml:"costStructure,omitempty"`
	Pricing       ProductPricing     `json:"pricing" yaml:"pricing"`
	Inventory     Inventory          `json:"inventory" yaml:"inventory"`
	Analytics     Analytics          `json:"analytics" yaml:"analytics"`
	CreatedAt     time.Time          `json:"createdAt" yaml:"createdAt"`
	UpdatedAt     time.Time          `json:"updatedAt" yaml:"updatedAt"`
}

// BasicInfo holds descriptive product fields.
type BasicInfo struct {
	Name        string         `json:"name,omitempty" yaml:"name,omitempty"`
	Description string         `json:"description,omitempty" yaml:"description,omitempty"`
	SKU         string         `json:"sku,omitempty" yaml:"sku,omitempty"`
	Brand       string         `json:"brand,omitempty" yaml:"brand,omitempty"`
	Category    string         `json:"category,omitempty" yaml:"category,omitempty"`
	Attributes  map[string]any `json:"attributes,omitempty" yaml:"attributes,omitempty"`
}

// ProductPricing holds the current selling price, MSRP and price history.
type ProductPricing struct {
	SellingPrice *float64 `json:"sellingPrice,omitempty" yaml:"sellingPrice,omitempty"`
	MSRP         *float64 `json:"msrp,omitempty" yaml:"msrp,omitempty"`
	History      []any    `json:"history,omitempty" yaml:"history,omitempty"`
}

// Inventory holds stock levels.
type Inventory struct {
	OnHand *float64 `json:"onHand,omitempty" yaml:"onHand,omitempty"`
}

// Analytics holds demand data produced elsewhere.
type Analytics struct {
	Forecast any `json:"forecast,omitempty" yaml:"forecast,omitempty"`
}

// TotalCost sums every cost-structure component. Components are added in key
// order so the float result does not depend on map iteration.
func (p Product) TotalCost() float64 {
	if len(p.CostStructure) == 0 {
		return 0
	}
	keys := make([]string, 0, len(p.CostStructure))
	for k := range p.CostStructure {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var total float64
	for _, k := range keys {
		total += p.CostStructure[k]
	}
	return total
}
