package pricing

import (
	"encoding/json"
	"strings"

	"github.com/rotisserie/eris"
)

// SystemPrompt is the fixed instruction sent with every pricing request.
var SystemPrompt = strings.Join([]string{
	"You are an elite pricing strategist and market analyst tasked with producing reliable, verifiable insights.",
	"Always ground recommendations in real, current-market data sourced from the public web and the provided dataset.",
	"Return strictly valid JSON adhering to the provided schema.",
	"If you cannot access the web or have insufficient data, lower confidence and explain limitations.",
	"Never hallucinate URLs or prices.",
}, "\n")

const responseShape = `Schema: {"recommendedPrice": number, "optimalPrice": number, "expectedMargin": number, ` +
	`"strategy": "maximize_profit"|"stay_competitive"|"clear_inventory", "priceBand": [number, number], ` +
	`"confidence": number (0-1), "competitorPrices": [{"name": string, "price": number, "currency"?: string, ` +
	`"url"?: string, "source"?: string, "lastVerified"?: string}], "marketValueSummary": string, ` +
	`"methodology": string, "dataSources": [string], "rationale": string, "nextCheckHours": number}`

// UserPrompt renders the payload as indented JSON inside the user message.
func UserPrompt(p Payload) (string, error) {
	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return "", eris.Wrap(err, "pricing: marshal payload")
	}

	var b strings.Builder
	b.WriteString("Input JSON (use all fields):\n")
	b.Write(data)
	b.WriteString("\n\n")
	b.WriteString(responseShape)
	b.WriteString("\n\nRespond with only JSON.")
	return b.String(), nil
}
