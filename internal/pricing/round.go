package pricing

import "github.com/shopspring/decimal"

var (
	bandLow  = decimal.RequireFromString("0.97")
	bandHigh = decimal.RequireFromString("1.03")
)

// round2 rounds v to cents, half away from zero. The float is first turned
// into its shortest decimal representation so 22.795 stays 22.795.
func round2(v float64) float64 {
	return decimal.NewFromFloat(v).Round(2).InexactFloat64()
}

// band returns the fixed +/-3% price band around price, rounded to cents.
func band(price float64) [2]float64 {
	d := decimal.NewFromFloat(price)
	return [2]float64{
		d.Mul(bandLow).Round(2).InexactFloat64(),
		d.Mul(bandHigh).Round(2).InexactFloat64(),
	}
}
