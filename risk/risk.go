// Package risk computes the risk-denominated figures the engine attaches to
// an open Position and the analyzer later aggregates: unit risk, risk
// percentage, and R-multiple.
package risk

import "github.com/evdnx/btsim/types"

// UnitRisk returns the signed per-unit distance between price and a stop
// price, oriented so it is positive when the stop still protects the
// position (price above a long stop, price below a short stop) and negative
// when price has crossed it.
func UnitRisk(dir types.Direction, price, stopPrice float64) float64 {
	if dir == types.Short {
		return stopPrice - price
	}
	return price - stopPrice
}

// RiskPct expresses a unit risk as a percentage of price. Returns 0 when
// price is 0 to avoid a NaN propagating into the Position.
func RiskPct(unitRisk, price float64) float64 {
	if price == 0 {
		return 0
	}
	return unitRisk / price * 100
}

// RMultiple divides profit by the initial unit risk. The result is nil when
// unitRisk is exactly zero, matching the engine's "undefined, not NaN"
// convention for R-multiples (types.Trade.RMultiple is then nil).
func RMultiple(profit, unitRisk float64) *float64 {
	if unitRisk == 0 {
		return nil
	}
	v := profit / unitRisk
	return &v
}
