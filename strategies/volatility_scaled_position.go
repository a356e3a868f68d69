package strategies

import (
	"math"

	"github.com/evdnx/goti"

	"github.com/evdnx/btsim/engine"
	"github.com/evdnx/btsim/indicators"
	"github.com/evdnx/btsim/types"
)

// VolatilityScaledPositionParams configures NewVolatilityScaledPosition.
type VolatilityScaledPositionParams struct {
	ATSEMAperiod    int
	StopATRMultiple float64
	Distances       Distances
	LookbackPeriod  int
	MinWarmupBars   int
}

// NewVolatilityScaledPosition builds an HMA-crossover-entry strategy whose
// stop distance is derived from the current ATSO volatility reading rather
// than a fixed percentage, adapted from the source's VolScaledPos — the
// example in this set that demonstrates a non-constant StopLoss callback.
func NewVolatilityScaledPosition(p VolatilityScaledPositionParams) engine.Strategy {
	factory := func() (*goti.IndicatorSuite, error) {
		ic := goti.DefaultConfig()
		ic.ATSEMAperiod = p.ATSEMAperiod
		return goti.NewIndicatorSuiteWithConfig(ic)
	}
	minWarmup := p.MinWarmupBars
	if minWarmup <= 0 {
		minWarmup = 10
	}
	lookback := p.LookbackPeriod
	if lookback <= 0 {
		lookback = 1
	}

	strat := engine.Strategy{
		LookbackPeriod: lookback,
		Parameters:     p,
		PrepIndicators: indicators.PrepIndicators(factory, minWarmup),
		EntryRule: func(enter engine.EnterHandle, ctx engine.EntryContext) {
			if hBull, ok := ctx.Bar.Value("hma_bull"); ok && hBull == 1 {
				enter(types.Long)
				return
			}
			if hBear, ok := ctx.Bar.Value("hma_bear"); ok && hBear == 1 {
				enter(types.Short)
			}
		},
		StopLoss: func(ctx engine.RuleContext) float64 {
			atr, ok := ctx.Bar.Value("atso_last")
			if !ok || atr == 0 {
				return p.Distances.FixedStopDistance(ctx.EntryPrice)
			}
			dist := math.Abs(atr) * p.StopATRMultiple
			if dist <= 0 {
				return p.Distances.FixedStopDistance(ctx.EntryPrice)
			}
			return dist
		},
	}
	if p.Distances.TrailingPct > 0 {
		strat.TrailingStopLoss = func(ctx engine.RuleContext) float64 {
			_, _, _, c := ctx.Bar.OHLC()
			return p.Distances.TrailingDistance(c)
		}
	}
	return strat
}
