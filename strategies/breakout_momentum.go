package strategies

import (
	"github.com/evdnx/goti"

	"github.com/evdnx/btsim/engine"
	"github.com/evdnx/btsim/indicators"
	"github.com/evdnx/btsim/types"
)

// BreakoutMomentumParams configures NewBreakoutMomentum.
type BreakoutMomentumParams struct {
	ATSEMAperiod   int
	Distances      Distances
	LookbackPeriod int
	MinWarmupBars  int
}

// NewBreakoutMomentum builds the HMA/VWAO/ATSO momentum-burst strategy,
// adapted from the source's BreakoutMomentum: all three signals must agree,
// with an ATR-multiple profit target once in a position.
func NewBreakoutMomentum(p BreakoutMomentumParams) engine.Strategy {
	factory := func() (*goti.IndicatorSuite, error) {
		ic := goti.DefaultConfig()
		ic.ATSEMAperiod = p.ATSEMAperiod
		return goti.NewIndicatorSuiteWithConfig(ic)
	}
	minWarmup := p.MinWarmupBars
	if minWarmup <= 0 {
		minWarmup = 15
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
			hBull, ok1 := ctx.Bar.Value("hma_bull")
			vBull, ok2 := ctx.Bar.Value("vwao_bull")
			atBull, ok3 := ctx.Bar.Value("atso_bull")
			if ok1 && ok2 && ok3 && hBull == 1 && vBull == 1 && atBull == 1 {
				enter(types.Long)
				return
			}
			hBear, ok4 := ctx.Bar.Value("hma_bear")
			vBear, ok5 := ctx.Bar.Value("vwao_bear")
			atBear, ok6 := ctx.Bar.Value("atso_bear")
			if ok4 && ok5 && ok6 && hBear == 1 && vBear == 1 && atBear == 1 {
				enter(types.Short)
			}
		},
		StopLoss: func(ctx engine.RuleContext) float64 {
			return p.Distances.FixedStopDistance(ctx.EntryPrice)
		},
	}
	if p.Distances.TakeProfitATRxN > 0 {
		strat.ProfitTarget = func(ctx engine.RuleContext) float64 {
			atr, ok := ctx.Bar.Value("atso_last")
			if !ok {
				atr = 0
			}
			return p.Distances.ATRProfitDistance(atr)
		}
	}
	if p.Distances.TrailingPct > 0 {
		strat.TrailingStopLoss = func(ctx engine.RuleContext) float64 {
			_, _, _, c := ctx.Bar.OHLC()
			return p.Distances.TrailingDistance(c)
		}
	}
	return strat
}
