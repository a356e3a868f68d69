package strategies

import (
	"github.com/evdnx/goti"

	"github.com/evdnx/btsim/engine"
	"github.com/evdnx/btsim/indicators"
	"github.com/evdnx/btsim/types"
)

// MeanReversionParams configures NewMeanReversion.
type MeanReversionParams struct {
	RSIOverbought, RSIOversold float64
	MFIOverbought, MFIOversold float64
	VWAOStrongTrend            float64
	Distances                  Distances
	LookbackPeriod             int
	MinWarmupBars              int
}

// NewMeanReversion builds the RSI+MFI+VWAO oversold/overbought crossover
// strategy, adapted from the source's MeanReversion: three oscillators must
// agree before an entry fires.
func NewMeanReversion(p MeanReversionParams) engine.Strategy {
	factory := func() (*goti.IndicatorSuite, error) {
		ic := goti.DefaultConfig()
		ic.RSIOverbought = p.RSIOverbought
		ic.RSIOversold = p.RSIOversold
		ic.MFIOverbought = p.MFIOverbought
		ic.MFIOversold = p.MFIOversold
		ic.VWAOStrongTrend = p.VWAOStrongTrend
		return goti.NewIndicatorSuiteWithConfig(ic)
	}
	minWarmup := p.MinWarmupBars
	if minWarmup <= 0 {
		minWarmup = 14
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
			rsiBull, ok1 := ctx.Bar.Value("rsi_bull")
			mfiBull, ok2 := ctx.Bar.Value("mfi_bull")
			vwaoBull, ok3 := ctx.Bar.Value("vwao_bull")
			if ok1 && ok2 && ok3 && rsiBull == 1 && mfiBull == 1 && vwaoBull == 1 {
				enter(types.Long)
				return
			}
			rsiBear, ok4 := ctx.Bar.Value("rsi_bear")
			mfiBear, ok5 := ctx.Bar.Value("mfi_bear")
			vwaoBear, ok6 := ctx.Bar.Value("vwao_bear")
			if ok4 && ok5 && ok6 && rsiBear == 1 && mfiBear == 1 && vwaoBear == 1 {
				enter(types.Short)
			}
		},
		ExitRule: func(exit engine.ExitHandle, ctx engine.ExitContext) {
			if ctx.Position.Direction == types.Long {
				if bear, ok := ctx.Bar.Value("rsi_bear"); ok && bear == 1 {
					exit(nil, string(types.ExitRule))
				}
				return
			}
			if bull, ok := ctx.Bar.Value("rsi_bull"); ok && bull == 1 {
				exit(nil, string(types.ExitRule))
			}
		},
		StopLoss: func(ctx engine.RuleContext) float64 {
			return p.Distances.FixedStopDistance(ctx.EntryPrice)
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
