package strategies

import (
	"github.com/evdnx/goti"

	"github.com/evdnx/btsim/engine"
	"github.com/evdnx/btsim/indicators"
	"github.com/evdnx/btsim/types"
)

// TrendCompositeParams configures NewTrendComposite and doubles as the
// engine.Strategy.Parameters payload the entry rule reads back — the example
// in this set demonstrating a non-trivial Parameters value.
type TrendCompositeParams struct {
	RSIOverbought, RSIOversold float64
	MFIOverbought, MFIOversold float64
	VWAOStrongTrend            float64
	ATSEMAperiod               int
	MinScore                   int // how many of {HMA, AMDO, ATSO} must agree
	Distances                  Distances
	LookbackPeriod             int
	MinWarmupBars              int
}

// NewTrendComposite builds the multi-indicator composite scoring strategy,
// adapted from the source's TrendComposite: HMA, AMDO, and ATSO each cast a
// vote and an entry fires once at least MinScore of the three agree and the
// raw AMDO/ATSO values confirm directional momentum.
func NewTrendComposite(p TrendCompositeParams) engine.Strategy {
	factory := func() (*goti.IndicatorSuite, error) {
		ic := goti.DefaultConfig()
		ic.RSIOverbought = p.RSIOverbought
		ic.RSIOversold = p.RSIOversold
		ic.MFIOverbought = p.MFIOverbought
		ic.MFIOversold = p.MFIOversold
		ic.VWAOStrongTrend = p.VWAOStrongTrend
		ic.ATSEMAperiod = p.ATSEMAperiod
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
	minScore := p.MinScore
	if minScore <= 0 {
		minScore = 3
	}

	strat := engine.Strategy{
		LookbackPeriod: lookback,
		Parameters:     p,
		PrepIndicators: indicators.PrepIndicators(factory, minWarmup),
		EntryRule: func(enter engine.EnterHandle, ctx engine.EntryContext) {
			bullScore, bearScore := 0, 0
			if v, ok := ctx.Bar.Value("hma_bull"); ok && v == 1 {
				bullScore++
			}
			if v, ok := ctx.Bar.Value("hma_bear"); ok && v == 1 {
				bearScore++
			}
			if v, ok := ctx.Bar.Value("amdo_bull"); ok && v == 1 {
				bullScore++
			}
			if v, ok := ctx.Bar.Value("amdo_bear"); ok && v == 1 {
				bearScore++
			}
			if v, ok := ctx.Bar.Value("atso_bull"); ok && v == 1 {
				bullScore++
			}
			if v, ok := ctx.Bar.Value("atso_bear"); ok && v == 1 {
				bearScore++
			}

			amdoVal, _ := ctx.Bar.Value("amdo_val")
			atsoVal, _ := ctx.Bar.Value("atso_val")

			if bullScore >= minScore && amdoVal > 0 && atsoVal > 0 {
				enter(types.Long)
				return
			}
			if bearScore >= minScore && amdoVal < 0 && atsoVal < 0 {
				enter(types.Short)
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
