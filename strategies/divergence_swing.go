package strategies

import (
	"github.com/evdnx/goti"

	"github.com/evdnx/btsim/engine"
	"github.com/evdnx/btsim/indicators"
	"github.com/evdnx/btsim/types"
)

// DivergenceSwingParams configures NewDivergenceSwing.
type DivergenceSwingParams struct {
	Distances        Distances
	PriceBufferDepth int
	LookbackPeriod   int
	MinWarmupBars    int
}

// NewDivergenceSwing builds the price/oscillator divergence strategy,
// adapted from the source's DivergenceSwing: any of RSI/MFI/AMDO divergence
// combined with a matching trend direction triggers an entry. The trend
// counts as bullish (bearish) when either the HMA crossover column or the
// priceBuffer's own Trend reading says so.
func NewDivergenceSwing(p DivergenceSwingParams) engine.Strategy {
	factory := func() (*goti.IndicatorSuite, error) {
		ic := goti.DefaultConfig()
		ic.RSIOverbought = 70
		ic.RSIOversold = 30
		ic.MFIOverbought = 80
		ic.MFIOversold = 20
		return goti.NewIndicatorSuiteWithConfig(ic)
	}
	minWarmup := p.MinWarmupBars
	if minWarmup <= 0 {
		minWarmup = 12
	}
	lookback := p.LookbackPeriod
	if lookback <= 0 {
		lookback = 1
	}
	depth := p.PriceBufferDepth
	if depth <= 0 {
		depth = 16
	}

	prices := newPriceBuffer(depth)

	strat := engine.Strategy{
		LookbackPeriod: lookback,
		Parameters:     p,
		PrepIndicators: indicators.PrepIndicators(factory, minWarmup),
		EntryRule: func(enter engine.EnterHandle, ctx engine.EntryContext) {
			_, _, _, c := ctx.Bar.OHLC()
			prices.Add(c)

			hBull := prices.Trend() > 0
			if v, ok := ctx.Bar.Value("hma_bull"); ok {
				hBull = hBull || v == 1
			}
			hBear := prices.Trend() < 0
			if v, ok := ctx.Bar.Value("hma_bear"); ok {
				hBear = hBear || v == 1
			}

			bullDiv, bearDiv := false, false
			if v, ok := ctx.Bar.Value("rsi_div_bull"); ok && v == 1 {
				bullDiv = true
			}
			if v, ok := ctx.Bar.Value("rsi_div_bear"); ok && v == 1 {
				bearDiv = true
			}
			if v, ok := ctx.Bar.Value("mfi_div_bull"); ok && v == 1 {
				bullDiv = true
			}
			if v, ok := ctx.Bar.Value("mfi_div_bear"); ok && v == 1 {
				bearDiv = true
			}
			if v, ok := ctx.Bar.Value("amdo_div_bull"); ok && v == 1 {
				bullDiv = true
			}
			if v, ok := ctx.Bar.Value("amdo_div_bear"); ok && v == 1 {
				bearDiv = true
			}

			if bullDiv && hBull {
				enter(types.Long)
				return
			}
			if bearDiv && hBear {
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
