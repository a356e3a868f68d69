// Package indicators adapts github.com/evdnx/goti's IndicatorSuite to the
// engine's bar model, producing the named float64 columns the example
// strategies in the strategies package read out of an engine.IndicatorBar.
package indicators

import (
	"math"

	"github.com/evdnx/goti"

	"github.com/evdnx/btsim/engine"
	"github.com/evdnx/btsim/types"
)

// Suite wraps a goti.IndicatorSuite, feeding it a synthetic volume proxy
// derived from each bar's own range since the engine's Bar carries no
// volume field.
type Suite struct {
	inner *goti.IndicatorSuite
}

// NewSuite builds a Suite from a factory, mirroring how the source's
// BaseStrategy takes a suiteFactory rather than a concrete config type —
// each strategy tunes goti.DefaultConfig() to its own thresholds.
func NewSuite(factory func() (*goti.IndicatorSuite, error)) (*Suite, error) {
	inner, err := factory()
	if err != nil {
		return nil, err
	}
	return &Suite{inner: inner}, nil
}

// syntheticVolume stands in for real trade volume, which the bar-driven
// engine never carries: the bar's own range is the only proxy available.
func syntheticVolume(b types.Bar) float64 {
	return math.Abs(b.High-b.Low) + 1
}

// Add feeds one bar into every indicator in the suite.
func (s *Suite) Add(b types.Bar) error {
	return s.inner.Add(b.High, b.Low, b.Close, syntheticVolume(b))
}

// WarmedUp reports whether the RSI indicator (the suite's shortest window)
// has seen at least minBars closes yet.
func (s *Suite) WarmedUp(minBars int) bool {
	return len(s.inner.GetRSI().GetCloses()) >= minBars
}

// Snapshot reads every crossover/divergence/raw-value signal the example
// strategies consume, as a flat map of named float64 columns (1 for true, 0
// for false on boolean signals). Errors from goti accessors (typically
// "not enough history yet") are treated as a false/zero reading rather than
// propagated, matching the source strategies' own err == nil gating.
func (s *Suite) Snapshot() map[string]float64 {
	cols := map[string]float64{}

	rsiBull, _ := s.inner.GetRSI().IsBullishCrossover()
	rsiBear, _ := s.inner.GetRSI().IsBearishCrossover()
	cols["rsi_bull"] = boolCol(rsiBull)
	cols["rsi_bear"] = boolCol(rsiBear)
	if ok, typ, err := s.inner.GetRSI().IsDivergence(); err == nil && ok {
		cols["rsi_div_bull"] = boolCol(typ == "Bullish")
		cols["rsi_div_bear"] = boolCol(typ == "Bearish")
	}

	mfiBull, _ := s.inner.GetMFI().IsBullishCrossover()
	mfiBear, _ := s.inner.GetMFI().IsBearishCrossover()
	cols["mfi_bull"] = boolCol(mfiBull)
	cols["mfi_bear"] = boolCol(mfiBear)
	if dir, err := s.inner.GetMFI().IsDivergence(); err == nil {
		cols["mfi_div_bull"] = boolCol(dir == "Bullish")
		cols["mfi_div_bear"] = boolCol(dir == "Bearish")
	}

	vwaoBull, _ := s.inner.GetVWAO().IsBullishCrossover()
	vwaoBear, _ := s.inner.GetVWAO().IsBearishCrossover()
	cols["vwao_bull"] = boolCol(vwaoBull)
	cols["vwao_bear"] = boolCol(vwaoBear)

	hmaBull, _ := s.inner.GetHMA().IsBullishCrossover()
	hmaBear, _ := s.inner.GetHMA().IsBearishCrossover()
	cols["hma_bull"] = boolCol(hmaBull)
	cols["hma_bear"] = boolCol(hmaBear)

	cols["atso_bull"] = boolCol(s.inner.GetATSO().IsBullishCrossover())
	cols["atso_bear"] = boolCol(s.inner.GetATSO().IsBearishCrossover())
	atsoVal, _ := s.inner.GetATSO().Calculate()
	cols["atso_val"] = atsoVal
	if vals := s.inner.GetATSO().GetATSOValues(); len(vals) > 0 {
		cols["atso_last"] = vals[len(vals)-1]
	}

	amdoBull, _ := s.inner.GetAMDO().IsBullishCrossover()
	amdoBear, _ := s.inner.GetAMDO().IsBearishCrossover()
	cols["amdo_bull"] = boolCol(amdoBull)
	cols["amdo_bear"] = boolCol(amdoBear)
	amdoVal, _ := s.inner.GetAMDO().Calculate()
	cols["amdo_val"] = amdoVal
	if ok, typ := s.inner.GetAMDO().IsDivergence(); ok {
		cols["amdo_div_bull"] = boolCol(typ == "Bullish")
		cols["amdo_div_bear"] = boolCol(typ == "Bearish")
	}

	return cols
}

func boolCol(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// PrepIndicators builds an engine.Strategy's PrepIndicators hook: it walks
// bars in order, feeding each into a freshly built Suite and attaching the
// suite's Snapshot to the corresponding IndicatorBar once warmed up.
func PrepIndicators(factory func() (*goti.IndicatorSuite, error), minWarmup int) func(parameters any, bars []types.Bar) []engine.IndicatorBar {
	return func(_ any, bars []types.Bar) []engine.IndicatorBar {
		suite, err := NewSuite(factory)
		out := make([]engine.IndicatorBar, len(bars))
		if err != nil {
			for i, b := range bars {
				out[i] = engine.IndicatorBar{Bar: b}
			}
			return out
		}
		for i, b := range bars {
			_ = suite.Add(b)
			var cols map[string]float64
			if suite.WarmedUp(minWarmup) {
				cols = suite.Snapshot()
			}
			out[i] = engine.IndicatorBar{Bar: b, Indicators: cols}
		}
		return out
	}
}
