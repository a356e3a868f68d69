package engine

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/evdnx/btsim/config"
	"github.com/evdnx/btsim/errs"
	"github.com/evdnx/btsim/types"
)

func bar(t time.Time, o, h, l, c float64) types.Bar {
	return types.Bar{Time: t, Open: o, High: h, Low: l, Close: c}
}

func minutes(bars ...types.Bar) []types.Bar { return bars }

func baseTime() time.Time {
	return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
}

// alwaysLongOnFirstBar enters long on the very first bar seen and never
// exits on its own, relying on finalize-at-end-of-series.
func alwaysLongOnFirstBar() Strategy {
	entered := false
	return Strategy{
		LookbackPeriod: 1,
		EntryRule: func(enter EnterHandle, ctx EntryContext) {
			if entered {
				return
			}
			entered = true
			enter(types.Long)
		},
	}
}

func TestBacktestAlwaysInLongNoStopsFinalizesAtEndOfSeries(t *testing.T) {
	tbase := baseTime()
	bars := minutes(
		bar(tbase, 100, 101, 99, 100),
		bar(tbase.Add(time.Minute), 100, 102, 99, 101),
		bar(tbase.Add(2*time.Minute), 101, 103, 100, 102),
	)

	trades, err := Backtest(alwaysLongOnFirstBar(), bars, config.SimOptions{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(trades) != 1 {
		t.Fatalf("expected exactly 1 trade, got %d", len(trades))
	}
	tr := trades[0]
	if tr.ExitReason != types.ExitFinalize {
		t.Fatalf("expected finalize exit reason, got %s", tr.ExitReason)
	}
	if !tr.ExitTime.After(tr.EntryTime) {
		t.Fatalf("exit_time must be after entry_time")
	}
	if tr.HoldingPeriod < 1 {
		t.Fatalf("holding_period must be >= 1, got %d", tr.HoldingPeriod)
	}
	// entry fills at bar[1].Open (signal on bar 0, fill on bar 1).
	if tr.EntryPrice != 100 {
		t.Fatalf("expected entry price 100, got %v", tr.EntryPrice)
	}
}

func TestBacktestStopOutOnGapDown(t *testing.T) {
	tbase := baseTime()
	entryBarOpen := 100.0
	stopDistance := 2.0

	strategy := Strategy{
		LookbackPeriod: 1,
		EntryRule: func(enter EnterHandle, ctx EntryContext) {
			if ctx.Bar.At().Equal(tbase) {
				enter(types.Long)
			}
		},
		StopLoss: func(ctx RuleContext) float64 {
			return stopDistance
		},
	}

	bars := minutes(
		bar(tbase, 100, 101, 99, 100),
		bar(tbase.Add(time.Minute), entryBarOpen, 101, 99, 100),
		// gap down through the stop (98 = 100 - 2) on the next bar
		bar(tbase.Add(2*time.Minute), 95, 96, 90, 91),
		bar(tbase.Add(3*time.Minute), 91, 92, 90, 91),
	)

	trades, err := Backtest(strategy, bars, config.SimOptions{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(trades) != 1 {
		t.Fatalf("expected 1 trade, got %d", len(trades))
	}
	tr := trades[0]
	if tr.ExitReason != types.ExitStopLoss {
		t.Fatalf("expected stop-loss exit, got %s", tr.ExitReason)
	}
	// gapped-down open is worse than the stop, so fill is min(stop, open) = 95.
	if tr.ExitPrice != 95 {
		t.Fatalf("expected exit price 95 (gap fill), got %v", tr.ExitPrice)
	}
}

func TestBacktestProfitTargetHitIntrabar(t *testing.T) {
	tbase := baseTime()
	targetDistance := 5.0

	strategy := Strategy{
		LookbackPeriod: 1,
		EntryRule: func(enter EnterHandle, ctx EntryContext) {
			if ctx.Bar.At().Equal(tbase) {
				enter(types.Long)
			}
		},
		ProfitTarget: func(ctx RuleContext) float64 {
			return targetDistance
		},
	}

	bars := minutes(
		bar(tbase, 100, 101, 99, 100),
		bar(tbase.Add(time.Minute), 100, 101, 99, 100), // entry fills at open=100, target=105
		bar(tbase.Add(2*time.Minute), 101, 106, 100, 104),
		bar(tbase.Add(3*time.Minute), 104, 105, 103, 104),
	)

	trades, err := Backtest(strategy, bars, config.SimOptions{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(trades) != 1 {
		t.Fatalf("expected 1 trade, got %d", len(trades))
	}
	tr := trades[0]
	if tr.ExitReason != types.ExitProfitTarget {
		t.Fatalf("expected profit-target exit, got %s", tr.ExitReason)
	}
	if tr.ExitPrice != 105 {
		t.Fatalf("expected exit price 105, got %v", tr.ExitPrice)
	}
}

func TestBacktestTrailingStopRatchetsInFavorableDirectionOnly(t *testing.T) {
	tbase := baseTime()
	trailDistance := 3.0

	strategy := Strategy{
		LookbackPeriod: 1,
		EntryRule: func(enter EnterHandle, ctx EntryContext) {
			if ctx.Bar.At().Equal(tbase) {
				enter(types.Long)
			}
		},
		TrailingStopLoss: func(ctx RuleContext) float64 {
			return trailDistance
		},
	}

	bars := minutes(
		bar(tbase, 100, 101, 99, 100),
		bar(tbase.Add(time.Minute), 100, 101, 99, 100), // entry, close=100 -> trail=97
		bar(tbase.Add(2*time.Minute), 100, 110, 99, 110), // close=110 -> trail=107, ratchets up
		bar(tbase.Add(3*time.Minute), 108, 109, 105, 106), // low 105 breaches the 107 stop; fill at min(107, 108) = 107
	)

	trades, err := Backtest(strategy, bars, config.SimOptions{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(trades) != 1 {
		t.Fatalf("expected 1 trade, got %d", len(trades))
	}
	tr := trades[0]
	if tr.ExitReason != types.ExitStopLoss {
		t.Fatalf("expected stop-loss (trailing) exit, got %s", tr.ExitReason)
	}
	if tr.ExitPrice != 107 {
		t.Fatalf("expected trailing stop fill at 107, got %v", tr.ExitPrice)
	}
}

func TestBacktestNeverEntersYieldsEmptyTrades(t *testing.T) {
	tbase := baseTime()
	strategy := Strategy{
		LookbackPeriod: 1,
		EntryRule:      func(enter EnterHandle, ctx EntryContext) {},
	}
	bars := minutes(
		bar(tbase, 100, 101, 99, 100),
		bar(tbase.Add(time.Minute), 100, 101, 99, 100),
	)
	trades, err := Backtest(strategy, bars, config.SimOptions{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(trades) != 0 {
		t.Fatalf("expected no trades, got %d", len(trades))
	}
}

func TestBacktestRMultipleFloorOnStopLossExit(t *testing.T) {
	tbase := baseTime()
	stopDistance := 2.0
	strategy := Strategy{
		LookbackPeriod: 1,
		EntryRule: func(enter EnterHandle, ctx EntryContext) {
			if ctx.Bar.At().Equal(tbase) {
				enter(types.Long)
			}
		},
		StopLoss: func(ctx RuleContext) float64 { return stopDistance },
	}
	bars := minutes(
		bar(tbase, 100, 101, 99, 100),
		bar(tbase.Add(time.Minute), 100, 101, 99, 100),
		bar(tbase.Add(2*time.Minute), 100, 100, 98, 98), // low=98 touches stop exactly
	)
	trades, err := Backtest(strategy, bars, config.SimOptions{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(trades) != 1 {
		t.Fatalf("expected 1 trade, got %d", len(trades))
	}
	tr := trades[0]
	if tr.RMultiple == nil {
		t.Fatal("expected a non-nil R-multiple for a stop-defined trade")
	}
	if *tr.RMultiple > 0.01 || *tr.RMultiple < -1.01 {
		t.Fatalf("expected R-multiple near -1, got %v", *tr.RMultiple)
	}
}

func TestBacktestSampleVectorsOnlyRecordedWhenRequested(t *testing.T) {
	tbase := baseTime()
	strategy := Strategy{
		LookbackPeriod: 1,
		EntryRule: func(enter EnterHandle, ctx EntryContext) {
			if ctx.Bar.At().Equal(tbase) {
				enter(types.Long)
			}
		},
		StopLoss: func(ctx RuleContext) float64 { return 5 },
	}
	bars := minutes(
		bar(tbase, 100, 101, 99, 100),
		bar(tbase.Add(time.Minute), 100, 101, 99, 100),
		bar(tbase.Add(2*time.Minute), 101, 102, 100, 101),
	)

	trades, err := Backtest(strategy, bars, config.SimOptions{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(trades[0].RiskSeries) != 0 {
		t.Fatalf("expected no risk series without RecordRisk, got %d entries", len(trades[0].RiskSeries))
	}

	trades2, err := Backtest(strategy, bars, config.SimOptions{RecordRisk: true, RecordRateOfReturn: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(trades2[0].RiskSeries) == 0 {
		t.Fatalf("expected a risk series with RecordRisk set")
	}
	if len(trades2[0].RateOfReturnSeries) == 0 {
		t.Fatalf("expected a rate-of-return series with RecordRateOfReturn set")
	}
}

func TestBacktestFeesAppliedOnceAtClose(t *testing.T) {
	tbase := baseTime()
	strategy := Strategy{
		LookbackPeriod: 1,
		EntryRule: func(enter EnterHandle, ctx EntryContext) {
			if ctx.Bar.At().Equal(tbase) {
				enter(types.Long)
			}
		},
		Fees: func() float64 { return 0.01 },
	}
	bars := minutes(
		bar(tbase, 100, 101, 99, 100),
		bar(tbase.Add(time.Minute), 100, 101, 99, 100),
		bar(tbase.Add(2*time.Minute), 110, 111, 109, 110),
	)
	trades, err := Backtest(strategy, bars, config.SimOptions{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	tr := trades[0]
	rawGrowth := tr.ExitPrice / tr.EntryPrice
	wantGrowth := rawGrowth * 0.99
	if math.Abs(tr.Growth-wantGrowth) > 1e-9 {
		t.Fatalf("expected fee-adjusted growth %v, got %v", wantGrowth, tr.Growth)
	}
}

func TestBacktestRejectsEmptyBarSeries(t *testing.T) {
	strategy := Strategy{EntryRule: func(enter EnterHandle, ctx EntryContext) {}}
	_, err := Backtest(strategy, nil, config.SimOptions{})
	if !errors.Is(err, errs.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestBacktestRejectsMissingEntryRule(t *testing.T) {
	tbase := baseTime()
	bars := minutes(bar(tbase, 100, 101, 99, 100))
	_, err := Backtest(Strategy{}, bars, config.SimOptions{})
	if !errors.Is(err, errs.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestBacktestEnterHandleCalledTwiceIsInvariantViolation(t *testing.T) {
	tbase := baseTime()
	strategy := Strategy{
		LookbackPeriod: 1,
		EntryRule: func(enter EnterHandle, ctx EntryContext) {
			enter(types.Long)
			enter(types.Short)
		},
	}
	bars := minutes(
		bar(tbase, 100, 101, 99, 100),
		bar(tbase.Add(time.Minute), 100, 101, 99, 100),
	)
	_, err := Backtest(strategy, bars, config.SimOptions{})
	if !errors.Is(err, errs.ErrInvariantViolation) {
		t.Fatalf("expected ErrInvariantViolation, got %v", err)
	}
}
