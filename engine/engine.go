// Package engine implements the bar-driven backtest simulator: a four-state
// machine advanced one bar at a time, tracking at most one open Position and
// emitting an immutable Trade each time that position closes.
package engine

import (
	"fmt"
	"math"
	"time"

	"github.com/evdnx/btsim/config"
	"github.com/evdnx/btsim/errs"
	"github.com/evdnx/btsim/logger"
	"github.com/evdnx/btsim/risk"
	"github.com/evdnx/btsim/types"
)

// BarLike is the minimal contract the engine needs from a bar: a timestamp
// and the four OHLC prices. types.Bar and IndicatorBar both satisfy it.
type BarLike interface {
	At() time.Time
	OHLC() (open, high, low, close float64)
}

// IndicatorBar is what every strategy callback sees: the raw bar plus
// whatever a PrepIndicators pass chose to attach. The engine treats
// Indicators as an opaque bag — it never reads from it itself.
type IndicatorBar struct {
	types.Bar
	Indicators map[string]float64
}

// Value looks up a named indicator column, returning false if absent.
func (b IndicatorBar) Value(name string) (float64, bool) {
	v, ok := b.Indicators[name]
	return v, ok
}

// RuleContext is passed to StopLoss, TrailingStopLoss, and ProfitTarget.
type RuleContext struct {
	EntryPrice float64
	Bar        IndicatorBar
	Lookback   []IndicatorBar
	Parameters any
}

// EntryContext is passed to EntryRule.
type EntryContext struct {
	Bar        IndicatorBar
	Lookback   []IndicatorBar
	Parameters any
}

// ExitContext is passed to ExitRule.
type ExitContext struct {
	EntryPrice float64
	Position   types.Position
	Bar        IndicatorBar
	Lookback   []IndicatorBar
	Parameters any
}

// EnterHandle lets EntryRule signal that a position should be opened, on the
// following bar, in the given direction.
type EnterHandle func(dir types.Direction)

// ExitHandle lets ExitRule signal that the open position should be closed.
// price is optional (nil means "fill at the closing bar's open"); reason is
// optional (empty means the generic "exit-rule" reason).
type ExitHandle func(price *float64, reason string)

// Strategy is the callback contract a backtest runs against. EntryRule is
// the only required field.
type Strategy struct {
	LookbackPeriod int
	Parameters     any

	PrepIndicators func(parameters any, bars []types.Bar) []IndicatorBar

	EntryRule func(enter EnterHandle, ctx EntryContext)
	ExitRule  func(exit ExitHandle, ctx ExitContext)

	StopLoss         func(ctx RuleContext) float64
	TrailingStopLoss func(ctx RuleContext) float64
	ProfitTarget     func(ctx RuleContext) float64

	Fees func() float64
}

type positionStatus int

const (
	statusNone positionStatus = iota
	statusEnter
	statusPosition
	statusExit
)

// ring is a fixed-capacity, push-overwrite lookback buffer, exposed to
// strategy callbacks as an ordered, oldest-first, read-only view.
type ring struct {
	cap int
	buf []IndicatorBar
}

func (r *ring) push(b IndicatorBar) {
	r.buf = append(r.buf, b)
	if len(r.buf) > r.cap {
		r.buf = r.buf[len(r.buf)-r.cap:]
	}
}

func (r *ring) full() bool { return len(r.buf) >= r.cap }

func (r *ring) view() []IndicatorBar {
	out := make([]IndicatorBar, len(r.buf))
	copy(out, r.buf)
	return out
}

// simulator holds all mutable state for a single Backtest call.
type simulator struct {
	strategy Strategy
	opts     config.SimOptions
	log      logger.Logger

	ring   *ring
	status positionStatus

	pendingDir types.Direction
	position   *types.Position

	exitPrice  *float64
	exitReason types.ExitReason

	violation error

	trades []types.Trade
}

// Backtest runs strategy over bars and returns the trades it produced, in
// the order their exits occurred.
func Backtest(strategy Strategy, bars []types.Bar, opts config.SimOptions) ([]types.Trade, error) {
	if strategy.EntryRule == nil {
		return nil, fmt.Errorf("%w: strategy.EntryRule is required", errs.ErrInvalidInput)
	}
	if len(bars) == 0 {
		return nil, fmt.Errorf("%w: bar series must not be empty", errs.ErrInvalidInput)
	}
	if err := opts.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrInvalidInput, err)
	}

	lookback := strategy.LookbackPeriod
	if lookback <= 0 {
		lookback = 1
	}
	if len(bars) < lookback {
		return nil, fmt.Errorf("%w: need at least %d bars for lookback, got %d", errs.ErrInvalidInput, lookback, len(bars))
	}

	ibars := prepIndicators(strategy, bars)

	sim := &simulator{
		strategy: strategy,
		opts:     opts,
		log:      logger.OrNop(opts.Logger),
		ring:     &ring{cap: lookback},
		status:   statusNone,
	}

	for _, bar := range ibars {
		sim.ring.push(bar)
		if !sim.ring.full() {
			continue
		}
		if err := sim.dispatch(bar); err != nil {
			sim.log.Error("backtest_aborted", logger.String("error", err.Error()))
			return nil, err
		}
	}

	if err := sim.closeOutAtEndOfSeries(ibars); err != nil {
		sim.log.Error("backtest_aborted", logger.String("error", err.Error()))
		return nil, err
	}

	return sim.trades, nil
}

func prepIndicators(strategy Strategy, bars []types.Bar) []IndicatorBar {
	if strategy.PrepIndicators != nil {
		return strategy.PrepIndicators(strategy.Parameters, bars)
	}
	out := make([]IndicatorBar, len(bars))
	for i, b := range bars {
		out[i] = IndicatorBar{Bar: b}
	}
	return out
}

func (s *simulator) closeOutAtEndOfSeries(ibars []IndicatorBar) error {
	if s.position == nil {
		return nil
	}
	last := ibars[len(ibars)-1]
	switch s.status {
	case statusExit:
		price := lastOpen(last)
		if s.exitPrice != nil {
			price = *s.exitPrice
		}
		s.finalize(price, last.At(), s.exitReason)
	case statusPosition:
		first := ibars[0]
		timeframe := inferTimeframe(first.At(), last.At(), len(ibars))
		_, _, _, closePrice := last.OHLC()
		s.finalize(closePrice, last.At().Add(timeframe), types.ExitFinalize)
	}
	return s.violation
}

func lastOpen(bar IndicatorBar) float64 {
	o, _, _, _ := bar.OHLC()
	return o
}

func inferTimeframe(first, last time.Time, barCount int) time.Duration {
	if barCount <= 1 {
		return 0
	}
	total := last.Sub(first)
	return time.Duration(math.Round(float64(total) / float64(barCount)))
}

func (s *simulator) dispatch(bar IndicatorBar) error {
	s.violation = nil
	switch s.status {
	case statusNone:
		s.onNone(bar)
	case statusEnter:
		s.onEnter(bar)
	case statusPosition:
		s.onPosition(bar)
	case statusExit:
		if err := s.onExit(bar); err != nil {
			return err
		}
	}
	return s.violation
}

func (s *simulator) onNone(bar IndicatorBar) {
	var (
		called bool
		dir    types.Direction
	)
	enter := EnterHandle(func(d types.Direction) {
		if called {
			s.violation = fmt.Errorf("%w: enter handle invoked more than once in a single EntryRule call", errs.ErrInvariantViolation)
			return
		}
		called = true
		dir = d
	})
	ctx := EntryContext{Bar: bar, Lookback: s.ring.view(), Parameters: s.strategy.Parameters}
	s.strategy.EntryRule(enter, ctx)
	if s.violation != nil || !called {
		return
	}
	s.pendingDir = dir
	s.status = statusEnter
}

func (s *simulator) onEnter(bar IndicatorBar) {
	o, _, _, c := bar.OHLC()
	pos := types.NewPosition(s.pendingDir, bar.At(), o)

	if s.strategy.StopLoss != nil {
		dist := s.strategy.StopLoss(s.ruleCtx(bar, pos))
		stop := o - dist
		if pos.Direction == types.Short {
			stop = o + dist
		}
		pos.InitialStopPrice = ptr(stop)
		pos.CurStopPrice = ptr(stop)

		ur := risk.UnitRisk(pos.Direction, o, stop)
		pos.InitialUnitRisk = ptr(ur)
		pct := risk.RiskPct(ur, o)
		pos.InitialRiskPct = ptr(pct)
		pos.CurRiskPct = ptr(pct)
		pos.CurRMultiple = ptr(0.0)
	}

	if s.opts.RecordRisk {
		v := 0.0
		if pos.CurRiskPct != nil {
			v = *pos.CurRiskPct
		}
		pos.RiskSeries = append(pos.RiskSeries, types.Sample{Time: bar.At(), Value: v})
	}
	if s.opts.RecordRateOfReturn {
		pos.RateOfReturnSeries = []types.Sample{}
	}

	if s.strategy.ProfitTarget != nil {
		dist := s.strategy.ProfitTarget(s.ruleCtx(bar, pos))
		target := o + dist
		if pos.Direction == types.Short {
			target = o - dist
		}
		pos.ProfitTarget = ptr(target)
	}

	s.position = pos
	s.status = statusPosition
	s.log.Info("position_entered",
		logger.String("direction", pos.Direction.String()),
		logger.Float64("entry_price", pos.EntryPrice))
	if s.opts.Recorder != nil {
		s.opts.Recorder.TradeOpened(pos.Direction.String())
	}

	// Immediate intrabar check: a gap on the entry bar itself can stop the
	// position out (or hit target) before any further bar is seen.
	if price, reason, triggered := s.checkIntrabarExit(bar); triggered {
		s.exitPrice = ptr(price)
		s.exitReason = reason
		s.status = statusExit
	}
	if s.violation != nil {
		return
	}

	if s.strategy.TrailingStopLoss != nil {
		dist := s.strategy.TrailingStopLoss(s.ruleCtx(bar, pos))
		trailing := c - dist
		if pos.Direction == types.Short {
			trailing = c + dist
		}
		cur := trailing
		if pos.CurStopPrice != nil {
			cur = tighten(pos.Direction, *pos.CurStopPrice, trailing)
		}
		pos.CurStopPrice = ptr(cur)
		if s.opts.RecordStopPrice {
			pos.StopPriceSeries = append(pos.StopPriceSeries, types.Sample{Time: bar.At(), Value: cur})
		}
	}

	updateRunup(pos, bar)
}

func (s *simulator) onPosition(bar IndicatorBar) {
	pos := s.position
	o, _, _, c := bar.OHLC()
	lastGrowth := pos.Growth

	pos.Profit = profitFor(pos.Direction, pos.EntryPrice, o)
	pos.ProfitPct = pos.Profit / pos.EntryPrice * 100
	pos.Growth = growthFor(pos.Direction, pos.EntryPrice, o)

	if pos.CurStopPrice != nil {
		ur := risk.UnitRisk(pos.Direction, o, *pos.CurStopPrice)
		pct := risk.RiskPct(ur, o)
		pos.CurRiskPct = ptr(pct)
		if ur != 0 {
			pos.CurRMultiple = ptr(pos.Profit / ur)
		}
	}

	pos.HoldingPeriod++
	pos.CurRateOfReturn = pos.Growth/lastGrowth - 1

	if s.opts.RecordRisk && pos.CurRiskPct != nil {
		pos.RiskSeries = append(pos.RiskSeries, types.Sample{Time: bar.At(), Value: *pos.CurRiskPct})
	}
	if s.opts.RecordRateOfReturn && pos.RateOfReturnSeries != nil {
		pos.RateOfReturnSeries = append(pos.RateOfReturnSeries, types.Sample{Time: bar.At(), Value: pos.CurRateOfReturn})
	}

	if price, reason, triggered := s.checkIntrabarExit(bar); triggered {
		s.exitPrice = ptr(price)
		s.exitReason = reason
		s.status = statusExit
	}
	if s.violation != nil {
		return
	}

	if s.strategy.TrailingStopLoss != nil {
		dist := s.strategy.TrailingStopLoss(s.ruleCtx(bar, pos))
		newTrailing := c - dist
		if pos.Direction == types.Short {
			newTrailing = c + dist
		}
		cur := newTrailing
		if pos.CurStopPrice != nil {
			cur = tighten(pos.Direction, *pos.CurStopPrice, newTrailing)
		}
		pos.CurStopPrice = ptr(cur)
		if s.opts.RecordStopPrice {
			pos.StopPriceSeries = append(pos.StopPriceSeries, types.Sample{Time: bar.At(), Value: cur})
		}
	}

	updateRunup(pos, bar)
}

func (s *simulator) onExit(bar IndicatorBar) error {
	if s.position == nil {
		return fmt.Errorf("%w: exit dispatched with no open position", errs.ErrInvariantViolation)
	}
	price := lastOpen(bar)
	if s.exitPrice != nil {
		price = *s.exitPrice
	}
	s.finalize(price, bar.At(), s.exitReason)
	return s.violation
}

// checkIntrabarExit implements the first-match-wins ordering: stop-loss,
// then profit target, then the strategy's own ExitRule.
func (s *simulator) checkIntrabarExit(bar IndicatorBar) (float64, types.ExitReason, bool) {
	pos := s.position
	o, h, l, _ := bar.OHLC()

	if pos.CurStopPrice != nil {
		stop := *pos.CurStopPrice
		if pos.Direction == types.Long && l <= stop {
			return math.Min(stop, o), types.ExitStopLoss, true
		}
		if pos.Direction == types.Short && h >= stop {
			return math.Max(stop, o), types.ExitStopLoss, true
		}
	}

	if pos.ProfitTarget != nil {
		target := *pos.ProfitTarget
		if pos.Direction == types.Long && h >= target {
			return target, types.ExitProfitTarget, true
		}
		if pos.Direction == types.Short && l <= target {
			return target, types.ExitProfitTarget, true
		}
	}

	if s.strategy.ExitRule != nil {
		var (
			called bool
			price  *float64
			reason string
		)
		handle := ExitHandle(func(p *float64, r string) {
			if called {
				s.violation = fmt.Errorf("%w: exit handle invoked more than once in a single ExitRule call", errs.ErrInvariantViolation)
				return
			}
			called = true
			price = p
			reason = r
		})
		ctx := ExitContext{
			EntryPrice: pos.EntryPrice,
			Position:   *pos,
			Bar:        bar,
			Lookback:   s.ring.view(),
			Parameters: s.strategy.Parameters,
		}
		s.strategy.ExitRule(handle, ctx)
		if s.violation != nil {
			return 0, "", false
		}
		if called {
			exitPrice := o
			if price != nil {
				exitPrice = *price
			}
			r := types.ExitRule
			if reason != "" {
				r = types.ExitReason(reason)
			}
			return exitPrice, r, true
		}
	}

	return 0, "", false
}

func (s *simulator) finalize(exitPrice float64, exitTime time.Time, reason types.ExitReason) {
	pos := s.position

	pos.Profit = profitFor(pos.Direction, pos.EntryPrice, exitPrice)
	pos.ProfitPct = pos.Profit / pos.EntryPrice * 100

	var rmultiple *float64
	if pos.InitialUnitRisk != nil {
		rmultiple = risk.RMultiple(pos.Profit, *pos.InitialUnitRisk)
	}

	rawGrowth := growthFor(pos.Direction, pos.EntryPrice, exitPrice)
	fees := 0.0
	if s.strategy.Fees != nil {
		fees = s.strategy.Fees()
	}
	lastGrowth := pos.Growth
	finalGrowth := rawGrowth * (1 - fees)
	pos.Growth = finalGrowth
	pos.HoldingPeriod++
	pos.CurRateOfReturn = finalGrowth/lastGrowth - 1

	if s.opts.RecordRateOfReturn && pos.RateOfReturnSeries != nil {
		pos.RateOfReturnSeries = append(pos.RateOfReturnSeries, types.Sample{Time: exitTime, Value: pos.CurRateOfReturn})
	}

	trade := types.Trade{
		Direction:          pos.Direction,
		EntryTime:          pos.EntryTime,
		EntryPrice:         pos.EntryPrice,
		ExitTime:           exitTime,
		ExitPrice:          exitPrice,
		Profit:             pos.Profit,
		ProfitPct:          pos.ProfitPct,
		Growth:             finalGrowth,
		HoldingPeriod:      pos.HoldingPeriod,
		ExitReason:         reason,
		RiskPct:            pos.CurRiskPct,
		RMultiple:          rmultiple,
		StopPrice:          pos.CurStopPrice,
		ProfitTarget:       pos.ProfitTarget,
		Runup:              pos.Runup,
		RiskSeries:         pos.RiskSeries,
		StopPriceSeries:    pos.StopPriceSeries,
		RateOfReturnSeries: pos.RateOfReturnSeries,
	}
	s.trades = append(s.trades, trade)

	s.log.Info("position_closed",
		logger.String("exit_reason", string(reason)),
		logger.Float64("profit_pct", pos.ProfitPct),
		logger.Int("holding_period", pos.HoldingPeriod))
	if s.opts.Recorder != nil {
		s.opts.Recorder.TradeClosed(pos.Direction.String(), string(reason))
	}

	s.position = nil
	s.status = statusNone
	s.exitPrice = nil
	s.exitReason = ""
}

func (s *simulator) ruleCtx(bar IndicatorBar, pos *types.Position) RuleContext {
	return RuleContext{
		EntryPrice: pos.EntryPrice,
		Bar:        bar,
		Lookback:   s.ring.view(),
		Parameters: s.strategy.Parameters,
	}
}

func updateRunup(pos *types.Position, bar IndicatorBar) {
	_, h, l, _ := bar.OHLC()
	if pos.Direction == types.Long {
		if v := h - pos.EntryPrice; v > pos.Runup {
			pos.Runup = v
		}
		return
	}
	if v := pos.EntryPrice - l; v > pos.Runup {
		pos.Runup = v
	}
}

func profitFor(dir types.Direction, entry, price float64) float64 {
	if dir == types.Short {
		return entry - price
	}
	return price - entry
}

func growthFor(dir types.Direction, entry, price float64) float64 {
	if dir == types.Short {
		return (2*entry - price) / entry
	}
	return price / entry
}

func tighten(dir types.Direction, a, b float64) float64 {
	if dir == types.Short {
		return math.Min(a, b)
	}
	return math.Max(a, b)
}

func ptr(v float64) *float64 { return &v }
