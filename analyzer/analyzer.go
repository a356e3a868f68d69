// Package analyzer reduces a trade sequence produced by the engine into a
// single Analysis record: a compounding equity curve, peak-to-trough
// drawdown, and a battery of statistical aggregates including a Sharpe
// ratio reconstructed from per-trade rate-of-return samples.
package analyzer

import (
	"fmt"
	"math"
	"time"

	"github.com/evdnx/btsim/config"
	"github.com/evdnx/btsim/errs"
	"github.com/evdnx/btsim/logger"
	"github.com/evdnx/btsim/types"
)

// yearMS is the number of milliseconds in a 365-day year, used to annualize
// the Sharpe ratio.
const yearMS = float64(365 * 24 * 60 * 60 * 1000)

// Analyze reduces trades (assumed already ordered by exit time) into an
// Analysis, optionally reconstructing a Sharpe ratio from the rate-of-return
// samples each trade carries.
func Analyze(startingCapital float64, trades []types.Trade, opts config.AnalysisOptions) (types.Analysis, error) {
	if startingCapital <= 0 {
		return types.Analysis{}, fmt.Errorf("%w: starting_capital must be positive", errs.ErrInvalidInput)
	}
	if err := opts.Validate(); err != nil {
		return types.Analysis{}, fmt.Errorf("%w: %v", errs.ErrInvalidInput, err)
	}
	log := logger.OrNop(opts.Logger)

	a := types.Analysis{
		StartingCapital: startingCapital,
		FinalCapital:    startingCapital,
	}
	if len(trades) == 0 {
		log.Info("analysis_complete", logger.Int("total_trades", 0))
		return a, nil
	}

	workingCapital := startingCapital
	peakCapital := startingCapital
	maxDrawdown := 0.0
	maxDrawdownPct := 0.0

	var totalProfits, totalLosses float64
	var numWinning, numLosing int
	var maxRiskPct *float64

	var rMultiples []float64

	for _, t := range trades {
		workingCapital *= t.Growth
		a.TotalBarCount += t.HoldingPeriod

		workingDrawdown := 0.0
		if workingCapital < peakCapital {
			workingDrawdown = workingCapital - peakCapital
		} else {
			peakCapital = workingCapital
		}
		if workingDrawdown < maxDrawdown {
			maxDrawdown = workingDrawdown
		}
		ddPct := workingDrawdown / peakCapital * 100
		if ddPct < maxDrawdownPct {
			maxDrawdownPct = ddPct
		}

		if t.Profit > 0 {
			totalProfits += t.Profit
			numWinning++
		} else {
			totalLosses += t.Profit
			numLosing++
		}

		if t.RiskPct != nil {
			if maxRiskPct == nil || *t.RiskPct > *maxRiskPct {
				v := *t.RiskPct
				maxRiskPct = &v
			}
		}
		if t.RMultiple != nil {
			rMultiples = append(rMultiples, *t.RMultiple)
		}
	}

	a.TotalTrades = len(trades)
	a.FinalCapital = workingCapital
	a.Profit = workingCapital - startingCapital
	a.ProfitPct = a.Profit / startingCapital * 100
	a.Growth = workingCapital / startingCapital
	a.MaxDrawdown = maxDrawdown
	a.MaxDrawdownPct = maxDrawdownPct
	a.MaxRiskPct = maxRiskPct
	a.NumWinning = numWinning
	a.NumLosing = numLosing
	a.ProportionWinning = float64(numWinning) / float64(a.TotalTrades)
	a.ProportionLosing = float64(numLosing) / float64(a.TotalTrades)

	if numWinning > 0 {
		a.AvgWinningTrade = totalProfits / float64(numWinning)
	}
	if numLosing > 0 {
		a.AvgLosingTrade = totalLosses / float64(numLosing)
	}
	if totalLosses != 0 {
		pf := totalProfits / math.Abs(totalLosses)
		a.ProfitFactor = &pf
	}
	if maxDrawdownPct != 0 {
		roa := a.ProfitPct / math.Abs(maxDrawdownPct)
		a.ReturnOnAccount = &roa
	}
	a.AvgProfitPerTrade = a.Profit / float64(a.TotalTrades)
	a.ExpectedValue = a.ProportionWinning*a.AvgWinningTrade + a.ProportionLosing*a.AvgLosingTrade

	if len(rMultiples) > 0 {
		mean := meanOf(rMultiples)
		a.Expectancy = &mean
		sd := popStdDev(rMultiples, mean)
		a.RMultipleStdDev = &sd
		if sd != 0 {
			sq := mean / sd
			a.SystemQuality = &sq
		}
	}

	a.Sharpe = sharpe(trades, opts)

	if opts.Recorder != nil {
		opts.Recorder.SetAnalysis(a.FinalCapital, a.MaxDrawdownPct, a.Sharpe)
	}
	log.Info("analysis_complete",
		logger.Int("total_trades", a.TotalTrades),
		logger.Float64("final_capital", a.FinalCapital),
		logger.Float64("sharpe", a.Sharpe))

	return a, nil
}

func meanOf(xs []float64) float64 {
	sum := 0.0
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

func popStdDev(xs []float64, mean float64) float64 {
	sum := 0.0
	for _, x := range xs {
		d := x - mean
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(xs)))
}

// sharpe reconstructs a uniformly-sampled rate-of-return vector from the
// per-trade samples and computes the annualized Sharpe ratio. It returns 0
// when there isn't enough information (no starting date, no timeframe, no
// samples) to do so — never NaN.
func sharpe(trades []types.Trade, opts config.AnalysisOptions) float64 {
	if opts.StartingDate == nil || len(trades) == 0 {
		return 0
	}
	start := *opts.StartingDate

	var end time.Time
	if opts.EndingDate != nil {
		end = *opts.EndingDate
	} else {
		end = trades[len(trades)-1].ExitTime
	}

	var timeframe time.Duration
	if opts.Timeframe != nil {
		timeframe = *opts.Timeframe
	} else {
		inferred, ok := inferTimeframeFromFirstTrade(trades)
		if !ok {
			return 0
		}
		timeframe = inferred
	}
	if timeframe <= 0 {
		return 0
	}

	n := int(math.Floor(float64(end.Sub(start)) / float64(timeframe)))
	if n <= 0 {
		return 0
	}

	vec := make([]float64, n)
	for _, t := range trades {
		for _, sample := range t.RateOfReturnSeries {
			idx := int(math.Round(float64(sample.Time.Sub(start)) / float64(timeframe)))
			if idx < 0 || idx >= n {
				continue
			}
			vec[idx] = sample.Value // last writer wins on bucket collision
		}
	}

	mean := meanOf(vec)
	sd := popStdDev(vec, mean)
	if sd == 0 {
		return 0
	}
	return mean / sd * math.Sqrt(yearMS/float64(timeframe.Milliseconds()))
}

// inferTimeframeFromFirstTrade derives a sampling interval from the first
// trade that recorded a rate-of-return series, per spec.md §4.2.
func inferTimeframeFromFirstTrade(trades []types.Trade) (time.Duration, bool) {
	for _, t := range trades {
		if len(t.RateOfReturnSeries) == 0 {
			continue
		}
		span := t.ExitTime.Sub(t.EntryTime)
		return time.Duration(float64(span) / float64(len(t.RateOfReturnSeries))), true
	}
	return 0, false
}
