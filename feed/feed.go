// Package feed provides an in-memory, mutex-protected bar series: a small
// accumulator strategies and demos can push OHLC bars into incrementally
// before handing the accumulated slice to engine.Backtest.
package feed

import (
	"fmt"
	"sync"
	"time"

	"github.com/evdnx/btsim/errs"
	"github.com/evdnx/btsim/types"
)

// Series accumulates bars in arrival order under a mutex, enforcing that
// timestamps never go backwards and that each bar's own OHLC prices are
// internally consistent.
type Series struct {
	mu   sync.RWMutex
	bars []types.Bar
}

// NewSeries returns an empty Series.
func NewSeries() *Series {
	return &Series{}
}

// Append validates and appends a single bar. It rejects a bar whose time is
// not strictly after the last appended bar's time, and a bar whose High/Low
// don't bound Open/Close.
func (s *Series) Append(b types.Bar) error {
	if b.High < b.Low {
		return fmt.Errorf("%w: bar high (%v) below low (%v)", errs.ErrInvalidInput, b.High, b.Low)
	}
	if b.Open < b.Low || b.Open > b.High {
		return fmt.Errorf("%w: bar open (%v) outside [low, high]", errs.ErrInvalidInput, b.Open)
	}
	if b.Close < b.Low || b.Close > b.High {
		return fmt.Errorf("%w: bar close (%v) outside [low, high]", errs.ErrInvalidInput, b.Close)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if n := len(s.bars); n > 0 && !b.Time.After(s.bars[n-1].Time) {
		return fmt.Errorf("%w: bar time %s does not advance past %s", errs.ErrInvalidInput, b.Time, s.bars[n-1].Time)
	}
	s.bars = append(s.bars, b)
	return nil
}

// Bars returns a defensive copy of every bar appended so far, oldest first.
func (s *Series) Bars() []types.Bar {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]types.Bar, len(s.bars))
	copy(out, s.bars)
	return out
}

// Len reports how many bars have been appended.
func (s *Series) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.bars)
}

// Last returns the most recently appended bar and true, or a zero Bar and
// false when the series is empty.
func (s *Series) Last() (types.Bar, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.bars) == 0 {
		return types.Bar{}, false
	}
	return s.bars[len(s.bars)-1], true
}

// Walk is a deterministic synthetic bar generator for tests and demos: it
// produces n bars spaced step apart starting at start, with Close following
// a simple additive random walk driven by deltas, wrapping around deltas if
// there are fewer deltas than bars. High/Low extend the bar's Open/Close
// range by 10% of that range on each side so every bar is internally
// consistent.
func Walk(start time.Time, step time.Duration, startPrice float64, deltas []float64, n int) []types.Bar {
	if len(deltas) == 0 {
		deltas = []float64{0}
	}
	bars := make([]types.Bar, n)
	price := startPrice
	t := start
	for i := 0; i < n; i++ {
		open := price
		price += deltas[i%len(deltas)]
		close := price
		high := open
		if close > high {
			high = close
		}
		low := open
		if close < low {
			low = close
		}
		spread := (high - low) * 0.1
		bars[i] = types.Bar{
			Time:  t,
			Open:  open,
			High:  high + spread,
			Low:   low - spread,
			Close: close,
		}
		t = t.Add(step)
	}
	return bars
}
