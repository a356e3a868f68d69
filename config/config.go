// Package config holds the option structs the engine and analyzer accept,
// plus their Validate methods. Validation follows the source codebase's
// style of one method enumerating every bound check, but collects every
// violation via go.uber.org/multierr instead of returning on the first.
package config

import (
	"fmt"
	"time"

	"github.com/evdnx/btsim/errs"
	"github.com/evdnx/btsim/logger"
	"github.com/evdnx/btsim/metrics"
	"go.uber.org/multierr"
)

// SimOptions gates the per-bar sample vectors the engine records on a
// Position, and carries the optional observability side-channel.
type SimOptions struct {
	RecordStopPrice    bool
	RecordRisk         bool
	RecordRateOfReturn bool

	Logger   logger.Logger
	Recorder *metrics.Recorder
}

// Validate is permissive by design: every field is a plain boolean or an
// optional pointer, so there is nothing to bound-check today. The method
// exists so SimOptions follows the same contract as AnalysisOptions and so a
// future option with real constraints has somewhere to add them.
func (o SimOptions) Validate() error {
	return nil
}

// AnalysisOptions carries the date range and timeframe used to reconstruct
// the Sharpe-ratio sample vector, plus the observability side-channel.
type AnalysisOptions struct {
	StartingDate *time.Time
	EndingDate   *time.Time
	Timeframe    *time.Duration

	Logger   logger.Logger
	Recorder *metrics.Recorder
}

// Validate collects every violation instead of stopping at the first, using
// multierr.Append so callers can report the full set of problems at once.
func (o AnalysisOptions) Validate() error {
	var combined error
	if o.StartingDate != nil && o.EndingDate != nil && !o.StartingDate.Before(*o.EndingDate) {
		combined = multierr.Append(combined, fmt.Errorf("%w: starting_date must be before ending_date", errs.ErrInvalidInput))
	}
	if o.Timeframe != nil && *o.Timeframe <= 0 {
		combined = multierr.Append(combined, fmt.Errorf("%w: timeframe must be positive", errs.ErrInvalidInput))
	}
	return combined
}
