package indicators

import (
	"testing"
	"time"

	"github.com/evdnx/goti"

	"github.com/evdnx/btsim/types"
)

func defaultFactory() (*goti.IndicatorSuite, error) {
	return goti.NewIndicatorSuiteWithConfig(goti.DefaultConfig())
}

func TestSuiteWarmedUpAfterEnoughBars(t *testing.T) {
	suite, err := NewSuite(defaultFactory)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if suite.WarmedUp(14) {
		t.Fatal("expected suite to not be warmed up before any bars")
	}

	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	price := 100.0
	for i := 0; i < 20; i++ {
		b := types.Bar{Time: t0.Add(time.Duration(i) * time.Minute), Open: price, High: price + 1, Low: price - 1, Close: price + 0.5}
		if err := suite.Add(b); err != nil {
			t.Fatalf("unexpected add error: %v", err)
		}
		price += 0.5
	}
	if !suite.WarmedUp(14) {
		t.Fatal("expected suite to be warmed up after 20 bars")
	}
	snap := suite.Snapshot()
	if _, ok := snap["rsi_bull"]; !ok {
		t.Fatal("expected rsi_bull column in snapshot")
	}
}

func TestPrepIndicatorsAttachesColumnsOncWarmedUp(t *testing.T) {
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	bars := make([]types.Bar, 20)
	price := 100.0
	for i := range bars {
		bars[i] = types.Bar{Time: t0.Add(time.Duration(i) * time.Minute), Open: price, High: price + 1, Low: price - 1, Close: price + 0.5}
		price += 0.5
	}

	prep := PrepIndicators(defaultFactory, 14)
	ibars := prep(nil, bars)
	if len(ibars) != len(bars) {
		t.Fatalf("expected %d indicator bars, got %d", len(bars), len(ibars))
	}
	if ibars[0].Indicators != nil {
		t.Fatal("expected no indicator columns before warm-up")
	}
	if ibars[len(ibars)-1].Indicators == nil {
		t.Fatal("expected indicator columns once warmed up")
	}
}
