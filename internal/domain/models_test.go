package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func floatPtr(v float64) *float64 { return &v }

func TestDeltaContribution_Equity(t *testing.T) {
	p := Position{Symbol: "AAPL", Kind: InstrumentEquity, Quantity: 100}

	delta, err := p.DeltaContribution()

	assert.NoError(t, err)
	assert.Equal(t, 100.0, delta)
}

func TestDeltaContribution_ShortEquity(t *testing.T) {
	p := Position{Symbol: "AAPL", Kind: InstrumentEquity, Quantity: -250}

	delta, err := p.DeltaContribution()

	assert.NoError(t, err)
	assert.Equal(t, -250.0, delta)
}

func TestDeltaContribution_Option(t *testing.T) {
	p := Position{
		Symbol:     "AAPL",
		Kind:       InstrumentOption,
		OptionKind: OptionCall,
		Quantity:   -2,
		Multiplier: 100,
		Delta:      floatPtr(0.55),
	}

	delta, err := p.DeltaContribution()

	assert.NoError(t, err)
	assert.InDelta(t, -110.0, delta, 1e-9)
}

func TestDeltaContribution_OptionDefaultMultiplier(t *testing.T) {
	p := Position{
		Symbol:   "SPY",
		Kind:     InstrumentOption,
		Quantity: 1,
		Delta:    floatPtr(0.5),
	}

	delta, err := p.DeltaContribution()

	assert.NoError(t, err)
	assert.InDelta(t, 50.0, delta, 1e-9)
}

func TestDeltaContribution_MissingOptionDelta(t *testing.T) {
	p := Position{Symbol: "AAPL", Kind: InstrumentOption, Quantity: 1, Multiplier: 100}

	_, err := p.DeltaContribution()

	assert.ErrorIs(t, err, ErrMissingDelta)
}

func TestHedgeTargetValidate(t *testing.T) {
	valid := HedgeTarget{Symbol: "AAPL", TargetDelta: 0, Tolerance: 5, MaxOrderQty: 1000}
	assert.NoError(t, valid.Validate())

	tests := []struct {
		name   string
		target HedgeTarget
	}{
		{"empty symbol", HedgeTarget{Tolerance: 5, MaxOrderQty: 100}},
		{"zero max qty", HedgeTarget{Symbol: "AAPL", Tolerance: 5, MaxOrderQty: 0}},
		{"negative max qty", HedgeTarget{Symbol: "AAPL", Tolerance: 5, MaxOrderQty: -10}},
		{"negative tolerance", HedgeTarget{Symbol: "AAPL", Tolerance: -1, MaxOrderQty: 100}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, tt.target.Validate(), ErrConfiguration)
		})
	}
}

func TestOrderStatusIsTerminal(t *testing.T) {
	assert.False(t, OrderSubmitted.IsTerminal())
	assert.True(t, OrderFilled.IsTerminal())
	assert.True(t, OrderCancelled.IsTerminal())
	assert.True(t, OrderRejected.IsTerminal())
}

func TestQuotePriceFallback(t *testing.T) {
	assert.Equal(t, 101.5, Quote{Last: 101.5, Close: 100, Bid: 101, Ask: 102}.Price())
	assert.Equal(t, 100.0, Quote{Close: 100, Bid: 101, Ask: 102}.Price())
	assert.Equal(t, 101.5, Quote{Bid: 101, Ask: 102}.Price())
	assert.Equal(t, 0.0, Quote{}.Price())
}

func TestPriceSeriesPrices(t *testing.T) {
	series := PriceSeries{{Price: 100}, {Price: 101}, {Price: 99.5}}
	assert.Equal(t, []float64{100, 101, 99.5}, series.Prices())
}
