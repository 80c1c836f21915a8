package volatility

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jackleonard0102/ibtrading/internal/domain"
)

func TestBlackScholesPriceKnownValues(t *testing.T) {
	// ATM call, S=K=100, T=1y, r=5%, sigma=20%: textbook value 10.4506
	call := BlackScholesPrice(domain.OptionCall, 100, 100, 1, 0.05, 0.20)
	assert.InDelta(t, 10.4506, call, 1e-3)

	// Matching put via put-call parity: C - P = S - K*exp(-rT)
	put := BlackScholesPrice(domain.OptionPut, 100, 100, 1, 0.05, 0.20)
	parity := call - put
	assert.InDelta(t, 100-100*math.Exp(-0.05), parity, 1e-9)
}

func TestBlackScholesPriceAtExpiry(t *testing.T) {
	assert.Equal(t, 10.0, BlackScholesPrice(domain.OptionCall, 110, 100, 0, 0.05, 0.2))
	assert.Equal(t, 0.0, BlackScholesPrice(domain.OptionCall, 90, 100, 0, 0.05, 0.2))
	assert.Equal(t, 10.0, BlackScholesPrice(domain.OptionPut, 90, 100, 0, 0.05, 0.2))
}

func TestSolveIVRoundTrip(t *testing.T) {
	tests := []struct {
		name  string
		kind  domain.OptionKind
		spot  float64
		k     float64
		tte   float64
		sigma float64
	}{
		{"atm call", domain.OptionCall, 100, 100, 0.5, 0.25},
		{"atm put", domain.OptionPut, 100, 100, 0.5, 0.25},
		{"otm call", domain.OptionCall, 100, 120, 0.25, 0.35},
		{"itm put", domain.OptionPut, 100, 120, 0.25, 0.35},
		{"low vol", domain.OptionCall, 450, 455, 0.1, 0.08},
		{"high vol", domain.OptionPut, 50, 45, 1.5, 1.20},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			premium := BlackScholesPrice(tt.kind, tt.spot, tt.k, tt.tte, 0.05, tt.sigma)

			iv, err := SolveIV(domain.VolatilityQuote{
				Kind:            tt.kind,
				UnderlyingPrice: tt.spot,
				Strike:          tt.k,
				TimeToExpiry:    tt.tte,
				RiskFreeRate:    0.05,
				MarketPrice:     premium,
			})

			require.NoError(t, err)
			assert.InDelta(t, tt.sigma, iv, 1e-4)
			assert.GreaterOrEqual(t, iv, ivLowerBound)
			assert.LessOrEqual(t, iv, ivUpperBound)
		})
	}
}

func TestSolveIVInvalidInput(t *testing.T) {
	base := domain.VolatilityQuote{
		Kind:            domain.OptionCall,
		UnderlyingPrice: 100,
		Strike:          100,
		TimeToExpiry:    0.5,
		RiskFreeRate:    0.05,
		MarketPrice:     8.0,
	}

	tests := []struct {
		name   string
		mutate func(*domain.VolatilityQuote)
	}{
		{"zero spot", func(q *domain.VolatilityQuote) { q.UnderlyingPrice = 0 }},
		{"negative strike", func(q *domain.VolatilityQuote) { q.Strike = -100 }},
		{"zero expiry", func(q *domain.VolatilityQuote) { q.TimeToExpiry = 0 }},
		{"zero premium", func(q *domain.VolatilityQuote) { q.MarketPrice = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := base
			tt.mutate(&q)
			_, err := SolveIV(q)
			assert.ErrorIs(t, err, domain.ErrInvalidInput)
		})
	}
}

func TestSolveIVNoArbitrage(t *testing.T) {
	// Call premium above the underlying
	_, err := SolveIV(domain.VolatilityQuote{
		Kind: domain.OptionCall, UnderlyingPrice: 100, Strike: 100,
		TimeToExpiry: 0.5, RiskFreeRate: 0.05, MarketPrice: 105,
	})
	assert.ErrorIs(t, err, domain.ErrNoArbitrage)

	// Call premium below intrinsic: S - K*exp(-rT) = 100 - 80e^-0.0125 ~ 20.99
	_, err = SolveIV(domain.VolatilityQuote{
		Kind: domain.OptionCall, UnderlyingPrice: 100, Strike: 80,
		TimeToExpiry: 0.25, RiskFreeRate: 0.05, MarketPrice: 19,
	})
	assert.ErrorIs(t, err, domain.ErrNoArbitrage)

	// Put premium above the discounted strike
	_, err = SolveIV(domain.VolatilityQuote{
		Kind: domain.OptionPut, UnderlyingPrice: 100, Strike: 100,
		TimeToExpiry: 0.5, RiskFreeRate: 0.05, MarketPrice: 99,
	})
	assert.ErrorIs(t, err, domain.ErrNoArbitrage)
}

func TestBlackScholesDelta(t *testing.T) {
	callDelta := BlackScholesDelta(domain.OptionCall, 100, 100, 0.5, 0.05, 0.25)
	putDelta := BlackScholesDelta(domain.OptionPut, 100, 100, 0.5, 0.05, 0.25)

	// ATM call delta slightly above 0.5, and put delta = call delta - 1
	assert.Greater(t, callDelta, 0.5)
	assert.Less(t, callDelta, 0.7)
	assert.InDelta(t, callDelta-1, putDelta, 1e-12)

	// Deep ITM/OTM limits
	assert.InDelta(t, 1.0, BlackScholesDelta(domain.OptionCall, 200, 100, 0.1, 0.05, 0.2), 1e-6)
	assert.InDelta(t, 0.0, BlackScholesDelta(domain.OptionCall, 50, 100, 0.1, 0.05, 0.2), 1e-6)
	assert.InDelta(t, -1.0, BlackScholesDelta(domain.OptionPut, 50, 100, 0.1, 0.05, 0.2), 1e-6)
}

func TestBlackScholesDeltaAtExpiry(t *testing.T) {
	assert.Equal(t, 1.0, BlackScholesDelta(domain.OptionCall, 110, 100, 0, 0.05, 0.2))
	assert.Equal(t, 0.0, BlackScholesDelta(domain.OptionCall, 90, 100, 0, 0.05, 0.2))
	assert.Equal(t, -1.0, BlackScholesDelta(domain.OptionPut, 90, 100, 0, 0.05, 0.2))
}
