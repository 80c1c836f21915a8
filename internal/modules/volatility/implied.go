package volatility

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/jackleonard0102/ibtrading/internal/domain"
)

const (
	// Bisection bracket: 0.01% to 500% annualized. Black-Scholes is
	// monotonically increasing in sigma, so the bracket holds exactly
	// one root whenever the no-arbitrage check passes.
	ivLowerBound = 1e-4
	ivUpperBound = 5.0

	// ivPriceTolerance is the absolute price residual at which the
	// solve is considered converged.
	ivPriceTolerance = 1e-6

	// ivMaxIterations bounds the bisection. 100 halvings of the
	// bracket are far more than the tolerance ever needs.
	ivMaxIterations = 100
)

var stdNormal = distuv.Normal{Mu: 0, Sigma: 1}

// BlackScholesPrice returns the Black-Scholes price of a European
// option. spot, strike and sigma must be positive and timeToExpiry
// non-negative; callers are expected to have validated inputs.
func BlackScholesPrice(kind domain.OptionKind, spot, strike, timeToExpiry, riskFreeRate, sigma float64) float64 {
	if timeToExpiry <= 0 {
		// At expiry the option is worth its intrinsic value
		if kind == domain.OptionPut {
			return math.Max(0, strike-spot)
		}
		return math.Max(0, spot-strike)
	}

	sqrtT := math.Sqrt(timeToExpiry)
	d1 := (math.Log(spot/strike) + (riskFreeRate+0.5*sigma*sigma)*timeToExpiry) / (sigma * sqrtT)
	d2 := d1 - sigma*sqrtT
	discount := strike * math.Exp(-riskFreeRate*timeToExpiry)

	if kind == domain.OptionPut {
		return discount*stdNormal.CDF(-d2) - spot*stdNormal.CDF(-d1)
	}
	return spot*stdNormal.CDF(d1) - discount*stdNormal.CDF(d2)
}

// BlackScholesDelta returns the per-unit Black-Scholes delta of a
// European option: N(d1) for calls, N(d1)-1 for puts.
func BlackScholesDelta(kind domain.OptionKind, spot, strike, timeToExpiry, riskFreeRate, sigma float64) float64 {
	if timeToExpiry <= 0 || sigma <= 0 {
		// Expired or degenerate: delta collapses to 0 or +/-1
		if kind == domain.OptionPut {
			if spot < strike {
				return -1
			}
			return 0
		}
		if spot > strike {
			return 1
		}
		return 0
	}

	d1 := (math.Log(spot/strike) + (riskFreeRate+0.5*sigma*sigma)*timeToExpiry) /
		(sigma * math.Sqrt(timeToExpiry))
	if kind == domain.OptionPut {
		return stdNormal.CDF(d1) - 1
	}
	return stdNormal.CDF(d1)
}

// SolveIV recovers implied volatility from an observed option premium
// by bisecting the Black-Scholes price over sigma in [1e-4, 5.0].
//
// Returns ErrInvalidInput for non-positive prices/strike/expiry,
// ErrNoArbitrage when the premium falls outside the theoretical
// bounds (no sigma reproduces it), and ErrDidNotConverge if the
// residual never drops below tolerance within the iteration budget.
func SolveIV(q domain.VolatilityQuote) (float64, error) {
	if q.UnderlyingPrice <= 0 || q.Strike <= 0 || q.TimeToExpiry <= 0 || q.MarketPrice <= 0 {
		return 0, fmt.Errorf("%w: spot=%f strike=%f tte=%f premium=%f",
			domain.ErrInvalidInput, q.UnderlyingPrice, q.Strike, q.TimeToExpiry, q.MarketPrice)
	}

	if err := checkArbitrageBounds(q); err != nil {
		return 0, err
	}

	price := func(sigma float64) float64 {
		return BlackScholesPrice(q.Kind, q.UnderlyingPrice, q.Strike, q.TimeToExpiry, q.RiskFreeRate, sigma)
	}

	lo, hi := ivLowerBound, ivUpperBound
	for i := 0; i < ivMaxIterations; i++ {
		mid := (lo + hi) / 2
		residual := price(mid) - q.MarketPrice

		if math.Abs(residual) < ivPriceTolerance {
			return mid, nil
		}
		// Price is increasing in sigma: residual sign tells us which
		// half of the bracket holds the root
		if residual > 0 {
			hi = mid
		} else {
			lo = mid
		}
	}

	return 0, fmt.Errorf("%w: residual %e after %d iterations",
		domain.ErrDidNotConverge, math.Abs(price((lo+hi)/2)-q.MarketPrice), ivMaxIterations)
}

// checkArbitrageBounds rejects premiums no volatility can reproduce.
// Calls must trade strictly between max(0, S - K*exp(-rT)) and S;
// puts between max(0, K*exp(-rT) - S) and K*exp(-rT).
func checkArbitrageBounds(q domain.VolatilityQuote) error {
	discountedStrike := q.Strike * math.Exp(-q.RiskFreeRate*q.TimeToExpiry)

	var lower, upper float64
	if q.Kind == domain.OptionPut {
		lower = math.Max(0, discountedStrike-q.UnderlyingPrice)
		upper = discountedStrike
	} else {
		lower = math.Max(0, q.UnderlyingPrice-discountedStrike)
		upper = q.UnderlyingPrice
	}

	if q.MarketPrice <= lower || q.MarketPrice >= upper {
		return fmt.Errorf("%w: premium %f outside (%f, %f) for %s",
			domain.ErrNoArbitrage, q.MarketPrice, lower, upper, q.Kind)
	}
	return nil
}
