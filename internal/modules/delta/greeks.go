package delta

import (
	"time"

	"github.com/jackleonard0102/ibtrading/internal/domain"
	"github.com/jackleonard0102/ibtrading/internal/modules/volatility"
)

const hoursPerYear = 24 * 365.25

// Resolver fills in missing option deltas from the Black-Scholes
// model, using a volatility figure supplied by the caller (typically
// the symbol's latest implied vol).
type Resolver struct {
	riskFreeRate float64
}

// NewResolver creates a delta resolver with the given annualized
// risk-free rate.
func NewResolver(riskFreeRate float64) *Resolver {
	return &Resolver{riskFreeRate: riskFreeRate}
}

// Resolve returns a copy of positions in which every option lacking a
// delta has one computed from the model. The input slice is not
// mutated. Positions that cannot be priced (non-positive spot or
// sigma) keep a nil delta so aggregation fails visibly instead of
// hedging against a silently-zeroed leg.
func (r *Resolver) Resolve(positions []domain.Position, spot, sigma float64, now time.Time) []domain.Position {
	out := make([]domain.Position, len(positions))
	copy(out, positions)

	if spot <= 0 || sigma <= 0 {
		return out
	}

	for i := range out {
		p := &out[i]
		if p.Kind != domain.InstrumentOption || p.Delta != nil {
			continue
		}
		tte := p.Expiry.Sub(now).Hours() / hoursPerYear
		d := volatility.BlackScholesDelta(p.OptionKind, spot, p.Strike, tte, r.riskFreeRate, sigma)
		p.Delta = &d
	}

	return out
}
