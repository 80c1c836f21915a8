// Package delta aggregates portfolio positions into net delta per
// underlying. The aggregator consumes per-unit deltas supplied by the
// caller; it never computes greeks itself. Resolving missing option
// deltas through a pricing model is the Resolver's job.
package delta

import (
	"fmt"

	"github.com/jackleonard0102/ibtrading/internal/domain"
)

// Aggregate sums delta contributions per underlying symbol. Equities
// contribute quantity directly; options contribute
// quantity * delta * multiplier.
//
// Deterministic and stateless. Returns ErrMissingDelta naming the
// first option position without a delta; the caller must resolve it
// before aggregation.
func Aggregate(positions []domain.Position) (map[string]float64, error) {
	net := make(map[string]float64, len(positions))

	for _, p := range positions {
		contribution, err := p.DeltaContribution()
		if err != nil {
			return nil, fmt.Errorf("position %s %s strike %.2f: %w",
				p.Symbol, p.Kind, p.Strike, err)
		}
		net[p.Symbol] += contribution
	}

	return net, nil
}

// AggregateSymbol sums delta contributions for a single underlying,
// ignoring positions in other symbols.
func AggregateSymbol(positions []domain.Position, symbol string) (float64, error) {
	var net float64

	for _, p := range positions {
		if p.Symbol != symbol {
			continue
		}
		contribution, err := p.DeltaContribution()
		if err != nil {
			return 0, fmt.Errorf("position %s %s strike %.2f: %w",
				p.Symbol, p.Kind, p.Strike, err)
		}
		net += contribution
	}

	return net, nil
}
