// Package domain provides core domain models and types.
package domain

import "time"

// InstrumentKind represents the type of financial instrument in a position
type InstrumentKind string

const (
	// InstrumentEquity represents common stock
	InstrumentEquity InstrumentKind = "EQUITY"
	// InstrumentOption represents a listed option contract
	InstrumentOption InstrumentKind = "OPTION"
)

// OptionKind represents the option right (call or put)
type OptionKind string

const (
	OptionCall OptionKind = "C"
	OptionPut  OptionKind = "P"
)

// OrderSide represents the direction of an order
type OrderSide string

const (
	SideBuy  OrderSide = "BUY"
	SideSell OrderSide = "SELL"
)

// OrderStatus represents the lifecycle state of a submitted order
type OrderStatus string

const (
	OrderSubmitted OrderStatus = "SUBMITTED"
	OrderFilled    OrderStatus = "FILLED"
	OrderCancelled OrderStatus = "CANCELLED"
	OrderRejected  OrderStatus = "REJECTED"
)

// IsTerminal reports whether the status ends the order's lifecycle.
// A terminal status releases the symbol for the next hedging decision.
func (s OrderStatus) IsTerminal() bool {
	return s == OrderFilled || s == OrderCancelled || s == OrderRejected
}

// Position represents a single portfolio holding.
// Quantity is signed: positive for long, negative for short.
// Delta is the per-unit delta; nil means the feed has not supplied one
// yet (equities default to 1.0, see DeltaContribution).
type Position struct {
	Expiry       time.Time      `json:"expiry,omitempty"`
	Symbol       string         `json:"symbol"`
	Kind         InstrumentKind `json:"kind"`
	OptionKind   OptionKind     `json:"option_kind,omitempty"`
	Delta        *float64       `json:"delta,omitempty"`
	Quantity     float64        `json:"quantity"`
	Strike       float64        `json:"strike,omitempty"`
	Multiplier   float64        `json:"multiplier"`
	CurrentPrice float64        `json:"current_price"`
}

// DeltaContribution returns the position's contribution to net delta:
// quantity * delta * multiplier. Equities carry an implicit delta of
// 1.0 and multiplier of 1. Option positions without a delta return
// ErrMissingDelta - a silently-zeroed option leg would produce a wrong
// hedge, which is worse than a visible failure.
func (p Position) DeltaContribution() (float64, error) {
	switch p.Kind {
	case InstrumentEquity:
		return p.Quantity, nil
	case InstrumentOption:
		if p.Delta == nil {
			return 0, ErrMissingDelta
		}
		multiplier := p.Multiplier
		if multiplier == 0 {
			multiplier = 100
		}
		return p.Quantity * (*p.Delta) * multiplier, nil
	default:
		return 0, nil
	}
}

// HedgeTarget is the per-symbol hedging configuration, set by the
// operator and read-only to the decision engine.
type HedgeTarget struct {
	UpdatedAt   time.Time `json:"updated_at"`
	Symbol      string    `json:"symbol"`
	TargetDelta float64   `json:"target_delta"`
	Tolerance   float64   `json:"tolerance"`
	MaxOrderQty int64     `json:"max_order_qty"`
	Enabled     bool      `json:"enabled"`
}

// Validate checks the target's configuration once at setup time
func (t HedgeTarget) Validate() error {
	if t.Symbol == "" {
		return ErrConfiguration
	}
	if t.MaxOrderQty <= 0 {
		return ErrConfiguration
	}
	if t.Tolerance < 0 {
		return ErrConfiguration
	}
	return nil
}

// OrderIntent is the single observable output of a hedging decision:
// an instruction for the execution collaborator.
type OrderIntent struct {
	CreatedAt time.Time `json:"created_at"`
	Symbol    string    `json:"symbol"`
	Side      OrderSide `json:"side"`
	Reason    string    `json:"reason,omitempty"`
	Quantity  int64     `json:"quantity"`
}

// OrderAck is the execution collaborator's acknowledgement of a
// submitted order
type OrderAck struct {
	SubmittedAt time.Time `json:"submitted_at"`
	OrderID     string    `json:"order_id"`
	Symbol      string    `json:"symbol"`
	Side        OrderSide `json:"side"`
	Quantity    int64     `json:"quantity"`
}

// OrderUpdate reports an order status transition from the execution
// collaborator. Updates arrive asynchronously relative to hedge cycles.
type OrderUpdate struct {
	Timestamp time.Time   `json:"timestamp"`
	OrderID   string      `json:"order_id"`
	Symbol    string      `json:"symbol"`
	Status    OrderStatus `json:"status"`
	FillPrice float64     `json:"fill_price,omitempty"`
}

// Quote represents a live market quote for an underlying
type Quote struct {
	Timestamp time.Time `json:"timestamp"`
	Symbol    string    `json:"symbol"`
	Bid       float64   `json:"bid"`
	Ask       float64   `json:"ask"`
	Last      float64   `json:"last"`
	Close     float64   `json:"close"`
}

// Price returns the best available price: last trade, previous close,
// then bid/ask midpoint. Returns 0 when no field is populated.
func (q Quote) Price() float64 {
	if q.Last > 0 {
		return q.Last
	}
	if q.Close > 0 {
		return q.Close
	}
	if q.Bid > 0 && q.Ask > 0 {
		return (q.Bid + q.Ask) / 2
	}
	return 0
}

// OptionQuote represents a live quote for a single option contract
type OptionQuote struct {
	Expiry     time.Time  `json:"expiry"`
	Underlying string     `json:"underlying"`
	Kind       OptionKind `json:"kind"`
	Strike     float64    `json:"strike"`
	Bid        float64    `json:"bid"`
	Ask        float64    `json:"ask"`
	Last       float64    `json:"last"`
}

// Price returns the best available option premium: last trade, then
// bid/ask midpoint
func (q OptionQuote) Price() float64 {
	if q.Last > 0 {
		return q.Last
	}
	if q.Bid > 0 && q.Ask > 0 {
		return (q.Bid + q.Ask) / 2
	}
	return 0
}

// PricePoint is one observation in a historical price series
type PricePoint struct {
	Timestamp time.Time `json:"timestamp"`
	Price     float64   `json:"price"`
}

// PriceSeries is a chronological sequence of price observations,
// immutable once captured for a computation
type PriceSeries []PricePoint

// Prices returns the price values in series order
func (s PriceSeries) Prices() []float64 {
	prices := make([]float64, len(s))
	for i, p := range s {
		prices[i] = p.Price
	}
	return prices
}

// VolatilityQuote carries the inputs for an implied volatility solve
type VolatilityQuote struct {
	Kind            OptionKind `json:"kind"`
	UnderlyingPrice float64    `json:"underlying_price"`
	Strike          float64    `json:"strike"`
	TimeToExpiry    float64    `json:"time_to_expiry"` // years
	RiskFreeRate    float64    `json:"risk_free_rate"`
	MarketPrice     float64    `json:"market_price"`
}

// VolatilitySnapshot is the cached result of a volatility refresh for
// one symbol, served read-only to the presentation layer
type VolatilitySnapshot struct {
	ComputedAt      time.Time `json:"computed_at"`
	Expiry          time.Time `json:"expiry,omitempty"`
	Symbol          string    `json:"symbol"`
	ImpliedVol      *float64  `json:"implied_vol,omitempty"`
	RealizedVol     *float64  `json:"realized_vol,omitempty"`
	UnderlyingPrice float64   `json:"underlying_price"`
	ATMStrike       float64   `json:"atm_strike,omitempty"`
}

// HedgeAlert records one hedging order attempt for operator display
type HedgeAlert struct {
	Timestamp time.Time `json:"timestamp"`
	Symbol    string    `json:"symbol"`
	Action    OrderSide `json:"action"`
	OrderType string    `json:"order_type"`
	Status    string    `json:"status"`
	Details   string    `json:"details,omitempty"`
	Price     *float64  `json:"price,omitempty"`
	Quantity  int64     `json:"quantity"`
}
