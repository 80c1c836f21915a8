package brokerfeed

import (
	"time"

	"github.com/jackleonard0102/ibtrading/internal/domain"
)

// Frame types exchanged with the broker gateway. Every frame is a
// single JSON object with a "type" discriminator.
const (
	frameSubscribe   = "subscribe"
	framePlaceOrder  = "place_order"
	frameCancelOrder = "cancel_order"
	frameHistoryReq  = "history_request"

	framePositions   = "positions"
	frameQuote       = "quote"
	frameOptionChain = "option_chain"
	frameHistory     = "history"
	frameOrderStatus = "order_status"
)

// outboundFrame is the envelope for messages sent to the gateway
type outboundFrame struct {
	Type     string   `json:"type"`
	Symbols  []string `json:"symbols,omitempty"`
	Symbol   string   `json:"symbol,omitempty"`
	OrderID  string   `json:"order_id,omitempty"`
	Side     string   `json:"side,omitempty"`
	Quantity int64    `json:"quantity,omitempty"`
	Days     int      `json:"days,omitempty"`
}

// wirePosition is one position row as the gateway reports it
type wirePosition struct {
	Symbol     string   `json:"symbol"`
	Kind       string   `json:"kind"`
	OptionKind string   `json:"option_kind,omitempty"`
	Quantity   float64  `json:"quantity"`
	Strike     float64  `json:"strike,omitempty"`
	Expiry     string   `json:"expiry,omitempty"` // YYYY-MM-DD
	Multiplier float64  `json:"multiplier,omitempty"`
	Delta      *float64 `json:"delta,omitempty"`
	Price      float64  `json:"price,omitempty"`
}

// wireQuote is an underlying quote frame payload
type wireQuote struct {
	Symbol string  `json:"symbol"`
	Bid    float64 `json:"bid"`
	Ask    float64 `json:"ask"`
	Last   float64 `json:"last"`
	Close  float64 `json:"close"`
}

// wireOptionQuote is one option contract quote in a chain frame
type wireOptionQuote struct {
	Kind   string  `json:"kind"`
	Strike float64 `json:"strike"`
	Expiry string  `json:"expiry"` // YYYY-MM-DD
	Bid    float64 `json:"bid"`
	Ask    float64 `json:"ask"`
	Last   float64 `json:"last"`
}

// wireHistoryPoint is one daily close in a history frame
type wireHistoryPoint struct {
	Date  string  `json:"date"` // YYYY-MM-DD
	Close float64 `json:"close"`
}

// inboundFrame is the envelope for messages received from the gateway
type inboundFrame struct {
	Type       string             `json:"type"`
	Symbol     string             `json:"symbol,omitempty"`
	Underlying string             `json:"underlying,omitempty"`
	Positions  []wirePosition     `json:"positions,omitempty"`
	Quote      *wireQuote         `json:"quote,omitempty"`
	Quotes     []wireOptionQuote  `json:"quotes,omitempty"`
	Points     []wireHistoryPoint `json:"points,omitempty"`
	OrderID    string             `json:"order_id,omitempty"`
	Status     string             `json:"status,omitempty"`
	FillPrice  float64            `json:"fill_price,omitempty"`
}

func (p wirePosition) toDomain() domain.Position {
	pos := domain.Position{
		Symbol:       p.Symbol,
		Kind:         domain.InstrumentKind(p.Kind),
		OptionKind:   domain.OptionKind(p.OptionKind),
		Quantity:     p.Quantity,
		Strike:       p.Strike,
		Multiplier:   p.Multiplier,
		Delta:        p.Delta,
		CurrentPrice: p.Price,
	}
	if p.Expiry != "" {
		if expiry, err := time.Parse("2006-01-02", p.Expiry); err == nil {
			pos.Expiry = expiry
		}
	}
	return pos
}

func (q wireQuote) toDomain(ts time.Time) domain.Quote {
	return domain.Quote{
		Timestamp: ts,
		Symbol:    q.Symbol,
		Bid:       q.Bid,
		Ask:       q.Ask,
		Last:      q.Last,
		Close:     q.Close,
	}
}

func (q wireOptionQuote) toDomain(underlying string) domain.OptionQuote {
	oq := domain.OptionQuote{
		Underlying: underlying,
		Kind:       domain.OptionKind(q.Kind),
		Strike:     q.Strike,
		Bid:        q.Bid,
		Ask:        q.Ask,
		Last:       q.Last,
	}
	if expiry, err := time.Parse("2006-01-02", q.Expiry); err == nil {
		oq.Expiry = expiry
	}
	return oq
}

func toPriceSeries(points []wireHistoryPoint) domain.PriceSeries {
	series := make(domain.PriceSeries, 0, len(points))
	for _, p := range points {
		ts, err := time.Parse("2006-01-02", p.Date)
		if err != nil {
			continue
		}
		series = append(series, domain.PricePoint{Timestamp: ts, Price: p.Close})
	}
	return series
}
