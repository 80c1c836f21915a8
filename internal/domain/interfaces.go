package domain

// MarketDataClient supplies positions, live quotes and historical
// price series as plain data. The core never calls out to a network
// itself; implementations live in internal/clients.
type MarketDataClient interface {
	// GetPositions returns current portfolio positions for a symbol
	// (equity plus option legs), with per-unit deltas populated where
	// the feed provides them
	GetPositions(symbol string) ([]Position, error)

	// GetQuote returns the latest quote for an underlying
	GetQuote(symbol string) (Quote, error)

	// GetOptionChain returns quotes for the near-expiry option chain
	// of an underlying
	GetOptionChain(symbol string) ([]OptionQuote, error)

	// GetHistoricalCloses returns up to `days` daily closes for a
	// symbol, oldest first
	GetHistoricalCloses(symbol string, days int) (PriceSeries, error)

	// IsConnected reports whether the feed is currently usable
	IsConnected() bool
}

// ExecutionClient submits hedging orders and reports their lifecycle.
// Status transitions are delivered asynchronously through the event
// bus; see events.OrderStatusChangedData.
type ExecutionClient interface {
	// PlaceOrder submits a market order and returns the broker's
	// acknowledgement
	PlaceOrder(symbol string, side OrderSide, quantity int64) (*OrderAck, error)

	// CancelOrder requests cancellation of a pending order
	CancelOrder(orderID string) error

	// GetPendingOrders returns orders submitted but not yet terminal
	GetPendingOrders() ([]OrderAck, error)

	// IsConnected reports whether orders can currently be submitted
	IsConnected() bool
}
