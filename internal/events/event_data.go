package events

// EventData is the interface that all typed event payloads implement.
// This allows for type-safe event data while maintaining flexibility.
type EventData interface {
	// EventType returns the event type this data is associated with
	EventType() EventType

	// Fields returns the payload as a loosely typed map for handlers
	// that consume events generically
	Fields() map[string]interface{}
}

// OrderStatusChangedData contains data for OrderStatusChanged events
type OrderStatusChangedData struct {
	OrderID   string  `json:"order_id"`
	Symbol    string  `json:"symbol"`
	Status    string  `json:"status"`
	FillPrice float64 `json:"fill_price,omitempty"`
}

// EventType returns the event type for OrderStatusChangedData
func (d *OrderStatusChangedData) EventType() EventType {
	return OrderStatusChanged
}

// Fields returns the payload as a map
func (d *OrderStatusChangedData) Fields() map[string]interface{} {
	return map[string]interface{}{
		"order_id":   d.OrderID,
		"symbol":     d.Symbol,
		"status":     d.Status,
		"fill_price": d.FillPrice,
	}
}

// HedgeOrderPlacedData contains data for HedgeOrderPlaced events
type HedgeOrderPlacedData struct {
	OrderID  string  `json:"order_id"`
	Symbol   string  `json:"symbol"`
	Side     string  `json:"side"`
	Quantity int64   `json:"quantity"`
	NetDelta float64 `json:"net_delta"`
}

// EventType returns the event type for HedgeOrderPlacedData
func (d *HedgeOrderPlacedData) EventType() EventType {
	return HedgeOrderPlaced
}

// Fields returns the payload as a map
func (d *HedgeOrderPlacedData) Fields() map[string]interface{} {
	return map[string]interface{}{
		"order_id":  d.OrderID,
		"symbol":    d.Symbol,
		"side":      d.Side,
		"quantity":  d.Quantity,
		"net_delta": d.NetDelta,
	}
}

// FeedStatusChangedData contains data for FeedStatusChanged events
type FeedStatusChangedData struct {
	Connected bool   `json:"connected"`
	Timestamp string `json:"timestamp"`
}

// EventType returns the event type for FeedStatusChangedData
func (d *FeedStatusChangedData) EventType() EventType {
	return FeedStatusChanged
}

// Fields returns the payload as a map
func (d *FeedStatusChangedData) Fields() map[string]interface{} {
	return map[string]interface{}{
		"connected": d.Connected,
		"timestamp": d.Timestamp,
	}
}

// VolatilityUpdatedData contains data for VolatilityUpdated events
type VolatilityUpdatedData struct {
	Symbol      string   `json:"symbol"`
	ImpliedVol  *float64 `json:"implied_vol,omitempty"`
	RealizedVol *float64 `json:"realized_vol,omitempty"`
}

// EventType returns the event type for VolatilityUpdatedData
func (d *VolatilityUpdatedData) EventType() EventType {
	return VolatilityUpdated
}

// Fields returns the payload as a map
func (d *VolatilityUpdatedData) Fields() map[string]interface{} {
	fields := map[string]interface{}{
		"symbol": d.Symbol,
	}
	if d.ImpliedVol != nil {
		fields["implied_vol"] = *d.ImpliedVol
	}
	if d.RealizedVol != nil {
		fields["realized_vol"] = *d.RealizedVol
	}
	return fields
}

// TargetChangedData contains data for TargetChanged events
type TargetChangedData struct {
	Symbol  string `json:"symbol"`
	Enabled bool   `json:"enabled"`
}

// EventType returns the event type for TargetChangedData
func (d *TargetChangedData) EventType() EventType {
	return TargetChanged
}

// Fields returns the payload as a map
func (d *TargetChangedData) Fields() map[string]interface{} {
	return map[string]interface{}{
		"symbol":  d.Symbol,
		"enabled": d.Enabled,
	}
}
