package hedger

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/jackleonard0102/ibtrading/internal/domain"
	"github.com/jackleonard0102/ibtrading/internal/events"
)

// OrderStore persists the hedging order audit trail. Implemented by
// OrderRepository; kept as an interface so engine tests run without a
// database.
type OrderStore interface {
	Insert(order HedgeOrder) error
	UpdateStatus(orderID string, status domain.OrderStatus, fillPrice float64) error
}

// Engine is the hedging decision engine. All state transitions happen
// under its lock; readers get snapshot copies.
type Engine struct {
	mu     sync.RWMutex
	states map[string]*HedgeState
	exec   domain.ExecutionClient
	orders OrderStore
	alerts *AlertLog
	bus    *events.Bus
	log    zerolog.Logger
}

// NewEngine creates a hedging decision engine
func NewEngine(exec domain.ExecutionClient, orders OrderStore, alerts *AlertLog, bus *events.Bus, log zerolog.Logger) *Engine {
	return &Engine{
		states: make(map[string]*HedgeState),
		exec:   exec,
		orders: orders,
		alerts: alerts,
		bus:    bus,
		log:    log.With().Str("component", "hedge_engine").Logger(),
	}
}

// Decide computes the order intent for one symbol, or nil when no
// action is needed. Pure function of its inputs:
//   - inside the dead-band (|netDelta - target| <= tolerance): nil
//   - hedge quantity = round(target - netDelta), clamped to MaxOrderQty
//   - a quantity that rounds to zero: nil
func Decide(netDelta float64, target domain.HedgeTarget) *domain.OrderIntent {
	deltaError := netDelta - target.TargetDelta
	if math.Abs(deltaError) <= target.Tolerance {
		return nil
	}

	qty := int64(math.Round(-deltaError))
	if qty > target.MaxOrderQty {
		qty = target.MaxOrderQty
	} else if qty < -target.MaxOrderQty {
		qty = -target.MaxOrderQty
	}
	if qty == 0 {
		return nil
	}

	side := domain.SideBuy
	if qty < 0 {
		side = domain.SideSell
		qty = -qty
	}

	return &domain.OrderIntent{
		CreatedAt: time.Now(),
		Symbol:    target.Symbol,
		Side:      side,
		Quantity:  qty,
		Reason:    fmt.Sprintf("delta %.2f vs target %.2f", netDelta, target.TargetDelta),
	}
}

// Evaluate runs one decision cycle for a symbol. It returns the
// acknowledgement of a placed order, or nil when the cycle took no
// action (pending order in flight, inside the dead-band, or rounds to
// zero).
//
// The lock is held across order submission: that is what guarantees at
// most one pending order per symbol even if cycles overlap.
func (e *Engine) Evaluate(target domain.HedgeTarget, netDelta float64) (*domain.OrderAck, error) {
	if err := target.Validate(); err != nil {
		return nil, fmt.Errorf("target %s: %w", target.Symbol, err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	st := e.stateLocked(target.Symbol)
	st.LastNetDelta = netDelta
	st.LastError = ""

	if st.PendingOrderID != "" {
		e.log.Debug().
			Str("symbol", target.Symbol).
			Str("order_id", st.PendingOrderID).
			Msg("Order pending, skipping evaluation")
		return nil, nil
	}

	st.Kind = StateEvaluating
	intent := Decide(netDelta, target)
	if intent == nil {
		st.Kind = StateIdle
		return nil, nil
	}

	ack, err := e.exec.PlaceOrder(intent.Symbol, intent.Side, intent.Quantity)
	if err != nil {
		st.Kind = StateIdle
		st.LastError = err.Error()
		e.alerts.Record(domain.HedgeAlert{
			Timestamp: time.Now(),
			Symbol:    intent.Symbol,
			Action:    intent.Side,
			OrderType: "MKT",
			Quantity:  intent.Quantity,
			Status:    "FAILED",
			Details:   err.Error(),
		})
		return nil, fmt.Errorf("failed to place hedge order for %s: %w", intent.Symbol, err)
	}

	now := time.Now()
	st.Kind = StateOrderPending
	st.PendingOrderID = ack.OrderID
	st.PendingSince = now
	st.LastActionAt = now

	e.log.Info().
		Str("symbol", intent.Symbol).
		Str("side", string(intent.Side)).
		Int64("quantity", intent.Quantity).
		Float64("net_delta", netDelta).
		Str("order_id", ack.OrderID).
		Msg("Hedge order placed")

	e.alerts.Record(domain.HedgeAlert{
		Timestamp: now,
		Symbol:    intent.Symbol,
		Action:    intent.Side,
		OrderType: "MKT",
		Quantity:  intent.Quantity,
		Status:    "PENDING",
		Details:   intent.Reason,
	})

	if e.orders != nil {
		if err := e.orders.Insert(HedgeOrder{
			OrderID:     ack.OrderID,
			Symbol:      intent.Symbol,
			Side:        intent.Side,
			Quantity:    intent.Quantity,
			NetDelta:    netDelta,
			TargetDelta: target.TargetDelta,
			Status:      domain.OrderSubmitted,
			CreatedAt:   now,
		}); err != nil {
			e.log.Error().Err(err).Str("order_id", ack.OrderID).Msg("Failed to persist hedge order")
		}
	}

	if e.bus != nil {
		e.bus.EmitTyped("hedger", &events.HedgeOrderPlacedData{
			OrderID:  ack.OrderID,
			Symbol:   intent.Symbol,
			Side:     string(intent.Side),
			Quantity: intent.Quantity,
			NetDelta: netDelta,
		})
	}

	return ack, nil
}

// HandleOrderUpdate processes an order status transition from the
// execution collaborator. Terminal statuses clear the symbol's
// pending order and return it to idle; non-terminal ones only touch
// the audit trail.
func (e *Engine) HandleOrderUpdate(update domain.OrderUpdate) {
	if e.orders != nil {
		if err := e.orders.UpdateStatus(update.OrderID, update.Status, update.FillPrice); err != nil {
			e.log.Error().Err(err).Str("order_id", update.OrderID).Msg("Failed to update order status")
		}
	}

	if !update.Status.IsTerminal() {
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	for _, st := range e.states {
		if st.PendingOrderID != update.OrderID {
			continue
		}
		st.PendingOrderID = ""
		st.PendingSince = time.Time{}
		st.Kind = StateIdle
		st.LastActionAt = update.Timestamp
		if st.LastActionAt.IsZero() {
			st.LastActionAt = time.Now()
		}

		e.log.Info().
			Str("symbol", st.Symbol).
			Str("order_id", update.OrderID).
			Str("status", string(update.Status)).
			Msg("Hedge order resolved")

		e.alerts.Record(domain.HedgeAlert{
			Timestamp: time.Now(),
			Symbol:    st.Symbol,
			OrderType: "MKT",
			Status:    string(update.Status),
			Price:     fillPricePtr(update.FillPrice),
		})
		return
	}
}

// CancelPending requests cancellation of a symbol's in-flight order.
// The state stays OrderPending until the execution collaborator
// reports the terminal CANCELLED status through HandleOrderUpdate.
func (e *Engine) CancelPending(symbol string) error {
	e.mu.RLock()
	st, ok := e.states[symbol]
	var orderID string
	if ok {
		orderID = st.PendingOrderID
	}
	e.mu.RUnlock()

	if orderID == "" {
		return nil
	}
	if err := e.exec.CancelOrder(orderID); err != nil {
		return fmt.Errorf("failed to cancel order %s: %w", orderID, err)
	}
	return nil
}

// State returns a snapshot copy of one symbol's state
func (e *Engine) State(symbol string) (HedgeState, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	st, ok := e.states[symbol]
	if !ok {
		return HedgeState{}, false
	}
	return *st, true
}

// States returns snapshot copies of all per-symbol states
func (e *Engine) States() []HedgeState {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make([]HedgeState, 0, len(e.states))
	for _, st := range e.states {
		out = append(out, *st)
	}
	return out
}

// RecordError marks a symbol's state with a cycle failure without
// touching any pending order. Used by the service for per-symbol
// error isolation.
func (e *Engine) RecordError(symbol string, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	st := e.stateLocked(symbol)
	st.LastError = err.Error()
}

func (e *Engine) stateLocked(symbol string) *HedgeState {
	st, ok := e.states[symbol]
	if !ok {
		st = &HedgeState{Symbol: symbol, Kind: StateIdle}
		e.states[symbol] = st
	}
	return st
}

func fillPricePtr(price float64) *float64 {
	if price <= 0 {
		return nil
	}
	return &price
}
