// Package hedger implements the hedging decision engine: a per-symbol
// state machine that compares net delta against an operator target and
// places at most one hedging order per symbol per cycle.
package hedger

import "time"

// StateKind is the decision engine's per-symbol state
type StateKind string

const (
	// StateIdle - no hedge in flight, ready to evaluate
	StateIdle StateKind = "IDLE"
	// StateEvaluating - a cycle is computing this symbol's decision
	StateEvaluating StateKind = "EVALUATING"
	// StateOrderPending - an order is submitted and awaiting a
	// terminal status; evaluation is suppressed until it resolves
	StateOrderPending StateKind = "ORDER_PENDING"
)

// HedgeState is the engine's working memory for one symbol. Values
// handed out to callers are copies; the engine owns the live record.
type HedgeState struct {
	LastActionAt   time.Time `json:"last_action_at,omitempty"`
	PendingSince   time.Time `json:"pending_since,omitempty"`
	Symbol         string    `json:"symbol"`
	Kind           StateKind `json:"state"`
	PendingOrderID string    `json:"pending_order_id,omitempty"`
	LastNetDelta   float64   `json:"last_net_delta"`
	LastError      string    `json:"last_error,omitempty"`
}
