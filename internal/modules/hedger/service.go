package hedger

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/jackleonard0102/ibtrading/internal/domain"
	"github.com/jackleonard0102/ibtrading/internal/events"
	"github.com/jackleonard0102/ibtrading/internal/modules/delta"
)

// TargetStore is the persistence boundary for operator hedge targets.
// Implemented by TargetRepository.
type TargetStore interface {
	Upsert(target domain.HedgeTarget) error
	Get(symbol string) (domain.HedgeTarget, error)
	List() ([]domain.HedgeTarget, error)
	ListEnabled() ([]domain.HedgeTarget, error)
	SetEnabled(symbol string, enabled bool) error
}

// SigmaSource supplies the volatility figure used to price option
// deltas the feed did not deliver. Implemented by the volatility
// service.
type SigmaSource interface {
	Sigma(symbol string) (float64, bool)
}

// Service drives the hedge loop: one RunCycle per scheduler tick, one
// evaluation per enabled target. Errors in one symbol never stop the
// cycle for the others.
type Service struct {
	md       domain.MarketDataClient
	engine   *Engine
	targets  TargetStore
	resolver *delta.Resolver
	sigma    SigmaSource
	alerts   *AlertLog
	bus      *events.Bus
	log      zerolog.Logger
}

// NewService creates the hedge service and subscribes it to order
// status events from the feed.
func NewService(
	md domain.MarketDataClient,
	engine *Engine,
	targets TargetStore,
	resolver *delta.Resolver,
	sigma SigmaSource,
	alerts *AlertLog,
	bus *events.Bus,
	log zerolog.Logger,
) *Service {
	s := &Service{
		md:       md,
		engine:   engine,
		targets:  targets,
		resolver: resolver,
		sigma:    sigma,
		alerts:   alerts,
		bus:      bus,
		log:      log.With().Str("component", "hedge_service").Logger(),
	}

	if bus != nil {
		bus.Subscribe(events.OrderStatusChanged, s.onOrderStatusEvent)
	}
	return s
}

// RunCycle evaluates every enabled hedge target once
func (s *Service) RunCycle() error {
	if !s.md.IsConnected() {
		s.log.Warn().Msg("Feed disconnected, skipping hedge cycle")
		return nil
	}

	targets, err := s.targets.ListEnabled()
	if err != nil {
		return fmt.Errorf("failed to load enabled targets: %w", err)
	}
	if len(targets) == 0 {
		return nil
	}

	var failures int
	for _, target := range targets {
		if err := s.hedgeSymbol(target); err != nil {
			failures++
			s.engine.RecordError(target.Symbol, err)
			s.log.Error().Err(err).Str("symbol", target.Symbol).Msg("Hedge cycle failed for symbol")
		}
	}

	if failures > 0 {
		return fmt.Errorf("hedge cycle: %d of %d symbols failed", failures, len(targets))
	}
	return nil
}

func (s *Service) hedgeSymbol(target domain.HedgeTarget) error {
	positions, err := s.md.GetPositions(target.Symbol)
	if err != nil {
		return fmt.Errorf("failed to fetch positions: %w", err)
	}
	if len(positions) == 0 {
		return nil
	}

	// Fill in option deltas the feed did not supply, priced off the
	// latest volatility snapshot
	var sigma float64
	if s.sigma != nil {
		sigma, _ = s.sigma.Sigma(target.Symbol)
	}
	if sigma > 0 && s.resolver != nil {
		quote, err := s.md.GetQuote(target.Symbol)
		if err != nil {
			return fmt.Errorf("failed to fetch quote: %w", err)
		}
		positions = s.resolver.Resolve(positions, quote.Price(), sigma, time.Now())
	}

	netDelta, err := delta.AggregateSymbol(positions, target.Symbol)
	if err != nil {
		return fmt.Errorf("failed to aggregate delta: %w", err)
	}

	if _, err := s.engine.Evaluate(target, netDelta); err != nil {
		return err
	}
	return nil
}

// UpsertTarget validates and stores an operator hedge target
func (s *Service) UpsertTarget(target domain.HedgeTarget) error {
	if err := target.Validate(); err != nil {
		return fmt.Errorf("invalid hedge target for %q: %w", target.Symbol, err)
	}
	if err := s.targets.Upsert(target); err != nil {
		return err
	}

	s.alerts.Logf("target %s: delta=%.1f tolerance=%.1f max_qty=%d enabled=%t",
		target.Symbol, target.TargetDelta, target.Tolerance, target.MaxOrderQty, target.Enabled)
	if s.bus != nil {
		s.bus.EmitTyped("hedger", &events.TargetChangedData{
			Symbol:  target.Symbol,
			Enabled: target.Enabled,
		})
	}
	return nil
}

// StartSymbol enables hedging for a configured symbol
func (s *Service) StartSymbol(symbol string) error {
	return s.setEnabled(symbol, true)
}

// StopSymbol disables hedging for a symbol. An in-flight order is left
// to resolve on its own; only new evaluations stop.
func (s *Service) StopSymbol(symbol string) error {
	return s.setEnabled(symbol, false)
}

func (s *Service) setEnabled(symbol string, enabled bool) error {
	if err := s.targets.SetEnabled(symbol, enabled); err != nil {
		return err
	}

	s.alerts.Logf("hedging %s for %s", enabledWord(enabled), symbol)
	if s.bus != nil {
		s.bus.EmitTyped("hedger", &events.TargetChangedData{Symbol: symbol, Enabled: enabled})
	}
	return nil
}

// Targets returns all configured hedge targets
func (s *Service) Targets() ([]domain.HedgeTarget, error) {
	return s.targets.List()
}

// States returns snapshot copies of all per-symbol engine states
func (s *Service) States() []HedgeState {
	return s.engine.States()
}

// Alerts returns the recent order alerts, oldest first
func (s *Service) Alerts() []domain.HedgeAlert {
	return s.alerts.Alerts()
}

// LogLines returns the recent activity log, oldest first
func (s *Service) LogLines() []string {
	return s.alerts.Lines()
}

// CancelPending requests cancellation of a symbol's in-flight order
func (s *Service) CancelPending(symbol string) error {
	return s.engine.CancelPending(symbol)
}

// onOrderStatusEvent translates a feed order status event into an
// engine update
func (s *Service) onOrderStatusEvent(event *events.Event) {
	update := domain.OrderUpdate{Timestamp: event.Timestamp}
	if v, ok := event.Data["order_id"].(string); ok {
		update.OrderID = v
	}
	if v, ok := event.Data["symbol"].(string); ok {
		update.Symbol = v
	}
	if v, ok := event.Data["status"].(string); ok {
		update.Status = domain.OrderStatus(v)
	}
	if v, ok := event.Data["fill_price"].(float64); ok {
		update.FillPrice = v
	}

	if update.OrderID == "" || update.Status == "" {
		s.log.Warn().Interface("data", event.Data).Msg("Malformed order status event")
		return
	}
	s.engine.HandleOrderUpdate(update)
}

func enabledWord(enabled bool) string {
	if enabled {
		return "enabled"
	}
	return "disabled"
}
