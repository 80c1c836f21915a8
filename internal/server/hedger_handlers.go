package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/jackleonard0102/ibtrading/internal/domain"
	"github.com/jackleonard0102/ibtrading/internal/modules/hedger"
)

// HedgeController is the hedging surface the API exposes. Implemented
// by the hedger service.
type HedgeController interface {
	States() []hedger.HedgeState
	Alerts() []domain.HedgeAlert
	LogLines() []string
	Targets() ([]domain.HedgeTarget, error)
	UpsertTarget(target domain.HedgeTarget) error
	StartSymbol(symbol string) error
	StopSymbol(symbol string) error
	CancelPending(symbol string) error
}

// HedgerHandlers handles hedging HTTP requests
type HedgerHandlers struct {
	service HedgeController
	log     zerolog.Logger
}

// NewHedgerHandlers creates a new hedger handlers instance
func NewHedgerHandlers(service HedgeController, log zerolog.Logger) *HedgerHandlers {
	return &HedgerHandlers{
		service: service,
		log:     log.With().Str("handler", "hedger").Logger(),
	}
}

// RegisterRoutes registers hedger routes on the given router
func (h *HedgerHandlers) RegisterRoutes(r chi.Router) {
	r.Route("/hedger", func(r chi.Router) {
		r.Get("/state", h.HandleState)
		r.Get("/alerts", h.HandleAlerts)
		r.Get("/log", h.HandleLog)
		r.Get("/targets", h.HandleListTargets)
		r.Post("/targets", h.HandleUpsertTarget)
		r.Post("/{symbol}/start", h.HandleStart)
		r.Post("/{symbol}/stop", h.HandleStop)
		r.Post("/{symbol}/cancel", h.HandleCancel)
	})
}

// HandleState returns the per-symbol engine states
// GET /api/hedger/state
func (h *HedgerHandlers) HandleState(w http.ResponseWriter, r *http.Request) {
	states := h.service.States()
	respond(h.log, w, http.StatusOK, map[string]interface{}{
		"states": states,
		"count":  len(states),
	})
}

// HandleAlerts returns recent order alerts, oldest first
// GET /api/hedger/alerts
func (h *HedgerHandlers) HandleAlerts(w http.ResponseWriter, r *http.Request) {
	alerts := h.service.Alerts()
	respond(h.log, w, http.StatusOK, map[string]interface{}{
		"alerts": alerts,
		"count":  len(alerts),
	})
}

// HandleLog returns the recent activity log, oldest first
// GET /api/hedger/log
func (h *HedgerHandlers) HandleLog(w http.ResponseWriter, r *http.Request) {
	lines := h.service.LogLines()
	respond(h.log, w, http.StatusOK, map[string]interface{}{
		"lines": lines,
		"count": len(lines),
	})
}

// HandleListTargets returns all configured hedge targets
// GET /api/hedger/targets
func (h *HedgerHandlers) HandleListTargets(w http.ResponseWriter, r *http.Request) {
	targets, err := h.service.Targets()
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list hedge targets")
		http.Error(w, "Failed to list hedge targets", http.StatusInternalServerError)
		return
	}
	respond(h.log, w, http.StatusOK, map[string]interface{}{
		"targets": targets,
		"count":   len(targets),
	})
}

// HandleUpsertTarget creates or replaces a hedge target
// POST /api/hedger/targets
func (h *HedgerHandlers) HandleUpsertTarget(w http.ResponseWriter, r *http.Request) {
	var target domain.HedgeTarget
	if err := json.NewDecoder(r.Body).Decode(&target); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if err := h.service.UpsertTarget(target); err != nil {
		if errors.Is(err, domain.ErrConfiguration) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		h.log.Error().Err(err).Str("symbol", target.Symbol).Msg("Failed to upsert hedge target")
		http.Error(w, "Failed to store hedge target", http.StatusInternalServerError)
		return
	}

	respond(h.log, w, http.StatusOK, map[string]interface{}{
		"symbol": target.Symbol,
		"status": "stored",
	})
}

// HandleStart enables hedging for a configured symbol
// POST /api/hedger/{symbol}/start
func (h *HedgerHandlers) HandleStart(w http.ResponseWriter, r *http.Request) {
	h.setEnabled(w, r, true)
}

// HandleStop disables hedging for a symbol
// POST /api/hedger/{symbol}/stop
func (h *HedgerHandlers) HandleStop(w http.ResponseWriter, r *http.Request) {
	h.setEnabled(w, r, false)
}

func (h *HedgerHandlers) setEnabled(w http.ResponseWriter, r *http.Request, enabled bool) {
	symbol := chi.URLParam(r, "symbol")

	var err error
	if enabled {
		err = h.service.StartSymbol(symbol)
	} else {
		err = h.service.StopSymbol(symbol)
	}
	if err != nil {
		if errors.Is(err, domain.ErrConfiguration) {
			http.Error(w, "Unknown hedge target", http.StatusNotFound)
			return
		}
		h.log.Error().Err(err).Str("symbol", symbol).Bool("enabled", enabled).Msg("Failed to toggle hedging")
		http.Error(w, "Failed to toggle hedging", http.StatusInternalServerError)
		return
	}

	respond(h.log, w, http.StatusOK, map[string]interface{}{
		"symbol":  symbol,
		"enabled": enabled,
	})
}

// HandleCancel requests cancellation of a symbol's pending hedge order
// POST /api/hedger/{symbol}/cancel
func (h *HedgerHandlers) HandleCancel(w http.ResponseWriter, r *http.Request) {
	symbol := chi.URLParam(r, "symbol")

	if err := h.service.CancelPending(symbol); err != nil {
		h.log.Warn().Err(err).Str("symbol", symbol).Msg("Cancel request rejected")
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}

	respond(h.log, w, http.StatusOK, map[string]interface{}{
		"symbol": symbol,
		"status": "cancel_requested",
	})
}
