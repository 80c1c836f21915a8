package server

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/jackleonard0102/ibtrading/internal/domain"
)

// VolatilityProvider is the volatility surface the API exposes.
// Implemented by the volatility service.
type VolatilityProvider interface {
	Latest(symbol string) (*domain.VolatilitySnapshot, bool, error)
	Refresh(symbol string) (*domain.VolatilitySnapshot, error)
	History(symbol string, window, limit int) ([]float64, error)
}

// VolatilityHandlers handles volatility HTTP requests
type VolatilityHandlers struct {
	service VolatilityProvider
	log     zerolog.Logger
}

// NewVolatilityHandlers creates a new volatility handlers instance
func NewVolatilityHandlers(service VolatilityProvider, log zerolog.Logger) *VolatilityHandlers {
	return &VolatilityHandlers{
		service: service,
		log:     log.With().Str("handler", "volatility").Logger(),
	}
}

// RegisterRoutes registers volatility routes on the given router
func (h *VolatilityHandlers) RegisterRoutes(r chi.Router) {
	r.Route("/volatility", func(r chi.Router) {
		r.Get("/{symbol}", h.HandleLatest)
		r.Post("/{symbol}/refresh", h.HandleRefresh)
		r.Get("/{symbol}/history", h.HandleHistory)
	})
}

// HandleLatest returns the cached volatility snapshot for a symbol
// GET /api/volatility/{symbol}
func (h *VolatilityHandlers) HandleLatest(w http.ResponseWriter, r *http.Request) {
	symbol := chi.URLParam(r, "symbol")

	snapshot, fresh, err := h.service.Latest(symbol)
	if err != nil {
		h.log.Error().Err(err).Str("symbol", symbol).Msg("Failed to read volatility snapshot")
		http.Error(w, "Failed to read volatility snapshot", http.StatusInternalServerError)
		return
	}
	if snapshot == nil {
		http.Error(w, "No volatility snapshot for symbol", http.StatusNotFound)
		return
	}

	respond(h.log, w, http.StatusOK, map[string]interface{}{
		"snapshot": snapshot,
		"fresh":    fresh,
	})
}

// HandleRefresh recomputes a symbol's volatility snapshot on demand
// POST /api/volatility/{symbol}/refresh
func (h *VolatilityHandlers) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	symbol := chi.URLParam(r, "symbol")

	snapshot, err := h.service.Refresh(symbol)
	if err != nil {
		h.log.Error().Err(err).Str("symbol", symbol).Msg("Volatility refresh failed")
		http.Error(w, "Volatility refresh failed", http.StatusInternalServerError)
		return
	}

	respond(h.log, w, http.StatusOK, map[string]interface{}{
		"snapshot": snapshot,
	})
}

// HandleHistory returns the rolling realized vol series for charting
// GET /api/volatility/{symbol}/history?window=30&limit=252
func (h *VolatilityHandlers) HandleHistory(w http.ResponseWriter, r *http.Request) {
	symbol := chi.URLParam(r, "symbol")

	window := queryInt(r, "window", 30)
	limit := queryInt(r, "limit", 252)

	values, err := h.service.History(symbol, window, limit)
	if err != nil {
		h.log.Error().Err(err).Str("symbol", symbol).Msg("Failed to compute vol history")
		http.Error(w, "Failed to compute vol history", http.StatusInternalServerError)
		return
	}

	respond(h.log, w, http.StatusOK, map[string]interface{}{
		"symbol": symbol,
		"window": window,
		"values": values,
		"count":  len(values),
	})
}

// queryInt parses a positive integer query parameter with a fallback
func queryInt(r *http.Request, key string, fallback int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}
