package historical

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/jackleonard0102/ibtrading/internal/domain"
)

// retentionDays keeps roughly two years of daily closes, enough for
// any realized volatility window the dashboard offers
const retentionDays = 2 * 365

// Service keeps the local close series in sync with the broker's
// historical data
type Service struct {
	md   domain.MarketDataClient
	repo *PriceRepository
	log  zerolog.Logger
}

// NewService creates a new historical data service
func NewService(md domain.MarketDataClient, repo *PriceRepository, log zerolog.Logger) *Service {
	return &Service{
		md:   md,
		repo: repo,
		log:  log.With().Str("component", "historical_service").Logger(),
	}
}

// SyncSymbol pulls the last `days` of closes from the broker feed and
// stores them locally
func (s *Service) SyncSymbol(symbol string, days int) error {
	series, err := s.md.GetHistoricalCloses(symbol, days)
	if err != nil {
		return fmt.Errorf("failed to fetch historical closes for %s: %w", symbol, err)
	}
	if len(series) == 0 {
		s.log.Warn().Str("symbol", symbol).Msg("Broker returned no historical closes")
		return nil
	}

	if err := s.repo.UpsertSeries(symbol, series); err != nil {
		return err
	}

	s.log.Debug().Str("symbol", symbol).Int("points", len(series)).Msg("Synced close series")
	return nil
}

// SyncSymbols syncs every given symbol, isolating per-symbol failures
func (s *Service) SyncSymbols(symbols []string, days int) error {
	var failures int
	for _, symbol := range symbols {
		if err := s.SyncSymbol(symbol, days); err != nil {
			failures++
			s.log.Error().Err(err).Str("symbol", symbol).Msg("History sync failed")
		}
	}
	if failures > 0 {
		return fmt.Errorf("history sync: %d of %d symbols failed", failures, len(symbols))
	}
	return nil
}

// Prune drops closes beyond the retention horizon
func (s *Service) Prune() error {
	deleted, err := s.repo.Prune(time.Now().AddDate(0, 0, -retentionDays))
	if err != nil {
		return err
	}
	if deleted > 0 {
		s.log.Info().Int64("rows", deleted).Msg("Pruned old price history")
	}
	return nil
}

// Closes returns the most recent close prices for a symbol, oldest
// first
func (s *Service) Closes(symbol string, limit int) ([]float64, error) {
	series, err := s.repo.Series(symbol, limit)
	if err != nil {
		return nil, err
	}
	return series.Prices(), nil
}
