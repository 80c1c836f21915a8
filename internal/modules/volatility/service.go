package volatility

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/jackleonard0102/ibtrading/internal/domain"
	"github.com/jackleonard0102/ibtrading/internal/events"
)

const hoursPerYear = 24 * 365.25

// ClosesSource supplies locally stored close series. Implemented by
// the historical service.
type ClosesSource interface {
	Closes(symbol string, limit int) ([]float64, error)
}

// SnapshotStore is the cache boundary for volatility snapshots.
// Implemented by SnapshotRepository.
type SnapshotStore interface {
	Put(snapshot domain.VolatilitySnapshot, ttl time.Duration) error
	Get(symbol string) (*domain.VolatilitySnapshot, bool, error)
}

// Config tunes the volatility service
type Config struct {
	RiskFreeRate        float64
	AnnualizationFactor float64       // trading periods per year, 252 for daily closes
	RVWindowDays        int           // closes used per realized vol estimate
	SnapshotTTL         time.Duration // freshness horizon for cached snapshots
}

// Service orchestrates the pure estimators against live market data:
// on each refresh it solves ATM implied vol from the option chain,
// estimates realized vol from stored closes, and caches the combined
// snapshot for the presentation layer.
type Service struct {
	md     domain.MarketDataClient
	closes ClosesSource
	cache  SnapshotStore
	bus    *events.Bus
	cfg    Config
	log    zerolog.Logger
}

// NewService creates a new volatility service
func NewService(md domain.MarketDataClient, closes ClosesSource, cache SnapshotStore, bus *events.Bus, cfg Config, log zerolog.Logger) *Service {
	if cfg.AnnualizationFactor <= 0 {
		cfg.AnnualizationFactor = 252
	}
	if cfg.RVWindowDays <= 0 {
		cfg.RVWindowDays = 30
	}
	if cfg.SnapshotTTL <= 0 {
		cfg.SnapshotTTL = 5 * time.Minute
	}
	return &Service{
		md:     md,
		closes: closes,
		cache:  cache,
		bus:    bus,
		cfg:    cfg,
		log:    log.With().Str("component", "volatility_service").Logger(),
	}
}

// Refresh recomputes and caches a symbol's volatility snapshot. IV and
// RV fail independently: a missing option chain still produces a
// snapshot with realized vol, and vice versa. Only the failure of both
// is an error.
func (s *Service) Refresh(symbol string) (*domain.VolatilitySnapshot, error) {
	snapshot := domain.VolatilitySnapshot{
		ComputedAt: time.Now(),
		Symbol:     symbol,
	}

	quote, err := s.md.GetQuote(symbol)
	if err == nil {
		snapshot.UnderlyingPrice = quote.Price()
	} else {
		s.log.Warn().Err(err).Str("symbol", symbol).Msg("No underlying quote for refresh")
	}

	var ivErr error
	if snapshot.UnderlyingPrice > 0 {
		ivErr = s.solveATMImpliedVol(&snapshot)
	} else {
		ivErr = fmt.Errorf("%w: no underlying price for %s", domain.ErrInvalidPrice, symbol)
	}

	rvErr := s.estimateRealizedVol(&snapshot)

	if ivErr != nil && rvErr != nil {
		return nil, fmt.Errorf("volatility refresh failed for %s: iv: %v; rv: %v", symbol, ivErr, rvErr)
	}
	if ivErr != nil {
		s.log.Debug().Err(ivErr).Str("symbol", symbol).Msg("Implied vol unavailable")
	}
	if rvErr != nil {
		s.log.Debug().Err(rvErr).Str("symbol", symbol).Msg("Realized vol unavailable")
	}

	if s.cache != nil {
		if err := s.cache.Put(snapshot, s.cfg.SnapshotTTL); err != nil {
			s.log.Error().Err(err).Str("symbol", symbol).Msg("Failed to cache snapshot")
		}
	}

	if s.bus != nil {
		s.bus.EmitTyped("volatility", &events.VolatilityUpdatedData{
			Symbol:      symbol,
			ImpliedVol:  snapshot.ImpliedVol,
			RealizedVol: snapshot.RealizedVol,
		})
	}

	return &snapshot, nil
}

// solveATMImpliedVol picks the nearest expiry, the strike closest to
// spot, and averages the call and put implied vols at that strike
func (s *Service) solveATMImpliedVol(snapshot *domain.VolatilitySnapshot) error {
	chain, err := s.md.GetOptionChain(snapshot.Symbol)
	if err != nil {
		return fmt.Errorf("failed to fetch option chain: %w", err)
	}
	if len(chain) == 0 {
		return fmt.Errorf("%w: empty option chain for %s", domain.ErrInsufficientData, snapshot.Symbol)
	}

	call, put, ok := selectATMPair(chain, snapshot.UnderlyingPrice, snapshot.ComputedAt)
	if !ok {
		return fmt.Errorf("%w: no usable ATM contracts for %s", domain.ErrInsufficientData, snapshot.Symbol)
	}

	var (
		ivs    []float64
		strike float64
		expiry time.Time
	)
	for _, oq := range []*domain.OptionQuote{call, put} {
		if oq == nil {
			continue
		}
		strike = oq.Strike
		expiry = oq.Expiry
		tte := oq.Expiry.Sub(snapshot.ComputedAt).Hours() / hoursPerYear
		iv, err := SolveIV(domain.VolatilityQuote{
			Kind:            oq.Kind,
			UnderlyingPrice: snapshot.UnderlyingPrice,
			Strike:          oq.Strike,
			TimeToExpiry:    tte,
			RiskFreeRate:    s.cfg.RiskFreeRate,
			MarketPrice:     oq.Price(),
		})
		if err != nil {
			s.log.Debug().Err(err).
				Str("symbol", snapshot.Symbol).
				Str("kind", string(oq.Kind)).
				Float64("strike", oq.Strike).
				Msg("IV solve failed for leg")
			continue
		}
		ivs = append(ivs, iv)
	}

	if len(ivs) == 0 {
		return fmt.Errorf("%w: both ATM legs failed for %s", domain.ErrDidNotConverge, snapshot.Symbol)
	}

	avg := 0.0
	for _, iv := range ivs {
		avg += iv
	}
	avg /= float64(len(ivs))

	snapshot.ImpliedVol = &avg
	snapshot.ATMStrike = strike
	snapshot.Expiry = expiry
	return nil
}

func (s *Service) estimateRealizedVol(snapshot *domain.VolatilitySnapshot) error {
	if s.closes == nil {
		return fmt.Errorf("%w: no close series source", domain.ErrInsufficientData)
	}
	closes, err := s.closes.Closes(snapshot.Symbol, s.cfg.RVWindowDays)
	if err != nil {
		return fmt.Errorf("failed to load closes: %w", err)
	}

	rv, err := RealizedVol(closes, s.cfg.AnnualizationFactor)
	if err != nil {
		return err
	}
	snapshot.RealizedVol = &rv
	return nil
}

// selectATMPair returns the call and put closest to spot at the
// nearest future expiry. Either leg may be nil when the chain only
// carries one side.
func selectATMPair(chain []domain.OptionQuote, spot float64, now time.Time) (*domain.OptionQuote, *domain.OptionQuote, bool) {
	future := make([]domain.OptionQuote, 0, len(chain))
	for _, oq := range chain {
		if oq.Expiry.After(now) && oq.Strike > 0 && oq.Price() > 0 {
			future = append(future, oq)
		}
	}
	if len(future) == 0 {
		return nil, nil, false
	}

	sort.Slice(future, func(i, j int) bool {
		if !future[i].Expiry.Equal(future[j].Expiry) {
			return future[i].Expiry.Before(future[j].Expiry)
		}
		return math.Abs(future[i].Strike-spot) < math.Abs(future[j].Strike-spot)
	})

	nearest := future[0].Expiry
	atmStrike := future[0].Strike

	var call, put *domain.OptionQuote
	for i := range future {
		oq := &future[i]
		if !oq.Expiry.Equal(nearest) || oq.Strike != atmStrike {
			continue
		}
		switch oq.Kind {
		case domain.OptionCall:
			if call == nil {
				call = oq
			}
		case domain.OptionPut:
			if put == nil {
				put = oq
			}
		}
	}
	return call, put, call != nil || put != nil
}

// Latest returns the cached snapshot for a symbol and whether it is
// still fresh
func (s *Service) Latest(symbol string) (*domain.VolatilitySnapshot, bool, error) {
	if s.cache == nil {
		return nil, false, nil
	}
	return s.cache.Get(symbol)
}

// Sigma returns the volatility figure to price option deltas with:
// implied vol when the cache holds one, realized vol as fallback.
// Satisfies the hedger's SigmaSource.
func (s *Service) Sigma(symbol string) (float64, bool) {
	snapshot, _, err := s.Latest(symbol)
	if err != nil || snapshot == nil {
		return 0, false
	}
	if snapshot.ImpliedVol != nil && *snapshot.ImpliedVol > 0 {
		return *snapshot.ImpliedVol, true
	}
	if snapshot.RealizedVol != nil && *snapshot.RealizedVol > 0 {
		return *snapshot.RealizedVol, true
	}
	return 0, false
}

// History returns the rolling realized vol series for the dashboard
// chart, aligned to the symbol's stored closes
func (s *Service) History(symbol string, window, limit int) ([]float64, error) {
	if s.closes == nil {
		return nil, fmt.Errorf("%w: no close series source", domain.ErrInsufficientData)
	}
	closes, err := s.closes.Closes(symbol, limit)
	if err != nil {
		return nil, err
	}
	return RollingRealizedVol(closes, window, s.cfg.AnnualizationFactor)
}
