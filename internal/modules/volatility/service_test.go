package volatility

import (
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jackleonard0102/ibtrading/internal/database"
	"github.com/jackleonard0102/ibtrading/internal/domain"
	"github.com/jackleonard0102/ibtrading/internal/events"
)

// stubMarketData serves canned quotes and chains
type stubMarketData struct {
	quote    domain.Quote
	quoteErr error
	chain    []domain.OptionQuote
	chainErr error
}

func (s *stubMarketData) GetPositions(symbol string) ([]domain.Position, error) { return nil, nil }
func (s *stubMarketData) GetQuote(symbol string) (domain.Quote, error) {
	return s.quote, s.quoteErr
}
func (s *stubMarketData) GetOptionChain(symbol string) ([]domain.OptionQuote, error) {
	return s.chain, s.chainErr
}
func (s *stubMarketData) GetHistoricalCloses(symbol string, days int) (domain.PriceSeries, error) {
	return nil, nil
}
func (s *stubMarketData) IsConnected() bool { return true }

type stubCloses struct {
	closes []float64
	err    error
}

func (s *stubCloses) Closes(symbol string, limit int) ([]float64, error) {
	return s.closes, s.err
}

func openCacheDB(t *testing.T) *database.DB {
	t.Helper()

	db, err := database.New(database.Config{
		Path:    fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name()),
		Profile: database.ProfileCache,
		Name:    "cache",
	})
	require.NoError(t, err)
	require.NoError(t, db.Migrate())
	t.Cleanup(func() { _ = db.Close() })

	return db
}

// chainForSigma builds an ATM call+put pair priced at a known sigma
func chainForSigma(spot float64, sigma float64, expiry time.Time, now time.Time) []domain.OptionQuote {
	tte := expiry.Sub(now).Hours() / hoursPerYear
	callPremium := BlackScholesPrice(domain.OptionCall, spot, spot, tte, 0.05, sigma)
	putPremium := BlackScholesPrice(domain.OptionPut, spot, spot, tte, 0.05, sigma)

	return []domain.OptionQuote{
		{Underlying: "AAPL", Kind: domain.OptionCall, Strike: spot, Expiry: expiry, Last: callPremium},
		{Underlying: "AAPL", Kind: domain.OptionPut, Strike: spot, Expiry: expiry, Last: putPremium},
		// Far expiry noise that must not be selected
		{Underlying: "AAPL", Kind: domain.OptionCall, Strike: spot + 10, Expiry: expiry.AddDate(0, 2, 0), Last: 25},
	}
}

func testCloses() []float64 {
	closes := make([]float64, 0, 31)
	price := 190.0
	for i := 0; i < 31; i++ {
		if i%2 == 0 {
			price *= 1.01
		} else {
			price *= 0.995
		}
		closes = append(closes, price)
	}
	return closes
}

func TestServiceRefreshComputesIVAndRV(t *testing.T) {
	now := time.Now()
	expiry := now.AddDate(0, 1, 0)
	md := &stubMarketData{
		quote: domain.Quote{Symbol: "AAPL", Last: 190},
		chain: chainForSigma(190, 0.30, expiry, now),
	}
	db := openCacheDB(t)
	cache := NewSnapshotRepository(db.Conn(), zerolog.Nop())
	svc := NewService(md, &stubCloses{closes: testCloses()}, cache, events.NewBus(zerolog.Nop()),
		Config{RiskFreeRate: 0.05}, zerolog.Nop())

	snapshot, err := svc.Refresh("AAPL")

	require.NoError(t, err)
	require.NotNil(t, snapshot.ImpliedVol)
	assert.InDelta(t, 0.30, *snapshot.ImpliedVol, 1e-3)
	assert.Equal(t, 190.0, snapshot.ATMStrike)
	require.NotNil(t, snapshot.RealizedVol)
	assert.Greater(t, *snapshot.RealizedVol, 0.0)
	assert.Equal(t, 190.0, snapshot.UnderlyingPrice)

	// Cached and fresh
	cached, fresh, err := svc.Latest("AAPL")
	require.NoError(t, err)
	require.NotNil(t, cached)
	assert.True(t, fresh)
	assert.InDelta(t, *snapshot.ImpliedVol, *cached.ImpliedVol, 1e-9)
}

func TestServiceRefreshSurvivesMissingChain(t *testing.T) {
	md := &stubMarketData{
		quote:    domain.Quote{Symbol: "AAPL", Last: 190},
		chainErr: fmt.Errorf("no option permissions"),
	}
	svc := NewService(md, &stubCloses{closes: testCloses()}, nil, nil,
		Config{RiskFreeRate: 0.05}, zerolog.Nop())

	snapshot, err := svc.Refresh("AAPL")

	require.NoError(t, err)
	assert.Nil(t, snapshot.ImpliedVol)
	require.NotNil(t, snapshot.RealizedVol)
}

func TestServiceRefreshSurvivesMissingHistory(t *testing.T) {
	now := time.Now()
	md := &stubMarketData{
		quote: domain.Quote{Symbol: "AAPL", Last: 190},
		chain: chainForSigma(190, 0.30, now.AddDate(0, 1, 0), now),
	}
	svc := NewService(md, &stubCloses{err: fmt.Errorf("empty table")}, nil, nil,
		Config{RiskFreeRate: 0.05}, zerolog.Nop())

	snapshot, err := svc.Refresh("AAPL")

	require.NoError(t, err)
	require.NotNil(t, snapshot.ImpliedVol)
	assert.Nil(t, snapshot.RealizedVol)
}

func TestServiceRefreshFailsWhenBothFail(t *testing.T) {
	md := &stubMarketData{
		quoteErr: fmt.Errorf("feed down"),
		chainErr: fmt.Errorf("feed down"),
	}
	svc := NewService(md, &stubCloses{err: fmt.Errorf("empty table")}, nil, nil,
		Config{RiskFreeRate: 0.05}, zerolog.Nop())

	_, err := svc.Refresh("AAPL")

	assert.Error(t, err)
}

func TestServiceSigmaPrefersImpliedVol(t *testing.T) {
	now := time.Now()
	md := &stubMarketData{
		quote: domain.Quote{Symbol: "AAPL", Last: 190},
		chain: chainForSigma(190, 0.30, now.AddDate(0, 1, 0), now),
	}
	db := openCacheDB(t)
	cache := NewSnapshotRepository(db.Conn(), zerolog.Nop())
	svc := NewService(md, &stubCloses{closes: testCloses()}, cache, nil,
		Config{RiskFreeRate: 0.05}, zerolog.Nop())

	_, err := svc.Refresh("AAPL")
	require.NoError(t, err)

	sigma, ok := svc.Sigma("AAPL")
	require.True(t, ok)
	assert.InDelta(t, 0.30, sigma, 1e-3)

	_, ok = svc.Sigma("TSLA")
	assert.False(t, ok)
}

func TestServiceHistory(t *testing.T) {
	svc := NewService(&stubMarketData{}, &stubCloses{closes: testCloses()}, nil, nil,
		Config{}, zerolog.Nop())

	history, err := svc.History("AAPL", 10, 31)

	require.NoError(t, err)
	assert.Len(t, history, 30)
	assert.Greater(t, history[len(history)-1], 0.0)
}

func TestSelectATMPairPicksNearestExpiryAndStrike(t *testing.T) {
	now := time.Now()
	near := now.AddDate(0, 0, 14)
	far := now.AddDate(0, 3, 0)
	chain := []domain.OptionQuote{
		{Kind: domain.OptionCall, Strike: 180, Expiry: near, Last: 12},
		{Kind: domain.OptionCall, Strike: 190, Expiry: near, Last: 4.2},
		{Kind: domain.OptionPut, Strike: 190, Expiry: near, Last: 3.9},
		{Kind: domain.OptionCall, Strike: 190, Expiry: far, Last: 9.5},
		// Expired contract, ignored
		{Kind: domain.OptionPut, Strike: 190, Expiry: now.AddDate(0, 0, -1), Last: 1},
	}

	call, put, ok := selectATMPair(chain, 191, now)

	require.True(t, ok)
	require.NotNil(t, call)
	require.NotNil(t, put)
	assert.Equal(t, 190.0, call.Strike)
	assert.Equal(t, near, call.Expiry)
	assert.Equal(t, 190.0, put.Strike)
}

func TestSnapshotRepositoryRoundTrip(t *testing.T) {
	db := openCacheDB(t)
	repo := NewSnapshotRepository(db.Conn(), zerolog.Nop())

	iv := 0.28
	snapshot := domain.VolatilitySnapshot{
		ComputedAt:      time.Now().Truncate(time.Second),
		Symbol:          "AAPL",
		ImpliedVol:      &iv,
		UnderlyingPrice: 190,
		ATMStrike:       190,
	}
	require.NoError(t, repo.Put(snapshot, time.Minute))

	got, fresh, err := repo.Get("AAPL")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, fresh)
	assert.Equal(t, "AAPL", got.Symbol)
	require.NotNil(t, got.ImpliedVol)
	assert.Equal(t, 0.28, *got.ImpliedVol)
}

func TestSnapshotRepositoryStaleAfterTTL(t *testing.T) {
	db := openCacheDB(t)
	repo := NewSnapshotRepository(db.Conn(), zerolog.Nop())

	snapshot := domain.VolatilitySnapshot{
		ComputedAt: time.Now().Add(-10 * time.Minute),
		Symbol:     "AAPL",
	}
	require.NoError(t, repo.Put(snapshot, time.Minute))

	got, fresh, err := repo.Get("AAPL")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.False(t, fresh)

	pruned, err := repo.PruneExpired()
	require.NoError(t, err)
	assert.Equal(t, int64(1), pruned)
}

func TestSnapshotRepositoryMissingSymbol(t *testing.T) {
	db := openCacheDB(t)
	repo := NewSnapshotRepository(db.Conn(), zerolog.Nop())

	got, fresh, err := repo.Get("TSLA")
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.False(t, fresh)
}
