package historical

import (
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jackleonard0102/ibtrading/internal/database"
	"github.com/jackleonard0102/ibtrading/internal/domain"
)

func openHistoryDB(t *testing.T) *database.DB {
	t.Helper()

	db, err := database.New(database.Config{
		Path:    fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name()),
		Profile: database.ProfileStandard,
		Name:    "history",
	})
	require.NoError(t, err)
	require.NoError(t, db.Migrate())
	t.Cleanup(func() { _ = db.Close() })

	return db
}

func day(offset int) time.Time {
	return time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC).AddDate(0, 0, offset)
}

func TestPriceRepositorySeriesOrder(t *testing.T) {
	db := openHistoryDB(t)
	repo := NewPriceRepository(db.Conn(), zerolog.Nop())

	// Insert out of order; Series must return oldest first
	require.NoError(t, repo.Upsert("SPY", day(2), 592.0))
	require.NoError(t, repo.Upsert("SPY", day(0), 589.5))
	require.NoError(t, repo.Upsert("SPY", day(1), 590.25))

	series, err := repo.Series("SPY", 10)
	require.NoError(t, err)
	require.Len(t, series, 3)
	assert.Equal(t, []float64{589.5, 590.25, 592.0}, series.Prices())
}

func TestPriceRepositorySeriesLimitKeepsNewest(t *testing.T) {
	db := openHistoryDB(t)
	repo := NewPriceRepository(db.Conn(), zerolog.Nop())

	for i := 0; i < 10; i++ {
		require.NoError(t, repo.Upsert("SPY", day(i), 500+float64(i)))
	}

	series, err := repo.Series("SPY", 3)
	require.NoError(t, err)
	assert.Equal(t, []float64{507, 508, 509}, series.Prices())
}

func TestPriceRepositoryUpsertReplaces(t *testing.T) {
	db := openHistoryDB(t)
	repo := NewPriceRepository(db.Conn(), zerolog.Nop())

	require.NoError(t, repo.Upsert("SPY", day(0), 589.5))
	require.NoError(t, repo.Upsert("SPY", day(0), 590.0))

	count, err := repo.Count("SPY")
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	series, err := repo.Series("SPY", 10)
	require.NoError(t, err)
	assert.Equal(t, []float64{590.0}, series.Prices())
}

func TestPriceRepositoryRejectsNonPositiveClose(t *testing.T) {
	db := openHistoryDB(t)
	repo := NewPriceRepository(db.Conn(), zerolog.Nop())

	assert.ErrorIs(t, repo.Upsert("SPY", day(0), 0), domain.ErrInvalidPrice)
	assert.ErrorIs(t, repo.Upsert("SPY", day(0), -1), domain.ErrInvalidPrice)
}

func TestPriceRepositoryUpsertSeriesSkipsBadPoints(t *testing.T) {
	db := openHistoryDB(t)
	repo := NewPriceRepository(db.Conn(), zerolog.Nop())

	series := domain.PriceSeries{
		{Timestamp: day(0), Price: 589.5},
		{Timestamp: day(1), Price: 0}, // broker gap, skipped
		{Timestamp: day(2), Price: 592.0},
	}
	require.NoError(t, repo.UpsertSeries("SPY", series))

	count, err := repo.Count("SPY")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestPriceRepositoryPrune(t *testing.T) {
	db := openHistoryDB(t)
	repo := NewPriceRepository(db.Conn(), zerolog.Nop())

	require.NoError(t, repo.Upsert("SPY", day(0), 589.5))
	require.NoError(t, repo.Upsert("SPY", day(30), 600.0))

	deleted, err := repo.Prune(day(15))
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	series, err := repo.Series("SPY", 10)
	require.NoError(t, err)
	assert.Equal(t, []float64{600.0}, series.Prices())
}

// stubFeed serves a canned close series for service tests
type stubFeed struct {
	series domain.PriceSeries
	err    error
}

func (s *stubFeed) GetPositions(symbol string) ([]domain.Position, error) { return nil, nil }
func (s *stubFeed) GetQuote(symbol string) (domain.Quote, error)          { return domain.Quote{}, nil }
func (s *stubFeed) GetOptionChain(symbol string) ([]domain.OptionQuote, error) {
	return nil, nil
}
func (s *stubFeed) GetHistoricalCloses(symbol string, days int) (domain.PriceSeries, error) {
	return s.series, s.err
}
func (s *stubFeed) IsConnected() bool { return true }

func TestServiceSyncSymbol(t *testing.T) {
	db := openHistoryDB(t)
	repo := NewPriceRepository(db.Conn(), zerolog.Nop())
	feed := &stubFeed{series: domain.PriceSeries{
		{Timestamp: day(0), Price: 589.5},
		{Timestamp: day(1), Price: 590.25},
	}}
	svc := NewService(feed, repo, zerolog.Nop())

	require.NoError(t, svc.SyncSymbol("SPY", 30))

	closes, err := svc.Closes("SPY", 10)
	require.NoError(t, err)
	assert.Equal(t, []float64{589.5, 590.25}, closes)
}

func TestServiceSyncSymbolsIsolatesFailures(t *testing.T) {
	db := openHistoryDB(t)
	repo := NewPriceRepository(db.Conn(), zerolog.Nop())
	feed := &stubFeed{err: fmt.Errorf("pacing violation")}
	svc := NewService(feed, repo, zerolog.Nop())

	err := svc.SyncSymbols([]string{"SPY", "AAPL"}, 30)

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "2 of 2")
}
