package hedger

import (
	"database/sql"
	"fmt"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jackleonard0102/ibtrading/internal/database"
	"github.com/jackleonard0102/ibtrading/internal/domain"
)

func openHedgeDB(t *testing.T) *database.DB {
	t.Helper()

	db, err := database.New(database.Config{
		Path:    fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name()),
		Profile: database.ProfileStandard,
		Name:    "hedge",
	})
	require.NoError(t, err)
	require.NoError(t, db.Migrate())
	t.Cleanup(func() { _ = db.Close() })

	return db
}

func TestTargetRepositoryUpsertAndGet(t *testing.T) {
	db := openHedgeDB(t)
	repo := NewTargetRepository(db.Conn(), zerolog.Nop())

	target := domain.HedgeTarget{
		Symbol: "AAPL", TargetDelta: 0, Tolerance: 50, MaxOrderQty: 500, Enabled: true,
	}
	require.NoError(t, repo.Upsert(target))

	got, err := repo.Get("AAPL")
	require.NoError(t, err)
	assert.Equal(t, target.Symbol, got.Symbol)
	assert.Equal(t, target.Tolerance, got.Tolerance)
	assert.Equal(t, target.MaxOrderQty, got.MaxOrderQty)
	assert.True(t, got.Enabled)
	assert.False(t, got.UpdatedAt.IsZero())

	// Upsert replaces in place
	target.Tolerance = 25
	require.NoError(t, repo.Upsert(target))
	got, err = repo.Get("AAPL")
	require.NoError(t, err)
	assert.Equal(t, 25.0, got.Tolerance)

	targets, err := repo.List()
	require.NoError(t, err)
	assert.Len(t, targets, 1)
}

func TestTargetRepositoryGetMissing(t *testing.T) {
	db := openHedgeDB(t)
	repo := NewTargetRepository(db.Conn(), zerolog.Nop())

	_, err := repo.Get("TSLA")
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestTargetRepositorySetEnabled(t *testing.T) {
	db := openHedgeDB(t)
	repo := NewTargetRepository(db.Conn(), zerolog.Nop())

	require.NoError(t, repo.Upsert(domain.HedgeTarget{
		Symbol: "AAPL", Tolerance: 50, MaxOrderQty: 500, Enabled: false,
	}))

	enabled, err := repo.ListEnabled()
	require.NoError(t, err)
	assert.Empty(t, enabled)

	require.NoError(t, repo.SetEnabled("AAPL", true))
	enabled, err = repo.ListEnabled()
	require.NoError(t, err)
	assert.Len(t, enabled, 1)

	// Unknown symbol is a configuration error
	assert.ErrorIs(t, repo.SetEnabled("TSLA", true), domain.ErrConfiguration)
}

func TestOrderRepositoryLifecycle(t *testing.T) {
	db := openHedgeDB(t)
	repo := NewOrderRepository(db.Conn(), zerolog.Nop())

	require.NoError(t, repo.Insert(HedgeOrder{
		OrderID:     "ord-1",
		Symbol:      "AAPL",
		Side:        domain.SideSell,
		Quantity:    120,
		NetDelta:    120,
		TargetDelta: 0,
		Status:      domain.OrderSubmitted,
	}))

	pending, err := repo.CountPending()
	require.NoError(t, err)
	assert.Equal(t, 1, pending)

	require.NoError(t, repo.UpdateStatus("ord-1", domain.OrderFilled, 189.50))

	pending, err = repo.CountPending()
	require.NoError(t, err)
	assert.Equal(t, 0, pending)

	orders, err := repo.ListRecent(10)
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, domain.OrderFilled, orders[0].Status)
	require.NotNil(t, orders[0].FillPrice)
	assert.Equal(t, 189.50, *orders[0].FillPrice)
}
