package volatility

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jackleonard0102/ibtrading/internal/domain"
)

func TestRealizedVolKnownValue(t *testing.T) {
	// Two returns of +/-ln(1.1), mean zero, so the sample deviation
	// is sqrt(2)*ln(1.1)
	closes := []float64{100, 110, 100}

	rv, err := RealizedVol(closes, 252)

	require.NoError(t, err)
	expected := math.Sqrt(2) * math.Log(1.1) * math.Sqrt(252)
	assert.InDelta(t, expected, rv, 1e-9)
}

func TestRealizedVolConstantSeriesIsZero(t *testing.T) {
	rv, err := RealizedVol([]float64{100, 100, 100, 100}, 252)

	require.NoError(t, err)
	assert.Equal(t, 0.0, rv)
}

func TestRealizedVolGeometricSeriesIsZero(t *testing.T) {
	// Identical log returns have zero variance even though prices move
	rv, err := RealizedVol([]float64{100, 110, 121, 133.1}, 252)

	require.NoError(t, err)
	assert.InDelta(t, 0.0, rv, 1e-12)
}

func TestRealizedVolScaleInvariance(t *testing.T) {
	closes := []float64{100, 102, 99, 104, 101, 103}
	scaled := make([]float64, len(closes))
	for i, p := range closes {
		scaled[i] = p * 1000
	}

	rv1, err1 := RealizedVol(closes, 252)
	rv2, err2 := RealizedVol(scaled, 252)

	require.NoError(t, err1)
	require.NoError(t, err2)
	assert.InDelta(t, rv1, rv2, 1e-12)
}

func TestRealizedVolNonPositivePrice(t *testing.T) {
	_, err := RealizedVol([]float64{100, 0, 101}, 252)
	assert.ErrorIs(t, err, domain.ErrInvalidPrice)

	_, err = RealizedVol([]float64{100, -5, 101}, 252)
	assert.ErrorIs(t, err, domain.ErrInvalidPrice)
}

func TestRealizedVolInsufficientData(t *testing.T) {
	_, err := RealizedVol([]float64{100}, 252)
	assert.ErrorIs(t, err, domain.ErrInsufficientData)

	// Two prices give a single return, which has no sample deviation
	_, err = RealizedVol([]float64{100, 101}, 252)
	assert.ErrorIs(t, err, domain.ErrInsufficientData)
}

func TestRealizedVolInvalidAnnualizationFactor(t *testing.T) {
	_, err := RealizedVol([]float64{100, 101, 102}, 0)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestRealizedVolRejectsBadTick(t *testing.T) {
	// Forty quiet days with one 50% spike-and-revert in the middle.
	// The spike returns are far beyond four sigma of the quiet noise
	// and must not dominate the estimate.
	closes := make([]float64, 0, 43)
	price := 100.0
	for i := 0; i < 20; i++ {
		price *= 1.001
		closes = append(closes, price)
	}
	closes = append(closes, price*1.5, price)
	for i := 0; i < 20; i++ {
		price *= 0.999
		closes = append(closes, price)
	}

	rv, err := RealizedVol(closes, 252)

	require.NoError(t, err)
	assert.Less(t, rv, 0.5, "bad tick should be filtered, not annualized")
}

func TestRealizedVolCappedAtFiveHundredPercent(t *testing.T) {
	// Alternating 10x moves: every return is +/-ln(10), symmetric, so
	// nothing is four sigma from the mean and nothing gets filtered
	closes := []float64{1, 10, 1, 10, 1, 10, 1, 10}

	rv, err := RealizedVol(closes, 252)

	require.NoError(t, err)
	assert.Equal(t, maxRealizedVol, rv)
}

func TestRollingRealizedVol(t *testing.T) {
	closes := []float64{100, 102, 99, 104, 101, 103, 100, 105, 102, 104, 101}

	rolling, err := RollingRealizedVol(closes, 5, 252)

	require.NoError(t, err)
	// One entry per return
	require.Len(t, rolling, len(closes)-1)
	// Entries before the window fills are zero, the rest positive
	for i := 0; i < 4; i++ {
		assert.Equal(t, 0.0, rolling[i])
	}
	for i := 4; i < len(rolling); i++ {
		assert.Greater(t, rolling[i], 0.0)
	}
}

func TestRollingRealizedVolErrors(t *testing.T) {
	_, err := RollingRealizedVol([]float64{100, 101, 102}, 1, 252)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = RollingRealizedVol([]float64{100, 101, 102}, 5, 252)
	assert.ErrorIs(t, err, domain.ErrInsufficientData)

	_, err = RollingRealizedVol([]float64{100, -1, 102, 103, 104, 105}, 5, 252)
	assert.ErrorIs(t, err, domain.ErrInvalidPrice)
}
