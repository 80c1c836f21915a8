// Package volatility implements the two volatility estimators: a
// realized volatility estimator over historical close series and an
// implied volatility solver that inverts Black-Scholes by bisection.
// Both are pure functions, safe to call concurrently; the Service in
// this package orchestrates them against live market data.
package volatility

import (
	"fmt"
	"math"

	"github.com/markcheno/go-talib"
	"gonum.org/v1/gonum/stat"

	"github.com/jackleonard0102/ibtrading/internal/domain"
)

const (
	// outlierSigma is the z-score beyond which a log return is
	// treated as a bad tick and discarded.
	outlierSigma = 4.0

	// maxOutlierFraction bounds how much of a series outlier
	// rejection may discard before the series is deemed unusable.
	maxOutlierFraction = 0.20

	// maxRealizedVol caps the annualized estimate at 500%. Anything
	// above that is corrupt input data, not volatility.
	maxRealizedVol = 5.0
)

// RealizedVol computes annualized realized volatility from closing
// prices ordered oldest to newest: the sample standard deviation of
// log returns (n-1 denominator) scaled by sqrt(annualizationFactor),
// with 252 being the factor for daily US equity closes.
//
// Returns ErrInvalidPrice if any price is non-positive and
// ErrInsufficientData if fewer than two returns survive filtering. A
// constant series yields 0, not an error.
func RealizedVol(closes []float64, annualizationFactor float64) (float64, error) {
	if annualizationFactor <= 0 {
		return 0, fmt.Errorf("%w: annualization factor must be positive, got %f",
			domain.ErrInvalidInput, annualizationFactor)
	}
	for i, p := range closes {
		if p <= 0 {
			return 0, fmt.Errorf("%w: non-positive price %f at index %d",
				domain.ErrInvalidPrice, p, i)
		}
	}
	if len(closes) < 3 {
		return 0, fmt.Errorf("%w: need at least 3 prices for a sample deviation, got %d",
			domain.ErrInsufficientData, len(closes))
	}

	returns := make([]float64, 0, len(closes)-1)
	for i := 1; i < len(closes); i++ {
		returns = append(returns, math.Log(closes[i]/closes[i-1]))
	}

	filtered, err := rejectOutliers(returns)
	if err != nil {
		return 0, err
	}
	if len(filtered) < 2 {
		return 0, fmt.Errorf("%w: only %d returns remain after outlier rejection",
			domain.ErrInsufficientData, len(filtered))
	}

	rv := stat.StdDev(filtered, nil) * math.Sqrt(annualizationFactor)
	if rv > maxRealizedVol {
		rv = maxRealizedVol
	}
	return rv, nil
}

// rejectOutliers drops returns more than outlierSigma sample standard
// deviations from the mean. Bad ticks in broker historical data show
// up as single wild returns that would dominate the estimate.
func rejectOutliers(returns []float64) ([]float64, error) {
	mean, std := stat.MeanStdDev(returns, nil)
	if std == 0 || math.IsNaN(std) {
		// Zero-variance series has no outliers by definition
		return returns, nil
	}

	filtered := make([]float64, 0, len(returns))
	for _, r := range returns {
		if math.Abs(r-mean) <= outlierSigma*std {
			filtered = append(filtered, r)
		}
	}

	dropped := len(returns) - len(filtered)
	if frac := float64(dropped) / float64(len(returns)); frac > maxOutlierFraction {
		return nil, fmt.Errorf("%w: outlier rejection dropped %.0f%% of returns",
			domain.ErrInsufficientData, frac*100)
	}
	return filtered, nil
}

// RollingRealizedVol computes a trailing annualized volatility series
// over the closes, for the dashboard vol-history chart: a rolling
// standard deviation of log returns scaled by sqrt(annualizationFactor).
// The result is aligned with the returns series (length len(closes)-1);
// entries before the window fills are zero.
func RollingRealizedVol(closes []float64, window int, annualizationFactor float64) ([]float64, error) {
	if window < 2 {
		return nil, fmt.Errorf("%w: rolling window must be at least 2, got %d",
			domain.ErrInvalidInput, window)
	}
	for i, p := range closes {
		if p <= 0 {
			return nil, fmt.Errorf("%w: non-positive price %f at index %d",
				domain.ErrInvalidPrice, p, i)
		}
	}
	if len(closes) < window+1 {
		return nil, fmt.Errorf("%w: need %d closes for a %d-period window, got %d",
			domain.ErrInsufficientData, window+1, window, len(closes))
	}

	returns := make([]float64, 0, len(closes)-1)
	for i := 1; i < len(closes); i++ {
		returns = append(returns, math.Log(closes[i]/closes[i-1]))
	}

	scale := math.Sqrt(annualizationFactor)
	rolling := talib.StdDev(returns, window, 1.0)
	for i := range rolling {
		rolling[i] *= scale
	}
	return rolling, nil
}
