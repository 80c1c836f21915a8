package domain

import "errors"

// Sentinel errors for the analytic core. Computation failures are
// returned to the caller as explicit errors, never silently defaulted
// to zero; wrap with fmt.Errorf("...: %w", err) to add context and
// test with errors.Is.
var (
	// ErrInvalidInput indicates a volatility solve was called with a
	// non-positive price, strike, expiry or premium
	ErrInvalidInput = errors.New("invalid input")

	// ErrInvalidPrice indicates a price series contains a non-positive
	// price
	ErrInvalidPrice = errors.New("invalid price in series")

	// ErrInsufficientData indicates a series has too few points for
	// the requested computation
	ErrInsufficientData = errors.New("insufficient data")

	// ErrNoArbitrage indicates a quoted option price lies outside the
	// theoretical no-arbitrage bounds; no volatility reproduces it
	ErrNoArbitrage = errors.New("price violates no-arbitrage bounds")

	// ErrDidNotConverge indicates the volatility root search did not
	// reach the price tolerance within the iteration budget
	ErrDidNotConverge = errors.New("root search did not converge")

	// ErrMissingDelta indicates an option position has no delta value
	// at aggregation time
	ErrMissingDelta = errors.New("missing option delta")

	// ErrConfiguration indicates an invalid hedge target configuration
	ErrConfiguration = errors.New("invalid hedge configuration")
)
