// Package historical maintains the daily close series per symbol that
// feeds the realized volatility estimator and the dashboard chart.
package historical

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/jackleonard0102/ibtrading/internal/domain"
)

// PriceRepository persists daily closes to history.db (price_history
// table)
type PriceRepository struct {
	db  *sql.DB // history.db
	log zerolog.Logger
}

// NewPriceRepository creates a new price repository
func NewPriceRepository(db *sql.DB, log zerolog.Logger) *PriceRepository {
	return &PriceRepository{
		db:  db,
		log: log.With().Str("repository", "price_history").Logger(),
	}
}

// Upsert stores one daily close, replacing an existing row for the
// same symbol and date
func (r *PriceRepository) Upsert(symbol string, date time.Time, close float64) error {
	if close <= 0 {
		return fmt.Errorf("%w: close %f for %s", domain.ErrInvalidPrice, close, symbol)
	}

	_, err := r.db.Exec(`
		INSERT INTO price_history (symbol, date, close)
		VALUES (?, ?, ?)
		ON CONFLICT(symbol, date) DO UPDATE SET close = excluded.close
	`, symbol, date.UTC().Format("2006-01-02"), close)
	if err != nil {
		return fmt.Errorf("failed to upsert close for %s: %w", symbol, err)
	}
	return nil
}

// UpsertSeries stores a whole series of daily closes in one transaction
func (r *PriceRepository) UpsertSeries(symbol string, series domain.PriceSeries) error {
	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin price history transaction: %w", err)
	}

	stmt, err := tx.Prepare(`
		INSERT INTO price_history (symbol, date, close)
		VALUES (?, ?, ?)
		ON CONFLICT(symbol, date) DO UPDATE SET close = excluded.close
	`)
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("failed to prepare price history insert: %w", err)
	}
	defer stmt.Close()

	for _, point := range series {
		if point.Price <= 0 {
			continue
		}
		if _, err := stmt.Exec(symbol, point.Timestamp.UTC().Format("2006-01-02"), point.Price); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to insert close for %s: %w", symbol, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit price history for %s: %w", symbol, err)
	}
	return nil
}

// Series returns up to limit of the most recent closes for a symbol,
// ordered oldest to newest as the volatility estimator expects
func (r *PriceRepository) Series(symbol string, limit int) (domain.PriceSeries, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := r.db.Query(`
		SELECT date, close FROM (
			SELECT date, close FROM price_history
			WHERE symbol = ?
			ORDER BY date DESC
			LIMIT ?
		) ORDER BY date ASC
	`, symbol, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query price history for %s: %w", symbol, err)
	}
	defer rows.Close()

	var series domain.PriceSeries
	for rows.Next() {
		var (
			date  string
			close float64
		)
		if err := rows.Scan(&date, &close); err != nil {
			return nil, fmt.Errorf("failed to scan price history row: %w", err)
		}
		ts, err := time.Parse("2006-01-02", date)
		if err != nil {
			return nil, fmt.Errorf("failed to parse price history date %q: %w", date, err)
		}
		series = append(series, domain.PricePoint{Timestamp: ts, Price: close})
	}
	return series, rows.Err()
}

// Count returns the number of stored closes for a symbol
func (r *PriceRepository) Count(symbol string) (int, error) {
	var count int
	err := r.db.QueryRow(`SELECT COUNT(*) FROM price_history WHERE symbol = ?`, symbol).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count price history for %s: %w", symbol, err)
	}
	return count, nil
}

// Prune deletes closes older than the retention horizon
func (r *PriceRepository) Prune(olderThan time.Time) (int64, error) {
	res, err := r.db.Exec(`DELETE FROM price_history WHERE date < ?`,
		olderThan.UTC().Format("2006-01-02"))
	if err != nil {
		return 0, fmt.Errorf("failed to prune price history: %w", err)
	}
	return res.RowsAffected()
}
