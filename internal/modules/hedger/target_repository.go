package hedger

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/jackleonard0102/ibtrading/internal/domain"
)

// TargetRepository persists operator hedge targets to hedge.db
// (hedge_targets table)
type TargetRepository struct {
	db  *sql.DB // hedge.db
	log zerolog.Logger
}

// NewTargetRepository creates a new target repository
func NewTargetRepository(db *sql.DB, log zerolog.Logger) *TargetRepository {
	return &TargetRepository{
		db:  db,
		log: log.With().Str("repository", "hedge_target").Logger(),
	}
}

// Upsert creates or replaces a symbol's hedge target. The target must
// already be validated.
func (r *TargetRepository) Upsert(target domain.HedgeTarget) error {
	_, err := r.db.Exec(`
		INSERT INTO hedge_targets (symbol, target_delta, tolerance, max_order_qty, enabled, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(symbol) DO UPDATE SET
			target_delta = excluded.target_delta,
			tolerance = excluded.tolerance,
			max_order_qty = excluded.max_order_qty,
			enabled = excluded.enabled,
			updated_at = excluded.updated_at
	`,
		target.Symbol,
		target.TargetDelta,
		target.Tolerance,
		target.MaxOrderQty,
		boolToInt(target.Enabled),
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert hedge target %s: %w", target.Symbol, err)
	}
	return nil
}

// Get returns one symbol's target, or sql.ErrNoRows if absent
func (r *TargetRepository) Get(symbol string) (domain.HedgeTarget, error) {
	row := r.db.QueryRow(`
		SELECT symbol, target_delta, tolerance, max_order_qty, enabled, updated_at
		FROM hedge_targets WHERE symbol = ?
	`, symbol)
	return scanTarget(row)
}

// List returns all configured targets ordered by symbol
func (r *TargetRepository) List() ([]domain.HedgeTarget, error) {
	return r.list(`
		SELECT symbol, target_delta, tolerance, max_order_qty, enabled, updated_at
		FROM hedge_targets ORDER BY symbol
	`)
}

// ListEnabled returns the targets the hedge loop should act on
func (r *TargetRepository) ListEnabled() ([]domain.HedgeTarget, error) {
	return r.list(`
		SELECT symbol, target_delta, tolerance, max_order_qty, enabled, updated_at
		FROM hedge_targets WHERE enabled = 1 ORDER BY symbol
	`)
}

// SetEnabled starts or stops hedging for a symbol
func (r *TargetRepository) SetEnabled(symbol string, enabled bool) error {
	res, err := r.db.Exec(`
		UPDATE hedge_targets SET enabled = ?, updated_at = ? WHERE symbol = ?
	`, boolToInt(enabled), time.Now().UTC().Format(time.RFC3339), symbol)
	if err != nil {
		return fmt.Errorf("failed to set enabled for %s: %w", symbol, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check update result for %s: %w", symbol, err)
	}
	if affected == 0 {
		return fmt.Errorf("no hedge target configured for %s: %w", symbol, domain.ErrConfiguration)
	}
	return nil
}

func (r *TargetRepository) list(query string) ([]domain.HedgeTarget, error) {
	rows, err := r.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to query hedge targets: %w", err)
	}
	defer rows.Close()

	var targets []domain.HedgeTarget
	for rows.Next() {
		target, err := scanTarget(rows)
		if err != nil {
			return nil, err
		}
		targets = append(targets, target)
	}
	return targets, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanTarget(row rowScanner) (domain.HedgeTarget, error) {
	var (
		t         domain.HedgeTarget
		enabled   int
		updatedAt string
	)
	if err := row.Scan(&t.Symbol, &t.TargetDelta, &t.Tolerance, &t.MaxOrderQty, &enabled, &updatedAt); err != nil {
		if err == sql.ErrNoRows {
			return t, err
		}
		return t, fmt.Errorf("failed to scan hedge target: %w", err)
	}
	t.Enabled = enabled != 0
	t.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return t, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
