package volatility

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/jackleonard0102/ibtrading/internal/domain"
)

// SnapshotRepository caches volatility snapshots in cache.db
// (vol_snapshots table), msgpack-encoded. The cache is ephemeral;
// deleting it only forces a refresh.
type SnapshotRepository struct {
	db  *sql.DB // cache.db
	log zerolog.Logger
}

// NewSnapshotRepository creates a new snapshot repository
func NewSnapshotRepository(db *sql.DB, log zerolog.Logger) *SnapshotRepository {
	return &SnapshotRepository{
		db:  db,
		log: log.With().Str("repository", "vol_snapshot").Logger(),
	}
}

// Put stores a symbol's snapshot with the given time-to-live
func (r *SnapshotRepository) Put(snapshot domain.VolatilitySnapshot, ttl time.Duration) error {
	payload, err := msgpack.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("failed to encode snapshot for %s: %w", snapshot.Symbol, err)
	}

	_, err = r.db.Exec(`
		INSERT INTO vol_snapshots (symbol, payload, computed_at, expires_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(symbol) DO UPDATE SET
			payload = excluded.payload,
			computed_at = excluded.computed_at,
			expires_at = excluded.expires_at
	`,
		snapshot.Symbol,
		payload,
		snapshot.ComputedAt.UTC().Format(time.RFC3339),
		snapshot.ComputedAt.Add(ttl).UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to store snapshot for %s: %w", snapshot.Symbol, err)
	}
	return nil
}

// Get returns a symbol's cached snapshot. The second return reports
// whether the snapshot is still fresh; stale snapshots are returned
// anyway so the dashboard can show the last known values.
func (r *SnapshotRepository) Get(symbol string) (*domain.VolatilitySnapshot, bool, error) {
	var (
		payload   []byte
		expiresAt string
	)
	err := r.db.QueryRow(`
		SELECT payload, expires_at FROM vol_snapshots WHERE symbol = ?
	`, symbol).Scan(&payload, &expiresAt)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to query snapshot for %s: %w", symbol, err)
	}

	var snapshot domain.VolatilitySnapshot
	if err := msgpack.Unmarshal(payload, &snapshot); err != nil {
		// A corrupt cache entry is not worth failing a refresh over
		r.log.Warn().Err(err).Str("symbol", symbol).Msg("Dropping undecodable snapshot")
		return nil, false, nil
	}

	expiry, err := time.Parse(time.RFC3339, expiresAt)
	if err != nil {
		return &snapshot, false, nil
	}
	return &snapshot, time.Now().Before(expiry), nil
}

// PruneExpired deletes snapshots past their time-to-live
func (r *SnapshotRepository) PruneExpired() (int64, error) {
	res, err := r.db.Exec(`DELETE FROM vol_snapshots WHERE expires_at < ?`,
		time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return 0, fmt.Errorf("failed to prune snapshots: %w", err)
	}
	return res.RowsAffected()
}
