package scheduler

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/jackleonard0102/ibtrading/internal/modules/hedger"
	"github.com/jackleonard0102/ibtrading/internal/modules/historical"
	"github.com/jackleonard0102/ibtrading/internal/modules/volatility"
)

// HedgeCycleJob drives one hedging evaluation per enabled target.
// Scheduled every few seconds; the hedge service itself guards
// against overlapping work per symbol.
type HedgeCycleJob struct {
	service *hedger.Service
	log     zerolog.Logger
}

// NewHedgeCycleJob creates a new hedge cycle job
func NewHedgeCycleJob(service *hedger.Service, log zerolog.Logger) *HedgeCycleJob {
	return &HedgeCycleJob{
		service: service,
		log:     log.With().Str("job", "hedge_cycle").Logger(),
	}
}

// Name returns the job name
func (j *HedgeCycleJob) Name() string { return "hedge_cycle" }

// Run executes one hedge cycle
func (j *HedgeCycleJob) Run() error {
	return j.service.RunCycle()
}

// VolatilityRefreshJob recomputes IV and RV snapshots for every
// configured symbol
type VolatilityRefreshJob struct {
	service *volatility.Service
	symbols func() ([]string, error)
	log     zerolog.Logger
}

// NewVolatilityRefreshJob creates a new volatility refresh job. The
// symbols callback supplies the current target list so newly added
// symbols get picked up without a restart.
func NewVolatilityRefreshJob(service *volatility.Service, symbols func() ([]string, error), log zerolog.Logger) *VolatilityRefreshJob {
	return &VolatilityRefreshJob{
		service: service,
		symbols: symbols,
		log:     log.With().Str("job", "volatility_refresh").Logger(),
	}
}

// Name returns the job name
func (j *VolatilityRefreshJob) Name() string { return "volatility_refresh" }

// Run refreshes every symbol, isolating per-symbol failures
func (j *VolatilityRefreshJob) Run() error {
	symbols, err := j.symbols()
	if err != nil {
		return fmt.Errorf("failed to list symbols: %w", err)
	}

	var failures int
	for _, symbol := range symbols {
		if _, err := j.service.Refresh(symbol); err != nil {
			failures++
			j.log.Warn().Err(err).Str("symbol", symbol).Msg("Volatility refresh failed")
		}
	}
	if failures > 0 {
		return fmt.Errorf("volatility refresh: %d of %d symbols failed", failures, len(symbols))
	}
	return nil
}

// HistorySyncJob pulls daily closes from the broker into local storage
// and prunes entries beyond retention
type HistorySyncJob struct {
	service *historical.Service
	symbols func() ([]string, error)
	days    int
	log     zerolog.Logger
}

// NewHistorySyncJob creates a new history sync job
func NewHistorySyncJob(service *historical.Service, symbols func() ([]string, error), days int, log zerolog.Logger) *HistorySyncJob {
	return &HistorySyncJob{
		service: service,
		symbols: symbols,
		days:    days,
		log:     log.With().Str("job", "history_sync").Logger(),
	}
}

// Name returns the job name
func (j *HistorySyncJob) Name() string { return "history_sync" }

// Run syncs close series for every symbol and prunes old rows
func (j *HistorySyncJob) Run() error {
	symbols, err := j.symbols()
	if err != nil {
		return fmt.Errorf("failed to list symbols: %w", err)
	}

	if err := j.service.SyncSymbols(symbols, j.days); err != nil {
		return err
	}
	return j.service.Prune()
}

// BackupJob runs the nightly database backup
type BackupJob struct {
	run  func() error
	log  zerolog.Logger
	name string
}

// NewBackupJob wraps the backup service's run function as a job
func NewBackupJob(run func() error, log zerolog.Logger) *BackupJob {
	return &BackupJob{
		run:  run,
		log:  log.With().Str("job", "backup").Logger(),
		name: "backup",
	}
}

// Name returns the job name
func (j *BackupJob) Name() string { return j.name }

// Run executes one backup
func (j *BackupJob) Run() error { return j.run() }
