// Package main is the entry point for the delta hedging service. It
// connects to the broker gateway, keeps option books delta-neutral via
// the hedging engine, and serves the dashboard API.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/jackleonard0102/ibtrading/internal/clients/brokerfeed"
	"github.com/jackleonard0102/ibtrading/internal/config"
	"github.com/jackleonard0102/ibtrading/internal/database"
	"github.com/jackleonard0102/ibtrading/internal/events"
	"github.com/jackleonard0102/ibtrading/internal/modules/delta"
	"github.com/jackleonard0102/ibtrading/internal/modules/hedger"
	"github.com/jackleonard0102/ibtrading/internal/modules/historical"
	"github.com/jackleonard0102/ibtrading/internal/modules/volatility"
	"github.com/jackleonard0102/ibtrading/internal/reliability"
	"github.com/jackleonard0102/ibtrading/internal/scheduler"
	"github.com/jackleonard0102/ibtrading/internal/server"
	"github.com/jackleonard0102/ibtrading/pkg/logger"
)

// historySyncDays is how many daily closes each history sync requests
// from the broker gateway
const historySyncDays = 500

func main() {
	cfg, err := config.Load()
	if err != nil {
		fallbackLog := logger.New(logger.Config{Level: "info", Pretty: true})
		fallbackLog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.DevMode,
	})
	log.Info().Msg("Starting hedging service")

	// Three-database layout: durable hedge state, price history and the
	// ephemeral volatility cache each get their own file and PRAGMA
	// profile
	hedgeDB, err := database.New(database.Config{
		Path:    filepath.Join(cfg.DataDir, "hedge.db"),
		Profile: database.ProfileStandard,
		Name:    "hedge",
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open hedge database")
	}
	defer hedgeDB.Close()

	historyDB, err := database.New(database.Config{
		Path:    filepath.Join(cfg.DataDir, "history.db"),
		Profile: database.ProfileStandard,
		Name:    "history",
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open history database")
	}
	defer historyDB.Close()

	cacheDB, err := database.New(database.Config{
		Path:    filepath.Join(cfg.DataDir, "cache.db"),
		Profile: database.ProfileCache,
		Name:    "cache",
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open cache database")
	}
	defer cacheDB.Close()

	for _, db := range []*database.DB{hedgeDB, historyDB, cacheDB} {
		if err := db.Migrate(); err != nil {
			log.Fatal().Err(err).Str("database", db.Name()).Msg("Failed to run migrations")
		}
	}

	bus := events.NewBus(log)

	// Repositories
	targetRepo := hedger.NewTargetRepository(hedgeDB.Conn(), log)
	orderRepo := hedger.NewOrderRepository(hedgeDB.Conn(), log)
	priceRepo := historical.NewPriceRepository(historyDB.Conn(), log)
	snapshotRepo := volatility.NewSnapshotRepository(cacheDB.Conn(), log)

	// Subscribe the feed to every configured symbol from the start;
	// targets added later are picked up on reconnect
	var symbols []string
	if targets, err := targetRepo.List(); err != nil {
		log.Warn().Err(err).Msg("Failed to load configured targets for feed subscription")
	} else {
		for _, target := range targets {
			symbols = append(symbols, target.Symbol)
		}
	}

	feed := brokerfeed.NewClient(cfg.FeedURL, cfg.FeedSID, symbols, bus, log)
	if err := feed.Start(); err != nil {
		// The client keeps reconnecting in the background; a dead
		// gateway at boot is not fatal
		log.Warn().Err(err).Msg("Initial feed connection failed, reconnecting in background")
	}
	defer func() {
		if err := feed.Stop(); err != nil {
			log.Error().Err(err).Msg("Error stopping broker feed")
		}
	}()

	// Services
	historicalSvc := historical.NewService(feed, priceRepo, log)
	volatilitySvc := volatility.NewService(feed, historicalSvc, snapshotRepo, bus, volatility.Config{
		RiskFreeRate:        cfg.RiskFreeRate,
		AnnualizationFactor: float64(cfg.TradingDaysPerYear),
		RVWindowDays:        cfg.RVWindowDays,
	}, log)

	alerts := hedger.NewAlertLog()
	engine := hedger.NewEngine(feed, orderRepo, alerts, bus, log)
	resolver := delta.NewResolver(cfg.RiskFreeRate)
	hedgeSvc := hedger.NewService(feed, engine, targetRepo, resolver, volatilitySvc, alerts, bus, log)

	// Scheduler
	sched := scheduler.New(log)

	enabledSymbols := func() ([]string, error) {
		targets, err := targetRepo.ListEnabled()
		if err != nil {
			return nil, err
		}
		out := make([]string, 0, len(targets))
		for _, target := range targets {
			out = append(out, target.Symbol)
		}
		return out, nil
	}

	hedgeJob := scheduler.NewHedgeCycleJob(hedgeSvc, log)
	volJob := scheduler.NewVolatilityRefreshJob(volatilitySvc, enabledSymbols, log)
	historyJob := scheduler.NewHistorySyncJob(historicalSvc, enabledSymbols, historySyncDays, log)

	mustAddJob(sched, fmt.Sprintf("@every %ds", cfg.HedgeIntervalSecs), hedgeJob, log)
	mustAddJob(sched, fmt.Sprintf("@every %dm", cfg.VolRefreshMins), volJob, log)
	mustAddJob(sched, "0 30 1 * * *", historyJob, log)

	if cfg.Backup != nil && cfg.Backup.Enabled {
		s3Client, err := reliability.NewS3Client(context.Background(), cfg.Backup, log)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create backup client")
		}
		backupSvc := reliability.NewBackupService(
			[]*database.DB{hedgeDB, historyDB, cacheDB},
			s3Client, cfg.DataDir, cfg.Backup.RetentionDays, log,
		)
		backupJob := scheduler.NewBackupJob(func() error {
			return backupSvc.Run(context.Background())
		}, log)
		mustAddJob(sched, "0 0 1 * * *", backupJob, log)
		log.Info().Str("bucket", cfg.Backup.Bucket).Msg("Nightly backup enabled")
	} else {
		log.Info().Msg("Cloud backup disabled (no bucket configured)")
	}

	sched.Start()
	defer sched.Stop()

	// Warm the caches once the feed has had a chance to connect
	go func() {
		time.Sleep(10 * time.Second)
		if err := sched.RunNow(historyJob); err != nil {
			log.Warn().Err(err).Msg("Initial history sync incomplete")
		}
		if err := sched.RunNow(volJob); err != nil {
			log.Warn().Err(err).Msg("Initial volatility refresh incomplete")
		}
	}()

	// HTTP server
	srv := server.New(server.Config{
		Log:        log,
		Port:       cfg.Port,
		HedgeDB:    hedgeDB,
		HistoryDB:  historyDB,
		CacheDB:    cacheDB,
		Feed:       feed,
		Hedger:     hedgeSvc,
		Volatility: volatilitySvc,
	})

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()
	log.Info().Int("port", cfg.Port).Msg("Server started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Stopped")
}

// mustAddJob registers a job or aborts startup; a bad schedule is a
// programming error
func mustAddJob(sched *scheduler.Scheduler, schedule string, job scheduler.Job, log zerolog.Logger) {
	if err := sched.AddJob(schedule, job); err != nil {
		log.Fatal().Err(err).Str("job", job.Name()).Str("schedule", schedule).Msg("Failed to register job")
	}
}
