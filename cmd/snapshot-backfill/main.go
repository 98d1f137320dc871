// Command snapshot-backfill rebuilds persisted snapshots from the raw
// ledger. Use it after restoring a database, changing accrual rules, or to
// prime snapshots for a new deployment.
package main

import (
	"context"
	"flag"
	"os"
	"time"

	"dailyledger/internal/config"
	"dailyledger/internal/core"
	"dailyledger/internal/log"
	"dailyledger/internal/services"
	"dailyledger/internal/storage"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"
)

func main() {
	_ = godotenv.Load()

	var (
		fromFlag    = flag.String("from", "", "first month to rebuild (YYYY-MM, default: current month)")
		toFlag      = flag.String("to", "", "last month to rebuild (YYYY-MM, default: same as -from)")
		withDaily   = flag.Bool("daily", false, "also rebuild the daily snapshot of every day in range")
		parallelism = flag.Int("parallelism", 4, "tenants rebuilt concurrently")
	)
	flag.Parse()

	logger := log.New(log.Config{Component: log.ComponentApp})
	log.SetDefault(logger)

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", log.FieldError, err)
		os.Exit(1)
	}

	from := core.MonthOf(time.Now())
	if *fromFlag != "" {
		parsed, err := core.ParseMonth(*fromFlag)
		if err != nil {
			logger.Error("Invalid -from month", log.FieldError, err, "value", *fromFlag)
			os.Exit(1)
		}
		from = parsed
	}
	to := from
	if *toFlag != "" {
		parsed, err := core.ParseMonth(*toFlag)
		if err != nil {
			logger.Error("Invalid -to month", log.FieldError, err, "value", *toFlag)
			os.Exit(1)
		}
		to = parsed
	}
	if to.Before(from) {
		logger.Error("Month range is inverted", "from", from.Key(), "to", to.Key())
		os.Exit(1)
	}

	repo, err := storage.NewSQLiteRepository(cfg.SQLiteDBPath)
	if err != nil {
		logger.Error("Failed to initialize SQLite repository", log.FieldError, err, "path", cfg.SQLiteDBPath)
		os.Exit(1)
	}
	defer repo.Close()

	stats := services.NewStatsService(repo, cfg.FreshnessWindow, cfg.RecomputeTimeout)

	ctx := context.Background()
	userIDs, err := repo.ListUserIDs(ctx)
	if err != nil {
		logger.Error("Failed to list tenants", log.FieldError, err)
		os.Exit(1)
	}

	logger.Info("Starting backfill",
		"tenants", len(userIDs),
		"from", from.Key(),
		"to", to.Key(),
		"daily", *withDaily)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(*parallelism)
	for _, userID := range userIDs {
		g.Go(func() error {
			return backfillTenant(ctx, logger, stats, userID, from, to, *withDaily)
		})
	}
	if err := g.Wait(); err != nil {
		logger.Error("Backfill failed", log.FieldError, err)
		os.Exit(1)
	}

	logger.Info("Backfill complete")
}

func backfillTenant(ctx context.Context, logger *log.Logger, stats *services.StatsService, userID string, from, to core.Month, withDaily bool) error {
	for month := from; !month.After(to); month = month.Next() {
		if _, err := stats.RecomputeMonthly(ctx, userID, month); err != nil {
			return err
		}
		if withDaily {
			for day := month.Start(); !day.After(month.End()); day = day.AddDate(0, 0, 1) {
				if _, err := stats.RecomputeDaily(ctx, userID, day); err != nil {
					return err
				}
			}
		}
	}
	logger.Info("Tenant backfilled", log.FieldUserID, userID, "from", from.Key(), "to", to.Key())
	return nil
}
