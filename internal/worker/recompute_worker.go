package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"dailyledger/internal/amqp"
	"dailyledger/internal/core"
	"dailyledger/internal/services"

	"golang.org/x/sync/errgroup"
)

// UserLister enumerates tenants for the periodic sweep.
type UserLister interface {
	ListUserIDs(ctx context.Context) ([]string, error)
}

// RecomputeWorker consumes invalidation messages and rebuilds the snapshots
// a ledger write made stale. It also runs a periodic sweep that refreshes
// every tenant's current-month snapshot, a backup in case messages are lost.
type RecomputeWorker struct {
	stats *services.StatsService
	users UserLister
}

func NewRecomputeWorker(stats *services.StatsService, users UserLister) *RecomputeWorker {
	return &RecomputeWorker{
		stats: stats,
		users: users,
	}
}

// HandleInvalidation rebuilds the snapshots affected by one ledger write:
// the written day, that day's month, and the current month when different.
// A backdated entry shifts every later month's carried-in balance, but those
// months refresh lazily on their next read instead of eagerly here.
func (w *RecomputeWorker) HandleInvalidation(ctx context.Context, msg *amqp.InvalidationMessage) error {
	day, err := core.ParseDay(msg.Date)
	if err != nil {
		return fmt.Errorf("invalid date %q in invalidation message: %w", msg.Date, err)
	}

	slog.InfoContext(ctx, "Processing invalidation message",
		"user_id", msg.UserID,
		"member_id", msg.MemberID,
		"date", msg.Date)

	month := core.MonthOf(day)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if _, err := w.stats.RecomputeDaily(ctx, msg.UserID, day); err != nil {
			return fmt.Errorf("recompute daily %s: %w", msg.Date, err)
		}
		return nil
	})
	g.Go(func() error {
		if _, err := w.stats.RecomputeMonthly(ctx, msg.UserID, month); err != nil {
			return fmt.Errorf("recompute monthly %s: %w", month.Key(), err)
		}
		return nil
	})
	if current := core.MonthOf(time.Now()); current != month {
		g.Go(func() error {
			if _, err := w.stats.RecomputeMonthly(ctx, msg.UserID, current); err != nil {
				return fmt.Errorf("recompute current month %s: %w", current.Key(), err)
			}
			return nil
		})
	}

	return g.Wait()
}

// SweepStaleMonthly refreshes the current-month snapshot of every tenant.
// Failures are logged per tenant so one bad tenant does not stop the sweep.
func (w *RecomputeWorker) SweepStaleMonthly(ctx context.Context) error {
	userIDs, err := w.users.ListUserIDs(ctx)
	if err != nil {
		return fmt.Errorf("list user ids for sweep: %w", err)
	}

	month := core.MonthOf(time.Now())
	refreshed := 0
	for _, userID := range userIDs {
		if _, err := w.stats.RecomputeMonthly(ctx, userID, month); err != nil {
			slog.ErrorContext(ctx, "Sweep failed for tenant",
				"error", err,
				"user_id", userID,
				"month", month.Key())
			continue
		}
		refreshed++
	}

	slog.InfoContext(ctx, "Monthly snapshot sweep completed",
		"tenants", len(userIDs),
		"refreshed", refreshed,
		"month", month.Key())
	return nil
}

// RunSweepLoop runs SweepStaleMonthly on a fixed interval until the context
// ends.
func (w *RecomputeWorker) RunSweepLoop(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := w.SweepStaleMonthly(ctx); err != nil {
				slog.ErrorContext(ctx, "Monthly snapshot sweep failed", "error", err)
			}
		}
	}
}
