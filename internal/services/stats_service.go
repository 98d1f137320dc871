package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"dailyledger/internal/core"
)

// Store is the persistence surface the stats service needs: the member
// registry, the transaction ledger, and the snapshot documents.
type Store interface {
	ListMembers(ctx context.Context, userID string) ([]core.Member, error)
	QueryTransactions(ctx context.Context, userID string, f core.TransactionFilter) ([]core.Transaction, error)
	ReadDailySnapshot(ctx context.Context, userID, date string) (*core.DailySnapshot, error)
	WriteDailySnapshot(ctx context.Context, userID string, snap core.DailySnapshot) error
	ReadMonthlySnapshot(ctx context.Context, userID, month string) (*core.MonthlySnapshot, error)
	WriteMonthlySnapshot(ctx context.Context, userID string, snap core.MonthlySnapshot) error
}

// StatsService serves aggregate snapshots from their persisted documents.
// Reads never block on aggregation: a missing snapshot yields an empty
// placeholder and a stale one is served as-is, while a background
// recomputation refreshes the document for the next reader.
type StatsService struct {
	store            Store
	freshness        time.Duration
	recomputeTimeout time.Duration
	now              func() time.Time
}

func NewStatsService(store Store, freshness, recomputeTimeout time.Duration) *StatsService {
	return &StatsService{
		store:            store,
		freshness:        freshness,
		recomputeTimeout: recomputeTimeout,
		now:              time.Now,
	}
}

// GetDaily returns the daily snapshot for a day. When no document exists yet
// an empty placeholder is returned and a background recomputation is
// scheduled; existing documents are served as stored, since ledger writes
// already trigger their recomputation.
func (s *StatsService) GetDaily(ctx context.Context, userID string, day time.Time) (core.DailySnapshot, error) {
	key := core.DayKey(day)

	snap, err := s.store.ReadDailySnapshot(ctx, userID, key)
	if err != nil {
		return core.DailySnapshot{}, fmt.Errorf("read daily snapshot: %w", err)
	}
	if snap == nil {
		s.recomputeDailyAsync(userID, day)
		return core.EmptyDailySnapshot(key), nil
	}
	return *snap, nil
}

// GetMonthly returns the monthly snapshot for a month. A missing document
// yields an empty placeholder; a document older than the freshness window is
// served stale. Both cases schedule a background recomputation rather than
// making the reader wait.
func (s *StatsService) GetMonthly(ctx context.Context, userID string, month core.Month) (core.MonthlySnapshot, error) {
	snap, err := s.store.ReadMonthlySnapshot(ctx, userID, month.Key())
	if err != nil {
		return core.MonthlySnapshot{}, fmt.Errorf("read monthly snapshot: %w", err)
	}
	if snap == nil {
		s.recomputeMonthlyAsync(userID, month)
		return core.EmptyMonthlySnapshot(month.Key()), nil
	}
	if s.now().Sub(snap.UpdatedAt) > s.freshness {
		s.recomputeMonthlyAsync(userID, month)
	}
	return *snap, nil
}

// RecomputeDaily rebuilds one daily snapshot from the full ledger and
// persists it. Recomputation is idempotent; concurrent runs for the same key
// converge because the last write wins.
func (s *StatsService) RecomputeDaily(ctx context.Context, userID string, day time.Time) (core.DailySnapshot, error) {
	members, txns, err := s.load(ctx, userID)
	if err != nil {
		return core.DailySnapshot{}, err
	}

	snap := core.BuildDailySnapshot(members, txns, day)
	snap.UpdatedAt = s.now().UTC()

	if err := s.store.WriteDailySnapshot(ctx, userID, snap); err != nil {
		return core.DailySnapshot{}, fmt.Errorf("write daily snapshot: %w", err)
	}
	return snap, nil
}

// RecomputeMonthly rebuilds one monthly snapshot from the full ledger and
// persists it.
func (s *StatsService) RecomputeMonthly(ctx context.Context, userID string, month core.Month) (core.MonthlySnapshot, error) {
	members, txns, err := s.load(ctx, userID)
	if err != nil {
		return core.MonthlySnapshot{}, err
	}

	snap := core.BuildMonthlySnapshot(members, txns, month)
	snap.UpdatedAt = s.now().UTC()

	if err := s.store.WriteMonthlySnapshot(ctx, userID, snap); err != nil {
		return core.MonthlySnapshot{}, fmt.Errorf("write monthly snapshot: %w", err)
	}
	return snap, nil
}

// InvalidateDay schedules background recomputation of every snapshot a
// ledger write on the given day can affect: the day itself, its month, and
// the current month when that differs. Months in between stay stale until
// read, at which point their own refresh is scheduled.
func (s *StatsService) InvalidateDay(userID string, day time.Time) {
	s.recomputeDailyAsync(userID, day)

	month := core.MonthOf(day)
	s.recomputeMonthlyAsync(userID, month)
	if current := core.MonthOf(s.now()); current != month {
		s.recomputeMonthlyAsync(userID, current)
	}
}

func (s *StatsService) load(ctx context.Context, userID string) ([]core.Member, []core.Transaction, error) {
	members, err := s.store.ListMembers(ctx, userID)
	if err != nil {
		return nil, nil, fmt.Errorf("list members: %w", err)
	}
	txns, err := s.store.QueryTransactions(ctx, userID, core.TransactionFilter{})
	if err != nil {
		return nil, nil, fmt.Errorf("query transactions: %w", err)
	}
	return members, txns, nil
}

// Background recomputations run detached from the request context: the
// caller's request finishing must not cancel the refresh.
func (s *StatsService) recomputeDailyAsync(userID string, day time.Time) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.recomputeTimeout)
		defer cancel()

		if _, err := s.RecomputeDaily(ctx, userID, day); err != nil {
			slog.Error("Background daily snapshot recompute failed",
				"error", err,
				"user_id", userID,
				"date", core.DayKey(day))
		}
	}()
}

func (s *StatsService) recomputeMonthlyAsync(userID string, month core.Month) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.recomputeTimeout)
		defer cancel()

		if _, err := s.RecomputeMonthly(ctx, userID, month); err != nil {
			slog.Error("Background monthly snapshot recompute failed",
				"error", err,
				"user_id", userID,
				"month", month.Key())
		}
	}()
}
