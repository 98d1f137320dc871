package services

import (
	"context"
	"log/slog"
	"time"

	"dailyledger/internal/core"

	"github.com/shopspring/decimal"
)

// LedgerStore is the persistence surface for ledger writes and the member
// registry.
type LedgerStore interface {
	CreateMember(ctx context.Context, m core.Member) (core.Member, error)
	ListMembers(ctx context.Context, userID string) ([]core.Member, error)
	GetMember(ctx context.Context, userID, memberID string) (core.Member, error)
	ArchiveMember(ctx context.Context, userID, memberID, reason string) error
	UnarchiveMember(ctx context.Context, userID, memberID string) error
	InsertTransaction(ctx context.Context, t core.Transaction) (core.Transaction, error)
	UpdateTransactionAmount(ctx context.Context, userID, txnID string, amount decimal.Decimal) (core.Transaction, error)
	QueryTransactions(ctx context.Context, userID string, f core.TransactionFilter) ([]core.Transaction, error)
}

// InvalidationPublisher announces ledger writes to the recompute worker.
type InvalidationPublisher interface {
	PublishInvalidation(ctx context.Context, userID, memberID, date string) error
}

// LedgerService owns every write that changes balances. Each successful
// write publishes an invalidation message and schedules a local snapshot
// refresh, so stats converge even when the broker is down.
type LedgerService struct {
	store     LedgerStore
	stats     *StatsService
	publisher InvalidationPublisher
	now       func() time.Time
}

func NewLedgerService(store LedgerStore, stats *StatsService, publisher InvalidationPublisher) *LedgerService {
	return &LedgerService{
		store:     store,
		stats:     stats,
		publisher: publisher,
		now:       time.Now,
	}
}

// CreateMember validates and registers a member. The member starts accruing
// from the month of its creation date.
func (s *LedgerService) CreateMember(ctx context.Context, m core.Member) (core.Member, error) {
	if err := m.Validate(); err != nil {
		return core.Member{}, err
	}

	created, err := s.store.CreateMember(ctx, m)
	if err != nil {
		return core.Member{}, err
	}

	s.invalidate(ctx, created.UserID, created.ID, core.DayKey(s.now()))
	return created, nil
}

func (s *LedgerService) ListMembers(ctx context.Context, userID string) ([]core.Member, error) {
	return s.store.ListMembers(ctx, userID)
}

func (s *LedgerService) GetMember(ctx context.Context, userID, memberID string) (core.Member, error) {
	return s.store.GetMember(ctx, userID, memberID)
}

// ArchiveMember stops a member's accrual after the current month while
// keeping its history and balance.
func (s *LedgerService) ArchiveMember(ctx context.Context, userID, memberID, reason string) error {
	if err := s.store.ArchiveMember(ctx, userID, memberID, reason); err != nil {
		return err
	}
	s.invalidate(ctx, userID, memberID, core.DayKey(s.now()))
	return nil
}

// UnarchiveMember resumes a member's accrual.
func (s *LedgerService) UnarchiveMember(ctx context.Context, userID, memberID string) error {
	if err := s.store.UnarchiveMember(ctx, userID, memberID); err != nil {
		return err
	}
	s.invalidate(ctx, userID, memberID, core.DayKey(s.now()))
	return nil
}

// RecordPayment appends a payment to the ledger. The date decides the
// accounting period; the recording instant is kept for display ordering
// only.
func (s *LedgerService) RecordPayment(ctx context.Context, userID, memberID, date string, amount decimal.Decimal) (core.Transaction, error) {
	if _, err := s.store.GetMember(ctx, userID, memberID); err != nil {
		return core.Transaction{}, err
	}

	txn := core.Transaction{
		UserID:    userID,
		MemberID:  memberID,
		Amount:    amount,
		Date:      date,
		Timestamp: s.now().UTC(),
		Type:      core.TransactionNormal,
	}
	if err := txn.Validate(); err != nil {
		return core.Transaction{}, err
	}

	inserted, err := s.store.InsertTransaction(ctx, txn)
	if err != nil {
		return core.Transaction{}, err
	}

	s.invalidate(ctx, userID, memberID, inserted.Date)
	return inserted, nil
}

// CorrectTransaction changes the amount of an existing ledger entry and
// invalidates the periods the entry belongs to.
func (s *LedgerService) CorrectTransaction(ctx context.Context, userID, txnID string, amount decimal.Decimal) (core.Transaction, error) {
	if amount.IsNegative() {
		return core.Transaction{}, core.ErrInvalidAmount
	}

	updated, err := s.store.UpdateTransactionAmount(ctx, userID, txnID, amount)
	if err != nil {
		return core.Transaction{}, err
	}

	s.invalidate(ctx, userID, updated.MemberID, updated.Date)
	return updated, nil
}

func (s *LedgerService) ListTransactions(ctx context.Context, userID string, f core.TransactionFilter) ([]core.Transaction, error) {
	return s.store.QueryTransactions(ctx, userID, f)
}

// ClearOutstanding zeroes a member's balance for one month by recording a
// synthetic clearing credit equal to the month's final due. At most one
// clearing entry may exist per member and month; a clear with nothing owed
// is rejected rather than recorded as a zero credit.
func (s *LedgerService) ClearOutstanding(ctx context.Context, userID, memberID string, month core.Month) (core.Transaction, error) {
	member, err := s.store.GetMember(ctx, userID, memberID)
	if err != nil {
		return core.Transaction{}, err
	}

	txns, err := s.store.QueryTransactions(ctx, userID, core.TransactionFilter{MemberID: memberID})
	if err != nil {
		return core.Transaction{}, err
	}

	for _, t := range txns {
		if t.Type == core.TransactionOutstandingCleared && month.Contains(t.Date) {
			return core.Transaction{}, core.ErrAlreadyCleared
		}
	}

	due := core.MonthlyReconciliation(member, txns, month).Due
	if !due.IsPositive() {
		return core.Transaction{}, core.ErrNothingToClear
	}

	// Date the credit on the clearing day when the month is current,
	// otherwise on the month's last day so it lands in the right period.
	clearDate := core.DayKey(month.End())
	if now := s.now(); core.MonthOf(now) == month {
		clearDate = core.DayKey(now)
	}

	txn := core.Transaction{
		UserID:    userID,
		MemberID:  memberID,
		Amount:    due,
		Date:      clearDate,
		Timestamp: s.now().UTC(),
		Type:      core.TransactionOutstandingCleared,
	}

	inserted, err := s.store.InsertTransaction(ctx, txn)
	if err != nil {
		return core.Transaction{}, err
	}

	slog.InfoContext(ctx, "Outstanding balance cleared",
		"member_id", memberID,
		"month", month.Key(),
		"amount", due.String())

	s.invalidate(ctx, userID, memberID, inserted.Date)
	return inserted, nil
}

// invalidate fans a ledger write out to the recompute worker and to the
// local background refresh. A broker failure is logged, not returned: the
// write already committed and the local refresh still converges.
func (s *LedgerService) invalidate(ctx context.Context, userID, memberID, date string) {
	if s.publisher != nil {
		if err := s.publisher.PublishInvalidation(ctx, userID, memberID, date); err != nil {
			slog.WarnContext(ctx, "Failed to publish invalidation message",
				"error", err,
				"user_id", userID,
				"member_id", memberID,
				"date", date)
		}
	}

	if s.stats != nil {
		if day, err := core.ParseDay(date); err == nil {
			s.stats.InvalidateDay(userID, day)
		}
	}
}
