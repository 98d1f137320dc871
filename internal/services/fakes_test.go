package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"dailyledger/internal/core"
	"dailyledger/internal/storage"

	"github.com/shopspring/decimal"
)

// fakeStore is an in-memory Store and LedgerStore. Snapshot writes are
// signalled on channels so tests can wait for background recomputations.
type fakeStore struct {
	mu         sync.Mutex
	members    []core.Member
	txns       []core.Transaction
	daily      map[string]core.DailySnapshot
	monthly    map[string]core.MonthlySnapshot
	failWrites bool

	wroteDaily   chan string
	wroteMonthly chan string
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		daily:        make(map[string]core.DailySnapshot),
		monthly:      make(map[string]core.MonthlySnapshot),
		wroteDaily:   make(chan string, 16),
		wroteMonthly: make(chan string, 16),
	}
}

func snapshotKey(userID, key string) string {
	return userID + "/" + key
}

func (f *fakeStore) CreateMember(_ context.Context, m core.Member) (core.Member, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if m.ID == "" {
		m.ID = fmt.Sprintf("member-%d", len(f.members)+1)
	}
	f.members = append(f.members, m)
	return m, nil
}

func (f *fakeStore) ListMembers(_ context.Context, userID string) ([]core.Member, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []core.Member
	for _, m := range f.members {
		if m.UserID == userID {
			out = append(out, m)
		}
	}
	return out, nil
}

func (f *fakeStore) GetMember(_ context.Context, userID, memberID string) (core.Member, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, m := range f.members {
		if m.UserID == userID && m.ID == memberID {
			return m, nil
		}
	}
	return core.Member{}, core.ErrMemberNotFound
}

func (f *fakeStore) ArchiveMember(_ context.Context, userID, memberID, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, m := range f.members {
		if m.UserID == userID && m.ID == memberID {
			now := time.Now().UTC()
			f.members[i].Archived = true
			f.members[i].ArchivedOn = &now
			f.members[i].ArchivedReason = reason
			return nil
		}
	}
	return core.ErrMemberNotFound
}

func (f *fakeStore) UnarchiveMember(_ context.Context, userID, memberID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, m := range f.members {
		if m.UserID == userID && m.ID == memberID {
			f.members[i].Archived = false
			f.members[i].ArchivedOn = nil
			f.members[i].ArchivedReason = ""
			return nil
		}
	}
	return core.ErrMemberNotFound
}

func (f *fakeStore) InsertTransaction(_ context.Context, t core.Transaction) (core.Transaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if t.ID == "" {
		t.ID = fmt.Sprintf("txn-%d", len(f.txns)+1)
	}
	f.txns = append(f.txns, t)
	return t, nil
}

func (f *fakeStore) UpdateTransactionAmount(_ context.Context, userID, txnID string, amount decimal.Decimal) (core.Transaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, t := range f.txns {
		if t.UserID == userID && t.ID == txnID {
			f.txns[i].Amount = amount
			return f.txns[i], nil
		}
	}
	return core.Transaction{}, storage.ErrTransactionNotFound
}

func (f *fakeStore) QueryTransactions(_ context.Context, userID string, filter core.TransactionFilter) ([]core.Transaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []core.Transaction
	for _, t := range f.txns {
		if t.UserID != userID {
			continue
		}
		if filter.MemberID != "" && t.MemberID != filter.MemberID {
			continue
		}
		if filter.DateEquals != "" && t.Date != filter.DateEquals {
			continue
		}
		if filter.DateFrom != "" && t.Date < filter.DateFrom {
			continue
		}
		if filter.DateTo != "" && t.Date > filter.DateTo {
			continue
		}
		out = append(out, t)
	}
	return out, nil
}

func (f *fakeStore) ReadDailySnapshot(_ context.Context, userID, date string) (*core.DailySnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	snap, ok := f.daily[snapshotKey(userID, date)]
	if !ok {
		return nil, nil
	}
	return &snap, nil
}

func (f *fakeStore) WriteDailySnapshot(_ context.Context, userID string, snap core.DailySnapshot) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWrites {
		return errors.New("write failed")
	}
	f.daily[snapshotKey(userID, snap.Date)] = snap
	f.wroteDaily <- snap.Date
	return nil
}

func (f *fakeStore) ReadMonthlySnapshot(_ context.Context, userID, month string) (*core.MonthlySnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	snap, ok := f.monthly[snapshotKey(userID, month)]
	if !ok {
		return nil, nil
	}
	return &snap, nil
}

func (f *fakeStore) WriteMonthlySnapshot(_ context.Context, userID string, snap core.MonthlySnapshot) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWrites {
		return errors.New("write failed")
	}
	f.monthly[snapshotKey(userID, snap.Month)] = snap
	f.wroteMonthly <- snap.Month
	return nil
}

// fakePublisher records invalidation messages.
type fakePublisher struct {
	mu    sync.Mutex
	err   error
	calls []invalidationCall
}

type invalidationCall struct {
	userID, memberID, date string
}

func (p *fakePublisher) PublishInvalidation(_ context.Context, userID, memberID, date string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.calls = append(p.calls, invalidationCall{userID, memberID, date})
	return nil
}

func (p *fakePublisher) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.calls)
}

func (p *fakePublisher) lastCall() invalidationCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls[len(p.calls)-1]
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func testMember(id, userID, target, createdOn string) core.Member {
	created, err := core.ParseDay(createdOn)
	if err != nil {
		panic(err)
	}
	return core.Member{
		ID:            id,
		UserID:        userID,
		Name:          "Member " + id,
		MonthlyTarget: dec(target),
		CreatedOn:     created,
	}
}

func testTxn(userID, memberID, date, amount string) core.Transaction {
	day, err := core.ParseDay(date)
	if err != nil {
		panic(err)
	}
	return core.Transaction{
		UserID:    userID,
		MemberID:  memberID,
		Amount:    dec(amount),
		Date:      date,
		Timestamp: day.Add(12 * time.Hour),
		Type:      core.TransactionNormal,
	}
}
