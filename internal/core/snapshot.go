package core

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

type (
	// PaidMember is one entry in a daily snapshot's paid list.
	PaidMember struct {
		MemberID string          `json:"memberId"`
		Name     string          `json:"name"`
		Rank     int             `json:"rank"`
		Amount   decimal.Decimal `json:"amount"`
	}

	// PendingMember is one entry in a daily snapshot's pending list: a member
	// with a positive outstanding balance who paid nothing that day.
	PendingMember struct {
		MemberID    string          `json:"memberId"`
		Name        string          `json:"name"`
		Rank        int             `json:"rank"`
		Outstanding decimal.Decimal `json:"outstanding"`
	}

	// DailySnapshot is the derived per-day aggregate document.
	DailySnapshot struct {
		Date           string          `json:"date"`
		TotalCollected decimal.Decimal `json:"totalCollected"`
		MemberCount    int             `json:"memberCount"`
		Paid           []PaidMember    `json:"paid"`
		Pending        []PendingMember `json:"pending"`
		Transactions   []Transaction   `json:"transactions"`
		UpdatedAt      time.Time       `json:"updatedAt"`
	}

	// MemberDue is one member's reconciliation result for a month.
	MemberDue struct {
		MemberID        string          `json:"memberId"`
		Name            string          `json:"name"`
		Rank            int             `json:"rank"`
		PreviousBalance decimal.Decimal `json:"previousBalance"`
		PaidThisMonth   decimal.Decimal `json:"paidThisMonth"`
		Due             decimal.Decimal `json:"due"`
	}

	// MonthlySnapshot is the derived per-month aggregate document.
	MonthlySnapshot struct {
		Month            string          `json:"month"`
		TotalCollected   decimal.Decimal `json:"totalCollected"`
		TotalOutstanding decimal.Decimal `json:"totalOutstanding"`
		TotalTarget      decimal.Decimal `json:"totalTarget"`
		CollectionRate   decimal.Decimal `json:"collectionRate"`
		Dues             []MemberDue     `json:"dues"`
		UpdatedAt        time.Time       `json:"updatedAt"`
	}
)

// EmptyDailySnapshot is the placeholder served while a missing daily
// snapshot is being computed.
func EmptyDailySnapshot(day string) DailySnapshot {
	return DailySnapshot{
		Date:           day,
		TotalCollected: decimal.Zero,
	}
}

// EmptyMonthlySnapshot is the placeholder served while a missing monthly
// snapshot is being computed.
func EmptyMonthlySnapshot(month string) MonthlySnapshot {
	return MonthlySnapshot{
		Month:            month,
		TotalCollected:   decimal.Zero,
		TotalOutstanding: decimal.Zero,
		TotalTarget:      decimal.Zero,
		CollectionRate:   decimal.Zero,
	}
}

// sortByRank orders members by their display rank, then by name for a stable
// tiebreak.
func sortByRank(members []Member) []Member {
	sorted := make([]Member, len(members))
	copy(sorted, members)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Rank != sorted[j].Rank {
			return sorted[i].Rank < sorted[j].Rank
		}
		return sorted[i].Name < sorted[j].Name
	})
	return sorted
}

// BuildDailySnapshot computes the full daily aggregate for one day from the
// member registry and the complete transaction log. UpdatedAt is left for
// the caller to stamp at persistence time.
func BuildDailySnapshot(members []Member, txns []Transaction, day time.Time) DailySnapshot {
	key := DayKey(day)

	var today []Transaction
	for _, t := range txns {
		if t.Date == key {
			today = append(today, t)
		}
	}
	sort.SliceStable(today, func(i, j int) bool {
		return today[i].Timestamp.After(today[j].Timestamp)
	})

	snap := DailySnapshot{
		Date:           key,
		TotalCollected: decimal.Zero,
		MemberCount:    len(members),
		Transactions:   today,
	}
	for _, t := range today {
		snap.TotalCollected = snap.TotalCollected.Add(t.Amount)
	}

	for _, m := range sortByRank(members) {
		switch c := ClassifyDay(m, today, txns, day); c.Status {
		case DayPaid:
			snap.Paid = append(snap.Paid, PaidMember{
				MemberID: m.ID,
				Name:     m.Name,
				Rank:     m.Rank,
				Amount:   c.Amount,
			})
		case DayPending:
			snap.Pending = append(snap.Pending, PendingMember{
				MemberID:    m.ID,
				Name:        m.Name,
				Rank:        m.Rank,
				Outstanding: c.Amount,
			})
		}
	}
	return snap
}

// BuildMonthlySnapshot computes the full monthly aggregate for one month.
// Dues lists only members with a positive final balance, ordered by rank.
func BuildMonthlySnapshot(members []Member, txns []Transaction, month Month) MonthlySnapshot {
	snap := EmptyMonthlySnapshot(month.Key())

	for _, m := range sortByRank(members) {
		due := MonthlyReconciliation(m, txns, month)
		snap.TotalCollected = snap.TotalCollected.Add(due.PaidThisMonth)
		if m.MonthlyTarget.Sign() > 0 && !month.Before(creationMonth(m)) && !accrualCutoff(m, month).Before(month) {
			snap.TotalTarget = snap.TotalTarget.Add(m.MonthlyTarget)
		}
		if due.Due.IsPositive() {
			snap.TotalOutstanding = snap.TotalOutstanding.Add(due.Due)
			snap.Dues = append(snap.Dues, due)
		}
	}

	if snap.TotalTarget.IsPositive() {
		snap.CollectionRate = snap.TotalCollected.
			Div(snap.TotalTarget).
			Mul(decimal.NewFromInt(100)).
			Round(2)
	}
	return snap
}
