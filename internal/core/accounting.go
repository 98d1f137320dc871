package core

import (
	"log/slog"
	"time"

	"github.com/shopspring/decimal"
)

// creationMonth returns the month a member starts accruing from. A missing
// creation date on a legacy record falls back to the Unix epoch; the record
// is still processed, but the fallback is logged as a data-quality warning.
func creationMonth(m Member) Month {
	created := m.CreatedOn
	if created.IsZero() {
		slog.Warn("member has no creation date, falling back to epoch",
			"member_id", m.ID,
			"member_name", m.Name)
		created = time.Unix(0, 0).UTC()
	}
	return MonthOf(created)
}

// accrualCutoff returns the last month the member accrues in, given a
// reference month. Archived members keep the month containing their archive
// date (the target accrued the moment that month began) and stop afterwards.
func accrualCutoff(m Member, ref Month) Month {
	if m.Archived && m.ArchivedOn != nil {
		if archivedIn := MonthOf(*m.ArchivedOn); archivedIn.Before(ref) {
			return archivedIn
		}
	}
	return ref
}

// ExpectedAccrual computes the cumulative amount a member should have
// contributed by the month containing asOf, inclusive. Accrual is
// month-granular: a full monthly target is owed the moment a month begins,
// regardless of the day within the month asOf falls on.
func ExpectedAccrual(m Member, asOf time.Time) decimal.Decimal {
	if m.MonthlyTarget.Sign() <= 0 {
		return decimal.Zero
	}
	start := creationMonth(m)
	last := accrualCutoff(m, MonthOf(asOf))
	if last.Before(start) {
		return decimal.Zero
	}
	total := decimal.Zero
	for month := start; !month.After(last); month = month.Next() {
		total = total.Add(m.MonthlyTarget)
	}
	return total
}

// sumPaid totals the member's transactions accepted by keep. All transaction
// types count: a balance-clearing entry is a credit like any other payment.
func sumPaid(m Member, txns []Transaction, keep func(Transaction) bool) decimal.Decimal {
	total := decimal.Zero
	for _, t := range txns {
		if t.MemberID != m.ID {
			continue
		}
		if keep(t) {
			total = total.Add(t.Amount)
		}
	}
	return total
}

// OutstandingBalance is the member's expected accrual minus everything paid
// on or before asOf. Positive means owed; zero or negative means the member
// is current or in credit.
func OutstandingBalance(m Member, txns []Transaction, asOf time.Time) decimal.Decimal {
	cutoff := DayKey(asOf)
	paid := sumPaid(m, txns, func(t Transaction) bool { return t.Date <= cutoff })
	return ExpectedAccrual(m, asOf).Sub(paid)
}

// MonthlyReconciliation compares a member's accrual against payments for one
// month: the balance carried in from prior months, the amount paid inside
// the month, and the resulting final balance.
func MonthlyReconciliation(m Member, txns []Transaction, month Month) MemberDue {
	firstDay := DayKey(month.Start())

	paidBefore := sumPaid(m, txns, func(t Transaction) bool { return t.Date < firstDay })
	previous := ExpectedAccrual(m, month.Prev().End()).Sub(paidBefore)

	paidThisMonth := sumPaid(m, txns, func(t Transaction) bool { return month.Contains(t.Date) })

	target := decimal.Zero
	if m.MonthlyTarget.Sign() > 0 && !month.Before(creationMonth(m)) && !accrualCutoff(m, month).Before(month) {
		target = m.MonthlyTarget
	}

	return MemberDue{
		MemberID:        m.ID,
		Name:            m.Name,
		Rank:            m.Rank,
		PreviousBalance: previous,
		PaidThisMonth:   paidThisMonth,
		Due:             target.Add(previous).Sub(paidThisMonth),
	}
}

const (
	DayPaid    DayStatus = "paid"
	DayPending DayStatus = "pending"
	DayNone    DayStatus = "none"
)

// DayStatus classifies a member's standing on a single day.
type DayStatus string

// DayClassification is the outcome of classifying one member for one day.
// Amount holds the paid total for DayPaid and the outstanding balance for
// DayPending.
type DayClassification struct {
	Status DayStatus
	Amount decimal.Decimal
}

// ClassifyDay buckets a member for a daily snapshot: paid if anything was
// recorded that day, pending if nothing was paid and a positive balance is
// outstanding, otherwise excluded from both lists.
func ClassifyDay(m Member, today []Transaction, all []Transaction, day time.Time) DayClassification {
	paid := sumPaid(m, today, func(Transaction) bool { return true })
	if paid.IsPositive() {
		return DayClassification{Status: DayPaid, Amount: paid}
	}
	if outstanding := OutstandingBalance(m, all, day); outstanding.IsPositive() {
		return DayClassification{Status: DayPending, Amount: outstanding}
	}
	return DayClassification{Status: DayNone, Amount: decimal.Zero}
}
