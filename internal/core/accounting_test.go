package core

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func member(id string, target int64, createdOn time.Time) Member {
	return Member{
		ID:            id,
		Name:          id,
		MonthlyTarget: decimal.NewFromInt(target),
		CreatedOn:     createdOn,
	}
}

func txn(memberID, date string, amount int64) Transaction {
	return Transaction{
		ID:       memberID + "-" + date,
		MemberID: memberID,
		Amount:   decimal.NewFromInt(amount),
		Date:     date,
		Type:     TransactionNormal,
	}
}

func TestExpectedAccrual(t *testing.T) {
	created := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name   string
		member Member
		asOf   time.Time
		want   int64
	}{
		{
			name:   "three months inclusive",
			member: member("m1", 1000, created),
			asOf:   time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC),
			want:   3000,
		},
		{
			name:   "creation month accrues in full on any day",
			member: member("m1", 1000, created),
			asOf:   time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
			want:   1000,
		},
		{
			name:   "asOf before creation month",
			member: member("m1", 1000, created),
			asOf:   time.Date(2023, 12, 31, 0, 0, 0, 0, time.UTC),
			want:   0,
		},
		{
			name:   "mid-month creation still accrues whole month",
			member: member("m1", 500, time.Date(2024, 2, 20, 0, 0, 0, 0, time.UTC)),
			asOf:   time.Date(2024, 2, 21, 0, 0, 0, 0, time.UTC),
			want:   500,
		},
		{
			name:   "zero target never accrues",
			member: member("m1", 0, created),
			asOf:   time.Date(2030, 12, 31, 0, 0, 0, 0, time.UTC),
			want:   0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ExpectedAccrual(tt.member, tt.asOf)
			if !got.Equal(decimal.NewFromInt(tt.want)) {
				t.Errorf("ExpectedAccrual() = %s, want %d", got, tt.want)
			}
		})
	}
}

func TestExpectedAccrual_Monotonic(t *testing.T) {
	m := member("m1", 750, time.Date(2023, 6, 10, 0, 0, 0, 0, time.UTC))

	prev := decimal.Zero
	day := time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 400; i += 7 {
		asOf := day.AddDate(0, 0, i)
		got := ExpectedAccrual(m, asOf)
		if got.LessThan(prev) {
			t.Fatalf("accrual decreased at %s: %s < %s", asOf.Format(DayLayout), got, prev)
		}
		prev = got
	}
}

func TestExpectedAccrual_ArchivedStopsAccruing(t *testing.T) {
	archivedOn := time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)
	m := member("m1", 1000, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	m.Archived = true
	m.ArchivedOn = &archivedOn

	// The archive month itself accrued when it began.
	got := ExpectedAccrual(m, time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC))
	if !got.Equal(decimal.NewFromInt(3000)) {
		t.Errorf("accrual after archive = %s, want 3000", got)
	}
}

func TestExpectedAccrual_MissingCreationDateFallsBackToEpoch(t *testing.T) {
	m := member("legacy", 10, time.Time{})

	got := ExpectedAccrual(m, time.Date(1970, 3, 15, 0, 0, 0, 0, time.UTC))
	// Jan, Feb, Mar 1970.
	if !got.Equal(decimal.NewFromInt(30)) {
		t.Errorf("epoch fallback accrual = %s, want 30", got)
	}
}

func TestOutstandingBalance(t *testing.T) {
	created := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	m := member("m1", 1000, created)

	tests := []struct {
		name string
		txns []Transaction
		asOf time.Time
		want int64
	}{
		{
			name: "no payments",
			txns: nil,
			asOf: time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC),
			want: 3000,
		},
		{
			name: "partial payment",
			txns: []Transaction{txn("m1", "2024-02-10", 2000)},
			asOf: time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC),
			want: 1000,
		},
		{
			name: "payment after asOf is not counted",
			txns: []Transaction{txn("m1", "2024-03-16", 2000)},
			asOf: time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC),
			want: 3000,
		},
		{
			name: "overpaid member is in credit",
			txns: []Transaction{txn("m1", "2024-01-05", 5000)},
			asOf: time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC),
			want: -2000,
		},
		{
			name: "other members' payments are ignored",
			txns: []Transaction{txn("m2", "2024-01-05", 5000)},
			asOf: time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC),
			want: 1000,
		},
		{
			name: "cleared entry counts as credit",
			txns: []Transaction{{
				ID:       "c1",
				MemberID: "m1",
				Amount:   decimal.NewFromInt(3000),
				Date:     "2024-03-31",
				Type:     TransactionOutstandingCleared,
			}},
			asOf: time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC),
			want: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := OutstandingBalance(m, tt.txns, tt.asOf)
			if !got.Equal(decimal.NewFromInt(tt.want)) {
				t.Errorf("OutstandingBalance() = %s, want %d", got, tt.want)
			}
		})
	}
}

func TestMonthlyReconciliation(t *testing.T) {
	created := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	t.Run("carried balance fully paid leaves only current target due", func(t *testing.T) {
		m := member("m1", 1000, created)
		txns := []Transaction{txn("m1", "2024-02-10", 2000)}

		month, _ := ParseMonth("2024-03")
		due := MonthlyReconciliation(m, txns, month)

		if !due.PreviousBalance.Equal(decimal.Zero) {
			t.Errorf("PreviousBalance = %s, want 0", due.PreviousBalance)
		}
		if !due.PaidThisMonth.Equal(decimal.Zero) {
			t.Errorf("PaidThisMonth = %s, want 0", due.PaidThisMonth)
		}
		if !due.Due.Equal(decimal.NewFromInt(1000)) {
			t.Errorf("Due = %s, want 1000", due.Due)
		}
	})

	t.Run("unpaid prior months carry forward", func(t *testing.T) {
		m := member("m1", 1000, created)

		month, _ := ParseMonth("2024-03")
		due := MonthlyReconciliation(m, nil, month)

		if !due.PreviousBalance.Equal(decimal.NewFromInt(2000)) {
			t.Errorf("PreviousBalance = %s, want 2000", due.PreviousBalance)
		}
		if !due.Due.Equal(decimal.NewFromInt(3000)) {
			t.Errorf("Due = %s, want 3000", due.Due)
		}
	})

	t.Run("overpayment flips balance negative", func(t *testing.T) {
		m := member("m1", 500, time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC))
		txns := []Transaction{txn("m1", "2024-05-01", 600)}

		month, _ := ParseMonth("2024-05")
		due := MonthlyReconciliation(m, txns, month)

		if !due.Due.Equal(decimal.NewFromInt(-100)) {
			t.Errorf("Due = %s, want -100", due.Due)
		}
	})

	t.Run("month before creation has no target", func(t *testing.T) {
		m := member("m1", 1000, time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC))

		month, _ := ParseMonth("2024-03")
		due := MonthlyReconciliation(m, nil, month)

		if !due.Due.Equal(decimal.Zero) {
			t.Errorf("Due = %s, want 0", due.Due)
		}
	})
}

func TestClassifyDay(t *testing.T) {
	created := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	day := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name       string
		member     Member
		today      []Transaction
		all        []Transaction
		wantStatus DayStatus
		wantAmount int64
	}{
		{
			name:       "paid today",
			member:     member("m1", 1000, created),
			today:      []Transaction{txn("m1", "2024-01-15", 40)},
			all:        []Transaction{txn("m1", "2024-01-15", 40)},
			wantStatus: DayPaid,
			wantAmount: 40,
		},
		{
			name:       "no payment with outstanding balance is pending",
			member:     member("m1", 1000, created),
			wantStatus: DayPending,
			wantAmount: 1000,
		},
		{
			name:       "settled member with no payment is excluded",
			member:     member("m1", 1000, created),
			all:        []Transaction{txn("m1", "2024-01-10", 1000)},
			wantStatus: DayNone,
		},
		{
			name:       "zero-target member never pending",
			member:     member("m1", 0, created),
			wantStatus: DayNone,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ClassifyDay(tt.member, tt.today, tt.all, day)
			if got.Status != tt.wantStatus {
				t.Fatalf("ClassifyDay() status = %s, want %s", got.Status, tt.wantStatus)
			}
			if tt.wantStatus != DayNone && !got.Amount.Equal(decimal.NewFromInt(tt.wantAmount)) {
				t.Errorf("ClassifyDay() amount = %s, want %d", got.Amount, tt.wantAmount)
			}
		})
	}
}
