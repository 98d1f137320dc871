package core

import (
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	// TransactionNormal is a regular payment recorded against a member.
	TransactionNormal TransactionType = "normal"

	// TransactionOutstandingCleared is a synthetic entry that wipes a member's
	// balance for a month. It counts as a credit in balance math but is hidden
	// from raw "who paid" listings in exports.
	TransactionOutstandingCleared TransactionType = "outstanding_cleared"
)

// DayLayout is the calendar-day key format used for accounting periods.
// Transaction dates are bucketed by this key, never by the exact timestamp.
const DayLayout = "2006-01-02"

// MonthLayout is the key format for monthly periods.
const MonthLayout = "2006-01"

type (
	TransactionType string

	// Member is the per-member configuration owned by the registry.
	Member struct {
		ID                  string          `json:"id"`
		UserID              string          `json:"-"`
		Name                string          `json:"name"`
		MonthlyTarget       decimal.Decimal `json:"monthlyTarget"`
		DefaultDailyPayment decimal.Decimal `json:"defaultDailyPayment"` // suggested per-day amount, informational only
		CreatedOn           time.Time       `json:"createdOn"`
		Rank                int             `json:"rank"` // display/iteration order
		Archived            bool            `json:"archived"`
		ArchivedOn          *time.Time      `json:"archivedOn,omitempty"`
		ArchivedReason      string          `json:"archivedReason,omitempty"`
	}

	// Transaction is one dated payment event in the ledger.
	Transaction struct {
		ID       string          `json:"id"`
		UserID   string          `json:"-"`
		MemberID string          `json:"memberId"`
		Amount   decimal.Decimal `json:"amount"`
		// Date is the calendar-day key ("2006-01-02") and the sole key that
		// decides which accounting period the transaction belongs to.
		Date string `json:"date"`
		// Timestamp is the exact instant, used for display ordering only.
		Timestamp time.Time       `json:"timestamp"`
		Type      TransactionType `json:"type"`
	}

	// Month is a calendar month period.
	Month struct {
		Year  int
		Month time.Month
	}

	// TransactionFilter narrows a ledger query. Zero-value fields are ignored.
	TransactionFilter struct {
		MemberID   string
		DateEquals string
		DateFrom   string
		DateTo     string
	}
)

var (
	ErrInvalidDate   = errors.New("invalid date")
	ErrInvalidMonth  = errors.New("invalid month")
	ErrInvalidAmount = errors.New("invalid amount")
	ErrEmptyName     = errors.New("empty member name")
)

// DayKey formats an instant as a calendar-day key.
func DayKey(t time.Time) string {
	return t.Format(DayLayout)
}

// ParseDay parses a calendar-day key.
func ParseDay(s string) (time.Time, error) {
	t, err := time.Parse(DayLayout, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, ErrInvalidDate
	}
	return t, nil
}

// ParseMonth parses a "2006-01" month key.
func ParseMonth(s string) (Month, error) {
	t, err := time.Parse(MonthLayout, strings.TrimSpace(s))
	if err != nil {
		return Month{}, ErrInvalidMonth
	}
	return Month{Year: t.Year(), Month: t.Month()}, nil
}

// MonthOf returns the month containing the given instant.
func MonthOf(t time.Time) Month {
	return Month{Year: t.Year(), Month: t.Month()}
}

// Key returns the "2006-01" representation.
func (m Month) Key() string {
	return time.Date(m.Year, m.Month, 1, 0, 0, 0, 0, time.UTC).Format(MonthLayout)
}

// Start returns the first day of the month.
func (m Month) Start() time.Time {
	return time.Date(m.Year, m.Month, 1, 0, 0, 0, 0, time.UTC)
}

// End returns the last day of the month.
func (m Month) End() time.Time {
	return m.Start().AddDate(0, 1, -1)
}

// Next returns the following month.
func (m Month) Next() Month {
	return MonthOf(m.Start().AddDate(0, 1, 0))
}

// Prev returns the preceding month.
func (m Month) Prev() Month {
	return MonthOf(m.Start().AddDate(0, -1, 0))
}

// Before reports whether m precedes other.
func (m Month) Before(other Month) bool {
	return m.Year < other.Year || (m.Year == other.Year && m.Month < other.Month)
}

// After reports whether m follows other.
func (m Month) After(other Month) bool {
	return other.Before(m)
}

// Contains reports whether a day key falls inside the month. Day keys are
// ISO-ordered, so a prefix check is enough.
func (m Month) Contains(dayKey string) bool {
	return strings.HasPrefix(dayKey, m.Key())
}

// Validate checks member configuration before it enters the registry.
func (m Member) Validate() error {
	if strings.TrimSpace(m.Name) == "" {
		return ErrEmptyName
	}
	if len(m.Name) > 200 {
		return errors.New("member name too long (max 200 characters)")
	}
	if m.MonthlyTarget.IsNegative() {
		return ErrInvalidAmount
	}
	if m.DefaultDailyPayment.IsNegative() {
		return ErrInvalidAmount
	}
	return nil
}

// Validate checks a transaction before it enters the ledger.
func (t Transaction) Validate() error {
	if t.MemberID == "" {
		return errors.New("transaction missing member id")
	}
	if t.Amount.IsNegative() {
		return ErrInvalidAmount
	}
	if _, err := ParseDay(t.Date); err != nil {
		return err
	}
	switch t.Type {
	case TransactionNormal, TransactionOutstandingCleared:
	default:
		return errors.New("unknown transaction type: " + string(t.Type))
	}
	return nil
}
