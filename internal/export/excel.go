// Package export renders monthly ledger reports as Excel workbooks.
package export

import (
	"fmt"
	"sort"
	"time"

	"dailyledger/internal/core"

	"github.com/xuri/excelize/v2"
)

const (
	summarySheet  = "Summary"
	paymentsSheet = "Payments"
)

// ContentType is the MIME type for the generated workbooks.
const ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// Filename returns the download filename for a month's workbook.
func Filename(month core.Month) string {
	return fmt.Sprintf("ledger-%s.xlsx", month.Key())
}

// BuildMonthlyWorkbook renders one month of the ledger as a two-sheet
// workbook: a per-member reconciliation summary and the month's raw payment
// listing. Balance-clearing credits shape the summary numbers but are left
// out of the payment listing, which shows only money that actually moved.
func BuildMonthlyWorkbook(members []core.Member, txns []core.Transaction, month core.Month) (*excelize.File, error) {
	f := excelize.NewFile()
	f.SetSheetName("Sheet1", summarySheet)
	if _, err := f.NewSheet(paymentsSheet); err != nil {
		return nil, fmt.Errorf("create payments sheet: %w", err)
	}

	if err := writeSummary(f, members, txns, month); err != nil {
		return nil, err
	}
	if err := writePayments(f, members, txns, month); err != nil {
		return nil, err
	}

	return f, nil
}

func writeSummary(f *excelize.File, members []core.Member, txns []core.Transaction, month core.Month) error {
	headers := []string{"Member", "Monthly Target", "Previous Balance", "Paid This Month", "Final Balance"}
	if err := writeRow(f, summarySheet, 1, toAny(headers)); err != nil {
		return err
	}

	sorted := make([]core.Member, len(members))
	copy(sorted, members)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Rank != sorted[j].Rank {
			return sorted[i].Rank < sorted[j].Rank
		}
		return sorted[i].Name < sorted[j].Name
	})

	row := 2
	for _, m := range sorted {
		due := core.MonthlyReconciliation(m, txns, month)
		err := writeRow(f, summarySheet, row, []any{
			m.Name,
			m.MonthlyTarget.String(),
			due.PreviousBalance.String(),
			due.PaidThisMonth.String(),
			due.Due.String(),
		})
		if err != nil {
			return err
		}
		row++
	}
	return nil
}

func writePayments(f *excelize.File, members []core.Member, txns []core.Transaction, month core.Month) error {
	headers := []string{"Date", "Member", "Amount", "Recorded At"}
	if err := writeRow(f, paymentsSheet, 1, toAny(headers)); err != nil {
		return err
	}

	names := make(map[string]string, len(members))
	for _, m := range members {
		names[m.ID] = m.Name
	}

	var listed []core.Transaction
	for _, t := range txns {
		if t.Type == core.TransactionOutstandingCleared {
			continue
		}
		if month.Contains(t.Date) {
			listed = append(listed, t)
		}
	}
	sort.SliceStable(listed, func(i, j int) bool {
		if listed[i].Date != listed[j].Date {
			return listed[i].Date < listed[j].Date
		}
		return listed[i].Timestamp.Before(listed[j].Timestamp)
	})

	row := 2
	for _, t := range listed {
		name := names[t.MemberID]
		if name == "" {
			name = t.MemberID
		}
		err := writeRow(f, paymentsSheet, row, []any{
			t.Date,
			name,
			t.Amount.String(),
			t.Timestamp.UTC().Format(time.RFC3339),
		})
		if err != nil {
			return err
		}
		row++
	}
	return nil
}

func writeRow(f *excelize.File, sheet string, row int, values []any) error {
	for i, v := range values {
		cell, err := excelize.CoordinatesToCellName(i+1, row)
		if err != nil {
			return fmt.Errorf("cell coordinates: %w", err)
		}
		if err := f.SetCellValue(sheet, cell, v); err != nil {
			return fmt.Errorf("set cell %s!%s: %w", sheet, cell, err)
		}
	}
	return nil
}

func toAny(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}
