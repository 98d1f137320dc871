package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"dailyledger/internal/core"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"
)

// ErrTransactionNotFound is returned when a referenced ledger entry does not
// exist for the user.
var ErrTransactionNotFound = errors.New("transaction not found")

// SQLiteRepository owns members, the transaction ledger, and the persisted
// snapshot documents.
type SQLiteRepository struct {
	db *sql.DB
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// CreateMember inserts a member, minting an ID when none is supplied.
func (r *SQLiteRepository) CreateMember(ctx context.Context, m core.Member) (core.Member, error) {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.CreatedOn.IsZero() {
		m.CreatedOn = time.Now().UTC()
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO members (id, user_id, name, monthly_target, default_daily_payment, created_on, rank, archived, archived_on, archived_reason)
		VALUES (?, ?, ?, ?, ?, ?, ?, 0, NULL, '')`,
		m.ID, m.UserID, m.Name, m.MonthlyTarget.String(), m.DefaultDailyPayment.String(), m.CreatedOn, m.Rank)
	if err != nil {
		return core.Member{}, fmt.Errorf("create member: %w", err)
	}

	slog.InfoContext(ctx, "Member created",
		"member_id", m.ID,
		"user_id", m.UserID,
		"monthly_target", m.MonthlyTarget.String())

	return m, nil
}

const memberColumns = `id, user_id, name, monthly_target, default_daily_payment, created_on, rank, archived, archived_on, archived_reason`

func scanMember(row interface{ Scan(...any) error }) (core.Member, error) {
	var (
		m              core.Member
		target, daily  string
		archived       int
		archivedOn     sql.NullTime
		archivedReason string
	)
	if err := row.Scan(&m.ID, &m.UserID, &m.Name, &target, &daily, &m.CreatedOn, &m.Rank, &archived, &archivedOn, &archivedReason); err != nil {
		return core.Member{}, err
	}

	var err error
	if m.MonthlyTarget, err = decimal.NewFromString(target); err != nil {
		return core.Member{}, fmt.Errorf("parse monthly target %q: %w", target, err)
	}
	if m.DefaultDailyPayment, err = decimal.NewFromString(daily); err != nil {
		return core.Member{}, fmt.Errorf("parse default daily payment %q: %w", daily, err)
	}
	m.Archived = archived != 0
	if archivedOn.Valid {
		t := archivedOn.Time
		m.ArchivedOn = &t
	}
	m.ArchivedReason = archivedReason
	return m, nil
}

// ListMembers returns all of a user's members ordered by display rank.
func (r *SQLiteRepository) ListMembers(ctx context.Context, userID string) ([]core.Member, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+memberColumns+` FROM members WHERE user_id = ? ORDER BY rank, name`, userID)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	defer rows.Close()

	var members []core.Member
	for rows.Next() {
		m, err := scanMember(rows)
		if err != nil {
			return nil, fmt.Errorf("scan member: %w", err)
		}
		members = append(members, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate members: %w", err)
	}
	return members, nil
}

func (r *SQLiteRepository) GetMember(ctx context.Context, userID, memberID string) (core.Member, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+memberColumns+` FROM members WHERE user_id = ? AND id = ?`, userID, memberID)
	m, err := scanMember(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Member{}, core.ErrMemberNotFound
	}
	if err != nil {
		return core.Member{}, fmt.Errorf("get member: %w", err)
	}
	return m, nil
}

// ArchiveMember marks a member archived from now on; historical balance is
// kept.
func (r *SQLiteRepository) ArchiveMember(ctx context.Context, userID, memberID, reason string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE members SET archived = 1, archived_on = ?, archived_reason = ? WHERE user_id = ? AND id = ?`,
		time.Now().UTC(), reason, userID, memberID)
	if err != nil {
		return fmt.Errorf("archive member: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return core.ErrMemberNotFound
	}

	slog.InfoContext(ctx, "Member archived", "member_id", memberID, "reason", reason)
	return nil
}

func (r *SQLiteRepository) UnarchiveMember(ctx context.Context, userID, memberID string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE members SET archived = 0, archived_on = NULL, archived_reason = '' WHERE user_id = ? AND id = ?`,
		userID, memberID)
	if err != nil {
		return fmt.Errorf("unarchive member: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return core.ErrMemberNotFound
	}

	slog.InfoContext(ctx, "Member unarchived", "member_id", memberID)
	return nil
}

// ListUserIDs returns every user with at least one member. The worker sweep
// uses it to refresh snapshots across tenants.
func (r *SQLiteRepository) ListUserIDs(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT DISTINCT user_id FROM members ORDER BY user_id`)
	if err != nil {
		return nil, fmt.Errorf("list user ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan user id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate user ids: %w", err)
	}
	return ids, nil
}

// InsertTransaction appends one entry to the ledger.
func (r *SQLiteRepository) InsertTransaction(ctx context.Context, t core.Transaction) (core.Transaction, error) {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.Timestamp.IsZero() {
		t.Timestamp = time.Now().UTC()
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO transactions (id, user_id, member_id, amount, txn_date, recorded_at, txn_type)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.UserID, t.MemberID, t.Amount.String(), t.Date, t.Timestamp, string(t.Type))
	if err != nil {
		return core.Transaction{}, fmt.Errorf("insert transaction: %w", err)
	}

	slog.InfoContext(ctx, "Transaction recorded",
		"transaction_id", t.ID,
		"member_id", t.MemberID,
		"date", t.Date,
		"amount", t.Amount.String(),
		"type", string(t.Type))

	return t, nil
}

// UpdateTransactionAmount corrects the amount of an existing entry and
// returns the updated transaction so callers know which periods to
// invalidate.
func (r *SQLiteRepository) UpdateTransactionAmount(ctx context.Context, userID, txnID string, amount decimal.Decimal) (core.Transaction, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE transactions SET amount = ? WHERE user_id = ? AND id = ?`,
		amount.String(), userID, txnID)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("update transaction amount: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return core.Transaction{}, ErrTransactionNotFound
	}

	row := r.db.QueryRowContext(ctx,
		`SELECT id, user_id, member_id, amount, txn_date, recorded_at, txn_type FROM transactions WHERE user_id = ? AND id = ?`,
		userID, txnID)
	t, err := scanTransaction(row)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("reload transaction: %w", err)
	}

	slog.InfoContext(ctx, "Transaction amount corrected",
		"transaction_id", t.ID,
		"member_id", t.MemberID,
		"amount", t.Amount.String())

	return t, nil
}

func scanTransaction(row interface{ Scan(...any) error }) (core.Transaction, error) {
	var (
		t       core.Transaction
		amount  string
		txnType string
	)
	if err := row.Scan(&t.ID, &t.UserID, &t.MemberID, &amount, &t.Date, &t.Timestamp, &txnType); err != nil {
		return core.Transaction{}, err
	}
	var err error
	if t.Amount, err = decimal.NewFromString(amount); err != nil {
		return core.Transaction{}, fmt.Errorf("parse amount %q: %w", amount, err)
	}
	t.Type = core.TransactionType(txnType)
	return t, nil
}

// QueryTransactions returns ledger entries matching the filter, ordered by
// date then recording instant.
func (r *SQLiteRepository) QueryTransactions(ctx context.Context, userID string, f core.TransactionFilter) ([]core.Transaction, error) {
	query := `SELECT id, user_id, member_id, amount, txn_date, recorded_at, txn_type FROM transactions WHERE user_id = ?`
	args := []any{userID}

	var conds []string
	if f.MemberID != "" {
		conds = append(conds, "member_id = ?")
		args = append(args, f.MemberID)
	}
	if f.DateEquals != "" {
		conds = append(conds, "txn_date = ?")
		args = append(args, f.DateEquals)
	}
	if f.DateFrom != "" {
		conds = append(conds, "txn_date >= ?")
		args = append(args, f.DateFrom)
	}
	if f.DateTo != "" {
		conds = append(conds, "txn_date <= ?")
		args = append(args, f.DateTo)
	}
	if len(conds) > 0 {
		query += " AND " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY txn_date, recorded_at"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query transactions: %w", err)
	}
	defer rows.Close()

	var txns []core.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		txns = append(txns, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transactions: %w", err)
	}
	return txns, nil
}

// ReadDailySnapshot returns the stored daily document, or nil when no
// snapshot exists for the key.
func (r *SQLiteRepository) ReadDailySnapshot(ctx context.Context, userID, date string) (*core.DailySnapshot, error) {
	var payload string
	err := r.db.QueryRowContext(ctx,
		`SELECT payload FROM daily_snapshots WHERE user_id = ? AND snapshot_date = ?`,
		userID, date).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read daily snapshot: %w", err)
	}

	var snap core.DailySnapshot
	if err := json.Unmarshal([]byte(payload), &snap); err != nil {
		return nil, fmt.Errorf("decode daily snapshot: %w", err)
	}
	return &snap, nil
}

// WriteDailySnapshot upserts the daily document. Last write wins.
func (r *SQLiteRepository) WriteDailySnapshot(ctx context.Context, userID string, snap core.DailySnapshot) error {
	payload, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode daily snapshot: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO daily_snapshots (user_id, snapshot_date, payload, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (user_id, snapshot_date) DO UPDATE SET payload = excluded.payload, updated_at = excluded.updated_at`,
		userID, snap.Date, string(payload), snap.UpdatedAt)
	if err != nil {
		return fmt.Errorf("write daily snapshot: %w", err)
	}
	return nil
}

// ReadMonthlySnapshot returns the stored monthly document, or nil when no
// snapshot exists for the key.
func (r *SQLiteRepository) ReadMonthlySnapshot(ctx context.Context, userID, month string) (*core.MonthlySnapshot, error) {
	var payload string
	err := r.db.QueryRowContext(ctx,
		`SELECT payload FROM monthly_snapshots WHERE user_id = ? AND month = ?`,
		userID, month).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read monthly snapshot: %w", err)
	}

	var snap core.MonthlySnapshot
	if err := json.Unmarshal([]byte(payload), &snap); err != nil {
		return nil, fmt.Errorf("decode monthly snapshot: %w", err)
	}
	return &snap, nil
}

// WriteMonthlySnapshot upserts the monthly document. Last write wins.
func (r *SQLiteRepository) WriteMonthlySnapshot(ctx context.Context, userID string, snap core.MonthlySnapshot) error {
	payload, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode monthly snapshot: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO monthly_snapshots (user_id, month, payload, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (user_id, month) DO UPDATE SET payload = excluded.payload, updated_at = excluded.updated_at`,
		userID, snap.Month, string(payload), snap.UpdatedAt)
	if err != nil {
		return fmt.Errorf("write monthly snapshot: %w", err)
	}
	return nil
}
