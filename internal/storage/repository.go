// Package storage persists the ledger in SQLite. All multi-row updates
// that could split a journal entry from its balance deltas run inside a
// single database transaction.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rroihans/dompetku-sub001/internal/core"

	_ "modernc.org/sqlite"
)

const timeLayout = time.RFC3339

// auditLogCap is the number of audit entries retained per account.
const auditLogCap = 20

type SQLiteRepository struct {
	db *sql.DB
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	// Pragmas are per-connection in SQLite; the DSN applies them to
	// every connection the pool opens. WAL plus a busy timeout lets the
	// API server and the workers share the file: a writer that finds the
	// database locked waits instead of failing with SQLITE_BUSY.
	db, err := sql.Open("sqlite", dbPath+
		"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
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

// --- accounts ---

const accountColumns = `id, name, type, opening_balance, current_balance,
	credit_limit, is_shariah, billing_day, due_day, min_payment_fixed,
	min_payment_percent, min_installment_amount,
	admin_fee_active, admin_fee_amount, admin_fee_pattern, admin_fee_day,
	interest_active, last_admin_charge_date, last_interest_credit_date,
	created_at, updated_at`

func (r *SQLiteRepository) CreateAccount(ctx context.Context, a core.Account) (*core.Account, error) {
	if err := a.Validate(); err != nil {
		return nil, err
	}
	now := time.Now().UTC()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO accounts (
			name, type, opening_balance, current_balance,
			credit_limit, is_shariah, billing_day, due_day,
			min_payment_fixed, min_payment_percent, min_installment_amount,
			admin_fee_active, admin_fee_amount, admin_fee_pattern, admin_fee_day,
			interest_active, last_admin_charge_date, last_interest_credit_date,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.Name, string(a.Type), a.OpeningBalance, a.OpeningBalance,
		nullInt64(a.CreditLimit), nullBool(a.IsShariah), nullInt(a.BillingDay), nullInt(a.DueDay),
		nullInt64(a.MinPaymentFixed), nullFloat(a.MinPaymentPercent), nullInt64(a.MinInstallmentAmount),
		a.AdminFeeActive, nullInt64(a.AdminFeeAmount), defaultPattern(a.AdminFeePattern), nullInt(a.AdminFeeDay),
		a.InterestActive, a.LastAdminChargeDate, a.LastInterestCreditDate,
		now.Format(timeLayout), now.Format(timeLayout))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, core.NewConflictError("account named %q already exists", a.Name)
		}
		return nil, fmt.Errorf("insert account: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("account id: %w", err)
	}

	if err := replaceTiers(ctx, tx, id, a.InterestTiers); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	slog.InfoContext(ctx, "Account created",
		"account_id", id,
		"name", a.Name,
		"type", a.Type,
		"opening_balance", a.OpeningBalance)

	return r.GetAccount(ctx, id)
}

func (r *SQLiteRepository) GetAccount(ctx context.Context, id int64) (*core.Account, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE id = ?`, id)
	acc, err := scanAccount(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &core.NotFoundError{Entity: "account", ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("get account: %w", err)
	}
	if err := r.loadTiers(ctx, acc); err != nil {
		return nil, err
	}
	return acc, nil
}

func (r *SQLiteRepository) GetAccountByName(ctx context.Context, name string) (*core.Account, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE name = ?`, name)
	acc, err := scanAccount(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &core.NotFoundError{Entity: "account", ID: 0}
	}
	if err != nil {
		return nil, fmt.Errorf("get account by name: %w", err)
	}
	if err := r.loadTiers(ctx, acc); err != nil {
		return nil, err
	}
	return acc, nil
}

// ListAccounts returns accounts, optionally filtered by type. An empty
// filter returns every account, ordered by name.
func (r *SQLiteRepository) ListAccounts(ctx context.Context, typeFilter core.AccountType) ([]core.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts`
	args := []any{}
	if typeFilter != "" {
		query += ` WHERE type = ?`
		args = append(args, string(typeFilter))
	}
	query += ` ORDER BY name`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	defer rows.Close()

	var accounts []core.Account
	for rows.Next() {
		acc, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("scan account: %w", err)
		}
		accounts = append(accounts, *acc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate accounts: %w", err)
	}
	for i := range accounts {
		if err := r.loadTiers(ctx, &accounts[i]); err != nil {
			return nil, err
		}
	}
	return accounts, nil
}

// UpdateAccount rewrites an account's settings and appends the changed
// fields to the per-account audit log, capped at the most recent
// entries. Balances are never written here; only postings move them.
func (r *SQLiteRepository) UpdateAccount(ctx context.Context, a core.Account) (*core.Account, error) {
	if err := a.Validate(); err != nil {
		return nil, err
	}
	current, err := r.GetAccount(ctx, a.ID)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		UPDATE accounts SET
			name = ?, type = ?,
			credit_limit = ?, is_shariah = ?, billing_day = ?, due_day = ?,
			min_payment_fixed = ?, min_payment_percent = ?, min_installment_amount = ?,
			admin_fee_active = ?, admin_fee_amount = ?, admin_fee_pattern = ?, admin_fee_day = ?,
			interest_active = ?, updated_at = ?
		WHERE id = ?`,
		a.Name, string(a.Type),
		nullInt64(a.CreditLimit), nullBool(a.IsShariah), nullInt(a.BillingDay), nullInt(a.DueDay),
		nullInt64(a.MinPaymentFixed), nullFloat(a.MinPaymentPercent), nullInt64(a.MinInstallmentAmount),
		a.AdminFeeActive, nullInt64(a.AdminFeeAmount), defaultPattern(a.AdminFeePattern), nullInt(a.AdminFeeDay),
		a.InterestActive, now.Format(timeLayout), a.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, core.NewConflictError("account named %q already exists", a.Name)
		}
		return nil, fmt.Errorf("update account: %w", err)
	}

	if err := replaceTiers(ctx, tx, a.ID, a.InterestTiers); err != nil {
		return nil, err
	}

	for _, change := range diffAccountSettings(*current, a) {
		if err := appendAudit(ctx, tx, a.ID, now, change); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return r.GetAccount(ctx, a.ID)
}

// DeleteAccount removes an account with no ledger references. Accounts
// referenced by any transaction are protected and the delete fails with
// a conflict.
func (r *SQLiteRepository) DeleteAccount(ctx context.Context, id int64) error {
	acc, err := r.GetAccount(ctx, id)
	if err != nil {
		return err
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var refs int64
	err = tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM transactions WHERE debit_account_id = ? OR credit_account_id = ?`,
		id, id).Scan(&refs)
	if err != nil {
		return fmt.Errorf("count references: %w", err)
	}
	if refs > 0 {
		return core.NewConflictError(
			"account %q still has %d ledger entries; corrections are new offsetting entries, not deletes",
			acc.Name, refs)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM accounts WHERE id = ?`, id); err != nil {
		// A posting on another connection can still slip in between the
		// count and the delete; the foreign key reports it as a conflict.
		if isForeignKeyViolation(err) {
			return core.NewConflictError(
				"account %q still has ledger entries; corrections are new offsetting entries, not deletes",
				acc.Name)
		}
		return fmt.Errorf("delete account: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	slog.InfoContext(ctx, "Account deleted", "account_id", id, "name", acc.Name)
	return nil
}

// EnsureCategoryAccount returns the named category account, creating it
// with a zero opening balance on first use.
func (r *SQLiteRepository) EnsureCategoryAccount(ctx context.Context, name string, accType core.AccountType) (*core.Account, error) {
	acc, err := r.GetAccountByName(ctx, name)
	if err == nil {
		return acc, nil
	}
	if !core.IsNotFound(err) {
		return nil, err
	}
	created, err := r.CreateAccount(ctx, core.Account{Name: name, Type: accType})
	if err != nil {
		if core.IsConflict(err) {
			// Lost a creation race; the account exists now.
			return r.GetAccountByName(ctx, name)
		}
		return nil, err
	}
	return created, nil
}

// StampAdminCharge records the year-month of the last posted admin fee.
func (r *SQLiteRepository) StampAdminCharge(ctx context.Context, accountID int64, yearMonth string) error {
	return r.stampMarker(ctx, accountID, "last_admin_charge_date", yearMonth)
}

// StampInterestCredit records the year-month of the last interest credit.
func (r *SQLiteRepository) StampInterestCredit(ctx context.Context, accountID int64, yearMonth string) error {
	return r.stampMarker(ctx, accountID, "last_interest_credit_date", yearMonth)
}

func (r *SQLiteRepository) stampMarker(ctx context.Context, accountID int64, column, yearMonth string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE accounts SET `+column+` = ?, updated_at = ? WHERE id = ?`,
		yearMonth, time.Now().UTC().Format(timeLayout), accountID)
	if err != nil {
		return fmt.Errorf("stamp %s: %w", column, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("stamp %s: %w", column, err)
	}
	if n == 0 {
		return &core.NotFoundError{Entity: "account", ID: accountID}
	}
	return nil
}

// --- transactions ---

const transactionColumns = `id, posted_at, description, category, kind, amount,
	debit_account_id, credit_account_id, installment_plan_id,
	COALESCE(idempotency_key, ''), converted_to_installment, created_at`

// PostTransactions inserts one or more journal entries and adjusts both
// account balances for each, all inside a single database transaction.
// Either every row and every balance delta commits, or none do.
func (r *SQLiteRepository) PostTransactions(ctx context.Context, entries []core.NewTransaction) ([]core.Transaction, error) {
	if len(entries) == 0 {
		return nil, core.NewValidationError("no transactions to post")
	}
	for _, e := range entries {
		if err := e.Validate(); err != nil {
			return nil, err
		}
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	posted := make([]core.Transaction, 0, len(entries))
	for _, e := range entries {
		t, err := insertTransaction(ctx, tx, e)
		if err != nil {
			return nil, err
		}
		posted = append(posted, *t)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	for _, t := range posted {
		slog.InfoContext(ctx, "Transaction posted",
			"transaction_id", t.ID,
			"amount", t.Amount,
			"kind", t.Kind,
			"debit_account_id", t.DebitAccountID,
			"credit_account_id", t.CreditAccountID)
	}
	return posted, nil
}

// insertTransaction writes one journal row and its two balance deltas
// using the caller's open database transaction.
func insertTransaction(ctx context.Context, tx *sql.Tx, e core.NewTransaction) (*core.Transaction, error) {
	postedAt := e.PostedAt
	if postedAt.IsZero() {
		postedAt = time.Now().UTC()
	}
	kind := e.Kind
	if kind == "" {
		kind = core.KindPurchase
	}
	now := time.Now().UTC()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO transactions (
			posted_at, description, category, kind, amount,
			debit_account_id, credit_account_id, installment_plan_id,
			idempotency_key, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		postedAt.UTC().Format(timeLayout), e.Description, e.Category, string(kind), e.Amount,
		e.DebitAccountID, e.CreditAccountID, e.InstallmentPlanID,
		nullString(e.IdempotencyKey), now.Format(timeLayout))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, core.NewConflictError("idempotency key %q already posted", e.IdempotencyKey)
		}
		if isForeignKeyViolation(err) {
			return nil, missingAccount(ctx, tx, e)
		}
		return nil, fmt.Errorf("insert transaction: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("transaction id: %w", err)
	}

	if err := adjustBalance(ctx, tx, e.DebitAccountID, e.Amount); err != nil {
		return nil, err
	}
	if err := adjustBalance(ctx, tx, e.CreditAccountID, -e.Amount); err != nil {
		return nil, err
	}

	return &core.Transaction{
		ID:                id,
		PostedAt:          postedAt.UTC(),
		Description:       e.Description,
		Category:          e.Category,
		Kind:              kind,
		Amount:            e.Amount,
		DebitAccountID:    e.DebitAccountID,
		CreditAccountID:   e.CreditAccountID,
		InstallmentPlanID: e.InstallmentPlanID,
		IdempotencyKey:    e.IdempotencyKey,
		CreatedAt:         now,
	}, nil
}

// missingAccount names the side whose account the foreign key rejected.
// The violation itself does not say which reference failed, so probe
// both rows on the still-open transaction.
func missingAccount(ctx context.Context, tx *sql.Tx, e core.NewTransaction) error {
	var n int
	err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM accounts WHERE id = ?`, e.DebitAccountID).Scan(&n)
	if err == nil && n == 0 {
		return &core.NotFoundError{Entity: "account", ID: e.DebitAccountID}
	}
	return &core.NotFoundError{Entity: "account", ID: e.CreditAccountID}
}

func adjustBalance(ctx context.Context, tx *sql.Tx, accountID, delta int64) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE accounts SET current_balance = current_balance + ?, updated_at = ? WHERE id = ?`,
		delta, time.Now().UTC().Format(timeLayout), accountID)
	if err != nil {
		return fmt.Errorf("adjust balance: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("adjust balance: %w", err)
	}
	if n == 0 {
		return &core.NotFoundError{Entity: "account", ID: accountID}
	}
	return nil
}

func (r *SQLiteRepository) GetTransaction(ctx context.Context, id int64) (*core.Transaction, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE id = ?`, id)
	t, err := scanTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &core.NotFoundError{Entity: "transaction", ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("get transaction: %w", err)
	}
	return t, nil
}

// TransactionFilter narrows ListTransactions. Zero values mean "no
// constraint". AccountID matches either side; DebitAccountID and
// CreditAccountID match one side only.
type TransactionFilter struct {
	AccountID       int64
	DebitAccountID  int64
	CreditAccountID int64
	From            time.Time
	To              time.Time
	Category        string
	Kind            core.TransactionKind
	MinAmount       int64
	MaxAmount       int64
	Limit           int
	Offset          int
	SortAscending   bool
}

func (r *SQLiteRepository) ListTransactions(ctx context.Context, f TransactionFilter) ([]core.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE 1=1`
	args := []any{}

	if f.AccountID != 0 {
		query += ` AND (debit_account_id = ? OR credit_account_id = ?)`
		args = append(args, f.AccountID, f.AccountID)
	}
	if f.DebitAccountID != 0 {
		query += ` AND debit_account_id = ?`
		args = append(args, f.DebitAccountID)
	}
	if f.CreditAccountID != 0 {
		query += ` AND credit_account_id = ?`
		args = append(args, f.CreditAccountID)
	}
	if !f.From.IsZero() {
		query += ` AND posted_at >= ?`
		args = append(args, f.From.UTC().Format(timeLayout))
	}
	if !f.To.IsZero() {
		query += ` AND posted_at <= ?`
		args = append(args, f.To.UTC().Format(timeLayout))
	}
	if f.Category != "" {
		query += ` AND category = ?`
		args = append(args, f.Category)
	}
	if f.Kind != "" {
		query += ` AND kind = ?`
		args = append(args, string(f.Kind))
	}
	if f.MinAmount > 0 {
		query += ` AND amount >= ?`
		args = append(args, f.MinAmount)
	}
	if f.MaxAmount > 0 {
		query += ` AND amount <= ?`
		args = append(args, f.MaxAmount)
	}

	if f.SortAscending {
		query += ` ORDER BY posted_at ASC, id ASC`
	} else {
		query += ` ORDER BY posted_at DESC, id DESC`
	}
	if f.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, f.Limit)
		if f.Offset > 0 {
			query += ` OFFSET ?`
			args = append(args, f.Offset)
		}
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	var out []core.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		out = append(out, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transactions: %w", err)
	}
	return out, nil
}

// RunningBalanceAsOf reconstructs the balance the account held just
// before the given instant: opening balance plus the signed sum of every
// entry posted strictly before it. Linear in the account's history,
// which is fine at personal-finance volumes.
func (r *SQLiteRepository) RunningBalanceAsOf(ctx context.Context, accountID int64, asOf time.Time) (int64, error) {
	acc, err := r.GetAccount(ctx, accountID)
	if err != nil {
		return 0, err
	}
	var debits, credits int64
	err = r.db.QueryRowContext(ctx, `
		SELECT
			COALESCE(SUM(CASE WHEN debit_account_id = ? THEN amount ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN credit_account_id = ? THEN amount ELSE 0 END), 0)
		FROM transactions
		WHERE (debit_account_id = ? OR credit_account_id = ?) AND posted_at < ?`,
		accountID, accountID, accountID, accountID, asOf.UTC().Format(timeLayout)).
		Scan(&debits, &credits)
	if err != nil {
		return 0, fmt.Errorf("sum transactions: %w", err)
	}
	return acc.OpeningBalance + debits - credits, nil
}

// --- installment plans ---

const planColumns = `id, product_name, principal, tenor_months, installments_paid,
	monthly_amount, admin_fee, interest_rate_percent, due_day, status,
	credit_account_id, expense_account_id, source_transaction_id, created_at`

// CreatePlan atomically creates an installment plan, marks the source
// transaction as converted, and posts the optional one-time admin-fee
// entry. The source transaction's posted ledger effect is left intact;
// only the conversion linkage changes.
func (r *SQLiteRepository) CreatePlan(ctx context.Context, plan core.InstallmentPlan, adminFee *core.NewTransaction) (*core.InstallmentPlan, error) {
	now := time.Now().UTC()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	// Claim the source transaction first; the WHERE clause loses the
	// race when a concurrent conversion already flagged it.
	res, err := tx.ExecContext(ctx, `
		UPDATE transactions SET converted_to_installment = 1
		WHERE id = ? AND converted_to_installment = 0`,
		plan.SourceTransactionID)
	if err != nil {
		return nil, fmt.Errorf("mark converted: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("mark converted: %w", err)
	}
	if n == 0 {
		return nil, core.NewConflictError("transaction %d is already converted to an installment", plan.SourceTransactionID)
	}

	planRes, err := tx.ExecContext(ctx, `
		INSERT INTO installment_plans (
			product_name, principal, tenor_months, installments_paid,
			monthly_amount, admin_fee, interest_rate_percent, due_day, status,
			credit_account_id, expense_account_id, source_transaction_id, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		plan.ProductName, plan.Principal, plan.TenorMonths, plan.InstallmentsPaid,
		plan.MonthlyAmount, plan.AdminFee, plan.InterestRatePercent, plan.DueDay, string(plan.Status),
		plan.CreditAccountID, plan.ExpenseAccountID, plan.SourceTransactionID, now.Format(timeLayout))
	if err != nil {
		return nil, fmt.Errorf("insert plan: %w", err)
	}
	planID, err := planRes.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("plan id: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE transactions SET installment_plan_id = ? WHERE id = ?`,
		planID, plan.SourceTransactionID); err != nil {
		return nil, fmt.Errorf("link source transaction: %w", err)
	}

	if adminFee != nil {
		adminFee.InstallmentPlanID = planID
		if _, err := insertTransaction(ctx, tx, *adminFee); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	slog.InfoContext(ctx, "Installment plan created",
		"plan_id", planID,
		"source_transaction_id", plan.SourceTransactionID,
		"principal", plan.Principal,
		"tenor_months", plan.TenorMonths,
		"monthly_amount", plan.MonthlyAmount,
		"admin_fee", plan.AdminFee)

	return r.GetPlan(ctx, planID)
}

func (r *SQLiteRepository) GetPlan(ctx context.Context, id int64) (*core.InstallmentPlan, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+planColumns+` FROM installment_plans WHERE id = ?`, id)
	p, err := scanPlan(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &core.NotFoundError{Entity: "installment plan", ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("get plan: %w", err)
	}
	return p, nil
}

// ListPlans returns plans, optionally filtered by status.
func (r *SQLiteRepository) ListPlans(ctx context.Context, status core.PlanStatus) ([]core.InstallmentPlan, error) {
	query := `SELECT ` + planColumns + ` FROM installment_plans`
	args := []any{}
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, string(status))
	}
	query += ` ORDER BY id`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list plans: %w", err)
	}
	defer rows.Close()

	var out []core.InstallmentPlan
	for rows.Next() {
		p, err := scanPlan(rows)
		if err != nil {
			return nil, fmt.Errorf("scan plan: %w", err)
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

// AdvancePlan posts the given installment debit and moves the plan's
// progress in the same database transaction.
func (r *SQLiteRepository) AdvancePlan(ctx context.Context, planID int64, installmentsPaid int, status core.PlanStatus, entry core.NewTransaction) (*core.Transaction, error) {
	if err := entry.Validate(); err != nil {
		return nil, err
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	posted, err := insertTransaction(ctx, tx, entry)
	if err != nil {
		return nil, err
	}

	res, err := tx.ExecContext(ctx,
		`UPDATE installment_plans SET installments_paid = ?, status = ? WHERE id = ?`,
		installmentsPaid, string(status), planID)
	if err != nil {
		return nil, fmt.Errorf("update plan progress: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("update plan progress: %w", err)
	}
	if n == 0 {
		return nil, &core.NotFoundError{Entity: "installment plan", ID: planID}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	slog.InfoContext(ctx, "Installment plan advanced",
		"plan_id", planID,
		"installments_paid", installmentsPaid,
		"status", status,
		"amount", entry.Amount)

	return posted, nil
}

// DeletePlan removes a plan and unlinks its source transaction. The
// business rule that only unstarted plans may be deleted lives in the
// installment service.
func (r *SQLiteRepository) DeletePlan(ctx context.Context, id int64) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	// Clears the source row's conversion flag and the linkage on every
	// other row the plan produced, such as its admin fee entry.
	if _, err := tx.ExecContext(ctx, `
		UPDATE transactions SET converted_to_installment = 0, installment_plan_id = 0
		WHERE installment_plan_id = ?`, id); err != nil {
		return fmt.Errorf("unlink plan transactions: %w", err)
	}

	res, err := tx.ExecContext(ctx, `DELETE FROM installment_plans WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete plan: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete plan: %w", err)
	}
	if n == 0 {
		return &core.NotFoundError{Entity: "installment plan", ID: id}
	}

	return tx.Commit()
}

// --- installment templates ---

func (r *SQLiteRepository) GetTemplate(ctx context.Context, bankName string, tenorMonths int) (*core.InstallmentTemplate, error) {
	var t core.InstallmentTemplate
	var feeType string
	err := r.db.QueryRowContext(ctx, `
		SELECT id, bank_name, tenor_months, admin_fee_type, admin_fee_value
		FROM installment_templates WHERE bank_name = ? AND tenor_months = ?`,
		bankName, tenorMonths).
		Scan(&t.ID, &t.BankName, &t.TenorMonths, &feeType, &t.AdminFeeValue)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &core.NotFoundError{Entity: "installment template", ID: 0}
	}
	if err != nil {
		return nil, fmt.Errorf("get template: %w", err)
	}
	t.AdminFeeType = core.AdminFeeType(feeType)
	return &t, nil
}

func (r *SQLiteRepository) SaveTemplate(ctx context.Context, t core.InstallmentTemplate) (*core.InstallmentTemplate, error) {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO installment_templates (bank_name, tenor_months, admin_fee_type, admin_fee_value)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (bank_name, tenor_months)
		DO UPDATE SET admin_fee_type = excluded.admin_fee_type, admin_fee_value = excluded.admin_fee_value`,
		t.BankName, t.TenorMonths, string(t.AdminFeeType), t.AdminFeeValue)
	if err != nil {
		return nil, fmt.Errorf("save template: %w", err)
	}
	if id, err := res.LastInsertId(); err == nil && id > 0 {
		t.ID = id
	}
	return &t, nil
}

// --- audit log ---

func (r *SQLiteRepository) ListAuditLog(ctx context.Context, accountID int64) ([]core.AuditEntry, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, account_id, changed_at, field, old_value, new_value
		FROM account_audit_log WHERE account_id = ? ORDER BY id DESC`, accountID)
	if err != nil {
		return nil, fmt.Errorf("list audit log: %w", err)
	}
	defer rows.Close()

	var out []core.AuditEntry
	for rows.Next() {
		var e core.AuditEntry
		var changedAt string
		if err := rows.Scan(&e.ID, &e.AccountID, &changedAt, &e.Field, &e.OldValue, &e.NewValue); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		e.ChangedAt, _ = time.Parse(timeLayout, changedAt)
		out = append(out, e)
	}
	return out, rows.Err()
}

type settingChange struct {
	field    string
	oldValue string
	newValue string
}

func appendAudit(ctx context.Context, tx *sql.Tx, accountID int64, now time.Time, change settingChange) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO account_audit_log (account_id, changed_at, field, old_value, new_value)
		VALUES (?, ?, ?, ?, ?)`,
		accountID, now.Format(timeLayout), change.field, change.oldValue, change.newValue)
	if err != nil {
		return fmt.Errorf("append audit entry: %w", err)
	}
	// Keep only the most recent entries per account.
	_, err = tx.ExecContext(ctx, `
		DELETE FROM account_audit_log WHERE account_id = ? AND id NOT IN (
			SELECT id FROM account_audit_log WHERE account_id = ? ORDER BY id DESC LIMIT ?
		)`, accountID, accountID, auditLogCap)
	if err != nil {
		return fmt.Errorf("trim audit log: %w", err)
	}
	return nil
}

func diffAccountSettings(oldAcc, newAcc core.Account) []settingChange {
	var changes []settingChange
	add := func(field, oldV, newV string) {
		if oldV != newV {
			changes = append(changes, settingChange{field: field, oldValue: oldV, newValue: newV})
		}
	}
	add("name", oldAcc.Name, newAcc.Name)
	add("type", string(oldAcc.Type), string(newAcc.Type))
	add("creditLimit", fmtInt64Ptr(oldAcc.CreditLimit), fmtInt64Ptr(newAcc.CreditLimit))
	add("isShariah", fmtBoolPtr(oldAcc.IsShariah), fmtBoolPtr(newAcc.IsShariah))
	add("billingDay", fmtIntPtr(oldAcc.BillingDay), fmtIntPtr(newAcc.BillingDay))
	add("dueDay", fmtIntPtr(oldAcc.DueDay), fmtIntPtr(newAcc.DueDay))
	add("minPaymentFixed", fmtInt64Ptr(oldAcc.MinPaymentFixed), fmtInt64Ptr(newAcc.MinPaymentFixed))
	add("minPaymentPercent", fmtFloatPtr(oldAcc.MinPaymentPercent), fmtFloatPtr(newAcc.MinPaymentPercent))
	add("minInstallmentAmount", fmtInt64Ptr(oldAcc.MinInstallmentAmount), fmtInt64Ptr(newAcc.MinInstallmentAmount))
	add("adminFeeActive", fmt.Sprintf("%t", oldAcc.AdminFeeActive), fmt.Sprintf("%t", newAcc.AdminFeeActive))
	add("adminFeeAmount", fmtInt64Ptr(oldAcc.AdminFeeAmount), fmtInt64Ptr(newAcc.AdminFeeAmount))
	add("adminFeePattern", oldAcc.AdminFeePattern, newAcc.AdminFeePattern)
	add("adminFeeDay", fmtIntPtr(oldAcc.AdminFeeDay), fmtIntPtr(newAcc.AdminFeeDay))
	add("interestActive", fmt.Sprintf("%t", oldAcc.InterestActive), fmt.Sprintf("%t", newAcc.InterestActive))
	return changes
}

// --- scan and null helpers ---

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (*core.Account, error) {
	var a core.Account
	var accType string
	var creditLimit, minPaymentFixed, minInstallment, adminFeeAmount sql.NullInt64
	var isShariah sql.NullBool
	var billingDay, dueDay, adminFeeDay sql.NullInt64
	var minPaymentPercent sql.NullFloat64
	var createdAt, updatedAt string

	err := row.Scan(
		&a.ID, &a.Name, &accType, &a.OpeningBalance, &a.CurrentBalance,
		&creditLimit, &isShariah, &billingDay, &dueDay, &minPaymentFixed,
		&minPaymentPercent, &minInstallment,
		&a.AdminFeeActive, &adminFeeAmount, &a.AdminFeePattern, &adminFeeDay,
		&a.InterestActive, &a.LastAdminChargeDate, &a.LastInterestCreditDate,
		&createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	a.Type = core.AccountType(accType)
	a.CreditLimit = int64PtrOf(creditLimit)
	a.MinPaymentFixed = int64PtrOf(minPaymentFixed)
	a.MinInstallmentAmount = int64PtrOf(minInstallment)
	a.AdminFeeAmount = int64PtrOf(adminFeeAmount)
	if isShariah.Valid {
		v := isShariah.Bool
		a.IsShariah = &v
	}
	a.BillingDay = intPtrOf(billingDay)
	a.DueDay = intPtrOf(dueDay)
	a.AdminFeeDay = intPtrOf(adminFeeDay)
	if minPaymentPercent.Valid {
		v := minPaymentPercent.Float64
		a.MinPaymentPercent = &v
	}
	a.CreatedAt, _ = time.Parse(timeLayout, createdAt)
	a.UpdatedAt, _ = time.Parse(timeLayout, updatedAt)
	return &a, nil
}

func (r *SQLiteRepository) loadTiers(ctx context.Context, a *core.Account) error {
	rows, err := r.db.QueryContext(ctx, `
		SELECT min_balance, max_balance, annual_rate_percent
		FROM interest_tiers WHERE account_id = ? ORDER BY position`, a.ID)
	if err != nil {
		return fmt.Errorf("load interest tiers: %w", err)
	}
	defer rows.Close()

	a.InterestTiers = nil
	for rows.Next() {
		var tier core.InterestTier
		var maxBalance sql.NullInt64
		if err := rows.Scan(&tier.MinBalance, &maxBalance, &tier.AnnualRatePercent); err != nil {
			return fmt.Errorf("scan interest tier: %w", err)
		}
		tier.MaxBalance = int64PtrOf(maxBalance)
		a.InterestTiers = append(a.InterestTiers, tier)
	}
	return rows.Err()
}

func replaceTiers(ctx context.Context, tx *sql.Tx, accountID int64, tiers []core.InterestTier) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM interest_tiers WHERE account_id = ?`, accountID); err != nil {
		return fmt.Errorf("clear interest tiers: %w", err)
	}
	for i, tier := range tiers {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO interest_tiers (account_id, position, min_balance, max_balance, annual_rate_percent)
			VALUES (?, ?, ?, ?, ?)`,
			accountID, i, tier.MinBalance, nullInt64(tier.MaxBalance), tier.AnnualRatePercent)
		if err != nil {
			return fmt.Errorf("insert interest tier: %w", err)
		}
	}
	return nil
}

func scanTransaction(row rowScanner) (*core.Transaction, error) {
	var t core.Transaction
	var kind, postedAt, createdAt string
	err := row.Scan(
		&t.ID, &postedAt, &t.Description, &t.Category, &kind, &t.Amount,
		&t.DebitAccountID, &t.CreditAccountID, &t.InstallmentPlanID,
		&t.IdempotencyKey, &t.ConvertedToInstallment, &createdAt)
	if err != nil {
		return nil, err
	}
	t.Kind = core.TransactionKind(kind)
	t.PostedAt, _ = time.Parse(timeLayout, postedAt)
	t.CreatedAt, _ = time.Parse(timeLayout, createdAt)
	return &t, nil
}

func scanPlan(row rowScanner) (*core.InstallmentPlan, error) {
	var p core.InstallmentPlan
	var status, createdAt string
	err := row.Scan(
		&p.ID, &p.ProductName, &p.Principal, &p.TenorMonths, &p.InstallmentsPaid,
		&p.MonthlyAmount, &p.AdminFee, &p.InterestRatePercent, &p.DueDay, &status,
		&p.CreditAccountID, &p.ExpenseAccountID, &p.SourceTransactionID, &createdAt)
	if err != nil {
		return nil, err
	}
	p.Status = core.PlanStatus(status)
	p.CreatedAt, _ = time.Parse(timeLayout, createdAt)
	return &p, nil
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func isForeignKeyViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "FOREIGN KEY constraint failed")
}

func nullInt64(v *int64) any {
	if v == nil {
		return nil
	}
	return *v
}

func nullInt(v *int) any {
	if v == nil {
		return nil
	}
	return *v
}

func nullBool(v *bool) any {
	if v == nil {
		return nil
	}
	return *v
}

func nullFloat(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func defaultPattern(p string) string {
	if p == "" {
		return "FIXED_DAY"
	}
	return p
}

func int64PtrOf(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	n := v.Int64
	return &n
}

func intPtrOf(v sql.NullInt64) *int {
	if !v.Valid {
		return nil
	}
	n := int(v.Int64)
	return &n
}

func fmtInt64Ptr(v *int64) string {
	if v == nil {
		return ""
	}
	return fmt.Sprintf("%d", *v)
}

func fmtIntPtr(v *int) string {
	if v == nil {
		return ""
	}
	return fmt.Sprintf("%d", *v)
}

func fmtBoolPtr(v *bool) string {
	if v == nil {
		return ""
	}
	return fmt.Sprintf("%t", *v)
}

func fmtFloatPtr(v *float64) string {
	if v == nil {
		return ""
	}
	return fmt.Sprintf("%g", *v)
}
