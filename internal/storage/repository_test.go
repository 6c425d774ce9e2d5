package storage

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/rroihans/dompetku-sub001/internal/core"
)

// testRepo creates a temporary SQLite repository with the full schema
// and returns it along with a cleanup function.
func testRepo(t *testing.T) (*SQLiteRepository, func()) {
	t.Helper()
	f, err := os.CreateTemp("", "dompetku-test-*.db")
	if err != nil {
		t.Fatalf("create temp file: %v", err)
	}
	path := f.Name()
	f.Close()

	repo, err := NewSQLiteRepository(path)
	if err != nil {
		os.Remove(path)
		t.Fatalf("NewSQLiteRepository: %v", err)
	}
	return repo, func() {
		repo.Close()
		os.Remove(path)
		os.Remove(path + "-wal")
		os.Remove(path + "-shm")
	}
}

func mustCreateAccount(t *testing.T, repo *SQLiteRepository, a core.Account) *core.Account {
	t.Helper()
	created, err := repo.CreateAccount(context.Background(), a)
	if err != nil {
		t.Fatalf("CreateAccount(%q): %v", a.Name, err)
	}
	return created
}

func TestCreateAndGetAccount(t *testing.T) {
	repo, cleanup := testRepo(t)
	defer cleanup()
	ctx := context.Background()

	limit := int64(1000000000)
	shariah := false
	billingDay, dueDay := 15, 5
	fixed := int64(5000000)
	pct := 5.0

	created := mustCreateAccount(t, repo, core.Account{
		Name:              "Visa Platinum",
		Type:              core.AccountCreditCard,
		CreditLimit:       &limit,
		IsShariah:         &shariah,
		BillingDay:        &billingDay,
		DueDay:            &dueDay,
		MinPaymentFixed:   &fixed,
		MinPaymentPercent: &pct,
	})

	got, err := repo.GetAccount(ctx, created.ID)
	if err != nil {
		t.Fatalf("GetAccount: %v", err)
	}
	if got.Name != "Visa Platinum" || got.Type != core.AccountCreditCard {
		t.Errorf("unexpected account: %+v", got)
	}
	if got.BillingDay == nil || *got.BillingDay != 15 {
		t.Errorf("billing day not round-tripped: %v", got.BillingDay)
	}
	if got.MinPaymentPercent == nil || *got.MinPaymentPercent != 5.0 {
		t.Errorf("min payment percent not round-tripped: %v", got.MinPaymentPercent)
	}
	if got.CurrentBalance != 0 {
		t.Errorf("new account balance = %d, want 0", got.CurrentBalance)
	}
}

func TestCreateAccountDuplicateName(t *testing.T) {
	repo, cleanup := testRepo(t)
	defer cleanup()

	mustCreateAccount(t, repo, core.Account{Name: "Cash", Type: core.AccountCash})
	_, err := repo.CreateAccount(context.Background(), core.Account{Name: "Cash", Type: core.AccountCash})
	if !core.IsConflict(err) {
		t.Fatalf("expected ConflictError, got %v", err)
	}
}

func TestGetAccountNotFound(t *testing.T) {
	repo, cleanup := testRepo(t)
	defer cleanup()

	_, err := repo.GetAccount(context.Background(), 9999)
	if !core.IsNotFound(err) {
		t.Fatalf("expected NotFoundError, got %v", err)
	}
}

func TestPostTransactionAdjustsBothBalances(t *testing.T) {
	repo, cleanup := testRepo(t)
	defer cleanup()
	ctx := context.Background()

	a := mustCreateAccount(t, repo, core.Account{Name: "A", Type: core.AccountBank})
	b := mustCreateAccount(t, repo, core.Account{Name: "B", Type: core.AccountBank})

	posted, err := repo.PostTransactions(ctx, []core.NewTransaction{{
		Description:     "transfer",
		Kind:            core.KindTransfer,
		Amount:          10000,
		DebitAccountID:  a.ID,
		CreditAccountID: b.ID,
	}})
	if err != nil {
		t.Fatalf("PostTransactions: %v", err)
	}
	if len(posted) != 1 || posted[0].Amount != 10000 {
		t.Fatalf("unexpected posted transactions: %+v", posted)
	}

	gotA, _ := repo.GetAccount(ctx, a.ID)
	gotB, _ := repo.GetAccount(ctx, b.ID)
	if gotA.CurrentBalance != 10000 {
		t.Errorf("debit side balance = %d, want +10000", gotA.CurrentBalance)
	}
	if gotB.CurrentBalance != -10000 {
		t.Errorf("credit side balance = %d, want -10000", gotB.CurrentBalance)
	}
}

func TestPostTransactionsAllOrNothing(t *testing.T) {
	repo, cleanup := testRepo(t)
	defer cleanup()
	ctx := context.Background()

	a := mustCreateAccount(t, repo, core.Account{Name: "A", Type: core.AccountBank})
	b := mustCreateAccount(t, repo, core.Account{Name: "B", Type: core.AccountBank})

	// Second entry references a missing account; the first must roll back.
	_, err := repo.PostTransactions(ctx, []core.NewTransaction{
		{Description: "ok", Amount: 5000, DebitAccountID: a.ID, CreditAccountID: b.ID},
		{Description: "bad", Amount: 5000, DebitAccountID: a.ID, CreditAccountID: 424242},
	})
	if err == nil {
		t.Fatal("expected error for missing account")
	}

	gotA, _ := repo.GetAccount(ctx, a.ID)
	gotB, _ := repo.GetAccount(ctx, b.ID)
	if gotA.CurrentBalance != 0 || gotB.CurrentBalance != 0 {
		t.Errorf("balances mutated after failed batch: a=%d b=%d", gotA.CurrentBalance, gotB.CurrentBalance)
	}
	txs, _ := repo.ListTransactions(ctx, TransactionFilter{})
	if len(txs) != 0 {
		t.Errorf("expected empty ledger after rollback, got %d rows", len(txs))
	}
}

func TestIdempotencyKeyConflict(t *testing.T) {
	repo, cleanup := testRepo(t)
	defer cleanup()
	ctx := context.Background()

	a := mustCreateAccount(t, repo, core.Account{Name: "A", Type: core.AccountBank})
	b := mustCreateAccount(t, repo, core.Account{Name: "B", Type: core.AccountBank})

	entry := core.NewTransaction{
		Description:     "admin fee",
		Amount:          1500,
		DebitAccountID:  a.ID,
		CreditAccountID: b.ID,
		IdempotencyKey:  "admin-fee:2:2024-03",
	}
	if _, err := repo.PostTransactions(ctx, []core.NewTransaction{entry}); err != nil {
		t.Fatalf("first post: %v", err)
	}
	_, err := repo.PostTransactions(ctx, []core.NewTransaction{entry})
	if !core.IsConflict(err) {
		t.Fatalf("expected ConflictError on duplicate key, got %v", err)
	}

	// Exactly one posting and one set of balance deltas.
	gotB, _ := repo.GetAccount(ctx, b.ID)
	if gotB.CurrentBalance != -1500 {
		t.Errorf("credit balance = %d, want -1500", gotB.CurrentBalance)
	}
}

func TestIdempotencyKeyConcurrentPosts(t *testing.T) {
	repo, cleanup := testRepo(t)
	defer cleanup()
	ctx := context.Background()

	a := mustCreateAccount(t, repo, core.Account{Name: "A", Type: core.AccountBank})
	b := mustCreateAccount(t, repo, core.Account{Name: "B", Type: core.AccountBank})

	entry := core.NewTransaction{
		Description:     "interest",
		Amount:          2000,
		DebitAccountID:  a.ID,
		CreditAccountID: b.ID,
		IdempotencyKey:  "interest:1:2024-02",
	}

	// Two writers racing on the same key: the unique index lets exactly
	// one through, and the loser sees a conflict rather than a raw
	// driver busy error.
	errs := make(chan error, 2)
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := repo.PostTransactions(ctx, []core.NewTransaction{entry})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	var ok, conflicts int
	for err := range errs {
		switch {
		case err == nil:
			ok++
		case core.IsConflict(err):
			conflicts++
		default:
			t.Fatalf("unexpected error from racing post: %v", err)
		}
	}
	if ok != 1 || conflicts != 1 {
		t.Errorf("posted = %d, conflicts = %d; want 1 and 1", ok, conflicts)
	}

	gotA, _ := repo.GetAccount(ctx, a.ID)
	if gotA.CurrentBalance != 2000 {
		t.Errorf("debit balance = %d, want 2000 after single posting", gotA.CurrentBalance)
	}
}

func TestPostTransactionMissingAccountNamesTheRightSide(t *testing.T) {
	repo, cleanup := testRepo(t)
	defer cleanup()
	ctx := context.Background()

	a := mustCreateAccount(t, repo, core.Account{Name: "A", Type: core.AccountBank})

	_, err := repo.PostTransactions(ctx, []core.NewTransaction{{
		Description: "x", Amount: 100, DebitAccountID: a.ID, CreditAccountID: 424242,
	}})
	var nf *core.NotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("expected NotFoundError, got %v", err)
	}
	if nf.ID != 424242 {
		t.Errorf("not-found ID = %d, want the missing credit account 424242", nf.ID)
	}

	_, err = repo.PostTransactions(ctx, []core.NewTransaction{{
		Description: "y", Amount: 100, DebitAccountID: 424243, CreditAccountID: a.ID,
	}})
	if !errors.As(err, &nf) {
		t.Fatalf("expected NotFoundError, got %v", err)
	}
	if nf.ID != 424243 {
		t.Errorf("not-found ID = %d, want the missing debit account 424243", nf.ID)
	}
}

func TestDeleteAccountWithReferences(t *testing.T) {
	repo, cleanup := testRepo(t)
	defer cleanup()
	ctx := context.Background()

	a := mustCreateAccount(t, repo, core.Account{Name: "A", Type: core.AccountBank})
	b := mustCreateAccount(t, repo, core.Account{Name: "B", Type: core.AccountBank})
	if _, err := repo.PostTransactions(ctx, []core.NewTransaction{{
		Description: "x", Amount: 100, DebitAccountID: a.ID, CreditAccountID: b.ID,
	}}); err != nil {
		t.Fatal(err)
	}

	err := repo.DeleteAccount(ctx, a.ID)
	if !core.IsConflict(err) {
		t.Fatalf("expected ConflictError, got %v", err)
	}
	if _, err := repo.GetAccount(ctx, a.ID); err != nil {
		t.Errorf("account should still exist after rejected delete: %v", err)
	}

	// An unreferenced account deletes cleanly.
	c := mustCreateAccount(t, repo, core.Account{Name: "C", Type: core.AccountCash})
	if err := repo.DeleteAccount(ctx, c.ID); err != nil {
		t.Errorf("delete unreferenced account: %v", err)
	}
}

func TestRunningBalanceAsOf(t *testing.T) {
	repo, cleanup := testRepo(t)
	defer cleanup()
	ctx := context.Background()

	a := mustCreateAccount(t, repo, core.Account{Name: "A", Type: core.AccountBank, OpeningBalance: 50000})
	b := mustCreateAccount(t, repo, core.Account{Name: "B", Type: core.AccountBank})

	post := func(day int, amount int64, debit, credit int64) {
		t.Helper()
		_, err := repo.PostTransactions(ctx, []core.NewTransaction{{
			PostedAt:        time.Date(2024, 3, day, 12, 0, 0, 0, time.UTC),
			Description:     "entry",
			Amount:          amount,
			DebitAccountID:  debit,
			CreditAccountID: credit,
		}})
		if err != nil {
			t.Fatal(err)
		}
	}
	post(5, 10000, a.ID, b.ID)  // a: +10000
	post(10, 30000, b.ID, a.ID) // a: -30000
	post(20, 5000, a.ID, b.ID)  // a: +5000

	cases := []struct {
		asOf time.Time
		want int64
	}{
		{time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), 50000},
		{time.Date(2024, 3, 6, 0, 0, 0, 0, time.UTC), 60000},
		{time.Date(2024, 3, 11, 0, 0, 0, 0, time.UTC), 30000},
		{time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC), 35000},
	}
	for _, tc := range cases {
		got, err := repo.RunningBalanceAsOf(ctx, a.ID, tc.asOf)
		if err != nil {
			t.Fatalf("RunningBalanceAsOf(%v): %v", tc.asOf, err)
		}
		if got != tc.want {
			t.Errorf("RunningBalanceAsOf(%v) = %d, want %d", tc.asOf, got, tc.want)
		}
	}
}

func TestListTransactionsFilters(t *testing.T) {
	repo, cleanup := testRepo(t)
	defer cleanup()
	ctx := context.Background()

	a := mustCreateAccount(t, repo, core.Account{Name: "A", Type: core.AccountBank})
	b := mustCreateAccount(t, repo, core.Account{Name: "B", Type: core.AccountBank})
	c := mustCreateAccount(t, repo, core.Account{Name: "C", Type: core.AccountCash})

	entries := []core.NewTransaction{
		{PostedAt: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), Description: "one", Category: "food", Amount: 100, DebitAccountID: a.ID, CreditAccountID: b.ID},
		{PostedAt: time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC), Description: "two", Category: "rent", Amount: 900, DebitAccountID: b.ID, CreditAccountID: c.ID},
		{PostedAt: time.Date(2024, 3, 9, 0, 0, 0, 0, time.UTC), Description: "three", Category: "food", Amount: 500, DebitAccountID: a.ID, CreditAccountID: c.ID},
	}
	if _, err := repo.PostTransactions(ctx, entries); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name   string
		filter TransactionFilter
		want   int
	}{
		{"all", TransactionFilter{}, 3},
		{"by account either side", TransactionFilter{AccountID: b.ID}, 2},
		{"by credit side", TransactionFilter{CreditAccountID: c.ID}, 2},
		{"by category", TransactionFilter{Category: "food"}, 2},
		{"by amount range", TransactionFilter{MinAmount: 200, MaxAmount: 600}, 1},
		{"by date range", TransactionFilter{From: time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC), To: time.Date(2024, 3, 6, 0, 0, 0, 0, time.UTC)}, 1},
		{"pagination", TransactionFilter{Limit: 2, Offset: 2}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := repo.ListTransactions(ctx, tt.filter)
			if err != nil {
				t.Fatalf("ListTransactions: %v", err)
			}
			if len(got) != tt.want {
				t.Errorf("got %d transactions, want %d", len(got), tt.want)
			}
		})
	}

	// Default sort is newest first.
	got, _ := repo.ListTransactions(ctx, TransactionFilter{})
	if got[0].Description != "three" {
		t.Errorf("expected newest first, got %q", got[0].Description)
	}
}

func TestCreatePlanMarksSourceAndPostsAdminFee(t *testing.T) {
	repo, cleanup := testRepo(t)
	defer cleanup()
	ctx := context.Background()

	card := mustCreateAccount(t, repo, core.Account{Name: "Card", Type: core.AccountCreditCard})
	shop := mustCreateAccount(t, repo, core.Account{Name: "[EXPENSE] Shopping", Type: core.AccountExpenseCategory})
	feeCat := mustCreateAccount(t, repo, core.Account{Name: "[EXPENSE] Installment Fee", Type: core.AccountExpenseCategory})

	posted, err := repo.PostTransactions(ctx, []core.NewTransaction{{
		Description: "TV", Amount: 1000000, DebitAccountID: shop.ID, CreditAccountID: card.ID,
	}})
	if err != nil {
		t.Fatal(err)
	}
	source := posted[0]

	plan, err := repo.CreatePlan(ctx, core.InstallmentPlan{
		ProductName:         "TV",
		Principal:           1000000,
		TenorMonths:         3,
		InstallmentsPaid:    1,
		MonthlyAmount:       333334,
		AdminFee:            25000,
		DueDay:              10,
		Status:              core.PlanActive,
		CreditAccountID:     card.ID,
		ExpenseAccountID:    shop.ID,
		SourceTransactionID: source.ID,
	}, &core.NewTransaction{
		Description:     "TV installment admin fee",
		Kind:            core.KindAdminFee,
		Amount:          25000,
		DebitAccountID:  feeCat.ID,
		CreditAccountID: card.ID,
	})
	if err != nil {
		t.Fatalf("CreatePlan: %v", err)
	}

	// Source transaction flagged and linked, amount untouched.
	src, _ := repo.GetTransaction(ctx, source.ID)
	if !src.ConvertedToInstallment || src.InstallmentPlanID != plan.ID {
		t.Errorf("source not linked: %+v", src)
	}
	if src.Amount != 1000000 {
		t.Errorf("source amount changed: %d", src.Amount)
	}

	// Card debt grew by the admin fee only.
	gotCard, _ := repo.GetAccount(ctx, card.ID)
	if gotCard.CurrentBalance != -1025000 {
		t.Errorf("card balance = %d, want -1025000", gotCard.CurrentBalance)
	}

	// Converting the same transaction again conflicts.
	_, err = repo.CreatePlan(ctx, core.InstallmentPlan{
		ProductName: "TV", Principal: 1000000, TenorMonths: 3, InstallmentsPaid: 1,
		MonthlyAmount: 333334, DueDay: 10, Status: core.PlanActive,
		CreditAccountID: card.ID, ExpenseAccountID: shop.ID, SourceTransactionID: source.ID,
	}, nil)
	if !core.IsConflict(err) {
		t.Fatalf("expected ConflictError on double conversion, got %v", err)
	}
}

func TestDeletePlanUnlinksEveryTransaction(t *testing.T) {
	repo, cleanup := testRepo(t)
	defer cleanup()
	ctx := context.Background()

	card := mustCreateAccount(t, repo, core.Account{Name: "Card", Type: core.AccountCreditCard})
	shop := mustCreateAccount(t, repo, core.Account{Name: "[EXPENSE] Shopping", Type: core.AccountExpenseCategory})
	feeCat := mustCreateAccount(t, repo, core.Account{Name: "[EXPENSE] Installment Fee", Type: core.AccountExpenseCategory})

	posted, err := repo.PostTransactions(ctx, []core.NewTransaction{{
		Description: "Phone", Amount: 600000, DebitAccountID: shop.ID, CreditAccountID: card.ID,
	}})
	if err != nil {
		t.Fatal(err)
	}
	source := posted[0]

	plan, err := repo.CreatePlan(ctx, core.InstallmentPlan{
		ProductName:         "Phone",
		Principal:           600000,
		TenorMonths:         6,
		InstallmentsPaid:    1,
		MonthlyAmount:       100000,
		AdminFee:            12000,
		DueDay:              10,
		Status:              core.PlanActive,
		CreditAccountID:     card.ID,
		ExpenseAccountID:    shop.ID,
		SourceTransactionID: source.ID,
	}, &core.NewTransaction{
		Description:     "Phone installment admin fee",
		Kind:            core.KindAdminFee,
		Amount:          12000,
		DebitAccountID:  feeCat.ID,
		CreditAccountID: card.ID,
	})
	if err != nil {
		t.Fatalf("CreatePlan: %v", err)
	}

	if err := repo.DeletePlan(ctx, plan.ID); err != nil {
		t.Fatalf("DeletePlan: %v", err)
	}

	// No row may keep pointing at the deleted plan, the admin fee entry
	// included, and the source is convertible again.
	linked, err := repo.ListTransactions(ctx, TransactionFilter{AccountID: card.ID})
	if err != nil {
		t.Fatal(err)
	}
	for _, tx := range linked {
		if tx.InstallmentPlanID != 0 {
			t.Errorf("transaction %d still linked to plan %d", tx.ID, tx.InstallmentPlanID)
		}
	}
	src, _ := repo.GetTransaction(ctx, source.ID)
	if src.ConvertedToInstallment {
		t.Errorf("source still flagged as converted: %+v", src)
	}
}

func TestUpdateAccountWritesAuditLog(t *testing.T) {
	repo, cleanup := testRepo(t)
	defer cleanup()
	ctx := context.Background()

	acc := mustCreateAccount(t, repo, core.Account{Name: "BCA", Type: core.AccountBank})

	fee := int64(1500000)
	day := 5
	acc.AdminFeeActive = true
	acc.AdminFeeAmount = &fee
	acc.AdminFeeDay = &day
	if _, err := repo.UpdateAccount(ctx, *acc); err != nil {
		t.Fatalf("UpdateAccount: %v", err)
	}

	entries, err := repo.ListAuditLog(ctx, acc.ID)
	if err != nil {
		t.Fatalf("ListAuditLog: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("expected 3 audit entries, got %d", len(entries))
	}

	// The log stays capped under repeated updates.
	for i := 0; i < 30; i++ {
		limit := int64(i + 1)
		acc.CreditLimit = &limit
		if _, err := repo.UpdateAccount(ctx, *acc); err != nil {
			t.Fatal(err)
		}
	}
	entries, _ = repo.ListAuditLog(ctx, acc.ID)
	if len(entries) != auditLogCap {
		t.Errorf("audit log size = %d, want cap %d", len(entries), auditLogCap)
	}
}

func TestEnsureCategoryAccount(t *testing.T) {
	repo, cleanup := testRepo(t)
	defer cleanup()
	ctx := context.Background()

	first, err := repo.EnsureCategoryAccount(ctx, "[EXPENSE] Admin Fee", core.AccountExpenseCategory)
	if err != nil {
		t.Fatalf("EnsureCategoryAccount: %v", err)
	}
	second, err := repo.EnsureCategoryAccount(ctx, "[EXPENSE] Admin Fee", core.AccountExpenseCategory)
	if err != nil {
		t.Fatalf("EnsureCategoryAccount second call: %v", err)
	}
	if first.ID != second.ID {
		t.Errorf("expected same account, got %d and %d", first.ID, second.ID)
	}
}

func TestInstallmentTemplates(t *testing.T) {
	repo, cleanup := testRepo(t)
	defer cleanup()
	ctx := context.Background()

	if _, err := repo.SaveTemplate(ctx, core.InstallmentTemplate{
		BankName: "BCA", TenorMonths: 6, AdminFeeType: core.AdminFeePercentage, AdminFeeValue: 2.5,
	}); err != nil {
		t.Fatalf("SaveTemplate: %v", err)
	}

	tpl, err := repo.GetTemplate(ctx, "BCA", 6)
	if err != nil {
		t.Fatalf("GetTemplate: %v", err)
	}
	if tpl.AdminFeeType != core.AdminFeePercentage || tpl.AdminFeeValue != 2.5 {
		t.Errorf("unexpected template: %+v", tpl)
	}

	if _, err := repo.GetTemplate(ctx, "BCA", 12); !core.IsNotFound(err) {
		t.Errorf("expected NotFoundError, got %v", err)
	}
}
