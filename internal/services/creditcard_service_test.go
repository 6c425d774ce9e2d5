package services

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/rroihans/dompetku-sub001/internal/config"
	"github.com/rroihans/dompetku-sub001/internal/core"
	"github.com/rroihans/dompetku-sub001/internal/ledger"
	"github.com/rroihans/dompetku-sub001/internal/storage"
)

func testEnv(t *testing.T) (*storage.SQLiteRepository, *ledger.Service, func()) {
	t.Helper()
	f, err := os.CreateTemp("", "dompetku-services-test-*.db")
	if err != nil {
		t.Fatalf("create temp file: %v", err)
	}
	path := f.Name()
	f.Close()

	repo, err := storage.NewSQLiteRepository(path)
	if err != nil {
		os.Remove(path)
		t.Fatalf("NewSQLiteRepository: %v", err)
	}
	return repo, ledger.NewService(repo, nil), func() {
		repo.Close()
		os.Remove(path)
		os.Remove(path + "-wal")
		os.Remove(path + "-shm")
	}
}

func mustAccount(t *testing.T, repo *storage.SQLiteRepository, a core.Account) *core.Account {
	t.Helper()
	created, err := repo.CreateAccount(context.Background(), a)
	if err != nil {
		t.Fatalf("CreateAccount(%q): %v", a.Name, err)
	}
	return created
}

func mustPost(t *testing.T, repo *storage.SQLiteRepository, e core.NewTransaction) *core.Transaction {
	t.Helper()
	posted, err := repo.PostTransactions(context.Background(), []core.NewTransaction{e})
	if err != nil {
		t.Fatalf("PostTransactions: %v", err)
	}
	return &posted[0]
}

func testCard(t *testing.T, repo *storage.SQLiteRepository, shariah bool) *core.Account {
	t.Helper()
	limit := int64(2000000000)
	billingDay, dueDay := 15, 5
	fixed := int64(5000000)
	pct := 5.0
	minInst := int64(50000000)
	return mustAccount(t, repo, core.Account{
		Name:                 "Visa Gold",
		Type:                 core.AccountCreditCard,
		CreditLimit:          &limit,
		IsShariah:            &shariah,
		BillingDay:           &billingDay,
		DueDay:               &dueDay,
		MinPaymentFixed:      &fixed,
		MinPaymentPercent:    &pct,
		MinInstallmentAmount: &minInst,
	})
}

func TestCalculatePayment_MinimumIsLargerOfFloors(t *testing.T) {
	repo, ledgerSvc, cleanup := testEnv(t)
	defer cleanup()
	ctx := context.Background()

	card := testCard(t, repo, false)
	expense := mustAccount(t, repo, core.Account{Name: "[EXPENSE] Shopping", Type: core.AccountExpenseCategory})

	// Card owes 1,200,000: 5% of it beats the 50,000 fixed floor.
	fixed := int64(50000)
	card.MinPaymentFixed = &fixed
	if _, err := repo.UpdateAccount(ctx, *card); err != nil {
		t.Fatal(err)
	}
	now := time.Date(2024, 3, 20, 10, 0, 0, 0, time.UTC)
	mustPost(t, repo, core.NewTransaction{
		PostedAt:        now.AddDate(0, 0, -2),
		Description:     "electronics",
		Kind:            core.KindPurchase,
		Amount:          1200000,
		DebitAccountID:  expense.ID,
		CreditAccountID: card.ID,
	})

	svc := NewCreditCardService(ledgerSvc, config.DefaultSettings())
	calc, err := svc.CalculatePayment(ctx, card.ID, now)
	if err != nil {
		t.Fatalf("CalculatePayment: %v", err)
	}
	if !calc.IsValid {
		t.Fatalf("calculation invalid: %s", calc.ValidationMessage)
	}
	if calc.FullPayment != 1200000 {
		t.Errorf("full payment = %d, want 1200000", calc.FullPayment)
	}
	if calc.MinimumPayment != 60000 {
		t.Errorf("minimum payment = %d, want 60000", calc.MinimumPayment)
	}
}

func TestCalculatePayment_MinimumCappedAtFullPayment(t *testing.T) {
	repo, ledgerSvc, cleanup := testEnv(t)
	defer cleanup()
	ctx := context.Background()

	card := testCard(t, repo, false)
	expense := mustAccount(t, repo, core.Account{Name: "[EXPENSE] Snacks", Type: core.AccountExpenseCategory})

	now := time.Date(2024, 3, 20, 10, 0, 0, 0, time.UTC)
	mustPost(t, repo, core.NewTransaction{
		PostedAt:        now.AddDate(0, 0, -1),
		Description:     "coffee",
		Kind:            core.KindPurchase,
		Amount:          30000,
		DebitAccountID:  expense.ID,
		CreditAccountID: card.ID,
	})

	svc := NewCreditCardService(ledgerSvc, config.DefaultSettings())
	calc, err := svc.CalculatePayment(ctx, card.ID, now)
	if err != nil {
		t.Fatalf("CalculatePayment: %v", err)
	}
	// Owed 30,000 is below the 5,000,000 fixed floor; you cannot be
	// required to pay more than you owe.
	if calc.MinimumPayment != 30000 {
		t.Errorf("minimum payment = %d, want 30000", calc.MinimumPayment)
	}
}

func TestCalculatePayment_ClassifiesPeriodCharges(t *testing.T) {
	repo, ledgerSvc, cleanup := testEnv(t)
	defer cleanup()
	ctx := context.Background()

	card := testCard(t, repo, false)
	expense := mustAccount(t, repo, core.Account{Name: "[EXPENSE] Shopping", Type: core.AccountExpenseCategory})
	bank := mustAccount(t, repo, core.Account{Name: "Main Bank", Type: core.AccountBank, OpeningBalance: 10000000})

	now := time.Date(2024, 3, 20, 10, 0, 0, 0, time.UTC)
	inPeriod := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	beforePeriod := time.Date(2024, 1, 10, 12, 0, 0, 0, time.UTC)

	mustPost(t, repo, core.NewTransaction{
		PostedAt: inPeriod, Description: "groceries", Kind: core.KindPurchase,
		Amount: 400000, DebitAccountID: expense.ID, CreditAccountID: card.ID,
	})
	mustPost(t, repo, core.NewTransaction{
		PostedAt: inPeriod, Description: "phone installment", Kind: core.KindInstallment,
		Amount: 333334, DebitAccountID: expense.ID, CreditAccountID: card.ID,
	})
	mustPost(t, repo, core.NewTransaction{
		PostedAt: inPeriod, Description: "annual card fee", Kind: core.KindFee,
		Amount: 100000, DebitAccountID: expense.ID, CreditAccountID: card.ID,
	})
	// Charges before the window only count toward the previous balance.
	mustPost(t, repo, core.NewTransaction{
		PostedAt: beforePeriod, Description: "old purchase", Kind: core.KindPurchase,
		Amount: 500000, DebitAccountID: expense.ID, CreditAccountID: card.ID,
	})
	// Payments are debit-side entries and never appear as charges.
	mustPost(t, repo, core.NewTransaction{
		PostedAt: inPeriod, Description: "partial payment", Kind: core.KindPayment,
		Amount: 200000, DebitAccountID: card.ID, CreditAccountID: bank.ID,
	})

	svc := NewCreditCardService(ledgerSvc, config.DefaultSettings())

	calc, err := svc.CalculatePayment(ctx, card.ID, now)
	if err != nil {
		t.Fatalf("CalculatePayment: %v", err)
	}
	if calc.NewPurchases != 400000 {
		t.Errorf("new purchases = %d, want 400000", calc.NewPurchases)
	}
	if calc.NewInstallments != 333334 {
		t.Errorf("new installments = %d, want 333334", calc.NewInstallments)
	}
	if calc.NewFees != 100000 {
		t.Errorf("new fees = %d, want 100000", calc.NewFees)
	}

	wantFull := int64(400000 + 333334 + 100000 + 500000 - 200000)
	if calc.FullPayment != wantFull {
		t.Errorf("full payment = %d, want %d", calc.FullPayment, wantFull)
	}
	wantPrev := wantFull - (400000 + 333334 + 100000)
	if calc.PreviousBalance != wantPrev {
		t.Errorf("previous balance = %d, want %d", calc.PreviousBalance, wantPrev)
	}
}

func TestClassifyCharge_LegacyRowsFallBackToKeywords(t *testing.T) {
	settings := config.DefaultSettings()
	settings.LegacyFeeKeywords = []string{"biaya"}
	svc := NewCreditCardService(nil, settings)

	tests := []struct {
		name string
		tx   core.Transaction
		want core.TransactionKind
	}{
		{"legacy fee by keyword", core.Transaction{Category: "Biaya Admin"}, core.KindFee},
		{"legacy plan linkage", core.Transaction{InstallmentPlanID: 7}, core.KindInstallment},
		{"legacy default purchase", core.Transaction{Category: "Groceries"}, core.KindPurchase},
		{"explicit kind wins", core.Transaction{Kind: core.KindFee, Category: "Groceries"}, core.KindFee},
		{"admin fee buckets as fee", core.Transaction{Kind: core.KindAdminFee}, core.KindFee},
		{"payment excluded", core.Transaction{Kind: core.KindPayment}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := svc.classifyCharge(tt.tx); got != tt.want {
				t.Errorf("classifyCharge() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestCalculatePayment_MissingSettingsInvalid(t *testing.T) {
	repo, ledgerSvc, cleanup := testEnv(t)
	defer cleanup()
	ctx := context.Background()

	expense := mustAccount(t, repo, core.Account{Name: "[EXPENSE] Misc", Type: core.AccountExpenseCategory})
	card := mustAccount(t, repo, core.Account{Name: "Bare Card", Type: core.AccountCreditCard})
	mustPost(t, repo, core.NewTransaction{
		Description: "something", Kind: core.KindPurchase,
		Amount: 750000, DebitAccountID: expense.ID, CreditAccountID: card.ID,
	})

	svc := NewCreditCardService(ledgerSvc, config.DefaultSettings())
	calc, err := svc.CalculatePayment(ctx, card.ID, time.Now())
	if err != nil {
		t.Fatalf("CalculatePayment: %v", err)
	}
	if calc.IsValid {
		t.Error("calculation should be invalid without mandatory settings")
	}
	if len(calc.MissingFields) == 0 {
		t.Error("expected missing fields listed")
	}
	if calc.FullPayment != 750000 {
		t.Errorf("fallback full payment = %d, want 750000", calc.FullPayment)
	}
	if calc.MinimumPayment != 0 || calc.LateFee != 0 {
		t.Errorf("invalid calculation must not carry derived figures: %+v", calc)
	}
}

func TestCalculatePayment_RejectsNonCard(t *testing.T) {
	repo, ledgerSvc, cleanup := testEnv(t)
	defer cleanup()

	bank := mustAccount(t, repo, core.Account{Name: "Main Bank", Type: core.AccountBank})
	svc := NewCreditCardService(ledgerSvc, config.DefaultSettings())

	if _, err := svc.CalculatePayment(context.Background(), bank.ID, time.Now()); !core.IsValidation(err) {
		t.Errorf("expected validation error, got %v", err)
	}
}

func TestLateFeeStrategies(t *testing.T) {
	settings := config.DefaultSettings()
	settings.LateFee.Conventional = config.ConventionalLateFee{Percent: 3, Cap: 100000}
	settings.LateFee.Shariah = config.ShariahLateFee{Flat: 57500, Cap: 57500}

	tests := []struct {
		name        string
		isShariah   bool
		outstanding int64
		want        int64
	}{
		{"conventional percentage", false, 1000000, 30000},
		{"conventional capped", false, 10000000, 100000},
		{"shariah flat regardless of balance", true, 1000000, 57500},
		{"shariah flat on large balance", true, 50000000, 57500},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := lateFeeStrategyFor(tt.isShariah, settings).Fee(tt.outstanding)
			if got != tt.want {
				t.Errorf("Fee(%d) = %d, want %d", tt.outstanding, got, tt.want)
			}
		})
	}
}

func TestCalculatePayment_LateFeeOnlyWhenPastDue(t *testing.T) {
	repo, ledgerSvc, cleanup := testEnv(t)
	defer cleanup()
	ctx := context.Background()

	card := testCard(t, repo, false)
	expense := mustAccount(t, repo, core.Account{Name: "[EXPENSE] Misc", Type: core.AccountExpenseCategory})
	mustPost(t, repo, core.NewTransaction{
		PostedAt:    time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC),
		Description: "tv", Kind: core.KindPurchase,
		Amount: 1000000, DebitAccountID: expense.ID, CreditAccountID: card.ID,
	})

	svc := NewCreditCardService(ledgerSvc, config.DefaultSettings())

	// Billing day 15, due day 5 of the following month. On March 20 the
	// cycle just closed; April 5 is still ahead.
	calc, err := svc.CalculatePayment(ctx, card.ID, time.Date(2024, 3, 20, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatal(err)
	}
	if calc.IsPastDue || calc.LateFee != 0 {
		t.Errorf("not past due yet: pastDue=%v lateFee=%d", calc.IsPastDue, calc.LateFee)
	}

	// On April 10 the April 5 due date has passed.
	calc, err = svc.CalculatePayment(ctx, card.ID, time.Date(2024, 4, 10, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatal(err)
	}
	if !calc.IsPastDue {
		t.Fatal("expected past due on April 10")
	}
	if calc.LateFee == 0 {
		t.Error("expected a late fee when past due with outstanding debt")
	}
}

func TestPayBill(t *testing.T) {
	repo, ledgerSvc, cleanup := testEnv(t)
	defer cleanup()
	ctx := context.Background()

	card := testCard(t, repo, false)
	expense := mustAccount(t, repo, core.Account{Name: "[EXPENSE] Misc", Type: core.AccountExpenseCategory})
	bank := mustAccount(t, repo, core.Account{Name: "Main Bank", Type: core.AccountBank, OpeningBalance: 5000000})

	now := time.Date(2024, 3, 20, 10, 0, 0, 0, time.UTC)
	mustPost(t, repo, core.NewTransaction{
		PostedAt: now.AddDate(0, 0, -3), Description: "tv", Kind: core.KindPurchase,
		Amount: 1200000, DebitAccountID: expense.ID, CreditAccountID: card.ID,
	})

	svc := NewCreditCardService(ledgerSvc, config.DefaultSettings())

	t.Run("rejects non-positive amount", func(t *testing.T) {
		_, err := svc.PayBill(ctx, PayBillRequest{
			AccountID: card.ID, SourceAccountID: bank.ID, Amount: 0, Type: PaymentCustom,
		}, now)
		if !core.IsValidation(err) {
			t.Errorf("expected validation error, got %v", err)
		}
	})

	t.Run("rejects unknown source account", func(t *testing.T) {
		_, err := svc.PayBill(ctx, PayBillRequest{
			AccountID: card.ID, SourceAccountID: 9999, Amount: 100000, Type: PaymentFull,
		}, now)
		if !core.IsNotFound(err) {
			t.Errorf("expected not found error, got %v", err)
		}
	})

	t.Run("custom below minimum rejected", func(t *testing.T) {
		// Minimum is max(5% of 1,200,000, 5,000,000) capped at the full
		// 1,200,000 owed.
		_, err := svc.PayBill(ctx, PayBillRequest{
			AccountID: card.ID, SourceAccountID: bank.ID, Amount: 50000, Type: PaymentCustom,
		}, now)
		if !core.IsValidation(err) {
			t.Errorf("expected validation error, got %v", err)
		}
	})

	t.Run("full payment moves both balances", func(t *testing.T) {
		posted, err := svc.PayBill(ctx, PayBillRequest{
			AccountID: card.ID, SourceAccountID: bank.ID, Amount: 1200000, Type: PaymentFull,
		}, now)
		if err != nil {
			t.Fatalf("PayBill: %v", err)
		}
		if posted.Kind != core.KindPayment {
			t.Errorf("kind = %s, want PAYMENT", posted.Kind)
		}

		gotCard, _ := repo.GetAccount(ctx, card.ID)
		gotBank, _ := repo.GetAccount(ctx, bank.ID)
		if gotCard.CurrentBalance != 0 {
			t.Errorf("card balance = %d, want 0", gotCard.CurrentBalance)
		}
		// Overdraft is allowed; the source simply went negative.
		if gotBank.CurrentBalance != 5000000-1200000 {
			t.Errorf("bank balance = %d, want %d", gotBank.CurrentBalance, 5000000-1200000)
		}
	})
}
