package services

import (
	"context"
	"testing"
	"time"

	"github.com/rroihans/dompetku-sub001/internal/config"
	"github.com/rroihans/dompetku-sub001/internal/core"
	"github.com/rroihans/dompetku-sub001/internal/schedule"
	"github.com/rroihans/dompetku-sub001/internal/storage"
)

func TestProcessMonthlyAdminFees(t *testing.T) {
	repo, ledgerSvc, cleanup := testEnv(t)
	defer cleanup()
	ctx := context.Background()

	fee := int64(15000)
	feeDay := 5
	bank := mustAccount(t, repo, core.Account{
		Name:            "Fee Bank",
		Type:            core.AccountBank,
		OpeningBalance:  2000000,
		AdminFeeActive:  true,
		AdminFeeAmount:  &fee,
		AdminFeePattern: string(schedule.FixedDay),
		AdminFeeDay:     &feeDay,
	})
	mustAccount(t, repo, core.Account{Name: "Plain Bank", Type: core.AccountBank})

	proc := NewAutomationProcessor(repo, ledgerSvc, config.DefaultSettings())
	now := time.Date(2024, 3, 20, 9, 0, 0, 0, time.UTC)

	t.Run("dry run reports without posting", func(t *testing.T) {
		result, err := proc.ProcessMonthlyAdminFees(ctx, now, true)
		if err != nil {
			t.Fatalf("ProcessMonthlyAdminFees: %v", err)
		}
		if result.Processed != 1 {
			t.Errorf("processed = %d, want 1; reasons: %v", result.Processed, result.Reasons)
		}
		got, _ := repo.GetAccount(ctx, bank.ID)
		if got.CurrentBalance != 2000000 {
			t.Errorf("dry run mutated balance: %d", got.CurrentBalance)
		}
		if got.LastAdminChargeDate != "" {
			t.Errorf("dry run stamped marker: %q", got.LastAdminChargeDate)
		}
	})

	t.Run("charges once and stamps the month", func(t *testing.T) {
		result, err := proc.ProcessMonthlyAdminFees(ctx, now, false)
		if err != nil {
			t.Fatalf("ProcessMonthlyAdminFees: %v", err)
		}
		if result.Processed != 1 || result.Failed != 0 {
			t.Fatalf("unexpected result: %+v", result)
		}

		got, _ := repo.GetAccount(ctx, bank.ID)
		if got.CurrentBalance != 2000000-15000 {
			t.Errorf("balance = %d, want %d", got.CurrentBalance, 2000000-15000)
		}
		if got.LastAdminChargeDate != "2024-03" {
			t.Errorf("marker = %q, want 2024-03", got.LastAdminChargeDate)
		}
	})

	t.Run("second run same month is a no-op", func(t *testing.T) {
		result, err := proc.ProcessMonthlyAdminFees(ctx, now, false)
		if err != nil {
			t.Fatalf("ProcessMonthlyAdminFees: %v", err)
		}
		if result.Processed != 0 || result.Skipped == 0 {
			t.Errorf("rerun should skip: %+v", result)
		}
		got, _ := repo.GetAccount(ctx, bank.ID)
		if got.CurrentBalance != 2000000-15000 {
			t.Errorf("rerun changed balance: %d", got.CurrentBalance)
		}
	})

	t.Run("next month charges again", func(t *testing.T) {
		april := time.Date(2024, 4, 10, 9, 0, 0, 0, time.UTC)
		result, err := proc.ProcessMonthlyAdminFees(ctx, april, false)
		if err != nil {
			t.Fatalf("ProcessMonthlyAdminFees: %v", err)
		}
		if result.Processed != 1 {
			t.Errorf("april run: %+v", result)
		}
		got, _ := repo.GetAccount(ctx, bank.ID)
		if got.CurrentBalance != 2000000-2*15000 {
			t.Errorf("balance = %d, want %d", got.CurrentBalance, 2000000-2*15000)
		}
	})
}

func TestProcessMonthlyAdminFees_SkipsBeforeChargeDate(t *testing.T) {
	repo, ledgerSvc, cleanup := testEnv(t)
	defer cleanup()
	ctx := context.Background()

	fee := int64(15000)
	feeDay := 25
	bank := mustAccount(t, repo, core.Account{
		Name:            "Fee Bank",
		Type:            core.AccountBank,
		OpeningBalance:  2000000,
		AdminFeeActive:  true,
		AdminFeeAmount:  &fee,
		AdminFeePattern: string(schedule.FixedDay),
		AdminFeeDay:     &feeDay,
	})

	proc := NewAutomationProcessor(repo, ledgerSvc, config.DefaultSettings())
	result, err := proc.ProcessMonthlyAdminFees(ctx, time.Date(2024, 3, 20, 9, 0, 0, 0, time.UTC), false)
	if err != nil {
		t.Fatal(err)
	}
	if result.Processed != 0 || result.Skipped != 1 {
		t.Errorf("charge date still ahead: %+v", result)
	}
	got, _ := repo.GetAccount(ctx, bank.ID)
	if got.CurrentBalance != 2000000 {
		t.Errorf("balance changed before charge date: %d", got.CurrentBalance)
	}
}

func TestProcessMonthlyAdminFees_ManualPatternNeverCharges(t *testing.T) {
	repo, ledgerSvc, cleanup := testEnv(t)
	defer cleanup()

	fee := int64(15000)
	mustAccount(t, repo, core.Account{
		Name:            "Manual Bank",
		Type:            core.AccountBank,
		AdminFeeActive:  true,
		AdminFeeAmount:  &fee,
		AdminFeePattern: string(schedule.Manual),
	})

	proc := NewAutomationProcessor(repo, ledgerSvc, config.DefaultSettings())
	result, err := proc.ProcessMonthlyAdminFees(context.Background(), time.Now(), false)
	if err != nil {
		t.Fatal(err)
	}
	if result.Processed != 0 || result.Skipped != 1 {
		t.Errorf("manual pattern must not auto-charge: %+v", result)
	}
}

func TestProcessMonthlyInterest(t *testing.T) {
	repo, ledgerSvc, cleanup := testEnv(t)
	defer cleanup()
	ctx := context.Background()

	bank := mustAccount(t, repo, core.Account{
		Name:           "Savings",
		Type:           core.AccountBank,
		OpeningBalance: 10000000,
		InterestActive: true,
		InterestTiers: []core.InterestTier{
			{MinBalance: 0, MaxBalance: int64Ptr(5000000), AnnualRatePercent: 1},
			{MinBalance: 5000001, AnnualRatePercent: 3},
		},
	})

	settings := config.DefaultSettings()
	settings.TaxRatePercent = 20
	proc := NewAutomationProcessor(repo, ledgerSvc, settings)
	now := time.Date(2024, 3, 3, 9, 0, 0, 0, time.UTC)

	t.Run("credits prior month net of tax", func(t *testing.T) {
		result, err := proc.ProcessMonthlyInterest(ctx, now, false)
		if err != nil {
			t.Fatalf("ProcessMonthlyInterest: %v", err)
		}
		if result.Processed != 1 || result.Failed != 0 {
			t.Fatalf("unexpected result: %+v", result)
		}

		// 10,000,000 falls in the 3% tier: gross 25,000/month, minus
		// 20% withholding leaves 20,000.
		got, _ := repo.GetAccount(ctx, bank.ID)
		if got.CurrentBalance != 10000000+20000 {
			t.Errorf("balance = %d, want %d", got.CurrentBalance, 10000000+20000)
		}
		if got.LastInterestCreditDate != "2024-02" {
			t.Errorf("marker = %q, want 2024-02", got.LastInterestCreditDate)
		}
	})

	t.Run("rerun same target month skips", func(t *testing.T) {
		result, err := proc.ProcessMonthlyInterest(ctx, now, false)
		if err != nil {
			t.Fatal(err)
		}
		if result.Processed != 0 || result.Skipped == 0 {
			t.Errorf("rerun should skip: %+v", result)
		}
	})
}

func TestProcessMonthlyInterest_ConcurrentRuns(t *testing.T) {
	repo, ledgerSvc, cleanup := testEnv(t)
	defer cleanup()
	ctx := context.Background()

	bank := mustAccount(t, repo, core.Account{
		Name:           "Savings",
		Type:           core.AccountBank,
		OpeningBalance: 10000000,
		InterestActive: true,
		InterestTiers: []core.InterestTier{
			{MinBalance: 0, AnnualRatePercent: 3},
		},
	})

	settings := config.DefaultSettings()
	settings.TaxRatePercent = 20
	now := time.Date(2024, 3, 3, 9, 0, 0, 0, time.UTC)

	// The API server and the worker can fire the same job at once. The
	// winner credits the month; the loser must report the account as
	// already credited, not fail on the contended database.
	type outcome struct {
		result *AutomationResult
		err    error
	}
	outcomes := make(chan outcome, 2)
	for i := 0; i < 2; i++ {
		go func() {
			proc := NewAutomationProcessor(repo, ledgerSvc, settings)
			result, err := proc.ProcessMonthlyInterest(ctx, now, false)
			outcomes <- outcome{result, err}
		}()
	}

	processed, failed := 0, 0
	for i := 0; i < 2; i++ {
		o := <-outcomes
		if o.err != nil {
			t.Fatalf("concurrent run errored: %v", o.err)
		}
		processed += o.result.Processed
		failed += o.result.Failed
	}
	if processed != 1 {
		t.Errorf("processed across both runs = %d, want exactly 1", processed)
	}
	if failed != 0 {
		t.Errorf("failed across both runs = %d, want 0", failed)
	}

	got, _ := repo.GetAccount(ctx, bank.ID)
	if got.CurrentBalance != 10000000+20000 {
		t.Errorf("balance = %d, want one credit of 20000", got.CurrentBalance)
	}
	if got.LastInterestCreditDate != "2024-02" {
		t.Errorf("marker = %q, want 2024-02", got.LastInterestCreditDate)
	}

	entries, err := repo.ListTransactions(ctx, storage.TransactionFilter{
		AccountID: bank.ID,
		Kind:      core.KindInterest,
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("interest entries = %d, want 1", len(entries))
	}
}

func TestProcessMonthlyInterest_SkipsUncoveredAndZero(t *testing.T) {
	repo, ledgerSvc, cleanup := testEnv(t)
	defer cleanup()
	ctx := context.Background()

	// Balance below every tier's range.
	mustAccount(t, repo, core.Account{
		Name:           "Tiny Savings",
		Type:           core.AccountBank,
		OpeningBalance: 100,
		InterestActive: true,
		InterestTiers: []core.InterestTier{
			{MinBalance: 1000000, AnnualRatePercent: 3},
		},
	})
	// Covered, but a month of interest rounds below one minor unit.
	mustAccount(t, repo, core.Account{
		Name:           "Dust Savings",
		Type:           core.AccountBank,
		OpeningBalance: 50,
		InterestActive: true,
		InterestTiers: []core.InterestTier{
			{MinBalance: 0, AnnualRatePercent: 1},
		},
	})

	proc := NewAutomationProcessor(repo, ledgerSvc, config.DefaultSettings())
	result, err := proc.ProcessMonthlyInterest(ctx, time.Now().UTC(), false)
	if err != nil {
		t.Fatal(err)
	}
	if result.Processed != 0 || result.Skipped != 2 {
		t.Errorf("both accounts should skip: %+v", result)
	}
}

func TestProcessMonthlyInterest_MinimumBalanceMethod(t *testing.T) {
	repo, ledgerSvc, cleanup := testEnv(t)
	defer cleanup()
	ctx := context.Background()

	bank := mustAccount(t, repo, core.Account{
		Name:           "Savings",
		Type:           core.AccountBank,
		OpeningBalance: 10000000,
		InterestActive: true,
		InterestTiers: []core.InterestTier{
			{MinBalance: 0, AnnualRatePercent: 3},
		},
	})
	expense := mustAccount(t, repo, core.Account{Name: "[EXPENSE] Rent", Type: core.AccountExpenseCategory})

	// Mid-February the balance dips to 4,000,000 before a deposit
	// restores it; the minimum balance method must use the dip.
	income := mustAccount(t, repo, core.Account{Name: "[INCOME] Salary", Type: core.AccountIncomeCategory})
	mustPost(t, repo, core.NewTransaction{
		PostedAt: time.Date(2024, 2, 10, 12, 0, 0, 0, time.UTC), Description: "rent",
		Kind: core.KindTransfer, Amount: 6000000,
		DebitAccountID: expense.ID, CreditAccountID: bank.ID,
	})
	mustPost(t, repo, core.NewTransaction{
		PostedAt: time.Date(2024, 2, 25, 12, 0, 0, 0, time.UTC), Description: "salary",
		Kind: core.KindTransfer, Amount: 8000000,
		DebitAccountID: bank.ID, CreditAccountID: income.ID,
	})

	settings := config.DefaultSettings()
	settings.TaxRatePercent = 20
	settings.UseMinimumBalanceMethod = true
	proc := NewAutomationProcessor(repo, ledgerSvc, settings)

	result, err := proc.ProcessMonthlyInterest(ctx, time.Date(2024, 3, 3, 9, 0, 0, 0, time.UTC), false)
	if err != nil {
		t.Fatal(err)
	}
	if result.Processed != 1 {
		t.Fatalf("unexpected result: %+v", result)
	}

	// Basis 4,000,000 at 3%: gross 10,000/month, net 8,000 after tax.
	got, _ := repo.GetAccount(ctx, bank.ID)
	want := int64(10000000 - 6000000 + 8000000 + 8000)
	if got.CurrentBalance != want {
		t.Errorf("balance = %d, want %d", got.CurrentBalance, want)
	}
}

func int64Ptr(v int64) *int64 { return &v }
