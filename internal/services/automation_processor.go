package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rroihans/dompetku-sub001/internal/config"
	"github.com/rroihans/dompetku-sub001/internal/core"
	"github.com/rroihans/dompetku-sub001/internal/ledger"
	"github.com/rroihans/dompetku-sub001/internal/schedule"
	"github.com/rroihans/dompetku-sub001/internal/storage"
)

// interestIncomeAccount is auto-created on first use.
const interestIncomeAccount = "[INCOME] Interest"

// AutomationResult summarizes one run over all eligible accounts.
// Reasons carries one human-readable line per account.
type AutomationResult struct {
	DryRun    bool
	Processed int
	Skipped   int
	Failed    int
	Reasons   []string
}

func (r *AutomationResult) skip(name, reason string) {
	r.Skipped++
	r.Reasons = append(r.Reasons, fmt.Sprintf("%s: skipped, %s", name, reason))
}

func (r *AutomationResult) fail(name string, err error) {
	r.Failed++
	r.Reasons = append(r.Reasons, fmt.Sprintf("%s: failed, %v", name, err))
}

func (r *AutomationResult) done(name, what string) {
	r.Processed++
	r.Reasons = append(r.Reasons, fmt.Sprintf("%s: %s", name, what))
}

// AutomationProcessor runs the idempotent monthly jobs: bank admin fee
// charges and interest accrual. Safe to trigger any number of times per
// day; the per-account month marker plus the idempotency key make
// double-posting impossible, and a lost race surfaces as a conflict
// that counts as already processed.
type AutomationProcessor struct {
	storage  *storage.SQLiteRepository
	ledger   *ledger.Service
	settings *config.Settings
}

func NewAutomationProcessor(storage *storage.SQLiteRepository, ledgerService *ledger.Service, settings *config.Settings) *AutomationProcessor {
	return &AutomationProcessor{
		storage:  storage,
		ledger:   ledgerService,
		settings: settings,
	}
}

// ProcessMonthlyAdminFees charges this month's administration fee on
// every bank and e-wallet account that has one configured. With dryRun
// the eligibility checks run but nothing is posted.
func (p *AutomationProcessor) ProcessMonthlyAdminFees(ctx context.Context, now time.Time, dryRun bool) (*AutomationResult, error) {
	accounts, err := p.depositAccounts(ctx)
	if err != nil {
		return nil, err
	}

	result := &AutomationResult{DryRun: dryRun}
	currentMonth := core.YearMonth(now)

	slog.InfoContext(ctx, "Processing monthly admin fees",
		"total_accounts", len(accounts),
		"month", currentMonth,
		"dry_run", dryRun)

	for _, acc := range accounts {
		if !acc.AdminFeeActive {
			continue
		}
		if acc.AdminFeeAmount == nil || *acc.AdminFeeAmount <= 0 {
			result.skip(acc.Name, "no admin fee amount configured")
			continue
		}

		day := 0
		if acc.AdminFeeDay != nil {
			day = *acc.AdminFeeDay
		}
		rule, err := schedule.RuleFor(schedule.Pattern(acc.AdminFeePattern), day)
		if err != nil {
			result.fail(acc.Name, err)
			continue
		}
		chargeDate, scheduled := rule.Occurrence(now)
		if !scheduled {
			result.skip(acc.Name, "manual schedule, no automatic charge")
			continue
		}
		if chargeDate.After(now) {
			result.skip(acc.Name, fmt.Sprintf("not due until %s", chargeDate.Format("2006-01-02")))
			continue
		}
		if acc.LastAdminChargeDate == currentMonth {
			result.skip(acc.Name, fmt.Sprintf("already charged for %s", currentMonth))
			continue
		}

		if dryRun {
			result.done(acc.Name, fmt.Sprintf("would charge %d", *acc.AdminFeeAmount))
			continue
		}

		if err := p.postAdminFee(ctx, acc, now, currentMonth); err != nil {
			if core.IsConflict(err) {
				result.skip(acc.Name, fmt.Sprintf("already charged for %s", currentMonth))
				continue
			}
			slog.ErrorContext(ctx, "Failed to post admin fee",
				"account_id", acc.ID, "error", err)
			result.fail(acc.Name, err)
			continue
		}
		result.done(acc.Name, fmt.Sprintf("charged %d", *acc.AdminFeeAmount))
	}

	slog.InfoContext(ctx, "Monthly admin fee processing complete",
		"processed", result.Processed,
		"skipped", result.Skipped,
		"failed", result.Failed)
	return result, nil
}

func (p *AutomationProcessor) postAdminFee(ctx context.Context, acc core.Account, now time.Time, month string) error {
	feeAccount, err := p.storage.EnsureCategoryAccount(ctx, adminFeeExpenseAccount, core.AccountExpenseCategory)
	if err != nil {
		return err
	}

	_, err = p.ledger.PostTransaction(ctx, core.NewTransaction{
		PostedAt:        now,
		Description:     fmt.Sprintf("Monthly admin fee %s", month),
		Category:        "Admin Fee",
		Kind:            core.KindAdminFee,
		Amount:          *acc.AdminFeeAmount,
		DebitAccountID:  feeAccount.ID,
		CreditAccountID: acc.ID,
		IdempotencyKey:  fmt.Sprintf("admin-fee:%d:%s", acc.ID, month),
	})
	if err != nil {
		return err
	}
	return p.storage.StampAdminCharge(ctx, acc.ID, month)
}

// ProcessMonthlyInterest credits last month's interest on every deposit
// account with an interest schedule. Interest is paid in arrears, so
// the target month is the prior calendar month.
func (p *AutomationProcessor) ProcessMonthlyInterest(ctx context.Context, now time.Time, dryRun bool) (*AutomationResult, error) {
	accounts, err := p.depositAccounts(ctx)
	if err != nil {
		return nil, err
	}

	result := &AutomationResult{DryRun: dryRun}
	targetStart := priorMonthStart(now)
	targetMonth := core.YearMonth(targetStart)

	slog.InfoContext(ctx, "Processing monthly interest",
		"total_accounts", len(accounts),
		"target_month", targetMonth,
		"dry_run", dryRun,
		"minimum_balance_method", p.settings.UseMinimumBalanceMethod)

	for _, acc := range accounts {
		if !acc.InterestActive {
			continue
		}
		if len(acc.InterestTiers) == 0 {
			result.skip(acc.Name, "no interest tiers configured")
			continue
		}
		if acc.LastInterestCreditDate == targetMonth {
			result.skip(acc.Name, fmt.Sprintf("already credited for %s", targetMonth))
			continue
		}

		basis, err := p.interestBasis(ctx, acc, targetStart)
		if err != nil {
			result.fail(acc.Name, err)
			continue
		}
		if basis <= 0 {
			result.skip(acc.Name, "non-positive balance basis")
			continue
		}

		tier, ok := matchTier(acc.InterestTiers, basis)
		if !ok {
			result.skip(acc.Name, fmt.Sprintf("no interest tier covers balance %d", basis))
			continue
		}

		net := netMonthlyInterest(basis, tier.AnnualRatePercent, p.settings.TaxRatePercent)
		if net == 0 {
			result.skip(acc.Name, "net interest rounds to zero")
			continue
		}

		if dryRun {
			result.done(acc.Name, fmt.Sprintf("would credit %d for %s", net, targetMonth))
			continue
		}

		if err := p.postInterest(ctx, acc, now, targetMonth, net); err != nil {
			if core.IsConflict(err) {
				result.skip(acc.Name, fmt.Sprintf("already credited for %s", targetMonth))
				continue
			}
			slog.ErrorContext(ctx, "Failed to post interest",
				"account_id", acc.ID, "error", err)
			result.fail(acc.Name, err)
			continue
		}
		result.done(acc.Name, fmt.Sprintf("credited %d for %s", net, targetMonth))
	}

	slog.InfoContext(ctx, "Monthly interest processing complete",
		"processed", result.Processed,
		"skipped", result.Skipped,
		"failed", result.Failed)
	return result, nil
}

func (p *AutomationProcessor) postInterest(ctx context.Context, acc core.Account, now time.Time, targetMonth string, net int64) error {
	incomeAccount, err := p.storage.EnsureCategoryAccount(ctx, interestIncomeAccount, core.AccountIncomeCategory)
	if err != nil {
		return err
	}

	_, err = p.ledger.PostTransaction(ctx, core.NewTransaction{
		PostedAt:        now,
		Description:     fmt.Sprintf("Interest for %s", targetMonth),
		Category:        "Interest",
		Kind:            core.KindInterest,
		Amount:          net,
		DebitAccountID:  acc.ID,
		CreditAccountID: incomeAccount.ID,
		IdempotencyKey:  fmt.Sprintf("interest:%d:%s", acc.ID, targetMonth),
	})
	if err != nil {
		return err
	}
	return p.storage.StampInterestCredit(ctx, acc.ID, targetMonth)
}

// interestBasis returns either the current balance or, under the
// minimum balance method, the lowest end-of-day balance the account
// held during the target month, reconstructed from history.
func (p *AutomationProcessor) interestBasis(ctx context.Context, acc core.Account, targetStart time.Time) (int64, error) {
	if !p.settings.UseMinimumBalanceMethod {
		return acc.CurrentBalance, nil
	}

	nextStart := targetStart.AddDate(0, 1, 0)
	lowest := int64(0)
	first := true
	for day := targetStart; day.Before(nextStart); day = day.AddDate(0, 0, 1) {
		endOfDay := day.AddDate(0, 0, 1)
		balance, err := p.ledger.RunningBalanceAsOf(ctx, acc.ID, endOfDay)
		if err != nil {
			return 0, fmt.Errorf("reconstruct balance for %s: %w", day.Format("2006-01-02"), err)
		}
		if first || balance < lowest {
			lowest = balance
			first = false
		}
	}
	return lowest, nil
}

func (p *AutomationProcessor) depositAccounts(ctx context.Context) ([]core.Account, error) {
	banks, err := p.storage.ListAccounts(ctx, core.AccountBank)
	if err != nil {
		return nil, fmt.Errorf("list bank accounts: %w", err)
	}
	wallets, err := p.storage.ListAccounts(ctx, core.AccountEWallet)
	if err != nil {
		return nil, fmt.Errorf("list e-wallet accounts: %w", err)
	}
	return append(banks, wallets...), nil
}

// matchTier returns the first tier whose range contains the basis.
func matchTier(tiers []core.InterestTier, basis int64) (core.InterestTier, bool) {
	for _, tier := range tiers {
		if tier.Contains(basis) {
			return tier, true
		}
	}
	return core.InterestTier{}, false
}

// netMonthlyInterest computes one month of interest on the basis at the
// annual rate, less withholding tax, floored to whole minor units.
func netMonthlyInterest(basis int64, annualRatePercent, taxRatePercent float64) int64 {
	gross := decimal.NewFromInt(basis).
		Mul(decimal.NewFromFloat(annualRatePercent)).
		Div(decimal.NewFromInt(100)).
		Div(decimal.NewFromInt(12))
	net := gross.Mul(decimal.NewFromInt(1).Sub(
		decimal.NewFromFloat(taxRatePercent).Div(decimal.NewFromInt(100))))
	return net.Floor().IntPart()
}

func priorMonthStart(now time.Time) time.Time {
	firstOfMonth := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	return firstOfMonth.AddDate(0, -1, 0)
}
