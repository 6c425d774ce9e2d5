package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rroihans/dompetku-sub001/internal/core"
	"github.com/rroihans/dompetku-sub001/internal/storage"
)

// adminFeeExpenseAccount is auto-created on first use.
const adminFeeExpenseAccount = "[EXPENSE] Admin Fee"

// ConvertRequest carries one installment conversion order. The admin
// fee comes from a bank/tenor template when BankName is set, otherwise
// from the explicit AdminFeeType and AdminFeeValue.
type ConvertRequest struct {
	TransactionID       int64
	TenorMonths         int
	ProductName         string
	BankName            string
	AdminFeeType        core.AdminFeeType
	AdminFeeValue       float64
	InterestRatePercent float64
	DueDay              int
}

// InstallmentService converts card purchases into installment plans and
// advances them.
type InstallmentService struct {
	repo *storage.SQLiteRepository
}

func NewInstallmentService(repo *storage.SQLiteRepository) *InstallmentService {
	return &InstallmentService{repo: repo}
}

// ConvertToInstallment splits an existing card purchase into a plan.
// The original transaction keeps its posted ledger effect; the only new
// posting is the one-time admin fee, which further increases the debt.
// The monthly figure excludes the admin fee.
func (s *InstallmentService) ConvertToInstallment(ctx context.Context, req ConvertRequest, now time.Time) (*core.InstallmentPlan, error) {
	if req.TenorMonths < 1 {
		return nil, core.NewValidationError("tenor must be at least 1 month, got %d", req.TenorMonths)
	}

	source, err := s.repo.GetTransaction(ctx, req.TransactionID)
	if err != nil {
		return nil, err
	}
	if source.ConvertedToInstallment {
		return nil, core.NewConflictError("transaction %d is already converted to an installment", source.ID)
	}

	card, err := s.repo.GetAccount(ctx, source.CreditAccountID)
	if err != nil {
		return nil, err
	}
	if card.Type != core.AccountCreditCard {
		return nil, core.NewValidationError("transaction %d is not a credit card charge", source.ID)
	}
	if card.MinInstallmentAmount != nil && source.Amount < *card.MinInstallmentAmount {
		return nil, core.NewValidationError(
			"amount %d below the minimum installment amount %d for %s",
			source.Amount, *card.MinInstallmentAmount, card.Name)
	}

	feeType, feeValue, err := s.resolveAdminFee(ctx, req)
	if err != nil {
		return nil, err
	}
	adminFee := adminFeeNominal(source.Amount, feeType, feeValue)

	productName := req.ProductName
	if productName == "" {
		productName = source.Description
	}
	dueDay := req.DueDay
	if dueDay == 0 && card.DueDay != nil {
		dueDay = *card.DueDay
	}

	plan := core.InstallmentPlan{
		ProductName:         productName,
		Principal:           source.Amount,
		TenorMonths:         req.TenorMonths,
		InstallmentsPaid:    1,
		MonthlyAmount:       core.CeilDiv(source.Amount, int64(req.TenorMonths)),
		AdminFee:            adminFee,
		InterestRatePercent: req.InterestRatePercent,
		DueDay:              dueDay,
		Status:              core.PlanActive,
		CreditAccountID:     card.ID,
		ExpenseAccountID:    source.DebitAccountID,
		SourceTransactionID: source.ID,
	}

	var feeEntry *core.NewTransaction
	if adminFee > 0 {
		feeAccount, err := s.repo.EnsureCategoryAccount(ctx, adminFeeExpenseAccount, core.AccountExpenseCategory)
		if err != nil {
			return nil, err
		}
		feeEntry = &core.NewTransaction{
			PostedAt:        now,
			Description:     fmt.Sprintf("Installment admin fee: %s", productName),
			Category:        "Admin Fee",
			Kind:            core.KindFee,
			Amount:          adminFee,
			DebitAccountID:  feeAccount.ID,
			CreditAccountID: card.ID,
		}
	}

	return s.repo.CreatePlan(ctx, plan, feeEntry)
}

// resolveAdminFee prefers a bank/tenor template over the caller's
// explicit fee fields.
func (s *InstallmentService) resolveAdminFee(ctx context.Context, req ConvertRequest) (core.AdminFeeType, float64, error) {
	if req.BankName == "" {
		if req.AdminFeeValue != 0 && req.AdminFeeType != core.AdminFeeFlat && req.AdminFeeType != core.AdminFeePercentage {
			return "", 0, core.NewValidationError("unknown admin fee type %q", req.AdminFeeType)
		}
		return req.AdminFeeType, req.AdminFeeValue, nil
	}

	template, err := s.repo.GetTemplate(ctx, req.BankName, req.TenorMonths)
	if err != nil {
		if core.IsNotFound(err) {
			return "", 0, core.NewValidationError(
				"no installment template for bank %q with tenor %d", req.BankName, req.TenorMonths)
		}
		return "", 0, err
	}
	return template.AdminFeeType, template.AdminFeeValue, nil
}

func adminFeeNominal(principal int64, feeType core.AdminFeeType, value float64) int64 {
	switch feeType {
	case core.AdminFeePercentage:
		return decimal.NewFromInt(principal).
			Mul(decimal.NewFromFloat(value)).
			Div(decimal.NewFromInt(100)).
			Round(0).
			IntPart()
	case core.AdminFeeFlat:
		return int64(value)
	default:
		return 0
	}
}

// PayInstallment posts one monthly debit against the card and advances
// the plan, closing it once every installment is paid.
func (s *InstallmentService) PayInstallment(ctx context.Context, planID int64, now time.Time) (*core.Transaction, error) {
	plan, err := s.repo.GetPlan(ctx, planID)
	if err != nil {
		return nil, err
	}
	if plan.Status == core.PlanPaidOff {
		return nil, core.NewConflictError("plan %d is already paid off", plan.ID)
	}

	next := plan.InstallmentsPaid + 1
	status := core.PlanActive
	if next > plan.TenorMonths {
		status = core.PlanPaidOff
	}

	entry := core.NewTransaction{
		PostedAt:          now,
		Description:       fmt.Sprintf("Installment %d/%d: %s", plan.InstallmentsPaid, plan.TenorMonths, plan.ProductName),
		Category:          "Installment",
		Kind:              core.KindInstallment,
		Amount:            plan.MonthlyAmount,
		DebitAccountID:    plan.ExpenseAccountID,
		CreditAccountID:   plan.CreditAccountID,
		InstallmentPlanID: plan.ID,
	}
	return s.repo.AdvancePlan(ctx, plan.ID, next, status, entry)
}

// AcceleratedPayoff settles every remaining installment in one posting
// and closes the plan. Irreversible.
func (s *InstallmentService) AcceleratedPayoff(ctx context.Context, planID int64, now time.Time) (*core.Transaction, error) {
	plan, err := s.repo.GetPlan(ctx, planID)
	if err != nil {
		return nil, err
	}
	if plan.Status == core.PlanPaidOff {
		return nil, core.NewConflictError("plan %d is already paid off", plan.ID)
	}
	remaining := plan.RemainingInstallments()
	if remaining == 0 {
		return nil, core.NewConflictError("plan %d has no remaining installments", plan.ID)
	}

	entry := core.NewTransaction{
		PostedAt:          now,
		Description:       fmt.Sprintf("Accelerated payoff: %s", plan.ProductName),
		Category:          "Installment",
		Kind:              core.KindInstallment,
		Amount:            int64(remaining) * plan.MonthlyAmount,
		DebitAccountID:    plan.ExpenseAccountID,
		CreditAccountID:   plan.CreditAccountID,
		InstallmentPlanID: plan.ID,
	}

	posted, err := s.repo.AdvancePlan(ctx, plan.ID, plan.TenorMonths+1, core.PlanPaidOff, entry)
	if err != nil {
		return nil, err
	}

	slog.InfoContext(ctx, "Installment plan paid off early",
		"plan_id", plan.ID,
		"remaining_installments", remaining,
		"amount", entry.Amount)
	return posted, nil
}

// DeletePlan removes a plan that has recorded no payments beyond the
// initial conversion, restoring the source transaction to convertible.
func (s *InstallmentService) DeletePlan(ctx context.Context, planID int64) error {
	plan, err := s.repo.GetPlan(ctx, planID)
	if err != nil {
		return err
	}
	if plan.InstallmentsPaid != 1 {
		return core.NewConflictError(
			"plan %d has recorded payments and cannot be deleted", plan.ID)
	}
	return s.repo.DeletePlan(ctx, plan.ID)
}

func (s *InstallmentService) GetPlan(ctx context.Context, planID int64) (*core.InstallmentPlan, error) {
	return s.repo.GetPlan(ctx, planID)
}

func (s *InstallmentService) ListPlans(ctx context.Context, status core.PlanStatus) ([]core.InstallmentPlan, error) {
	return s.repo.ListPlans(ctx, status)
}

func (s *InstallmentService) GetTemplate(ctx context.Context, bankName string, tenorMonths int) (*core.InstallmentTemplate, error) {
	return s.repo.GetTemplate(ctx, bankName, tenorMonths)
}

// SaveTemplate upserts a bank/tenor admin fee preset.
func (s *InstallmentService) SaveTemplate(ctx context.Context, t core.InstallmentTemplate) (*core.InstallmentTemplate, error) {
	if t.BankName == "" {
		return nil, core.NewValidationError("template bank name is required")
	}
	if t.TenorMonths < 1 {
		return nil, core.NewValidationError("template tenor must be at least 1 month")
	}
	if t.AdminFeeType != core.AdminFeeFlat && t.AdminFeeType != core.AdminFeePercentage {
		return nil, core.NewValidationError("unknown admin fee type %q", t.AdminFeeType)
	}
	if t.AdminFeeValue < 0 {
		return nil, core.NewValidationError("admin fee value must not be negative")
	}
	return s.repo.SaveTemplate(ctx, t)
}
