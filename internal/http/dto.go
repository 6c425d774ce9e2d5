package http

import (
	"time"

	"github.com/rroihans/dompetku-sub001/internal/core"
	"github.com/rroihans/dompetku-sub001/internal/services"
)

// The wire contract carries monetary values as decimal floats. Every
// amount converts through the money codec at this boundary and nowhere
// else; handlers and services only ever see minor units.

type interestTierJSON struct {
	MinBalance        float64  `json:"minBalance"`
	MaxBalance        *float64 `json:"maxBalance,omitempty"`
	AnnualRatePercent float64  `json:"annualRatePercent"`
}

type accountJSON struct {
	ID             int64   `json:"id"`
	Name           string  `json:"name"`
	Type           string  `json:"type"`
	OpeningBalance float64 `json:"openingBalance"`
	CurrentBalance float64 `json:"currentBalance"`

	CreditLimit          *float64 `json:"creditLimit,omitempty"`
	IsShariah            *bool    `json:"isShariah,omitempty"`
	BillingDay           *int     `json:"billingDay,omitempty"`
	DueDay               *int     `json:"dueDay,omitempty"`
	MinPaymentFixed      *float64 `json:"minPaymentFixed,omitempty"`
	MinPaymentPercent    *float64 `json:"minPaymentPercent,omitempty"`
	MinInstallmentAmount *float64 `json:"minInstallmentAmount,omitempty"`

	AdminFeeActive         bool               `json:"adminFeeActive"`
	AdminFeeAmount         *float64           `json:"adminFeeAmount,omitempty"`
	AdminFeePattern        string             `json:"adminFeePattern,omitempty"`
	AdminFeeDay            *int               `json:"adminFeeDay,omitempty"`
	InterestActive         bool               `json:"interestActive"`
	InterestTiers          []interestTierJSON `json:"interestTiers,omitempty"`
	LastAdminChargeDate    string             `json:"lastAdminChargeDate,omitempty"`
	LastInterestCreditDate string             `json:"lastInterestCreditDate,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func toAccountJSON(a core.Account) accountJSON {
	out := accountJSON{
		ID:                     a.ID,
		Name:                   a.Name,
		Type:                   string(a.Type),
		OpeningBalance:         core.ToDecimal(a.OpeningBalance),
		CurrentBalance:         core.ToDecimal(a.CurrentBalance),
		IsShariah:              a.IsShariah,
		BillingDay:             a.BillingDay,
		DueDay:                 a.DueDay,
		MinPaymentPercent:      a.MinPaymentPercent,
		AdminFeeActive:         a.AdminFeeActive,
		AdminFeePattern:        a.AdminFeePattern,
		AdminFeeDay:            a.AdminFeeDay,
		InterestActive:         a.InterestActive,
		LastAdminChargeDate:    a.LastAdminChargeDate,
		LastInterestCreditDate: a.LastInterestCreditDate,
		CreatedAt:              a.CreatedAt,
		UpdatedAt:              a.UpdatedAt,
	}
	out.CreditLimit = minorPtrToDecimal(a.CreditLimit)
	out.MinPaymentFixed = minorPtrToDecimal(a.MinPaymentFixed)
	out.MinInstallmentAmount = minorPtrToDecimal(a.MinInstallmentAmount)
	out.AdminFeeAmount = minorPtrToDecimal(a.AdminFeeAmount)
	for _, t := range a.InterestTiers {
		tier := interestTierJSON{
			MinBalance:        core.ToDecimal(t.MinBalance),
			AnnualRatePercent: t.AnnualRatePercent,
		}
		tier.MaxBalance = minorPtrToDecimal(t.MaxBalance)
		out.InterestTiers = append(out.InterestTiers, tier)
	}
	return out
}

// accountRequest is the write shape shared by create and update.
type accountRequest struct {
	Name           string  `json:"name"`
	Type           string  `json:"type"`
	OpeningBalance float64 `json:"openingBalance"`

	CreditLimit          *float64 `json:"creditLimit"`
	IsShariah            *bool    `json:"isShariah"`
	BillingDay           *int     `json:"billingDay"`
	DueDay               *int     `json:"dueDay"`
	MinPaymentFixed      *float64 `json:"minPaymentFixed"`
	MinPaymentPercent    *float64 `json:"minPaymentPercent"`
	MinInstallmentAmount *float64 `json:"minInstallmentAmount"`

	AdminFeeActive  bool               `json:"adminFeeActive"`
	AdminFeeAmount  *float64           `json:"adminFeeAmount"`
	AdminFeePattern string             `json:"adminFeePattern"`
	AdminFeeDay     *int               `json:"adminFeeDay"`
	InterestActive  bool               `json:"interestActive"`
	InterestTiers   []interestTierJSON `json:"interestTiers"`
}

func (req accountRequest) toAccount() core.Account {
	a := core.Account{
		Name:              req.Name,
		Type:              core.AccountType(req.Type),
		OpeningBalance:    core.ToMinorUnits(req.OpeningBalance),
		IsShariah:         req.IsShariah,
		BillingDay:        req.BillingDay,
		DueDay:            req.DueDay,
		MinPaymentPercent: req.MinPaymentPercent,
		AdminFeeActive:    req.AdminFeeActive,
		AdminFeePattern:   req.AdminFeePattern,
		AdminFeeDay:       req.AdminFeeDay,
		InterestActive:    req.InterestActive,
	}
	a.CreditLimit = decimalPtrToMinor(req.CreditLimit)
	a.MinPaymentFixed = decimalPtrToMinor(req.MinPaymentFixed)
	a.MinInstallmentAmount = decimalPtrToMinor(req.MinInstallmentAmount)
	a.AdminFeeAmount = decimalPtrToMinor(req.AdminFeeAmount)
	for _, t := range req.InterestTiers {
		tier := core.InterestTier{
			MinBalance:        core.ToMinorUnits(t.MinBalance),
			AnnualRatePercent: t.AnnualRatePercent,
		}
		tier.MaxBalance = decimalPtrToMinor(t.MaxBalance)
		a.InterestTiers = append(a.InterestTiers, tier)
	}
	return a
}

type transactionJSON struct {
	ID                     int64     `json:"id"`
	PostedAt               time.Time `json:"postedAt"`
	Description            string    `json:"description"`
	Category               string    `json:"category,omitempty"`
	Kind                   string    `json:"kind"`
	Amount                 float64   `json:"amount"`
	DebitAccountID         int64     `json:"debitAccountId"`
	CreditAccountID        int64     `json:"creditAccountId"`
	InstallmentPlanID      int64     `json:"installmentPlanId,omitempty"`
	IdempotencyKey         string    `json:"idempotencyKey,omitempty"`
	ConvertedToInstallment bool      `json:"convertedToInstallment"`
	CreatedAt              time.Time `json:"createdAt"`
}

func toTransactionJSON(t core.Transaction) transactionJSON {
	return transactionJSON{
		ID:                     t.ID,
		PostedAt:               t.PostedAt,
		Description:            t.Description,
		Category:               t.Category,
		Kind:                   string(t.Kind),
		Amount:                 core.ToDecimal(t.Amount),
		DebitAccountID:         t.DebitAccountID,
		CreditAccountID:        t.CreditAccountID,
		InstallmentPlanID:      t.InstallmentPlanID,
		IdempotencyKey:         t.IdempotencyKey,
		ConvertedToInstallment: t.ConvertedToInstallment,
		CreatedAt:              t.CreatedAt,
	}
}

type transactionRequest struct {
	PostedAt        string  `json:"postedAt"`
	Description     string  `json:"description"`
	Category        string  `json:"category"`
	Kind            string  `json:"kind"`
	Amount          float64 `json:"amount"`
	DebitAccountID  int64   `json:"debitAccountId"`
	CreditAccountID int64   `json:"creditAccountId"`
	IdempotencyKey  string  `json:"idempotencyKey"`
}

type planJSON struct {
	ID                    int64     `json:"id"`
	ProductName           string    `json:"productName"`
	Principal             float64   `json:"principal"`
	TenorMonths           int       `json:"tenorMonths"`
	InstallmentsPaid      int       `json:"installmentsPaid"`
	RemainingInstallments int       `json:"remainingInstallments"`
	MonthlyAmount         float64   `json:"monthlyAmount"`
	AdminFee              float64   `json:"adminFee"`
	InterestRatePercent   float64   `json:"interestRatePercent"`
	DueDay                int       `json:"dueDay"`
	Status                string    `json:"status"`
	CreditAccountID       int64     `json:"creditAccountId"`
	ExpenseAccountID      int64     `json:"expenseAccountId"`
	SourceTransactionID   int64     `json:"sourceTransactionId"`
	CreatedAt             time.Time `json:"createdAt"`
}

func toPlanJSON(p core.InstallmentPlan) planJSON {
	return planJSON{
		ID:                    p.ID,
		ProductName:           p.ProductName,
		Principal:             core.ToDecimal(p.Principal),
		TenorMonths:           p.TenorMonths,
		InstallmentsPaid:      p.InstallmentsPaid,
		RemainingInstallments: p.RemainingInstallments(),
		MonthlyAmount:         core.ToDecimal(p.MonthlyAmount),
		AdminFee:              core.ToDecimal(p.AdminFee),
		InterestRatePercent:   p.InterestRatePercent,
		DueDay:                p.DueDay,
		Status:                string(p.Status),
		CreditAccountID:       p.CreditAccountID,
		ExpenseAccountID:      p.ExpenseAccountID,
		SourceTransactionID:   p.SourceTransactionID,
		CreatedAt:             p.CreatedAt,
	}
}

type templateJSON struct {
	ID            int64   `json:"id"`
	BankName      string  `json:"bankName"`
	TenorMonths   int     `json:"tenorMonths"`
	AdminFeeType  string  `json:"adminFeeType"`
	AdminFeeValue float64 `json:"adminFeeValue"`
}

func toTemplateJSON(t core.InstallmentTemplate) templateJSON {
	value := t.AdminFeeValue
	if t.AdminFeeType == core.AdminFeeFlat {
		value = core.ToDecimal(int64(t.AdminFeeValue))
	}
	return templateJSON{
		ID:            t.ID,
		BankName:      t.BankName,
		TenorMonths:   t.TenorMonths,
		AdminFeeType:  string(t.AdminFeeType),
		AdminFeeValue: value,
	}
}

type paymentCalculationJSON struct {
	AccountID         int64    `json:"accountId"`
	AccountName       string   `json:"accountName"`
	IsValid           bool     `json:"isValid"`
	ValidationMessage string   `json:"validationMessage,omitempty"`
	MissingFields     []string `json:"missingFields,omitempty"`

	PeriodStart string `json:"periodStart,omitempty"`
	PeriodEnd   string `json:"periodEnd,omitempty"`

	FullPayment     float64 `json:"fullPayment"`
	PreviousBalance float64 `json:"previousBalance"`
	NewPurchases    float64 `json:"newPurchases"`
	NewInstallments float64 `json:"newInstallments"`
	NewFees         float64 `json:"newFees"`
	MinimumPayment  float64 `json:"minimumPayment"`
	LateFee         float64 `json:"lateFee"`

	DueDate      string `json:"dueDate,omitempty"`
	DaysUntilDue int    `json:"daysUntilDue"`
	IsPastDue    bool   `json:"isPastDue"`
}

func toPaymentCalculationJSON(c services.PaymentCalculation) paymentCalculationJSON {
	out := paymentCalculationJSON{
		AccountID:         c.AccountID,
		AccountName:       c.AccountName,
		IsValid:           c.IsValid,
		ValidationMessage: c.ValidationMessage,
		MissingFields:     c.MissingFields,
		FullPayment:       core.ToDecimal(c.FullPayment),
		PreviousBalance:   core.ToDecimal(c.PreviousBalance),
		NewPurchases:      core.ToDecimal(c.NewPurchases),
		NewInstallments:   core.ToDecimal(c.NewInstallments),
		NewFees:           core.ToDecimal(c.NewFees),
		MinimumPayment:    core.ToDecimal(c.MinimumPayment),
		LateFee:           core.ToDecimal(c.LateFee),
		DaysUntilDue:      c.DaysUntilDue,
		IsPastDue:         c.IsPastDue,
	}
	if !c.PeriodStart.IsZero() {
		out.PeriodStart = c.PeriodStart.Format("2006-01-02")
	}
	if !c.PeriodEnd.IsZero() {
		out.PeriodEnd = c.PeriodEnd.Format("2006-01-02")
	}
	if !c.DueDate.IsZero() {
		out.DueDate = c.DueDate.Format("2006-01-02")
	}
	return out
}

type auditEntryJSON struct {
	ID        int64     `json:"id"`
	AccountID int64     `json:"accountId"`
	ChangedAt time.Time `json:"changedAt"`
	Field     string    `json:"field"`
	OldValue  string    `json:"oldValue"`
	NewValue  string    `json:"newValue"`
}

func toAuditEntryJSON(e core.AuditEntry) auditEntryJSON {
	return auditEntryJSON{
		ID:        e.ID,
		AccountID: e.AccountID,
		ChangedAt: e.ChangedAt,
		Field:     e.Field,
		OldValue:  e.OldValue,
		NewValue:  e.NewValue,
	}
}

type automationResultJSON struct {
	DryRun    bool     `json:"dryRun"`
	Processed int      `json:"processed"`
	Skipped   int      `json:"skipped"`
	Failed    int      `json:"failed"`
	Reasons   []string `json:"reasons,omitempty"`
}

func toAutomationResultJSON(r services.AutomationResult) automationResultJSON {
	return automationResultJSON(r)
}

func minorPtrToDecimal(v *int64) *float64 {
	if v == nil {
		return nil
	}
	f := core.ToDecimal(*v)
	return &f
}

func decimalPtrToMinor(v *float64) *int64 {
	if v == nil {
		return nil
	}
	n := core.ToMinorUnits(*v)
	return &n
}
