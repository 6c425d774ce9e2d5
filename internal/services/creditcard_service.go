// Package services provides the engines built on top of the ledger:
// credit card billing, installment plans, and monthly automation.
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

// PaymentType selects how a bill payment amount was chosen.
type PaymentType string

const (
	PaymentFull    PaymentType = "FULL"
	PaymentMinimum PaymentType = "MINIMUM"
	PaymentCustom  PaymentType = "CUSTOM"
)

// PaymentCalculation is the derived billing picture for one card.
// When IsValid is false the card is missing mandatory settings and only
// FullPayment (the raw outstanding debt) is reliable.
type PaymentCalculation struct {
	AccountID         int64
	AccountName       string
	IsValid           bool
	ValidationMessage string
	MissingFields     []string

	PeriodStart time.Time
	PeriodEnd   time.Time

	FullPayment     int64
	PreviousBalance int64
	NewPurchases    int64
	NewInstallments int64
	NewFees         int64
	MinimumPayment  int64
	LateFee         int64

	DueDate      time.Time
	DaysUntilDue int
	IsPastDue    bool
}

// PayBillRequest carries one bill payment order.
type PayBillRequest struct {
	AccountID       int64
	SourceAccountID int64
	Amount          int64
	Type            PaymentType
}

// lateFeeStrategy computes the charge for a past-due bill from the
// outstanding amount. Conventional and shariah cards use different
// formulas; coefficients come from the settings file.
type lateFeeStrategy interface {
	Fee(outstanding int64) int64
}

type conventionalLateFee struct {
	percent float64
	cap     int64
}

func (s conventionalLateFee) Fee(outstanding int64) int64 {
	fee := decimal.NewFromInt(outstanding).
		Mul(decimal.NewFromFloat(s.percent)).
		Div(decimal.NewFromInt(100)).
		IntPart()
	if s.cap > 0 && fee > s.cap {
		return s.cap
	}
	return fee
}

type shariahLateFee struct {
	flat int64
	cap  int64
}

func (s shariahLateFee) Fee(outstanding int64) int64 {
	fee := s.flat
	if s.cap > 0 && fee > s.cap {
		return s.cap
	}
	return fee
}

func lateFeeStrategyFor(isShariah bool, settings *config.Settings) lateFeeStrategy {
	if isShariah {
		return shariahLateFee{
			flat: settings.LateFee.Shariah.Flat,
			cap:  settings.LateFee.Shariah.Cap,
		}
	}
	return conventionalLateFee{
		percent: settings.LateFee.Conventional.Percent,
		cap:     settings.LateFee.Conventional.Cap,
	}
}

// CreditCardService derives billing figures from ledger history and
// posts bill payments.
type CreditCardService struct {
	ledger   *ledger.Service
	settings *config.Settings
}

func NewCreditCardService(ledgerService *ledger.Service, settings *config.Settings) *CreditCardService {
	return &CreditCardService{
		ledger:   ledgerService,
		settings: settings,
	}
}

// CalculatePayment computes the full billing picture for the card as of
// now. A card missing mandatory settings yields IsValid=false with the
// outstanding absolute balance as a fallback FullPayment; callers must
// surface that instead of trusting the other figures.
func (s *CreditCardService) CalculatePayment(ctx context.Context, accountID int64, now time.Time) (*PaymentCalculation, error) {
	account, err := s.ledger.GetAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if account.Type != core.AccountCreditCard {
		return nil, core.NewValidationError("account %q is not a credit card", account.Name)
	}

	calc := &PaymentCalculation{
		AccountID:   account.ID,
		AccountName: account.Name,
		FullPayment: outstandingDebt(account.CurrentBalance),
	}

	if missing := account.MissingCreditCardFields(); len(missing) > 0 {
		calc.MissingFields = missing
		calc.ValidationMessage = (&core.ConfigurationError{
			AccountName:   account.Name,
			MissingFields: missing,
		}).Error()
		return calc, nil
	}
	calc.IsValid = true

	period := schedule.BillingPeriod(*account.BillingDay, now)
	calc.PeriodStart = period.Start
	calc.PeriodEnd = period.End

	charges, err := s.ledger.ListTransactions(ctx, storage.TransactionFilter{
		CreditAccountID: account.ID,
		From:            period.Start,
		To:              period.End.Add(24*time.Hour - time.Nanosecond),
	})
	if err != nil {
		return nil, fmt.Errorf("list period charges: %w", err)
	}

	for _, t := range charges {
		switch s.classifyCharge(t) {
		case core.KindInstallment:
			calc.NewInstallments += t.Amount
		case core.KindFee:
			calc.NewFees += t.Amount
		case core.KindPurchase:
			calc.NewPurchases += t.Amount
		}
	}

	calc.PreviousBalance = calc.FullPayment - (calc.NewPurchases + calc.NewInstallments + calc.NewFees)
	if calc.PreviousBalance < 0 {
		calc.PreviousBalance = 0
	}

	calc.MinimumPayment = minimumPayment(calc.FullPayment, *account.MinPaymentFixed, account.MinPaymentPercent)

	dueInfo := schedule.DueDateInfo(*account.DueDay, *account.BillingDay, now)
	calc.DueDate = dueInfo.DueDate
	calc.DaysUntilDue = dueInfo.DaysUntilDue
	calc.IsPastDue = dueInfo.IsPastDue

	if dueInfo.IsPastDue && calc.FullPayment > 0 {
		calc.LateFee = lateFeeStrategyFor(*account.IsShariah, s.settings).Fee(calc.FullPayment)
	}

	return calc, nil
}

// classifyCharge buckets one debt-increasing entry as an installment,
// a fee, or a purchase. Entries that predate explicit kinds fall back
// to keyword matching on the category label.
func (s *CreditCardService) classifyCharge(t core.Transaction) core.TransactionKind {
	kind := t.Kind
	if kind == "" {
		kind = core.ClassifyLegacy(t.Category, t.InstallmentPlanID, s.settings.LegacyFeeKeywords)
	}
	switch kind {
	case core.KindInstallment:
		return core.KindInstallment
	case core.KindFee, core.KindAdminFee:
		return core.KindFee
	case core.KindPayment, core.KindInterest:
		// Not debt-increasing charges; excluded from the breakdown.
		return ""
	default:
		if t.InstallmentPlanID != 0 {
			return core.KindInstallment
		}
		return core.KindPurchase
	}
}

// PayBill posts one payment entry: debit the card (debt decreases),
// credit the source account. Source balance is advisory; going negative
// is allowed.
func (s *CreditCardService) PayBill(ctx context.Context, req PayBillRequest, now time.Time) (*core.Transaction, error) {
	if req.Amount <= 0 {
		return nil, core.ErrInvalidAmount
	}

	card, err := s.ledger.GetAccount(ctx, req.AccountID)
	if err != nil {
		return nil, err
	}
	if card.Type != core.AccountCreditCard {
		return nil, core.NewValidationError("account %q is not a credit card", card.Name)
	}

	source, err := s.ledger.GetAccount(ctx, req.SourceAccountID)
	if err != nil {
		return nil, err
	}

	if req.Type == PaymentCustom {
		calc, err := s.CalculatePayment(ctx, card.ID, now)
		if err != nil {
			return nil, err
		}
		required := calc.MinimumPayment
		if calc.FullPayment < required {
			required = calc.FullPayment
		}
		if req.Amount < required {
			return nil, core.NewValidationError(
				"payment %d below minimum required %d", req.Amount, required)
		}
	}

	posted, err := s.ledger.PostTransaction(ctx, core.NewTransaction{
		PostedAt:        now,
		Description:     fmt.Sprintf("Payment to %s", card.Name),
		Category:        "Credit Card Payment",
		Kind:            core.KindPayment,
		Amount:          req.Amount,
		DebitAccountID:  card.ID,
		CreditAccountID: source.ID,
	})
	if err != nil {
		return nil, err
	}

	slog.InfoContext(ctx, "Credit card bill paid",
		"account_id", card.ID,
		"source_account_id", source.ID,
		"amount", req.Amount,
		"payment_type", string(req.Type))
	return posted, nil
}

// outstandingDebt maps a liability balance to the amount owed.
func outstandingDebt(balance int64) int64 {
	if balance < 0 {
		return -balance
	}
	return 0
}

// minimumPayment is the larger of the percentage and fixed floors,
// never more than the full amount owed.
func minimumPayment(fullPayment, fixed int64, percent *float64) int64 {
	min := fixed
	if percent != nil {
		byPercent := decimal.NewFromInt(fullPayment).
			Mul(decimal.NewFromFloat(*percent)).
			Div(decimal.NewFromInt(100)).
			IntPart()
		if byPercent > min {
			min = byPercent
		}
	}
	if min > fullPayment {
		return fullPayment
	}
	return min
}
