package core

import (
	"strings"
	"time"
)

// AccountType classifies an account in the two-sided ledger.
type AccountType string

const (
	AccountBank            AccountType = "BANK"
	AccountEWallet         AccountType = "E_WALLET"
	AccountCash            AccountType = "CASH"
	AccountCreditCard      AccountType = "CREDIT_CARD"
	AccountExpenseCategory AccountType = "EXPENSE_CATEGORY"
	AccountIncomeCategory  AccountType = "INCOME_CATEGORY"
)

// Valid reports whether t is a known account type.
func (t AccountType) Valid() bool {
	switch t {
	case AccountBank, AccountEWallet, AccountCash, AccountCreditCard,
		AccountExpenseCategory, AccountIncomeCategory:
		return true
	}
	return false
}

// TransactionKind is the explicit classification set at creation time.
// Purchases, installment debits and fees are distinguished here rather
// than inferred later from free-text category labels.
type TransactionKind string

const (
	KindPurchase    TransactionKind = "PURCHASE"
	KindInstallment TransactionKind = "INSTALLMENT"
	KindFee         TransactionKind = "FEE"
	KindPayment     TransactionKind = "PAYMENT"
	KindInterest    TransactionKind = "INTEREST"
	KindAdminFee    TransactionKind = "ADMIN_FEE"
	KindTransfer    TransactionKind = "TRANSFER"
)

// Valid reports whether k is a known transaction kind.
func (k TransactionKind) Valid() bool {
	switch k {
	case KindPurchase, KindInstallment, KindFee, KindPayment,
		KindInterest, KindAdminFee, KindTransfer:
		return true
	}
	return false
}

// ClassifyLegacy maps a free-text category label to a kind using
// case-insensitive substring matching against the configured fee
// keywords. Migration shim for rows that predate explicit kinds; new
// postings always carry a kind.
func ClassifyLegacy(category string, planID int64, feeKeywords []string) TransactionKind {
	if planID != 0 {
		return KindInstallment
	}
	lower := strings.ToLower(category)
	for _, kw := range feeKeywords {
		if kw == "" {
			continue
		}
		if strings.Contains(lower, strings.ToLower(kw)) {
			return KindFee
		}
	}
	return KindPurchase
}

// InterestTier is one bracket of an account's interest schedule.
// MaxBalance nil means the bracket is unbounded above.
type InterestTier struct {
	MinBalance        int64
	MaxBalance        *int64
	AnnualRatePercent float64
}

// Contains reports whether the balance basis falls inside the tier.
func (t InterestTier) Contains(basis int64) bool {
	if basis < t.MinBalance {
		return false
	}
	return t.MaxBalance == nil || basis <= *t.MaxBalance
}

// Account is one side of the ledger. For asset and liability accounts a
// debit increases the balance toward zero-or-positive and a credit
// decreases it; a CREDIT_CARD account is carried as a liability whose
// balance is zero or negative.
type Account struct {
	ID             int64
	Name           string
	Type           AccountType
	OpeningBalance int64
	CurrentBalance int64

	// Credit-card settings. All must be set together before billing
	// math is valid; CalculatePayment reports the missing ones.
	CreditLimit          *int64
	IsShariah            *bool
	BillingDay           *int
	DueDay               *int
	MinPaymentFixed      *int64
	MinPaymentPercent    *float64
	MinInstallmentAmount *int64

	// Monthly automation settings and last-run markers. Markers hold a
	// YYYY-MM stamp; automation decisions are pure functions of the
	// account, the current date and ledger history.
	AdminFeeActive         bool
	AdminFeeAmount         *int64
	AdminFeePattern        string
	AdminFeeDay            *int
	InterestActive         bool
	InterestTiers          []InterestTier
	LastAdminChargeDate    string
	LastInterestCreditDate string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Validate checks the fields every account must carry.
func (a Account) Validate() error {
	if strings.TrimSpace(a.Name) == "" {
		return ErrEmptyName
	}
	if len(a.Name) > 120 {
		return NewValidationError("account name too long (max 120 characters)")
	}
	if !a.Type.Valid() {
		return NewValidationError("unknown account type %q", a.Type)
	}
	if a.BillingDay != nil && (*a.BillingDay < 1 || *a.BillingDay > 31) {
		return NewValidationError("billing day %d out of range 1-31", *a.BillingDay)
	}
	if a.DueDay != nil && (*a.DueDay < 1 || *a.DueDay > 31) {
		return NewValidationError("due day %d out of range 1-31", *a.DueDay)
	}
	if a.MinPaymentPercent != nil && (*a.MinPaymentPercent < 0 || *a.MinPaymentPercent > 100) {
		return NewValidationError("minimum payment percent %.2f out of range 0-100", *a.MinPaymentPercent)
	}
	for i, tier := range a.InterestTiers {
		if tier.MaxBalance != nil && *tier.MaxBalance < tier.MinBalance {
			return NewValidationError("interest tier %d: max balance below min balance", i+1)
		}
	}
	return nil
}

// MissingCreditCardFields lists the mandatory credit-card settings the
// account does not carry yet. Empty means billing math is valid.
func (a Account) MissingCreditCardFields() []string {
	var missing []string
	if a.IsShariah == nil {
		missing = append(missing, "isShariah")
	}
	if a.BillingDay == nil {
		missing = append(missing, "billingDay")
	}
	if a.DueDay == nil {
		missing = append(missing, "dueDay")
	}
	if a.MinPaymentFixed == nil {
		missing = append(missing, "minPaymentFixed")
	}
	return missing
}

// Transaction is one journal entry: a positive amount moved between a
// debit side and a credit side. Immutable once posted, except for the
// installment-conversion linkage which never alters the posted amounts.
type Transaction struct {
	ID                     int64
	PostedAt               time.Time
	Description            string
	Category               string
	Kind                   TransactionKind
	Amount                 int64
	DebitAccountID         int64
	CreditAccountID        int64
	InstallmentPlanID      int64 // 0 when unlinked
	IdempotencyKey         string
	ConvertedToInstallment bool
	CreatedAt              time.Time
}

// NewTransaction carries the fields of a transaction to be posted.
type NewTransaction struct {
	PostedAt          time.Time
	Description       string
	Category          string
	Kind              TransactionKind
	Amount            int64
	DebitAccountID    int64
	CreditAccountID   int64
	InstallmentPlanID int64
	IdempotencyKey    string
}

// Validate checks the posting preconditions that do not require storage
// access: positive amount, distinct accounts, non-empty description.
func (t NewTransaction) Validate() error {
	if t.Amount <= 0 {
		return ErrInvalidAmount
	}
	if len(strings.TrimSpace(t.Description)) == 0 {
		return ErrEmptyDescription
	}
	if len(t.Description) > 200 {
		return NewValidationError("description too long (max 200 characters)")
	}
	if t.DebitAccountID == 0 || t.CreditAccountID == 0 {
		return NewValidationError("both debit and credit accounts are required")
	}
	if t.DebitAccountID == t.CreditAccountID {
		return ErrSameAccount
	}
	if t.Kind != "" && !t.Kind.Valid() {
		return NewValidationError("unknown transaction kind %q", t.Kind)
	}
	return nil
}

// PlanStatus is the lifecycle state of an installment plan.
type PlanStatus string

const (
	PlanActive  PlanStatus = "ACTIVE"
	PlanPaidOff PlanStatus = "PAID_OFF"
)

// InstallmentPlan splits one purchase's principal across a fixed tenor.
// MonthlyAmount excludes the one-time admin fee, which is posted as a
// separate transaction at conversion time.
type InstallmentPlan struct {
	ID                  int64
	ProductName         string
	Principal           int64
	TenorMonths         int
	InstallmentsPaid    int // 1-based current installment number
	MonthlyAmount       int64
	AdminFee            int64
	InterestRatePercent float64
	DueDay              int
	Status              PlanStatus
	CreditAccountID     int64
	ExpenseAccountID    int64
	SourceTransactionID int64
	CreatedAt           time.Time
}

// RemainingInstallments returns how many monthly debits are still owed.
func (p InstallmentPlan) RemainingInstallments() int {
	remaining := p.TenorMonths - p.InstallmentsPaid + 1
	if remaining < 0 {
		return 0
	}
	return remaining
}

// AdminFeeType selects how an installment admin fee is expressed.
type AdminFeeType string

const (
	AdminFeeFlat       AdminFeeType = "FLAT"
	AdminFeePercentage AdminFeeType = "PERCENTAGE"
)

// InstallmentTemplate is a bank/tenor preset resolving the admin fee for
// installment conversion.
type InstallmentTemplate struct {
	ID            int64
	BankName      string
	TenorMonths   int
	AdminFeeType  AdminFeeType
	AdminFeeValue float64
}

// AuditEntry is one row of the append-only account settings audit log.
type AuditEntry struct {
	ID        int64
	AccountID int64
	ChangedAt time.Time
	Field     string
	OldValue  string
	NewValue  string
}

// YearMonth formats t as the YYYY-MM marker stamp used by automation.
func YearMonth(t time.Time) string {
	return t.Format("2006-01")
}
