// Package ledger exposes the store operations of the two-sided ledger:
// posting journal entries, account lifecycle, and balance history.
package ledger

import (
	"context"
	"log/slog"
	"time"

	"github.com/rroihans/dompetku-sub001/internal/core"
	applog "github.com/rroihans/dompetku-sub001/internal/log"
	"github.com/rroihans/dompetku-sub001/internal/storage"
)

// EventPublisher notifies downstream consumers of posted entries.
// Publishing is best effort; a failure never rolls back a post.
type EventPublisher interface {
	PublishLedgerEntry(ctx context.Context, transactionID int64) error
}

// Service is the write/read surface of the ledger. There is no void or
// reverse operation; corrections are new offsetting entries.
type Service struct {
	repo      *storage.SQLiteRepository
	publisher EventPublisher
}

func NewService(repo *storage.SQLiteRepository, publisher EventPublisher) *Service {
	return &Service{repo: repo, publisher: publisher}
}

// PostTransaction validates and posts a single journal entry, adjusting
// both account balances atomically.
func (s *Service) PostTransaction(ctx context.Context, entry core.NewTransaction) (*core.Transaction, error) {
	posted, err := s.PostLinkedTransactions(ctx, []core.NewTransaction{entry})
	if err != nil {
		return nil, err
	}
	return &posted[0], nil
}

// PostLinkedTransactions posts a group of journal entries produced by a
// single user action. All entries and balance deltas commit together;
// readers never observe a partial application.
func (s *Service) PostLinkedTransactions(ctx context.Context, entries []core.NewTransaction) ([]core.Transaction, error) {
	for i := range entries {
		if err := entries[i].Validate(); err != nil {
			return nil, err
		}
	}
	posted, err := s.repo.PostTransactions(ctx, entries)
	if err != nil {
		return nil, err
	}

	sl := applog.NewStructuredLogger(applog.FromContext(ctx))
	for _, t := range posted {
		sl.LogEntryPosted(ctx, t.ID, t.Amount, string(t.Kind))
	}

	s.publishEvents(ctx, posted)
	return posted, nil
}

func (s *Service) publishEvents(ctx context.Context, posted []core.Transaction) {
	if s.publisher == nil {
		return
	}
	for _, t := range posted {
		if err := s.publisher.PublishLedgerEntry(ctx, t.ID); err != nil {
			// The entry is committed; the mirror catches up later.
			slog.WarnContext(ctx, "Failed to publish ledger entry event",
				"transaction_id", t.ID, "error", err)
		}
	}
}

func (s *Service) GetAccount(ctx context.Context, id int64) (*core.Account, error) {
	return s.repo.GetAccount(ctx, id)
}

func (s *Service) ListAccounts(ctx context.Context, typeFilter core.AccountType) ([]core.Account, error) {
	return s.repo.ListAccounts(ctx, typeFilter)
}

func (s *Service) CreateAccount(ctx context.Context, a core.Account) (*core.Account, error) {
	return s.repo.CreateAccount(ctx, a)
}

func (s *Service) UpdateAccount(ctx context.Context, a core.Account) (*core.Account, error) {
	return s.repo.UpdateAccount(ctx, a)
}

// DeleteAccount removes an account that no transaction references.
func (s *Service) DeleteAccount(ctx context.Context, id int64) error {
	return s.repo.DeleteAccount(ctx, id)
}

func (s *Service) GetTransaction(ctx context.Context, id int64) (*core.Transaction, error) {
	return s.repo.GetTransaction(ctx, id)
}

func (s *Service) ListTransactions(ctx context.Context, f storage.TransactionFilter) ([]core.Transaction, error) {
	return s.repo.ListTransactions(ctx, f)
}

// RunningBalanceAsOf reconstructs an account's balance just before the
// given instant from its opening balance and transaction history.
func (s *Service) RunningBalanceAsOf(ctx context.Context, accountID int64, asOf time.Time) (int64, error) {
	return s.repo.RunningBalanceAsOf(ctx, accountID, asOf)
}

func (s *Service) ListAuditLog(ctx context.Context, accountID int64) ([]core.AuditEntry, error) {
	return s.repo.ListAuditLog(ctx, accountID)
}
