// Package worker mirrors posted ledger entries to a spreadsheet, fed by
// AMQP events with a storage scan as the catch-up path.
package worker

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/rroihans/dompetku-sub001/internal/amqp"
	"github.com/rroihans/dompetku-sub001/internal/core"
	"github.com/rroihans/dompetku-sub001/internal/sheets"
	"github.com/rroihans/dompetku-sub001/internal/storage"
)

// MirrorWorker consumes ledger entry events and appends each entry to
// the mirror sheet. Append failures propagate so the broker redelivers.
type MirrorWorker struct {
	storage  *storage.SQLiteRepository
	appender sheets.EntryAppender

	accountNames map[int64]string
}

func NewMirrorWorker(storage *storage.SQLiteRepository, appender sheets.EntryAppender) *MirrorWorker {
	return &MirrorWorker{
		storage:      storage,
		appender:     appender,
		accountNames: make(map[int64]string),
	}
}

// HandleLedgerEntry processes one entry event: load the transaction,
// resolve its account names and append a mirror row.
func (w *MirrorWorker) HandleLedgerEntry(ctx context.Context, msg *amqp.LedgerEntryMessage) error {
	slog.InfoContext(ctx, "Processing ledger entry event",
		"transaction_id", msg.TransactionID)

	entry, err := w.storage.GetTransaction(ctx, msg.TransactionID)
	if err != nil {
		if core.IsNotFound(err) {
			// Entry deleted between publish and delivery; nothing to mirror.
			slog.WarnContext(ctx, "Ledger entry no longer exists, dropping event",
				"transaction_id", msg.TransactionID)
			return nil
		}
		return fmt.Errorf("load transaction %d: %w", msg.TransactionID, err)
	}

	row, err := w.buildRow(ctx, entry)
	if err != nil {
		return err
	}

	ref, err := w.appender.Append(ctx, row)
	if err != nil {
		return fmt.Errorf("append transaction %d: %w", entry.ID, err)
	}

	slog.InfoContext(ctx, "Ledger entry mirrored",
		"transaction_id", entry.ID,
		"amount", entry.Amount,
		"sheets_ref", ref)
	return nil
}

// MirrorBacklog appends every entry posted after sinceID, oldest first.
// Recovery path for events lost while the worker was down.
func (w *MirrorWorker) MirrorBacklog(ctx context.Context, sinceID int64, limit int) (int, error) {
	entries, err := w.storage.ListTransactions(ctx, storage.TransactionFilter{
		Limit:         limit,
		SortAscending: true,
	})
	if err != nil {
		return 0, fmt.Errorf("list backlog: %w", err)
	}

	mirrored := 0
	for i := range entries {
		if entries[i].ID <= sinceID {
			continue
		}
		row, err := w.buildRow(ctx, &entries[i])
		if err != nil {
			return mirrored, err
		}
		if _, err := w.appender.Append(ctx, row); err != nil {
			return mirrored, fmt.Errorf("append transaction %d: %w", entries[i].ID, err)
		}
		mirrored++
	}

	if mirrored > 0 {
		slog.InfoContext(ctx, "Backlog mirrored", "count", mirrored)
	}
	return mirrored, nil
}

func (w *MirrorWorker) buildRow(ctx context.Context, entry *core.Transaction) (sheets.MirrorRow, error) {
	debitName, err := w.accountName(ctx, entry.DebitAccountID)
	if err != nil {
		return sheets.MirrorRow{}, err
	}
	creditName, err := w.accountName(ctx, entry.CreditAccountID)
	if err != nil {
		return sheets.MirrorRow{}, err
	}

	return sheets.MirrorRow{
		TransactionID: entry.ID,
		PostedAt:      entry.PostedAt,
		Description:   entry.Description,
		Category:      entry.Category,
		Kind:          string(entry.Kind),
		Amount:        entry.Amount,
		DebitAccount:  debitName,
		CreditAccount: creditName,
	}, nil
}

// accountName resolves and memoizes an account's display name. Names
// can change, but a stale name in the mirror is acceptable; the id
// column stays authoritative.
func (w *MirrorWorker) accountName(ctx context.Context, accountID int64) (string, error) {
	if name, ok := w.accountNames[accountID]; ok {
		return name, nil
	}
	account, err := w.storage.GetAccount(ctx, accountID)
	if err != nil {
		return "", fmt.Errorf("resolve account %d: %w", accountID, err)
	}
	w.accountNames[accountID] = account.Name
	return account.Name, nil
}
