// Package sheets defines the outbound port for mirroring posted ledger
// entries to a spreadsheet.
package sheets

import (
	"context"
	"time"
)

// MirrorRow is one posted entry flattened for a spreadsheet, with
// account ids resolved to names.
type MirrorRow struct {
	TransactionID int64
	PostedAt      time.Time
	Description   string
	Category      string
	Kind          string
	Amount        int64
	DebitAccount  string
	CreditAccount string
}

// EntryAppender appends one row to the mirror. The returned reference
// identifies where the row landed, for logging.
type EntryAppender interface {
	Append(ctx context.Context, row MirrorRow) (rowRef string, err error)
}
