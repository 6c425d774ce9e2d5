// Package memory is an in-process EntryAppender used in tests and when
// no spreadsheet is configured.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/rroihans/dompetku-sub001/internal/sheets"
)

type Appender struct {
	mu   sync.Mutex
	rows []sheets.MirrorRow
}

var _ sheets.EntryAppender = (*Appender)(nil)

func New() *Appender {
	return &Appender{}
}

func (a *Appender) Append(_ context.Context, row sheets.MirrorRow) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.rows = append(a.rows, row)
	return fmt.Sprintf("memory:%d", len(a.rows)), nil
}

// Rows returns a copy of everything appended so far.
func (a *Appender) Rows() []sheets.MirrorRow {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]sheets.MirrorRow, len(a.rows))
	copy(out, a.rows)
	return out
}
