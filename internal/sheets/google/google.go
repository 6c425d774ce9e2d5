// Package google mirrors ledger entries to a Google Sheets worksheet.
package google

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"google.golang.org/api/googleapi"
	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"github.com/rroihans/dompetku-sub001/internal/core"
	"github.com/rroihans/dompetku-sub001/internal/sheets"
)

const (
	appendTimeout = 10 * time.Second
	maxRetries    = 3
)

type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	sheetName     string
}

var _ sheets.EntryAppender = (*Client)(nil)

// Options carries the spreadsheet target and credentials. Exactly one
// of CredentialsJSON or CredentialsFile must be set.
type Options struct {
	SpreadsheetID   string
	SheetName       string
	CredentialsJSON string
	CredentialsFile string
}

func NewClient(ctx context.Context, opts Options) (*Client, error) {
	if strings.TrimSpace(opts.SpreadsheetID) == "" {
		return nil, errors.New("missing spreadsheet ID")
	}
	sheetName := strings.TrimSpace(opts.SheetName)
	if sheetName == "" {
		sheetName = "Ledger"
	}

	var credentials []byte
	switch {
	case opts.CredentialsJSON != "":
		credentials = []byte(opts.CredentialsJSON)
	case opts.CredentialsFile != "":
		data, err := os.ReadFile(opts.CredentialsFile)
		if err != nil {
			return nil, fmt.Errorf("read credentials file: %w", err)
		}
		credentials = data
	default:
		return nil, errors.New("no Google credentials configured")
	}

	svc, err := gsheet.NewService(ctx,
		goption.WithCredentialsJSON(credentials),
		goption.WithScopes(gsheet.SpreadsheetsScope))
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}

	return &Client{
		svc:           svc,
		spreadsheetID: opts.SpreadsheetID,
		sheetName:     sheetName,
	}, nil
}

// Append writes one ledger row to the worksheet, retrying transient
// network failures.
func (c *Client) Append(ctx context.Context, row sheets.MirrorRow) (string, error) {
	values := &gsheet.ValueRange{Values: [][]any{rowValues(row)}}

	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(time.Duration(attempt) * time.Second):
			}
		}

		callCtx, cancel := context.WithTimeout(ctx, appendTimeout)
		resp, err := c.svc.Spreadsheets.Values.
			Append(c.spreadsheetID, c.sheetName+"!A:H", values).
			ValueInputOption("USER_ENTERED").
			InsertDataOption("INSERT_ROWS").
			Context(callCtx).
			Do()
		cancel()

		if err == nil {
			if resp.Updates != nil {
				return resp.Updates.UpdatedRange, nil
			}
			return c.sheetName, nil
		}
		if !isTransient(err) {
			return "", fmt.Errorf("append to sheet %s: %w", c.sheetName, err)
		}
		lastErr = err
	}
	return "", fmt.Errorf("append to sheet %s after %d attempts: %w", c.sheetName, maxRetries, lastErr)
}

// rowValues flattens a mirror row into one spreadsheet line. The amount
// is rendered in decimal units so the sheet stays human-readable.
func rowValues(row sheets.MirrorRow) []any {
	return []any{
		row.TransactionID,
		row.PostedAt.Format("2006-01-02"),
		row.Description,
		row.Category,
		row.Kind,
		core.ToDecimal(row.Amount),
		row.DebitAccount,
		row.CreditAccount,
	}
}

func isTransient(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return apiErr.Code == http.StatusTooManyRequests || apiErr.Code >= 500
	}
	msg := err.Error()
	return strings.Contains(msg, "connection reset") ||
		strings.Contains(msg, "rateLimitExceeded") ||
		strings.Contains(msg, "backendError")
}
