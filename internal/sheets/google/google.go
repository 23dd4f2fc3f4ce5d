package google

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"matador/internal/core"
	"matador/internal/log"
	ports "matador/internal/sheets"
)

// DefaultSheetName is used when Config.SheetName is empty.
const DefaultSheetName = "Transacciones"

var _ ports.TransactionExporter = (*Client)(nil)

// Config selects the spreadsheet and the service account credentials.
// CredentialsJSON wins over CredentialsFile.
type Config struct {
	SpreadsheetID   string
	SheetName       string
	CredentialsJSON string
	CredentialsFile string
}

// Client exports transactions to one sheet, one row per transaction with
// the ID in column A.
type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	sheet         string
	logger        *log.Logger

	// mu serialises find-then-write sequences.
	mu      sync.Mutex
	sheetID *int64
}

// New creates a Sheets client authenticated with a service account.
func New(ctx context.Context, cfg Config) (*Client, error) {
	creds, err := credentials(cfg)
	if err != nil {
		return nil, err
	}
	return NewWithOptions(ctx, cfg.SpreadsheetID, cfg.SheetName,
		goption.WithCredentialsJSON(creds),
		goption.WithScopes(gsheet.SpreadsheetsScope),
		goption.WithHTTPClient(newHTTPClientWithPooling()),
	)
}

// NewWithOptions creates a client with explicit API options, e.g. a custom
// endpoint in tests.
func NewWithOptions(ctx context.Context, spreadsheetID, sheet string, opts ...goption.ClientOption) (*Client, error) {
	spreadsheetID = strings.TrimSpace(spreadsheetID)
	if spreadsheetID == "" {
		return nil, errors.New("missing GOOGLE_SPREADSHEET_ID")
	}
	if strings.TrimSpace(sheet) == "" {
		sheet = DefaultSheetName
	}
	svc, err := gsheet.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return &Client{
		svc:           svc,
		spreadsheetID: spreadsheetID,
		sheet:         sheet,
		logger:        log.FromContext(ctx).WithComponent(log.ComponentSheets),
	}, nil
}

func credentials(cfg Config) ([]byte, error) {
	switch {
	case strings.TrimSpace(cfg.CredentialsJSON) != "":
		return []byte(cfg.CredentialsJSON), nil
	case strings.TrimSpace(cfg.CredentialsFile) != "":
		b, err := os.ReadFile(cfg.CredentialsFile)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		return b, nil
	}
	return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS)")
}

// newHTTPClientWithPooling creates an HTTP client for the Sheets API with
// connection pooling and bounded timeouts.
func newHTTPClientWithPooling() *http.Client {
	dialer := &net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}
	transport := &http.Transport{
		DialContext:           dialer.DialContext,
		MaxIdleConns:          20,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 30 * time.Second,
		ForceAttemptHTTP2:     true,
	}
	return &http.Client{Transport: transport, Timeout: 60 * time.Second}
}

// Upsert implements ports.TransactionExporter.
func (c *Client) Upsert(ctx context.Context, t core.Transaction) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	ids, err := c.readIDs(ctx)
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		if err := c.writeRow(ctx, 1, headerRow()); err != nil {
			return fmt.Errorf("write header: %w", err)
		}
		ids = []string{ports.Header[0]}
	}

	row := toRow(t)
	if n := rowOf(ids, t.ID); n > 0 {
		if err := c.writeRow(ctx, n, row); err != nil {
			return fmt.Errorf("update transaction %d: %w", t.ID, err)
		}
		c.logger.DebugContext(ctx, "Transaction row updated", log.FieldTransactionID, t.ID, log.FieldSheetsRef, n)
		return nil
	}

	vr := &gsheet.ValueRange{Values: [][]interface{}{row}}
	_, err = c.svc.Spreadsheets.Values.Append(c.spreadsheetID, c.sheet+"!A:I", vr).
		ValueInputOption("RAW").InsertDataOption("INSERT_ROWS").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("append transaction %d: %w", t.ID, err)
	}
	c.logger.DebugContext(ctx, "Transaction row appended", log.FieldTransactionID, t.ID)
	return nil
}

// Delete implements ports.TransactionExporter.
func (c *Client) Delete(ctx context.Context, id int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	ids, err := c.readIDs(ctx)
	if err != nil {
		return err
	}
	n := rowOf(ids, id)
	if n == 0 {
		c.logger.DebugContext(ctx, "Transaction row already absent", log.FieldTransactionID, id)
		return nil
	}
	sheetID, err := c.lookupSheetID(ctx)
	if err != nil {
		return err
	}

	req := &gsheet.BatchUpdateSpreadsheetRequest{Requests: []*gsheet.Request{{
		DeleteDimension: &gsheet.DeleteDimensionRequest{Range: &gsheet.DimensionRange{
			SheetId:         sheetID,
			Dimension:       "ROWS",
			StartIndex:      int64(n - 1),
			EndIndex:        int64(n),
			ForceSendFields: []string{"SheetId", "StartIndex"},
		}},
	}}}
	if _, err := c.svc.Spreadsheets.BatchUpdate(c.spreadsheetID, req).Context(ctx).Do(); err != nil {
		return fmt.Errorf("delete transaction %d: %w", id, err)
	}
	c.logger.DebugContext(ctx, "Transaction row deleted", log.FieldTransactionID, id, log.FieldSheetsRef, n)
	return nil
}

// readIDs returns column A, header included. Index i is row i+1.
func (c *Client) readIDs(ctx context.Context) ([]string, error) {
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, c.sheet+"!A:A").Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("read id column: %w", err)
	}
	ids := make([]string, len(resp.Values))
	for i, r := range resp.Values {
		if len(r) > 0 {
			ids[i] = strings.TrimSpace(fmt.Sprint(r[0]))
		}
	}
	return ids, nil
}

func (c *Client) writeRow(ctx context.Context, n int, row []interface{}) error {
	rng := fmt.Sprintf("%s!A%d:I%d", c.sheet, n, n)
	vr := &gsheet.ValueRange{Values: [][]interface{}{row}}
	_, err := c.svc.Spreadsheets.Values.Update(c.spreadsheetID, rng, vr).
		ValueInputOption("RAW").Context(ctx).Do()
	return err
}

func (c *Client) lookupSheetID(ctx context.Context) (int64, error) {
	if c.sheetID != nil {
		return *c.sheetID, nil
	}
	ss, err := c.svc.Spreadsheets.Get(c.spreadsheetID).Fields("sheets.properties").Context(ctx).Do()
	if err != nil {
		return 0, fmt.Errorf("read spreadsheet: %w", err)
	}
	for _, s := range ss.Sheets {
		if s.Properties != nil && s.Properties.Title == c.sheet {
			id := s.Properties.SheetId
			c.sheetID = &id
			return id, nil
		}
	}
	return 0, fmt.Errorf("sheet %q not found in spreadsheet", c.sheet)
}

// rowOf returns the 1-based row holding id, skipping the header, or 0.
func rowOf(ids []string, id int64) int {
	want := strconv.FormatInt(id, 10)
	for i := 1; i < len(ids); i++ {
		if ids[i] == want {
			return i + 1
		}
	}
	return 0
}

func headerRow() []interface{} {
	row := make([]interface{}, len(ports.Header))
	for i, h := range ports.Header {
		row[i] = h
	}
	return row
}

// toRow renders t in Header order. RAW input keeps user text from being
// parsed as formulas; the amount is sent as an exact JSON number.
func toRow(t core.Transaction) []interface{} {
	return []interface{}{
		t.ID,
		t.Date.UTC().Format("2006-01-02"),
		t.Phone,
		string(t.Type),
		t.Category,
		json.Number(t.Amount.String()),
		t.Description,
		t.Recurring,
		t.UpdatedAt.UTC().Format(time.RFC3339),
	}
}
