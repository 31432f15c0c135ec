package google

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"budgetbook/internal/config"
	applog "budgetbook/internal/log"
	ports "budgetbook/internal/sheets"
)

// Ensure interface conformance
var (
	_ ports.Mirror = (*Client)(nil)
	_ ports.Reader = (*Client)(nil)
)

const defaultTabCacheDuration = 10 * time.Minute

type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	logger        *applog.Logger

	// Known tab titles, refreshed from the spreadsheet metadata when stale.
	mu                 sync.Mutex
	tabs               map[string]struct{}
	tabsExpiresAt      time.Time
	cacheValidDuration time.Duration
}

// NewFromConfig creates a Sheets client authenticated with the configured
// service account.
func NewFromConfig(ctx context.Context, cfg *config.Config) (*Client, error) {
	if strings.TrimSpace(cfg.GoogleSpreadsheetID) == "" {
		return nil, errors.New("missing GOOGLE_SPREADSHEET_ID")
	}

	credentialsJSON, err := readCredentials(cfg.GoogleServiceAccountJSON, cfg.GoogleServiceAccountFile)
	if err != nil {
		return nil, err
	}

	svc, err := newSheetsService(ctx, credentialsJSON)
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}
	return New(svc, cfg.GoogleSpreadsheetID), nil
}

// New wraps an existing service.
func New(svc *gsheet.Service, spreadsheetID string) *Client {
	return &Client{
		svc:                svc,
		spreadsheetID:      spreadsheetID,
		logger:             applog.ForComponent(applog.ComponentSheets),
		cacheValidDuration: defaultTabCacheDuration,
	}
}

func readCredentials(inline, file string) ([]byte, error) {
	inline = strings.TrimSpace(inline)
	file = strings.TrimSpace(file)
	if inline == "" && file == "" {
		file = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}

	switch {
	case inline != "":
		return []byte(inline), nil
	case file != "":
		b, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		return b, nil
	default:
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS)")
	}
}

func newSheetsService(ctx context.Context, credentialsJSON []byte) (*gsheet.Service, error) {
	service, err := gsheet.NewService(ctx,
		goption.WithCredentialsJSON(credentialsJSON),
		goption.WithScopes(gsheet.SpreadsheetsScope))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return service, nil
}

// ReplaceRows makes sure the tab exists, clears it and writes rows from A1.
func (c *Client) ReplaceRows(ctx context.Context, tab string, rows [][]any) error {
	if c.svc == nil {
		return errors.New("sheets service not initialized")
	}
	if err := c.ensureTab(ctx, tab); err != nil {
		return err
	}

	if _, err := c.svc.Spreadsheets.Values.Clear(c.spreadsheetID, quoteTab(tab), &gsheet.ClearValuesRequest{}).
		Context(ctx).Do(); err != nil {
		return fmt.Errorf("clear %s: %w", tab, err)
	}
	if len(rows) == 0 {
		return nil
	}

	rng := fmt.Sprintf("%s!A1:%s%d", quoteTab(tab), columnName(width(rows)), len(rows))
	_, err := c.svc.Spreadsheets.Values.Update(c.spreadsheetID, rng, &gsheet.ValueRange{Values: rows}).
		ValueInputOption("RAW").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("update %s: %w", rng, err)
	}

	c.logger.InfoContext(ctx, "Mirrored rows to sheet",
		"tab", tab,
		applog.FieldCount, len(rows)-1)
	return nil
}

// ReadRows returns the tab's values as trimmed strings.
func (c *Client) ReadRows(ctx context.Context, tab string) ([][]string, error) {
	if c.svc == nil {
		return nil, errors.New("sheets service not initialized")
	}
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, quoteTab(tab)).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", tab, err)
	}
	out := make([][]string, 0, len(resp.Values))
	for _, row := range resp.Values {
		out = append(out, toStrings(row))
	}
	return out, nil
}

func (c *Client) ensureTab(ctx context.Context, tab string) error {
	if c.hasCachedTab(tab) {
		return nil
	}

	ss, err := c.svc.Spreadsheets.Get(c.spreadsheetID).Fields("sheets.properties.title").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("read spreadsheet metadata: %w", err)
	}
	titles := make([]string, 0, len(ss.Sheets))
	for _, s := range ss.Sheets {
		if s.Properties != nil {
			titles = append(titles, s.Properties.Title)
		}
	}
	c.storeTabs(titles...)
	if c.hasCachedTab(tab) {
		return nil
	}

	_, err = c.svc.Spreadsheets.BatchUpdate(c.spreadsheetID, &gsheet.BatchUpdateSpreadsheetRequest{
		Requests: []*gsheet.Request{{
			AddSheet: &gsheet.AddSheetRequest{Properties: &gsheet.SheetProperties{Title: tab}},
		}},
	}).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("add sheet %s: %w", tab, err)
	}
	c.logger.InfoContext(ctx, "Created sheet tab", "tab", tab)
	c.storeTabs(tab)
	return nil
}

func (c *Client) hasCachedTab(tab string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if time.Now().After(c.tabsExpiresAt) {
		c.tabs = nil
		return false
	}
	_, ok := c.tabs[tab]
	return ok
}

// storeTabs records titles as existing. The first store after expiry starts
// a fresh cache window.
func (c *Client) storeTabs(titles ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.tabs == nil || time.Now().After(c.tabsExpiresAt) {
		c.tabs = make(map[string]struct{}, len(titles))
		c.tabsExpiresAt = time.Now().Add(c.cacheValidDuration)
	}
	for _, t := range titles {
		c.tabs[t] = struct{}{}
	}
}

// quoteTab returns the A1 notation prefix for a tab title.
func quoteTab(tab string) string {
	return "'" + strings.ReplaceAll(tab, "'", "''") + "'"
}

// columnName converts a 1-based column index to its letter form (1 → A,
// 27 → AA).
func columnName(n int) string {
	if n < 1 {
		n = 1
	}
	var b []byte
	for n > 0 {
		n--
		b = append([]byte{byte('A' + n%26)}, b...)
		n /= 26
	}
	return string(b)
}

func width(rows [][]any) int {
	w := 0
	for _, r := range rows {
		if len(r) > w {
			w = len(r)
		}
	}
	return w
}

func toStrings(in []interface{}) []string {
	out := make([]string, len(in))
	for i, v := range in {
		out[i] = strings.TrimSpace(fmt.Sprint(v))
	}
	return out
}
