package google

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"budgetbook/internal/config"
)

func TestNewFromConfig_MissingSpreadsheetID(t *testing.T) {
	_, err := NewFromConfig(context.Background(), &config.Config{})
	if err == nil {
		t.Fatal("expected error for missing GOOGLE_SPREADSHEET_ID")
	}
	if err.Error() != "missing GOOGLE_SPREADSHEET_ID" {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestNewFromConfig_MissingCredentials(t *testing.T) {
	t.Setenv("GOOGLE_APPLICATION_CREDENTIALS", "")

	_, err := NewFromConfig(context.Background(), &config.Config{GoogleSpreadsheetID: "sheet"})
	if err == nil {
		t.Fatal("expected error without credentials")
	}
	if !strings.Contains(err.Error(), "missing service account credentials") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestReadCredentials(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sa.json")
	if err := os.WriteFile(path, []byte(`{"type":"service_account"}`), 0o600); err != nil {
		t.Fatal(err)
	}

	b, err := readCredentials("", path)
	if err != nil {
		t.Fatalf("readCredentials(file) error = %v", err)
	}
	if string(b) != `{"type":"service_account"}` {
		t.Errorf("unexpected file contents %q", b)
	}

	b, err = readCredentials(` {"inline":true} `, path)
	if err != nil {
		t.Fatalf("readCredentials(inline) error = %v", err)
	}
	if string(b) != `{"inline":true}` {
		t.Errorf("inline credentials should win, got %q", b)
	}

	if _, err := readCredentials("", filepath.Join(dir, "missing.json")); err == nil {
		t.Error("expected error for a missing file")
	}
}

func TestClient_NotInitialized(t *testing.T) {
	c := &Client{spreadsheetID: "test"}

	if err := c.ReplaceRows(context.Background(), "tab", nil); err == nil {
		t.Error("ReplaceRows should fail without a service")
	}
	if _, err := c.ReadRows(context.Background(), "tab"); err == nil {
		t.Error("ReadRows should fail without a service")
	}
}

func TestColumnName(t *testing.T) {
	tests := map[int]string{0: "A", 1: "A", 7: "G", 26: "Z", 27: "AA", 52: "AZ", 53: "BA", 702: "ZZ", 703: "AAA"}
	for n, want := range tests {
		if got := columnName(n); got != want {
			t.Errorf("columnName(%d) = %q, want %q", n, got, want)
		}
	}
}

func TestQuoteTab(t *testing.T) {
	if got := quoteTab("Home budget"); got != "'Home budget'" {
		t.Errorf("quoteTab = %q", got)
	}
	if got := quoteTab("Bob's"); got != "'Bob''s'" {
		t.Errorf("quoteTab should double quotes, got %q", got)
	}
}

func TestWidth(t *testing.T) {
	rows := [][]any{{"a"}, {"a", "b", "c"}, {}}
	if got := width(rows); got != 3 {
		t.Errorf("width = %d, want 3", got)
	}
}

func TestTabCacheExpiration(t *testing.T) {
	c := &Client{cacheValidDuration: 100 * time.Millisecond}

	if c.hasCachedTab("Trip") {
		t.Error("cache should start empty")
	}

	c.storeTabs("Trip", "Home")
	if !c.hasCachedTab("Trip") || !c.hasCachedTab("Home") {
		t.Error("stored tabs should be cached")
	}
	if c.hasCachedTab("Other") {
		t.Error("unknown tab should not be cached")
	}

	time.Sleep(150 * time.Millisecond)

	if c.hasCachedTab("Trip") {
		t.Error("cache should be expired after TTL")
	}
}
