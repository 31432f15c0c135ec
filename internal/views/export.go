package views

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"budgetbook/internal/core"
)

// Missing fills export cells for absent custom values.
const Missing = "-"

const utf8BOM = "\ufeff"

// Table is a schema-driven export: fixed leading columns, one column per
// current custom field, then currency and amount.
type Table struct {
	Header []string
	Rows   []Row
}

type Row struct {
	Cells  []string
	Amount core.Money
}

// ExportHeader returns Date, Description, Category, the field names in
// schema order, Currency and Amount.
func ExportHeader(fields []core.Field) []string {
	h := make([]string, 0, len(fields)+5)
	h = append(h, "Date", "Description", "Category")
	for _, f := range fields {
		h = append(h, f.Name)
	}
	return append(h, "Currency", "Amount")
}

// BuildTable renders txs against the current fields. Values under keys that
// are no longer fields are not exported.
func BuildTable(txs []core.Transaction, cats Categories, fields []core.Field) Table {
	t := Table{Header: ExportHeader(fields), Rows: make([]Row, 0, len(txs))}
	for _, tx := range txs {
		cells := make([]string, 0, len(t.Header))
		cells = append(cells, tx.Date.String(), tx.Description, cats.Name(tx.CategoryID))
		for _, f := range fields {
			cells = append(cells, cellValue(tx.CustomData[f.Name]))
		}
		cells = append(cells, tx.Currency, tx.Amount.Fixed())
		t.Rows = append(t.Rows, Row{Cells: cells, Amount: tx.Amount})
	}
	return t
}

func cellValue(v any) string {
	if v == nil {
		return Missing
	}
	s := strings.TrimSpace(fmt.Sprint(v))
	if s == "" {
		return Missing
	}
	return s
}

// WriteCSV writes the table as BOM-prefixed UTF-8 CSV.
func WriteCSV(w io.Writer, t Table) error {
	if _, err := io.WriteString(w, utf8BOM); err != nil {
		return fmt.Errorf("write bom: %w", err)
	}
	cw := csv.NewWriter(w)
	if err := cw.Write(t.Header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for _, r := range t.Rows {
		if err := cw.Write(r.Cells); err != nil {
			return fmt.Errorf("write row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteXLSX writes the table as a single-sheet workbook with a numeric
// amount column.
func WriteXLSX(w io.Writer, t Table) (err error) {
	f := excelize.NewFile()
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close workbook: %w", cerr)
		}
	}()

	const sheet = "Transactions"
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return fmt.Errorf("name sheet: %w", err)
	}

	header := make([]any, len(t.Header))
	for i, h := range t.Header {
		header[i] = h
	}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	for i, r := range t.Rows {
		row := make([]any, len(r.Cells))
		for j, c := range r.Cells {
			row[j] = c
		}
		row[len(row)-1] = r.Amount.Float()
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("write row %d: %w", i+1, err)
		}
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

var filenameReplacer = strings.NewReplacer(
	"/", "_", "\\", "_", ":", "_", "*", "_", "?", "_", "\"", "_", "<", "_", ">", "_", "|", "_",
)

// ExportFilename returns {project-name}_transactions_{iso-date}.{ext}.
func ExportFilename(projectName string, now time.Time, ext string) string {
	return fmt.Sprintf("%s_transactions_%s.%s", filenameReplacer.Replace(projectName), core.DateOf(now).String(), ext)
}
