// Package expenses imports daily operating expenses per store from Excel
// workbooks kept by the finance team.
package expenses

import (
	"fmt"
	"io"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"github.com/hotdog2030/hotdog-etl/internal/warehouse"
)

// Header is the first row of an expense workbook. It is optional on
// import.
var Header = []string{"date", "store_code", "amount"}

// Record is one daily expense of one store.
type Record struct {
	DateKey   int
	StoreCode string
	Amount    decimal.Decimal
}

// RowError describes a workbook row that could not be imported.
type RowError struct {
	Row    int
	Reason string
}

func (e RowError) Error() string {
	return fmt.Sprintf("row %d: %s", e.Row, e.Reason)
}

var dateKeyPattern = regexp.MustCompile(`^\d{8}$`)

var dateLayouts = []string{"2006-01-02", "2006/01/02", "2006/1/2", "2006-1-2"}

// ParseDate accepts a YYYYMMDD key, an ISO-like date or an Excel serial
// day number and returns the date key.
func ParseDate(s string) (int, error) {
	s = strings.TrimSpace(s)
	if dateKeyPattern.MatchString(s) {
		t, err := warehouse.ParseDateKey(s)
		if err != nil {
			return 0, err
		}
		return warehouse.DateKey(t), nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return warehouse.DateKey(t), nil
		}
	}
	if serial, err := strconv.ParseFloat(s, 64); err == nil {
		t, err := excelize.ExcelDateToTime(serial, false)
		if err != nil {
			return 0, err
		}
		return warehouse.DateKey(t), nil
	}
	return 0, fmt.Errorf("unrecognized date %q", s)
}

// Parse reads (date, store_code, amount) rows from sheet, or from the
// first sheet when sheet is empty. Bad rows are returned as RowErrors and
// left out. Amounts for the same store and day are summed.
func Parse(r io.Reader, sheet string) ([]Record, []RowError, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	if sheet == "" {
		sheet = f.GetSheetName(0)
		if sheet == "" {
			return nil, nil, fmt.Errorf("workbook has no sheets")
		}
	}
	rows, err := f.GetRows(sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, nil, fmt.Errorf("read sheet %s: %w", sheet, err)
	}

	type key struct {
		date int
		code string
	}
	sums := make(map[key]decimal.Decimal)
	var bad []RowError

	for i, row := range rows {
		n := i + 1
		if blank(row) {
			continue
		}
		if i == 0 && isHeader(row) {
			continue
		}
		if len(row) < 3 {
			bad = append(bad, RowError{Row: n, Reason: "expected date, store_code and amount"})
			continue
		}
		dk, err := ParseDate(row[0])
		if err != nil {
			bad = append(bad, RowError{Row: n, Reason: err.Error()})
			continue
		}
		code := strings.TrimSpace(row[1])
		if code == "" {
			bad = append(bad, RowError{Row: n, Reason: "empty store_code"})
			continue
		}
		amount, err := decimal.NewFromString(strings.ReplaceAll(strings.TrimSpace(row[2]), ",", ""))
		if err != nil {
			bad = append(bad, RowError{Row: n, Reason: fmt.Sprintf("bad amount %q", row[2])})
			continue
		}
		if amount.IsNegative() {
			bad = append(bad, RowError{Row: n, Reason: "negative amount"})
			continue
		}
		k := key{dk, code}
		sums[k] = sums[k].Add(amount)
	}

	records := make([]Record, 0, len(sums))
	for k, amount := range sums {
		records = append(records, Record{DateKey: k.date, StoreCode: k.code, Amount: amount.Round(2)})
	}
	sort.Slice(records, func(i, j int) bool {
		if records[i].DateKey != records[j].DateKey {
			return records[i].DateKey < records[j].DateKey
		}
		return records[i].StoreCode < records[j].StoreCode
	})
	return records, bad, nil
}

func blank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

func isHeader(row []string) bool {
	_, err := ParseDate(row[0])
	return err != nil
}

// Template returns an empty workbook with the header row, for finance to
// fill in.
func Template() (*excelize.File, error) {
	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	for i, h := range Header {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			f.Close()
			return nil, err
		}
		if err := f.SetCellValue(sheet, cell, h); err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to set header cell %s: %w", cell, err)
		}
	}
	return f, nil
}
