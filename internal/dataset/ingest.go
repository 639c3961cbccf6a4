package dataset

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
)

// LoadFile reads a dataset from disk. Excel files (.xlsx) load the given
// sheet, or the first sheet when sheet is empty; anything else is parsed as
// CSV. The returned table carries the version hash of the file bytes.
func LoadFile(path, sheet string) (*Table, error) {
	fileBytes, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read dataset: %w", err)
	}
	return Load(fileBytes, filepath.Ext(path), sheet)
}

// Load parses dataset bytes. ext selects the parser (".xlsx" for Excel,
// CSV otherwise).
func Load(fileBytes []byte, ext, sheet string) (*Table, error) {
	var (
		headers []string
		records [][]string
		err     error
	)

	switch strings.ToLower(ext) {
	case ".xlsx", ".xlsm":
		headers, records, err = parseExcel(fileBytes, sheet)
	default:
		headers, records, err = parseCSV(fileBytes)
	}
	if err != nil {
		return nil, err
	}
	if len(headers) == 0 {
		return nil, fmt.Errorf("dataset has no header row")
	}

	table, err := Normalize(headers, records)
	if err != nil {
		return nil, err
	}

	table.Version = ComputeVersion(fileBytes)
	return table, nil
}

// SheetNames lists the sheets of an Excel file so callers can offer a
// selection when there is more than one.
func SheetNames(fileBytes []byte) ([]string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(fileBytes))
	if err != nil {
		return nil, fmt.Errorf("open excel file: %w", err)
	}
	defer func() { _ = f.Close() }()
	return f.GetSheetList(), nil
}

func parseExcel(fileBytes []byte, sheet string) ([]string, [][]string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(fileBytes))
	if err != nil {
		return nil, nil, fmt.Errorf("open excel file: %w", err)
	}
	defer func() { _ = f.Close() }()

	if sheet == "" {
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			return nil, nil, fmt.Errorf("excel file has no sheets")
		}
		sheet = sheets[0]
	}

	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, nil, fmt.Errorf("read sheet %q: %w", sheet, err)
	}
	if len(rows) == 0 {
		return nil, nil, fmt.Errorf("sheet %q is empty", sheet)
	}

	return rows[0], rows[1:], nil
}

func parseCSV(fileBytes []byte) ([]string, [][]string, error) {
	r := csv.NewReader(bytes.NewReader(fileBytes))
	r.FieldsPerRecord = -1

	headers, err := r.Read()
	if err != nil {
		return nil, nil, fmt.Errorf("read csv header: %w", err)
	}

	var records [][]string
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, nil, fmt.Errorf("read csv row: %w", err)
		}
		records = append(records, rec)
	}
	return headers, records, nil
}

// MarshalCSV renders the table back to CSV for persistence.
func (t *Table) MarshalCSV() ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	if err := w.Write(t.Columns); err != nil {
		return nil, fmt.Errorf("write csv header: %w", err)
	}
	for _, row := range t.Rows {
		rec := make([]string, len(t.Columns))
		for i, col := range t.Columns {
			rec[i] = row.String(col)
		}
		if err := w.Write(rec); err != nil {
			return nil, fmt.Errorf("write csv row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
