package importer

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
)

var (
	ErrUnsupportedFormat = errors.New("unsupported_import_format")
	ErrMissingColumn     = errors.New("missing_import_column")
	ErrEmptySheet        = errors.New("empty_import_sheet")
)

// Row is one data line of an import file keyed by lower-cased header name.
type Row struct {
	Line   int
	Fields map[string]string
}

func (r Row) Get(column string) string {
	return strings.TrimSpace(r.Fields[column])
}

// ReadRows parses a .csv or .xlsx file. Only the first sheet of a workbook
// is read. Blank lines are dropped.
func ReadRows(name string, r io.Reader) ([]Row, error) {
	var (
		records [][]string
		lines   []int
		err     error
	)
	switch strings.ToLower(filepath.Ext(name)) {
	case ".csv":
		records, lines, err = readCSV(r)
	case ".xlsx":
		records, lines, err = readXLSX(r)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, filepath.Ext(name))
	}
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, ErrEmptySheet
	}

	header := make([]string, len(records[0]))
	for i, col := range records[0] {
		header[i] = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(col, "\ufeff")))
	}

	rows := make([]Row, 0, len(records)-1)
	for i, record := range records[1:] {
		if isBlank(record) {
			continue
		}
		fields := make(map[string]string, len(header))
		for j, col := range header {
			if col == "" || j >= len(record) {
				continue
			}
			fields[col] = record[j]
		}
		rows = append(rows, Row{Line: lines[i+1], Fields: fields})
	}
	return rows, nil
}

// RequireColumns fails when the header lacks any of columns.
func RequireColumns(rows []Row, columns ...string) error {
	if len(rows) == 0 {
		return nil
	}
	for _, col := range columns {
		if _, ok := rows[0].Fields[col]; !ok {
			return fmt.Errorf("%w: %s", ErrMissingColumn, col)
		}
	}
	return nil
}

// readCSV returns the records with the file line each one starts on.
func readCSV(r io.Reader) ([][]string, []int, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	var (
		records [][]string
		lines   []int
	)
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			return records, lines, nil
		}
		if err != nil {
			return nil, nil, err
		}
		line, _ := reader.FieldPos(0)
		records = append(records, record)
		lines = append(lines, line)
	}
}

func readXLSX(r io.Reader) ([][]string, []int, error) {
	book, err := excelize.OpenReader(r)
	if err != nil {
		return nil, nil, err
	}
	defer func() { _ = book.Close() }()

	sheets := book.GetSheetList()
	if len(sheets) == 0 {
		return nil, nil, ErrEmptySheet
	}
	records, err := book.GetRows(sheets[0])
	if err != nil {
		return nil, nil, err
	}
	lines := make([]int, len(records))
	for i := range records {
		lines[i] = i + 1
	}
	return records, lines, nil
}

func isBlank(record []string) bool {
	for _, v := range record {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
