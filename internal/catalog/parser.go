// Package catalog imports supplier price lists into the ingredient catalog.
package catalog

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"strings"
	"unicode"

	"github.com/xuri/excelize/v2"

	"procurement-backend/internal/resolver"
)

const DefaultUnit = "und"

// Row is one price list line. Price is 0 when the cell did not parse.
type Row struct {
	Line  int     `json:"line"`
	Name  string  `json:"name"`
	Price float64 `json:"price"`
	Unit  string  `json:"unit"`
}

// ParseCSV reads a delimited price list: name, price, unit. The first line is
// a header. The delimiter is chosen per line, ';' when the line has one and ','
// otherwise. Blank lines are ignored.
func ParseCSV(r io.Reader) ([]Row, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)

	var rows []Row
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(strings.TrimPrefix(sc.Text(), "\ufeff"))
		if line == 1 || text == "" {
			continue
		}
		fields, err := splitLine(text)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		rows = append(rows, rowFrom(line, fields))
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	return rows, nil
}

func splitLine(text string) ([]string, error) {
	delim := ','
	if strings.ContainsRune(text, ';') {
		delim = ';'
	}
	cr := csv.NewReader(strings.NewReader(text))
	cr.Comma = delim
	cr.LazyQuotes = true
	cr.FieldsPerRecord = -1
	fields, err := cr.Read()
	if err != nil {
		return nil, err
	}
	if delim == ',' {
		fields = joinSplitDecimal(fields)
	}
	return fields, nil
}

// joinSplitDecimal repairs `Vodka,25,50,ud`: an unquoted decimal comma in a
// comma separated line splits the price in two all-digit fields.
func joinSplitDecimal(fields []string) []string {
	if len(fields) < 4 || !allDigits(fields[1]) || !allDigits(fields[2]) {
		return fields
	}
	out := []string{fields[0], fields[1] + "," + fields[2]}
	return append(out, fields[3:]...)
}

func allDigits(s string) bool {
	s = strings.TrimSpace(s)
	if s == "" {
		return false
	}
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}

func rowFrom(line int, fields []string) Row {
	cell := func(i int) string {
		if i < len(fields) {
			return strings.TrimSpace(fields[i])
		}
		return ""
	}
	row := Row{Line: line, Name: cell(0), Unit: cell(2)}
	if p, ok := resolver.ParseLocaleNumber(cell(1)); ok && p > 0 {
		row.Price = p
	}
	if row.Unit == "" {
		row.Unit = DefaultUnit
	}
	return row
}

// ParseXLSX reads the first sheet of a workbook with the same columns as the
// CSV format, first row being the header.
func ParseXLSX(r io.Reader) ([]Row, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("workbook has no sheets")
	}
	cells, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", sheets[0], err)
	}

	var rows []Row
	for i, fields := range cells {
		if i == 0 || blank(fields) {
			continue
		}
		rows = append(rows, rowFrom(i+1, fields))
	}
	return rows, nil
}

func blank(fields []string) bool {
	for _, f := range fields {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}
