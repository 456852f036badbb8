package extract

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/finaudit/audit-engine/internal/models"
)

// CellKind discriminates the value held by a Cell
type CellKind int

const (
	CellMissing CellKind = iota
	CellNumber
	CellText
	CellDate
)

// Cell is a single tagged value extracted from a spreadsheet cell. Exactly
// one of Number, Text or Date is meaningful, selected by Kind.
type Cell struct {
	Kind   CellKind
	Number float64
	Text   string
	Date   time.Time
}

// String renders the cell the way it would appear in the source file.
// Numbers use the shortest decimal representation, so an ID stored as
// 1001 renders as "1001", not "1001.000000".
func (c Cell) String() string {
	switch c.Kind {
	case CellNumber:
		return strconv.FormatFloat(c.Number, 'f', -1, 64)
	case CellText:
		return c.Text
	case CellDate:
		return formatDate(c.Date)
	default:
		return ""
	}
}

// IsMissing reports whether the cell held no value
func (c Cell) IsMissing() bool {
	return c.Kind == CellMissing
}

// Transaction is one data row reduced to the three audited columns
type Transaction struct {
	Amount Cell
	ID     Cell
	Date   Cell
	// Ref identifies the row in the source file, counting the header as
	// row 1, so the first data row is "Row 2".
	Ref string
}

// ColumnMap holds the resolved index of each audited column, -1 when the
// file has no matching header.
type ColumnMap struct {
	Amount int
	ID     int
	Date   int
}

// Table is the extracted content of one uploaded file
type Table struct {
	Columns      ColumnMap
	Transactions []Transaction
}

// ExtractionError wraps a parse failure with the file type that caused it
type ExtractionError struct {
	FileType string
	Err      error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("failed to extract %s file: %v", e.FileType, e.Err)
}

func (e *ExtractionError) Unwrap() error {
	return e.Err
}

// Header aliases accepted for each audited column, in priority order.
var (
	amountAliases = []string{"Amount", "amount"}
	idAliases     = []string{"Transaction ID", "transaction_id", "id"}
	dateAliases   = []string{"Date", "date"}
)

// ResolveColumns maps the header row to column indexes. Aliases are matched
// case-sensitively in priority order; the first alias with a matching
// header wins.
func ResolveColumns(headers []string) ColumnMap {
	return ColumnMap{
		Amount: findColumn(headers, amountAliases),
		ID:     findColumn(headers, idAliases),
		Date:   findColumn(headers, dateAliases),
	}
}

func findColumn(headers []string, aliases []string) int {
	for _, alias := range aliases {
		for i, h := range headers {
			if strings.TrimSpace(h) == alias {
				return i
			}
		}
	}
	return -1
}

// Extract parses file contents according to the declared file type
func Extract(fileType string, data []byte) (*Table, error) {
	switch fileType {
	case models.FileTypeCSV:
		return ExtractCSV(data)
	case models.FileTypeExcel:
		return ExtractExcel(data)
	default:
		return nil, &ExtractionError{FileType: fileType, Err: fmt.Errorf("unsupported file type")}
	}
}

// ExtractCSV parses CSV contents into a Table. Numeric cells in the date
// column stay numbers: CSV carries no spreadsheet serial dates, only
// textual ones.
func ExtractCSV(data []byte) (*Table, error) {
	reader := csv.NewReader(bytes.NewReader(data))
	reader.FieldsPerRecord = -1

	rows, err := reader.ReadAll()
	if err != nil {
		return nil, &ExtractionError{FileType: models.FileTypeCSV, Err: err}
	}

	if len(rows) == 0 {
		return &Table{Columns: ColumnMap{Amount: -1, ID: -1, Date: -1}}, nil
	}

	columns := ResolveColumns(rows[0])
	table := &Table{Columns: columns}

	for i, row := range rows[1:] {
		table.Transactions = append(table.Transactions, Transaction{
			Amount: classifyCell(cellAt(row, columns.Amount)),
			ID:     classifyCell(cellAt(row, columns.ID)),
			Date:   classifyDateCell(cellAt(row, columns.Date), false),
			Ref:    fmt.Sprintf("Row %d", i+2),
		})
	}

	return table, nil
}

// ExtractExcel parses the first sheet of an Excel workbook. Numeric cells
// in the date column are treated as spreadsheet serial dates.
func ExtractExcel(data []byte) (*Table, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data), excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, &ExtractionError{FileType: models.FileTypeExcel, Err: err}
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return &Table{Columns: ColumnMap{Amount: -1, ID: -1, Date: -1}}, nil
	}

	rows, err := f.GetRows(sheets[0], excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, &ExtractionError{FileType: models.FileTypeExcel, Err: err}
	}

	if len(rows) == 0 {
		return &Table{Columns: ColumnMap{Amount: -1, ID: -1, Date: -1}}, nil
	}

	columns := ResolveColumns(rows[0])
	table := &Table{Columns: columns}

	for i, row := range rows[1:] {
		table.Transactions = append(table.Transactions, Transaction{
			Amount: classifyCell(cellAt(row, columns.Amount)),
			ID:     classifyCell(cellAt(row, columns.ID)),
			Date:   classifyDateCell(cellAt(row, columns.Date), true),
			Ref:    fmt.Sprintf("Row %d", i+2),
		})
	}

	return table, nil
}

func cellAt(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}

// classifyCell tags a raw cell as Missing, Number or Text
func classifyCell(raw string) Cell {
	if raw == "" {
		return Cell{Kind: CellMissing}
	}
	if n, err := strconv.ParseFloat(raw, 64); err == nil {
		return Cell{Kind: CellNumber, Number: n}
	}
	return Cell{Kind: CellText, Text: raw}
}

// classifyDateCell tags a raw date-column cell. Numeric values become
// dates only when serialDates is set; textual values are parsed against
// the accepted layouts and kept as Text when none match.
func classifyDateCell(raw string, serialDates bool) Cell {
	if raw == "" {
		return Cell{Kind: CellMissing}
	}

	if n, err := strconv.ParseFloat(raw, 64); err == nil {
		if serialDates {
			return Cell{Kind: CellDate, Date: serialToTime(n)}
		}
		return Cell{Kind: CellNumber, Number: n}
	}

	if t, ok := parseDate(raw); ok {
		return Cell{Kind: CellDate, Date: t}
	}

	return Cell{Kind: CellText, Text: raw}
}

// serialToTime converts a spreadsheet serial date (days since 1899-12-30)
// to a UTC time. 25569 is the serial value of the Unix epoch; rounding to
// whole milliseconds absorbs the floating point error in fractional days.
func serialToTime(serial float64) time.Time {
	ms := math.Round((serial - 25569) * 86400 * 1000)
	return time.UnixMilli(int64(ms)).UTC()
}

// Accepted textual date layouts, tried in order.
var dateLayouts = []string{
	"2006-01-02",
	"1/2/2006",
	"01/02/2006",
	"2006-01-02T15:04:05Z07:00",
	"2006/01/02",
	"02-Jan-2006",
}

func parseDate(raw string) (time.Time, bool) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

// formatDate renders a date the way it appears in anomaly descriptions,
// e.g. "6/8/2024".
func formatDate(t time.Time) string {
	return fmt.Sprintf("%d/%d/%d", int(t.Month()), t.Day(), t.Year())
}
