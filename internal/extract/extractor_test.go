package extract

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func TestResolveColumns(t *testing.T) {
	tests := []struct {
		name    string
		headers []string
		want    ColumnMap
	}{
		{
			name:    "canonical headers",
			headers: []string{"Transaction ID", "Date", "Amount"},
			want:    ColumnMap{Amount: 2, ID: 0, Date: 1},
		},
		{
			name:    "lowercase aliases",
			headers: []string{"id", "date", "amount"},
			want:    ColumnMap{Amount: 2, ID: 0, Date: 1},
		},
		{
			name:    "snake case id",
			headers: []string{"transaction_id", "Date", "Amount"},
			want:    ColumnMap{Amount: 2, ID: 0, Date: 1},
		},
		{
			name:    "canonical wins over fallback alias",
			headers: []string{"id", "Transaction ID", "Amount"},
			want:    ColumnMap{Amount: 2, ID: 1, Date: -1},
		},
		{
			name:    "missing columns",
			headers: []string{"Description", "Category"},
			want:    ColumnMap{Amount: -1, ID: -1, Date: -1},
		},
		{
			name:    "case sensitive matching",
			headers: []string{"AMOUNT", "DATE", "ID"},
			want:    ColumnMap{Amount: -1, ID: -1, Date: -1},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ResolveColumns(tt.headers))
		})
	}
}

func TestExtractCSV(t *testing.T) {
	data := []byte("Transaction ID,Date,Amount\n" +
		"1001,2024-06-03,250.75\n" +
		"TXN-2,2024-06-08,15000\n" +
		",2024-06-04,\n")

	table, err := ExtractCSV(data)
	require.NoError(t, err)
	require.Len(t, table.Transactions, 3)

	first := table.Transactions[0]
	assert.Equal(t, "Row 2", first.Ref)
	assert.Equal(t, CellNumber, first.Amount.Kind)
	assert.Equal(t, 250.75, first.Amount.Number)
	assert.Equal(t, CellNumber, first.ID.Kind)
	assert.Equal(t, "1001", first.ID.String())
	assert.Equal(t, CellDate, first.Date.Kind)
	assert.Equal(t, time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC), first.Date.Date)

	second := table.Transactions[1]
	assert.Equal(t, "Row 3", second.Ref)
	assert.Equal(t, CellText, second.ID.Kind)
	assert.Equal(t, "TXN-2", second.ID.String())

	third := table.Transactions[2]
	assert.True(t, third.ID.IsMissing())
	assert.True(t, third.Amount.IsMissing())
}

func TestExtractCSVNumericDateStaysNumber(t *testing.T) {
	data := []byte("Date,Amount\n45451,100\n")

	table, err := ExtractCSV(data)
	require.NoError(t, err)
	require.Len(t, table.Transactions, 1)

	// CSV has no serial dates; a numeric date cell is just a number.
	assert.Equal(t, CellNumber, table.Transactions[0].Date.Kind)
	assert.Equal(t, 45451.0, table.Transactions[0].Date.Number)
}

func TestExtractCSVEmpty(t *testing.T) {
	table, err := ExtractCSV([]byte(""))
	require.NoError(t, err)
	assert.Empty(t, table.Transactions)
	assert.Equal(t, -1, table.Columns.Amount)
}

func TestExtractCSVHeaderOnly(t *testing.T) {
	table, err := ExtractCSV([]byte("Transaction ID,Date,Amount\n"))
	require.NoError(t, err)
	assert.Empty(t, table.Transactions)
	assert.Equal(t, 2, table.Columns.Amount)
}

func TestExtractCSVMalformed(t *testing.T) {
	_, err := ExtractCSV([]byte("a,\"unterminated\nquote"))
	require.Error(t, err)

	var extractErr *ExtractionError
	require.ErrorAs(t, err, &extractErr)
	assert.Equal(t, "CSV", extractErr.FileType)
}

func TestExtractExcel(t *testing.T) {
	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	require.NoError(t, f.SetCellValue(sheet, "A1", "Transaction ID"))
	require.NoError(t, f.SetCellValue(sheet, "B1", "Date"))
	require.NoError(t, f.SetCellValue(sheet, "C1", "Amount"))
	require.NoError(t, f.SetCellValue(sheet, "A2", 1001))
	require.NoError(t, f.SetCellValue(sheet, "B2", 45451)) // serial for 2024-06-08
	require.NoError(t, f.SetCellValue(sheet, "C2", 12500.5))

	var buf bytes.Buffer
	require.NoError(t, f.Write(&buf))

	table, err := ExtractExcel(buf.Bytes())
	require.NoError(t, err)
	require.Len(t, table.Transactions, 1)

	txn := table.Transactions[0]
	assert.Equal(t, "Row 2", txn.Ref)
	assert.Equal(t, "1001", txn.ID.String())
	assert.Equal(t, 12500.5, txn.Amount.Number)

	// Numeric date cells in spreadsheets are serial dates.
	require.Equal(t, CellDate, txn.Date.Kind)
	assert.Equal(t, time.Date(2024, 6, 8, 0, 0, 0, 0, time.UTC), txn.Date.Date)
	assert.Equal(t, time.Saturday, txn.Date.Date.Weekday())
}

func TestExtractExcelInvalid(t *testing.T) {
	_, err := ExtractExcel([]byte("not a workbook"))
	require.Error(t, err)

	var extractErr *ExtractionError
	require.ErrorAs(t, err, &extractErr)
	assert.Equal(t, "Excel", extractErr.FileType)
}

func TestSerialToTime(t *testing.T) {
	// 25569 is the Unix epoch.
	assert.Equal(t, time.Date(1970, 1, 1, 0, 0, 0, 0, time.UTC), serialToTime(25569))
	// Fractional serials round to the nearest millisecond.
	assert.Equal(t, time.Date(2024, 6, 8, 12, 0, 0, 0, time.UTC), serialToTime(45451.5))
}

func TestCellString(t *testing.T) {
	assert.Equal(t, "1001", Cell{Kind: CellNumber, Number: 1001}.String())
	assert.Equal(t, "250.75", Cell{Kind: CellNumber, Number: 250.75}.String())
	assert.Equal(t, "TXN-9", Cell{Kind: CellText, Text: "TXN-9"}.String())
	assert.Equal(t, "6/8/2024", Cell{Kind: CellDate, Date: time.Date(2024, 6, 8, 0, 0, 0, 0, time.UTC)}.String())
	assert.Equal(t, "", Cell{}.String())
}

func TestExtractUnsupportedType(t *testing.T) {
	_, err := Extract("PDF", nil)
	require.Error(t, err)
}
