package export

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/poiesic/finextract/core"
	"github.com/poiesic/finextract/storage/badger"
)

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    Format
		wantErr bool
	}{
		{"csv", FormatCSV, false},
		{"XLSX", FormatXLSX, false},
		{".xlsx", FormatXLSX, false},
		{"json", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseFormat(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrUnknownFormat)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	assert.Equal(t, FormatXLSX, FormatForPath("out/filings.xlsx"))
	assert.Equal(t, FormatCSV, FormatForPath("out/filings.csv"))
	assert.Equal(t, FormatCSV, FormatForPath("out/filings"))
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	err := WriteCSV(&buf, []string{"a", "b"}, [][]string{{"1", "x, y"}, {"2", `say "hi"`}})
	require.NoError(t, err)
	assert.Equal(t, "a,b\n1,\"x, y\"\n2,\"say \"\"hi\"\"\"\n", buf.String())
}

func TestWriteXLSX(t *testing.T) {
	var buf bytes.Buffer
	header := []string{"symbol", "company", "weight", "zip"}
	rows := [][]string{
		{"AAPL", "Apple Inc.", "7.12", "02139"},
		{"MSFT", "Microsoft Corp", "6.5", "98052"},
	}
	require.NoError(t, WriteXLSX(&buf, "roster", header, rows))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{"roster"}, f.GetSheetList())
	got, err := f.GetRows("roster")
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, header, got[0])
	assert.Equal(t, "AAPL", got[1][0])
	assert.Equal(t, "02139", got[1][3], "leading zeros stay text")

	typ, err := f.GetCellType("roster", "C2")
	require.NoError(t, err)
	assert.NotEqual(t, excelize.CellTypeSharedString, typ)
	assert.NotEqual(t, excelize.CellTypeInlineString, typ)
}

func TestCellValue(t *testing.T) {
	assert.Equal(t, 4490000000.0, cellValue("4490000000"))
	assert.Equal(t, -1.5, cellValue("-1.5"))
	assert.Equal(t, 0.25, cellValue("0.25"))
	assert.Equal(t, "NaN", cellValue("NaN"))
	assert.Equal(t, "Inf", cellValue("Inf"))
	assert.Equal(t, "007", cellValue("007"))
	assert.Equal(t, "94-2404110", cellValue("94-2404110"))
	assert.Equal(t, "", cellValue(""))
}

func TestTableFile(t *testing.T) {
	store, err := badger.NewMemoryStore()
	require.NoError(t, err)
	defer store.Close()
	ctx := context.Background()

	out, err := store.OutputTable(core.DocTypeFiling)
	require.NoError(t, err)
	rec := core.NewFilingRecord("acme_10k.html")
	rec.CompanyName = "Acme Corp"
	rec.Revenue = 4490000000
	require.NoError(t, out.AppendRecord(ctx, rec))

	dir := t.TempDir()

	t.Run("xlsx", func(t *testing.T) {
		path := filepath.Join(dir, "filings.xlsx")
		n, err := TableFile(ctx, path, out)
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		f, err := excelize.OpenFile(path)
		require.NoError(t, err)
		defer f.Close()
		rows, err := f.GetRows("filings")
		require.NoError(t, err)
		require.Len(t, rows, 2)
		assert.Equal(t, core.FilingColumns, rows[0])
		assert.Equal(t, "Acme Corp", rows[1][1])
	})

	t.Run("csv", func(t *testing.T) {
		var buf bytes.Buffer
		n, err := Table(ctx, &buf, FormatCSV, out)
		require.NoError(t, err)
		assert.Equal(t, 1, n)
		assert.Contains(t, buf.String(), "acme_10k.html,Acme Corp,")
		assert.Contains(t, buf.String(), ",4490000000,")
	})
}
