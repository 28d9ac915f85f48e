package emdat

import (
	"context"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/couchcryptid/storm-impact-report/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"golang.org/x/text/encoding/charmap"
)

var testHeader = []string{
	"DisNo.", "ISO", "Country", "Disaster Type", "Disaster Subtype", "Event Name",
	"Start Year", "Magnitude Scale", "Magnitude", "Total Deaths", "Total Affected", "OFDA/BHA Response",
}

var testRows = [][]string{
	{"2017-0381-PRI", "PRI", "Puerto Rico", "Storm", "Tropical cyclone", "Hurricane Maria", "2017", "Kph", "280", "64", "3000000", "Yes"},
	{"2017-0362-PRI", "PRI", "Puerto Rico", "Storm", "Tropical cyclone", "Hurricane Irma", "2017", "Kph", "295", "3", "1000000", "No"},
	{"2017-0381-DMA", "DMA", "Dominica", "Storm", "Tropical cyclone", "Hurricane Maria", "2017", "Kph", "280", "64", "71293", "Yes"},
	{"2020-0019-PRI", "PRI", "Puerto Rico", "Earthquake", "Ground movement", "", "2020", "Richter", "6.4", "", "", ""},
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func csvBody(header []string, rows [][]string) string {
	var b strings.Builder
	b.WriteString(strings.Join(header, ",") + "\n")
	for _, r := range rows {
		b.WriteString(strings.Join(r, ",") + "\n")
	}
	return b.String()
}

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoader_CSV(t *testing.T) {
	path := writeFile(t, "emdat.csv", csvBody(testHeader, testRows))

	tbl, err := NewLoader(Config{Path: path}, discardLogger()).Load(context.Background(), "PRI")
	require.NoError(t, err)

	assert.Equal(t, testHeader, tbl.Columns)
	require.Len(t, tbl.Events, 3)

	maria := tbl.Events[0]
	assert.Equal(t, "2017-0381-PRI", maria.ID)
	assert.Equal(t, "PRI", maria.ISO)
	assert.Equal(t, "Hurricane Maria", maria.EventName)
	assert.Equal(t, 2017, maria.StartYear)
	assert.Equal(t, "Kph", maria.MagnitudeScale)
	assert.Equal(t, 280.0, maria.Magnitude)
	assert.Equal(t, 3000000.0, maria.TotalAffected)
	assert.True(t, maria.AidRecorded)
	assert.Equal(t, testRows[0], maria.Record)

	assert.False(t, tbl.Events[1].AidRecorded)

	quake := tbl.Events[2]
	assert.Empty(t, quake.EventName)
	assert.True(t, math.IsNaN(quake.TotalAffected))
	assert.True(t, math.IsNaN(quake.TotalDeaths))
}

func TestLoader_NoRowsForCountry(t *testing.T) {
	path := writeFile(t, "emdat.csv", csvBody(testHeader, testRows))

	tbl, err := NewLoader(Config{Path: path}, discardLogger()).Load(context.Background(), "HTI")
	require.NoError(t, err)
	assert.Empty(t, tbl.Events)
	assert.Equal(t, testHeader, tbl.Columns)
}

func TestLoader_HeaderOnly(t *testing.T) {
	tests := []struct {
		name string
		path func(t *testing.T) string
	}{
		{"csv", func(t *testing.T) string { return writeFile(t, "emdat.csv", csvBody(testHeader, nil)) }},
		{"xlsx", func(t *testing.T) string { return writeWorkbook(t, DefaultSheet, nil) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tbl, err := NewLoader(Config{Path: tt.path(t)}, discardLogger()).Load(context.Background(), "PRI")
			require.NoError(t, err)
			assert.Empty(t, tbl.Events)
			assert.Equal(t, testHeader, tbl.Columns)
		})
	}
}

func TestLoader_CountryMatchIsExact(t *testing.T) {
	path := writeFile(t, "emdat.csv", csvBody(testHeader, testRows))

	tbl, err := NewLoader(Config{Path: path}, discardLogger()).Load(context.Background(), "pri")
	require.NoError(t, err)
	assert.Empty(t, tbl.Events)
}

func TestLoader_MissingFile(t *testing.T) {
	l := NewLoader(Config{Path: filepath.Join(t.TempDir(), "absent.csv")}, discardLogger())
	_, err := l.Load(context.Background(), "PRI")
	assert.ErrorIs(t, err, domain.ErrMissingSourceFile)
}

func TestLoader_MissingColumns(t *testing.T) {
	path := writeFile(t, "emdat.csv", "ISO,Start Year\nPRI,2017\n")
	_, err := NewLoader(Config{Path: path}, discardLogger()).Load(context.Background(), "PRI")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Magnitude Scale")
}

func TestLoader_Windows1252(t *testing.T) {
	rows := [][]string{
		{"2008-0001-PRI", "PRI", "Puerto Rico", "Storm", "Tropical cyclone", "Tormenta Olga Peña", "2008", "Kph", "200", "1", "600000", "No"},
	}
	encoded, err := charmap.Windows1252.NewEncoder().String(csvBody(testHeader, rows))
	require.NoError(t, err)
	path := writeFile(t, "emdat.csv", encoded)

	tbl, err := NewLoader(Config{Path: path, Encoding: "Windows-1252"}, discardLogger()).Load(context.Background(), "PRI")
	require.NoError(t, err)
	require.Len(t, tbl.Events, 1)
	assert.Equal(t, "Tormenta Olga Peña", tbl.Events[0].EventName)
}

func TestLoader_UTF8BOM(t *testing.T) {
	path := writeFile(t, "emdat.csv", "\ufeff"+csvBody(testHeader, testRows[:1]))

	tbl, err := NewLoader(Config{Path: path}, discardLogger()).Load(context.Background(), "PRI")
	require.NoError(t, err)
	assert.Equal(t, "DisNo.", tbl.Columns[0])
	assert.Len(t, tbl.Events, 1)
}

func TestLoader_UnsupportedEncoding(t *testing.T) {
	path := writeFile(t, "emdat.csv", csvBody(testHeader, testRows))
	_, err := NewLoader(Config{Path: path, Encoding: "utf-16"}, discardLogger()).Load(context.Background(), "PRI")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "utf-16")
}

func writeWorkbook(t *testing.T, sheet string, rows [][]string) string {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	require.NoError(t, f.SetSheetName("Sheet1", sheet))
	for r, row := range append([][]string{testHeader}, rows...) {
		for c, v := range row {
			if v == "" {
				continue
			}
			cell, err := excelize.CoordinatesToCellName(c+1, r+1)
			require.NoError(t, err)
			require.NoError(t, f.SetCellValue(sheet, cell, v))
		}
	}
	path := filepath.Join(t.TempDir(), "emdat.xlsx")
	require.NoError(t, f.SaveAs(path))
	return path
}

func TestLoader_XLSX(t *testing.T) {
	path := writeWorkbook(t, DefaultSheet, testRows)

	tbl, err := NewLoader(Config{Path: path}, discardLogger()).Load(context.Background(), "PRI")
	require.NoError(t, err)
	require.Len(t, tbl.Events, 3)
	assert.Equal(t, "Hurricane Irma", tbl.Events[1].EventName)
	assert.Equal(t, 295.0, tbl.Events[1].Magnitude)

	// trailing blank cells are padded
	assert.Len(t, tbl.Events[2].Record, len(testHeader))
	assert.False(t, tbl.Events[2].AidRecorded)
}

func TestLoader_XLSXFallsBackToFirstSheet(t *testing.T) {
	path := writeWorkbook(t, "Export", testRows[:1])

	tbl, err := NewLoader(Config{Path: path, Sheet: "EM-DAT Data"}, discardLogger()).Load(context.Background(), "PRI")
	require.NoError(t, err)
	assert.Len(t, tbl.Events, 1)
}

func TestLoader_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewLoader(Config{Path: "unused.csv"}, discardLogger()).Load(ctx, "PRI")
	assert.ErrorIs(t, err, context.Canceled)
}
