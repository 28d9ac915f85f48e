package export

import (
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/couchcryptid/storm-impact-report/internal/domain"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func transformedTable() domain.IndicatorTable {
	return domain.IndicatorTable{
		Identity: domain.TransformedIdentity,
		Years:    []int{2016, 2017, 2018},
		Rows: []domain.IndicatorRow{
			{CountryCode: "PRI", IndicatorName: "Population, total", Values: []float64{3406672, 3325286, 3193354}},
			{CountryCode: "PRI", IndicatorName: "GDP growth (annual %), \"real\"", Values: []float64{-1.3, -2.9, -4.1}},
			{CountryCode: "PRI", IndicatorName: "Tiny", Values: []float64{1e-7, 0.1 + 0.2, 12345678901234}},
		},
	}
}

func TestPath(t *testing.T) {
	assert.Equal(t, filepath.Join("data", "extracted", "PRI_WDI_data.csv"),
		Path("data", domain.StageExtracted, "PRI", DatasetIndicators))
	assert.Equal(t, filepath.Join("out", "transformed", "PRI_EMDAT_transformed.csv"),
		Path("out", domain.StageTransformed, "PRI", DatasetDisasters))
}

func TestExportIndicators_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	w := NewWriter(Config{Dir: dir}, discardLogger())
	in := transformedTable()

	path, err := w.ExportIndicators(domain.StageTransformed, "PRI", in)
	require.NoError(t, err)
	assert.Equal(t, Path(dir, domain.StageTransformed, "PRI", DatasetIndicators), path)

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	out, err := ReadIndicators(f)
	require.NoError(t, err)

	if diff := cmp.Diff(in, out); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestExportIndicators_ExtractedKeepsGaps(t *testing.T) {
	dir := t.TempDir()
	in := domain.IndicatorTable{
		Identity: domain.FullIdentity,
		Years:    []int{2020, 2021},
		Rows: []domain.IndicatorRow{{
			CountryName: "Puerto Rico", CountryCode: "PRI",
			IndicatorName: "Population, total", IndicatorCode: "SP.POP.TOTL",
			Values: []float64{3281557, math.NaN()},
		}},
	}

	path, err := NewWriter(Config{Dir: dir}, discardLogger()).ExportIndicators(domain.StageExtracted, "PRI", in)
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t,
		"Country Name,Country Code,Indicator Name,Indicator Code,2020,2021\n"+
			"Puerto Rico,PRI,\"Population, total\",SP.POP.TOTL,3281557,\n",
		string(data))

	out, err := ReadIndicators(strings.NewReader(string(data)))
	require.NoError(t, err)
	if diff := cmp.Diff(in, out, cmpopts.EquateNaNs()); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestExportIndicators_EmptyTable(t *testing.T) {
	dir := t.TempDir()
	in := domain.IndicatorTable{Identity: domain.TransformedIdentity, Years: []int{2007, 2008}}

	path, err := NewWriter(Config{Dir: dir}, discardLogger()).ExportIndicators(domain.StageTransformed, "PRI", in)
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "Country Code,Indicator Name,2007,2008\n", string(data))

	out, err := ReadIndicators(strings.NewReader(string(data)))
	require.NoError(t, err)
	assert.Equal(t, in.Years, out.Years)
	assert.Empty(t, out.Rows)
}

func TestExportDisasters(t *testing.T) {
	dir := t.TempDir()
	in := domain.DisasterTable{
		Columns: []string{"ISO", "Event Name", "Total Affected"},
		Events: []domain.DisasterEvent{
			{Record: []string{"PRI", "Hurricane Maria", "3000000"}},
			{Record: []string{"PRI", "Hurricane Irma"}},
		},
	}

	w := NewWriter(Config{Dir: dir, XLSX: true}, discardLogger())
	path, err := w.ExportDisasters(domain.StageTransformed, "PRI", in)
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t,
		"ISO,Event Name,Total Affected\nPRI,Hurricane Maria,3000000\nPRI,Hurricane Irma,\n",
		string(data))

	wb, err := excelize.OpenFile(strings.TrimSuffix(path, ".csv") + ".xlsx")
	require.NoError(t, err)
	defer wb.Close()
	rows, err := wb.GetRows(DatasetDisasters)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"PRI", "Hurricane Maria", "3000000"}, rows[1])
}

func TestExportDisasters_NoEvents(t *testing.T) {
	dir := t.TempDir()
	in := domain.DisasterTable{Columns: []string{"ISO", "Event Name"}}

	path, err := NewWriter(Config{Dir: dir}, discardLogger()).ExportDisasters(domain.StageExtracted, "HTI", in)
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(path, filepath.Join("extracted", "HTI_EMDAT_data.csv")))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "ISO,Event Name\n", string(data))
}

func TestExport_UnwritableDir(t *testing.T) {
	file := filepath.Join(t.TempDir(), "blocker")
	require.NoError(t, os.WriteFile(file, nil, 0o600))

	_, err := NewWriter(Config{Dir: file}, discardLogger()).ExportIndicators(domain.StageTransformed, "PRI", transformedTable())
	assert.Error(t, err)
}

func TestReadIndicators_Errors(t *testing.T) {
	t.Run("no year columns", func(t *testing.T) {
		_, err := ReadIndicators(strings.NewReader("Country Code,Indicator Name\nPRI,x\n"))
		assert.Error(t, err)
	})

	t.Run("bad value", func(t *testing.T) {
		_, err := ReadIndicators(strings.NewReader("Country Code,2020\nPRI,abc\n"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "2020")
	})

	t.Run("NaN literal", func(t *testing.T) {
		out, err := ReadIndicators(strings.NewReader("Country Code,2020\nPRI,NaN\n"))
		require.NoError(t, err)
		assert.True(t, math.IsNaN(out.Rows[0].Values[0]))
	})
}

func TestFormatValue(t *testing.T) {
	assert.Equal(t, "", FormatValue(math.NaN()))
	assert.Equal(t, "3281557", FormatValue(3281557))
	assert.Equal(t, "-2.9", FormatValue(-2.9))
	a, b := 0.1, 0.2
	assert.Equal(t, "0.30000000000000004", FormatValue(a+b))
}
