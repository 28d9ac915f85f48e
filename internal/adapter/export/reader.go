package export

import (
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/couchcryptid/storm-impact-report/internal/domain"
	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
)

// ReadIndicators parses a CSV written by ExportIndicators. Four digit
// headers are year columns; every other header is an identity column.
func ReadIndicators(r io.Reader) (domain.IndicatorTable, error) {
	// The header is read as a data row so an export with no rows still parses.
	df := dataframe.ReadCSV(r,
		dataframe.HasHeader(false),
		dataframe.DetectTypes(false),
		dataframe.DefaultType(series.String),
		dataframe.NaNValues([]string{"NaN"}),
	)
	if df.Err != nil {
		return domain.IndicatorTable{}, fmt.Errorf("read indicators csv: %w", df.Err)
	}
	records := df.Records()[1:]
	header := records[0]

	var (
		table   domain.IndicatorTable
		yearIdx []int
		idIdx   []int
	)
	for i, h := range header {
		if y, ok := parseYearHeader(h); ok {
			table.Years = append(table.Years, y)
			yearIdx = append(yearIdx, i)
			continue
		}
		table.Identity = append(table.Identity, h)
		idIdx = append(idIdx, i)
	}
	if len(table.Years) == 0 {
		return domain.IndicatorTable{}, fmt.Errorf("read indicators csv: no year columns")
	}

	for _, rec := range records[1:] {
		var row domain.IndicatorRow
		for k, i := range idIdx {
			row.SetIdentity(table.Identity[k], rec[i])
		}
		row.Values = make([]float64, len(yearIdx))
		for k, i := range yearIdx {
			v, err := parseValue(rec[i])
			if err != nil {
				return domain.IndicatorTable{}, fmt.Errorf("read indicators csv: column %s: %w", header[i], err)
			}
			row.Values[k] = v
		}
		table.Rows = append(table.Rows, row)
	}
	return table, nil
}

func parseYearHeader(h string) (int, bool) {
	h = strings.TrimSpace(h)
	if len(h) != 4 {
		return 0, false
	}
	y, err := strconv.Atoi(h)
	return y, err == nil
}

func parseValue(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == "NaN" {
		return math.NaN(), nil
	}
	return strconv.ParseFloat(s, 64)
}
