package domain

import (
	"math"
	"strconv"
)

// Identity column names, in canonical export order.
const (
	ColCountryName   = "Country Name"
	ColCountryCode   = "Country Code"
	ColIndicatorName = "Indicator Name"
	ColIndicatorCode = "Indicator Code"
)

// FullIdentity is the identity column set of a freshly fetched table.
var FullIdentity = []string{ColCountryName, ColCountryCode, ColIndicatorName, ColIndicatorCode}

// TransformedIdentity is the identity column set kept by TransformIndicators.
var TransformedIdentity = []string{ColCountryCode, ColIndicatorName}

// Country identifies an economy in the provider's catalogue.
type Country struct {
	Code string
	Name string
}

// Indicator is one entry of the provider's series catalogue.
type Indicator struct {
	Code string
	Name string
}

// Observation is a single provider value. Value is NaN when the provider
// reported no data for the period.
type Observation struct {
	IndicatorCode string
	TimeLabel     string
	Value         float64
}

// IndicatorRow holds one indicator's yearly values. Values aligns with the
// owning table's Years; NaN marks a missing value.
type IndicatorRow struct {
	CountryName   string
	CountryCode   string
	IndicatorName string
	IndicatorCode string
	Values        []float64
}

// IndicatorTable is the wide indicator-by-year table.
type IndicatorTable struct {
	// Identity lists the identity columns present, in export order.
	Identity []string
	Years    []int
	Rows     []IndicatorRow
}

// Identity returns the value of an identity column.
func (r IndicatorRow) Identity(col string) string {
	switch col {
	case ColCountryName:
		return r.CountryName
	case ColCountryCode:
		return r.CountryCode
	case ColIndicatorName:
		return r.IndicatorName
	case ColIndicatorCode:
		return r.IndicatorCode
	default:
		return ""
	}
}

// SetIdentity assigns an identity column. Unknown columns are ignored.
func (r *IndicatorRow) SetIdentity(col, value string) {
	switch col {
	case ColCountryName:
		r.CountryName = value
	case ColCountryCode:
		r.CountryCode = value
	case ColIndicatorName:
		r.IndicatorName = value
	case ColIndicatorCode:
		r.IndicatorCode = value
	}
}

// MissingCount returns the number of NaN values in the row.
func (r IndicatorRow) MissingCount() int {
	n := 0
	for _, v := range r.Values {
		if math.IsNaN(v) {
			n++
		}
	}
	return n
}

// AllMissing reports whether the row has no known value.
func (r IndicatorRow) AllMissing() bool {
	return r.MissingCount() == len(r.Values)
}

// YearLabels returns the year columns as strings.
func (t IndicatorTable) YearLabels() []string {
	labels := make([]string, len(t.Years))
	for i, y := range t.Years {
		labels[i] = strconv.Itoa(y)
	}
	return labels
}

// HasYear reports whether year is one of the table's year columns.
func (t IndicatorTable) HasYear(year int) bool {
	for _, y := range t.Years {
		if y == year {
			return true
		}
	}
	return false
}

// HasMissing reports whether any row has a NaN value.
func (t IndicatorTable) HasMissing() bool {
	for _, r := range t.Rows {
		if r.MissingCount() > 0 {
			return true
		}
	}
	return false
}

// Clone returns a deep copy so callers can mutate without touching t.
func (t IndicatorTable) Clone() IndicatorTable {
	out := IndicatorTable{
		Identity: append([]string(nil), t.Identity...),
		Years:    append([]int(nil), t.Years...),
		Rows:     make([]IndicatorRow, len(t.Rows)),
	}
	for i, r := range t.Rows {
		r.Values = append([]float64(nil), r.Values...)
		out.Rows[i] = r
	}
	return out
}
