package domain

import (
	"fmt"
	"math"
)

// DefaultMaxMissingFraction is the share of year columns a row may be
// missing before the density filter drops it.
const DefaultMaxMissingFraction = 0.5

// IndicatorFilter selects the year window and density threshold applied by
// TransformIndicators.
type IndicatorFilter struct {
	MinYear int
	MaxYear int
	// MaxMissingFraction bounds missing values per row as
	// floor(years * fraction). Zero means DefaultMaxMissingFraction.
	MaxMissingFraction float64
}

// Threshold returns the largest missing count a row may have and survive.
func (f IndicatorFilter) Threshold(years int) int {
	frac := f.MaxMissingFraction
	if frac <= 0 {
		frac = DefaultMaxMissingFraction
	}
	// The epsilon absorbs products like 100*0.29 landing just under 29.
	return int(math.Floor(float64(years)*frac + 1e-9))
}

// TransformStats counts what TransformIndicators did to each row.
type TransformStats struct {
	InputRows      int
	DroppedSparse  int
	DroppedAllZero int
	// Filled is the number of rows that had at least one gap resolved.
	Filled     int
	OutputRows int
}

// TransformIndicators narrows the table to the configured year window, drops
// sparse and all-zero rows, then resolves the remaining gaps. The input table
// is not modified. The result keeps only the country code and indicator name
// identity columns.
func TransformIndicators(in IndicatorTable, f IndicatorFilter) (IndicatorTable, TransformStats, error) {
	stats := TransformStats{InputRows: len(in.Rows)}
	if f.MinYear > f.MaxYear {
		return IndicatorTable{}, stats, fmt.Errorf("%w: min year %d after max year %d", ErrInvalidRange, f.MinYear, f.MaxYear)
	}

	var (
		years []int
		idx   []int
	)
	for i, y := range in.Years {
		if y >= f.MinYear && y <= f.MaxYear {
			years = append(years, y)
			idx = append(idx, i)
		}
	}
	if len(years) == 0 {
		return IndicatorTable{}, stats, fmt.Errorf("%w: no year columns in [%d, %d]", ErrInvalidRange, f.MinYear, f.MaxYear)
	}

	threshold := f.Threshold(len(years))
	out := IndicatorTable{
		Identity: append([]string(nil), TransformedIdentity...),
		Years:    years,
	}
	for _, r := range in.Rows {
		values := make([]float64, len(idx))
		for j, i := range idx {
			values[j] = math.NaN()
			if i < len(r.Values) {
				values[j] = r.Values[i]
			}
		}
		row := IndicatorRow{
			CountryCode:   r.CountryCode,
			IndicatorName: r.IndicatorName,
			Values:        values,
		}
		if row.MissingCount() > threshold {
			stats.DroppedSparse++
			continue
		}
		if allZero(values) {
			stats.DroppedAllZero++
			continue
		}
		if row.MissingCount() > 0 {
			FillGaps(row.Values)
			stats.Filled++
		}
		out.Rows = append(out.Rows, row)
	}

	if out.HasMissing() {
		return IndicatorTable{}, stats, ErrUnresolvedGaps
	}
	stats.OutputRows = len(out.Rows)
	return out, stats, nil
}

// allZero reports whether every value is exactly 0. NaN is not zero.
func allZero(values []float64) bool {
	for _, v := range values {
		if v != 0 || math.IsNaN(v) {
			return false
		}
	}
	return true
}

// FillGaps resolves NaN values in place: interior gaps are linearly
// interpolated between their known neighbours, leading gaps take the first
// known value and trailing gaps take the last. A slice with no known value is
// left unchanged.
//
//	[NaN NaN 10 NaN 20 NaN]  →  [10 10 10 15 20 20]
func FillGaps(values []float64) {
	first, last := -1, -1
	for i, v := range values {
		if math.IsNaN(v) {
			continue
		}
		if first < 0 {
			first = i
		}
		last = i
	}
	if first < 0 {
		return
	}

	prev := first
	for i := first + 1; i <= last; i++ {
		if math.IsNaN(values[i]) {
			continue
		}
		if gap := i - prev; gap > 1 {
			step := (values[i] - values[prev]) / float64(gap)
			for k := 1; k < gap; k++ {
				values[prev+k] = values[prev] + step*float64(k)
			}
		}
		prev = i
	}

	for i := 0; i < first; i++ {
		values[i] = values[first]
	}
	for i := last + 1; i < len(values); i++ {
		values[i] = values[last]
	}
}
