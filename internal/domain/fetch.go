package domain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strconv"
	"strings"
)

// DefaultBatchSize is the number of indicator codes requested per call.
const DefaultBatchSize = 100

// IndicatorProvider reads the World Bank style indicator API.
type IndicatorProvider interface {
	ListIndicators(ctx context.Context, sourceID int) ([]Indicator, error)
	LookupCountry(ctx context.Context, code string) (Country, error)
	FetchObservations(ctx context.Context, sourceID int, country string, codes []string) ([]Observation, error)
}

// ProviderConfig controls how FetchIndicatorTable walks the catalogue.
type ProviderConfig struct {
	SourceID  int
	BatchSize int
	// Indicators restricts the fetch to these codes. Empty means the full
	// catalogue of SourceID.
	Indicators []string
}

// BatchResult records the outcome of one indicator batch.
type BatchResult struct {
	Index        int
	Indicators   int
	Observations int
	Err          error
}

// FetchResult is the wide table plus per-batch outcomes.
type FetchResult struct {
	Table   IndicatorTable
	Batches []BatchResult
}

// FailedBatches counts batches that returned an error.
func (r FetchResult) FailedBatches() int {
	n := 0
	for _, b := range r.Batches {
		if b.Err != nil {
			n++
		}
	}
	return n
}

// FetchIndicatorTable retrieves every indicator of the configured source for
// one country and reshapes the result into a wide table. A failing batch is
// logged and skipped. Failure to read the catalogue or country, or an empty
// overall result, returns ErrFetchFailure.
func FetchIndicatorTable(ctx context.Context, p IndicatorProvider, cfg ProviderConfig, country string, logger *slog.Logger) (FetchResult, error) {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}

	catalogue, err := p.ListIndicators(ctx, cfg.SourceID)
	if err != nil {
		return FetchResult{}, fmt.Errorf("%w: list indicators: %w", ErrFetchFailure, err)
	}
	ctry, err := p.LookupCountry(ctx, country)
	if err != nil {
		return FetchResult{}, fmt.Errorf("%w: lookup country %s: %w", ErrFetchFailure, country, err)
	}

	names := make(map[string]string, len(catalogue))
	for _, ind := range catalogue {
		names[ind.Code] = ind.Name
	}
	codes := selectCodes(catalogue, cfg.Indicators, logger)

	var (
		all     []Observation
		batches []BatchResult
	)
	for i := 0; i < len(codes); i += cfg.BatchSize {
		if err := ctx.Err(); err != nil {
			return FetchResult{}, err
		}
		end := min(i+cfg.BatchSize, len(codes))
		batch := codes[i:end]
		res := BatchResult{Index: i / cfg.BatchSize, Indicators: len(batch)}

		obs, err := p.FetchObservations(ctx, cfg.SourceID, ctry.Code, batch)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return FetchResult{}, err
			}
			res.Err = err
			logger.Error("indicator batch failed",
				"batch", res.Index,
				"first", batch[0],
				"size", len(batch),
				"error", err,
			)
			batches = append(batches, res)
			continue
		}
		res.Observations = len(obs)
		batches = append(batches, res)
		all = append(all, obs...)
		logger.Debug("indicator batch fetched", "batch", res.Index, "observations", len(obs))
	}

	if len(all) == 0 {
		return FetchResult{Batches: batches}, fmt.Errorf("%w: no observations for %s", ErrFetchFailure, ctry.Code)
	}

	table, err := BuildIndicatorTable(ctry, names, all)
	if err != nil {
		return FetchResult{Batches: batches}, fmt.Errorf("%w: %w", ErrFetchFailure, err)
	}
	return FetchResult{Table: table, Batches: batches}, nil
}

// selectCodes returns the catalogue codes to fetch, honouring an explicit
// allow-list. Requested codes absent from the catalogue are still fetched.
func selectCodes(catalogue []Indicator, requested []string, logger *slog.Logger) []string {
	if len(requested) == 0 {
		codes := make([]string, 0, len(catalogue))
		for _, ind := range catalogue {
			codes = append(codes, ind.Code)
		}
		return codes
	}
	known := make(map[string]bool, len(catalogue))
	for _, ind := range catalogue {
		known[ind.Code] = true
	}
	codes := make([]string, 0, len(requested))
	for _, c := range requested {
		if !known[c] {
			logger.Warn("requested indicator not in catalogue", "indicator", c)
		}
		codes = append(codes, c)
	}
	return codes
}

// ParseYearLabel strips the provider's time prefix, e.g. "YR2020" → 2020.
func ParseYearLabel(label string) (int, error) {
	digits := strings.TrimLeftFunc(strings.TrimSpace(label), func(r rune) bool {
		return r < '0' || r > '9'
	})
	if len(digits) != 4 {
		return 0, fmt.Errorf("parse year label %q", label)
	}
	return strconv.Atoi(digits)
}

// BuildIndicatorTable pivots observations into one row per indicator code
// with a contiguous ascending year range. Years with no observation are NaN.
// Rows are ordered by indicator code. When an indicator reports a year twice
// the later observation wins.
func BuildIndicatorTable(country Country, names map[string]string, obs []Observation) (IndicatorTable, error) {
	type cell struct {
		year  int
		value float64
	}
	byCode := make(map[string][]cell)
	minYear, maxYear := math.MaxInt, math.MinInt
	for _, o := range obs {
		year, err := ParseYearLabel(o.TimeLabel)
		if err != nil {
			return IndicatorTable{}, err
		}
		minYear = min(minYear, year)
		maxYear = max(maxYear, year)
		byCode[o.IndicatorCode] = append(byCode[o.IndicatorCode], cell{year, o.Value})
	}
	if len(byCode) == 0 {
		return IndicatorTable{Identity: append([]string(nil), FullIdentity...)}, nil
	}

	years := make([]int, 0, maxYear-minYear+1)
	for y := minYear; y <= maxYear; y++ {
		years = append(years, y)
	}

	codes := make([]string, 0, len(byCode))
	for c := range byCode {
		codes = append(codes, c)
	}
	sort.Strings(codes)

	rows := make([]IndicatorRow, 0, len(codes))
	for _, code := range codes {
		values := make([]float64, len(years))
		for i := range values {
			values[i] = math.NaN()
		}
		for _, c := range byCode[code] {
			values[c.year-minYear] = c.value
		}
		name := names[code]
		if name == "" {
			name = code
		}
		rows = append(rows, IndicatorRow{
			CountryName:   country.Name,
			CountryCode:   country.Code,
			IndicatorName: name,
			IndicatorCode: code,
			Values:        values,
		})
	}

	return IndicatorTable{
		Identity: append([]string(nil), FullIdentity...),
		Years:    years,
		Rows:     rows,
	}, nil
}
