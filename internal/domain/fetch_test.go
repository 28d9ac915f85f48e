package domain

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- mock provider ---

type mockProvider struct {
	catalogue    []Indicator
	catalogueErr error
	country      Country
	countryErr   error
	// batchErrs fails the batch containing the given first code.
	batchErrs map[string]error
	obs       map[string][]Observation
	calls     [][]string
}

func (m *mockProvider) ListIndicators(_ context.Context, _ int) ([]Indicator, error) {
	return m.catalogue, m.catalogueErr
}

func (m *mockProvider) LookupCountry(_ context.Context, _ string) (Country, error) {
	return m.country, m.countryErr
}

func (m *mockProvider) FetchObservations(_ context.Context, _ int, _ string, codes []string) ([]Observation, error) {
	m.calls = append(m.calls, codes)
	if err := m.batchErrs[codes[0]]; err != nil {
		return nil, err
	}
	var out []Observation
	for _, c := range codes {
		out = append(out, m.obs[c]...)
	}
	return out, nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newMockProvider() *mockProvider {
	return &mockProvider{
		catalogue: []Indicator{
			{Code: "SP.POP.TOTL", Name: "Population, total"},
			{Code: "NY.GDP.MKTP.CD", Name: "GDP (current US$)"},
			{Code: "EN.ATM.CO2E.KT", Name: "CO2 emissions (kt)"},
		},
		country: Country{Code: "PRI", Name: "Puerto Rico"},
		obs: map[string][]Observation{
			"SP.POP.TOTL": {
				{IndicatorCode: "SP.POP.TOTL", TimeLabel: "YR2018", Value: 3.19e6},
				{IndicatorCode: "SP.POP.TOTL", TimeLabel: "YR2020", Value: 3.28e6},
			},
			"NY.GDP.MKTP.CD": {
				{IndicatorCode: "NY.GDP.MKTP.CD", TimeLabel: "YR2019", Value: 1.04e11},
			},
			"EN.ATM.CO2E.KT": {
				{IndicatorCode: "EN.ATM.CO2E.KT", TimeLabel: "YR2021", Value: math.NaN()},
			},
		},
	}
}

// --- tests ---

func TestFetchIndicatorTable(t *testing.T) {
	p := newMockProvider()

	res, err := FetchIndicatorTable(context.Background(), p, ProviderConfig{SourceID: 2, BatchSize: 2}, "PRI", discardLogger())
	require.NoError(t, err)

	assert.Len(t, p.calls, 2)
	assert.Equal(t, []string{"SP.POP.TOTL", "NY.GDP.MKTP.CD"}, p.calls[0])
	assert.Len(t, res.Batches, 2)
	assert.Equal(t, 0, res.FailedBatches())

	tbl := res.Table
	assert.Equal(t, FullIdentity, tbl.Identity)
	assert.Equal(t, []int{2018, 2019, 2020, 2021}, tbl.Years)
	require.Len(t, tbl.Rows, 3)

	// rows ordered by indicator code
	assert.Equal(t, "EN.ATM.CO2E.KT", tbl.Rows[0].IndicatorCode)
	assert.Equal(t, "NY.GDP.MKTP.CD", tbl.Rows[1].IndicatorCode)
	assert.Equal(t, "SP.POP.TOTL", tbl.Rows[2].IndicatorCode)

	pop := tbl.Rows[2]
	assert.Equal(t, "Puerto Rico", pop.CountryName)
	assert.Equal(t, "PRI", pop.CountryCode)
	assert.Equal(t, "Population, total", pop.IndicatorName)
	assert.Equal(t, 3.19e6, pop.Values[0])
	assert.True(t, math.IsNaN(pop.Values[1]))
	assert.Equal(t, 3.28e6, pop.Values[2])
	assert.True(t, tbl.Rows[0].AllMissing())
}

func TestFetchIndicatorTable_BatchFailureIsSkipped(t *testing.T) {
	p := newMockProvider()
	p.batchErrs = map[string]error{"SP.POP.TOTL": errors.New("503 service unavailable")}

	res, err := FetchIndicatorTable(context.Background(), p, ProviderConfig{SourceID: 2, BatchSize: 2}, "PRI", discardLogger())
	require.NoError(t, err)

	assert.Equal(t, 1, res.FailedBatches())
	require.Len(t, res.Table.Rows, 1)
	assert.Equal(t, "EN.ATM.CO2E.KT", res.Table.Rows[0].IndicatorCode)
}

func TestFetchIndicatorTable_Failures(t *testing.T) {
	t.Run("every batch fails", func(t *testing.T) {
		p := newMockProvider()
		p.batchErrs = map[string]error{
			"SP.POP.TOTL":    errors.New("boom"),
			"EN.ATM.CO2E.KT": errors.New("boom"),
		}
		res, err := FetchIndicatorTable(context.Background(), p, ProviderConfig{BatchSize: 2}, "PRI", discardLogger())
		assert.ErrorIs(t, err, ErrFetchFailure)
		assert.Equal(t, 2, res.FailedBatches())
	})

	t.Run("catalogue unavailable", func(t *testing.T) {
		p := newMockProvider()
		p.catalogueErr = errors.New("timeout")
		_, err := FetchIndicatorTable(context.Background(), p, ProviderConfig{}, "PRI", discardLogger())
		assert.ErrorIs(t, err, ErrFetchFailure)
	})

	t.Run("unknown country", func(t *testing.T) {
		p := newMockProvider()
		p.countryErr = errors.New("not found")
		_, err := FetchIndicatorTable(context.Background(), p, ProviderConfig{}, "XXX", discardLogger())
		assert.ErrorIs(t, err, ErrFetchFailure)
		assert.Empty(t, p.calls)
	})

	t.Run("cancelled context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := FetchIndicatorTable(ctx, newMockProvider(), ProviderConfig{}, "PRI", discardLogger())
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestFetchIndicatorTable_ExplicitIndicators(t *testing.T) {
	p := newMockProvider()

	res, err := FetchIndicatorTable(context.Background(), p, ProviderConfig{
		Indicators: []string{"NY.GDP.MKTP.CD"},
	}, "PRI", discardLogger())
	require.NoError(t, err)

	assert.Equal(t, [][]string{{"NY.GDP.MKTP.CD"}}, p.calls)
	require.Len(t, res.Table.Rows, 1)
	assert.Equal(t, "GDP (current US$)", res.Table.Rows[0].IndicatorName)
}

func TestParseYearLabel(t *testing.T) {
	tests := []struct {
		label   string
		want    int
		wantErr bool
	}{
		{"YR2020", 2020, false},
		{"2007", 2007, false},
		{" YR1999 ", 1999, false},
		{"YR20", 0, true},
		{"2020Q1", 0, true},
		{"", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.label, func(t *testing.T) {
			got, err := ParseYearLabel(tt.label)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestBuildIndicatorTable(t *testing.T) {
	t.Run("later duplicate wins", func(t *testing.T) {
		tbl, err := BuildIndicatorTable(Country{Code: "PRI"}, nil, []Observation{
			{IndicatorCode: "X", TimeLabel: "YR2020", Value: 1},
			{IndicatorCode: "X", TimeLabel: "YR2020", Value: 2},
		})
		require.NoError(t, err)
		require.Len(t, tbl.Rows, 1)
		assert.Equal(t, []float64{2}, tbl.Rows[0].Values)
		assert.Equal(t, "X", tbl.Rows[0].IndicatorName)
	})

	t.Run("bad label", func(t *testing.T) {
		_, err := BuildIndicatorTable(Country{}, nil, []Observation{{IndicatorCode: "X", TimeLabel: "latest"}})
		assert.Error(t, err)
	})

	t.Run("empty", func(t *testing.T) {
		tbl, err := BuildIndicatorTable(Country{}, nil, nil)
		require.NoError(t, err)
		assert.Empty(t, tbl.Rows)
		assert.Equal(t, FullIdentity, tbl.Identity)
	})
}
