// Command validate checks the exported artefacts of a report run: the
// transformed tables must satisfy the cleaning and filtering rules, and when
// the extracted exports are present, re-running the transformations on them
// must reproduce the transformed exports.
//
// Usage:
//
//	go run ./cmd/validate -dir data -country PRI -min-year 2007 -max-year 2023
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"math"
	"os"
	"slices"

	"github.com/couchcryptid/storm-impact-report/internal/adapter/emdat"
	"github.com/couchcryptid/storm-impact-report/internal/adapter/export"
	"github.com/couchcryptid/storm-impact-report/internal/domain"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

// phase tracks pass/fail for a validation phase.
type phase struct {
	name    string
	errors  []string
	skipped string
}

func (p *phase) errorf(format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *phase) passed() bool { return len(p.errors) == 0 }

type options struct {
	dir         string
	country     string
	indicators  domain.IndicatorFilter
	disasters   domain.DisasterFilter
	maxMismatch int
}

func main() {
	dir := flag.String("dir", "data", "output directory of the report run")
	country := flag.String("country", "PRI", "ISO3 country code")
	minYear := flag.Int("min-year", 2007, "first year of the analysis window")
	maxYear := flag.Int("max-year", 2023, "last year of the analysis window")
	minAffected := flag.Float64("min-affected", domain.DefaultMinTotalAffected, "minimum total affected per event")
	minMagnitude := flag.Float64("min-magnitude", domain.DefaultMajorHurricaneMagnitude, "minimum hurricane magnitude")
	scale := flag.String("scale", domain.MagnitudeScaleKph, "hurricane magnitude scale")
	fraction := flag.Float64("max-missing-fraction", domain.DefaultMaxMissingFraction, "density filter fraction")
	flag.Parse()

	disasters := domain.MajorHurricanes(*minYear, *maxYear, *minAffected)
	disasters.MinMagnitude = *minMagnitude
	disasters.MagnitudeScale = *scale

	os.Exit(run(os.Stdout, options{
		dir:     *dir,
		country: *country,
		indicators: domain.IndicatorFilter{
			MinYear:            *minYear,
			MaxYear:            *maxYear,
			MaxMissingFraction: *fraction,
		},
		disasters:   disasters,
		maxMismatch: 20,
	}))
}

func run(w io.Writer, opts options) int {
	fmt.Fprintln(w, "=== Storm Impact Report Artefact Validation ===")
	fmt.Fprintln(w)

	transformedWDI, err := readIndicators(export.Path(opts.dir, domain.StageTransformed, opts.country, export.DatasetIndicators))
	if err != nil {
		fmt.Fprintf(w, "FATAL: load transformed indicators: %v\n", err)
		return 1
	}
	transformedEMDAT, err := loadDisasters(export.Path(opts.dir, domain.StageTransformed, opts.country, export.DatasetDisasters), opts.country)
	if err != nil {
		fmt.Fprintf(w, "FATAL: load transformed disasters: %v\n", err)
		return 1
	}

	phases := []*phase{
		validateIndicatorInvariants(transformedWDI, opts.indicators),
		validateDisasterFilter(transformedEMDAT, opts.disasters),
		validateIndicatorReproducible(opts, transformedWDI),
		validateDisasterReproducible(opts, transformedEMDAT),
	}

	fmt.Fprintln(w)
	allPassed := true
	for _, p := range phases {
		status := "\033[32mPASS\033[0m"
		switch {
		case p.skipped != "":
			status = "\033[33mSKIP\033[0m (" + p.skipped + ")"
		case !p.passed():
			status = fmt.Sprintf("\033[31mFAIL (%d errors)\033[0m", len(p.errors))
			allPassed = false
		}
		fmt.Fprintf(w, "  %-42s %s\n", p.name, status)
	}

	fmt.Fprintln(w)
	fmt.Fprintf(w, "Records: %d transformed indicators over %d years, %d transformed disaster events\n",
		len(transformedWDI.Rows), len(transformedWDI.Years), len(transformedEMDAT.Events))

	for _, p := range phases {
		if p.passed() {
			continue
		}
		fmt.Fprintf(w, "\n--- %s ---\n", p.name)
		for i, e := range p.errors {
			if i == opts.maxMismatch {
				fmt.Fprintf(w, "  ... %d more\n", len(p.errors)-i)
				break
			}
			fmt.Fprintf(w, "  [%d] %s\n", i+1, e)
		}
	}

	if allPassed {
		fmt.Fprintln(w, "\nAll validations passed.")
		return 0
	}
	fmt.Fprintln(w, "\nValidation FAILED.")
	return 1
}

// ── Data loading ──

func readIndicators(path string) (domain.IndicatorTable, error) {
	f, err := os.Open(path)
	if err != nil {
		return domain.IndicatorTable{}, err
	}
	defer f.Close()
	return export.ReadIndicators(f)
}

func loadDisasters(path, country string) (domain.DisasterTable, error) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return emdat.NewLoader(emdat.Config{Path: path}, logger).Load(context.Background(), country)
}

func missing(err error) bool {
	return errors.Is(err, fs.ErrNotExist) || errors.Is(err, domain.ErrMissingSourceFile)
}

// ── Phase 1: transformed indicator invariants ──

func validateIndicatorInvariants(t domain.IndicatorTable, f domain.IndicatorFilter) *phase {
	p := &phase{name: "Phase 1: Transformed Indicator Invariants"}

	if !slices.Equal(t.Identity, domain.TransformedIdentity) {
		p.errorf("identity columns = %v, want %v", t.Identity, domain.TransformedIdentity)
	}
	for i, y := range t.Years {
		if y < f.MinYear || y > f.MaxYear {
			p.errorf("year column %d outside [%d, %d]", y, f.MinYear, f.MaxYear)
		}
		if i > 0 && y != t.Years[i-1]+1 {
			p.errorf("year columns not contiguous: %d follows %d", y, t.Years[i-1])
		}
	}

	seen := make(map[string]bool, len(t.Rows))
	for i, r := range t.Rows {
		line := i + 2
		if seen[r.IndicatorName] {
			p.errorf("line %d: duplicate indicator %q", line, r.IndicatorName)
		}
		seen[r.IndicatorName] = true

		if n := r.MissingCount(); n > 0 {
			p.errorf("line %d: %q has %d missing values", line, r.IndicatorName, n)
		}
		zero := len(r.Values) > 0
		for _, v := range r.Values {
			if v != 0 || math.IsNaN(v) {
				zero = false
				break
			}
		}
		if zero {
			p.errorf("line %d: %q is all zero", line, r.IndicatorName)
		}
	}
	return p
}

// ── Phase 2: transformed disaster filter ──

func validateDisasterFilter(t domain.DisasterTable, f domain.DisasterFilter) *phase {
	p := &phase{name: "Phase 2: Transformed Disaster Filter"}
	for _, e := range t.Events {
		if !f.Match(e) {
			p.errorf("%s (%s, %d): scale=%q magnitude=%g affected=%g fails the hurricane filter",
				e.ID, e.Label(), e.StartYear, e.MagnitudeScale, e.Magnitude, e.TotalAffected)
		}
	}
	return p
}

// ── Phase 3: extracted → transformed indicators ──

func validateIndicatorReproducible(opts options, transformed domain.IndicatorTable) *phase {
	p := &phase{name: "Phase 3: Indicator Transform Reproducible"}

	extracted, err := readIndicators(export.Path(opts.dir, domain.StageExtracted, opts.country, export.DatasetIndicators))
	if missing(err) {
		p.skipped = "no extracted export"
		return p
	}
	if err != nil {
		p.errorf("load extracted indicators: %v", err)
		return p
	}

	want, _, err := domain.TransformIndicators(extracted, opts.indicators)
	if err != nil {
		p.errorf("transform extracted indicators: %v", err)
		return p
	}
	if diff := cmp.Diff(want, transformed, cmpopts.EquateApprox(0, 1e-9), cmpopts.EquateEmpty()); diff != "" {
		p.errorf("transformed export differs from re-run (-want +got):\n%s", diff)
	}
	return p
}

// ── Phase 4: extracted → transformed disasters ──

func validateDisasterReproducible(opts options, transformed domain.DisasterTable) *phase {
	p := &phase{name: "Phase 4: Disaster Transform Reproducible"}

	extracted, err := loadDisasters(export.Path(opts.dir, domain.StageExtracted, opts.country, export.DatasetDisasters), opts.country)
	if missing(err) {
		p.skipped = "no extracted export"
		return p
	}
	if err != nil {
		p.errorf("load extracted disasters: %v", err)
		return p
	}

	want, err := domain.TransformDisasters(extracted, opts.disasters)
	if err != nil {
		p.errorf("transform extracted disasters: %v", err)
		return p
	}
	ids := func(t domain.DisasterTable) []string {
		out := make([]string, len(t.Events))
		for i, e := range t.Events {
			out[i] = e.ID
		}
		return out
	}
	if diff := cmp.Diff(ids(want), ids(transformed), cmpopts.EquateEmpty()); diff != "" {
		p.errorf("transformed event IDs differ from re-run (-want +got):\n%s", diff)
	}
	return p
}
