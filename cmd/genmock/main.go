// Command genmock trims a full EM-DAT export down to a handful of countries
// and writes the result as a test fixture. It runs the domain hurricane
// filter over the trimmed rows so the printed counts match what the pipeline
// will retain.
//
// Usage:
//
//	go run ./cmd/genmock \
//	  -source ~/Downloads/public_emdat_custom_request.xlsx \
//	  -countries PRI,DOM,DMA \
//	  -csv-out internal/pipeline/testdata/emdat_sample.csv \
//	  -xlsx-out internal/adapter/emdat/testdata/emdat_sample.xlsx
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/couchcryptid/storm-impact-report/internal/adapter/emdat"
	"github.com/couchcryptid/storm-impact-report/internal/domain"
	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
	"github.com/xuri/excelize/v2"
)

type options struct {
	source      string
	encoding    string
	countries   []string
	csvOut      string
	xlsxOut     string
	minYear     int
	maxYear     int
	minAffected float64
}

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		log.Fatal(err)
	}
}

func run(args []string, w io.Writer) error {
	opts, err := parseFlags(args)
	if err != nil {
		return err
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	loader := emdat.NewLoader(emdat.Config{Path: opts.source, Encoding: opts.encoding}, logger)

	var combined domain.DisasterTable
	perCountry := make(map[string]domain.DisasterTable, len(opts.countries))
	for _, cc := range opts.countries {
		tbl, err := loader.Load(context.Background(), cc)
		if err != nil {
			return fmt.Errorf("load %s: %w", cc, err)
		}
		log.Printf("%s: %d rows", cc, len(tbl.Events))
		combined.Columns = tbl.Columns
		combined.Events = append(combined.Events, tbl.Events...)
		perCountry[cc] = tbl
	}
	if len(combined.Events) == 0 {
		return errors.New("no rows found for the requested countries")
	}
	log.Printf("total: %d rows", len(combined.Events))

	if err := writeCSV(opts.csvOut, combined); err != nil {
		return fmt.Errorf("writing csv fixture: %w", err)
	}
	log.Printf("wrote csv fixture: %s", opts.csvOut)

	if opts.xlsxOut != "" {
		if err := writeXLSX(opts.xlsxOut, combined); err != nil {
			return fmt.Errorf("writing xlsx fixture: %w", err)
		}
		log.Printf("wrote xlsx fixture: %s", opts.xlsxOut)
	}

	filter := domain.MajorHurricanes(opts.minYear, opts.maxYear, opts.minAffected)
	return printStats(w, opts.countries, perCountry, filter)
}

func parseFlags(args []string) (options, error) {
	fs := flag.NewFlagSet("genmock", flag.ContinueOnError)
	source := fs.String("source", "", "full EM-DAT export (.csv or .xlsx)")
	encoding := fs.String("encoding", emdat.EncodingUTF8, "character encoding of a CSV source")
	countries := fs.String("countries", "PRI", "comma separated ISO3 codes to keep")
	csvOut := fs.String("csv-out", "", "output path for the trimmed CSV fixture")
	xlsxOut := fs.String("xlsx-out", "", "optional output path for an XLSX copy")
	minYear := fs.Int("min-year", 2000, "first year of the hurricane window")
	maxYear := fs.Int("max-year", 2023, "last year of the hurricane window")
	minAffected := fs.Float64("min-affected", domain.DefaultMinTotalAffected, "minimum total affected")
	if err := fs.Parse(args); err != nil {
		return options{}, err
	}
	if *source == "" || *csvOut == "" {
		fs.Usage()
		return options{}, errors.New("missing required flags: -source, -csv-out")
	}

	var ccs []string
	for _, cc := range strings.Split(*countries, ",") {
		if cc = strings.ToUpper(strings.TrimSpace(cc)); cc != "" {
			ccs = append(ccs, cc)
		}
	}
	if len(ccs) == 0 {
		return options{}, errors.New("no countries given")
	}

	return options{
		source:      *source,
		encoding:    *encoding,
		countries:   ccs,
		csvOut:      *csvOut,
		xlsxOut:     *xlsxOut,
		minYear:     *minYear,
		maxYear:     *maxYear,
		minAffected: *minAffected,
	}, nil
}

func records(t domain.DisasterTable) [][]string {
	out := make([][]string, 0, len(t.Events)+1)
	out = append(out, t.Columns)
	for _, e := range t.Events {
		out = append(out, e.Record)
	}
	return out
}

func writeCSV(path string, t domain.DisasterTable) (err error) {
	df := dataframe.LoadRecords(records(t),
		dataframe.DetectTypes(false),
		dataframe.DefaultType(series.String),
	)
	if df.Err != nil {
		return df.Err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() { err = errors.Join(err, f.Close()) }()
	return df.WriteCSV(f)
}

func writeXLSX(path string, t domain.DisasterTable) (err error) {
	f := excelize.NewFile()
	defer func() { err = errors.Join(err, f.Close()) }()

	if err := f.SetSheetName("Sheet1", emdat.DefaultSheet); err != nil {
		return err
	}
	for i, row := range records(t) {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(emdat.DefaultSheet, cell, &row); err != nil {
			return err
		}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return f.SaveAs(path)
}

type typeCount struct {
	name  string
	count int
}

func printStats(w io.Writer, countries []string, tables map[string]domain.DisasterTable, filter domain.DisasterFilter) error {
	fmt.Fprintln(w, "=== Stats for updating test assertions ===")
	fmt.Fprintf(w, "Hurricane filter: %d-%d, %s >= %g, affected >= %g\n",
		filter.MinYear, filter.MaxYear, filter.MagnitudeScale, filter.MinMagnitude, filter.MinTotalAffected)

	for _, cc := range countries {
		tbl := tables[cc]
		fmt.Fprintf(w, "\n%s: %d rows\n", cc, len(tbl.Events))
		printTypeBreakdown(w, tbl)

		kept, err := domain.TransformDisasters(tbl, filter)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "  Retained: %d\n", len(kept.Events))
		for _, e := range kept.Events {
			fmt.Fprintf(w, "    %s %d %s=%g affected=%g aid=%t\n",
				e.Label(), e.StartYear, e.MagnitudeScale, e.Magnitude, e.TotalAffected, e.AidRecorded)
		}
	}
	return nil
}

func printTypeBreakdown(w io.Writer, tbl domain.DisasterTable) {
	counts := map[string]int{}
	for _, e := range tbl.Events {
		counts[e.DisasterType]++
	}
	tc := make([]typeCount, 0, len(counts))
	for name, c := range counts {
		tc = append(tc, typeCount{name, c})
	}
	sort.Slice(tc, func(i, j int) bool {
		if tc[i].count != tc[j].count {
			return tc[i].count > tc[j].count
		}
		return tc[i].name < tc[j].name
	})
	fmt.Fprint(w, "  By type:")
	for _, t := range tc {
		fmt.Fprintf(w, " %s=%d", t.name, t.count)
	}
	fmt.Fprintln(w)
}
