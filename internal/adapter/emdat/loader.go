// Package emdat reads the EM-DAT disaster table from a CSV or XLSX export.
package emdat

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/couchcryptid/storm-impact-report/internal/domain"
	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
	"github.com/xuri/excelize/v2"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// Supported CSV encodings.
const (
	EncodingUTF8        = "utf-8"
	EncodingWindows1252 = "windows-1252"
	EncodingISO88591    = "iso-8859-1"
)

// DefaultSheet is the worksheet name of EM-DAT's XLSX download.
const DefaultSheet = "EM-DAT Data"

// Config locates the source file.
type Config struct {
	Path     string
	Encoding string
	// Sheet is only read for .xlsx sources.
	Sheet string
}

// Loader implements the disaster source for one EM-DAT export file.
type Loader struct {
	path     string
	encoding string
	sheet    string
	logger   *slog.Logger
}

// NewLoader creates a Loader.
func NewLoader(cfg Config, logger *slog.Logger) *Loader {
	if cfg.Encoding == "" {
		cfg.Encoding = EncodingUTF8
	}
	if cfg.Sheet == "" {
		cfg.Sheet = DefaultSheet
	}
	return &Loader{
		path:     cfg.Path,
		encoding: strings.ToLower(cfg.Encoding),
		sheet:    cfg.Sheet,
		logger:   logger,
	}
}

// Load reads the source file and returns the rows whose ISO column equals
// country exactly. A missing file returns domain.ErrMissingSourceFile.
func (l *Loader) Load(ctx context.Context, country string) (domain.DisasterTable, error) {
	if err := ctx.Err(); err != nil {
		return domain.DisasterTable{}, err
	}
	if _, err := os.Stat(l.path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return domain.DisasterTable{}, fmt.Errorf("%w: %s", domain.ErrMissingSourceFile, l.path)
		}
		return domain.DisasterTable{}, fmt.Errorf("stat disaster source: %w", err)
	}

	var (
		df  dataframe.DataFrame
		err error
	)
	if strings.EqualFold(filepath.Ext(l.path), ".xlsx") {
		df, err = l.readXLSX()
	} else {
		df, err = l.readCSV()
	}
	if err != nil {
		return domain.DisasterTable{}, err
	}
	if err := requireColumns(df.Names()); err != nil {
		return domain.DisasterTable{}, err
	}

	total := df.Nrow()
	if total > 0 {
		df = df.Filter(dataframe.F{Colname: domain.ColISO, Comparator: series.Eq, Comparando: country})
		if df.Err != nil {
			return domain.DisasterTable{}, fmt.Errorf("filter disaster rows: %w", df.Err)
		}
	}
	l.logger.Debug("disaster source read", "path", l.path, "rows", total, "country_rows", df.Nrow())

	return toTable(df), nil
}

func (l *Loader) readCSV() (dataframe.DataFrame, error) {
	f, err := os.Open(l.path)
	if err != nil {
		return dataframe.DataFrame{}, fmt.Errorf("open disaster source: %w", err)
	}
	defer f.Close()

	dec, err := decoder(l.encoding)
	if err != nil {
		return dataframe.DataFrame{}, err
	}
	// The header is read as a data row so a file with no events still parses.
	raw := dataframe.ReadCSV(transform.NewReader(f, dec.NewDecoder()),
		dataframe.HasHeader(false),
		dataframe.DetectTypes(false),
		dataframe.DefaultType(series.String),
		dataframe.WithLazyQuotes(true),
	)
	if raw.Err != nil {
		return dataframe.DataFrame{}, fmt.Errorf("parse disaster csv: %w", raw.Err)
	}
	return frameFromRows(raw.Records()[1:])
}

func (l *Loader) readXLSX() (dataframe.DataFrame, error) {
	f, err := excelize.OpenFile(l.path)
	if err != nil {
		return dataframe.DataFrame{}, fmt.Errorf("open disaster workbook: %w", err)
	}
	defer f.Close()

	sheet := l.sheet
	if idx, _ := f.GetSheetIndex(sheet); idx < 0 {
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			return dataframe.DataFrame{}, errors.New("disaster workbook has no sheets")
		}
		l.logger.Warn("sheet not found, reading first sheet", "sheet", sheet, "using", sheets[0])
		sheet = sheets[0]
	}

	rows, err := f.GetRows(sheet)
	if err != nil {
		return dataframe.DataFrame{}, fmt.Errorf("read sheet %q: %w", sheet, err)
	}
	if len(rows) == 0 {
		return dataframe.DataFrame{}, fmt.Errorf("sheet %q is empty", sheet)
	}

	// GetRows trims trailing empty cells, so pad every row to the header width.
	width := len(rows[0])
	for i, r := range rows {
		if len(r) < width {
			rows[i] = append(r, make([]string, width-len(r))...)
		} else if len(r) > width {
			rows[i] = r[:width]
		}
	}

	return frameFromRows(rows)
}

// frameFromRows builds a string frame from a header row and data rows. A
// header with no data rows yields an empty frame with those columns.
func frameFromRows(rows [][]string) (dataframe.DataFrame, error) {
	if len(rows) == 0 {
		return dataframe.DataFrame{}, errors.New("disaster source has no header")
	}
	var df dataframe.DataFrame
	if len(rows) == 1 {
		cols := make([]series.Series, len(rows[0]))
		for i, name := range rows[0] {
			cols[i] = series.New([]string{}, series.String, name)
		}
		df = dataframe.New(cols...)
	} else {
		df = dataframe.LoadRecords(rows,
			dataframe.DetectTypes(false),
			dataframe.DefaultType(series.String),
		)
	}
	if df.Err != nil {
		return dataframe.DataFrame{}, fmt.Errorf("load disaster rows: %w", df.Err)
	}
	return df, nil
}

func decoder(name string) (encoding.Encoding, error) {
	switch name {
	case EncodingUTF8, "utf8":
		return unicode.UTF8BOM, nil
	case EncodingWindows1252, "cp1252":
		return charmap.Windows1252, nil
	case EncodingISO88591, "latin1", "latin-1":
		return charmap.ISO8859_1, nil
	default:
		return nil, fmt.Errorf("unsupported encoding %q", name)
	}
}

func requireColumns(names []string) error {
	have := make(map[string]bool, len(names))
	for _, n := range names {
		have[n] = true
	}
	var missing []string
	for _, c := range domain.RequiredDisasterColumns {
		if !have[c] {
			missing = append(missing, c)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("disaster source missing columns: %s", strings.Join(missing, ", "))
	}
	return nil
}

func toTable(df dataframe.DataFrame) domain.DisasterTable {
	records := df.Records()
	header := records[0]
	col := make(map[string]int, len(header))
	for i, name := range header {
		col[name] = i
	}
	get := func(rec []string, name string) string {
		i, ok := col[name]
		if !ok {
			return ""
		}
		v := strings.TrimSpace(rec[i])
		if v == "NaN" {
			return ""
		}
		return v
	}

	table := domain.DisasterTable{Columns: header}
	for _, rec := range records[1:] {
		for i, v := range rec {
			if v == "NaN" {
				rec[i] = ""
			}
		}
		table.Events = append(table.Events, domain.DisasterEvent{
			ID:              get(rec, domain.ColDisasterNo),
			ISO:             get(rec, domain.ColISO),
			Country:         get(rec, domain.ColCountry),
			DisasterType:    get(rec, domain.ColDisasterType),
			DisasterSubtype: get(rec, domain.ColDisasterSubtype),
			EventName:       get(rec, domain.ColEventName),
			StartYear:       parseYear(get(rec, domain.ColStartYear)),
			MagnitudeScale:  get(rec, domain.ColMagnitudeScale),
			Magnitude:       parseNumber(get(rec, domain.ColMagnitude)),
			TotalDeaths:     parseNumber(get(rec, domain.ColTotalDeaths)),
			TotalAffected:   parseNumber(get(rec, domain.ColTotalAffected)),
			AidRecorded:     strings.EqualFold(get(rec, domain.ColAidResponse), "Yes"),
			Record:          rec,
		})
	}
	return table
}

// parseNumber returns NaN for blank or unparsable cells.
func parseNumber(s string) float64 {
	s = strings.ReplaceAll(s, ",", "")
	if s == "" {
		return math.NaN()
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return math.NaN()
	}
	return v
}

func parseYear(s string) int {
	v := parseNumber(s)
	if math.IsNaN(v) {
		return 0
	}
	return int(v)
}
