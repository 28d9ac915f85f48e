// Package export writes indicator and disaster tables as flat CSV files, with
// optional XLSX copies, under per-stage directories.
package export

import (
	"errors"
	"fmt"
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
)

// Dataset tags used in file names.
const (
	DatasetIndicators = "WDI"
	DatasetDisasters  = "EMDAT"
)

// Config controls where and how tables are written.
type Config struct {
	Dir  string
	XLSX bool
}

// Writer exports tables under Dir/<stage>/.
type Writer struct {
	dir    string
	xlsx   bool
	logger *slog.Logger
}

// NewWriter creates a Writer.
func NewWriter(cfg Config, logger *slog.Logger) *Writer {
	return &Writer{dir: cfg.Dir, xlsx: cfg.XLSX, logger: logger}
}

// Path returns the CSV path for a dataset at a stage, e.g.
//
//	data/extracted/PRI_WDI_data.csv
//	data/transformed/PRI_EMDAT_transformed.csv
func Path(dir string, stage domain.Stage, country, dataset string) string {
	suffix := "data"
	if stage == domain.StageTransformed {
		suffix = "transformed"
	}
	return filepath.Join(dir, string(stage), fmt.Sprintf("%s_%s_%s.csv", country, dataset, suffix))
}

// ExportIndicators writes an indicator table and returns the CSV path.
// Missing values are written as empty cells.
func (w *Writer) ExportIndicators(stage domain.Stage, country string, t domain.IndicatorTable) (string, error) {
	header := append(append([]string(nil), t.Identity...), t.YearLabels()...)
	cols := make([][]string, len(header))
	for _, r := range t.Rows {
		for i, id := range t.Identity {
			cols[i] = append(cols[i], r.Identity(id))
		}
		for j, v := range r.Values {
			cols[len(t.Identity)+j] = append(cols[len(t.Identity)+j], FormatValue(v))
		}
	}
	return w.write(stage, country, DatasetIndicators, header, cols)
}

// ExportDisasters writes the disaster table with its source columns and
// returns the CSV path.
func (w *Writer) ExportDisasters(stage domain.Stage, country string, t domain.DisasterTable) (string, error) {
	cols := make([][]string, len(t.Columns))
	for _, e := range t.Events {
		for i := range t.Columns {
			v := ""
			if i < len(e.Record) {
				v = e.Record[i]
			}
			cols[i] = append(cols[i], v)
		}
	}
	return w.write(stage, country, DatasetDisasters, t.Columns, cols)
}

func (w *Writer) write(stage domain.Stage, country, dataset string, header []string, cols [][]string) (string, error) {
	if len(header) == 0 {
		return "", fmt.Errorf("export %s %s: no columns", stage, dataset)
	}
	list := make([]series.Series, len(header))
	for i, name := range header {
		values := cols[i]
		if values == nil {
			values = []string{}
		}
		list[i] = series.New(values, series.String, name)
	}
	df := dataframe.New(list...)
	if df.Err != nil {
		return "", fmt.Errorf("build %s frame: %w", dataset, df.Err)
	}

	path := Path(w.dir, stage, country, dataset)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("create export dir: %w", err)
	}
	if err := writeCSV(path, df); err != nil {
		return "", err
	}
	w.logger.Info("table exported", "dataset", dataset, "stage", string(stage), "path", path, "rows", df.Nrow())

	if w.xlsx {
		xpath := strings.TrimSuffix(path, ".csv") + ".xlsx"
		if err := writeXLSX(xpath, dataset, header, cols); err != nil {
			return "", err
		}
		w.logger.Debug("workbook exported", "path", xpath)
	}
	return path, nil
}

func writeCSV(path string, df dataframe.DataFrame) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer func() {
		err = errors.Join(err, f.Close())
	}()
	if err := df.WriteCSV(f); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

func writeXLSX(path, sheet string, header []string, cols [][]string) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return fmt.Errorf("name sheet: %w", err)
	}
	for i, name := range header {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(sheet, cell, name); err != nil {
			return fmt.Errorf("write header: %w", err)
		}
	}
	for c, values := range cols {
		for r, v := range values {
			if v == "" {
				continue
			}
			cell, _ := excelize.CoordinatesToCellName(c+1, r+2)
			var val any = v
			if n, err := strconv.ParseFloat(v, 64); err == nil {
				val = n
			}
			if err := f.SetCellValue(sheet, cell, val); err != nil {
				return fmt.Errorf("write cell %s: %w", cell, err)
			}
		}
	}
	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("save %s: %w", path, err)
	}
	return nil
}

// FormatValue renders a float with the shortest exact representation. NaN
// becomes an empty string.
func FormatValue(v float64) string {
	if math.IsNaN(v) {
		return ""
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}
