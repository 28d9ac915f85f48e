package report

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/couchcryptid/storm-impact-report/internal/domain"
)

// Path returns dir/timeseries_reports/<country>_timeseries_report.pdf.
func Path(dir, country string) string {
	return filepath.Join(dir, "timeseries_reports", country+"_timeseries_report.pdf")
}

// Writer renders a full report to a PDF file.
type Writer struct {
	gen    *Generator
	dir    string
	logger *slog.Logger
}

// NewWriter creates a Writer that saves reports under dir.
func NewWriter(gen *Generator, dir string, logger *slog.Logger) *Writer {
	return &Writer{gen: gen, dir: dir, logger: logger}
}

// Render draws every indicator page and saves the document. Page failures
// are reported in the Result; file errors are returned.
func (w *Writer) Render(ctx context.Context, country string, indicators domain.IndicatorTable, disasters domain.DisasterTable) (Result, error) {
	surface := NewPDFSurface()
	res, err := w.gen.Generate(ctx, country, indicators, disasters, surface)
	if err != nil {
		return res, err
	}
	if surface.Pages() == 0 {
		w.logger.Warn("report has no rendered pages", "country", country)
	}

	path := Path(w.dir, country)
	if err := save(path, surface); err != nil {
		return res, err
	}
	res.Path = path
	w.logger.Info("saved timeseries report", "country", country, "path", path, "pages", surface.Pages())
	return res, nil
}

func save(path string, s *PDFSurface) (err error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create report dir: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create report: %w", err)
	}
	defer func() {
		err = errors.Join(err, f.Close())
	}()
	if _, err := s.WriteTo(f); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	return nil
}
