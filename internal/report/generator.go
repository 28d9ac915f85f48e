package report

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/couchcryptid/storm-impact-report/internal/domain"
)

const progressEvery = 100

// PageStatus is the outcome of one indicator page.
type PageStatus int

const (
	PageRendered PageStatus = iota
	PageSkipped
	PageFailed
)

func (s PageStatus) String() string {
	switch s {
	case PageRendered:
		return "rendered"
	case PageSkipped:
		return "skipped"
	case PageFailed:
		return "failed"
	default:
		return fmt.Sprintf("PageStatus(%d)", int(s))
	}
}

// PageOutcome records what happened to one indicator row.
type PageOutcome struct {
	Index     int
	Indicator string
	Status    PageStatus
	Err       error
}

// Result aggregates page outcomes in row order.
type Result struct {
	Pages []PageOutcome
	// Path is set once the report has been written to disk.
	Path string
}

// Count returns the number of pages with the given status.
func (r Result) Count(status PageStatus) int {
	n := 0
	for _, p := range r.Pages {
		if p.Status == status {
			n++
		}
	}
	return n
}

// Generator turns indicator rows and disaster events into chart pages.
type Generator struct {
	aid    AidPolicy
	logger *slog.Logger
}

// NewGenerator creates a Generator. A nil policy uses DefaultAidPolicy.
func NewGenerator(aid AidPolicy, logger *slog.Logger) *Generator {
	if aid == nil {
		aid = DefaultAidPolicy
	}
	return &Generator{aid: aid, logger: logger}
}

// Generate emits one page per indicator row in order. Rows with no known
// value are skipped. A page the surface fails to draw is recorded as failed
// and does not stop the remaining pages. Only context cancellation aborts.
func (g *Generator) Generate(ctx context.Context, country string, indicators domain.IndicatorTable, disasters domain.DisasterTable, s Surface) (Result, error) {
	total := len(indicators.Rows)
	if total > 0 && len(indicators.Years) > 0 {
		g.logger.Info("meaningful indicators found",
			"country", country,
			"indicators", total,
			"min_year", indicators.Years[0],
			"max_year", indicators.Years[len(indicators.Years)-1],
		)
	}

	markers := g.markers(country, indicators, disasters)
	res := Result{Pages: make([]PageOutcome, 0, total)}
	for i, row := range indicators.Rows {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		n := i + 1
		if n%progressEvery == 0 || n == total {
			g.logger.Info("report progress", "analyzed", n, "total", total)
		}

		out := PageOutcome{Index: i, Indicator: row.IndicatorName}
		if row.AllMissing() {
			out.Status = PageSkipped
			g.logger.Warn("skipping indicator with no data", "indicator", row.IndicatorName)
			res.Pages = append(res.Pages, out)
			continue
		}

		spec := ChartSpec{
			Title:   chartTitle(country, row.IndicatorName),
			XLabel:  "Year",
			YLabel:  "Value",
			Years:   indicators.Years,
			Values:  row.Values,
			Markers: markers,
		}
		if err := addPage(s, spec); err != nil {
			out.Status = PageFailed
			out.Err = fmt.Errorf("%w: %s: %w", domain.ErrRenderFailure, row.IndicatorName, err)
			g.logger.Error("failed to plot indicator", "indicator", row.IndicatorName, "error", err)
		}
		res.Pages = append(res.Pages, out)
	}
	return res, nil
}

// markers places one line per event whose start year is a chart column.
// Colours follow the event's position in the table, cycling a palette sized
// by the number of distinct event labels.
func (g *Generator) markers(country string, indicators domain.IndicatorTable, disasters domain.DisasterTable) []Marker {
	palette := Palette(len(disasters.DistinctLabels()))
	if len(palette) == 0 {
		return nil
	}
	withSuffix := g.aid(country)

	var out []Marker
	for i, e := range disasters.Events {
		if !indicators.HasYear(e.StartYear) {
			continue
		}
		label := e.Label()
		if withSuffix {
			label += aidSuffix(e.AidRecorded)
		}
		out = append(out, Marker{
			Year:  e.StartYear,
			Label: label,
			Color: palette[i%len(palette)],
		})
	}
	return out
}

// addPage converts a surface panic into an error.
func addPage(s Surface, spec ChartSpec) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return s.AddPage(spec)
}
