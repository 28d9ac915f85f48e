package pipeline

import (
	"fmt"
	"time"

	"github.com/couchcryptid/storm-impact-report/internal/domain"
)

// transform applies the indicator and disaster filters and optionally saves
// the results.
func (p *Pipeline) transform(opts Options, indicators domain.IndicatorTable, disasters domain.DisasterTable, summary *domain.RunSummary) (domain.IndicatorTable, domain.DisasterTable, error) {
	log := p.logger.With("stage", "transform")
	defer p.observe("transform", time.Now())

	out, stats, err := domain.TransformIndicators(indicators, opts.Indicators)
	if err != nil {
		return domain.IndicatorTable{}, domain.DisasterTable{}, fmt.Errorf("transform indicators: %w", err)
	}
	p.metrics.RowsDropped.WithLabelValues("sparse").Add(float64(stats.DroppedSparse))
	p.metrics.RowsDropped.WithLabelValues("all_zero").Add(float64(stats.DroppedAllZero))
	p.metrics.IndicatorRows.WithLabelValues(string(domain.StageTransformed)).Set(float64(stats.OutputRows))
	summary.IndicatorsRetained = stats.OutputRows

	log.Info("dropped sparse indicators",
		"dropped", stats.DroppedSparse,
		"threshold", opts.Indicators.Threshold(len(out.Years)),
		"years", len(out.Years),
	)
	log.Info("dropped all-zero indicators", "dropped", stats.DroppedAllZero)
	if stats.Filled == 0 {
		log.Info("no missing values found, skipping gap fill")
	} else {
		log.Info("filled missing values", "rows", stats.Filled)
	}
	log.Info("indicators transformed", "input", stats.InputRows, "output", stats.OutputRows)

	events, err := domain.TransformDisasters(disasters, opts.Disasters)
	if err != nil {
		return domain.IndicatorTable{}, domain.DisasterTable{}, fmt.Errorf("transform disasters: %w", err)
	}
	p.metrics.DisasterEvents.WithLabelValues(string(domain.StageTransformed)).Set(float64(len(events.Events)))
	summary.DisasterEventsRetained = len(events.Events)
	log.Info("disaster events transformed",
		"input", len(disasters.Events),
		"output", len(events.Events),
		"scale", opts.Disasters.MagnitudeScale,
		"min_magnitude", opts.Disasters.MinMagnitude,
		"min_affected", opts.Disasters.MinTotalAffected,
	)

	if opts.SaveTransformed {
		if err := p.export(domain.StageTransformed, opts.Country, out, events, summary); err != nil {
			return domain.IndicatorTable{}, domain.DisasterTable{}, err
		}
	}
	return out, events, nil
}
