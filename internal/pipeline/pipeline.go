package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/couchcryptid/storm-impact-report/internal/adapter/export"
	"github.com/couchcryptid/storm-impact-report/internal/domain"
	"github.com/couchcryptid/storm-impact-report/internal/observability"
	"github.com/couchcryptid/storm-impact-report/internal/report"
)

// DisasterSource reads the disaster events recorded for one country.
type DisasterSource interface {
	Load(ctx context.Context, country string) (domain.DisasterTable, error)
}

// Exporter writes intermediate tables to disk and returns the file path.
type Exporter interface {
	ExportIndicators(stage domain.Stage, country string, t domain.IndicatorTable) (string, error)
	ExportDisasters(stage domain.Stage, country string, t domain.DisasterTable) (string, error)
}

// Reporter renders the final chart report.
type Reporter interface {
	Render(ctx context.Context, country string, indicators domain.IndicatorTable, disasters domain.DisasterTable) (report.Result, error)
}

// Notifier announces a finished run.
type Notifier interface {
	Publish(ctx context.Context, summary domain.RunSummary) error
}

// Stages wires the pipeline's collaborators. Exporter and Notifier are
// optional.
type Stages struct {
	Provider       domain.IndicatorProvider
	ProviderConfig domain.ProviderConfig
	Disasters      DisasterSource
	Exporter       Exporter
	Reporter       Reporter
	Notifier       Notifier
}

// Options selects the country and filters for one run.
type Options struct {
	Country         string
	Indicators      domain.IndicatorFilter
	Disasters       domain.DisasterFilter
	SaveExtracted   bool
	SaveTransformed bool
}

// Run stages reported by Status.
const (
	StageIdle      = "idle"
	StageExtract   = "extract"
	StageTransform = "transform"
	StageReport    = "report"
	StagePublish   = "publish"
	StageFinished  = "finished"
	StageFailed    = "failed"
)

// Status is a snapshot of the run in progress.
type Status struct {
	Country   string    `json:"country,omitempty"`
	Stage     string    `json:"stage"`
	StartedAt time.Time `json:"started_at,omitzero"`
	Error     string    `json:"error,omitempty"`
}

// Pipeline runs extract, transform, report and publish for one country.
type Pipeline struct {
	stages  Stages
	logger  *slog.Logger
	metrics *observability.Metrics
	status  atomic.Pointer[Status]
}

// New creates a Pipeline with the given stages and observability.
func New(stages Stages, logger *slog.Logger, metrics *observability.Metrics) *Pipeline {
	p := &Pipeline{
		stages:  stages,
		logger:  logger,
		metrics: metrics,
	}
	p.status.Store(&Status{Stage: StageIdle})
	return p
}

// Status returns the current stage of the run.
func (p *Pipeline) Status() Status {
	return *p.status.Load()
}

// CheckReadiness returns nil once the current run holds its source data, that
// is from the end of extraction until the run finishes. A failed run is not
// ready.
func (p *Pipeline) CheckReadiness(_ context.Context) error {
	st := p.Status()
	switch st.Stage {
	case StageTransform, StageReport, StagePublish, StageFinished:
		return nil
	case StageFailed:
		return fmt.Errorf("report run failed: %s", st.Error)
	default:
		return errors.New("source data not extracted yet")
	}
}

func (p *Pipeline) enter(summary *domain.RunSummary, stage string) {
	p.status.Store(&Status{Country: summary.Country, Stage: stage, StartedAt: summary.StartedAt})
}

func (p *Pipeline) fail(summary *domain.RunSummary, err error) error {
	p.status.Store(&Status{Country: summary.Country, Stage: StageFailed, StartedAt: summary.StartedAt, Error: err.Error()})
	return err
}

// Run executes every stage in order. The returned summary is filled in as far
// as the run got, even on error.
func (p *Pipeline) Run(ctx context.Context, opts Options) (domain.RunSummary, error) {
	summary := domain.NewRunSummary(opts.Country, opts.Indicators.MinYear, opts.Indicators.MaxYear)
	p.logger.Info("pipeline started",
		"country", opts.Country,
		"min_year", opts.Indicators.MinYear,
		"max_year", opts.Indicators.MaxYear,
	)
	p.metrics.PipelineRunning.Set(1)
	defer p.metrics.PipelineRunning.Set(0)

	p.enter(&summary, StageExtract)
	indicators, disasters, err := p.extract(ctx, opts, &summary)
	if err != nil {
		return summary, p.fail(&summary, err)
	}
	p.enter(&summary, StageTransform)
	indicators, disasters, err = p.transform(opts, indicators, disasters, &summary)
	if err != nil {
		return summary, p.fail(&summary, err)
	}
	p.enter(&summary, StageReport)
	if err := p.report(ctx, opts.Country, indicators, disasters, &summary); err != nil {
		return summary, p.fail(&summary, err)
	}

	summary.Finish()
	p.metrics.LastSuccess.Set(float64(summary.FinishedAt.Unix()))
	p.enter(&summary, StagePublish)
	p.publish(ctx, summary)
	p.enter(&summary, StageFinished)

	p.logger.Info("pipeline finished",
		"country", opts.Country,
		"duration", summary.Duration(),
		"report", summary.ReportPath,
	)
	return summary, nil
}

func (p *Pipeline) extract(ctx context.Context, opts Options, summary *domain.RunSummary) (domain.IndicatorTable, domain.DisasterTable, error) {
	log := p.logger.With("stage", "extract")
	defer p.observe("extract", time.Now())

	log.Info("fetching indicators", "country", opts.Country, "source", p.stages.ProviderConfig.SourceID)
	res, err := domain.FetchIndicatorTable(ctx, p.stages.Provider, p.stages.ProviderConfig, opts.Country, log)
	for _, b := range res.Batches {
		outcome := "success"
		if b.Err != nil {
			outcome = "error"
		}
		p.metrics.FetchBatches.WithLabelValues(outcome).Inc()
	}
	summary.FetchBatches = len(res.Batches)
	summary.FailedBatches = res.FailedBatches()
	if err != nil {
		return domain.IndicatorTable{}, domain.DisasterTable{}, fmt.Errorf("fetch indicators: %w", err)
	}
	summary.IndicatorsFetched = len(res.Table.Rows)
	p.metrics.IndicatorRows.WithLabelValues(string(domain.StageExtracted)).Set(float64(len(res.Table.Rows)))
	log.Info("indicators fetched",
		"indicators", len(res.Table.Rows),
		"years", len(res.Table.Years),
		"batches", len(res.Batches),
		"failed_batches", summary.FailedBatches,
	)

	disasters, err := p.stages.Disasters.Load(ctx, opts.Country)
	if err != nil {
		return domain.IndicatorTable{}, domain.DisasterTable{}, fmt.Errorf("load disasters: %w", err)
	}
	summary.DisasterEventsLoaded = len(disasters.Events)
	p.metrics.DisasterEvents.WithLabelValues(string(domain.StageExtracted)).Set(float64(len(disasters.Events)))
	if len(disasters.Events) == 0 {
		log.Error("no disaster events found for country", "country", opts.Country)
	} else {
		log.Info("disaster events loaded", "events", len(disasters.Events))
	}

	if opts.SaveExtracted {
		if err := p.export(domain.StageExtracted, opts.Country, res.Table, disasters, summary); err != nil {
			return domain.IndicatorTable{}, domain.DisasterTable{}, err
		}
	}
	return res.Table, disasters, nil
}

func (p *Pipeline) report(ctx context.Context, country string, indicators domain.IndicatorTable, disasters domain.DisasterTable, summary *domain.RunSummary) error {
	log := p.logger.With("stage", "report")
	defer p.observe("report", time.Now())

	res, err := p.stages.Reporter.Render(ctx, country, indicators, disasters)
	for _, s := range []report.PageStatus{report.PageRendered, report.PageSkipped, report.PageFailed} {
		if n := res.Count(s); n > 0 {
			p.metrics.ReportPages.WithLabelValues(s.String()).Add(float64(n))
		}
	}
	summary.PagesRendered = res.Count(report.PageRendered)
	summary.PagesSkipped = res.Count(report.PageSkipped)
	summary.PagesFailed = res.Count(report.PageFailed)
	if err != nil {
		return fmt.Errorf("render report: %w", err)
	}
	summary.ReportPath = res.Path
	log.Info("report rendered",
		"path", res.Path,
		"rendered", summary.PagesRendered,
		"skipped", summary.PagesSkipped,
		"failed", summary.PagesFailed,
	)
	return nil
}

// publish announces the run. A failed notification does not fail the run.
func (p *Pipeline) publish(ctx context.Context, summary domain.RunSummary) {
	if p.stages.Notifier == nil {
		return
	}
	log := p.logger.With("stage", "publish")
	defer p.observe("publish", time.Now())

	if err := p.stages.Notifier.Publish(ctx, summary); err != nil {
		log.Warn("publish run summary failed", "error", err)
		return
	}
	log.Info("run summary published")
}

func (p *Pipeline) export(stage domain.Stage, country string, indicators domain.IndicatorTable, disasters domain.DisasterTable, summary *domain.RunSummary) error {
	if p.stages.Exporter == nil {
		return nil
	}
	path, err := p.stages.Exporter.ExportIndicators(stage, country, indicators)
	if err != nil {
		return fmt.Errorf("export %s indicators: %w", stage, err)
	}
	summary.Exports[exportKey(stage, export.DatasetIndicators)] = path

	path, err = p.stages.Exporter.ExportDisasters(stage, country, disasters)
	if err != nil {
		return fmt.Errorf("export %s disasters: %w", stage, err)
	}
	summary.Exports[exportKey(stage, export.DatasetDisasters)] = path
	return nil
}

func exportKey(stage domain.Stage, dataset string) string {
	return string(stage) + "_" + dataset
}

func (p *Pipeline) observe(stage string, start time.Time) {
	p.metrics.StageDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds())
}
