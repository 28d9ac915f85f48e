// Command report fetches World Bank development indicators and EM-DAT
// disaster events for one country and renders a PDF of indicator charts
// marked with major hurricanes.
//
// Usage:
//
//	go run ./cmd/report --country PRI --min-year 2007 --max-year 2023
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/couchcryptid/storm-impact-report/internal/adapter/emdat"
	"github.com/couchcryptid/storm-impact-report/internal/adapter/export"
	"github.com/couchcryptid/storm-impact-report/internal/adapter/httpadapter"
	kafkaadapter "github.com/couchcryptid/storm-impact-report/internal/adapter/kafka"
	"github.com/couchcryptid/storm-impact-report/internal/adapter/worldbank"
	"github.com/couchcryptid/storm-impact-report/internal/config"
	"github.com/couchcryptid/storm-impact-report/internal/domain"
	"github.com/couchcryptid/storm-impact-report/internal/observability"
	"github.com/couchcryptid/storm-impact-report/internal/pipeline"
	"github.com/couchcryptid/storm-impact-report/internal/report"
	"github.com/joho/godotenv"
)

func main() {
	// A missing .env is fine; the environment may already be set.
	_ = godotenv.Load()

	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()

	var notifier pipeline.Notifier
	if len(cfg.KafkaBrokers) > 0 {
		writer := kafkaadapter.NewWriter(cfg.KafkaBrokers, cfg.KafkaTopic, logger)
		defer func() {
			if err := writer.Close(); err != nil {
				logger.Error("kafka writer close error", "error", err)
			}
		}()
		notifier = writer
		logger.Info("report notifications enabled", "topic", cfg.KafkaTopic)
	}

	var exporter pipeline.Exporter
	if cfg.SaveExtracted || cfg.SaveTransformed {
		exporter = export.NewWriter(export.Config{Dir: cfg.OutputDir, XLSX: cfg.ExportXLSX}, logger)
	}

	p := pipeline.New(pipeline.Stages{
		Provider: worldbank.NewClient(worldbank.Config{
			BaseURL:           cfg.WBBaseURL,
			Timeout:           cfg.WBTimeout,
			MaxRetries:        cfg.WBMaxRetries,
			RequestsPerSecond: cfg.WBRequestsPerSecond,
		}, metrics, logger),
		ProviderConfig: domain.ProviderConfig{
			SourceID:   cfg.WBSourceID,
			BatchSize:  cfg.WBBatchSize,
			Indicators: cfg.WBIndicators,
		},
		Disasters: emdat.NewLoader(emdat.Config{
			Path:     cfg.DisasterSourcePath,
			Encoding: cfg.DisasterSourceEncoding,
			Sheet:    cfg.DisasterSourceSheet,
		}, logger),
		Exporter: exporter,
		Reporter: report.NewWriter(report.NewGenerator(report.ExemptCountries(cfg.AidSuffixExempt...), logger), cfg.OutputDir, logger),
		Notifier: notifier,
	}, logger, metrics)

	if cfg.MetricsAddr != "" {
		srv := httpadapter.NewServer(cfg.MetricsAddr, p, metrics.Gatherer(), logger)
		go func() {
			if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("http server error", "error", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.Error("http server shutdown error", "error", err)
			}
		}()
	}

	disasters := domain.MajorHurricanes(cfg.MinYear, cfg.MaxYear, cfg.MinTotalAffected)
	disasters.MagnitudeScale = cfg.HurricaneMagnitudeScale
	disasters.MinMagnitude = cfg.HurricaneMinMagnitude

	summary, err := p.Run(ctx, pipeline.Options{
		Country: cfg.CountryCode,
		Indicators: domain.IndicatorFilter{
			MinYear:            cfg.MinYear,
			MaxYear:            cfg.MaxYear,
			MaxMissingFraction: cfg.DensityMaxMissingFraction,
		},
		Disasters:       disasters,
		SaveExtracted:   cfg.SaveExtracted,
		SaveTransformed: cfg.SaveTransformed,
	})

	if cfg.MetricsTextfile != "" {
		if werr := metrics.WriteTextfile(cfg.MetricsTextfile); werr != nil {
			logger.Error("write metrics textfile failed", "path", cfg.MetricsTextfile, "error", werr)
		}
	}

	if err != nil {
		logger.Error("pipeline failed", "country", cfg.CountryCode, "error", err)
		return err
	}
	logger.Info("pipeline completed successfully",
		"country", summary.Country,
		"indicators", summary.IndicatorsRetained,
		"hurricanes", summary.DisasterEventsRetained,
		"pages", summary.PagesRendered,
		"report", summary.ReportPath,
	)
	return nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

// fallbackLogger reports errors raised before the configured logger exists.
func fallbackLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, nil))
}
