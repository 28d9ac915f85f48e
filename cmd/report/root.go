package main

import (
	"strings"

	"github.com/couchcryptid/storm-impact-report/internal/config"
	"github.com/spf13/cobra"
)

type flags struct {
	configFile  string
	country     string
	minYear     int
	maxYear     int
	minAffected float64
	outputDir   string
}

func newRootCmd() *cobra.Command {
	var f flags
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Render hurricane-annotated development indicator charts for one country",
		Long: `report downloads World Bank development indicators for a country, loads
the EM-DAT disaster table, keeps the dense indicators and the major
hurricanes, and writes one chart page per indicator to a PDF.

Settings come from the environment (and .env), then the --config YAML file,
then flags.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd, f)
			if err != nil {
				fallbackLogger().Error("failed to load config", "error", err)
				return err
			}
			ctx, stop := signalContext()
			defer stop()
			return run(ctx, cfg)
		},
	}

	fs := cmd.Flags()
	fs.StringVar(&f.configFile, "config", "", "YAML config file (env CONFIG_FILE)")
	fs.StringVar(&f.country, "country", "", "ISO3 country code (env COUNTRY_CODE)")
	fs.IntVar(&f.minYear, "min-year", 0, "first year of the analysis window (env MIN_YEAR)")
	fs.IntVar(&f.maxYear, "max-year", 0, "last year of the analysis window (env MAX_YEAR)")
	fs.Float64Var(&f.minAffected, "min-affected", 0, "minimum total affected people per event (env MIN_TOTAL_AFFECTED)")
	fs.StringVar(&f.outputDir, "output-dir", "", "root directory for exports and reports (env OUTPUT_DIR)")
	return cmd
}

// loadConfig layers environment, YAML file and explicitly set flags.
func loadConfig(cmd *cobra.Command, f flags) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	path := f.configFile
	if path == "" {
		path = cfg.ConfigFile
	}
	if path != "" {
		if err := cfg.ApplyFile(path); err != nil {
			return nil, err
		}
	}

	changed := cmd.Flags().Changed
	if changed("country") {
		cfg.CountryCode = strings.ToUpper(strings.TrimSpace(f.country))
	}
	if changed("min-year") {
		cfg.MinYear = f.minYear
	}
	if changed("max-year") {
		cfg.MaxYear = f.maxYear
	}
	if changed("min-affected") {
		cfg.MinTotalAffected = f.minAffected
	}
	if changed("output-dir") {
		cfg.OutputDir = f.outputDir
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
