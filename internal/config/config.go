package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
	"gopkg.in/yaml.v3"
)

// Config holds all run settings, populated from environment variables and an
// optional YAML file.
type Config struct {
	CountryCode      string
	MinYear          int
	MaxYear          int
	MinTotalAffected float64

	HurricaneMinMagnitude     float64
	HurricaneMagnitudeScale   string
	DensityMaxMissingFraction float64

	// World Bank provider configuration.
	WBBaseURL           string
	WBSourceID          int
	WBBatchSize         int
	WBIndicators        []string
	WBTimeout           time.Duration
	WBMaxRetries        int
	WBRequestsPerSecond float64

	DisasterSourcePath     string
	DisasterSourceEncoding string
	DisasterSourceSheet    string

	OutputDir       string
	SaveExtracted   bool
	SaveTransformed bool
	ExportXLSX      bool
	AidSuffixExempt []string

	// ConfigFile is an optional YAML overlay applied by the command.
	ConfigFile      string
	LogLevel        string
	LogFormat       string
	MetricsAddr     string
	MetricsTextfile string
	ShutdownTimeout time.Duration

	KafkaBrokers []string
	KafkaTopic   string
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		CountryCode:             strings.ToUpper(sharedcfg.EnvOrDefault("COUNTRY_CODE", "PRI")),
		HurricaneMagnitudeScale: sharedcfg.EnvOrDefault("HURRICANE_MAGNITUDE_SCALE", "Kph"),
		WBBaseURL:               strings.TrimRight(sharedcfg.EnvOrDefault("WB_BASE_URL", "https://api.worldbank.org/v2"), "/"),
		WBIndicators:            splitList(os.Getenv("WB_INDICATORS")),
		DisasterSourcePath:      sharedcfg.EnvOrDefault("DISASTER_SOURCE_PATH", "data/raw/EMDAT_complete.csv"),
		DisasterSourceEncoding:  strings.ToLower(sharedcfg.EnvOrDefault("DISASTER_SOURCE_ENCODING", "utf-8")),
		DisasterSourceSheet:     sharedcfg.EnvOrDefault("DISASTER_SOURCE_SHEET", "EM-DAT Data"),
		OutputDir:               sharedcfg.EnvOrDefault("OUTPUT_DIR", "data"),
		AidSuffixExempt:         splitList(sharedcfg.EnvOrDefault("AID_SUFFIX_EXEMPT", "PRI,USA")),
		ConfigFile:              os.Getenv("CONFIG_FILE"),
		LogLevel:                sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:               sharedcfg.EnvOrDefault("LOG_FORMAT", "text"),
		MetricsAddr:             os.Getenv("METRICS_ADDR"),
		MetricsTextfile:         os.Getenv("METRICS_TEXTFILE"),
		ShutdownTimeout:         shutdownTimeout,
		KafkaTopic:              sharedcfg.EnvOrDefault("KAFKA_TOPIC", "storm-impact-reports"),
	}
	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		cfg.KafkaBrokers = sharedcfg.ParseBrokers(brokers)
	}

	ints := []struct {
		key  string
		def  string
		dest *int
	}{
		{"MIN_YEAR", "2007", &cfg.MinYear},
		{"MAX_YEAR", "2023", &cfg.MaxYear},
		{"WB_SOURCE_ID", "2", &cfg.WBSourceID},
		{"WB_BATCH_SIZE", "100", &cfg.WBBatchSize},
		{"WB_MAX_RETRIES", "2", &cfg.WBMaxRetries},
	}
	for _, f := range ints {
		n, err := strconv.Atoi(sharedcfg.EnvOrDefault(f.key, f.def))
		if err != nil {
			return nil, fmt.Errorf("invalid %s", f.key)
		}
		*f.dest = n
	}

	floats := []struct {
		key  string
		def  string
		dest *float64
	}{
		{"MIN_TOTAL_AFFECTED", "500000", &cfg.MinTotalAffected},
		{"HURRICANE_MIN_MAGNITUDE", "178", &cfg.HurricaneMinMagnitude},
		{"DENSITY_MAX_MISSING_FRACTION", "0.5", &cfg.DensityMaxMissingFraction},
		{"WB_REQUESTS_PER_SECOND", "5", &cfg.WBRequestsPerSecond},
	}
	for _, f := range floats {
		v, err := strconv.ParseFloat(sharedcfg.EnvOrDefault(f.key, f.def), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid %s", f.key)
		}
		*f.dest = v
	}

	bools := []struct {
		key  string
		def  string
		dest *bool
	}{
		{"SAVE_EXTRACTED", "true", &cfg.SaveExtracted},
		{"SAVE_TRANSFORMED", "true", &cfg.SaveTransformed},
		{"EXPORT_XLSX", "false", &cfg.ExportXLSX},
	}
	for _, f := range bools {
		b, err := strconv.ParseBool(sharedcfg.EnvOrDefault(f.key, f.def))
		if err != nil {
			return nil, fmt.Errorf("invalid %s", f.key)
		}
		*f.dest = b
	}

	wbTimeout, err := time.ParseDuration(sharedcfg.EnvOrDefault("WB_TIMEOUT", "30s"))
	if err != nil || wbTimeout <= 0 {
		return nil, errors.New("invalid WB_TIMEOUT")
	}
	cfg.WBTimeout = wbTimeout

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints. It runs after every overlay.
func (c *Config) Validate() error {
	if len(c.CountryCode) != 3 {
		return errors.New("COUNTRY_CODE must be an ISO 3166-1 alpha-3 code")
	}
	if c.MinYear > c.MaxYear {
		return errors.New("MIN_YEAR must not exceed MAX_YEAR")
	}
	if c.MinTotalAffected < 0 {
		return errors.New("MIN_TOTAL_AFFECTED must not be negative")
	}
	if c.DensityMaxMissingFraction <= 0 || c.DensityMaxMissingFraction > 1 {
		return errors.New("DENSITY_MAX_MISSING_FRACTION must be in (0, 1]")
	}
	if c.WBBatchSize <= 0 {
		return errors.New("WB_BATCH_SIZE must be positive")
	}
	if c.WBMaxRetries < 0 {
		return errors.New("WB_MAX_RETRIES must not be negative")
	}
	if c.WBRequestsPerSecond <= 0 {
		return errors.New("WB_REQUESTS_PER_SECOND must be positive")
	}
	switch c.DisasterSourceEncoding {
	case "utf-8", "windows-1252", "iso-8859-1":
	default:
		return errors.New("DISASTER_SOURCE_ENCODING must be utf-8, windows-1252 or iso-8859-1")
	}
	if c.DisasterSourcePath == "" {
		return errors.New("DISASTER_SOURCE_PATH is required")
	}
	if len(c.KafkaBrokers) > 0 && c.KafkaTopic == "" {
		return errors.New("KAFKA_TOPIC is required when KAFKA_BROKERS is set")
	}
	return nil
}

// fileConfig is the YAML overlay. Unset keys leave the environment value in
// place.
type fileConfig struct {
	Country          *string  `yaml:"country"`
	MinYear          *int     `yaml:"min_year"`
	MaxYear          *int     `yaml:"max_year"`
	MinTotalAffected *float64 `yaml:"min_total_affected"`

	Hurricane struct {
		MinMagnitude   *float64 `yaml:"min_magnitude"`
		MagnitudeScale *string  `yaml:"magnitude_scale"`
	} `yaml:"hurricane"`
	DensityMaxMissingFraction *float64 `yaml:"density_max_missing_fraction"`

	WorldBank struct {
		BaseURL           *string  `yaml:"base_url"`
		SourceID          *int     `yaml:"source_id"`
		BatchSize         *int     `yaml:"batch_size"`
		Indicators        []string `yaml:"indicators"`
		Timeout           *string  `yaml:"timeout"`
		MaxRetries        *int     `yaml:"max_retries"`
		RequestsPerSecond *float64 `yaml:"requests_per_second"`
	} `yaml:"world_bank"`

	DisasterSource struct {
		Path     *string `yaml:"path"`
		Encoding *string `yaml:"encoding"`
		Sheet    *string `yaml:"sheet"`
	} `yaml:"disaster_source"`

	Output struct {
		Dir             *string  `yaml:"dir"`
		SaveExtracted   *bool    `yaml:"save_extracted"`
		SaveTransformed *bool    `yaml:"save_transformed"`
		XLSX            *bool    `yaml:"xlsx"`
		AidSuffixExempt []string `yaml:"aid_suffix_exempt"`
	} `yaml:"output"`
}

// ApplyFile overlays settings from a YAML file onto c and revalidates.
func (c *Config) ApplyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}

	setString(&c.CountryCode, fc.Country)
	if fc.Country != nil {
		c.CountryCode = strings.ToUpper(c.CountryCode)
	}
	setValue(&c.MinYear, fc.MinYear)
	setValue(&c.MaxYear, fc.MaxYear)
	setValue(&c.MinTotalAffected, fc.MinTotalAffected)
	setValue(&c.HurricaneMinMagnitude, fc.Hurricane.MinMagnitude)
	setString(&c.HurricaneMagnitudeScale, fc.Hurricane.MagnitudeScale)
	setValue(&c.DensityMaxMissingFraction, fc.DensityMaxMissingFraction)

	setString(&c.WBBaseURL, fc.WorldBank.BaseURL)
	c.WBBaseURL = strings.TrimRight(c.WBBaseURL, "/")
	setValue(&c.WBSourceID, fc.WorldBank.SourceID)
	setValue(&c.WBBatchSize, fc.WorldBank.BatchSize)
	if len(fc.WorldBank.Indicators) > 0 {
		c.WBIndicators = fc.WorldBank.Indicators
	}
	if fc.WorldBank.Timeout != nil {
		d, err := time.ParseDuration(*fc.WorldBank.Timeout)
		if err != nil || d <= 0 {
			return errors.New("invalid world_bank.timeout")
		}
		c.WBTimeout = d
	}
	setValue(&c.WBMaxRetries, fc.WorldBank.MaxRetries)
	setValue(&c.WBRequestsPerSecond, fc.WorldBank.RequestsPerSecond)

	setString(&c.DisasterSourcePath, fc.DisasterSource.Path)
	setString(&c.DisasterSourceEncoding, fc.DisasterSource.Encoding)
	c.DisasterSourceEncoding = strings.ToLower(c.DisasterSourceEncoding)
	setString(&c.DisasterSourceSheet, fc.DisasterSource.Sheet)

	setString(&c.OutputDir, fc.Output.Dir)
	setValue(&c.SaveExtracted, fc.Output.SaveExtracted)
	setValue(&c.SaveTransformed, fc.Output.SaveTransformed)
	setValue(&c.ExportXLSX, fc.Output.XLSX)
	if fc.Output.AidSuffixExempt != nil {
		c.AidSuffixExempt = fc.Output.AidSuffixExempt
	}

	return c.Validate()
}

func setValue[T any](dst, src *T) {
	if src != nil {
		*dst = *src
	}
}

func setString(dst *string, src *string) {
	if src != nil && strings.TrimSpace(*src) != "" {
		*dst = strings.TrimSpace(*src)
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
