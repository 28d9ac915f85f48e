package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testBroker = "localhost:9092"

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "PRI", cfg.CountryCode)
	assert.Equal(t, 2007, cfg.MinYear)
	assert.Equal(t, 2023, cfg.MaxYear)
	assert.Equal(t, 500000.0, cfg.MinTotalAffected)
	assert.Equal(t, 178.0, cfg.HurricaneMinMagnitude)
	assert.Equal(t, "Kph", cfg.HurricaneMagnitudeScale)
	assert.Equal(t, 0.5, cfg.DensityMaxMissingFraction)
	assert.Equal(t, "https://api.worldbank.org/v2", cfg.WBBaseURL)
	assert.Equal(t, 2, cfg.WBSourceID)
	assert.Equal(t, 100, cfg.WBBatchSize)
	assert.Empty(t, cfg.WBIndicators)
	assert.Equal(t, 30*time.Second, cfg.WBTimeout)
	assert.Equal(t, 2, cfg.WBMaxRetries)
	assert.Equal(t, 5.0, cfg.WBRequestsPerSecond)
	assert.Equal(t, "data/raw/EMDAT_complete.csv", cfg.DisasterSourcePath)
	assert.Equal(t, "utf-8", cfg.DisasterSourceEncoding)
	assert.Equal(t, "EM-DAT Data", cfg.DisasterSourceSheet)
	assert.Equal(t, "data", cfg.OutputDir)
	assert.True(t, cfg.SaveExtracted)
	assert.True(t, cfg.SaveTransformed)
	assert.False(t, cfg.ExportXLSX)
	assert.Equal(t, []string{"PRI", "USA"}, cfg.AidSuffixExempt)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.Empty(t, cfg.ConfigFile)
	assert.Empty(t, cfg.MetricsAddr)
	assert.Empty(t, cfg.KafkaBrokers)
	assert.Equal(t, "storm-impact-reports", cfg.KafkaTopic)
	assert.Equal(t, 10*time.Second, cfg.ShutdownTimeout)
}

func TestLoad_CustomEnv(t *testing.T) {
	t.Setenv("COUNTRY_CODE", "dom")
	t.Setenv("MIN_YEAR", "2000")
	t.Setenv("MAX_YEAR", "2020")
	t.Setenv("MIN_TOTAL_AFFECTED", "100000")
	t.Setenv("DENSITY_MAX_MISSING_FRACTION", "0.25")
	t.Setenv("WB_BASE_URL", "http://localhost:8081/v2/")
	t.Setenv("WB_INDICATORS", "SP.POP.TOTL, NY.GDP.MKTP.CD")
	t.Setenv("WB_TIMEOUT", "5s")
	t.Setenv("DISASTER_SOURCE_ENCODING", "Windows-1252")
	t.Setenv("EXPORT_XLSX", "true")
	t.Setenv("SAVE_EXTRACTED", "false")
	t.Setenv("KAFKA_BROKERS", "broker1:9092,broker2:9092")
	t.Setenv("LOG_FORMAT", "json")
	t.Setenv("SHUTDOWN_TIMEOUT", "30s")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "DOM", cfg.CountryCode)
	assert.Equal(t, 2000, cfg.MinYear)
	assert.Equal(t, 2020, cfg.MaxYear)
	assert.Equal(t, 100000.0, cfg.MinTotalAffected)
	assert.Equal(t, 0.25, cfg.DensityMaxMissingFraction)
	assert.Equal(t, "http://localhost:8081/v2", cfg.WBBaseURL)
	assert.Equal(t, []string{"SP.POP.TOTL", "NY.GDP.MKTP.CD"}, cfg.WBIndicators)
	assert.Equal(t, 5*time.Second, cfg.WBTimeout)
	assert.Equal(t, "windows-1252", cfg.DisasterSourceEncoding)
	assert.True(t, cfg.ExportXLSX)
	assert.False(t, cfg.SaveExtracted)
	assert.Equal(t, []string{"broker1:9092", "broker2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, 30*time.Second, cfg.ShutdownTimeout)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		key, value, want string
	}{
		{"SHUTDOWN_TIMEOUT", "not-a-duration", "SHUTDOWN_TIMEOUT"},
		{"MIN_YEAR", "twenty", "MIN_YEAR"},
		{"MIN_YEAR", "2030", "MIN_YEAR"},
		{"MIN_TOTAL_AFFECTED", "lots", "MIN_TOTAL_AFFECTED"},
		{"DENSITY_MAX_MISSING_FRACTION", "1.5", "DENSITY_MAX_MISSING_FRACTION"},
		{"WB_BATCH_SIZE", "0", "WB_BATCH_SIZE"},
		{"WB_TIMEOUT", "bad", "WB_TIMEOUT"},
		{"WB_REQUESTS_PER_SECOND", "0", "WB_REQUESTS_PER_SECOND"},
		{"SAVE_TRANSFORMED", "maybe", "SAVE_TRANSFORMED"},
		{"COUNTRY_CODE", "PUERTO", "COUNTRY_CODE"},
		{"DISASTER_SOURCE_ENCODING", "utf-16", "DISASTER_SOURCE_ENCODING"},
	}
	for _, tt := range tests {
		t.Run(tt.key+"="+tt.value, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			_, err := Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func writeConfigFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "report.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestApplyFile(t *testing.T) {
	t.Setenv("KAFKA_BROKERS", testBroker)
	cfg, err := Load()
	require.NoError(t, err)

	path := writeConfigFile(t, `
country: hti
min_year: 2010
max_year: 2022
hurricane:
  min_magnitude: 200
world_bank:
  indicators: [SP.POP.TOTL]
  timeout: 10s
disaster_source:
  path: testdata/emdat.xlsx
output:
  dir: out
  xlsx: true
  aid_suffix_exempt: []
`)
	require.NoError(t, cfg.ApplyFile(path))

	assert.Equal(t, "HTI", cfg.CountryCode)
	assert.Equal(t, 2010, cfg.MinYear)
	assert.Equal(t, 2022, cfg.MaxYear)
	assert.Equal(t, 200.0, cfg.HurricaneMinMagnitude)
	assert.Equal(t, "Kph", cfg.HurricaneMagnitudeScale)
	assert.Equal(t, []string{"SP.POP.TOTL"}, cfg.WBIndicators)
	assert.Equal(t, 10*time.Second, cfg.WBTimeout)
	assert.Equal(t, "testdata/emdat.xlsx", cfg.DisasterSourcePath)
	assert.Equal(t, "out", cfg.OutputDir)
	assert.True(t, cfg.ExportXLSX)
	assert.Empty(t, cfg.AidSuffixExempt)
	// untouched keys keep their environment values
	assert.Equal(t, []string{testBroker}, cfg.KafkaBrokers)
	assert.Equal(t, 500000.0, cfg.MinTotalAffected)
}

func TestApplyFile_Errors(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	t.Run("missing file", func(t *testing.T) {
		err := cfg.ApplyFile(filepath.Join(t.TempDir(), "absent.yaml"))
		assert.ErrorIs(t, err, os.ErrNotExist)
	})

	t.Run("malformed yaml", func(t *testing.T) {
		err := cfg.ApplyFile(writeConfigFile(t, "min_year: [2007"))
		assert.Error(t, err)
	})

	t.Run("range fails validation", func(t *testing.T) {
		c := *cfg
		err := c.ApplyFile(writeConfigFile(t, "min_year: 2024\nmax_year: 2000\n"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "MIN_YEAR")
	})
}
