package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("APP_ENV", "test")
	cfg, err := Load()
	require.NoError(t, err)
	require.True(t, cfg.IsTest())
	require.Equal(t, 8000, cfg.Port)
	require.Equal(t, 60, cfg.RateLimitBase)
	require.Equal(t, 1, cfg.TierMultiplier("free"))
	require.Equal(t, 5, cfg.TierMultiplier("beta"))
	require.Equal(t, 5, cfg.TierMultiplier("premium"))
	require.Equal(t, 1, cfg.TierMultiplier("unknown"))
	require.False(t, cfg.AuditEnabled())
	require.Equal(t, "memory", cfg.CacheBackend)
}

func TestLoad_Brokers(t *testing.T) {
	t.Setenv("KAFKA_BROKERS", "localhost:19092,localhost:19093")
	cfg, err := Load()
	require.NoError(t, err)
	require.True(t, cfg.AuditEnabled())
	require.Len(t, cfg.KafkaBrokers, 2)
}

func TestDefaultCatalogue_OneWorkerPerDomain(t *testing.T) {
	workers := DefaultCatalogue()
	require.Len(t, workers, 9)
	domains := map[string]bool{}
	for _, w := range workers {
		require.False(t, domains[string(w.Domain)], "duplicate domain %s", w.Domain)
		domains[string(w.Domain)] = true
	}
	require.Equal(t, "ake", workers[0].Name)
	require.Equal(t, 8100, workers[0].Port)
}

func TestLoadCatalogue_File(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "catalogue.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
workers:
  - name: alpha
    port: 9100
    domain: architecture
  - name: omega
    port: 9200
    domain: synthesis
`), 0o600))
	workers, err := LoadCatalogue(path)
	require.NoError(t, err)
	require.Len(t, workers, 2)
	require.Equal(t, "alpha", workers[0].Name)
}

func TestLoadCatalogue_RejectsDuplicateDomain(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "catalogue.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
workers:
  - name: a
    port: 9100
    domain: security
  - name: b
    port: 9200
    domain: security
`), 0o600))
	_, err := LoadCatalogue(path)
	require.Error(t, err)
}

func TestLoadCatalogue_RejectsUnknownDomain(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "catalogue.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
workers:
  - name: a
    port: 9100
    domain: astrology
`), 0o600))
	_, err := LoadCatalogue(path)
	require.Error(t, err)
}

func TestLoadTrainingPhases_Default(t *testing.T) {
	phases, err := LoadTrainingPhases("")
	require.NoError(t, err)
	require.Len(t, phases, 4)
	require.Equal(t, []string{"rhys", "ketheriel", "ake"}, phases[0])
}
