package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	require.NoError(t, Default().Validate())
}

func TestLoadWithoutFile(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadYAMLOverlay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mergeline.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
paths:
  master_path: ./out/master.csv
ingest:
  key_match: folded
  encodings: [utf-8, cp1252]
logging:
  level: debug
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "./out/master.csv", cfg.Paths.MasterPath)
	assert.Equal(t, "./data/backups", cfg.Paths.BackupDir)
	assert.Equal(t, "folded", cfg.Ingest.KeyMatch)
	assert.Equal(t, []string{"utf-8", "cp1252"}, cfg.Ingest.Encodings)
	assert.Equal(t, "company_name", cfg.Ingest.PrimaryKey)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mergeline.yaml")
	require.NoError(t, os.WriteFile(path, []byte("ingest:\n  primary_key: supplier\n"), 0o644))

	t.Setenv("MERGELINE_INGEST_PRIMARY_KEY", "vendor_id")
	t.Setenv("MERGELINE_INGEST_ENCODINGS", "utf-8,latin1")
	t.Setenv("MERGELINE_CONSOLE_NO_COLOR", "true")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "vendor_id", cfg.Ingest.PrimaryKey)
	assert.Equal(t, []string{"utf-8", "latin1"}, cfg.Ingest.Encodings)
	assert.True(t, cfg.Console.NoColor)
}

func TestLoadErrors(t *testing.T) {
	dir := t.TempDir()

	_, err := Load(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("ingest: [unclosed"), 0o644))
	_, err = Load(bad)
	assert.Error(t, err)
}

func TestValidateCollectsAllErrors(t *testing.T) {
	cfg := Default()
	cfg.Paths.MasterPath = ""
	cfg.Ingest.KeyMatch = "fuzzy"
	cfg.Ingest.Encodings = []string{"utf-8", "ebcdic"}
	cfg.Ingest.MinRows = 0
	cfg.Logging.Level = "loud"
	cfg.Logging.Format = "xml"
	cfg.Ingest.Pattern = "[unclosed"

	err := cfg.Validate()
	require.Error(t, err)

	for _, want := range []string{
		"paths.master_path is required",
		"ingest.key_match",
		`unknown encoding "ebcdic"`,
		"ingest.min_rows must be positive",
		"logging.level",
		"logging.format",
		"ingest.pattern",
	} {
		assert.Contains(t, err.Error(), want)
	}
}

func TestValidateSchemaPathDiffersFromMaster(t *testing.T) {
	cfg := Default()
	cfg.Paths.SchemaPath = "data/cleaned_master.csv"
	assert.ErrorContains(t, cfg.Validate(), "paths.schema_path")
}
