package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meeteat/pos/internal/receipt"
)

// clearEnv isolates a test from the caller's environment.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{EnvDataDir, EnvDataDirLegacy, EnvDatabase, EnvBackupDir, EnvPrinterTimeout, EnvReceiptWidth} {
		t.Setenv(k, "")
	}
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

func noEnvFile(t *testing.T) string {
	return filepath.Join(t.TempDir(), "missing.env")
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)
	t.Chdir(t.TempDir())

	cfg, err := Load(Options{EnvFile: noEnvFile(t)})
	require.NoError(t, err)

	assert.Equal(t, "data", cfg.DataDir)
	assert.Equal(t, filepath.Join("data", "meet-eat.db"), cfg.Database)
	assert.Equal(t, filepath.Join("data", "backups"), cfg.BackupDir)
	assert.Equal(t, 42, cfg.Receipt.Width)
	assert.Equal(t, "bytes", cfg.Receipt.Clip)
	assert.Equal(t, 30*time.Second, cfg.Printer.Timeout)
	assert.Equal(t, receipt.DefaultLayout(42), cfg.Layout())
}

func TestLoad_File(t *testing.T) {
	clearEnv(t)
	path := writeFile(t, "meeteat.yaml", `
data_dir: /srv/pos
receipt:
  width: 48
  clip: runes
  codepage: cp858
  title: CAFE
printer:
  helper: [lp, -d, "{printer}", "{file}"]
  timeout: 5s
  feed_lines: 6
`)

	cfg, err := Load(Options{File: path, EnvFile: noEnvFile(t)})
	require.NoError(t, err)

	assert.Equal(t, filepath.Join("/srv/pos", "meet-eat.db"), cfg.Database)
	assert.Equal(t, 48, cfg.Receipt.Width)
	assert.Equal(t, "cp858", cfg.Receipt.CodePage)
	assert.Equal(t, "CAFE", cfg.Layout().Title)
	assert.Equal(t, receipt.DefaultTagline, cfg.Receipt.Tagline)
	assert.Equal(t, []string{"lp", "-d", "{printer}", "{file}"}, cfg.Printer.Helper)
	assert.Equal(t, 5*time.Second, cfg.Printer.Timeout)
	assert.Equal(t, 6, cfg.Printer.FeedLines)
}

func TestLoad_UnknownField(t *testing.T) {
	clearEnv(t)
	path := writeFile(t, "bad.yaml", "receipt:\n  widht: 48\n")

	_, err := Load(Options{File: path, EnvFile: noEnvFile(t)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "widht")
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	clearEnv(t)
	_, err := Load(Options{File: filepath.Join(t.TempDir(), "nope.yaml"), EnvFile: noEnvFile(t)})
	assert.Error(t, err)
}

func TestLoad_EnvOverrides(t *testing.T) {
	clearEnv(t)
	path := writeFile(t, "meeteat.yaml", "data_dir: /from/file\n")

	t.Setenv(EnvDataDirLegacy, "/legacy")
	t.Setenv(EnvDataDir, "/primary")
	t.Setenv(EnvBackupDir, "/mnt/usb")
	t.Setenv(EnvPrinterTimeout, "2s")
	t.Setenv(EnvReceiptWidth, "48")

	cfg, err := Load(Options{File: path, EnvFile: noEnvFile(t)})
	require.NoError(t, err)
	assert.Equal(t, "/primary", cfg.DataDir)
	assert.Equal(t, "/mnt/usb", cfg.BackupDir)
	assert.Equal(t, 2*time.Second, cfg.Printer.Timeout)
	assert.Equal(t, 48, cfg.Receipt.Width)

	t.Setenv(EnvDataDir, "")
	t.Setenv(EnvDatabase, "/explicit/pos.db")
	cfg, err = Load(Options{File: path, EnvFile: noEnvFile(t)})
	require.NoError(t, err)
	assert.Equal(t, "/legacy", cfg.DataDir)
	assert.Equal(t, "/explicit/pos.db", cfg.Database)
}

func TestLoad_DotEnv(t *testing.T) {
	clearEnv(t)
	envFile := writeFile(t, ".env", "MEETEAT_BACKUP_DIR=/from/dotenv\n")

	// t.Setenv left the variable set (empty); godotenv never overrides it.
	require.NoError(t, os.Unsetenv(EnvBackupDir))

	cfg, err := Load(Options{File: writeFile(t, "c.yaml", "{}\n"), EnvFile: envFile})
	require.NoError(t, err)
	assert.Equal(t, "/from/dotenv", cfg.BackupDir)
}

func TestLoad_InvalidEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv(EnvPrinterTimeout, "soon")
	_, err := Load(Options{File: writeFile(t, "c.yaml", "{}\n"), EnvFile: noEnvFile(t)})
	assert.ErrorContains(t, err, EnvPrinterTimeout)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"width", func(c *Config) { c.Receipt.Width = 40 }, "receipt.width"},
		{"clip", func(c *Config) { c.Receipt.Clip = "words" }, "receipt.clip"},
		{"codepage", func(c *Config) { c.Receipt.CodePage = "utf-16" }, "receipt.codepage"},
		{"timeout", func(c *Config) { c.Printer.Timeout = 0 }, "printer.timeout"},
		{"helper", func(c *Config) { c.Printer.Helper = nil }, "printer.helper"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			cfg.fillDerived()
			require.NoError(t, cfg.Validate())

			tt.mutate(&cfg)
			assert.ErrorContains(t, cfg.Validate(), tt.want)
		})
	}
}

func TestLoad_EmptyFile(t *testing.T) {
	clearEnv(t)
	cfg, err := Load(Options{File: writeFile(t, "empty.yaml", "# nothing yet\n"), EnvFile: noEnvFile(t)})
	require.NoError(t, err)
	assert.Equal(t, 42, cfg.Receipt.Width)
}
