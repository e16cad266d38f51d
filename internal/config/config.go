// Package config loads runtime settings from defaults, an optional YAML
// file, a .env file and the environment, in increasing precedence.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/meeteat/pos/internal/printer"
	"github.com/meeteat/pos/internal/receipt"
)

// DefaultFile is read when no config file is named explicitly.
const DefaultFile = "meeteat.yaml"

// Environment variables. The data directory names are shared with the
// desktop shell that spawns the backend.
const (
	EnvDataDir        = "MEATEAT_POS_DATA_DIR"
	EnvDataDirLegacy  = "POS_DATA_DIR"
	EnvDatabase       = "MEETEAT_DB"
	EnvBackupDir      = "MEETEAT_BACKUP_DIR"
	EnvPrinterTimeout = "MEETEAT_PRINTER_TIMEOUT"
	EnvReceiptWidth   = "MEETEAT_RECEIPT_WIDTH"
)

// Config is the full runtime configuration.
type Config struct {
	DataDir   string  `yaml:"data_dir"`
	Database  string  `yaml:"database"`
	BackupDir string  `yaml:"backup_dir"`
	Receipt   Receipt `yaml:"receipt"`
	Printer   Printer `yaml:"printer"`
}

// Receipt configures the receipt layout.
type Receipt struct {
	Width    int    `yaml:"width"`
	Clip     string `yaml:"clip"`
	CodePage string `yaml:"codepage"`
	Title    string `yaml:"title"`
	Tagline  string `yaml:"tagline"`
	Closing  string `yaml:"closing"`
}

// Printer configures the raw print transport.
type Printer struct {
	Helper    []string      `yaml:"helper"`
	Timeout   time.Duration `yaml:"timeout"`
	TempDir   string        `yaml:"temp_dir"`
	FeedLines int           `yaml:"feed_lines"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		DataDir: "data",
		Receipt: Receipt{
			Width:   42,
			Clip:    string(receipt.ClipBytes),
			Title:   receipt.DefaultTitle,
			Tagline: receipt.DefaultTagline,
			Closing: receipt.DefaultClosing,
		},
		Printer: Printer{
			Helper:    printer.DefaultHelper(),
			Timeout:   printer.DefaultTimeout,
			FeedLines: printer.DefaultFeedLines,
		},
	}
}

// Options controls where Load looks.
type Options struct {
	// File is the YAML config path. Empty means DefaultFile, which may be
	// absent; a named file must exist.
	File string

	// EnvFile is the dotenv file. Empty means ".env". A missing file is
	// ignored.
	EnvFile string
}

// Load builds the configuration.
func Load(opts Options) (Config, error) {
	envFile := opts.EnvFile
	if envFile == "" {
		envFile = ".env"
	}
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load %s: %w", envFile, err)
	}

	cfg := Default()

	path, required := opts.File, true
	if path == "" {
		path, required = DefaultFile, false
	}
	if err := cfg.loadFile(path, required); err != nil {
		return Config{}, err
	}
	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}
	cfg.fillDerived()

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string, required bool) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) && !required {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv(EnvDataDir); v != "" {
		c.DataDir = v
	} else if v := os.Getenv(EnvDataDirLegacy); v != "" {
		c.DataDir = v
	}
	if v := os.Getenv(EnvDatabase); v != "" {
		c.Database = v
	}
	if v := os.Getenv(EnvBackupDir); v != "" {
		c.BackupDir = v
	}
	if v := os.Getenv(EnvPrinterTimeout); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvPrinterTimeout, err)
		}
		c.Printer.Timeout = d
	}
	if v := os.Getenv(EnvReceiptWidth); v != "" {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%s: %w", EnvReceiptWidth, err)
		}
		c.Receipt.Width = n
	}
	return nil
}

func (c *Config) fillDerived() {
	if c.Database == "" {
		c.Database = filepath.Join(c.DataDir, "meet-eat.db")
	}
	if c.BackupDir == "" {
		c.BackupDir = filepath.Join(c.DataDir, "backups")
	}
}

// Validate checks field values.
func (c Config) Validate() error {
	var errs []error
	if c.Database == "" {
		errs = append(errs, errors.New("database path is empty"))
	}
	if !receipt.SupportedWidth(c.Receipt.Width) {
		errs = append(errs, fmt.Errorf("receipt.width must be 42 or 48, got %d", c.Receipt.Width))
	}
	switch receipt.ClipMode(c.Receipt.Clip) {
	case receipt.ClipBytes, receipt.ClipRunes:
	default:
		errs = append(errs, fmt.Errorf("receipt.clip must be bytes or runes, got %q", c.Receipt.Clip))
	}
	if !printer.ValidCodePage(printer.CodePage(c.Receipt.CodePage)) {
		errs = append(errs, fmt.Errorf("receipt.codepage %q is not supported", c.Receipt.CodePage))
	}
	if c.Printer.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("printer.timeout must be positive, got %s", c.Printer.Timeout))
	}
	if len(c.Printer.Helper) == 0 {
		errs = append(errs, errors.New("printer.helper is empty"))
	}
	return errors.Join(errs...)
}

// Layout returns the receipt layout described by c.
func (c Config) Layout() receipt.Layout {
	return receipt.Layout{
		Width:   c.Receipt.Width,
		Clip:    receipt.ClipMode(c.Receipt.Clip),
		Title:   c.Receipt.Title,
		Tagline: c.Receipt.Tagline,
		Closing: c.Receipt.Closing,
	}
}
