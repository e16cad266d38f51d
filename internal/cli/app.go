package cli

import (
	"log/slog"
	"os"
	"path/filepath"

	"github.com/meeteat/pos/internal/backup"
	"github.com/meeteat/pos/internal/billing"
	"github.com/meeteat/pos/internal/config"
	"github.com/meeteat/pos/internal/inventory"
	"github.com/meeteat/pos/internal/printer"
	"github.com/meeteat/pos/internal/router"
	"github.com/meeteat/pos/internal/store"
)

// app is the wired backend: one store and the components over it.
type app struct {
	cfg     config.Config
	log     *slog.Logger
	store   *store.Store
	backups *backup.Manager
	router  *router.Router
}

// openApp loads configuration, opens the store and wires every component.
func openApp(opts *RootOptions, log *slog.Logger) (*app, error) {
	cfg, err := config.Load(config.Options{File: opts.Config, EnvFile: opts.EnvFile})
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load config", err)
	}

	if err := os.MkdirAll(filepath.Dir(cfg.Database), 0o755); err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to create data directory", err)
	}
	log.Debug("opening store", "path", cfg.Database)
	st, err := store.Open(cfg.Database, store.WithLogger(log))
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open store", err)
	}

	backups := backup.NewManager(st,
		backup.WithLogger(log),
		backup.WithDefaultDir(cfg.BackupDir))

	transport := printer.NewTransport(
		printer.WithHelper(cfg.Printer.Helper),
		printer.WithTimeout(cfg.Printer.Timeout),
		printer.WithTempDir(cfg.Printer.TempDir),
		printer.WithTransportLogger(log))

	r := router.New(router.Deps{
		Catalog: inventory.NewManager(st, inventory.WithLogger(log)),
		Bills:   billing.NewEngine(st, billing.WithLogger(log)),
		Backups: backups,
		Printer: printer.NewService(cfg.Layout(), printer.CodePage(cfg.Receipt.CodePage), cfg.Printer.FeedLines, transport),
		Store:   st,
	}, router.WithLogger(log))

	return &app{cfg: cfg, log: log, store: st, backups: backups, router: r}, nil
}

// Close closes the store.
func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		a.log.Error("error closing store", "error", err)
	}
}
