// Package backup creates, lists and restores copies of the store file.
//
// A backup is a plain copy of the main store file taken right after a
// TRUNCATE checkpoint, so it is self-contained. Restore hot-swaps the live
// store through store.Store.Swap and never leaves it detached.
package backup

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/meeteat/pos/internal/apperr"
	"github.com/meeteat/pos/internal/clock"
	"github.com/meeteat/pos/internal/store"
)

const (
	// Extension marks backup files in a directory listing.
	Extension = ".db"

	filePrefix = "meet-eat-"
)

// sqliteHeader is the first 16 bytes of every SQLite database file.
var sqliteHeader = []byte("SQLite format 3\x00")

// Store is the store surface the manager needs.
type Store interface {
	store.Access
	Path() string
	Snapshot(ctx context.Context, fn func(path string) error) error
	Swap(ctx context.Context, fn func(path string) error) error
}

// File describes one backup on disk.
type File struct {
	Name       string `json:"name"`
	Path       string `json:"path"`
	SizeBytes  int64  `json:"size_bytes"`
	ModifiedAt string `json:"modified_at"`

	modTime time.Time
}

// Manager runs backups and restores against one store.
type Manager struct {
	store      Store
	clock      clock.Clock
	log        *slog.Logger
	defaultDir string
}

// Option configures a Manager.
type Option func(*Manager)

// WithClock sets the clock used to name backup files.
func WithClock(c clock.Clock) Option {
	return func(m *Manager) { m.clock = clock.Or(c) }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.log = l
		}
	}
}

// WithDefaultDir sets the directory used when neither the caller nor the
// backup_path setting names one.
func WithDefaultDir(dir string) Option {
	return func(m *Manager) { m.defaultDir = dir }
}

// NewManager creates a Manager for st.
func NewManager(st Store, opts ...Option) *Manager {
	m := &Manager{store: st, clock: clock.System{}, log: slog.Default()}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// List returns the backups in dir, most recent first. A missing or
// unreadable directory yields an empty list.
func List(dir string) []File {
	files := []File{}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return files
	}

	for _, e := range entries {
		if !e.Type().IsRegular() || !strings.EqualFold(filepath.Ext(e.Name()), Extension) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		files = append(files, File{
			Name:       e.Name(),
			Path:       filepath.Join(dir, e.Name()),
			SizeBytes:  info.Size(),
			ModifiedAt: clock.Stamp(info.ModTime()),
			modTime:    info.ModTime(),
		})
	}

	slices.SortStableFunc(files, func(a, b File) int {
		if c := b.modTime.Compare(a.modTime); c != 0 {
			return c
		}
		return strings.Compare(b.Name, a.Name)
	})
	return files
}

// Backup checkpoints the store and copies it into target, creating the
// directory if needed. An empty target falls back to the backup_path
// setting, then to the default directory. It returns the written path.
func (m *Manager) Backup(ctx context.Context, target string) (string, error) {
	dir, err := m.resolveDir(ctx, target)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", apperr.Wrap(apperr.BackupFailed, "create backup directory "+dir, err)
	}

	dest := filepath.Join(dir, FileName(m.clock.Now()))
	err = m.store.Snapshot(ctx, func(src string) error {
		free, err := uniquePath(dir, filepath.Base(dest))
		if err != nil {
			return err
		}
		dest = free
		return copyFile(src, dest)
	})
	if err != nil {
		if apperr.Is(err, apperr.DatabaseUnavailable) {
			return "", err
		}
		return "", apperr.Wrap(apperr.BackupFailed, "backup to "+dest, err)
	}

	m.log.Info("backup written", "path", dest)
	return dest, nil
}

func (m *Manager) resolveDir(ctx context.Context, target string) (string, error) {
	if dir := strings.TrimSpace(target); dir != "" {
		return dir, nil
	}
	s, err := m.Settings(ctx)
	if err != nil {
		return "", err
	}
	if s.BackupPath != "" {
		return s.BackupPath, nil
	}
	if m.defaultDir != "" {
		return m.defaultDir, nil
	}
	return "", apperr.New(apperr.InvalidInput, "no backup directory configured")
}

// Files lists the backups in dir, or in the configured directory when dir is
// empty. No configured directory yields an empty list.
func (m *Manager) Files(ctx context.Context, dir string) ([]File, error) {
	resolved, err := m.resolveDir(ctx, dir)
	if apperr.Is(err, apperr.InvalidInput) {
		return []File{}, nil
	}
	if err != nil {
		return nil, err
	}
	return List(resolved), nil
}

// Source resolves a restore request. A non-empty source wins; otherwise
// fileName inside dir is used. fileName must be a bare file name.
func Source(source, dir, fileName string) (string, error) {
	if s := strings.TrimSpace(source); s != "" {
		return s, nil
	}
	dir, fileName = strings.TrimSpace(dir), strings.TrimSpace(fileName)
	if dir == "" || fileName == "" {
		return "", apperr.New(apperr.InvalidInput, "source or backup_path and file_name are required")
	}
	if fileName != filepath.Base(fileName) || strings.ContainsAny(fileName, `/\`) || fileName == ".." || fileName == "." {
		return "", apperr.Newf(apperr.InvalidInput, "file_name %q must not contain a path", fileName)
	}
	return filepath.Join(dir, fileName), nil
}

// Restore replaces the live store with source. When source is a directory
// its most recent backup is used. It returns the path that was restored.
func (m *Manager) Restore(ctx context.Context, source string) (string, error) {
	chosen, err := m.pick(source)
	if err != nil {
		return "", err
	}
	if err := m.checkRestorable(chosen); err != nil {
		return "", err
	}

	m.log.Info("restore started", "source", chosen)
	err = m.store.Swap(ctx, func(live string) error {
		return copyFile(chosen, live)
	})
	if err != nil {
		if apperr.Is(err, apperr.DatabaseUnavailable) {
			return "", err
		}
		return "", apperr.Wrap(apperr.RestoreFailed, "restore from "+chosen, err)
	}

	m.log.Info("restore finished", "source", chosen)
	return chosen, nil
}

func (m *Manager) pick(source string) (string, error) {
	source = strings.TrimSpace(source)
	if source == "" {
		return "", apperr.New(apperr.InvalidInput, "restore source is required")
	}

	info, err := os.Stat(source)
	if errors.Is(err, os.ErrNotExist) {
		return "", apperr.Newf(apperr.NoBackupFound, "backup %s not found", source)
	}
	if err != nil {
		return "", apperr.Wrap(apperr.RestoreFailed, "stat "+source, err)
	}
	if !info.IsDir() {
		return source, nil
	}

	files := List(source)
	if len(files) == 0 {
		return "", apperr.Newf(apperr.NoBackupFound, "no backup found in %s", source)
	}
	return files[0].Path, nil
}

// checkRestorable rejects sources that would corrupt or destroy the live
// store before it is detached.
func (m *Manager) checkRestorable(path string) error {
	src, err := os.Stat(path)
	if err != nil {
		return apperr.Wrap(apperr.RestoreFailed, "stat "+path, err)
	}
	if live, err := os.Stat(m.store.Path()); err == nil && os.SameFile(src, live) {
		return apperr.New(apperr.InvalidInput, "cannot restore the live store onto itself")
	}

	f, err := os.Open(path)
	if err != nil {
		return apperr.Wrap(apperr.RestoreFailed, "open "+path, err)
	}
	defer f.Close()

	header := make([]byte, len(sqliteHeader))
	if _, err := io.ReadFull(f, header); err != nil || string(header) != string(sqliteHeader) {
		return apperr.Newf(apperr.RestoreFailed, "%s is not a store backup", path)
	}
	return nil
}

// copyFile writes src to dst through a synced temporary file so dst is
// either the old content or the complete new content.
func copyFile(src, dst string) (err error) {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open source: %w", err)
	}
	defer in.Close()

	tmp := dst + ".tmp"
	out, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("create %s: %w", tmp, err)
	}
	defer func() {
		if err != nil {
			out.Close()
			os.Remove(tmp)
		}
	}()

	if _, err = io.Copy(out, in); err != nil {
		return fmt.Errorf("copy: %w", err)
	}
	if err = out.Sync(); err != nil {
		return fmt.Errorf("sync: %w", err)
	}
	if err = out.Close(); err != nil {
		return fmt.Errorf("close: %w", err)
	}
	if err = os.Rename(tmp, dst); err != nil {
		return fmt.Errorf("rename into place: %w", err)
	}
	return nil
}
