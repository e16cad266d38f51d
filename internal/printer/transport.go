package printer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/meeteat/pos/internal/apperr"
	"github.com/meeteat/pos/internal/ident"
)

// Helper argument placeholders.
const (
	PrinterPlaceholder = "{printer}"
	FilePlaceholder    = "{file}"
)

// DefaultTimeout bounds one helper run.
const DefaultTimeout = 30 * time.Second

// writeReceipt writes the stream into the temporary file.
var writeReceipt = func(w io.Writer, data []byte) error {
	_, err := w.Write(data)
	return err
}

// DefaultHelper returns the raw passthrough command for this platform.
func DefaultHelper() []string {
	if runtime.GOOS == "windows" {
		return []string{"cmd", "/C", "copy", "/B", FilePlaceholder, `\\localhost\` + PrinterPlaceholder}
	}
	return []string{"lp", "-d", PrinterPlaceholder, "-o", "raw", FilePlaceholder}
}

// Sender delivers a command stream to a named printer.
type Sender interface {
	Send(ctx context.Context, printer string, data []byte) error
}

// Transport runs the spooler helper on a temporary file holding the stream.
type Transport struct {
	helper  []string
	timeout time.Duration
	tempDir string
	ids     ident.Generator
	log     *slog.Logger
}

var _ Sender = (*Transport)(nil)

// TransportOption configures a Transport.
type TransportOption func(*Transport)

// WithHelper sets the helper argv template.
func WithHelper(argv []string) TransportOption {
	return func(t *Transport) {
		if len(argv) > 0 {
			t.helper = argv
		}
	}
}

// WithTimeout bounds each helper run.
func WithTimeout(d time.Duration) TransportOption {
	return func(t *Transport) {
		if d > 0 {
			t.timeout = d
		}
	}
}

// WithTempDir sets where stream files are written. Empty means os.TempDir.
func WithTempDir(dir string) TransportOption {
	return func(t *Transport) { t.tempDir = dir }
}

// WithIDGenerator sets the generator used to name stream files.
func WithIDGenerator(g ident.Generator) TransportOption {
	return func(t *Transport) { t.ids = ident.Or(g) }
}

// WithTransportLogger sets the logger.
func WithTransportLogger(l *slog.Logger) TransportOption {
	return func(t *Transport) {
		if l != nil {
			t.log = l
		}
	}
}

// NewTransport creates a Transport.
func NewTransport(opts ...TransportOption) *Transport {
	t := &Transport{
		helper:  DefaultHelper(),
		timeout: DefaultTimeout,
		ids:     ident.UUIDv7Generator{},
		log:     slog.Default(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Send writes data to a temporary file and runs the helper on it. The file
// is removed on every path. A helper that fails, exits non-zero or outlives
// the timeout is reported as apperr.PrintFailed.
func (t *Transport) Send(ctx context.Context, printer string, data []byte) error {
	name := strings.TrimSpace(printer)
	if name == "" {
		return apperr.New(apperr.InvalidInput, "printer name is required")
	}

	dir := t.tempDir
	if dir == "" {
		dir = os.TempDir()
	}
	path := filepath.Join(dir, "meeteat-receipt-"+t.ids.Generate()+".bin")
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return apperr.Wrap(apperr.PrintFailed, "prepare receipt", err)
	}
	defer func() {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			t.log.Debug("remove receipt file failed", "path", path, "error", err)
		}
	}()
	err = writeReceipt(f, data)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return apperr.Wrap(apperr.PrintFailed, "prepare receipt", err)
	}

	argv := expand(t.helper, name, path)

	runCtx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, argv[0], argv[1:]...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	cmd.WaitDelay = time.Second

	start := time.Now()
	err = cmd.Run()
	elapsed := time.Since(start)

	switch {
	case errors.Is(runCtx.Err(), context.DeadlineExceeded):
		t.log.Warn("print timed out", "printer", name, "timeout", t.timeout)
		return apperr.Wrap(apperr.PrintFailed,
			fmt.Sprintf("print on '%s': timed out after %s", name, t.timeout), runCtx.Err())
	case err != nil:
		diag := strings.TrimSpace(stderr.String())
		if diag == "" {
			diag = err.Error()
		}
		t.log.Warn("print failed", "printer", name, "error", diag)
		return apperr.Wrap(apperr.PrintFailed, fmt.Sprintf("print on '%s': %s", name, diag), err)
	}

	t.log.Info("print job sent", "printer", name, "bytes", len(data), "duration", elapsed)
	return nil
}

// expand substitutes the placeholders in every argument. Arguments are
// passed to the helper directly, never through a shell.
func expand(template []string, printer, file string) []string {
	r := strings.NewReplacer(PrinterPlaceholder, printer, FilePlaceholder, file)
	argv := make([]string, len(template))
	for i, arg := range template {
		argv[i] = r.Replace(arg)
	}
	return argv
}
