package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/meeteat/pos/internal/apperr"
	"github.com/meeteat/pos/internal/backup"
	"github.com/meeteat/pos/internal/router"
)

// maxLineBytes bounds one request line.
const maxLineBytes = 4 << 20

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	AutoBackup bool
	Tick       time.Duration
}

// gatewayRequest is one stdin line.
type gatewayRequest struct {
	ID     json.RawMessage `json:"id,omitempty"`
	Method string          `json:"method"`
	Path   string          `json:"path"`
	Body   json.RawMessage `json:"body,omitempty"`
}

// gatewayReply is one stdout line. ID echoes the request id.
type gatewayReply struct {
	ID json.RawMessage `json:"id,omitempty"`
	router.Response
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Answer gateway calls on stdin/stdout",
		Long: `Serve gateway calls as JSON lines.

Each stdin line is a call:
  {"id": 1, "method": "POST", "path": "/bills", "body": {...}}
and is answered by one stdout line:
  {"id": 1, "ok": true, "data": {...}}
  {"id": 1, "ok": false, "error": "bill has no valid items", "code": "NO_VALID_ITEMS"}

Calls are handled in order. Scheduled backups run in the background when
backup_interval_minutes is positive. The command exits at end of input or
on SIGINT/SIGTERM.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(opts, cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.AutoBackup, "auto-backup", true, "run scheduled backups")
	cmd.Flags().DurationVar(&opts.Tick, "backup-tick", backup.DefaultTick, "how often the backup schedule is checked")

	return cmd
}

func runServe(opts *ServeOptions, cmd *cobra.Command) error {
	log := newLogger(cmd.ErrOrStderr(), opts.Verbose)
	slog.SetDefault(log)

	a, err := openApp(opts.RootOptions, log)
	if err != nil {
		return err
	}
	defer a.Close()

	// Use command's context if available (for testing), otherwise create one
	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case sig := <-sigChan:
			log.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	if opts.AutoBackup {
		s := backup.NewScheduler(a.backups, opts.Tick)
		go func() { _ = s.Run(ctx) }()
	}

	log.Info("gateway ready", "store", a.cfg.Database)
	err = serveLines(ctx, a.router, cmd.InOrStdin(), cmd.OutOrStdout(), log)
	if err != nil && !errors.Is(err, context.Canceled) {
		return WrapExitError(ExitFailure, "gateway error", err)
	}

	log.Info("gateway stopped")
	return nil
}

// serveLines answers each request line of in with one reply line on out
// until in is exhausted or ctx is done.
func serveLines(ctx context.Context, r *router.Router, in io.Reader, out io.Writer, log *slog.Logger) error {
	lines := make(chan []byte)
	scanErr := make(chan error, 1)

	go func() {
		defer close(lines)
		sc := bufio.NewScanner(in)
		sc.Buffer(make([]byte, 64*1024), maxLineBytes)
		for sc.Scan() {
			line := append([]byte(nil), sc.Bytes()...)
			select {
			case lines <- line:
			case <-ctx.Done():
				return
			}
		}
		scanErr <- sc.Err()
	}()

	w := bufio.NewWriter(out)
	enc := json.NewEncoder(w)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line, ok := <-lines:
			if !ok {
				select {
				case err := <-scanErr:
					if err != nil {
						return fmt.Errorf("read request: %w", err)
					}
				default:
				}
				return nil
			}
			if strings.TrimSpace(string(line)) == "" {
				continue
			}

			if err := enc.Encode(handleLine(ctx, r, line, log)); err != nil {
				return fmt.Errorf("write reply: %w", err)
			}
			if err := w.Flush(); err != nil {
				return fmt.Errorf("write reply: %w", err)
			}
		}
	}
}

func handleLine(ctx context.Context, r *router.Router, line []byte, log *slog.Logger) gatewayReply {
	var req gatewayRequest
	if err := json.Unmarshal(line, &req); err != nil {
		log.Debug("malformed request line", "error", err)
		return gatewayReply{Response: router.Response{
			Error: fmt.Sprintf("invalid request line: %v", err),
			Code:  apperr.InvalidInput,
		}}
	}

	body := []byte(req.Body)
	if string(body) == "null" {
		body = nil
	}
	return gatewayReply{ID: req.ID, Response: r.Handle(ctx, req.Method, req.Path, body)}
}
