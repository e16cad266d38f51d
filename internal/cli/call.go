package cli

import (
	"context"
	"encoding/json"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/meeteat/pos/internal/apperr"
)

// CallOptions holds flags for the call command.
type CallOptions struct {
	*RootOptions
	Body     string
	BodyFile string
}

// NewCallCommand creates the call command.
func NewCallCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CallOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "call <method> <path>",
		Short: "Dispatch one gateway call",
		Long: `Dispatch one (method, path, body) call through the request router
and print the result.

Examples:
  meeteat call GET /health
  meeteat call GET '/bills?page=2&limit=10'
  meeteat call POST /products --body '{"name":"Masala Tea","price_cents":2000}'
  meeteat call POST /print --body-file receipt.json --format json`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCall(opts, args[0], args[1], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Body, "body", "", "request body as JSON")
	cmd.Flags().StringVar(&opts.BodyFile, "body-file", "", "read the request body from a file (- for stdin)")
	cmd.MarkFlagsMutuallyExclusive("body", "body-file")

	return cmd
}

func runCall(opts *CallOptions, method, path string, cmd *cobra.Command) error {
	body, err := opts.readBody(cmd.InOrStdin())
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read body", err)
	}
	if len(body) > 0 && !json.Valid(body) {
		if ferr := opts.formatter(cmd).Error(string(apperr.InvalidInput), "body is not valid JSON", string(body)); ferr != nil {
			return ferr
		}
		return NewExitError(ExitCommandError, "body is not valid JSON")
	}

	return withApp(opts.RootOptions, cmd, func(ctx context.Context, a *app) (any, error) {
		return a.router.Dispatch(ctx, method, path, body)
	})
}

func (o *CallOptions) readBody(stdin io.Reader) ([]byte, error) {
	switch o.BodyFile {
	case "":
		return []byte(o.Body), nil
	case "-":
		return io.ReadAll(stdin)
	default:
		return os.ReadFile(o.BodyFile)
	}
}
