package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/meeteat/pos/internal/backup"
)

// BackupOptions holds flags for the backup commands.
type BackupOptions struct {
	*RootOptions
	Target string
	Dir    string
	File   string
}

// NewBackupCommand creates the backup command and its list subcommand.
func NewBackupCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &BackupOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Write a backup of the store",
		Long: `Write a consistent copy of the live store to a backup directory.

The directory is --target, else the backup_path setting, else the
configured backup_dir.

Examples:
  meeteat backup
  meeteat backup --target /mnt/usb/meeteat
  meeteat backup list --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(opts.RootOptions, cmd, func(ctx context.Context, a *app) (any, error) {
				path, err := a.backups.Backup(ctx, opts.Target)
				if err != nil {
					return nil, err
				}
				return map[string]string{"path": path}, nil
			})
		},
	}
	cmd.Flags().StringVar(&opts.Target, "target", "", "backup directory")

	list := &cobra.Command{
		Use:           "list",
		Short:         "List backups, most recent first",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(opts.RootOptions, cmd, func(ctx context.Context, a *app) (any, error) {
				return a.backups.Files(ctx, opts.Dir)
			})
		},
	}
	list.Flags().StringVar(&opts.Dir, "dir", "", "backup directory")
	cmd.AddCommand(list)

	return cmd
}

// NewRestoreCommand creates the restore command.
func NewRestoreCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &BackupOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "restore [source]",
		Short: "Replace the live store with a backup",
		Long: `Replace the live store with a backup file.

The source is a backup file, or a directory whose most recent backup is
used. Alternatively name a file inside a directory with --dir and --file.

Examples:
  meeteat restore data/backups
  meeteat restore data/backups/meet-eat-20240501_120000.db
  meeteat restore --dir data/backups --file meet-eat-20240501_120000.db`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			var source string
			if len(args) == 1 {
				source = args[0]
			}
			return withApp(opts.RootOptions, cmd, func(ctx context.Context, a *app) (any, error) {
				resolved, err := backup.Source(source, opts.Dir, opts.File)
				if err != nil {
					return nil, err
				}
				restored, err := a.backups.Restore(ctx, resolved)
				if err != nil {
					return nil, err
				}
				return map[string]string{"restored_from": restored}, nil
			})
		},
	}
	cmd.Flags().StringVar(&opts.Dir, "dir", "", "backup directory")
	cmd.Flags().StringVar(&opts.File, "file", "", "backup file name inside --dir")

	return cmd
}

// withApp opens the backend, runs fn and prints its result or error.
func withApp(opts *RootOptions, cmd *cobra.Command, fn func(ctx context.Context, a *app) (any, error)) error {
	a, err := openApp(opts, newLogger(cmd.ErrOrStderr(), opts.Verbose))
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	out := opts.formatter(cmd)
	result, err := fn(ctx, a)
	if err != nil {
		if ferr := out.Fail(err); ferr != nil {
			return ferr
		}
		return WrapExitError(ExitFailure, cmd.Name()+" failed", err)
	}
	return out.Success(result)
}
