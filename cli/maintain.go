package cli

import (
	"strconv"

	"github.com/gear6io/lakeio/pkg/errors"
	"github.com/gear6io/lakeio/server/maintenance"
	"github.com/gear6io/lakeio/server/paths"
	"github.com/spf13/cobra"
)

// MaintainFailed is returned when at least one table operation failed
var MaintainFailed = errors.MustNewCode("cli.maintain_failed")

type maintainOptions struct {
	prefixes []string
	keys     []string
	dryRun   bool
}

func newMaintainCommand(a *app) *cobra.Command {
	opts := &maintainOptions{}
	cmd := &cobra.Command{
		Use:   "maintain",
		Short: "Compact and vacuum lake tables",
		Long: `Compact the data files of every target table and delete files no
longer referenced once they are older than the retention window.

Target tables are the asset keys containing one of the prefixes as a
segment. Without --key every table below the base path is considered.

Examples:
  lakeio maintain
  lakeio maintain --prefix gold --dry-run
  lakeio maintain --key silver/orders --key gold/summary`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runMaintain(cmd, opts)
		},
	}
	cmd.Flags().StringSliceVar(&opts.prefixes, "prefix", nil, "key segments selecting tables (default from config)")
	cmd.Flags().StringSliceVar(&opts.keys, "key", nil, "asset keys to consider, e.g. silver/orders")
	cmd.Flags().BoolVar(&opts.dryRun, "dry-run", false, "report what vacuum would delete without deleting")
	return cmd
}

func (a *app) runMaintain(cmd *cobra.Command, opts *maintainOptions) error {
	ctx := cmd.Context()
	d := newDisplay(cmd.OutOrStdout())

	job := &maintenance.Job{
		Backends:     a.registry,
		Resolver:     a.resolver,
		Retention:    a.cfg.VacuumRetention(),
		DryRun:       opts.dryRun || a.cfg.Maintenance.DryRun,
		Log:          a.cmdLog("maintain"),
		TableOptions: a.tableOptions(),
	}
	if err := job.Validate(); err != nil {
		return err
	}

	var keys []paths.AssetKey
	for _, raw := range opts.keys {
		key, err := paths.ParseAssetKey(raw)
		if err != nil {
			return err
		}
		keys = append(keys, key)
	}
	if len(keys) == 0 {
		discovered, err := job.DiscoverKeys(ctx)
		if err != nil {
			return err
		}
		keys = discovered
	}

	prefixes := opts.prefixes
	if len(prefixes) == 0 {
		prefixes = a.cfg.Maintenance.Prefixes
	}
	tables, err := job.TargetTables(keys, prefixes)
	if err != nil {
		return err
	}
	if len(tables) == 0 {
		d.Warning("No tables match prefixes %v", prefixes)
		return nil
	}

	results, err := job.Run(ctx, tables)
	if err != nil {
		return err
	}

	rows := make([][]string, len(results))
	for i, r := range results {
		rows[i] = []string{
			r.Table,
			r.Operation,
			r.Status,
			strconv.Itoa(r.FilesRemoved),
			strconv.Itoa(r.FilesAdded),
			strconv.Itoa(r.FilesDeleted),
			r.Error,
		}
	}
	if err := d.Table([]string{"Table", "Operation", "Status", "Removed", "Added", "Deleted", "Error"}, rows); err != nil {
		return err
	}

	if failed := maintenance.Failed(results); failed > 0 {
		return errors.New(MaintainFailed, "maintenance failed for some tables", nil).
			AddContext("failed", strconv.Itoa(failed))
	}
	if job.DryRun {
		d.Info("Dry run: no files were deleted")
	}
	d.Success("Maintained %d tables", len(tables))
	return nil
}
