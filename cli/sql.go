package cli

import (
	"github.com/gear6io/lakeio/server/iomanager"
	"github.com/gear6io/lakeio/server/paths"
	"github.com/gear6io/lakeio/server/query"
	"github.com/spf13/cobra"
)

type queryOptions struct {
	timing bool
}

func newQueryCommand(a *app) *cobra.Command {
	opts := &queryOptions{}
	cmd := &cobra.Command{
		Use:   "query <asset-key> <sql>",
		Short: "Run SQL against a table",
		Long: `Run a read-only SQL statement against the table at <asset-key> using
DuckDB. The table is visible as t.

Examples:
  lakeio query silver/orders "SELECT count(*) FROM t"
  lakeio query silver/orders "SELECT region, max(amount) FROM t GROUP BY region"`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runQuery(cmd, args[0], args[1], opts)
		},
	}
	cmd.Flags().BoolVar(&opts.timing, "timing", false, "show query execution time")
	return cmd
}

func (a *app) runQuery(cmd *cobra.Command, rawKey, sql string, opts *queryOptions) error {
	ctx := cmd.Context()
	d := newDisplay(cmd.OutOrStdout())
	logger := a.cmdLog("query")

	key, err := paths.ParseAssetKey(rawKey)
	if err != nil {
		return err
	}

	m := iomanager.NewLazyTableIOManager(a.resolver, a.registry, a.ioOptions()...)
	lf, err := m.LoadInput(ctx, &iomanager.InputContext{AssetKey: key, Log: logger})
	if err != nil {
		return err
	}

	engine, err := query.NewEngine(ctx, a.cfg.StorageOptions(), a.engineConfig(), logger)
	if err != nil {
		return err
	}
	defer engine.Close()

	res, err := engine.Execute(ctx, lf, sql)
	if err != nil {
		return err
	}

	if err := d.Table(res.Columns, rowsFromMaps(res.Columns, res.Rows)); err != nil {
		return err
	}
	if res.Truncated {
		d.Warning("Result truncated at %d rows", len(res.Rows))
	}
	if opts.timing {
		d.Info("%d rows in %s", len(res.Rows), res.Duration)
	}
	return nil
}

func (a *app) engineConfig() *query.EngineConfig {
	cfg := query.DefaultEngineConfig()
	cfg.MaxMemoryMB = a.cfg.Query.MaxMemoryMB
	cfg.QueryTimeout = a.cfg.QueryTimeout()
	cfg.MaxRows = a.cfg.Query.MaxRows
	cfg.EnableQueryValidation = a.cfg.Query.Validate
	return cfg
}
