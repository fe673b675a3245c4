package cli

import (
	"context"

	"github.com/gear6io/lakeio/server/config"
	"github.com/gear6io/lakeio/server/iomanager"
	"github.com/gear6io/lakeio/server/paths"
	"github.com/gear6io/lakeio/server/storage"
	"github.com/gear6io/lakeio/server/storage/engines"
	"github.com/gear6io/lakeio/server/storage/table"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

// app is the state shared by every command of one invocation
type app struct {
	configFile string
	basePath   string
	logLevel   string

	cfg      *config.Config
	log      zerolog.Logger
	registry *storage.Registry
	resolver *paths.Resolver
	clock    clockwork.Clock
}

// NewRootCommand builds the lakeio command tree
func NewRootCommand() *cobra.Command {
	return newRootCommand(&app{clock: clockwork.NewRealClock()})
}

func newRootCommand(a *app) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "lakeio",
		Short: "Read and write lake tables and directory entries",
		Long: `lakeio persists pipeline outputs to a lake: Delta-style tables that are
overwritten, partition-overwritten or merged on primary keys, and
timestamped JSON/text entries stored under partition directories.

Locations are derived from asset keys below a base path, which may be a
local directory, file:// or s3:// URL.`,
		Version:           "0.1.0",
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return a.setup() },
	}

	rootCmd.PersistentFlags().StringVarP(&a.configFile, "config", "c", "", "path to a YAML config file")
	rootCmd.PersistentFlags().StringVar(&a.basePath, "base-path", "", "lake base path (overrides config)")
	rootCmd.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "log level (overrides config)")

	rootCmd.AddCommand(newTableCommand(a))
	rootCmd.AddCommand(newJSONCommand(a))
	rootCmd.AddCommand(newMaintainCommand(a))
	rootCmd.AddCommand(newQueryCommand(a))
	rootCmd.AddCommand(newCodesCommand())
	return rootCmd
}

// ExecuteWithContext runs the root command
func ExecuteWithContext(ctx context.Context, args []string) error {
	cmd := NewRootCommand()
	cmd.SetArgs(args)
	return cmd.ExecuteContext(ctx)
}

// setup loads configuration and builds the storage stack
func (a *app) setup() error {
	cfg, err := config.LoadConfig(a.configFile)
	if err != nil {
		return err
	}
	if a.basePath != "" {
		cfg.Storage.BasePath = a.basePath
	}
	if a.logLevel != "" {
		cfg.Log.Level = a.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, err := config.SetupLogger(cfg)
	if err != nil {
		return err
	}
	resolver, err := paths.NewResolver(cfg.Storage.BasePath)
	if err != nil {
		return err
	}

	a.cfg = cfg
	a.log = logger
	a.resolver = resolver
	a.registry = engines.NewRegistry(cfg.StorageOptions(), logger)
	a.log.Debug().
		Str("base_path", cfg.Storage.BasePath).
		Str("options", cfg.StorageOptions().String()).
		Msg("Configuration loaded")
	return nil
}

func (a *app) tableOptions() []table.Option {
	return []table.Option{
		table.WithParquetConfig(&a.cfg.Table.Parquet),
		table.WithMaxRowsPerFile(a.cfg.Table.MaxRowsPerFile),
		table.WithClock(a.clock),
		table.WithLogger(a.log),
	}
}

func (a *app) ioOptions() []iomanager.Option {
	return []iomanager.Option{
		iomanager.WithTableOptions(a.tableOptions()...),
		iomanager.WithClock(a.clock),
		iomanager.WithTextExtension(a.cfg.JSON.TextExtension),
	}
}

// openTable returns the table handle for an asset key
func (a *app) openTable(key paths.AssetKey) (*table.Table, error) {
	path, err := a.resolver.TablePath(key)
	if err != nil {
		return nil, err
	}
	fs, err := a.registry.Resolve(path)
	if err != nil {
		return nil, err
	}
	return table.New(fs, path, a.tableOptions()...), nil
}

func (a *app) cmdLog(name string) zerolog.Logger {
	return a.log.With().Str("cmd", name).Logger()
}
