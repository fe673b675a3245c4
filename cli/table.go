package cli

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/csv"
	"github.com/gear6io/lakeio/pkg/errors"
	"github.com/gear6io/lakeio/server/frame"
	"github.com/gear6io/lakeio/server/iomanager"
	"github.com/gear6io/lakeio/server/paths"
	"github.com/spf13/cobra"
)

type tableImportOptions struct {
	csvFile       string
	primaryKeys   []string
	partitionCols []string
	delimiter     string
}

type tableShowOptions struct {
	limit   int64
	where   []string
	columns []string
}

func newTableCommand(a *app) *cobra.Command {
	tableCmd := &cobra.Command{
		Use:   "table",
		Short: "Manage lake tables",
		Long: `Manage lake tables addressed by asset key.

This command provides subcommands for table operations:
- import: Write a CSV file through the table IO manager
- show: Print the first rows of a table
- history: Show the commit history of a table

Examples:
  lakeio table import silver/orders --csv orders.csv --primary-key id
  lakeio table import gold/plays --csv plays.csv --partition-col region
  lakeio table show silver/orders --limit 20
  lakeio table history silver/orders`,
	}

	importOpts := &tableImportOptions{}
	importCmd := &cobra.Command{
		Use:   "import <asset-key>",
		Short: "Import a CSV file into a table",
		Long: `Import a CSV file into the table at <asset-key>.

The write mode follows the table IO manager:
- with --primary-key and an existing table the rows are merged
- with --partition-col the table is overwritten, partitioned by those columns
- otherwise the whole table is overwritten`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runTableImport(cmd, args[0], importOpts)
		},
	}
	importCmd.Flags().StringVar(&importOpts.csvFile, "csv", "", "CSV file with a header row")
	if err := importCmd.MarkFlagRequired("csv"); err != nil {
		panic(fmt.Sprintf("Failed to mark csv flag as required: %v", err))
	}
	importCmd.Flags().StringSliceVar(&importOpts.primaryKeys, "primary-key", nil, "merge key columns")
	importCmd.Flags().StringSliceVar(&importOpts.partitionCols, "partition-col", nil, "partition columns")
	importCmd.Flags().StringVar(&importOpts.delimiter, "delimiter", ",", "CSV field delimiter")

	showOpts := &tableShowOptions{}
	showCmd := &cobra.Command{
		Use:   "show <asset-key>",
		Short: "Print the first rows of a table",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runTableShow(cmd, args[0], showOpts)
		},
	}
	showCmd.Flags().Int64Var(&showOpts.limit, "limit", 10, "maximum number of rows to show")
	showCmd.Flags().StringArrayVar(&showOpts.where, "where", nil, "column=value filter, repeatable")
	showCmd.Flags().StringSliceVar(&showOpts.columns, "columns", nil, "columns to show")

	historyCmd := &cobra.Command{
		Use:   "history <asset-key>",
		Short: "Show the commit history of a table",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runTableHistory(cmd, args[0])
		},
	}

	tableCmd.AddCommand(importCmd, showCmd, historyCmd)
	return tableCmd
}

func (a *app) runTableImport(cmd *cobra.Command, rawKey string, opts *tableImportOptions) error {
	ctx := cmd.Context()
	d := newDisplay(cmd.OutOrStdout())
	logger := a.cmdLog("table import")

	key, err := paths.ParseAssetKey(rawKey)
	if err != nil {
		return err
	}

	f, err := os.Open(opts.csvFile)
	if err != nil {
		return errors.New(errors.CommonNotFound, "failed to open CSV file", err).AddContext("file", opts.csvFile)
	}
	defer f.Close()

	data, err := readCSV(f, opts.delimiter)
	if err != nil {
		return errors.AddContext(err, "file", opts.csvFile)
	}
	defer data.Release()

	logger.Info().
		Str("asset_key", key.String()).
		Int64("rows", data.NumRows()).
		Strs("primary_keys", opts.primaryKeys).
		Strs("partition_cols", opts.partitionCols).
		Msg("Importing CSV")

	md := iomanager.NewMetadataLog()
	oc := &iomanager.OutputContext{
		AssetKey: key,
		DefinitionMetadata: map[string]any{
			iomanager.MetadataPrimaryKeys:   opts.primaryKeys,
			iomanager.MetadataPartitionCols: opts.partitionCols,
		},
		Log:      logger,
		Metadata: md,
	}

	m := iomanager.NewEagerTableIOManager(a.resolver, a.registry, a.ioOptions()...)
	if err := m.HandleOutput(ctx, oc, data); err != nil {
		return err
	}

	d.Success("Imported %d rows into %s", data.NumRows(), key)
	return d.Metadata(md)
}

// readCSV reads a whole CSV file, inferring column types from the data
func readCSV(r io.Reader, delimiter string) (*frame.EagerFrame, error) {
	if len([]rune(delimiter)) != 1 {
		return nil, errors.New(errors.CommonInvalidInput, "delimiter must be a single character", nil).
			AddContext("delimiter", delimiter)
	}

	rdr := csv.NewInferringReader(r,
		csv.WithHeader(true),
		csv.WithComma([]rune(delimiter)[0]),
		csv.WithNullReader(true, ""),
		csv.WithChunk(4096),
	)
	defer rdr.Release()

	var recs []arrow.Record
	defer func() {
		for _, rec := range recs {
			rec.Release()
		}
	}()
	for rdr.Next() {
		rec := rdr.Record()
		rec.Retain()
		recs = append(recs, rec)
	}
	if err := rdr.Err(); err != nil && err != io.EOF {
		return nil, errors.New(errors.CommonInvalidInput, "failed to read CSV", err)
	}

	schema := rdr.Schema()
	if schema == nil {
		return nil, errors.New(errors.CommonInvalidInput, "CSV file has no rows to infer a schema from", nil)
	}
	return frame.FromRecords(schema, recs), nil
}

func (a *app) runTableShow(cmd *cobra.Command, rawKey string, opts *tableShowOptions) error {
	ctx := cmd.Context()
	d := newDisplay(cmd.OutOrStdout())

	key, err := paths.ParseAssetKey(rawKey)
	if err != nil {
		return err
	}

	m := iomanager.NewLazyTableIOManager(a.resolver, a.registry, a.ioOptions()...)
	lf, err := m.LoadInput(ctx, &iomanager.InputContext{AssetKey: key, Log: a.cmdLog("table show")})
	if err != nil {
		return err
	}
	lf, err = applyShowOptions(lf, opts)
	if err != nil {
		return err
	}

	ef, err := lf.Collect(ctx)
	if err != nil {
		return err
	}
	defer ef.Release()
	rows, err := ef.ToRows()
	if err != nil {
		return err
	}

	cells := make([][]string, len(rows.Rows))
	for i, r := range rows.Rows {
		cells[i] = make([]string, len(r))
		for j, v := range r {
			cells[i][j] = formatValue(v)
		}
	}
	if err := d.Table(rows.Columns, cells); err != nil {
		return err
	}
	d.Info("%d rows", len(cells))
	return nil
}

func applyShowOptions(lf *frame.LazyFrame, opts *tableShowOptions) (*frame.LazyFrame, error) {
	for _, w := range opts.where {
		col, val, ok := strings.Cut(w, "=")
		if !ok || col == "" {
			return nil, errors.New(errors.CommonInvalidInput, "filter must be column=value", nil).AddContext("where", w)
		}
		lf = lf.Where(col, val)
	}
	if len(opts.columns) > 0 {
		lf = lf.Select(opts.columns...)
	}
	if opts.limit >= 0 {
		lf = lf.Limit(opts.limit)
	}
	return lf, nil
}

func (a *app) runTableHistory(cmd *cobra.Command, rawKey string) error {
	ctx := cmd.Context()
	d := newDisplay(cmd.OutOrStdout())

	key, err := paths.ParseAssetKey(rawKey)
	if err != nil {
		return err
	}
	t, err := a.openTable(key)
	if err != nil {
		return err
	}
	commits, err := t.History(ctx)
	if err != nil {
		return err
	}

	rows := make([][]string, len(commits))
	for i, c := range commits {
		rows[i] = []string{
			strconv.FormatInt(c.Version, 10),
			time.UnixMilli(c.Timestamp).UTC().Format(time.RFC3339),
			c.Operation,
			formatParameters(c.Parameters),
			strconv.Itoa(len(c.Files)),
			strconv.Itoa(len(c.Removed)),
		}
	}
	return d.Table([]string{"Version", "Timestamp", "Operation", "Parameters", "Files", "Removed"}, rows)
}

func formatParameters(params map[string]string) string {
	if len(params) == 0 {
		return ""
	}
	parts := make([]string, 0, len(params))
	for _, k := range sortedStrings(params) {
		parts = append(parts, k+"="+params[k])
	}
	return strings.Join(parts, " ")
}
