package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/gear6io/lakeio/pkg/errors"
	"github.com/gear6io/lakeio/server/frame"
	"github.com/gear6io/lakeio/server/iomanager"
	"github.com/gear6io/lakeio/server/paths"
	"github.com/spf13/cobra"
	"github.com/tidwall/gjson"
)

type jsonWriteOptions struct {
	partitions []string
	file       string
	text       string
}

type jsonReadOptions struct {
	partitions []string
}

func newJSONCommand(a *app) *cobra.Command {
	jsonCmd := &cobra.Command{
		Use:   "json",
		Short: "Write and read timestamped directory entries",
		Long: `Write and read JSON/text entries stored under
<base>/<asset-key>/<partition>/<YYYYMMDD_HHMM>.<ext>.

Examples:
  lakeio json write bronze/plays --partition 2024-05-01 --file payload.json
  lakeio json write bronze/notes --partition 2024-05-01 --text "hello"
  lakeio json read bronze/plays --partition 2024-05-01`,
	}

	writeOpts := &jsonWriteOptions{}
	writeCmd := &cobra.Command{
		Use:   "write <asset-key>",
		Short: "Write a JSON object or a text entry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runJSONWrite(cmd, args[0], writeOpts)
		},
	}
	writeCmd.Flags().StringSliceVar(&writeOpts.partitions, "partition", nil, "partition keys in scope, the greatest is used")
	writeCmd.Flags().StringVar(&writeOpts.file, "file", "", "JSON file holding an object")
	writeCmd.Flags().StringVar(&writeOpts.text, "text", "", "text payload")
	writeCmd.MarkFlagsMutuallyExclusive("file", "text")
	writeCmd.MarkFlagsOneRequired("file", "text")

	readOpts := &jsonReadOptions{}
	readCmd := &cobra.Command{
		Use:   "read <asset-key>",
		Short: "Print every entry of a partition directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runJSONRead(cmd, args[0], readOpts)
		},
	}
	readCmd.Flags().StringSliceVar(&readOpts.partitions, "partition", nil, "partition keys in scope, the greatest is used")

	jsonCmd.AddCommand(writeCmd, readCmd)
	return jsonCmd
}

func (a *app) runJSONWrite(cmd *cobra.Command, rawKey string, opts *jsonWriteOptions) error {
	ctx := cmd.Context()
	d := newDisplay(cmd.OutOrStdout())

	key, err := paths.ParseAssetKey(rawKey)
	if err != nil {
		return err
	}

	var value frame.Value = frame.Text(opts.text)
	if opts.file != "" {
		value, err = readJSONObject(opts.file)
		if err != nil {
			return err
		}
	}

	md := iomanager.NewMetadataLog()
	oc := &iomanager.OutputContext{
		AssetKey:      key,
		PartitionKeys: opts.partitions,
		Log:           a.cmdLog("json write"),
		Metadata:      md,
	}
	m := iomanager.NewJSONTextIOManager(a.resolver, a.registry, a.ioOptions()...)
	if err := m.HandleOutput(ctx, oc, value); err != nil {
		return err
	}

	file, _ := md.Get("file_path")
	d.Success("Wrote %s", file.String())
	return nil
}

// readJSONObject loads a file that must hold a single JSON object
func readJSONObject(file string) (frame.JSON, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, errors.New(errors.CommonNotFound, "failed to read JSON file", err).AddContext("file", file)
	}
	if !gjson.ValidBytes(data) || !gjson.ParseBytes(data).IsObject() {
		return nil, errors.New(errors.CommonInvalidInput, "file does not hold a JSON object", nil).
			AddContext("file", filepath.Base(file)).
			AddSuggestion("use --text for other payloads")
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var obj map[string]any
	if err := dec.Decode(&obj); err != nil {
		return nil, errors.New(errors.CommonInvalidInput, "failed to decode JSON file", err).AddContext("file", file)
	}
	return frame.JSON(obj), nil
}

func (a *app) runJSONRead(cmd *cobra.Command, rawKey string, opts *jsonReadOptions) error {
	ctx := cmd.Context()
	d := newDisplay(cmd.OutOrStdout())

	key, err := paths.ParseAssetKey(rawKey)
	if err != nil {
		return err
	}

	m := iomanager.NewJSONTextIOManager(a.resolver, a.registry, a.ioOptions()...)
	entries, err := m.LoadInput(ctx, &iomanager.InputContext{
		AssetKey:      key,
		PartitionKeys: opts.partitions,
		Log:           a.cmdLog("json read"),
	})
	if err != nil {
		return err
	}

	for _, e := range entries {
		switch v := e.(type) {
		case frame.JSON:
			b, err := json.MarshalIndent(v, "", "  ")
			if err != nil {
				return err
			}
			d.Println(string(b))
		case frame.JSONValue:
			b, err := json.MarshalIndent(v.Value, "", "  ")
			if err != nil {
				return err
			}
			d.Println(string(b))
		case frame.Text:
			d.Println(string(v))
		}
	}
	d.Info("%d entries", len(entries))
	return nil
}
