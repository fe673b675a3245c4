package cli

import (
	"github.com/gear6io/lakeio/pkg/errors"
	"github.com/spf13/cobra"
)

func newCodesCommand() *cobra.Command {
	var pkg string
	cmd := &cobra.Command{
		Use:   "codes [code]",
		Short: "List the error codes lakeio can report",
		Long: `List the error codes declared by lakeio packages, as printed in the
"Code:" line of a failed command.

Examples:
  lakeio codes
  lakeio codes --package table
  lakeio codes table.commit_conflict`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			codes := errors.Codes(pkg)
			if len(args) == 1 {
				c, ok := errors.LookupCode(args[0])
				if !ok {
					return errors.New(errors.CommonNotFound, "unknown error code", nil).AddContext("code", args[0])
				}
				codes = []errors.Code{c}
			}
			if len(codes) == 0 {
				return errors.New(errors.CommonNotFound, "no error codes for package", nil).AddContext("package", pkg)
			}

			rows := make([][]string, len(codes))
			for i, c := range codes {
				rows[i] = []string{c.Package(), c.Name(), c.String()}
			}
			return newDisplay(cmd.OutOrStdout()).Table([]string{"Package", "Name", "Code"}, rows)
		},
	}
	cmd.Flags().StringVar(&pkg, "package", "", "only list codes of this package, e.g. table")
	return cmd
}
