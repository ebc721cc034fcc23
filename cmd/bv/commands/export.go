package commands

import (
	"fmt"
	"io"
	"os"

	"benchvault/pkg/app"
	"benchvault/pkg/benchdata"

	"github.com/spf13/cobra"
)

var exportOut string

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write the current document as data.js",
	Long: `Serialize the current snapshot in the window.BENCHMARK_DATA format.
Writes to stdout unless --out is given. Useful with the sql backend, which keeps no data.js.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireApp(); err != nil {
			return err
		}

		var w io.Writer = cmd.OutOrStdout()
		if exportOut != "" {
			f, err := os.Create(exportOut)
			if err != nil {
				return fmt.Errorf("failed to create %s: %w", exportOut, err)
			}
			defer f.Close()
			w = f
		}

		if err := benchdata.Encode(w, BV.Store.Snapshot(), app.EncodeOptions()); err != nil {
			return fmt.Errorf("failed to encode document: %w", err)
		}
		if exportOut != "" {
			fmt.Fprintf(cmd.ErrOrStderr(), "✅ Exported to %s\n", exportOut)
		}
		return nil
	},
}

func init() {
	exportCmd.Flags().StringVarP(&exportOut, "out", "o", "", "Output file (default stdout)")
	rootCmd.AddCommand(exportCmd)
}
