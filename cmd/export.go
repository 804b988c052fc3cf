package main

import (
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/farm-ledger/internal/export"
	"github.com/sells-group/farm-ledger/internal/model"
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the ledger to an XLSX workbook",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		out, _ := cmd.Flags().GetString("out")
		farmID, _ := cmd.Flags().GetString("farm")
		status, _ := cmd.Flags().GetString("status")

		if err := cfg.Validate("export"); err != nil {
			return err
		}
		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return eris.Wrap(err, "migrate store")
		}

		if err := export.WriteFile(ctx, st, export.Options{
			FarmID: farmID,
			Status: model.TransactionStatus(status),
		}, out); err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "Wrote %s\n", out)
		return nil
	},
}

func init() {
	exportCmd.Flags().String("out", "ledger.xlsx", "output workbook path")
	exportCmd.Flags().String("farm", "", "only transactions for this farm id")
	exportCmd.Flags().String("status", "", "only transactions with this status")
	rootCmd.AddCommand(exportCmd)
}
