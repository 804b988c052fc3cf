package main

import (
	"encoding/json"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/sells-group/farm-ledger/internal/source"
)

var fetchProcess bool

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Download new invoice PDFs from the FTP drop",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate("fetch"); err != nil {
			return err
		}

		src := source.NewFTPSource(source.FTPOptions{
			URL:      cfg.FTP.URL,
			User:     cfg.FTP.User,
			Password: cfg.FTP.Password,
			Dir:      cfg.FTP.Dir,
			Timeout:  time.Duration(cfg.FTP.TimeoutSecs) * time.Second,
		})
		res, err := src.Fetch(ctx, cfg.Paths.InvoicesDir)
		if err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(res); err != nil {
			return err
		}

		if !fetchProcess || len(res.Downloaded) == 0 {
			return nil
		}

		env, err := initLedger(ctx, "ingest", true)
		if err != nil {
			return err
		}
		defer env.Close()

		summary, err := env.Pipeline.ProcessBatch(ctx, cfg.Paths.InvoicesDir)
		if summary != nil {
			notifyBatch(ctx, summary)
			formatSummary(os.Stdout, summary)
		}
		return err
	},
}

func init() {
	fetchCmd.Flags().BoolVar(&fetchProcess, "process", false, "ingest the invoices directory after downloading")
	rootCmd.AddCommand(fetchCmd)
}
