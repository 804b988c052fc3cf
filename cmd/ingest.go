package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/farm-ledger/internal/model"
)

var (
	ingestFile string
	ingestAll  bool
	ingestDir  string
	ingestJSON bool
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Ingest one invoice PDF or every PDF in the invoices directory",
	Long: "Runs invoices through extraction, farm attribution, parsing, validation and dedup.\n" +
		"With --file the command exits non-zero unless the invoice was recorded, parked for\n" +
		"review, or recognized as a duplicate. With --all failures are counted, never fatal.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if (ingestFile != "") == ingestAll {
			return eris.New("exactly one of --file or --all is required")
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initLedger(ctx, "ingest", true)
		if err != nil {
			return err
		}
		defer env.Close()

		if ingestFile != "" {
			out := env.Pipeline.ProcessFile(ctx, ingestFile)
			if err := printOutcome(os.Stdout, out); err != nil {
				return err
			}
			if !out.Succeeded() {
				cmd.SilenceUsage = true
				return eris.Errorf("ingest %s: %s (%s)", out.File, out.Status, out.Reason)
			}
			return nil
		}

		dir := ingestDir
		if dir == "" {
			dir = cfg.Paths.InvoicesDir
		}
		summary, err := env.Pipeline.ProcessBatch(ctx, dir)
		if summary != nil {
			notifyBatch(ctx, summary)
			if ingestJSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				if encErr := enc.Encode(summary); encErr != nil {
					return eris.Wrap(encErr, "encode summary")
				}
			} else {
				formatSummary(os.Stdout, summary)
			}
		}
		return err
	},
}

func init() {
	ingestCmd.Flags().StringVar(&ingestFile, "file", "", "path to a single invoice PDF")
	ingestCmd.Flags().BoolVar(&ingestAll, "all", false, "process every PDF in the invoices directory")
	ingestCmd.Flags().StringVar(&ingestDir, "dir", "", "invoices directory for --all (default from config)")
	ingestCmd.Flags().BoolVar(&ingestJSON, "json", false, "print the batch summary as JSON")
	rootCmd.AddCommand(ingestCmd)
}

func printOutcome(w io.Writer, out model.Outcome) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return eris.Wrap(enc.Encode(out), "encode outcome")
}

// formatSummary writes batch counts and the per-file outcomes to out.
func formatSummary(out io.Writer, s *model.Summary) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "FILE\tSTATUS\tFARM\tDETAIL")
	for _, o := range s.Outcomes {
		detail := o.Reason
		if o.Code != "" {
			detail += ": " + o.Code
		}
		if o.DuplicateOf != "" {
			detail = "duplicate of " + o.DuplicateOf + " (" + o.DuplicateBasis + ")"
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", o.File, o.Status, o.FarmID, detail)
	}
	_ = w.Flush()

	_, _ = fmt.Fprintf(out, "\nTotal: %d  Auto: %d  Manual: %d  Duplicate: %d  Failed: %d\n",
		s.Total, s.Auto, s.Manual, s.Duplicate, s.Failed)
}
