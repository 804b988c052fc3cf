package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/farm-ledger/internal/model"
	"github.com/sells-group/farm-ledger/internal/reinforce"
	"github.com/sells-group/farm-ledger/internal/review"
)

var reviewCmd = &cobra.Command{
	Use:   "review",
	Short: "Work the manual review queue",
	Long:  "Commands for listing parked invoices, assigning them to a farm, and reinforcing the dynamic rules from each correction.",
}

// -- review list --

var reviewListCmd = &cobra.Command{
	Use:   "list",
	Short: "List open manual review items",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		env, err := initLedger(ctx, "review", false)
		if err != nil {
			return err
		}
		defer env.Close()

		items, err := env.Review.Open(ctx)
		if err != nil {
			return err
		}
		if len(items) == 0 {
			fmt.Fprintln(os.Stderr, "Review queue is empty.")
			return nil
		}
		formatQueue(os.Stdout, items)
		return nil
	},
}

// -- review resolve --

var reviewResolveCmd = &cobra.Command{
	Use:   "resolve",
	Short: "Assign a transaction to a farm",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		txID, _ := cmd.Flags().GetInt64("tx")
		docID, _ := cmd.Flags().GetString("doc")
		farmID, _ := cmd.Flags().GetString("farm")
		reinforceRules, _ := cmd.Flags().GetBool("reinforce")
		billTo, _ := cmd.Flags().GetBool("bill-to")
		dryRun, _ := cmd.Flags().GetBool("dry-run")
		notes, _ := cmd.Flags().GetString("notes")

		if (txID == 0) == (docID == "") {
			return eris.New("exactly one of --tx or --doc is required")
		}

		env, err := initLedger(ctx, "review", false)
		if err != nil {
			return err
		}
		defer env.Close()

		res, err := env.Review.Resolve(ctx, review.Request{
			TxID:      txID,
			DocID:     docID,
			FarmID:    farmID,
			Reinforce: reinforceRules,
			BillTo:    billTo,
			DryRun:    dryRun,
			Notes:     notes,
		})
		if err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	},
}

// -- review interactive --

var reviewInteractiveCmd = &cobra.Command{
	Use:   "interactive",
	Short: "Step through the review queue and assign farms",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		billTo, _ := cmd.Flags().GetBool("bill-to")

		env, err := initLedger(ctx, "review", false)
		if err != nil {
			return err
		}
		defer env.Close()

		return runInteractive(ctx, env.Review, env.Farms, cmd.InOrStdin(), cmd.OutOrStdout(), billTo)
	},
}

func init() {
	reviewResolveCmd.Flags().Int64("tx", 0, "transaction id")
	reviewResolveCmd.Flags().String("doc", "", "document id")
	reviewResolveCmd.Flags().String("farm", "", "farm id to assign")
	reviewResolveCmd.Flags().Bool("reinforce", false, "add vendor+account rules learned from this correction")
	reviewResolveCmd.Flags().Bool("bill-to", false, "add a bill-to rule from the head of the document text")
	reviewResolveCmd.Flags().Bool("dry-run", false, "show what would change without writing")
	reviewResolveCmd.Flags().String("notes", "", "free-form notes stored with the decision")
	_ = reviewResolveCmd.MarkFlagRequired("farm")

	reviewInteractiveCmd.Flags().Bool("bill-to", false, "also add a bill-to rule for each resolved item")

	reviewCmd.AddCommand(reviewListCmd)
	reviewCmd.AddCommand(reviewResolveCmd)
	reviewCmd.AddCommand(reviewInteractiveCmd)
	rootCmd.AddCommand(reviewCmd)
}

// formatQueue writes a tabular view of review items to out.
func formatQueue(out io.Writer, items []model.ReviewQueueItem) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "DOC_ID\tFILE\tCONFIDENCE\tTOP_CANDIDATE\tREASON\tQUEUED")
	for _, it := range items {
		top := "-"
		if len(it.Candidates) > 0 {
			top = fmt.Sprintf("%s (%.2f)", it.Candidates[0].FarmID, it.Candidates[0].Score)
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%.2f\t%s\t%s\t%s\n",
			it.DocID, it.FileName, it.Confidence, top, it.Reason,
			it.CreatedAt.Format("2006-01-02 15:04"),
		)
	}
	_ = w.Flush()
}

// runInteractive prompts for a farm for each open item. Answers are a
// candidate number, a farm id, "s" to skip or "q" to quit. Each rule
// proposal is confirmed before it is written.
func runInteractive(ctx context.Context, svc *review.Service, roster *model.FarmsConfig, in io.Reader, out io.Writer, billTo bool) error {
	items, err := svc.Open(ctx)
	if err != nil {
		return err
	}
	if len(items) == 0 {
		_, _ = fmt.Fprintln(out, "Review queue is empty.")
		return nil
	}

	sc := bufio.NewScanner(in)
	ask := func(prompt string) (string, bool) {
		_, _ = fmt.Fprint(out, prompt)
		if !sc.Scan() {
			return "", false
		}
		return strings.TrimSpace(sc.Text()), true
	}

	resolved := 0
	for i, it := range items {
		_, _ = fmt.Fprintf(out, "\n[%d/%d] %s  %s  confidence %.2f  %s\n", i+1, len(items), it.DocID, it.FileName, it.Confidence, it.Reason)
		if it.ExtractedTextPreview != "" {
			_, _ = fmt.Fprintf(out, "%s\n", indent(it.ExtractedTextPreview))
		}
		for n, c := range it.Candidates {
			_, _ = fmt.Fprintf(out, "  %d) %s  %s  %.2f\n", n+1, c.FarmID, c.FarmName, c.Score)
		}

		farmID, quit := "", false
		for farmID == "" && !quit {
			answer, ok := ask("Farm (number or id, s=skip, q=quit): ")
			switch {
			case !ok || answer == "q":
				quit = true
			case answer == "s":
				farmID = "-"
			default:
				farmID = pickFarm(answer, it.Candidates, roster)
				if farmID == "" {
					_, _ = fmt.Fprintf(out, "Unknown farm %q.\n", answer)
				}
			}
		}
		if quit {
			break
		}
		if farmID == "-" {
			continue
		}

		res, err := svc.Resolve(ctx, review.Request{
			DocID:     it.DocID,
			FarmID:    farmID,
			Reinforce: true,
			BillTo:    billTo,
			Accept: func(p model.DynamicRule) bool {
				answer, _ := ask(fmt.Sprintf("Add rule %s? [y/N]: ", reinforce.Describe(p)))
				return strings.EqualFold(answer, "y") || strings.EqualFold(answer, "yes")
			},
		})
		if err != nil {
			_, _ = fmt.Fprintf(out, "Could not resolve %s: %v\n", it.DocID, err)
			continue
		}
		resolved++
		_, _ = fmt.Fprintf(out, "Assigned %s to %s (rules added: %d, bill-to rule added: %t)\n",
			it.DocID, farmID, len(res.AddedRules), res.BillToAdded)
	}

	_, _ = fmt.Fprintf(out, "\nResolved %d of %d.\n", resolved, len(items))
	return nil
}

// pickFarm maps an answer to a configured farm id: a 1-based candidate
// number or a farm id. It returns "" when neither matches.
func pickFarm(answer string, candidates []model.TagCandidate, roster *model.FarmsConfig) string {
	if n, err := strconv.Atoi(answer); err == nil {
		if n >= 1 && n <= len(candidates) {
			return candidates[n-1].FarmID
		}
		return ""
	}
	if _, ok := roster.Lookup(answer); ok {
		return answer
	}
	return ""
}

func indent(s string) string {
	return "    " + strings.ReplaceAll(s, "\n", "\n    ")
}
