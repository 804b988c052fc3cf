package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/farm-ledger/internal/farms"
	"github.com/sells-group/farm-ledger/internal/model"
	"github.com/sells-group/farm-ledger/internal/reinforce"
	"github.com/sells-group/farm-ledger/internal/rules"
)

var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "Inspect and edit the dynamic attribution rules",
}

// -- rules list --

var rulesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List dynamic rules in evaluation order",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := cfg.Validate("review"); err != nil {
			return err
		}
		doc, err := rules.NewFileStore(cfg.Paths.DynamicRules).Load()
		if err != nil {
			return err
		}
		if len(doc.Rules) == 0 {
			fmt.Fprintln(os.Stderr, "No dynamic rules.")
			return nil
		}
		formatRules(os.Stdout, doc.Rules)
		return nil
	},
}

// -- rules add-bill-to --

var rulesAddBillToCmd = &cobra.Command{
	Use:   "add-bill-to",
	Short: "Map bill-to text to a farm",
	Long:  "Adds a bill-to-contains-all rule (--contains a,b,c) or a bill-to-match rule (--match \"text\"). Bill-to rules are evaluated before vendor+account rules.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		farmID, _ := cmd.Flags().GetString("farm")
		contains, _ := cmd.Flags().GetStringSlice("contains")
		match, _ := cmd.Flags().GetString("match")

		tokens := cleanTokens(contains)
		if (len(tokens) > 0) == (strings.TrimSpace(match) != "") {
			return eris.New("exactly one of --contains or --match is required")
		}

		if err := cfg.Validate("review"); err != nil {
			return err
		}
		roster, err := farms.Load(cfg.Paths.FarmsConfig)
		if err != nil {
			return eris.Wrap(err, "load farms config")
		}
		if _, ok := roster.Lookup(farmID); !ok {
			return eris.Errorf("unknown farm %q", farmID)
		}

		fs := rules.NewFileStore(cfg.Paths.DynamicRules)
		var added bool
		if len(tokens) > 0 {
			added, err = fs.AppendBillToContainsAll(farmID, tokens)
		} else {
			added, err = fs.AddBillToMatch(farmID, match)
		}
		if err != nil {
			return err
		}

		if added {
			fmt.Fprintf(os.Stdout, "Added bill-to rule for %s.\n", farmID)
		} else {
			fmt.Fprintf(os.Stdout, "An equal bill-to rule for %s already exists.\n", farmID)
		}
		return nil
	},
}

func init() {
	rulesAddBillToCmd.Flags().String("farm", "", "farm id the rule assigns")
	rulesAddBillToCmd.Flags().StringSlice("contains", nil, "tokens that must all appear in the text")
	rulesAddBillToCmd.Flags().String("match", "", "text that must appear in the text")
	_ = rulesAddBillToCmd.MarkFlagRequired("farm")

	rulesCmd.AddCommand(rulesListCmd)
	rulesCmd.AddCommand(rulesAddBillToCmd)
	rootCmd.AddCommand(rulesCmd)
}

// formatRules writes one line per rule to out.
func formatRules(out io.Writer, all []model.DynamicRule) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "RULE_ID\tTYPE\tFARM\tRULE")
	for _, r := range all {
		id, kind := r.RuleID, r.Type
		if id == "" {
			id = "-"
		}
		if kind == "" {
			kind = "vendor_account"
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", id, kind, r.TargetFarm(), describeRule(r))
	}
	_ = w.Flush()
}

func describeRule(r model.DynamicRule) string {
	switch r.Type {
	case model.RuleTypeBillToContainsAll:
		return "bill-to contains all [" + strings.Join(r.Tokens, ", ") + "]"
	case model.RuleTypeBillToMatch:
		return fmt.Sprintf("bill-to matches %q", r.MatchText)
	default:
		return reinforce.Describe(r)
	}
}

func cleanTokens(vals []string) []string {
	var out []string
	for _, v := range vals {
		if v = strings.ToLower(strings.TrimSpace(v)); v != "" {
			out = append(out, v)
		}
	}
	return out
}
