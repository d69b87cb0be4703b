package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/ppiankov/medrights/internal/advisor"
)

var (
	explainPretty bool
	searchJSON    bool
)

// explainCmd represents the explain command
var explainCmd = &cobra.Command{
	Use:   "explain <clause-id>",
	Short: "Explain one clause in full",
	Long: `Show the full text of a clause with its paraphrase, rights, obligations,
exceptions, timeframes and citation.

Examples:
  medrights explain NHRC-2
  medrights explain IMC-1.3.2`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		adv, cfg, err := loadAdvisor()
		if err != nil {
			return err
		}
		if _, err := adv.Clause(args[0]); err != nil {
			return err
		}

		pretty := cfg.Output.Pretty
		if cmd.Flags().Changed("pretty") {
			pretty = explainPretty
		}
		return printMarkdown(cmd.OutOrStdout(), adv.ExplainClause(args[0]), pretty)
	},
}

// searchCmd represents the search command
var searchCmd = &cobra.Command{
	Use:   "search <term>",
	Short: "Search clauses by keyword",
	Long: `Search clause keywords, titles and paraphrases for a term. At most 20
results are shown; the total counts every match.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		adv, _, err := loadAdvisor()
		if err != nil {
			return err
		}

		result := adv.SearchKnowledge(args[0])
		if searchJSON {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(result)
		}
		printSearch(cmd.OutOrStdout(), result)
		return nil
	},
}

func init() {
	explainCmd.Flags().BoolVar(&explainPretty, "pretty", false, "render markdown for the terminal")
	searchCmd.Flags().BoolVar(&searchJSON, "json", false, "print results as JSON")

	rootCmd.AddCommand(explainCmd)
	rootCmd.AddCommand(searchCmd)
}

func printSearch(w io.Writer, result advisor.SearchResult) {
	if len(result.Results) == 0 {
		fmt.Fprintf(w, "No clauses match %q\n", result.Query)
		return
	}

	fmt.Fprintf(w, "%d clause(s) match %q", result.Total, result.Query)
	if result.Total > len(result.Results) {
		fmt.Fprintf(w, " (showing %d)", len(result.Results))
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w)

	for _, c := range result.Results {
		fmt.Fprintf(w, "  %-12s %s\n", c.ID, c.Title)
		fmt.Fprintf(w, "  %-12s %s\n\n", "", c.Summary)
	}
}
