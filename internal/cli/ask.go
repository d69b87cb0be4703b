package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ppiankov/medrights/internal/advisor"
	"github.com/ppiankov/medrights/internal/model"
)

var (
	askProof  bool
	askPretty bool
	askJSON   bool
)

// askCmd represents the ask command
var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Answer a patient rights question",
	Long: `Answer a free-text question about patient rights.

The answer cites every clause it is built from and ends with a disclaimer.
With --proof a proof trace is appended listing the matched intents, the
cited clauses and the template used.

Examples:
  medrights ask "doctor refused to give my medical reports"
  medrights ask --proof "hospital asked for advance payment in emergency"
  medrights ask --json "surgery done without my permission"`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.close(cmd.Context())

		applyOutputFlags(cmd, &a.cfg.Output)

		query := strings.Join(args, " ")
		resp, err := a.advisor.ProcessQuery(cmd.Context(), advisor.Request{
			Query:     query,
			ShowProof: a.cfg.Output.ShowProof,
			Client:    "cli",
		})
		if err != nil {
			return err
		}

		if a.cfg.Output.Verbose {
			printScores(cmd.ErrOrStderr(), a.advisor, resp.Trace.Query)
		}

		if askJSON {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(resp)
		}
		return printMarkdown(cmd.OutOrStdout(), resp.Answer, a.cfg.Output.Pretty)
	},
}

func init() {
	askCmd.Flags().BoolVar(&askProof, "proof", false, "append the proof trace")
	askCmd.Flags().BoolVar(&askPretty, "pretty", false, "render markdown for the terminal")
	askCmd.Flags().BoolVar(&askJSON, "json", false, "print the response as JSON")

	rootCmd.AddCommand(askCmd)
}

// applyOutputFlags lets explicit --proof and --pretty flags override the
// configured output settings
func applyOutputFlags(cmd *cobra.Command, out *model.OutputConfig) {
	if f := cmd.Flags().Lookup("proof"); f != nil && f.Changed {
		out.ShowProof = f.Value.String() == "true"
	}
	if f := cmd.Flags().Lookup("pretty"); f != nil && f.Changed {
		out.Pretty = f.Value.String() == "true"
	}
}

// printScores writes the raw classifier breakdown for every intent that
// scored
func printScores(w io.Writer, adv *advisor.Advisor, query string) {
	scores := adv.Snapshot().Pipeline.Classifier().Scores(query)

	fmt.Fprintf(w, "Intent scores for %q:\n", query)
	if len(scores) == 0 {
		fmt.Fprintln(w, "  (no intent scored)")
	}
	for _, s := range scores {
		fmt.Fprintf(w, "  %-28s raw=%-4g confidence=%.2f", s.Intent, s.Raw, s.Confidence)
		if len(s.Keywords) > 0 {
			fmt.Fprintf(w, " keywords=%s", strings.Join(s.Keywords, ","))
		}
		if len(s.Patterns) > 0 {
			fmt.Fprintf(w, " patterns=%s", strings.Join(s.Patterns, ","))
		}
		if len(s.Verbs) > 0 {
			fmt.Fprintf(w, " verbs=%s", strings.Join(s.Verbs, ","))
		}
		fmt.Fprintln(w)
	}
	fmt.Fprintln(w)
}
