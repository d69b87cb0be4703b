package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/ppiankov/medrights/internal/model"
	"github.com/ppiankov/medrights/internal/worker"
)

var (
	batchWorkers int
	batchOutput  string
	batchProof   bool
	batchRate    float64
)

// batchCmd represents the batch command
var batchCmd = &cobra.Command{
	Use:   "batch <file>",
	Short: "Answer many questions from a file",
	Long: `Answer questions from a text file (one question per line) concurrently.

Lines starting with # are comments. Repeated questions are answered once.
One JSON object is written per question, in file order.

Examples:
  medrights batch questions.txt
  medrights batch questions.txt --workers 8 --output answers.jsonl
  medrights batch questions.txt --rate 2`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.close(cmd.Context())

		applyOutputFlags(cmd, &a.cfg.Output)

		workers := a.cfg.Batch.Workers
		if cmd.Flags().Changed("workers") {
			workers = batchWorkers
		}

		var out io.Writer = cmd.OutOrStdout()
		if batchOutput != "" {
			f, createErr := os.Create(batchOutput)
			if createErr != nil {
				return fmt.Errorf("create output: %w", createErr)
			}
			defer func() {
				if closeErr := f.Close(); closeErr != nil && err == nil {
					err = fmt.Errorf("close output: %w", closeErr)
				}
			}()
			out = f
		}

		rps := a.cfg.Batch.RequestsPerSecond
		if cmd.Flags().Changed("rate") {
			rps = batchRate
		}

		stderr := cmd.ErrOrStderr()
		fmt.Fprintf(stderr, "Processing queries from: %s\n", args[0])
		fmt.Fprintf(stderr, "Concurrency: %d workers\n", workers)
		if rps > 0 {
			fmt.Fprintf(stderr, "Rate limit: %g queries/s\n", rps)
		}
		fmt.Fprintln(stderr)

		start := time.Now()
		processor := worker.NewBatchProcessor(a.advisor, workers, a.cfg.Output.ShowProof)
		if rps > 0 {
			processor.SetLimiter(worker.NewLimiter(rps, max(workers, 1), 1))
		}
		results, err := processor.ProcessFile(cmd.Context(), args[0])
		if err != nil {
			return fmt.Errorf("batch processing failed: %w", err)
		}

		summary, err := writeBatchResults(out, stderr, results)
		if err != nil {
			return err
		}

		fmt.Fprintf(stderr, "\n═══════════════════════════════════════════════════════════\n")
		fmt.Fprintf(stderr, "Batch Summary:\n")
		fmt.Fprintf(stderr, "  Total:     %d\n", summary.total)
		fmt.Fprintf(stderr, "  Answered:  %d\n", summary.answered)
		fmt.Fprintf(stderr, "  No match:  %d\n", summary.noMatch)
		fmt.Fprintf(stderr, "  Failed:    %d\n", summary.failed)
		fmt.Fprintf(stderr, "  Duration:  %s\n", time.Since(start).Round(time.Millisecond))
		fmt.Fprintf(stderr, "═══════════════════════════════════════════════════════════\n")

		if summary.failed > 0 {
			return fmt.Errorf("%d of %d queries failed", summary.failed, summary.total)
		}
		return nil
	},
}

func init() {
	batchCmd.Flags().IntVarP(&batchWorkers, "workers", "w", 4, "number of concurrent workers")
	batchCmd.Flags().StringVarP(&batchOutput, "output", "o", "", "write JSON lines here instead of stdout")
	batchCmd.Flags().BoolVar(&batchProof, "proof", false, "include the proof trace in answers")
	batchCmd.Flags().Float64Var(&batchRate, "rate", 0, "maximum queries per second (0 for no limit)")

	rootCmd.AddCommand(batchCmd)
}

// batchLine is one output record
type batchLine struct {
	Query       string            `json:"query"`
	ID          string            `json:"id,omitempty"`
	Response    string            `json:"response,omitempty"`
	ProofTrace  *model.ProofTrace `json:"proof_trace,omitempty"`
	DataVersion string            `json:"data_version,omitempty"`
	Error       string            `json:"error,omitempty"`
}

type batchSummary struct {
	total    int
	answered int
	noMatch  int
	failed   int
}

// writeBatchResults writes one JSON line per result and a progress line per
// query to progress
func writeBatchResults(out, progress io.Writer, results []*worker.QueryResult) (batchSummary, error) {
	enc := json.NewEncoder(out)
	var s batchSummary

	for _, r := range results {
		s.total++
		line := batchLine{Query: r.Query}
		switch {
		case r.Error != nil:
			s.failed++
			line.Error = r.Error.Error()
			fmt.Fprintf(progress, "✗ %s: %v\n", r.Query, r.Error)
		default:
			line.ID = r.Response.ID
			line.Response = r.Response.Answer
			line.ProofTrace = &r.Response.Trace
			line.DataVersion = r.Response.Version

			if len(r.Response.Trace.MatchedClauses) == 0 {
				s.noMatch++
				fmt.Fprintf(progress, "- %s: no match\n", r.Query)
			} else {
				s.answered++
				fmt.Fprintf(progress, "✓ %s: %s (%d clauses)\n", r.Query, r.Response.Trace.TemplateUsed, len(r.Response.Trace.MatchedClauses))
			}
		}

		if err := enc.Encode(line); err != nil {
			return s, fmt.Errorf("write result: %w", err)
		}
	}
	return s, nil
}
