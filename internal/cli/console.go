package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/ppiankov/medrights/internal/advisor"
)

const consoleHelp = `Type a question to get an answer, or one of:
  help, ?              show this help
  proof on|off         show or hide the proof trace
  list rights          list patient rights
  list categories      list clause categories
  search <term>        search clauses by keyword
  clause <id>          explain one clause, e.g. clause NHRC-2
  stats                show knowledge base statistics
  clear                clear the screen
  quit, exit           leave the console
`

// consoleCmd represents the console command
var consoleCmd = &cobra.Command{
	Use:     "console",
	Aliases: []string{"repl"},
	Short:   "Ask questions interactively",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.close(cmd.Context())

		applyOutputFlags(cmd, &a.cfg.Output)

		c := newConsole(a.advisor, cmd.OutOrStdout(), a.cfg.Output.ShowProof, a.cfg.Output.Pretty)
		return c.Run(cmd.Context(), cmd.InOrStdin())
	},
}

func init() {
	consoleCmd.Flags().Bool("proof", false, "start with the proof trace shown")
	consoleCmd.Flags().Bool("pretty", false, "render markdown for the terminal")

	rootCmd.AddCommand(consoleCmd)
}

// console is an interactive session. Queries from one console share a
// session id in the query log.
type console struct {
	adv       *advisor.Advisor
	out       io.Writer
	session   string
	showProof bool
	pretty    bool
	asked     int
}

func newConsole(adv *advisor.Advisor, out io.Writer, showProof, pretty bool) *console {
	return &console{
		adv:       adv,
		out:       out,
		session:   uuid.NewString(),
		showProof: showProof,
		pretty:    pretty,
	}
}

// Run reads lines from in until EOF, quit or cancellation
func (c *console) Run(ctx context.Context, in io.Reader) error {
	stats := c.adv.GetStats()
	fmt.Fprintf(c.out, "%s v%s, %d clauses (data %s)\n", stats.SystemName, stats.Version, stats.TotalClauses, stats.DataVersion)
	fmt.Fprintln(c.out, "Type 'help' for commands. MedRights is not legal advice.")

	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(c.out, "\nmedrights> ")
		if !scanner.Scan() {
			fmt.Fprintln(c.out)
			return scanner.Err()
		}

		quit, err := c.Handle(ctx, scanner.Text())
		if err != nil {
			return err
		}
		if quit {
			fmt.Fprintf(c.out, "Answered %d question(s). Goodbye.\n", c.asked)
			return nil
		}
	}
}

// Handle runs one input line. It reports whether the console should exit.
func (c *console) Handle(ctx context.Context, line string) (bool, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return false, nil
	}

	command, rest, _ := strings.Cut(line, " ")
	command = strings.ToLower(command)
	rest = strings.TrimSpace(rest)

	if rest == "" {
		switch command {
		case "quit", "exit":
			return true, nil
		case "help", "?":
			fmt.Fprint(c.out, consoleHelp)
			return false, nil
		case "clear":
			fmt.Fprint(c.out, "\033[H\033[2J")
			return false, nil
		case "stats":
			printStats(c.out, c.adv.GetStats())
			return false, nil
		case "proof", "list", "search", "clause":
			fmt.Fprintf(c.out, "%s needs an argument; type 'help' for usage\n", command)
			return false, nil
		}
	}

	// Anything that is not a well-formed command is asked as a question
	switch arg := strings.ToLower(rest); {
	case command == "proof" && (arg == "on" || arg == "off"):
		c.showProof = arg == "on"
		fmt.Fprintf(c.out, "Proof trace %s\n", arg)
		return false, nil

	case command == "list" && arg == "rights":
		printActorEntries(c.out, "Rights of patient", c.adv.Snapshot().Knowledge.RightsForActor("patient"))
		return false, nil

	case command == "list" && arg == "categories":
		printCategories(c.out, c.adv.Categories())
		return false, nil

	case command == "search":
		printSearch(c.out, c.adv.SearchKnowledge(rest))
		return false, nil

	case command == "clause":
		return false, printMarkdown(c.out, c.adv.ExplainClause(rest), c.pretty)
	}

	resp, err := c.adv.ProcessQuery(ctx, advisor.Request{
		Query:     line,
		ShowProof: c.showProof,
		Client:    "console",
		Session:   c.session,
	})
	if err != nil {
		return false, err
	}
	c.asked++
	return false, printMarkdown(c.out, resp.Answer, c.pretty)
}
