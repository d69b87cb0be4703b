package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"

	"github.com/spf13/cobra"

	"github.com/ppiankov/medrights/internal/advisor"
	"github.com/ppiankov/medrights/internal/model"
	"github.com/ppiankov/medrights/internal/templates"
)

var statsJSON bool

// statsCmd represents the stats command
var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show knowledge base statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		adv, _, err := loadAdvisor()
		if err != nil {
			return err
		}

		stats := adv.GetStats()
		if statsJSON {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(stats)
		}
		printStats(cmd.OutOrStdout(), stats)
		return nil
	},
}

// categoriesCmd represents the categories command
var categoriesCmd = &cobra.Command{
	Use:   "categories",
	Short: "List clause categories and their clauses",
	RunE: func(cmd *cobra.Command, args []string) error {
		adv, _, err := loadAdvisor()
		if err != nil {
			return err
		}
		printCategories(cmd.OutOrStdout(), adv.Categories())
		return nil
	},
}

// rightsCmd represents the rights command
var rightsCmd = &cobra.Command{
	Use:   "rights [actor]",
	Short: "List the rights and obligations of an actor",
	Long: `List every right and obligation held in clauses that name an actor.

Actors include patient, caregiver, doctor, hospital and family. The default
actor is patient.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		adv, _, err := loadAdvisor()
		if err != nil {
			return err
		}

		actor := "patient"
		if len(args) == 1 {
			actor = args[0]
		}

		kb := adv.Snapshot().Knowledge
		rights := kb.RightsForActor(actor)
		obligations := kb.ObligationsForActor(actor)
		if len(rights) == 0 && len(obligations) == 0 {
			return fmt.Errorf("no clause names actor %q", actor)
		}

		w := cmd.OutOrStdout()
		printActorEntries(w, "Rights of "+actor, rights)
		printActorEntries(w, "Obligations involving "+actor, obligations)
		return nil
	},
}

func init() {
	statsCmd.Flags().BoolVar(&statsJSON, "json", false, "print statistics as JSON")

	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(categoriesCmd)
	rootCmd.AddCommand(rightsCmd)
}

func printStats(w io.Writer, s advisor.Stats) {
	fmt.Fprintf(w, "%s v%s\n", s.SystemName, s.Version)
	fmt.Fprintf(w, "Data version:   %s\n", s.DataVersion)
	fmt.Fprintf(w, "Loaded at:      %s\n", s.LoadedAt.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(w, "Status:         %s\n\n", s.Status)

	fmt.Fprintf(w, "Clauses:        %d\n", s.TotalClauses)
	fmt.Fprintf(w, "Documents:      %d\n", len(s.Documents))
	fmt.Fprintf(w, "Intents:        %d\n", s.Intents)
	fmt.Fprintf(w, "Templates:      %d\n", s.Templates)
	fmt.Fprintf(w, "Relationships:  %d\n\n", s.Relationships)

	names := make([]string, 0, len(s.Categories))
	for name := range s.Categories {
		names = append(names, name)
	}
	sort.Strings(names)

	fmt.Fprintln(w, "Clauses by category:")
	for _, name := range names {
		fmt.Fprintf(w, "  %-32s %d\n", name, s.Categories[name])
	}
}

func printCategories(w io.Writer, categories []advisor.Category) {
	for _, cat := range categories {
		fmt.Fprintf(w, "%s (%d)\n", cat.Title, len(cat.Clauses))
		for _, c := range cat.Clauses {
			fmt.Fprintf(w, "  • %-12s %s\n", c.ID, c.Title)
		}
		fmt.Fprintln(w)
	}
}

func printActorEntries(w io.Writer, heading string, entries []model.ActorEntry) {
	fmt.Fprintf(w, "%s (%d)\n", heading, len(entries))
	if len(entries) == 0 {
		fmt.Fprintln(w, "  none")
	}
	for _, e := range entries {
		fmt.Fprintf(w, "  • %-40s %s %s (%s)\n", templates.Readable(e.Tag), e.Document, e.Section, e.ClauseID)
	}
	fmt.Fprintln(w)
}
