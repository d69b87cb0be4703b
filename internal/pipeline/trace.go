package pipeline

import (
	"fmt"
	"strings"

	"github.com/ppiankov/medrights/internal/model"
)

// FormatProofTrace renders a trace for people. The structured trace stays
// presentation-free; this is the only place it becomes markdown.
func FormatProofTrace(t model.ProofTrace) string {
	rule := strings.Repeat("=", 50)

	var b strings.Builder
	b.WriteString("**Proof Trace**\n")
	b.WriteString(rule + "\n")
	fmt.Fprintf(&b, "**Query:** %s\n\n", t.Query)

	b.WriteString("**Matched Intents:**\n")
	if len(t.MatchedIntents) == 0 {
		b.WriteString("  • none\n")
	}
	for _, m := range t.MatchedIntents {
		fmt.Fprintf(&b, "  • %s (confidence: %.2f)\n", m.Intent, m.Confidence)
	}
	b.WriteString("\n")

	b.WriteString("**Legal Sources Cited:**\n")
	if len(t.MatchedClauses) == 0 {
		b.WriteString("  • none\n")
	}
	for _, c := range t.MatchedClauses {
		fmt.Fprintf(&b, "  • %s - %s\n", c.CitationFormat, c.Title)
	}
	b.WriteString("\n")

	b.WriteString("**Generation Method:**\n")
	fmt.Fprintf(&b, "  Template: %s\n", t.TemplateUsed)
	fmt.Fprintf(&b, "  Variables filled: %d\n", len(t.VariablesUsed))
	b.WriteString(rule)

	return b.String()
}
