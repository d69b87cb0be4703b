package pipeline

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppiankov/medrights/internal/intent"
	"github.com/ppiankov/medrights/internal/knowledge"
	"github.com/ppiankov/medrights/internal/model"
	"github.com/ppiankov/medrights/internal/templates"
)

func newPipeline(t *testing.T) *Pipeline {
	t.Helper()

	kb, err := knowledge.LoadEmbedded()
	require.NoError(t, err)
	reg, err := intent.LoadEmbedded()
	require.NoError(t, err)
	lib, err := templates.LoadEmbedded()
	require.NoError(t, err)

	p, err := New(kb, intent.NewClassifier(reg, model.DefaultScoring()), templates.NewEngine(lib))
	require.NoError(t, err)
	return p
}

func TestProcess_RecordsRoundTrip(t *testing.T) {
	p := newPipeline(t)

	answer := p.Process("doctor refused to give my medical reports", false)

	top, _ := answer.Trace.TopIntent()
	assert.Equal(t, "access_medical_records", top)
	assert.Contains(t, answer.Trace.ClauseIDs(), "IMC-1.3.2")
	assert.Equal(t, TemplateRecords, answer.Trace.TemplateUsed)
	assert.Contains(t, answer.Text, "IMC Ethics Code, Section 1.3.2")
	assert.Contains(t, answer.Text, "Timeframes: After Discharge: within 72 hours of request")
}

func TestProcess_EmergencyRoundTrip(t *testing.T) {
	p := newPipeline(t)

	answer := p.Process("hospital asked for advance payment in emergency", false)

	top, _ := answer.Trace.TopIntent()
	assert.Equal(t, "emergency_care", top)
	assert.NotEmpty(t, answer.Trace.MatchedClauses)
	assert.Equal(t, TemplateEmergency, answer.Trace.TemplateUsed)
	assert.Equal(t, []string{"NHRC-3", "IMC-2.1", "NHRC-7", "IMC-1.8", "IMC-3.7"}, answer.Trace.ClauseIDs())
}

func TestProcess_NoMatch(t *testing.T) {
	p := newPipeline(t)

	tests := []struct {
		desc  string
		query string
	}{
		{desc: "empty", query: ""},
		{desc: "whitespace", query: "  \n\t "},
		{desc: "weather", query: "what is the weather today"},
		{desc: "punctuation", query: "?!?"},
	}

	for _, tt := range tests {
		t.Run(tt.desc, func(t *testing.T) {
			answer := p.Process(tt.query, true)

			assert.Empty(t, answer.Trace.MatchedIntents)
			assert.Empty(t, answer.Trace.MatchedClauses)
			assert.Equal(t, TemplateNoMatch, answer.Trace.TemplateUsed)
			assert.Contains(t, answer.Text, "You may want to ask about:")
			assert.Contains(t, answer.Text, "• Right to Information")
			assert.Contains(t, answer.Text, "**Proof Trace**")
		})
	}
}

func TestProcess_CitationGrounding(t *testing.T) {
	p := newPipeline(t)

	queries := []string{
		"doctor refused to give my medical reports",
		"hospital asked for advance payment in emergency",
		"surgery done without my permission",
		"doctor shared my information with others",
		"they overcharged me for treatment",
		"hospital detained me because bill is pending",
		"i was forced into a clinical trial",
		"the doctor shouted at me and was very rude",
		"mercy killing of my father",
		"doctor accepted gifts from pharma company",
	}

	for _, q := range queries {
		t.Run(q, func(t *testing.T) {
			answer := p.Process(q, false)
			require.NotEmpty(t, answer.Trace.MatchedClauses)

			for _, c := range answer.Trace.MatchedClauses {
				assert.Contains(t, answer.Text, c.CitationFormat, "citation of %s", c.ID)
				assert.Contains(t, answer.Text, c.Title, "title of %s", c.ID)
			}
		})
	}
}

func TestProcess_TemplateSelection(t *testing.T) {
	p := newPipeline(t)

	tests := []struct {
		query string
		want  string
	}{
		{query: "mercy killing of my father", want: TemplateSingleClause},
		{query: "the doctor shouted at me and was very rude", want: TemplateMultipleClauses},
		{query: "surgery done without my permission", want: TemplateConsent},
		{query: "doctor shared my information with others", want: TemplateInformation},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			assert.Equal(t, tt.want, p.Process(tt.query, false).Trace.TemplateUsed)
		})
	}
}

func TestProcess_PriorityOverride(t *testing.T) {
	p := newPipeline(t)

	answer := p.Process("hospital detained me because bill is pending and overcharged me", false)
	top, _ := answer.Trace.TopIntent()
	assert.Equal(t, "detained_for_payment", top)
	assert.Equal(t, "NHRC-15", answer.Trace.ClauseIDs()[0])
}

func TestProcess_Deterministic(t *testing.T) {
	p := newPipeline(t)

	for _, q := range []string{"doctor shared my information with others", "they overcharged me", ""} {
		first := p.Process(q, true)
		firstJSON, err := json.Marshal(first.Trace)
		require.NoError(t, err)

		for i := 0; i < 10; i++ {
			again := p.Process(q, true)
			require.Equal(t, first.Text, again.Text)

			againJSON, err := json.Marshal(again.Trace)
			require.NoError(t, err)
			require.JSONEq(t, string(firstJSON), string(againJSON))
		}
	}
}

func TestProcess_ProofDisplay(t *testing.T) {
	p := newPipeline(t)
	query := "doctor refused to give my medical reports"

	shown := p.Process(query, true)
	hidden := p.Process(query, false)

	assert.Contains(t, shown.Text, "**Proof Trace**")
	assert.Contains(t, shown.Text, "access_medical_records (confidence: 0.83)")
	assert.NotContains(t, hidden.Text, "**Proof Trace**")
	assert.Equal(t, shown.Trace.ClauseIDs(), hidden.Trace.ClauseIDs())
	assert.Equal(t, shown.Trace.VariablesUsed, hidden.Trace.VariablesUsed)
	assert.True(t, strings.HasPrefix(shown.Text, hidden.Text))
}

func TestProcess_TraceShape(t *testing.T) {
	p := newPipeline(t)

	answer := p.Process("  doctor   refused to give my medical reports ", false)
	assert.Equal(t, "doctor refused to give my medical reports", answer.Trace.Query)
	assert.Contains(t, answer.Trace.VariablesUsed, "query")
	assert.Contains(t, answer.Trace.VariablesUsed, "legal_sources_bulleted")
	assert.IsNonDecreasing(t, answer.Trace.VariablesUsed)

	raw, err := json.Marshal(p.Process("", false).Trace)
	require.NoError(t, err)
	assert.JSONEq(t, `{"query":"","matched_intents":[],"matched_clauses":[],"template_used":"TEMPLATE_NO_MATCH_FOUND","variables_count":7}`, string(raw))
}

func TestExplainClause(t *testing.T) {
	p := newPipeline(t)

	text := p.ExplainClause("NHRC-2")
	assert.Contains(t, text, "## Right to Records and Reports")
	assert.Contains(t, text, "Exact text:\n> Every patient or their caregiver")
	assert.Contains(t, text, "• Access Medical Records")
	assert.Contains(t, text, "Timeframes: After Discharge: within 72 hours of request; During Admission: preferably within 24 hours of request")
	assert.Contains(t, text, "NHRC Charter of Patients' Rights, Right 2")
	assert.Contains(t, text, "It is not legal advice")

	assert.Equal(t, "Clause 'NHRC-99' not found.", p.ExplainClause("NHRC-99"))
}

func TestNew_MissingTemplate(t *testing.T) {
	kb, err := knowledge.LoadEmbedded()
	require.NoError(t, err)
	reg, err := intent.LoadEmbedded()
	require.NoError(t, err)
	lib, err := templates.Parse("partial.yaml", []byte("templates:\n  TEMPLATE_DISCLAIMER:\n    components:\n      - {text: x}\n"))
	require.NoError(t, err)

	_, err = New(kb, intent.NewClassifier(reg, model.DefaultScoring()), templates.NewEngine(lib))
	require.Error(t, err)
	assert.Contains(t, err.Error(), TemplateNoMatch)
}

func TestSelectTemplate(t *testing.T) {
	one := []model.Clause{{ID: "IMC-6.7"}}
	two := []model.Clause{{ID: "IMC-1.1"}, {ID: "IMC-1.7"}}

	tests := []struct {
		desc    string
		intents []model.MatchedIntent
		clauses []model.Clause
		want    string
	}{
		{desc: "no intents", intents: nil, clauses: one, want: TemplateNoMatch},
		{desc: "no clauses", intents: []model.MatchedIntent{{Intent: "euthanasia"}}, clauses: nil, want: TemplateNoMatch},
		{desc: "specialized", intents: []model.MatchedIntent{{Intent: "emergency_care"}}, clauses: two, want: TemplateEmergency},
		{desc: "single", intents: []model.MatchedIntent{{Intent: "euthanasia"}}, clauses: one, want: TemplateSingleClause},
		{desc: "multiple", intents: []model.MatchedIntent{{Intent: "doctor_misbehavior"}}, clauses: two, want: TemplateMultipleClauses},
	}

	for _, tt := range tests {
		t.Run(tt.desc, func(t *testing.T) {
			assert.Equal(t, tt.want, SelectTemplate(tt.intents, tt.clauses))
		})
	}
}

func TestExtractKeywords(t *testing.T) {
	tests := []struct {
		desc  string
		query string
		want  []string
	}{
		{desc: "stop words dropped", query: "doctor refused to give my medical reports", want: []string{"doctor", "refused", "give", "medical", "reports", "refused_to_give"}},
		{desc: "empty", query: "", want: []string{}},
		{desc: "short words", query: "is it ok", want: []string{}},
		{desc: "phrase", query: "I need my Medical Records!", want: []string{"need", "medical", "records", "medical_records"}},
		{desc: "capped", query: "alpha bravo charlie delta echo foxtrot golf hotel india juliet kilo lima", want: []string{"alpha", "bravo", "charlie", "delta", "echo", "foxtrot", "golf", "hotel", "india", "juliet"}},
	}

	for _, tt := range tests {
		t.Run(tt.desc, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractKeywords(tt.query))
		})
	}
}

func TestClean(t *testing.T) {
	assert.Equal(t, "a b c", Clean("  a \t b\n\nc "))
	assert.Equal(t, "", Clean("   "))
}
