package templates

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppiankov/medrights/internal/model"
)

const testTemplates = `
metadata:
  version: "1"
templates:
  T:
    description: test
    components:
      - text: "{title}"
        style: h2
      - text: "Rights:\n{rights_bulleted}"
        condition: has_rights_bulleted
      - text: "Exact: {exact_text}"
        condition: show_exact_text
      - text: "Tags: {rights}"
        condition: has_rights
      - text: "Time: {timeframe_note}"
        condition: has_timeframe_note
      - text: "{missing}"
      - text: "Note"
        style: bold
`

func newEngine(t *testing.T, content string) *Engine {
	t.Helper()
	lib, err := Parse("test.yaml", []byte(content))
	require.NoError(t, err)
	return NewEngine(lib)
}

func TestRender(t *testing.T) {
	e := newEngine(t, testTemplates)

	tests := []struct {
		desc string
		ctx  Context
		want string
	}{
		{
			desc: "minimal context",
			ctx:  Context{"title": "Right"},
			want: "## Right\n\n**Note**",
		},
		{
			desc: "all components",
			ctx: Context{
				"title":           "Right",
				"rights_bulleted": []string{"a", "b"},
				"show_exact_text": true,
				"exact_text":      "text",
				"rights":          []string{"access_medical_records"},
				"timeframe_note":  map[string]string{"after_discharge": "72h", "during_admission": "24h"},
			},
			want: "## Right\n\nRights:\n• a\n• b\n\nExact: text\n\nTags: Access Medical Records\n\nTime: After Discharge: 72h; During Admission: 24h\n\n**Note**",
		},
		{
			desc: "false flag and empty list",
			ctx:  Context{"title": "Right", "show_exact_text": false, "rights_bulleted": []string{}},
			want: "## Right\n\n**Note**",
		},
	}

	for _, tt := range tests {
		t.Run(tt.desc, func(t *testing.T) {
			assert.Equal(t, tt.want, e.Render("T", tt.ctx))
		})
	}
}

func TestRender_UnknownTemplate(t *testing.T) {
	e := newEngine(t, testTemplates)
	assert.Equal(t, "Template 'NOPE' not found.", e.Render("NOPE", Context{}))
}

func TestRender_Deterministic(t *testing.T) {
	e := newEngine(t, testTemplates)
	ctx := Context{
		"title":          "Right",
		"timeframe_note": map[string]string{"z": "1", "a": "2", "m": "3"},
	}

	first := e.Render("T", ctx)
	for i := 0; i < 50; i++ {
		require.Equal(t, first, e.Render("T", ctx))
	}
	assert.Contains(t, first, "A: 2; M: 3; Z: 1")
}

func TestSubstitute(t *testing.T) {
	tests := []struct {
		desc string
		text string
		ctx  Context
		want string
	}{
		{desc: "missing key", text: "a{x}b", ctx: Context{}, want: "ab"},
		{desc: "bulleted empty", text: "{items_bulleted}", ctx: Context{"items_bulleted": []string{}}, want: "None specified"},
		{desc: "plain list", text: "{items}", ctx: Context{"items": []string{"x", "y"}}, want: "x, y"},
		{desc: "exceptions readable", text: "{exceptions}", ctx: Context{"exceptions": []string{"legal_requirement"}}, want: "Legal Requirement"},
		{desc: "number", text: "{n}", ctx: Context{"n": 3}, want: "3"},
		{desc: "no rescan", text: "{a}", ctx: Context{"a": "{b}", "b": "x"}, want: "{b}"},
		{desc: "non word braces", text: "{not a var}", ctx: Context{}, want: "{not a var}"},
	}

	for _, tt := range tests {
		t.Run(tt.desc, func(t *testing.T) {
			assert.Equal(t, tt.want, Substitute(tt.text, tt.ctx))
		})
	}
}

func TestParseCondition(t *testing.T) {
	tests := []struct {
		desc string
		name string
		want Condition
	}{
		{desc: "empty", name: "", want: Condition{Kind: Always}},
		{desc: "has", name: "has_rights", want: Condition{Kind: HasValue, Key: "rights"}},
		{desc: "bare has", name: "has_", want: Condition{Kind: Flag, Key: "has_"}},
		{desc: "flag", name: "show_exact_text", want: Condition{Kind: Flag, Key: "show_exact_text"}},
	}

	for _, tt := range tests {
		t.Run(tt.desc, func(t *testing.T) {
			got := ParseCondition(tt.name)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, strings.TrimSpace(tt.name), got.String())
		})
	}
}

func TestCondition_Eval(t *testing.T) {
	ctx := Context{
		"s":     "x",
		"empty": "",
		"list":  []string{"a"},
		"none":  []string{},
		"map":   map[string]string{"k": "v"},
		"yes":   true,
		"no":    false,
		"zero":  0,
	}

	tests := []struct {
		desc string
		cond Condition
		want bool
	}{
		{desc: "always", cond: Condition{Kind: Always}, want: true},
		{desc: "string", cond: Condition{Kind: HasValue, Key: "s"}, want: true},
		{desc: "empty string", cond: Condition{Kind: HasValue, Key: "empty"}, want: false},
		{desc: "list", cond: Condition{Kind: HasValue, Key: "list"}, want: true},
		{desc: "empty list", cond: Condition{Kind: HasValue, Key: "none"}, want: false},
		{desc: "map", cond: Condition{Kind: HasValue, Key: "map"}, want: true},
		{desc: "missing", cond: Condition{Kind: HasValue, Key: "nothing"}, want: false},
		{desc: "flag true", cond: Condition{Kind: Flag, Key: "yes"}, want: true},
		{desc: "flag false", cond: Condition{Kind: Flag, Key: "no"}, want: false},
		{desc: "flag zero", cond: Condition{Kind: Flag, Key: "zero"}, want: false},
		{desc: "flag missing", cond: Condition{Kind: Flag, Key: "nothing"}, want: false},
		{desc: "unknown kind", cond: Condition{Kind: ConditionKind(99)}, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.desc, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.cond.Eval(ctx))
		})
	}
}

func TestClauseSummaries(t *testing.T) {
	e := newEngine(t, testTemplates)
	clauses := []model.Clause{
		{ID: "NHRC-1", Title: "One", CitationFormat: "NHRC Right 1", Paraphrase: "p1"},
		{ID: "NHRC-2", Title: "Two", CitationFormat: "NHRC Right 2", Paraphrase: "p2"},
	}

	assert.Equal(t, "**One** (NHRC Right 1)\np1\n", e.RenderClauseSummary(clauses[0]))
	assert.Equal(t, "**One** (NHRC Right 1)\np1\n\n---\n**Two** (NHRC Right 2)\np2\n", e.RenderClauseList(clauses))
	assert.Equal(t, "No relevant clauses found.", e.RenderClauseList(nil))
}

func TestFormatBulleted(t *testing.T) {
	assert.Equal(t, "None specified", FormatBulleted(nil))
	assert.Equal(t, "• a", FormatBulleted([]string{"a"}))
}

func TestLibrary(t *testing.T) {
	lib, err := LoadEmbedded()
	require.NoError(t, err)

	assert.NoError(t, lib.Require("TEMPLATE_SINGLE_CLAUSE", "TEMPLATE_NO_MATCH_FOUND", "TEMPLATE_DISCLAIMER"))
	assert.Error(t, lib.Require("TEMPLATE_GHOST"))
	assert.Contains(t, lib.IDs(), "TEMPLATE_RIGHT_TO_EMERGENCY_CARE")

	e := NewEngine(lib)
	assert.Contains(t, e.Placeholders("TEMPLATE_RIGHT_TO_RECORDS"), "citation_format")
	assert.Nil(t, e.Placeholders("TEMPLATE_GHOST"))
}

func TestCondition_Valid(t *testing.T) {
	tests := []struct {
		name string
		want bool
	}{
		{name: "", want: true},
		{name: "has_anything", want: true},
		{name: "show_exact_text", want: true},
		{name: "show_proof_trace", want: true},
		{name: "show_exact_txt", want: false},
		{name: "has_", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseCondition(tt.name).Valid())
		})
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "good.yaml")
	require.NoError(t, os.WriteFile(good, []byte("metadata: {version: \"9.9\"}\ntemplates:\n  T:\n    components:\n      - {text: a, condition: show_proof_trace}\n"), 0o644))

	lib, err := Load(good)
	require.NoError(t, err)
	assert.Equal(t, "9.9", lib.Version())

	typo := filepath.Join(dir, "typo.yaml")
	require.NoError(t, os.WriteFile(typo, []byte("templates:\n  T:\n    components:\n      - {text: a, condition: show_proof}\n"), 0o644))

	_, err = Load(typo)
	var loadErr *LoadError
	require.ErrorAs(t, err, &loadErr)
	assert.Equal(t, typo, loadErr.Path)

	_, err = Load(filepath.Join(dir, "missing.yaml"))
	require.ErrorAs(t, err, &loadErr)
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		desc    string
		content string
		wantErr string
	}{
		{desc: "malformed", content: "templates: [", wantErr: "decode"},
		{desc: "empty", content: "metadata: {version: 1}", wantErr: "no templates"},
		{desc: "no components", content: "templates:\n  T: {description: x}", wantErr: "no components"},
		{desc: "bad style", content: "templates:\n  T:\n    components:\n      - {text: a, style: blink}", wantErr: "unknown style"},
		{desc: "misspelt flag", content: "templates:\n  T:\n    components:\n      - {text: a, condition: show_exact_txt}", wantErr: `unknown condition "show_exact_txt"`},
		{desc: "bare has", content: "templates:\n  T:\n    components:\n      - {text: a, condition: has_}", wantErr: `unknown condition "has_"`},
	}

	for _, tt := range tests {
		t.Run(tt.desc, func(t *testing.T) {
			_, err := Parse("bad.yaml", []byte(tt.content))
			var loadErr *LoadError
			require.ErrorAs(t, err, &loadErr)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
