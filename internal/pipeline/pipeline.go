package pipeline

import (
	"fmt"
	"strings"

	"github.com/ppiankov/medrights/internal/intent"
	"github.com/ppiankov/medrights/internal/knowledge"
	"github.com/ppiankov/medrights/internal/model"
	"github.com/ppiankov/medrights/internal/templates"
)

// Template ids the pipeline selects between
const (
	TemplateSingleClause    = "TEMPLATE_SINGLE_CLAUSE"
	TemplateMultipleClauses = "TEMPLATE_MULTIPLE_CLAUSES"
	TemplateNoMatch         = "TEMPLATE_NO_MATCH_FOUND"
	TemplateDisclaimer      = "TEMPLATE_DISCLAIMER"
	TemplateRecords         = "TEMPLATE_RIGHT_TO_RECORDS"
	TemplateConsent         = "TEMPLATE_RIGHT_TO_INFORMED_CONSENT"
	TemplateEmergency       = "TEMPLATE_RIGHT_TO_EMERGENCY_CARE"
	TemplatePrivacy         = "TEMPLATE_RIGHT_TO_PRIVACY"
	TemplateInformation     = "TEMPLATE_RIGHT_TO_INFORMATION"
)

// specialized maps a top intent to its dedicated template and the clause the
// template is written around
var specialized = map[string]struct {
	template string
	anchor   string
}{
	"access_medical_records":  {TemplateRecords, "NHRC-2"},
	"informed_consent":        {TemplateConsent, "NHRC-4"},
	"emergency_care":          {TemplateEmergency, "NHRC-3"},
	"privacy_confidentiality": {TemplatePrivacy, "NHRC-5"},
	"right_to_information":    {TemplateInformation, "NHRC-1"},
}

// requiredTemplates lists every id the pipeline can select
func requiredTemplates() []string {
	ids := []string{TemplateSingleClause, TemplateMultipleClauses, TemplateNoMatch, TemplateDisclaimer}
	for _, s := range specialized {
		ids = append(ids, s.template)
	}
	return ids
}

// suggestionCategory feeds the no-match suggestions
const (
	suggestionCategory = "access_information"
	suggestionCount    = 3
)

// Answer is the result of one query
type Answer struct {
	Text  string           `json:"answer"`
	Trace model.ProofTrace `json:"proof_trace"`
}

// Pipeline turns a free-text query into a templated, cited answer:
// clean, classify, retrieve, select template, build context, render, trace.
// It holds only read-only state and is safe for concurrent use.
type Pipeline struct {
	kb         *knowledge.Base
	classifier *intent.Classifier
	engine     *templates.Engine
	depth      int
}

// New wires a pipeline and checks that every selectable template exists
func New(kb *knowledge.Base, classifier *intent.Classifier, engine *templates.Engine) (*Pipeline, error) {
	if err := engine.Library().Require(requiredTemplates()...); err != nil {
		return nil, fmt.Errorf("templates: %w", err)
	}

	return &Pipeline{
		kb:         kb,
		classifier: classifier,
		engine:     engine,
		depth:      classifier.Scoring().RetrievalDepth,
	}, nil
}

// Knowledge returns the knowledge base the pipeline retrieves from
func (p *Pipeline) Knowledge() *knowledge.Base {
	return p.kb
}

// Classifier returns the intent classifier
func (p *Pipeline) Classifier() *intent.Classifier {
	return p.classifier
}

// Process answers a query. It never fails: blank or unmatched queries get
// the no-match answer and an empty trace.
func (p *Pipeline) Process(query string, showProof bool) Answer {
	cleaned := Clean(query)

	intents := p.classifier.Classify(cleaned)
	clauses := p.Retrieve(intents)
	templateID := SelectTemplate(intents, clauses)

	ctx := p.PrepareContext(templateID, clauses, cleaned)
	ctx["show_proof_trace"] = showProof

	body := p.engine.Render(templateID, ctx)
	disclaimer := p.engine.Render(TemplateDisclaimer, ctx)
	text := body + "\n\n" + disclaimer

	trace := model.ProofTrace{
		Query:          cleaned,
		MatchedIntents: intents,
		MatchedClauses: clauses,
		TemplateUsed:   templateID,
		VariablesUsed:  ctx.Keys(),
	}

	if showProof {
		text += "\n\n" + FormatProofTrace(trace)
	}

	return Answer{Text: text, Trace: trace}
}

// Clean trims the query and collapses internal whitespace
func Clean(query string) string {
	return strings.Join(strings.Fields(query), " ")
}

// Retrieve collects clauses for the top intents, de-duplicated by id in
// first-seen order
func (p *Pipeline) Retrieve(intents []model.MatchedIntent) []model.Clause {
	seen := make(map[string]bool)
	clauses := []model.Clause{}

	for i, m := range intents {
		if i >= p.depth {
			break
		}
		for _, c := range p.kb.GetByIntent(m.Intent) {
			if seen[c.ID] {
				continue
			}
			seen[c.ID] = true
			clauses = append(clauses, c)
		}
	}
	return clauses
}

// SelectTemplate picks the body template for a classification result
func SelectTemplate(intents []model.MatchedIntent, clauses []model.Clause) string {
	if len(intents) == 0 || len(clauses) == 0 {
		return TemplateNoMatch
	}
	if s, ok := specialized[intents[0].Intent]; ok {
		return s.template
	}
	if len(clauses) == 1 {
		return TemplateSingleClause
	}
	return TemplateMultipleClauses
}

// PrepareContext builds the render context for templateID
func (p *Pipeline) PrepareContext(templateID string, clauses []model.Clause, query string) templates.Context {
	ctx := templates.Context{
		"query":           query,
		"query_keywords":  strings.Join(ExtractKeywords(query), ", "),
		"show_exact_text": false,
	}

	switch templateID {
	case TemplateNoMatch:
		ctx["user_query"] = query
		ctx["related_rights_bulleted"] = p.relatedRights()
		ctx["categories"] = readableAll(p.kb.Categories())
		return ctx

	case TemplateSingleClause:
		if len(clauses) > 0 {
			addClause(ctx, clauses[0])
		}

	case TemplateMultipleClauses:
		ctx["clauses_list"] = p.engine.RenderClauseList(clauses)
		ctx["summary_text"] = fmt.Sprintf("Based on your query, %d relevant rights were found.", len(clauses))

	default:
		for _, s := range specialized {
			if s.template != templateID || len(clauses) == 0 {
				continue
			}
			anchor := findClause(clauses, s.anchor)
			ctx["title"] = anchor.Title
			ctx["citation_format"] = anchor.CitationFormat
			ctx["paraphrase"] = anchor.Paraphrase
			if len(anchor.Timeframes) > 0 {
				ctx["timeframe_note"] = anchor.Timeframes
			}
		}
	}

	if len(clauses) > 0 {
		ctx["legal_sources_bulleted"] = LegalSources(clauses)
	}
	return ctx
}

// ExplainClause renders the full single-clause view of a known clause
func (p *Pipeline) ExplainClause(id string) string {
	c, err := p.kb.GetByID(strings.TrimSpace(id))
	if err != nil {
		return fmt.Sprintf("Clause '%s' not found.", id)
	}

	ctx := templates.Context{
		"show_exact_text":        true,
		"show_proof_trace":       true,
		"legal_sources_bulleted": LegalSources([]model.Clause{c}),
	}
	addClause(ctx, c)

	body := p.engine.Render(TemplateSingleClause, ctx)
	disclaimer := p.engine.Render(TemplateDisclaimer, ctx)
	return body + "\n\n" + disclaimer
}

// LegalSources renders "citation - title" for each clause
func LegalSources(clauses []model.Clause) []string {
	out := make([]string, len(clauses))
	for i, c := range clauses {
		out[i] = c.CitationFormat + " - " + c.Title
	}
	return out
}

func addClause(ctx templates.Context, c model.Clause) {
	ctx["title"] = c.Title
	ctx["citation_format"] = c.CitationFormat
	ctx["exact_text"] = c.ExactText
	ctx["paraphrase"] = c.Paraphrase
	ctx["rights_bulleted"] = readableAll(c.Rights)
	ctx["obligations_bulleted"] = readableAll(c.Obligations)
	ctx["exceptions_bulleted"] = readableAll(c.Exceptions)
	if len(c.LegalReferences) > 0 {
		ctx["legal_references_bulleted"] = c.LegalReferences
	}
	if len(c.Timeframes) > 0 {
		ctx["timeframe_note"] = c.Timeframes
	}
}

func (p *Pipeline) relatedRights() []string {
	var titles []string
	for _, c := range p.kb.GetByCategory(suggestionCategory) {
		if len(titles) == suggestionCount {
			break
		}
		titles = append(titles, c.Title)
	}
	return titles
}

func findClause(clauses []model.Clause, id string) model.Clause {
	for _, c := range clauses {
		if c.ID == id {
			return c
		}
	}
	return clauses[0]
}

func readableAll(tags []string) []string {
	out := make([]string, len(tags))
	for i, t := range tags {
		out[i] = templates.Readable(t)
	}
	return out
}
