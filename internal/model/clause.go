package model

// Clause represents one provision of a source legal document
type Clause struct {
	ID              string            `json:"id"`                         // Globally unique, "<DOC>-<section>"
	Document        DocumentCode      `json:"document"`                   // Source document
	Section         string            `json:"section"`                    // Section locator
	Subsection      string            `json:"subsection,omitempty"`       // Optional subsection locator
	Title           string            `json:"title"`                      // Provision title
	ExactText       string            `json:"exact_text"`                 // Verbatim source text
	Paraphrase      string            `json:"paraphrase"`                 // Plain-language summary
	Rights          []string          `json:"rights"`                     // Right tags
	Obligations     []string          `json:"obligations"`                // Obligation tags
	Actors          []string          `json:"actors"`                     // Role tags (patient, doctor, hospital, ...)
	Exceptions      []string          `json:"exceptions"`                 // Exception tags
	Category        string            `json:"category"`                   // Single classification tag
	Keywords        []string          `json:"keywords"`                   // Free-text search terms
	IntentMatch     []string          `json:"intent_match"`               // Intents this clause answers
	CitationFormat  string            `json:"citation_format"`            // Human-readable citation
	LegalReferences []string          `json:"legal_references,omitempty"` // Cross references to other instruments
	Timeframes      map[string]string `json:"timeframes,omitempty"`       // Named deadlines (e.g. after_discharge: within 72 hours)
}

// DocumentCode identifies one of the fixed source documents
type DocumentCode string

const (
	DocumentNHRC DocumentCode = "NHRC" // Charter of Patients' Rights (NHRC, 2019)
	DocumentIMC  DocumentCode = "IMC"  // IMC Professional Conduct, Etiquette and Ethics Regulations (2002)
)

// Valid reports whether the code names a known source document
func (d DocumentCode) Valid() bool {
	switch d {
	case DocumentNHRC, DocumentIMC:
		return true
	default:
		return false
	}
}

// Document describes a source document
type Document struct {
	Name        string `json:"name"`
	Year        int    `json:"year"`
	Source      string `json:"source"`
	LastAmended int    `json:"last_amended,omitempty"`
	Description string `json:"description,omitempty"`
}

// Relationship links a right to the obligation it creates
type Relationship struct {
	From        string `json:"from"`
	To          string `json:"to"`
	Type        string `json:"type"`
	Description string `json:"description"`
}

// KnowledgeMetadata is the header of the knowledge data file
type KnowledgeMetadata struct {
	SystemName   string `json:"system_name"`
	Version      string `json:"version"`
	TotalClauses int    `json:"total_clauses"`
	LastUpdated  string `json:"last_updated"`
	Description  string `json:"description,omitempty"`
}

// Metadata is the runtime view of the loaded knowledge base
type Metadata struct {
	SystemName       string `json:"system_name"`
	Version          string `json:"version"`
	TotalClauseCount int    `json:"total_clauses"`
}

// ActorEntry is one right or obligation held by an actor, with its source
type ActorEntry struct {
	Tag      string       `json:"tag"`
	ClauseID string       `json:"clause_id"`
	Title    string       `json:"title"`
	Document DocumentCode `json:"document"`
	Section  string       `json:"section"`
}

// ClauseSummary is the search-result view of a clause
type ClauseSummary struct {
	ID       string       `json:"id"`
	Title    string       `json:"title"`
	Document DocumentCode `json:"document"`
	Section  string       `json:"section"`
	Category string       `json:"category"`
	Summary  string       `json:"summary"`
}

// Stats summarises the loaded knowledge base for front ends
type Stats struct {
	SystemName     string         `json:"system_name"`
	Version        string         `json:"version"`
	TotalClauses   int            `json:"total_clauses"`
	Documents      []string       `json:"documents"`
	CategoryCounts map[string]int `json:"categories"`
}
