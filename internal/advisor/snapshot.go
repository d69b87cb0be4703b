package advisor

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ppiankov/medrights/internal/data"
	"github.com/ppiankov/medrights/internal/intent"
	"github.com/ppiankov/medrights/internal/knowledge"
	"github.com/ppiankov/medrights/internal/model"
	"github.com/ppiankov/medrights/internal/pipeline"
	"github.com/ppiankov/medrights/internal/templates"
)

// Snapshot is one immutable, validated generation of the data files and the
// pipeline built over them. Reloads build a new snapshot and swap it in whole.
type Snapshot struct {
	Knowledge   *knowledge.Base
	Intents     *intent.Registry
	Templates   *templates.Library
	Pipeline    *pipeline.Pipeline
	Version     string // Combined header versions of the data files
	Fingerprint string // sha256 of the raw data files and scoring policy; keys cached answers
	LoadedAt    time.Time
}

// LoadSnapshot reads the three data files (embedded copies for empty paths),
// cross-checks them and builds the pipeline
func LoadSnapshot(paths model.DataConfig, scoring model.ScoringConfig) (*Snapshot, error) {
	kbRaw, err := readSource(paths.KnowledgePath, data.KnowledgeBase)
	if err != nil {
		return nil, &knowledge.LoadError{Path: paths.KnowledgePath, Err: err}
	}
	kb, err := knowledge.Parse(sourceName(paths.KnowledgePath, knowledge.EmbeddedSource), kbRaw)
	if err != nil {
		return nil, err
	}

	intentsRaw, err := readSource(paths.IntentsPath, data.Intents)
	if err != nil {
		return nil, &intent.ConfigError{Path: paths.IntentsPath, Err: err}
	}
	reg, err := intent.Parse(sourceName(paths.IntentsPath, intent.EmbeddedSource), intentsRaw)
	if err != nil {
		return nil, err
	}

	templatesRaw, err := readSource(paths.TemplatesPath, data.Templates)
	if err != nil {
		return nil, &templates.LoadError{Path: paths.TemplatesPath, Err: err}
	}
	lib, err := templates.Parse(sourceName(paths.TemplatesPath, templates.EmbeddedSource), templatesRaw)
	if err != nil {
		return nil, err
	}

	if err := crossCheck(kb, reg); err != nil {
		return nil, err
	}

	classifier := intent.NewClassifier(reg, scoring)
	p, err := pipeline.New(kb, classifier, templates.NewEngine(lib))
	if err != nil {
		return nil, err
	}

	fp, err := fingerprint(classifier.Scoring(), kbRaw, intentsRaw, templatesRaw)
	if err != nil {
		return nil, err
	}

	return &Snapshot{
		Knowledge:   kb,
		Intents:     reg,
		Templates:   lib,
		Pipeline:    p,
		Version:     strings.Join([]string{kb.Metadata().Version, reg.Version(), lib.Version()}, "/"),
		Fingerprint: fp,
		LoadedAt:    time.Now().UTC(),
	}, nil
}

// readSource returns the file at path, or the embedded copy for an empty path
func readSource(path string, embedded []byte) ([]byte, error) {
	if path == "" {
		return embedded, nil
	}
	return os.ReadFile(path)
}

func sourceName(path, embedded string) string {
	if path == "" {
		return embedded
	}
	return path
}

// fingerprint hashes the effective scoring policy and every data file, each
// length-prefixed so no two inputs share a digest
func fingerprint(scoring model.ScoringConfig, files ...[]byte) (string, error) {
	policy, err := json.Marshal(scoring)
	if err != nil {
		return "", fmt.Errorf("encode scoring: %w", err)
	}

	h := sha256.New()
	for _, part := range append([][]byte{policy}, files...) {
		fmt.Fprintf(h, "%d:", len(part))
		h.Write(part)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// crossCheck rejects clauses that answer intents the classifier can never
// produce
func crossCheck(kb *knowledge.Base, reg *intent.Registry) error {
	var errs []error
	for _, name := range kb.Intents() {
		if !reg.Has(name) {
			errs = append(errs, fmt.Errorf("clause intent %q is not a registered intent", name))
		}
	}
	if len(errs) > 0 {
		return &knowledge.LoadError{Path: kb.Source(), Err: errors.Join(errs...)}
	}
	return nil
}
