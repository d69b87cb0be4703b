package querylog

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/ppiankov/medrights/internal/model"
)

// Sink persists query records. Implementations must be safe for use by a
// single writer goroutine; the Recorder never calls Write concurrently.
type Sink interface {
	Write(ctx context.Context, rec model.QueryRecord) error
	Close() error
}

// NopSink discards every record
type NopSink struct{}

func (NopSink) Write(context.Context, model.QueryRecord) error { return nil }
func (NopSink) Close() error                                   { return nil }

// JSONLSink appends one JSON object per line to a file
type JSONLSink struct {
	mu   sync.Mutex
	file *os.File
	enc  *json.Encoder
}

// OpenJSONL opens path for appending, creating parent directories
func OpenJSONL(path string) (*JSONLSink, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create log dir: %w", err)
		}
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("open query log: %w", err)
	}
	return &JSONLSink{file: f, enc: json.NewEncoder(f)}, nil
}

// Write appends rec as a single line
func (s *JSONLSink) Write(_ context.Context, rec model.QueryRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enc.Encode(rec)
}

// Close flushes and closes the file
func (s *JSONLSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.file.Sync(); err != nil {
		_ = s.file.Close()
		return err
	}
	return s.file.Close()
}
