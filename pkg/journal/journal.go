// Package journal provides the one-file-per-record JSON persistence idiom
// the teacher used for its cycle journal, generalized to any
// JSON-serializable record so the Audit Sink's file log can reuse the same
// mkdir/marshal/write sequence instead of duplicating it. A Writer writes
// into the single directory it is given; callers choose per-day
// directories themselves.
package journal

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Writer persists JSON records to files under a directory, creating it on
// first write.
type Writer struct {
	dir string
	seq int
}

// NewWriter constructs a journal writer rooted at dir ("journal" if empty).
func NewWriter(dir string) *Writer {
	if dir == "" {
		dir = "journal"
	}
	return &Writer{dir: dir}
}

// Dir returns the writer's root directory.
func (w *Writer) Dir() string { return w.dir }

// Count returns the number of records written so far.
func (w *Writer) Count() int { return w.seq }

// Write marshals v as indented JSON and writes it to name under the
// writer's directory, creating the directory if needed.
func (w *Writer) Write(name string, v any) (string, error) {
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return "", fmt.Errorf("journal: mkdir %s: %w", w.dir, err)
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", fmt.Errorf("journal: marshal %s: %w", name, err)
	}
	path := filepath.Join(w.dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("journal: write %s: %w", path, err)
	}
	w.seq++
	return path, nil
}
