package results

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/shanefrancis93/anchor-research/metrics"
)

// File system constants.
const (
	dirPermissions  = 0750
	filePermissions = 0600

	transcriptsDirName = "transcripts"
)

// Writer persists branch transcripts under <dir>/transcripts/. Files are
// opened in append mode so a run that collides on an identifier never
// clobbers an earlier record; readers scan every line.
type Writer struct {
	dir string
}

// NewWriter creates a transcript writer rooted at dir, creating the
// transcripts subdirectory if needed.
func NewWriter(dir string) (*Writer, error) {
	transcriptsDir := filepath.Join(dir, transcriptsDirName)
	if err := os.MkdirAll(transcriptsDir, dirPermissions); err != nil {
		return nil, fmt.Errorf("create transcripts directory: %w", err)
	}
	return &Writer{dir: dir}, nil
}

// Dir returns the output directory root.
func (w *Writer) Dir() string {
	return w.dir
}

// TranscriptsDir returns the directory transcript files are written into.
func (w *Writer) TranscriptsDir() string {
	return filepath.Join(w.dir, transcriptsDirName)
}

// Path returns the file path a transcript with the given identity is
// written to.
func (w *Writer) Path(scenarioName, branch, runID string) string {
	name := fmt.Sprintf("%s_%s_%s.jsonl", scenarioName, branch, runID)
	return filepath.Join(w.dir, transcriptsDirName, name)
}

// Write appends the transcript as one JSON line and returns the file path.
// A missing Timestamp is filled with the current UTC time.
func (w *Writer) Write(t *Transcript) (string, error) {
	if t.RunID == "" {
		return "", fmt.Errorf("transcript has no run ID")
	}
	if t.Scenario == "" || t.Branch == "" {
		return "", fmt.Errorf("transcript has no scenario or branch")
	}
	if t.Timestamp == "" {
		t.Timestamp = time.Now().UTC().Format(time.RFC3339)
	}

	data, err := json.Marshal(t)
	if err != nil {
		return "", fmt.Errorf("marshal transcript: %w", err)
	}

	path := w.Path(t.Scenario, t.Branch, t.RunID)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, filePermissions)
	if err != nil {
		return "", fmt.Errorf("open transcript file: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(append(data, '\n')); err != nil {
		return "", fmt.Errorf("write transcript: %w", err)
	}

	metrics.RecordTranscriptWritten()
	return path, nil
}

// SaveLabeled writes a labeled copy of the transcript as an indented JSON
// document next to the original file, prefixed labeled_. Returns the path of
// the labeled file.
func SaveLabeled(originalPath string, t *Transcript) (string, error) {
	data, err := json.MarshalIndent(t, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal labeled transcript: %w", err)
	}

	dir := filepath.Dir(originalPath)
	labeledPath := filepath.Join(dir, "labeled_"+filepath.Base(originalPath))
	if err := os.WriteFile(labeledPath, data, filePermissions); err != nil {
		return "", fmt.Errorf("write labeled transcript: %w", err)
	}
	return labeledPath, nil
}
