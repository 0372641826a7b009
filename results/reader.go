package results

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// scannerBufSize accommodates transcripts with long conversations on one line.
const scannerBufSize = 4 * 1024 * 1024

// Load reads the canonical transcript from a file. It accepts both the
// runner's JSONL output (first line wins) and the labeling tool's indented
// single-document files.
func Load(path string) (*Transcript, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read transcript: %w", err)
	}

	var t Transcript
	if err := json.Unmarshal(data, &t); err == nil {
		return &t, nil
	}

	// More than one line in the file: take the first.
	line, _, found := strings.Cut(string(data), "\n")
	if !found {
		return nil, fmt.Errorf("parse transcript %s: not valid JSON", path)
	}
	if err := json.Unmarshal([]byte(line), &t); err != nil {
		return nil, fmt.Errorf("parse transcript %s: %w", path, err)
	}
	return &t, nil
}

// LoadAll reads every transcript line from a JSONL file, skipping malformed
// lines.
func LoadAll(path string) ([]*Transcript, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open transcript file: %w", err)
	}
	defer f.Close()

	var out []*Transcript
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, scannerBufSize), scannerBufSize)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var t Transcript
		if err := json.Unmarshal(line, &t); err != nil {
			continue // Skip malformed lines
		}
		out = append(out, &t)
	}
	return out, scanner.Err()
}

// List returns the transcript files in a directory, sorted by name. Labeled
// copies are excluded.
func List(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read transcripts directory: %w", err)
	}

	var paths []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".jsonl") {
			continue
		}
		if strings.HasPrefix(e.Name(), "labeled_") {
			continue
		}
		paths = append(paths, filepath.Join(dir, e.Name()))
	}
	sort.Strings(paths)
	return paths, nil
}

// LoadDir loads every transcript line from every file List finds. Runs that
// collide on a run id append to the same file, so a report must read past the
// first line. Unreadable files are skipped so one corrupt transcript cannot
// block a report over an otherwise good run.
func LoadDir(dir string) ([]*Transcript, error) {
	paths, err := List(dir)
	if err != nil {
		return nil, err
	}

	var out []*Transcript
	for _, path := range paths {
		ts, err := LoadAll(path)
		if err != nil {
			continue
		}
		out = append(out, ts...)
	}
	return out, nil
}
