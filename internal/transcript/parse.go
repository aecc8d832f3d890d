// Package transcript decodes flat-text transcript exports into per-file
// groups of time-stamped speaker utterances.
package transcript

import (
	"fmt"
	"io"
	"os"
	"strings"
)

// Result is the outcome of parsing one export document.
type Result struct {
	Groups []Group

	// Counts for logging and metrics.
	Blocks     int
	Segments   int
	Utterances int
	Dangling   bool // a tilde continuation was still pending at end of input
}

// Parse runs the full transform over an in-memory document.
func Parse(doc string) (*Result, error) {
	doc = strings.ReplaceAll(doc, "\r\n", "\n")

	blocks := ExtractBlocks(doc)
	segments, err := BuildSegments(blocks)
	if err != nil {
		return nil, err
	}
	utts, pending := Merge(segments)

	return &Result{
		Groups:     Aggregate(utts),
		Blocks:     len(blocks),
		Segments:   len(segments),
		Utterances: len(utts),
		Dangling:   pending != nil,
	}, nil
}

// ParseReader reads an entire export from r and parses it.
func ParseReader(r io.Reader) (*Result, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read export: %w", err)
	}
	return Parse(string(data))
}

// ParseFile parses the export stored at path.
func ParseFile(path string) (*Result, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	res, err := Parse(string(data))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return res, nil
}
