package transcript

import "regexp"

// Block is one FILE/INTERVAL/TRANSCRIPTION/.../USER record of an export.
type Block struct {
	File       string
	Interval   string
	RawLine    string // includes the "TRANSCRIPTION:" prefix and trailing newline
	Hypothesis string
	Labels     string
	User       string
}

var blockPattern = regexp.MustCompile(
	`FILE:[ \t]*([^\n]+)\n` +
		`INTERVAL:[ \t]*([^\n]+)\n` +
		`(TRANSCRIPTION:[^\n]*\n)` +
		`(?:HYPOTHESIS:[ \t]*([^\n]*)\n)?` +
		`LABELS:[ \t]*([^\n]*)\n` +
		`USER:[ \t]*([^\n]*)`,
)

// ExtractBlocks returns every block of doc in document order. Text that does
// not match the block grammar is skipped.
func ExtractBlocks(doc string) []Block {
	matches := blockPattern.FindAllStringSubmatch(doc, -1)
	blocks := make([]Block, 0, len(matches))
	for _, m := range matches {
		blocks = append(blocks, Block{
			File:       m[1],
			Interval:   m[2],
			RawLine:    m[3],
			Hypothesis: m[4],
			Labels:     m[5],
			User:       m[6],
		})
	}
	return blocks
}
