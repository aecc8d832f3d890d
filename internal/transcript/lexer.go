package transcript

import (
	"strconv"
	"strings"
)

// GenericMarker introduces a transcription line that carries no explicit
// speaker tag. Utterances lexed under it inherit the tag of a pending
// continuation, if any.
const GenericMarker = "TRANSCRIPTION: "

// NoSpeechTag marks silence or non-speech. It resolves to an empty speaker
// tag and is emitted with itself as the text.
const NoSpeechTag = "<#no-speech>"

// TerminatorKind identifies how an utterance ends.
type TerminatorKind int

const (
	EndOfLine TerminatorKind = iota
	Tilde
	DurationOffset
)

func (k TerminatorKind) String() string {
	switch k {
	case EndOfLine:
		return "eol"
	case Tilde:
		return "tilde"
	case DurationOffset:
		return "duration"
	default:
		return "unknown"
	}
}

// Terminator ends an utterance. OffsetMs is only meaningful for
// DurationOffset and is measured from the start of the block.
type Terminator struct {
	Kind     TerminatorKind
	OffsetMs int64
}

// RawUtterance is one speaker turn lexed from a transcription line.
type RawUtterance struct {
	Marker     string
	Text       string
	Terminator Terminator
	BlockSize  int
}

// LexUtterances splits a transcription line into utterances of the form
// marker, text, terminator. Text is captured non-greedily up to the nearest
// terminator and may not span lines. Bracketed tokens other than a duration
// terminator are kept verbatim in the text.
func LexUtterances(line string) ([]RawUtterance, error) {
	var out []RawUtterance
	pos := 0
	for pos < len(line) {
		u, next, ok, err := lexAt(line, pos)
		if err != nil {
			return nil, err
		}
		if !ok {
			pos++
			continue
		}
		out = append(out, u)
		pos = next
	}

	for i := range out {
		out[i].BlockSize = len(out)
	}
	return out, nil
}

// lexAt attempts a single utterance match starting exactly at pos.
func lexAt(line string, pos int) (RawUtterance, int, bool, error) {
	markerEnd := matchMarker(line, pos)
	if markerEnd < 0 {
		return RawUtterance{}, 0, false, nil
	}

	// Text needs at least one character before a terminator can match.
	if markerEnd >= len(line) || line[markerEnd] == '\n' {
		return RawUtterance{}, 0, false, nil
	}

	for p := markerEnd + 1; p < len(line); p++ {
		switch line[p] {
		case '\n':
			return RawUtterance{
				Marker:     line[pos:markerEnd],
				Text:       line[markerEnd:p],
				Terminator: Terminator{Kind: EndOfLine},
			}, p + 1, true, nil
		case '~':
			return RawUtterance{
				Marker:     line[pos:markerEnd],
				Text:       line[markerEnd:p],
				Terminator: Terminator{Kind: Tilde},
			}, p + 1, true, nil
		case '[':
			end := matchDuration(line, p)
			if end < 0 {
				continue
			}
			raw := line[p+1 : end-1]
			seconds, err := strconv.ParseFloat(raw, 64)
			if err != nil {
				return RawUtterance{}, 0, false, &FormatError{Field: "duration", Value: raw, Err: err}
			}
			return RawUtterance{
				Marker:     line[pos:markerEnd],
				Text:       line[markerEnd:p],
				Terminator: Terminator{Kind: DurationOffset, OffsetMs: int64(seconds * 1000)},
			}, end, true, nil
		}
	}
	return RawUtterance{}, 0, false, nil
}

// matchMarker returns the end offset of a speaker marker at pos, or -1.
func matchMarker(line string, pos int) int {
	if strings.HasPrefix(line[pos:], GenericMarker) {
		end := pos + len(GenericMarker)
		if matchTag(line, end) < 0 {
			return end
		}
		return -1
	}
	return matchTag(line, pos)
}

// matchTag matches the shortest "<#" + one or more characters + ">" at pos,
// without crossing a newline. It returns the offset just past '>' or -1.
func matchTag(line string, pos int) int {
	if !strings.HasPrefix(line[pos:], "<#") {
		return -1
	}
	for p := pos + 2; p < len(line); p++ {
		switch {
		case line[p] == '\n':
			return -1
		case line[p] == '>' && p > pos+2:
			return p + 1
		}
	}
	return -1
}

// matchDuration matches "[" digits "." digits "]" at pos and returns the
// offset just past ']' or -1.
func matchDuration(line string, pos int) int {
	p := pos + 1
	intStart := p
	for p < len(line) && isDigit(line[p]) {
		p++
	}
	if p == intStart || p >= len(line) || line[p] != '.' {
		return -1
	}
	p++
	fracStart := p
	for p < len(line) && isDigit(line[p]) {
		p++
	}
	if p == fracStart || p >= len(line) || line[p] != ']' {
		return -1
	}
	return p + 1
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}
