package transcript

import (
	"fmt"
	"strings"
)

// Segment is an utterance stamped with its block's file and interval. StartMs
// and EndMs hold the block bounds, not the utterance's own.
type Segment struct {
	File       string
	SpeakerTag string
	Text       string
	Terminator Terminator
	BlockSize  int
	StartMs    int64
	EndMs      int64
}

// BuildSegments lexes every block and flattens the utterances into one
// sequence in block order.
func BuildSegments(blocks []Block) ([]Segment, error) {
	var segments []Segment
	for i, b := range blocks {
		start, end, err := ParseInterval(b.Interval)
		if err != nil {
			return nil, fmt.Errorf("block %d (%s): %w", i, strings.TrimSpace(b.File), err)
		}
		utts, err := LexUtterances(b.RawLine)
		if err != nil {
			return nil, fmt.Errorf("block %d (%s): %w", i, strings.TrimSpace(b.File), err)
		}
		file := strings.TrimSpace(b.File)
		for _, u := range utts {
			segments = append(segments, Segment{
				File:       file,
				SpeakerTag: u.Marker,
				Text:       u.Text,
				Terminator: u.Terminator,
				BlockSize:  u.BlockSize,
				StartMs:    start,
				EndMs:      end,
			})
		}
	}
	return segments, nil
}
