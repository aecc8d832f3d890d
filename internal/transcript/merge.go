package transcript

import (
	"fmt"
	"strings"
)

// Utterance is a resolved speaker turn with its own millisecond bounds.
type Utterance struct {
	File       string `json:"-"`
	SpeakerTag string `json:"speaker_tag"`
	Text       string `json:"text"`
	Start      int64  `json:"start"`
	End        int64  `json:"end"`
}

// Merge resolves continuations, inherited speaker tags and intervals in a
// single forward scan over the whole document. Tilde-terminated segments are
// held back and fused with their successor; a continuation still pending at
// the end of the input is returned rather than emitted.
//
// The scan must see segments in document order. Partitioning by file first
// changes which utterance counts as the previous one.
func Merge(segments []Segment) ([]Utterance, *Segment) {
	var (
		emitted []Utterance
		pending *Segment
	)
	for _, seg := range segments {
		var last *Utterance
		if n := len(emitted); n > 0 {
			last = &emitted[n-1]
		}
		next, u, emit := mergeStep(pending, seg, last)
		if emit {
			emitted = append(emitted, u)
		}
		pending = next
	}
	return emitted, pending
}

// mergeStep applies one segment to the scan state. It returns the pending
// continuation to carry forward and, when emit is true, the utterance to
// append.
func mergeStep(pending *Segment, seg Segment, last *Utterance) (next *Segment, u Utterance, emit bool) {
	if pending != nil && pending.Terminator.Kind != Tilde {
		panic(fmt.Sprintf("transcript: pending continuation has %s terminator", pending.Terminator.Kind))
	}

	if seg.Terminator.Kind == Tilde {
		// Its interval is unknown until the successor is seen. A pending
		// continuation it replaces is dropped.
		held := seg
		return &held, Utterance{}, false
	}

	u = Utterance{
		File:       seg.File,
		SpeakerTag: resolveSpeaker(pending, seg),
		Text:       resolveText(pending, seg),
	}
	u.Start, u.End = resolveInterval(seg, last)
	return nil, u, true
}

// resolveSpeaker picks the output tag. Only the generic marker inherits, and
// only from the one pending continuation. An inherited tag is taken raw, so
// a generic segment after a no-speech continuation keeps "<#no-speech>".
func resolveSpeaker(pending *Segment, seg Segment) string {
	switch {
	case seg.SpeakerTag == NoSpeechTag:
		return ""
	case seg.SpeakerTag == GenericMarker && pending != nil:
		return pending.SpeakerTag
	default:
		return seg.SpeakerTag
	}
}

// resolveText fuses a pending continuation with its successor. No-speech
// segments neither absorb nor contribute text.
func resolveText(pending *Segment, seg Segment) string {
	switch {
	case seg.SpeakerTag == NoSpeechTag:
		return NoSpeechTag
	case pending != nil && pending.SpeakerTag != NoSpeechTag:
		return strings.TrimSpace(pending.Text) + " " + strings.TrimSpace(seg.Text)
	default:
		return strings.TrimSpace(seg.Text)
	}
}

// resolveInterval computes the bounds of a non-tilde segment. An utterance
// following one of the same file starts where the previous one ended.
func resolveInterval(seg Segment, last *Utterance) (start, end int64) {
	sameFile := last != nil && last.File == seg.File

	switch {
	case sameFile && seg.Terminator.Kind == DurationOffset:
		start, end = last.End, seg.StartMs+seg.Terminator.OffsetMs
	case sameFile:
		start, end = last.End, seg.EndMs
	case seg.Terminator.Kind == DurationOffset:
		start, end = seg.StartMs, seg.StartMs+seg.Terminator.OffsetMs
	default:
		start, end = seg.StartMs, seg.EndMs
	}

	if end < start {
		end = start
	}
	return start, end
}
