package transcript

// Group is the per-file output unit.
type Group struct {
	File       string      `json:"file"`
	Utterances []Utterance `json:"utterances"`
}

// Aggregate partitions utterances by file. Groups appear in the order their
// file is first seen; utterances keep their merged order within a group.
func Aggregate(utts []Utterance) []Group {
	var groups []Group
	index := make(map[string]int)
	for _, u := range utts {
		i, ok := index[u.File]
		if !ok {
			i = len(groups)
			index[u.File] = i
			groups = append(groups, Group{File: u.File})
		}
		groups[i].Utterances = append(groups[i].Utterances, u)
	}
	return groups
}
