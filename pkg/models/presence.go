package models

// PresenceDiff is one decoded join/leave delta for a presence topic.
//
// Joins and Leaves carry actor IDs. An actor may appear more than once
// across diffs for the same topic (one entry per live connection); the
// tracker reference-counts accordingly.
type PresenceDiff struct {
	Topic  string   `json:"topic"`
	Joins  []string `json:"joins,omitempty"`
	Leaves []string `json:"leaves,omitempty"`
}

// Empty reports whether the diff changes nothing.
func (d PresenceDiff) Empty() bool {
	return len(d.Joins) == 0 && len(d.Leaves) == 0
}
