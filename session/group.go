// Package session holds the ordered history of transcription groups and keeps it
// in sync with the persistent key-value store.
package session

import (
	"encoding/json"
	"fmt"
)

// Utterance is the text recognized during one recording action.
type Utterance struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// Group is one conversation: an ordered list of utterances.
// The JSON field name "transcriptions" is the persisted format.
type Group struct {
	ID         string      `json:"id"`
	Utterances []Utterance `json:"transcriptions"`
}

// Clone returns a deep copy so callers never alias store-owned slices.
func (g Group) Clone() Group {
	out := Group{ID: g.ID}
	if g.Utterances != nil {
		out.Utterances = make([]Utterance, len(g.Utterances))
		copy(out.Utterances, g.Utterances)
	}
	return out
}

// Last returns the most recent utterance.
func (g Group) Last() (Utterance, bool) {
	if len(g.Utterances) == 0 {
		return Utterance{}, false
	}
	return g.Utterances[len(g.Utterances)-1], true
}

// Equal reports value equality.
func (g Group) Equal(o Group) bool {
	if g.ID != o.ID || len(g.Utterances) != len(o.Utterances) {
		return false
	}
	for i := range g.Utterances {
		if g.Utterances[i] != o.Utterances[i] {
			return false
		}
	}
	return true
}

func cloneAll(groups []Group) []Group {
	out := make([]Group, len(groups))
	for i, g := range groups {
		out[i] = g.Clone()
	}
	return out
}

// Encode serializes groups in the persisted format.
func Encode(groups []Group) ([]byte, error) {
	out := make([]Group, len(groups))
	for i, g := range groups {
		out[i] = g
		if out[i].Utterances == nil {
			out[i].Utterances = []Utterance{}
		}
	}
	return json.Marshal(out)
}

// Decode parses the persisted format and keeps only groups that hold at least
// one utterance.
func Decode(data []byte) ([]Group, error) {
	var groups []Group
	if err := json.Unmarshal(data, &groups); err != nil {
		return nil, fmt.Errorf("decode groups: %w", err)
	}
	kept := groups[:0]
	for _, g := range groups {
		if len(g.Utterances) > 0 {
			kept = append(kept, g)
		}
	}
	return kept, nil
}
