// Package similarity implements token-based Jaccard claim similarity and
// the sibling deduplication it drives (§4.2).
package similarity

import (
	"sort"
	"strings"
)

// tokenize lowercases and splits on whitespace, matching the spec's
// "lowercased whitespace tokens" definition exactly (§4.2).
func tokenize(s string) map[string]struct{} {
	fields := strings.Fields(strings.ToLower(s))
	set := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		set[f] = struct{}{}
	}
	return set
}

// Jaccard returns the Jaccard similarity of two claims over their
// lowercased whitespace-token sets: identical claims score 1.0, an empty
// claim on either side scores 0.0 (P5).
func Jaccard(a, b string) float64 {
	setA := tokenize(a)
	setB := tokenize(b)
	if len(setA) == 0 || len(setB) == 0 {
		return 0
	}

	intersection := 0
	for tok := range setA {
		if _, ok := setB[tok]; ok {
			intersection++
		}
	}
	union := len(setA) + len(setB) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

// Match pairs a score with the direction it was computed against.
type Match struct {
	Score       float64
	DirectionID string
}

// Candidate is the minimal view FindSimilar needs of a graph node.
type Candidate struct {
	ID       string
	ParentID string
	Claim    string
	Active   bool
}

// FindSimilar returns up to limit (score, direction) pairs for claim,
// scored against candidates, descending by score. When parentID is
// non-empty, only siblings of parentID are considered; otherwise every
// active candidate is. Ties keep candidate order stable (sort.SliceStable).
func FindSimilar(candidates []Candidate, claim string, parentID string, threshold float64, limit int) []Match {
	var matches []Match
	for _, c := range candidates {
		if !c.Active {
			continue
		}
		if parentID != "" && c.ParentID != parentID {
			continue
		}
		score := Jaccard(claim, c.Claim)
		if score >= threshold {
			matches = append(matches, Match{Score: score, DirectionID: c.ID})
		}
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Score > matches[j].Score
	})

	if limit > 0 && len(matches) > limit {
		matches = matches[:limit]
	}
	return matches
}
