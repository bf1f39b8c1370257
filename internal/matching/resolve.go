package matching

import (
	"sort"
	"strconv"
	"strings"
)

// MinOverlapScore is the lowest token-overlap score a candidate needs to be
// considered by the fallback rule.
const MinOverlapScore = 0.5

// Choice is a selectable option presented to a contact.
type Choice struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

// Method names the rule that produced a match.
type Method string

const (
	MethodPosition     Method = "position"
	MethodID           Method = "id"
	MethodContainment  Method = "containment"
	MethodTokenOverlap Method = "token_overlap"
)

// Match is a successful resolution.
type Match struct {
	ID     string
	Method Method
	Score  float64
}

// ResolveChoice returns the id of the candidate the input selects, if any.
func ResolveChoice(raw string, candidates []Choice) (string, bool) {
	m, ok := Resolve(raw, candidates)
	if !ok {
		return "", false
	}
	return m.ID, true
}

// Resolve applies the resolution rules in order and stops at the first one
// that yields a unique candidate:
//
//  1. numeric position (1-based)
//  2. exact id
//  3. normalized containment in either direction, only when exactly one label matches
//  4. token overlap against the input's tokens, strict winner with score >= MinOverlapScore
func Resolve(raw string, candidates []Choice) (Match, bool) {
	if len(candidates) == 0 {
		return Match{}, false
	}
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return Match{}, false
	}

	if n, err := strconv.Atoi(trimmed); err == nil && n >= 1 && n <= len(candidates) {
		return Match{ID: candidates[n-1].ID, Method: MethodPosition, Score: 1}, true
	}

	for _, c := range candidates {
		if c.ID == trimmed {
			return Match{ID: c.ID, Method: MethodID, Score: 1}, true
		}
	}

	input := Normalize(trimmed)
	if input == "" {
		return Match{}, false
	}

	labels := make([]string, len(candidates))
	var contained []int
	for i, c := range candidates {
		labels[i] = Normalize(c.Label)
		if labels[i] == "" {
			continue
		}
		if strings.Contains(labels[i], input) || strings.Contains(input, labels[i]) {
			contained = append(contained, i)
		}
	}
	if len(contained) == 1 {
		return Match{ID: candidates[contained[0]].ID, Method: MethodContainment, Score: 1}, true
	}

	return resolveByOverlap(input, labels, candidates)
}

type scored struct {
	index int
	score float64
}

func resolveByOverlap(input string, labels []string, candidates []Choice) (Match, bool) {
	inputTokens := Tokens(input)
	if len(inputTokens) == 0 {
		return Match{}, false
	}

	var qualified []scored
	for i, label := range labels {
		labelTokens := Tokens(label)
		shared := 0
		for tok := range inputTokens {
			if _, ok := labelTokens[tok]; ok {
				shared++
			}
		}
		score := float64(shared) / float64(len(inputTokens))
		if score >= MinOverlapScore {
			qualified = append(qualified, scored{index: i, score: score})
		}
	}
	if len(qualified) == 0 {
		return Match{}, false
	}

	sort.SliceStable(qualified, func(a, b int) bool { return qualified[a].score > qualified[b].score })
	if len(qualified) > 1 && qualified[0].score <= qualified[1].score {
		return Match{}, false
	}
	top := qualified[0]
	return Match{ID: candidates[top.index].ID, Method: MethodTokenOverlap, Score: top.score}, true
}
