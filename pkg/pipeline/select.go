package pipeline

import "github.com/verascope-ai/verascope/pkg/extract"

// SelectionPolicy parameterizes candidate selection. The neutral score is a
// policy choice, not a fixed behavior: it is what a candidate earns when its
// score is missing, malformed, or non-numeric.
type SelectionPolicy struct {
	NeutralScore float64
}

// SelectBest returns the candidate with the highest numeric "score" among
// the paired score values. Ties break by first occurrence. Malformed scores
// take the neutral score rather than disqualifying the candidate; an empty
// candidate list yields nil.
func SelectBest(candidates []any, scores []any, policy SelectionPolicy) any {
	if len(candidates) == 0 {
		return nil
	}

	bestIdx := 0
	bestScore := -1.0
	for i := range candidates {
		s := policy.NeutralScore
		if i < len(scores) {
			s = scoreOf(scores[i], policy.NeutralScore)
		}
		if s > bestScore {
			bestScore = s
			bestIdx = i
		}
	}
	return candidates[bestIdx]
}

// scoreOf digs the numeric score out of whatever shape the model produced:
// an object, an array wrapping an object, or garbage.
func scoreOf(score any, neutral float64) float64 {
	v := extract.FromAny(score)
	first, ok := v.First()
	if !ok {
		return neutral
	}
	if n, ok := first.Number("score"); ok {
		return n
	}
	return neutral
}
