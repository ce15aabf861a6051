package ranking

import "context"

// HeuristicRanker is the fallback implementation used when the oracle is
// unavailable. Scoring:
//
//	trust score / 10
//	+5 when sharing the requester's city and localFirst is on
//	+2 for a description longer than 50 characters
//	+2 for three or more images
type HeuristicRanker struct {
	LocalFirst bool
}

func (r *HeuristicRanker) Rank(ctx context.Context, candidates []Candidate, requester Requester) ([]Score, error) {
	scores := make([]Score, len(candidates))
	for i, c := range candidates {
		score := float64(c.TrustScore) / 10
		if r.LocalFirst && c.City == requester.City {
			score += 5
		}
		if c.DescriptionLength > 50 {
			score += 2
		}
		if c.ImageCount >= 3 {
			score += 2
		}
		scores[i] = Score{ID: c.ID, Score: score}
	}
	return scores, nil
}
