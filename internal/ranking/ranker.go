package ranking

import (
	"context"
	"errors"
)

// ErrUnavailable is returned when the external ranking oracle cannot
// produce scores (process failure, malformed output). Callers select the
// heuristic fallback instead of surfacing the failure.
var ErrUnavailable = errors.New("ranking oracle unavailable")

// Candidate is the reduced projection of a profile handed to the oracle.
// The unexported-from-JSON fields feed the heuristic fallback only and are
// never sent to the oracle process.
type Candidate struct {
	ID            string   `json:"id"`
	City          string   `json:"city"`
	BirthYear     int      `json:"birthYear"`
	Goals         []string `json:"goals"`
	IsVerified    bool     `json:"isVerified"`
	LikesReceived int64    `json:"likesReceived"`

	TrustScore        int `json:"-"`
	DescriptionLength int `json:"-"`
	ImageCount        int `json:"-"`
}

// Requester is the reduced projection of the requesting user.
type Requester struct {
	City       string   `json:"city"`
	BirthYear  int      `json:"birthYear"`
	Goals      []string `json:"goals"`
	TrustScore int      `json:"trustScore"`
}

// Score is one oracle verdict.
type Score struct {
	ID    string  `json:"id"`
	Score float64 `json:"score"`
}

// Ranker scores candidates for a requester. Implementations: ProcessRanker
// (external oracle) and HeuristicRanker (local fallback).
type Ranker interface {
	Rank(ctx context.Context, candidates []Candidate, requester Requester) ([]Score, error)
}
