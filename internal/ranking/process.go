package ranking

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"os/exec"

	"github.com/reflexapp/reflex-backend/internal/logger"
)

type rankInput struct {
	Profiles []Candidate `json:"profiles"`
	User     Requester   `json:"user"`
}

// ProcessRanker invokes the external scoring oracle as a child process:
// the request goes to stdin as {"profiles":[...],"user":{...}} and the
// verdicts come back on stdout as [{"id":...,"score":...}].
//
// Any failure mode (spawn error, non-zero exit, unparsable output) is
// collapsed into ErrUnavailable so the recommendation path can degrade to
// the heuristic ranker instead of stalling or crashing the session.
type ProcessRanker struct {
	Command string
	Args    []string
}

func NewProcessRanker(command string, args []string) *ProcessRanker {
	return &ProcessRanker{Command: command, Args: args}
}

func (r *ProcessRanker) Rank(ctx context.Context, candidates []Candidate, requester Requester) ([]Score, error) {
	input, err := json.Marshal(rankInput{Profiles: candidates, User: requester})
	if err != nil {
		return nil, fmt.Errorf("%w: encode input: %v", ErrUnavailable, err)
	}

	cmd := exec.CommandContext(ctx, r.Command, r.Args...)
	cmd.Stdin = bytes.NewReader(input)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		logger.Warn("ranking oracle failed", "err", err, "stderr", stderr.String())
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	var scores []Score
	if err := json.Unmarshal(stdout.Bytes(), &scores); err != nil {
		logger.Warn("ranking oracle returned malformed output", "err", err)
		return nil, fmt.Errorf("%w: decode output: %v", ErrUnavailable, err)
	}
	return scores, nil
}
