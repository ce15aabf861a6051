package nsfw

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"

	"github.com/reflexapp/reflex-backend/internal/logger"
)

// Result is the classifier verdict for one image.
type Result struct {
	IsNsfw     bool     `json:"isNsfw"`
	Score      float64  `json:"score"`
	Categories []string `json:"categories"`
}

// Classifier rates an image. Callers treat any failure as "proceed without
// rating"; classification never blocks an ingestion path.
type Classifier interface {
	Classify(ctx context.Context, image []byte) (Result, error)
}

// ProcessClassifier invokes an external classifier command with the raw
// image bytes on stdin and the Result JSON on stdout.
type ProcessClassifier struct {
	Command string
	Args    []string
}

func NewProcessClassifier(command string, args []string) *ProcessClassifier {
	return &ProcessClassifier{Command: command, Args: args}
}

func (c *ProcessClassifier) Classify(ctx context.Context, image []byte) (Result, error) {
	cmd := exec.CommandContext(ctx, c.Command, c.Args...)
	cmd.Stdin = bytes.NewReader(image)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		logger.Warn("nsfw classifier failed", "err", err, "stderr", stderr.String())
		return Result{}, fmt.Errorf("nsfw classifier: %w", err)
	}

	var result Result
	if err := json.Unmarshal(stdout.Bytes(), &result); err != nil {
		return Result{}, fmt.Errorf("nsfw classifier: decode output: %w", err)
	}
	return result, nil
}

// Disabled is used when no classifier command is configured; every image
// passes unrated.
type Disabled struct{}

func (Disabled) Classify(ctx context.Context, image []byte) (Result, error) {
	return Result{}, nil
}
