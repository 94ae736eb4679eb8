// Package pipeline invokes the external analysis pipeline against a case's
// results directory. The orchestrator only depends on its contract: a single
// blocking call that succeeds or fails, cooperating with ctx cancellation.
package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/m7md-3asm/brainscan-insight-navigator/internal/core/domain"
)

const stderrTailBytes = 2048

type Runner struct {
	command string
	args    []string
}

// NewRunner builds a runner for the configured pipeline command. The case's
// results directory is appended as the final argument of every invocation.
func NewRunner(command string, args []string) (*Runner, error) {
	if strings.TrimSpace(command) == "" {
		return nil, errors.New("pipeline command is required")
	}
	return &Runner{command: command, args: args}, nil
}

func (r *Runner) Run(ctx context.Context, resultsDir string) error {
	args := append(append([]string{}, r.args...), resultsDir)
	cmd := exec.CommandContext(ctx, r.command, args...)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return domain.WrapError(domain.ErrPipeline, "run pipeline", ctxErr)
		}
		detail := err.Error()
		if tail := stderrTail(stderr.Bytes()); tail != "" {
			detail = fmt.Sprintf("%s: %s", detail, tail)
		}
		return domain.WrapError(domain.ErrPipeline, "run pipeline", errors.New(detail))
	}
	return nil
}

// stderrTail keeps the last chunk of stderr so the persisted error detail
// stays bounded no matter how chatty the pipeline is.
func stderrTail(out []byte) string {
	s := strings.TrimSpace(string(out))
	if len(s) > stderrTailBytes {
		s = s[len(s)-stderrTailBytes:]
	}
	return s
}
