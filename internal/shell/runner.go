// Package shell runs operator-approved commands on behalf of API clients.
// There is no shell interpolation: the input is tokenized, the first token
// must be on the allow-list, and the rest are passed as literal arguments.
package shell

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"strings"
	"time"

	"go.uber.org/zap"
)

var (
	ErrEmpty      = errors.New("no command provided")
	ErrNotAllowed = errors.New("command not allowed")
	ErrTimeout    = errors.New("command timeout")
)

type Result struct {
	Output   string `json:"output"`
	ExitCode int    `json:"return_code"`
}

type Runner struct {
	allowed map[string]bool
	timeout time.Duration
	logger  *zap.Logger
}

// NewRunner builds a runner restricted to the given command names. An empty
// allow-list rejects everything.
func NewRunner(allowed []string, logger *zap.Logger) *Runner {
	set := make(map[string]bool, len(allowed))
	for _, name := range allowed {
		set[name] = true
	}
	return &Runner{
		allowed: set,
		timeout: 30 * time.Second,
		logger:  logger,
	}
}

func (r *Runner) Run(ctx context.Context, command string) (*Result, error) {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return nil, ErrEmpty
	}
	if !r.allowed[fields[0]] {
		r.logger.Warn("rejected command", zap.String("command", fields[0]))
		return nil, ErrNotAllowed
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, fields[0], fields[1:]...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if ctx.Err() == context.DeadlineExceeded {
		return nil, ErrTimeout
	}

	exitCode := 0
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		exitCode = exitErr.ExitCode()
	} else if err != nil {
		return nil, err
	}

	output := stdout.String()
	if exitCode != 0 {
		output = stderr.String()
	}
	return &Result{Output: output, ExitCode: exitCode}, nil
}
