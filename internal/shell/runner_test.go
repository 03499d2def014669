package shell

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestRunAllowedCommand(t *testing.T) {
	runner := NewRunner([]string{"echo"}, zap.NewNop())

	result, err := runner.Run(context.Background(), "echo hello world")
	require.NoError(t, err)
	assert.Equal(t, 0, result.ExitCode)
	assert.Equal(t, "hello world", strings.TrimSpace(result.Output))
}

func TestRunRejectsUnlistedCommand(t *testing.T) {
	runner := NewRunner([]string{"echo"}, zap.NewNop())

	_, err := runner.Run(context.Background(), "rm -rf /")
	assert.ErrorIs(t, err, ErrNotAllowed)
}

func TestRunEmptyAllowListRejectsEverything(t *testing.T) {
	runner := NewRunner(nil, zap.NewNop())

	_, err := runner.Run(context.Background(), "echo hello")
	assert.ErrorIs(t, err, ErrNotAllowed)
}

func TestRunEmptyCommand(t *testing.T) {
	runner := NewRunner([]string{"echo"}, zap.NewNop())

	_, err := runner.Run(context.Background(), "   ")
	assert.ErrorIs(t, err, ErrEmpty)
}

func TestRunNoShellInterpolation(t *testing.T) {
	runner := NewRunner([]string{"echo"}, zap.NewNop())

	// Metacharacters are literal arguments, not shell syntax.
	result, err := runner.Run(context.Background(), "echo hi; whoami")
	require.NoError(t, err)
	assert.Equal(t, "hi; whoami", strings.TrimSpace(result.Output))
}
