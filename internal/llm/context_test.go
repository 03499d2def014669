package llm

import (
	"strings"
	"testing"

	"github.com/rcollard/chatd/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReplayAllOrder(t *testing.T) {
	policy := ReplayAllPolicy{SystemPrompt: "system instructions"}

	history := []models.Message{
		{Sender: models.SenderUser, Content: "A"},
		{Sender: models.SenderAssistant, Content: "B"},
	}

	prompt := policy.Assemble(history, "C")

	require.Len(t, prompt, 4)
	assert.Equal(t, Message{Role: "system", Content: "system instructions"}, prompt[0])
	assert.Equal(t, Message{Role: "user", Content: "A"}, prompt[1])
	assert.Equal(t, Message{Role: "assistant", Content: "B"}, prompt[2])
	assert.Equal(t, Message{Role: "user", Content: "C"}, prompt[3])
}

func TestReplayAllEmptyHistory(t *testing.T) {
	policy := ReplayAllPolicy{SystemPrompt: "sys"}

	prompt := policy.Assemble(nil, "hello")

	require.Len(t, prompt, 2)
	assert.Equal(t, "system", prompt[0].Role)
	assert.Equal(t, Message{Role: "user", Content: "hello"}, prompt[1])
}

func TestWindowPolicyKeepsNewest(t *testing.T) {
	policy, err := NewWindowPolicy("sys", 60)
	require.NoError(t, err)

	long := strings.Repeat("alpha beta gamma delta ", 20)
	history := []models.Message{
		{Sender: models.SenderUser, Content: long},
		{Sender: models.SenderAssistant, Content: "short answer"},
		{Sender: models.SenderUser, Content: "follow up"},
	}

	prompt := policy.Assemble(history, "latest question")

	// The oldest long turn must be dropped; system and new turn always stay.
	require.GreaterOrEqual(t, len(prompt), 2)
	assert.Equal(t, "system", prompt[0].Role)
	assert.Equal(t, "latest question", prompt[len(prompt)-1].Content)
	for _, msg := range prompt {
		assert.NotEqual(t, long, msg.Content)
	}
	// Newest history survives ahead of the new turn.
	assert.Equal(t, "follow up", prompt[len(prompt)-2].Content)
}

func TestWindowPolicyFitsEverything(t *testing.T) {
	policy, err := NewWindowPolicy("sys", 10_000)
	require.NoError(t, err)

	history := []models.Message{
		{Sender: models.SenderUser, Content: "A"},
		{Sender: models.SenderAssistant, Content: "B"},
	}

	prompt := policy.Assemble(history, "C")
	replay := ReplayAllPolicy{SystemPrompt: "sys"}.Assemble(history, "C")
	assert.Equal(t, replay, prompt)
}
