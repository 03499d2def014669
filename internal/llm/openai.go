package llm

import (
	"context"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
)

// OpenAIClient streams completions from any OpenAI-compatible endpoint,
// including Ollama's /v1/ compatibility surface.
type OpenAIClient struct {
	llm         *openai.LLM
	temperature float64
	maxTokens   int
}

func NewOpenAIClient(baseURL, token, model string, temperature float64, maxTokens int) (*OpenAIClient, error) {
	llm, err := openai.New(
		openai.WithToken(token),
		openai.WithBaseURL(baseURL),
		openai.WithModel(model),
	)
	if err != nil {
		return nil, err
	}
	return &OpenAIClient{llm: llm, temperature: temperature, maxTokens: maxTokens}, nil
}

func (c *OpenAIClient) Stream(ctx context.Context, messages []Message, onChunk func(string)) error {
	content := make([]llms.MessageContent, 0, len(messages))
	for _, msg := range messages {
		var role llms.ChatMessageType
		switch msg.Role {
		case "system":
			role = llms.ChatMessageTypeSystem
		case "assistant":
			role = llms.ChatMessageTypeAI
		default:
			role = llms.ChatMessageTypeHuman
		}
		content = append(content, llms.TextParts(role, msg.Content))
	}

	_, err := c.llm.GenerateContent(ctx, content,
		llms.WithTemperature(c.temperature),
		llms.WithMaxTokens(c.maxTokens),
		llms.WithStreamingFunc(func(_ context.Context, chunk []byte) error {
			if len(chunk) > 0 {
				onChunk(string(chunk))
			}
			return nil
		}),
	)
	return err
}
