package llm

import (
	"github.com/pkoukk/tiktoken-go"
	"github.com/rcollard/chatd/internal/models"
)

// ContextPolicy decides which part of the stored history is replayed into the
// prompt. The output is always [system] + history turns + [new user turn].
type ContextPolicy interface {
	Assemble(history []models.Message, userText string) []Message
}

func roleFor(sender string) string {
	if sender == models.SenderUser {
		return "user"
	}
	return "assistant"
}

// ReplayAllPolicy replays the entire stored history every turn. The prompt
// grows without bound as a conversation ages.
type ReplayAllPolicy struct {
	SystemPrompt string
}

func (p ReplayAllPolicy) Assemble(history []models.Message, userText string) []Message {
	msgs := make([]Message, 0, len(history)+2)
	msgs = append(msgs, Message{Role: "system", Content: p.SystemPrompt})
	for _, m := range history {
		msgs = append(msgs, Message{Role: roleFor(m.Sender), Content: m.Content})
	}
	return append(msgs, Message{Role: "user", Content: userText})
}

// WindowPolicy keeps the newest history turns that fit a token budget.
// The system prompt and the new user turn are always included.
type WindowPolicy struct {
	systemPrompt string
	budget       int
	enc          *tiktoken.Tiktoken
}

func NewWindowPolicy(systemPrompt string, budget int) (*WindowPolicy, error) {
	enc, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		return nil, err
	}
	return &WindowPolicy{systemPrompt: systemPrompt, budget: budget, enc: enc}, nil
}

func (p *WindowPolicy) tokens(s string) int {
	return len(p.enc.Encode(s, nil, nil))
}

func (p *WindowPolicy) Assemble(history []models.Message, userText string) []Message {
	spent := p.tokens(p.systemPrompt) + p.tokens(userText)

	// Walk backwards from the newest turn; keep slots from the tail.
	keep := len(history)
	for keep > 0 {
		cost := p.tokens(history[keep-1].Content)
		if spent+cost > p.budget {
			break
		}
		spent += cost
		keep--
	}

	msgs := make([]Message, 0, len(history)-keep+2)
	msgs = append(msgs, Message{Role: "system", Content: p.systemPrompt})
	for _, m := range history[keep:] {
		msgs = append(msgs, Message{Role: roleFor(m.Sender), Content: m.Content})
	}
	return append(msgs, Message{Role: "user", Content: userText})
}
