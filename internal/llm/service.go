package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rcollard/chatd/internal/models"
	"go.uber.org/zap"
)

// Store is the slice of the persistence layer the relay needs.
type Store interface {
	Messages(chatID string) ([]models.Message, error)
	SaveMessage(msg *models.Message) error
}

// Service assembles prompts and relays streamed completions, persisting the
// assistant's reply once the stream ends.
type Service struct {
	provider Streamer
	store    Store
	policy   ContextPolicy
	logger   *zap.Logger
}

func NewService(provider Streamer, store Store, policy ContextPolicy, logger *zap.Logger) *Service {
	return &Service{
		provider: provider,
		store:    store,
		policy:   policy,
		logger:   logger,
	}
}

// BuildPrompt loads the chat's stored history and applies the context policy.
func (s *Service) BuildPrompt(chatID, userText string) ([]Message, error) {
	history, err := s.store.Messages(chatID)
	if err != nil {
		return nil, fmt.Errorf("failed to load history: %w", err)
	}
	return s.policy.Assemble(history, userText), nil
}

// StreamReply relays one completion. The returned channel carries each text
// chunk as the provider produces it and is closed when the stream ends.
//
// Whatever generated text accumulated by then is saved as a single assistant
// message, on the failure path too, so a mid-stream break never loses tokens
// the client already saw. Synthetic [Error: ...] chunks describe failures to
// the client and are never part of the saved message. A stream that produced
// no tokens saves nothing.
func (s *Service) StreamReply(ctx context.Context, chatID string, prompt []Message) <-chan string {
	out := make(chan string)

	go func() {
		defer close(out)

		var full strings.Builder
		defer func() {
			if full.Len() == 0 {
				return
			}
			msg := &models.Message{
				ChatID:  chatID,
				Sender:  models.SenderAssistant,
				Content: full.String(),
			}
			if err := s.store.SaveMessage(msg); err != nil {
				s.logger.Error("failed to save assistant message",
					zap.String("chatID", chatID),
					zap.Error(err))
			}
		}()

		emit := func(chunk string) {
			select {
			case out <- chunk:
			case <-ctx.Done():
			}
		}

		err := s.provider.Stream(ctx, prompt, func(chunk string) {
			full.WriteString(chunk)
			emit(chunk)
		})
		if err == nil {
			return
		}

		var statusErr *StatusError
		switch {
		case errors.As(err, &statusErr):
			emit(fmt.Sprintf("[Error: model server returned %d]", statusErr.Code))
		case errors.Is(err, ErrUnreachable):
			emit("[Error: cannot connect to the model server. Make sure it's running!]")
		default:
			emit(fmt.Sprintf("[Error: %v]", err))
		}
		s.logger.Warn("stream ended with error",
			zap.String("chatID", chatID),
			zap.Int("accumulated", full.Len()),
			zap.Error(err))
	}()

	return out
}
