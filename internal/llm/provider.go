package llm

import (
	"context"
	"errors"
	"fmt"
)

// Message is one turn handed to the inference provider.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Streamer drives one streaming chat completion, invoking onChunk for each
// piece of generated text as it arrives. A returned error after onChunk has
// fired means the stream broke mid-generation.
type Streamer interface {
	Stream(ctx context.Context, messages []Message, onChunk func(string)) error
}

// ErrUnreachable marks a connection that could not be established at all.
var ErrUnreachable = errors.New("provider unreachable")

// StatusError is a non-success HTTP status from the provider.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("provider returned status %d", e.Code)
}
