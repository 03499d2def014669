package llm

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/rcollard/chatd/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type memStore struct {
	mu       sync.Mutex
	messages []models.Message
}

func (m *memStore) Messages(chatID string) ([]models.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.Message, 0)
	for _, msg := range m.messages {
		if msg.ChatID == chatID {
			out = append(out, msg)
		}
	}
	return out, nil
}

func (m *memStore) SaveMessage(msg *models.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	msg.ID = int64(len(m.messages) + 1)
	m.messages = append(m.messages, *msg)
	return nil
}

func newTestService(t *testing.T, providerURL string) (*Service, *memStore) {
	t.Helper()
	store := &memStore{}
	client := NewOllamaClient(providerURL, "test-model", 0.3, 200, zap.NewNop())
	svc := NewService(client, store, ReplayAllPolicy{SystemPrompt: "sys"}, zap.NewNop())
	return svc, store
}

func collect(t *testing.T, ch <-chan string) []string {
	t.Helper()
	chunks := make([]string, 0)
	for chunk := range ch {
		chunks = append(chunks, chunk)
	}
	return chunks
}

func TestStreamReplyNormalCompletion(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintln(w, `{"message":{"content":"Hello"},"done":false}`)
		fmt.Fprintln(w, `{"message":{"content":" world"},"done":false}`)
		fmt.Fprintln(w, `{"done":true}`)
	}))
	defer server.Close()

	svc, store := newTestService(t, server.URL)
	chunks := collect(t, svc.StreamReply(context.Background(), "chat1", []Message{{Role: "user", Content: "hi"}}))

	assert.Equal(t, []string{"Hello", " world"}, chunks)

	saved, err := store.Messages("chat1")
	require.NoError(t, err)
	require.Len(t, saved, 1)
	assert.Equal(t, models.SenderAssistant, saved[0].Sender)
	assert.Equal(t, "Hello world", saved[0].Content)
}

func TestStreamReplyPartialFailureKeepsTokens(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Claim more body than is sent so the client sees a mid-stream
		// break after the two real frames.
		w.Header().Set("Content-Length", "4096")
		fmt.Fprintln(w, `{"message":{"content":"Hel"},"done":false}`)
		fmt.Fprintln(w, `{"message":{"content":"lo"},"done":false}`)
		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}
	}))
	defer server.Close()

	svc, store := newTestService(t, server.URL)
	chunks := collect(t, svc.StreamReply(context.Background(), "chat1", nil))

	require.GreaterOrEqual(t, len(chunks), 3)
	assert.Equal(t, "Hel", chunks[0])
	assert.Equal(t, "lo", chunks[1])
	assert.True(t, strings.HasPrefix(chunks[len(chunks)-1], "[Error:"))

	// The forwarded tokens survive as exactly one assistant message; the
	// synthetic error chunk is not part of it.
	saved, err := store.Messages("chat1")
	require.NoError(t, err)
	require.Len(t, saved, 1)
	assert.Equal(t, "Hello", saved[0].Content)
}

func TestStreamReplyZeroTokensSavesNothing(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintln(w, `{"done":true}`)
	}))
	defer server.Close()

	svc, store := newTestService(t, server.URL)
	chunks := collect(t, svc.StreamReply(context.Background(), "chat1", nil))

	assert.Empty(t, chunks)
	saved, err := store.Messages("chat1")
	require.NoError(t, err)
	assert.Empty(t, saved)
}

func TestStreamReplySkipsMalformedFrames(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintln(w, `{"message":{"content":"Hel"},"done":false}`)
		fmt.Fprintln(w, `this is not json`)
		fmt.Fprintln(w, `{"message":{"content":"lo"},"done":false}`)
		fmt.Fprintln(w, `{"done":true}`)
	}))
	defer server.Close()

	svc, store := newTestService(t, server.URL)
	chunks := collect(t, svc.StreamReply(context.Background(), "chat1", nil))

	assert.Equal(t, []string{"Hel", "lo"}, chunks)
	saved, err := store.Messages("chat1")
	require.NoError(t, err)
	require.Len(t, saved, 1)
	assert.Equal(t, "Hello", saved[0].Content)
}

func TestStreamReplyProviderStatusError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	svc, store := newTestService(t, server.URL)
	chunks := collect(t, svc.StreamReply(context.Background(), "chat1", nil))

	require.Len(t, chunks, 1)
	assert.Equal(t, "[Error: model server returned 500]", chunks[0])
	saved, err := store.Messages("chat1")
	require.NoError(t, err)
	assert.Empty(t, saved)
}

func TestStreamReplyProviderUnreachable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close()

	svc, store := newTestService(t, server.URL)
	chunks := collect(t, svc.StreamReply(context.Background(), "chat1", nil))

	require.Len(t, chunks, 1)
	assert.True(t, strings.HasPrefix(chunks[0], "[Error: cannot connect"))
	saved, err := store.Messages("chat1")
	require.NoError(t, err)
	assert.Empty(t, saved)
}

func TestBuildPromptUsesStoredHistory(t *testing.T) {
	store := &memStore{}
	require.NoError(t, store.SaveMessage(&models.Message{ChatID: "chat1", Sender: models.SenderUser, Content: "A"}))
	require.NoError(t, store.SaveMessage(&models.Message{ChatID: "chat1", Sender: models.SenderAssistant, Content: "B"}))
	require.NoError(t, store.SaveMessage(&models.Message{ChatID: "other", Sender: models.SenderUser, Content: "X"}))

	svc := NewService(nil, store, ReplayAllPolicy{SystemPrompt: "sys"}, zap.NewNop())
	prompt, err := svc.BuildPrompt("chat1", "C")
	require.NoError(t, err)

	assert.Equal(t, []Message{
		{Role: "system", Content: "sys"},
		{Role: "user", Content: "A"},
		{Role: "assistant", Content: "B"},
		{Role: "user", Content: "C"},
	}, prompt)
}
