package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/rcollard/chatd/internal/db"
	"github.com/rcollard/chatd/internal/llm"
	"github.com/rcollard/chatd/internal/models"
	"github.com/rcollard/chatd/internal/shell"
	"go.uber.org/zap"
)

const (
	sessionCookie = "session_token"
	cookieMaxAge  = 60 * 60 * 24 * 365
)

type Handler struct {
	db     *db.Database
	llm    *llm.Service
	shell  *shell.Runner
	logger *zap.Logger
}

func NewHandler(database *db.Database, llmService *llm.Service, runner *shell.Runner, logger *zap.Logger) *Handler {
	return &Handler{
		db:     database,
		llm:    llmService,
		shell:  runner,
		logger: logger,
	}
}

// Register wires every API route onto the mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/login", h.Login)
	mux.HandleFunc("GET /api/get_user_info", h.GetUserInfo)
	mux.HandleFunc("GET /api/chats", h.GetChats)
	mux.HandleFunc("POST /api/chat/new", h.CreateChat)
	mux.HandleFunc("GET /api/chat/{id}/messages", h.GetMessages)
	mux.HandleFunc("POST /api/chat/{id}/message", h.SendMessage)
	mux.HandleFunc("POST /api/chat/{id}/delete", h.DeleteChat)
	mux.HandleFunc("POST /api/chat/{id}/rename", h.RenameChat)
	mux.HandleFunc("POST /api/terminal", h.Terminal)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.Error("failed to encode response", zap.Error(err))
	}
}

func (h *Handler) fail(w http.ResponseWriter, status int, message string) {
	body := map[string]any{"success": false}
	if message != "" {
		body["message"] = message
	}
	h.writeJSON(w, status, body)
}

// requireUser resolves the session cookie to a user, writing 401 and
// returning nil when there is no valid session.
func (h *Handler) requireUser(w http.ResponseWriter, r *http.Request) *models.User {
	cookie, err := r.Cookie(sessionCookie)
	if err != nil || cookie.Value == "" {
		h.fail(w, http.StatusUnauthorized, "")
		return nil
	}

	user, err := h.db.UserByToken(cookie.Value)
	if err != nil {
		h.logger.Error("failed to resolve session", zap.Error(err))
		h.fail(w, http.StatusInternalServerError, "")
		return nil
	}
	if user == nil {
		h.fail(w, http.StatusUnauthorized, "")
		return nil
	}
	return user
}

type loginRequest struct {
	Username string `json:"username"`
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Username == "" {
		h.fail(w, http.StatusBadRequest, "Username required")
		return
	}

	// Same display name means same account; only a new name mints a user.
	user, err := h.db.UserByName(req.Username)
	if err != nil {
		h.logger.Error("failed to look up user", zap.Error(err))
		h.fail(w, http.StatusInternalServerError, "")
		return
	}
	if user == nil {
		user, err = h.db.CreateUser(req.Username)
		if err != nil {
			h.logger.Error("failed to create user", zap.Error(err))
			h.fail(w, http.StatusInternalServerError, "")
			return
		}
	}

	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    user.ID,
		Path:     "/",
		MaxAge:   cookieMaxAge,
		HttpOnly: true,
	})
	h.writeJSON(w, http.StatusOK, map[string]any{
		"success":  true,
		"user_id":  user.ID,
		"username": user.Username,
	})
}

func (h *Handler) GetUserInfo(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(sessionCookie)
	if err != nil || cookie.Value == "" {
		h.fail(w, http.StatusUnauthorized, "")
		return
	}

	user, err := h.db.UserByToken(cookie.Value)
	if err != nil {
		h.logger.Error("failed to resolve session", zap.Error(err))
		h.fail(w, http.StatusInternalServerError, "")
		return
	}
	if user == nil {
		h.fail(w, http.StatusNotFound, "")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"success":  true,
		"username": user.Username,
	})
}

func (h *Handler) GetChats(w http.ResponseWriter, r *http.Request) {
	user := h.requireUser(w, r)
	if user == nil {
		return
	}

	chats, err := h.db.ChatsByUser(user.ID)
	if err != nil {
		h.logger.Error("failed to list chats", zap.Error(err))
		h.fail(w, http.StatusInternalServerError, "")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"chats":   chats,
	})
}

type createChatRequest struct {
	Title    string `json:"title"`
	Category string `json:"category"`
}

func (h *Handler) CreateChat(w http.ResponseWriter, r *http.Request) {
	user := h.requireUser(w, r)
	if user == nil {
		return
	}

	var req createChatRequest
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req)
	}
	if req.Title == "" {
		req.Title = "New Chat"
	}
	if req.Category == "" {
		req.Category = "general"
	}

	chat, err := h.db.CreateChat(user.ID, req.Title, req.Category)
	if err != nil {
		h.logger.Error("failed to create chat", zap.Error(err))
		h.fail(w, http.StatusInternalServerError, "")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"chat_id": chat.ID,
		"title":   chat.Title,
	})
}

func (h *Handler) GetMessages(w http.ResponseWriter, r *http.Request) {
	user := h.requireUser(w, r)
	if user == nil {
		return
	}

	messages, err := h.db.Messages(r.PathValue("id"))
	if err != nil {
		h.logger.Error("failed to get messages", zap.Error(err))
		h.fail(w, http.StatusInternalServerError, "")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"success":  true,
		"messages": messages,
	})
}

type sendMessageRequest struct {
	Message string `json:"message"`
}

// SendMessage saves the user's turn, then streams the assistant reply back as
// chunked plain text. The relay saves the assistant turn when the stream
// ends, so the response does not report persistence errors.
func (h *Handler) SendMessage(w http.ResponseWriter, r *http.Request) {
	user := h.requireUser(w, r)
	if user == nil {
		return
	}
	chatID := r.PathValue("id")

	var req sendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Message == "" {
		h.fail(w, http.StatusBadRequest, "Message required")
		return
	}

	// The user's own message is durable before the provider is contacted.
	userMsg := &models.Message{
		ChatID:  chatID,
		Sender:  models.SenderUser,
		Content: req.Message,
	}
	if err := h.db.SaveMessage(userMsg); err != nil {
		h.logger.Error("failed to save user message", zap.Error(err))
		h.fail(w, http.StatusInternalServerError, "")
		return
	}

	prompt, err := h.llm.BuildPrompt(chatID, req.Message)
	if err != nil {
		h.logger.Error("failed to build prompt", zap.Error(err))
		h.fail(w, http.StatusInternalServerError, "")
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	flusher, _ := w.(http.Flusher)

	for chunk := range h.llm.StreamReply(r.Context(), chatID, prompt) {
		if _, err := io.WriteString(w, chunk); err != nil {
			// Client went away. Keep draining so the relay can finish
			// and save what it accumulated.
			continue
		}
		if flusher != nil {
			flusher.Flush()
		}
	}
}

func (h *Handler) DeleteChat(w http.ResponseWriter, r *http.Request) {
	user := h.requireUser(w, r)
	if user == nil {
		return
	}

	if err := h.db.DeleteChat(user.ID, r.PathValue("id")); err != nil {
		h.logger.Error("failed to delete chat", zap.Error(err))
		h.fail(w, http.StatusInternalServerError, "")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

type renameChatRequest struct {
	Title string `json:"title"`
}

func (h *Handler) RenameChat(w http.ResponseWriter, r *http.Request) {
	user := h.requireUser(w, r)
	if user == nil {
		return
	}

	var req renameChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Title == "" {
		h.fail(w, http.StatusBadRequest, "Title required")
		return
	}

	if err := h.db.RenameChat(user.ID, r.PathValue("id"), req.Title); err != nil {
		h.logger.Error("failed to rename chat", zap.Error(err))
		h.fail(w, http.StatusInternalServerError, "")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

type terminalRequest struct {
	Command string `json:"command"`
}

func (h *Handler) Terminal(w http.ResponseWriter, r *http.Request) {
	user := h.requireUser(w, r)
	if user == nil {
		return
	}

	var req terminalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Command == "" {
		h.fail(w, http.StatusBadRequest, "No command provided")
		return
	}

	result, err := h.shell.Run(r.Context(), req.Command)
	switch {
	case errors.Is(err, shell.ErrEmpty):
		h.fail(w, http.StatusBadRequest, "No command provided")
		return
	case errors.Is(err, shell.ErrNotAllowed):
		h.fail(w, http.StatusForbidden, "Command not allowed")
		return
	case errors.Is(err, shell.ErrTimeout):
		h.fail(w, http.StatusRequestTimeout, "Command timeout")
		return
	case err != nil:
		h.logger.Error("failed to run command", zap.Error(err))
		h.fail(w, http.StatusInternalServerError, err.Error())
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"success":     true,
		"output":      result.Output,
		"return_code": result.ExitCode,
	})
}
