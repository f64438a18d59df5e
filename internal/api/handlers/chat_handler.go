package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"

	middleware "github.com/alihussainiF1/talk2folder/internal/api/middlewares"
	"github.com/alihussainiF1/talk2folder/internal/core"
	"github.com/alihussainiF1/talk2folder/internal/core/chat"
	"github.com/alihussainiF1/talk2folder/internal/models"
)

type ChatHandler struct {
	dbclient     core.DbClient
	orchestrator *chat.Orchestrator
}

func NewChatHandler(db core.DbClient, orch *chat.Orchestrator) *ChatHandler {
	return &ChatHandler{dbclient: db, orchestrator: orch}
}

type SendMessageRequest struct {
	FolderID       string `json:"folder_id"`
	ConversationID string `json:"conversation_id,omitempty"`
	Message        string `json:"message"`
}

// SendMessage streams the answer over SSE: a "start" event with the
// conversation id, "content" events with text fragments, then either "done"
// with the persisted message id and citations or a terminal "error".
func (h *ChatHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r.Context())
	if userID == "" {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var req SendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}
	if req.FolderID == "" || req.Message == "" {
		http.Error(w, "folder_id and message are required", http.StatusBadRequest)
		return
	}

	fl, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	sink := &sseSink{w: w, fl: fl}
	err := h.orchestrator.SendMessage(r.Context(), userID, req.FolderID, req.ConversationID, req.Message, sink)
	if err != nil && !sink.started {
		// Nothing was streamed yet, a plain HTTP status still works.
		switch {
		case errors.Is(err, core.ErrNotFound):
			http.Error(w, "folder not found", http.StatusNotFound)
		case errors.Is(err, core.ErrFolderNotReady):
			http.Error(w, "folder is not ready for chat", http.StatusConflict)
		case errors.Is(err, core.ErrConcurrentModification):
			http.Error(w, "a message is already being processed for this conversation", http.StatusConflict)
		default:
			log.Printf("chat send failed: %v", err)
			http.Error(w, "failed to process message", http.StatusInternalServerError)
		}
		return
	}
	if err != nil {
		log.Printf("chat stream aborted: %v", err)
	}
}

// ListConversations returns the chat threads of one folder.
func (h *ChatHandler) ListConversations(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r.Context())
	if userID == "" {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	folderID := r.URL.Query().Get("folder_id")
	if folderID == "" {
		http.Error(w, "folder_id is required", http.StatusBadRequest)
		return
	}

	folder, err := h.dbclient.GetFolderByID(r.Context(), folderID)
	if err != nil {
		http.Error(w, "folder not found", http.StatusNotFound)
		return
	}
	if folder.UserID != userID {
		http.Error(w, "folder not found", http.StatusNotFound)
		return
	}

	convs, err := h.dbclient.ListConversationsByFolder(r.Context(), folderID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(convs)
}

// GetConversation returns one thread with its full message history.
func (h *ChatHandler) GetConversation(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r.Context())
	if userID == "" {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conversationID := chi.URLParam(r, "conversationID")
	conv, err := h.dbclient.GetConversationByID(r.Context(), conversationID)
	if err != nil {
		http.Error(w, "conversation not found", http.StatusNotFound)
		return
	}
	if conv.UserID != userID {
		http.Error(w, "conversation not found", http.StatusNotFound)
		return
	}

	msgs, err := h.dbclient.ListMessages(r.Context(), conversationID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	conv.Messages = msgs

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(conv)
}

// sseSink adapts an http.ResponseWriter into a chat.StreamSink. SSE headers
// go out lazily on the first event so pre-stream failures can still use
// ordinary HTTP statuses.
type sseSink struct {
	w       http.ResponseWriter
	fl      http.Flusher
	started bool
}

func (s *sseSink) Start(conversationID string) {
	s.writeEvent("start", map[string]string{"conversation_id": conversationID})
}

func (s *sseSink) Fragment(text string) {
	s.writeEvent("content", map[string]string{"text": text})
}

func (s *sseSink) Done(messageID string, citations []models.Citation) {
	if citations == nil {
		citations = []models.Citation{}
	}
	s.writeEvent("done", map[string]any{
		"message_id": messageID,
		"citations":  citations,
	})
}

func (s *sseSink) Error(err error) {
	s.writeEvent("error", map[string]string{"error": err.Error()})
}

func (s *sseSink) writeEvent(event string, payload any) {
	if !s.started {
		s.w.Header().Set("Content-Type", "text/event-stream")
		s.w.Header().Set("Cache-Control", "no-cache")
		s.w.Header().Set("Connection", "keep-alive")
		s.started = true
	}

	data, err := json.Marshal(payload)
	if err != nil {
		log.Printf("sse marshal: %v", err)
		return
	}
	fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", event, data)
	s.fl.Flush()
}

var _ chat.StreamSink = (*sseSink)(nil)
