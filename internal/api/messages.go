package api

import (
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"parley/internal/content"
	"parley/internal/metrics"
	"parley/internal/models"

	"github.com/google/uuid"
)

// PageSize is the fixed message history page size.
const PageSize = 50

// MessagesHandler returns one page of a conversation's history plus
// the total message count. Pages are 1-indexed; page 1 is the newest
// window, messages within a page are chronological.
func (a *API) MessagesHandler(w http.ResponseWriter, r *http.Request) {
	caller, err := a.currentUser(r)
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	chat, err := a.store.GetConversation(r.PathValue("chatId"))
	if err != nil {
		http.Error(w, "Chat not found.", http.StatusNotFound)
		return
	}
	if !chat.HasMember(caller.ID) {
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}

	page := 1
	if p := r.URL.Query().Get("page"); p != "" {
		page, err = strconv.Atoi(p)
		if err != nil || page < 1 {
			http.Error(w, "Invalid page.", http.StatusBadRequest)
			return
		}
	}

	messages, count, err := a.store.ListMessagesPage(chat.ID, page, PageSize)
	if err != nil {
		http.Error(w, "Failed to load messages.", http.StatusInternalServerError)
		return
	}
	if messages == nil {
		messages = []models.Message{}
	}
	for i := range messages {
		renderContent(&messages[i])
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(struct {
		Success  bool             `json:"success"`
		Messages []models.Message `json:"messages"`
		Count    int              `json:"count"`
	}{Success: true, Messages: messages, Count: count}); err != nil {
		log.Printf("failed to encode messages response: %v", err)
	}
}

// CreateMessageHandler persists a new message. Empty or whitespace-only
// content is rejected; the live broadcast is the sender's job, done
// over the event channel after this returns.
// renderContent fills the markdown-rendered form served alongside the
// raw text. Rendering failures leave the raw content as the fallback.
func renderContent(m *models.Message) {
	if html, err := content.RenderMessage(m.Content); err == nil {
		m.ContentHTML = html
	}
}

func (a *API) CreateMessageHandler(w http.ResponseWriter, r *http.Request) {
	caller, err := a.currentUser(r)
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	chat, err := a.store.GetConversation(r.PathValue("chatId"))
	if err != nil {
		http.Error(w, "Chat not found.", http.StatusNotFound)
		return
	}
	if !chat.HasMember(caller.ID) {
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}

	var req struct {
		MessageContent string `json:"messageContent"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if err := content.ValidateMessage(req.MessageContent); err != nil {
		http.Error(w, "Please enter a message.", http.StatusBadRequest)
		return
	}

	message := models.Message{
		ID:        uuid.NewString(),
		ChatID:    chat.ID,
		Sender:    caller,
		Content:   content.Sanitize(strings.TrimSpace(req.MessageContent)),
		CreatedAt: time.Now().Unix(),
	}

	created, err := a.store.AppendMessage(message)
	if err != nil {
		http.Error(w, "Failed to send message.", http.StatusInternalServerError)
		return
	}
	metrics.MessagesCreated.Inc()
	renderContent(&created)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	if err := json.NewEncoder(w).Encode(struct {
		Success        bool           `json:"success"`
		CreatedMessage models.Message `json:"createdMessage"`
	}{Success: true, CreatedMessage: created}); err != nil {
		log.Printf("failed to encode message response: %v", err)
	}
}
