package api

import (
	"encoding/json"
	"log"
	"net/http"
	"strings"
	"time"

	"parley/internal/content"
	"parley/internal/models"

	"github.com/google/uuid"
)

type chatResponse struct {
	Success bool                `json:"success"`
	Message string              `json:"message,omitempty"`
	Chat    models.Conversation `json:"chat"`
}

// ChatsHandler lists the caller's conversations, newest first.
func (a *API) ChatsHandler(w http.ResponseWriter, r *http.Request) {
	caller, err := a.currentUser(r)
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	chats, err := a.store.ListConversations(caller.ID)
	if err != nil {
		http.Error(w, "Failed to load chats.", http.StatusInternalServerError)
		return
	}
	if chats == nil {
		chats = []models.Conversation{}
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(struct {
		Success bool                  `json:"success"`
		Chats   []models.Conversation `json:"chats"`
	}{Success: true, Chats: chats}); err != nil {
		log.Printf("failed to encode chats response: %v", err)
	}
}

// CreateChatHandler creates (or returns the existing) one-to-one chat
// between the caller and one other user.
func (a *API) CreateChatHandler(w http.ResponseWriter, r *http.Request) {
	caller, err := a.currentUser(r)
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var req struct {
		UserID string `json:"userId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserID == "" {
		http.Error(w, "userId is required", http.StatusBadRequest)
		return
	}
	if req.UserID == caller.ID {
		http.Error(w, "Cannot start a chat with yourself.", http.StatusBadRequest)
		return
	}

	if _, err := a.store.GetUser(req.UserID); err != nil {
		http.Error(w, "User not found.", http.StatusBadRequest)
		return
	}

	// One-to-one chats are unique per user pair.
	existing, err := a.store.ListConversations(caller.ID)
	if err != nil {
		http.Error(w, "Something went wrong.", http.StatusInternalServerError)
		return
	}
	for _, c := range existing {
		if !c.IsGroup && c.HasMember(req.UserID) {
			writeChat(w, http.StatusOK, c)
			return
		}
	}

	chat := models.Conversation{
		ID:        uuid.NewString(),
		IsGroup:   false,
		Members:   []string{caller.ID, req.UserID},
		CreatedAt: time.Now().Unix(),
	}
	if err := a.store.UpsertConversation(chat); err != nil {
		http.Error(w, "Failed to create chat.", http.StatusInternalServerError)
		return
	}

	writeChat(w, http.StatusCreated, chat)
}

// CreateGroupHandler creates a group chat. The caller becomes the
// admin; at least two other members are required.
func (a *API) CreateGroupHandler(w http.ResponseWriter, r *http.Request) {
	caller, err := a.currentUser(r)
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var req struct {
		ChatName string   `json:"chatName"`
		Users    []string `json:"users"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	name := content.Sanitize(strings.TrimSpace(req.ChatName))
	if name == "" {
		http.Error(w, "Chat name is required.", http.StatusBadRequest)
		return
	}

	members := []string{caller.ID}
	for _, id := range req.Users {
		if id == caller.ID {
			continue
		}
		if _, err := a.store.GetUser(id); err != nil {
			http.Error(w, "User not found.", http.StatusBadRequest)
			return
		}
		members = append(members, id)
	}
	if len(members) < 3 {
		http.Error(w, "A group chat needs at least two other members.", http.StatusBadRequest)
		return
	}

	chat := models.Conversation{
		ID:        uuid.NewString(),
		Name:      name,
		IsGroup:   true,
		AdminID:   caller.ID,
		Members:   members,
		CreatedAt: time.Now().Unix(),
	}
	if err := a.store.UpsertConversation(chat); err != nil {
		http.Error(w, "Failed to create group chat.", http.StatusInternalServerError)
		return
	}

	writeChat(w, http.StatusCreated, chat)
}

// UpdateGroupHandler renames a group or changes its membership.
// Admin only; the live-channel "push group changes" event announces
// the result to room members.
func (a *API) UpdateGroupHandler(w http.ResponseWriter, r *http.Request) {
	caller, err := a.currentUser(r)
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	chat, err := a.store.GetConversation(r.PathValue("id"))
	if err != nil {
		http.Error(w, "Chat not found.", http.StatusNotFound)
		return
	}
	if !chat.IsGroup {
		http.Error(w, "Not a group chat.", http.StatusBadRequest)
		return
	}
	if chat.AdminID != caller.ID {
		http.Error(w, "Only the group admin can update the group.", http.StatusForbidden)
		return
	}

	var req struct {
		ChatName   string `json:"chatName"`
		AddUser    string `json:"addUserId"`
		RemoveUser string `json:"removeUserId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if name := content.Sanitize(strings.TrimSpace(req.ChatName)); name != "" {
		chat.Name = name
	}

	if req.AddUser != "" {
		if _, err := a.store.GetUser(req.AddUser); err != nil {
			http.Error(w, "User not found.", http.StatusBadRequest)
			return
		}
		if !chat.HasMember(req.AddUser) {
			chat.Members = append(chat.Members, req.AddUser)
		}
	}

	if req.RemoveUser != "" {
		if req.RemoveUser == chat.AdminID {
			http.Error(w, "The group admin cannot be removed.", http.StatusBadRequest)
			return
		}
		members := chat.Members[:0]
		for _, id := range chat.Members {
			if id != req.RemoveUser {
				members = append(members, id)
			}
		}
		chat.Members = members
	}

	if err := a.store.UpsertConversation(chat); err != nil {
		http.Error(w, "Failed to update group chat.", http.StatusInternalServerError)
		return
	}

	writeChat(w, http.StatusOK, chat)
}

func writeChat(w http.ResponseWriter, status int, chat models.Conversation) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(chatResponse{Success: true, Chat: chat}); err != nil {
		log.Printf("failed to encode chat response: %v", err)
	}
}
