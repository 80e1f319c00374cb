package models

import "errors"

var (
	ErrNotFound  = errors.New("not found")
	ErrForbidden = errors.New("forbidden")
)

// User represents a registered user. Immutable once issued;
// other entities reference it, never own it.
type User struct {
	ID           string `json:"userId"`
	Name         string `json:"name"`
	Email        string `json:"email"`
	ProfileImage string `json:"profileImage"`
}

// Conversation is a one-to-one or group chat. For one-to-one chats
// Members has exactly two entries and Name/AdminID are empty.
type Conversation struct {
	ID        string   `json:"id"`
	Name      string   `json:"chatName,omitempty"`
	IsGroup   bool     `json:"isGroupChat"`
	AdminID   string   `json:"groupAdmin,omitempty"`
	Members   []string `json:"users"`
	CreatedAt int64    `json:"createdAt"` // Unix timestamp (seconds)
}

// HasMember reports whether userID belongs to the conversation.
func (c Conversation) HasMember(userID string) bool {
	for _, id := range c.Members {
		if id == userID {
			return true
		}
	}
	return false
}

// Message is created exclusively through the persistence API and is
// immutable once stored. Seq orders messages within one conversation.
type Message struct {
	ID        string `json:"id"`
	Seq       int64  `json:"seq"`
	ChatID    string `json:"chatId"`
	Sender    User   `json:"sender"`
	Content   string `json:"content"`
	CreatedAt int64  `json:"createdAt"` // Unix timestamp (seconds)

	// ContentHTML is the markdown-rendered form of Content, computed
	// when the message is served. Never stored.
	ContentHTML string `json:"contentHtml,omitempty"`
}

// Notification records one unseen message in a conversation the user
// does not currently have open.
type Notification struct {
	Message      Message      `json:"message"`
	Conversation Conversation `json:"chat"`
}

type ClientEventType string

const (
	ClientEventSetup       ClientEventType = "setup"
	ClientEventJoinChat    ClientEventType = "join chat"
	ClientEventTyping      ClientEventType = "typing"
	ClientEventStopTyping  ClientEventType = "stop typing"
	ClientEventNewMessage  ClientEventType = "send new message"
	ClientEventNewChat     ClientEventType = "new chat"
	ClientEventGroupChange ClientEventType = "push group changes"
)

// ClientEvent is the envelope for everything a client sends over the
// live channel. Fields are populated per event type.
type ClientEvent struct {
	Type    ClientEventType `json:"type"`
	ChatID  string          `json:"chatId,omitempty"`
	User    *User           `json:"user,omitempty"`
	Message *Message        `json:"message,omitempty"`
	Chat    *Conversation   `json:"chat,omitempty"`
}

type ServerEventType string

const (
	ServerEventNewMessage  ServerEventType = "new message received"
	ServerEventTyping      ServerEventType = "typing"
	ServerEventStopTyping  ServerEventType = "stop typing"
	ServerEventNewChat     ServerEventType = "new chat"
	ServerEventGroupChange ServerEventType = "new group chat changes"
)

// ServerEvent is the envelope for everything the router relays to a
// connection.
type ServerEvent struct {
	Type    ServerEventType `json:"type"`
	ChatID  string          `json:"chatId,omitempty"`
	User    *User           `json:"user,omitempty"`
	Message *Message        `json:"message,omitempty"`
	Chat    *Conversation   `json:"chat,omitempty"`
}
