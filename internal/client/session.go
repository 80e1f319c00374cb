package client

import (
	"context"
	"fmt"
	"sync"
	"time"

	"parley/internal/content"
	"parley/internal/models"
	"parley/internal/notify"
	"parley/internal/typing"
)

// MessageAPI is the slice of the persistence API the Session needs.
// *APIClient satisfies it; tests substitute fakes.
type MessageAPI interface {
	ListMessages(ctx context.Context, chatID string, page int) ([]models.Message, int, error)
	CreateMessage(ctx context.Context, chatID, messageContent string) (models.Message, error)
}

// Session coordinates one user's view of the chat: the currently open
// conversation, its loaded history, typing state and unseen
// notifications. Persistence calls and live events are sequenced so
// the visible message list only ever reflects server-confirmed state.
type Session struct {
	user   models.User
	api    MessageAPI
	events EventChannel

	notifications *notify.Aggregator
	debouncer     *typing.Debouncer

	mu         sync.Mutex
	chats      map[string]models.Conversation
	open       *models.Conversation
	messages   []models.Message
	page       int
	totalPages int
	peerTyping *models.User
}

type Option func(*Session)

// WithTypingTimeout overrides the trailing typing timeout, mainly for
// tests.
func WithTypingTimeout(d time.Duration) Option {
	return func(s *Session) {
		s.debouncer = typing.New(d, s.emitTyping)
	}
}

func NewSession(user models.User, api MessageAPI, events EventChannel, opts ...Option) *Session {
	s := &Session{
		user:          user,
		api:           api,
		events:        events,
		notifications: notify.NewAggregator(),
		chats:         make(map[string]models.Conversation),
	}
	s.debouncer = typing.New(typing.DefaultTimeout, s.emitTyping)
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Setup announces the user identity on the live channel. Must be
// called before Open.
func (s *Session) Setup() error {
	user := s.user
	return s.events.Emit(models.ClientEvent{
		Type: models.ClientEventSetup,
		User: &user,
	})
}

// SetConversations primes the session's conversation list (from
// ListChats), used to resolve incoming events to conversations.
func (s *Session) SetConversations(chats []models.Conversation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range chats {
		s.chats[c.ID] = c
	}
}

// Open selects a conversation: local state is reset, history page 1 is
// fetched, and only then is the room joined, so live events are never
// received for a conversation whose history is not loaded. Opening
// also clears the conversation's unseen notifications.
func (s *Session) Open(ctx context.Context, chat models.Conversation) error {
	s.mu.Lock()
	s.open = nil
	s.messages = nil
	s.page = 1
	s.totalPages = 0
	s.peerTyping = nil
	s.chats[chat.ID] = chat
	s.mu.Unlock()
	s.debouncer.Stop()

	messages, count, err := s.api.ListMessages(ctx, chat.ID, 1)
	if err != nil {
		return fmt.Errorf("failed to load messages: %w", err)
	}

	if err := s.events.Emit(models.ClientEvent{
		Type:   models.ClientEventJoinChat,
		ChatID: chat.ID,
	}); err != nil {
		return err
	}

	s.mu.Lock()
	s.open = &chat
	s.messages = messages
	s.totalPages = (count + PageSize - 1) / PageSize
	s.mu.Unlock()

	s.notifications.ClearFor(chat.ID)
	return nil
}

// PageSize mirrors the server's fixed history page size.
const PageSize = 50

// LoadMore fetches the next (older) history page and prepends it, so
// the visible list stays chronological with the oldest at the top.
// Returns false when there are no more pages.
func (s *Session) LoadMore(ctx context.Context) (bool, error) {
	s.mu.Lock()
	if s.open == nil || s.page >= s.totalPages {
		s.mu.Unlock()
		return false, nil
	}
	chatID := s.open.ID
	nextPage := s.page + 1
	s.mu.Unlock()

	older, _, err := s.api.ListMessages(ctx, chatID, nextPage)
	if err != nil {
		return false, fmt.Errorf("failed to load messages: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	// The conversation may have been switched while the fetch was in
	// flight; drop the stale page.
	if s.open == nil || s.open.ID != chatID {
		return false, nil
	}
	s.messages = append(older, s.messages...)
	s.page = nextPage
	return s.page < s.totalPages, nil
}

// Send validates and persists a message, appends the server-confirmed
// record, then emits stop-typing followed by the message broadcast, in
// that order, so peers never see a typing indicator outlive the
// message itself.
func (s *Session) Send(ctx context.Context, text string) (models.Message, error) {
	if err := content.ValidateMessage(text); err != nil {
		return models.Message{}, err
	}

	s.mu.Lock()
	if s.open == nil {
		s.mu.Unlock()
		return models.Message{}, fmt.Errorf("no conversation open")
	}
	chatID := s.open.ID
	s.mu.Unlock()

	created, err := s.api.CreateMessage(ctx, chatID, text)
	if err != nil {
		return models.Message{}, fmt.Errorf("failed to send message: %w", err)
	}

	s.mu.Lock()
	if s.open != nil && s.open.ID == chatID {
		s.messages = append(s.messages, created)
	}
	s.mu.Unlock()

	// Flush emits the stop transition if a burst was active; emit one
	// explicitly otherwise so peers always see the indicator cleared
	// before the message arrives.
	if !s.debouncer.Flush(chatID, s.user.ID) {
		_ = s.events.Emit(models.ClientEvent{
			Type:   models.ClientEventStopTyping,
			ChatID: chatID,
		})
	}
	msg := created
	if err := s.events.Emit(models.ClientEvent{
		Type:    models.ClientEventNewMessage,
		Message: &msg,
	}); err != nil {
		return created, err
	}

	return created, nil
}

// Typing records one raw keystroke-level signal for the open
// conversation; the debouncer turns bursts into start/stop events.
func (s *Session) Typing() {
	s.mu.Lock()
	open := s.open
	s.mu.Unlock()
	if open == nil {
		return
	}
	s.debouncer.Signal(open.ID, s.user.ID)
}

// AnnounceChat tells the other members about a conversation the user
// just created.
func (s *Session) AnnounceChat(chat models.Conversation) error {
	s.mu.Lock()
	s.chats[chat.ID] = chat
	s.mu.Unlock()

	return s.events.Emit(models.ClientEvent{
		Type: models.ClientEventNewChat,
		Chat: &chat,
	})
}

// AnnounceGroupChange relays updated group metadata to room members.
func (s *Session) AnnounceGroupChange(chat models.Conversation) error {
	user := s.user
	return s.events.Emit(models.ClientEvent{
		Type: models.ClientEventGroupChange,
		User: &user,
		Chat: &chat,
	})
}

// Run consumes live events until the context is cancelled or the
// channel closes.
func (s *Session) Run(ctx context.Context) error {
	defer s.debouncer.Stop()
	for {
		select {
		case ev, ok := <-s.events.Events():
			if !ok {
				return nil
			}
			s.handleEvent(ev)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (s *Session) handleEvent(ev models.ServerEvent) {
	switch ev.Type {
	case models.ServerEventNewMessage:
		if ev.Message == nil {
			return
		}
		s.onNewMessage(*ev.Message)

	case models.ServerEventTyping:
		if ev.User == nil || ev.User.ID == s.user.ID {
			return
		}
		s.mu.Lock()
		if s.open != nil && s.open.ID == ev.ChatID {
			user := *ev.User
			s.peerTyping = &user
		}
		s.mu.Unlock()

	case models.ServerEventStopTyping:
		s.mu.Lock()
		if s.open != nil && s.open.ID == ev.ChatID {
			s.peerTyping = nil
		}
		s.mu.Unlock()

	case models.ServerEventNewChat:
		if ev.Chat == nil {
			return
		}
		s.mu.Lock()
		s.chats[ev.Chat.ID] = *ev.Chat
		s.mu.Unlock()

	case models.ServerEventGroupChange:
		if ev.Chat == nil {
			return
		}
		s.mu.Lock()
		s.chats[ev.Chat.ID] = *ev.Chat
		if s.open != nil && s.open.ID == ev.Chat.ID {
			updated := *ev.Chat
			s.open = &updated
		}
		s.mu.Unlock()
	}
}

// onNewMessage appends to the open conversation or records an unseen
// notification for a closed one.
func (s *Session) onNewMessage(msg models.Message) {
	s.mu.Lock()
	if s.open != nil && s.open.ID == msg.ChatID {
		s.messages = append(s.messages, msg)
		s.mu.Unlock()
		return
	}
	chat, ok := s.chats[msg.ChatID]
	s.mu.Unlock()

	if !ok {
		chat = models.Conversation{ID: msg.ChatID}
	}
	s.notifications.Add(msg, chat)
}

func (s *Session) emitTyping(chatID, userID string, isTyping bool) {
	ev := models.ClientEvent{
		Type:   models.ClientEventTyping,
		ChatID: chatID,
	}
	if isTyping {
		user := s.user
		ev.User = &user
	} else {
		ev.Type = models.ClientEventStopTyping
	}
	_ = s.events.Emit(ev)
}

// Messages returns a snapshot of the open conversation's loaded
// history, oldest first.
func (s *Session) Messages() []models.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// Notifications exposes the unseen-message aggregator for badge and
// dropdown display.
func (s *Session) Notifications() *notify.Aggregator {
	return s.notifications
}

// PeerTyping returns the user currently typing in the open
// conversation, or nil.
func (s *Session) PeerTyping() *models.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.peerTyping == nil {
		return nil
	}
	user := *s.peerTyping
	return &user
}

// Open returns the currently open conversation, or nil.
func (s *Session) OpenConversation() *models.Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.open == nil {
		return nil
	}
	chat := *s.open
	return &chat
}
