package ws

import (
	"parley/internal/metrics"
	"parley/internal/models"
)

// sendBuffer is the per-session event buffer. A member whose buffer is
// full misses the event (fan-out is best-effort).
const sendBuffer = 100

// Session represents one live connection. It is owned by exactly one
// authenticated user; the user profile is bound via the setup event
// before any room can be joined.
type Session struct {
	// userID is the identity verified against the bearer token at
	// upgrade time. Client-asserted identities are checked against it.
	userID string

	user  models.User
	bound bool

	send chan models.ServerEvent
}

// Events returns the channel of events relayed to this session.
func (s *Session) Events() <-chan models.ServerEvent {
	return s.send
}

// ConversationSource resolves conversation membership for join and
// relay authorization.
type ConversationSource interface {
	GetConversation(id string) (models.Conversation, error)
}

// OfflineNotifier is told about messages for members with no live
// session, so they can be reached out-of-band (web push). Best effort.
type OfflineNotifier interface {
	Notify(userID string, message models.Message)
}

// Hub is the room event router. It never touches message persistence:
// it relays domain events to the sessions currently joined to the
// relevant room.
type Hub struct {
	registry *Registry
	convs    ConversationSource
	offline  OfflineNotifier
}

func NewHub(convs ConversationSource, offline OfflineNotifier) *Hub {
	return &Hub{
		registry: NewRegistry(),
		convs:    convs,
		offline:  offline,
	}
}

// Connect creates a session for an authenticated user. The session is
// not in any room until setup and join events arrive.
func (h *Hub) Connect(userID string) *Session {
	metrics.ConnectionsActive.Inc()
	return &Session{
		userID: userID,
		send:   make(chan models.ServerEvent, sendBuffer),
	}
}

// Disconnect releases all room memberships of the session.
func (h *Hub) Disconnect(s *Session) {
	h.registry.Drop(s)
	metrics.ConnectionsActive.Dec()
}

// HandleEvent dispatches one client event. Events that fail
// authorization are dropped silently, matching the wire protocol (it
// has no error channel).
func (h *Hub) HandleEvent(s *Session, ev models.ClientEvent) {
	switch ev.Type {
	case models.ClientEventSetup:
		h.setup(s, ev)
	case models.ClientEventJoinChat:
		h.joinChat(s, ev)
	case models.ClientEventTyping:
		h.typing(s, ev)
	case models.ClientEventStopTyping:
		h.stopTyping(s, ev)
	case models.ClientEventNewMessage:
		h.newMessage(s, ev)
	case models.ClientEventNewChat:
		h.newChat(s, ev)
	case models.ClientEventGroupChange:
		h.groupChange(s, ev)
	}
}

// setup binds the connection to a user profile. The asserted identity
// must match the one from the bearer token.
func (h *Hub) setup(s *Session, ev models.ClientEvent) {
	if ev.User == nil || ev.User.ID != s.userID {
		metrics.EventsDropped.WithLabelValues("unauthorized").Inc()
		return
	}
	s.user = *ev.User
	s.bound = true

	// Personal room: reached by conversation-created events for this
	// user regardless of which chat rooms are open.
	h.registry.Join(s, userRoom(s.userID))
}

func (h *Hub) joinChat(s *Session, ev models.ClientEvent) {
	if !s.bound || ev.ChatID == "" {
		metrics.EventsDropped.WithLabelValues("unauthorized").Inc()
		return
	}
	conv, err := h.convs.GetConversation(ev.ChatID)
	if err != nil || !conv.HasMember(s.userID) {
		metrics.EventsDropped.WithLabelValues("unauthorized").Inc()
		return
	}
	h.registry.Join(s, ev.ChatID)
}

func (h *Hub) typing(s *Session, ev models.ClientEvent) {
	if !h.registry.Joined(s, ev.ChatID) {
		metrics.EventsDropped.WithLabelValues("unauthorized").Inc()
		return
	}
	user := s.user
	h.broadcast(ev.ChatID, models.ServerEvent{
		Type:   models.ServerEventTyping,
		ChatID: ev.ChatID,
		User:   &user,
	}, s)
}

func (h *Hub) stopTyping(s *Session, ev models.ClientEvent) {
	if !h.registry.Joined(s, ev.ChatID) {
		metrics.EventsDropped.WithLabelValues("unauthorized").Inc()
		return
	}
	h.broadcast(ev.ChatID, models.ServerEvent{
		Type:   models.ServerEventStopTyping,
		ChatID: ev.ChatID,
	}, s)
}

// newMessage relays a persisted message to every other session joined
// to its conversation room, and hands members with no live session to
// the offline notifier.
func (h *Hub) newMessage(s *Session, ev models.ClientEvent) {
	if ev.Message == nil {
		return
	}
	msg := *ev.Message
	if msg.Sender.ID != s.userID || !h.registry.Joined(s, msg.ChatID) {
		metrics.EventsDropped.WithLabelValues("unauthorized").Inc()
		return
	}

	h.broadcast(msg.ChatID, models.ServerEvent{
		Type:    models.ServerEventNewMessage,
		ChatID:  msg.ChatID,
		Message: &msg,
	}, s)

	if h.offline == nil {
		return
	}
	conv, err := h.convs.GetConversation(msg.ChatID)
	if err != nil {
		return
	}
	for _, memberID := range conv.Members {
		if memberID == s.userID {
			continue
		}
		if len(h.registry.Members(userRoom(memberID))) == 0 {
			h.offline.Notify(memberID, msg)
		}
	}
}

// newChat tells the other members of a freshly created conversation
// about it, via their personal rooms.
func (h *Hub) newChat(s *Session, ev models.ClientEvent) {
	if ev.Chat == nil {
		return
	}
	conv, err := h.convs.GetConversation(ev.Chat.ID)
	if err != nil || !conv.HasMember(s.userID) {
		metrics.EventsDropped.WithLabelValues("unauthorized").Inc()
		return
	}
	for _, memberID := range conv.Members {
		if memberID == s.userID {
			continue
		}
		h.broadcast(userRoom(memberID), models.ServerEvent{
			Type: models.ServerEventNewChat,
			Chat: &conv,
		}, s)
	}
}

// groupChange relays updated group metadata to the current room
// members. The update itself was already persisted through the API;
// the authoritative state is re-read here rather than trusted from the
// wire.
func (h *Hub) groupChange(s *Session, ev models.ClientEvent) {
	if ev.Chat == nil {
		return
	}
	conv, err := h.convs.GetConversation(ev.Chat.ID)
	if err != nil || !conv.HasMember(s.userID) {
		metrics.EventsDropped.WithLabelValues("unauthorized").Inc()
		return
	}
	h.broadcast(conv.ID, models.ServerEvent{
		Type:   models.ServerEventGroupChange,
		ChatID: conv.ID,
		Chat:   &conv,
	}, s)
}

// broadcast delivers the event to every session in the room except the
// originator. At most once, best effort: a full buffer drops the event
// for that member.
func (h *Hub) broadcast(roomID string, ev models.ServerEvent, exclude *Session) {
	for _, member := range h.registry.Members(roomID) {
		if member == exclude {
			continue
		}
		select {
		case member.send <- ev:
			metrics.EventsRelayed.WithLabelValues(string(ev.Type)).Inc()
		default:
			metrics.EventsDropped.WithLabelValues("buffer_full").Inc()
		}
	}
}

func userRoom(userID string) string {
	return "user:" + userID
}
