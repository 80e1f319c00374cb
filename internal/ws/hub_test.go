package ws

import (
	"sync"
	"testing"
	"time"

	"parley/internal/models"
)

// fakeConvs serves a fixed set of conversations.
type fakeConvs struct {
	convs map[string]models.Conversation
}

func (f *fakeConvs) GetConversation(id string) (models.Conversation, error) {
	conv, ok := f.convs[id]
	if !ok {
		return models.Conversation{}, models.ErrNotFound
	}
	return conv, nil
}

type fakeNotifier struct {
	mu    sync.Mutex
	calls []string
}

func (f *fakeNotifier) Notify(userID string, message models.Message) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, userID)
}

func (f *fakeNotifier) notified() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func setupMember(h *Hub, userID string, chatIDs ...string) *Session {
	s := h.Connect(userID)
	h.HandleEvent(s, models.ClientEvent{
		Type: models.ClientEventSetup,
		User: &models.User{ID: userID, Name: userID},
	})
	for _, chatID := range chatIDs {
		h.HandleEvent(s, models.ClientEvent{
			Type:   models.ClientEventJoinChat,
			ChatID: chatID,
		})
	}
	return s
}

func expectEvent(t *testing.T, s *Session, want models.ServerEventType) models.ServerEvent {
	t.Helper()
	select {
	case ev := <-s.Events():
		if ev.Type != want {
			t.Fatalf("expected %s event, got %s", want, ev.Type)
		}
		return ev
	case <-time.After(1 * time.Second):
		t.Fatalf("timeout waiting for %s event", want)
		return models.ServerEvent{}
	}
}

func expectNoEvent(t *testing.T, s *Session) {
	t.Helper()
	select {
	case ev := <-s.Events():
		t.Fatalf("unexpected event %s", ev.Type)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHub_MessageRelay(t *testing.T) {
	convs := &fakeConvs{convs: map[string]models.Conversation{
		"chat1": {ID: "chat1", Members: []string{"u1", "u2", "u3"}},
	}}
	h := NewHub(convs, nil)

	alice := setupMember(h, "u1", "chat1")
	bob := setupMember(h, "u2", "chat1")
	carol := setupMember(h, "u3")

	msg := models.Message{
		ID:      "m1",
		ChatID:  "chat1",
		Sender:  models.User{ID: "u1", Name: "u1"},
		Content: "hello",
	}
	h.HandleEvent(alice, models.ClientEvent{
		Type:    models.ClientEventNewMessage,
		Message: &msg,
	})

	ev := expectEvent(t, bob, models.ServerEventNewMessage)
	if ev.Message == nil || ev.Message.Content != "hello" {
		t.Errorf("unexpected message payload: %v", ev.Message)
	}

	// The sender is excluded, and so is the member who never joined
	// the room.
	expectNoEvent(t, alice)
	expectNoEvent(t, carol)
}

func TestHub_Typing(t *testing.T) {
	convs := &fakeConvs{convs: map[string]models.Conversation{
		"chat1": {ID: "chat1", Members: []string{"u1", "u2"}},
	}}
	h := NewHub(convs, nil)

	alice := setupMember(h, "u1", "chat1")
	bob := setupMember(h, "u2", "chat1")

	h.HandleEvent(alice, models.ClientEvent{Type: models.ClientEventTyping, ChatID: "chat1"})
	ev := expectEvent(t, bob, models.ServerEventTyping)
	if ev.User == nil || ev.User.ID != "u1" {
		t.Errorf("expected typing user u1, got %v", ev.User)
	}
	expectNoEvent(t, alice)

	h.HandleEvent(alice, models.ClientEvent{Type: models.ClientEventStopTyping, ChatID: "chat1"})
	expectEvent(t, bob, models.ServerEventStopTyping)
}

func TestHub_Authorization(t *testing.T) {
	convs := &fakeConvs{convs: map[string]models.Conversation{
		"chat1": {ID: "chat1", Members: []string{"u1", "u2"}},
	}}
	h := NewHub(convs, nil)

	alice := setupMember(h, "u1", "chat1")
	bob := setupMember(h, "u2", "chat1")

	t.Run("SetupIdentityMismatch", func(t *testing.T) {
		mallory := h.Connect("u9")
		h.HandleEvent(mallory, models.ClientEvent{
			Type: models.ClientEventSetup,
			User: &models.User{ID: "u1"},
		})
		if mallory.bound {
			t.Error("expected setup with foreign identity to be rejected")
		}
	})

	t.Run("JoinWithoutMembership", func(t *testing.T) {
		mallory := setupMember(h, "u9")
		h.HandleEvent(mallory, models.ClientEvent{
			Type:   models.ClientEventJoinChat,
			ChatID: "chat1",
		})
		if h.registry.Joined(mallory, "chat1") {
			t.Error("expected non-member join to be rejected")
		}
	})

	t.Run("JoinBeforeSetup", func(t *testing.T) {
		s := h.Connect("u2")
		h.HandleEvent(s, models.ClientEvent{
			Type:   models.ClientEventJoinChat,
			ChatID: "chat1",
		})
		if h.registry.Joined(s, "chat1") {
			t.Error("expected join before setup to be rejected")
		}
	})

	t.Run("SpoofedSender", func(t *testing.T) {
		msg := models.Message{ID: "m1", ChatID: "chat1", Sender: models.User{ID: "u2"}}
		h.HandleEvent(alice, models.ClientEvent{
			Type:    models.ClientEventNewMessage,
			Message: &msg,
		})
		expectNoEvent(t, bob)
	})

	t.Run("TypingOutsideRoom", func(t *testing.T) {
		h.HandleEvent(alice, models.ClientEvent{Type: models.ClientEventTyping, ChatID: "chat2"})
		expectNoEvent(t, bob)
	})
}

func TestHub_NewChat(t *testing.T) {
	convs := &fakeConvs{convs: map[string]models.Conversation{
		"chat1": {ID: "chat1", Members: []string{"u1", "u2"}},
	}}
	h := NewHub(convs, nil)

	alice := setupMember(h, "u1")
	bob := setupMember(h, "u2")

	// The creator announces the conversation; the other member gets it
	// on their personal room without having joined anything.
	h.HandleEvent(alice, models.ClientEvent{
		Type: models.ClientEventNewChat,
		Chat: &models.Conversation{ID: "chat1"},
	})

	ev := expectEvent(t, bob, models.ServerEventNewChat)
	if ev.Chat == nil || ev.Chat.ID != "chat1" {
		t.Errorf("unexpected chat payload: %v", ev.Chat)
	}
	expectNoEvent(t, alice)
}

func TestHub_GroupChange(t *testing.T) {
	convs := &fakeConvs{convs: map[string]models.Conversation{
		"group1": {ID: "group1", Name: "Renamed", IsGroup: true, AdminID: "u1", Members: []string{"u1", "u2"}},
	}}
	h := NewHub(convs, nil)

	alice := setupMember(h, "u1", "group1")
	bob := setupMember(h, "u2", "group1")

	// The wire payload carries a stale name; the relayed event holds
	// the authoritative stored state.
	h.HandleEvent(alice, models.ClientEvent{
		Type: models.ClientEventGroupChange,
		Chat: &models.Conversation{ID: "group1", Name: "Stale"},
	})

	ev := expectEvent(t, bob, models.ServerEventGroupChange)
	if ev.Chat == nil || ev.Chat.Name != "Renamed" {
		t.Errorf("expected authoritative name, got %v", ev.Chat)
	}
}

func TestHub_OfflineNotify(t *testing.T) {
	convs := &fakeConvs{convs: map[string]models.Conversation{
		"chat1": {ID: "chat1", Members: []string{"u1", "u2", "u3"}},
	}}
	notifier := &fakeNotifier{}
	h := NewHub(convs, notifier)

	alice := setupMember(h, "u1", "chat1")
	bob := setupMember(h, "u2", "chat1")
	_ = bob

	// u3 has no live session at all.
	msg := models.Message{ID: "m1", ChatID: "chat1", Sender: models.User{ID: "u1"}}
	h.HandleEvent(alice, models.ClientEvent{
		Type:    models.ClientEventNewMessage,
		Message: &msg,
	})

	notified := notifier.notified()
	if len(notified) != 1 || notified[0] != "u3" {
		t.Errorf("expected only u3 notified, got %v", notified)
	}
}
