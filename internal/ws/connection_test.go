package ws

import (
	"context"
	"errors"
	"testing"
	"time"

	"parley/internal/models"
)

type mockWS struct {
	readCh      chan models.ClientEvent
	writeCh     chan any
	closeCh     chan struct{}
	closed      bool
	errToReturn error
}

func newMockWS() *mockWS {
	return &mockWS{
		readCh:  make(chan models.ClientEvent, 10),
		writeCh: make(chan any, 10),
		closeCh: make(chan struct{}),
	}
}

func (m *mockWS) Close() error {
	if m.closed {
		return nil
	}
	m.closed = true
	close(m.closeCh)
	return nil
}

func (m *mockWS) WriteJSON(v any) error {
	if m.errToReturn != nil {
		return m.errToReturn
	}
	m.writeCh <- v
	return nil
}

func (m *mockWS) ReadJSON(v any) error {
	if m.errToReturn != nil {
		return m.errToReturn
	}
	select {
	case ev, ok := <-m.readCh:
		if !ok {
			return errors.New("closed")
		}
		if ptr, ok := v.(*models.ClientEvent); ok {
			*ptr = ev
		}
		return nil
	case <-m.closeCh:
		return errors.New("connection closed")
	}
}

type mockEventHub struct {
	connectCh    chan string
	disconnectCh chan *Session
	eventCh      chan models.ClientEvent
}

func newMockEventHub() *mockEventHub {
	return &mockEventHub{
		connectCh:    make(chan string, 10),
		disconnectCh: make(chan *Session, 10),
		eventCh:      make(chan models.ClientEvent, 10),
	}
}

func (m *mockEventHub) Connect(userID string) *Session {
	m.connectCh <- userID
	return &Session{userID: userID, send: make(chan models.ServerEvent, 10)}
}

func (m *mockEventHub) Disconnect(s *Session) {
	m.disconnectCh <- s
}

func (m *mockEventHub) HandleEvent(s *Session, ev models.ClientEvent) {
	m.eventCh <- ev
}

func TestConnection_Lifecycle(t *testing.T) {
	hub := newMockEventHub()
	ws := newMockWS()
	userID := "user1"

	conn := NewConnection(hub, ws, userID)
	if conn == nil {
		t.Fatal("NewConnection returned nil")
	}

	select {
	case id := <-hub.connectCh:
		if id != userID {
			t.Errorf("Expected Connect with %s, got %s", userID, id)
		}
	default:
		t.Error("Connect not called on NewConnection")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error)
	go func() {
		done <- conn.Handle(ctx)
	}()

	// 1. Client event reaches the hub
	clientEv := models.ClientEvent{
		Type:   models.ClientEventJoinChat,
		ChatID: "chat1",
	}
	ws.readCh <- clientEv

	select {
	case received := <-hub.eventCh:
		if received.ChatID != clientEv.ChatID {
			t.Errorf("Hub received wrong event: %v", received)
		}
	case <-time.After(1 * time.Second):
		t.Error("Hub did not receive client event")
	}

	// 2. Server event reaches the websocket
	serverEv := models.ServerEvent{
		Type:   models.ServerEventNewMessage,
		ChatID: "chat1",
		Message: &models.Message{
			Content: "hi back",
		},
	}
	conn.sess.send <- serverEv

	select {
	case received := <-ws.writeCh:
		sEv, ok := received.(models.ServerEvent)
		if !ok {
			t.Fatalf("WS received wrong type: %T", received)
		}
		if sEv.Message == nil || sEv.Message.Content != "hi back" {
			t.Errorf("WS received wrong content: %v", sEv)
		}
	case <-time.After(1 * time.Second):
		t.Error("WS did not receive server event")
	}

	// 3. Stop
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Handle returned error: %v", err)
		}
	case <-time.After(1 * time.Second):
		t.Error("Handle did not return after cancel")
	}

	select {
	case s := <-hub.disconnectCh:
		if s != conn.sess {
			t.Error("Disconnect called with wrong session")
		}
	default:
		t.Error("Disconnect not called")
	}

	if !ws.closed {
		t.Error("WS Close not called")
	}
}

func TestConnection_WSError(t *testing.T) {
	hub := newMockEventHub()
	ws := newMockWS()

	conn := NewConnection(hub, ws, "user2")

	// ReadJSON fails immediately
	ws.errToReturn = errors.New("read error")

	done := make(chan error)
	go func() {
		done <- conn.Handle(context.Background())
	}()

	select {
	case err := <-done:
		if err == nil {
			t.Error("Expected error from Handle, got nil")
		}
	case <-time.After(1 * time.Second):
		t.Error("Handle did not return on error")
	}

	if !ws.closed {
		t.Error("WS Close not called")
	}
}
