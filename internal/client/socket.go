package client

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"parley/internal/models"

	"github.com/gorilla/websocket"
)

// EventChannel is the live connection a Session emits into and
// receives from.
type EventChannel interface {
	Emit(ev models.ClientEvent) error
	Events() <-chan models.ServerEvent
	Close() error
}

// Socket is the websocket-backed EventChannel.
type Socket struct {
	conn   *websocket.Conn
	events chan models.ServerEvent

	mu     sync.Mutex // guards writes; gorilla allows one writer at a time
	closed bool
}

// Dial connects to the server's live channel using the bearer token.
func Dial(ctx context.Context, baseURL, token string) (*Socket, error) {
	wsURL := strings.Replace(baseURL, "http", "ws", 1) + "/api/chat"

	header := http.Header{}
	header.Set("token", token)

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, wsURL, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("failed to connect: %s: %w", resp.Status, err)
		}
		return nil, fmt.Errorf("failed to connect: %w", err)
	}

	s := &Socket{
		conn:   conn,
		events: make(chan models.ServerEvent, 100),
	}
	go s.readLoop()
	return s, nil
}

func (s *Socket) readLoop() {
	defer close(s.events)
	for {
		var ev models.ServerEvent
		if err := s.conn.ReadJSON(&ev); err != nil {
			return
		}
		s.events <- ev
	}
}

func (s *Socket) Emit(ev models.ClientEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("connection closed")
	}
	return s.conn.WriteJSON(ev)
}

func (s *Socket) Events() <-chan models.ServerEvent {
	return s.events
}

func (s *Socket) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.conn.Close()
}
