package ws

import (
	"log"
	"net/http"

	"parley/internal/auth"

	"github.com/gorilla/websocket"
)

type Server struct {
	auth     *auth.AuthService
	hub      *Hub
	upgrader *websocket.Upgrader
}

func NewServer(auth *auth.AuthService, hub *Hub) *Server {
	return &Server{
		auth: auth,
		hub:  hub,
		upgrader: &websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // Same-origin is enforced on the mutating HTTP endpoints
			},
		},
	}
}

// HandleConnections authenticates the bearer token, upgrades to a
// websocket and runs the connection until it drops.
func (s *Server) HandleConnections(w http.ResponseWriter, r *http.Request) {
	token := r.Header.Get("token")
	if token == "" {
		if c, err := r.Cookie("token"); err == nil {
			token = c.Value
		}
	}
	if token == "" {
		token = r.URL.Query().Get("token")
	}

	userID, err := s.auth.UserID(token)
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("error upgrading to websocket: %v", err)
		return
	}

	conn := NewConnection(s.hub, ws, userID)
	if err := conn.Handle(r.Context()); err != nil {
		log.Printf("connection closed: %v", err)
	}
}
