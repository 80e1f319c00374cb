package http

import (
	"context"
	"log"
	"net/http"
	"sync"

	"parley/internal/api"
	"parley/internal/auth"
	"parley/internal/filestore"
	"parley/internal/storage"
	"parley/internal/ws"
)

type APIServer struct {
	server *http.Server
	wg     sync.WaitGroup
}

func NewAPIServer(authService *auth.AuthService, hub *ws.Hub, files filestore.FileStore, store *storage.BboltStorage, addr, baseURL string) *APIServer {
	server := ws.NewServer(authService, hub)
	apiHandlers := api.New(authService, store, files, baseURL)

	mux := http.NewServeMux()

	// Auth
	mux.HandleFunc("POST /api/auth/login", api.RequireSameOrigin(apiHandlers.LoginHandler))
	mux.HandleFunc("POST /api/auth/register", api.RequireSameOrigin(apiHandlers.RegisterHandler))
	mux.HandleFunc("POST /api/auth/logoff", api.RequireSameOrigin(apiHandlers.LogoffHandler))
	mux.HandleFunc("GET /api/me", apiHandlers.RequireAuth(apiHandlers.MeHandler))

	// Users
	mux.HandleFunc("GET /api/users/find", apiHandlers.RequireAuth(apiHandlers.FindUsersHandler))

	// Conversations
	mux.HandleFunc("GET /api/chats", apiHandlers.RequireAuth(apiHandlers.ChatsHandler))
	mux.HandleFunc("POST /api/chats", api.RequireSameOrigin(apiHandlers.RequireAuth(apiHandlers.CreateChatHandler)))
	mux.HandleFunc("POST /api/chats/group", api.RequireSameOrigin(apiHandlers.RequireAuth(apiHandlers.CreateGroupHandler)))
	mux.HandleFunc("PUT /api/chats/group/{id}", api.RequireSameOrigin(apiHandlers.RequireAuth(apiHandlers.UpdateGroupHandler)))

	// Messages
	mux.HandleFunc("GET /api/messages/{chatId}", apiHandlers.RequireAuth(apiHandlers.MessagesHandler))
	mux.HandleFunc("POST /api/messages/create/{chatId}", api.RequireSameOrigin(apiHandlers.RequireAuth(apiHandlers.CreateMessageHandler)))

	// Uploads
	mux.HandleFunc("POST /api/upload/image", api.RequireSameOrigin(apiHandlers.RequireAuth(apiHandlers.UploadImageHandler)))
	mux.HandleFunc("GET /api/images/{id}", apiHandlers.GetImageHandler)

	// Web push subscriptions
	mux.HandleFunc("POST /api/push/subscribe", api.RequireSameOrigin(apiHandlers.RequireAuth(apiHandlers.PushSubscribeHandler)))
	mux.HandleFunc("POST /api/push/unsubscribe", api.RequireSameOrigin(apiHandlers.RequireAuth(apiHandlers.PushUnsubscribeHandler)))

	// WebSocket endpoint
	mux.HandleFunc("/api/chat", server.HandleConnections)

	if addr == "" {
		addr = ":8080"
	}

	return &APIServer{
		server: &http.Server{
			Addr:    addr,
			Handler: mux,
		},
	}
}

func (s *APIServer) Start() error {
	log.Printf("Server started on %s", s.server.Addr)
	s.wg.Add(1)
	defer s.wg.Done()

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *APIServer) Shutdown(ctx context.Context) error {
	defer s.wg.Wait()
	return s.server.Shutdown(ctx)
}
