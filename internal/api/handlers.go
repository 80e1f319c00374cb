package api

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"parley/internal/auth"
	"parley/internal/filestore"
	"parley/internal/models"
	"parley/internal/storage"
)

const userSearchLimit = 10

type API struct {
	auth    *auth.AuthService
	store   *storage.BboltStorage
	files   filestore.FileStore
	baseURL string
}

func New(auth *auth.AuthService, store *storage.BboltStorage, files filestore.FileStore, baseURL string) *API {
	return &API{auth: auth, store: store, files: files, baseURL: baseURL}
}

// currentUser resolves the request's bearer token to the full user
// profile. Handlers behind RequireAuth may still get an error here if
// the token expired between the check and the call.
func (a *API) currentUser(r *http.Request) (models.User, error) {
	userID, err := a.auth.UserID(a.getToken(r))
	if err != nil {
		return models.User{}, err
	}
	return a.store.GetUser(userID)
}

type userResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message,omitempty"`
	User    sessionUser `json:"user"`
}

// sessionUser is the login/register payload: the profile plus the
// issued bearer token.
type sessionUser struct {
	models.User
	Token string `json:"token"`
}

func (a *API) RegisterHandler(w http.ResponseWriter, r *http.Request) {
	var req auth.RegistrationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	user, token, err := a.auth.Register(req)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	a.setTokenCookie(w, token)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	if err := json.NewEncoder(w).Encode(userResponse{
		Success: true,
		Message: "Registration successful!",
		User:    sessionUser{User: user, Token: token},
	}); err != nil {
		log.Printf("failed to encode register response: %v", err)
	}
}

func (a *API) LoginHandler(w http.ResponseWriter, r *http.Request) {
	var req auth.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	user, token, err := a.auth.Login(req)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	a.setTokenCookie(w, token)
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(userResponse{
		Success: true,
		Message: "Login successful!",
		User:    sessionUser{User: user, Token: token},
	}); err != nil {
		log.Printf("failed to encode login response: %v", err)
	}
}

func (a *API) LogoffHandler(w http.ResponseWriter, r *http.Request) {
	if token := a.getToken(r); token != "" {
		_ = a.auth.Logoff(token)
	}

	http.SetCookie(w, &http.Cookie{
		Name:     "token",
		Value:    "",
		HttpOnly: true,
		Path:     "/",
		MaxAge:   -1,
	})

	w.WriteHeader(http.StatusOK)
}

func (a *API) setTokenCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     "token",
		Value:    token,
		HttpOnly: true,
		Path:     "/",
		Expires:  time.Now().Add(auth.DefaultTokenExpiry),
	})
}

// FindUsersHandler implements the peer search: up to 10 users matching
// name or email case-insensitively, never including the caller.
func (a *API) FindUsersHandler(w http.ResponseWriter, r *http.Request) {
	caller, err := a.currentUser(r)
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	users, err := a.store.SearchUsers(r.URL.Query().Get("search"), caller.ID, userSearchLimit)
	if err != nil {
		http.Error(w, "Something went wrong.", http.StatusInternalServerError)
		return
	}
	if users == nil {
		users = []models.User{}
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(struct {
		Success bool          `json:"success"`
		Message string        `json:"message"`
		Users   []models.User `json:"users"`
	}{Success: true, Message: "Users found.", Users: users}); err != nil {
		log.Printf("failed to encode users response: %v", err)
	}
}

func (a *API) MeHandler(w http.ResponseWriter, r *http.Request) {
	user, err := a.currentUser(r)
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(user); err != nil {
		log.Printf("failed to encode me response: %v", err)
	}
}
