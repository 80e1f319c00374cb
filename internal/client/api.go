// Package client is the Go client for a parley server: an HTTP client
// for the persistence API, a websocket event channel, and a Session
// that coordinates one open conversation between the two.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"parley/internal/models"
)

// APIClient talks to the parley HTTP API.
type APIClient struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client
}

func NewAPIClient(baseURL string) *APIClient {
	return &APIClient{
		BaseURL:    baseURL,
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
	}
}

type sessionUser struct {
	models.User
	Token string `json:"token"`
}

// Login authenticates and stores the bearer token for later calls.
func (c *APIClient) Login(ctx context.Context, email, password string) (models.User, error) {
	var resp struct {
		User sessionUser `json:"user"`
	}
	err := c.do(ctx, http.MethodPost, "/api/auth/login", map[string]string{
		"email":    email,
		"password": password,
	}, &resp)
	if err != nil {
		return models.User{}, err
	}
	c.Token = resp.User.Token
	return resp.User.User, nil
}

// Register creates an account and stores the bearer token.
func (c *APIClient) Register(ctx context.Context, name, email, password, profileImage string) (models.User, error) {
	var resp struct {
		User sessionUser `json:"user"`
	}
	err := c.do(ctx, http.MethodPost, "/api/auth/register", map[string]string{
		"name":         name,
		"email":        email,
		"password":     password,
		"profileImage": profileImage,
	}, &resp)
	if err != nil {
		return models.User{}, err
	}
	c.Token = resp.User.Token
	return resp.User.User, nil
}

// FindUsers searches peers by name or email.
func (c *APIClient) FindUsers(ctx context.Context, search string) ([]models.User, error) {
	var resp struct {
		Users []models.User `json:"users"`
	}
	path := "/api/users/find?search=" + url.QueryEscape(search)
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Users, nil
}

// ListChats returns the caller's conversations.
// Logoff invalidates the session token.
func (c *APIClient) Logoff(ctx context.Context) error {
	if err := c.do(ctx, http.MethodPost, "/api/auth/logoff", nil, nil); err != nil {
		return err
	}
	c.Token = ""
	return nil
}

func (c *APIClient) ListChats(ctx context.Context) ([]models.Conversation, error) {
	var resp struct {
		Chats []models.Conversation `json:"chats"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/chats", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Chats, nil
}

// CreateChat creates or returns the one-to-one chat with the user.
func (c *APIClient) CreateChat(ctx context.Context, userID string) (models.Conversation, error) {
	var resp struct {
		Chat models.Conversation `json:"chat"`
	}
	err := c.do(ctx, http.MethodPost, "/api/chats", map[string]string{"userId": userID}, &resp)
	return resp.Chat, err
}

// CreateGroup creates a group chat with the named members.
func (c *APIClient) CreateGroup(ctx context.Context, chatName string, userIDs []string) (models.Conversation, error) {
	var resp struct {
		Chat models.Conversation `json:"chat"`
	}
	err := c.do(ctx, http.MethodPost, "/api/chats/group", map[string]any{
		"chatName": chatName,
		"users":    userIDs,
	}, &resp)
	return resp.Chat, err
}

// ListMessages fetches one history page plus the total count.
func (c *APIClient) ListMessages(ctx context.Context, chatID string, page int) ([]models.Message, int, error) {
	var resp struct {
		Messages []models.Message `json:"messages"`
		Count    int              `json:"count"`
	}
	path := "/api/messages/" + chatID + "?page=" + strconv.Itoa(page)
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, 0, err
	}
	return resp.Messages, resp.Count, nil
}

// CreateMessage persists a message and returns the created record.
func (c *APIClient) CreateMessage(ctx context.Context, chatID, messageContent string) (models.Message, error) {
	var resp struct {
		CreatedMessage models.Message `json:"createdMessage"`
	}
	err := c.do(ctx, http.MethodPost, "/api/messages/create/"+chatID, map[string]string{
		"messageContent": messageContent,
	}, &resp)
	return resp.CreatedMessage, err
}

func (c *APIClient) do(ctx context.Context, method, path string, body, out any) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, reqBody)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("%s %s: %d: %s", method, path, resp.StatusCode, bytes.TrimSpace(data))
	}

	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
