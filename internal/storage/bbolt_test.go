package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"parley/internal/auth"
	"parley/internal/models"
)

func TestStorage(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "storage_test")
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = os.RemoveAll(tmpDir) }()

	dbPath := filepath.Join(tmpDir, "test.db")
	store, err := NewBboltStorage(dbPath)
	if err != nil {
		t.Fatalf("failed to create storage: %v", err)
	}
	defer func() { _ = store.Close() }()

	t.Run("Credentials", func(t *testing.T) {
		creds := auth.UserCredentials{
			User: models.User{
				ID:    "user1",
				Name:  "Alice",
				Email: "alice@example.com",
			},
			PasswordHash: "hash",
			CreatedAt:    time.Now().Unix(),
		}

		if err := store.UpsertCredentials(creds); err != nil {
			t.Fatalf("UpsertCredentials failed: %v", err)
		}

		listCreds, err := store.ListCredentials()
		if err != nil {
			t.Fatalf("ListCredentials failed: %v", err)
		}
		if len(listCreds) != 1 {
			t.Errorf("expected 1 credential, got %d", len(listCreds))
		}
		if listCreds[0].ID != creds.ID {
			t.Errorf("expected ID %s, got %s", creds.ID, listCreds[0].ID)
		}
		if listCreds[0].Email != creds.Email {
			t.Errorf("expected Email %s, got %s", creds.Email, listCreds[0].Email)
		}

		user, err := store.GetUser("user1")
		if err != nil {
			t.Fatalf("GetUser failed: %v", err)
		}
		if user.Name != "Alice" {
			t.Errorf("expected Name Alice, got %s", user.Name)
		}

		if _, err := store.GetUser("nope"); !errors.Is(err, models.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("SearchUsers", func(t *testing.T) {
		for i := 2; i <= 5; i++ {
			creds := auth.UserCredentials{
				User: models.User{
					ID:    fmt.Sprintf("user%d", i),
					Name:  fmt.Sprintf("Bob %d", i),
					Email: fmt.Sprintf("bob%d@example.com", i),
				},
				PasswordHash: "hash",
			}
			if err := store.UpsertCredentials(creds); err != nil {
				t.Fatalf("UpsertCredentials failed: %v", err)
			}
		}

		// Case-insensitive match on name.
		found, err := store.SearchUsers("BOB", "user1", 10)
		if err != nil {
			t.Fatalf("SearchUsers failed: %v", err)
		}
		if len(found) != 4 {
			t.Errorf("expected 4 users, got %d", len(found))
		}

		// Match on email fragment.
		found, err = store.SearchUsers("bob3@", "user1", 10)
		if err != nil {
			t.Fatalf("SearchUsers failed: %v", err)
		}
		if len(found) != 1 || found[0].ID != "user3" {
			t.Errorf("expected user3, got %v", found)
		}

		// Caller is excluded from results.
		found, err = store.SearchUsers("alice", "user1", 10)
		if err != nil {
			t.Fatalf("SearchUsers failed: %v", err)
		}
		if len(found) != 0 {
			t.Errorf("expected caller excluded, got %v", found)
		}

		// Limit caps the result set.
		found, err = store.SearchUsers("bob", "user1", 2)
		if err != nil {
			t.Fatalf("SearchUsers failed: %v", err)
		}
		if len(found) != 2 {
			t.Errorf("expected 2 users with limit, got %d", len(found))
		}
	})

	t.Run("Conversations", func(t *testing.T) {
		conv := models.Conversation{
			ID:        "chat1",
			IsGroup:   false,
			Members:   []string{"user1", "user2"},
			CreatedAt: time.Now().Unix(),
		}
		if err := store.UpsertConversation(conv); err != nil {
			t.Fatalf("UpsertConversation failed: %v", err)
		}

		got, err := store.GetConversation("chat1")
		if err != nil {
			t.Fatalf("GetConversation failed: %v", err)
		}
		if len(got.Members) != 2 {
			t.Errorf("expected 2 members, got %d", len(got.Members))
		}

		list, err := store.ListConversations("user1")
		if err != nil {
			t.Fatalf("ListConversations failed: %v", err)
		}
		if len(list) != 1 {
			t.Errorf("expected 1 conversation for user1, got %d", len(list))
		}

		// Non-members see nothing.
		list, err = store.ListConversations("user3")
		if err != nil {
			t.Fatalf("ListConversations failed: %v", err)
		}
		if len(list) != 0 {
			t.Errorf("expected 0 conversations for user3, got %d", len(list))
		}
	})

	t.Run("Messages", func(t *testing.T) {
		for i := 1; i <= 7; i++ {
			msg := models.Message{
				ID:        fmt.Sprintf("msg%d", i),
				ChatID:    "chat1",
				Sender:    models.User{ID: "user1"},
				Content:   fmt.Sprintf("message %d", i),
				CreatedAt: time.Now().Unix(),
			}
			stored, err := store.AppendMessage(msg)
			if err != nil {
				t.Fatalf("AppendMessage failed: %v", err)
			}
			if stored.Seq != int64(i) {
				t.Errorf("expected Seq %d, got %d", i, stored.Seq)
			}
		}

		// Page 1 holds the newest window, chronological inside it.
		msgs, count, err := store.ListMessagesPage("chat1", 1, 3)
		if err != nil {
			t.Fatalf("ListMessagesPage failed: %v", err)
		}
		if count != 7 {
			t.Errorf("expected count 7, got %d", count)
		}
		if len(msgs) != 3 {
			t.Fatalf("expected 3 messages, got %d", len(msgs))
		}
		if msgs[0].Content != "message 5" || msgs[2].Content != "message 7" {
			t.Errorf("unexpected page 1 order: %q .. %q", msgs[0].Content, msgs[2].Content)
		}
		// Sender is hydrated from the users bucket.
		if msgs[0].Sender.Name != "Alice" {
			t.Errorf("expected hydrated sender Alice, got %q", msgs[0].Sender.Name)
		}

		// Page 3 is the oldest, short window.
		msgs, _, err = store.ListMessagesPage("chat1", 3, 3)
		if err != nil {
			t.Fatalf("ListMessagesPage failed: %v", err)
		}
		if len(msgs) != 1 || msgs[0].Content != "message 1" {
			t.Errorf("unexpected page 3: %v", msgs)
		}

		// Past the end is empty, not an error.
		msgs, _, err = store.ListMessagesPage("chat1", 4, 3)
		if err != nil {
			t.Fatalf("ListMessagesPage failed: %v", err)
		}
		if len(msgs) != 0 {
			t.Errorf("expected empty page, got %d messages", len(msgs))
		}

		// Appending to a missing conversation fails.
		if _, err := store.AppendMessage(models.Message{ID: "x", ChatID: "nochat"}); !errors.Is(err, models.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("Tokens", func(t *testing.T) {
		if err := store.UpsertToken("user1", "tokenhash1"); err != nil {
			t.Fatalf("UpsertToken failed: %v", err)
		}
		if err := store.UpsertToken("user2", "tokenhash2"); err != nil {
			t.Fatalf("UpsertToken failed: %v", err)
		}

		tokens, err := store.ListTokens()
		if err != nil {
			t.Fatalf("ListTokens failed: %v", err)
		}
		if len(tokens) != 2 {
			t.Errorf("expected 2 tokens, got %d", len(tokens))
		}
		if tokens["tokenhash1"] != "user1" {
			t.Errorf("expected tokenhash1 -> user1, got %s", tokens["tokenhash1"])
		}

		if err := store.DeleteToken("tokenhash1"); err != nil {
			t.Fatalf("DeleteToken failed: %v", err)
		}
		tokens, err = store.ListTokens()
		if err != nil {
			t.Fatalf("ListTokens failed: %v", err)
		}
		if len(tokens) != 1 {
			t.Errorf("expected 1 token after delete, got %d", len(tokens))
		}
	})

	t.Run("PushSubscriptions", func(t *testing.T) {
		sub := DBPushSubscription{
			ID:       "sub1",
			UserID:   "user1",
			Endpoint: "https://push.example.com/abc",
			P256DH:   "p",
			Auth:     "a",
		}
		if err := store.UpsertPushSubscription(sub); err != nil {
			t.Fatalf("UpsertPushSubscription failed: %v", err)
		}

		subs, err := store.ListPushSubscriptions("user1")
		if err != nil {
			t.Fatalf("ListPushSubscriptions failed: %v", err)
		}
		if len(subs) != 1 || subs[0].Endpoint != sub.Endpoint {
			t.Errorf("unexpected subscriptions: %v", subs)
		}

		if err := store.DeletePushSubscription("sub1"); err != nil {
			t.Fatalf("DeletePushSubscription failed: %v", err)
		}
		subs, err = store.ListPushSubscriptions("user1")
		if err != nil {
			t.Fatalf("ListPushSubscriptions failed: %v", err)
		}
		if len(subs) != 0 {
			t.Errorf("expected no subscriptions after delete, got %d", len(subs))
		}
	})
}
