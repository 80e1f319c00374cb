// Package notify accumulates message-arrival notifications for
// conversations the user does not currently have open.
package notify

import (
	"sync"

	"parley/internal/models"
)

// Aggregator holds one user's unseen notifications in arrival order.
// Entries stay until their conversation is opened; multiple messages
// in the same conversation each get their own entry.
type Aggregator struct {
	mu      sync.Mutex
	entries []models.Notification
}

func NewAggregator() *Aggregator {
	return &Aggregator{}
}

// Add appends a notification for a message that arrived for a
// conversation that is not open.
func (a *Aggregator) Add(message models.Message, conversation models.Conversation) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.entries = append(a.entries, models.Notification{
		Message:      message,
		Conversation: conversation,
	})
}

// Count returns the number of unseen notifications (the badge value).
func (a *Aggregator) Count() int {
	a.mu.Lock()
	defer a.mu.Unlock()

	return len(a.entries)
}

// List returns the notifications in arrival order.
func (a *Aggregator) List() []models.Notification {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := make([]models.Notification, len(a.entries))
	copy(out, a.entries)
	return out
}

// ClearFor removes every notification belonging to the conversation,
// typically because the user just opened it.
func (a *Aggregator) ClearFor(conversationID string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	kept := a.entries[:0]
	for _, n := range a.entries {
		if n.Conversation.ID != conversationID {
			kept = append(kept, n)
		}
	}
	a.entries = kept
}
