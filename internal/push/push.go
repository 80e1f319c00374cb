// Package push delivers web-push notifications to conversation members
// who have no live connection.
package push

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"parley/internal/metrics"
	"parley/internal/models"
	"parley/internal/storage"

	"github.com/SherClockHolmes/webpush-go"
)

// SubscriptionStore provides the push subscriptions a user registered.
type SubscriptionStore interface {
	ListPushSubscriptions(userID string) ([]storage.DBPushSubscription, error)
	DeletePushSubscription(id string) error
}

type Sender struct {
	store        SubscriptionStore
	vapidPublic  string
	vapidPrivate string
	contact      string
}

// NewSender returns nil when VAPID keys are not configured; a nil
// *Sender satisfies nothing and the hub runs without offline delivery.
func NewSender(store SubscriptionStore, vapidPublic, vapidPrivate, contact string) *Sender {
	if vapidPublic == "" || vapidPrivate == "" {
		return nil
	}
	return &Sender{
		store:        store,
		vapidPublic:  vapidPublic,
		vapidPrivate: vapidPrivate,
		contact:      contact,
	}
}

type payload struct {
	Title  string `json:"title"`
	Body   string `json:"body"`
	ChatID string `json:"chatId"`
}

// Notify sends the message to every subscription of the user. Best
// effort: failures are logged, dead subscriptions are removed.
func (s *Sender) Notify(userID string, message models.Message) {
	subs, err := s.store.ListPushSubscriptions(userID)
	if err != nil {
		slog.Error("failed to list push subscriptions", "user_id", userID, "error", err)
		return
	}
	if len(subs) == 0 {
		return
	}

	body, err := json.Marshal(payload{
		Title:  "New message from " + message.Sender.Name,
		Body:   message.Content,
		ChatID: message.ChatID,
	})
	if err != nil {
		return
	}

	for _, sub := range subs {
		go s.send(sub, body)
	}
}

func (s *Sender) send(sub storage.DBPushSubscription, body []byte) {
	resp, err := webpush.SendNotification(body, &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			P256dh: sub.P256DH,
			Auth:   sub.Auth,
		},
	}, &webpush.Options{
		Subscriber:      s.contact,
		VAPIDPublicKey:  s.vapidPublic,
		VAPIDPrivateKey: s.vapidPrivate,
		TTL:             60,
	})
	if err != nil {
		slog.Error("web push failed", "endpoint", sub.Endpoint, "error", err)
		return
	}
	defer func() { _ = resp.Body.Close() }()

	switch resp.StatusCode {
	case http.StatusNotFound, http.StatusGone:
		// Subscription expired or was revoked by the push service.
		_ = s.store.DeletePushSubscription(sub.ID)
	default:
		metrics.NotificationsPushed.Inc()
	}
}
