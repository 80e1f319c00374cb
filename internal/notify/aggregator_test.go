package notify

import (
	"testing"

	"parley/internal/models"
)

func TestAggregator(t *testing.T) {
	a := NewAggregator()

	chat1 := models.Conversation{ID: "chat1"}
	chat2 := models.Conversation{ID: "chat2"}

	a.Add(models.Message{ID: "m1", ChatID: "chat1"}, chat1)
	a.Add(models.Message{ID: "m2", ChatID: "chat2"}, chat2)
	a.Add(models.Message{ID: "m3", ChatID: "chat1"}, chat1)

	if got := a.Count(); got != 3 {
		t.Errorf("expected count 3, got %d", got)
	}

	// Arrival order preserved, one entry per message.
	list := a.List()
	if len(list) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(list))
	}
	for i, want := range []string{"m1", "m2", "m3"} {
		if list[i].Message.ID != want {
			t.Errorf("entry %d: expected %s, got %s", i, want, list[i].Message.ID)
		}
	}

	// Opening chat1 clears both of its entries, chat2 stays.
	a.ClearFor("chat1")
	if got := a.Count(); got != 1 {
		t.Errorf("expected count 1 after clear, got %d", got)
	}
	list = a.List()
	if len(list) != 1 || list[0].Message.ID != "m2" {
		t.Errorf("expected only m2 left, got %v", list)
	}

	// Clearing an absent conversation is a no-op.
	a.ClearFor("chat9")
	if got := a.Count(); got != 1 {
		t.Errorf("expected count unchanged, got %d", got)
	}

	a.ClearFor("chat2")
	if got := a.Count(); got != 0 {
		t.Errorf("expected count 0, got %d", got)
	}
}
