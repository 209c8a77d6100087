package store

import (
	"context"
	"encoding/json"
	"log"

	"versechat/internal/redis"
)

const changeChannel = "conversation:changed"

// ChangeKind tells subscribers what part of the store moved.
type ChangeKind string

const (
	ChangeMessages     ChangeKind = "messages"
	ChangeConversation ChangeKind = "conversation"
)

// Change is broadcast after every store mutation.
type Change struct {
	ConversationID int64      `json:"conversation_id"`
	Kind           ChangeKind `json:"kind"`
}

// Notifier broadcasts store changes over redis pub/sub so that execution
// contexts other than the mutating one can resync their transcripts.
type Notifier struct {
	client *redis.Client
}

func NewNotifier(client *redis.Client) *Notifier {
	return &Notifier{client: client}
}

// Publish broadcasts a change. Failures are logged, never surfaced; a
// missed notification only delays the next pulled reconciliation.
func (n *Notifier) Publish(change Change) {
	if n == nil || n.client == nil {
		return
	}
	raw := n.client.Raw()
	if raw == nil {
		return
	}
	payload, err := json.Marshal(change)
	if err != nil {
		log.Printf("store change marshal failed: %v", err)
		return
	}
	if err := raw.Publish(context.Background(), changeChannel, payload).Err(); err != nil {
		log.Printf("store publish change failed: %v", err)
	}
}

// Listen delivers store changes to handler on a background goroutine.
func (n *Notifier) Listen(handler func(Change)) {
	if n == nil || n.client == nil || handler == nil {
		return
	}
	raw := n.client.Raw()
	if raw == nil {
		return
	}
	go func() {
		ctx := context.Background()
		pubsub := raw.Subscribe(ctx, changeChannel)
		ch := pubsub.Channel()
		for msg := range ch {
			var change Change
			if err := json.Unmarshal([]byte(msg.Payload), &change); err != nil {
				log.Printf("store change decode failed: %v", err)
				continue
			}
			handler(change)
		}
	}()
}
